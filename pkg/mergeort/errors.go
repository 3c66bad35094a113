package mergeort

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// ErrFatal wraps an unrecoverable engine failure (§7): object-store I/O
// failure, a malformed tree, or a broken invariant caught by an internal
// assertion. Callers must not consume a Result returned alongside this
// error — the path table is left in an undefined state.
var ErrFatal = errors.New("mergeort: fatal merge error")

func fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFatal, fmt.Sprintf(format, args...))
}

// diagnostics is the diagnostic sink of §7, wired to go.uber.org/zap (§10):
// a development logger writing each message as it is raised when Verbosity
// is above zero, a no-op logger otherwise. The buffer flag copies
// Options.BufferOutput but does not change where or when output is written.
// It is purely observational: nothing routed through it changes Clean or
// the unmerged-entry list.
type diagnostics struct {
	logger   *zap.Logger
	buffer   bool
	entries  *multierror.Error
	byPath   map[string]string
}

func newDiagnostics(opts Options) *diagnostics {
	var logger *zap.Logger
	if opts.Verbosity > 0 {
		logger, _ = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	return &diagnostics{logger: logger, buffer: opts.BufferOutput, byPath: make(map[string]string)}
}

func (d *diagnostics) warn(path, msg string, fields ...zap.Field) {
	all := append([]zap.Field{zap.String("path", path)}, fields...)
	d.logger.Warn(msg, all...)
	d.entries = multierror.Append(d.entries, fmt.Errorf("%s: %s", path, msg))
	if existing, ok := d.byPath[path]; ok {
		d.byPath[path] = existing + "; " + msg
	} else {
		d.byPath[path] = msg
	}
}

// Aggregate returns the accumulated per-path diagnostics as one error
// value, or nil if none were recorded. It never reflects the merge's
// clean/unclean outcome by itself — callers should consult Result.Clean.
func (d *diagnostics) Aggregate() error {
	if d.entries == nil || d.entries.Len() == 0 {
		return nil
	}
	return d.entries.ErrorOrNil()
}

func (d *diagnostics) sync() {
	_ = d.logger.Sync()
}
