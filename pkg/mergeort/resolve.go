package mergeort

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/foldvcs/fold/pkg/object"
)

// resolveAll is the per-path resolver (§4.3): it walks every path-table
// entry the collector (and rename processing) left unclean and decides its
// merged content, dispatching to content merge (§4.4) or D/F relocation
// (§4.6) as needed. Paths are visited in sorted order so diagnostics and any
// unique_path collision numbering are deterministic (§5).
func (e *engine) resolveAll(ctx context.Context) error {
	paths := make([]string, 0, len(e.table))
	for p := range e.table {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		ci := e.table[p]
		if ci == nil || ci.Processed || ci.Clean {
			continue
		}
		if err := e.resolvePath(ctx, p, ci); err != nil {
			return err
		}
		ci.Processed = true
	}
	return nil
}

func (e *engine) resolvePath(ctx context.Context, p string, ci *ConflictInfo) error {
	if ci.DirMask != 0 && ci.FileMask != 0 {
		return e.handleDFConflict(p, ci)
	}
	if ci.DirMask != 0 {
		ci.Result = VersionInfo{Mode: ModeDir}
		ci.Clean = true
		return nil
	}

	switch ci.FileMask {
	case 0:
		ci.Clean = true
	case 1: // base only: both sides deleted it.
		ci.Result = VersionInfo{}
		ci.IsNull = true
		ci.Clean = true
	case 2: // side1 only: a clean add.
		ci.Result = ci.Stages[Side1]
		ci.Clean = true
	case 4: // side2 only: a clean add.
		ci.Result = ci.Stages[Side2]
		ci.Clean = true
	case 3:
		e.resolveModifyDelete(p, ci, Side1, Side2)
	case 5:
		e.resolveModifyDelete(p, ci, Side2, Side1)
	case 6:
		return e.resolveAddAdd(ctx, p, ci)
	case 7:
		return e.resolveThreeWay(ctx, p, ci)
	}
	return nil
}

// resolveModifyDelete handles a path present in base and exactly one side
// (§4.3's modify/delete case). If the surviving side left the content
// byte-identical to base, the deletion wins cleanly; otherwise this is a
// modify/delete conflict that keeps the modified content but stays unclean.
func (e *engine) resolveModifyDelete(p string, ci *ConflictInfo, survivingSide, deletedSide int) {
	base := ci.Stages[SideBase]
	surv := ci.Stages[survivingSide]
	if base.Equal(surv) {
		ci.Result = VersionInfo{}
		ci.IsNull = true
		ci.Clean = true
		return
	}
	ci.Result = surv
	ci.Clean = false
	e.diag.warn(p, "modify/delete conflict")
}

// resolveAddAdd handles a path with no base presence added independently on
// both sides (§4.3). Identical adds are clean; otherwise the two versions
// go through content merge with a null ancestor.
func (e *engine) resolveAddAdd(ctx context.Context, p string, ci *ConflictInfo) error {
	s1, s2 := ci.Stages[Side1], ci.Stages[Side2]
	if s1.Equal(s2) {
		ci.Result = s1
		ci.Clean = true
		return nil
	}
	return e.mergeContent(ctx, p, ci, VersionInfo{}, s1, s2)
}

// resolveThreeWay handles the ordinary case: base and both sides all carry
// content at this path, and at least one side differs from base (§4.4).
func (e *engine) resolveThreeWay(ctx context.Context, p string, ci *ConflictInfo) error {
	return e.mergeContent(ctx, p, ci, ci.Stages[SideBase], ci.Stages[Side1], ci.Stages[Side2])
}

// mergeContent dispatches a content merge by resolved mode (§4.4): mode
// conflicts are recorded but do not block attempting a best-effort content
// resolution so the conflict markers (or submodule/ symlink result) are
// still useful to a human resolving the path by hand.
func (e *engine) mergeContent(ctx context.Context, p string, ci *ConflictInfo, base, s1, s2 VersionInfo) error {
	mode, modeClean := resolveMode(base.Mode, s1.Mode, s2.Mode)

	switch mode.Type() {
	case ModeGitlink:
		oid, ok := e.submods.Merge(p, base.OID, s1.OID, s2.OID)
		if !ok {
			ci.Result = s1
			ci.Clean = false
			e.diag.warn(p, "submodule conflict")
			return nil
		}
		ci.Result = VersionInfo{Mode: ModeGitlink, OID: oid}
		ci.Clean = modeClean
		return nil

	case ModeFile, ModeSymlink:
		baseData, err := e.readBlobBytes(base.OID)
		if err != nil {
			return err
		}
		s1Data, err := e.readBlobBytes(s1.OID)
		if err != nil {
			return err
		}
		s2Data, err := e.readBlobBytes(s2.OID)
		if err != nil {
			return err
		}

		labels := MergeLabels{Ancestor: e.opts.Ancestor, Side1: e.opts.Branch1, Side2: e.opts.Branch2}
		markerSize := 7 + e.extraMarkerSize
		res, err := e.content.ThreeWay(ctx, p, baseData, s1Data, s2Data, labels, e.opts.RecursiveVariant, markerSize)
		if err != nil {
			return fatalf("content merge %s: %v", p, err)
		}
		blobHash, err := e.store.WriteBlob(&object.Blob{Data: res.Data})
		if err != nil {
			return fatalf("write blob %s: %v", p, err)
		}
		ci.Result = VersionInfo{Mode: mode, OID: blobHash}
		ci.Clean = modeClean && res.Clean
		if !modeClean {
			e.diag.warn(p, "mode conflict")
		}
		return nil

	default:
		ci.Result = s1
		ci.Clean = false
		e.diag.warn(p, "unresolvable type conflict")
		return nil
	}
}

func (e *engine) readBlobBytes(h object.Hash) ([]byte, error) {
	if h == NullOID {
		return nil, nil
	}
	b, err := e.store.ReadBlob(h)
	if err != nil {
		return nil, fatalf("read blob %s: %v", h, err)
	}
	return b.Data, nil
}

// resolveMode implements §4.4's mode-resolution rule: agreement or a
// one-sided change wins outright; two differing regular-file modes (exec
// bit) resolve to executable; anything else is a mode conflict that still
// returns a usable representative mode for the content-merge dispatch.
func resolveMode(base, s1, s2 Mode) (Mode, bool) {
	if s1 == s2 {
		return s1, true
	}
	if s1 == base {
		return s2, true
	}
	if s2 == base {
		return s1, true
	}
	if s1.Type() == ModeFile && s2.Type() == ModeFile {
		if s1 == ModeExec || s2 == ModeExec {
			return ModeExec, true
		}
		return ModeFile, true
	}
	return s1, false
}

// handleDFConflict implements §4.6: when a path carries both file content
// (FileMask) and directory content (DirMask) after renames are applied, the
// file side(s) are relocated to a unique_path so the directory can occupy
// the plain path; the directory's own children keep resolving under the
// original prefix via their own table entries.
func (e *engine) handleDFConflict(p string, ci *ConflictInfo) error {
	// The ancestor's own file content never gets a relocated path: if
	// filemask==1 (file only in base), the base side's file is simply
	// dropped in favor of whichever side(s) turned this path into a
	// directory, per §4.3.
	for side := Side1; side <= Side2; side++ {
		if ci.FileMask&(1<<uint(side)) == 0 {
			continue
		}
		stage := ci.Stages[side]
		unique := e.uniquePath(p, branchLabel(e.opts, side))

		var stages [3]VersionInfo
		var pathnames [3]string
		stages[side] = stage
		pathnames[side] = unique

		e.table[unique] = &ConflictInfo{
			MergedInfo: MergedInfo{
				Result:        stage,
				DirectoryName: ci.DirectoryName,
				Clean:         false,
			},
			Stages:     stages,
			Pathnames:  pathnames,
			DFConflict: true,
		}
		e.diag.warn(p, fmt.Sprintf("directory/file conflict: relocated to %s", unique))
	}

	ci.FileMask = 0
	ci.Stages = [3]VersionInfo{}
	ci.Pathnames = [3]string{}
	ci.Result = VersionInfo{Mode: ModeDir}
	ci.DFConflict = true
	ci.Clean = true
	return nil
}

func branchLabel(opts Options, side int) string {
	switch side {
	case Side1:
		return opts.Branch1
	case Side2:
		return opts.Branch2
	default:
		return "base"
	}
}

func (e *engine) uniquePath(p, label string) string {
	base := p + "~" + strings.ReplaceAll(label, "/", "_")
	if _, exists := e.table[base]; !exists {
		return base
	}
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if _, exists := e.table[candidate]; !exists {
			return candidate
		}
	}
}
