package mergeort

import (
	"context"

	"github.com/foldvcs/fold/pkg/object"
)

// ObjectStore is the content-addressed object store collaborator (§6). It
// is satisfied directly by *object.Store; tests may substitute an
// in-memory fake.
type ObjectStore interface {
	ReadBlob(h object.Hash) (*object.Blob, error)
	WriteBlob(b *object.Blob) (object.Hash, error)
	ReadTree(h object.Hash) (*object.TreeObj, error)
	WriteTree(tr *object.TreeObj) (object.Hash, error)
}

// FilePair is a rename-detector result: one candidate old→new mapping.
type FilePair struct {
	OldPath string
	NewPath string
	Status  byte // 'A' (add, eligible rename target) or 'R' (rename)
	Score   int
}

// RenameDetector is the external file-pair rename detector (§6). The engine
// does not implement similarity scoring; it only consumes pairs.
type RenameDetector interface {
	Diff(ctx context.Context, store ObjectStore, baseTree, sideTree object.Hash, limit, score int, detect RenameMode) ([]FilePair, error)
}

// MergeLabels carries the branch/ancestor names used only in user-visible
// conflict markers and diagnostics.
type MergeLabels struct {
	Ancestor, Side1, Side2 string
}

// ContentMergeResult is the output of a content merger invocation.
type ContentMergeResult struct {
	Data  []byte
	Clean bool
}

// ContentMerger is the low-level three-way text (or structural) merger
// collaborator (§6, §4.4). The engine is agnostic to how conflict markers
// are rendered; it only inspects Clean.
type ContentMerger interface {
	ThreeWay(ctx context.Context, path string, base, side1, side2 []byte, labels MergeLabels, variant Variant, markerSize int) (ContentMergeResult, error)
}

// SubmoduleMerger resolves a gitlink entry given the three candidate OIDs.
// ok is false when the merger cannot produce a unique resolution, in which
// case the path is recorded as unmerged (§7).
type SubmoduleMerger interface {
	Merge(path string, base, side1, side2 object.Hash) (resolved object.Hash, ok bool)
}

// OpaqueSubmoduleMerger implements SubmoduleMerger by always refusing to
// resolve, per §9's guidance for callers without history-walk-based
// submodule merge: "always leave them as path conflicts when the three
// OIDs differ nontrivially."
type OpaqueSubmoduleMerger struct{}

func (OpaqueSubmoduleMerger) Merge(_ string, _, _, _ object.Hash) (object.Hash, bool) {
	return NullOID, false
}

// WorkingTreeAdapter is the optional collaborator that turns a Result into
// working-copy and index updates. The engine itself never calls it; it
// exists so that pkg/repo can depend on a narrow interface instead of the
// whole mergeort package surface.
type WorkingTreeAdapter interface {
	Apply(ctx context.Context, store ObjectStore, result Result) error
}
