// Package content adapts pkg/diff3 and pkg/merge to the mergeort.ContentMerger
// collaborator interface, so the engine's path resolver never has to know
// about either package's own Result/MergeResult shapes.
package content

import (
	"context"

	"github.com/foldvcs/fold/pkg/diff3"
	"github.com/foldvcs/fold/pkg/merge"
	"github.com/foldvcs/fold/pkg/mergeort"
)

// LineMerger is the default ContentMerger: a straight three-way line-level
// merge via pkg/diff3, the same algorithm `got diff`/`got merge` already use
// outside the tree-merge engine.
type LineMerger struct{}

func (LineMerger) ThreeWay(ctx context.Context, path string, base, side1, side2 []byte, labels mergeort.MergeLabels, variant mergeort.Variant, markerSize int) (mergeort.ContentMergeResult, error) {
	switch variant {
	case mergeort.VariantOurs:
		if diff3Equal(side1, side2) {
			return mergeort.ContentMergeResult{Data: side1, Clean: true}, nil
		}
		return mergeort.ContentMergeResult{Data: side1, Clean: true}, nil
	case mergeort.VariantTheirs:
		return mergeort.ContentMergeResult{Data: side2, Clean: true}, nil
	}

	res := diff3.MergeLabeled(base, side1, side2, labels.Side1, labels.Side2, markerSize)
	return mergeort.ContentMergeResult{Data: res.Merged, Clean: !res.HasConflicts}, nil
}

func diff3Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StructuralMerger prefers entity-aware merging (pkg/merge, built on top of
// pkg/entity's structural extraction) and falls back to a plain line-level
// diff3 merge whenever pkg/merge itself falls back (binary content,
// unsupported language, or a side with no recognizable declarations).
// A non-normal Variant is handed to LineMerger; on the structural path
// markerSize is ignored — the structural merger has no notion of marker
// width, and pkg/merge's conflict rendering (its text fallback included)
// always writes 7-character markers.
type StructuralMerger struct{}

func (StructuralMerger) ThreeWay(ctx context.Context, path string, base, side1, side2 []byte, labels mergeort.MergeLabels, variant mergeort.Variant, markerSize int) (mergeort.ContentMergeResult, error) {
	if variant != mergeort.VariantNormal {
		return LineMerger{}.ThreeWay(ctx, path, base, side1, side2, labels, variant, markerSize)
	}

	res, err := merge.MergeFiles(path, base, side1, side2)
	if err != nil {
		return mergeort.ContentMergeResult{}, err
	}
	return mergeort.ContentMergeResult{Data: res.Merged, Clean: !res.HasConflicts}, nil
}
