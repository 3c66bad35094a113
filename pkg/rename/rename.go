// Package rename implements mergeort.RenameDetector by diffing two trees
// against a common base and pairing deletions with additions by content
// similarity, the same line-level edit-script machinery pkg/diff3 already
// uses for three-way content merges.
package rename

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/foldvcs/fold/pkg/diff3"
	"github.com/foldvcs/fold/pkg/mergeort"
	"github.com/foldvcs/fold/pkg/object"
)

// Detector is the default RenameDetector collaborator.
type Detector struct{}

// New returns a ready-to-use Detector. It holds no state and is safe to
// reuse and to share across concurrent merges.
func New() *Detector { return &Detector{} }

// Diff implements mergeort.RenameDetector.
func (d *Detector) Diff(ctx context.Context, store mergeort.ObjectStore, baseTree, sideTree object.Hash, limit, score int, detect mergeort.RenameMode) ([]mergeort.FilePair, error) {
	if detect == mergeort.RenameOff {
		return nil, nil
	}

	baseFiles, err := listFiles(store, baseTree, "")
	if err != nil {
		return nil, err
	}
	sideFiles, err := listFiles(store, sideTree, "")
	if err != nil {
		return nil, err
	}

	var deleted, added []string
	for p := range baseFiles {
		if _, ok := sideFiles[p]; !ok {
			deleted = append(deleted, p)
		}
	}
	for p := range sideFiles {
		if _, ok := baseFiles[p]; !ok {
			added = append(added, p)
		}
	}
	sort.Strings(deleted)
	sort.Strings(added)

	if len(deleted)*len(added) > limit*limit {
		// Fall back to plain adds: the candidate space is too large to
		// score exhaustively within the configured rename_limit (§6).
		pairs := make([]mergeort.FilePair, 0, len(added))
		for _, a := range added {
			pairs = append(pairs, mergeort.FilePair{NewPath: a, Status: 'A'})
		}
		return pairs, nil
	}

	type candidate struct {
		oldPath, newPath string
		score            int
	}
	var candidates []candidate
	for _, oldPath := range deleted {
		oldHash := baseFiles[oldPath]
		for _, newPath := range added {
			newHash := sideFiles[newPath]
			if oldHash == newHash {
				candidates = append(candidates, candidate{oldPath, newPath, 100})
				continue
			}
			sim, err := similarity(store, oldHash, newHash)
			if err != nil {
				return nil, err
			}
			if sim >= score {
				candidates = append(candidates, candidate{oldPath, newPath, sim})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].oldPath != candidates[j].oldPath {
			return candidates[i].oldPath < candidates[j].oldPath
		}
		return candidates[i].newPath < candidates[j].newPath
	})

	usedOld := make(map[string]bool)
	usedNew := make(map[string]bool)
	var pairs []mergeort.FilePair
	for _, c := range candidates {
		if usedOld[c.oldPath] || usedNew[c.newPath] {
			continue
		}
		usedOld[c.oldPath] = true
		usedNew[c.newPath] = true
		pairs = append(pairs, mergeort.FilePair{OldPath: c.oldPath, NewPath: c.newPath, Status: 'R', Score: c.score})
	}

	for _, a := range added {
		if !usedNew[a] {
			pairs = append(pairs, mergeort.FilePair{NewPath: a, Status: 'A'})
		}
	}

	return pairs, nil
}

// similarity scores two blobs by the fraction of lines the Myers edit
// script leaves untouched (Equal ops), expressed 0-100, matching the
// rename_score percentage convention (§6).
func similarity(store mergeort.ObjectStore, a, b object.Hash) (int, error) {
	blobA, err := store.ReadBlob(a)
	if err != nil {
		return 0, err
	}
	blobB, err := store.ReadBlob(b)
	if err != nil {
		return 0, err
	}
	linesA := splitLines(string(blobA.Data))
	linesB := splitLines(string(blobB.Data))
	if len(linesA) == 0 && len(linesB) == 0 {
		return 100, nil
	}

	ops := diff3.MyersDiff(linesA, linesB)
	equal := 0
	for _, op := range ops {
		if op.Type == diff3.Equal {
			equal++
		}
	}
	total := len(linesA)
	if len(linesB) > total {
		total = len(linesB)
	}
	if total == 0 {
		return 100, nil
	}
	return equal * 100 / total, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// listFiles walks a tree recursively, returning every regular/executable/
// symlink file's full path mapped to its blob hash. Gitlinks are included
// keyed by their commit hash so submodule moves can still be detected as
// renames; directories themselves are not listed.
func listFiles(store mergeort.ObjectStore, tree object.Hash, prefix string) (map[string]object.Hash, error) {
	out := make(map[string]object.Hash)
	if tree == mergeort.NullOID {
		return out, nil
	}
	tr, err := store.ReadTree(tree)
	if err != nil {
		return nil, err
	}
	for _, entry := range tr.Entries {
		full := path.Join(prefix, entry.Name)
		if entry.IsDir {
			sub, err := listFiles(store, entry.SubtreeHash, full)
			if err != nil {
				return nil, err
			}
			for p, h := range sub {
				out[p] = h
			}
			continue
		}
		out[full] = entry.BlobHash
	}
	return out, nil
}
