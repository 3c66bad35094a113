package mergeort

import (
	"context"
	"sort"

	"github.com/foldvcs/fold/pkg/object"
)

// writeTree is the tree writer (§4.7). It walks every path-table entry in
// reverse-lexicographic order, which guarantees a path's descendants (always
// lexicographically greater, since a directory path is a strict prefix of
// everything under it) are visited before the path itself. Each directory
// accumulates its children's entries as they are visited, and is flushed —
// turned into a real tree object and folded into its own parent's
// accumulator — the moment its own turn in the traversal arrives. A
// directory whose children all resolved to deletion accumulates zero
// entries and is simply never written or referenced, so it vanishes from
// the result rather than appearing as an empty tree.
func (e *engine) writeTree(ctx context.Context) (object.Hash, error) {
	paths := make([]string, 0, len(e.table))
	for p := range e.table {
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	childEntries := make(map[string][]object.TreeEntry)

	for _, p := range paths {
		ci := e.table[p]
		if ci == nil {
			continue
		}
		parentDir, basename := dirAndBase(p)

		switch {
		case ci.Result.Mode == ModeDir:
			entries := childEntries[p]
			if len(entries) == 0 {
				if ci.Result.OID == NullOID {
					continue // every child was deleted: this directory vanishes too.
				}
				// Rule 1 (collector.go) resolved this directory as
				// byte-identical across all three inputs without
				// recursing into it, so it never accumulated entries
				// here: carry its existing subtree straight through.
				delete(childEntries, p)
				childEntries[parentDir] = append(childEntries[parentDir], object.TreeEntry{
					Name:        basename,
					IsDir:       true,
					Mode:        object.TreeModeDir,
					SubtreeHash: ci.Result.OID,
				})
				continue
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
			hash, err := e.store.WriteTree(&object.TreeObj{Entries: entries})
			if err != nil {
				return NullOID, fatalf("write tree %s: %v", p, err)
			}
			delete(childEntries, p)
			childEntries[parentDir] = append(childEntries[parentDir], object.TreeEntry{
				Name:        basename,
				IsDir:       true,
				Mode:        object.TreeModeDir,
				SubtreeHash: hash,
			})

		case ci.Result.Mode != ModeNone:
			childEntries[parentDir] = append(childEntries[parentDir], object.TreeEntry{
				Name:     basename,
				IsDir:    false,
				Mode:     string(ci.Result.Mode),
				BlobHash: ci.Result.OID,
			})

		default:
			// Deleted: contributes nothing to its parent.
		}
	}

	rootEntries := childEntries[""]
	sort.Slice(rootEntries, func(i, j int) bool { return rootEntries[i].Name < rootEntries[j].Name })
	hash, err := e.store.WriteTree(&object.TreeObj{Entries: rootEntries})
	if err != nil {
		return NullOID, fatalf("write root tree: %v", err)
	}
	return hash, nil
}
