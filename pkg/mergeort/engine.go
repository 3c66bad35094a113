package mergeort

import (
	"context"
	"path"
	"strings"

	"github.com/foldvcs/fold/pkg/object"
)

// dirRenameEntry is one row of the directory-rename map (§4.2).
type dirRenameEntry struct {
	newDir        string
	counts        map[string]int
	nonUnique     bool
}

// engine holds all state for a single non-recursive merge_trees invocation.
// A new engine is created for every call, including every recursive-driver
// fold (§4.8) — instances are never shared across concurrent merges (§5).
type engine struct {
	store    ObjectStore
	renames  RenameDetector
	content  ContentMerger
	submods  SubmoduleMerger
	opts     Options
	diag     *diagnostics

	table PathTable

	// interned directory-name strings: two entries sharing a parent
	// directory hold the same Go string value (§9, §4.7's pointer-equality
	// requirement).
	dirNames map[string]string

	// possible directory-rename sources per side: side index -> set of
	// directory paths present in base and on exactly one side, keyed by the
	// side the directory is missing from.
	possibleDirRenameSources [3]map[string]bool

	depth           int
	extraMarkerSize int
}

func newEngine(store ObjectStore, renames RenameDetector, content ContentMerger, submods SubmoduleMerger, opts Options, depth int) *engine {
	e := &engine{
		store:    store,
		renames:  renames,
		content:  content,
		submods:  submods,
		opts:     opts,
		diag:     newDiagnostics(opts),
		table:    make(PathTable),
		dirNames: make(map[string]string),
		depth:    depth,
	}
	e.extraMarkerSize = depth * 2
	for i := range e.possibleDirRenameSources {
		e.possibleDirRenameSources[i] = make(map[string]bool)
	}
	return e
}

// internDir returns the canonical Go string for a directory path, ensuring
// every entry under the same directory shares one string value.
func (e *engine) internDir(p string) string {
	if v, ok := e.dirNames[p]; ok {
		return v
	}
	e.dirNames[p] = p
	return p
}

func dirAndBase(p string) (dir, base string) {
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[:idx], p[idx+1:]
	}
	return "", p
}

func joinPath(dir, base string) string {
	if dir == "" {
		return base
	}
	return path.Join(dir, base)
}

// run executes the full non-recursive pipeline (§2) over three tree OIDs
// and returns the merge Result.
func (e *engine) run(ctx context.Context, base, side1, side2 object.Hash) (*Result, error) {
	if e.opts.SubtreeShift != "" {
		var err error
		base, side1, side2, err = e.shiftToSubtree(e.opts.SubtreeShift, base, side1, side2)
		if err != nil {
			return nil, err
		}
	}

	if err := e.collect(ctx, base, side1, side2); err != nil {
		return nil, err
	}

	if e.opts.DetectRenames != RenameOff {
		if err := e.detectAndProcessRenames(ctx, base, side1, side2); err != nil {
			return nil, err
		}
	}

	if err := e.resolveAll(ctx); err != nil {
		return nil, err
	}

	treeOID, err := e.writeTree(ctx)
	if err != nil {
		return nil, err
	}

	unmerged := e.collectUnmerged()
	return &Result{
		ResultTreeOID:   treeOID,
		Clean:           len(unmerged) == 0,
		UnmergedEntries: unmerged,
	}, nil
}

// shiftToSubtree re-roots all three trees at a slash-separated path prefix
// (the subtree_shift option, Options.SubtreeShift), so the merge
// only ever sees the subtree as if it were the repository root. A side that
// lacks the prefix entirely contributes an empty tree rather than an error,
// matching how a fresh directory is treated elsewhere in the collector.
func (e *engine) shiftToSubtree(prefix string, base, side1, side2 object.Hash) (object.Hash, object.Hash, object.Hash, error) {
	b, err := e.subtreeAt(base, prefix)
	if err != nil {
		return NullOID, NullOID, NullOID, err
	}
	s1, err := e.subtreeAt(side1, prefix)
	if err != nil {
		return NullOID, NullOID, NullOID, err
	}
	s2, err := e.subtreeAt(side2, prefix)
	if err != nil {
		return NullOID, NullOID, NullOID, err
	}
	return b, s1, s2, nil
}

func (e *engine) subtreeAt(tree object.Hash, prefix string) (object.Hash, error) {
	if tree == NullOID {
		return NullOID, nil
	}
	cur := tree
	for _, seg := range strings.Split(prefix, "/") {
		if seg == "" {
			continue
		}
		t, err := e.store.ReadTree(cur)
		if err != nil {
			return NullOID, fatalf("read tree %s: %v", cur, err)
		}
		found := false
		for _, entry := range t.Entries {
			if entry.Name == seg && entry.IsDir {
				cur = entry.SubtreeHash
				found = true
				break
			}
		}
		if !found {
			return NullOID, nil
		}
	}
	return cur, nil
}

func (e *engine) collectUnmerged() []UnmergedEntry {
	var out []UnmergedEntry
	for p, ci := range e.table {
		if ci.Clean {
			continue
		}
		out = append(out, UnmergedEntry{
			Path:         p,
			FileMask:     ci.FileMask,
			DirMask:      ci.DirMask,
			PathConflict: ci.PathConflict,
			DFConflict:   ci.DFConflict,
			Stages:       ci.Stages,
			Resolved:     ci.Result,
			Diagnostic:   e.diag.byPath[p],
		})
	}
	return out
}

// ensureParents creates synthetic pure-directory path-table entries for
// every ancestor of p that does not already have one (§3's invariant that
// every non-root path has a parent-directory entry).
func (e *engine) ensureParents(p string) {
	dir, _ := dirAndBase(p)
	for dir != "" {
		if _, ok := e.table[dir]; ok {
			return
		}
		parent, _ := dirAndBase(dir)
		e.table[dir] = &ConflictInfo{
			MergedInfo: MergedInfo{
				Result:        VersionInfo{Mode: ModeDir},
				DirectoryName: e.internDir(parent),
				Clean:         true,
			},
		}
		dir = parent
	}
}
