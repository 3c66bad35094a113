package mergeort

import (
	"context"
	"sort"

	"github.com/foldvcs/fold/pkg/object"
)

// collectFrame is one level of the explicit traversal stack (§9: "turn the
// tree-walk recursion into an explicit stack" to avoid recursion-depth
// limits on pathological directory nesting).
type collectFrame struct {
	prefix         string
	base, s1, s2   VersionInfo
	insideRenamed  bool
}

// collect performs the synchronized three-tree preorder traversal (§4.1)
// starting at the three tree roots, populating e.table.
func (e *engine) collect(ctx context.Context, base, side1, side2 object.Hash) error {
	root := collectFrame{
		base: VersionInfo{Mode: ModeDir, OID: base},
		s1:   VersionInfo{Mode: ModeDir, OID: side1},
		s2:   VersionInfo{Mode: ModeDir, OID: side2},
	}
	stack := []collectFrame{root}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := e.loadChildTriples(f.prefix, f.base, f.s1, f.s2)
		if err != nil {
			return err
		}
		for _, c := range children {
			recurseFrame, shouldRecurse := e.applyCollectorRules(f.prefix, c, f.insideRenamed)
			if shouldRecurse {
				stack = append(stack, recurseFrame)
			}
		}
	}
	return nil
}

// childTriple is one basename's VersionInfo across the three positions.
type childTriple struct {
	basename       string
	base, s1, s2   VersionInfo
}

// loadChildTriples reads each side's directory (if present as a directory)
// and merges the three sorted basename lists.
func (e *engine) loadChildTriples(prefix string, base, s1, s2 VersionInfo) ([]childTriple, error) {
	baseEntries, err := e.loadDirEntries(base)
	if err != nil {
		return nil, err
	}
	s1Entries, err := e.loadDirEntries(s1)
	if err != nil {
		return nil, err
	}
	s2Entries, err := e.loadDirEntries(s2)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool)
	for n := range baseEntries {
		names[n] = true
	}
	for n := range s1Entries {
		names[n] = true
	}
	for n := range s2Entries {
		names[n] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	out := make([]childTriple, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, childTriple{
			basename: n,
			base:     baseEntries[n],
			s1:       s1Entries[n],
			s2:       s2Entries[n],
		})
	}
	return out, nil
}

func (e *engine) loadDirEntries(v VersionInfo) (map[string]VersionInfo, error) {
	if v.OID == NullOID || !v.Mode.IsDir() {
		return nil, nil
	}
	tr, err := e.store.ReadTree(v.OID)
	if err != nil {
		return nil, fatalf("read tree %s: %v", v.OID, err)
	}
	out := make(map[string]VersionInfo, len(tr.Entries))
	for _, entry := range tr.Entries {
		if entry.IsDir {
			out[entry.Name] = VersionInfo{Mode: ModeDir, OID: entry.SubtreeHash}
			continue
		}
		mode := Mode(entry.Mode)
		if mode == ModeNone {
			mode = ModeFile
		}
		out[entry.Name] = VersionInfo{Mode: mode, OID: entry.BlobHash}
	}
	return out, nil
}

func maskOf(base, s1, s2 VersionInfo) (mask, dirmask uint8) {
	if !base.IsNull() {
		mask |= 1
		if base.Mode.IsDir() {
			dirmask |= 1
		}
	}
	if !s1.IsNull() {
		mask |= 2
		if s1.Mode.IsDir() {
			dirmask |= 2
		}
	}
	if !s2.IsNull() {
		mask |= 4
		if s2.Mode.IsDir() {
			dirmask |= 4
		}
	}
	return mask, dirmask
}

func matchMaskOf(base, s1, s2 VersionInfo) uint8 {
	var m uint8
	if !base.IsNull() && !s1.IsNull() && base.Equal(s1) {
		m |= 1
	}
	if !base.IsNull() && !s2.IsNull() && base.Equal(s2) {
		m |= 4
	}
	if !s1.IsNull() && !s2.IsNull() && s1.Equal(s2) {
		m |= 2
	}
	// Encode per §3: {base,side1}=3, {base,side2}=5, {side1,side2}=6.
	switch {
	case m&1 != 0 && m&4 == 0 && m&2 == 0:
		return 3
	case m&4 != 0 && m&1 == 0 && m&2 == 0:
		return 5
	case m&2 != 0 && m&1 == 0 && m&4 == 0:
		return 6
	case m&1 != 0 && m&4 != 0:
		// all three equal collapses to the side1==side2 encoding.
		return 6
	default:
		return 0
	}
}

// applyCollectorRules implements §4.1's five ordered rules for one path,
// inserting (or skipping) its path-table entry and reporting whether — and
// with what child triple — the traversal should recurse.
func (e *engine) applyCollectorRules(prefix string, c childTriple, insideRenamed bool) (collectFrame, bool) {
	p := joinPath(prefix, c.basename)
	base, s1, s2 := c.base, c.s1, c.s2
	mask, dirmask := maskOf(base, s1, s2)

	insert := func(result VersionInfo, clean bool) {
		e.ensureParents(p)
		parentDir, _ := dirAndBase(p)
		e.table[p] = &ConflictInfo{
			MergedInfo: MergedInfo{
				Result:        result,
				DirectoryName: e.internDir(parentDir),
				IsNull:        result.IsNull(),
				Clean:         clean,
			},
			Stages:    [3]VersionInfo{base, s1, s2},
			Pathnames: pathnamesFor(p, base, s1, s2),
		}
	}

	recurseNeeded := dirmask != 0
	childFrame := collectFrame{prefix: p, base: base, s1: s1, s2: s2, insideRenamed: insideRenamed}

	// Rule 1: all three identical.
	if mask == 7 && base.Equal(s1) && s1.Equal(s2) {
		insert(base, true)
		return childFrame, false // subtree unchanged, no need to recurse
	}

	filemask := mask &^ dirmask
	// Rule 2: three files, sides match.
	if filemask == 7 && s1.Equal(s2) {
		insert(s1, true)
		return childFrame, false
	}

	if !insideRenamed {
		// Rule 3: side1 matches base.
		if mask&1 != 0 && mask&2 != 0 && base.Equal(s1) {
			if mask&4 == 0 {
				return childFrame, false // dropped: no entry at all
			}
			if base.Mode.IsDir() || s1.Mode.IsDir() || s2.Mode.IsDir() {
				// Directory involved: fall through to fallback below using
				// the full triple so descendants under side2 are still
				// discoverable.
			} else {
				insert(s2, true)
				return childFrame, false
			}
		} else if mask&1 != 0 && mask&4 != 0 && base.Equal(s2) {
			// Rule 4: side2 matches base (mirror).
			if mask&2 == 0 {
				return childFrame, false
			}
			if base.Mode.IsDir() || s1.Mode.IsDir() || s2.Mode.IsDir() {
				// fall through
			} else {
				insert(s1, true)
				return childFrame, false
			}
		}
	}

	// Rule 5: fallback.
	mm := matchMaskOf(base, s1, s2)
	e.ensureParents(p)
	parentDir, _ := dirAndBase(p)
	ci := &ConflictInfo{
		MergedInfo: MergedInfo{
			DirectoryName: e.internDir(parentDir),
		},
		Stages:    [3]VersionInfo{base, s1, s2},
		Pathnames: pathnamesFor(p, base, s1, s2),
		FileMask:  filemask,
		DirMask:   dirmask,
		MatchMask: mm,
	}
	e.table[p] = ci

	if dirmask == 3 {
		e.possibleDirRenameSources[Side2][p] = true
	} else if dirmask == 5 {
		e.possibleDirRenameSources[Side1][p] = true
	}

	childFrame.insideRenamed = insideRenamed || dirmask == 3 || dirmask == 5
	return childFrame, recurseNeeded
}

func pathnamesFor(p string, base, s1, s2 VersionInfo) [3]string {
	var out [3]string
	if !base.IsNull() {
		out[SideBase] = p
	}
	if !s1.IsNull() {
		out[Side1] = p
	}
	if !s2.IsNull() {
		out[Side2] = p
	}
	return out
}
