package mergeort

import (
	"context"
	"sort"
	"strings"

	"github.com/foldvcs/fold/pkg/object"
)

// detectAndProcessRenames is the rename engine (§4.2) plus the rename
// processor that consumes its output. It mutates e.table in place.
func (e *engine) detectAndProcessRenames(ctx context.Context, base, side1, side2 object.Hash) error {
	pairs1, err := e.renames.Diff(ctx, e.store, base, side1, e.opts.RenameLimit, e.opts.RenameScore, e.opts.DetectRenames)
	if err != nil {
		return fatalf("rename detect side1: %v", err)
	}
	pairs2, err := e.renames.Diff(ctx, e.store, base, side2, e.opts.RenameLimit, e.opts.RenameScore, e.opts.DetectRenames)
	if err != nil {
		return fatalf("rename detect side2: %v", err)
	}

	if e.opts.DetectDirectoryRenames != DirRenameNone {
		dirMap1 := computeDirRenameMap(pairs1)
		dirMap2 := computeDirRenameMap(pairs2)
		e.applyDirectoryRenames(Side1, Side2, dirMap2, dirMap1)
		e.applyDirectoryRenames(Side2, Side1, dirMap1, dirMap2)
		pairs1 = substituteDirRenames(pairs1, dirMap1)
		pairs2 = substituteDirRenames(pairs2, dirMap2)
	}

	return e.processRenamePairs(pairs1, pairs2)
}

// computeDirRenameMap implements §4.2's directory-rename inference: for
// every rename pair, the maximal common trailing path run splits old_path
// and new_path into (old_dir, new_dir); old_dir's counts are tallied and
// the majority new_dir wins (ties mark non_unique).
func computeDirRenameMap(pairs []FilePair) map[string]*dirRenameEntry {
	m := make(map[string]*dirRenameEntry)
	for _, p := range pairs {
		if p.Status != 'R' {
			continue
		}
		oldDir, newDir, ok := splitOnTrailingRun(p.OldPath, p.NewPath)
		if !ok || oldDir == newDir {
			continue
		}
		entry := m[oldDir]
		if entry == nil {
			entry = &dirRenameEntry{counts: make(map[string]int)}
			m[oldDir] = entry
		}
		entry.counts[newDir]++
	}
	for _, entry := range m {
		best, bestCount, unique := "", -1, true
		for dir, count := range entry.counts {
			switch {
			case count > bestCount:
				best, bestCount, unique = dir, count, true
			case count == bestCount:
				unique = false
			}
		}
		entry.newDir = best
		entry.nonUnique = !unique
	}
	return m
}

// splitOnTrailingRun computes the maximal common trailing component run
// between old and new paths, returning the differing prefixes.
func splitOnTrailingRun(oldPath, newPath string) (oldDir, newDir string, ok bool) {
	oldParts := strings.Split(oldPath, "/")
	newParts := strings.Split(newPath, "/")
	oi, ni := len(oldParts)-1, len(newParts)-1
	// Keep at least the basename distinct — the trailing run excludes the
	// final component, which is the file itself.
	oi--
	ni--
	for oi >= 0 && ni >= 0 && oldParts[oi] == newParts[ni] {
		oi--
		ni--
	}
	oldDir = strings.Join(oldParts[:oi+1], "/")
	newDir = strings.Join(newParts[:ni+1], "/")
	return oldDir, newDir, true
}

// applyDirectoryRenames relocates path-table entries whose content lives on
// `fromSide` but whose directory falls under a rename that only the OTHER
// side performed (renamerMap, built from the other side's own pairs) — a
// plain add landing under a directory's pre-rename name needs to follow
// that rename even though the side holding the add never renamed anything
// itself. renamerSide names which side actually owns renamerMap, for
// diagnostics. The exclusion rule skips relocation when fromSide's own map
// (ownMap) also renamed the same old_dir to a different target — both sides
// renamed it, ambiguously.
func (e *engine) applyDirectoryRenames(fromSide, renamerSide int, renamerMap, ownMap map[string]*dirRenameEntry) {
	if len(renamerMap) == 0 {
		return
	}
	type relocation struct {
		oldPath, newPath string
	}
	var relocations []relocation

	for p, ci := range e.table {
		if ci.DirMask != 0 {
			continue // directories are relocated implicitly via their children
		}
		if ci.Stages[fromSide].IsNull() {
			continue
		}
		oldDir, base := dirAndBase(p)
		matchedOldDir, entry, found := longestPrefixMatch(oldDir, renamerMap)
		if !found || entry.nonUnique {
			continue
		}
		if other, ok := ownMap[matchedOldDir]; ok && other.newDir != entry.newDir {
			e.diag.warn(p, "directory rename excluded: both sides renamed the same directory differently")
			continue
		}
		newDir := entry.newDir
		if strings.HasPrefix(oldDir, matchedOldDir) {
			rest := strings.TrimPrefix(oldDir, matchedOldDir)
			newDir = newDir + rest
		}
		newPath := joinPath(newDir, base)
		if newPath == p {
			continue
		}
		relocations = append(relocations, relocation{oldPath: p, newPath: newPath})
	}

	for _, r := range relocations {
		e.relocateEntry(r.oldPath, r.newPath, fromSide)
	}
}

func longestPrefixMatch(dir string, m map[string]*dirRenameEntry) (string, *dirRenameEntry, bool) {
	for d := dir; ; {
		if entry, ok := m[d]; ok {
			return d, entry, true
		}
		parent, _ := dirAndBase(d)
		if parent == d || d == "" {
			return "", nil, false
		}
		d = parent
	}
}

// relocateEntry moves the `side` stage of the entry at oldPath to newPath,
// merging with any existing entry already at newPath (combining filemask
// bits) and leaving the old entry resolved-by-removal for that side.
func (e *engine) relocateEntry(oldPath, newPath string, side int) {
	old := e.table[oldPath]
	if old == nil {
		return
	}

	dst, exists := e.table[newPath]
	if !exists {
		e.ensureParents(newPath)
		parentDir, _ := dirAndBase(newPath)
		dst = &ConflictInfo{
			MergedInfo: MergedInfo{DirectoryName: e.internDir(parentDir)},
		}
		e.table[newPath] = dst
	}

	dst.Stages[side] = old.Stages[side]
	dst.Pathnames[side] = newPath
	dst.FileMask |= (1 << uint(side))
	dst.PathConflict = true
	dst.Clean = false

	old.Stages[side] = VersionInfo{}
	old.Pathnames[side] = ""
	old.FileMask &^= (1 << uint(side))
	if old.FileMask == 0 && old.DirMask == 0 {
		delete(e.table, oldPath)
	}
}

// substituteDirRenames rewrites each pair's NewPath when its directory
// matches an inferred directory rename, so the rename processor's grouping
// sees the post-rename layout.
func substituteDirRenames(pairs []FilePair, dirMap map[string]*dirRenameEntry) []FilePair {
	if len(dirMap) == 0 {
		return pairs
	}
	out := make([]FilePair, len(pairs))
	for i, p := range pairs {
		dir, base := dirAndBase(p.NewPath)
		matched, entry, found := longestPrefixMatch(dir, dirMap)
		if !found || entry.nonUnique {
			out[i] = p
			continue
		}
		newDir := entry.newDir
		if rest := strings.TrimPrefix(dir, matched); rest != dir {
			newDir += rest
		}
		p.NewPath = joinPath(newDir, base)
		out[i] = p
	}
	return out
}

// pairWithSide tracks which side (1 or 2) a rename pair came from, used as
// the tie-breaking score in §4.2's sort key.
type pairWithSide struct {
	FilePair
	side int
}

// processRenamePairs implements §4.2's "Sorting and processing": combine
// pairs from both sides, sort by (OldPath, side), and resolve each
// same-OldPath group.
func (e *engine) processRenamePairs(pairs1, pairs2 []FilePair) error {
	var all []pairWithSide
	for _, p := range pairs1 {
		if p.Status == 'R' {
			all = append(all, pairWithSide{p, Side1})
		}
	}
	for _, p := range pairs2 {
		if p.Status == 'R' {
			all = append(all, pairWithSide{p, Side2})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].OldPath != all[j].OldPath {
			return all[i].OldPath < all[j].OldPath
		}
		return all[i].side < all[j].side
	})

	i := 0
	for i < len(all) {
		j := i + 1
		for j < len(all) && all[j].OldPath == all[i].OldPath {
			j++
		}
		group := all[i:j]
		if err := e.processRenameGroup(group); err != nil {
			return err
		}
		i = j
	}
	return nil
}

func (e *engine) processRenameGroup(group []pairWithSide) error {
	oldPath := group[0].OldPath
	oldEntry := e.table[oldPath]

	renamedSides := make(map[int]bool, len(group))
	for _, pr := range group {
		renamedSides[pr.side] = true
	}

	switch len(group) {
	case 2:
		if group[0].NewPath != group[1].NewPath {
			// rename/rename(1→2): both targets become path-conflicted.
			for _, pr := range group {
				e.markRenameTarget(pr.NewPath, oldEntry, pr.side, true)
			}
		} else {
			// rename/rename(1→1): merge both sides into one target.
			target := group[0].NewPath
			for _, pr := range group {
				e.markRenameTarget(target, oldEntry, pr.side, false)
			}
		}
	case 1:
		pr := group[0]
		otherSide := 3 - pr.side // 1<->2
		// A collision is the target path already existing independently
		// on the *other* side (§4.2), not merely having a table entry —
		// the renaming side's own content at the target is expected and
		// is not itself a collision.
		dst, exists := e.table[pr.NewPath]
		collision := exists && !dst.Stages[otherSide].IsNull()
		oldDeletedOnOther := oldEntry == nil || oldEntry.Stages[otherSide].IsNull()
		if collision && !oldDeletedOnOther {
			e.markRenameTarget(pr.NewPath, oldEntry, pr.side, true)
		} else {
			e.markRenameTarget(pr.NewPath, oldEntry, pr.side, false)
		}
	default:
		// More than two pairs sharing an old_path should not occur for a
		// two-sided merge; treat conservatively as independent relocations.
		for _, pr := range group {
			e.markRenameTarget(pr.NewPath, oldEntry, pr.side, true)
		}
	}

	if oldEntry != nil {
		oldEntry.Stages[SideBase] = VersionInfo{}
		oldEntry.Pathnames[SideBase] = ""
		oldEntry.FileMask &^= 1
		// A side that didn't itself rename oldPath away, but still had
		// content there, was copied into the rename target above as the
		// "otherSide" stage (markRenameTarget) — resolved-by-removal
		// requires clearing it here too, or it survives at oldPath as a
		// spurious duplicate clean add alongside the merged target.
		for side := Side1; side <= Side2; side++ {
			if renamedSides[side] || oldEntry.Stages[side].IsNull() {
				continue
			}
			oldEntry.Stages[side] = VersionInfo{}
			oldEntry.Pathnames[side] = ""
			oldEntry.FileMask &^= (1 << uint(side))
		}
		if oldEntry.FileMask == 0 && oldEntry.DirMask == 0 {
			delete(e.table, oldPath)
		}
	}
	return nil
}

// markRenameTarget moves base content and the renaming side's content into
// the target path, creating the entry if necessary.
func (e *engine) markRenameTarget(target string, oldEntry *ConflictInfo, side int, pathConflict bool) {
	dst, exists := e.table[target]
	if !exists {
		e.ensureParents(target)
		parentDir, _ := dirAndBase(target)
		dst = &ConflictInfo{MergedInfo: MergedInfo{DirectoryName: e.internDir(parentDir)}}
		e.table[target] = dst
	}
	if oldEntry != nil {
		if !oldEntry.Stages[SideBase].IsNull() {
			dst.Stages[SideBase] = oldEntry.Stages[SideBase]
			dst.Pathnames[SideBase] = target
			dst.FileMask |= 1
		}
		otherSide := 3 - side
		if !oldEntry.Stages[otherSide].IsNull() {
			dst.Stages[otherSide] = oldEntry.Stages[otherSide]
			dst.Pathnames[otherSide] = target
			dst.FileMask |= (1 << uint(otherSide))
		}
	}
	// The renaming side's content at target is normally already correct:
	// the collector found it there directly when it walked that side's
	// tree. Only fabricate a stand-in when target truly has no stage for
	// this side yet (a degenerate case with no ordinary collector entry).
	if dst.Stages[side].IsNull() {
		dst.Stages[side] = renamedContentVersion(oldEntry, side)
	}
	dst.Pathnames[side] = target
	dst.FileMask |= (1 << uint(side))
	dst.Clean = false
	if pathConflict {
		dst.PathConflict = true
	}
}

func renamedContentVersion(oldEntry *ConflictInfo, side int) VersionInfo {
	if oldEntry == nil {
		return VersionInfo{Mode: ModeFile}
	}
	v := oldEntry.Stages[side]
	if v.IsNull() {
		return VersionInfo{Mode: ModeFile}
	}
	return v
}
