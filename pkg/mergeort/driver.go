package mergeort

import (
	"context"
	"fmt"

	"github.com/foldvcs/fold/pkg/object"
)

// Collaborators bundles the object store and the three pluggable
// collaborators (renames, content, submodules) the engine needs beyond its
// options, so callers only carry one value through MergeTrees/MergeCommits.
type Collaborators struct {
	Store   ObjectStore
	Renames RenameDetector
	Content ContentMerger
	Submods SubmoduleMerger
}

// MergeTrees runs a single, non-recursive three-way tree merge (§2, §4) and
// returns the resulting tree plus any unmerged paths. It always runs at
// depth 0, with no extra conflict-marker width; the deeper folds used for
// multiple merge bases (§4.8, §9) are run by MergeCommits.
func MergeTrees(ctx context.Context, c Collaborators, opts Options, base, side1, side2 object.Hash) (*Result, error) {
	return mergeTreesAtDepth(ctx, c, opts, base, side1, side2, 0)
}

func mergeTreesAtDepth(ctx context.Context, c Collaborators, opts Options, base, side1, side2 object.Hash, depth int) (*Result, error) {
	e := newEngine(c.Store, c.Renames, c.Content, c.Submods, opts, depth)
	res, err := e.run(ctx, base, side1, side2)
	e.diag.sync()
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CommitReader is the narrow commit-graph view the recursive driver needs:
// reading a commit's tree and its parent set.
type CommitReader interface {
	ReadCommit(h object.Hash) (*object.CommitObj, error)
	WriteCommit(c *object.CommitObj) (object.Hash, error)
}

// MergeCommits is the recursive driver (§4.8). mergeBases lists every
// commit the merge-base computation found for commit1/commit2: zero means
// an unrelated-histories merge (an empty tree stands in for the ancestor),
// one is the ordinary case, and more than one triggers folding — the
// bases are merged into each other first, producing a single virtual
// ancestor tree, before the real three-way merge of commit1/commit2 runs
// against it. The n-th fold step runs at depth n, whose conflict markers
// carry depth*2 extra '<'/'='/'>' characters so nested conflict regions stay
// visually distinguishable; the final merge of commit1/commit2 runs at depth
// 0. Each fold step also materializes a real (if unreferenced) commit object
// wrapping the folded tree so the virtual ancestor can be inspected like
// any other commit.
func MergeCommits(ctx context.Context, reader CommitReader, c Collaborators, opts Options, commit1, commit2 object.Hash, mergeBases []object.Hash) (*Result, error) {
	switch len(mergeBases) {
	case 0:
		tree1, tree2, err := readTreePair(reader, commit1, commit2)
		if err != nil {
			return nil, err
		}
		return mergeTreesAtDepth(ctx, c, opts, NullOID, tree1, tree2, 0)

	case 1:
		baseTree, err := treeOf(reader, mergeBases[0])
		if err != nil {
			return nil, err
		}
		tree1, tree2, err := readTreePair(reader, commit1, commit2)
		if err != nil {
			return nil, err
		}
		return mergeTreesAtDepth(ctx, c, opts, baseTree, tree1, tree2, 0)

	default:
		virtualTree, _, err := foldMergeBases(ctx, reader, c, opts, mergeBases)
		if err != nil {
			return nil, err
		}
		tree1, tree2, err := readTreePair(reader, commit1, commit2)
		if err != nil {
			return nil, err
		}
		return mergeTreesAtDepth(ctx, c, opts, virtualTree, tree1, tree2, 0)
	}
}

// foldMergeBases pairwise-merges a commit-like base list down to a single
// virtual ancestor tree. Each fold step treats the first base in the running
// fold as both "ancestor" and one side of its own merge — the bases
// themselves have no further common ancestor available — matching the
// degenerate-virtual-ancestor approach used when recursive folding runs out
// of real history to consult (§4.8, §9).
func foldMergeBases(ctx context.Context, reader CommitReader, c Collaborators, opts Options, bases []object.Hash) (object.Hash, int, error) {
	runningTree, err := treeOf(reader, bases[0])
	if err != nil {
		return NullOID, 0, err
	}
	foldOpts := opts
	foldOpts.Branch1 = "Temporary merge branch 1"
	foldOpts.Branch2 = "Temporary merge branch 2"
	foldOpts.RecursiveVariant = VariantNormal
	runningCommit := bases[0]
	depth := 0
	for _, b := range bases[1:] {
		depth++
		otherTree, err := treeOf(reader, b)
		if err != nil {
			return NullOID, 0, err
		}
		res, err := mergeTreesAtDepth(ctx, c, foldOpts, runningTree, runningTree, otherTree, depth)
		if err != nil {
			return NullOID, 0, err
		}
		virtualCommit := &object.CommitObj{
			TreeHash: res.ResultTreeOID,
			Parents:  []object.Hash{runningCommit, b},
			Author:   "mergeort",
			Message:  fmt.Sprintf("virtual merge base (fold depth %d)", depth),
		}
		virtualHash, err := reader.WriteCommit(virtualCommit)
		if err != nil {
			return NullOID, 0, fatalf("write virtual merge base: %v", err)
		}
		runningCommit = virtualHash
		runningTree = res.ResultTreeOID
	}
	return runningTree, depth, nil
}

func treeOf(reader CommitReader, commit object.Hash) (object.Hash, error) {
	c, err := reader.ReadCommit(commit)
	if err != nil {
		return NullOID, fatalf("read commit %s: %v", commit, err)
	}
	return c.TreeHash, nil
}

func readTreePair(reader CommitReader, commit1, commit2 object.Hash) (object.Hash, object.Hash, error) {
	t1, err := treeOf(reader, commit1)
	if err != nil {
		return NullOID, NullOID, err
	}
	t2, err := treeOf(reader, commit2)
	if err != nil {
		return NullOID, NullOID, err
	}
	return t1, t2, nil
}
