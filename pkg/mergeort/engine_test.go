package mergeort

import (
	"context"
	"testing"

	"github.com/foldvcs/fold/pkg/object"
)

// nopRenames reports no renames regardless of input; most engine tests
// want to exercise the path-table/resolution logic without rename noise.
type nopRenames struct{}

func (nopRenames) Diff(ctx context.Context, store ObjectStore, base, side object.Hash, limit, score int, detect RenameMode) ([]FilePair, error) {
	return nil, nil
}

// echoContent always reports a conflict, handing back side1's bytes
// unchanged so tests can assert on dirty-vs-clean without depending on
// a real diff3 implementation living in this package.
type echoContent struct{}

func (echoContent) ThreeWay(ctx context.Context, path string, base, side1, side2 []byte, labels MergeLabels, variant Variant, markerSize int) (ContentMergeResult, error) {
	return ContentMergeResult{Data: side1, Clean: false}, nil
}

func newTestStore(t *testing.T) *object.Store {
	t.Helper()
	return object.NewStore(t.TempDir())
}

func writeBlob(t *testing.T, store *object.Store, content string) object.Hash {
	t.Helper()
	h, err := store.WriteBlob(&object.Blob{Data: []byte(content)})
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	return h
}

func writeTreeOf(t *testing.T, store *object.Store, entries ...object.TreeEntry) object.Hash {
	t.Helper()
	h, err := store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		t.Fatalf("write tree: %v", err)
	}
	return h
}

func fileEntry(name string, h object.Hash) object.TreeEntry {
	return object.TreeEntry{Name: name, IsDir: false, Mode: object.TreeModeFile, BlobHash: h}
}

func collabs(store *object.Store) Collaborators {
	return Collaborators{
		Store:   store,
		Renames: nopRenames{},
		Content: echoContent{},
		Submods: OpaqueSubmoduleMerger{},
	}
}

func readFileAt(t *testing.T, store *object.Store, tree object.Hash, name string) ([]byte, bool) {
	t.Helper()
	tr, err := store.ReadTree(tree)
	if err != nil {
		t.Fatalf("read tree: %v", err)
	}
	for _, e := range tr.Entries {
		if e.Name == name {
			b, err := store.ReadBlob(e.BlobHash)
			if err != nil {
				t.Fatalf("read blob: %v", err)
			}
			return b.Data, true
		}
	}
	return nil, false
}

func TestMergeTrees_NonOverlappingAddsClean(t *testing.T) {
	store := newTestStore(t)

	baseHash := writeBlob(t, store, "base\n")
	baseTree := writeTreeOf(t, store, fileEntry("a.txt", baseHash))

	side1Blob := writeBlob(t, store, "base\nours\n")
	side1Tree := writeTreeOf(t, store, fileEntry("a.txt", side1Blob), fileEntry("b.txt", writeBlob(t, store, "new on side1\n")))

	side2Tree := writeTreeOf(t, store, fileEntry("a.txt", baseHash), fileEntry("c.txt", writeBlob(t, store, "new on side2\n")))

	opts := DefaultOptions()
	res, err := MergeTrees(context.Background(), collabs(store), opts, baseTree, side1Tree, side2Tree)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, got unmerged: %+v", res.UnmergedEntries)
	}

	if data, ok := readFileAt(t, store, res.ResultTreeOID, "a.txt"); !ok || string(data) != "base\nours\n" {
		t.Errorf("a.txt = %q, %v, want one-sided-change to win", data, ok)
	}
	if _, ok := readFileAt(t, store, res.ResultTreeOID, "b.txt"); !ok {
		t.Error("expected b.txt (side1 add) in result")
	}
	if _, ok := readFileAt(t, store, res.ResultTreeOID, "c.txt"); !ok {
		t.Error("expected c.txt (side2 add) in result")
	}
}

func TestMergeTrees_BothSidesModifyConflicts(t *testing.T) {
	store := newTestStore(t)

	baseHash := writeBlob(t, store, "base\n")
	baseTree := writeTreeOf(t, store, fileEntry("a.txt", baseHash))

	side1Tree := writeTreeOf(t, store, fileEntry("a.txt", writeBlob(t, store, "ours\n")))
	side2Tree := writeTreeOf(t, store, fileEntry("a.txt", writeBlob(t, store, "theirs\n")))

	opts := DefaultOptions()
	res, err := MergeTrees(context.Background(), collabs(store), opts, baseTree, side1Tree, side2Tree)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	if res.Clean {
		t.Fatal("expected a conflict, got clean merge")
	}
	if len(res.UnmergedEntries) != 1 || res.UnmergedEntries[0].Path != "a.txt" {
		t.Fatalf("unexpected unmerged entries: %+v", res.UnmergedEntries)
	}
	if res.UnmergedEntries[0].FileMask != 7 {
		t.Errorf("FileMask = %d, want 7 (present on all three sides)", res.UnmergedEntries[0].FileMask)
	}
}

func TestMergeTrees_ModifyDeleteKeepsModifiedSide(t *testing.T) {
	store := newTestStore(t)

	baseHash := writeBlob(t, store, "base\n")
	baseTree := writeTreeOf(t, store, fileEntry("a.txt", baseHash))

	side1Tree := writeTreeOf(t, store, fileEntry("a.txt", writeBlob(t, store, "modified\n")))
	side2Tree := writeTreeOf(t, store) // a.txt deleted

	opts := DefaultOptions()
	res, err := MergeTrees(context.Background(), collabs(store), opts, baseTree, side1Tree, side2Tree)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	if res.Clean {
		t.Fatal("expected modify/delete conflict, got clean merge")
	}
	data, ok := readFileAt(t, store, res.ResultTreeOID, "a.txt")
	if !ok {
		t.Fatal("expected a.txt's modified content to survive in the result tree")
	}
	if string(data) != "modified\n" {
		t.Errorf("a.txt = %q, want the surviving modified content verbatim (no conflict markers)", data)
	}
}

func TestMergeTrees_BothSidesDeleteIsClean(t *testing.T) {
	store := newTestStore(t)

	baseHash := writeBlob(t, store, "base\n")
	baseTree := writeTreeOf(t, store, fileEntry("a.txt", baseHash), fileEntry("keep.txt", writeBlob(t, store, "keep\n")))

	side1Tree := writeTreeOf(t, store, fileEntry("keep.txt", writeBlob(t, store, "keep\n")))
	side2Tree := writeTreeOf(t, store, fileEntry("keep.txt", writeBlob(t, store, "keep\n")))

	opts := DefaultOptions()
	res, err := MergeTrees(context.Background(), collabs(store), opts, baseTree, side1Tree, side2Tree)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, got unmerged: %+v", res.UnmergedEntries)
	}
	if _, ok := readFileAt(t, store, res.ResultTreeOID, "a.txt"); ok {
		t.Error("a.txt should be gone: both sides deleted it")
	}
	if _, ok := readFileAt(t, store, res.ResultTreeOID, "keep.txt"); !ok {
		t.Error("keep.txt should survive untouched")
	}
}

func TestMergeTrees_DirectoryVanishesWhenAllChildrenDeleted(t *testing.T) {
	store := newTestStore(t)

	subBase := writeTreeOf(t, store, fileEntry("x.txt", writeBlob(t, store, "x\n")))
	baseTree := writeTreeOf(t, store, object.TreeEntry{Name: "sub", IsDir: true, Mode: object.TreeModeDir, SubtreeHash: subBase})

	// Both sides delete sub/x.txt, so the whole "sub" directory should
	// vanish from the result rather than surviving as an empty tree.
	side1Tree := writeTreeOf(t, store)
	side2Tree := writeTreeOf(t, store)

	opts := DefaultOptions()
	res, err := MergeTrees(context.Background(), collabs(store), opts, baseTree, side1Tree, side2Tree)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, got unmerged: %+v", res.UnmergedEntries)
	}
	tr, err := store.ReadTree(res.ResultTreeOID)
	if err != nil {
		t.Fatalf("read result tree: %v", err)
	}
	if len(tr.Entries) != 0 {
		t.Errorf("expected empty root tree, got %+v", tr.Entries)
	}
}

func TestMergeCommits_NoMergeBaseUsesEmptyAncestor(t *testing.T) {
	store := newTestStore(t)

	tree1 := writeTreeOf(t, store, fileEntry("a.txt", writeBlob(t, store, "from one\n")))
	tree2 := writeTreeOf(t, store, fileEntry("b.txt", writeBlob(t, store, "from two\n")))

	commit1, err := store.WriteCommit(&object.CommitObj{TreeHash: tree1, Message: "c1"})
	if err != nil {
		t.Fatalf("write commit1: %v", err)
	}
	commit2, err := store.WriteCommit(&object.CommitObj{TreeHash: tree2, Message: "c2"})
	if err != nil {
		t.Fatalf("write commit2: %v", err)
	}

	opts := DefaultOptions()
	res, err := MergeCommits(context.Background(), store, collabs(store), opts, commit1, commit2, nil)
	if err != nil {
		t.Fatalf("MergeCommits: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge of unrelated histories, got: %+v", res.UnmergedEntries)
	}
	if _, ok := readFileAt(t, store, res.ResultTreeOID, "a.txt"); !ok {
		t.Error("expected a.txt from commit1")
	}
	if _, ok := readFileAt(t, store, res.ResultTreeOID, "b.txt"); !ok {
		t.Error("expected b.txt from commit2")
	}
}
