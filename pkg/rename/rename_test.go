package rename

import (
	"context"
	"testing"

	"github.com/foldvcs/fold/pkg/mergeort"
	"github.com/foldvcs/fold/pkg/object"
)

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

func TestDetector_Diff_OffReturnsNothing(t *testing.T) {
	store := newTestStore(t)
	d := New()
	pairs, err := d.Diff(context.Background(), store, mergeort.NullOID, mergeort.NullOID, 1000, 50, mergeort.RenameOff)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if pairs != nil {
		t.Errorf("expected nil pairs when renames are off, got %+v", pairs)
	}
}

func TestDetector_Diff_DetectsExactRename(t *testing.T) {
	store := newTestStore(t)

	content := "package main\n\nfunc main() {}\n"
	blob := writeBlob(t, store, content)

	base := writeTreeOf(t, store, fileEntry("old.go", blob))
	side := writeTreeOf(t, store, fileEntry("new.go", blob))

	d := New()
	pairs, err := d.Diff(context.Background(), store, base, side, 1000, 50, mergeort.RenameOn)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected exactly one pair, got %+v", pairs)
	}
	p := pairs[0]
	if p.Status != 'R' || p.OldPath != "old.go" || p.NewPath != "new.go" {
		t.Errorf("unexpected pair: %+v", p)
	}
	if p.Score != 100 {
		t.Errorf("expected byte-identical rename to score 100, got %d", p.Score)
	}
}

func TestDetector_Diff_DetectsSimilarRename(t *testing.T) {
	store := newTestStore(t)

	oldBlob := writeBlob(t, store, "line1\nline2\nline3\nline4\n")
	newBlob := writeBlob(t, store, "line1\nline2\nline3\nline4-changed\n")

	base := writeTreeOf(t, store, fileEntry("a.txt", oldBlob))
	side := writeTreeOf(t, store, fileEntry("b.txt", newBlob))

	d := New()
	pairs, err := d.Diff(context.Background(), store, base, side, 1000, 50, mergeort.RenameOn)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Status != 'R' {
		t.Fatalf("expected a scored rename pair, got %+v", pairs)
	}
	if pairs[0].Score < 50 {
		t.Errorf("expected score >= rename_score threshold, got %d", pairs[0].Score)
	}
}

func TestDetector_Diff_DissimilarFilesReportAddNotRename(t *testing.T) {
	store := newTestStore(t)

	oldBlob := writeBlob(t, store, "completely different content here\n")
	newBlob := writeBlob(t, store, "totally unrelated text over there\n")

	base := writeTreeOf(t, store, fileEntry("a.txt", oldBlob))
	side := writeTreeOf(t, store, fileEntry("b.txt", newBlob))

	d := New()
	pairs, err := d.Diff(context.Background(), store, base, side, 1000, 90, mergeort.RenameOn)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Status != 'A' || pairs[0].NewPath != "b.txt" {
		t.Fatalf("expected a plain add (no rename match above threshold), got %+v", pairs)
	}
}

func TestDetector_Diff_RenameLimitFallsBackToAdds(t *testing.T) {
	store := newTestStore(t)

	oldBlob := writeBlob(t, store, "old content\n")
	newBlob := writeBlob(t, store, "new content\n")

	base := writeTreeOf(t, store, fileEntry("old.txt", oldBlob))
	side := writeTreeOf(t, store, fileEntry("new.txt", newBlob))

	d := New()
	// limit=0 makes the len(deleted)*len(added) > limit*limit check always
	// trip, forcing the plain-add fallback that skips similarity scoring.
	pairs, err := d.Diff(context.Background(), store, base, side, 0, 50, mergeort.RenameOn)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Status != 'A' || pairs[0].NewPath != "new.txt" {
		t.Fatalf("expected fallback plain-add pairs, got %+v", pairs)
	}
}
