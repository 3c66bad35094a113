package content

import (
	"bytes"
	"context"
	"testing"

	"github.com/foldvcs/fold/pkg/mergeort"
)

func labels() mergeort.MergeLabels {
	return mergeort.MergeLabels{Ancestor: "base", Side1: "ours", Side2: "theirs"}
}

func TestLineMerger_CleanNonOverlappingChange(t *testing.T) {
	base := []byte("one\ntwo\nthree\n")
	side1 := []byte("one-changed\ntwo\nthree\n")
	side2 := []byte("one\ntwo\nthree-changed\n")

	res, err := (LineMerger{}).ThreeWay(context.Background(), "a.txt", base, side1, side2, labels(), mergeort.VariantNormal, 7)
	if err != nil {
		t.Fatalf("ThreeWay: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected a clean merge, got conflict:\n%s", res.Data)
	}
	if !bytes.Contains(res.Data, []byte("one-changed")) || !bytes.Contains(res.Data, []byte("three-changed")) {
		t.Errorf("expected both one-sided changes in merged output, got:\n%s", res.Data)
	}
}

func TestLineMerger_OverlappingChangeConflicts(t *testing.T) {
	base := []byte("line\n")
	side1 := []byte("ours\n")
	side2 := []byte("theirs\n")

	res, err := (LineMerger{}).ThreeWay(context.Background(), "a.txt", base, side1, side2, labels(), mergeort.VariantNormal, 7)
	if err != nil {
		t.Fatalf("ThreeWay: %v", err)
	}
	if res.Clean {
		t.Fatalf("expected a conflict, got clean merge:\n%s", res.Data)
	}
	if !bytes.Contains(res.Data, []byte("ours")) || !bytes.Contains(res.Data, []byte("theirs")) {
		t.Errorf("expected both sides' content to appear in the conflict markers, got:\n%s", res.Data)
	}
}

func TestLineMerger_VariantOursAlwaysClean(t *testing.T) {
	base := []byte("line\n")
	side1 := []byte("ours\n")
	side2 := []byte("theirs\n")

	res, err := (LineMerger{}).ThreeWay(context.Background(), "a.txt", base, side1, side2, labels(), mergeort.VariantOurs, 7)
	if err != nil {
		t.Fatalf("ThreeWay: %v", err)
	}
	if !res.Clean || string(res.Data) != "ours\n" {
		t.Errorf("variant=ours should clean-pick side1 verbatim, got clean=%v data=%q", res.Clean, res.Data)
	}
}

func TestLineMerger_VariantTheirsAlwaysClean(t *testing.T) {
	base := []byte("line\n")
	side1 := []byte("ours\n")
	side2 := []byte("theirs\n")

	res, err := (LineMerger{}).ThreeWay(context.Background(), "a.txt", base, side1, side2, labels(), mergeort.VariantTheirs, 7)
	if err != nil {
		t.Fatalf("ThreeWay: %v", err)
	}
	if !res.Clean || string(res.Data) != "theirs\n" {
		t.Errorf("variant=theirs should clean-pick side2 verbatim, got clean=%v data=%q", res.Clean, res.Data)
	}
}

func TestStructuralMerger_FallsBackToLineMergeForPlainText(t *testing.T) {
	// notes.txt carries no recognizable declaration entities, so MergeFiles
	// falls back to its text path; the two changes don't overlap and
	// should merge cleanly either way.
	base := []byte("alpha\nbeta\ngamma\n")
	side1 := []byte("alpha-changed\nbeta\ngamma\n")
	side2 := []byte("alpha\nbeta\ngamma-changed\n")

	res, err := (StructuralMerger{}).ThreeWay(context.Background(), "notes.txt", base, side1, side2, labels(), mergeort.VariantNormal, 7)
	if err != nil {
		t.Fatalf("ThreeWay: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected a clean merge, got conflict:\n%s", res.Data)
	}
	if !bytes.Contains(res.Data, []byte("alpha-changed")) || !bytes.Contains(res.Data, []byte("gamma-changed")) {
		t.Errorf("expected both one-sided changes in merged output, got:\n%s", res.Data)
	}
}

func TestStructuralMerger_VariantBypassesEntityExtraction(t *testing.T) {
	base := []byte("line\n")
	side1 := []byte("ours\n")
	side2 := []byte("theirs\n")

	res, err := (StructuralMerger{}).ThreeWay(context.Background(), "main.go", base, side1, side2, labels(), mergeort.VariantOurs, 7)
	if err != nil {
		t.Fatalf("ThreeWay: %v", err)
	}
	if !res.Clean || string(res.Data) != "ours\n" {
		t.Errorf("variant!=normal should route through the diff3 fallback, got clean=%v data=%q", res.Clean, res.Data)
	}
}
