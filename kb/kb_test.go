package kb

import (
	"strings"
	"testing"
)

func TestFormatResults(t *testing.T) {
	results := []Result{
		{Score: 0.9123, Source: "netter_atlas.pdf", Text: "The supraspinatus initiates abduction."},
		{Score: 0.755, Text: "Eccentric loading improves tendon remodeling."},
	}

	got := FormatResults(results)

	if !strings.Contains(got, "[1] (score: 0.912, source: netter_atlas.pdf)\nThe supraspinatus initiates abduction.\n") {
		t.Fatalf("first block malformed:\n%s", got)
	}
	if !strings.Contains(got, "[2] (score: 0.755, source: unknown)\nEccentric loading improves tendon remodeling.\n") {
		t.Fatalf("second block should fall back to unknown source:\n%s", got)
	}
	if !strings.Contains(got, "\n\n[2]") {
		t.Fatalf("blocks should be separated by a blank line:\n%s", got)
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	if got := FormatResults(nil); got != "No relevant results found." {
		t.Fatalf("expected sentinel string, got %q", got)
	}
	if got := FormatResults([]Result{}); got != "No relevant results found." {
		t.Fatalf("expected sentinel string, got %q", got)
	}
}

func TestValidMuscleGroup(t *testing.T) {
	if len(MuscleGroups) != 17 {
		t.Fatalf("expected 17 muscle groups, got %d", len(MuscleGroups))
	}
	for _, g := range []string{"neck", "rotator_cuff", "hip_flexors", "shins"} {
		if !ValidMuscleGroup(g) {
			t.Fatalf("expected %q to be valid", g)
		}
	}
	for _, g := range []string{"Neck", "rotator cuff", "legs", ""} {
		if ValidMuscleGroup(g) {
			t.Fatalf("expected %q to be invalid", g)
		}
	}
}

func TestValidContentType(t *testing.T) {
	if len(ContentTypes) != 7 {
		t.Fatalf("expected 7 content types, got %d", len(ContentTypes))
	}
	if !ValidContentType(ContentRehabProtocol) {
		t.Fatal("rehab_protocol should be valid")
	}
	if ValidContentType("protocols") {
		t.Fatal("unknown type should be invalid")
	}
}

func TestEnsureDocumentID(t *testing.T) {
	doc := Document{Content: "x"}
	EnsureDocumentID(&doc)
	if doc.ID == "" {
		t.Fatal("expected generated ID")
	}

	fixed := Document{ID: "doc_fixed", Content: "x"}
	EnsureDocumentID(&fixed)
	if fixed.ID != "doc_fixed" {
		t.Fatalf("existing ID should be kept, got %q", fixed.ID)
	}
}

func TestNextChunkID(t *testing.T) {
	a := NextChunkID("docA")
	b := NextChunkID("docA")
	if a == b {
		t.Fatalf("chunk IDs should be unique, got %q twice", a)
	}
	if !strings.HasPrefix(a, "docA_chunk_") {
		t.Fatalf("chunk ID should embed document ID, got %q", a)
	}
}
