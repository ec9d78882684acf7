package mmr

import (
	"context"
	"testing"

	"github.com/sweetpotato0/physio-agent/kb"
)

func TestMMRRanksWithoutDuplicates(t *testing.T) {
	r := New()
	query := []float32{1, 0}
	candidates := []kb.Candidate{
		{Result: kb.Result{ID: "c1", Score: 0.9}, Vector: []float32{1, 0}},
		{Result: kb.Result{ID: "c2", Score: 0.85}, Vector: []float32{0.9, 0.1}},
		{Result: kb.Result{ID: "c3", Score: 0.4}, Vector: []float32{0, 1}},
	}
	results, err := r.Rank(context.Background(), query, candidates)
	if err != nil {
		t.Fatalf("rank error: %v", err)
	}
	if len(results) != len(candidates) {
		t.Fatalf("expected %d results, got %d", len(candidates), len(results))
	}
	if results[2].ID != "c3" {
		t.Fatalf("expected diverse chunk last, got %s", results[2].ID)
	}
}

func TestMMRLimitCapsResults(t *testing.T) {
	r := New()
	r.Limit = 1
	candidates := []kb.Candidate{
		{Result: kb.Result{ID: "c1"}, Vector: []float32{1, 0}},
		{Result: kb.Result{ID: "c2"}, Vector: []float32{0, 1}},
	}
	results, err := r.Rank(context.Background(), []float32{1, 0}, candidates)
	if err != nil {
		t.Fatalf("rank error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "c1" {
		t.Fatalf("expected most similar first, got %s", results[0].ID)
	}
}

func TestMMREmptyCandidates(t *testing.T) {
	results, err := New().Rank(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("rank error: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}
