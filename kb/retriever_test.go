package kb

import (
	"context"
	"testing"

	"github.com/sweetpotato0/physio-agent/vector"
)

type fakeEmbedder struct {
	lastText  string
	batchSeen []string
	vec       []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.lastText = text
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchSeen = append([]string(nil), texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

type fakeStore struct {
	added      []*vector.Embedding
	lastTopK   int
	lastFilter vector.Filter
	matches    []vector.Match
}

func (f *fakeStore) Add(ctx context.Context, embeddings ...*vector.Embedding) error {
	f.added = append(f.added, embeddings...)
	return nil
}

func (f *fakeStore) Search(ctx context.Context, query []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	f.lastTopK = topK
	f.lastFilter = filter
	return f.matches, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*vector.Embedding, error) { return nil, nil }
func (f *fakeStore) Delete(ctx context.Context, id string) error                   { return nil }
func (f *fakeStore) Count(ctx context.Context) (int, error)                        { return len(f.added), nil }
func (f *fakeStore) Clear(ctx context.Context) error                               { return nil }

func TestSearchAppliesQueryPrefix(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	store := &fakeStore{}
	r := NewRetriever(store, emb, nil)

	if _, err := r.Search(context.Background(), "acl tear recovery timeline", 3, nil); err != nil {
		t.Fatalf("search error: %v", err)
	}
	if emb.lastText != "search_query: acl tear recovery timeline" {
		t.Fatalf("query not prefixed: %q", emb.lastText)
	}
	if store.lastTopK != 3 {
		t.Fatalf("topK = %d", store.lastTopK)
	}
}

func TestSearchDefaultTopK(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1}}
	store := &fakeStore{}
	r := NewRetriever(store, emb, nil, WithSearchTopK(7))

	if _, err := r.Search(context.Background(), "q", 0, nil); err != nil {
		t.Fatalf("search error: %v", err)
	}
	if store.lastTopK != 7 {
		t.Fatalf("expected configured default 7, got %d", store.lastTopK)
	}
}

func TestSearchMuscleGroup(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1}}
	store := &fakeStore{}
	r := NewRetriever(store, emb, nil)

	if _, err := r.SearchMuscleGroup(context.Background(), "rotator_cuff", 5); err != nil {
		t.Fatalf("search error: %v", err)
	}
	if emb.lastText != "search_query: rotator_cuff physical therapy" {
		t.Fatalf("unexpected query: %q", emb.lastText)
	}
	want := vector.Filter{"muscle_groups": {"rotator_cuff"}}
	if len(store.lastFilter) != 1 || store.lastFilter["muscle_groups"][0] != want["muscle_groups"][0] {
		t.Fatalf("unexpected filter: %#v", store.lastFilter)
	}
}

func TestSearchConditionLowercasesFilter(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1}}
	store := &fakeStore{}
	r := NewRetriever(store, emb, nil)

	if _, err := r.SearchCondition(context.Background(), "ACL Tear", 5); err != nil {
		t.Fatalf("search error: %v", err)
	}
	if emb.lastText != "search_query: ACL Tear rehabilitation" {
		t.Fatalf("unexpected query: %q", emb.lastText)
	}
	if store.lastFilter["conditions"][0] != "acl tear" {
		t.Fatalf("filter value should be lowercased: %#v", store.lastFilter)
	}
}

func TestSearchExerciseLowercasesFilter(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1}}
	store := &fakeStore{}
	r := NewRetriever(store, emb, nil)

	if _, err := r.SearchExercise(context.Background(), "Bench Press", 5); err != nil {
		t.Fatalf("search error: %v", err)
	}
	if emb.lastText != "search_query: Bench Press technique" {
		t.Fatalf("unexpected query: %q", emb.lastText)
	}
	if store.lastFilter["exercises"][0] != "bench press" {
		t.Fatalf("filter value should be lowercased: %#v", store.lastFilter)
	}
}

func TestSearchContentType(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1}}
	store := &fakeStore{}
	r := NewRetriever(store, emb, nil)

	if _, err := r.SearchContentType(context.Background(), ContentRehabProtocol, "post-op knee", 5); err != nil {
		t.Fatalf("search error: %v", err)
	}
	if emb.lastText != "search_query: post-op knee" {
		t.Fatalf("content type search should use the raw query: %q", emb.lastText)
	}
	if store.lastFilter["content_type"][0] != "rehab_protocol" {
		t.Fatalf("unexpected filter: %#v", store.lastFilter)
	}
}

func TestSearchMapsMetadata(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1}}
	store := &fakeStore{
		matches: []vector.Match{
			{
				Embedding: &vector.Embedding{
					ID:   "c1",
					Text: "Eccentric nordic curls for hamstring strains.",
					Metadata: map[string]any{
						"source":        "sports_med.pdf",
						"muscle_groups": []any{"hamstrings"},
						"conditions":    []string{"hamstring strain"},
						"exercises":     []any{"nordic curl"},
						"content_type":  "exercise_technique",
						"summary":       "Nordic curl protocol.",
					},
				},
				Score: 0.88,
			},
		},
	}
	r := NewRetriever(store, emb, nil)

	results, err := r.Search(context.Background(), "hamstring", 5, nil)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.ID != "c1" || got.Score != 0.88 || got.Source != "sports_med.pdf" {
		t.Fatalf("header fields wrong: %+v", got)
	}
	if len(got.MuscleGroups) != 1 || got.MuscleGroups[0] != "hamstrings" {
		t.Fatalf("muscle groups wrong: %+v", got.MuscleGroups)
	}
	if len(got.Conditions) != 1 || got.Conditions[0] != "hamstring strain" {
		t.Fatalf("conditions wrong: %+v", got.Conditions)
	}
	if got.ContentType != "exercise_technique" || got.Summary != "Nordic curl protocol." {
		t.Fatalf("type/summary wrong: %+v", got)
	}
}

func TestSearchRerank(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	store := &fakeStore{
		matches: []vector.Match{
			{Embedding: &vector.Embedding{ID: "far", Vector: []float32{0, 1}}, Score: 0.9},
			{Embedding: &vector.Embedding{ID: "near", Vector: []float32{1, 0}}, Score: 0.1},
		},
	}
	r := NewRetriever(store, emb, NewCosineReranker())

	results, err := r.Search(context.Background(), "q", 5, nil)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(results) != 2 || results[0].ID != "near" {
		t.Fatalf("reranker should promote the closer vector: %+v", results)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("scores not recomputed: %+v", results)
	}
}
