package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweetpotato0/physio-agent/vector"
)

// Embedding prefixes for asymmetric retrieval models. Documents and queries
// are embedded with different task prefixes; mixing them degrades recall.
const (
	QueryPrefix    = "search_query: "
	DocumentPrefix = "search_document: "
)

// RetrieverConfig controls retrieval behaviour.
type RetrieverConfig struct {
	SearchTopK int
	RerankTopK int
}

// RetrieverOption customizes retriever config.
type RetrieverOption func(*RetrieverConfig)

// WithSearchTopK sets the default number of neighbors fetched per search.
func WithSearchTopK(k int) RetrieverOption {
	return func(cfg *RetrieverConfig) {
		if k > 0 {
			cfg.SearchTopK = k
		}
	}
}

// WithRerankTopK sets how many results survive reranking.
func WithRerankTopK(k int) RetrieverOption {
	return func(cfg *RetrieverConfig) {
		if k > 0 {
			cfg.RerankTopK = k
		}
	}
}

// Retriever performs semantic search over the knowledge base with optional
// metadata filters and reranking.
type Retriever struct {
	store    vector.Store
	embedder vector.Embedder
	reranker Reranker
	cfg      RetrieverConfig
}

// NewRetriever creates a retriever. The reranker may be nil, in which case
// store ordering is returned as-is.
func NewRetriever(store vector.Store, emb vector.Embedder, rer Reranker, opts ...RetrieverOption) *Retriever {
	cfg := RetrieverConfig{
		SearchTopK: 5,
		RerankTopK: 5,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Retriever{
		store:    store,
		embedder: emb,
		reranker: rer,
		cfg:      cfg,
	}
}

// Search embeds the query and returns the closest chunks, restricted to
// those matching the filter. topK <= 0 falls back to the configured default.
func (r *Retriever) Search(ctx context.Context, query string, topK int, filter vector.Filter) ([]Result, error) {
	if r.store == nil || r.embedder == nil {
		return nil, fmt.Errorf("retriever not fully configured")
	}
	if topK <= 0 {
		topK = r.cfg.SearchTopK
	}

	queryVec, err := r.embedder.Embed(ctx, QueryPrefix+query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.store.Search(ctx, queryVec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if r.reranker == nil || len(matches) == 0 {
		return matchesToResults(matches), nil
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, Candidate{
			Result: matchToResult(m),
			Vector: m.Embedding.Vector,
		})
	}
	reranked, err := r.reranker.Rank(ContextWithQuery(ctx, query), queryVec, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if r.cfg.RerankTopK > 0 && len(reranked) > r.cfg.RerankTopK {
		reranked = reranked[:r.cfg.RerankTopK]
	}
	return reranked, nil
}

// SearchMuscleGroup finds chunks tagged with the given muscle group. The
// query is templated to bias retrieval toward therapeutic content.
func (r *Retriever) SearchMuscleGroup(ctx context.Context, group string, topK int) ([]Result, error) {
	return r.Search(ctx, group+" physical therapy", topK, vector.Filter{
		"muscle_groups": {group},
	})
}

// SearchCondition finds chunks tagged with a clinical condition or diagnosis.
func (r *Retriever) SearchCondition(ctx context.Context, condition string, topK int) ([]Result, error) {
	return r.Search(ctx, condition+" rehabilitation", topK, vector.Filter{
		"conditions": {strings.ToLower(condition)},
	})
}

// SearchContentType searches within one content category.
func (r *Retriever) SearchContentType(ctx context.Context, contentType, query string, topK int) ([]Result, error) {
	return r.Search(ctx, query, topK, vector.Filter{
		"content_type": {contentType},
	})
}

// SearchExercise finds chunks that mention a specific exercise.
func (r *Retriever) SearchExercise(ctx context.Context, exercise string, topK int) ([]Result, error) {
	return r.Search(ctx, exercise+" technique", topK, vector.Filter{
		"exercises": {strings.ToLower(exercise)},
	})
}

// Count returns the number of chunks indexed.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	return r.store.Count(ctx)
}

func matchesToResults(matches []vector.Match) []Result {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, matchToResult(m))
	}
	return results
}

func matchToResult(m vector.Match) Result {
	meta := m.Embedding.Metadata
	return Result{
		ID:           m.Embedding.ID,
		Score:        m.Score,
		Text:         m.Embedding.Text,
		Source:       metaString(meta, "source"),
		MuscleGroups: metaStrings(meta, "muscle_groups"),
		Conditions:   metaStrings(meta, "conditions"),
		Exercises:    metaStrings(meta, "exercises"),
		ContentType:  metaString(meta, "content_type"),
		Summary:      metaString(meta, "summary"),
	}
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

func metaStrings(meta map[string]any, key string) []string {
	if meta == nil {
		return nil
	}
	switch v := meta[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
