package kb

import (
	"context"
	"sort"

	"github.com/sweetpotato0/physio-agent/vector"
)

// Candidate pairs a retrieval hit with its stored vector for reranking.
type Candidate struct {
	Result Result
	Vector []float32
}

// Reranker reorders retrieval candidates, optionally refining similarity.
type Reranker interface {
	Rank(ctx context.Context, queryVector []float32, candidates []Candidate) ([]Result, error)
}

// CosineReranker sorts candidates by cosine similarity with the query vector.
type CosineReranker struct{}

// NewCosineReranker creates a reranker based on cosine similarity.
func NewCosineReranker() *CosineReranker {
	return &CosineReranker{}
}

// Rank implements the Reranker interface.
func (c *CosineReranker) Rank(ctx context.Context, queryVector []float32, candidates []Candidate) ([]Result, error) {
	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		out := cand.Result
		if len(cand.Vector) > 0 && len(queryVector) == len(cand.Vector) {
			out.Score = vector.CosineSimilarity(queryVector, cand.Vector)
		}
		results = append(results, out)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}

type queryContextKey struct{}

// ContextWithQuery stores the raw query string so rerankers that rely on text (not just vectors)
// can retrieve it without changing the Rank signature.
func ContextWithQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, queryContextKey{}, query)
}

// QueryFromContext extracts the query string previously stored with ContextWithQuery.
func QueryFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(queryContextKey{})
	if val == nil {
		return "", false
	}
	query, ok := val.(string)
	return query, ok
}
