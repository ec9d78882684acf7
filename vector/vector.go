package vector

import (
	"context"
	"math"
)

// Embedding represents a vector embedding
type Embedding struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// Match pairs an embedding with its similarity score for a query.
type Match struct {
	Embedding *Embedding
	Score     float32
}

// Filter restricts a search to embeddings whose metadata matches. For each
// field the embedding must carry at least one of the wanted values (any-of);
// distinct fields must all match. A nil Filter matches everything.
type Filter map[string][]string

// Match reports whether the given metadata satisfies the filter.
func (f Filter) Match(meta map[string]any) bool {
	if len(f) == 0 {
		return true
	}
	for field, wanted := range f {
		if !matchField(meta[field], wanted) {
			return false
		}
	}
	return true
}

func matchField(value any, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	switch v := value.(type) {
	case string:
		for _, w := range wanted {
			if v == w {
				return true
			}
		}
	case []string:
		for _, item := range v {
			for _, w := range wanted {
				if item == w {
					return true
				}
			}
		}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			for _, w := range wanted {
				if s == w {
					return true
				}
			}
		}
	}
	return false
}

// Store defines the interface for vector storage and similarity search
type Store interface {
	// Add upserts embeddings into the store
	Add(ctx context.Context, embeddings ...*Embedding) error

	// Search finds the topK embeddings most similar to the query vector,
	// considering only embeddings that match the filter
	Search(ctx context.Context, query []float32, topK int, filter Filter) ([]Match, error)

	// Get retrieves a specific embedding by ID
	Get(ctx context.Context, id string) (*Embedding, error)

	// Delete removes an embedding by ID
	Delete(ctx context.Context, id string) error

	// Count returns the number of embeddings
	Count(ctx context.Context) (int, error)

	// Clear removes all embeddings
	Clear(ctx context.Context) error
}

// Embedder defines the interface for creating embeddings from text
type Embedder interface {
	// Embed converts text to a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to embeddings
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension return number of embedding dimensions
	Dimension() int
}

// CosineSimilarity calculates the cosine similarity between two vectors
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// EuclideanDistance calculates the Euclidean distance between two vectors
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var sum float64
	for i := 0; i < len(a); i++ {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return float32(math.Sqrt(sum))
}

// Normalize scales the vector to unit length (L2 norm).
func Normalize(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
