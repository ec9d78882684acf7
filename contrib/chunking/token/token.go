// Package token chunks documents on token windows rather than character
// counts, so chunk sizes line up with embedding model limits.
package token

import (
	"context"

	"github.com/sweetpotato0/physio-agent/kb"
)

// Tokenizer encodes text to token ids and decodes id windows back to text.
// The tiktoken adapter in contrib/tokenizer satisfies this.
type Tokenizer interface {
	Encode(text string) []int
	DecodeIds(ids []int) string
}

// Chunker enforces token windows with configurable overlap.
type Chunker struct {
	tok           Tokenizer
	maxTokens     int
	overlapTokens int
}

// Option customises the token chunker.
type Option func(*Chunker)

// WithMaxTokens sets the maximum allowed tokens per chunk (default 256).
func WithMaxTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens > 0 {
			c.maxTokens = tokens
		}
	}
}

// WithOverlapTokens sets how many tokens are shared between consecutive chunks.
func WithOverlapTokens(tokens int) Option {
	return func(c *Chunker) {
		if tokens >= 0 {
			c.overlapTokens = tokens
		}
	}
}

// New creates a token-aware chunker backed by the given tokenizer.
func New(tok Tokenizer, opts ...Option) *Chunker {
	ch := &Chunker{
		tok:           tok,
		maxTokens:     256,
		overlapTokens: 32,
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.overlapTokens >= ch.maxTokens {
		ch.overlapTokens = ch.maxTokens / 2
	}
	return ch
}

// Chunk implements kb.Chunker.
func (c *Chunker) Chunk(ctx context.Context, doc kb.Document) ([]kb.Chunk, error) {
	kb.EnsureDocumentID(&doc)

	ids := c.tok.Encode(doc.Content)
	if len(ids) <= c.maxTokens {
		return []kb.Chunk{
			{
				ID:         kb.NextChunkID(doc.ID),
				DocumentID: doc.ID,
				Content:    doc.Content,
				Ordinal:    1,
			},
		}, nil
	}

	var chunks []kb.Chunk
	start := 0
	for start < len(ids) {
		end := start + c.maxTokens
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, kb.Chunk{
			ID:         kb.NextChunkID(doc.ID),
			DocumentID: doc.ID,
			Content:    c.tok.DecodeIds(ids[start:end]),
			Ordinal:    len(chunks) + 1,
		})
		if end == len(ids) {
			break
		}
		start = end - c.overlapTokens
	}

	return chunks, nil
}
