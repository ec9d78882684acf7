package kb

import (
	"context"
	"strings"
)

// Chunker splits documents into chunks that can be annotated and indexed.
type Chunker interface {
	Chunk(ctx context.Context, doc Document) ([]Chunk, error)
}

// ChunkerOptions controls the simple chunker.
type ChunkerOptions struct {
	ChunkSize   int
	Overlap     int
	Separator   string
	IncludeMeta bool
}

// ChunkerOption customizes the simple chunker.
type ChunkerOption func(*ChunkerOptions)

// WithChunkSize overrides the default chunk size (characters).
func WithChunkSize(size int) ChunkerOption {
	return func(o *ChunkerOptions) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithOverlap configures overlap (characters) between consecutive chunks.
func WithOverlap(overlap int) ChunkerOption {
	return func(o *ChunkerOptions) {
		if overlap >= 0 {
			o.Overlap = overlap
		}
	}
}

// WithSeparator sets the logical separator used before windowing.
func WithSeparator(sep string) ChunkerOption {
	return func(o *ChunkerOptions) {
		if sep != "" {
			o.Separator = sep
		}
	}
}

// WithMetadataCopy toggles whether document metadata is copied to chunks.
func WithMetadataCopy(enabled bool) ChunkerOption {
	return func(o *ChunkerOptions) {
		o.IncludeMeta = enabled
	}
}

// SimpleChunker splits documents by separator and enforces max character lengths.
type SimpleChunker struct {
	size    int
	overlap int
	sep     string
	addMeta bool
}

// NewSimpleChunker constructs a chunker with defaults tuned for clinical
// reference text: segments large enough to hold a complete protocol step.
func NewSimpleChunker(opts ...ChunkerOption) *SimpleChunker {
	cfg := &ChunkerOptions{
		ChunkSize:   1200,
		Overlap:     150,
		Separator:   "\n\n",
		IncludeMeta: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &SimpleChunker{
		size:    cfg.ChunkSize,
		overlap: cfg.Overlap,
		sep:     cfg.Separator,
		addMeta: cfg.IncludeMeta,
	}
}

// Chunk splits the document into bounded pieces.
func (c *SimpleChunker) Chunk(ctx context.Context, doc Document) ([]Chunk, error) {
	EnsureDocumentID(&doc)

	parts := strings.Split(doc.Content, c.sep)
	chunks := make([]Chunk, 0, len(parts))
	currentOrdinal := 0

	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		for len(part) > c.size {
			currentOrdinal++
			window := part[:c.size]
			part = part[c.size-c.overlap:]
			chunks = append(chunks, c.newChunk(doc, currentOrdinal, window))
		}
		currentOrdinal++
		chunks = append(chunks, c.newChunk(doc, currentOrdinal, part))
	}

	if len(chunks) == 0 {
		currentOrdinal++
		chunks = append(chunks, c.newChunk(doc, currentOrdinal, doc.Content))
	}

	return chunks, nil
}

func (c *SimpleChunker) newChunk(doc Document, ordinal int, content string) Chunk {
	chunk := Chunk{
		ID:         NextChunkID(doc.ID),
		DocumentID: doc.ID,
		Content:    strings.TrimSpace(content),
		Ordinal:    ordinal,
	}
	if c.addMeta && doc.Metadata != nil {
		chunk.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			chunk.Metadata[k] = v
		}
	}
	return chunk
}
