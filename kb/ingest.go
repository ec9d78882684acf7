package kb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sweetpotato0/physio-agent/pkg/logging"
	"github.com/sweetpotato0/physio-agent/vector"
)

// Ingestor runs the indexing pipeline: clean, chunk, annotate, embed, store.
// Chunks the annotator marks merge_next are concatenated with the following
// chunk and re-analyzed; chunks marked skip are discarded.
type Ingestor struct {
	store     vector.Store
	embedder  vector.Embedder
	chunker   Chunker
	annotator *Annotator
	batchSize int
	logger    *slog.Logger
}

// IngestorOption customizes the ingestor.
type IngestorOption func(*Ingestor)

// WithBatchSize sets how many embeddings are upserted per store call.
func WithBatchSize(n int) IngestorOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.batchSize = n
		}
	}
}

// NewIngestor creates an ingestor. The annotator may be nil; without one
// every chunk is embedded with empty clinical metadata.
func NewIngestor(store vector.Store, emb vector.Embedder, chunker Chunker, annotator *Annotator, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		store:     store,
		embedder:  emb,
		chunker:   chunker,
		annotator: annotator,
		batchSize: 100,
		logger:    logging.WithComponent("kb.ingest"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(in)
		}
	}
	return in
}

// IngestDocument indexes one document and returns the number of chunks stored.
func (in *Ingestor) IngestDocument(ctx context.Context, doc Document) (int, error) {
	if in.store == nil || in.embedder == nil || in.chunker == nil {
		return 0, fmt.Errorf("ingestor not fully configured")
	}

	EnsureDocumentID(&doc)
	doc.Content = Preprocess(doc.Content)
	if doc.Content == "" {
		return 0, nil
	}

	chunks, err := in.chunker.Chunk(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("chunk document %s: %w", doc.ID, err)
	}

	annotated, err := in.annotateChunks(ctx, doc, chunks)
	if err != nil {
		return 0, err
	}
	if len(annotated) == 0 {
		return 0, nil
	}

	if err := in.storeChunks(ctx, doc, annotated); err != nil {
		return 0, err
	}

	in.logger.Info("document ingested",
		"document_id", doc.ID,
		"source", doc.Source,
		"chunks", len(annotated))
	return len(annotated), nil
}

// IngestHTML extracts readable text from HTML and indexes it.
func (in *Ingestor) IngestHTML(ctx context.Context, title, source, html string) (int, error) {
	text, err := HTMLToText(html)
	if err != nil {
		return 0, fmt.Errorf("parse html: %w", err)
	}
	return in.IngestDocument(ctx, Document{
		Title:   title,
		Source:  source,
		Content: text,
	})
}

type annotatedChunk struct {
	chunk Chunk
	ann   Annotation
}

// annotateChunks walks the chunk sequence applying embed/merge_next/skip
// decisions. A merge consumes exactly one following chunk; a chunk marked
// merge_next at the end of the document is embedded as-is. Annotation
// failures degrade to embedding with empty metadata.
func (in *Ingestor) annotateChunks(ctx context.Context, doc Document, chunks []Chunk) ([]annotatedChunk, error) {
	out := make([]annotatedChunk, 0, len(chunks))
	i := 0
	for i < len(chunks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk := chunks[i]
		if strings.TrimSpace(chunk.Content) == "" {
			i++
			continue
		}

		ann := in.annotate(ctx, chunk.Content)
		if ann.Decision == DecisionMergeNext && i+1 < len(chunks) {
			chunk.Content = chunk.Content + "\n\n" + chunks[i+1].Content
			i++
			ann = in.annotate(ctx, chunk.Content)
		}
		if ann.Decision == DecisionSkip {
			i++
			continue
		}

		out = append(out, annotatedChunk{chunk: chunk, ann: ann})
		i++
	}
	return out, nil
}

// annotate returns the model's analysis, or an embed-everything fallback
// when the annotator is missing or fails.
func (in *Ingestor) annotate(ctx context.Context, text string) Annotation {
	fallback := Annotation{
		Decision:    DecisionEmbed,
		ContentType: ContentTrainingPrinciples,
	}
	if in.annotator == nil {
		return fallback
	}
	ann, err := in.annotator.Annotate(ctx, text)
	if err != nil {
		in.logger.Warn("chunk annotation failed, embedding with empty metadata", "error", err)
		return fallback
	}
	return *ann
}

func (in *Ingestor) storeChunks(ctx context.Context, doc Document, annotated []annotatedChunk) error {
	texts := make([]string, 0, len(annotated))
	for _, ac := range annotated {
		texts = append(texts, DocumentPrefix+ac.chunk.Content)
	}
	vectors, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(annotated) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(annotated))
	}

	source := doc.Source
	if source == "" {
		source = doc.ID
	}
	embeddings := make([]*vector.Embedding, 0, len(annotated))
	for idx, ac := range annotated {
		embeddings = append(embeddings, &vector.Embedding{
			ID:     uuid.NewString(),
			Vector: vectors[idx],
			Text:   ac.chunk.Content,
			Metadata: map[string]any{
				"document_id":   ac.chunk.DocumentID,
				"source":        source,
				"muscle_groups": emptyIfNil(ac.ann.MuscleGroups),
				"conditions":    emptyIfNil(ac.ann.Conditions),
				"exercises":     emptyIfNil(ac.ann.Exercises),
				"content_type":  ac.ann.ContentType,
				"summary":       ac.ann.Summary,
			},
		})
	}

	for start := 0; start < len(embeddings); start += in.batchSize {
		end := start + in.batchSize
		if end > len(embeddings) {
			end = len(embeddings)
		}
		if err := in.store.Add(ctx, embeddings[start:end]...); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}
	}
	return nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
