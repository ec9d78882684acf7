package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/sweetpotato0/physio-agent/errors"
	"github.com/sweetpotato0/physio-agent/vector"
)

// Store implements vector.Store using PostgreSQL with the pgvector extension.
// Chunk metadata is kept in a JSONB column so searches can be restricted by
// muscle group, condition, exercise or content type.
type Store struct {
	db        *sql.DB
	dimension int
	tableName string
}

// Config holds pgvector configuration
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // Embedding dimension (default: 1536 for OpenAI)
	TableName string // Table name (default: kb_chunks)
}

// DefaultConfig returns default pgvector configuration
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		Password:  "postgres",
		DBName:    "physio_agent",
		SSLMode:   "disable",
		Dimension: 1536,
		TableName: "kb_chunks",
	}
}

// New creates a new pgvector-based vector store
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Build DSN
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &Store{
		db:        db,
		dimension: config.Dimension,
		tableName: config.TableName,
	}

	// Enable pgvector extension and create table
	if err := store.setup(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to setup pgvector: %w", err)
	}

	return store, nil
}

// setup initializes pgvector and creates necessary tables/indexes
func (s *Store) setup(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	// Create table
	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id VARCHAR(255) PRIMARY KEY,
		text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.tableName, s.dimension)

	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	metaIndexSQL := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_metadata_idx ON %s USING GIN (metadata)",
		s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, metaIndexSQL); err != nil {
		return fmt.Errorf("failed to create metadata index: %w", err)
	}

	return nil
}

// Add upserts embeddings into the store
func (s *Store) Add(ctx context.Context, embeddings ...*vector.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, text, embedding, metadata)
	VALUES ($1, $2, $3::vector, $4::jsonb)
	ON CONFLICT (id) DO UPDATE SET
		text = EXCLUDED.text,
		embedding = EXCLUDED.embedding,
		metadata = EXCLUDED.metadata,
		created_at = CURRENT_TIMESTAMP
	`, s.tableName)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, embedding := range embeddings {
		if embedding == nil {
			return fmt.Errorf("%w: embedding cannot be nil", errors.ErrInvalidInput)
		}
		if embedding.ID == "" {
			return fmt.Errorf("%w: embedding ID cannot be empty", errors.ErrInvalidInput)
		}
		if len(embedding.Vector) != s.dimension {
			return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dimension, len(embedding.Vector))
		}

		meta := embedding.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", embedding.ID, err)
		}

		vectorStr := s.vectorToString(embedding.Vector)
		if _, err := tx.ExecContext(ctx, query, embedding.ID, embedding.Text, vectorStr, metaJSON); err != nil {
			return fmt.Errorf("failed to add embedding %s: %w", embedding.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return nil
}

// Search finds embeddings similar to the query vector, restricted to rows
// whose metadata matches the filter. Scores are cosine similarities.
func (s *Store) Search(ctx context.Context, query []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", errors.ErrInvalidInput)
	}

	if len(query) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.dimension, len(query))
	}

	if topK <= 0 {
		topK = 10
	}

	vectorStr := s.vectorToString(query)
	args := []any{vectorStr, topK}

	// The ?| operator matches when the JSONB value (string or string array)
	// contains any of the wanted values, which is exactly the filter contract.
	var where string
	if len(filter) > 0 {
		fields := make([]string, 0, len(filter))
		for field := range filter {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		clauses := make([]string, 0, len(fields))
		for _, field := range fields {
			args = append(args, pq.Array(filter[field]))
			clauses = append(clauses, fmt.Sprintf("metadata->'%s' ?| $%d", strings.ReplaceAll(field, "'", ""), len(args)))
		}
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	searchSQL := fmt.Sprintf(`
	SELECT id, text, embedding, metadata, 1 - (embedding <=> $1::vector) AS score
	FROM %s
	%s
	ORDER BY embedding <=> $1::vector
	LIMIT $2
	`, s.tableName, where)

	rows, err := s.db.QueryContext(ctx, searchSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	matches := make([]vector.Match, 0, topK)
	for rows.Next() {
		var id, text, vecStr string
		var metaJSON []byte
		var score float64

		if err := rows.Scan(&id, &text, &vecStr, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}

		vec, err := s.stringToVector(vecStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector for embedding %s: %w", id, err)
		}

		var meta map[string]any
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &meta); err != nil {
				return nil, fmt.Errorf("failed to parse metadata for embedding %s: %w", id, err)
			}
		}

		matches = append(matches, vector.Match{
			Embedding: &vector.Embedding{
				ID:       id,
				Text:     text,
				Vector:   vec,
				Metadata: meta,
			},
			Score: float32(score),
		})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}

	return matches, nil
}

// Get retrieves a specific embedding by ID
func (s *Store) Get(ctx context.Context, id string) (*vector.Embedding, error) {
	query := fmt.Sprintf(`
	SELECT id, text, embedding, metadata
	FROM %s
	WHERE id = $1
	`, s.tableName)

	var embID, text, vecStr string
	var metaJSON []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&embID, &text, &vecStr, &metaJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	vec, err := s.stringToVector(vecStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vector: %w", err)
	}

	var meta map[string]any
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}

	return &vector.Embedding{
		ID:       embID,
		Text:     text,
		Vector:   vec,
		Metadata: meta,
	}, nil
}

// Delete removes an embedding by ID
func (s *Store) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("embedding %s: %w", id, errors.ErrNotFound)
	}

	return nil
}

// Clear removes all embeddings
func (s *Store) Clear(ctx context.Context) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s", s.tableName)
	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	return nil
}

// Count returns the number of embeddings
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)
	err := s.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Helper functions

func (s *Store) vectorToString(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (s *Store) stringToVector(str string) ([]float32, error) {
	// Simple parsing: remove brackets and convert
	str = strings.TrimPrefix(str, "[")
	str = strings.TrimSuffix(str, "]")
	parts := strings.Split(str, ",")

	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		var v float32
		n, err := fmt.Sscanf(strings.TrimSpace(part), "%f", &v)
		if err != nil || n != 1 {
			return nil, fmt.Errorf("failed to parse vector component at index %d: %q", i, part)
		}
		vec = append(vec, v)
	}
	return vec, nil
}
