// Package sqlite provides a SQLite implementation of the vector store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and small deployments. Vectors are stored as JSON strings in TEXT fields and
// similarity search uses in-memory cosine similarity over the entity's rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
)

// Client implements storage.VectorStore using SQLite as the backend.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// Table is the name of the table storing memories. Defaults to
	// "memories" when empty.
	Table string
}

// NewClient creates a new SQLite store client and initializes the schema.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: %w: %w", storage.ErrUnavailable, err)
	}

	table := cfg.Table
	if table == "" {
		table = "memories"
	}

	client := &Client{db: db, table: table}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			entity_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			space TEXT NOT NULL,
			modality TEXT NOT NULL,
			memory_type TEXT NOT NULL DEFAULT 'note',
			source TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 1.0,
			reinforcement_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_reinforced_at DATETIME NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			deleted_at DATETIME,
			delete_reason TEXT NOT NULL DEFAULT '',
			parent_id TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL DEFAULT 0,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			attributes TEXT
		)
	`, c.table)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: init tables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_entity_space ON %s(entity_id, space, is_active)
	`, c.table, c.table)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("sqlite: init tables: %w", err)
	}
	return nil
}

// Insert stores a new memory. Vectors are stored as JSON strings.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	if memory.EntityID == "" {
		return storage.ErrMissingEntity
	}

	embeddingJSON, err := json.Marshal(memory.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}
	attributesJSON, err := json.Marshal(memory.Attributes)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, entity_id, content, embedding, space, modality, memory_type, source,
		 confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		 parent_id, chunk_index, total_chunks, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.table)

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.EntityID,
		memory.Content,
		string(embeddingJSON),
		memory.Space,
		memory.Modality,
		memory.MemoryType,
		memory.Source,
		memory.Confidence,
		memory.ReinforcementCount,
		memory.CreatedAt,
		memory.LastReinforcedAt,
		memory.IsActive,
		memory.ParentID,
		memory.ChunkIndex,
		memory.TotalChunks,
		string(attributesJSON),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert: %w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// Search performs vector similarity search.
//
// SQLite has no native vector operations, so the entity's rows are loaded and
// cosine similarity is computed in memory. Metadata filters are pushed into
// the SQL WHERE clause; the entity filter is always applied.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	whereClause, args := buildWhere(opts)
	query := fmt.Sprintf(`
		SELECT id, entity_id, content, embedding, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes
		FROM %s
		%s
		ORDER BY id
	`, c.table, whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search: %w: %w", storage.ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: search: %w", err)
		}

		score := cosineSimilarity(embedding, memory.Embedding)
		if score < opts.MinScore {
			continue
		}
		memory.Score = score
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: search: %w", err)
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].Score > memories[j].Score
	})
	if opts.Limit > 0 && len(memories) > opts.Limit {
		memories = memories[:opts.Limit]
	}
	return memories, nil
}

// Get retrieves a memory by ID, checking ownership when requested.
func (c *Client) Get(ctx context.Context, id int64, opts *storage.GetOptions) (*storage.Memory, error) {
	memory, err := c.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.EntityID != "" && memory.EntityID != opts.EntityID {
		return nil, storage.ErrOwnership
	}
	return memory, nil
}

// Update applies a lifecycle update after verifying ownership.
func (c *Client) Update(ctx context.Context, id int64, upd *storage.MemoryUpdate, opts *storage.UpdateOptions) (*storage.Memory, error) {
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	// Ownership is verified with a read first so that a mismatch can be
	// reported as such rather than folded into "0 rows affected".
	existing, err := c.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.EntityID != opts.EntityID {
		return nil, storage.ErrOwnership
	}

	var sets []string
	var args []interface{}
	if upd.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, *upd.Confidence)
	}
	if upd.ReinforcementCount != nil {
		sets = append(sets, "reinforcement_count = ?")
		args = append(args, *upd.ReinforcementCount)
	}
	if upd.LastReinforcedAt != nil {
		sets = append(sets, "last_reinforced_at = ?")
		args = append(args, *upd.LastReinforcedAt)
	}
	if len(sets) == 0 {
		return existing, nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND entity_id = ?",
		c.table, strings.Join(sets, ", "))
	args = append(args, id, opts.EntityID)

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: update: %w: %w", storage.ErrUnavailable, err)
	}
	return c.getByID(ctx, id)
}

// SoftDelete marks a memory inactive, recording time and reason.
func (c *Client) SoftDelete(ctx context.Context, id int64, reason string, opts *storage.DeleteOptions) error {
	if opts == nil || opts.EntityID == "" {
		return storage.ErrMissingEntity
	}

	existing, err := c.getByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.EntityID != opts.EntityID {
		return storage.ErrOwnership
	}

	query := fmt.Sprintf(`
		UPDATE %s SET is_active = 0, deleted_at = ?, delete_reason = ?
		WHERE id = ? AND entity_id = ?
	`, c.table)

	if _, err := c.db.ExecContext(ctx, query, time.Now().UTC(), reason, id, opts.EntityID); err != nil {
		return fmt.Errorf("sqlite: soft delete: %w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// List returns an entity's memories in reverse creation order.
func (c *Client) List(ctx context.Context, opts *storage.ListOptions) ([]*storage.Memory, error) {
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	whereClause := "WHERE entity_id = ?"
	args := []interface{}{opts.EntityID}
	if opts.Space != "" {
		whereClause += " AND space = ?"
		args = append(args, opts.Space)
	}
	if !opts.IncludeInactive {
		whereClause += " AND is_active = 1"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := fmt.Sprintf(`
		SELECT id, entity_id, content, embedding, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes
		FROM %s
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, c.table, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w: %w", storage.ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list: %w", err)
		}
		memories = append(memories, memory)
	}
	return memories, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Client) getByID(ctx context.Context, id int64) (*storage.Memory, error) {
	query := fmt.Sprintf(`
		SELECT id, entity_id, content, embedding, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes
		FROM %s
		WHERE id = ?
	`, c.table)

	memory, err := scanMemory(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get: %w", err)
	}
	return memory, nil
}

func buildWhere(opts *storage.SearchOptions) (string, []interface{}) {
	clauses := []string{"entity_id = ?"}
	args := []interface{}{opts.EntityID}

	if opts.Space != "" {
		clauses = append(clauses, "space = ?")
		args = append(args, opts.Space)
	}
	if !opts.IncludeInactive {
		clauses = append(clauses, "is_active = 1")
	}
	if len(opts.Modalities) > 0 {
		clauses = append(clauses, "modality IN ("+placeholders(len(opts.Modalities))+")")
		for _, m := range opts.Modalities {
			args = append(args, m)
		}
	}
	if len(opts.MemoryTypes) > 0 {
		clauses = append(clauses, "memory_type IN ("+placeholders(len(opts.MemoryTypes))+")")
		for _, t := range opts.MemoryTypes {
			args = append(args, t)
		}
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(s rowScanner) (*storage.Memory, error) {
	var memory storage.Memory
	var embeddingStr, attributesStr string
	var deletedAt sql.NullTime

	err := s.Scan(
		&memory.ID,
		&memory.EntityID,
		&memory.Content,
		&embeddingStr,
		&memory.Space,
		&memory.Modality,
		&memory.MemoryType,
		&memory.Source,
		&memory.Confidence,
		&memory.ReinforcementCount,
		&memory.CreatedAt,
		&memory.LastReinforcedAt,
		&memory.IsActive,
		&deletedAt,
		&memory.DeleteReason,
		&memory.ParentID,
		&memory.ChunkIndex,
		&memory.TotalChunks,
		&attributesStr,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(embeddingStr), &memory.Embedding); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	if attributesStr != "" && attributesStr != "null" {
		if err := json.Unmarshal([]byte(attributesStr), &memory.Attributes); err != nil {
			return nil, fmt.Errorf("parse attributes: %w", err)
		}
	}
	if deletedAt.Valid {
		memory.DeletedAt = &deletedAt.Time
	}
	return &memory, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
