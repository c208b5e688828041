// Package postgres provides a PostgreSQL + pgvector implementation of the
// vector store.
//
// Each row carries two nullable vector columns, one per vector space, and
// similarity search routes to the column named by the search options. Cosine
// similarity is computed server-side with pgvector's <=> operator.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
)

// Client implements storage.VectorStore using PostgreSQL with pgvector.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Table is the memories table name. Defaults to "memories".
	Table string

	// TextDims and ImageDims are the vector dimensions of the two spaces.
	TextDims  int
	ImageDims int
}

// NewClient creates a new PostgreSQL client, enabling the pgvector extension
// and initializing the schema.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: %w: %w", storage.ErrUnavailable, err)
	}

	table := cfg.Table
	if table == "" {
		table = "memories"
	}

	client := &Client{db: db, table: table}
	if err := client.initTables(context.Background(), cfg.TextDims, cfg.ImageDims); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context, textDims, imageDims int) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("postgres: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			entity_id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			embedding_text vector(%d),
			embedding_image vector(%d),
			space VARCHAR(32) NOT NULL,
			modality VARCHAR(32) NOT NULL,
			memory_type VARCHAR(64) NOT NULL DEFAULT 'note',
			source VARCHAR(255) NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			reinforcement_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			last_reinforced_at TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			deleted_at TIMESTAMPTZ,
			delete_reason TEXT NOT NULL DEFAULT '',
			parent_id VARCHAR(64) NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL DEFAULT 0,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			attributes JSONB
		)
	`, c.table, textDims, imageDims)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_entity_space ON %s(entity_id, space, is_active)
	`, c.table, c.table)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("postgres: create index: %w", err)
	}
	return nil
}

// vectorColumn maps a space to its vector column.
func vectorColumn(space string) string {
	if space == "image" {
		return "embedding_image"
	}
	return "embedding_text"
}

func toVector(embedding []float64) pgvector.Vector {
	f32 := make([]float32, len(embedding))
	for i, v := range embedding {
		f32[i] = float32(v)
	}
	return pgvector.NewVector(f32)
}

func fromVector(vec pgvector.Vector) []float64 {
	f32 := vec.Slice()
	f64 := make([]float64, len(f32))
	for i, v := range f32 {
		f64[i] = float64(v)
	}
	return f64
}

// Insert stores a new memory, writing the vector into the column of the
// memory's space.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	if memory.EntityID == "" {
		return storage.ErrMissingEntity
	}

	attributesJSON, err := json.Marshal(memory.Attributes)
	if err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, entity_id, content, %s, space, modality, memory_type, source,
		 confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		 parent_id, chunk_index, total_chunks, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, c.table, vectorColumn(memory.Space))

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.EntityID,
		memory.Content,
		toVector(memory.Embedding),
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
		return fmt.Errorf("postgres: insert: %w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// Search performs vector similarity search using pgvector's cosine distance.
// The <=> operator returns cosine distance, so similarity is 1 - distance.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	col := vectorColumn(opts.Space)
	whereClause, args := buildWhere(opts, 2)
	args = append([]interface{}{toVector(embedding)}, args...)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, entity_id, content, %s, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes,
		       1 - (%s <=> $1) AS similarity
		FROM %s
		%s AND %s IS NOT NULL
		ORDER BY %s <=> $1
		LIMIT %d
	`, col, col, c.table, whereClause, col, col, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search: %w: %w", storage.ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows, true)
		if err != nil {
			return nil, fmt.Errorf("postgres: search: %w", err)
		}
		if memory.Score < opts.MinScore {
			continue
		}
		memories = append(memories, memory)
	}
	return memories, rows.Err()
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

	existing, err := c.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.EntityID != opts.EntityID {
		return nil, storage.ErrOwnership
	}

	var sets []string
	var args []interface{}
	argn := 1
	if upd.Confidence != nil {
		sets = append(sets, fmt.Sprintf("confidence = $%d", argn))
		args = append(args, *upd.Confidence)
		argn++
	}
	if upd.ReinforcementCount != nil {
		sets = append(sets, fmt.Sprintf("reinforcement_count = $%d", argn))
		args = append(args, *upd.ReinforcementCount)
		argn++
	}
	if upd.LastReinforcedAt != nil {
		sets = append(sets, fmt.Sprintf("last_reinforced_at = $%d", argn))
		args = append(args, *upd.LastReinforcedAt)
		argn++
	}
	if len(sets) == 0 {
		return existing, nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND entity_id = $%d",
		c.table, strings.Join(sets, ", "), argn, argn+1)
	args = append(args, id, opts.EntityID)

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: update: %w: %w", storage.ErrUnavailable, err)
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
		UPDATE %s SET is_active = FALSE, deleted_at = $1, delete_reason = $2
		WHERE id = $3 AND entity_id = $4
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query, time.Now().UTC(), reason, id, opts.EntityID); err != nil {
		return fmt.Errorf("postgres: soft delete: %w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// List returns an entity's memories in reverse creation order.
func (c *Client) List(ctx context.Context, opts *storage.ListOptions) ([]*storage.Memory, error) {
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	clauses := []string{"entity_id = $1"}
	args := []interface{}{opts.EntityID}
	argn := 2
	if opts.Space != "" {
		clauses = append(clauses, fmt.Sprintf("space = $%d", argn))
		args = append(args, opts.Space)
		argn++
	}
	if !opts.IncludeInactive {
		clauses = append(clauses, "is_active = TRUE")
	}

	limitClause := ""
	if opts.Limit > 0 {
		limitClause = fmt.Sprintf("LIMIT %d", opts.Limit)
	}

	query := fmt.Sprintf(`
		SELECT id, entity_id, content, NULL, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes
		FROM %s
		WHERE %s
		ORDER BY created_at DESC
		%s OFFSET %d
	`, c.table, strings.Join(clauses, " AND "), limitClause, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w: %w", storage.ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows, false)
		if err != nil {
			return nil, fmt.Errorf("postgres: list: %w", err)
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
		SELECT id, entity_id, content, NULL, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes
		FROM %s
		WHERE id = $1
	`, c.table)

	memory, err := scanMemory(c.db.QueryRowContext(ctx, query, id), false)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get: %w", err)
	}
	return memory, nil
}

func buildWhere(opts *storage.SearchOptions, startArg int) (string, []interface{}) {
	clauses := []string{fmt.Sprintf("entity_id = $%d", startArg)}
	args := []interface{}{opts.EntityID}
	argn := startArg + 1

	if opts.Space != "" {
		clauses = append(clauses, fmt.Sprintf("space = $%d", argn))
		args = append(args, opts.Space)
		argn++
	}
	if !opts.IncludeInactive {
		clauses = append(clauses, "is_active = TRUE")
	}
	if len(opts.Modalities) > 0 {
		ps := make([]string, len(opts.Modalities))
		for i, m := range opts.Modalities {
			ps[i] = fmt.Sprintf("$%d", argn)
			args = append(args, m)
			argn++
		}
		clauses = append(clauses, "modality IN ("+strings.Join(ps, ", ")+")")
	}
	if len(opts.MemoryTypes) > 0 {
		ps := make([]string, len(opts.MemoryTypes))
		for i, t := range opts.MemoryTypes {
			ps[i] = fmt.Sprintf("$%d", argn)
			args = append(args, t)
			argn++
		}
		clauses = append(clauses, "memory_type IN ("+strings.Join(ps, ", ")+")")
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(s rowScanner, withScore bool) (*storage.Memory, error) {
	var memory storage.Memory
	var vec pgvector.Vector
	var vecNull sql.Null[pgvector.Vector]
	var attributesStr sql.NullString
	var deletedAt sql.NullTime

	dest := []interface{}{
		&memory.ID,
		&memory.EntityID,
		&memory.Content,
		&vecNull,
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
	}
	if withScore {
		dest = append(dest, &memory.Score)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	if vecNull.Valid {
		vec = vecNull.V
		memory.Embedding = fromVector(vec)
	}
	if attributesStr.Valid && attributesStr.String != "" && attributesStr.String != "null" {
		if err := json.Unmarshal([]byte(attributesStr.String), &memory.Attributes); err != nil {
			return nil, fmt.Errorf("parse attributes: %w", err)
		}
	}
	if deletedAt.Valid {
		memory.DeletedAt = &deletedAt.Time
	}
	return &memory, nil
}
