// Package oceanbase provides an OceanBase implementation of the vector store.
//
// OceanBase ships a native VECTOR column type and a cosine_distance function,
// reached through the MySQL wire protocol. Each row carries two nullable
// vector columns, one per vector space, and search routes to the column named
// by the search options.
package oceanbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
)

// Client implements storage.VectorStore using OceanBase as the backend.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains OceanBase configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	// Table is the memories table name. Defaults to "memories".
	Table string

	// TextDims and ImageDims are the vector dimensions of the two spaces.
	TextDims  int
	ImageDims int
}

// NewClient creates a new OceanBase client and initializes the schema.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("oceanbase: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("oceanbase: %w: %w", storage.ErrUnavailable, err)
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
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			entity_id VARCHAR(255) NOT NULL,
			content LONGTEXT NOT NULL,
			embedding_text VECTOR(%d),
			embedding_image VECTOR(%d),
			space VARCHAR(32) NOT NULL,
			modality VARCHAR(32) NOT NULL,
			memory_type VARCHAR(64) NOT NULL DEFAULT 'note',
			source VARCHAR(255) NOT NULL DEFAULT '',
			confidence DOUBLE NOT NULL DEFAULT 1.0,
			reinforcement_count INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_reinforced_at DATETIME NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			deleted_at DATETIME,
			delete_reason TEXT,
			parent_id VARCHAR(64) NOT NULL DEFAULT '',
			chunk_index INT NOT NULL DEFAULT 0,
			total_chunks INT NOT NULL DEFAULT 0,
			attributes JSON,
			INDEX idx_entity_space (entity_id, space, is_active)
		)
	`, c.table, textDims, imageDims)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("oceanbase: init tables: %w", err)
	}
	return nil
}

func vectorColumn(space string) string {
	if space == "image" {
		return "embedding_image"
	}
	return "embedding_text"
}

// vectorToString converts a vector to OceanBase's text format "[v1,v2,...]".
func vectorToString(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Insert stores a new memory, writing the vector into the column of the
// memory's space.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	if memory.EntityID == "" {
		return storage.ErrMissingEntity
	}

	attributesJSON, err := json.Marshal(memory.Attributes)
	if err != nil {
		return fmt.Errorf("oceanbase: insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, entity_id, content, %s, space, modality, memory_type, source,
		 confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		 delete_reason, parent_id, chunk_index, total_chunks, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?)
	`, c.table, vectorColumn(memory.Space))

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.EntityID,
		memory.Content,
		vectorToString(memory.Embedding),
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
		return fmt.Errorf("oceanbase: insert: %w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// Search performs vector search using OceanBase's cosine_distance function.
// Similarity is 1 - distance.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	col := vectorColumn(opts.Space)
	whereClause, args := buildWhere(opts)
	allArgs := append([]interface{}{vectorToString(embedding)}, args...)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	allArgs = append(allArgs, limit)

	query := fmt.Sprintf(`
		SELECT id, entity_id, content, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes,
		       cosine_distance(%s, ?) AS distance
		FROM %s
		%s AND %s IS NOT NULL
		ORDER BY distance ASC
		LIMIT ?
	`, col, c.table, whereClause, col)

	rows, err := c.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("oceanbase: search: %w: %w", storage.ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows, true)
		if err != nil {
			return nil, fmt.Errorf("oceanbase: search: %w", err)
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
		return nil, fmt.Errorf("oceanbase: update: %w: %w", storage.ErrUnavailable, err)
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
		return fmt.Errorf("oceanbase: soft delete: %w: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// List returns an entity's memories in reverse creation order.
func (c *Client) List(ctx context.Context, opts *storage.ListOptions) ([]*storage.Memory, error) {
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	clauses := []string{"entity_id = ?"}
	args := []interface{}{opts.EntityID}
	if opts.Space != "" {
		clauses = append(clauses, "space = ?")
		args = append(args, opts.Space)
	}
	if !opts.IncludeInactive {
		clauses = append(clauses, "is_active = 1")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT id, entity_id, content, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes
		FROM %s
		WHERE %s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, c.table, strings.Join(clauses, " AND "))
	args = append(args, limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("oceanbase: list: %w: %w", storage.ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows, false)
		if err != nil {
			return nil, fmt.Errorf("oceanbase: list: %w", err)
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
		SELECT id, entity_id, content, space, modality, memory_type, source,
		       confidence, reinforcement_count, created_at, last_reinforced_at, is_active,
		       deleted_at, delete_reason, parent_id, chunk_index, total_chunks, attributes
		FROM %s
		WHERE id = ?
	`, c.table)

	memory, err := scanMemory(c.db.QueryRowContext(ctx, query, id), false)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("oceanbase: get: %w", err)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(s rowScanner, withDistance bool) (*storage.Memory, error) {
	var memory storage.Memory
	var attributesStr, deleteReason sql.NullString
	var deletedAt sql.NullTime
	var distance float64

	dest := []interface{}{
		&memory.ID,
		&memory.EntityID,
		&memory.Content,
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
		&deleteReason,
		&memory.ParentID,
		&memory.ChunkIndex,
		&memory.TotalChunks,
		&attributesStr,
	}
	if withDistance {
		dest = append(dest, &distance)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	if withDistance {
		memory.Score = 1 - distance
	}
	if deleteReason.Valid {
		memory.DeleteReason = deleteReason.String
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
