// Package inmemory provides a process-local VectorStore implementation.
//
// It keeps all memories in a map and computes cosine similarity on the fly.
// Intended for tests, examples, and single-process deployments that do not
// need persistence; the SQL-backed stores share the same semantics.
package inmemory

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
)

// Client implements storage.VectorStore backed by process memory.
type Client struct {
	mu       sync.RWMutex
	memories map[int64]*storage.Memory
}

// NewClient creates an empty in-memory store.
func NewClient() *Client {
	return &Client{memories: make(map[int64]*storage.Memory)}
}

// Insert stores a new memory.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if memory.EntityID == "" {
		return storage.ErrMissingEntity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cp := cloneMemory(memory)
	c.memories[cp.ID] = cp
	return nil
}

// Search performs cosine similarity search scoped to one entity and space.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []*storage.Memory
	for _, m := range c.memories {
		if !matches(m, opts) {
			continue
		}
		score := cosineSimilarity(embedding, m.Embedding)
		if score < opts.MinScore {
			continue
		}
		cp := cloneMemory(m)
		cp.Score = score
		results = append(results, cp)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Get retrieves a memory by ID with an optional ownership check.
func (c *Client) Get(ctx context.Context, id int64, opts *storage.GetOptions) (*storage.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if opts != nil && opts.EntityID != "" && m.EntityID != opts.EntityID {
		return nil, storage.ErrOwnership
	}
	return cloneMemory(m), nil
}

// Update applies a lifecycle update after verifying ownership.
func (c *Client) Update(ctx context.Context, id int64, upd *storage.MemoryUpdate, opts *storage.UpdateOptions) (*storage.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if m.EntityID != opts.EntityID {
		return nil, storage.ErrOwnership
	}

	if upd.Confidence != nil {
		m.Confidence = *upd.Confidence
	}
	if upd.ReinforcementCount != nil {
		m.ReinforcementCount = *upd.ReinforcementCount
	}
	if upd.LastReinforcedAt != nil {
		m.LastReinforcedAt = *upd.LastReinforcedAt
	}
	return cloneMemory(m), nil
}

// SoftDelete marks a memory inactive, retaining it for audit.
func (c *Client) SoftDelete(ctx context.Context, id int64, reason string, opts *storage.DeleteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts == nil || opts.EntityID == "" {
		return storage.ErrMissingEntity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.memories[id]
	if !ok {
		return storage.ErrNotFound
	}
	if m.EntityID != opts.EntityID {
		return storage.ErrOwnership
	}

	now := time.Now().UTC()
	m.IsActive = false
	m.DeletedAt = &now
	m.DeleteReason = reason
	return nil
}

// List returns an entity's memories in reverse creation order.
func (c *Client) List(ctx context.Context, opts *storage.ListOptions) ([]*storage.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts == nil || opts.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []*storage.Memory
	for _, m := range c.memories {
		if m.EntityID != opts.EntityID {
			continue
		}
		if opts.Space != "" && m.Space != opts.Space {
			continue
		}
		if !opts.IncludeInactive && !m.IsActive {
			continue
		}
		results = append(results, cloneMemory(m))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return nil, nil
		}
		results = results[opts.Offset:]
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Close releases resources. No-op for the in-memory store.
func (c *Client) Close() error {
	return nil
}

func matches(m *storage.Memory, opts *storage.SearchOptions) bool {
	if m.EntityID != opts.EntityID {
		return false
	}
	if opts.Space != "" && m.Space != opts.Space {
		return false
	}
	if !opts.IncludeInactive && !m.IsActive {
		return false
	}
	if len(opts.Modalities) > 0 && !slices.Contains(opts.Modalities, m.Modality) {
		return false
	}
	if len(opts.MemoryTypes) > 0 && !slices.Contains(opts.MemoryTypes, m.MemoryType) {
		return false
	}
	return true
}

func cloneMemory(m *storage.Memory) *storage.Memory {
	cp := *m
	cp.Embedding = slices.Clone(m.Embedding)
	if m.Attributes != nil {
		cp.Attributes = make(map[string]string, len(m.Attributes))
		for k, v := range m.Attributes {
			cp.Attributes[k] = v
		}
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
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
