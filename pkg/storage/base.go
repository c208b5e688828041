// Package storage provides interfaces and types for vector storage backends.
//
// It defines the VectorStore interface that all storage implementations must
// satisfy, along with the stored memory record and operation options. Every
// operation is scoped by entity: the entity filter is mandatory for search and
// list, and mutations verify ownership before touching a row.
package storage

import (
	"context"
	"errors"
	"time"
)

// Predefined errors shared by all storage implementations.
var (
	// ErrNotFound indicates that a requested memory does not exist.
	ErrNotFound = errors.New("memory not found")

	// ErrOwnership indicates that a memory exists but belongs to a different
	// entity than the one named in the operation options. The operation is
	// rejected without any partial write.
	ErrOwnership = errors.New("memory belongs to a different entity")

	// ErrMissingEntity indicates that an operation requiring an entity scope
	// was invoked without one. This is a programming error, not a runtime
	// condition, and callers should fail fast.
	ErrMissingEntity = errors.New("entity id is required")

	// ErrUnavailable indicates that the backend could not be reached or the
	// operation failed transiently. Callers should surface this rather than
	// degrade to empty results.
	ErrUnavailable = errors.New("store unavailable")
)

// Memory is a stored memory record.
//
// The schema is fixed; forward-compatible optional attributes go into the
// Attributes extension map rather than loose payload fields.
type Memory struct {
	// ID is the unique identifier of the memory.
	ID int64

	// EntityID identifies the entity (e.g., a patient) that owns this memory.
	// Every operation on a memory is scoped by this field.
	EntityID string

	// Content is the text payload, verbatim or derived.
	Content string

	// Embedding is the vector embedding for similarity search.
	Embedding []float64

	// Space names the vector space the embedding lives in ("text" or
	// "image"). Implementations with native vector columns use it to route
	// to the right column or table.
	Space string

	// Modality is the input modality: text, document, image, or audio.
	Modality string

	// MemoryType is a free-form classification tag (clinical, medication,
	// note, ...) used only for filtering.
	MemoryType string

	// Source records where the memory came from (session, doctor, import).
	Source string

	// Confidence is the stored base confidence in [0.1, 1.0].
	Confidence float64

	// ReinforcementCount is the number of reinforcement events applied.
	ReinforcementCount int

	// CreatedAt is when the memory was first stored.
	CreatedAt time.Time

	// LastReinforcedAt starts equal to CreatedAt and is refreshed on each
	// reinforcement. Decay ages are computed from this timestamp.
	LastReinforcedAt time.Time

	// IsActive is false for soft-deleted memories. Inactive rows are
	// excluded from search but retained for audit.
	IsActive bool

	// DeletedAt and DeleteReason record the soft-delete event, if any.
	DeletedAt    *time.Time
	DeleteReason string

	// ParentID and ChunkIndex link a chunk back to its ingestion event.
	// Traceability only; never used in scoring.
	ParentID    string
	ChunkIndex  int
	TotalChunks int

	// Attributes is the extension map for optional metadata.
	Attributes map[string]string

	// Score is the similarity score attached by search operations.
	Score float64
}

// MemoryUpdate names the mutable lifecycle fields of a memory. Nil fields are
// left untouched. Content and embedding are immutable after insert; a
// reinforcement event only moves confidence, the counter, and the timestamp.
type MemoryUpdate struct {
	Confidence         *float64
	ReinforcementCount *int
	LastReinforcedAt   *time.Time
}

// SearchOptions contains options for similarity search.
type SearchOptions struct {
	// EntityID scopes the search. Required; implementations must reject a
	// search without it.
	EntityID string

	// Space selects the vector space to search ("text" or "image").
	Space string

	// Modalities filters results to the given modalities. Empty means all
	// modalities within the space.
	Modalities []string

	// MemoryTypes filters results to the given classification tags.
	MemoryTypes []string

	// Limit caps the number of results.
	Limit int

	// MinScore drops candidates below this similarity score.
	MinScore float64

	// IncludeInactive includes soft-deleted memories. Off for retrieval;
	// used only by audit paths.
	IncludeInactive bool
}

// GetOptions contains options for get operations.
type GetOptions struct {
	// EntityID, when set, restricts access to memories owned by this
	// entity. A mismatch returns ErrOwnership.
	EntityID string
}

// UpdateOptions contains options for update operations.
type UpdateOptions struct {
	// EntityID is required: updates are rejected with ErrOwnership when the
	// memory belongs to a different entity.
	EntityID string
}

// DeleteOptions contains options for soft-delete operations.
type DeleteOptions struct {
	// EntityID is required: deletes are rejected with ErrOwnership when the
	// memory belongs to a different entity.
	EntityID string
}

// ListOptions contains options for List operations.
type ListOptions struct {
	// EntityID scopes the listing. Required.
	EntityID string

	// Space restricts the listing to one vector space. Empty means all.
	Space string

	// IncludeInactive includes soft-deleted memories (audit path).
	IncludeInactive bool

	// Limit and Offset paginate the listing. Limit <= 0 means no limit.
	Limit  int
	Offset int
}

// VectorStore defines the interface for vector storage backends.
//
// Implementations must support exact-match metadata filtering combined with
// vector search in a single call, with the entity filter applied
// unconditionally.
type VectorStore interface {
	// Insert stores a new memory.
	Insert(ctx context.Context, memory *Memory) error

	// Search performs vector similarity search within one space, scoped to
	// opts.EntityID and filtered to active rows unless opts.IncludeInactive
	// is set. Results are sorted by similarity, highest first, with Score
	// populated.
	Search(ctx context.Context, embedding []float64, opts *SearchOptions) ([]*Memory, error)

	// Get retrieves a memory by ID, honoring GetOptions ownership checks.
	Get(ctx context.Context, id int64, opts *GetOptions) (*Memory, error)

	// Update applies a lifecycle update to a memory after verifying
	// ownership, and returns the updated row.
	Update(ctx context.Context, id int64, upd *MemoryUpdate, opts *UpdateOptions) (*Memory, error)

	// SoftDelete marks a memory inactive, recording the time and reason.
	// The row is retained for audit; there is no hard delete.
	SoftDelete(ctx context.Context, id int64, reason string, opts *DeleteOptions) error

	// List returns memories for an entity in reverse creation order,
	// optionally including soft-deleted rows.
	List(ctx context.Context, opts *ListOptions) ([]*Memory, error)

	// Close closes the store and releases resources.
	Close() error
}
