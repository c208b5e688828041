package core

import (
	"time"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/embedder"
)

// Modality identifies how a piece of content entered the system.
type Modality string

// Supported modalities.
const (
	// ModalityText is free text: session notes, observations.
	ModalityText Modality = "text"

	// ModalityDocument is text extracted from an uploaded document.
	ModalityDocument Modality = "document"

	// ModalityImage is a reference to an image. The system stores the
	// reference and its embedding; it never interprets image content.
	ModalityImage Modality = "image"

	// ModalityAudio is a transcript of an audio recording.
	ModalityAudio Modality = "audio"
)

// Space returns the vector space this modality embeds into. Text-born
// modalities (text, document, audio transcripts) share the text space; images
// get their own. The two spaces are never compared against each other.
func (m Modality) Space() string {
	if m == ModalityImage {
		return embedder.SpaceImage
	}
	return embedder.SpaceText
}

// Valid reports whether the modality is one of the supported values.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityDocument, ModalityImage, ModalityAudio:
		return true
	}
	return false
}

// Memory is the client-facing view of a stored memory.
type Memory struct {
	// ID is the unique identifier of the memory.
	ID int64 `json:"id"`

	// EntityID identifies the owning entity (e.g., a patient).
	EntityID string `json:"entity_id"`

	// Content is the stored text.
	Content string `json:"content"`

	// Modality is the input modality the memory came from.
	Modality Modality `json:"modality"`

	// MemoryType is a classification tag (clinical, medication, note, ...).
	MemoryType string `json:"memory_type"`

	// Source records where the memory came from (session, doctor, import).
	Source string `json:"source"`

	// Confidence is the stored base confidence in [0.1, 1.0].
	Confidence float64 `json:"confidence"`

	// ReinforcementCount is the number of reinforcement events applied.
	ReinforcementCount int `json:"reinforcement_count"`

	// CreatedAt is when the memory was first stored.
	CreatedAt time.Time `json:"created_at"`

	// LastReinforcedAt is refreshed on each reinforcement; decay ages are
	// computed from it.
	LastReinforcedAt time.Time `json:"last_reinforced_at"`

	// IsActive is false for soft-deleted memories.
	IsActive bool `json:"is_active"`

	// DeletedAt and DeleteReason record the soft-delete event, if any.
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeleteReason string     `json:"delete_reason,omitempty"`

	// ParentID and ChunkIndex trace a chunk back to its ingestion event.
	ParentID    string `json:"parent_id,omitempty"`
	ChunkIndex  int    `json:"chunk_index,omitempty"`
	TotalChunks int    `json:"total_chunks,omitempty"`

	// Attributes carries optional metadata.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Ingestion actions.
const (
	// ActionCreated means at least one new memory was created.
	ActionCreated = "created"

	// ActionReinforced means every chunk reinforced an existing memory.
	ActionReinforced = "reinforced"
)

// IngestResult reports the outcome of one ingestion.
type IngestResult struct {
	// Action is "created" if any chunk created a new memory, otherwise
	// "reinforced".
	Action string `json:"action"`

	// MemoryIDs lists the memories touched, in chunk order. A reinforced
	// chunk contributes the ID of the memory it reinforced.
	MemoryIDs []int64 `json:"memory_ids"`

	// ReinforcedCount is the number of chunks that reinforced an existing
	// memory instead of creating a new one.
	ReinforcedCount int `json:"reinforced_count"`

	// ParentID is the ingestion event ID shared by all chunks of this call.
	ParentID string `json:"parent_id"`
}

// RetrievalStats summarizes a retrieval result set.
type RetrievalStats struct {
	// Count is the number of evidence items returned.
	Count int `json:"count"`

	// AvgSemantic is the mean semantic similarity of the set.
	AvgSemantic float64 `json:"avg_semantic"`

	// AvgConfidence is the mean effective confidence of the set.
	AvgConfidence float64 `json:"avg_confidence"`
}

// DecayStats reports the outcome of one decay maintenance pass.
type DecayStats struct {
	// Processed is the number of active memories examined.
	Processed int `json:"processed"`

	// Decayed is the number of memories whose stored confidence was
	// lowered.
	Decayed int `json:"decayed"`
}
