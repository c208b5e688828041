package core

import "github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"

// toClientMemory converts a storage record to the client-facing view. The
// embedding is deliberately dropped; callers never need raw vectors.
func toClientMemory(m *storage.Memory) *Memory {
	return &Memory{
		ID:                 m.ID,
		EntityID:           m.EntityID,
		Content:            m.Content,
		Modality:           Modality(m.Modality),
		MemoryType:         m.MemoryType,
		Source:             m.Source,
		Confidence:         m.Confidence,
		ReinforcementCount: m.ReinforcementCount,
		CreatedAt:          m.CreatedAt,
		LastReinforcedAt:   m.LastReinforcedAt,
		IsActive:           m.IsActive,
		DeletedAt:          m.DeletedAt,
		DeleteReason:       m.DeleteReason,
		ParentID:           m.ParentID,
		ChunkIndex:         m.ChunkIndex,
		TotalChunks:        m.TotalChunks,
		Attributes:         m.Attributes,
	}
}

// toClientMemories converts a slice of storage records.
func toClientMemories(memories []*storage.Memory) []*Memory {
	out := make([]*Memory, len(memories))
	for i, m := range memories {
		out[i] = toClientMemory(m)
	}
	return out
}
