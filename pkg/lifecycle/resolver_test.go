package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage/inmemory"
)

func seedMemory(t *testing.T, store storage.VectorStore, id int64, entityID string, embedding []float64, confidence float64, reinforcedAt time.Time) {
	t.Helper()
	err := store.Insert(context.Background(), &storage.Memory{
		ID:               id,
		EntityID:         entityID,
		Content:          "seed",
		Embedding:        embedding,
		Space:            "text",
		Modality:         "text",
		MemoryType:       "note",
		Confidence:       confidence,
		CreatedAt:        reinforcedAt,
		LastReinforcedAt: reinforcedAt,
		IsActive:         true,
	})
	require.NoError(t, err)
}

func TestResolverNoMatchBelowThreshold(t *testing.T) {
	store := inmemory.NewClient()
	resolver := NewResolver(store, 0)

	seedMemory(t, store, 1, "p1", []float64{1, 0, 0}, 1.0, time.Now())

	// Orthogonal vector: similarity 0, well below the merge threshold.
	match, err := resolver.Resolve(context.Background(), "p1", "text", []float64{0, 1, 0})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolverMatchAtThreshold(t *testing.T) {
	store := inmemory.NewClient()
	resolver := NewResolver(store, 0)

	seedMemory(t, store, 1, "p1", []float64{1, 0, 0}, 1.0, time.Now())

	match, err := resolver.Resolve(context.Background(), "p1", "text", []float64{1, 0, 0})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, int64(1), match.ID)
}

func TestResolverScopedToEntity(t *testing.T) {
	store := inmemory.NewClient()
	resolver := NewResolver(store, 0)

	seedMemory(t, store, 1, "p1", []float64{1, 0, 0}, 1.0, time.Now())

	match, err := resolver.Resolve(context.Background(), "p2", "text", []float64{1, 0, 0})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolverTieBreaksOnConfidenceThenRecency(t *testing.T) {
	store := inmemory.NewClient()
	resolver := NewResolver(store, 0)
	now := time.Now().UTC()

	// Identical embeddings: same similarity for all three.
	embedding := []float64{1, 0, 0}
	seedMemory(t, store, 1, "p1", embedding, 0.5, now.Add(-48*time.Hour))
	seedMemory(t, store, 2, "p1", embedding, 0.9, now.Add(-48*time.Hour))
	seedMemory(t, store, 3, "p1", embedding, 0.9, now.Add(-1*time.Hour))

	match, err := resolver.Resolve(context.Background(), "p1", "text", embedding)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, int64(3), match.ID)
}

func TestReinforceUpdatesLifecycleFieldsOnly(t *testing.T) {
	store := inmemory.NewClient()
	resolver := NewResolver(store, 0)
	created := time.Now().UTC().Add(-24 * time.Hour)

	seedMemory(t, store, 1, "p1", []float64{1, 0, 0}, 0.7, created)

	memory, err := store.Get(context.Background(), 1, nil)
	require.NoError(t, err)

	updated, err := resolver.Reinforce(context.Background(), memory)
	require.NoError(t, err)

	assert.InDelta(t, 0.85, updated.Confidence, 0.0001)
	assert.Equal(t, 1, updated.ReinforcementCount)
	assert.True(t, updated.LastReinforcedAt.After(created))
	// Content and embedding keep the original phrasing.
	assert.Equal(t, "seed", updated.Content)
	assert.Equal(t, memory.Embedding, updated.Embedding)
	assert.Equal(t, memory.CreatedAt, updated.CreatedAt)
}

func TestReinforceCapsAtMax(t *testing.T) {
	store := inmemory.NewClient()
	resolver := NewResolver(store, 0)

	seedMemory(t, store, 1, "p1", []float64{1, 0, 0}, 0.95, time.Now().UTC())

	memory, err := store.Get(context.Background(), 1, nil)
	require.NoError(t, err)

	updated, err := resolver.Reinforce(context.Background(), memory)
	require.NoError(t, err)
	assert.Equal(t, MaxConfidence, updated.Confidence)
}
