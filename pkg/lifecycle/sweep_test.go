package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage/inmemory"
)

func TestSweepPersistsDecayedConfidence(t *testing.T) {
	store := inmemory.NewClient()
	sweeper := NewSweeper(store, nil)
	now := time.Now().UTC()

	seedMemory(t, store, 1, "p1", []float64{1, 0, 0}, 1.0, now.Add(-97*24*time.Hour))
	seedMemory(t, store, 2, "p1", []float64{0, 1, 0}, 1.0, now.Add(-1*24*time.Hour))

	stats, err := sweeper.Sweep(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Decayed)

	old, err := store.Get(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, old.Confidence, 0.001)

	fresh, err := store.Get(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fresh.Confidence)
}

func TestSweepSkipsTinyChanges(t *testing.T) {
	store := inmemory.NewClient()
	sweeper := NewSweeper(store, nil)
	now := time.Now().UTC()

	// Just past grace: the decayed value differs by well under the write
	// threshold, so no write happens.
	seedMemory(t, store, 1, "p1", []float64{1, 0, 0}, 1.0, now.Add(-8*24*time.Hour))

	stats, err := sweeper.Sweep(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Decayed)
}

func TestSweepScopedToEntity(t *testing.T) {
	store := inmemory.NewClient()
	sweeper := NewSweeper(store, nil)
	now := time.Now().UTC()

	seedMemory(t, store, 1, "p1", []float64{1, 0, 0}, 1.0, now.Add(-97*24*time.Hour))
	seedMemory(t, store, 2, "p2", []float64{1, 0, 0}, 1.0, now.Add(-97*24*time.Hour))

	stats, err := sweeper.Sweep(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	other, err := store.Get(context.Background(), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, other.Confidence)
}
