package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage/inmemory"
)

func seed(t *testing.T, store storage.VectorStore, m *storage.Memory) {
	t.Helper()
	if m.Space == "" {
		m.Space = "text"
	}
	if m.Modality == "" {
		m.Modality = "text"
	}
	if m.MemoryType == "" {
		m.MemoryType = "note"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.LastReinforcedAt.IsZero() {
		m.LastReinforcedAt = m.CreatedAt
	}
	m.IsActive = true
	require.NoError(t, store.Insert(context.Background(), m))
}

func textQuery(entityID string, embedding []float64) *Query {
	return &Query{
		EntityID: entityID,
		Searches: []SpaceSearch{{Space: "text", Embedding: embedding}},
	}
}

func TestRetrieveCombinedScoreOrdering(t *testing.T) {
	store := inmemory.NewClient()
	ranker := NewRanker(store)
	now := time.Now().UTC()

	// High similarity, low confidence.
	seed(t, store, &storage.Memory{
		ID: 1, EntityID: "p1", Content: "a",
		Embedding: []float64{1, 0}, Confidence: 0.2,
		CreatedAt: now, LastReinforcedAt: now,
	})
	// Lower similarity, full confidence: wins on combined score.
	// combined(1) = 0.7*1.0 + 0.3*0.2 = 0.76
	// combined(2) = 0.7*0.9 + 0.3*1.0 = 0.93  (cos ~0.9 via angle)
	seed(t, store, &storage.Memory{
		ID: 2, EntityID: "p1", Content: "b",
		Embedding: []float64{0.9, 0.43589}, Confidence: 1.0,
		CreatedAt: now, LastReinforcedAt: now,
	})

	evidence, err := ranker.Retrieve(context.Background(), textQuery("p1", []float64{1, 0}))
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	assert.Equal(t, int64(2), evidence[0].MemoryID)
	assert.Equal(t, int64(1), evidence[1].MemoryID)
	assert.Greater(t, evidence[0].CombinedScore, evidence[1].CombinedScore)
}

func TestRetrieveMinScoreFilter(t *testing.T) {
	store := inmemory.NewClient()
	ranker := NewRanker(store)
	now := time.Now().UTC()

	// Similarity ~0, confidence at the floor after heavy decay:
	// combined = 0.7*0 + 0.3*0.1 = 0.03 < 0.2 default threshold.
	seed(t, store, &storage.Memory{
		ID: 1, EntityID: "p1", Content: "stale",
		Embedding: []float64{0, 1}, Confidence: 0.1,
		CreatedAt: now, LastReinforcedAt: now,
	})

	evidence, err := ranker.Retrieve(context.Background(), textQuery("p1", []float64{1, 0}))
	require.NoError(t, err)
	assert.Empty(t, evidence)
}

func TestRetrieveAppliesDecayAtReadTime(t *testing.T) {
	store := inmemory.NewClient()
	ranker := NewRanker(store)
	old := time.Now().UTC().Add(-97 * 24 * time.Hour)

	// Stored confidence is still 1.0; one half-life has passed.
	seed(t, store, &storage.Memory{
		ID: 1, EntityID: "p1", Content: "old fact",
		Embedding: []float64{1, 0}, Confidence: 1.0,
		CreatedAt: old, LastReinforcedAt: old,
	})

	evidence, err := ranker.Retrieve(context.Background(), textQuery("p1", []float64{1, 0}))
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.InDelta(t, 0.5, evidence[0].Confidence, 0.01)
	assert.InDelta(t, 0.7*1.0+0.3*0.5, evidence[0].CombinedScore, 0.01)
}

func TestRetrieveTieBreaksOnConfidenceThenRecency(t *testing.T) {
	store := inmemory.NewClient()
	ranker := NewRanker(store)
	now := time.Now().UTC()

	embedding := []float64{1, 0}
	seed(t, store, &storage.Memory{
		ID: 1, EntityID: "p1", Content: "older",
		Embedding: embedding, Confidence: 1.0,
		CreatedAt: now.Add(-48 * time.Hour), LastReinforcedAt: now,
	})
	seed(t, store, &storage.Memory{
		ID: 2, EntityID: "p1", Content: "newer",
		Embedding: embedding, Confidence: 1.0,
		CreatedAt: now, LastReinforcedAt: now,
	})

	evidence, err := ranker.Retrieve(context.Background(), textQuery("p1", embedding))
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	assert.Equal(t, int64(2), evidence[0].MemoryID)
}

func TestRetrieveCrossSpaceMergeBeforeTruncate(t *testing.T) {
	store := inmemory.NewClient()
	ranker := NewRanker(store)
	now := time.Now().UTC()

	// Three strong text memories and one strong image memory, limit 3:
	// the image memory must compete in the same ranking, not get its own
	// quota.
	for i := int64(1); i <= 3; i++ {
		seed(t, store, &storage.Memory{
			ID: i, EntityID: "p1", Content: "text",
			Embedding: []float64{1, 0}, Confidence: 1.0,
			CreatedAt: now.Add(time.Duration(i) * time.Minute), LastReinforcedAt: now,
		})
	}
	seed(t, store, &storage.Memory{
		ID: 10, EntityID: "p1", Content: "scan",
		Space: "image", Modality: "image",
		Embedding: []float64{0.5, 0.5, 0.5}, Confidence: 0.3,
		CreatedAt: now.Add(-24 * time.Hour), LastReinforcedAt: now,
	})

	q := &Query{
		EntityID: "p1",
		Limit:    3,
		Searches: []SpaceSearch{
			{Space: "text", Embedding: []float64{1, 0}},
			{Space: "image", Embedding: []float64{0.5, 0.5, 0.5}},
		},
	}
	evidence, err := ranker.Retrieve(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, evidence, 3)
	for _, ev := range evidence {
		assert.NotEqual(t, int64(10), ev.MemoryID)
	}
}

func TestRetrieveRequiresEntity(t *testing.T) {
	ranker := NewRanker(inmemory.NewClient())

	_, err := ranker.Retrieve(context.Background(), textQuery("", []float64{1, 0}))
	assert.ErrorIs(t, err, storage.ErrMissingEntity)
}

func TestRetrieveWithStats(t *testing.T) {
	store := inmemory.NewClient()
	ranker := NewRanker(store)
	now := time.Now().UTC()

	seed(t, store, &storage.Memory{
		ID: 1, EntityID: "p1", Content: "a",
		Embedding: []float64{1, 0}, Confidence: 1.0,
		CreatedAt: now, LastReinforcedAt: now,
	})
	seed(t, store, &storage.Memory{
		ID: 2, EntityID: "p1", Content: "b",
		Embedding: []float64{1, 0}, Confidence: 0.6,
		CreatedAt: now, LastReinforcedAt: now,
	})

	evidence, stats, err := ranker.RetrieveWithStats(context.Background(), textQuery("p1", []float64{1, 0}))
	require.NoError(t, err)
	require.Len(t, evidence, 2)
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 1.0, stats.AvgSemantic, 0.001)
	assert.InDelta(t, 0.8, stats.AvgConfidence, 0.001)
}

func TestRetrieveEmptySetIsNotError(t *testing.T) {
	ranker := NewRanker(inmemory.NewClient())

	evidence, stats, err := ranker.RetrieveWithStats(context.Background(), textQuery("p1", []float64{1, 0}))
	require.NoError(t, err)
	assert.Empty(t, evidence)
	assert.Equal(t, 0, stats.Count)
}
