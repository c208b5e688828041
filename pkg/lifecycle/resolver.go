package lifecycle

import (
	"context"
	"sort"
	"time"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
)

// candidateLimit is how many nearest neighbors the resolver inspects when
// deciding between reinforcement and creation.
const candidateLimit = 5

// Resolver decides whether incoming content duplicates an existing memory.
//
// It runs a similarity search scoped to one entity and vector space; the best
// active match at or above the merge threshold wins. Callers must hold the
// per-(entity, space) ingestion lock across Resolve and the write that follows
// it, otherwise two concurrent ingestions of the same fact can both decide
// "create".
type Resolver struct {
	store     storage.VectorStore
	threshold float64
}

// NewResolver creates a Resolver over the given store. A non-positive
// threshold falls back to MergeThreshold.
func NewResolver(store storage.VectorStore, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = MergeThreshold
	}
	return &Resolver{store: store, threshold: threshold}
}

// Resolve returns the existing memory the embedding should reinforce, or nil
// when a new memory should be created.
//
// Ties at the same similarity prefer higher stored confidence, then the more
// recently reinforced memory.
func (r *Resolver) Resolve(ctx context.Context, entityID, space string, embedding []float64) (*storage.Memory, error) {
	candidates, err := r.store.Search(ctx, embedding, &storage.SearchOptions{
		EntityID: entityID,
		Space:    space,
		Limit:    candidateLimit,
		MinScore: r.threshold,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].LastReinforcedAt.After(candidates[j].LastReinforcedAt)
	})
	return candidates[0], nil
}

// Reinforce applies one reinforcement event to the memory: confidence gets
// the boost (capped), the counter increments, and the decay clock resets.
// Stored content and embedding are left untouched; the original phrasing is
// what later retrieval will surface.
func (r *Resolver) Reinforce(ctx context.Context, memory *storage.Memory) (*storage.Memory, error) {
	confidence := Reinforce(memory.Confidence)
	count := memory.ReinforcementCount + 1
	now := time.Now().UTC()

	return r.store.Update(ctx, memory.ID, &storage.MemoryUpdate{
		Confidence:         &confidence,
		ReinforcementCount: &count,
		LastReinforcedAt:   &now,
	}, &storage.UpdateOptions{EntityID: memory.EntityID})
}
