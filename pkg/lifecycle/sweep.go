package lifecycle

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
)

// writeThreshold is the minimum confidence change that justifies a write
// during a decay sweep. Smaller drifts wait for the next pass.
const writeThreshold = 0.01

// SweepStats reports the outcome of one decay sweep.
type SweepStats struct {
	// Processed is the number of active memories examined.
	Processed int

	// Decayed is the number of memories whose stored confidence was
	// lowered.
	Decayed int
}

// Sweeper persists decayed confidence values for an entity's memories.
//
// Retrieval always computes effective confidence on the fly, so running the
// sweep is optional; it exists so that stored values track reality for
// operators inspecting the store directly, and so long-idle memories do not
// carry a stale confidence forever.
type Sweeper struct {
	store  storage.VectorStore
	logger *slog.Logger
}

// NewSweeper creates a Sweeper over the given store. A nil logger falls back
// to slog.Default().
func NewSweeper(store storage.VectorStore, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, logger: logger}
}

// Sweep applies decay to every active memory of the entity, writing back the
// decayed confidence when it differs from the stored value by more than the
// write threshold. The last-reinforced timestamp is not touched; only a
// reinforcement event resets the decay clock.
func (s *Sweeper) Sweep(ctx context.Context, entityID string) (*SweepStats, error) {
	memories, err := s.store.List(ctx, &storage.ListOptions{EntityID: entityID})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stats := &SweepStats{}
	for _, memory := range memories {
		stats.Processed++

		decayed := Decay(memory.Confidence, memory.LastReinforcedAt, now)
		if math.Abs(memory.Confidence-decayed) <= writeThreshold {
			continue
		}

		if _, err := s.store.Update(ctx, memory.ID, &storage.MemoryUpdate{
			Confidence: &decayed,
		}, &storage.UpdateOptions{EntityID: entityID}); err != nil {
			return stats, err
		}
		stats.Decayed++
		s.logger.Debug("decayed memory confidence",
			"memory_id", memory.ID,
			"entity_id", entityID,
			"from", memory.Confidence,
			"to", decayed,
		)
	}

	s.logger.Info("decay sweep complete",
		"entity_id", entityID,
		"processed", stats.Processed,
		"decayed", stats.Decayed,
	)
	return stats, nil
}
