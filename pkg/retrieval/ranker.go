// Package retrieval turns stored memories into ranked evidence.
//
// Ranking blends semantic similarity with effective confidence: a memory is
// worth surfacing when it is both relevant to the question and still trusted.
// Decay is applied at read time, so ranking always reflects the current age
// of each memory without requiring a background writer.
package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/lifecycle"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage"
)

// Ranking constants.
const (
	// SemanticWeight and ConfidenceWeight blend the two score components.
	// They sum to 1 so the combined score stays in [0, 1].
	SemanticWeight   = 0.7
	ConfidenceWeight = 0.3

	// DefaultMinScore is the combined-score threshold below which a memory
	// does not qualify as evidence.
	DefaultMinScore = 0.2

	// DefaultLimit and MaxLimit bound the evidence set size.
	DefaultLimit = 10
	MaxLimit     = 100

	// overfetchFactor widens the per-space store query so that combined
	// scoring has enough candidates after the threshold filter.
	overfetchFactor = 2
)

// Evidence is one memory admitted into an evidence set. It is a transient
// retrieval view; nothing in it is persisted.
type Evidence struct {
	// MemoryID identifies the underlying memory.
	MemoryID int64

	// Content is the memory's stored text.
	Content string

	// SemanticScore is the cosine similarity against the query, in [0, 1].
	SemanticScore float64

	// Confidence is the effective (decayed) confidence at retrieval time.
	Confidence float64

	// CombinedScore is the blended ranking score.
	CombinedScore float64

	// Modality, MemoryType, and Source are carried from the memory for
	// labeling evidence in prompts and responses.
	Modality   string
	MemoryType string
	Source     string

	// CreatedAt is when the memory was first stored.
	CreatedAt time.Time

	// ParentID and ChunkIndex trace the evidence back to its ingestion
	// event.
	ParentID   string
	ChunkIndex int
}

// Query describes one retrieval request.
type Query struct {
	// EntityID scopes the retrieval. Required.
	EntityID string

	// Searches lists the per-space searches to run. Cross-modality queries
	// provide one entry per space; results are merged before truncation so
	// every space competes for the same slots.
	Searches []SpaceSearch

	// MemoryTypes filters candidates to the given classification tags.
	MemoryTypes []string

	// Limit caps the evidence set. Zero means DefaultLimit; values above
	// MaxLimit are clamped.
	Limit int

	// MinScore is the relevance threshold, applied twice: as the semantic
	// floor of each store search and as the combined-score cutoff after
	// blending. Zero means DefaultMinScore; a small negative value
	// disables filtering.
	MinScore float64
}

// SpaceSearch is one per-space similarity search within a Query.
type SpaceSearch struct {
	// Space is the vector space to search.
	Space string

	// Embedding is the query embedding in that space.
	Embedding []float64

	// Modalities restricts results to the given modalities within the
	// space. Empty means all.
	Modalities []string
}

// Stats summarizes an evidence set.
type Stats struct {
	Count         int
	AvgSemantic   float64
	AvgConfidence float64
}

// Ranker retrieves and ranks evidence from a vector store.
type Ranker struct {
	store storage.VectorStore
}

// NewRanker creates a Ranker over the given store.
func NewRanker(store storage.VectorStore) *Ranker {
	return &Ranker{store: store}
}

// Retrieve runs every per-space search, scores the candidates, and returns
// the merged evidence set ordered by combined score. Ties break on effective
// confidence, then on recency of creation.
//
// An empty evidence set is a normal outcome, not an error.
func (r *Ranker) Retrieve(ctx context.Context, q *Query) ([]*Evidence, error) {
	if q.EntityID == "" {
		return nil, storage.ErrMissingEntity
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	minScore := q.MinScore
	if minScore == 0 {
		minScore = DefaultMinScore
	}

	now := time.Now().UTC()
	var evidence []*Evidence
	for _, search := range q.Searches {
		memories, err := r.store.Search(ctx, search.Embedding, &storage.SearchOptions{
			EntityID:    q.EntityID,
			Space:       search.Space,
			Modalities:  search.Modalities,
			MemoryTypes: q.MemoryTypes,
			Limit:       limit * overfetchFactor,
			MinScore:    minScore,
		})
		if err != nil {
			return nil, err
		}

		for _, memory := range memories {
			ev := score(memory, now)
			if ev.CombinedScore < minScore {
				continue
			}
			evidence = append(evidence, ev)
		}
	}

	sort.SliceStable(evidence, func(i, j int) bool {
		if evidence[i].CombinedScore != evidence[j].CombinedScore {
			return evidence[i].CombinedScore > evidence[j].CombinedScore
		}
		if evidence[i].Confidence != evidence[j].Confidence {
			return evidence[i].Confidence > evidence[j].Confidence
		}
		return evidence[i].CreatedAt.After(evidence[j].CreatedAt)
	})

	if len(evidence) > limit {
		evidence = evidence[:limit]
	}
	return evidence, nil
}

// RetrieveWithStats runs Retrieve and summarizes the result.
func (r *Ranker) RetrieveWithStats(ctx context.Context, q *Query) ([]*Evidence, *Stats, error) {
	evidence, err := r.Retrieve(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	stats := &Stats{Count: len(evidence)}
	if len(evidence) > 0 {
		var semSum, confSum float64
		for _, ev := range evidence {
			semSum += ev.SemanticScore
			confSum += ev.Confidence
		}
		stats.AvgSemantic = semSum / float64(len(evidence))
		stats.AvgConfidence = confSum / float64(len(evidence))
	}
	return evidence, stats, nil
}

// score builds the evidence view of a memory, applying decay at read time.
func score(memory *storage.Memory, now time.Time) *Evidence {
	confidence := lifecycle.Decay(memory.Confidence, memory.LastReinforcedAt, now)
	return &Evidence{
		MemoryID:      memory.ID,
		Content:       memory.Content,
		SemanticScore: memory.Score,
		Confidence:    confidence,
		CombinedScore: SemanticWeight*memory.Score + ConfidenceWeight*confidence,
		Modality:      memory.Modality,
		MemoryType:    memory.MemoryType,
		Source:        memory.Source,
		CreatedAt:     memory.CreatedAt,
		ParentID:      memory.ParentID,
		ChunkIndex:    memory.ChunkIndex,
	}
}
