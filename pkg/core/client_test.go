package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/chunker"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/embedder"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/lifecycle"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/llm"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/reasoning"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/retrieval"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/storage/inmemory"
)

// fakeEmbedder returns fixed vectors for known phrases, so tests control
// similarity exactly.
type fakeEmbedder struct {
	vectors map[string][]float64
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float64{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Close() error    { return nil }

// fakeLLM counts generation calls so the evidence gate is verifiable.
type fakeLLM struct {
	calls    int
	response string
	err      error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return f.GenerateWithMessages(ctx, nil, opts...)
}

func (f *fakeLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Close() error { return nil }

func newTestAssistant(t *testing.T, model *fakeLLM) *Assistant {
	t.Helper()

	vectors := map[string][]float64{
		"Patient reports anxiety and trouble sleeping": {1, 0, 0},
		"anxiety symptoms persist":                     {0.95, 0.31225, 0},
		"sleep problems":                               {0.98, 0.19899, 0},
		"blood pressure":                               {0, 1, 0},
		"Patient feels isolated from friends":          {0, 0.9, 0.43589},
	}

	store := inmemory.NewClient()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &Assistant{
		config:        &Config{},
		store:         store,
		embedders:     embedder.NewRegistry(&fakeEmbedder{vectors: vectors}, nil),
		chain:         reasoning.NewChain(model, logger),
		ranker:        retrieval.NewRanker(store),
		resolver:      lifecycle.NewResolver(store, 0),
		sweeper:       lifecycle.NewSweeper(store, logger),
		splitter:      chunker.New(),
		snowflakeNode: node,
		ingestLocks:   newKeyedMutex(),
		logger:        logger,
		logCleanup:    func() error { return nil },
	}
}

func TestIngestCreatesMemory(t *testing.T) {
	a := newTestAssistant(t, &fakeLLM{})
	ctx := context.Background()

	result, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping",
		WithMemoryType("clinical"), WithSource("session"))
	require.NoError(t, err)

	assert.Equal(t, ActionCreated, result.Action)
	require.Len(t, result.MemoryIDs, 1)
	assert.Equal(t, 0, result.ReinforcedCount)
	assert.NotEmpty(t, result.ParentID)

	memory, err := a.Get(ctx, "p1", result.MemoryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1.0, memory.Confidence)
	assert.Equal(t, "clinical", memory.MemoryType)
	assert.True(t, memory.IsActive)
}

func TestIngestNearDuplicateReinforces(t *testing.T) {
	a := newTestAssistant(t, &fakeLLM{})
	ctx := context.Background()

	first, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	// Cosine similarity ~0.95, above the 0.85 merge threshold.
	second, err := a.Ingest(ctx, "p1", "anxiety symptoms persist")
	require.NoError(t, err)

	assert.Equal(t, ActionReinforced, second.Action)
	assert.Equal(t, 1, second.ReinforcedCount)
	require.Len(t, second.MemoryIDs, 1)
	assert.Equal(t, first.MemoryIDs[0], second.MemoryIDs[0])

	memory, err := a.Get(ctx, "p1", first.MemoryIDs[0])
	require.NoError(t, err)
	// Capped at 1.0; the counter and original phrasing prove the merge.
	assert.Equal(t, 1.0, memory.Confidence)
	assert.Equal(t, 1, memory.ReinforcementCount)
	assert.Equal(t, "Patient reports anxiety and trouble sleeping", memory.Content)

	// No second row was created.
	audit, err := a.Audit(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestIngestValidation(t *testing.T) {
	a := newTestAssistant(t, &fakeLLM{})
	ctx := context.Background()

	_, err := a.Ingest(ctx, "", "content")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.Ingest(ctx, "p1", "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = a.Ingest(ctx, "p1", "content", WithModality("video"))
	assert.ErrorIs(t, err, ErrValidation)

	// Image ingestion without an image embedder fails cleanly.
	_, err = a.Ingest(ctx, "p1", "scan.png", WithModality(ModalityImage))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAnswerGroundedFlow(t *testing.T) {
	model := &fakeLLM{response: "The patient has reported anxiety and trouble sleeping."}
	a := newTestAssistant(t, model)
	ctx := context.Background()

	_, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	resp, err := a.Answer(ctx, "p1", "sleep problems")
	require.NoError(t, err)

	assert.True(t, resp.HasContext)
	assert.Equal(t, 1, resp.EvidenceCount)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, reasoning.SafetyDisclaimer, resp.Disclaimer)
}

func TestAnswerUngroundedNeverCallsModel(t *testing.T) {
	model := &fakeLLM{response: "should never appear"}
	a := newTestAssistant(t, model)
	ctx := context.Background()

	_, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	// Orthogonal query: no evidence survives the threshold.
	resp, err := a.Answer(ctx, "p1", "blood pressure")
	require.NoError(t, err)

	assert.False(t, resp.HasContext)
	assert.Equal(t, 0, resp.EvidenceCount)
	assert.Equal(t, 0, model.calls)
	assert.Equal(t, reasoning.NoEvidenceAnswer, resp.AnswerText)
}

func TestAnswerGenerationFailureIsExplicit(t *testing.T) {
	model := &fakeLLM{err: errors.New("upstream down")}
	a := newTestAssistant(t, model)
	ctx := context.Background()

	_, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	_, err = a.Answer(ctx, "p1", "sleep problems")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestRetrieveIsolatedBetweenEntities(t *testing.T) {
	a := newTestAssistant(t, &fakeLLM{})
	ctx := context.Background()

	_, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)
	_, err = a.Ingest(ctx, "p2", "Patient feels isolated from friends")
	require.NoError(t, err)

	// p2 never sees p1's data, even with a query matching it exactly.
	evidence, err := a.Retrieve(ctx, "p2", "sleep problems")
	require.NoError(t, err)
	assert.Empty(t, evidence)

	evidence, err = a.Retrieve(ctx, "p1", "sleep problems")
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, "Patient reports anxiety and trouble sleeping", evidence[0].Content)
}

func TestRetrieveWithStats(t *testing.T) {
	a := newTestAssistant(t, &fakeLLM{})
	ctx := context.Background()

	_, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	evidence, stats, err := a.RetrieveWithStats(ctx, "p1", "sleep problems")
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, 1, stats.Count)
	assert.InDelta(t, 0.98, stats.AvgSemantic, 0.01)
	assert.InDelta(t, 1.0, stats.AvgConfidence, 0.001)
}

func TestSoftDeleteExcludedFromRetrievalButAudited(t *testing.T) {
	a := newTestAssistant(t, &fakeLLM{})
	ctx := context.Background()

	result, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)
	id := result.MemoryIDs[0]

	require.NoError(t, a.SoftDelete(ctx, "p1", id, "entered in error"))

	evidence, err := a.Retrieve(ctx, "p1", "sleep problems")
	require.NoError(t, err)
	assert.Empty(t, evidence)

	audit, err := a.Audit(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.False(t, audit[0].IsActive)
	assert.Equal(t, "entered in error", audit[0].DeleteReason)
	assert.NotNil(t, audit[0].DeletedAt)
}

func TestSoftDeleteOwnershipRejected(t *testing.T) {
	a := newTestAssistant(t, &fakeLLM{})
	ctx := context.Background()

	result, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	err = a.SoftDelete(ctx, "p2", result.MemoryIDs[0], "not mine")
	assert.ErrorIs(t, err, ErrOwnershipViolation)

	// The memory is untouched.
	memory, err := a.Get(ctx, "p1", result.MemoryIDs[0])
	require.NoError(t, err)
	assert.True(t, memory.IsActive)
}

func TestSuggestFollowUpsUngroundedFixedList(t *testing.T) {
	model := &fakeLLM{response: `["never used"]`}
	a := newTestAssistant(t, model)
	ctx := context.Background()

	suggestions, err := a.SuggestFollowUps(ctx, "p1", "blood pressure")
	require.NoError(t, err)
	assert.Equal(t, 0, model.calls)
	assert.NotEmpty(t, suggestions)
}

func TestSuggestFollowUpsGrounded(t *testing.T) {
	model := &fakeLLM{response: `["How long has the sleep trouble lasted?", "Any changes in anxiety triggers?"]`}
	a := newTestAssistant(t, model)
	ctx := context.Background()

	_, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	suggestions, err := a.SuggestFollowUps(ctx, "p1", "sleep problems")
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls)
	assert.Len(t, suggestions, 2)
}

func TestSummarizeUsesGate(t *testing.T) {
	model := &fakeLLM{response: "Summary of patient records."}
	a := newTestAssistant(t, model)
	ctx := context.Background()

	resp, err := a.Summarize(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, resp.HasContext)
	assert.Equal(t, 0, model.calls)

	_, err = a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	resp, err = a.Summarize(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, resp.HasContext)
	assert.Equal(t, 1, model.calls)
}

func TestApplyDecay(t *testing.T) {
	a := newTestAssistant(t, &fakeLLM{})
	ctx := context.Background()

	_, err := a.Ingest(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, err)

	// Fresh memory: nothing to decay yet.
	stats, err := a.ApplyDecay(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Decayed)
}

func TestAsyncAssistantRoundTrip(t *testing.T) {
	model := &fakeLLM{response: "Grounded answer."}
	a := newTestAssistant(t, model)
	async := &AsyncAssistant{Assistant: a}
	ctx := context.Background()

	ingest := <-async.IngestAsync(ctx, "p1", "Patient reports anxiety and trouble sleeping")
	require.NoError(t, ingest.Error)
	assert.Equal(t, ActionCreated, ingest.Result.Action)

	answer := <-async.AnswerAsync(ctx, "p1", "sleep problems")
	require.NoError(t, answer.Error)
	assert.True(t, answer.Response.HasContext)

	async.Wait()
}

func TestModalitySpaceMapping(t *testing.T) {
	assert.Equal(t, "text", ModalityText.Space())
	assert.Equal(t, "text", ModalityDocument.Space())
	assert.Equal(t, "text", ModalityAudio.Space())
	assert.Equal(t, "image", ModalityImage.Space())
	assert.False(t, Modality("video").Valid())
}
