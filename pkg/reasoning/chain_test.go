package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/llm"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/retrieval"
)

// fakeLLM counts every generation call so tests can prove the evidence gate
// never lets a call through.
type fakeLLM struct {
	calls    int
	response string
	err      error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return f.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (f *fakeLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Close() error { return nil }

func someEvidence() []*retrieval.Evidence {
	return []*retrieval.Evidence{
		{
			MemoryID:      1,
			Content:       "Patient reports trouble sleeping, waking at 3am most nights",
			SemanticScore: 0.9,
			Confidence:    0.8,
			CombinedScore: 0.87,
			Modality:      "text",
			MemoryType:    "clinical",
			Source:        "session",
			CreatedAt:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			MemoryID:      2,
			Content:       "Started melatonin 3mg nightly",
			SemanticScore: 0.8,
			Confidence:    1.0,
			CombinedScore: 0.86,
			Modality:      "text",
			MemoryType:    "medication",
			Source:        "doctor",
			CreatedAt:     time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestAnswerEmptyEvidenceNeverCallsModel(t *testing.T) {
	model := &fakeLLM{response: "should never appear"}
	chain := NewChain(model, nil)

	resp, err := chain.Answer(context.Background(), "p1", "blood pressure?", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, model.calls)
	assert.Equal(t, NoEvidenceAnswer, resp.AnswerText)
	assert.False(t, resp.HasContext)
	assert.Equal(t, 0, resp.EvidenceCount)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.Disclaimer)
	assert.Equal(t, "p1", resp.EntityID)
	assert.Equal(t, "blood pressure?", resp.Query)
}

func TestAnswerGroundedResponse(t *testing.T) {
	model := &fakeLLM{response: "The patient has reported sleep difficulties and started melatonin."}
	chain := NewChain(model, nil)

	resp, err := chain.Answer(context.Background(), "p1", "sleep problems?", someEvidence())
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls)
	assert.True(t, resp.HasContext)
	assert.Equal(t, 2, resp.EvidenceCount)
	assert.ElementsMatch(t, []string{"session", "doctor"}, resp.Sources)
	assert.Equal(t, SafetyDisclaimer, resp.Disclaimer)
}

func TestAnswerGenerationFailure(t *testing.T) {
	model := &fakeLLM{err: errors.New("upstream timeout")}
	chain := NewChain(model, nil)

	resp, err := chain.Answer(context.Background(), "p1", "sleep?", someEvidence())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, 1, model.calls)
}

func TestAnswerModelDeclaresInsufficient(t *testing.T) {
	model := &fakeLLM{response: "Insufficient data in patient records"}
	chain := NewChain(model, nil)

	resp, err := chain.Answer(context.Background(), "p1", "cholesterol?", someEvidence())
	require.NoError(t, err)

	// Chunks were found, but the model downgraded them: the response must
	// not claim evidential support.
	assert.False(t, resp.HasContext)
	assert.Equal(t, 0, resp.EvidenceCount)
	assert.Empty(t, resp.Sources)
}

func TestSummarizeGate(t *testing.T) {
	model := &fakeLLM{response: "Overview of records."}
	chain := NewChain(model, nil)

	resp, err := chain.Summarize(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, model.calls)
	assert.False(t, resp.HasContext)

	resp, err = chain.Summarize(context.Background(), "p1", someEvidence())
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls)
	assert.True(t, resp.HasContext)
}

func TestSuggestFollowUpsNoEvidence(t *testing.T) {
	model := &fakeLLM{response: `["never used"]`}
	chain := NewChain(model, nil)

	suggestions := chain.SuggestFollowUps(context.Background(), nil)
	assert.Equal(t, 0, model.calls)
	assert.Equal(t, genericSuggestions, suggestions)
}

func TestSuggestFollowUpsParsesJSON(t *testing.T) {
	model := &fakeLLM{response: "Here you go:\n[\"How has sleep changed since starting melatonin?\", \"Any daytime drowsiness?\"]"}
	chain := NewChain(model, nil)

	suggestions := chain.SuggestFollowUps(context.Background(), someEvidence())
	assert.Equal(t, 1, model.calls)
	require.Len(t, suggestions, 2)
	assert.Contains(t, suggestions[0], "melatonin")
}

func TestSuggestFollowUpsFallbackOnBadJSON(t *testing.T) {
	model := &fakeLLM{response: "I suggest asking about sleep."}
	chain := NewChain(model, nil)

	suggestions := chain.SuggestFollowUps(context.Background(), someEvidence())
	assert.Equal(t, fallbackSuggestions, suggestions)
}

func TestSuggestFollowUpsFallbackOnError(t *testing.T) {
	model := &fakeLLM{err: errors.New("down")}
	chain := NewChain(model, nil)

	suggestions := chain.SuggestFollowUps(context.Background(), someEvidence())
	assert.Equal(t, fallbackSuggestions, suggestions)
}

func TestFormatEvidenceNumberedBlocks(t *testing.T) {
	formatted := FormatEvidence(someEvidence())

	assert.Contains(t, formatted, "[1] Type: CLINICAL | Source: session | Date: 2026-03-10 | Confidence: 80%")
	assert.Contains(t, formatted, "[2] Type: MEDICATION | Source: doctor | Date: 2026-03-12 | Confidence: 100%")
	assert.Contains(t, formatted, "waking at 3am")
}

func TestFormatEvidenceImagePlaceholder(t *testing.T) {
	evidence := []*retrieval.Evidence{{
		MemoryID:   5,
		Content:    "chest-xray-2026-01.png",
		Modality:   "image",
		MemoryType: "scan",
		Source:     "import",
		Confidence: 0.9,
		CreatedAt:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}}

	formatted := FormatEvidence(evidence)
	assert.Contains(t, formatted, "[Image reference: chest-xray-2026-01.png]")
	assert.False(t, strings.Contains(formatted, "interpret"))
}

func TestFormatEvidenceEmpty(t *testing.T) {
	assert.Equal(t, "[No evidence available]", FormatEvidence(nil))
}
