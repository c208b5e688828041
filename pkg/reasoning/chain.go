// Package reasoning generates evidence-grounded responses.
//
// The central rule is the evidence gate: when the evidence set is empty, a
// fixed response is returned and the language model is never invoked. All
// generation goes through a circuit breaker so that a failing model endpoint
// degrades fast instead of queueing requests.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/llm"
	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/retrieval"
)

// ErrGenerationFailed indicates that evidence was available but the model
// call failed. It is distinct from the no-evidence outcome, which is not an
// error at all.
var ErrGenerationFailed = errors.New("generation failed")

// fallbackSuggestions is returned by SuggestFollowUps when generation or JSON
// parsing fails despite available evidence.
var fallbackSuggestions = []string{
	"Review recent symptoms",
	"Check medication adherence",
	"Assess current mood",
}

// genericSuggestions is returned by SuggestFollowUps when there is no
// evidence at all. Generation is never invoked in that case.
var genericSuggestions = []string{
	"What is the patient's primary complaint?",
	"Are there any known allergies?",
	"What current medications is the patient taking?",
}

// Response is the structured result of a reasoning call.
type Response struct {
	// AnswerText is the generated (or fixed) answer.
	AnswerText string

	// HasContext reports whether the answer is grounded in evidence. False
	// for the no-evidence response and for answers the model itself marked
	// as insufficient.
	HasContext bool

	// EvidenceCount is the number of evidence items backing the answer.
	EvidenceCount int

	// Sources lists the distinct sources of the evidence used.
	Sources []string

	// Disclaimer is always populated.
	Disclaimer string

	// Query and EntityID echo the request.
	Query    string
	EntityID string
}

// Chain is the evidence-grounded reasoning pipeline.
//
// It performs no retrieval of its own; callers pass in the evidence set the
// ranker produced. This keeps the gate auditable: an empty slice in means a
// fixed response out, unconditionally.
type Chain struct {
	provider llm.Provider
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewChain creates a Chain over the given LLM provider. A nil logger falls
// back to slog.Default().
func NewChain(provider llm.Provider, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Chain{provider: provider, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm-generation",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Answer generates a grounded answer to a question.
//
// With no evidence, the fixed insufficient-data response is returned and the
// model is not called. With evidence, a single generation runs through the
// circuit breaker; failure surfaces as ErrGenerationFailed rather than a
// degraded answer.
func (c *Chain) Answer(ctx context.Context, entityID, query string, evidence []*retrieval.Evidence) (*Response, error) {
	if len(evidence) == 0 {
		return c.noEvidenceResponse(entityID, query), nil
	}

	answer, err := c.generate(ctx, buildQAPrompt(query, evidence))
	if err != nil {
		return nil, err
	}

	return c.groundedResponse(entityID, query, answer, evidence), nil
}

// Summarize generates a grounded overview of the evidence set. The same gate
// applies: no evidence, no generation.
func (c *Chain) Summarize(ctx context.Context, entityID string, evidence []*retrieval.Evidence) (*Response, error) {
	const query = "Summarize patient records"
	if len(evidence) == 0 {
		return c.noEvidenceResponse(entityID, query), nil
	}

	answer, err := c.generate(ctx, buildSummaryPrompt(evidence))
	if err != nil {
		return nil, err
	}

	return c.groundedResponse(entityID, query, answer, evidence), nil
}

// SuggestFollowUps proposes follow-up questions a clinician might ask next.
//
// Suggestions are best-effort: with no evidence a fixed generic list comes
// back without any generation; with evidence, generation or parse failures
// fall back to a fixed list instead of returning an error.
func (c *Chain) SuggestFollowUps(ctx context.Context, evidence []*retrieval.Evidence) []string {
	if len(evidence) == 0 {
		return genericSuggestions
	}

	raw, err := c.generate(ctx, buildSuggestPrompt(evidence))
	if err != nil {
		c.logger.Warn("follow-up suggestion generation failed", "error", err)
		return fallbackSuggestions
	}

	suggestions, err := parseSuggestions(raw)
	if err != nil {
		c.logger.Warn("follow-up suggestions unparseable", "error", err)
		return fallbackSuggestions
	}
	return suggestions
}

// Close closes the underlying provider.
func (c *Chain) Close() error {
	return c.provider.Close()
}

func (c *Chain) generate(ctx context.Context, prompt string) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.GenerateWithMessages(ctx, []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		}, llm.WithTemperature(0.3))
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return result.(string), nil
}

func (c *Chain) noEvidenceResponse(entityID, query string) *Response {
	return &Response{
		AnswerText:    NoEvidenceAnswer,
		HasContext:    false,
		EvidenceCount: 0,
		Sources:       []string{},
		Disclaimer:    noEvidenceDisclaimer,
		Query:         query,
		EntityID:      entityID,
	}
}

func (c *Chain) groundedResponse(entityID, query, answer string, evidence []*retrieval.Evidence) *Response {
	clean := strings.TrimSpace(answer)

	// The model may itself conclude the evidence is insufficient even
	// though chunks were found. Downgrade the grounding status so callers
	// never present weak evidence as support.
	insufficient := strings.Contains(clean, "Insufficient data") ||
		strings.Contains(clean, "do not contain relevant data") ||
		strings.Contains(clean, "No patient records matched")

	resp := &Response{
		AnswerText: clean,
		HasContext: !insufficient,
		Disclaimer: SafetyDisclaimer,
		Query:      query,
		EntityID:   entityID,
		Sources:    []string{},
	}
	if !insufficient {
		resp.EvidenceCount = len(evidence)
		resp.Sources = distinctSources(evidence)
	}
	return resp
}

func distinctSources(evidence []*retrieval.Evidence) []string {
	seen := make(map[string]struct{})
	var sources []string
	for _, ev := range evidence {
		source := ev.Source
		if source == "" {
			source = "unknown"
		}
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}
		sources = append(sources, source)
	}
	return sources
}

// parseSuggestions extracts a JSON array of strings from model output,
// tolerating surrounding prose and code fences.
func parseSuggestions(raw string) ([]string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON array in output")
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &suggestions); err != nil {
		return nil, err
	}
	if len(suggestions) == 0 {
		return nil, errors.New("empty suggestion list")
	}
	return suggestions, nil
}
