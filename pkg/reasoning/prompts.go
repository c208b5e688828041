package reasoning

import (
	"fmt"
	"strings"

	"github.com/sujalkumar04/healthcare-memory-assistant/pkg/retrieval"
)

// systemPrompt is the grounding system prompt for all generation calls.
const systemPrompt = `You are a healthcare memory assistant helping to summarize patient information.

CRITICAL RULES:
1. Use ONLY the provided evidence from patient records
2. Do NOT introduce facts not present in the evidence
3. Do NOT make medical diagnoses or treatment recommendations
4. If evidence is insufficient, explicitly state "Insufficient data"
5. Always recommend consulting a healthcare professional for medical decisions

You help organize and summarize information — you do NOT provide medical advice.`

// qaPromptTemplate wraps a question and its evidence block.
const qaPromptTemplate = `Based on the following patient records, answer the question.

=== PATIENT EVIDENCE ===
%s
========================

QUESTION: %s

INSTRUCTIONS:
- Answer ONLY using the evidence provided above
- If the evidence does not contain relevant information, say "Insufficient data in patient records"
- Do not speculate or add information not in the evidence
- Be concise and factual

ANSWER:`

// summaryPromptTemplate asks for an overview of the evidence.
const summaryPromptTemplate = `Summarize the following patient records into a coherent overview.

=== PATIENT EVIDENCE ===
%s
========================

INSTRUCTIONS:
- Summarize ONLY what is explicitly stated in the evidence
- Organize by topic (symptoms, treatments, observations)
- Do not add interpretation or information not present
- If records are limited, acknowledge what is and isn't known

SUMMARY:`

// suggestPromptTemplate asks for follow-up questions as a JSON array.
const suggestPromptTemplate = `Analyze the following patient records and suggest 3-4 specific, investigative questions a clinician might want to ask next.

=== PATIENT EVIDENCE ===
%s
========================

INSTRUCTIONS:
1. Suggest questions that explore gaps, follow up on symptoms, or track treatment efficacy.
2. Questions should be concise and clinical.
3. Return ONLY a JSON array of strings, e.g. ["Question 1?", "Question 2?"].
4. Do not include introductory text.

SUGGESTIONS:`

// NoEvidenceAnswer is the fixed answer returned when retrieval produced no
// evidence. Generation is never invoked in that case.
const NoEvidenceAnswer = "Insufficient data in patient records to answer this question. No relevant memories were found."

// noEvidenceDisclaimer accompanies the fixed no-evidence answer.
const noEvidenceDisclaimer = "No patient records matched this query. Please consult with the healthcare provider directly."

// SafetyDisclaimer is attached to every generated response.
const SafetyDisclaimer = `---
**Disclaimer**: This summary is based on retrieved patient records and is for informational purposes only. It is not medical advice. Please consult a qualified healthcare professional for medical decisions.`

// FormatEvidence renders an evidence set as numbered blocks for prompting.
//
// Image evidence is passed as a labeled reference only; the model is never
// given image content to interpret.
func FormatEvidence(evidence []*retrieval.Evidence) string {
	if len(evidence) == 0 {
		return "[No evidence available]"
	}

	blocks := make([]string, len(evidence))
	for i, ev := range evidence {
		content := ev.Content
		if ev.Modality == "image" {
			content = fmt.Sprintf("[Image reference: %s]", ev.Content)
		}

		source := ev.Source
		if source == "" {
			source = "unknown"
		}

		blocks[i] = fmt.Sprintf("[%d] Type: %s | Source: %s | Date: %s | Confidence: %.0f%%\n    %s",
			i+1,
			strings.ToUpper(ev.MemoryType),
			source,
			ev.CreatedAt.Format("2006-01-02"),
			ev.Confidence*100,
			content,
		)
	}
	return strings.Join(blocks, "\n\n")
}

func buildQAPrompt(question string, evidence []*retrieval.Evidence) string {
	return fmt.Sprintf(qaPromptTemplate, FormatEvidence(evidence), question)
}

func buildSummaryPrompt(evidence []*retrieval.Evidence) string {
	return fmt.Sprintf(summaryPromptTemplate, FormatEvidence(evidence))
}

func buildSuggestPrompt(evidence []*retrieval.Evidence) string {
	return fmt.Sprintf(suggestPromptTemplate, FormatEvidence(evidence))
}
