// Package lifecycle implements the memory confidence model: reinforcement on
// duplicate ingestion, exponential decay over time, and the maintenance pass
// that persists decayed values.
//
// The model is inspired by the Ebbinghaus forgetting curve: confidence starts
// at 1.0, holds steady through a grace period, then halves every 90 days down
// to a floor. Restating a fact resets the clock and boosts confidence instead
// of creating a duplicate row.
package lifecycle

import (
	"math"
	"time"
)

// Confidence model constants.
const (
	// InitialConfidence is assigned to newly created memories.
	InitialConfidence = 1.0

	// MinConfidence is the decay floor. A memory never decays below this,
	// so old information stays discoverable, just heavily discounted.
	MinConfidence = 0.1

	// MaxConfidence caps reinforcement.
	MaxConfidence = 1.0

	// ReinforcementBoost is added to confidence on each reinforcement.
	ReinforcementBoost = 0.15

	// MergeThreshold is the cosine similarity at or above which new content
	// reinforces an existing memory instead of creating a new one.
	MergeThreshold = 0.85

	// GracePeriodDays is how long a memory holds full confidence after its
	// last reinforcement before decay begins.
	GracePeriodDays = 7

	// HalfLifeDays is the decay half-life once the grace period has passed.
	HalfLifeDays = 90
)

// Decay returns the effective confidence of a memory at the given instant.
//
// Within the grace period the stored base confidence is returned unchanged.
// After it, confidence halves every HalfLifeDays, clamped at MinConfidence:
//
//	effective = max(base * 0.5^((age_days - grace) / half_life), MinConfidence)
//
// The function is pure; the stored value is not modified. A lastReinforcedAt
// in the future is treated as age zero.
func Decay(base float64, lastReinforcedAt, now time.Time) float64 {
	ageDays := now.Sub(lastReinforcedAt).Hours() / 24
	if ageDays <= GracePeriodDays {
		return base
	}

	decayed := base * math.Pow(0.5, (ageDays-GracePeriodDays)/HalfLifeDays)
	if decayed < MinConfidence {
		return MinConfidence
	}
	return decayed
}

// Reinforce returns the confidence after one reinforcement event, capped at
// MaxConfidence. The boost applies to the stored base confidence, not the
// decayed effective value.
func Reinforce(base float64) float64 {
	boosted := base + ReinforcementBoost
	if boosted > MaxConfidence {
		return MaxConfidence
	}
	return boosted
}
