package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecayWithinGracePeriod(t *testing.T) {
	now := time.Now().UTC()

	assert.Equal(t, 1.0, Decay(1.0, now, now))
	assert.Equal(t, 1.0, Decay(1.0, now.Add(-3*24*time.Hour), now))
	assert.Equal(t, 1.0, Decay(1.0, now.Add(-7*24*time.Hour), now))
	assert.Equal(t, 0.6, Decay(0.6, now.Add(-5*24*time.Hour), now))
}

func TestDecayHalfLife(t *testing.T) {
	now := time.Now().UTC()

	// 97 days old: 90 days past grace, exactly one half-life.
	got := Decay(1.0, now.Add(-97*24*time.Hour), now)
	assert.InDelta(t, 0.5, got, 0.001)

	// Two half-lives.
	got = Decay(1.0, now.Add(-187*24*time.Hour), now)
	assert.InDelta(t, 0.25, got, 0.001)
}

func TestDecayFloor(t *testing.T) {
	now := time.Now().UTC()

	// Ancient memory bottoms out at the floor, never zero.
	got := Decay(1.0, now.Add(-10*365*24*time.Hour), now)
	assert.Equal(t, MinConfidence, got)

	// A low base decays straight to the floor.
	got = Decay(0.15, now.Add(-100*24*time.Hour), now)
	assert.Equal(t, MinConfidence, got)
}

func TestDecayFutureTimestamp(t *testing.T) {
	now := time.Now().UTC()

	assert.Equal(t, 0.8, Decay(0.8, now.Add(24*time.Hour), now))
}

func TestReinforce(t *testing.T) {
	assert.InDelta(t, 0.75, Reinforce(0.6), 0.0001)
	assert.Equal(t, 1.0, Reinforce(1.0))
	assert.Equal(t, 1.0, Reinforce(0.95))
	assert.InDelta(t, 0.25, Reinforce(MinConfidence), 0.0001)
}
