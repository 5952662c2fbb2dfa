package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run feeds outcomes to b: 'f' records a failure, 's' a success. It returns
// the transitions seen, as "open"/"close" markers.
func run(b *Breaker, outcomes string) []string {
	var seen []string
	for _, o := range outcomes {
		var change StateChange
		switch o {
		case 'f':
			_, change = b.RecordFailure()
		case 's':
			_, change = b.RecordSuccess()
		}
		if change.Opened {
			seen = append(seen, "open")
		}
		if change.Closed {
			seen = append(seen, "close")
		}
	}
	return seen
}

func TestBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		successes   int
		outcomes    string
		wantState   State
		transitions []string
	}{
		{name: "fresh breaker is closed", failures: 3, successes: 1, wantState: StateClosed},
		{name: "below threshold stays closed", failures: 3, successes: 1, outcomes: "ff", wantState: StateClosed},
		{name: "threshold opens", failures: 3, successes: 1, outcomes: "fff", wantState: StateOpen, transitions: []string{"open"}},
		{name: "success in between resets the run", failures: 3, successes: 1, outcomes: "ffsff", wantState: StateClosed},
		{name: "extra failures while open report nothing new", failures: 1, successes: 1, outcomes: "fff", wantState: StateOpen, transitions: []string{"open"}},
		{name: "needs a run of successes to close", failures: 1, successes: 2, outcomes: "fs", wantState: StateOpen, transitions: []string{"open"}},
		{name: "closes after the success run", failures: 1, successes: 2, outcomes: "fss", wantState: StateClosed, transitions: []string{"open", "close"}},
		{name: "failure while open restarts the success run", failures: 1, successes: 3, outcomes: "fssfss", wantState: StateOpen, transitions: []string{"open"}},
		{name: "reopens after closing", failures: 2, successes: 1, outcomes: "ffsff", wantState: StateOpen, transitions: []string{"open", "close", "open"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("verification-api", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))

			got := run(b, tt.outcomes)

			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.transitions, got)
		})
	}
}

func TestBreaker_FallbackFlags(t *testing.T) {
	b := New("verification-api", WithFailureThreshold(2), WithSuccessThreshold(1))

	useFallback, _ := b.RecordFailure()
	assert.False(t, useFallback)
	useFallback, _ = b.RecordFailure()
	assert.True(t, useFallback)

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
}

func TestBreaker_CooldownGatesTrials(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New("verification-api",
		WithFailureThreshold(1),
		WithCooldown(30*time.Second),
		WithClock(func() time.Time { return now }),
	)
	require.True(t, b.Allow())

	run(b, "f")
	assert.False(t, b.Allow())

	now = now.Add(29 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(time.Second)
	assert.True(t, b.Allow())

	run(b, "f")
	assert.False(t, b.Allow(), "failed trial restarts the cooldown")
}

func TestBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New("verification-api",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithCooldown(time.Second),
		WithClock(func() time.Time { return now }),
	)
	run(b, "f")
	now = now.Add(time.Second)

	assert.True(t, b.Allow(), "first caller gets the trial")
	assert.False(t, b.Allow(), "second caller waits for the trial")

	run(b, "s")
	assert.True(t, b.IsOpen())
	assert.True(t, b.Allow(), "next trial after a good one")
	assert.False(t, b.Allow())

	run(b, "s")
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow(), "closed breaker admits everyone")
}

func TestBreaker_Reset(t *testing.T) {
	b := New("verification-api", WithFailureThreshold(1))
	run(b, "f")
	require.True(t, b.IsOpen())

	b.Reset()

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.True(t, b.Allow())
	assert.Equal(t, "verification-api", b.Name())
}
