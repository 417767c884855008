package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusIncomplete: {StatusActive, StatusCanceled},
		StatusTrialing:   {StatusActive, StatusPastDue, StatusCanceled},
		StatusActive:     {StatusPastDue, StatusCanceled, StatusSuspended},
		StatusPastDue:    {StatusActive, StatusCanceled, StatusSuspended},
		StatusSuspended:  {StatusActive, StatusCanceled},
		StatusCanceled:   {},
	}
	all := []Status{
		StatusIncomplete, StatusTrialing, StatusActive,
		StatusPastDue, StatusSuspended, StatusCanceled,
	}

	for current, targets := range allowed {
		permitted := map[Status]bool{}
		for _, target := range targets {
			permitted[target] = true
		}
		for _, target := range all {
			sub := Subscription{Status: current}
			assert.Equal(t, permitted[target], sub.CanTransition(target),
				"%s -> %s", current, target)
		}
	}
}

func TestIsOnTrial(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(24 * time.Hour)
	earlier := now.Add(-24 * time.Hour)

	assert.True(t, Subscription{Status: StatusTrialing, TrialEndsAt: &later}.IsOnTrial(now))
	assert.False(t, Subscription{Status: StatusTrialing, TrialEndsAt: &earlier}.IsOnTrial(now))
	assert.False(t, Subscription{Status: StatusTrialing}.IsOnTrial(now))
	assert.False(t, Subscription{Status: StatusActive, TrialEndsAt: &later}.IsOnTrial(now))
}

func TestIsOnGracePeriod(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	endsAt := now.Add(7 * 24 * time.Hour)
	past := now.Add(-time.Hour)

	onGrace := Subscription{Status: StatusActive, CanceledAt: &past, EndsAt: &endsAt}
	assert.True(t, onGrace.IsOnGracePeriod(now))

	// Not canceled at all.
	assert.False(t, Subscription{Status: StatusActive, EndsAt: &endsAt}.IsOnGracePeriod(now))

	// Grace window already over.
	assert.False(t, Subscription{Status: StatusActive, CanceledAt: &past, EndsAt: &past}.IsOnGracePeriod(now))

	// Fully canceled subscriptions are past resuming.
	assert.False(t, Subscription{Status: StatusCanceled, CanceledAt: &past, EndsAt: &endsAt}.IsOnGracePeriod(now))
}
