// services/eligibility.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"game-rewards-system/models"
	"game-rewards-system/store"

	"github.com/jonboulle/clockwork"
)

// EligibilityTracker counts claims per calendar window for one feature.
// The persisted window is read-modify-write, so every access holds mu.
type EligibilityTracker struct {
	Store     store.Store
	Clock     clockwork.Clock
	Window    CalendarWindow
	Key       string
	MaxClaims int

	mu sync.Mutex
}

func NewEligibilityTracker(s store.Store, clock clockwork.Clock, window CalendarWindow, key string, maxClaims int) *EligibilityTracker {
	if maxClaims <= 0 {
		maxClaims = models.DefaultMaxClaims
	}
	return &EligibilityTracker{Store: s, Clock: clock, Window: window, Key: key, MaxClaims: maxClaims}
}

// CanClaim reports whether a claim is admissible now. A stored window that
// no longer matches the clock is reset and persisted before the comparison.
func (t *EligibilityTracker) CanClaim(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.Clock.Now()
	w, stale, err := t.load(ctx, now)
	if err != nil {
		return false, err
	}
	if stale {
		m, err := store.PutJSON(t.Key, w)
		if err != nil {
			return false, err
		}
		if err := t.Store.Apply(ctx, m); err != nil {
			return false, fmt.Errorf("reset claim window: %w", err)
		}
	}
	return w.ClaimsUsed < w.MaxClaims, nil
}

// Current returns the window as it applies now without persisting a reset.
func (t *EligibilityTracker) Current(ctx context.Context) (models.ClaimWindow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, _, err := t.load(ctx, t.Clock.Now())
	return w, err
}

// RecordClaim increments the counter of the window containing the current
// time, which is derived again here so a claim committed after midnight
// lands in the new window. with contributes extra mutations that are
// committed in the same batch as the counter.
func (t *EligibilityTracker) RecordClaim(ctx context.Context, with func(models.ClaimWindow) ([]store.Mutation, error)) (models.ClaimWindow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, _, err := t.load(ctx, t.Clock.Now())
	if err != nil {
		return models.ClaimWindow{}, err
	}
	if w.ClaimsUsed >= w.MaxClaims {
		return w, ErrNotEligible
	}
	w.ClaimsUsed++

	m, err := store.PutJSON(t.Key, w)
	if err != nil {
		return models.ClaimWindow{}, err
	}
	batch := []store.Mutation{m}
	if with != nil {
		extra, err := with(w)
		if err != nil {
			return models.ClaimWindow{}, err
		}
		batch = append(batch, extra...)
	}
	if err := t.Store.Apply(ctx, batch...); err != nil {
		return models.ClaimWindow{}, fmt.Errorf("commit claim: %w", err)
	}
	return w, nil
}

// NextEligibleAt is now when a claim is admissible, else the next window start.
func (t *EligibilityTracker) NextEligibleAt(ctx context.Context) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.Clock.Now()
	w, _, err := t.load(ctx, now)
	if err != nil {
		return time.Time{}, err
	}
	if w.ClaimsUsed < w.MaxClaims {
		return now, nil
	}
	return t.Window.NextStart(now), nil
}

func (t *EligibilityTracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Store.Remove(ctx, t.Key)
}

// load returns the window for now and whether the stored one was stale.
func (t *EligibilityTracker) load(ctx context.Context, now time.Time) (models.ClaimWindow, bool, error) {
	key := t.Window.Key(now)
	var w models.ClaimWindow
	ok, err := store.GetJSON(ctx, t.Store, t.Key, &w)
	if err != nil {
		return models.ClaimWindow{}, false, fmt.Errorf("load claim window: %w", err)
	}
	w.MaxClaims = t.MaxClaims
	if !ok || w.WindowKey != key {
		return models.ClaimWindow{WindowKey: key, MaxClaims: t.MaxClaims}, ok, nil
	}
	return w, false, nil
}
