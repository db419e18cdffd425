package services

import (
	"context"
	"testing"

	"game-rewards-system/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimEventHub(t *testing.T) {
	hub := NewClaimEventHub(clockwork.NewFakeClockAt(testNow))
	events, cancel := hub.Subscribe(2)
	assert.Equal(t, 1, hub.Subscribers())

	hub.Publish(FeatureDaily, models.ClaimStateCheckingEligibility)
	hub.Publish(FeatureDaily, models.ClaimStateFetchingCandidates)
	hub.Publish(FeatureDaily, models.ClaimStateSelecting) // dropped, buffer full

	first := <-events
	assert.Equal(t, models.ClaimStateCheckingEligibility, first.State)
	assert.Equal(t, testNow, first.At)
	assert.Equal(t, models.ClaimStateFetchingCandidates, (<-events).State)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())
	hub.Publish(FeatureDaily, models.ClaimStateIdle)
}

func TestEngineStreamsClaimTransitions(t *testing.T) {
	f := newEngineFixture(t, PolicyOptions{})
	events, cancel := f.engine.Events.Subscribe(32)
	defer cancel()

	_, err := f.engine.AttemptClaim(context.Background(), FeatureDaily)
	require.NoError(t, err)

	var states []models.ClaimState
	for len(events) > 0 {
		states = append(states, (<-events).State)
	}
	assert.Equal(t, []models.ClaimState{
		models.ClaimStateCheckingEligibility,
		models.ClaimStateFetchingCandidates,
		models.ClaimStateSelecting,
		models.ClaimStateAttemptingPurchase,
		models.ClaimStateCompleting,
		models.ClaimStateIdle,
	}, states)
}
