// services/claim_reconciler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"game-rewards-system/models"
	"game-rewards-system/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// RewardsAPI is the part of the rewards service a claim needs.
type RewardsAPI interface {
	Configured() bool
	FetchRewards(ctx context.Context, filter models.RewardFilter) ([]models.Reward, error)
	Purchase(ctx context.Context, rewardID, idempotencyKey string) (*models.PurchaseReceipt, error)
}

type featureRuntime struct {
	policy  FeaturePolicy
	tracker *EligibilityTracker
	ledger  *ClaimLedger
}

// ClaimReconciler runs one claim through eligibility, candidate fetch,
// selection, purchase and completion. At most one claim per feature is in
// flight; different features never wait on each other.
type ClaimReconciler struct {
	API       RewardsAPI
	Selector  *GuaranteedOutcomeSelector
	Fallbacks FallbackCatalog
	Clock     clockwork.Clock

	features map[string]*featureRuntime

	mu       sync.Mutex
	inflight map[string]bool
	states   map[string]models.ClaimState
	observer func(featureKey string, state models.ClaimState)
}

func NewClaimReconciler(api RewardsAPI, selector *GuaranteedOutcomeSelector, fallbacks FallbackCatalog, clock clockwork.Clock) *ClaimReconciler {
	return &ClaimReconciler{
		API:       api,
		Selector:  selector,
		Fallbacks: fallbacks,
		Clock:     clock,
		features:  make(map[string]*featureRuntime),
		inflight:  make(map[string]bool),
		states:    make(map[string]models.ClaimState),
	}
}

// Register adds a feature. It must be called before claims start.
func (r *ClaimReconciler) Register(policy FeaturePolicy, tracker *EligibilityTracker, ledger *ClaimLedger) {
	r.features[policy.Key] = &featureRuntime{policy: policy, tracker: tracker, ledger: ledger}
}

// OnTransition installs a hook called on every state change.
func (r *ClaimReconciler) OnTransition(fn func(featureKey string, state models.ClaimState)) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// State reports the current step of the feature's claim.
func (r *ClaimReconciler) State(featureKey string) models.ClaimState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[featureKey]; ok {
		return s
	}
	return models.ClaimStateIdle
}

// AttemptClaim runs a full claim for featureKey. Precondition failures come
// back as *RejectionError; remote failures degrade into fallback or
// unconfirmed claims instead of errors.
func (r *ClaimReconciler) AttemptClaim(ctx context.Context, featureKey string) (*models.ClaimResult, error) {
	rt, ok := r.features[featureKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, featureKey)
	}
	if !r.begin(featureKey) {
		return nil, reject(models.RejectionAlreadyInProgress, featureKey, r.Clock.Now())
	}
	defer r.finish(featureKey)

	claimID := uuid.NewString()
	logger := log.With().Str("feature", featureKey).Str("claim_id", claimID).Logger()

	if !r.API.Configured() {
		r.transition(featureKey, claimID, models.ClaimStateFailed)
		return nil, reject(models.RejectionNotConfigured, featureKey, r.Clock.Now())
	}

	r.transition(featureKey, claimID, models.ClaimStateCheckingEligibility)
	eligible, err := rt.tracker.CanClaim(ctx)
	if err != nil {
		r.transition(featureKey, claimID, models.ClaimStateFailed)
		return nil, err
	}
	if !eligible {
		next, _ := rt.tracker.NextEligibleAt(ctx)
		r.transition(featureKey, claimID, models.ClaimStateFailed)
		return nil, reject(models.RejectionNotEligible, featureKey, next)
	}

	r.transition(featureKey, claimID, models.ClaimStateFetchingCandidates)
	candidates, fetchErr := r.fetchCandidates(ctx, rt.policy)

	r.transition(featureKey, claimID, models.ClaimStateSelecting)
	sel, err := r.selectOutcome(rt.policy, candidates, fetchErr)
	if err != nil {
		logger.Warn().Err(err).Msg("🔄 using fallback rewards")
	}
	plan, err := ResolvePresentation(sel, 0, RandomExtraSpins(), DefaultSpinDuration)
	if err != nil {
		r.transition(featureKey, claimID, models.ClaimStateFailed)
		return nil, err
	}

	result := &models.ClaimResult{
		ClaimID:      claimID,
		FeatureKey:   featureKey,
		Reward:       sel.Guaranteed(),
		Selection:    sel,
		Presentation: plan,
		IsFallback:   sel.IsFallback,
	}

	r.transition(featureKey, claimID, models.ClaimStateAttemptingPurchase)
	if !sel.IsFallback {
		receipt, err := r.API.Purchase(ctx, result.Reward.ID, NewIdempotencyKey(featureKey))
		if err != nil {
			logger.Warn().Err(err).Str("reward_id", result.Reward.ID).Msg("⚠️ purchase failed, completing unconfirmed")
			result.PurchaseError = err.Error()
		} else {
			result.Receipt = receipt
			result.RemoteConfirmed = true
		}
	}

	r.transition(featureKey, claimID, models.ClaimStateCompleting)
	// Completion must not be lost to a caller hanging up after the purchase.
	commitCtx := context.WithoutCancel(ctx)
	var record models.ClaimRecord
	window, err := rt.tracker.RecordClaim(commitCtx, func(w models.ClaimWindow) ([]store.Mutation, error) {
		rec, m, err := rt.ledger.StageAppend(commitCtx, models.ClaimRecord{
			ClaimID:         claimID,
			FeatureKey:      featureKey,
			Timestamp:       r.Clock.Now(),
			WindowKey:       w.WindowKey,
			RewardID:        result.Reward.ID,
			RemoteConfirmed: result.RemoteConfirmed,
			IsFallback:      result.IsFallback,
		})
		record = rec
		return []store.Mutation{m}, err
	})
	if err != nil {
		logger.Error().Err(err).Msg("❌ failed to complete claim")
		return nil, fmt.Errorf("complete claim: %w", err)
	}
	result.Record = record
	result.Window = window

	logger.Info().
		Str("reward_id", result.Reward.ID).
		Bool("fallback", result.IsFallback).
		Bool("remote_confirmed", result.RemoteConfirmed).
		Int("streak", record.Streak).
		Int("claims_used", window.ClaimsUsed).
		Msg("✅ claim completed")
	return result, nil
}

// fetchCandidates queries every source concurrently. Sources that fail are
// skipped; an error is returned only when all of them failed.
func (r *ClaimReconciler) fetchCandidates(ctx context.Context, policy FeaturePolicy) ([]models.Reward, error) {
	results := make([][]models.Reward, len(policy.Sources))
	errs := make([]error, len(policy.Sources))

	var g errgroup.Group
	for i, filter := range policy.Sources {
		g.Go(func() error {
			results[i], errs[i] = r.API.FetchRewards(ctx, filter)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var merged []models.Reward
	failed := 0
	for i := range policy.Sources {
		if errs[i] != nil {
			failed++
			log.Warn().Err(errs[i]).Str("feature", policy.Key).Str("filter", policy.Sources[i].Signature()).Msg("⚠️ reward source failed")
			continue
		}
		for _, rw := range results[i] {
			if seen[rw.ID] {
				continue
			}
			seen[rw.ID] = true
			merged = append(merged, rw)
		}
	}
	if failed > 0 && failed == len(policy.Sources) {
		return nil, errors.Join(errs...)
	}
	return merged, nil
}

// selectOutcome returns a fallback selection together with the reason when
// the remote candidates cannot produce one.
func (r *ClaimReconciler) selectOutcome(policy FeaturePolicy, candidates []models.Reward, fetchErr error) (models.OutcomeSelection, error) {
	fallback := func(reason error) (models.OutcomeSelection, error) {
		return FixedSelection(r.Fallbacks.For(policy.Key), policy.PoolSize), reason
	}
	if fetchErr != nil {
		return fallback(fetchErr)
	}
	if len(candidates) == 0 {
		return fallback(ErrNoGuaranteedCandidate)
	}
	sel, err := r.Selector.SelectN(candidates, policy.Matcher, policy.PoolSize)
	if err != nil {
		return fallback(err)
	}
	return sel, nil
}

func (r *ClaimReconciler) begin(featureKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[featureKey] {
		return false
	}
	r.inflight[featureKey] = true
	return true
}

func (r *ClaimReconciler) finish(featureKey string) {
	r.mu.Lock()
	delete(r.inflight, featureKey)
	r.states[featureKey] = models.ClaimStateIdle
	observer := r.observer
	r.mu.Unlock()
	if observer != nil {
		observer(featureKey, models.ClaimStateIdle)
	}
}

func (r *ClaimReconciler) transition(featureKey, claimID string, to models.ClaimState) {
	r.mu.Lock()
	from := r.states[featureKey]
	r.states[featureKey] = to
	observer := r.observer
	r.mu.Unlock()

	log.Debug().Str("feature", featureKey).Str("claim_id", claimID).Str("from", string(from)).Str("to", string(to)).Msg("claim transition")
	if observer != nil {
		observer(featureKey, to)
	}
}
