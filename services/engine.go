// services/engine.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"game-rewards-system/models"
	"game-rewards-system/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultKeyPrefix    = "rewards"
	DefaultWelcomeCoins = 100
	recentOutcomeLimit  = 128
)

// EngineConfig configures RewardsEngine.
type EngineConfig struct {
	KeyPrefix        string
	Window           CalendarWindow
	LedgerMaxRecords int
	WelcomeCoins     int
	LevelBonusCoins  int
	Policies         []FeaturePolicy
}

// PlayerIdentity is the installation's player id on the rewards service.
type PlayerIdentity struct {
	UUID      string    `json:"uuid"`
	NewUser   bool      `json:"new_user"`
	CreatedAt time.Time `json:"created_at"`
}

// RewardsEngine owns the claim components of one installation and is the
// entry point for the UI layer.
type RewardsEngine struct {
	Client     *RemoteRewardsClient
	Store      store.Store
	Clock      clockwork.Clock
	Gate       *CooldownGate
	Selector   *GuaranteedOutcomeSelector
	Reconciler *ClaimReconciler
	Events     *ClaimEventHub
	Coins      *CoinReconciler

	cfg      EngineConfig
	trackers map[string]*EligibilityTracker
	ledgers  map[string]*ClaimLedger
	features []string
	recent   *recentOutcomes
}

func NewRewardsEngine(cfg EngineConfig, client *RemoteRewardsClient, s store.Store, clock clockwork.Clock, fallbacks FallbackCatalog) *RewardsEngine {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Window.Location == nil {
		cfg.Window = NewCalendarWindow(nil)
	}
	if len(cfg.Policies) == 0 {
		cfg.Policies = DefaultPolicies(PolicyOptions{DeathDiscountCooldown: DefaultDeathDiscountCooldown})
	}

	selector := NewGuaranteedOutcomeSelector(DefaultPoolSize)
	e := &RewardsEngine{
		Client:     client,
		Store:      s,
		Clock:      clock,
		Gate:       NewCooldownGate(s, clock, cfg.KeyPrefix),
		Selector:   selector,
		Reconciler: NewClaimReconciler(client, selector, fallbacks, clock),
		Events:     NewClaimEventHub(clock),
		Coins:      NewCoinReconciler(client, s, clock, cfg.KeyPrefix+":coins", cfg.LevelBonusCoins),
		cfg:        cfg,
		trackers:   make(map[string]*EligibilityTracker),
		ledgers:    make(map[string]*ClaimLedger),
		recent:     newRecentOutcomes(recentOutcomeLimit),
	}
	e.Reconciler.OnTransition(e.Events.Publish)
	for _, p := range cfg.Policies {
		p.Key = NormalizeFeatureKey(p.Key)
		if p.PoolSize <= 0 {
			p.PoolSize = DefaultPoolSize
		}
		tracker := NewEligibilityTracker(s, clock, cfg.Window, e.key(p.Key, "window"), p.MaxClaims)
		ledger := NewClaimLedger(s, cfg.Window, e.key(p.Key, "ledger"), cfg.LedgerMaxRecords)
		e.trackers[p.Key] = tracker
		e.ledgers[p.Key] = ledger
		e.features = append(e.features, p.Key)
		e.Gate.SetCooldown(p.Key, p.Cooldown)
		e.Reconciler.Register(p, tracker, ledger)
	}
	sort.Strings(e.features)
	return e
}

// Features lists the registered feature keys.
func (e *RewardsEngine) Features() []string {
	return append([]string(nil), e.features...)
}

// Start loads or creates the player identity and registers it remotely.
// Remote failures are logged and do not stop the engine.
func (e *RewardsEngine) Start(ctx context.Context) (*PlayerIdentity, error) {
	key := e.cfg.KeyPrefix + ":player"
	var id PlayerIdentity
	found, err := store.GetJSON(ctx, e.Store, key, &id)
	if err != nil {
		return nil, err
	}
	if !found || id.UUID == "" {
		id = PlayerIdentity{UUID: uuid.NewString(), NewUser: true, CreatedAt: e.Clock.Now()}
		if err := e.savePlayer(ctx, key, id); err != nil {
			return nil, err
		}
		log.Info().Str("player", id.UUID).Msg("🆕 created player identity")
	}
	e.Client.SetPlayerID(id.UUID)

	if !e.Client.Configured() {
		log.Warn().Msg("⚠️ rewards service not configured, claims are unavailable")
		return &id, nil
	}
	if err := e.Client.RegisterPlayer(ctx, id.UUID); err != nil {
		log.Warn().Err(err).Str("player", id.UUID).Msg("⚠️ player registration failed")
		return &id, nil
	}
	if id.NewUser && e.cfg.WelcomeCoins > 0 {
		if err := e.Client.DistributeCoins(ctx, e.cfg.WelcomeCoins); err != nil {
			// The flag stays set so the next start tries again.
			log.Warn().Err(err).Int("amount", e.cfg.WelcomeCoins).Msg("⚠️ welcome coins not distributed")
			return &id, nil
		}
		id.NewUser = false
		if err := e.savePlayer(ctx, key, id); err != nil {
			return nil, err
		}
		log.Info().Int("amount", e.cfg.WelcomeCoins).Msg("🎉 welcome coins distributed")
	}
	return &id, nil
}

func (e *RewardsEngine) savePlayer(ctx context.Context, key string, id PlayerIdentity) error {
	m, err := store.PutJSON(key, id)
	if err != nil {
		return err
	}
	return e.Store.Apply(ctx, m)
}

// AttemptClaim admits the claim through the cooldown gate and runs it.
func (e *RewardsEngine) AttemptClaim(ctx context.Context, featureKey string) (*models.ClaimResult, error) {
	key := NormalizeFeatureKey(featureKey)
	if _, ok := e.trackers[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, featureKey)
	}

	admitted, retryAt, err := e.Gate.TryAdmit(ctx, key)
	if err != nil {
		return nil, err
	}
	if !admitted {
		log.Debug().Str("feature", key).Time("retry_at", retryAt).Msg("⏳ cooldown active")
		return nil, reject(models.RejectionCooldownActive, key, retryAt)
	}

	result, err := e.Reconciler.AttemptClaim(ctx, key)
	if err != nil {
		return nil, err
	}
	e.recent.put(result.ClaimID, result.Selection)
	return result, nil
}

// ResolveOutcome maps the UI's final animation state of a recent claim to
// its reward. The bool reports whether the presentation had to be overridden.
func (e *RewardsEngine) ResolveOutcome(claimID string, state models.PresentationState) (models.Reward, bool, error) {
	sel, ok := e.recent.get(claimID)
	if !ok {
		return models.Reward{}, false, fmt.Errorf("%w: %s", ErrUnknownClaim, claimID)
	}
	return e.Selector.ResolveOutcome(sel, state)
}

// GetEligibilitySummary reports the claim window and streak of a feature.
func (e *RewardsEngine) GetEligibilitySummary(ctx context.Context, featureKey string) (models.EligibilitySummary, error) {
	key := NormalizeFeatureKey(featureKey)
	tracker, ok := e.trackers[key]
	if !ok {
		return models.EligibilitySummary{}, fmt.Errorf("%w: %s", ErrUnknownFeature, featureKey)
	}
	w, err := tracker.Current(ctx)
	if err != nil {
		return models.EligibilitySummary{}, err
	}
	next, err := tracker.NextEligibleAt(ctx)
	if err != nil {
		return models.EligibilitySummary{}, err
	}
	streak, total, err := e.ledgers[key].Streak(ctx, e.Clock.Now())
	if err != nil {
		return models.EligibilitySummary{}, err
	}
	return models.EligibilitySummary{
		FeatureKey:     key,
		WindowKey:      w.WindowKey,
		ClaimsUsed:     w.ClaimsUsed,
		MaxClaims:      w.MaxClaims,
		NextEligibleAt: next,
		CurrentStreak:  streak,
		TotalClaims:    total,
	}, nil
}

// Ledgers returns the stored claim records of every feature.
func (e *RewardsEngine) Ledgers(ctx context.Context) (map[string][]models.ClaimRecord, error) {
	out := make(map[string][]models.ClaimRecord, len(e.features))
	for _, f := range e.features {
		records, err := e.ledgers[f].Records(ctx)
		if err != nil {
			return nil, err
		}
		out[f] = records
	}
	return out, nil
}

// SearchRewards proxies a free-text catalog search.
func (e *RewardsEngine) SearchRewards(ctx context.Context, query string, limit int) ([]models.Reward, error) {
	return e.Client.SearchRewards(ctx, query, limit)
}

// ResetForTesting clears eligibility, ledger and cooldown state of every
// feature along with the coin balance. The player identity is kept.
func (e *RewardsEngine) ResetForTesting(ctx context.Context) error {
	var errs []error
	for _, f := range e.features {
		errs = append(errs, e.trackers[f].Reset(ctx), e.ledgers[f].Reset(ctx))
	}
	errs = append(errs, e.Gate.Reset(ctx, e.features...), e.Coins.Reset(ctx))
	if err := errors.Join(errs...); err != nil {
		return err
	}
	e.recent.clear()
	e.Client.ClearCache()
	log.Info().Msg("🧹 reward state reset")
	return nil
}

// LevelResult reports a finished level: the coins credited and the
// treasure chest opened afterwards.
type LevelResult struct {
	Distributed   int                    `json:"distributed"`
	Balance       CoinBalance            `json:"balance"`
	Chest         *models.ClaimResult    `json:"chest,omitempty"`
	ChestRejected models.RejectionReason `json:"chest_rejected,omitempty"`
}

// CollectCoins records coins picked up in play.
func (e *RewardsEngine) CollectCoins(ctx context.Context, amount int) (CoinBalance, error) {
	return e.Coins.Collect(ctx, amount)
}

// FlushCoins credits pending coins. Level exit and the periodic flush use it.
func (e *RewardsEngine) FlushCoins(ctx context.Context) (int, error) {
	return e.Coins.Flush(ctx)
}

func (e *RewardsEngine) CoinBalance(ctx context.Context) (CoinBalance, error) {
	return e.Coins.Balance(ctx)
}

// CompleteLevel credits pending coins plus the level bonus, then opens the
// treasure chest. No chest is opened when the credit fails.
func (e *RewardsEngine) CompleteLevel(ctx context.Context) (*LevelResult, error) {
	distributed, err := e.Coins.CompleteLevel(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := e.Coins.Balance(ctx)
	if err != nil {
		return nil, err
	}
	result := &LevelResult{Distributed: distributed, Balance: balance}
	if _, ok := e.trackers[FeatureTreasureChest]; !ok {
		return result, nil
	}

	chest, err := e.AttemptClaim(ctx, FeatureTreasureChest)
	var rejection *RejectionError
	switch {
	case errors.As(err, &rejection):
		result.ChestRejected = rejection.Reason
	case err != nil:
		return result, err
	default:
		result.Chest = chest
	}
	return result, nil
}

// KeyPrefix is the installation scope of every stored key.
func (e *RewardsEngine) KeyPrefix() string {
	return e.cfg.KeyPrefix
}

func (e *RewardsEngine) key(featureKey, kind string) string {
	return e.cfg.KeyPrefix + ":" + featureKey + ":" + kind
}

// recentOutcomes remembers the selections of the latest claims, oldest
// evicted first.
type recentOutcomes struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]models.OutcomeSelection
}

func newRecentOutcomes(limit int) *recentOutcomes {
	return &recentOutcomes{limit: limit, byID: make(map[string]models.OutcomeSelection)}
}

func (r *recentOutcomes) put(claimID string, sel models.OutcomeSelection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[claimID]; !ok {
		r.order = append(r.order, claimID)
	}
	r.byID[claimID] = sel
	for len(r.order) > r.limit {
		delete(r.byID, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *recentOutcomes) get(claimID string) (models.OutcomeSelection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sel, ok := r.byID[claimID]
	return sel, ok
}

func (r *recentOutcomes) clear() {
	r.mu.Lock()
	r.order = nil
	r.byID = make(map[string]models.OutcomeSelection)
	r.mu.Unlock()
}
