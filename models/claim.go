// models/claim.go
package models

import "time"

// DefaultMaxClaims is the per-window ceiling used when none is configured.
const DefaultMaxClaims = 10

// ClaimWindow is the eligibility state of one feature for one calendar window.
type ClaimWindow struct {
	WindowKey  string `json:"window_key"`
	ClaimsUsed int    `json:"claims_used"`
	MaxClaims  int    `json:"max_claims"`
}

// Remaining is the number of claims still admissible in the window.
func (w ClaimWindow) Remaining() int {
	if w.ClaimsUsed >= w.MaxClaims {
		return 0
	}
	return w.MaxClaims - w.ClaimsUsed
}

// ClaimRecord is the persisted evidence of a completed claim. Records are
// append-only.
type ClaimRecord struct {
	ClaimID         string    `json:"claim_id"`
	FeatureKey      string    `json:"feature_key"`
	Timestamp       time.Time `json:"timestamp"`
	WindowKey       string    `json:"window_key"`
	RewardID        string    `json:"reward_id"`
	RemoteConfirmed bool      `json:"remote_confirmed"`
	IsFallback      bool      `json:"is_fallback"`
	Streak          int       `json:"streak"`
}

// ClaimState names a step of the claim state machine
type ClaimState string

const (
	ClaimStateIdle                ClaimState = "idle"
	ClaimStateCheckingEligibility ClaimState = "checking_eligibility"
	ClaimStateFetchingCandidates  ClaimState = "fetching_candidates"
	ClaimStateSelecting           ClaimState = "selecting"
	ClaimStateAttemptingPurchase  ClaimState = "attempting_purchase"
	ClaimStateCompleting          ClaimState = "completing"
	ClaimStateFailed              ClaimState = "failed"
)

// RejectionReason explains why a claim was refused before it started
type RejectionReason string

const (
	RejectionAlreadyInProgress RejectionReason = "already_in_progress"
	RejectionNotEligible       RejectionReason = "not_eligible"
	RejectionCooldownActive    RejectionReason = "cooldown_active"
	RejectionNotConfigured     RejectionReason = "not_configured"
)

// PurchaseReceipt is what the rewards service returns for a redemption.
type PurchaseReceipt struct {
	PurchaseID     string `json:"purchase_id,omitempty"`
	CouponCode     string `json:"coupon_code,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ClaimResult is handed back to the UI once a claim completes.
type ClaimResult struct {
	ClaimID         string           `json:"claim_id"`
	FeatureKey      string           `json:"feature_key"`
	Reward          Reward           `json:"reward"`
	Selection       OutcomeSelection `json:"selection"`
	Presentation    PresentationPlan `json:"presentation"`
	IsFallback      bool             `json:"is_fallback"`
	RemoteConfirmed bool             `json:"remote_confirmed"`
	Receipt         *PurchaseReceipt `json:"receipt,omitempty"`
	PurchaseError   string           `json:"purchase_error,omitempty"`
	Record          ClaimRecord      `json:"record"`
	Window          ClaimWindow      `json:"window"`
}

// EligibilitySummary is the read model shown next to claim buttons.
type EligibilitySummary struct {
	FeatureKey     string    `json:"feature_key"`
	WindowKey      string    `json:"window_key"`
	ClaimsUsed     int       `json:"claims_used"`
	MaxClaims      int       `json:"max_claims"`
	NextEligibleAt time.Time `json:"next_eligible_at"`
	CurrentStreak  int       `json:"current_streak"`
	TotalClaims    int       `json:"total_claims"`
}
