// services/errors.go
package services

import (
	"errors"
	"fmt"
	"time"

	"game-rewards-system/models"
)

var (
	ErrNotConfigured         = errors.New("rewards service not configured")
	ErrNetwork               = errors.New("network error")
	ErrExhaustedRetries      = errors.New("retries exhausted")
	ErrMalformedResponse     = errors.New("malformed rewards response")
	ErrNoGuaranteedCandidate = errors.New("no guaranteed candidate")
	ErrInvalidSelection      = errors.New("invalid outcome selection")
	ErrNotEligible           = errors.New("not eligible")
	ErrAlreadyInProgress     = errors.New("claim already in progress")
	ErrCooldownActive        = errors.New("cooldown active")
	ErrUnknownFeature        = errors.New("unknown feature")
	ErrUnknownClaim          = errors.New("unknown claim")
)

// HTTPError is a non-2xx answer from the rewards service.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("rewards service returned %d: %s", e.Status, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// RejectionError is returned when a claim is refused before it starts.
type RejectionError struct {
	Reason     models.RejectionReason
	FeatureKey string
	RetryAt    time.Time
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("claim %s rejected: %s", e.FeatureKey, e.Reason)
}

// Unwrap maps the reason onto its sentinel so callers can use errors.Is.
func (e *RejectionError) Unwrap() error {
	switch e.Reason {
	case models.RejectionAlreadyInProgress:
		return ErrAlreadyInProgress
	case models.RejectionNotEligible:
		return ErrNotEligible
	case models.RejectionCooldownActive:
		return ErrCooldownActive
	case models.RejectionNotConfigured:
		return ErrNotConfigured
	}
	return nil
}

func reject(reason models.RejectionReason, featureKey string, retryAt time.Time) error {
	return &RejectionError{Reason: reason, FeatureKey: featureKey, RetryAt: retryAt}
}
