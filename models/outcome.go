// models/outcome.go
package models

import "time"

// OutcomeSelection fixes the winner of a selection before anything is shown.
// Pool is in display order; Pool[GuaranteedIndex] is the outcome.
type OutcomeSelection struct {
	Pool            []Reward `json:"pool"`
	GuaranteedIndex int      `json:"guaranteed_index"`
	IsFallback      bool     `json:"is_fallback"`
}

// Guaranteed returns the reward at GuaranteedIndex.
func (s OutcomeSelection) Guaranteed() Reward {
	return s.Pool[s.GuaranteedIndex]
}

// PresentationPlan is the cosmetic animation target for a selection.
// Rotations are in degrees, clockwise, with the pointer fixed at PointerAngle.
type PresentationPlan struct {
	SectorCount    int           `json:"sector_count"`
	SectorAngle    float64       `json:"sector_angle"`
	PointerAngle   float64       `json:"pointer_angle"`
	StartRotation  float64       `json:"start_rotation"`
	TargetRotation float64       `json:"target_rotation"`
	ExtraSpins     int           `json:"extra_spins"`
	Duration       time.Duration `json:"duration"`
	LandingIndex   int           `json:"landing_index"`
}

// PresentationState is reported by the UI after the animation settles.
type PresentationState struct {
	FinalRotation float64 `json:"final_rotation"`
}
