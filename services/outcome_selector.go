// services/outcome_selector.go
package services

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"game-rewards-system/models"
	"game-rewards-system/utils"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPoolSize     = 6
	PointerAngle        = 270.0
	DefaultSpinDuration = 3 * time.Second
	MinExtraSpins       = 3
	MaxExtraSpins       = 5
)

// Permuter returns an ordering of 0..n-1 used to shuffle a pool for display.
type Permuter func(n int) ([]int, error)

// GuaranteedOutcomeSelector fixes the winning reward first and only then
// arranges the pool for display. Presentation never decides the outcome.
type GuaranteedOutcomeSelector struct {
	PoolSize int
	Permute  Permuter

	overrides atomic.Int64
}

func NewGuaranteedOutcomeSelector(poolSize int) *GuaranteedOutcomeSelector {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &GuaranteedOutcomeSelector{PoolSize: poolSize, Permute: utils.Permutation}
}

// Select builds a selection of the default pool size.
func (s *GuaranteedOutcomeSelector) Select(candidates []models.Reward, match models.RewardMatcher) (models.OutcomeSelection, error) {
	return s.SelectN(candidates, match, s.PoolSize)
}

// SelectN normalizes candidates to size, shuffles them and records where the
// first matching candidate ended up.
func (s *GuaranteedOutcomeSelector) SelectN(candidates []models.Reward, match models.RewardMatcher, size int) (models.OutcomeSelection, error) {
	if size <= 0 {
		size = s.PoolSize
	}
	winner := Locate(candidates, match)
	if winner < 0 {
		return models.OutcomeSelection{}, ErrNoGuaranteedCandidate
	}
	pool, winner := Normalize(candidates, winner, size)

	perm, err := s.Permute(len(pool))
	if err != nil {
		return models.OutcomeSelection{}, fmt.Errorf("shuffle pool: %w", err)
	}
	slots := make([]int, len(pool))
	for i := range slots {
		slots[i] = i
	}
	shuffled, err := Shuffle(slots, perm)
	if err != nil {
		return models.OutcomeSelection{}, err
	}
	idx := Locate(shuffled, func(origin int) bool { return origin == winner })

	display := make([]models.Reward, len(shuffled))
	for i, origin := range shuffled {
		display[i] = pool[origin]
		display[i].Featured = false
	}
	display[idx].Featured = true
	return models.OutcomeSelection{Pool: display, GuaranteedIndex: idx}, nil
}

// FixedSelection wraps a pre-ordered pool whose first entry is the winner.
func FixedSelection(rewards []models.Reward, size int) models.OutcomeSelection {
	pool, _ := Normalize(rewards, 0, size)
	pool[0].Featured = true
	return models.OutcomeSelection{Pool: pool, GuaranteedIndex: 0, IsFallback: true}
}

// Normalize returns a pool of exactly size rewards and the winner's index in
// it. Short pools are padded by cycling the other candidates, or with
// placeholders when there are none; long pools are truncated with the winner
// kept in the last slot if it would have been cut.
func Normalize(candidates []models.Reward, winner, size int) ([]models.Reward, int) {
	pool := make([]models.Reward, 0, size)
	if len(candidates) >= size {
		pool = append(pool, candidates[:size]...)
		if winner >= size {
			pool[size-1] = candidates[winner]
			winner = size - 1
		}
		return pool, winner
	}

	pool = append(pool, candidates...)
	others := make([]models.Reward, 0, len(candidates))
	for i, c := range candidates {
		if i != winner {
			others = append(others, c)
		}
	}
	for i := len(pool); i < size; i++ {
		if len(others) > 0 {
			pool = append(pool, others[(i-len(candidates))%len(others)])
			continue
		}
		pool = append(pool, placeholder(i+1))
	}
	return pool, winner
}

func placeholder(n int) models.Reward {
	return models.Reward{
		ID:   "placeholder-" + strconv.Itoa(n),
		Name: "Bonus " + strconv.Itoa(n),
		Kind: models.RewardKindPlaceholder,
	}
}

// Shuffle returns pool reordered so that out[i] = pool[perm[i]].
func Shuffle[T any](pool []T, perm []int) ([]T, error) {
	if len(perm) != len(pool) {
		return nil, fmt.Errorf("permutation of %d for pool of %d", len(perm), len(pool))
	}
	seen := make([]bool, len(pool))
	out := make([]T, len(pool))
	for i, p := range perm {
		if p < 0 || p >= len(pool) || seen[p] {
			return nil, fmt.Errorf("invalid permutation %v", perm)
		}
		seen[p] = true
		out[i] = pool[p]
	}
	return out, nil
}

// Locate returns the index of the first element matching pred, or -1.
func Locate[T any](pool []T, pred func(T) bool) int {
	if pred == nil {
		return -1
	}
	for i, v := range pool {
		if pred(v) {
			return i
		}
	}
	return -1
}

// RandomExtraSpins picks the cosmetic number of full turns.
func RandomExtraSpins() int {
	return MinExtraSpins + rand.IntN(MaxExtraSpins-MinExtraSpins+1)
}

// ResolvePresentation plans a clockwise spin from startRotation that stops
// with the centre of the guaranteed sector under the pointer. extraSpins only
// adds whole turns.
func ResolvePresentation(sel models.OutcomeSelection, startRotation float64, extraSpins int, duration time.Duration) (models.PresentationPlan, error) {
	if err := validateSelection(sel); err != nil {
		return models.PresentationPlan{}, err
	}
	extraSpins = min(max(extraSpins, MinExtraSpins), MaxExtraSpins)
	if duration <= 0 {
		duration = DefaultSpinDuration
	}

	n := len(sel.Pool)
	sector := 360.0 / float64(n)
	center := float64(sel.GuaranteedIndex)*sector + sector/2
	needed := normalizeDegrees(PointerAngle - center - startRotation)
	if needed == 0 {
		needed = 360
	}
	return models.PresentationPlan{
		SectorCount:    n,
		SectorAngle:    sector,
		PointerAngle:   PointerAngle,
		StartRotation:  startRotation,
		TargetRotation: startRotation + float64(extraSpins)*360 + needed,
		ExtraSpins:     extraSpins,
		Duration:       duration,
		LandingIndex:   sel.GuaranteedIndex,
	}, nil
}

// SectorAt reports which sector of an n-sector wheel sits under the pointer
// after rotating by rotation degrees.
func SectorAt(rotation float64, n int) int {
	if n <= 0 {
		return -1
	}
	sector := 360.0 / float64(n)
	relative := normalizeDegrees(PointerAngle - normalizeDegrees(rotation))
	return int(math.Floor(relative/sector)) % n
}

// ResolveOutcome returns the guaranteed reward. When the reported end state
// points at a different sector the guaranteed index still wins; the second
// return value flags that override.
func (s *GuaranteedOutcomeSelector) ResolveOutcome(sel models.OutcomeSelection, state models.PresentationState) (models.Reward, bool, error) {
	if err := validateSelection(sel); err != nil {
		return models.Reward{}, false, err
	}
	landed := SectorAt(state.FinalRotation, len(sel.Pool))
	if landed != sel.GuaranteedIndex {
		s.overrides.Add(1)
		log.Warn().
			Int("landed", landed).
			Int("guaranteed", sel.GuaranteedIndex).
			Float64("rotation", state.FinalRotation).
			Msg("⚠️ presentation landed off the guaranteed sector, overriding")
		return sel.Guaranteed(), true, nil
	}
	return sel.Guaranteed(), false, nil
}

// Overrides counts ResolveOutcome calls that had to override the presentation.
func (s *GuaranteedOutcomeSelector) Overrides() int64 {
	return s.overrides.Load()
}

func validateSelection(sel models.OutcomeSelection) error {
	if len(sel.Pool) == 0 || sel.GuaranteedIndex < 0 || sel.GuaranteedIndex >= len(sel.Pool) {
		return fmt.Errorf("%w: index %d of %d", ErrInvalidSelection, sel.GuaranteedIndex, len(sel.Pool))
	}
	return nil
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
