// services/features.go
package services

import (
	"time"

	"game-rewards-system/models"

	"github.com/gosimple/slug"
)

const (
	FeatureDaily         = "daily"
	FeatureDeathDiscount = "death-discount"
	FeatureTreasureChest = "treasure-chest"

	DefaultDeathDiscountCooldown = 30 * time.Second
)

// FeaturePolicy describes how one claim feature fetches and picks rewards.
type FeaturePolicy struct {
	Key       string
	MaxClaims int
	Cooldown  time.Duration
	PoolSize  int
	Matcher   models.RewardMatcher
	// Sources are fetched concurrently and concatenated in this order.
	Sources []models.RewardFilter
}

// PolicyOptions tunes the built-in policies.
type PolicyOptions struct {
	MaxClaims             int
	PoolSize              int
	DeathDiscountCooldown time.Duration
	TreasureChestCooldown time.Duration
	DailyGuaranteedBrand  string
}

// DefaultPolicies returns the daily, death-discount and treasure-chest policies.
func DefaultPolicies(opts PolicyOptions) []FeaturePolicy {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	daily := models.MatchKind(models.RewardKindGiftCard)
	if opts.DailyGuaranteedBrand != "" {
		daily = models.MatchBrand(opts.DailyGuaranteedBrand)
	}
	return []FeaturePolicy{
		{
			Key:       FeatureDaily,
			MaxClaims: opts.MaxClaims,
			PoolSize:  opts.PoolSize,
			Matcher:   daily,
			Sources: []models.RewardFilter{
				{IsGiftCard: models.GiftCards(true), Limit: 1},
				{IsGiftCard: models.GiftCards(false), Limit: opts.PoolSize - 1},
			},
		},
		{
			Key:       FeatureDeathDiscount,
			MaxClaims: opts.MaxClaims,
			Cooldown:  opts.DeathDiscountCooldown,
			PoolSize:  opts.PoolSize,
			Matcher:   models.MatchKind(models.RewardKindDiscount, models.RewardKindCoupon),
			Sources: []models.RewardFilter{
				{IsGiftCard: models.GiftCards(false), Limit: 10, SortBy: "price:low-high"},
			},
		},
		{
			Key:       FeatureTreasureChest,
			MaxClaims: opts.MaxClaims,
			Cooldown:  opts.TreasureChestCooldown,
			PoolSize:  3,
			Matcher:   models.MatchAny(),
			Sources:   []models.RewardFilter{{Limit: 10}},
		},
	}
}

// NormalizeFeatureKey turns labels such as "Death Discount" into "death-discount".
func NormalizeFeatureKey(key string) string {
	return slug.Make(key)
}
