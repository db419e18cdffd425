// models/reward.go
package models

import (
	"strings"

	"github.com/gosimple/unidecode"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// RewardKind is the tagged variant of a candidate prize
type RewardKind string

const (
	RewardKindGiftCard      RewardKind = "gift_card"
	RewardKindDiscount      RewardKind = "discount"
	RewardKindCoupon        RewardKind = "coupon"
	RewardKindCoins         RewardKind = "coins"
	RewardKindBonus         RewardKind = "bonus"
	RewardKindEncouragement RewardKind = "encouragement"
	RewardKindPlaceholder   RewardKind = "placeholder"
)

// HintUnit tells how a MonetaryHint amount should be read
type HintUnit string

const (
	HintUnitPercent HintUnit = "percent"
	HintUnitCoins   HintUnit = "coins"
)

// Brand carries display metadata for branded rewards.
type Brand struct {
	Name    string `json:"name" yaml:"name"`
	LogoURL string `json:"logo_url,omitempty" yaml:"logo_url"`
}

// MonetaryHint is a discount percentage or a coin amount.
type MonetaryHint struct {
	Amount decimal.Decimal `json:"amount" yaml:"amount"`
	Unit   HintUnit        `json:"unit" yaml:"unit"`
}

// Reward is a candidate prize, either fetched from the rewards service or
// synthesized locally as a fallback or placeholder.
type Reward struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description"`
	Kind         RewardKind    `json:"kind" yaml:"kind"`
	Brand        *Brand        `json:"brand,omitempty" yaml:"brand"`
	MonetaryHint *MonetaryHint `json:"monetary_hint,omitempty" yaml:"monetary_hint"`

	// UI-only annotations
	LogoURL  string `json:"logo_url,omitempty" yaml:"-"`
	Featured bool   `json:"featured,omitempty" yaml:"-"`
}

// BrandName returns the brand name or "" for unbranded rewards.
func (r Reward) BrandName() string {
	if r.Brand == nil {
		return ""
	}
	return r.Brand.Name
}

// RewardMatcher identifies the reward(s) that must win a selection.
type RewardMatcher func(Reward) bool

// MatchKind matches rewards of any of the given kinds.
func MatchKind(kinds ...RewardKind) RewardMatcher {
	return func(r Reward) bool {
		for _, k := range kinds {
			if r.Kind == k {
				return true
			}
		}
		return false
	}
}

// MatchBrand matches by brand name, ignoring case and accents.
func MatchBrand(name string) RewardMatcher {
	want := foldBrand(name)
	return func(r Reward) bool {
		return want != "" && foldBrand(r.BrandName()) == want
	}
}

// MatchAny matches every reward that is not a placeholder.
func MatchAny() RewardMatcher {
	return func(r Reward) bool { return r.Kind != RewardKindPlaceholder }
}

func foldBrand(name string) string {
	return cases.Fold().String(strings.TrimSpace(unidecode.Unidecode(name)))
}
