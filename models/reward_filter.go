// models/reward_filter.go
package models

import (
	"net/url"
	"strconv"
)

// RewardFilter narrows a catalog fetch. Zero values are omitted from the query.
type RewardFilter struct {
	Category   string `json:"category,omitempty"`
	Brand      string `json:"brand,omitempty"`
	IsGiftCard *bool  `json:"is_gift_card,omitempty"`
	Country    string `json:"country,omitempty"`
	Limit      int    `json:"limit"`
	Page       int    `json:"page,omitempty"`
	SortBy     string `json:"sort_by,omitempty"`
}

// GiftCards returns a pointer for RewardFilter.IsGiftCard.
func GiftCards(v bool) *bool { return &v }

// Query encodes the filter as request parameters. coinId is always present.
func (f RewardFilter) Query(coinID string) url.Values {
	q := url.Values{}
	q.Set("coinId", coinID)
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Brand != "" {
		q.Set("brand", f.Brand)
	}
	if f.IsGiftCard != nil {
		q.Set("giftCard", strconv.FormatBool(*f.IsGiftCard))
	}
	if f.Country != "" {
		q.Set("country", f.Country)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.SortBy != "" {
		q.Set("sortBy", f.SortBy)
	}
	return q
}

// Signature is the cache and coalescing key. Identical filters produce
// identical signatures regardless of field assignment order.
func (f RewardFilter) Signature() string {
	return f.Query("").Encode()
}

// Classify settles the kind of rewards served by a gift-card scoped query.
// A giftCard=true page holds only gift cards and a giftCard=false page
// never does, whatever the item payloads say.
func (f RewardFilter) Classify(rewards []Reward) {
	if f.IsGiftCard == nil {
		return
	}
	for i := range rewards {
		switch {
		case *f.IsGiftCard:
			rewards[i].Kind = RewardKindGiftCard
		case rewards[i].Kind == RewardKindGiftCard:
			rewards[i].Kind = RewardKindCoupon
		}
	}
}
