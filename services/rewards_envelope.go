// services/rewards_envelope.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"game-rewards-system/models"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// remoteReward mirrors one catalog entry of the rewards service.
type remoteReward struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	Type               string           `json:"type"`
	Category           string           `json:"category"`
	GiftCard           bool             `json:"giftCard"`
	IsGiftCard         bool             `json:"isGiftCard"`
	DiscountPercentage *decimal.Decimal `json:"discountPercentage"`
	Discount           *decimal.Decimal `json:"discount"`
	Amount             *decimal.Decimal `json:"amount"`
	Metadata           struct {
		BrandName      string `json:"brandName"`
		BrandLogoImage string `json:"brandLogoImage"`
	} `json:"metadata"`
}

// DecodeRewards accepts the three envelope shapes the service is known to
// return, tried in order: {data:{data:[...]}}, {data:[...]} and a bare array.
func DecodeRewards(body []byte) ([]models.Reward, error) {
	list, ok := unwrapList(body)
	if !ok {
		return nil, fmt.Errorf("%w: no reward list in envelope", ErrMalformedResponse)
	}
	var raw []remoteReward
	if err := json.Unmarshal(list, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rewards := make([]models.Reward, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			continue
		}
		rewards = append(rewards, r.toReward())
	}
	return rewards, nil
}

func unwrapList(body []byte) (json.RawMessage, bool) {
	body = bytes.TrimSpace(body)
	if isArray(body) {
		return body, true
	}
	var outer struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &outer); err != nil || len(outer.Data) == 0 {
		return nil, false
	}
	if isArray(outer.Data) {
		return outer.Data, true
	}
	var inner struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(outer.Data, &inner); err != nil {
		return nil, false
	}
	if isArray(inner.Data) {
		return inner.Data, true
	}
	return nil, false
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func (r remoteReward) toReward() models.Reward {
	out := models.Reward{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Kind:        r.kind(),
	}
	if out.Name == "" {
		out.Name = r.Title
	}
	if r.Metadata.BrandName != "" || r.Metadata.BrandLogoImage != "" {
		out.Brand = &models.Brand{Name: r.Metadata.BrandName, LogoURL: r.Metadata.BrandLogoImage}
		out.LogoURL = r.Metadata.BrandLogoImage
	}
	switch {
	case r.DiscountPercentage != nil:
		out.MonetaryHint = &models.MonetaryHint{Amount: *r.DiscountPercentage, Unit: models.HintUnitPercent}
	case r.Discount != nil:
		out.MonetaryHint = &models.MonetaryHint{Amount: *r.Discount, Unit: models.HintUnitPercent}
	case r.Amount != nil && out.Kind == models.RewardKindCoins:
		out.MonetaryHint = &models.MonetaryHint{Amount: *r.Amount, Unit: models.HintUnitCoins}
	}
	return out
}

func (r remoteReward) kind() models.RewardKind {
	if r.GiftCard || r.IsGiftCard {
		return models.RewardKindGiftCard
	}
	label := strings.ToLower(r.Type + " " + r.Category)
	switch {
	case strings.Contains(label, "gift"):
		return models.RewardKindGiftCard
	case strings.Contains(label, "discount"):
		return models.RewardKindDiscount
	case strings.Contains(label, "coupon"):
		return models.RewardKindCoupon
	case strings.Contains(label, "coin"):
		return models.RewardKindCoins
	case strings.Contains(label, "bonus"):
		return models.RewardKindBonus
	}
	return models.RewardKindCoupon
}

// DecodeReceipt pulls the coupon code and purchase id out of a purchase
// response. Both may sit at the top level or under data. The purchase went
// through once the service answered 2xx, so a body that is not an object
// yields a receipt without code.
func DecodeReceipt(body []byte, idempotencyKey string) *models.PurchaseReceipt {
	type fields struct {
		ID         string `json:"id"`
		PurchaseID string `json:"purchaseId"`
		CouponCode string `json:"couponCode"`
		Code       string `json:"code"`
	}
	var resp struct {
		fields
		Data *fields `json:"data"`
	}
	receipt := &models.PurchaseReceipt{IdempotencyKey: idempotencyKey}
	if err := json.Unmarshal(body, &resp); err != nil {
		if len(bytes.TrimSpace(body)) > 0 {
			log.Debug().Err(err).Str("idempotency_key", idempotencyKey).Msg("purchase response carries no receipt fields")
		}
		return receipt
	}
	candidates := []fields{resp.fields}
	if resp.Data != nil {
		candidates = append(candidates, *resp.Data)
	}
	for _, f := range candidates {
		receipt.CouponCode = firstNonEmpty(receipt.CouponCode, f.CouponCode, f.Code)
		receipt.PurchaseID = firstNonEmpty(receipt.PurchaseID, f.ID, f.PurchaseID)
	}
	return receipt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
