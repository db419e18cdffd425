// services/fallback_catalog.go
package services

import (
	_ "embed"
	"fmt"
	"os"

	"game-rewards-system/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed fallback_catalog.yaml
var defaultFallbackCatalog []byte

// FallbackCatalog maps a feature key to its pre-ordered fallback rewards.
type FallbackCatalog map[string][]models.Reward

type fallbackEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Kind        string `yaml:"kind"`
	Brand       string `yaml:"brand"`
	LogoURL     string `yaml:"logo_url"`
	Amount      string `yaml:"amount"`
	Percent     string `yaml:"percent"`
}

// LoadFallbackCatalog reads path, or the built-in catalog when path is empty.
func LoadFallbackCatalog(path string) (FallbackCatalog, error) {
	if path == "" {
		return ParseFallbackCatalog(defaultFallbackCatalog)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback catalog: %w", err)
	}
	return ParseFallbackCatalog(raw)
}

func ParseFallbackCatalog(raw []byte) (FallbackCatalog, error) {
	var doc map[string][]fallbackEntry
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse fallback catalog: %w", err)
	}
	catalog := make(FallbackCatalog, len(doc))
	for feature, entries := range doc {
		rewards := make([]models.Reward, 0, len(entries))
		for _, e := range entries {
			r, err := e.toReward()
			if err != nil {
				return nil, fmt.Errorf("fallback %s/%s: %w", feature, e.ID, err)
			}
			rewards = append(rewards, r)
		}
		catalog[NormalizeFeatureKey(feature)] = rewards
	}
	return catalog, nil
}

// For returns the fallback set of a feature, falling back to a single
// encouragement reward for features the catalog does not know.
func (c FallbackCatalog) For(featureKey string) []models.Reward {
	if rewards := c[featureKey]; len(rewards) > 0 {
		return cloneRewards(rewards)
	}
	return []models.Reward{{
		ID:   "encouragement",
		Name: "Keep Playing!",
		Kind: models.RewardKindEncouragement,
	}}
}

func (e fallbackEntry) toReward() (models.Reward, error) {
	if e.ID == "" {
		return models.Reward{}, fmt.Errorf("missing id")
	}
	r := models.Reward{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Kind:        models.RewardKind(e.Kind),
	}
	if r.Kind == "" {
		r.Kind = models.RewardKindBonus
	}
	if e.Brand != "" {
		r.Brand = &models.Brand{Name: e.Brand, LogoURL: e.LogoURL}
		r.LogoURL = e.LogoURL
	}
	switch {
	case e.Percent != "":
		d, err := decimal.NewFromString(e.Percent)
		if err != nil {
			return models.Reward{}, err
		}
		r.MonetaryHint = &models.MonetaryHint{Amount: d, Unit: models.HintUnitPercent}
	case e.Amount != "":
		d, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return models.Reward{}, err
		}
		r.MonetaryHint = &models.MonetaryHint{Amount: d, Unit: models.HintUnitCoins}
	}
	return r, nil
}
