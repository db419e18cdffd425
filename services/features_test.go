package services

import (
	"os"
	"path/filepath"
	"testing"

	"game-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFeatureKey(t *testing.T) {
	assert.Equal(t, "death-discount", NormalizeFeatureKey("Death Discount"))
	assert.Equal(t, "treasure-chest", NormalizeFeatureKey("Treasure Chest"))
	assert.Equal(t, "daily", NormalizeFeatureKey("DAILY"))
}

func TestDefaultPolicies(t *testing.T) {
	policies := DefaultPolicies(PolicyOptions{DeathDiscountCooldown: DefaultDeathDiscountCooldown})
	require.Len(t, policies, 3)

	daily := policies[0]
	assert.Equal(t, FeatureDaily, daily.Key)
	assert.Zero(t, daily.Cooldown)
	require.Len(t, daily.Sources, 2)
	assert.Equal(t, 5, daily.Sources[1].Limit)
	assert.True(t, daily.Matcher(models.Reward{Kind: models.RewardKindGiftCard}))

	assert.Equal(t, DefaultDeathDiscountCooldown, policies[1].Cooldown)
	assert.Equal(t, 3, policies[2].PoolSize)

	branded := DefaultPolicies(PolicyOptions{DailyGuaranteedBrand: "Flipkart"})[0]
	assert.True(t, branded.Matcher(models.Reward{ID: "x", Brand: &models.Brand{Name: "FLIPKART"}}))
	assert.False(t, branded.Matcher(models.Reward{ID: "y", Kind: models.RewardKindGiftCard}))
}

func TestFallbackCatalog(t *testing.T) {
	catalog, err := LoadFallbackCatalog("")
	require.NoError(t, err)
	for _, feature := range []string{FeatureDaily, FeatureDeathDiscount, FeatureTreasureChest} {
		assert.NotEmpty(t, catalog.For(feature), feature)
	}

	daily := catalog.For(FeatureDaily)
	assert.Equal(t, models.RewardKindGiftCard, daily[0].Kind)
	require.NotNil(t, daily[1].MonetaryHint)
	assert.Equal(t, "50", daily[1].MonetaryHint.Amount.String())

	unknown := catalog.For("jackpot")
	require.Len(t, unknown, 1)
	assert.Equal(t, models.RewardKindEncouragement, unknown[0].Kind)
}

func TestLoadFallbackCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.yaml")
	raw := "Death Discount:\n  - id: dd-1\n    name: 5% Off\n    kind: discount\n    percent: \"5\"\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	catalog, err := LoadFallbackCatalog(path)
	require.NoError(t, err)
	rewards := catalog.For(FeatureDeathDiscount)
	require.Len(t, rewards, 1)
	assert.Equal(t, models.HintUnitPercent, rewards[0].MonetaryHint.Unit)

	_, err = ParseFallbackCatalog([]byte("daily:\n  - name: no id\n"))
	assert.Error(t, err)
	_, err = LoadFallbackCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
