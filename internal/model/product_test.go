package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceForTier(t *testing.T) {
	p := Product{
		PriceGold:     decimal.NewFromInt(100),
		PricePlatinum: decimal.NewFromInt(90),
		PriceDiamond:  decimal.NewFromInt(80),
	}

	assert.True(t, p.PriceForTier(TierGold).Equal(decimal.NewFromInt(100)))
	assert.True(t, p.PriceForTier(TierPlatinum).Equal(decimal.NewFromInt(90)))
	assert.True(t, p.PriceForTier(TierDiamond).Equal(decimal.NewFromInt(80)))

	// Unknown tiers resolve to the entry tier
	assert.True(t, p.PriceForTier("").Equal(decimal.NewFromInt(100)))
	assert.True(t, p.PriceForTier("BRONZE").Equal(decimal.NewFromInt(100)))
}

func TestIsValidTier(t *testing.T) {
	assert.True(t, IsValidTier(TierGold))
	assert.True(t, IsValidTier(TierPlatinum))
	assert.True(t, IsValidTier(TierDiamond))
	assert.False(t, IsValidTier("gold"))
	assert.False(t, IsValidTier("BRONZE"))
}
