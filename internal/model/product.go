package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog item with per-tier wholesale pricing.
// ImageURL points at the CDN object; upload mechanics live outside this service.
type Product struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name          string           `gorm:"type:varchar(255);not null" json:"name"`
	Category      string           `gorm:"type:varchar(100);not null;index" json:"category"`
	Description   string           `gorm:"type:text" json:"description"`
	ImageURL      string           `gorm:"type:text" json:"image_url"`
	PriceGold     decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"price_gold"`
	PricePlatinum decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"price_platinum"`
	PriceDiamond  decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"price_diamond"`
	IsActive      bool             `gorm:"default:true" json:"is_active"`
	Variants      []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"variants"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeletedAt     gorm.DeletedAt   `gorm:"index" json:"-"`
}

// PriceForTier returns the unit price for a pricing tier.
// Unknown tiers fall back to GOLD, the entry tier.
func (p *Product) PriceForTier(tier string) decimal.Decimal {
	switch tier {
	case TierDiamond:
		return p.PriceDiamond
	case TierPlatinum:
		return p.PricePlatinum
	default:
		return p.PriceGold
	}
}

// ProductVariant is a sellable variation of a product. Subcategory carries
// the strain label that order items denormalize and must match exactly.
type ProductVariant struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	Subcategory string    `gorm:"type:varchar(100);not null" json:"subcategory"`
	SKU         string    `gorm:"type:varchar(100);uniqueIndex" json:"sku"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
