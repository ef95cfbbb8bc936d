package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"backend/internal/cache"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type VariantRequest struct {
	Subcategory string `json:"subcategory" binding:"required"`
	SKU         string `json:"sku"`
}

type CreateProductRequest struct {
	Name          string           `json:"name" binding:"required"`
	Category      string           `json:"category" binding:"required"`
	Description   string           `json:"description"`
	ImageURL      string           `json:"image_url"`
	PriceGold     decimal.Decimal  `json:"price_gold" binding:"required"`
	PricePlatinum decimal.Decimal  `json:"price_platinum" binding:"required"`
	PriceDiamond  decimal.Decimal  `json:"price_diamond" binding:"required"`
	Variants      []VariantRequest `json:"variants" binding:"dive"`
}

type UpdateProductRequest struct {
	Name          *string          `json:"name"`
	Category      *string          `json:"category"`
	Description   *string          `json:"description"`
	ImageURL      *string          `json:"image_url"`
	PriceGold     *decimal.Decimal `json:"price_gold"`
	PricePlatinum *decimal.Decimal `json:"price_platinum"`
	PriceDiamond  *decimal.Decimal `json:"price_diamond"`
	IsActive      *bool            `json:"is_active"`
}

type VariantResponse struct {
	ID          string `json:"id"`
	Subcategory string `json:"subcategory"`
	SKU         string `json:"sku,omitempty"`
}

// ProductResponse exposes a single tier-resolved price to customers; staff
// listings carry all three tiers.
type ProductResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Description string            `json:"description,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Price       string            `json:"price"`
	TierPrices  map[string]string `json:"tier_prices,omitempty"`
	Variants    []VariantResponse `json:"variants"`
}

type CatalogFilter struct {
	Category string
	Tier     string // Pricing tier of the caller; anonymous browsers get GOLD
	Page     int
	Limit    int
}

// --- Interface ---

type CatalogService interface {
	ListProducts(ctx context.Context, filter CatalogFilter) ([]ProductResponse, int64, error)
	GetProduct(ctx context.Context, id string, tier string) (ProductResponse, error)
	CreateProduct(ctx context.Context, actor Actor, req CreateProductRequest) (ProductResponse, error)
	UpdateProduct(ctx context.Context, actor Actor, id string, req UpdateProductRequest) (ProductResponse, error)
	DeleteProduct(ctx context.Context, actor Actor, id string) error
}

type catalogService struct {
	productRepo repository.ProductRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	cache       cache.Cache // nil when REDIS_ADDR is not configured
}

func NewCatalogService(
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	c cache.Cache,
) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		cache:       c,
	}
}

// --- Implementation ---

type cachedListing struct {
	Products []ProductResponse `json:"products"`
	Total    int64             `json:"total"`
}

func (s *catalogService) ListProducts(ctx context.Context, filter CatalogFilter) ([]ProductResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Tier == "" || !model.IsValidTier(filter.Tier) {
		filter.Tier = model.TierGold
	}

	key := cache.ListingKey(filter.Category, filter.Tier, filter.Page, filter.Limit)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != "" {
			var cached cachedListing
			if unmarshalErr := json.Unmarshal([]byte(raw), &cached); unmarshalErr == nil {
				return cached.Products, cached.Total, nil
			}
		}
	}

	products, total, err := s.productRepo.List(ctx, filter.Category, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	result := make([]ProductResponse, 0, len(products))
	for i := range products {
		result = append(result, toProductResponse(&products[i], filter.Tier, false))
	}

	if s.cache != nil {
		if raw, marshalErr := json.Marshal(cachedListing{Products: result, Total: total}); marshalErr == nil {
			if setErr := s.cache.Set(ctx, key, string(raw), cache.ListingTTL); setErr != nil {
				log.Printf("catalog cache set failed: %v", setErr)
			}
		}
	}

	return result, total, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id string, tier string) (ProductResponse, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, validationErr("invalid product id %q", id)
	}
	if tier == "" || !model.IsValidTier(tier) {
		tier = model.TierGold
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductResponse{}, ErrNotFound
		}
		return ProductResponse{}, fmt.Errorf("failed to load product: %w", err)
	}

	return toProductResponse(product, tier, false), nil
}

func (s *catalogService) CreateProduct(ctx context.Context, actor Actor, req CreateProductRequest) (ProductResponse, error) {
	if !actor.IsStaff() {
		return ProductResponse{}, ErrForbidden
	}

	if req.PriceGold.LessThanOrEqual(decimal.Zero) ||
		req.PricePlatinum.LessThanOrEqual(decimal.Zero) ||
		req.PriceDiamond.LessThanOrEqual(decimal.Zero) {
		return ProductResponse{}, validationErr("tier prices must be positive")
	}

	product := &model.Product{
		Name:          req.Name,
		Category:      req.Category,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		PriceGold:     req.PriceGold,
		PricePlatinum: req.PricePlatinum,
		PriceDiamond:  req.PriceDiamond,
		IsActive:      true,
	}
	for _, v := range req.Variants {
		product.Variants = append(product.Variants, model.ProductVariant{
			Subcategory: v.Subcategory,
			SKU:         v.SKU,
			IsActive:    true,
		})
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.productRepo.Create(txCtx, product); createErr != nil {
			return fmt.Errorf("failed to create product: %w", createErr)
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"name":     product.Name,
			"category": product.Category,
			"variants": len(product.Variants),
		})
		audit := model.AuditLog{
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Action:    model.ActionCreateProduct,
			Entity:    "product",
			EntityID:  product.ID.String(),
			Meta:      string(meta),
		}
		return s.auditRepo.Log(txCtx, &audit)
	})
	if err != nil {
		return ProductResponse{}, err
	}

	s.invalidateListings(ctx)
	return toProductResponse(product, model.TierGold, true), nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, actor Actor, id string, req UpdateProductRequest) (ProductResponse, error) {
	if !actor.IsStaff() {
		return ProductResponse{}, ErrForbidden
	}

	productID, err := uuid.Parse(id)
	if err != nil {
		return ProductResponse{}, validationErr("invalid product id %q", id)
	}

	var product *model.Product
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		product, findErr = s.productRepo.FindByID(txCtx, productID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load product: %w", findErr)
		}

		if req.Name != nil {
			product.Name = *req.Name
		}
		if req.Category != nil {
			product.Category = *req.Category
		}
		if req.Description != nil {
			product.Description = *req.Description
		}
		if req.ImageURL != nil {
			product.ImageURL = *req.ImageURL
		}
		if req.PriceGold != nil {
			product.PriceGold = *req.PriceGold
		}
		if req.PricePlatinum != nil {
			product.PricePlatinum = *req.PricePlatinum
		}
		if req.PriceDiamond != nil {
			product.PriceDiamond = *req.PriceDiamond
		}
		if req.IsActive != nil {
			product.IsActive = *req.IsActive
		}

		if saveErr := s.productRepo.Update(txCtx, product); saveErr != nil {
			return fmt.Errorf("failed to update product: %w", saveErr)
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"name":     product.Name,
			"category": product.Category,
		})
		audit := model.AuditLog{
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Action:    model.ActionUpdateProduct,
			Entity:    "product",
			EntityID:  product.ID.String(),
			Meta:      string(meta),
		}
		return s.auditRepo.Log(txCtx, &audit)
	})
	if err != nil {
		return ProductResponse{}, err
	}

	s.invalidateListings(ctx)
	return toProductResponse(product, model.TierGold, true), nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, actor Actor, id string) error {
	if !actor.IsStaff() {
		return ErrForbidden
	}

	productID, err := uuid.Parse(id)
	if err != nil {
		return validationErr("invalid product id %q", id)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, findErr := s.productRepo.FindByID(txCtx, productID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load product: %w", findErr)
		}

		if deleteErr := s.productRepo.Delete(txCtx, productID); deleteErr != nil {
			return fmt.Errorf("failed to delete product: %w", deleteErr)
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"name":     product.Name,
			"category": product.Category,
		})
		audit := model.AuditLog{
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Action:    model.ActionDeleteProduct,
			Entity:    "product",
			EntityID:  product.ID.String(),
			Meta:      string(meta),
		}
		return s.auditRepo.Log(txCtx, &audit)
	})
	if err != nil {
		return err
	}

	s.invalidateListings(ctx)
	return nil
}

// invalidateListings drops all cached catalog pages after a mutation.
func (s *catalogService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, "catalog:"); err != nil {
		log.Printf("catalog cache invalidation failed: %v", err)
	}
}

func toProductResponse(p *model.Product, tier string, allTiers bool) ProductResponse {
	variants := make([]VariantResponse, 0, len(p.Variants))
	for _, v := range p.Variants {
		if !v.IsActive {
			continue
		}
		variants = append(variants, VariantResponse{
			ID:          v.ID.String(),
			Subcategory: v.Subcategory,
			SKU:         v.SKU,
		})
	}

	resp := ProductResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Category:    p.Category,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Price:       p.PriceForTier(tier).StringFixed(2),
		Variants:    variants,
	}

	if allTiers {
		resp.TierPrices = map[string]string{
			model.TierGold:     p.PriceGold.StringFixed(2),
			model.TierPlatinum: p.PricePlatinum.StringFixed(2),
			model.TierDiamond:  p.PriceDiamond.StringFixed(2),
		}
	}

	return resp
}
