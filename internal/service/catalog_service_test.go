package service

import (
	"context"
	"testing"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogEnv struct {
	store *memStore
	cache *fakeCache
	svc   CatalogService
}

func newCatalogEnv() *catalogEnv {
	store := newMemStore()
	c := newFakeCache()
	return &catalogEnv{
		store: store,
		cache: c,
		svc: NewCatalogService(
			&fakeProductRepo{s: store},
			&fakeAuditRepo{s: store},
			fakeTxManager{},
			c,
		),
	}
}

func seedCatalogProduct(store *memStore) *model.Product {
	return store.seedProduct(model.Product{
		Name:          "Premium Flower",
		Category:      "flower",
		PriceGold:     decimal.NewFromInt(100),
		PricePlatinum: decimal.NewFromInt(90),
		PriceDiamond:  decimal.NewFromInt(80),
		IsActive:      true,
		Variants: []model.ProductVariant{
			{Subcategory: "OG Kush", SKU: "FLW-OGK", IsActive: true},
		},
	})
}

func TestListProductsResolvesTierPricing(t *testing.T) {
	env := newCatalogEnv()
	seedCatalogProduct(env.store)

	diamond, _, err := env.svc.ListProducts(context.Background(), CatalogFilter{Tier: model.TierDiamond})
	require.NoError(t, err)
	require.Len(t, diamond, 1)
	assert.Equal(t, "80.00", diamond[0].Price)
	assert.Nil(t, diamond[0].TierPrices, "customers never see the full tier grid")

	// Anonymous browsers fall back to the entry tier
	anon, _, err := env.svc.ListProducts(context.Background(), CatalogFilter{})
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.Equal(t, "100.00", anon[0].Price)
}

func TestListProductsServesFromCache(t *testing.T) {
	env := newCatalogEnv()
	seedCatalogProduct(env.store)

	_, _, err := env.svc.ListProducts(context.Background(), CatalogFilter{Tier: model.TierGold})
	require.NoError(t, err)
	assert.Equal(t, 1, env.cache.sets)
	assert.Zero(t, env.cache.hits)

	_, _, err = env.svc.ListProducts(context.Background(), CatalogFilter{Tier: model.TierGold})
	require.NoError(t, err)
	assert.Equal(t, 1, env.cache.hits)

	// Different tier resolves to a different cache entry
	_, _, err = env.svc.ListProducts(context.Background(), CatalogFilter{Tier: model.TierDiamond})
	require.NoError(t, err)
	assert.Equal(t, 2, env.cache.sets)
}

func TestProductMutationInvalidatesListings(t *testing.T) {
	env := newCatalogEnv()
	product := seedCatalogProduct(env.store)
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}

	_, _, err := env.svc.ListProducts(context.Background(), CatalogFilter{Tier: model.TierGold})
	require.NoError(t, err)
	require.NotEmpty(t, env.cache.entries)

	newPrice := decimal.NewFromInt(110)
	_, err = env.svc.UpdateProduct(context.Background(), admin, product.ID.String(), UpdateProductRequest{
		PriceGold: &newPrice,
	})
	require.NoError(t, err)
	assert.Empty(t, env.cache.entries, "cached listings dropped after mutation")

	listed, _, err := env.svc.ListProducts(context.Background(), CatalogFilter{Tier: model.TierGold})
	require.NoError(t, err)
	assert.Equal(t, "110.00", listed[0].Price)
}

func TestCreateProductStaffOnly(t *testing.T) {
	env := newCatalogEnv()
	customer := Actor{ID: uuid.New(), Role: model.RoleCustomer}

	_, err := env.svc.CreateProduct(context.Background(), customer, CreateProductRequest{
		Name:          "Premium Flower",
		Category:      "flower",
		PriceGold:     decimal.NewFromInt(100),
		PricePlatinum: decimal.NewFromInt(90),
		PriceDiamond:  decimal.NewFromInt(80),
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, env.store.products)
}

func TestCreateProductValidatesPricesAndAudits(t *testing.T) {
	env := newCatalogEnv()
	manager := Actor{ID: uuid.New(), Role: model.RoleManager}

	_, err := env.svc.CreateProduct(context.Background(), manager, CreateProductRequest{
		Name:          "Freebie",
		Category:      "flower",
		PriceGold:     decimal.Zero,
		PricePlatinum: decimal.NewFromInt(90),
		PriceDiamond:  decimal.NewFromInt(80),
	})
	assert.ErrorIs(t, err, ErrValidation)

	created, err := env.svc.CreateProduct(context.Background(), manager, CreateProductRequest{
		Name:          "Premium Flower",
		Category:      "flower",
		PriceGold:     decimal.NewFromInt(100),
		PricePlatinum: decimal.NewFromInt(90),
		PriceDiamond:  decimal.NewFromInt(80),
		Variants:      []VariantRequest{{Subcategory: "OG Kush", SKU: "FLW-OGK"}},
	})
	require.NoError(t, err)

	assert.Len(t, created.Variants, 1)
	require.NotNil(t, created.TierPrices, "staff responses carry the full tier grid")
	assert.Equal(t, "90.00", created.TierPrices[model.TierPlatinum])
	assert.Equal(t, 1, env.store.auditCount(model.ActionCreateProduct))
}

func TestGetProductUnknownTierFallsBackToGold(t *testing.T) {
	env := newCatalogEnv()
	product := seedCatalogProduct(env.store)

	got, err := env.svc.GetProduct(context.Background(), product.ID.String(), "BRONZE")
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Price)
}

func TestDeleteProductAudits(t *testing.T) {
	env := newCatalogEnv()
	product := seedCatalogProduct(env.store)
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}

	err := env.svc.DeleteProduct(context.Background(), admin, product.ID.String())
	require.NoError(t, err)
	assert.Empty(t, env.store.products)
	assert.Equal(t, 1, env.store.auditCount(model.ActionDeleteProduct))
}
