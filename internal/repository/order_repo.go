package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderUpdate carries the mutable order fields applied by the lifecycle
// coordinator in a single versioned write.
type OrderUpdate struct {
	Status        string
	Notes         string
	LastActorID   *uuid.UUID
	LastActorRole string
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.OrderRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.OrderRequest, error)
	FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*model.OrderRequest, error)
	UpdateVersioned(ctx context.Context, id uuid.UUID, version int, update OrderUpdate) (bool, error)
	List(ctx context.Context, userID *uuid.UUID, status string, page, limit int) ([]model.OrderRequest, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.OrderRequest) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.OrderRequest, error) {
	var order model.OrderRequest
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*model.OrderRequest, error) {
	var order model.OrderRequest
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Items.Product").
		Preload("Invoice").
		Preload("User").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateVersioned applies the update only if the stored row still carries the
// version the caller read. Returns false when another writer got there first.
func (r *orderRepository) UpdateVersioned(ctx context.Context, id uuid.UUID, version int, update OrderUpdate) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.OrderRequest{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"status":          update.Status,
			"notes":           update.Notes,
			"last_actor_id":   update.LastActorID,
			"last_actor_role": update.LastActorRole,
			"version":         version + 1,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *orderRepository) List(ctx context.Context, userID *uuid.UUID, status string, page, limit int) ([]model.OrderRequest, int64, error) {
	var orders []model.OrderRequest
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.OrderRequest{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetchQuery := db.Preload("Items").Preload("Invoice").Preload("User")
	if userID != nil {
		fetchQuery = fetchQuery.Where("user_id = ?", *userID)
	}
	if status != "" {
		fetchQuery = fetchQuery.Where("status = ?", status)
	}
	if err := fetchQuery.
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *orderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.OrderRequest{}).Error
}
