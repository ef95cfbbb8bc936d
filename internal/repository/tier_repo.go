package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TierProposalRepository interface {
	Create(ctx context.Context, proposal *model.TierProposal) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.TierProposal, error)
	HasPendingForUser(ctx context.Context, userID uuid.UUID) (bool, error)
	List(ctx context.Context, status string, page, limit int) ([]model.TierProposal, int64, error)
	Update(ctx context.Context, proposal *model.TierProposal) error
}

type tierProposalRepository struct {
	db *gorm.DB
}

func NewTierProposalRepository(db *gorm.DB) TierProposalRepository {
	return &tierProposalRepository{db: db}
}

func (r *tierProposalRepository) Create(ctx context.Context, proposal *model.TierProposal) error {
	return GetDB(ctx, r.db).Create(proposal).Error
}

func (r *tierProposalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.TierProposal, error) {
	var proposal model.TierProposal
	if err := GetDB(ctx, r.db).Preload("User").First(&proposal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (r *tierProposalRepository) HasPendingForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.TierProposal{}).
		Where("user_id = ? AND status = ?", userID, model.TierProposalPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tierProposalRepository) List(ctx context.Context, status string, page, limit int) ([]model.TierProposal, int64, error) {
	var proposals []model.TierProposal
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.TierProposal{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	fetchQuery := db.Preload("User").Preload("Reviewer")
	if status != "" {
		fetchQuery = fetchQuery.Where("status = ?", status)
	}
	if err := fetchQuery.Order("created_at desc").Offset(offset).Limit(limit).Find(&proposals).Error; err != nil {
		return nil, 0, err
	}

	return proposals, total, nil
}

func (r *tierProposalRepository) Update(ctx context.Context, proposal *model.TierProposal) error {
	return GetDB(ctx, r.db).Save(proposal).Error
}
