package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateTierProposalRequest struct {
	RequestedTier string `json:"requested_tier" binding:"required,oneof=GOLD PLATINUM DIAMOND"`
	Reason        string `json:"reason"`
}

type RejectTierProposalRequest struct {
	Reason string `json:"reason"`
}

type TierProposalFilter struct {
	Status string
	Page   int
	Limit  int
}

type TierProposalResponse struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	Username        string  `json:"username,omitempty"`
	CurrentTier     string  `json:"current_tier"`
	RequestedTier   string  `json:"requested_tier"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	ReviewedBy      *string `json:"reviewed_by"`
	ReviewedAt      *string `json:"reviewed_at"`
	RejectionReason string  `json:"rejection_reason"`
	CreatedAt       string  `json:"created_at"`
}

// --- Interface ---

type TierService interface {
	CreateProposal(ctx context.Context, actor Actor, req CreateTierProposalRequest) (TierProposalResponse, error)
	ListProposals(ctx context.Context, filter TierProposalFilter) ([]TierProposalResponse, int64, error)
	ApproveProposal(ctx context.Context, id string, actor Actor) (TierProposalResponse, error)
	RejectProposal(ctx context.Context, id string, actor Actor, reason string) (TierProposalResponse, error)
}

type tierService struct {
	tierRepo  repository.TierProposalRepository
	userRepo  repository.UserRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
}

func NewTierService(
	tierRepo repository.TierProposalRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) TierService {
	return &tierService{
		tierRepo:  tierRepo,
		userRepo:  userRepo,
		auditRepo: auditRepo,
		txManager: txManager,
	}
}

// --- Implementation ---

func (s *tierService) CreateProposal(ctx context.Context, actor Actor, req CreateTierProposalRequest) (TierProposalResponse, error) {
	user, err := s.userRepo.GetByID(ctx, actor.ID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TierProposalResponse{}, ErrNotFound
		}
		return TierProposalResponse{}, fmt.Errorf("failed to load user: %w", err)
	}

	if req.RequestedTier == user.Tier {
		return TierProposalResponse{}, validationErr("account is already on the %s tier", user.Tier)
	}

	pending, err := s.tierRepo.HasPendingForUser(ctx, user.ID)
	if err != nil {
		return TierProposalResponse{}, fmt.Errorf("failed to check pending proposals: %w", err)
	}
	if pending {
		return TierProposalResponse{}, validationErr("a tier proposal is already pending for this account")
	}

	proposal := &model.TierProposal{
		UserID:        user.ID,
		CurrentTier:   user.Tier,
		RequestedTier: req.RequestedTier,
		Reason:        req.Reason,
		Status:        model.TierProposalPending,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.tierRepo.Create(txCtx, proposal); createErr != nil {
			return fmt.Errorf("failed to create tier proposal: %w", createErr)
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"current_tier":   proposal.CurrentTier,
			"requested_tier": proposal.RequestedTier,
		})
		audit := model.AuditLog{
			ActorID:   &user.ID,
			ActorRole: user.Role,
			Action:    model.ActionTierProposed,
			Entity:    "tier_proposal",
			EntityID:  proposal.ID.String(),
			Meta:      string(meta),
		}
		return s.auditRepo.Log(txCtx, &audit)
	})
	if err != nil {
		return TierProposalResponse{}, err
	}

	return toTierProposalResponse(proposal), nil
}

func (s *tierService) ListProposals(ctx context.Context, filter TierProposalFilter) ([]TierProposalResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	proposals, total, err := s.tierRepo.List(ctx, filter.Status, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tier proposals: %w", err)
	}

	result := make([]TierProposalResponse, 0, len(proposals))
	for i := range proposals {
		result = append(result, toTierProposalResponse(&proposals[i]))
	}
	return result, total, nil
}

func (s *tierService) ApproveProposal(ctx context.Context, id string, actor Actor) (TierProposalResponse, error) {
	return s.review(ctx, id, actor, model.TierProposalApproved, "")
}

func (s *tierService) RejectProposal(ctx context.Context, id string, actor Actor, reason string) (TierProposalResponse, error) {
	return s.review(ctx, id, actor, model.TierProposalRejected, reason)
}

// review resolves a pending proposal. Approval applies the requested tier
// to the user account in the same transaction.
func (s *tierService) review(ctx context.Context, id string, actor Actor, decision string, reason string) (TierProposalResponse, error) {
	if actor.Role != model.RoleAdmin {
		return TierProposalResponse{}, ErrForbidden
	}

	proposalID, err := uuid.Parse(id)
	if err != nil {
		return TierProposalResponse{}, validationErr("invalid proposal id %q", id)
	}

	var proposal *model.TierProposal
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		proposal, findErr = s.tierRepo.FindByID(txCtx, proposalID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load tier proposal: %w", findErr)
		}

		if proposal.Status != model.TierProposalPending {
			return validationErr("tier proposal is already %s", proposal.Status)
		}

		now := time.Now()
		proposal.Status = decision
		proposal.ReviewedBy = &actor.ID
		proposal.ReviewedAt = &now
		proposal.RejectionReason = reason

		if saveErr := s.tierRepo.Update(txCtx, proposal); saveErr != nil {
			return fmt.Errorf("failed to update tier proposal: %w", saveErr)
		}

		action := model.ActionTierRejected
		if decision == model.TierProposalApproved {
			action = model.ActionTierApproved

			user, userErr := s.userRepo.GetByID(txCtx, proposal.UserID.String())
			if userErr != nil {
				return fmt.Errorf("failed to load proposal user: %w", userErr)
			}
			user.Tier = proposal.RequestedTier
			if saveErr := s.userRepo.Update(txCtx, user); saveErr != nil {
				return fmt.Errorf("failed to apply tier: %w", saveErr)
			}
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"current_tier":   proposal.CurrentTier,
			"requested_tier": proposal.RequestedTier,
			"decision":       decision,
			"reason":         reason,
		})
		audit := model.AuditLog{
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Action:    action,
			Entity:    "tier_proposal",
			EntityID:  proposal.ID.String(),
			Meta:      string(meta),
		}
		return s.auditRepo.Log(txCtx, &audit)
	})
	if err != nil {
		return TierProposalResponse{}, err
	}

	return toTierProposalResponse(proposal), nil
}

// --- Helpers ---

func toTierProposalResponse(p *model.TierProposal) TierProposalResponse {
	resp := TierProposalResponse{
		ID:              p.ID.String(),
		UserID:          p.UserID.String(),
		CurrentTier:     p.CurrentTier,
		RequestedTier:   p.RequestedTier,
		Reason:          p.Reason,
		Status:          p.Status,
		RejectionReason: p.RejectionReason,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}

	if p.User != nil {
		resp.Username = p.User.Username
	}
	if p.ReviewedBy != nil {
		s := p.ReviewedBy.String()
		resp.ReviewedBy = &s
	}
	if p.ReviewedAt != nil {
		s := p.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &s
	}

	return resp
}
