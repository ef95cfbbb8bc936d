package service

import (
	"context"
	"testing"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tierEnv struct {
	store *memStore
	svc   TierService
}

func newTierEnv() *tierEnv {
	store := newMemStore()
	return &tierEnv{
		store: store,
		svc: NewTierService(
			&fakeTierRepo{s: store},
			&fakeUserRepo{s: store},
			&fakeAuditRepo{s: store},
			fakeTxManager{},
		),
	}
}

func (e *tierEnv) seedCustomer(tier string) *model.User {
	return e.store.seedUser(model.User{
		Username: "buyer-" + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@example.com",
		Role:     model.RoleCustomer,
		Tier:     tier,
		Verified: true,
	})
}

func TestCreateProposal(t *testing.T) {
	env := newTierEnv()
	customer := env.seedCustomer(model.TierGold)

	proposal, err := env.svc.CreateProposal(context.Background(), actorFor(customer), CreateTierProposalRequest{
		RequestedTier: model.TierPlatinum,
		Reason:        "consistent monthly volume",
	})
	require.NoError(t, err)

	assert.Equal(t, model.TierProposalPending, proposal.Status)
	assert.Equal(t, model.TierGold, proposal.CurrentTier)
	assert.Equal(t, model.TierPlatinum, proposal.RequestedTier)
	assert.Equal(t, 1, env.store.auditCount(model.ActionTierProposed))

	// The account's tier does not move until an admin approves
	assert.Equal(t, model.TierGold, env.store.users[customer.ID.String()].Tier)
}

func TestCreateProposalRejectsCurrentTier(t *testing.T) {
	env := newTierEnv()
	customer := env.seedCustomer(model.TierPlatinum)

	_, err := env.svc.CreateProposal(context.Background(), actorFor(customer), CreateTierProposalRequest{
		RequestedTier: model.TierPlatinum,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateProposalRejectsSecondPending(t *testing.T) {
	env := newTierEnv()
	customer := env.seedCustomer(model.TierGold)

	_, err := env.svc.CreateProposal(context.Background(), actorFor(customer), CreateTierProposalRequest{
		RequestedTier: model.TierPlatinum,
	})
	require.NoError(t, err)

	_, err = env.svc.CreateProposal(context.Background(), actorFor(customer), CreateTierProposalRequest{
		RequestedTier: model.TierDiamond,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApproveProposalAppliesTier(t *testing.T) {
	env := newTierEnv()
	customer := env.seedCustomer(model.TierGold)
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}

	proposal, err := env.svc.CreateProposal(context.Background(), actorFor(customer), CreateTierProposalRequest{
		RequestedTier: model.TierDiamond,
	})
	require.NoError(t, err)

	approved, err := env.svc.ApproveProposal(context.Background(), proposal.ID, admin)
	require.NoError(t, err)

	assert.Equal(t, model.TierProposalApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, admin.ID.String(), *approved.ReviewedBy)
	assert.Equal(t, model.TierDiamond, env.store.users[customer.ID.String()].Tier)
	assert.Equal(t, 1, env.store.auditCount(model.ActionTierApproved))
}

func TestRejectProposalKeepsTier(t *testing.T) {
	env := newTierEnv()
	customer := env.seedCustomer(model.TierGold)
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}

	proposal, err := env.svc.CreateProposal(context.Background(), actorFor(customer), CreateTierProposalRequest{
		RequestedTier: model.TierDiamond,
	})
	require.NoError(t, err)

	rejected, err := env.svc.RejectProposal(context.Background(), proposal.ID, admin, "volume does not qualify")
	require.NoError(t, err)

	assert.Equal(t, model.TierProposalRejected, rejected.Status)
	assert.Equal(t, "volume does not qualify", rejected.RejectionReason)
	assert.Equal(t, model.TierGold, env.store.users[customer.ID.String()].Tier)
	assert.Equal(t, 1, env.store.auditCount(model.ActionTierRejected))
}

func TestReviewRequiresAdmin(t *testing.T) {
	env := newTierEnv()
	customer := env.seedCustomer(model.TierGold)
	manager := Actor{ID: uuid.New(), Role: model.RoleManager}

	proposal, err := env.svc.CreateProposal(context.Background(), actorFor(customer), CreateTierProposalRequest{
		RequestedTier: model.TierPlatinum,
	})
	require.NoError(t, err)

	_, err = env.svc.ApproveProposal(context.Background(), proposal.ID, manager)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.RejectProposal(context.Background(), proposal.ID, manager, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestReviewRejectsResolvedProposal(t *testing.T) {
	env := newTierEnv()
	customer := env.seedCustomer(model.TierGold)
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}

	proposal, err := env.svc.CreateProposal(context.Background(), actorFor(customer), CreateTierProposalRequest{
		RequestedTier: model.TierPlatinum,
	})
	require.NoError(t, err)

	_, err = env.svc.ApproveProposal(context.Background(), proposal.ID, admin)
	require.NoError(t, err)

	_, err = env.svc.ApproveProposal(context.Background(), proposal.ID, admin)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.RejectProposal(context.Background(), proposal.ID, admin, "")
	assert.ErrorIs(t, err, ErrValidation)
}
