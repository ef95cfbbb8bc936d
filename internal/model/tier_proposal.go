package model

import (
	"time"

	"github.com/google/uuid"
)

// TierProposalStatus enum constants
const (
	TierProposalPending  = "PENDING"
	TierProposalApproved = "APPROVED"
	TierProposalRejected = "REJECTED"
)

// TierProposal is a customer's request to move to a higher pricing tier.
// Only an admin decision applies the tier to the user account.
type TierProposal struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User            *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CurrentTier     string     `gorm:"type:varchar(20);not null" json:"current_tier"`
	RequestedTier   string     `gorm:"type:varchar(20);not null" json:"requested_tier"`
	Reason          string     `gorm:"type:text" json:"reason"`
	Status          string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	ReviewedBy      *uuid.UUID `gorm:"type:uuid" json:"reviewed_by"`
	Reviewer        *User      `gorm:"foreignKey:ReviewedBy" json:"reviewer,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
