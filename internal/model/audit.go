package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateOrder       = "CREATE_ORDER"
	ActionOrderApproved     = "ORDER_APPROVED"
	ActionOrderPaid         = "ORDER_PAID"
	ActionOrderFulfilled    = "ORDER_FULFILLED"
	ActionOrderRejected     = "ORDER_REJECTED"
	ActionOrderNotesUpdated = "ORDER_NOTES_UPDATED"
	ActionDeleteOrder       = "DELETE_ORDER"
	ActionCreateInvoice     = "CREATE_INVOICE"
	ActionUpdateInvoice     = "UPDATE_INVOICE"
	ActionInvoicePaid       = "INVOICE_PAID"
	ActionInvoiceOverdue    = "INVOICE_OVERDUE"
	ActionEmailFailed       = "EMAIL_FAILED"

	ActionCreateProduct = "CREATE_PRODUCT"
	ActionUpdateProduct = "UPDATE_PRODUCT"
	ActionDeleteProduct = "DELETE_PRODUCT"

	ActionUpdateUser   = "UPDATE_USER"
	ActionVerifyUser   = "VERIFY_USER"
	ActionTierProposed = "TIER_PROPOSED"
	ActionTierApproved = "TIER_APPROVED"
	ActionTierRejected = "TIER_REJECTED"
)

// AuditLog tracks Who, What, and When for every mutating operation.
// Rows are append-only: never updated, never deleted.
type AuditLog struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID   *uuid.UUID `gorm:"type:uuid;index" json:"actor_id"` // Nullable for system-initiated actions
	Actor     *User      `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	ActorRole string     `gorm:"type:varchar(20)" json:"actor_role"`
	Action    string     `gorm:"type:varchar(50);not null;index" json:"action"`
	Entity    string     `gorm:"type:varchar(50);not null;index" json:"entity"`
	EntityID  string     `gorm:"type:varchar(50);index" json:"entity_id"`
	Meta      string     `gorm:"type:jsonb" json:"meta"` // Serialized JSON context: previous/new status, amounts, ids
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}
