package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus enum constants
const (
	InvoiceStatusDraft     = "DRAFT"
	InvoiceStatusPending   = "PENDING"
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusOverdue   = "OVERDUE"
	InvoiceStatusCancelled = "CANCELLED"
)

// IsInvoiceStatus reports whether s is a member of the invoice status enum.
func IsInvoiceStatus(s string) bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// DefaultPaymentTermDays is the payment window applied when no due date
// is supplied: due = issue + 15 days.
const DefaultPaymentTermDays = 15

// Invoice is generated exactly once per order request, as a side effect of
// the first transition into APPROVED.
type Invoice struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceNo      string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_no"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User           *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	OrderRequestID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"order_request_id"`
	Total          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	Status         string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	IssueDate      time.Time       `gorm:"not null" json:"issue_date"`
	DueDate        time.Time       `gorm:"not null" json:"due_date"`
	PaidAt         *time.Time      `json:"paid_at"`
	Notes          string          `gorm:"type:text" json:"notes"`
	Payments       []Payment       `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"payments"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PaymentMethod enum constants. ACH transfers arrive via the payment
// provider's webhook; MANUAL covers staff-recorded settlements.
const (
	PaymentMethodACH    = "ACH"
	PaymentMethodManual = "MANUAL"
)

// Payment records a settlement against an invoice. ProviderRef carries the
// external transfer identifier when the payment came through ACH.
type Payment struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Method      string          `gorm:"type:varchar(20);not null" json:"method"`
	ProviderRef string          `gorm:"type:varchar(255)" json:"provider_ref"`
	CreatedAt   time.Time       `json:"created_at"`
}
