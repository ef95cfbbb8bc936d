package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus constants
const (
	OrderStatusPending   = "PENDING"
	OrderStatusApproved  = "APPROVED"
	OrderStatusPaid      = "PAID"
	OrderStatusFulfilled = "FULFILLED"
	OrderStatusRejected  = "REJECTED"
)

// orderTransitions lists every legal status edge. FULFILLED and REJECTED
// are terminal: no outgoing edges.
var orderTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusApproved, OrderStatusRejected},
	OrderStatusApproved:  {OrderStatusPaid, OrderStatusFulfilled, OrderStatusRejected},
	OrderStatusPaid:      {OrderStatusFulfilled, OrderStatusRejected},
	OrderStatusFulfilled: {},
	OrderStatusRejected:  {},
}

// IsOrderStatus reports whether s is a member of the order status enum.
func IsOrderStatus(s string) bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderRequest is a wholesale order submitted by a verified customer.
// OrderCode is the human-readable order number shown on dashboards and
// invoices; it is display-only, never a foreign key.
type OrderRequest struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderCode     string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"order_code"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Status        string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_price"`
	Notes         string          `gorm:"type:text" json:"notes"`
	LastActorID   *uuid.UUID      `gorm:"type:uuid" json:"last_actor_id"`
	LastActorRole string          `gorm:"type:varchar(20)" json:"last_actor_role"`
	// Version guards against lost updates between two staff members
	// mutating the same order concurrently.
	Version   int         `gorm:"not null;default:0" json:"version"`
	Items     []OrderItem `gorm:"foreignKey:OrderRequestID;constraint:OnDelete:CASCADE" json:"items"`
	Invoice   *Invoice    `gorm:"foreignKey:OrderRequestID" json:"invoice,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OrderItem is an immutable line item snapshot. Strain denormalizes the
// variant's subcategory label at submission time.
type OrderItem struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderRequestID uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_request_id"`
	ProductID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Product        *Product        `gorm:"foreignKey:ProductID" json:"-"`
	VariantID      *uuid.UUID      `gorm:"type:uuid" json:"variant_id"`
	Strain         string          `gorm:"type:varchar(100)" json:"strain"`
	Quantity       int             `gorm:"type:int;not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TotalPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_price"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
}
