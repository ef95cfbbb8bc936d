package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

// UpdateInvoiceRequest allows staff to manually adjust an invoice.
type UpdateInvoiceRequest struct {
	Status  *string `json:"status"`
	DueDate *string `json:"due_date"` // RFC3339
	Notes   *string `json:"notes"`
}

// RecordPaymentRequest registers a settlement against an invoice. ACH
// payments arrive with the provider's transfer reference; manual entries
// carry none.
type RecordPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Method      string          `json:"method" binding:"required,oneof=ACH MANUAL"`
	ProviderRef string          `json:"provider_ref"`
}

type InvoiceFilter struct {
	Status string
	Page   int
	Limit  int
}

type PaymentResponse struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Method      string `json:"method"`
	ProviderRef string `json:"provider_ref,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type InvoiceResponse struct {
	ID             string            `json:"id"`
	InvoiceNo      string            `json:"invoice_no"`
	UserID         string            `json:"user_id"`
	OrderRequestID string            `json:"order_request_id"`
	Total          string            `json:"total"`
	Status         string            `json:"status"`
	IssueDate      string            `json:"issue_date"`
	DueDate        string            `json:"due_date"`
	PaidAt         *string           `json:"paid_at"`
	Notes          string            `json:"notes"`
	Payments       []PaymentResponse `json:"payments,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

// --- Interface ---

type InvoiceService interface {
	GetInvoice(ctx context.Context, id string, actor Actor) (InvoiceResponse, error)
	ListInvoices(ctx context.Context, actor Actor, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	UpdateInvoice(ctx context.Context, id string, req UpdateInvoiceRequest, actor Actor) (InvoiceResponse, error)
	RecordPayment(ctx context.Context, id string, req RecordPaymentRequest, actor Actor) (InvoiceResponse, error)
	MarkOverdue(ctx context.Context, actor Actor) (int, error)
}

type invoiceService struct {
	invoiceRepo repository.InvoiceRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	hub         *ws.Hub
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		hub:         hub,
	}
}

// --- Implementation ---

func (s *invoiceService) GetInvoice(ctx context.Context, id string, actor Actor) (InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return InvoiceResponse{}, validationErr("invalid invoice id %q", id)
	}

	invoice, err := s.invoiceRepo.FindByIDWithPayments(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return InvoiceResponse{}, ErrNotFound
		}
		return InvoiceResponse{}, fmt.Errorf("failed to load invoice: %w", err)
	}

	if !actor.IsStaff() && invoice.UserID != actor.ID {
		return InvoiceResponse{}, ErrForbidden
	}

	return toInvoiceResponse(invoice), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, actor Actor, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Status != "" && !model.IsInvoiceStatus(filter.Status) {
		return nil, 0, validationErr("unknown invoice status %q", filter.Status)
	}

	var userID *uuid.UUID
	if !actor.IsStaff() {
		id := actor.ID
		userID = &id
	}

	invoices, total, err := s.invoiceRepo.List(ctx, userID, filter.Status, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}

	result := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		result = append(result, toInvoiceResponse(&invoices[i]))
	}
	return result, total, nil
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, id string, req UpdateInvoiceRequest, actor Actor) (InvoiceResponse, error) {
	if !actor.IsStaff() {
		return InvoiceResponse{}, ErrForbidden
	}

	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return InvoiceResponse{}, validationErr("invalid invoice id %q", id)
	}

	if req.Status != nil && !model.IsInvoiceStatus(*req.Status) {
		return InvoiceResponse{}, validationErr("unknown invoice status %q", *req.Status)
	}

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		invoice, findErr = s.invoiceRepo.FindByID(txCtx, invoiceID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load invoice: %w", findErr)
		}

		prevStatus := invoice.Status
		if req.Status != nil {
			invoice.Status = *req.Status
			if *req.Status == model.InvoiceStatusPaid && invoice.PaidAt == nil {
				now := time.Now()
				invoice.PaidAt = &now
			}
		}
		if req.DueDate != nil {
			due, parseErr := time.Parse(time.RFC3339, *req.DueDate)
			if parseErr != nil {
				return validationErr("invalid due_date %q", *req.DueDate)
			}
			invoice.DueDate = due
		}
		if req.Notes != nil {
			invoice.Notes = *req.Notes
		}

		if saveErr := s.invoiceRepo.Update(txCtx, invoice); saveErr != nil {
			return fmt.Errorf("failed to update invoice: %w", saveErr)
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"invoice_no":      invoice.InvoiceNo,
			"previous_status": prevStatus,
			"new_status":      invoice.Status,
		})
		audit := model.AuditLog{
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Action:    model.ActionUpdateInvoice,
			Entity:    "invoice",
			EntityID:  invoice.ID.String(),
			Meta:      string(meta),
		}
		if auditErr := s.auditRepo.Log(txCtx, &audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	reloaded, err := s.invoiceRepo.FindByIDWithPayments(ctx, invoiceID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to reload invoice: %w", err)
	}
	return toInvoiceResponse(reloaded), nil
}

func (s *invoiceService) RecordPayment(ctx context.Context, id string, req RecordPaymentRequest, actor Actor) (InvoiceResponse, error) {
	if !actor.IsStaff() {
		return InvoiceResponse{}, ErrForbidden
	}

	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return InvoiceResponse{}, validationErr("invalid invoice id %q", id)
	}

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return InvoiceResponse{}, validationErr("payment amount must be positive")
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, findErr := s.invoiceRepo.FindByID(txCtx, invoiceID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load invoice: %w", findErr)
		}

		if invoice.Status == model.InvoiceStatusPaid {
			return validationErr("invoice %s is already paid", invoice.InvoiceNo)
		}
		if invoice.Status == model.InvoiceStatusCancelled {
			return validationErr("invoice %s is cancelled", invoice.InvoiceNo)
		}

		payment := model.Payment{
			InvoiceID:   invoice.ID,
			Amount:      req.Amount,
			Method:      req.Method,
			ProviderRef: req.ProviderRef,
		}
		if createErr := s.invoiceRepo.CreatePayment(txCtx, &payment); createErr != nil {
			return fmt.Errorf("failed to record payment: %w", createErr)
		}

		prevStatus := invoice.Status
		now := time.Now()
		invoice.Status = model.InvoiceStatusPaid
		invoice.PaidAt = &now
		if saveErr := s.invoiceRepo.Update(txCtx, invoice); saveErr != nil {
			return fmt.Errorf("failed to mark invoice paid: %w", saveErr)
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"invoice_no":      invoice.InvoiceNo,
			"previous_status": prevStatus,
			"new_status":      invoice.Status,
			"amount":          req.Amount.StringFixed(2),
			"method":          req.Method,
			"provider_ref":    req.ProviderRef,
		})
		audit := model.AuditLog{
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Action:    model.ActionInvoicePaid,
			Entity:    "invoice",
			EntityID:  invoice.ID.String(),
			Meta:      string(meta),
		}
		if auditErr := s.auditRepo.Log(txCtx, &audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	reloaded, err := s.invoiceRepo.FindByIDWithPayments(ctx, invoiceID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to reload invoice: %w", err)
	}

	s.hub.Publish(ws.Event{
		Type: "invoice.paid",
		Data: map[string]interface{}{
			"invoice_id": reloaded.ID.String(),
			"invoice_no": reloaded.InvoiceNo,
		},
	})

	return toInvoiceResponse(reloaded), nil
}

// MarkOverdue flips every PENDING invoice past its due date to OVERDUE.
// Returns the number of invoices updated.
func (s *invoiceService) MarkOverdue(ctx context.Context, actor Actor) (int, error) {
	if !actor.IsStaff() {
		return 0, ErrForbidden
	}

	var flipped int
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoices, listErr := s.invoiceRepo.ListPendingPastDue(txCtx, time.Now())
		if listErr != nil {
			return fmt.Errorf("failed to list past-due invoices: %w", listErr)
		}

		for i := range invoices {
			invoice := &invoices[i]
			invoice.Status = model.InvoiceStatusOverdue
			if saveErr := s.invoiceRepo.Update(txCtx, invoice); saveErr != nil {
				return fmt.Errorf("failed to mark invoice %s overdue: %w", invoice.InvoiceNo, saveErr)
			}

			meta, _ := json.Marshal(map[string]interface{}{
				"invoice_no":      invoice.InvoiceNo,
				"previous_status": model.InvoiceStatusPending,
				"new_status":      model.InvoiceStatusOverdue,
				"due_date":        invoice.DueDate.Format(time.RFC3339),
			})
			audit := model.AuditLog{
				ActorID:   &actor.ID,
				ActorRole: actor.Role,
				Action:    model.ActionInvoiceOverdue,
				Entity:    "invoice",
				EntityID:  invoice.ID.String(),
				Meta:      string(meta),
			}
			if auditErr := s.auditRepo.Log(txCtx, &audit); auditErr != nil {
				return fmt.Errorf("failed to write audit log: %w", auditErr)
			}
			flipped++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return flipped, nil
}

// --- Helpers ---

func toInvoiceResponse(inv *model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:             inv.ID.String(),
		InvoiceNo:      inv.InvoiceNo,
		UserID:         inv.UserID.String(),
		OrderRequestID: inv.OrderRequestID.String(),
		Total:          inv.Total.StringFixed(2),
		Status:         inv.Status,
		IssueDate:      inv.IssueDate.Format(time.RFC3339),
		DueDate:        inv.DueDate.Format(time.RFC3339),
		Notes:          inv.Notes,
		CreatedAt:      inv.CreatedAt.Format(time.RFC3339),
	}

	if inv.PaidAt != nil {
		s := inv.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &s
	}

	for _, p := range inv.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:          p.ID.String(),
			Amount:      p.Amount.StringFixed(2),
			Method:      p.Method,
			ProviderRef: p.ProviderRef,
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		})
	}

	return resp
}
