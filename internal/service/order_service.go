package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"backend/internal/mailer"
	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// maxConflictRetries bounds how often a status update is replayed after
	// losing a version race against a concurrent staff update.
	maxConflictRetries = 3
	// maxCodeRetries bounds regeneration of order/invoice numbers on a
	// unique-index collision.
	maxCodeRetries = 5
)

// Actor identifies who is performing a mutation. Handlers build it from the
// session claims; services trust it and only enforce role membership.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// IsStaff reports whether the actor may operate on other users' orders.
func (a Actor) IsStaff() bool {
	return a.Role == model.RoleAdmin || a.Role == model.RoleManager
}

// --- DTOs ---

// OrderItemRequest is the canonical line-item payload. Historical shapes
// ("orders", "cartItems", flattened single item) are intentionally rejected.
type OrderItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	VariantID string          `json:"variant_id"`
	Strain    string          `json:"strain"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"` // Optional; must match tier pricing when supplied
	Notes     string          `json:"notes"`
}

type CreateOrderRequest struct {
	Items   []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Notes   string             `json:"notes"`
	Company string             `json:"company"` // Backfills the account's company on first order
}

// UpdateOrderStatusRequest carries a status transition and/or a notes edit.
type UpdateOrderStatusRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

type OrderFilter struct {
	Status string
	Page   int
	Limit  int
}

type OrderItemResponse struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"product_id"`
	VariantID  *string `json:"variant_id"`
	Strain     string  `json:"strain"`
	Quantity   int     `json:"quantity"`
	UnitPrice  string  `json:"unit_price"`
	TotalPrice string  `json:"total_price"`
	Notes      string  `json:"notes"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	OrderCode     string              `json:"order_code"`
	UserID        string              `json:"user_id"`
	CustomerName  string              `json:"customer_name,omitempty"`
	Status        string              `json:"status"`
	TotalPrice    string              `json:"total_price"`
	TotalAmount   string              `json:"total_amount"` // Alias of total_price kept for older dashboard clients
	Notes         string              `json:"notes"`
	LastActorID   *string             `json:"last_actor_id"`
	LastActorRole string              `json:"last_actor_role"`
	Items         []OrderItemResponse `json:"items"`
	Invoice       *InvoiceResponse    `json:"invoice,omitempty"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at"`
}

// --- Interface ---

type OrderService interface {
	CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (OrderResponse, error)
	GetOrder(ctx context.Context, id string, actor Actor) (OrderResponse, error)
	ListOrders(ctx context.Context, actor Actor, filter OrderFilter) ([]OrderResponse, int64, error)
	UpdateOrderStatus(ctx context.Context, id string, req UpdateOrderStatusRequest, actor Actor) (OrderResponse, error)
	DeleteOrder(ctx context.Context, id string, actor Actor) error
}

type orderService struct {
	orderRepo   repository.OrderRepository
	invoiceRepo repository.InvoiceRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	mailer      mailer.Mailer
	hub         *ws.Hub
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	invoiceRepo repository.InvoiceRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	m mailer.Mailer,
	hub *ws.Hub,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		invoiceRepo: invoiceRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		mailer:      m,
		hub:         hub,
	}
}

// --- Order creation ---

func (s *orderService) CreateOrder(ctx context.Context, actor Actor, req CreateOrderRequest) (OrderResponse, error) {
	user, err := s.userRepo.GetByID(ctx, actor.ID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderResponse{}, ErrNotFound
		}
		return OrderResponse{}, fmt.Errorf("failed to load user: %w", err)
	}

	if user.Role == model.RoleCustomer && !user.Verified {
		return OrderResponse{}, fmt.Errorf("%w: account pending verification", ErrForbidden)
	}

	items, total, err := s.buildOrderItems(ctx, user, req.Items)
	if err != nil {
		return OrderResponse{}, err
	}

	order := &model.OrderRequest{
		UserID:        user.ID,
		Status:        model.OrderStatusPending,
		TotalPrice:    total,
		Notes:         req.Notes,
		LastActorID:   &user.ID,
		LastActorRole: user.Role,
		Items:         items,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.createWithCode(txCtx, order); createErr != nil {
			return createErr
		}

		// One-time company enrichment from the first order payload
		if user.Company == "" && req.Company != "" {
			user.Company = req.Company
			if updateErr := s.userRepo.Update(txCtx, user); updateErr != nil {
				return fmt.Errorf("failed to backfill company: %w", updateErr)
			}
		}

		productIDs := make([]string, 0, len(items))
		for _, item := range items {
			productIDs = append(productIDs, item.ProductID.String())
		}
		meta, _ := json.Marshal(map[string]interface{}{
			"order_code":  order.OrderCode,
			"total_price": total.StringFixed(2),
			"item_count":  len(items),
			"product_ids": productIDs,
		})
		audit := model.AuditLog{
			ActorID:   &user.ID,
			ActorRole: user.Role,
			Action:    model.ActionCreateOrder,
			Entity:    "order_request",
			EntityID:  order.ID.String(),
			Meta:      string(meta),
		}
		if auditErr := s.auditRepo.Log(txCtx, &audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
	if err != nil {
		return OrderResponse{}, err
	}

	s.hub.Publish(ws.Event{
		Type: "order.created",
		Data: map[string]interface{}{
			"order_id":    order.ID.String(),
			"order_code":  order.OrderCode,
			"total_price": total.StringFixed(2),
		},
	})

	reloaded, err := s.orderRepo.FindByIDWithDetails(ctx, order.ID)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("failed to reload order: %w", err)
	}

	return toOrderResponse(reloaded), nil
}

// buildOrderItems validates every line item against the catalog and prices
// it for the customer's tier. Any inconsistency aborts the whole request;
// nothing is silently corrected.
func (s *orderService) buildOrderItems(ctx context.Context, user *model.User, reqItems []OrderItemRequest) ([]model.OrderItem, decimal.Decimal, error) {
	productIDs := make([]uuid.UUID, 0, len(reqItems))
	seen := make(map[uuid.UUID]bool)
	for _, item := range reqItems {
		id, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, decimal.Zero, validationErr("invalid product_id %q", item.ProductID)
		}
		if !seen[id] {
			seen[id] = true
			productIDs = append(productIDs, id)
		}
	}

	products, err := s.productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to load products: %w", err)
	}
	productMap := make(map[uuid.UUID]*model.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	items := make([]model.OrderItem, 0, len(reqItems))
	total := decimal.Zero
	for _, reqItem := range reqItems {
		productID, _ := uuid.Parse(reqItem.ProductID)
		product, ok := productMap[productID]
		if !ok {
			return nil, decimal.Zero, validationErr("product %s does not exist", reqItem.ProductID)
		}

		if reqItem.Quantity <= 0 {
			return nil, decimal.Zero, validationErr("quantity must be positive for product %s", product.Name)
		}

		strain := reqItem.Strain
		var variantID *uuid.UUID
		if reqItem.VariantID != "" {
			vid, parseErr := uuid.Parse(reqItem.VariantID)
			if parseErr != nil {
				return nil, decimal.Zero, validationErr("invalid variant_id %q", reqItem.VariantID)
			}
			variant, findErr := s.productRepo.FindVariant(ctx, vid)
			if findErr != nil {
				if errors.Is(findErr, gorm.ErrRecordNotFound) {
					return nil, decimal.Zero, validationErr("variant %s does not exist", reqItem.VariantID)
				}
				return nil, decimal.Zero, fmt.Errorf("failed to load variant: %w", findErr)
			}
			if variant.ProductID != product.ID {
				return nil, decimal.Zero, validationErr("variant %s does not belong to product %s", vid, product.Name)
			}
			if strain != "" && strain != variant.Subcategory {
				return nil, decimal.Zero, validationErr("strain %q does not match variant subcategory %q", strain, variant.Subcategory)
			}
			strain = variant.Subcategory
			variantID = &vid
		}

		unitPrice := product.PriceForTier(user.Tier)
		if !reqItem.UnitPrice.IsZero() && !reqItem.UnitPrice.Equal(unitPrice) {
			return nil, decimal.Zero, validationErr("unit price %s does not match %s tier pricing for %s",
				reqItem.UnitPrice.StringFixed(2), user.Tier, product.Name)
		}

		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(reqItem.Quantity)))
		items = append(items, model.OrderItem{
			ProductID:  product.ID,
			VariantID:  variantID,
			Strain:     strain,
			Quantity:   reqItem.Quantity,
			UnitPrice:  unitPrice,
			TotalPrice: lineTotal,
			Notes:      reqItem.Notes,
		})
		total = total.Add(lineTotal)
	}

	return items, total, nil
}

// createWithCode persists the order, regenerating the human-readable order
// code on a unique-index collision.
func (s *orderService) createWithCode(txCtx context.Context, order *model.OrderRequest) error {
	prefix := os.Getenv("ORDER_PREFIX")
	if prefix == "" {
		prefix = "ORD"
	}

	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		order.OrderCode = generateCode(prefix)
		err := s.orderRepo.Create(txCtx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("failed to create order: %w", err)
		}
	}
	return fmt.Errorf("failed to create order: exhausted order code attempts")
}

// generateCode builds a display-only code: <PREFIX>-<YYMMDD>-<RANDOM4>.
func generateCode(prefix string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(0x10000))
	if err != nil {
		n = big.NewInt(time.Now().UnixNano() & 0xFFFF)
	}
	return fmt.Sprintf("%s-%s-%04X", prefix, time.Now().Format("060102"), n.Int64())
}

// --- Reads ---

func (s *orderService) GetOrder(ctx context.Context, id string, actor Actor) (OrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, validationErr("invalid order id %q", id)
	}

	order, err := s.orderRepo.FindByIDWithDetails(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderResponse{}, ErrNotFound
		}
		return OrderResponse{}, fmt.Errorf("failed to load order: %w", err)
	}

	if !actor.IsStaff() && order.UserID != actor.ID {
		return OrderResponse{}, ErrForbidden
	}

	return toOrderResponse(order), nil
}

func (s *orderService) ListOrders(ctx context.Context, actor Actor, filter OrderFilter) ([]OrderResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Status != "" && !model.IsOrderStatus(filter.Status) {
		return nil, 0, validationErr("unknown order status %q", filter.Status)
	}

	var userID *uuid.UUID
	if !actor.IsStaff() {
		id := actor.ID
		userID = &id
	}

	orders, total, err := s.orderRepo.List(ctx, userID, filter.Status, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	result := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		result = append(result, toOrderResponse(&orders[i]))
	}
	return result, total, nil
}

// --- Lifecycle coordinator ---

// UpdateOrderStatus is the single place order status transitions are
// validated and their side effects applied. The read-validate-write-audit
// sequence runs in one transaction; a lost version race is replayed up to
// maxConflictRetries times before surfacing ErrConflict.
func (s *orderService) UpdateOrderStatus(ctx context.Context, id string, req UpdateOrderStatusRequest, actor Actor) (OrderResponse, error) {
	if !actor.IsStaff() {
		return OrderResponse{}, ErrForbidden
	}

	orderID, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, validationErr("invalid order id %q", id)
	}

	if req.Status != nil && !model.IsOrderStatus(*req.Status) {
		return OrderResponse{}, validationErr("unknown order status %q", *req.Status)
	}

	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		resp, updateErr := s.applyStatusUpdate(ctx, orderID, req, actor)
		if errors.Is(updateErr, ErrConflict) {
			lastErr = updateErr
			continue
		}
		return resp, updateErr
	}
	return OrderResponse{}, lastErr
}

func (s *orderService) applyStatusUpdate(ctx context.Context, orderID uuid.UUID, req UpdateOrderStatusRequest, actor Actor) (OrderResponse, error) {
	var (
		invoiceCreated bool
		newInvoice     *model.Invoice
		orderSnapshot  *model.OrderRequest
	)

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		// Re-read inside the transaction to guard against a stale read.
		order, findErr := s.orderRepo.FindByIDWithDetails(txCtx, orderID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load order: %w", findErr)
		}
		orderSnapshot = order

		prevStatus := order.Status
		newStatus := prevStatus
		if req.Status != nil && *req.Status != prevStatus {
			if !model.CanTransition(prevStatus, *req.Status) {
				return &InvalidTransitionError{From: prevStatus, To: *req.Status}
			}
			newStatus = *req.Status
		}

		newNotes := order.Notes
		if req.Notes != nil {
			newNotes = *req.Notes
		}

		ok, updateErr := s.orderRepo.UpdateVersioned(txCtx, order.ID, order.Version, repository.OrderUpdate{
			Status:        newStatus,
			Notes:         newNotes,
			LastActorID:   &actor.ID,
			LastActorRole: actor.Role,
		})
		if updateErr != nil {
			return fmt.Errorf("failed to update order: %w", updateErr)
		}
		if !ok {
			return ErrConflict
		}

		// Invoice auto-creation: only on the first transition into APPROVED,
		// and only when no invoice exists yet for this order.
		if newStatus == model.OrderStatusApproved && prevStatus != model.OrderStatusApproved && order.Invoice == nil {
			invoice, invErr := s.createInvoiceForOrder(txCtx, order)
			if invErr != nil {
				return invErr
			}
			newInvoice = invoice
			invoiceCreated = true
		}

		meta := map[string]interface{}{
			"previous_status": prevStatus,
			"new_status":      newStatus,
			"total_price":     order.TotalPrice.StringFixed(2),
		}
		action := transitionAction(prevStatus, newStatus)
		if invoiceCreated {
			meta["invoice_no"] = newInvoice.InvoiceNo
		}
		metaJSON, _ := json.Marshal(meta)
		audit := model.AuditLog{
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Action:    action,
			Entity:    "order_request",
			EntityID:  order.ID.String(),
			Meta:      string(metaJSON),
		}
		if auditErr := s.auditRepo.Log(txCtx, &audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
	if err != nil {
		return OrderResponse{}, err
	}

	// Post-commit, best-effort side effects. The state transition has
	// already committed; a failed notification never rolls it back.
	if invoiceCreated {
		s.dispatchInvoiceEmail(ctx, orderSnapshot, newInvoice)
	}

	s.hub.Publish(ws.Event{
		Type: "order.status_changed",
		Data: map[string]interface{}{
			"order_id":   orderID.String(),
			"order_code": orderSnapshot.OrderCode,
		},
	})

	reloaded, err := s.orderRepo.FindByIDWithDetails(ctx, orderID)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("failed to reload order: %w", err)
	}
	return toOrderResponse(reloaded), nil
}

// createInvoiceForOrder issues the invoice for a freshly approved order.
// Invoice numbers are unique-indexed; a collision regenerates the number.
func (s *orderService) createInvoiceForOrder(txCtx context.Context, order *model.OrderRequest) (*model.Invoice, error) {
	prefix := os.Getenv("INVOICE_PREFIX")
	if prefix == "" {
		prefix = "INV"
	}

	now := time.Now()
	invoice := &model.Invoice{
		UserID:         order.UserID,
		OrderRequestID: order.ID,
		Total:          order.TotalPrice,
		Status:         model.InvoiceStatusPending,
		IssueDate:      now,
		DueDate:        now.AddDate(0, 0, model.DefaultPaymentTermDays),
	}

	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		invoice.InvoiceNo = generateCode(prefix)
		err := s.invoiceRepo.Create(txCtx, invoice)
		if err == nil {
			return invoice, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("failed to create invoice: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create invoice: exhausted invoice number attempts")
}

// dispatchInvoiceEmail notifies the order's owner. Failures are logged and
// audited as EMAIL_FAILED but otherwise swallowed.
func (s *orderService) dispatchInvoiceEmail(ctx context.Context, order *model.OrderRequest, invoice *model.Invoice) {
	if order.User == nil {
		log.Printf("invoice email skipped: order %s has no loaded user", order.OrderCode)
		return
	}

	emailItems := make([]mailer.InvoiceEmailItem, 0, len(order.Items))
	for _, item := range order.Items {
		name := item.ProductID.String()
		if item.Product != nil {
			name = item.Product.Name
		}
		emailItems = append(emailItems, mailer.InvoiceEmailItem{
			Name:     name,
			Strain:   item.Strain,
			Quantity: item.Quantity,
			Total:    item.TotalPrice.StringFixed(2),
		})
	}

	err := s.mailer.SendInvoiceEmail(mailer.InvoiceEmail{
		To:           order.User.Email,
		CustomerName: order.User.Username,
		InvoiceNo:    invoice.InvoiceNo,
		OrderCode:    order.OrderCode,
		Items:        emailItems,
		TotalAmount:  invoice.Total.StringFixed(2),
		DueDate:      invoice.DueDate,
	})
	if err == nil {
		return
	}

	log.Printf("invoice email failed for %s: %v", invoice.InvoiceNo, err)
	meta, _ := json.Marshal(map[string]interface{}{
		"invoice_no": invoice.InvoiceNo,
		"recipient":  order.User.Email,
		"error":      err.Error(),
	})
	audit := model.AuditLog{
		ActorRole: "SYSTEM",
		Action:    model.ActionEmailFailed,
		Entity:    "invoice",
		EntityID:  invoice.ID.String(),
		Meta:      string(meta),
	}
	if auditErr := s.auditRepo.Log(ctx, &audit); auditErr != nil {
		log.Printf("failed to audit email failure for %s: %v", invoice.InvoiceNo, auditErr)
	}
}

// --- Deletion ---

func (s *orderService) DeleteOrder(ctx context.Context, id string, actor Actor) error {
	if actor.Role != model.RoleAdmin {
		return ErrForbidden
	}

	orderID, err := uuid.Parse(id)
	if err != nil {
		return validationErr("invalid order id %q", id)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, findErr := s.orderRepo.FindByID(txCtx, orderID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load order: %w", findErr)
		}

		if deleteErr := s.orderRepo.Delete(txCtx, orderID); deleteErr != nil {
			return fmt.Errorf("failed to delete order: %w", deleteErr)
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"order_code":  order.OrderCode,
			"status":      order.Status,
			"total_price": order.TotalPrice.StringFixed(2),
		})
		audit := model.AuditLog{
			ActorID:   &actor.ID,
			ActorRole: actor.Role,
			Action:    model.ActionDeleteOrder,
			Entity:    "order_request",
			EntityID:  order.ID.String(),
			Meta:      string(meta),
		}
		if auditErr := s.auditRepo.Log(txCtx, &audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
}

// --- Helpers ---

func transitionAction(prev, next string) string {
	if prev == next {
		return model.ActionOrderNotesUpdated
	}
	switch next {
	case model.OrderStatusApproved:
		return model.ActionOrderApproved
	case model.OrderStatusPaid:
		return model.ActionOrderPaid
	case model.OrderStatusFulfilled:
		return model.ActionOrderFulfilled
	case model.OrderStatusRejected:
		return model.ActionOrderRejected
	default:
		return model.ActionOrderNotesUpdated
	}
}

func toOrderResponse(o *model.OrderRequest) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		var variantID *string
		if item.VariantID != nil {
			s := item.VariantID.String()
			variantID = &s
		}
		items = append(items, OrderItemResponse{
			ID:         item.ID.String(),
			ProductID:  item.ProductID.String(),
			VariantID:  variantID,
			Strain:     item.Strain,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			TotalPrice: item.TotalPrice.StringFixed(2),
			Notes:      item.Notes,
		})
	}

	resp := OrderResponse{
		ID:            o.ID.String(),
		OrderCode:     o.OrderCode,
		UserID:        o.UserID.String(),
		Status:        o.Status,
		TotalPrice:    o.TotalPrice.StringFixed(2),
		TotalAmount:   o.TotalPrice.StringFixed(2),
		Notes:         o.Notes,
		LastActorRole: o.LastActorRole,
		Items:         items,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
	}

	if o.LastActorID != nil {
		s := o.LastActorID.String()
		resp.LastActorID = &s
	}
	if o.User != nil {
		resp.CustomerName = o.User.Username
	}
	if o.Invoice != nil {
		inv := toInvoiceResponse(o.Invoice)
		resp.Invoice = &inv
	}

	return resp
}
