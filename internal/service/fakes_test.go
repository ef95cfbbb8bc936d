package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"backend/internal/mailer"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memStore is the shared in-memory backing for the repository fakes. The
// knobs (orderCodeDups, versionConflicts, ...) inject the failure modes the
// services are expected to recover from.
type memStore struct {
	mu sync.Mutex

	users         map[string]*model.User
	refreshTokens map[string]*model.RefreshToken
	products      map[uuid.UUID]*model.Product
	variants      map[uuid.UUID]*model.ProductVariant
	orders        map[uuid.UUID]*model.OrderRequest
	invoices      map[uuid.UUID]*model.Invoice
	payments      []model.Payment
	proposals     map[uuid.UUID]*model.TierProposal
	audits        []model.AuditLog

	// Failure injection
	orderCodeDups    int // next N order creates collide on order_code
	invoiceNoDups    int // next N invoice creates collide on invoice_no
	versionConflicts int // next N versioned updates lose the race
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*model.User),
		refreshTokens: make(map[string]*model.RefreshToken),
		products:      make(map[uuid.UUID]*model.Product),
		variants:      make(map[uuid.UUID]*model.ProductVariant),
		orders:        make(map[uuid.UUID]*model.OrderRequest),
		invoices:      make(map[uuid.UUID]*model.Invoice),
		proposals:     make(map[uuid.UUID]*model.TierProposal),
	}
}

func (s *memStore) seedUser(u model.User) *model.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.ID.String()] = &u
	return &u
}

func (s *memStore) seedProduct(p model.Product) *model.Product {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	for i := range p.Variants {
		if p.Variants[i].ID == uuid.Nil {
			p.Variants[i].ID = uuid.New()
		}
		p.Variants[i].ProductID = p.ID
		v := p.Variants[i]
		s.variants[v.ID] = &v
	}
	s.products[p.ID] = &p
	return &p
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

func (s *memStore) auditCount(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, a := range s.audits {
		if a.Action == action {
			n++
		}
	}
	return n
}

func (s *memStore) invoiceForOrder(orderID uuid.UUID) *model.Invoice {
	for _, inv := range s.invoices {
		if inv.OrderRequestID == orderID {
			copied := *inv
			return &copied
		}
	}
	return nil
}

// --- Transaction manager ---

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// --- Order repository ---

type fakeOrderRepo struct {
	s *memStore
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *model.OrderRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.orderCodeDups > 0 {
		r.s.orderCodeDups--
		return gorm.ErrDuplicatedKey
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderRequestID = order.ID
	}

	copied := *order
	copied.Items = append([]model.OrderItem(nil), order.Items...)
	r.s.orders[order.ID] = &copied
	return nil
}

func (r *fakeOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.OrderRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *fakeOrderRepo) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*model.OrderRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}

	copied := *order
	copied.Items = append([]model.OrderItem(nil), order.Items...)
	for i := range copied.Items {
		if p, ok := r.s.products[copied.Items[i].ProductID]; ok {
			product := *p
			copied.Items[i].Product = &product
		}
	}
	if u, ok := r.s.users[order.UserID.String()]; ok {
		user := *u
		copied.User = &user
	}
	for _, inv := range r.s.invoices {
		if inv.OrderRequestID == id {
			invoice := *inv
			copied.Invoice = &invoice
			break
		}
	}
	return &copied, nil
}

func (r *fakeOrderRepo) UpdateVersioned(ctx context.Context, id uuid.UUID, version int, update repository.OrderUpdate) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok {
		return false, nil
	}

	if r.s.versionConflicts > 0 {
		r.s.versionConflicts--
		// Simulate a concurrent writer winning the race
		order.Version++
		return false, nil
	}

	if order.Version != version {
		return false, nil
	}

	order.Status = update.Status
	order.Notes = update.Notes
	order.LastActorID = update.LastActorID
	order.LastActorRole = update.LastActorRole
	order.Version++
	order.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeOrderRepo) List(ctx context.Context, userID *uuid.UUID, status string, page, limit int) ([]model.OrderRequest, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []model.OrderRequest
	for _, order := range r.s.orders {
		if userID != nil && order.UserID != *userID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, *order)
	}
	return result, int64(len(result)), nil
}

func (r *fakeOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.orders, id)
	return nil
}

// --- Invoice repository ---

type fakeInvoiceRepo struct {
	s *memStore
}

func (r *fakeInvoiceRepo) Create(ctx context.Context, invoice *model.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.invoiceNoDups > 0 {
		r.s.invoiceNoDups--
		return gorm.ErrDuplicatedKey
	}
	for _, existing := range r.s.invoices {
		if existing.OrderRequestID == invoice.OrderRequestID || existing.InvoiceNo == invoice.InvoiceNo {
			return gorm.ErrDuplicatedKey
		}
	}

	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	invoice.CreatedAt = time.Now()
	copied := *invoice
	r.s.invoices[invoice.ID] = &copied
	return nil
}

func (r *fakeInvoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	invoice, ok := r.s.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *invoice
	return &copied, nil
}

func (r *fakeInvoiceRepo) FindByIDWithPayments(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	invoice, ok := r.s.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *invoice
	for _, p := range r.s.payments {
		if p.InvoiceID == id {
			copied.Payments = append(copied.Payments, p)
		}
	}
	return &copied, nil
}

func (r *fakeInvoiceRepo) FindByOrderRequestID(ctx context.Context, orderRequestID uuid.UUID) (*model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, invoice := range r.s.invoices {
		if invoice.OrderRequestID == orderRequestID {
			copied := *invoice
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeInvoiceRepo) List(ctx context.Context, userID *uuid.UUID, status string, page, limit int) ([]model.Invoice, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []model.Invoice
	for _, invoice := range r.s.invoices {
		if userID != nil && invoice.UserID != *userID {
			continue
		}
		if status != "" && invoice.Status != status {
			continue
		}
		result = append(result, *invoice)
	}
	return result, int64(len(result)), nil
}

func (r *fakeInvoiceRepo) ListPendingPastDue(ctx context.Context, asOf time.Time) ([]model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []model.Invoice
	for _, invoice := range r.s.invoices {
		if invoice.Status == model.InvoiceStatusPending && invoice.DueDate.Before(asOf) {
			result = append(result, *invoice)
		}
	}
	return result, nil
}

func (r *fakeInvoiceRepo) Update(ctx context.Context, invoice *model.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	copied := *invoice
	copied.Payments = nil
	r.s.invoices[invoice.ID] = &copied
	return nil
}

func (r *fakeInvoiceRepo) CreatePayment(ctx context.Context, payment *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	r.s.payments = append(r.s.payments, *payment)
	return nil
}

// --- Product repository ---

type fakeProductRepo struct {
	s *memStore
}

func (r *fakeProductRepo) Create(ctx context.Context, product *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	for i := range product.Variants {
		if product.Variants[i].ID == uuid.Nil {
			product.Variants[i].ID = uuid.New()
		}
		product.Variants[i].ProductID = product.ID
		v := product.Variants[i]
		r.s.variants[v.ID] = &v
	}
	copied := *product
	copied.Variants = append([]model.ProductVariant(nil), product.Variants...)
	r.s.products[product.ID] = &copied
	return nil
}

func (r *fakeProductRepo) Update(ctx context.Context, product *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	copied := *product
	r.s.products[product.ID] = &copied
	return nil
}

func (r *fakeProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.products, id)
	return nil
}

func (r *fakeProductRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	product, ok := r.s.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *product
	copied.Variants = append([]model.ProductVariant(nil), product.Variants...)
	return &copied, nil
}

func (r *fakeProductRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []model.Product
	for _, id := range ids {
		if product, ok := r.s.products[id]; ok {
			copied := *product
			copied.Variants = append([]model.ProductVariant(nil), product.Variants...)
			result = append(result, copied)
		}
	}
	return result, nil
}

func (r *fakeProductRepo) FindVariant(ctx context.Context, id uuid.UUID) (*model.ProductVariant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	variant, ok := r.s.variants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *variant
	return &copied, nil
}

func (r *fakeProductRepo) CreateVariant(ctx context.Context, variant *model.ProductVariant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if variant.ID == uuid.Nil {
		variant.ID = uuid.New()
	}
	copied := *variant
	r.s.variants[variant.ID] = &copied
	return nil
}

func (r *fakeProductRepo) DeleteVariant(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.variants, id)
	return nil
}

func (r *fakeProductRepo) List(ctx context.Context, category string, page, limit int) ([]model.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []model.Product
	for _, product := range r.s.products {
		if !product.IsActive {
			continue
		}
		if category != "" && product.Category != category {
			continue
		}
		copied := *product
		copied.Variants = append([]model.ProductVariant(nil), product.Variants...)
		result = append(result, copied)
	}
	return result, int64(len(result)), nil
}

// --- User repository ---

type fakeUserRepo struct {
	s *memStore
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	r.s.users[user.ID.String()] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, user := range r.s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, user := range r.s.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []model.User
	for _, user := range r.s.users {
		result = append(result, *user)
	}
	return result, int64(len(result)), nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	copied := *user
	r.s.users[user.ID.String()] = &copied
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.users, id)
	return nil
}

func (r *fakeUserRepo) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	copied := *token
	r.s.refreshTokens[token.Token] = &copied
	return nil
}

func (r *fakeUserRepo) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rt, ok := r.s.refreshTokens[token]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *rt
	return &copied, nil
}

func (r *fakeUserRepo) DeleteRefreshToken(ctx context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.refreshTokens, token)
	return nil
}

func (r *fakeUserRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for token, rt := range r.s.refreshTokens {
		if rt.ExpiresAt.Before(before) {
			delete(r.s.refreshTokens, token)
		}
	}
	return nil
}

// --- Tier proposal repository ---

type fakeTierRepo struct {
	s *memStore
}

func (r *fakeTierRepo) Create(ctx context.Context, proposal *model.TierProposal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if proposal.ID == uuid.Nil {
		proposal.ID = uuid.New()
	}
	proposal.CreatedAt = time.Now()
	copied := *proposal
	r.s.proposals[proposal.ID] = &copied
	return nil
}

func (r *fakeTierRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.TierProposal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	proposal, ok := r.s.proposals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *proposal
	if u, ok := r.s.users[proposal.UserID.String()]; ok {
		user := *u
		copied.User = &user
	}
	return &copied, nil
}

func (r *fakeTierRepo) HasPendingForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, proposal := range r.s.proposals {
		if proposal.UserID == userID && proposal.Status == model.TierProposalPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTierRepo) List(ctx context.Context, status string, page, limit int) ([]model.TierProposal, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []model.TierProposal
	for _, proposal := range r.s.proposals {
		if status != "" && proposal.Status != status {
			continue
		}
		result = append(result, *proposal)
	}
	return result, int64(len(result)), nil
}

func (r *fakeTierRepo) Update(ctx context.Context, proposal *model.TierProposal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	copied := *proposal
	copied.User = nil
	r.s.proposals[proposal.ID] = &copied
	return nil
}

// --- Audit repository ---

type fakeAuditRepo struct {
	s *memStore
}

func (r *fakeAuditRepo) Log(ctx context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, page, limit int) ([]model.AuditLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	result := append([]model.AuditLog(nil), r.s.audits...)
	return result, int64(len(result)), nil
}

// --- Mailer ---

type fakeMailer struct {
	mu   sync.Mutex
	fail bool
	sent []mailer.InvoiceEmail
}

func (m *fakeMailer) SendInvoiceEmail(email mailer.InvoiceEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errSMTPDown
	}
	m.sent = append(m.sent, email)
	return nil
}

var errSMTPDown = &smtpDownError{}

type smtpDownError struct{}

func (*smtpDownError) Error() string { return "smtp relay unreachable" }

// --- Cache ---

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	sets    int
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[key]; ok {
		c.hits++
		return v, nil
	}
	return "", nil
}

func (c *fakeCache) DeletePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}
