package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invoiceEnv struct {
	store *memStore
	svc   InvoiceService
}

func newInvoiceEnv() *invoiceEnv {
	store := newMemStore()
	return &invoiceEnv{
		store: store,
		svc: NewInvoiceService(
			&fakeInvoiceRepo{s: store},
			&fakeAuditRepo{s: store},
			fakeTxManager{},
			ws.NewHub(),
		),
	}
}

func (e *invoiceEnv) seedInvoice(userID uuid.UUID, status string, due time.Time) *model.Invoice {
	inv := &model.Invoice{
		ID:             uuid.New(),
		InvoiceNo:      "INV-260827-" + uuid.NewString()[:4],
		UserID:         userID,
		OrderRequestID: uuid.New(),
		Total:          decimal.NewFromInt(500),
		Status:         status,
		IssueDate:      due.AddDate(0, 0, -model.DefaultPaymentTermDays),
		DueDate:        due,
	}
	copied := *inv
	e.store.invoices[inv.ID] = &copied
	return inv
}

func TestRecordPaymentMarksInvoicePaid(t *testing.T) {
	env := newInvoiceEnv()
	manager := Actor{ID: uuid.New(), Role: model.RoleManager}
	inv := env.seedInvoice(uuid.New(), model.InvoiceStatusPending, time.Now().AddDate(0, 0, 10))

	paid, err := env.svc.RecordPayment(context.Background(), inv.ID.String(), RecordPaymentRequest{
		Amount:      decimal.NewFromInt(500),
		Method:      model.PaymentMethodACH,
		ProviderRef: "ach_tx_8841",
	}, manager)
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.Len(t, paid.Payments, 1)
	assert.Equal(t, "500.00", paid.Payments[0].Amount)
	assert.Equal(t, "ach_tx_8841", paid.Payments[0].ProviderRef)
	assert.Equal(t, 1, env.store.auditCount(model.ActionInvoicePaid))
}

func TestRecordPaymentRejectsSettledInvoices(t *testing.T) {
	env := newInvoiceEnv()
	manager := Actor{ID: uuid.New(), Role: model.RoleManager}

	paid := env.seedInvoice(uuid.New(), model.InvoiceStatusPaid, time.Now())
	cancelled := env.seedInvoice(uuid.New(), model.InvoiceStatusCancelled, time.Now())

	for _, inv := range []*model.Invoice{paid, cancelled} {
		_, err := env.svc.RecordPayment(context.Background(), inv.ID.String(), RecordPaymentRequest{
			Amount: decimal.NewFromInt(500),
			Method: model.PaymentMethodManual,
		}, manager)
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Empty(t, env.store.payments)
}

func TestRecordPaymentRequiresStaff(t *testing.T) {
	env := newInvoiceEnv()
	customerID := uuid.New()
	inv := env.seedInvoice(customerID, model.InvoiceStatusPending, time.Now().AddDate(0, 0, 10))

	_, err := env.svc.RecordPayment(context.Background(), inv.ID.String(), RecordPaymentRequest{
		Amount: decimal.NewFromInt(500),
		Method: model.PaymentMethodManual,
	}, Actor{ID: customerID, Role: model.RoleCustomer})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestGetInvoiceEnforcesOwnership(t *testing.T) {
	env := newInvoiceEnv()
	ownerID := uuid.New()
	inv := env.seedInvoice(ownerID, model.InvoiceStatusPending, time.Now().AddDate(0, 0, 10))

	_, err := env.svc.GetInvoice(context.Background(), inv.ID.String(), Actor{ID: uuid.New(), Role: model.RoleCustomer})
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := env.svc.GetInvoice(context.Background(), inv.ID.String(), Actor{ID: ownerID, Role: model.RoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNo, got.InvoiceNo)

	_, err = env.svc.GetInvoice(context.Background(), inv.ID.String(), Actor{ID: uuid.New(), Role: model.RoleManager})
	assert.NoError(t, err, "staff read any invoice")
}

func TestListInvoicesScopesCustomersToOwn(t *testing.T) {
	env := newInvoiceEnv()
	ownerID := uuid.New()
	env.seedInvoice(ownerID, model.InvoiceStatusPending, time.Now().AddDate(0, 0, 5))
	env.seedInvoice(uuid.New(), model.InvoiceStatusPending, time.Now().AddDate(0, 0, 5))

	mine, total, err := env.svc.ListInvoices(context.Background(), Actor{ID: ownerID, Role: model.RoleCustomer}, InvoiceFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, ownerID.String(), mine[0].UserID)

	_, total, err = env.svc.ListInvoices(context.Background(), Actor{ID: uuid.New(), Role: model.RoleAdmin}, InvoiceFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestUpdateInvoiceSetsPaidAt(t *testing.T) {
	env := newInvoiceEnv()
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}
	inv := env.seedInvoice(uuid.New(), model.InvoiceStatusPending, time.Now().AddDate(0, 0, 10))

	updated, err := env.svc.UpdateInvoice(context.Background(), inv.ID.String(), UpdateInvoiceRequest{
		Status: strPtr(model.InvoiceStatusPaid),
	}, admin)
	require.NoError(t, err)

	assert.Equal(t, model.InvoiceStatusPaid, updated.Status)
	assert.NotNil(t, updated.PaidAt)
	assert.Equal(t, 1, env.store.auditCount(model.ActionUpdateInvoice))
}

func TestUpdateInvoiceRejectsUnknownStatus(t *testing.T) {
	env := newInvoiceEnv()
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}
	inv := env.seedInvoice(uuid.New(), model.InvoiceStatusPending, time.Now().AddDate(0, 0, 10))

	_, err := env.svc.UpdateInvoice(context.Background(), inv.ID.String(), UpdateInvoiceRequest{
		Status: strPtr("SETTLED"),
	}, admin)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMarkOverdueSweepsPendingPastDue(t *testing.T) {
	env := newInvoiceEnv()
	manager := Actor{ID: uuid.New(), Role: model.RoleManager}

	pastDue1 := env.seedInvoice(uuid.New(), model.InvoiceStatusPending, time.Now().AddDate(0, 0, -3))
	pastDue2 := env.seedInvoice(uuid.New(), model.InvoiceStatusPending, time.Now().AddDate(0, 0, -1))
	notDue := env.seedInvoice(uuid.New(), model.InvoiceStatusPending, time.Now().AddDate(0, 0, 5))
	alreadyPaid := env.seedInvoice(uuid.New(), model.InvoiceStatusPaid, time.Now().AddDate(0, 0, -10))

	count, err := env.svc.MarkOverdue(context.Background(), manager)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, model.InvoiceStatusOverdue, env.store.invoices[pastDue1.ID].Status)
	assert.Equal(t, model.InvoiceStatusOverdue, env.store.invoices[pastDue2.ID].Status)
	assert.Equal(t, model.InvoiceStatusPending, env.store.invoices[notDue.ID].Status)
	assert.Equal(t, model.InvoiceStatusPaid, env.store.invoices[alreadyPaid.ID].Status)
	assert.Equal(t, 2, env.store.auditCount(model.ActionInvoiceOverdue))

	// Idempotent: a second sweep finds nothing
	count, err = env.svc.MarkOverdue(context.Background(), manager)
	require.NoError(t, err)
	assert.Zero(t, count)
}
