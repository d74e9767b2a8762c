package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tgshopbot/internal/config"
	"github.com/example/tgshopbot/internal/cryptopay"
	"github.com/example/tgshopbot/internal/models"
)

type fakePurchaseStore struct {
	purchases map[int64]*models.Purchase
	nextID    int64
}

func newFakePurchaseStore() *fakePurchaseStore {
	return &fakePurchaseStore{purchases: make(map[int64]*models.Purchase), nextID: 1}
}

func (f *fakePurchaseStore) Create(_ context.Context, p *models.Purchase) error {
	p.ID = f.nextID
	p.Status = models.PurchaseCreated
	f.nextID++
	cp := *p
	f.purchases[p.ID] = &cp
	return nil
}

func (f *fakePurchaseStore) GetByID(_ context.Context, id int64) (*models.Purchase, error) {
	p, ok := f.purchases[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePurchaseStore) MarkInvoiced(_ context.Context, id int64) error {
	if p, ok := f.purchases[id]; ok && p.Status == models.PurchaseCreated {
		p.Status = models.PurchaseInvoiced
	}
	return nil
}

func (f *fakePurchaseStore) MarkPaid(_ context.Context, id int64) error {
	if p, ok := f.purchases[id]; ok && (p.Status == models.PurchaseCreated || p.Status == models.PurchaseInvoiced) {
		p.Status = models.PurchasePaid
	}
	return nil
}

func (f *fakePurchaseStore) ClaimDelivery(_ context.Context, id int64) (bool, error) {
	p, ok := f.purchases[id]
	if !ok || p.Status != models.PurchasePaid {
		return false, nil
	}
	p.Status = models.PurchaseDelivered
	return true, nil
}

func (f *fakePurchaseStore) DeleteWithPayments(_ context.Context, id int64) error {
	delete(f.purchases, id)
	return nil
}

func (f *fakePurchaseStore) HistoryByTelegramID(_ context.Context, _ int64) ([]models.PurchaseHistoryEntry, error) {
	return nil, nil
}

type fakePaymentStore struct {
	payments map[int64]*models.Payment
	nextID   int64
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[int64]*models.Payment), nextID: 1}
}

func (f *fakePaymentStore) Create(_ context.Context, p *models.Payment) error {
	p.ID = f.nextID
	p.Status = models.PaymentPending
	f.nextID++
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakePaymentStore) GetByID(_ context.Context, id int64) (*models.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentStore) UpdateStatus(_ context.Context, paymentID int64, status models.PaymentStatus) error {
	if p, ok := f.payments[paymentID]; ok {
		p.Status = status
	}
	return nil
}

func (f *fakePaymentStore) MarkPaidByPurchase(_ context.Context, purchaseID int64) error {
	for _, p := range f.payments {
		if p.PurchaseID == purchaseID {
			p.Status = models.PaymentPaid
		}
	}
	return nil
}

type fakeProductStore struct {
	products map[int64]*models.Product
}

func (f *fakeProductStore) GetByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

type fakeUserStore struct {
	byTelegram map[int64]*models.User
	byID       map[int64]*models.User
	nextID     int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byTelegram: make(map[int64]*models.User), byID: make(map[int64]*models.User), nextID: 1}
}

func (f *fakeUserStore) Ensure(_ context.Context, telegramID int64) (*models.User, error) {
	if u, ok := f.byTelegram[telegramID]; ok {
		return u, nil
	}
	u := &models.User{ID: f.nextID, TelegramID: telegramID}
	f.nextID++
	f.byTelegram[telegramID] = u
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) AddBalance(_ context.Context, userID int64, delta int) error {
	if u, ok := f.byID[userID]; ok {
		u.Balance += delta
	}
	return nil
}

func (f *fakeUserStore) FindByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

type fakeGateway struct {
	status     cryptopay.Status
	invoice    *cryptopay.Invoice
	invoiceErr error
}

func (f *fakeGateway) AmountUSDT(amountRUB int) float64 {
	return float64(amountRUB) / 80
}

func (f *fakeGateway) CreateInvoice(_ context.Context, _ int, _ string) (*cryptopay.Invoice, error) {
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	return f.invoice, nil
}

func (f *fakeGateway) CheckStatus(_ context.Context, _ string) cryptopay.Status {
	return f.status
}

type fakeDeliverer struct {
	calls   int
	content bool
	err     error
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ *models.Purchase, _ int64) (bool, error) {
	f.calls++
	return f.content, f.err
}

type purchaseFixture struct {
	svc       *PurchaseService
	purchases *fakePurchaseStore
	payments  *fakePaymentStore
	users     *fakeUserStore
	gateway   *fakeGateway
	delivery  *fakeDeliverer
	promos    *fakePromoStore
}

func newPurchaseFixture(t *testing.T) *purchaseFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	purchases := newFakePurchaseStore()
	payments := newFakePaymentStore()
	users := newFakeUserStore()
	promoStore := newFakePromoStore()
	products := &fakeProductStore{products: map[int64]*models.Product{
		1: {ID: 1, Name: "Ключ Steam", Price: 500},
	}}
	gateway := &fakeGateway{
		status:  cryptopay.StatusPending,
		invoice: &cryptopay.Invoice{ID: "inv-1", PayURL: "https://pay.example/inv-1"},
	}
	delivery := &fakeDeliverer{content: true}

	cfg := config.Config{AdminIDs: map[int64]struct{}{999: {}}}
	promoService := NewPromoService(promoStore, users)
	svc := NewPurchaseService(cfg, log, purchases, payments, products, users, promoService, gateway, delivery)

	return &purchaseFixture{
		svc:       svc,
		purchases: purchases,
		payments:  payments,
		users:     users,
		gateway:   gateway,
		delivery:  delivery,
		promos:    promoStore,
	}
}

func TestPurchaseService_InitiateAndInvoice(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)

	purchase, product, err := fx.svc.Initiate(ctx, 42, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 500, purchase.Price)
	assert.Equal(t, models.PurchaseCreated, purchase.Status)

	payment, invoice, err := fx.svc.RequestInvoice(ctx, purchase, product)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", payment.InvoiceID)
	assert.False(t, invoice.Mock)
	assert.Equal(t, models.PurchaseInvoiced, fx.purchases.purchases[purchase.ID].Status)
}

func TestPurchaseService_InitiateWithPromo(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)
	fx.promos.add("MINUS100", 100, intPtr(1), true)

	purchase, _, err := fx.svc.Initiate(ctx, 42, 1, "MINUS100")
	require.NoError(t, err)
	assert.Equal(t, 400, purchase.Price)

	// Usage was consumed at validation time.
	assert.Equal(t, 0, *fx.promos.promos["MINUS100"].UsesLeft)
}

func TestPurchaseService_InitiateUnknownProduct(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)

	_, _, err := fx.svc.Initiate(ctx, 42, 777, "")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestPurchaseService_InvoiceUnavailableKeepsPurchase(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)
	fx.gateway.invoiceErr = errors.New("gateway down")

	purchase, product, err := fx.svc.Initiate(ctx, 42, 1, "")
	require.NoError(t, err)

	_, _, err = fx.svc.RequestInvoice(ctx, purchase, product)
	assert.ErrorIs(t, err, ErrInvoiceUnavailable)
	assert.Equal(t, models.PurchaseCreated, fx.purchases.purchases[purchase.ID].Status)
}

func TestPurchaseService_UnconfiguredGatewayIssuesInertMock(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)

	// A real gateway client without a token: invoices degrade to mocks and a
	// payment check can never report paid.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := cryptopay.NewClient(config.Config{}, log)
	fx.svc.gateway = client

	purchase, product, err := fx.svc.Initiate(ctx, 42, 1, "")
	require.NoError(t, err)

	payment, invoice, err := fx.svc.RequestInvoice(ctx, purchase, product)
	require.NoError(t, err)
	assert.True(t, invoice.Mock)
	assert.Contains(t, payment.InvoiceID, "mock-")
	assert.Contains(t, payment.PayURL, "https://pay.invalid/")

	result, err := fx.svc.Confirm(ctx, payment.ID)
	require.NoError(t, err)
	assert.False(t, result.Paid)
	assert.Equal(t, 0, fx.delivery.calls)
}

func TestPurchaseService_ConfirmUnpaid(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)

	purchase, product, err := fx.svc.Initiate(ctx, 42, 1, "")
	require.NoError(t, err)
	payment, _, err := fx.svc.RequestInvoice(ctx, purchase, product)
	require.NoError(t, err)

	result, err := fx.svc.Confirm(ctx, payment.ID)
	require.NoError(t, err)
	assert.False(t, result.Paid)
	assert.Equal(t, 0, fx.delivery.calls)
	assert.Equal(t, models.PurchaseInvoiced, fx.purchases.purchases[purchase.ID].Status)
}

func TestPurchaseService_ConfirmPaidDeliversOnce(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)

	purchase, product, err := fx.svc.Initiate(ctx, 42, 1, "")
	require.NoError(t, err)
	payment, _, err := fx.svc.RequestInvoice(ctx, purchase, product)
	require.NoError(t, err)

	fx.gateway.status = cryptopay.StatusPaid

	result, err := fx.svc.Confirm(ctx, payment.ID)
	require.NoError(t, err)
	assert.True(t, result.Paid)
	assert.False(t, result.AlreadyDelivered)
	assert.True(t, result.ContentDelivered)
	assert.EqualValues(t, 42, result.OwnerTelegramID)
	assert.Equal(t, 1, fx.delivery.calls)
	assert.Equal(t, models.PurchaseDelivered, fx.purchases.purchases[purchase.ID].Status)

	// Re-confirming is idempotent: no second dispatch.
	again, err := fx.svc.Confirm(ctx, payment.ID)
	require.NoError(t, err)
	assert.True(t, again.Paid)
	assert.True(t, again.AlreadyDelivered)
	assert.Equal(t, 1, fx.delivery.calls)
}

func TestPurchaseService_ConfirmKeepsPaidOnDeliveryError(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)
	fx.delivery.err = errors.New("chat blocked")
	fx.delivery.content = false

	purchase, product, err := fx.svc.Initiate(ctx, 42, 1, "")
	require.NoError(t, err)
	payment, _, err := fx.svc.RequestInvoice(ctx, purchase, product)
	require.NoError(t, err)

	fx.gateway.status = cryptopay.StatusPaid

	result, err := fx.svc.Confirm(ctx, payment.ID)
	require.NoError(t, err)
	assert.True(t, result.Paid)
	assert.Error(t, result.DeliveryErr)
	assert.Equal(t, models.PurchaseDelivered, fx.purchases.purchases[purchase.ID].Status)
}

func TestPurchaseService_ConfirmFromWebhook(t *testing.T) {
	ctx := context.Background()
	fx := newPurchaseFixture(t)

	purchase, product, err := fx.svc.Initiate(ctx, 42, 1, "")
	require.NoError(t, err)
	payment, _, err := fx.svc.RequestInvoice(ctx, purchase, product)
	require.NoError(t, err)

	require.NoError(t, fx.svc.ConfirmFromWebhook(ctx, purchase.ID))
	assert.Equal(t, models.PurchasePaid, fx.purchases.purchases[purchase.ID].Status)
	assert.Equal(t, models.PaymentPaid, fx.payments.payments[payment.ID].Status)
	// Delivery is left to the reconciliation loop.
	assert.Equal(t, 0, fx.delivery.calls)

	err = fx.svc.ConfirmFromWebhook(ctx, 888)
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}

func TestPurchaseService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels unpaid purchase", func(t *testing.T) {
		fx := newPurchaseFixture(t)
		purchase, _, err := fx.svc.Initiate(ctx, 42, 1, "")
		require.NoError(t, err)

		require.NoError(t, fx.svc.Cancel(ctx, purchase.ID, 42))
		_, ok := fx.purchases.purchases[purchase.ID]
		assert.False(t, ok)
	})

	t.Run("admin cancels someone else's purchase", func(t *testing.T) {
		fx := newPurchaseFixture(t)
		purchase, _, err := fx.svc.Initiate(ctx, 42, 1, "")
		require.NoError(t, err)

		require.NoError(t, fx.svc.Cancel(ctx, purchase.ID, 999))
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		fx := newPurchaseFixture(t)
		purchase, _, err := fx.svc.Initiate(ctx, 42, 1, "")
		require.NoError(t, err)

		err = fx.svc.Cancel(ctx, purchase.ID, 43)
		assert.ErrorIs(t, err, ErrCancelNotPermitted)
		_, ok := fx.purchases.purchases[purchase.ID]
		assert.True(t, ok)
	})

	t.Run("paid purchase cannot be cancelled", func(t *testing.T) {
		fx := newPurchaseFixture(t)
		purchase, product, err := fx.svc.Initiate(ctx, 42, 1, "")
		require.NoError(t, err)
		payment, _, err := fx.svc.RequestInvoice(ctx, purchase, product)
		require.NoError(t, err)
		fx.gateway.status = cryptopay.StatusPaid
		_, err = fx.svc.Confirm(ctx, payment.ID)
		require.NoError(t, err)

		err = fx.svc.Cancel(ctx, purchase.ID, 42)
		assert.ErrorIs(t, err, ErrPurchaseSettled)
	})

	t.Run("missing purchase", func(t *testing.T) {
		fx := newPurchaseFixture(t)
		err := fx.svc.Cancel(ctx, 777, 42)
		assert.ErrorIs(t, err, ErrPurchaseNotFound)
	})
}
