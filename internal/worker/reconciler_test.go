package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/tgshopbot/internal/models"
)

type fakePurchaseStore struct {
	pending  []models.PaidPurchase
	claimed  map[int64]bool
	listErr  error
	claimErr map[int64]error
}

func (f *fakePurchaseStore) ListPaidUndelivered(_ context.Context, limit int) ([]models.PaidPurchase, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakePurchaseStore) ClaimDelivery(_ context.Context, id int64) (bool, error) {
	if err := f.claimErr[id]; err != nil {
		return false, err
	}
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

type fakeDeliverer struct {
	delivered []int64
	errFor    map[int64]error
}

func (f *fakeDeliverer) Deliver(_ context.Context, purchase *models.Purchase, _ int64) (bool, error) {
	if err := f.errFor[purchase.ID]; err != nil {
		return false, err
	}
	f.delivered = append(f.delivered, purchase.ID)
	return true, nil
}

func paidPurchase(id, telegramID int64) models.PaidPurchase {
	return models.PaidPurchase{
		Purchase:   models.Purchase{ID: id, Status: models.PurchasePaid},
		TelegramID: telegramID,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconciler_TickDeliversBatch(t *testing.T) {
	store := &fakePurchaseStore{
		pending: []models.PaidPurchase{paidPurchase(1, 10), paidPurchase(2, 20)},
		claimed: map[int64]bool{},
	}
	delivery := &fakeDeliverer{}
	r := NewReconciler(discardLogger(), store, delivery, time.Second, 10)

	r.Tick(context.Background())

	assert.Equal(t, []int64{1, 2}, delivery.delivered)
}

func TestReconciler_TickRespectsBatchLimit(t *testing.T) {
	store := &fakePurchaseStore{
		pending: []models.PaidPurchase{paidPurchase(1, 10), paidPurchase(2, 20), paidPurchase(3, 30)},
		claimed: map[int64]bool{},
	}
	delivery := &fakeDeliverer{}
	r := NewReconciler(discardLogger(), store, delivery, time.Second, 2)

	r.Tick(context.Background())

	assert.Equal(t, []int64{1, 2}, delivery.delivered)
}

func TestReconciler_SkipsAlreadyClaimed(t *testing.T) {
	store := &fakePurchaseStore{
		pending: []models.PaidPurchase{paidPurchase(1, 10), paidPurchase(2, 20)},
		claimed: map[int64]bool{1: true},
	}
	delivery := &fakeDeliverer{}
	r := NewReconciler(discardLogger(), store, delivery, time.Second, 10)

	r.Tick(context.Background())

	assert.Equal(t, []int64{2}, delivery.delivered)
}

func TestReconciler_PerItemErrorsDoNotHaltBatch(t *testing.T) {
	store := &fakePurchaseStore{
		pending:  []models.PaidPurchase{paidPurchase(1, 10), paidPurchase(2, 20), paidPurchase(3, 30)},
		claimed:  map[int64]bool{},
		claimErr: map[int64]error{1: errors.New("deadlock")},
	}
	delivery := &fakeDeliverer{errFor: map[int64]error{2: errors.New("chat blocked")}}
	r := NewReconciler(discardLogger(), store, delivery, time.Second, 10)

	r.Tick(context.Background())

	assert.Equal(t, []int64{3}, delivery.delivered)
}

func TestReconciler_ListErrorIsSoft(t *testing.T) {
	store := &fakePurchaseStore{listErr: errors.New("db down"), claimed: map[int64]bool{}}
	delivery := &fakeDeliverer{}
	r := NewReconciler(discardLogger(), store, delivery, time.Second, 10)

	r.Tick(context.Background())
	assert.Empty(t, delivery.delivered)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	store := &fakePurchaseStore{pending: []models.PaidPurchase{paidPurchase(1, 10)}, claimed: map[int64]bool{}}
	delivery := &fakeDeliverer{}
	r := NewReconciler(discardLogger(), store, delivery, 5*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop on context cancel")
	}
	assert.Equal(t, []int64{1}, delivery.delivered)
}
