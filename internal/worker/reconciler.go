package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/tgshopbot/internal/models"
)

type PurchaseStore interface {
	ListPaidUndelivered(ctx context.Context, limit int) ([]models.PaidPurchase, error)
	ClaimDelivery(ctx context.Context, id int64) (bool, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, purchase *models.Purchase, chatID int64) (bool, error)
}

// Reconciler periodically re-attempts delivery for purchases that are already
// paid but not yet delivered, e.g. after a webhook confirmation or a crash
// between payment and dispatch.
type Reconciler struct {
	log       *slog.Logger
	purchases PurchaseStore
	delivery  Deliverer
	interval  time.Duration
	batch     int
}

func NewReconciler(log *slog.Logger, purchases PurchaseStore, delivery Deliverer, interval time.Duration, batch int) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 10
	}
	return &Reconciler{
		log:       log,
		purchases: purchases,
		delivery:  delivery,
		interval:  interval,
		batch:     batch,
	}
}

// Run blocks until ctx is cancelled. Per-item failures are logged and never
// stop the loop.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reconciler started", "interval", r.interval.String(), "batch", r.batch)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick processes one batch of paid-undelivered purchases.
func (r *Reconciler) Tick(ctx context.Context) {
	pending, err := r.purchases.ListPaidUndelivered(ctx, r.batch)
	if err != nil {
		r.log.Error("list paid undelivered", "err", err)
		return
	}

	for _, item := range pending {
		// Claim first: if a concurrent manual confirmation got there already,
		// skip without sending anything twice.
		claimed, err := r.purchases.ClaimDelivery(ctx, item.ID)
		if err != nil {
			r.log.Error("claim delivery", "purchase_id", item.ID, "err", err)
			continue
		}
		if !claimed {
			continue
		}

		purchase := item.Purchase
		purchase.Status = models.PurchaseDelivered
		sent, err := r.delivery.Deliver(ctx, &purchase, item.TelegramID)
		if err != nil {
			r.log.Error("reconcile delivery", "purchase_id", item.ID, "err", err)
			continue
		}
		r.log.Info("purchase reconciled", "purchase_id", item.ID, "content_sent", sent)
	}
}
