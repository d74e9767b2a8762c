package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/tgshopbot/internal/config"
	"github.com/example/tgshopbot/internal/cryptopay"
	"github.com/example/tgshopbot/internal/models"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrCancelNotPermitted = errors.New("cancel not permitted")
	ErrPurchaseSettled    = errors.New("purchase already settled")
	ErrInvoiceUnavailable = errors.New("invoice unavailable")
)

type PurchaseStore interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	GetByID(ctx context.Context, id int64) (*models.Purchase, error)
	MarkInvoiced(ctx context.Context, id int64) error
	MarkPaid(ctx context.Context, id int64) error
	ClaimDelivery(ctx context.Context, id int64) (bool, error)
	DeleteWithPayments(ctx context.Context, id int64) error
	HistoryByTelegramID(ctx context.Context, telegramID int64) ([]models.PurchaseHistoryEntry, error)
}

type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	UpdateStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error
	MarkPaidByPurchase(ctx context.Context, purchaseID int64) error
}

type ProductStore interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
}

type UserStore interface {
	Ensure(ctx context.Context, telegramID int64) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type Gateway interface {
	AmountUSDT(amountRUB int) float64
	CreateInvoice(ctx context.Context, amountRUB int, description string) (*cryptopay.Invoice, error)
	CheckStatus(ctx context.Context, invoiceID string) cryptopay.Status
}

type Deliverer interface {
	Deliver(ctx context.Context, purchase *models.Purchase, chatID int64) (bool, error)
}

// PurchaseService orchestrates the buy flow: purchase creation, invoice
// issuance, payment confirmation and content delivery.
type PurchaseService struct {
	cfg       config.Config
	log       *slog.Logger
	purchases PurchaseStore
	payments  PaymentStore
	products  ProductStore
	users     UserStore
	promo     *PromoService
	gateway   Gateway
	delivery  Deliverer
}

func NewPurchaseService(cfg config.Config, log *slog.Logger, purchases PurchaseStore, payments PaymentStore, products ProductStore, users UserStore, promo *PromoService, gateway Gateway, delivery Deliverer) *PurchaseService {
	return &PurchaseService{
		cfg:       cfg,
		log:       log,
		purchases: purchases,
		payments:  payments,
		products:  products,
		users:     users,
		promo:     promo,
		gateway:   gateway,
		delivery:  delivery,
	}
}

// AmountUSDT reports the USDT equivalent of a ruble amount at the configured
// rate, for display next to the invoice.
func (s *PurchaseService) AmountUSDT(amountRUB int) float64 {
	return s.gateway.AmountUSDT(amountRUB)
}

// Initiate creates a purchase for a buyer. When a promo code is supplied the
// promo engine computes the final price before the row is stored.
func (s *PurchaseService) Initiate(ctx context.Context, telegramID, productID int64, promoCode string) (*models.Purchase, *models.Product, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, nil, ErrProductNotFound
	}

	user, err := s.users.Ensure(ctx, telegramID)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure user: %w", err)
	}

	price := product.Price
	if promoCode != "" {
		discounted, promoID, err := s.promo.Apply(ctx, promoCode, product.Price)
		if err != nil {
			return nil, nil, err
		}
		s.log.Info("promo applied to purchase", "promo_id", promoID, "base_price", product.Price, "final_price", discounted)
		price = discounted
	}

	purchase := &models.Purchase{
		UserID:    user.ID,
		ProductID: product.ID,
		Price:     price,
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		return nil, nil, fmt.Errorf("create purchase: %w", err)
	}
	return purchase, product, nil
}

// RequestInvoice obtains an invoice for the purchase and records the pending
// payment. The purchase stays in created state if no payment row was stored,
// so the buyer can retry.
func (s *PurchaseService) RequestInvoice(ctx context.Context, purchase *models.Purchase, product *models.Product) (*models.Payment, *cryptopay.Invoice, error) {
	invoice, err := s.gateway.CreateInvoice(ctx, purchase.Price, fmt.Sprintf("Order %d: %s", purchase.ID, product.Name))
	if err != nil || invoice == nil || invoice.PayURL == "" {
		if err != nil {
			s.log.Error("create invoice", "purchase_id", purchase.ID, "err", err)
		}
		return nil, nil, ErrInvoiceUnavailable
	}
	if invoice.Mock {
		s.log.Warn("issued mock invoice", "purchase_id", purchase.ID, "invoice_id", invoice.ID)
	}

	payment := &models.Payment{
		PurchaseID: purchase.ID,
		InvoiceID:  invoice.ID,
		PayURL:     invoice.PayURL,
		Method:     models.PaymentMethodCrypto,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("record payment: %w", err)
	}
	if err := s.purchases.MarkInvoiced(ctx, purchase.ID); err != nil {
		return nil, nil, err
	}
	purchase.Status = models.PurchaseInvoiced
	return payment, invoice, nil
}

// ConfirmResult reports what happened during a payment confirmation attempt.
type ConfirmResult struct {
	Paid bool
	// AlreadyDelivered is set when another confirmation or the reconciliation
	// loop had already dispatched this purchase.
	AlreadyDelivered bool
	// ContentDelivered is true when autodelivery content was actually sent.
	ContentDelivered bool
	// DeliveryErr carries a transport failure; the paid state is kept either way.
	DeliveryErr     error
	Purchase        *models.Purchase
	OwnerTelegramID int64
}

// Confirm checks the invoice state with the gateway and, on payment, advances
// the purchase and dispatches autodelivery exactly once. Re-confirming an
// already-paid purchase is safe.
func (s *PurchaseService) Confirm(ctx context.Context, paymentID int64) (*ConfirmResult, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	purchase, err := s.purchases.GetByID(ctx, payment.PurchaseID)
	if err != nil {
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	if purchase == nil {
		return nil, ErrPurchaseNotFound
	}

	if payment.Status != models.PaymentPaid {
		if s.gateway.CheckStatus(ctx, payment.InvoiceID) != cryptopay.StatusPaid {
			return &ConfirmResult{Paid: false, Purchase: purchase}, nil
		}
		if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentPaid); err != nil {
			return nil, err
		}
		if err := s.purchases.MarkPaid(ctx, purchase.ID); err != nil {
			return nil, err
		}
		purchase.Status = models.PurchasePaid
	}

	owner, err := s.users.FindByID(ctx, purchase.UserID)
	if err != nil {
		return nil, fmt.Errorf("find purchase owner: %w", err)
	}
	result := &ConfirmResult{Paid: true, Purchase: purchase}
	if owner != nil {
		result.OwnerTelegramID = owner.TelegramID
	}

	claimed, err := s.purchases.ClaimDelivery(ctx, purchase.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		result.AlreadyDelivered = true
		return result, nil
	}
	purchase.Status = models.PurchaseDelivered

	if owner == nil {
		s.log.Error("paid purchase has no owner", "purchase_id", purchase.ID)
		return result, nil
	}

	delivered, deliveryErr := s.delivery.Deliver(ctx, purchase, owner.TelegramID)
	result.ContentDelivered = delivered
	result.DeliveryErr = deliveryErr
	if deliveryErr != nil {
		s.log.Error("autodelivery failed", "purchase_id", purchase.ID, "err", deliveryErr)
	}
	return result, nil
}

// ConfirmFromWebhook marks a purchase and its pending payments paid on a
// provider callback. Delivery is left to the reconciliation loop.
func (s *PurchaseService) ConfirmFromWebhook(ctx context.Context, purchaseID int64) error {
	purchase, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return fmt.Errorf("get purchase: %w", err)
	}
	if purchase == nil {
		return ErrPurchaseNotFound
	}
	if err := s.payments.MarkPaidByPurchase(ctx, purchase.ID); err != nil {
		return err
	}
	if err := s.purchases.MarkPaid(ctx, purchase.ID); err != nil {
		return err
	}
	return nil
}

// Cancel hard-deletes a purchase together with its payment rows. Only the
// owning user or an admin may cancel, and only before payment settles.
func (s *PurchaseService) Cancel(ctx context.Context, purchaseID, requesterTelegramID int64) error {
	purchase, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return fmt.Errorf("get purchase: %w", err)
	}
	if purchase == nil {
		return ErrPurchaseNotFound
	}
	if purchase.Status == models.PurchasePaid || purchase.Status == models.PurchaseDelivered {
		return ErrPurchaseSettled
	}

	if !s.cfg.IsAdmin(requesterTelegramID) {
		owner, err := s.users.FindByID(ctx, purchase.UserID)
		if err != nil {
			return fmt.Errorf("find purchase owner: %w", err)
		}
		if owner == nil || owner.TelegramID != requesterTelegramID {
			return ErrCancelNotPermitted
		}
	}

	if err := s.purchases.DeleteWithPayments(ctx, purchase.ID); err != nil {
		return err
	}
	s.log.Info("purchase cancelled", "purchase_id", purchase.ID, "requester", requesterTelegramID)
	return nil
}

// History lists a buyer's purchases, newest first.
func (s *PurchaseService) History(ctx context.Context, telegramID int64) ([]models.PurchaseHistoryEntry, error) {
	return s.purchases.HistoryByTelegramID(ctx, telegramID)
}
