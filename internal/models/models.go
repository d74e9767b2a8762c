package models

import "time"

type PurchaseStatus string

const (
	PurchaseCreated   PurchaseStatus = "created"
	PurchaseInvoiced  PurchaseStatus = "invoiced"
	PurchasePaid      PurchaseStatus = "paid"
	PurchaseDelivered PurchaseStatus = "delivered"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// PaymentMethodCrypto tags payments settled through the crypto invoice provider.
const PaymentMethodCrypto = "crypto"

type User struct {
	ID         int64
	TelegramID int64
	Balance    int
	CreatedAt  time.Time
}

type Category struct {
	ID   int64
	Name string
}

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       int
	CategoryID  *int64
	PhotoURL    string
	CreatedAt   time.Time
}

type Purchase struct {
	ID        int64
	UserID    int64
	ProductID int64
	// Price is the final amount in rubles, promo discount already applied.
	Price     int
	Status    PurchaseStatus
	CreatedAt time.Time
}

type Payment struct {
	ID         int64
	PurchaseID int64
	InvoiceID  string
	PayURL     string
	Method     string
	Status     PaymentStatus
	CreatedAt  time.Time
}

type PromoCode struct {
	ID     int64
	Code   string
	Amount int
	// UsesLeft is nil for unlimited codes.
	UsesLeft  *int
	Active    bool
	CreatedAt time.Time
}

// Autodelivery holds the content handed out automatically after payment.
// At most one of ContentText and FileURL is meaningful; text wins if both are set.
type Autodelivery struct {
	ProductID   int64
	Enabled     bool
	ContentText string
	FileURL     string
	CreatedAt   time.Time
}

// PaidPurchase is a purchase joined with its buyer's Telegram id,
// as consumed by the reconciliation loop.
type PaidPurchase struct {
	Purchase
	TelegramID int64
}

// PurchaseHistoryEntry is a row of a user's purchase history.
type PurchaseHistoryEntry struct {
	PurchaseID  int64
	ProductName string
	Price       int
	Status      PurchaseStatus
	CreatedAt   time.Time
}
