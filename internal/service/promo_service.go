package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/tgshopbot/internal/models"
)

var (
	ErrPromoNotFound  = errors.New("promo code not found")
	ErrPromoDisabled  = errors.New("promo code disabled")
	ErrPromoExhausted = errors.New("promo code exhausted")
)

type PromoStore interface {
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	List(ctx context.Context) ([]models.PromoCode, error)
	Create(ctx context.Context, code string, amount int, usesLeft *int) (*models.PromoCode, error)
	Delete(ctx context.Context, id int64) error
	ToggleActive(ctx context.Context, id int64) (bool, error)
	ConsumeUse(ctx context.Context, id int64) (bool, error)
}

type BalanceStore interface {
	Ensure(ctx context.Context, telegramID int64) (*models.User, error)
	AddBalance(ctx context.Context, userID int64, delta int) error
}

type PromoService struct {
	promos PromoStore
	users  BalanceStore
}

func NewPromoService(promos PromoStore, users BalanceStore) *PromoService {
	return &PromoService{promos: promos, users: users}
}

// Apply validates a promo code against a base price and returns the discounted
// price plus the promo id. A finite usage counter is consumed right here, at
// validation time, regardless of whether the purchase is completed afterwards.
// The discounted price never drops below one ruble.
func (s *PromoService) Apply(ctx context.Context, code string, basePrice int) (int, int64, error) {
	promo, err := s.validateAndConsume(ctx, code)
	if err != nil {
		return 0, 0, err
	}

	discounted := basePrice - promo.Amount
	if discounted < 1 {
		discounted = 1
	}
	return discounted, promo.ID, nil
}

// Redeem converts a promo code directly into account balance credit.
// Validation and usage accounting are identical to Apply.
func (s *PromoService) Redeem(ctx context.Context, telegramID int64, code string) (int, error) {
	promo, err := s.validateAndConsume(ctx, code)
	if err != nil {
		return 0, err
	}

	user, err := s.users.Ensure(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("ensure user: %w", err)
	}
	if err := s.users.AddBalance(ctx, user.ID, promo.Amount); err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return promo.Amount, nil
}

func (s *PromoService) validateAndConsume(ctx context.Context, code string) (*models.PromoCode, error) {
	promo, err := s.promos.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("get promo: %w", err)
	}
	if promo == nil {
		return nil, ErrPromoNotFound
	}
	if !promo.Active {
		return nil, ErrPromoDisabled
	}
	if promo.UsesLeft != nil {
		if *promo.UsesLeft <= 0 {
			return nil, ErrPromoExhausted
		}
		consumed, err := s.promos.ConsumeUse(ctx, promo.ID)
		if err != nil {
			return nil, fmt.Errorf("consume promo use: %w", err)
		}
		if !consumed {
			// Lost the race with a concurrent redemption.
			return nil, ErrPromoExhausted
		}
	}
	return promo, nil
}

// CreatePromo registers a code with a fixed discount amount; uses == 0 means unlimited.
func (s *PromoService) CreatePromo(ctx context.Context, code string, amount, uses int) (*models.PromoCode, error) {
	var usesLeft *int
	if uses > 0 {
		usesLeft = &uses
	}
	promo, err := s.promos.Create(ctx, code, amount, usesLeft)
	if err != nil {
		return nil, fmt.Errorf("create promo: %w", err)
	}
	return promo, nil
}

func (s *PromoService) ListPromos(ctx context.Context) ([]models.PromoCode, error) {
	return s.promos.List(ctx)
}

func (s *PromoService) TogglePromo(ctx context.Context, id int64) (bool, error) {
	return s.promos.ToggleActive(ctx, id)
}

func (s *PromoService) DeletePromo(ctx context.Context, id int64) error {
	return s.promos.Delete(ctx, id)
}
