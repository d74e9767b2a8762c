package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tgshopbot/internal/models"
)

type fakePromoStore struct {
	promos map[string]*models.PromoCode
	nextID int64
}

func newFakePromoStore() *fakePromoStore {
	return &fakePromoStore{promos: make(map[string]*models.PromoCode), nextID: 1}
}

func (f *fakePromoStore) add(code string, amount int, uses *int, active bool) *models.PromoCode {
	p := &models.PromoCode{ID: f.nextID, Code: code, Amount: amount, UsesLeft: uses, Active: active}
	f.nextID++
	f.promos[code] = p
	return p
}

func (f *fakePromoStore) GetByCode(_ context.Context, code string) (*models.PromoCode, error) {
	p, ok := f.promos[code]
	if !ok {
		return nil, nil
	}
	cp := *p
	if p.UsesLeft != nil {
		v := *p.UsesLeft
		cp.UsesLeft = &v
	}
	return &cp, nil
}

func (f *fakePromoStore) List(_ context.Context) ([]models.PromoCode, error) {
	out := make([]models.PromoCode, 0, len(f.promos))
	for _, p := range f.promos {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePromoStore) Create(_ context.Context, code string, amount int, usesLeft *int) (*models.PromoCode, error) {
	return f.add(code, amount, usesLeft, true), nil
}

func (f *fakePromoStore) Delete(_ context.Context, id int64) error {
	for code, p := range f.promos {
		if p.ID == id {
			delete(f.promos, code)
		}
	}
	return nil
}

func (f *fakePromoStore) ToggleActive(_ context.Context, id int64) (bool, error) {
	for _, p := range f.promos {
		if p.ID == id {
			p.Active = !p.Active
			return p.Active, nil
		}
	}
	return false, nil
}

func (f *fakePromoStore) ConsumeUse(_ context.Context, id int64) (bool, error) {
	for _, p := range f.promos {
		if p.ID != id || p.UsesLeft == nil || *p.UsesLeft <= 0 {
			continue
		}
		*p.UsesLeft--
		if *p.UsesLeft == 0 {
			p.Active = false
		}
		return true, nil
	}
	return false, nil
}

type fakeBalanceStore struct {
	users    map[int64]*models.User
	nextID   int64
	balances map[int64]int
}

func newFakeBalanceStore() *fakeBalanceStore {
	return &fakeBalanceStore{users: make(map[int64]*models.User), nextID: 1, balances: make(map[int64]int)}
}

func (f *fakeBalanceStore) Ensure(_ context.Context, telegramID int64) (*models.User, error) {
	if u, ok := f.users[telegramID]; ok {
		return u, nil
	}
	u := &models.User{ID: f.nextID, TelegramID: telegramID}
	f.nextID++
	f.users[telegramID] = u
	return u, nil
}

func (f *fakeBalanceStore) AddBalance(_ context.Context, userID int64, delta int) error {
	f.balances[userID] += delta
	return nil
}

func intPtr(v int) *int { return &v }

func TestPromoService_Apply(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setup     func(store *fakePromoStore)
		code      string
		basePrice int
		want      int
		wantErr   error
	}{
		{
			name: "discount applied",
			setup: func(store *fakePromoStore) {
				store.add("SALE50", 50, nil, true)
			},
			code:      "SALE50",
			basePrice: 200,
			want:      150,
		},
		{
			name: "price floors at one ruble",
			setup: func(store *fakePromoStore) {
				store.add("BIG", 500, nil, true)
			},
			code:      "BIG",
			basePrice: 100,
			want:      1,
		},
		{
			name:    "unknown code",
			setup:   func(store *fakePromoStore) {},
			code:    "NOPE",
			wantErr: ErrPromoNotFound,
		},
		{
			name: "disabled code",
			setup: func(store *fakePromoStore) {
				store.add("OFF", 10, nil, false)
			},
			code:    "OFF",
			wantErr: ErrPromoDisabled,
		},
		{
			name: "exhausted code",
			setup: func(store *fakePromoStore) {
				store.add("EMPTY", 10, intPtr(0), true)
			},
			code:    "EMPTY",
			wantErr: ErrPromoExhausted,
		},
		{
			name: "code is case insensitive",
			setup: func(store *fakePromoStore) {
				store.add("MIX", 30, nil, true)
			},
			code:      "  mix ",
			basePrice: 100,
			want:      70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakePromoStore()
			tt.setup(store)
			svc := NewPromoService(store, newFakeBalanceStore())

			got, _, err := svc.Apply(ctx, tt.code, tt.basePrice)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromoService_Apply_ConsumesFiniteUses(t *testing.T) {
	ctx := context.Background()
	store := newFakePromoStore()
	store.add("TRIPLE", 25, intPtr(3), true)
	svc := NewPromoService(store, newFakeBalanceStore())

	for i := 0; i < 3; i++ {
		got, _, err := svc.Apply(ctx, "TRIPLE", 100)
		require.NoError(t, err)
		assert.Equal(t, 75, got)
		if i < 2 {
			// The code must survive every redemption but the last one.
			assert.True(t, store.promos["TRIPLE"].Active, "use %d deactivated the code early", i+1)
		}
	}

	_, _, err := svc.Apply(ctx, "TRIPLE", 100)
	assert.ErrorIs(t, err, ErrPromoDisabled)
	assert.False(t, store.promos["TRIPLE"].Active)
	assert.Equal(t, 0, *store.promos["TRIPLE"].UsesLeft)
}

func TestPromoService_Apply_UnlimitedNeverExhausts(t *testing.T) {
	ctx := context.Background()
	store := newFakePromoStore()
	store.add("FOREVER", 10, nil, true)
	svc := NewPromoService(store, newFakeBalanceStore())

	for i := 0; i < 5; i++ {
		got, _, err := svc.Apply(ctx, "FOREVER", 100)
		require.NoError(t, err)
		assert.Equal(t, 90, got)
	}
	assert.Nil(t, store.promos["FOREVER"].UsesLeft)
	assert.True(t, store.promos["FOREVER"].Active)
}

func TestPromoService_Redeem(t *testing.T) {
	ctx := context.Background()
	store := newFakePromoStore()
	store.add("CREDIT", 150, intPtr(1), true)
	users := newFakeBalanceStore()
	svc := NewPromoService(store, users)

	amount, err := svc.Redeem(ctx, 42, "CREDIT")
	require.NoError(t, err)
	assert.Equal(t, 150, amount)

	user := users.users[42]
	require.NotNil(t, user)
	assert.Equal(t, 150, users.balances[user.ID])

	_, err = svc.Redeem(ctx, 42, "CREDIT")
	assert.ErrorIs(t, err, ErrPromoDisabled)
}

func TestPromoService_CreatePromo(t *testing.T) {
	ctx := context.Background()
	store := newFakePromoStore()
	svc := NewPromoService(store, newFakeBalanceStore())

	limited, err := svc.CreatePromo(ctx, "LTD", 100, 5)
	require.NoError(t, err)
	require.NotNil(t, limited.UsesLeft)
	assert.Equal(t, 5, *limited.UsesLeft)

	unlimited, err := svc.CreatePromo(ctx, "UNL", 100, 0)
	require.NoError(t, err)
	assert.Nil(t, unlimited.UsesLeft)
}
