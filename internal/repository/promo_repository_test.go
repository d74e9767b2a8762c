package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromoRepository_ConsumeUse(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPromoRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(consumePromoUseQuery)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.ConsumeUse(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)

	// Zero rows affected means the counter was already spent.
	mock.ExpectExec(regexp.QuoteMeta(consumePromoUseQuery)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.ConsumeUse(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumePromoUseQueryDeactivatesOnlyAtZero(t *testing.T) {
	// MySQL applies SET assignments left to right, so the IF runs against the
	// already-decremented counter. Comparing against 1 instead of 0 would
	// deactivate a code while one use still remains.
	assert.Contains(t, consumePromoUseQuery, "uses_left = uses_left - 1")
	assert.Contains(t, consumePromoUseQuery, "active = IF(uses_left <= 0, 0, active)")
}
