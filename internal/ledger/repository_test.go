package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestGet(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	now := time.Now()
	mock.ExpectQuery("SELECT part_id, name, unit_price, quantity_available").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"part_id", "name", "unit_price", "quantity_available", "created_at", "updated_at"}).
			AddRow(int64(1), "brake pad", 25.0, 10, now, now))

	p, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "brake pad", p.Name)
	assert.Equal(t, 10, p.QuantityAvailable)
}

func TestGetMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectQuery("SELECT part_id, name, unit_price, quantity_available").
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecrease(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("UPDATE parts").
		WithArgs(int64(1), 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Decrease(context.Background(), 1, 4))
}

func TestDecreaseInsufficientStock(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("UPDATE parts").
		WithArgs(int64(1), 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.Decrease(context.Background(), 1, 4)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestDecreaseMissingPart(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("UPDATE parts").
		WithArgs(int64(9), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Decrease(context.Background(), 9, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecreaseRejectsNonPositiveAmount(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	assert.ErrorIs(t, repo.Decrease(context.Background(), 1, 0), ErrInvalidAmount)
	assert.ErrorIs(t, repo.Decrease(context.Background(), 1, -3), ErrInvalidAmount)
}

func TestIncrease(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("UPDATE parts").
		WithArgs(int64(1), 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Increase(context.Background(), 1, 4))
}

func TestIncreaseMissingPart(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("UPDATE parts").
		WithArgs(int64(9), 4).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.Increase(context.Background(), 9, 4), ErrNotFound)
}

func TestIncreaseRejectsNonPositiveAmount(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	assert.ErrorIs(t, repo.Increase(context.Background(), 1, 0), ErrInvalidAmount)
}

func TestCreate(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO parts").
		WithArgs("brake pad", 25.0, 10).
		WillReturnRows(pgxmock.NewRows([]string{"part_id", "created_at", "updated_at"}).
			AddRow(int64(1), now, now))

	p, err := repo.Create(context.Background(), Part{Name: "brake pad", UnitPrice: 25, QuantityAvailable: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
}

func TestUpdateMissingPart(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("UPDATE parts").
		WithArgs(int64(9), "brake pad", 25.0, 10).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), Part{ID: 9, Name: "brake pad", UnitPrice: 25, QuantityAvailable: 10})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingPart(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectExec("DELETE FROM parts").
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 9), ErrNotFound)
}
