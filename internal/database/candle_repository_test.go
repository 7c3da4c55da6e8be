package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphastack/equityresearch/internal/models"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestCandleRepositoryGetHistory(t *testing.T) {
	pool := newMockPool(t)
	repo := NewCandleRepository(pool)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"trading_date", "open", "high", "low", "close", "volume"}).
		AddRow(d1, 100.0, 102.0, 99.0, 101.0, 15000.0).
		AddRow(d2, 101.0, 104.0, 100.5, 103.5, 18000.0)
	pool.ExpectQuery("SELECT trading_date, open, high, low, close, volume").
		WithArgs("RELIANCE", start, end).
		WillReturnRows(rows)

	series, err := repo.GetHistory(context.Background(), "RELIANCE", start, end)
	require.NoError(t, err)

	assert.Equal(t, "RELIANCE", series.Symbol)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, d1, series.Points[0].Date)
	assert.Equal(t, 101.0, series.Points[0].Close)
	assert.Equal(t, 103.5, series.Last().Close)
	assert.NoError(t, series.Validate())
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestCandleRepositoryGetHistoryEmptyIsNotAnError(t *testing.T) {
	pool := newMockPool(t)
	repo := NewCandleRepository(pool)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	pool.ExpectQuery("SELECT trading_date, open, high, low, close, volume").
		WithArgs("NEWLISTING", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"trading_date", "open", "high", "low", "close", "volume"}))

	series, err := repo.GetHistory(context.Background(), "NEWLISTING", start, end)
	require.NoError(t, err)
	assert.True(t, series.Empty())
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestCandleRepositoryGetHistoryQueryError(t *testing.T) {
	pool := newMockPool(t)
	repo := NewCandleRepository(pool)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	pool.ExpectQuery("SELECT trading_date, open, high, low, close, volume").
		WithArgs("RELIANCE", start, end).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetHistory(context.Background(), "RELIANCE", start, end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RELIANCE")
}

func TestCandleRepositorySaveBars(t *testing.T) {
	pool := newMockPool(t)
	repo := NewCandleRepository(pool)

	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	series := models.PriceSeries{
		Symbol: "RELIANCE",
		Points: []models.PricePoint{
			{Date: d1, Open: 100, High: 102, Low: 99, Close: 101, Volume: 15000},
			{Date: d2, Open: 101, High: 104, Low: 100.5, Close: 103.5, Volume: 18000},
		},
	}

	pool.ExpectExec("INSERT INTO candles").
		WithArgs("RELIANCE", d1, 100.0, 102.0, 99.0, 101.0, 15000.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec("INSERT INTO candles").
		WithArgs("RELIANCE", d2, 101.0, 104.0, 100.5, 103.5, 18000.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SaveBars(context.Background(), series))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestCandleRepositorySaveBarsStopsOnFirstFailure(t *testing.T) {
	pool := newMockPool(t)
	repo := NewCandleRepository(pool)

	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	series := models.PriceSeries{
		Symbol: "RELIANCE",
		Points: []models.PricePoint{
			{Date: d1, Open: 100, High: 102, Low: 99, Close: 101, Volume: 15000},
			{Date: d1.AddDate(0, 0, 1), Open: 101, High: 104, Low: 100.5, Close: 103.5, Volume: 18000},
		},
	}

	pool.ExpectExec("INSERT INTO candles").
		WithArgs("RELIANCE", d1, 100.0, 102.0, 99.0, 101.0, 15000.0).
		WillReturnError(errors.New("deadlock detected"))

	err := repo.SaveBars(context.Background(), series)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-01-02")
	assert.NoError(t, pool.ExpectationsWereMet())
}
