package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alphastack/equityresearch/internal/models"
)

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// CandleRepository serves daily OHLCV history from the candles table. It is
// the in-process implementation of the market data collaborator contract:
// an empty result is a valid "no data" outcome, not an error.
type CandleRepository struct {
	pool DatabasePool
}

func NewCandleRepository(pool DatabasePool) *CandleRepository {
	return &CandleRepository{pool: pool}
}

// GetHistory returns the daily bars for symbol in [start, end], ordered by
// trading date ascending.
func (r *CandleRepository) GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.PriceSeries, error) {
	query := `SELECT trading_date, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND trading_date >= $2 AND trading_date <= $3
		ORDER BY trading_date ASC`

	rows, err := r.pool.Query(ctx, query, symbol, start, end)
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("failed to query candles for %s: %w", symbol, err)
	}
	defer rows.Close()

	series := models.PriceSeries{Symbol: symbol}
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return models.PriceSeries{}, fmt.Errorf("failed to scan candle row: %w", err)
		}
		series.Points = append(series.Points, p)
	}
	if err := rows.Err(); err != nil {
		return models.PriceSeries{}, fmt.Errorf("error iterating candle rows: %w", err)
	}

	return series, nil
}

// SaveBars upserts a batch of daily bars for a symbol.
func (r *CandleRepository) SaveBars(ctx context.Context, series models.PriceSeries) error {
	query := `INSERT INTO candles (symbol, trading_date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, trading_date) DO UPDATE
		SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
		    close = EXCLUDED.close, volume = EXCLUDED.volume`

	for _, p := range series.Points {
		if _, err := r.pool.Exec(ctx, query, series.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			return fmt.Errorf("failed to upsert candle %s %s: %w", series.Symbol, p.Date.Format("2006-01-02"), err)
		}
	}
	return nil
}
