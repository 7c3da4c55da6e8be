// Package providers holds the in-process implementations of the external
// data collaborator contracts. They read from tables an ingestion job keeps
// current; the analysts never know or care where the readings came from.
package providers

import (
	"context"
	"fmt"

	"github.com/alphastack/equityresearch/internal/database"
	"github.com/alphastack/equityresearch/internal/models"
)

// FundamentalsRepository serves named ratios and sector metadata from the
// fundamentals table. One row per (symbol, metric).
type FundamentalsRepository struct {
	pool database.DatabasePool
}

func NewFundamentalsRepository(pool database.DatabasePool) *FundamentalsRepository {
	return &FundamentalsRepository{pool: pool}
}

func (r *FundamentalsRepository) GetFundamentals(ctx context.Context, symbol string) (models.CompanyProfile, error) {
	profile := models.CompanyProfile{
		Symbol: symbol,
		Ratios: models.Fundamentals{},
	}

	row := r.pool.QueryRow(ctx,
		`SELECT sector, industry FROM companies WHERE symbol = $1`, symbol)
	if err := row.Scan(&profile.Sector, &profile.Industry); err != nil {
		return profile, fmt.Errorf("load company profile for %s: %w", symbol, err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT metric, value FROM fundamentals WHERE symbol = $1`, symbol)
	if err != nil {
		return profile, fmt.Errorf("load fundamentals for %s: %w", symbol, err)
	}
	defer rows.Close()

	for rows.Next() {
		var metric string
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return profile, fmt.Errorf("scan fundamental row: %w", err)
		}
		profile.Ratios[metric] = value
	}
	return profile, rows.Err()
}

// ReadingsRepository serves keyed float readings from a single table; it
// backs both the sentiment and the management collaborator contracts.
type ReadingsRepository struct {
	pool  database.DatabasePool
	table string
}

func NewSentimentRepository(pool database.DatabasePool) *ReadingsRepository {
	return &ReadingsRepository{pool: pool, table: "sentiment_readings"}
}

func NewManagementRepository(pool database.DatabasePool) *ReadingsRepository {
	return &ReadingsRepository{pool: pool, table: "management_readings"}
}

func (r *ReadingsRepository) get(ctx context.Context, symbol string) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT metric, value FROM %s WHERE symbol = $1`, r.table), symbol)
	if err != nil {
		return nil, fmt.Errorf("load %s for %s: %w", r.table, symbol, err)
	}
	defer rows.Close()

	readings := make(map[string]float64)
	for rows.Next() {
		var metric string
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", r.table, err)
		}
		readings[metric] = value
	}
	return readings, rows.Err()
}

func (r *ReadingsRepository) GetSentiment(ctx context.Context, symbol string) (map[string]float64, error) {
	return r.get(ctx, symbol)
}

func (r *ReadingsRepository) GetManagementData(ctx context.Context, symbol string) (map[string]float64, error) {
	return r.get(ctx, symbol)
}
