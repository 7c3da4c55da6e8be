package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphastack/equityresearch/internal/models"
)

func sampleDecision() models.Decision {
	return models.Decision{
		ID:             "dec-001",
		Symbol:         "HDFCBANK",
		Action:         models.ActionBuy,
		Confidence:     72,
		CompositeScore: 68.5,
		RiskLevel:      models.RiskMedium,
		Regime:         models.RegimeNeutral,
		EvaluatedAt:    time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC),
	}
}

func TestResearchRepositorySaveDecision(t *testing.T) {
	pool := newMockPool(t)
	repo := NewResearchRepository(pool)

	d := sampleDecision()
	pool.ExpectExec("INSERT INTO decisions").
		WithArgs(d.ID, d.Symbol, "BUY", d.Confidence, d.CompositeScore, d.EvaluatedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SaveDecision(context.Background(), d))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestResearchRepositorySaveDecisionExecError(t *testing.T) {
	pool := newMockPool(t)
	repo := NewResearchRepository(pool)

	d := sampleDecision()
	pool.ExpectExec("INSERT INTO decisions").
		WithArgs(d.ID, d.Symbol, "BUY", d.Confidence, d.CompositeScore, d.EvaluatedAt, pgxmock.AnyArg()).
		WillReturnError(errors.New("unique constraint violated"))

	err := repo.SaveDecision(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dec-001")
}

func TestResearchRepositoryListDecisions(t *testing.T) {
	pool := newMockPool(t)
	repo := NewResearchRepository(pool)

	first := sampleDecision()
	second := sampleDecision()
	second.ID = "dec-002"
	second.Action = models.ActionHold

	p1, err := json.Marshal(first)
	require.NoError(t, err)
	p2, err := json.Marshal(second)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"payload"}).AddRow(p1).AddRow(p2)
	pool.ExpectQuery("SELECT payload FROM decisions").
		WithArgs("HDFCBANK", "", pgxmock.AnyArg(), 100).
		WillReturnRows(rows)

	decisions, err := repo.ListDecisions(context.Background(), DecisionFilter{Symbol: "HDFCBANK"})
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "dec-001", decisions[0].ID)
	assert.Equal(t, models.ActionHold, decisions[1].Action)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestResearchRepositoryListDecisionsAppliesFilter(t *testing.T) {
	pool := newMockPool(t)
	repo := NewResearchRepository(pool)

	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	pool.ExpectQuery("SELECT payload FROM decisions").
		WithArgs("TCS", "SELL", since, 25).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}))

	decisions, err := repo.ListDecisions(context.Background(), DecisionFilter{
		Symbol: "TCS",
		Action: models.ActionSell,
		Since:  since,
		Limit:  25,
	})
	require.NoError(t, err)
	assert.Empty(t, decisions)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestResearchRepositoryListDecisionsCorruptPayload(t *testing.T) {
	pool := newMockPool(t)
	repo := NewResearchRepository(pool)

	rows := pgxmock.NewRows([]string{"payload"}).AddRow([]byte("{broken"))
	pool.ExpectQuery("SELECT payload FROM decisions").
		WithArgs("", "", pgxmock.AnyArg(), 100).
		WillReturnRows(rows)

	_, err := repo.ListDecisions(context.Background(), DecisionFilter{})
	assert.Error(t, err)
}

func TestResearchRepositorySaveBacktestRun(t *testing.T) {
	pool := newMockPool(t)
	repo := NewResearchRepository(pool)

	started := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	pool.ExpectExec("INSERT INTO backtest_runs").
		WithArgs("run-42", started, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	report := map[string]any{"final_equity": "1004000.00", "trades": 7}
	require.NoError(t, repo.SaveBacktestRun(context.Background(), "run-42", started, report))
	assert.NoError(t, pool.ExpectationsWereMet())
}
