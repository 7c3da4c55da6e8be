package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alphastack/equityresearch/internal/models"
)

// ResearchRepository persists decision and backtest records. The core only
// needs save/load semantics; richer reporting lives outside this module.
type ResearchRepository struct {
	pool DatabasePool
}

func NewResearchRepository(pool DatabasePool) *ResearchRepository {
	return &ResearchRepository{pool: pool}
}

// SaveDecision stores one synthesized decision as a row plus its full JSON
// payload for later inspection.
func (r *ResearchRepository) SaveDecision(ctx context.Context, d models.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision %s: %w", d.ID, err)
	}

	query := `INSERT INTO decisions (id, symbol, action, confidence, composite_score, evaluated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.pool.Exec(ctx, query,
		d.ID, d.Symbol, string(d.Action), d.Confidence, d.CompositeScore, d.EvaluatedAt, payload); err != nil {
		return fmt.Errorf("failed to insert decision %s: %w", d.ID, err)
	}
	return nil
}

// DecisionFilter narrows ListDecisions results. Zero values mean "no filter".
type DecisionFilter struct {
	Symbol string
	Action models.Action
	Since  time.Time
	Limit  int
}

// ListDecisions loads stored decisions newest-first.
func (r *ResearchRepository) ListDecisions(ctx context.Context, filter DecisionFilter) ([]models.Decision, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT payload FROM decisions
		WHERE ($1 = '' OR symbol = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3::timestamptz IS NULL OR evaluated_at >= $3)
		ORDER BY evaluated_at DESC
		LIMIT $4`

	var since interface{}
	if !filter.Since.IsZero() {
		since = filter.Since
	}

	rows, err := r.pool.Query(ctx, query, filter.Symbol, string(filter.Action), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.Decision
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan decision row: %w", err)
		}
		var d models.Decision
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision payload: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}

	return decisions, nil
}

// SaveBacktestRun stores a replayer report keyed by run ID.
func (r *ResearchRepository) SaveBacktestRun(ctx context.Context, runID string, startedAt time.Time, report interface{}) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest report: %w", err)
	}

	query := `INSERT INTO backtest_runs (id, started_at, report) VALUES ($1, $2, $3)`
	if _, err := r.pool.Exec(ctx, query, runID, startedAt, payload); err != nil {
		return fmt.Errorf("failed to insert backtest run %s: %w", runID, err)
	}
	return nil
}
