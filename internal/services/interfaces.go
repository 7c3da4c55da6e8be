package services

import (
	"context"
	"time"

	"github.com/alphastack/equityresearch/internal/models"
)

// MarketDataProvider supplies daily OHLCV history. An empty series is a
// valid "no data" outcome, not an error.
type MarketDataProvider interface {
	GetHistory(ctx context.Context, symbol string, start, end time.Time) (models.PriceSeries, error)
}

// FundamentalsProvider supplies named ratios and sector metadata for a
// symbol. Missing ratio keys are tolerated by every consumer.
type FundamentalsProvider interface {
	GetFundamentals(ctx context.Context, symbol string) (models.CompanyProfile, error)
}

// SentimentProvider supplies raw sentiment inputs: news tone, analyst
// revisions, social chatter. Values are sub-signal name -> reading.
type SentimentProvider interface {
	GetSentiment(ctx context.Context, symbol string) (map[string]float64, error)
}

// ManagementProvider supplies governance/quality inputs such as promoter
// holding, pledged share fraction and auditor flags.
type ManagementProvider interface {
	GetManagementData(ctx context.Context, symbol string) (map[string]float64, error)
}

// LLMSynthesizer is the opaque LLM collaborator. A nil result or an error
// means the caller falls back to the rule-based decision path; the
// synthesizer never blocks on LLM availability.
type LLMSynthesizer interface {
	Synthesize(ctx context.Context, sctx SynthesisContext) (*models.SynthesisResult, error)
}

// SynthesisContext is what the LLM collaborator sees for a contested case.
type SynthesisContext struct {
	Symbol    string                                      `json:"symbol"`
	Scores    map[models.Dimension]models.DimensionScore  `json:"scores"`
	Composite float64                                     `json:"composite"`
	Conflict  models.ConflictInfo                         `json:"conflict"`
	Regime    models.MarketRegime                         `json:"regime"`
	Vetoes    []string                                    `json:"vetoes,omitempty"`
}

// ValidationCache is the compute-once store for validation results.
type ValidationCache interface {
	GetValidation(ctx context.Context, symbol string, pt models.PatternType, asOf time.Time) (*models.ValidationResult, bool)
	SetValidation(ctx context.Context, result *models.ValidationResult)
}

// ScoreCache stores slow-moving dimension scores between evaluations.
type ScoreCache interface {
	GetScore(ctx context.Context, symbol string, dim models.Dimension) (models.DimensionScore, bool)
	SetScore(ctx context.Context, symbol string, score models.DimensionScore)
}

// SynthesisCache is the fuzzy-matched store for LLM syntheses.
type SynthesisCache interface {
	GetSynthesis(ctx context.Context, symbol string, scores map[models.Dimension]models.DimensionScore, level models.ConflictLevel, composite float64) (models.SynthesisResult, bool)
	SetSynthesis(ctx context.Context, symbol string, scores map[models.Dimension]models.DimensionScore, level models.ConflictLevel, composite float64, result models.SynthesisResult)
}

// DecisionNotifier pushes actionable decisions to an external channel.
// Notification failures never affect the decision itself.
type DecisionNotifier interface {
	NotifyDecision(ctx context.Context, decision models.Decision) error
}

// DecisionStore persists decisions for reporting.
type DecisionStore interface {
	SaveDecision(ctx context.Context, decision models.Decision) error
}
