package models

import (
	"time"
)

// Action is the final call the synthesizer makes for a symbol.
type Action string

const (
	ActionStrongBuy Action = "STRONG_BUY"
	ActionBuy       Action = "BUY"
	ActionHold      Action = "HOLD"
	ActionSell      Action = "SELL"
)

// IsBuy reports whether the action opens a position.
func (a Action) IsBuy() bool { return a == ActionBuy || a == ActionStrongBuy }

// Dimension names one analyst dimension.
type Dimension string

const (
	DimensionFundamental Dimension = "fundamental"
	DimensionTechnical   Dimension = "technical"
	DimensionSentiment   Dimension = "sentiment"
	DimensionManagement  Dimension = "management"
)

// AllDimensions lists the four analyst dimensions in a stable order.
func AllDimensions() []Dimension {
	return []Dimension{DimensionFundamental, DimensionTechnical, DimensionSentiment, DimensionManagement}
}

// DimensionScore is one analyst dimension's output. Scores are always in
// [0,100]. A failed dimension carries a neutral score plus a non-empty Err so
// consumers can uniformly check for degradation without type switching.
type DimensionScore struct {
	Dimension Dimension          `json:"dimension"`
	Score     float64            `json:"score"`
	SubScores map[string]float64 `json:"sub_scores,omitempty"`
	Signals   []string           `json:"signals,omitempty"`
	Rating    string             `json:"rating,omitempty"`
	Err       string             `json:"error,omitempty"`
}

// ConflictLevel buckets how much the four dimension scores disagree.
type ConflictLevel string

const (
	ConflictNone   ConflictLevel = "none"
	ConflictLow    ConflictLevel = "low"
	ConflictMedium ConflictLevel = "medium"
	ConflictHigh   ConflictLevel = "high"
)

// Disagreement records one pair of dimensions whose scores differ by at least
// the disagreement threshold.
type Disagreement struct {
	A    Dimension `json:"a"`
	B    Dimension `json:"b"`
	Diff float64   `json:"diff"`
}

// ConflictInfo is the pairwise-disagreement summary over the four dimension
// scores. Purely derived; recomputed on every decision.
type ConflictInfo struct {
	Variance      float64        `json:"variance"`
	StdDev        float64        `json:"std_dev"`
	Disagreements []Disagreement `json:"disagreements,omitempty"`
	Level         ConflictLevel  `json:"conflict_level"`
}

// MarketRegime labels the broad market environment used for the composite
// regime adjustment.
type MarketRegime string

const (
	RegimeBullish MarketRegime = "bullish"
	RegimeBearish MarketRegime = "bearish"
	RegimeNeutral MarketRegime = "neutral"
)

// RiskLevel classifies the composite risk of a candidate position.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SynthesisResult is the structured output of the external LLM synthesis
// collaborator. A nil result means the caller falls back to the rule-based
// path.
type SynthesisResult struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Decision is the synthesizer's final output for one (symbol, evaluation)
// pair. Immutable once produced.
type Decision struct {
	ID               string                       `json:"id"`
	Symbol           string                       `json:"symbol"`
	Action           Action                       `json:"action"`
	Confidence       float64                      `json:"confidence"`
	CompositeScore   float64                      `json:"composite_score"`
	PositionFraction float64                      `json:"position_size_fraction"`
	TargetPrice      float64                      `json:"target_price,omitempty"`
	StopPrice        float64                      `json:"stop_price,omitempty"`
	Vetoes           []string                     `json:"vetoes,omitempty"`
	Warnings         []string                     `json:"warnings,omitempty"`
	Scores           map[Dimension]DimensionScore `json:"scores"`
	Conflict         ConflictInfo                 `json:"conflict"`
	Pattern          *PatternCandidate            `json:"pattern,omitempty"`
	Validation       *ValidationResult            `json:"validation,omitempty"`
	RiskLevel        RiskLevel                    `json:"risk_level"`
	Regime           MarketRegime                 `json:"regime"`
	LLMUsed          bool                         `json:"llm_used"`
	EvaluatedAt      time.Time                    `json:"evaluated_at"`
	Err              string                       `json:"error,omitempty"`
}

// Vetoed reports whether any hard veto applies. A vetoed decision can never
// be a BUY or STRONG_BUY.
func (d Decision) Vetoed() bool { return len(d.Vetoes) > 0 }

// Fundamentals is the named-ratio dictionary supplied by the fundamental data
// collaborator. Missing keys are tolerated everywhere: absence means
// "insufficient data for this sub-score", never a fatal error.
type Fundamentals map[string]float64

// Get returns the named ratio and whether it is present.
func (f Fundamentals) Get(key string) (float64, bool) {
	v, ok := f[key]
	return v, ok
}

// Sector metadata keys use a separate map since they are strings.
type CompanyProfile struct {
	Symbol   string       `json:"symbol"`
	Sector   string       `json:"sector,omitempty"`
	Industry string       `json:"industry,omitempty"`
	Ratios   Fundamentals `json:"ratios"`
}
