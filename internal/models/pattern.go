package models

import (
	"time"
)

// PatternType identifies one of the chart formations the detector knows.
// The set is closed: detectors are registered in a dispatch table keyed by
// this type, never selected by substring matching.
type PatternType string

const (
	PatternCupWithHandle        PatternType = "cup_with_handle"
	PatternReverseHeadShoulders PatternType = "reverse_head_shoulders"
	PatternGoldenCross          PatternType = "golden_cross"
	PatternBreakout             PatternType = "breakout"
)

// AllPatternTypes lists every registered pattern in a stable order.
func AllPatternTypes() []PatternType {
	return []PatternType{
		PatternCupWithHandle,
		PatternReverseHeadShoulders,
		PatternGoldenCross,
		PatternBreakout,
	}
}

// PatternCandidate is one detected geometric formation at a specific point in
// time. Candidates are created fresh on every detection pass and never
// mutated.
type PatternCandidate struct {
	Type       PatternType `json:"pattern_type"`
	Symbol     string      `json:"symbol"`
	DetectedAt time.Time   `json:"detected_at"`
	EntryPrice float64     `json:"entry_price"`
	Confidence float64     `json:"confidence"` // 0-100
	EntryReady bool        `json:"entry_ready"`
	EntryType  string      `json:"entry_type"`

	// Pattern-specific geometry. Zero when not applicable.
	CupDepthPct    float64 `json:"cup_depth_pct,omitempty"`
	HandleDepthPct float64 `json:"handle_depth_pct,omitempty"`
	Neckline       float64 `json:"neckline,omitempty"`
	HeadDepthPct   float64 `json:"head_depth_pct,omitempty"`
	SMA50          float64 `json:"sma_50,omitempty"`
	SMA200         float64 `json:"sma_200,omitempty"`
	Resistance     float64 `json:"resistance,omitempty"`

	// StopLevel is the structural low a protective stop would sit under
	// (handle low, right shoulder low, breakout base).
	StopLevel float64 `json:"stop_level"`

	TargetConservative float64 `json:"target_conservative"`
	TargetAggressive   float64 `json:"target_aggressive"`
}

// TargetType names which validated target, if any, the validator recommends.
type TargetType string

const (
	TargetAggressive   TargetType = "aggressive"
	TargetConservative TargetType = "conservative"
	TargetNone         TargetType = "none"
)

// ValidationFailure distinguishes why a historical validation did not pass.
// The three failure modes are deliberately separate so downstream vetoes can
// explain themselves.
type ValidationFailure string

const (
	FailureNone             ValidationFailure = ""
	FailureInsufficientData ValidationFailure = "insufficient_data"
	FailureSuccessRate      ValidationFailure = "success_rate_below_threshold"
	FailureRiskReward       ValidationFailure = "risk_reward_below_minimum"
)

// ValidationResult is the outcome of backtesting a pattern's historical
// occurrences on the same instrument. It is derived deterministically from a
// PriceSeries plus detector parameters and is immutable once computed.
type ValidationResult struct {
	Symbol                  string            `json:"symbol"`
	PatternType             PatternType       `json:"pattern_type"`
	AsOf                    time.Time         `json:"as_of"`
	HistoricalOccurrences   int               `json:"historical_occurrences"`
	AggressiveSuccessRate   float64           `json:"aggressive_success_rate"`
	ConservativeSuccessRate float64           `json:"conservative_success_rate"`
	AvgGainAggressive       float64           `json:"avg_gain_aggressive"`
	AvgGainConservative     float64           `json:"avg_gain_conservative"`
	RecommendedTarget       float64           `json:"recommended_target"` // 0 = none
	TargetType              TargetType        `json:"target_type"`
	RiskRewardRatio         float64           `json:"risk_reward_ratio"`
	Passed                  bool              `json:"validation_passed"`
	Failure                 ValidationFailure `json:"failure,omitempty"`
	Reason                  string            `json:"reason,omitempty"`
}
