package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/models"
)

// Occurrence is one historical detection of a pattern: where a trade would
// have been entered and the two targets the detector projected at that time.
type Occurrence struct {
	EntryDate          time.Time
	EntryPrice         float64
	ConservativeTarget float64
	AggressiveTarget   float64
}

// occurrenceOutcome is the simulated result of one occurrence scored against
// all bars after its entry date.
type occurrenceOutcome struct {
	aggressiveHit    bool
	conservativeHit  bool
	aggressiveGain   float64 // pct gain at first hit, or at final close
	conservativeGain float64
}

// PatternValidator answers whether the current instance of a pattern is
// trustworthy by replaying every historical occurrence of the same pattern
// on the same instrument against the detector's own targets.
//
// Validation is expensive (a full re-scan of up to five years of daily
// bars), so results are cached by (symbol, pattern, as-of date) and
// concurrent requests for the same key are collapsed with singleflight.
type PatternValidator struct {
	cfg      config.PatternConfig
	detector *PatternDetector
	cache    ValidationCache
	group    singleflight.Group
	logger   *logrus.Logger
}

func NewPatternValidator(cfg config.PatternConfig, detector *PatternDetector, cache ValidationCache, logger *logrus.Logger) *PatternValidator {
	return &PatternValidator{
		cfg:      cfg,
		detector: detector,
		cache:    cache,
		logger:   logger,
	}
}

// Validate backtests the candidate's pattern type over the full history in
// series. The caller is responsible for passing only bars strictly before
// the evaluation date; Validate never sees the future.
func (v *PatternValidator) Validate(ctx context.Context, series models.PriceSeries, candidate *models.PatternCandidate) (*models.ValidationResult, error) {
	if candidate == nil {
		return nil, fmt.Errorf("validate: nil pattern candidate")
	}

	asOf := series.Last().Date
	if v.cache != nil {
		if cached, ok := v.cache.GetValidation(ctx, series.Symbol, candidate.Type, asOf); ok {
			return cached, nil
		}
	}

	key := fmt.Sprintf("%s:%s:%s", series.Symbol, candidate.Type, asOf.Format("2006-01-02"))
	val, err, _ := v.group.Do(key, func() (interface{}, error) {
		result := v.run(series, candidate, asOf)
		if v.cache != nil {
			v.cache.SetValidation(ctx, result)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*models.ValidationResult), nil
}

func (v *PatternValidator) run(series models.PriceSeries, candidate *models.PatternCandidate, asOf time.Time) *models.ValidationResult {
	occurrences := v.ScanOccurrences(series, candidate.Type)
	outcomes := make([]occurrenceOutcome, 0, len(occurrences))
	for _, occ := range occurrences {
		outcomes = append(outcomes, simulateOccurrence(series, occ))
	}

	result := v.scoreOutcomes(series.Symbol, candidate, asOf, outcomes)

	v.logger.WithFields(logrus.Fields{
		"symbol":      series.Symbol,
		"pattern":     candidate.Type,
		"occurrences": result.HistoricalOccurrences,
		"passed":      result.Passed,
		"target_type": result.TargetType,
	}).Debug("historical pattern validation complete")

	return result
}

// ScanOccurrences re-runs the structural detector at coarse stride positions
// across the whole series and collects every accepted historical detection.
// The window ending at the series' last bar is excluded: the current
// instance must not validate itself.
func (v *PatternValidator) ScanOccurrences(series models.PriceSeries, pt models.PatternType) []Occurrence {
	var occurrences []Occurrence
	minBars := v.cfg.Lookback
	if minBars < minBarsGoldenCross && pt == models.PatternGoldenCross {
		minBars = minBarsGoldenCross
	}

	for end := minBars; end < series.Len(); end += v.cfg.ScanStride {
		window := series.Head(end)
		c := v.detector.Detect(pt, window)
		if c == nil {
			continue
		}
		occurrences = append(occurrences, Occurrence{
			EntryDate:          c.DetectedAt,
			EntryPrice:         c.EntryPrice,
			ConservativeTarget: c.TargetConservative,
			AggressiveTarget:   c.TargetAggressive,
		})
	}
	return occurrences
}

// simulateOccurrence walks every bar strictly after the entry date to the
// end of available history. There is no holding-period cutoff: a target
// counts as hit whenever a later High reaches it, and a never-hit trade is
// scored by its gain to the final close.
func simulateOccurrence(series models.PriceSeries, occ Occurrence) occurrenceOutcome {
	var out occurrenceOutcome
	if occ.EntryPrice <= 0 {
		return out
	}

	finalClose := occ.EntryPrice
	for _, p := range series.Points {
		if !p.Date.After(occ.EntryDate) {
			continue
		}
		if !out.aggressiveHit && occ.AggressiveTarget > 0 && p.High >= occ.AggressiveTarget {
			out.aggressiveHit = true
			out.aggressiveGain = (occ.AggressiveTarget - occ.EntryPrice) / occ.EntryPrice * 100
		}
		if !out.conservativeHit && occ.ConservativeTarget > 0 && p.High >= occ.ConservativeTarget {
			out.conservativeHit = true
			out.conservativeGain = (occ.ConservativeTarget - occ.EntryPrice) / occ.EntryPrice * 100
		}
		finalClose = p.Close
	}

	fallback := (finalClose - occ.EntryPrice) / occ.EntryPrice * 100
	if !out.aggressiveHit {
		out.aggressiveGain = fallback
	}
	if !out.conservativeHit {
		out.conservativeGain = fallback
	}
	return out
}

// scoreOutcomes turns the outcome set into a ValidationResult. The three
// rejection modes stay distinct so the synthesizer's vetoes can say exactly
// why a pattern was refused.
func (v *PatternValidator) scoreOutcomes(symbol string, candidate *models.PatternCandidate, asOf time.Time, outcomes []occurrenceOutcome) *models.ValidationResult {
	result := &models.ValidationResult{
		Symbol:                symbol,
		PatternType:           candidate.Type,
		AsOf:                  asOf,
		HistoricalOccurrences: len(outcomes),
		TargetType:            models.TargetNone,
	}

	if len(outcomes) < v.cfg.MinOccurrences {
		result.Failure = models.FailureInsufficientData
		result.Reason = fmt.Sprintf("only %d historical occurrences, need %d", len(outcomes), v.cfg.MinOccurrences)
		return result
	}

	var aggHits, consHits int
	var aggGainSum, consGainSum float64
	for _, o := range outcomes {
		if o.aggressiveHit {
			aggHits++
		}
		if o.conservativeHit {
			consHits++
		}
		aggGainSum += o.aggressiveGain
		consGainSum += o.conservativeGain
	}

	n := float64(len(outcomes))
	result.AggressiveSuccessRate = float64(aggHits) / n
	result.ConservativeSuccessRate = float64(consHits) / n
	result.AvgGainAggressive = aggGainSum / n
	result.AvgGainConservative = consGainSum / n

	// Threshold comparisons are inclusive. Aggressive is preferred;
	// conservative is the fallback.
	switch {
	case result.AggressiveSuccessRate >= v.cfg.AggressiveThreshold:
		result.TargetType = models.TargetAggressive
		result.RecommendedTarget = candidate.TargetAggressive
	case result.ConservativeSuccessRate >= v.cfg.ConservativeThreshold:
		result.TargetType = models.TargetConservative
		result.RecommendedTarget = candidate.TargetConservative
	default:
		result.Failure = models.FailureSuccessRate
		result.Reason = fmt.Sprintf("success rates %.0f%%/%.0f%% below thresholds %.0f%%/%.0f%%",
			result.AggressiveSuccessRate*100, result.ConservativeSuccessRate*100,
			v.cfg.AggressiveThreshold*100, v.cfg.ConservativeThreshold*100)
		return result
	}

	// Second, independent gate: the chosen target must pay at least
	// MinRiskReward times the assumed stop distance. The stop is a fixed
	// small percentage under the entry, not a simulated exit.
	potentialGainPct := 0.0
	if candidate.EntryPrice > 0 {
		potentialGainPct = (result.RecommendedTarget - candidate.EntryPrice) / candidate.EntryPrice
	}
	result.RiskRewardRatio = potentialGainPct / v.cfg.StopLossPct
	if result.RiskRewardRatio < v.cfg.MinRiskReward {
		result.Failure = models.FailureRiskReward
		result.Reason = fmt.Sprintf("risk/reward %.2f below minimum %.2f", result.RiskRewardRatio, v.cfg.MinRiskReward)
		result.TargetType = models.TargetNone
		result.RecommendedTarget = 0
		return result
	}

	result.Passed = true
	return result
}
