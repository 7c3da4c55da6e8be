package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/models"
)

// Veto reasons. These are stable strings so reports and tests can match on
// them.
const (
	VetoNoEntrySignal    = "no entry signal"
	VetoPatternRejected  = "pattern validator rejected"
	WarnWeakFundamentals = "weak fundamentals, composite downscaled"
	WarnHighRisk         = "high composite risk, penalty applied"
)

// Synthesizer combines the four dimension scores into a final decision:
// aggregate, veto, conflict-detect, optionally defer to the LLM, decide,
// size. Each Evaluate call is a pure function of its inputs plus the market
// regime; nothing persists between calls.
type Synthesizer struct {
	cfg         config.AnalysisConfig
	patternCfg  config.PatternConfig
	market      MarketDataProvider
	technical   *TechnicalAnalyst
	fundamental *FundamentalAnalyst
	sentiment   *SentimentAnalyst
	management  *ManagementAnalyst
	llm         LLMSynthesizer
	synthCache  SynthesisCache
	logger      *logrus.Logger
}

func NewSynthesizer(
	cfg config.AnalysisConfig,
	patternCfg config.PatternConfig,
	market MarketDataProvider,
	technical *TechnicalAnalyst,
	fundamental *FundamentalAnalyst,
	sentiment *SentimentAnalyst,
	management *ManagementAnalyst,
	llm LLMSynthesizer,
	synthCache SynthesisCache,
	logger *logrus.Logger,
) *Synthesizer {
	return &Synthesizer{
		cfg:         cfg,
		patternCfg:  patternCfg,
		market:      market,
		technical:   technical,
		fundamental: fundamental,
		sentiment:   sentiment,
		management:  management,
		llm:         llm,
		synthCache:  synthCache,
		logger:      logger,
	}
}

// Analyze evaluates a symbol as of now, fetching history through yesterday
// so the current (possibly partial) trading day never leaks in.
func (s *Synthesizer) Analyze(ctx context.Context, symbol string, regime models.MarketRegime) (models.Decision, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	series, err := s.market.GetHistory(ctx, symbol, now.AddDate(-6, 0, 0), now)
	if err != nil {
		return models.Decision{}, fmt.Errorf("fetch history for %s: %w", symbol, err)
	}
	return s.AnalyzeSeries(ctx, symbol, series.Before(now), regime), nil
}

// AnalyzeSeries evaluates a symbol against an already-sliced series. The
// caller guarantees the series contains no bars at or after the date being
// evaluated; the replayer relies on this to avoid look-ahead.
func (s *Synthesizer) AnalyzeSeries(ctx context.Context, symbol string, series models.PriceSeries, regime models.MarketRegime) models.Decision {
	ctx, span := otel.Tracer("synthesizer").Start(ctx, "analyze_symbol")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	// The four dimensions are independent; run them concurrently. A failed
	// dimension degrades itself to a neutral score internally, so the
	// group never returns an error.
	var tech TechnicalResult
	scores := make(map[models.Dimension]models.DimensionScore, 4)
	var fundamentalScore, sentimentScore, managementScore models.DimensionScore

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tech = s.technical.Analyze(gctx, series)
		return nil
	})
	g.Go(func() error {
		fundamentalScore = s.fundamental.Analyze(gctx, symbol)
		return nil
	})
	g.Go(func() error {
		sentimentScore = s.sentiment.Analyze(gctx, symbol)
		return nil
	})
	g.Go(func() error {
		managementScore = s.management.Analyze(gctx, symbol)
		return nil
	})
	_ = g.Wait()

	scores[models.DimensionTechnical] = tech.DimensionScore
	scores[models.DimensionFundamental] = fundamentalScore
	scores[models.DimensionSentiment] = sentimentScore
	scores[models.DimensionManagement] = managementScore

	decision := s.synthesize(ctx, symbol, scores, tech, regime)
	if !series.Empty() {
		decision.EvaluatedAt = series.Last().Date
	} else {
		decision.EvaluatedAt = time.Now().UTC()
	}
	return decision
}

func (s *Synthesizer) synthesize(ctx context.Context, symbol string, scores map[models.Dimension]models.DimensionScore, tech TechnicalResult, regime models.MarketRegime) models.Decision {
	decision := models.Decision{
		ID:      uuid.New().String(),
		Symbol:  symbol,
		Scores:  scores,
		Regime:  regime,
		Pattern: tech.Pattern,
	}
	decision.Validation = tech.Validation

	composite := s.Aggregate(scores, regime)

	// Veto evaluation. Every applicable veto accumulates; nothing
	// short-circuits, so a report can show all the reasons at once.
	vetoes, warnings, riskLevel := s.evaluateVetoes(scores, tech)
	decision.RiskLevel = riskLevel
	if containsString(warnings, WarnWeakFundamentals) {
		composite *= s.cfg.WeakFundamentalsMultiplier
	}
	if riskLevel == models.RiskHigh {
		composite -= s.cfg.HighRiskPenalty
		warnings = append(warnings, WarnHighRisk)
	}
	composite = clampScore(composite)
	decision.CompositeScore = composite
	decision.Vetoes = vetoes
	decision.Warnings = warnings

	decision.Conflict = s.DetectConflict(scores)

	// LLM synthesis only for contested or borderline cases, and always
	// behind the similarity-matched cache. A failed LLM call falls back
	// silently to the rule-based path.
	var synthesis *models.SynthesisResult
	if s.shouldSynthesize(decision.Conflict.Level, composite) {
		synthesis = s.llmSynthesis(ctx, symbol, scores, decision.Conflict, composite, regime, vetoes)
		decision.LLMUsed = synthesis != nil
	}

	decision.Action, decision.Confidence = s.decide(composite, vetoes, synthesis)
	if decision.LLMUsed && synthesis != nil {
		decision.Warnings = appendRationale(decision.Warnings, synthesis.Rationale)
	}

	if decision.Action.IsBuy() {
		decision.PositionFraction = s.positionFraction(composite, riskLevel)
		entry := 0.0
		if tech.Pattern != nil {
			entry = tech.Pattern.EntryPrice
		}
		decision.TargetPrice = s.targetPrice(tech, entry)
		decision.StopPrice = s.stopPrice(tech, entry)
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":    symbol,
		"action":    decision.Action,
		"composite": decision.CompositeScore,
		"conflict":  decision.Conflict.Level,
		"vetoes":    len(decision.Vetoes),
		"llm_used":  decision.LLMUsed,
	}).Info("decision synthesized")

	return decision
}

// Aggregate computes the weighted composite plus the regime adjustment. The
// four weights sum to at most 1; the remainder is the regime/risk budget,
// expressed as up to ±10 points scaled by the regime weight.
func (s *Synthesizer) Aggregate(scores map[models.Dimension]models.DimensionScore, regime models.MarketRegime) float64 {
	composite := s.cfg.FundamentalWeight*scores[models.DimensionFundamental].Score +
		s.cfg.TechnicalWeight*scores[models.DimensionTechnical].Score +
		s.cfg.SentimentWeight*scores[models.DimensionSentiment].Score +
		s.cfg.ManagementWeight*scores[models.DimensionManagement].Score

	switch regime {
	case models.RegimeBullish:
		composite += 10 * s.cfg.RegimeWeight
	case models.RegimeBearish:
		composite -= 10 * s.cfg.RegimeWeight
	}

	return clampScore(composite)
}

// evaluateVetoes applies the hard veto rules and soft warnings. A passed
// pattern validation is itself a qualifying entry signal; without one, at
// least two corroborating bullish indicators are required.
func (s *Synthesizer) evaluateVetoes(scores map[models.Dimension]models.DimensionScore, tech TechnicalResult) (vetoes, warnings []string, risk models.RiskLevel) {
	validated := tech.Validation != nil && tech.Validation.Passed

	hasPattern := tech.Pattern != nil && tech.Pattern.Confidence >= s.patternCfg.PrimaryConfidence
	if !validated && !hasPattern && tech.BullishSignals < 2 {
		vetoes = append(vetoes, VetoNoEntrySignal)
	}

	if tech.Pattern != nil && tech.Validation != nil && !tech.Validation.Passed {
		vetoes = append(vetoes, fmt.Sprintf("%s: %s", VetoPatternRejected, tech.Validation.Reason))
	}

	if scores[models.DimensionFundamental].Score < s.cfg.WeakFundamentalsFloor {
		warnings = append(warnings, WarnWeakFundamentals)
	}

	risk = s.assessRisk(scores, tech)
	return vetoes, warnings, risk
}

// assessRisk classifies composite risk from leverage, tape volatility and
// sentiment. Two or more stressed inputs mean high risk.
func (s *Synthesizer) assessRisk(scores map[models.Dimension]models.DimensionScore, tech TechnicalResult) models.RiskLevel {
	stressed := 0
	if lev, ok := scores[models.DimensionFundamental].SubScores["leverage"]; ok && lev < 6 {
		stressed++
	}
	if vol, ok := tech.SubScores["volatility"]; ok && vol < 30 {
		stressed++
	}
	if scores[models.DimensionSentiment].Score < 35 {
		stressed++
	}

	switch {
	case stressed >= 2:
		return models.RiskHigh
	case stressed == 1:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// DetectConflict summarizes pairwise disagreement across the four scores.
// The coefficient-of-variation band and the disagreement count each imply a
// level; the stricter one wins.
func (s *Synthesizer) DetectConflict(scores map[models.Dimension]models.DimensionScore) models.ConflictInfo {
	dims := models.AllDimensions()
	values := make([]float64, len(dims))
	for i, d := range dims {
		values[i] = scores[d].Score
	}

	mean := meanOf(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	stdDev := math.Sqrt(variance)

	info := models.ConflictInfo{Variance: variance, StdDev: stdDev}

	for i := 0; i < len(dims); i++ {
		for j := i + 1; j < len(dims); j++ {
			diff := math.Abs(values[i] - values[j])
			if diff >= s.cfg.DisagreementGap {
				info.Disagreements = append(info.Disagreements, models.Disagreement{
					A: dims[i], B: dims[j], Diff: diff,
				})
			}
		}
	}

	cov := 0.0
	if mean > 0 {
		cov = stdDev / mean
	}
	switch {
	case cov > 0.40:
		info.Level = models.ConflictHigh
	case cov > 0.25:
		info.Level = models.ConflictMedium
	case cov > 0.15:
		info.Level = models.ConflictLow
	default:
		info.Level = models.ConflictNone
	}

	if len(info.Disagreements) >= 2 {
		info.Level = models.ConflictHigh
	}

	return info
}

func (s *Synthesizer) shouldSynthesize(level models.ConflictLevel, composite float64) bool {
	if s.llm == nil {
		return false
	}
	if level == models.ConflictMedium || level == models.ConflictHigh {
		return true
	}
	return composite >= s.cfg.BorderlineLow && composite <= s.cfg.BorderlineHigh
}

func (s *Synthesizer) llmSynthesis(ctx context.Context, symbol string, scores map[models.Dimension]models.DimensionScore, conflict models.ConflictInfo, composite float64, regime models.MarketRegime, vetoes []string) *models.SynthesisResult {
	if s.synthCache != nil {
		if cached, ok := s.synthCache.GetSynthesis(ctx, symbol, scores, conflict.Level, composite); ok {
			return &cached
		}
	}

	result, err := s.llm.Synthesize(ctx, SynthesisContext{
		Symbol:    symbol,
		Scores:    scores,
		Composite: composite,
		Conflict:  conflict,
		Regime:    regime,
		Vetoes:    vetoes,
	})
	if err != nil || result == nil {
		if err != nil {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("llm synthesis failed, falling back to rules")
		}
		return nil
	}

	if s.synthCache != nil {
		s.synthCache.SetSynthesis(ctx, symbol, scores, conflict.Level, composite, *result)
	}
	return result
}

// decide picks the action. An LLM recommendation is authoritative for the
// action and confidence, but vetoes are enforced here and never delegated:
// a vetoed decision can only be HOLD or SELL no matter what the LLM said.
func (s *Synthesizer) decide(composite float64, vetoes []string, synthesis *models.SynthesisResult) (models.Action, float64) {
	if synthesis != nil {
		action := synthesis.Action
		if len(vetoes) > 0 && action.IsBuy() {
			action = models.ActionHold
		}
		return action, clampScore(synthesis.Confidence)
	}

	switch {
	case len(vetoes) > 0 || composite < s.cfg.SellThreshold:
		return models.ActionSell, clampScore(100 - composite)
	case composite >= s.cfg.StrongBuyThreshold:
		return models.ActionStrongBuy, composite
	case composite >= s.cfg.BuyThreshold:
		return models.ActionBuy, composite
	default:
		return models.ActionHold, composite
	}
}

// positionFraction is the banded sizing used at decision time: a base
// fraction by composite tier, scaled down by risk level and capped at the
// configured maximum. The Kelly-based refinement lives in the portfolio
// risk manager.
func (s *Synthesizer) positionFraction(composite float64, risk models.RiskLevel) float64 {
	var base float64
	switch {
	case composite >= 85:
		base = 0.05
	case composite >= 75:
		base = 0.04
	case composite >= 65:
		base = 0.03
	default:
		base = 0.02
	}

	switch risk {
	case models.RiskMedium:
		base *= 0.75
	case models.RiskHigh:
		base *= 0.5
	}

	return math.Min(base, s.cfg.MaxPositionFraction)
}

// targetPrice projects the exit. A validated pattern's recommended target
// is authoritative; otherwise fall back to the detected pattern's own
// conservative projection, then to an ATR multiple, then to a flat 5%.
func (s *Synthesizer) targetPrice(tech TechnicalResult, entry float64) float64 {
	if tech.Validation != nil && tech.Validation.Passed && tech.Validation.RecommendedTarget > 0 {
		return tech.Validation.RecommendedTarget
	}
	if tech.Pattern != nil && tech.Pattern.TargetConservative > 0 {
		return tech.Pattern.TargetConservative
	}
	if entry > 0 && tech.ATR > 0 {
		return entry + 2*tech.ATR
	}
	if entry > 0 {
		return entry * 1.05
	}
	return 0
}

func (s *Synthesizer) stopPrice(tech TechnicalResult, entry float64) float64 {
	if tech.Pattern != nil && tech.Pattern.StopLevel > 0 {
		return tech.Pattern.StopLevel
	}
	if entry > 0 {
		return entry * (1 - s.patternCfg.StopLossPct)
	}
	return 0
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendRationale(warnings []string, rationale string) []string {
	if rationale == "" {
		return warnings
	}
	return append(warnings, "llm: "+rationale)
}
