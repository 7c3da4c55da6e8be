package services

import (
	"context"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volume"
	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/models"
)

const minBarsTechnical = 60

// TechnicalResult is the technical dimension's output. Beyond the plain
// score it carries the detected pattern, its historical validation and the
// count of corroborating bullish indicators, all of which the synthesizer's
// veto stage needs.
type TechnicalResult struct {
	models.DimensionScore
	Pattern        *models.PatternCandidate `json:"pattern,omitempty"`
	Validation     *models.ValidationResult `json:"validation,omitempty"`
	BullishSignals int                      `json:"bullish_signals"`
	ATR            float64                  `json:"atr,omitempty"`
	Resistance     float64                  `json:"resistance,omitempty"`
}

// TechnicalAnalyst scores the technical dimension from price action alone.
// It owns the pattern detector and validator; a detected pattern is one
// signal source among several, never the sole determinant of the score.
type TechnicalAnalyst struct {
	cfg       config.PatternConfig
	detector  *PatternDetector
	validator *PatternValidator
	logger    *logrus.Logger
}

func NewTechnicalAnalyst(cfg config.PatternConfig, detector *PatternDetector, validator *PatternValidator, logger *logrus.Logger) *TechnicalAnalyst {
	return &TechnicalAnalyst{
		cfg:       cfg,
		detector:  detector,
		validator: validator,
		logger:    logger,
	}
}

// Analyze computes the technical dimension for the given series. The series
// must already be sliced to exclude the evaluation date; Analyze never
// fetches data itself. A too-short or empty series degrades to a neutral
// score with an error string rather than failing the evaluation.
func (a *TechnicalAnalyst) Analyze(ctx context.Context, series models.PriceSeries) TechnicalResult {
	result := TechnicalResult{
		DimensionScore: models.DimensionScore{
			Dimension: models.DimensionTechnical,
			Score:     50,
			SubScores: map[string]float64{},
		},
	}

	if series.Len() < minBarsTechnical {
		result.Err = "insufficient price history for technical analysis"
		result.Rating = "Unknown"
		return result
	}

	closes := series.Closes()
	volumes := series.Volumes()

	trendScore, trendSignals := a.scoreTrend(closes)
	momentumScore, momentumSignals := a.scoreMomentum(closes)
	volumeScore, volumeSignals := a.scoreVolume(closes, volumes)
	volatilityScore := a.scoreVolatility(series)

	result.SubScores["trend"] = trendScore
	result.SubScores["momentum"] = momentumScore
	result.SubScores["volume"] = volumeScore
	result.SubScores["volatility"] = volatilityScore
	result.Signals = append(result.Signals, trendSignals...)
	result.Signals = append(result.Signals, momentumSignals...)
	result.Signals = append(result.Signals, volumeSignals...)
	result.BullishSignals = len(trendSignals) + len(momentumSignals) + len(volumeSignals)
	result.ATR = lastATR(series)

	score := trendScore*0.35 + momentumScore*0.30 + volumeScore*0.20 + volatilityScore*0.15

	// Pattern contribution: a validated pattern is worth more than a raw
	// detection, and a detection that failed validation is worth nothing.
	candidates := a.detector.DetectAll(series)
	if primary := a.detector.Primary(candidates); primary != nil {
		result.Pattern = primary
		result.Resistance = primary.Resistance
		validation, err := a.validator.Validate(ctx, series, primary)
		if err != nil {
			a.logger.WithError(err).WithField("symbol", series.Symbol).Warn("pattern validation failed to run")
		} else {
			result.Validation = validation
			if validation.Passed {
				score += 15
				result.Signals = append(result.Signals, "validated "+string(primary.Type)+" pattern")
			}
		}
	}

	result.Score = clampScore(score)
	result.Rating = technicalRating(result.Score)
	return result
}

// scoreTrend rates moving-average structure. Budget: price above SMA50 +30,
// price above SMA200 +30, SMA50 above SMA200 +25, rising SMA50 +15.
func (a *TechnicalAnalyst) scoreTrend(closes []float64) (float64, []string) {
	score := 0.0
	var signals []string

	sma50 := smaSeries(closes, 50)
	sma200 := smaSeries(closes, 200)
	last := closes[len(closes)-1]

	if len(sma50) > 0 && last > sma50[len(sma50)-1] {
		score += 30
		signals = append(signals, "price above 50-day average")
	}
	if len(sma200) > 0 && last > sma200[len(sma200)-1] {
		score += 30
		signals = append(signals, "price above 200-day average")
	}
	if len(sma50) > 0 && len(sma200) > 0 && sma50[len(sma50)-1] > sma200[len(sma200)-1] {
		score += 25
		signals = append(signals, "50-day average above 200-day average")
	}
	if len(sma50) >= 5 && sma50[len(sma50)-1] > sma50[len(sma50)-5] {
		score += 15
	}

	return clampScore(score), signals
}

// scoreMomentum rates RSI position and MACD state. RSI in the 50-70 zone is
// healthy momentum; oversold readings below 35 earn recovery points; an
// overbought reading above 75 zeroes the RSI contribution.
func (a *TechnicalAnalyst) scoreMomentum(closes []float64) (float64, []string) {
	score := 0.0
	var signals []string

	rsiInd := momentum.NewRsiWithPeriod[float64](14)
	rsiValues := helper.ChanToSlice(rsiInd.Compute(helper.SliceToChan(closes)))
	if len(rsiValues) > 0 {
		rsi := rsiValues[len(rsiValues)-1]
		switch {
		case rsi >= 50 && rsi <= 70:
			score += 50
			signals = append(signals, "RSI in bullish zone")
		case rsi < 35:
			score += 40
			signals = append(signals, "RSI oversold")
		case rsi > 75:
			// Overbought. No momentum points.
		default:
			score += 25
		}
	}

	macdInd := trend.NewMacdWithPeriod[float64](12, 26, 9)
	macdLine, macdSignal := macdInd.Compute(helper.SliceToChan(closes))
	// Both outputs are fed in lockstep from one unbuffered fan-out, so they
	// must be drained concurrently; draining one to completion first starves
	// the other and blocks forever.
	signalCh := make(chan []float64, 1)
	go func() { signalCh <- helper.ChanToSlice(macdSignal) }()
	macdValues := helper.ChanToSlice(macdLine)
	signalValues := <-signalCh
	if len(macdValues) > 0 && len(signalValues) > 0 {
		m := macdValues[len(macdValues)-1]
		s := signalValues[len(signalValues)-1]
		if m > s {
			score += 30
			signals = append(signals, "MACD above signal line")
		}
		if m > 0 {
			score += 20
		}
	}

	return clampScore(score), signals
}

// scoreVolume rates OBV direction and recent volume expansion.
func (a *TechnicalAnalyst) scoreVolume(closes, volumes []float64) (float64, []string) {
	score := 0.0
	var signals []string

	obvInd := volume.NewObv[float64]()
	obvValues := helper.ChanToSlice(obvInd.Compute(helper.SliceToChan(closes), helper.SliceToChan(volumes)))
	if len(obvValues) >= 10 && obvValues[len(obvValues)-1] > obvValues[len(obvValues)-10] {
		score += 50
		signals = append(signals, "on-balance volume rising")
	}

	if len(volumes) >= 25 {
		recent := meanOf(volumes[len(volumes)-5:])
		base := meanOf(volumes[len(volumes)-25 : len(volumes)-5])
		if base > 0 && recent > base*1.5 {
			score += 50
			signals = append(signals, "volume surge")
		} else if base > 0 && recent > base {
			score += 25
		}
	}

	return clampScore(score), signals
}

// scoreVolatility rewards a calm tape. ATR under 2% of price scores full
// marks, fading to zero at 8%.
func (a *TechnicalAnalyst) scoreVolatility(series models.PriceSeries) float64 {
	atr := lastATR(series)
	last := series.Last().Close
	if atr <= 0 || last <= 0 {
		return 50
	}
	atrPct := atr / last * 100
	switch {
	case atrPct <= 2:
		return 100
	case atrPct >= 8:
		return 0
	default:
		return (8 - atrPct) / 6 * 100
	}
}

func technicalRating(score float64) string {
	switch {
	case score >= 75:
		return "Strong"
	case score >= 55:
		return "Positive"
	case score >= 40:
		return "Neutral"
	default:
		return "Weak"
	}
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
