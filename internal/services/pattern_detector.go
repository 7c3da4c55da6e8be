package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/models"
)

// Minimum bars each detector needs before it will even look at a series.
const (
	minBarsCupWithHandle = 60
	minBarsHeadShoulders = 60
	minBarsGoldenCross   = 210
	minBarsBreakout      = 40

	goldenCrossShortPeriod = 50
	goldenCrossLongPeriod  = 200
	goldenCrossConfidence  = 80.0

	breakoutWindow     = 20
	breakoutMarginPct  = 0.005
	breakoutConfidence = 70.0
)

// detectorFunc runs one pattern's geometric test over the trailing window of
// the series, treating the last bar as "now". A nil return means no pattern,
// which is a normal outcome.
type detectorFunc func(d *PatternDetector, series models.PriceSeries) *models.PatternCandidate

// detectorTable is the closed dispatch table mapping each pattern type to its
// detector. New patterns register here; nothing selects a detector by string
// matching.
var detectorTable = map[models.PatternType]detectorFunc{
	models.PatternCupWithHandle:        (*PatternDetector).detectCupWithHandle,
	models.PatternReverseHeadShoulders: (*PatternDetector).detectReverseHeadShoulders,
	models.PatternGoldenCross:          (*PatternDetector).detectGoldenCross,
	models.PatternBreakout:             (*PatternDetector).detectBreakout,
}

// PatternDetector scans an OHLCV series for chart formations ending at the
// last bar of whatever window it is handed. All indexing is relative to the
// trailing window, so the historical validator can drive the same logic at
// any point in the past.
type PatternDetector struct {
	cfg    config.PatternConfig
	logger *logrus.Logger
}

func NewPatternDetector(cfg config.PatternConfig, logger *logrus.Logger) *PatternDetector {
	return &PatternDetector{cfg: cfg, logger: logger}
}

// Detect runs one specific pattern's detector.
func (d *PatternDetector) Detect(pt models.PatternType, series models.PriceSeries) *models.PatternCandidate {
	fn, ok := detectorTable[pt]
	if !ok {
		return nil
	}
	return fn(d, series)
}

// DetectAll runs every registered detector and returns the candidates sorted
// by confidence descending.
func (d *PatternDetector) DetectAll(series models.PriceSeries) []models.PatternCandidate {
	var candidates []models.PatternCandidate
	for _, pt := range models.AllPatternTypes() {
		if c := d.Detect(pt, series); c != nil {
			candidates = append(candidates, *c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates
}

// Primary picks the highest-confidence candidate that clears the primary
// threshold, or nil when nothing qualifies.
func (d *PatternDetector) Primary(candidates []models.PatternCandidate) *models.PatternCandidate {
	for i := range candidates {
		if candidates[i].Confidence >= d.cfg.PrimaryConfidence {
			return &candidates[i]
		}
	}
	return nil
}

// detectCupWithHandle tests the trailing window for a U-shaped base with a
// shallow handle near the prior high. The confidence budget is
// 25 (depth) + 20 (symmetry) + 25 (handle position) + 15 (volume dry-up) +
// 15 (recovery strength) = 100.
func (d *PatternDetector) detectCupWithHandle(series models.PriceSeries) *models.PatternCandidate {
	lookback := d.cfg.Lookback
	if series.Len() < minBarsCupWithHandle || series.Len() < lookback {
		lookback = series.Len()
	}
	if lookback < minBarsCupWithHandle {
		return nil
	}

	window := series.Tail(lookback)
	handleBars := d.cfg.HandleBars
	cup := window.Head(window.Len() - handleBars)
	handle := window.Tail(handleBars)

	cupHighIdx, cupHigh := maxHigh(cup.Points)
	cupLowIdx, cupLow := minLow(cup.Points)
	if cupHigh <= 0 || cupLow <= 0 {
		return nil
	}

	// The rim must come before the bottom: a cup declines first.
	if cupHighIdx >= cupLowIdx {
		return nil
	}

	depth := cupHigh - cupLow
	cupDepthPct := depth / cupHigh * 100
	if cupDepthPct < 8 || cupDepthPct > 40 {
		return nil
	}

	_, handleHigh := maxHigh(handle.Points)
	_, handleLow := minLow(handle.Points)
	handleDepthPct := (handleHigh - handleLow) / handleHigh * 100

	// The handle must sit in the upper part of the cup; a pullback that
	// revisits the base invalidates the formation.
	handlePosition := (handleLow - cupLow) / depth
	if handlePosition < 0.30 {
		return nil
	}

	lastClose := window.Last().Close
	if lastClose < cupHigh*0.85 {
		return nil
	}

	score := 0.0

	// Depth: full credit inside the ideal 12-33% band, fading to zero at
	// the hard 8/40 limits.
	switch {
	case cupDepthPct >= 12 && cupDepthPct <= 33:
		score += 25
	case cupDepthPct < 12:
		score += 25 * (cupDepthPct - 8) / 4
	default:
		score += 25 * (40 - cupDepthPct) / 7
	}

	// Symmetry: bottom near the middle of the cup scores best.
	mid := float64(cup.Len()-1) / 2
	offset := math.Abs(float64(cupLowIdx)-mid) / mid
	score += 20 * (1 - math.Min(offset, 1))

	// Handle position inside the cup: full credit from the 50% line up.
	if handlePosition >= 0.5 {
		score += 25
	} else {
		score += 25 * (handlePosition - 0.30) / 0.20
	}

	// Volume dry-up in the handle.
	cupVol := avgVolume(cup.Points)
	handleVol := avgVolume(handle.Points)
	if cupVol > 0 && handleVol < cupVol {
		score += 15 * math.Min((cupVol-handleVol)/cupVol/0.5, 1)
	}

	// Recovery strength toward the rim.
	recovery := (lastClose - handleLow) / math.Max(handleHigh-handleLow, cupHigh*0.001)
	score += 15 * math.Min(math.Max(recovery, 0), 1)

	if score < d.cfg.MinConfidence {
		return nil
	}

	entryType := "recovering inside handle"
	entryReady := lastClose > (handleLow+handleHigh)/2
	if lastClose > handleHigh {
		entryType = "broke above handle high"
		entryReady = true
	}

	return &models.PatternCandidate{
		Type:               models.PatternCupWithHandle,
		Symbol:             series.Symbol,
		DetectedAt:         window.Last().Date,
		EntryPrice:         lastClose,
		Confidence:         math.Min(score, 100),
		EntryReady:         entryReady,
		EntryType:          entryType,
		CupDepthPct:        cupDepthPct,
		HandleDepthPct:     handleDepthPct,
		Resistance:         cupHigh,
		StopLevel:          handleLow,
		TargetConservative: cupHigh,
		TargetAggressive:   cupHigh + depth,
	}
}

// detectReverseHeadShoulders tests for three troughs where the middle one is
// the lowest, bounded above by a neckline. Budget: 30 (shoulder symmetry) +
// 25 (head depth) + 20 (neckline flatness) + 15 (volume) + 10 (breakout) = 100.
func (d *PatternDetector) detectReverseHeadShoulders(series models.PriceSeries) *models.PatternCandidate {
	lookback := d.cfg.Lookback
	if series.Len() < lookback {
		lookback = series.Len()
	}
	if lookback < minBarsHeadShoulders {
		return nil
	}

	window := series.Tail(lookback)
	third := window.Len() / 3
	left := window.Points[:third]
	middle := window.Points[third : 2*third]
	right := window.Points[2*third:]

	leftIdx, leftLow := minLow(left)
	headIdx, headLow := minLow(middle)
	rightIdx, rightLow := minLow(right)
	headIdx += third
	rightIdx += 2 * third

	// Structural rejects: the head must be chronologically between the
	// shoulders and strictly lower than both. When the deepest trough of
	// the window is not in the middle segment, the geometry is wrong.
	if headLow >= leftLow || headLow >= rightLow {
		return nil
	}
	_, windowLow := minLow(window.Points)
	if windowLow < headLow {
		return nil
	}

	// Neckline: the peaks between left shoulder/head and head/right shoulder.
	_, peakA := maxHigh(window.Points[leftIdx:headIdx])
	_, peakB := maxHigh(window.Points[headIdx:rightIdx])
	if peakA <= 0 || peakB <= 0 {
		return nil
	}
	neckline := (peakA + peakB) / 2

	headDepthPct := (neckline - headLow) / neckline * 100
	if headDepthPct < 5 || headDepthPct > 35 {
		return nil
	}

	score := 0.0

	// Shoulder symmetry: similar trough heights score best.
	shoulderDiff := math.Abs(leftLow-rightLow) / math.Max(leftLow, rightLow)
	score += 30 * (1 - math.Min(shoulderDiff/0.15, 1))

	// Head depth in the ideal 10-25% band.
	switch {
	case headDepthPct >= 10 && headDepthPct <= 25:
		score += 25
	case headDepthPct < 10:
		score += 25 * (headDepthPct - 5) / 5
	default:
		score += 25 * (35 - headDepthPct) / 10
	}

	// Neckline flatness.
	necklineSlope := math.Abs(peakA-peakB) / math.Max(peakA, peakB)
	score += 20 * (1 - math.Min(necklineSlope/0.10, 1))

	// Volume: right shoulder forming on lighter volume than the head leg.
	headVol := avgVolume(middle)
	rightVol := avgVolume(right)
	if headVol > 0 && rightVol < headVol {
		score += 15 * math.Min((headVol-rightVol)/headVol/0.5, 1)
	}

	// Breakout progress toward the neckline.
	lastClose := window.Last().Close
	progress := (lastClose - headLow) / (neckline - headLow)
	score += 10 * math.Min(math.Max(progress, 0), 1)

	if score < d.cfg.MinConfidence {
		return nil
	}

	entryType := "approaching neckline"
	entryReady := false
	if lastClose > neckline {
		entryType = "broke above neckline"
		entryReady = true
	} else if progress >= 0.85 {
		entryReady = true
	}

	return &models.PatternCandidate{
		Type:               models.PatternReverseHeadShoulders,
		Symbol:             series.Symbol,
		DetectedAt:         window.Last().Date,
		EntryPrice:         lastClose,
		Confidence:         math.Min(score, 100),
		EntryReady:         entryReady,
		EntryType:          entryType,
		Neckline:           neckline,
		HeadDepthPct:       headDepthPct,
		Resistance:         neckline,
		StopLevel:          rightLow,
		TargetConservative: neckline,
		TargetAggressive:   neckline + (neckline - headLow),
	}
}

// detectGoldenCross reports the 50-period SMA crossing above the 200-period
// SMA within the last few bars. Single-condition detector with fixed
// confidence; the fuzziness of the base patterns does not apply.
func (d *PatternDetector) detectGoldenCross(series models.PriceSeries) *models.PatternCandidate {
	if series.Len() < minBarsGoldenCross {
		return nil
	}

	closes := series.Closes()
	sma50 := smaSeries(closes, goldenCrossShortPeriod)
	sma200 := smaSeries(closes, goldenCrossLongPeriod)
	if len(sma50) < 2 || len(sma200) < 2 {
		return nil
	}

	// Align the two series on their common tail; both end at the last bar.
	n := len(sma200)
	sma50 = sma50[len(sma50)-n:]

	crossIdx := -1
	recent := 5
	if recent > n-1 {
		recent = n - 1
	}
	for i := n - 1; i >= n-recent; i-- {
		if sma50[i] > sma200[i] && sma50[i-1] <= sma200[i-1] {
			crossIdx = i
			break
		}
	}
	if crossIdx < 0 {
		return nil
	}

	last := series.Last()
	atr := lastATR(series)
	targetConservative := last.Close * 1.05
	targetAggressive := last.Close * 1.10
	if atr > 0 {
		targetConservative = last.Close + 2*atr
		targetAggressive = last.Close + 4*atr
	}

	return &models.PatternCandidate{
		Type:               models.PatternGoldenCross,
		Symbol:             series.Symbol,
		DetectedAt:         last.Date,
		EntryPrice:         last.Close,
		Confidence:         goldenCrossConfidence,
		EntryReady:         true,
		EntryType:          fmt.Sprintf("SMA%d crossed above SMA%d", goldenCrossShortPeriod, goldenCrossLongPeriod),
		SMA50:              sma50[n-1],
		SMA200:             sma200[n-1],
		StopLevel:          math.Min(sma200[n-1], last.Close*0.95),
		TargetConservative: targetConservative,
		TargetAggressive:   targetAggressive,
	}
}

// detectBreakout reports a close above the prior N-bar high by a margin,
// confirmed by above-average volume.
func (d *PatternDetector) detectBreakout(series models.PriceSeries) *models.PatternCandidate {
	if series.Len() < minBarsBreakout {
		return nil
	}

	last := series.Last()
	prior := series.Points[series.Len()-1-breakoutWindow : series.Len()-1]

	_, resistance := maxHigh(prior)
	_, base := minLow(prior)
	if resistance <= 0 {
		return nil
	}

	if last.Close < resistance*(1+breakoutMarginPct) {
		return nil
	}

	avgVol := avgVolume(prior)
	if avgVol > 0 && last.Volume < avgVol*1.2 {
		return nil
	}

	consolidationRange := resistance - base

	return &models.PatternCandidate{
		Type:               models.PatternBreakout,
		Symbol:             series.Symbol,
		DetectedAt:         last.Date,
		EntryPrice:         last.Close,
		Confidence:         breakoutConfidence,
		EntryReady:         true,
		EntryType:          fmt.Sprintf("close above %d-bar high on volume", breakoutWindow),
		Resistance:         resistance,
		StopLevel:          base,
		TargetConservative: resistance + consolidationRange*0.5,
		TargetAggressive:   resistance + consolidationRange,
	}
}

// Helpers

func maxHigh(points []models.PricePoint) (int, float64) {
	if len(points) == 0 {
		return -1, 0
	}
	idx, best := 0, points[0].High
	for i, p := range points {
		if p.High > best {
			idx, best = i, p.High
		}
	}
	return idx, best
}

func minLow(points []models.PricePoint) (int, float64) {
	if len(points) == 0 {
		return -1, 0
	}
	idx, best := 0, points[0].Low
	for i, p := range points {
		if p.Low < best {
			idx, best = i, p.Low
		}
	}
	return idx, best
}

func avgVolume(points []models.PricePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Volume
	}
	return sum / float64(len(points))
}

func smaSeries(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(sma.Compute(helper.SliceToChan(prices)))
}

func lastATR(series models.PriceSeries) float64 {
	if series.Len() < 15 {
		return 0
	}
	atr := volatility.NewAtr[float64]()
	values := helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(series.Highs()),
		helper.SliceToChan(series.Lows()),
		helper.SliceToChan(series.Closes()),
	))
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
