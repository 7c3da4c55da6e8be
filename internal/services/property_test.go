package services

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/models"
)

func seriesFromCloses(closes []float64) models.PriceSeries {
	points := make([]models.PricePoint, 0, len(closes))
	for i, c := range closes {
		points = append(points, models.PricePoint{
			Date:   tradingDate(i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000,
		})
	}
	return models.PriceSeries{Symbol: "PROP", Points: points}
}

func TestProperty_DetectionDeterminism(t *testing.T) {
	detector := newTestDetector(t)
	properties := gopter.NewProperties(nil)

	properties.Property("same series yields same candidates", prop.ForAll(
		func(closes []float64) bool {
			series := seriesFromCloses(closes)
			first := detector.DetectAll(series)
			second := detector.DetectAll(series)
			if len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i] != second[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(120, gen.Float64Range(10, 500)),
	))

	properties.TestingRun(t)
}

func TestProperty_CandidateConfidenceBounds(t *testing.T) {
	detector := newTestDetector(t)
	properties := gopter.NewProperties(nil)

	properties.Property("confidence of any candidate is in [0,100]", prop.ForAll(
		func(closes []float64) bool {
			for _, c := range detector.DetectAll(seriesFromCloses(closes)) {
				if c.Confidence < 0 || c.Confidence > 100 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(250, gen.Float64Range(10, 500)),
	))

	properties.TestingRun(t)
}

func TestProperty_SentimentScoreBounds(t *testing.T) {
	a := NewSentimentAnalyst(nil, testLogger())
	properties := gopter.NewProperties(nil)

	properties.Property("sentiment score stays in [0,100] for any readings", prop.ForAll(
		func(tone, revision, momentum, delivery float64) bool {
			score := a.Score(map[string]float64{
				SentimentNewsTone:        tone,
				SentimentAnalystRevision: revision,
				SentimentSocialMomentum:  momentum,
				SentimentDeliveryPct:     delivery,
			})
			return score.Score >= 0 && score.Score <= 100
		},
		gen.Float64Range(-100, 100),
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-100, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_ManagementScoreBounds(t *testing.T) {
	a := NewManagementAnalyst(nil, testLogger())
	properties := gopter.NewProperties(nil)

	properties.Property("management score stays in [0,100] for any readings", prop.ForAll(
		func(holding, change, pledged float64, flag bool) bool {
			inputs := map[string]float64{
				MgmtPromoterHolding: holding,
				MgmtHoldingChange:   change,
				MgmtPledgedPct:      pledged,
			}
			if flag {
				inputs[MgmtAuditorFlag] = 1
			}
			score := a.Score(inputs)
			return score.Score >= 0 && score.Score <= 100
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(-100, 100),
		gen.Float64Range(0, 100),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_CompositeBounds(t *testing.T) {
	s := newTestSynthesizerForProps()
	properties := gopter.NewProperties(nil)

	properties.Property("composite stays in [0,100] for any score vector", prop.ForAll(
		func(f, tech, sent, mgmt float64) bool {
			scores := map[models.Dimension]models.DimensionScore{
				models.DimensionFundamental: {Score: f},
				models.DimensionTechnical:   {Score: tech},
				models.DimensionSentiment:   {Score: sent},
				models.DimensionManagement:  {Score: mgmt},
			}
			for _, regime := range []models.MarketRegime{models.RegimeBullish, models.RegimeNeutral, models.RegimeBearish} {
				composite := s.Aggregate(scores, regime)
				if composite < 0 || composite > 100 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_VetoPrecedence(t *testing.T) {
	s := newTestSynthesizerForProps()
	properties := gopter.NewProperties(nil)

	properties.Property("non-empty vetoes never produce a buy", prop.ForAll(
		func(composite float64) bool {
			action, _ := s.decide(composite, []string{VetoNoEntrySignal}, nil)
			return !action.IsBuy()
		},
		gen.Float64Range(0, 100),
	))

	properties.Property("llm buy recommendation is overridden by vetoes", prop.ForAll(
		func(composite, confidence float64) bool {
			synthesis := &models.SynthesisResult{Action: models.ActionStrongBuy, Confidence: confidence}
			action, _ := s.decide(composite, []string{VetoPatternRejected}, synthesis)
			return !action.IsBuy()
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}

func newTestSynthesizerForProps() *Synthesizer {
	cfg := config.Default()
	return NewSynthesizer(cfg.Analysis, cfg.Patterns, nil, nil, nil, nil, nil, nil, nil, testLogger())
}
