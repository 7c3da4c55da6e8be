package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/models"
)

// Sentiment input keys. Readings are normalized by the provider: tone in
// [-1,1], revisions and momentum as signed percentages.
const (
	SentimentNewsTone        = "news_tone"
	SentimentAnalystRevision = "analyst_revision"
	SentimentSocialMomentum  = "social_momentum"
	SentimentDeliveryPct     = "delivery_pct"
)

// SentimentAnalyst scores the sentiment dimension. Qualitative dimension:
// baseline 50, bounded adjustments per sub-signal.
type SentimentAnalyst struct {
	provider SentimentProvider
	retry    RetryPolicy
	logger   *logrus.Logger
}

func NewSentimentAnalyst(provider SentimentProvider, logger *logrus.Logger) *SentimentAnalyst {
	return &SentimentAnalyst{
		provider: provider,
		retry:    DefaultRetryPolicy(),
		logger:   logger,
	}
}

func (a *SentimentAnalyst) Analyze(ctx context.Context, symbol string) models.DimensionScore {
	inputs, err := ExecuteWithRetry(ctx, a.retry, a.logger, "sentiment_fetch", func(ctx context.Context) (map[string]float64, error) {
		return a.provider.GetSentiment(ctx, symbol)
	})
	if err != nil {
		return models.DimensionScore{
			Dimension: models.DimensionSentiment,
			Score:     50,
			Rating:    "Unknown",
			Err:       fmt.Sprintf("sentiment data unavailable: %v", err),
		}
	}
	return a.Score(inputs)
}

// Score maps the raw readings onto the point budget: news tone ±20, analyst
// revisions ±15, social momentum ±10, delivery percentage +5.
func (a *SentimentAnalyst) Score(inputs map[string]float64) models.DimensionScore {
	score := 50.0
	sub := map[string]float64{}
	var signals []string

	if tone, ok := inputs[SentimentNewsTone]; ok {
		pts := clampRange(tone*20, -20, 20)
		sub["news_tone"] = pts
		score += pts
		if pts >= 10 {
			signals = append(signals, "positive news coverage")
		} else if pts <= -10 {
			signals = append(signals, "negative news coverage")
		}
	}

	if rev, ok := inputs[SentimentAnalystRevision]; ok {
		pts := clampRange(rev*1.5, -15, 15)
		sub["analyst_revision"] = pts
		score += pts
		if pts >= 8 {
			signals = append(signals, "analyst estimates rising")
		}
	}

	if mom, ok := inputs[SentimentSocialMomentum]; ok {
		pts := clampRange(mom, -10, 10)
		sub["social_momentum"] = pts
		score += pts
	}

	if delivery, ok := inputs[SentimentDeliveryPct]; ok && delivery >= 60 {
		sub["delivery_pct"] = 5
		score += 5
		signals = append(signals, "high delivery-based buying")
	}

	return models.DimensionScore{
		Dimension: models.DimensionSentiment,
		Score:     clampScore(score),
		SubScores: sub,
		Signals:   signals,
		Rating:    qualitativeRating(score),
	}
}

func qualitativeRating(score float64) string {
	switch {
	case score >= 70:
		return "Positive"
	case score >= 45:
		return "Neutral"
	default:
		return "Negative"
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
