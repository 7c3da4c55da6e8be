package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/models"
)

// Well-known ratio keys supplied by the fundamental data collaborator.
const (
	RatioPE            = "pe"
	RatioPB            = "pb"
	RatioROE           = "roe"
	RatioROCE          = "roce"
	RatioDebtEquity    = "debt_equity"
	RatioProfitGrowth  = "profit_growth"
	RatioRevenueGrowth = "revenue_growth"
	RatioNIM           = "nim"
	RatioGrossNPA      = "gross_npa"
	RatioCASA          = "casa_ratio"
)

// fundamentalScorer is one sector variant's scoring table. Variants are
// selected by keyword matching on sector/industry strings; banks get a
// different table because debt/equity and margin ratios mean something else
// for a lender.
type fundamentalScorer interface {
	score(ratios models.Fundamentals) (float64, map[string]float64, []string)
	name() string
}

// FundamentalAnalyst scores the fundamental dimension from the named-ratio
// dictionary. Missing keys reduce the achievable score but never error.
type FundamentalAnalyst struct {
	provider FundamentalsProvider
	cache    ScoreCache
	retry    RetryPolicy
	logger   *logrus.Logger
}

func NewFundamentalAnalyst(provider FundamentalsProvider, cache ScoreCache, logger *logrus.Logger) *FundamentalAnalyst {
	return &FundamentalAnalyst{
		provider: provider,
		cache:    cache,
		retry:    DefaultRetryPolicy(),
		logger:   logger,
	}
}

// Analyze fetches fundamentals with retry and scores them. Ratios move on
// reporting cadence, so the computed score is cached for days at a time.
// Collaborator failure degrades to a neutral 50 with an error string.
func (a *FundamentalAnalyst) Analyze(ctx context.Context, symbol string) models.DimensionScore {
	if a.cache != nil {
		if cached, ok := a.cache.GetScore(ctx, symbol, models.DimensionFundamental); ok {
			return cached
		}
	}

	profile, err := ExecuteWithRetry(ctx, a.retry, a.logger, "fundamentals_fetch", func(ctx context.Context) (models.CompanyProfile, error) {
		return a.provider.GetFundamentals(ctx, symbol)
	})
	if err != nil {
		return models.DimensionScore{
			Dimension: models.DimensionFundamental,
			Score:     50,
			Rating:    "Unknown",
			Err:       fmt.Sprintf("fundamental data unavailable: %v", err),
		}
	}

	score := a.Score(profile)
	if a.cache != nil {
		a.cache.SetScore(ctx, symbol, score)
	}
	return score
}

// Score runs the sector-appropriate scoring table over the profile.
func (a *FundamentalAnalyst) Score(profile models.CompanyProfile) models.DimensionScore {
	scorer := scorerForSector(profile.Sector, profile.Industry)
	score, subScores, signals := scorer.score(profile.Ratios)

	return models.DimensionScore{
		Dimension: models.DimensionFundamental,
		Score:     clampScore(score),
		SubScores: subScores,
		Signals:   signals,
		Rating:    fundamentalRating(score),
	}
}

func scorerForSector(sector, industry string) fundamentalScorer {
	s := strings.ToLower(sector + " " + industry)
	if strings.Contains(s, "bank") || strings.Contains(s, "nbfc") || strings.Contains(s, "financial services") {
		return bankScorer{}
	}
	return genericScorer{}
}

func fundamentalRating(score float64) string {
	switch {
	case score >= 75:
		return "Strong"
	case score >= 55:
		return "Good"
	case score >= 40:
		return "Average"
	default:
		return "Weak"
	}
}

// genericScorer scores a non-financial company. Additive budget from zero:
// valuation 25, profitability 30, leverage 20, growth 25.
type genericScorer struct{}

func (genericScorer) name() string { return "generic" }

func (genericScorer) score(ratios models.Fundamentals) (float64, map[string]float64, []string) {
	sub := map[string]float64{}
	var signals []string
	total := 0.0

	valuation := 0.0
	if pe, ok := ratios.Get(RatioPE); ok && pe > 0 {
		switch {
		case pe < 15:
			valuation += 15
			signals = append(signals, "attractively valued on earnings")
		case pe < 25:
			valuation += 10
		case pe < 40:
			valuation += 5
		}
	}
	if pb, ok := ratios.Get(RatioPB); ok && pb > 0 {
		switch {
		case pb < 2:
			valuation += 10
		case pb < 4:
			valuation += 5
		}
	}
	sub["valuation"] = valuation
	total += valuation

	profitability := 0.0
	if roe, ok := ratios.Get(RatioROE); ok {
		switch {
		case roe >= 20:
			profitability += 15
			signals = append(signals, "high return on equity")
		case roe >= 12:
			profitability += 10
		case roe >= 8:
			profitability += 5
		}
	}
	if roce, ok := ratios.Get(RatioROCE); ok {
		switch {
		case roce >= 18:
			profitability += 15
		case roce >= 12:
			profitability += 10
		case roce >= 8:
			profitability += 5
		}
	}
	sub["profitability"] = profitability
	total += profitability

	leverage := 0.0
	if de, ok := ratios.Get(RatioDebtEquity); ok {
		switch {
		case de < 0.3:
			leverage += 20
			signals = append(signals, "low leverage")
		case de < 1.0:
			leverage += 12
		case de < 2.0:
			leverage += 5
		}
	} else {
		leverage += 10 // unknown leverage, partial credit
	}
	sub["leverage"] = leverage
	total += leverage

	growth := 0.0
	if pg, ok := ratios.Get(RatioProfitGrowth); ok {
		switch {
		case pg >= 20:
			growth += 15
			signals = append(signals, "strong profit growth")
		case pg >= 10:
			growth += 10
		case pg >= 0:
			growth += 5
		}
	}
	if rg, ok := ratios.Get(RatioRevenueGrowth); ok {
		switch {
		case rg >= 15:
			growth += 10
		case rg >= 5:
			growth += 5
		}
	}
	sub["growth"] = growth
	total += growth

	return total, sub, signals
}

// bankScorer scores a lender. Debt/equity is meaningless for a bank, so the
// budget shifts to asset quality and deposit franchise: margins 30, asset
// quality 30, franchise 15, growth 25.
type bankScorer struct{}

func (bankScorer) name() string { return "bank" }

func (bankScorer) score(ratios models.Fundamentals) (float64, map[string]float64, []string) {
	sub := map[string]float64{}
	var signals []string
	total := 0.0

	margins := 0.0
	if nim, ok := ratios.Get(RatioNIM); ok {
		switch {
		case nim >= 4:
			margins += 20
			signals = append(signals, "strong net interest margin")
		case nim >= 3:
			margins += 12
		case nim >= 2:
			margins += 5
		}
	}
	if roe, ok := ratios.Get(RatioROE); ok {
		switch {
		case roe >= 15:
			margins += 10
		case roe >= 10:
			margins += 5
		}
	}
	sub["margins"] = margins
	total += margins

	assetQuality := 0.0
	if npa, ok := ratios.Get(RatioGrossNPA); ok {
		switch {
		case npa < 1:
			assetQuality += 30
			signals = append(signals, "clean loan book")
		case npa < 3:
			assetQuality += 20
		case npa < 5:
			assetQuality += 8
		}
	} else {
		assetQuality += 10
	}
	sub["asset_quality"] = assetQuality
	total += assetQuality

	franchise := 0.0
	if casa, ok := ratios.Get(RatioCASA); ok {
		switch {
		case casa >= 40:
			franchise += 15
			signals = append(signals, "strong deposit franchise")
		case casa >= 30:
			franchise += 8
		}
	}
	sub["franchise"] = franchise
	total += franchise

	growth := 0.0
	if pg, ok := ratios.Get(RatioProfitGrowth); ok {
		switch {
		case pg >= 18:
			growth += 25
		case pg >= 10:
			growth += 15
		case pg >= 0:
			growth += 6
		}
	}
	sub["growth"] = growth
	total += growth

	return total, sub, signals
}
