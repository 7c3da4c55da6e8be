package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/models"
)

// Management input keys. Holdings and pledge are percentages; flags are 0/1.
const (
	MgmtPromoterHolding = "promoter_holding"
	MgmtPledgedPct      = "pledged_pct"
	MgmtHoldingChange   = "promoter_holding_change"
	MgmtAuditorFlag     = "auditor_flag"
	MgmtRelatedPartyPct = "related_party_pct"
)

// ManagementAnalyst scores governance quality. Qualitative dimension:
// baseline 50 with bounded adjustments; pledged shares and auditor red flags
// are heavily penalized.
type ManagementAnalyst struct {
	provider ManagementProvider
	retry    RetryPolicy
	logger   *logrus.Logger
}

func NewManagementAnalyst(provider ManagementProvider, logger *logrus.Logger) *ManagementAnalyst {
	return &ManagementAnalyst{
		provider: provider,
		retry:    DefaultRetryPolicy(),
		logger:   logger,
	}
}

func (a *ManagementAnalyst) Analyze(ctx context.Context, symbol string) models.DimensionScore {
	inputs, err := ExecuteWithRetry(ctx, a.retry, a.logger, "management_fetch", func(ctx context.Context) (map[string]float64, error) {
		return a.provider.GetManagementData(ctx, symbol)
	})
	if err != nil {
		return models.DimensionScore{
			Dimension: models.DimensionManagement,
			Score:     50,
			Rating:    "Unknown",
			Err:       fmt.Sprintf("management data unavailable: %v", err),
		}
	}
	return a.Score(inputs)
}

// Score budget: promoter holding ±15, holding trend ±10, pledge -25,
// auditor flag -20, related-party exposure -10.
func (a *ManagementAnalyst) Score(inputs map[string]float64) models.DimensionScore {
	score := 50.0
	sub := map[string]float64{}
	var signals []string

	if holding, ok := inputs[MgmtPromoterHolding]; ok {
		pts := 0.0
		switch {
		case holding >= 60:
			pts = 15
			signals = append(signals, "high promoter skin in the game")
		case holding >= 40:
			pts = 8
		case holding < 20:
			pts = -10
		}
		sub["promoter_holding"] = pts
		score += pts
	}

	if change, ok := inputs[MgmtHoldingChange]; ok {
		pts := clampRange(change*2, -10, 10)
		sub["holding_trend"] = pts
		score += pts
		if pts >= 5 {
			signals = append(signals, "promoters increasing stake")
		} else if pts <= -5 {
			signals = append(signals, "promoters reducing stake")
		}
	}

	if pledged, ok := inputs[MgmtPledgedPct]; ok && pledged > 0 {
		pts := -clampRange(pledged, 0, 25)
		sub["pledge"] = pts
		score += pts
		if pledged >= 10 {
			signals = append(signals, "significant promoter pledge")
		}
	}

	if flag, ok := inputs[MgmtAuditorFlag]; ok && flag > 0 {
		sub["auditor"] = -20
		score -= 20
		signals = append(signals, "auditor qualification on record")
	}

	if rpt, ok := inputs[MgmtRelatedPartyPct]; ok && rpt >= 10 {
		sub["related_party"] = -10
		score -= 10
		signals = append(signals, "heavy related-party transactions")
	}

	return models.DimensionScore{
		Dimension: models.DimensionManagement,
		Score:     clampScore(score),
		SubScores: sub,
		Signals:   signals,
		Rating:    qualitativeRating(score),
	}
}
