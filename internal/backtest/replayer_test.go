package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/models"
	"github.com/alphastack/equityresearch/internal/services"
)

type stubMarket struct {
	series map[string]models.PriceSeries
}

func (s *stubMarket) GetHistory(_ context.Context, symbol string, _, end time.Time) (models.PriceSeries, error) {
	series, ok := s.series[symbol]
	if !ok {
		return models.PriceSeries{Symbol: symbol}, nil
	}
	// Honor the end bound the way a real data source would.
	return series.Before(end.Add(24 * time.Hour)), nil
}

type failingCollaborator struct{}

func (failingCollaborator) GetFundamentals(context.Context, string) (models.CompanyProfile, error) {
	return models.CompanyProfile{}, errors.New("offline")
}

func (failingCollaborator) GetSentiment(context.Context, string) (map[string]float64, error) {
	return nil, errors.New("offline")
}

func (failingCollaborator) GetManagementData(context.Context, string) (map[string]float64, error) {
	return nil, errors.New("offline")
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// uptrendSeries rises steadily with growing volume so the technical
// dimension scores high and an entry signal is always present.
func uptrendSeries(symbol string, bars int) models.PriceSeries {
	points := make([]models.PricePoint, 0, bars)
	for i := 0; i < bars; i++ {
		price := 100 + float64(i)*0.4
		points = append(points, models.PricePoint{
			Date:   day(i),
			Open:   price,
			High:   price + 0.6,
			Low:    price - 0.6,
			Close:  price,
			Volume: 1000 + float64(i)*10,
		})
	}
	return models.PriceSeries{Symbol: symbol, Points: points}
}

func newReplayTestStack(t *testing.T) (*Replayer, *services.Synthesizer) {
	t.Helper()
	cfg := config.Default()
	// Lean entirely on the technical dimension so the offline
	// collaborators (all degraded to neutral 50) cannot mask the signal.
	cfg.Analysis.FundamentalWeight = 0
	cfg.Analysis.SentimentWeight = 0
	cfg.Analysis.ManagementWeight = 0
	cfg.Analysis.TechnicalWeight = 1.0
	cfg.Analysis.BuyThreshold = 60
	cfg.Analysis.SellThreshold = 20
	cfg.Backtest.MinHistoryBars = 220
	cfg.Backtest.InitialCapital = 1_000_000

	logger := quietLogger()
	detector := services.NewPatternDetector(cfg.Patterns, logger)
	validator := services.NewPatternValidator(cfg.Patterns, detector, nil, logger)
	technical := services.NewTechnicalAnalyst(cfg.Patterns, detector, validator, logger)

	noRetry := failingCollaborator{}
	fundamental := services.NewFundamentalAnalyst(noRetry, nil, logger)
	sentiment := services.NewSentimentAnalyst(noRetry, logger)
	management := services.NewManagementAnalyst(noRetry, logger)

	synth := services.NewSynthesizer(
		cfg.Analysis, cfg.Patterns, nil,
		technical, fundamental, sentiment, management,
		nil, nil, logger,
	)

	market := &stubMarket{series: map[string]models.PriceSeries{
		"RELIANCE": uptrendSeries("RELIANCE", 300),
	}}

	return NewReplayer(cfg.Backtest, market, synth, logger), synth
}

func TestReplayerRunTradesAnUptrend(t *testing.T) {
	replayer, _ := newReplayTestStack(t)

	result, err := replayer.Run(context.Background(), []string{"RELIANCE"}, day(250), day(295))
	require.NoError(t, err)

	assert.Equal(t, 46, result.DaysSimulated)
	assert.NotEmpty(t, result.Trades, "a steady uptrend should open at least one position")
	assert.True(t, result.FinalEquity.GreaterThan(decimal.Zero))
	assert.GreaterOrEqual(t, result.WinRate, 0.0)
	assert.LessOrEqual(t, result.WinRate, 1.0)

	// Equity curve is strictly chronological.
	for i := 1; i < len(result.EquityCurve); i++ {
		assert.True(t, result.EquityCurve[i].Date.After(result.EquityCurve[i-1].Date))
	}
	// No trade exits before it enters and none exits after the window.
	for _, trade := range result.Trades {
		assert.False(t, trade.ExitDate.Before(trade.EntryDate))
		assert.False(t, trade.ExitDate.After(day(295)))
	}
}

func TestReplayerRequiresMinimumHistory(t *testing.T) {
	replayer, _ := newReplayTestStack(t)

	// Days early in the series have under 220 trailing bars, so nothing
	// is eligible and no trades can open.
	result, err := replayer.Run(context.Background(), []string{"RELIANCE"}, day(10), day(40))
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
}

func TestReplayerDecisionsIgnoreFutureBars(t *testing.T) {
	_, synth := newReplayTestStack(t)

	series := uptrendSeries("RELIANCE", 300)
	evalDay := day(260)

	baseline := synth.AnalyzeSeries(context.Background(), "RELIANCE", series.Before(evalDay), models.RegimeNeutral)

	// Mutating every bar dated on or after the evaluation day must not
	// change the decision made for that day.
	mutated := uptrendSeries("RELIANCE", 300)
	for i := range mutated.Points {
		if !mutated.Points[i].Date.Before(evalDay) {
			mutated.Points[i].Close = 1
			mutated.Points[i].High = 1
			mutated.Points[i].Low = 1
			mutated.Points[i].Volume = 0
		}
	}
	altered := synth.AnalyzeSeries(context.Background(), "RELIANCE", mutated.Before(evalDay), models.RegimeNeutral)

	assert.Equal(t, baseline.Action, altered.Action)
	assert.Equal(t, baseline.CompositeScore, altered.CompositeScore)
	assert.Equal(t, baseline.Vetoes, altered.Vetoes)
	assert.Equal(t, baseline.Scores, altered.Scores)
}

func TestReplayerRejectsInvertedWindow(t *testing.T) {
	replayer, _ := newReplayTestStack(t)

	_, err := replayer.Run(context.Background(), []string{"RELIANCE"}, day(100), day(50))
	assert.Error(t, err)
}

func TestFormatReportIncludesHeadlineFigures(t *testing.T) {
	replayer, _ := newReplayTestStack(t)

	result, err := replayer.Run(context.Background(), []string{"RELIANCE"}, day(250), day(295))
	require.NoError(t, err)

	report := FormatReport(result)
	assert.Contains(t, report, "Win rate")
	assert.Contains(t, report, "Max drawdown")
	assert.Contains(t, report, "Sharpe ratio")
}
