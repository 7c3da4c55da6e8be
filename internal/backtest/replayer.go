package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/models"
	"github.com/alphastack/equityresearch/internal/services"
)

// Replayer drives the decision synthesizer day by day over a historical
// window. Days advance strictly in chronological order because the
// portfolio carries state across them; symbols within one day are
// independent and evaluated concurrently.
type Replayer struct {
	cfg    config.BacktestConfig
	market services.MarketDataProvider
	synth  *services.Synthesizer
	logger *logrus.Logger
}

// Result is the outcome of one replay run.
type Result struct {
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	FinalEquity   decimal.Decimal `json:"final_equity"`
	TotalReturn   decimal.Decimal `json:"total_return_pct"`
	Trades        []Trade         `json:"trades"`
	EquityCurve   []EquityPoint   `json:"equity_curve"`
	WinRate       float64         `json:"win_rate"`
	MaxDrawdown   float64         `json:"max_drawdown_pct"`
	SharpeRatio   float64         `json:"sharpe_ratio"`
	DaysSimulated int             `json:"days_simulated"`
}

func NewReplayer(cfg config.BacktestConfig, market services.MarketDataProvider, synth *services.Synthesizer, logger *logrus.Logger) *Replayer {
	return &Replayer{cfg: cfg, market: market, synth: synth, logger: logger}
}

// Run replays the window [start, end] over the given symbols. Every
// evaluation for day D sees only bars dated strictly before D; a symbol
// only becomes eligible once its trailing history reaches the configured
// minimum.
func (r *Replayer) Run(ctx context.Context, symbols []string, start, end time.Time) (*Result, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("backtest window ends before it starts")
	}

	// Fetch each symbol's full history once up front, including the years
	// before the window that seed the minimum trailing history.
	histories := make(map[string]models.PriceSeries, len(symbols))
	fetchStart := start.AddDate(-6, 0, 0)
	for _, sym := range symbols {
		series, err := r.market.GetHistory(ctx, sym, fetchStart, end)
		if err != nil {
			return nil, fmt.Errorf("fetch history for %s: %w", sym, err)
		}
		if series.Empty() {
			r.logger.WithField("symbol", sym).Warn("no price history, skipping symbol")
			continue
		}
		histories[sym] = series
	}
	if len(histories) == 0 {
		return nil, fmt.Errorf("no symbols with price history")
	}

	days := tradingDays(histories, start, end)
	portfolio := NewPortfolio(r.cfg.InitialCapital, r.cfg.MaxPositions, r.cfg.MaxDrawdownPct)

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.simulateDay(ctx, day, histories, portfolio)

		lastPrices := closesOn(histories, day)
		portfolio.MarkDay(day, lastPrices)
	}

	// Close whatever is still open at the final day's close.
	if len(days) > 0 {
		final := days[len(days)-1]
		prices := closesOn(histories, final)
		for _, sym := range portfolio.OpenSymbols() {
			if px, ok := prices[sym]; ok {
				if _, err := portfolio.Close(sym, px, final, CloseEndOfRun); err != nil {
					r.logger.WithError(err).WithField("symbol", sym).Warn("failed to close position at end of run")
				}
			}
		}
	}

	result := buildResult(portfolio, start, end, len(days))
	r.logger.WithFields(logrus.Fields{
		"days":         result.DaysSimulated,
		"trades":       len(result.Trades),
		"final_equity": result.FinalEquity.StringFixed(2),
		"win_rate":     result.WinRate,
	}).Info("backtest replay complete")

	return result, nil
}

// simulateDay first manages exits for open positions using day D's actual
// bar, then evaluates entries for all symbols concurrently using data
// strictly before D. Portfolio mutation happens only on this goroutine.
func (r *Replayer) simulateDay(ctx context.Context, day time.Time, histories map[string]models.PriceSeries, portfolio *Portfolio) {
	// Exits: stop and target checks use the day's traded range.
	for _, sym := range portfolio.OpenSymbols() {
		bar, ok := barOn(histories[sym], day)
		if !ok {
			continue
		}
		pos, _ := portfolio.Position(sym)
		switch {
		case pos.StopPrice.GreaterThan(decimal.Zero) && decimal.NewFromFloat(bar.Low).LessThanOrEqual(pos.StopPrice):
			stop, _ := pos.StopPrice.Float64()
			if _, err := portfolio.Close(sym, stop, day, CloseStopLoss); err != nil {
				r.logger.WithError(err).WithField("symbol", sym).Warn("stop-loss close failed")
			}
		case pos.Target.GreaterThan(decimal.Zero) && decimal.NewFromFloat(bar.High).GreaterThanOrEqual(pos.Target):
			target, _ := pos.Target.Float64()
			if _, err := portfolio.Close(sym, target, day, CloseTargetHit); err != nil {
				r.logger.WithError(err).WithField("symbol", sym).Warn("target close failed")
			}
		}
	}

	// Entries and re-evaluations, in parallel across symbols. Decisions
	// are collected and applied sequentially afterwards.
	type evaluated struct {
		symbol   string
		decision models.Decision
		price    float64
	}

	var mu sync.Mutex
	var results []evaluated

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for sym, series := range histories {
		bar, traded := barOn(series, day)
		if !traded {
			continue
		}
		visible := series.Before(day)
		if visible.Len() < r.cfg.MinHistoryBars {
			continue
		}

		sym, visible, price := sym, visible, bar.Close
		g.Go(func() error {
			decision := r.synth.AnalyzeSeries(gctx, sym, visible, models.RegimeNeutral)
			mu.Lock()
			results = append(results, evaluated{symbol: sym, decision: decision, price: price})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].decision.CompositeScore > results[j].decision.CompositeScore
	})

	for _, ev := range results {
		_, held := portfolio.Position(ev.symbol)
		switch {
		case held && ev.decision.Action == models.ActionSell:
			if _, err := portfolio.Close(ev.symbol, ev.price, day, CloseSellSignal); err != nil {
				r.logger.WithError(err).WithField("symbol", ev.symbol).Warn("sell-signal close failed")
			}
		case !held && ev.decision.Action.IsBuy():
			fraction := r.sizeEntry(ev.decision, portfolio)
			if fraction <= 0 {
				continue
			}
			if err := portfolio.Open(ev.decision, ev.price, day, fraction); err != nil {
				r.logger.WithError(err).WithFields(logrus.Fields{
					"symbol": ev.symbol,
					"action": ev.decision.Action,
				}).Debug("entry rejected")
			}
		}
	}
}

// sizeEntry refines the decision's banded fraction with the Kelly sizing
// when the validated pattern supplies win statistics. The smaller of the
// two is used: Kelly never inflates the banded size, only trims it.
func (r *Replayer) sizeEntry(d models.Decision, portfolio *Portfolio) float64 {
	fraction := d.PositionFraction
	if d.Validation == nil || !d.Validation.Passed {
		return fraction
	}

	wins, losses := portfolio.Streaks()
	avgWin := d.Validation.AvgGainAggressive / 100
	if d.Validation.TargetType == models.TargetConservative {
		avgWin = d.Validation.AvgGainConservative / 100
	}
	kelly := services.KellySize(services.KellyInput{
		WinRate:    winRateFor(d.Validation),
		AvgWinPct:  avgWin,
		AvgLossPct: r.cfg.StopLossPct,
		Composite:  d.CompositeScore,
		WinStreak:  wins,
		LossStreak: losses,
	})
	if kelly > 0 && kelly < fraction {
		return kelly
	}
	return fraction
}

func winRateFor(v *models.ValidationResult) float64 {
	if v.TargetType == models.TargetAggressive {
		return v.AggressiveSuccessRate
	}
	return v.ConservativeSuccessRate
}

// tradingDays is the sorted union of all bar dates inside the window.
func tradingDays(histories map[string]models.PriceSeries, start, end time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, series := range histories {
		for _, p := range series.Points {
			if p.Date.Before(start) || p.Date.After(end) {
				continue
			}
			seen[p.Date] = struct{}{}
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func barOn(series models.PriceSeries, day time.Time) (models.PricePoint, bool) {
	for i := series.Len() - 1; i >= 0; i-- {
		p := series.Points[i]
		if p.Date.Equal(day) {
			return p, true
		}
		if p.Date.Before(day) {
			break
		}
	}
	return models.PricePoint{}, false
}

func closesOn(histories map[string]models.PriceSeries, day time.Time) map[string]float64 {
	prices := make(map[string]float64, len(histories))
	for sym, series := range histories {
		visible := series.Before(day.Add(24 * time.Hour))
		if !visible.Empty() {
			prices[sym] = visible.Last().Close
		}
	}
	return prices
}

func buildResult(portfolio *Portfolio, start, end time.Time, days int) *Result {
	trades := portfolio.Trades()
	curve := portfolio.EquityCurve()
	final := portfolio.Cash()
	if len(curve) > 0 {
		final = curve[len(curve)-1].Value
	}

	wins := 0
	for _, t := range trades {
		if t.PnL.GreaterThan(decimal.Zero) {
			wins++
		}
	}
	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades))
	}

	totalReturn := decimal.Zero
	if portfolio.InitialCapital().GreaterThan(decimal.Zero) {
		totalReturn = final.Sub(portfolio.InitialCapital()).Div(portfolio.InitialCapital()).Mul(decimal.NewFromInt(100))
	}

	return &Result{
		Start:         start,
		End:           end,
		FinalEquity:   final,
		TotalReturn:   totalReturn,
		Trades:        trades,
		EquityCurve:   curve,
		WinRate:       winRate,
		MaxDrawdown:   maxDrawdown(curve),
		SharpeRatio:   sharpeRatio(curve),
		DaysSimulated: days,
	}
}

// maxDrawdown is the largest peak-to-trough decline in the equity curve,
// as a positive percentage.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Value
	worst := decimal.Zero
	for _, pt := range curve {
		if pt.Value.GreaterThan(peak) {
			peak = pt.Value
		}
		if peak.GreaterThan(decimal.Zero) {
			dd := peak.Sub(pt.Value).Div(peak)
			if dd.GreaterThan(worst) {
				worst = dd
			}
		}
	}
	out, _ := worst.Mul(decimal.NewFromInt(100)).Float64()
	return out
}

// sharpeRatio annualizes the mean/stddev of daily equity returns. Zero
// when the curve is too short or flat.
func sharpeRatio(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Value.Float64()
		cur, _ := curve[i].Value.Float64()
		if prev > 0 {
			returns = append(returns, (cur-prev)/prev)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance <= 0 {
		return 0
	}

	daily := mean / math.Sqrt(variance)
	return daily * math.Sqrt(252)
}
