package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alphastack/equityresearch/internal/models"
)

// CloseReason records why a position was exited.
type CloseReason string

const (
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTargetHit  CloseReason = "target_hit"
	CloseSellSignal CloseReason = "sell_signal"
	CloseEndOfRun   CloseReason = "end_of_run"
)

// Position is one open holding in the replay portfolio.
type Position struct {
	Symbol     string
	Shares     decimal.Decimal
	EntryPrice decimal.Decimal
	EntryDate  time.Time
	StopPrice  decimal.Decimal
	Target     decimal.Decimal
	DecisionID string
}

// Trade is a closed round trip.
type Trade struct {
	Symbol     string          `json:"symbol"`
	EntryDate  time.Time       `json:"entry_date"`
	ExitDate   time.Time       `json:"exit_date"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Shares     decimal.Decimal `json:"shares"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPct     decimal.Decimal `json:"pnl_pct"`
	Reason     CloseReason     `json:"close_reason"`
}

// EquityPoint is one day's mark-to-market portfolio value.
type EquityPoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Portfolio is the replay ledger. It is single-writer: the replayer
// processes days sequentially and is the only mutator, so no locking is
// needed. All money math is decimal to keep the ledger exact.
type Portfolio struct {
	cash        decimal.Decimal
	initial     decimal.Decimal
	positions   map[string]*Position
	trades      []Trade
	equityCurve []EquityPoint
	peak        decimal.Decimal

	maxPositions   int
	maxDrawdownPct decimal.Decimal

	winStreak  int
	lossStreak int
}

// NewPortfolio takes the drawdown limit in percent (20 = lock out new
// entries once equity is 20% off its peak).
func NewPortfolio(initialCapital float64, maxPositions int, maxDrawdownPct float64) *Portfolio {
	initial := decimal.NewFromFloat(initialCapital)
	return &Portfolio{
		cash:           initial,
		initial:        initial,
		positions:      make(map[string]*Position),
		peak:           initial,
		maxPositions:   maxPositions,
		maxDrawdownPct: decimal.NewFromFloat(maxDrawdownPct / 100),
	}
}

// Open buys a position sized by fraction of current equity, subject to the
// position-count, cash and drawdown checks. A rejected open is a normal
// outcome, reported via error for diagnostics.
func (p *Portfolio) Open(d models.Decision, price float64, date time.Time, fraction float64) error {
	if _, held := p.positions[d.Symbol]; held {
		return fmt.Errorf("already holding %s", d.Symbol)
	}
	if len(p.positions) >= p.maxPositions {
		return fmt.Errorf("position limit %d reached", p.maxPositions)
	}
	if p.inDrawdownLockout() {
		return fmt.Errorf("drawdown limit reached, no new positions")
	}

	px := decimal.NewFromFloat(price)
	if px.LessThanOrEqual(decimal.Zero) || fraction <= 0 {
		return fmt.Errorf("cannot size position at price %.2f fraction %.4f", price, fraction)
	}

	budget := p.Equity(nil).Mul(decimal.NewFromFloat(fraction))
	if budget.GreaterThan(p.cash) {
		budget = p.cash
	}
	shares := budget.Div(px).Floor()
	if shares.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("budget %s buys zero shares of %s", budget.StringFixed(2), d.Symbol)
	}

	cost := shares.Mul(px)
	p.cash = p.cash.Sub(cost)
	p.positions[d.Symbol] = &Position{
		Symbol:     d.Symbol,
		Shares:     shares,
		EntryPrice: px,
		EntryDate:  date,
		StopPrice:  decimal.NewFromFloat(d.StopPrice),
		Target:     decimal.NewFromFloat(d.TargetPrice),
		DecisionID: d.ID,
	}
	return nil
}

// Close exits a position at the given price and records the trade.
func (p *Portfolio) Close(symbol string, price float64, date time.Time, reason CloseReason) (*Trade, error) {
	pos, held := p.positions[symbol]
	if !held {
		return nil, fmt.Errorf("not holding %s", symbol)
	}

	px := decimal.NewFromFloat(price)
	proceeds := pos.Shares.Mul(px)
	p.cash = p.cash.Add(proceeds)

	pnl := proceeds.Sub(pos.Shares.Mul(pos.EntryPrice))
	pnlPct := decimal.Zero
	if pos.EntryPrice.GreaterThan(decimal.Zero) {
		pnlPct = px.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(decimal.NewFromInt(100))
	}

	trade := Trade{
		Symbol:     symbol,
		EntryDate:  pos.EntryDate,
		ExitDate:   date,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  px,
		Shares:     pos.Shares,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Reason:     reason,
	}
	p.trades = append(p.trades, trade)
	delete(p.positions, symbol)

	if pnl.GreaterThan(decimal.Zero) {
		p.winStreak++
		p.lossStreak = 0
	} else {
		p.lossStreak++
		p.winStreak = 0
	}

	return &trade, nil
}

// Position returns the open position for a symbol, if any.
func (p *Portfolio) Position(symbol string) (*Position, bool) {
	pos, ok := p.positions[symbol]
	return pos, ok
}

// OpenSymbols lists currently held symbols.
func (p *Portfolio) OpenSymbols() []string {
	symbols := make([]string, 0, len(p.positions))
	for s := range p.positions {
		symbols = append(symbols, s)
	}
	return symbols
}

// Equity marks the portfolio to market using the supplied last prices.
// Symbols missing from the map are valued at entry.
func (p *Portfolio) Equity(lastPrices map[string]float64) decimal.Decimal {
	total := p.cash
	for sym, pos := range p.positions {
		px := pos.EntryPrice
		if lastPrices != nil {
			if v, ok := lastPrices[sym]; ok && v > 0 {
				px = decimal.NewFromFloat(v)
			}
		}
		total = total.Add(pos.Shares.Mul(px))
	}
	return total
}

// MarkDay records the end-of-day equity point and updates the peak.
func (p *Portfolio) MarkDay(date time.Time, lastPrices map[string]float64) {
	value := p.Equity(lastPrices)
	p.equityCurve = append(p.equityCurve, EquityPoint{Date: date, Value: value})
	if value.GreaterThan(p.peak) {
		p.peak = value
	}
}

func (p *Portfolio) inDrawdownLockout() bool {
	if p.maxDrawdownPct.LessThanOrEqual(decimal.Zero) || p.peak.LessThanOrEqual(decimal.Zero) {
		return false
	}
	value := p.Equity(nil)
	drawdown := p.peak.Sub(value).Div(p.peak)
	return drawdown.GreaterThanOrEqual(p.maxDrawdownPct)
}

func (p *Portfolio) Cash() decimal.Decimal          { return p.cash }
func (p *Portfolio) Trades() []Trade                { return p.trades }
func (p *Portfolio) EquityCurve() []EquityPoint     { return p.equityCurve }
func (p *Portfolio) Streaks() (wins, losses int)    { return p.winStreak, p.lossStreak }
func (p *Portfolio) InitialCapital() decimal.Decimal { return p.initial }
