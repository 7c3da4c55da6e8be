package backtest

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatReport renders a run summary for logs and notifications. Numbers
// go through a locale-aware printer so large capital figures stay readable.
func FormatReport(result *Result) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	finalEquity, _ := result.FinalEquity.Float64()
	totalReturn, _ := result.TotalReturn.Float64()

	p.Fprintf(&b, "Backtest %s to %s\n", result.Start.Format("2006-01-02"), result.End.Format("2006-01-02"))
	p.Fprintf(&b, "  Days simulated: %d\n", result.DaysSimulated)
	p.Fprintf(&b, "  Trades:         %d\n", len(result.Trades))
	p.Fprintf(&b, "  Win rate:       %.1f%%\n", result.WinRate*100)
	p.Fprintf(&b, "  Final equity:   %.2f\n", finalEquity)
	p.Fprintf(&b, "  Total return:   %.2f%%\n", totalReturn)
	p.Fprintf(&b, "  Max drawdown:   %.2f%%\n", result.MaxDrawdown)
	p.Fprintf(&b, "  Sharpe ratio:   %.2f\n", result.SharpeRatio)

	if len(result.Trades) > 0 {
		p.Fprintf(&b, "  Closed trades:\n")
		for _, t := range result.Trades {
			pnlPct, _ := t.PnLPct.Float64()
			p.Fprintf(&b, "    %-12s %s -> %s  %+.2f%%  (%s)\n",
				t.Symbol,
				t.EntryDate.Format("2006-01-02"),
				t.ExitDate.Format("2006-01-02"),
				pnlPct,
				t.Reason)
		}
	}

	return b.String()
}
