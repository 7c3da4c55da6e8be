package services

import "math"

const (
	kellyCap      = 0.10
	kellyFraction = 0.5 // half-Kelly

	streakThreshold = 3
	streakMaxBoost  = 1.5
	streakMinBoost  = 0.5
	streakStep      = 0.1
)

// KellyInput carries the empirical trade statistics the Kelly sizer needs.
// Win rate comes from the validated pattern's history; the streak counts
// come from the live portfolio ledger.
type KellyInput struct {
	WinRate    float64 // p, in [0,1]
	AvgWinPct  float64 // W, average winning gain as a fraction (0.08 = 8%)
	AvgLossPct float64 // L, average losing loss as a fraction, positive
	Composite  float64 // decision composite score, 0-100
	WinStreak  int
	LossStreak int
}

// KellySize computes the refined position fraction:
// f = clamp((p*W - q*L)/W, 0, 0.10) * 0.5, then scaled by composite-score
// confidence and the win/loss streak multiplier. Degenerate statistics
// (no wins on record, zero average win) size to zero rather than guessing.
func KellySize(in KellyInput) float64 {
	if in.AvgWinPct <= 0 || in.WinRate <= 0 {
		return 0
	}

	p := math.Min(math.Max(in.WinRate, 0), 1)
	q := 1 - p
	f := (p*in.AvgWinPct - q*in.AvgLossPct) / in.AvgWinPct
	f = math.Min(math.Max(f, 0), kellyCap)
	f *= kellyFraction

	f *= math.Min(math.Max(in.Composite/100, 0), 1)
	f *= StreakMultiplier(in.WinStreak, in.LossStreak)

	return f
}

// StreakMultiplier scales sizing by recent performance. Streaks shorter
// than three are neutral; beyond that each additional win adds 0.1 up to
// 1.5x and each additional loss removes 0.1 down to 0.5x.
func StreakMultiplier(winStreak, lossStreak int) float64 {
	if winStreak >= streakThreshold {
		boost := 1.0 + float64(winStreak-streakThreshold+1)*streakStep
		return math.Min(boost, streakMaxBoost)
	}
	if lossStreak >= streakThreshold {
		cut := 1.0 - float64(lossStreak-streakThreshold+1)*streakStep
		return math.Max(cut, streakMinBoost)
	}
	return 1.0
}
