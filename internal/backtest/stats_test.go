package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"chartist/internal/domain"
)

const eps = 1e-9

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func closedTrade(pnl string) domain.Position {
	return domain.Position{
		Symbol: "TEST",
		Side:   domain.PositionSideLong,
		Size:   1,
		Exit:   &domain.Exit{Reason: domain.ExitTakeProfit, PnL: dec(pnl)},
	}
}

func curve(balances ...string) []domain.EquityPoint {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.EquityPoint, len(balances))
	for i, b := range balances {
		out[i] = domain.EquityPoint{Timestamp: base.AddDate(0, 0, i), Balance: dec(b)}
	}
	return out
}

func TestCalculateStatistics_Empty(t *testing.T) {
	s := CalculateStatistics(nil, dec("1000"), dec("1000"), curve("1000"))
	if s.TotalTrades != 0 || s.WinningTrades != 0 || s.LosingTrades != 0 {
		t.Errorf("counts = %d/%d/%d, want 0/0/0", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	}
	if s.WinRate != 0 {
		t.Errorf("WinRate = %v, want 0", s.WinRate)
	}
	if s.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0", s.ProfitFactor)
	}
	if !s.AverageWin.IsZero() || !s.AverageLoss.IsZero() {
		t.Errorf("averages = %s/%s, want 0/0", s.AverageWin, s.AverageLoss)
	}
	if !s.MaxDrawdown.IsZero() {
		t.Errorf("MaxDrawdown = %s, want 0", s.MaxDrawdown)
	}
}

func TestCalculateStatistics_Classification(t *testing.T) {
	trades := []domain.Position{
		closedTrade("300"),
		closedTrade("-100"),
		closedTrade("0"), // break-even counts as a loss
		closedTrade("100"),
		{Symbol: "TEST", Size: 1}, // still open, ignored
	}
	s := CalculateStatistics(trades, dec("1000"), dec("1300"), nil)

	if s.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", s.TotalTrades)
	}
	if s.WinningTrades+s.LosingTrades != s.TotalTrades {
		t.Errorf("wins %d + losses %d != total %d", s.WinningTrades, s.LosingTrades, s.TotalTrades)
	}
	if s.WinningTrades != 2 || s.LosingTrades != 2 {
		t.Errorf("wins/losses = %d/%d, want 2/2", s.WinningTrades, s.LosingTrades)
	}
	if math.Abs(s.WinRate-0.5) > eps {
		t.Errorf("WinRate = %v, want 0.5", s.WinRate)
	}
	if !s.AverageWin.Equal(dec("200")) {
		t.Errorf("AverageWin = %s, want 200", s.AverageWin)
	}
	if !s.AverageLoss.Equal(dec("50")) {
		t.Errorf("AverageLoss = %s, want 50", s.AverageLoss)
	}
	if math.Abs(s.ProfitFactor.Float()-4) > eps {
		t.Errorf("ProfitFactor = %v, want 4", s.ProfitFactor)
	}
	if !s.TotalReturn.Equal(dec("300")) {
		t.Errorf("TotalReturn = %s, want 300", s.TotalReturn)
	}
	if math.Abs(s.TotalReturnPercentage-30) > eps {
		t.Errorf("TotalReturnPercentage = %v, want 30", s.TotalReturnPercentage)
	}
}

func TestCalculateStatistics_ProfitFactorInfinite(t *testing.T) {
	s := CalculateStatistics([]domain.Position{closedTrade("50")}, dec("1000"), dec("1050"), nil)
	if !math.IsInf(s.ProfitFactor.Float(), 1) {
		t.Errorf("ProfitFactor = %v, want +Inf", s.ProfitFactor)
	}
}

func TestCalculateStatistics_ProfitFactorZeroWithOnlyBreakEven(t *testing.T) {
	s := CalculateStatistics([]domain.Position{closedTrade("0")}, dec("1000"), dec("1000"), nil)
	if s.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0", s.ProfitFactor)
	}
	if s.LosingTrades != 1 {
		t.Errorf("LosingTrades = %d, want 1", s.LosingTrades)
	}
}

func TestCalculateStatistics_MaxDrawdown(t *testing.T) {
	eq := curve("100000", "105000", "95000", "110000", "90000")
	s := CalculateStatistics(nil, dec("100000"), dec("90000"), eq)

	if !s.MaxDrawdown.Equal(dec("20000")) {
		t.Errorf("MaxDrawdown = %s, want 20000", s.MaxDrawdown)
	}
	want := 20000.0 / 110000.0 * 100
	if math.Abs(s.MaxDrawdownPercentage-want) > 1e-6 {
		t.Errorf("MaxDrawdownPercentage = %v, want %v", s.MaxDrawdownPercentage, want)
	}
}

func TestMaxDrawdown_TieKeepsFirst(t *testing.T) {
	// Both troughs are 100 below their peaks; the first peak is smaller so
	// its percentage is larger and must be the one reported.
	dd, pct := maxDrawdown(dec("1000"), curve("1000", "900", "2000", "1900"))
	if !dd.Equal(dec("100")) {
		t.Errorf("drawdown = %s, want 100", dd)
	}
	if math.Abs(pct-10) > eps {
		t.Errorf("pct = %v, want 10 (first occurrence)", pct)
	}
}

func TestMaxDrawdown_Monotonic(t *testing.T) {
	balances := []string{"1000", "1100", "1050", "1200", "900", "950", "1300", "800"}
	prev := decimal.Zero
	for n := 1; n <= len(balances); n++ {
		dd, pct := maxDrawdown(dec("1000"), curve(balances[:n]...))
		if dd.IsNegative() {
			t.Fatalf("drawdown after %d points = %s, want >= 0", n, dd)
		}
		if dd.LessThan(prev) {
			t.Fatalf("drawdown decreased from %s to %s after %d points", prev, dd, n)
		}
		if pct < 0 || pct > 100 {
			t.Fatalf("pct after %d points = %v, want within [0, 100]", n, pct)
		}
		prev = dd
	}
	if !prev.Equal(dec("500")) {
		t.Errorf("final drawdown = %s, want 500", prev)
	}
}

func TestMaxDrawdown_PeakStartsAtInitial(t *testing.T) {
	// The curve never reaches the initial balance, so the peak stays there.
	dd, _ := maxDrawdown(dec("1000"), curve("950", "990"))
	if !dd.Equal(dec("50")) {
		t.Errorf("drawdown = %s, want 50", dd)
	}
}
