package builtins

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"chartist/internal/config"
	"chartist/internal/domain"
	"chartist/internal/strategy"
)

func window(closes ...float64) []domain.Bar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
			Volume: 1000,
		}
	}
	return bars
}

func decide(t *testing.T, s strategy.Strategy, bars []domain.Bar) domain.Decision {
	t.Helper()
	d, err := s.Decide(context.Background(), strategy.DecisionRequest{Symbol: "TEST", Window: bars})
	if err != nil {
		t.Fatalf("%s.Decide returned error: %v", s.Name(), err)
	}
	return d
}

func TestSMACross_FreshCrossUp(t *testing.T) {
	s := NewSMACross(2, 4, 0.02, 0.04)
	// SMA2 <= SMA4 on the previous bar, then a jump lifts SMA2 above.
	d := decide(t, s, window(10, 10, 10, 10, 20))

	if d.Action != domain.ActionBuy {
		t.Fatalf("Action = %q, want buy", d.Action)
	}
	if d.Confidence != crossConfidence {
		t.Errorf("Confidence = %v, want %v", d.Confidence, crossConfidence)
	}
	rec := d.Recommendation
	if !rec.EntryPrice.Equal(decimal.NewFromInt(20)) {
		t.Errorf("EntryPrice = %s, want 20", rec.EntryPrice)
	}
	if !rec.StopLoss.Equal(decimal.RequireFromString("19.6")) {
		t.Errorf("StopLoss = %s, want 19.6", rec.StopLoss)
	}
	if !rec.TakeProfit.Equal(decimal.RequireFromString("20.8")) {
		t.Errorf("TakeProfit = %s, want 20.8", rec.TakeProfit)
	}
	if !rec.Complete() {
		t.Error("recommendation should be complete")
	}
}

func TestSMACross_FreshCrossDown(t *testing.T) {
	s := NewSMACross(2, 4, 0.02, 0.04)
	d := decide(t, s, window(20, 20, 20, 20, 10))
	if d.Action != domain.ActionSell || d.Confidence != crossConfidence {
		t.Fatalf("got %s@%v, want sell@%v", d.Action, d.Confidence, crossConfidence)
	}
	if !d.Recommendation.StopLoss.GreaterThan(d.Recommendation.EntryPrice) {
		t.Errorf("short stop %s should be above entry %s", d.Recommendation.StopLoss, d.Recommendation.EntryPrice)
	}
	if !d.Recommendation.TakeProfit.LessThan(d.Recommendation.EntryPrice) {
		t.Errorf("short target %s should be below entry %s", d.Recommendation.TakeProfit, d.Recommendation.EntryPrice)
	}
}

func TestSMACross_TrendWithoutCrossIsLowConfidence(t *testing.T) {
	s := NewSMACross(2, 4, 0.02, 0.04)
	d := decide(t, s, window(10, 11, 12, 13, 14, 15))
	if d.Action != domain.ActionBuy {
		t.Fatalf("Action = %q, want buy", d.Action)
	}
	if d.Confidence != trendConfidence {
		t.Errorf("Confidence = %v, want %v", d.Confidence, trendConfidence)
	}
}

func TestSMACross_FlatAndShortWindowHold(t *testing.T) {
	s := NewSMACross(2, 4, 0.02, 0.04)
	if d := decide(t, s, window(10, 10, 10, 10, 10)); d.Action != domain.ActionHold {
		t.Errorf("flat: Action = %q, want hold", d.Action)
	}
	if d := decide(t, s, window(10, 11, 12)); d.Action != domain.ActionHold {
		t.Errorf("short window: Action = %q, want hold", d.Action)
	}
}

func TestSMACross_InvalidPeriods(t *testing.T) {
	s := NewSMACross(5, 5, 0.02, 0.04)
	_, err := s.Decide(context.Background(), strategy.DecisionRequest{Window: window(1, 2, 3)})
	if err == nil {
		t.Error("Decide with short == long returned nil error")
	}
}

func TestBreakout_Long(t *testing.T) {
	b := NewBreakout(0, 2)
	// Prior highs top out at 13 (close 12 + 1); the last close 15 breaks out.
	d := decide(t, b, window(10, 11, 12, 11, 15))
	if d.Action != domain.ActionBuy {
		t.Fatalf("Action = %q, want buy", d.Action)
	}
	rec := d.Recommendation
	// Stop at the channel low (10 - 1), target at 2R above entry.
	if !rec.StopLoss.Equal(decimal.NewFromInt(9)) {
		t.Errorf("StopLoss = %s, want 9", rec.StopLoss)
	}
	if !rec.TakeProfit.Equal(decimal.NewFromInt(27)) {
		t.Errorf("TakeProfit = %s, want 27", rec.TakeProfit)
	}
}

func TestBreakout_ShortAndLookback(t *testing.T) {
	b := NewBreakout(2, 1)
	// With lookback 2 the channel is built from closes 20 and 19 only.
	d := decide(t, b, window(5, 30, 20, 19, 17))
	if d.Action != domain.ActionSell {
		t.Fatalf("Action = %q, want sell", d.Action)
	}
	if !d.Recommendation.StopLoss.Equal(decimal.NewFromInt(21)) {
		t.Errorf("StopLoss = %s, want 21", d.Recommendation.StopLoss)
	}
	if !d.Recommendation.TakeProfit.Equal(decimal.NewFromInt(13)) {
		t.Errorf("TakeProfit = %s, want 13", d.Recommendation.TakeProfit)
	}
}

func TestBreakout_InsideChannelHolds(t *testing.T) {
	b := NewBreakout(0, 2)
	if d := decide(t, b, window(10, 12, 11)); d.Action != domain.ActionHold {
		t.Errorf("Action = %q, want hold", d.Action)
	}
	if d := decide(t, b, window(10)); d.Action != domain.ActionHold {
		t.Errorf("single bar: Action = %q, want hold", d.Action)
	}
}

func TestRegister(t *testing.T) {
	r := strategy.NewRegistry()
	Register(r, config.Default().Strategies)
	names := r.List()
	if len(names) != 2 || names[0] != "breakout" || names[1] != "sma-cross" {
		t.Errorf("registered = %v, want [breakout sma-cross]", names)
	}
}
