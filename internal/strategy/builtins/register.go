package builtins

import (
	"chartist/internal/config"
	"chartist/internal/strategy"
)

// Register adds every built-in strategy, parameterised from cfg, to r.
func Register(r *strategy.Registry, cfg config.StrategiesConfig) {
	sc := cfg.SMACross
	r.Register(NewSMACross(sc.ShortPeriod, sc.LongPeriod, sc.StopPct, sc.TargetPct))
	r.Register(NewBreakout(cfg.Breakout.Lookback, cfg.Breakout.RewardRisk))
}
