// Package ladder maps verified facts about a robot to a discrete public
// trust level. The classifier is pure and monotonic: improving any single
// input while holding the rest fixed never lowers the level.
package ladder

import "fmt"

// Level is a rung on the proof ladder, ordered from least to most trusted.
type Level int

const (
	LevelUnrated Level = iota
	LevelBacktested
	LevelStressTested
	LevelLiveTracked
	LevelLiveProven
)

func (l Level) String() string {
	switch l {
	case LevelUnrated:
		return "unrated"
	case LevelBacktested:
		return "backtested"
	case LevelStressTested:
		return "stress_tested"
	case LevelLiveTracked:
		return "live_tracked"
	case LevelLiveProven:
		return "live_proven"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Facts are the verified inputs the classifier consumes. They come from the
// backtest engine, the chain verifier, and the corroboration matcher, never
// from unverified user input.
type Facts struct {
	HasBacktest        bool    `json:"has_backtest" yaml:"has_backtest"`
	BacktestHealth     float64 `json:"backtest_health" yaml:"backtest_health"`
	MonteCarloSurvival float64 `json:"monte_carlo_survival" yaml:"monte_carlo_survival"`
	HasLiveChain       bool    `json:"has_live_chain" yaml:"has_live_chain"`
	LiveTradeCount     int64   `json:"live_trade_count" yaml:"live_trade_count"`
	ChainIntact        bool    `json:"chain_intact" yaml:"chain_intact"`
	LiveDays           int64   `json:"live_days" yaml:"live_days"`
	LiveHealth         float64 `json:"live_health" yaml:"live_health"`
	LiveMaxDrawdownPct float64 `json:"live_max_drawdown_pct" yaml:"live_max_drawdown_pct"`
	ScoreCollapsed     bool    `json:"score_collapsed" yaml:"score_collapsed"`
}

// Thresholds is the operator-tunable gate table. It loads from config so
// rungs can be recalibrated without a redeploy.
type Thresholds struct {
	MinBacktestHealth  float64 `json:"min_backtest_health" yaml:"min_backtest_health"`
	MinSurvivalRate    float64 `json:"min_survival_rate" yaml:"min_survival_rate"`
	MinLiveTrades      int64   `json:"min_live_trades" yaml:"min_live_trades"`
	MinLiveDays        int64   `json:"min_live_days" yaml:"min_live_days"`
	MinLiveHealth      float64 `json:"min_live_health" yaml:"min_live_health"`
	MaxLiveDrawdownPct float64 `json:"max_live_drawdown_pct" yaml:"max_live_drawdown_pct"`
	MinProvenDays      int64   `json:"min_proven_days" yaml:"min_proven_days"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinBacktestHealth:  60,
		MinSurvivalRate:    0.8,
		MinLiveTrades:      20,
		MinLiveDays:        30,
		MinLiveHealth:      70,
		MaxLiveDrawdownPct: 35,
		MinProvenDays:      90,
	}
}

// Classify returns the highest rung whose requirements, and those of every
// rung below it, are all met. Requirements are cumulative conjunctions of
// monotone predicates, which is what makes the ladder monotonic.
func Classify(f Facts, t Thresholds) Level {
	level := LevelUnrated

	if !f.HasBacktest || f.BacktestHealth < t.MinBacktestHealth || f.ScoreCollapsed {
		return level
	}
	level = LevelBacktested

	if f.MonteCarloSurvival < t.MinSurvivalRate {
		return level
	}
	level = LevelStressTested

	if !f.HasLiveChain || !f.ChainIntact ||
		f.LiveTradeCount < t.MinLiveTrades || f.LiveDays < t.MinLiveDays {
		return level
	}
	level = LevelLiveTracked

	if f.LiveHealth < t.MinLiveHealth ||
		f.LiveMaxDrawdownPct > t.MaxLiveDrawdownPct || f.LiveDays < t.MinProvenDays {
		return level
	}
	return LevelLiveProven
}
