package ladder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// provenFacts satisfies every rung with the default thresholds.
func provenFacts() Facts {
	return Facts{
		HasBacktest:        true,
		BacktestHealth:     85,
		MonteCarloSurvival: 0.95,
		HasLiveChain:       true,
		LiveTradeCount:     120,
		ChainIntact:        true,
		LiveDays:           120,
		LiveHealth:         82,
		LiveMaxDrawdownPct: 12,
	}
}

func TestClassify_Rungs(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name   string
		mutate func(*Facts)
		want   Level
	}{
		{"all gates pass", func(f *Facts) {}, LevelLiveProven},
		{"no backtest", func(f *Facts) { f.HasBacktest = false }, LevelUnrated},
		{"weak backtest health", func(f *Facts) { f.BacktestHealth = 59 }, LevelUnrated},
		{"score collapsed", func(f *Facts) { f.ScoreCollapsed = true }, LevelUnrated},
		{"low survival rate", func(f *Facts) { f.MonteCarloSurvival = 0.5 }, LevelBacktested},
		{"no live chain", func(f *Facts) { f.HasLiveChain = false }, LevelStressTested},
		{"broken chain", func(f *Facts) { f.ChainIntact = false }, LevelStressTested},
		{"too few live trades", func(f *Facts) { f.LiveTradeCount = 19 }, LevelStressTested},
		{"too few live days", func(f *Facts) { f.LiveDays = 29 }, LevelStressTested},
		{"weak live health", func(f *Facts) { f.LiveHealth = 69 }, LevelLiveTracked},
		{"deep live drawdown", func(f *Facts) { f.LiveMaxDrawdownPct = 36 }, LevelLiveTracked},
		{"not proven long enough", func(f *Facts) { f.LiveDays = 60 }, LevelLiveTracked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := provenFacts()
			tc.mutate(&f)
			assert.Equal(t, tc.want, Classify(f, th))
		})
	}
}

func TestClassify_ThresholdsAreInclusive(t *testing.T) {
	th := DefaultThresholds()
	f := Facts{
		HasBacktest:        true,
		BacktestHealth:     th.MinBacktestHealth,
		MonteCarloSurvival: th.MinSurvivalRate,
		HasLiveChain:       true,
		LiveTradeCount:     th.MinLiveTrades,
		ChainIntact:        true,
		LiveDays:           th.MinProvenDays,
		LiveHealth:         th.MinLiveHealth,
		LiveMaxDrawdownPct: th.MaxLiveDrawdownPct,
	}
	assert.Equal(t, LevelLiveProven, Classify(f, th))
}

// Improving any single fact while holding the rest fixed must never lower
// the level.
func TestClassify_Monotonic(t *testing.T) {
	th := DefaultThresholds()

	improvements := []func(*Facts){
		func(f *Facts) { f.HasBacktest = true },
		func(f *Facts) { f.BacktestHealth += 40 },
		func(f *Facts) { f.MonteCarloSurvival += 0.5 },
		func(f *Facts) { f.HasLiveChain = true },
		func(f *Facts) { f.LiveTradeCount += 100 },
		func(f *Facts) { f.ChainIntact = true },
		func(f *Facts) { f.LiveDays += 200 },
		func(f *Facts) { f.LiveHealth += 30 },
		func(f *Facts) { f.LiveMaxDrawdownPct -= 20 },
		func(f *Facts) { f.ScoreCollapsed = false },
	}

	bases := []Facts{
		{},
		{HasBacktest: true, BacktestHealth: 70, MonteCarloSurvival: 0.6},
		{HasBacktest: true, BacktestHealth: 70, MonteCarloSurvival: 0.9, HasLiveChain: true, ChainIntact: true, LiveTradeCount: 25, LiveDays: 45, LiveHealth: 60, LiveMaxDrawdownPct: 30},
		provenFacts(),
	}
	for _, base := range bases {
		before := Classify(base, th)
		for i, improve := range improvements {
			f := base
			improve(&f)
			assert.GreaterOrEqual(t, Classify(f, th), before, "improvement %d lowered the level", i)
		}
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "unrated", LevelUnrated.String())
	assert.Equal(t, "backtested", LevelBacktested.String())
	assert.Equal(t, "stress_tested", LevelStressTested.String())
	assert.Equal(t, "live_tracked", LevelLiveTracked.String())
	assert.Equal(t, "live_proven", LevelLiveProven.String())
	assert.Equal(t, "level(9)", Level(9).String())
}
