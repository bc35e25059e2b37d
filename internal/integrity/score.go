package integrity

import (
	"math"
	"time"

	"github.com/truthmarkets/integrity-engine/internal/config"
	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// TruthScore Calculator
//
// Turns a wallet's win/loss aggregate into a gaming-resistant composite:
//
//   skill       = clamp((wilson(wins, n, z) - 0.5) * 1000, 0, 500)
//   activity    = clamp(log10(max(wins, 1)) * 166,         0, 500)
//   volumeBonus = clamp(log10(max(volume, 1)) * 100,       0, 200)
//   consistency = clamp(sharpe(period returns) * 50,       0, 100)
//   total       = min(sum, 1300)
//
// The Wilson lower bound is what makes the skill component resistant to
// small-sample gaming: it measures how good the win rate is *provably*,
// not how good it looks. Activity and volume are log-scaled so grinding
// them yields sharply diminishing returns.
//
// Tier thresholds: Bronze 0 / Silver 200 / Gold 400 / Platinum 650 /
// Diamond 900, applied to the computed total.
//
// Visibility gating changes what is displayed, never the computed value:
// wallets under the ranking minimum are ineligible, activity/volume ramp
// linearly to full weight over the first FullWeightBets resolved bets, and
// accounts younger than the age window display at most half their total.

// ScoreConfig carries the scoring constants.
type ScoreConfig struct {
	WilsonZ            float64
	LeaderboardMinBets int64
	FullWeightBets     int64
	YoungAccountAge    time.Duration
}

// DefaultScoreConfig returns the reference scoring constants.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		WilsonZ:            1.96, // 95% confidence
		LeaderboardMinBets: 10,
		FullWeightBets:     50,
		YoungAccountAge:    30 * 24 * time.Hour,
	}
}

// ScoreConfigFromThresholds maps the application threshold config onto the
// scoring constants.
func ScoreConfigFromThresholds(t config.ThresholdsConfig) ScoreConfig {
	cfg := DefaultScoreConfig()
	if t.WilsonZ > 0 {
		cfg.WilsonZ = t.WilsonZ
	}
	if t.LeaderboardMinBets > 0 {
		cfg.LeaderboardMinBets = t.LeaderboardMinBets
	}
	if t.FullWeightBets > 0 {
		cfg.FullWeightBets = t.FullWeightBets
	}
	if t.YoungAccountAge > 0 {
		cfg.YoungAccountAge = t.YoungAccountAge
	}
	return cfg
}

const (
	maxSkillScore    = 500.0
	maxActivityScore = 500.0
	maxVolumeBonus   = 200.0
	maxConsistency   = 100.0
	maxTotal         = 1300.0

	tierSilver   = 200.0
	tierGold     = 400.0
	tierPlatinum = 650.0
	tierDiamond  = 900.0

	// Minimum period-return history before the consistency bonus applies.
	minConsistencyPeriods = 5
)

// Calculator computes TruthScores. The zero value is not usable; construct
// via NewCalculator. Now is injectable for the young-account gate.
type Calculator struct {
	cfg ScoreConfig
	now func() time.Time
}

// NewCalculator creates a calculator with the given constants.
func NewCalculator(cfg ScoreConfig) *Calculator {
	return &Calculator{cfg: cfg, now: time.Now}
}

// ComputeScore projects a TraderAggregate into a TruthScore. Pure given the
// aggregate; zero-bet wallets score 0 / Bronze. Consistency defaults to 0 —
// use ComputeScoreWithHistory when per-period returns are available.
func (c *Calculator) ComputeScore(agg models.TraderAggregate) models.TruthScore {
	return c.ComputeScoreWithHistory(agg, nil)
}

// ComputeScoreWithHistory additionally derives the consistency bonus from
// per-period net returns. Fewer than minConsistencyPeriods periods yield 0.
func (c *Calculator) ComputeScoreWithHistory(agg models.TraderAggregate, periods []models.PeriodReturn) models.TruthScore {
	score := models.TruthScore{
		Address: agg.Address,
		Tier:    models.TierBronze,
	}

	// Defensive normalization: the scorer never errors, it floors.
	totalBets := agg.TotalBets
	wins := agg.Wins
	if totalBets < 0 {
		totalBets = 0
	}
	if wins < 0 {
		wins = 0
	}
	if wins > totalBets {
		wins = totalBets
	}

	// 1. Skill: Wilson lower bound of the win rate, scaled above coin-flip.
	wilson := WilsonLowerBound(wins, totalBets, c.cfg.WilsonZ)
	score.WilsonLowerBound = wilson
	score.SkillScore = clamp((wilson-0.5)*1000, 0, maxSkillScore)

	// 2. Activity: log-scaled win count.
	score.ActivityScore = clamp(math.Log10(math.Max(float64(wins), 1))*166, 0, maxActivityScore)

	// 3. Volume: log-scaled lifetime volume in base units.
	volume, _ := agg.TotalVolume.Float64()
	score.VolumeBonus = clamp(math.Log10(math.Max(volume, 1))*100, 0, maxVolumeBonus)

	// 4. Consistency: Sharpe-like ratio of per-period returns.
	if len(periods) >= minConsistencyPeriods {
		returns := make([]float64, len(periods))
		for i, p := range periods {
			returns[i] = p.Return
		}
		score.ConsistencyBonus = clamp(sharpeRatio(returns)*50, 0, maxConsistency)
	}

	score.Total = clamp(score.SkillScore+score.ActivityScore+score.VolumeBonus+score.ConsistencyBonus, 0, maxTotal)
	score.Tier = tierFor(score.Total)

	c.applyVisibilityGating(&score, agg, totalBets)
	return score
}

// tierFor maps a computed total onto its display tier.
func tierFor(total float64) models.Tier {
	switch {
	case total >= tierDiamond:
		return models.TierDiamond
	case total >= tierPlatinum:
		return models.TierPlatinum
	case total >= tierGold:
		return models.TierGold
	case total >= tierSilver:
		return models.TierSilver
	default:
		return models.TierBronze
	}
}

// applyVisibilityGating fills Eligible and DisplayTotal. Gating blunts fast
// gaming by throwaway wallets without touching the computed total.
func (c *Calculator) applyVisibilityGating(score *models.TruthScore, agg models.TraderAggregate, totalBets int64) {
	score.Eligible = totalBets >= c.cfg.LeaderboardMinBets

	// Activity and volume ramp linearly to full weight.
	weight := 1.0
	if c.cfg.FullWeightBets > 0 && totalBets < c.cfg.FullWeightBets {
		weight = float64(totalBets) / float64(c.cfg.FullWeightBets)
	}
	display := score.SkillScore + (score.ActivityScore+score.VolumeBonus)*weight + score.ConsistencyBonus

	// Accounts younger than the age window display at most half.
	if !agg.FirstSeen.IsZero() && c.now().Sub(agg.FirstSeen) < c.cfg.YoungAccountAge {
		display = math.Min(display, score.Total*0.5)
	}

	score.DisplayTotal = clamp(display, 0, maxTotal)
}
