package integrity

import (
	"math"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Statistical Anomaly Detection
//
// Tests a wallet's win rate against the fair baseline p0 = 0.5. The default
// threshold z > 3.29 is the one-sided 99.9% cutoff: under the null, fewer
// than one wallet in a thousand shows a rate this extreme by luck.
//
// Samples below the minimum (default 50 bets) are statistically
// inconclusive and never trigger, regardless of win rate — a 10-for-10
// streak is luck until proven otherwise.
//
// The check is one-sided by default: an unusually *low* win rate (0 of 100,
// z = -10) does not trigger, matching the reference behavior. The
// AnomalyTwoSided flag also flags suspiciously low rates, which can indicate
// deliberate loss-feeding to a counterparty wallet.

// DetectStatisticalAnomaly returns an alert when the wallet's win rate is
// implausible against the fair baseline, nil otherwise.
func (d *Detector) DetectStatisticalAnomaly(wallet string, wins, totalBets int64) *models.Alert {
	if wallet == "" || totalBets < d.cfg.AnomalyMinSample || wins < 0 || wins > totalBets {
		return nil
	}

	z := WinRateZScore(wins, totalBets)

	triggered := z > d.cfg.AnomalyZThreshold
	if d.cfg.AnomalyTwoSided {
		triggered = math.Abs(z) > d.cfg.AnomalyZThreshold
	}
	if !triggered {
		return nil
	}

	winRate := float64(wins) / float64(totalBets)
	return newAlert(
		models.AlertStatisticalAnomaly,
		models.SeverityInfo,
		[]string{wallet},
		map[string]any{
			"winRate":   winRate,
			"zScore":    z,
			"wins":      wins,
			"totalBets": totalBets,
		},
		models.ActionMonitor,
	)
}
