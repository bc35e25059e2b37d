package integrity

import (
	"sort"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Collusion Detection
//
// Two wallets that keep showing up in the same market epochs, far beyond
// what independent interest explains, are likely coordinated — profit
// shuffling, outcome pumping, or one actor splitting exposure.
//
// For every unordered wallet pair the detector computes a symmetric overlap:
//
//   overlap = |shared epochs| / |A's epochs ∪ B's epochs|
//
// A pair qualifies when shared epochs meet the absolute floor (default 20)
// AND overlap exceeds the rate threshold (default 0.8). The absolute floor
// prevents two wallets with a handful of common epochs from qualifying on
// rate alone.

// pairEvidence holds the overlap computation for one qualifying pair.
type pairEvidence struct {
	walletA string
	walletB string
	shared  int
	union   int
	overlap float64
}

// DetectCollusion returns an alert for the first qualifying pair found, nil
// when no pair qualifies. Wallet order is deterministic (lexicographic), so
// "first" is stable for identical input.
func (d *Detector) DetectCollusion(bets []models.Bet) *models.Alert {
	pairs := d.qualifyingPairs(bets, true)
	if len(pairs) == 0 {
		return nil
	}
	return collusionAlert(pairs[0])
}

// DetectAllCollusion returns one alert per qualifying pair. The single-pair
// DetectCollusion matches the reference behavior; batch callers that want
// full coverage use this instead.
func (d *Detector) DetectAllCollusion(bets []models.Bet) []*models.Alert {
	pairs := d.qualifyingPairs(bets, false)
	alerts := make([]*models.Alert, 0, len(pairs))
	for _, p := range pairs {
		alerts = append(alerts, collusionAlert(p))
	}
	return alerts
}

// DetectCollusionBatch applies the configured reporting mode: every
// qualifying pair when CollusionAllPairs is set, else just the first.
func (d *Detector) DetectCollusionBatch(bets []models.Bet) []*models.Alert {
	if d.cfg.CollusionAllPairs {
		return d.DetectAllCollusion(bets)
	}
	if alert := d.DetectCollusion(bets); alert != nil {
		return []*models.Alert{alert}
	}
	return nil
}

// qualifyingPairs finds wallet pairs above both collusion thresholds.
func (d *Detector) qualifyingPairs(bets []models.Bet, firstOnly bool) []pairEvidence {
	if len(bets) == 0 {
		return nil
	}

	// 1. Epoch participation set per wallet.
	epochsByWallet := make(map[string]map[int64]bool)
	for _, b := range bets {
		if b.Trader == "" {
			continue
		}
		if epochsByWallet[b.Trader] == nil {
			epochsByWallet[b.Trader] = make(map[int64]bool)
		}
		epochsByWallet[b.Trader][b.Epoch] = true
	}
	if len(epochsByWallet) < 2 {
		return nil
	}

	wallets := make([]string, 0, len(epochsByWallet))
	for w := range epochsByWallet {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	// 2. Pairwise symmetric overlap.
	var out []pairEvidence
	for i := 0; i < len(wallets); i++ {
		for j := i + 1; j < len(wallets); j++ {
			a, b := epochsByWallet[wallets[i]], epochsByWallet[wallets[j]]

			shared := 0
			for e := range a {
				if b[e] {
					shared++
				}
			}
			if shared < d.cfg.CollusionMinShared {
				continue
			}

			union := len(a) + len(b) - shared
			if union == 0 {
				continue
			}
			overlap := float64(shared) / float64(union)
			if overlap <= d.cfg.CollusionOverlap {
				continue
			}

			out = append(out, pairEvidence{
				walletA: wallets[i],
				walletB: wallets[j],
				shared:  shared,
				union:   union,
				overlap: overlap,
			})
			if firstOnly {
				return out
			}
		}
	}
	return out
}

func collusionAlert(p pairEvidence) *models.Alert {
	return newAlert(
		models.AlertCollusion,
		models.SeverityWarning,
		[]string{p.walletA, p.walletB},
		map[string]any{
			"sharedEpochs": p.shared,
			"totalEpochs":  p.union,
			"coOccurrence": p.overlap,
		},
		models.ActionInvestigate,
	)
}
