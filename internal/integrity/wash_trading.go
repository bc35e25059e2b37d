package integrity

import (
	"sort"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Wash Trading Detection
//
// A wallet betting both outcomes of the same market epoch carries no real
// risk: whatever resolves, one leg wins. Repeated across epochs this
// manufactures volume and win count, both of which feed the TruthScore.
// An epoch where the wallet placed bets on both sides is a "wash epoch";
// crossing the threshold (default 3) is treated as deliberate.

// DetectWashTrading scans one wallet's bet history for two-sided epochs.
// Returns nil when the wallet stays below the wash-epoch threshold or the
// input is empty.
func (d *Detector) DetectWashTrading(wallet string, bets []models.Bet) *models.Alert {
	if wallet == "" || len(bets) == 0 {
		return nil
	}

	// 1. Record which sides the wallet took per epoch.
	sidesByEpoch := make(map[int64]map[models.BetSide]bool)
	for _, b := range bets {
		if b.Trader != wallet || b.Side == "" {
			continue
		}
		if sidesByEpoch[b.Epoch] == nil {
			sidesByEpoch[b.Epoch] = make(map[models.BetSide]bool)
		}
		sidesByEpoch[b.Epoch][b.Side] = true
	}

	// 2. Collect epochs with more than one side.
	var washEpochs []int64
	for epoch, sides := range sidesByEpoch {
		if len(sides) > 1 {
			washEpochs = append(washEpochs, epoch)
		}
	}
	if len(washEpochs) < d.cfg.WashEpochThreshold {
		return nil
	}

	// 3. Evidence carries the count plus a bounded sample of epochs.
	sort.Slice(washEpochs, func(i, j int) bool { return washEpochs[i] < washEpochs[j] })
	sample := washEpochs
	if len(sample) > d.cfg.EvidenceEpochCap {
		sample = sample[:d.cfg.EvidenceEpochCap]
	}

	return newAlert(
		models.AlertWashTrading,
		models.SeverityCritical,
		[]string{wallet},
		map[string]any{
			"washEpochCount": len(washEpochs),
			"epochs":         sample,
		},
		models.ActionSuspendScore,
	)
}
