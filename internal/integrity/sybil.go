package integrity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// Sybil Cluster Detection
//
// One actor controlling many wallets tends to drive them identically: same
// side, same order-of-magnitude stake, placed within seconds. Genuine
// independent traders rarely line up on all three axes at once.
//
// Bets are grouped by a derived bucket key (side, amount magnitude, time
// window) and any bucket holding enough distinct wallets is flagged. The key
// derivation is a pure function so the grouping is testable in isolation.

// sybilKey is the bucket identity for one bet.
type sybilKey struct {
	Side         models.BetSide
	AmountBucket int
	TimeBucket   int64
}

// sybilBucketKey derives the bucket for a bet, or ok=false when the bet
// cannot participate in clustering (missing trader, non-positive amount).
func (d *Detector) sybilBucketKey(b models.Bet) (sybilKey, bool) {
	if b.Trader == "" || b.Side == "" || !b.Amount.IsPositive() {
		return sybilKey{}, false
	}

	amt, _ := b.Amount.Float64()
	window := d.cfg.SybilTimeBucket
	if window <= 0 {
		window = 5 * time.Second
	}

	return sybilKey{
		Side:         b.Side,
		AmountBucket: int(math.Floor(math.Log10(amt))),
		// Nanosecond division so sub-second windows bucket correctly
		// instead of truncating the divisor to zero.
		TimeBucket: b.Timestamp.UnixNano() / int64(window),
	}, true
}

// DetectSybilCluster scans a batch of bets across wallets (typically all
// bets for one epoch) for clusters of distinct wallets betting identically.
// Returns nil when no bucket reaches the minimum wallet count.
func (d *Detector) DetectSybilCluster(bets []models.Bet) *models.Alert {
	if len(bets) == 0 {
		return nil
	}

	// 1. Group distinct wallets per bucket.
	buckets := make(map[sybilKey]map[string]bool)
	for _, b := range bets {
		key, ok := d.sybilBucketKey(b)
		if !ok {
			continue
		}
		if buckets[key] == nil {
			buckets[key] = make(map[string]bool)
		}
		buckets[key][b.Trader] = true
	}

	// 2. Flag the largest qualifying bucket.
	var (
		bestKey  sybilKey
		bestSize int
	)
	for key, wallets := range buckets {
		if len(wallets) >= d.cfg.SybilMinWallets && len(wallets) > bestSize {
			bestKey, bestSize = key, len(wallets)
		}
	}
	if bestSize == 0 {
		return nil
	}

	wallets := make([]string, 0, bestSize)
	for w := range buckets[bestKey] {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	return newAlert(
		models.AlertSybilCluster,
		models.SeverityWarning,
		wallets,
		map[string]any{
			"walletCount":  bestSize,
			"side":         bestKey.Side,
			"amountBucket": fmt.Sprintf("10^%d", bestKey.AmountBucket),
			"timeBucket":   bestKey.TimeBucket,
			"windowSec":    d.cfg.SybilTimeBucket.Seconds(),
		},
		models.ActionInvestigate,
	)
}
