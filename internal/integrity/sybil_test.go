package integrity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

func timedBet(trader string, side models.BetSide, amount int64, unixSec int64) models.Bet {
	return models.Bet{
		Trader:    trader,
		Epoch:     1,
		Side:      side,
		Amount:    decimal.NewFromInt(amount),
		Timestamp: time.Unix(unixSec, 0),
	}
}

func TestDetectSybilCluster_ThreeWalletsSameBucket(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Three wallets, same side, same magnitude (100-999), within one 5s
	// window (unix 1000-1004 all floor to bucket 200).
	bets := []models.Bet{
		timedBet("0xa", models.SideYes, 100, 1000),
		timedBet("0xb", models.SideYes, 250, 1001),
		timedBet("0xc", models.SideYes, 900, 1002),
	}

	alert := d.DetectSybilCluster(bets)
	if alert == nil {
		t.Fatal("Expected sybil alert, got nil")
	}
	if alert.Type != models.AlertSybilCluster || alert.Severity != models.SeverityWarning {
		t.Errorf("Expected warning sybil_cluster alert, got %s/%s", alert.Type, alert.Severity)
	}
	if len(alert.Wallets) != 3 {
		t.Errorf("Expected 3 wallets, got %v", alert.Wallets)
	}
	// Wallets come back sorted for deterministic evidence.
	if alert.Wallets[0] != "0xa" || alert.Wallets[2] != "0xc" {
		t.Errorf("Expected sorted wallets, got %v", alert.Wallets)
	}
	if got := alert.Evidence["amountBucket"]; got != "10^2" {
		t.Errorf("Expected amountBucket 10^2, got %v", got)
	}
}

func TestDetectSybilCluster_TwoWalletsStayQuiet(t *testing.T) {
	d := NewDetector(DefaultConfig())

	bets := []models.Bet{
		timedBet("0xa", models.SideYes, 100, 1000),
		timedBet("0xb", models.SideYes, 150, 1001),
	}

	if alert := d.DetectSybilCluster(bets); alert != nil {
		t.Errorf("Expected nil for 2-wallet bucket, got %+v", alert)
	}
}

func TestDetectSybilCluster_SplitByAxis(t *testing.T) {
	d := NewDetector(DefaultConfig())

	cases := []struct {
		name string
		bets []models.Bet
	}{
		{
			// Same everything except side.
			"opposite sides",
			[]models.Bet{
				timedBet("0xa", models.SideYes, 100, 1000),
				timedBet("0xb", models.SideYes, 100, 1001),
				timedBet("0xc", models.SideNo, 100, 1002),
			},
		},
		{
			// 90 sits in 10^1, the others in 10^2.
			"different magnitude",
			[]models.Bet{
				timedBet("0xa", models.SideYes, 100, 1000),
				timedBet("0xb", models.SideYes, 100, 1001),
				timedBet("0xc", models.SideYes, 90, 1002),
			},
		},
		{
			// Unix 1000/1001 floor to bucket 200, 1010 to bucket 202.
			"outside time window",
			[]models.Bet{
				timedBet("0xa", models.SideYes, 100, 1000),
				timedBet("0xb", models.SideYes, 100, 1001),
				timedBet("0xc", models.SideYes, 100, 1010),
			},
		},
	}

	for _, tc := range cases {
		if alert := d.DetectSybilCluster(tc.bets); alert != nil {
			t.Errorf("%s: expected nil, got %+v", tc.name, alert)
		}
	}
}

func TestDetectSybilCluster_DuplicateWalletCountsOnce(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// One wallet firing three times is not a cluster of three.
	bets := []models.Bet{
		timedBet("0xa", models.SideYes, 100, 1000),
		timedBet("0xa", models.SideYes, 110, 1001),
		timedBet("0xa", models.SideYes, 120, 1002),
		timedBet("0xb", models.SideYes, 130, 1003),
	}

	if alert := d.DetectSybilCluster(bets); alert != nil {
		t.Errorf("Expected nil for 2 distinct wallets, got %+v", alert)
	}
}

func TestDetectSybilCluster_FlagsLargestBucket(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Two qualifying buckets; the four-wallet NO bucket wins.
	bets := []models.Bet{
		timedBet("0xa", models.SideYes, 100, 1000),
		timedBet("0xb", models.SideYes, 100, 1001),
		timedBet("0xc", models.SideYes, 100, 1002),
		timedBet("0xd", models.SideNo, 500, 1000),
		timedBet("0xe", models.SideNo, 500, 1001),
		timedBet("0xf", models.SideNo, 500, 1002),
		timedBet("0xg", models.SideNo, 500, 1003),
	}

	alert := d.DetectSybilCluster(bets)
	if alert == nil {
		t.Fatal("Expected sybil alert, got nil")
	}
	if got := alert.Evidence["walletCount"]; got != 4 {
		t.Errorf("Expected largest bucket (4 wallets), got %v", got)
	}
	if got := alert.Evidence["side"]; got != models.SideNo {
		t.Errorf("Expected NO-side bucket, got %v", got)
	}
}

func TestDetectSybilCluster_SubSecondWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SybilTimeBucket = 500 * time.Millisecond
	d := NewDetector(cfg)

	at := func(trader string, ms int64) models.Bet {
		return models.Bet{
			Trader:    trader,
			Epoch:     1,
			Side:      models.SideYes,
			Amount:    decimal.NewFromInt(100),
			Timestamp: time.Unix(0, ms*int64(time.Millisecond)),
		}
	}

	// 1000-1400ms all land in the same 500ms window.
	tight := []models.Bet{at("0xa", 1000), at("0xb", 1100), at("0xc", 1400)}
	if alert := d.DetectSybilCluster(tight); alert == nil {
		t.Fatal("Expected sybil alert for sub-second cluster, got nil")
	}

	// 600ms apart crosses window boundaries.
	spread := []models.Bet{at("0xa", 1000), at("0xb", 1600), at("0xc", 2200)}
	if alert := d.DetectSybilCluster(spread); alert != nil {
		t.Errorf("Expected nil for bets spread across windows, got %+v", alert)
	}
}

func TestDetectSybilCluster_SkipsMalformedBets(t *testing.T) {
	d := NewDetector(DefaultConfig())

	bets := []models.Bet{
		{Trader: "", Side: models.SideYes, Amount: decimal.NewFromInt(100), Timestamp: time.Unix(1000, 0)},
		{Trader: "0xa", Side: models.SideYes, Amount: decimal.NewFromInt(-5), Timestamp: time.Unix(1000, 0)},
		{Trader: "0xb", Side: "", Amount: decimal.NewFromInt(100), Timestamp: time.Unix(1000, 0)},
	}

	if alert := d.DetectSybilCluster(bets); alert != nil {
		t.Errorf("Expected nil for malformed batch, got %+v", alert)
	}
	if alert := d.DetectSybilCluster(nil); alert != nil {
		t.Errorf("Expected nil for empty batch, got %+v", alert)
	}
}
