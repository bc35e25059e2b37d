package integrity

import (
	"testing"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

// pairBets builds bet histories for two wallets: shared epochs both enter,
// soloA/soloB epochs only one enters.
func pairBets(a, b string, shared, soloA, soloB int) []models.Bet {
	var bets []models.Bet
	epoch := int64(0)
	for i := 0; i < shared; i++ {
		epoch++
		bets = append(bets, bet(a, epoch, models.SideYes, 10), bet(b, epoch, models.SideNo, 10))
	}
	for i := 0; i < soloA; i++ {
		epoch++
		bets = append(bets, bet(a, epoch, models.SideYes, 10))
	}
	for i := 0; i < soloB; i++ {
		epoch++
		bets = append(bets, bet(b, epoch, models.SideYes, 10))
	}
	return bets
}

func TestDetectCollusion_HighOverlapPair(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// 25 shared, 2 solo each: overlap = 25/29 ≈ 0.862.
	alert := d.DetectCollusion(pairBets("0xa", "0xb", 25, 2, 2))
	if alert == nil {
		t.Fatal("Expected collusion alert, got nil")
	}
	if alert.Type != models.AlertCollusion || alert.Severity != models.SeverityWarning {
		t.Errorf("Expected warning collusion alert, got %s/%s", alert.Type, alert.Severity)
	}
	if len(alert.Wallets) != 2 || alert.Wallets[0] != "0xa" || alert.Wallets[1] != "0xb" {
		t.Errorf("Expected sorted pair [0xa 0xb], got %v", alert.Wallets)
	}
	if got := alert.Evidence["sharedEpochs"]; got != 25 {
		t.Errorf("Expected sharedEpochs=25, got %v", got)
	}
}

func TestDetectCollusion_SharedFloorNotMet(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Perfect 100% overlap but only 10 shared epochs: the absolute floor
	// keeps small-history pairs out.
	if alert := d.DetectCollusion(pairBets("0xa", "0xb", 10, 0, 0)); alert != nil {
		t.Errorf("Expected nil under shared floor, got %+v", alert)
	}
}

func TestDetectCollusion_OverlapRateNotMet(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// 25 shared but 20 solo each: overlap = 25/65 ≈ 0.38.
	if alert := d.DetectCollusion(pairBets("0xa", "0xb", 25, 20, 20)); alert != nil {
		t.Errorf("Expected nil under overlap rate, got %+v", alert)
	}
}

func TestDetectCollusion_ExactThresholdIsQuiet(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// 20 shared, 5 solo: overlap = 20/25 = 0.80 exactly. The rate check
	// is strict, so equality does not qualify.
	if alert := d.DetectCollusion(pairBets("0xa", "0xb", 20, 5, 0)); alert != nil {
		t.Errorf("Expected nil at exact 0.8 overlap, got %+v", alert)
	}
}

func TestDetectCollusion_SingleWallet(t *testing.T) {
	d := NewDetector(DefaultConfig())

	var bets []models.Bet
	for epoch := int64(1); epoch <= 30; epoch++ {
		bets = append(bets, bet("0xsolo", epoch, models.SideYes, 10))
	}

	if alert := d.DetectCollusion(bets); alert != nil {
		t.Errorf("Expected nil for single wallet, got %+v", alert)
	}
	if alert := d.DetectCollusion(nil); alert != nil {
		t.Errorf("Expected nil for empty batch, got %+v", alert)
	}
}

func TestDetectCollusionBatch_ModeSwitch(t *testing.T) {
	bets := pairBets("0xa", "0xb", 25, 0, 0)
	// Give 0xc the same 25 epochs so all three pairs qualify.
	for epoch := int64(1); epoch <= 25; epoch++ {
		bets = append(bets, bet("0xc", epoch, models.SideYes, 10))
	}

	first := NewDetector(DefaultConfig())
	if got := first.DetectCollusionBatch(bets); len(got) != 1 {
		t.Errorf("Expected first-pair mode to emit 1 alert, got %d", len(got))
	}

	cfg := DefaultConfig()
	cfg.CollusionAllPairs = true
	all := NewDetector(cfg)
	if got := all.DetectCollusionBatch(bets); len(got) != 3 {
		t.Errorf("Expected all-pairs mode to emit 3 alerts, got %d", len(got))
	}
}

func TestDetectAllCollusion_ReportsEveryPair(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Three wallets marching through the same 25 epochs: 3 pairs qualify.
	var bets []models.Bet
	for epoch := int64(1); epoch <= 25; epoch++ {
		bets = append(bets,
			bet("0xa", epoch, models.SideYes, 10),
			bet("0xb", epoch, models.SideNo, 10),
			bet("0xc", epoch, models.SideYes, 10),
		)
	}

	alerts := d.DetectAllCollusion(bets)
	if len(alerts) != 3 {
		t.Fatalf("Expected 3 pair alerts, got %d", len(alerts))
	}

	// DetectCollusion surfaces only the lexicographically first pair.
	single := d.DetectCollusion(bets)
	if single == nil {
		t.Fatal("Expected first-pair alert, got nil")
	}
	if single.Wallets[0] != "0xa" || single.Wallets[1] != "0xb" {
		t.Errorf("Expected first pair [0xa 0xb], got %v", single.Wallets)
	}
}
