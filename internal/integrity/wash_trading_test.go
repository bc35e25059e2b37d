package integrity

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

func bet(trader string, epoch int64, side models.BetSide, amount int64) models.Bet {
	return models.Bet{
		Trader: trader,
		Epoch:  epoch,
		Side:   side,
		Amount: decimal.NewFromInt(amount),
	}
}

func TestDetectWashTrading_ThreeTwoSidedEpochs(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Both sides in epochs 1, 2, 3 — textbook wash pattern.
	bets := []models.Bet{
		bet("0xwash", 1, models.SideYes, 100), bet("0xwash", 1, models.SideNo, 100),
		bet("0xwash", 2, models.SideYes, 100), bet("0xwash", 2, models.SideNo, 100),
		bet("0xwash", 3, models.SideYes, 100), bet("0xwash", 3, models.SideNo, 100),
	}

	alert := d.DetectWashTrading("0xwash", bets)
	if alert == nil {
		t.Fatal("Expected wash trading alert, got nil")
	}
	if alert.Type != models.AlertWashTrading || alert.Severity != models.SeverityCritical {
		t.Errorf("Expected critical wash_trading alert, got %s/%s", alert.Type, alert.Severity)
	}
	if alert.RecommendedAction != models.ActionSuspendScore {
		t.Errorf("Expected suspend_score action, got %s", alert.RecommendedAction)
	}
	if got := alert.Evidence["washEpochCount"]; got != 3 {
		t.Errorf("Expected washEpochCount=3, got %v", got)
	}
}

func TestDetectWashTrading_TwoEpochsStaysQuiet(t *testing.T) {
	d := NewDetector(DefaultConfig())

	bets := []models.Bet{
		bet("0xw", 1, models.SideYes, 100), bet("0xw", 1, models.SideNo, 100),
		bet("0xw", 2, models.SideYes, 100), bet("0xw", 2, models.SideNo, 100),
		bet("0xw", 3, models.SideYes, 100), // one-sided
	}

	if alert := d.DetectWashTrading("0xw", bets); alert != nil {
		t.Errorf("Expected nil below threshold, got %+v", alert)
	}
}

func TestDetectWashTrading_SameSideRepeatsAreClean(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Many bets per epoch, always the same side — conviction, not washing.
	var bets []models.Bet
	for epoch := int64(1); epoch <= 10; epoch++ {
		bets = append(bets, bet("0xbull", epoch, models.SideYes, 50), bet("0xbull", epoch, models.SideYes, 75))
	}

	if alert := d.DetectWashTrading("0xbull", bets); alert != nil {
		t.Errorf("Expected nil for one-sided history, got %+v", alert)
	}
}

func TestDetectWashTrading_IgnoresOtherWallets(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// The two-sided epochs belong to a different wallet.
	bets := []models.Bet{
		bet("0xother", 1, models.SideYes, 100), bet("0xother", 1, models.SideNo, 100),
		bet("0xother", 2, models.SideYes, 100), bet("0xother", 2, models.SideNo, 100),
		bet("0xother", 3, models.SideYes, 100), bet("0xother", 3, models.SideNo, 100),
		bet("0xme", 1, models.SideYes, 100),
	}

	if alert := d.DetectWashTrading("0xme", bets); alert != nil {
		t.Errorf("Expected nil for clean wallet, got %+v", alert)
	}
}

func TestDetectWashTrading_EvidenceEpochsCapped(t *testing.T) {
	d := NewDetector(DefaultConfig())

	var bets []models.Bet
	for epoch := int64(1); epoch <= 25; epoch++ {
		bets = append(bets, bet("0xw", epoch, models.SideYes, 10), bet("0xw", epoch, models.SideNo, 10))
	}

	alert := d.DetectWashTrading("0xw", bets)
	if alert == nil {
		t.Fatal("Expected alert for 25 wash epochs")
	}
	if got := alert.Evidence["washEpochCount"]; got != 25 {
		t.Errorf("Expected full count 25, got %v", got)
	}
	epochs, ok := alert.Evidence["epochs"].([]int64)
	if !ok {
		t.Fatalf("Expected []int64 epochs evidence, got %T", alert.Evidence["epochs"])
	}
	if len(epochs) != 10 {
		t.Errorf("Expected evidence sample capped at 10, got %d", len(epochs))
	}
	// Sample is the earliest epochs, ascending.
	if epochs[0] != 1 || epochs[9] != 10 {
		t.Errorf("Expected epochs 1..10, got %v", epochs)
	}
}

func TestDetectWashTrading_EmptyInput(t *testing.T) {
	d := NewDetector(DefaultConfig())

	if alert := d.DetectWashTrading("", nil); alert != nil {
		t.Errorf("Expected nil for empty input, got %+v", alert)
	}
	if alert := d.DetectWashTrading("0xw", nil); alert != nil {
		t.Errorf("Expected nil for empty history, got %+v", alert)
	}
}
