package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetSide is the outcome a wallet backed within a market epoch.
type BetSide string

const (
	SideYes BetSide = "YES"
	SideNo  BetSide = "NO"
)

// Bet is a single normalized wager produced by the platform ingestion
// adapters. Immutable once created; the engine never mutates it.
type Bet struct {
	ID        string          `json:"id"`
	Trader    string          `json:"trader"`   // wallet address
	Platform  string          `json:"platform"` // source platform slug
	Epoch     int64           `json:"epoch"`    // market/round identifier
	Amount    decimal.Decimal `json:"amount"`
	Side      BetSide         `json:"side"`
	Timestamp time.Time       `json:"timestamp"`
}

// TraderAggregate is the running win/loss tally for one wallet across all
// platforms. Updated incrementally as resolved bets arrive; fields are never
// decremented except by explicit correction.
type TraderAggregate struct {
	Address     string          `json:"address"`
	TotalBets   int64           `json:"totalBets"`
	Wins        int64           `json:"wins"`
	Losses      int64           `json:"losses"`
	TotalVolume decimal.Decimal `json:"totalVolume"`
	FirstSeen   time.Time       `json:"firstSeen"`
}

// PeriodReturn is one period's net return for a wallet, used by the
// consistency component of the score.
type PeriodReturn struct {
	Epoch  int64   `json:"epoch"`
	Return float64 `json:"return"` // net profit/loss for the period, base units
}
