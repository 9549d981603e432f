package domain

import (
	"github.com/shopspring/decimal"
)

// Account is a single bank account. Balance is never negative.
type Account struct {
	ID        string
	OwnerName string
	Balance   decimal.Decimal
}

// TransactionEvent is produced by every accepted ledger mutation.
type TransactionEvent struct {
	AccountID  string
	OwnerName  string
	NewBalance decimal.Decimal
}

// Holding is an exchange position of one user.
type Holding struct {
	Name          string
	BankAccountNo string
	Units         decimal.Decimal
}

// LeaderboardEntry is a transient ranking row.
type LeaderboardEntry struct {
	Name     string
	NetWorth decimal.Decimal
}

// Aggregate is the periodic combined snapshot of price and pending news.
type Aggregate struct {
	Price decimal.Decimal
	News  []string
}
