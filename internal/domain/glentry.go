package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GLEntry is a general-ledger line fetched from Spectre's NetSuite mirror.
type GLEntry struct {
	TransactionID string
	LineID        int64
	Type          string
	Date          time.Time
	Amount        decimal.Decimal
	Currency      string
	AccountID     int64
	AccountName   string
	EntityID      int64
	EntityName    string
	Memo          string
	IsReconciled  bool
}
