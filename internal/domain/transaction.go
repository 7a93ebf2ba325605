package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the debit/credit side of a bank transaction.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// TransactionKind is the Wise transaction type from the statement.
type TransactionKind string

const (
	KindTransfer             TransactionKind = "TRANSFER"
	KindDeposit              TransactionKind = "DEPOSIT"
	KindCard                 TransactionKind = "CARD"
	KindConversion           TransactionKind = "CONVERSION"
	KindMoneyAdded           TransactionKind = "MONEY_ADDED"
	KindIncomingCrossBalance TransactionKind = "INCOMING_CROSS_BALANCE"
	KindOutgoingCrossBalance TransactionKind = "OUTGOING_CROSS_BALANCE"
	KindDirectDebit          TransactionKind = "DIRECT_DEBIT"
	KindBalanceInterest      TransactionKind = "BALANCE_INTEREST"
	KindBalanceAdjustment    TransactionKind = "BALANCE_ADJUSTMENT"
)

// MatchStatus is the reconciliation state of a bank transaction.
// It only advances: pending -> submitted -> matched | unmatched.
type MatchStatus string

const (
	StatusPending   MatchStatus = "pending"
	StatusSubmitted MatchStatus = "submitted"
	StatusMatched   MatchStatus = "matched"
	StatusUnmatched MatchStatus = "unmatched"
)

var statusRank = map[MatchStatus]int{
	StatusPending:   0,
	StatusSubmitted: 1,
	StatusMatched:   2,
	StatusUnmatched: 2,
}

// CanTransition reports whether a status change respects the forward-only
// lifecycle. Transitions back to pending are allowed only from submitted,
// which covers the emission-failure rollback.
func (s MatchStatus) CanTransition(to MatchStatus) bool {
	if s == to {
		return true
	}
	if s == StatusSubmitted && to == StatusPending {
		return true
	}
	return statusRank[to] > statusRank[s]
}

// Terminal reports whether the status ends the transaction lifecycle.
func (s MatchStatus) Terminal() bool {
	return s == StatusMatched || s == StatusUnmatched
}

// BankTransaction is a Wise statement line. The reference is the bank's
// globally unique id (e.g. TRANSFER-1950972714) and is immutable.
type BankTransaction struct {
	Reference string

	Entity    string
	ProfileID int64
	Direction Direction
	Kind      TransactionKind

	OccurredAt time.Time
	Amount     decimal.Decimal
	Currency   string

	Description         string
	PaymentReference    string
	CounterpartyName    string
	CounterpartyAccount string

	// FX block, present on conversions and cross-currency transfers.
	FromAmount   *decimal.Decimal
	FromCurrency string
	ExchangeRate *decimal.Decimal

	Fees           *decimal.Decimal
	RunningBalance *decimal.Decimal

	// Card block, present on CARD transactions.
	MerchantName     string
	MerchantCategory string
	CardLast4        string
	Cardholder       string

	Status         MatchStatus
	LastAttemptAt  *time.Time
	Attempts       int
	BestConfidence decimal.Decimal
	SuggestionID   string

	FetchedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CrossCurrency reports whether the transaction settled from another currency.
func (t *BankTransaction) CrossCurrency() bool {
	return t.FromCurrency != "" && t.FromCurrency != t.Currency
}

// SourceAmount is the amount to compare against GL lines: the original
// currency amount when an FX block is present, the settled amount otherwise.
func (t *BankTransaction) SourceAmount() decimal.Decimal {
	if t.CrossCurrency() && t.FromAmount != nil {
		return *t.FromAmount
	}
	return t.Amount
}

// RecordAttempt applies the bookkeeping for one scoring attempt. Attempts are
// monotonic and BestConfidence keeps the maximum ever observed.
func (t *BankTransaction) RecordAttempt(confidence decimal.Decimal, at time.Time) {
	t.Attempts++
	t.LastAttemptAt = &at
	if confidence.GreaterThan(t.BestConfidence) {
		t.BestConfidence = confidence
	}
}
