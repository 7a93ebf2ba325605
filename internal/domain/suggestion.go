package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the policy decision derived from a final confidence score.
type Action string

const (
	ActionAutoApprove Action = "auto_approve"
	ActionSuggest     Action = "suggest"
	ActionReview      Action = "review"
	ActionManual      Action = "manual"
)

// Policy thresholds from the confidence model.
var (
	ThresholdAutoApprove = decimal.RequireFromString("0.95")
	ThresholdSuggest     = decimal.RequireFromString("0.80")
	ThresholdReview      = decimal.RequireFromString("0.60")
)

// ActionFor maps a final score onto the policy ladder.
func ActionFor(score decimal.Decimal) Action {
	switch {
	case score.GreaterThanOrEqual(ThresholdAutoApprove):
		return ActionAutoApprove
	case score.GreaterThanOrEqual(ThresholdSuggest):
		return ActionSuggest
	case score.GreaterThanOrEqual(ThresholdReview):
		return ActionReview
	default:
		return ActionManual
	}
}

// SuggestionStatus is the review state reported back by Spectre.
type SuggestionStatus string

const (
	SuggestionPending      SuggestionStatus = "pending"
	SuggestionApproved     SuggestionStatus = "approved"
	SuggestionAutoApproved SuggestionStatus = "auto_approved"
	SuggestionRejected     SuggestionStatus = "rejected"
)

// ReviewedSuggestion is a suggestion whose review outcome the learning loop
// consumes. The (SuggestionID, ReviewedAt) pair is the exactly-once key: a
// re-review produces a new event and the latest reviewed_at wins.
type ReviewedSuggestion struct {
	SuggestionID    string
	WiseReference   string
	Status          SuggestionStatus
	Reviewer        string
	ReviewedAt      time.Time
	MatchType       Tier
	GLTransactionID string
	GLAccountID     int64
	GLAccountName   string
}

// Enrichment is the payload delivered to the accounting-system write path
// once a match is approved. Nil pointers are omitted on the wire.
type Enrichment struct {
	NetsuiteTransactionID string
	WiseTransactionID     string
	CounterpartyName      string
	CounterpartyIBAN      string
	PaymentReference      string
	FXRate                *decimal.Decimal
	FromAmount            *decimal.Decimal
	FromCurrency          string
	Fees                  *decimal.Decimal
	IsIntercompany        *bool
	ICEntity              string
	MerchantName          string
	CardLast4             string
}
