package spectre

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
)

// Suggestion is the payload submitted for one proposed match. The
// WiseTransactionID is the idempotency key; resubmitting it is a no-op
// server-side.
type Suggestion struct {
	WiseTransactionID string          `json:"wise_transaction_id"`
	WiseProfileID     int64           `json:"wise_profile_id"`
	EntityName        string          `json:"entity_name"`
	TransactionDate   time.Time       `json:"transaction_date"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	TransactionType   string          `json:"transaction_type"`
	MatchType         string          `json:"match_type"`
	ConfidenceScore   decimal.Decimal `json:"confidence_score"`
	RecommendedAction string          `json:"recommended_action"`

	Description  string   `json:"description,omitempty"`
	Counterparty string   `json:"counterparty,omitempty"`
	Explanation  string   `json:"match_explanation,omitempty"`
	MatchReasons []string `json:"match_reasons"`

	NetsuiteTransactionID string `json:"netsuite_transaction_id,omitempty"`
	NetsuiteLineID        int64  `json:"netsuite_line_id,omitempty"`
	NetsuiteType          string `json:"netsuite_type,omitempty"`
	SuggestedAccountID    int64  `json:"suggested_account_id,omitempty"`
	SuggestedAccountName  string `json:"suggested_account_name,omitempty"`

	IsIntercompany     bool   `json:"is_intercompany"`
	CounterpartyEntity string `json:"counterparty_entity,omitempty"`

	ModelID       string `json:"model_id,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
}

// SuggestionResponse is the acknowledgement for one submission.
type SuggestionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BatchResponse is the acknowledgement for a bulk submission.
type BatchResponse struct {
	BatchID string `json:"batch_id"`
	Count   int    `json:"count"`
}

// SuggestionDetail is the full review state of a submitted suggestion.
type SuggestionDetail struct {
	ID                    string     `json:"id"`
	WiseTransactionID     string     `json:"wise_transaction_id"`
	Status                string     `json:"status"`
	Reviewer              string     `json:"reviewer,omitempty"`
	ReviewedAt            *time.Time `json:"reviewed_at,omitempty"`
	MatchType             string     `json:"match_type"`
	NetsuiteTransactionID string     `json:"netsuite_transaction_id,omitempty"`
	SuggestedAccountID    int64      `json:"suggested_account_id,omitempty"`
	SuggestedAccountName  string     `json:"suggested_account_name,omitempty"`
	ExecutionOutcome      string     `json:"execution_outcome,omitempty"`
}

// ToReviewed converts a detail row into the learning-loop event shape.
func (s *SuggestionDetail) ToReviewed() *domain.ReviewedSuggestion {
	if s.ReviewedAt == nil {
		return nil
	}
	return &domain.ReviewedSuggestion{
		SuggestionID:    s.ID,
		WiseReference:   s.WiseTransactionID,
		Status:          domain.SuggestionStatus(s.Status),
		Reviewer:        s.Reviewer,
		ReviewedAt:      *s.ReviewedAt,
		MatchType:       domain.Tier(s.MatchType),
		GLTransactionID: s.NetsuiteTransactionID,
		GLAccountID:     s.SuggestedAccountID,
		GLAccountName:   s.SuggestedAccountName,
	}
}

type glEntryItem struct {
	TransactionID   string          `json:"transaction_id"`
	LineID          int64           `json:"line_id"`
	TransactionType string          `json:"transaction_type"`
	Date            time.Time       `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	AccountID       int64           `json:"account_id"`
	AccountName     string          `json:"account_name"`
	EntityID        int64           `json:"entity_id"`
	EntityName      string          `json:"entity_name"`
	Memo            string          `json:"memo,omitempty"`
	IsReconciled    bool            `json:"is_reconciled"`
}

func (g *glEntryItem) toDomain() domain.GLEntry {
	return domain.GLEntry{
		TransactionID: g.TransactionID,
		LineID:        g.LineID,
		Type:          g.TransactionType,
		Date:          g.Date,
		Amount:        g.Amount,
		Currency:      g.Currency,
		AccountID:     g.AccountID,
		AccountName:   g.AccountName,
		EntityID:      g.EntityID,
		EntityName:    g.EntityName,
		Memo:          g.Memo,
		IsReconciled:  g.IsReconciled,
	}
}

type patternItem struct {
	ID              string          `json:"id"`
	PatternType     string          `json:"pattern_type"`
	PatternValue    string          `json:"pattern_value"`
	IsRegex         bool            `json:"is_regex"`
	TargetType      string          `json:"target_type"`
	TargetID        string          `json:"target_netsuite_id"`
	TargetName      string          `json:"target_name"`
	IsAutoApprove   bool            `json:"is_auto_approve"`
	ConfidenceBoost decimal.Decimal `json:"confidence_boost"`
	TimesUsed       int             `json:"times_used"`
	TimesApproved   int             `json:"times_approved"`
	TimesRejected   int             `json:"times_rejected"`
	IsActive        bool            `json:"is_active"`
}

func (p *patternItem) toDomain() domain.Pattern {
	return domain.Pattern{
		ID:            p.ID,
		Kind:          domain.PatternKind(p.PatternType),
		Value:         p.PatternValue,
		IsRegex:       p.IsRegex,
		TargetKind:    domain.TargetKind(p.TargetType),
		TargetID:      p.TargetID,
		TargetName:    p.TargetName,
		AutoApprove:   p.IsAutoApprove,
		Boost:         p.ConfidenceBoost,
		TimesUsed:     p.TimesUsed,
		TimesApproved: p.TimesApproved,
		TimesRejected: p.TimesRejected,
		Active:        p.IsActive,
	}
}

// NewPattern is the creation payload for a learned pattern. Uniqueness is on
// (pattern_type, pattern_value, target_type).
type NewPattern struct {
	PatternType  string `json:"pattern_type"`
	PatternValue string `json:"pattern_value"`
	IsRegex      bool   `json:"is_regex"`
	TargetType   string `json:"target_type"`
	TargetID     string `json:"target_netsuite_id"`
	TargetName   string `json:"target_name"`
	Description  string `json:"description,omitempty"`
}

// PatternUpdate carries the mutable review-driven fields of a pattern back
// to the server: usage counters, boost promotion, auto-approve and the
// active flag.
type PatternUpdate struct {
	ID              string          `json:"id"`
	PatternType     string          `json:"pattern_type"`
	PatternValue    string          `json:"pattern_value"`
	IsRegex         bool            `json:"is_regex"`
	TargetType      string          `json:"target_type"`
	TargetID        string          `json:"target_netsuite_id"`
	TargetName      string          `json:"target_name"`
	IsAutoApprove   bool            `json:"is_auto_approve"`
	ConfidenceBoost decimal.Decimal `json:"confidence_boost"`
	TimesUsed       int             `json:"times_used"`
	TimesApproved   int             `json:"times_approved"`
	TimesRejected   int             `json:"times_rejected"`
	IsActive        bool            `json:"is_active"`
}

func patternUpdateFromDomain(p *domain.Pattern) *PatternUpdate {
	return &PatternUpdate{
		ID:              p.ID,
		PatternType:     string(p.Kind),
		PatternValue:    p.Value,
		IsRegex:         p.IsRegex,
		TargetType:      string(p.TargetKind),
		TargetID:        p.TargetID,
		TargetName:      p.TargetName,
		IsAutoApprove:   p.AutoApprove,
		ConfidenceBoost: p.Boost,
		TimesUsed:       p.TimesUsed,
		TimesApproved:   p.TimesApproved,
		TimesRejected:   p.TimesRejected,
		IsActive:        p.Active,
	}
}

type enrichmentData struct {
	CounterpartyName string  `json:"counterparty_name,omitempty"`
	CounterpartyIBAN string  `json:"counterparty_iban,omitempty"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	FXRate           *string `json:"fx_rate,omitempty"`
	FromAmount       *string `json:"from_amount,omitempty"`
	FromCurrency     string  `json:"from_currency,omitempty"`
	Fees             *string `json:"fees,omitempty"`
	IsIntercompany   *bool   `json:"is_intercompany,omitempty"`
	ICEntity         string  `json:"ic_entity,omitempty"`
	MerchantName     string  `json:"merchant_name,omitempty"`
	CardLast4        string  `json:"card_last4,omitempty"`
}

type enrichRequest struct {
	NetsuiteTransactionID string         `json:"netsuite_transaction_id"`
	WiseTransactionID     string         `json:"wise_transaction_id"`
	EnrichmentData        enrichmentData `json:"enrichment_data"`
}

func decStr(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
