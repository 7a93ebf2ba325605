package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PatternKind classifies what field a learned pattern matches against.
type PatternKind string

const (
	PatternCounterparty PatternKind = "counterparty"
	PatternReference    PatternKind = "reference"
	PatternAmountRange  PatternKind = "amount_range"
	PatternDescription  PatternKind = "description"
)

// TargetKind classifies what a pattern points at in the accounting system.
type TargetKind string

const (
	TargetVendor     TargetKind = "vendor"
	TargetCustomer   TargetKind = "customer"
	TargetAccount    TargetKind = "account"
	TargetSubsidiary TargetKind = "subsidiary"
)

// Pattern is a previously approved correspondence reused to boost confidence
// on similar future transactions. Unique on (Kind, Value, TargetKind).
type Pattern struct {
	ID          string
	Kind        PatternKind
	Value       string
	IsRegex     bool
	TargetKind  TargetKind
	TargetID    string
	TargetName  string
	AutoApprove bool
	Boost       decimal.Decimal

	TimesUsed     int
	TimesApproved int
	TimesRejected int

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pattern boost bounds and promotion rules.
var (
	PatternBoostInitial = decimal.RequireFromString("0.10")
	PatternBoostStep    = decimal.RequireFromString("0.05")
	PatternBoostMax     = decimal.RequireFromString("0.25")
)

const (
	patternPromoteApprovals = 10
	patternDeactivateRejects = 3
	patternMaxRejectionRate  = 0.05
)

// Matches reports whether the pattern matches the transaction field it
// targets. Amount-range patterns are evaluated by the store, not here.
func (p *Pattern) Matches(tx *BankTransaction) bool {
	if !p.Active {
		return false
	}

	var field string
	switch p.Kind {
	case PatternCounterparty:
		field = tx.CounterpartyName
		if field == "" {
			field = tx.MerchantName
		}
	case PatternReference:
		field = tx.PaymentReference
	case PatternDescription:
		field = tx.Description
	default:
		return false
	}
	if field == "" {
		return false
	}

	if p.IsRegex {
		re, err := regexp.Compile("(?i)" + p.Value)
		if err != nil {
			return false
		}
		return re.MatchString(field)
	}
	return strings.Contains(strings.ToLower(field), strings.ToLower(p.Value))
}

// RejectionRate is rejections over total reviews; zero when unreviewed.
func (p *Pattern) RejectionRate() float64 {
	total := p.TimesApproved + p.TimesRejected
	if total == 0 {
		return 0
	}
	return float64(p.TimesRejected) / float64(total)
}

// Promote applies the learning-loop promotion rule: once a pattern has ten
// approvals and under 5% rejections the boost steps up (capped), and a clean
// record flips auto-approve on.
func (p *Pattern) Promote() bool {
	if p.TimesApproved < patternPromoteApprovals || p.RejectionRate() >= patternMaxRejectionRate {
		return false
	}
	boosted := p.Boost.Add(PatternBoostStep)
	if boosted.GreaterThan(PatternBoostMax) {
		boosted = PatternBoostMax
	}
	changed := !boosted.Equal(p.Boost)
	p.Boost = boosted
	if p.TimesRejected == 0 && !p.AutoApprove {
		p.AutoApprove = true
		changed = true
	}
	return changed
}

// RecordApproval increments the approval counter.
func (p *Pattern) RecordApproval() {
	p.TimesApproved++
}

// RecordRejection increments the rejection counter and deactivates the
// pattern once it crosses the rejection limit. Counters never go negative.
func (p *Pattern) RecordRejection() {
	p.TimesRejected++
	if p.TimesRejected >= patternDeactivateRejects {
		p.Active = false
	}
}

// RevokeApproval decrements the approval counter, flooring at zero. Used when
// a previously approved suggestion is later rejected.
func (p *Pattern) RevokeApproval() {
	if p.TimesApproved > 0 {
		p.TimesApproved--
	}
}
