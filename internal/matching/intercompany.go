package matching

import (
	"github.com/phygrid/wiserecon/internal/domain"
)

// ICResult is the outcome of intercompany classification.
type ICResult struct {
	IsIntercompany     bool
	CounterpartyEntity string
	Method             string
}

// ClassifyIntercompany detects transfers between group entities:
// counterparty name matching an entity display name or alias, counterparty
// account in a known entity IBAN, or a payment reference carrying an "IC"
// token or an entity name.
func ClassifyIntercompany(tx *domain.BankTransaction, reg *domain.EntityRegistry) ICResult {
	if reg == nil {
		return ICResult{}
	}

	if tx.CounterpartyName != "" {
		if e, ok := reg.ByName(tx.CounterpartyName); ok {
			return ICResult{IsIntercompany: true, CounterpartyEntity: e.DisplayName, Method: "counterparty-name"}
		}
		if e, ok := reg.ContainsEntityName(tx.CounterpartyName); ok {
			return ICResult{IsIntercompany: true, CounterpartyEntity: e.DisplayName, Method: "counterparty-name"}
		}
	}

	if tx.CounterpartyAccount != "" {
		if e, ok := reg.ByIBAN(tx.CounterpartyAccount); ok {
			return ICResult{IsIntercompany: true, CounterpartyEntity: e.DisplayName, Method: "counterparty-iban"}
		}
	}

	if ref := tx.PaymentReference; ref != "" {
		if e, ok := reg.ContainsEntityName(ref); ok {
			return ICResult{IsIntercompany: true, CounterpartyEntity: e.DisplayName, Method: "reference-entity-name"}
		}
		if ContainsToken(ref, "ic") || ContainsToken(ref, "intercompany") {
			return ICResult{IsIntercompany: true, Method: "reference-ic-token"}
		}
	}

	return ICResult{}
}

// ApplyIC stamps the classification onto a candidate set.
func ApplyIC(ic ICResult, cands []*domain.Candidate) {
	for _, c := range cands {
		c.IsIntercompany = ic.IsIntercompany
		c.CounterpartyEntity = ic.CounterpartyEntity
	}
}
