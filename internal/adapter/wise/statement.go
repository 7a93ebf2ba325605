package wise

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/domain"
)

// Profile is a Wise business profile.
type Profile struct {
	ID           int64
	Type         string
	BusinessName string
}

// Balance is one currency balance within a profile.
type Balance struct {
	ID       int64
	Currency string
	Amount   decimal.Decimal
}

// Statement is one balance statement page.
type Statement struct {
	Transactions []domain.BankTransaction
}

// Wire shapes for the Wise statement JSON. Only the fields the pipeline
// consumes are mapped.

type profileResponse struct {
	ID      int64          `json:"id"`
	Type    string         `json:"type"`
	Details profileDetails `json:"details"`
}

type profileDetails struct {
	Name               string `json:"name"`
	RegistrationNumber string `json:"registrationNumber"`
}

type balanceResponse struct {
	ID       int64       `json:"id"`
	Currency string      `json:"currency"`
	Amount   moneyAmount `json:"amount"`
}

type moneyAmount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

type statementResponse struct {
	Transactions []statementTransaction `json:"transactions"`
}

type statementTransaction struct {
	Type            string             `json:"type"`
	Date            time.Time          `json:"date"`
	Amount          moneyAmount        `json:"amount"`
	TotalFees       *moneyAmount       `json:"totalFees"`
	Details         transactionDetails `json:"details"`
	ExchangeDetails *exchangeDetails   `json:"exchangeDetails"`
	RunningBalance  *moneyAmount       `json:"runningBalance"`
	ReferenceNumber string             `json:"referenceNumber"`
}

type transactionDetails struct {
	Type              string     `json:"type"`
	Description       string     `json:"description"`
	PaymentReference  string     `json:"paymentReference"`
	SenderName        string     `json:"senderName"`
	SenderAccount     string     `json:"senderAccount"`
	Recipient         *recipient `json:"recipient"`
	Merchant          *merchant  `json:"merchant"`
	CardLastFourDigits string    `json:"cardLastFourDigits"`
	CardHolderFullName string    `json:"cardHolderFullName"`
}

type recipient struct {
	Name        string `json:"name"`
	BankAccount string `json:"bankAccount"`
}

type merchant struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type exchangeDetails struct {
	FromAmount *moneyAmount     `json:"fromAmount"`
	ToAmount   *moneyAmount     `json:"toAmount"`
	Rate       *decimal.Decimal `json:"rate"`
}

// toDomain flattens the nested statement shape into a BankTransaction. The
// counterparty block depends on the transaction kind, mirroring how Wise
// scatters it across recipient, sender and merchant fields.
func (st *statementTransaction) toDomain(entity string, profileID int64, currency string) domain.BankTransaction {
	tx := domain.BankTransaction{
		Reference:        st.ReferenceNumber,
		Entity:           entity,
		ProfileID:        profileID,
		Direction:        domain.Direction(st.Type),
		Kind:             domain.TransactionKind(st.Details.Type),
		OccurredAt:       st.Date.UTC(),
		Amount:           st.Amount.Value,
		Currency:         currency,
		Description:      st.Details.Description,
		PaymentReference: st.Details.PaymentReference,
		Status:           domain.StatusPending,
	}

	switch tx.Kind {
	case domain.KindTransfer:
		if r := st.Details.Recipient; r != nil {
			tx.CounterpartyName = r.Name
			tx.CounterpartyAccount = r.BankAccount
		}
	case domain.KindDeposit:
		tx.CounterpartyName = st.Details.SenderName
		tx.CounterpartyAccount = st.Details.SenderAccount
	case domain.KindCard:
		if m := st.Details.Merchant; m != nil {
			tx.MerchantName = m.Name
			tx.MerchantCategory = m.Category
		}
		tx.CardLast4 = st.Details.CardLastFourDigits
		tx.Cardholder = st.Details.CardHolderFullName
	}

	if ex := st.ExchangeDetails; ex != nil {
		if ex.FromAmount != nil {
			v := ex.FromAmount.Value
			tx.FromAmount = &v
			tx.FromCurrency = ex.FromAmount.Currency
		}
		tx.ExchangeRate = ex.Rate
	}
	if st.TotalFees != nil {
		v := st.TotalFees.Value
		tx.Fees = &v
	}
	if st.RunningBalance != nil {
		v := st.RunningBalance.Value
		tx.RunningBalance = &v
	}

	return tx
}
