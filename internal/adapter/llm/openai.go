package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/matching"
)

// PromptVersion is recorded on every llm-tier candidate so a scored match can
// be traced back to the exact prompt that produced it.
const PromptVersion = "recon-match-v2"

const systemPrompt = `You are a financial reconciliation assistant. Given a bank transaction and a numbered list of candidate general-ledger entries, pick the entry that records the same economic event, or none.

Consider amount (exact or within FX tolerance), date proximity, payment references and invoice numbers (possibly abbreviated or reformatted), company name variations, and descriptions.

Return ONLY valid JSON with keys:
{"gl_id": "<transaction id of the best match, or null>", "confidence": <0.0 to 1.0>, "reasoning": "<one or two sentences>"}`

// OpenAIScorer implements matching.LLMScorer on the OpenAI chat API.
type OpenAIScorer struct {
	client  openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIScorer builds a scorer. The limiter is the global bucket shared
// with the embedder.
func NewOpenAIScorer(apiKey, model string, limiter *rate.Limiter) *OpenAIScorer {
	return &OpenAIScorer{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		limiter: limiter,
	}
}

// Score asks the model to pick a GL entry for the transaction.
func (s *OpenAIScorer) Score(ctx context.Context, tx *domain.BankTransaction, candidates []domain.GLEntry) (*matching.LLMVerdict, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(tx, candidates)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, matching.ErrNoVerdict
	}

	var parsed struct {
		GLID       *string `json:"gl_id"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse llm verdict: %w", err)
	}
	if parsed.GLID == nil || *parsed.GLID == "" {
		return nil, nil
	}

	return &matching.LLMVerdict{
		GLTransactionID: *parsed.GLID,
		Confidence:      decimal.NewFromFloat(parsed.Confidence),
		Reasoning:       parsed.Reasoning,
		ModelID:         s.model,
		PromptVersion:   PromptVersion,
	}, nil
}

func buildPrompt(tx *domain.BankTransaction, candidates []domain.GLEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bank transaction:\n")
	fmt.Fprintf(&b, "- Reference: %s\n", tx.Reference)
	fmt.Fprintf(&b, "- Date: %s\n", tx.OccurredAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Amount: %s %s\n", tx.Amount, tx.Currency)
	fmt.Fprintf(&b, "- Type: %s %s\n", tx.Direction, tx.Kind)
	if tx.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", tx.Description)
	}
	if tx.PaymentReference != "" {
		fmt.Fprintf(&b, "- Payment reference: %s\n", tx.PaymentReference)
	}
	if tx.CounterpartyName != "" {
		fmt.Fprintf(&b, "- Counterparty: %s\n", tx.CounterpartyName)
	}
	if tx.CrossCurrency() && tx.FromAmount != nil {
		fmt.Fprintf(&b, "- Original amount: %s %s\n", tx.FromAmount, tx.FromCurrency)
		if tx.ExchangeRate != nil {
			fmt.Fprintf(&b, "- Exchange rate: %s\n", tx.ExchangeRate)
		}
	}

	fmt.Fprintf(&b, "\nCandidate GL entries:\n")
	for i, e := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, e.TransactionID)
		fmt.Fprintf(&b, "    Date: %s, Amount: %s %s, Type: %s\n", e.Date.Format("2006-01-02"), e.Amount, e.Currency, e.Type)
		fmt.Fprintf(&b, "    Account: %s", e.AccountName)
		if e.Memo != "" {
			fmt.Fprintf(&b, ", Memo: %s", e.Memo)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stripFences unwraps a JSON answer the model wrapped in markdown fences.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
