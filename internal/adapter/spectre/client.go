package spectre

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/phygrid/wiserecon/internal/domain"
)

const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
	retryMaxAttempts     = 5
)

// APIError is a non-transient Spectre API failure.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spectre api error: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Spectre reconciliation API with X-API-Key auth.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Spectre client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// WithHTTPClient overrides the transport, mainly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// SubmitSuggestion submits one proposed match. A duplicate submission is
// treated as success and the canonical id is read back.
func (c *Client) SubmitSuggestion(ctx context.Context, s *Suggestion) (*SuggestionResponse, error) {
	var out SuggestionResponse
	err := c.request(ctx, http.MethodPost, "/api/recon/suggestions", nil, s, &out)
	if err != nil {
		var apiErr *APIError
		if asAPIErr(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			// The server already holds this wise_transaction_id; its body
			// carries the canonical suggestion.
			if jsonErr := json.Unmarshal([]byte(apiErr.Body), &out); jsonErr == nil && out.ID != "" {
				c.log.Debug().Str("wise_transaction_id", s.WiseTransactionID).Msg("duplicate submission, reusing canonical id")
				return &out, nil
			}
			return nil, domain.ErrDuplicateSubmission
		}
		return nil, err
	}
	return &out, nil
}

// SubmitBatch bulk-submits suggestions for one entity window.
func (c *Client) SubmitBatch(ctx context.Context, entityName string, start, end time.Time, suggestions []*Suggestion) (*BatchResponse, error) {
	payload := map[string]any{
		"entity_name": entityName,
		"start_date":  start.UTC().Format("2006-01-02"),
		"end_date":    end.UTC().Format("2006-01-02"),
		"suggestions": suggestions,
	}
	var out BatchResponse
	if err := c.request(ctx, http.MethodPost, "/api/recon/suggestions/batch", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSuggestion reads the review state of one suggestion.
func (c *Client) GetSuggestion(ctx context.Context, id string) (*SuggestionDetail, error) {
	var out SuggestionDetail
	if err := c.request(ctx, http.MethodGet, "/api/recon/suggestions/"+id, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReviewedSince returns suggestions reviewed after the cursor, oldest
// first. The learning loop drives its exactly-once processing off this.
func (c *Client) ListReviewedSince(ctx context.Context, since time.Time, limit int) ([]*SuggestionDetail, error) {
	params := url.Values{
		"reviewed_since": {since.UTC().Format(time.RFC3339)},
		"order":          {"reviewed_at"},
		"limit":          {strconv.Itoa(limit)},
	}
	var out struct {
		Items []*SuggestionDetail `json:"items"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/recon/suggestions", params, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetGLEntries returns candidate GL lines for a subsidiary window.
func (c *Client) GetGLEntries(ctx context.Context, subsidiaryID int64, start, end time.Time, accountTypes []string, unreconciledOnly bool) ([]domain.GLEntry, error) {
	params := url.Values{
		"subsidiary_id":     {strconv.FormatInt(subsidiaryID, 10)},
		"start_date":        {start.UTC().Format("2006-01-02")},
		"end_date":          {end.UTC().Format("2006-01-02")},
		"unreconciled_only": {strconv.FormatBool(unreconciledOnly)},
	}
	if len(accountTypes) > 0 {
		params.Set("account_types", strings.Join(accountTypes, ","))
	}

	var out struct {
		Items []glEntryItem `json:"items"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/recon/gl-entries", params, nil, &out); err != nil {
		return nil, err
	}

	entries := make([]domain.GLEntry, 0, len(out.Items))
	for i := range out.Items {
		entries = append(entries, out.Items[i].toDomain())
	}
	return entries, nil
}

// ListPatterns returns reconciliation patterns.
func (c *Client) ListPatterns(ctx context.Context, activeOnly bool) ([]domain.Pattern, error) {
	params := url.Values{"active_only": {strconv.FormatBool(activeOnly)}}
	var out struct {
		Items []patternItem `json:"items"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/recon/patterns", params, nil, &out); err != nil {
		return nil, err
	}

	patterns := make([]domain.Pattern, 0, len(out.Items))
	for i := range out.Items {
		patterns = append(patterns, out.Items[i].toDomain())
	}
	return patterns, nil
}

// CreatePattern submits a learned pattern. Resubmitting the same
// (kind, value, target_kind) yields the existing row's id.
func (c *Client) CreatePattern(ctx context.Context, p *NewPattern) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.request(ctx, http.MethodPost, "/api/recon/patterns", nil, p, &out)
	if err != nil {
		var apiErr *APIError
		if asAPIErr(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			if jsonErr := json.Unmarshal([]byte(apiErr.Body), &out); jsonErr == nil && out.ID != "" {
				return out.ID, nil
			}
		}
		return "", err
	}
	return out.ID, nil
}

// UpdatePattern posts a pattern's review-driven state back to the server.
// The server upserts on the (kind, value, target_kind) uniqueness tuple, so
// repeating an update is a no-op.
func (c *Client) UpdatePattern(ctx context.Context, p *domain.Pattern) error {
	return c.request(ctx, http.MethodPost, "/api/recon/patterns", nil, patternUpdateFromDomain(p), nil)
}

// Enrich delivers Wise-side detail for an approved match.
func (c *Client) Enrich(ctx context.Context, e *domain.Enrichment) error {
	req := enrichRequest{
		NetsuiteTransactionID: e.NetsuiteTransactionID,
		WiseTransactionID:     e.WiseTransactionID,
		EnrichmentData: enrichmentData{
			CounterpartyName: e.CounterpartyName,
			CounterpartyIBAN: e.CounterpartyIBAN,
			PaymentReference: e.PaymentReference,
			FXRate:           decStr(e.FXRate),
			FromAmount:       decStr(e.FromAmount),
			FromCurrency:     e.FromCurrency,
			Fees:             decStr(e.Fees),
			IsIntercompany:   e.IsIntercompany,
			ICEntity:         e.ICEntity,
			MerchantName:     e.MerchantName,
			CardLast4:        e.CardLast4,
		},
	}
	return c.request(ctx, http.MethodPost, "/api/recon/enrich", nil, req, nil)
}

// request performs one API call with retries on transient failures.
func (c *Client) request(ctx context.Context, method, path string, params url.Values, body, out any) error {
	op := func() error {
		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}

		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return backoff.Permanent(err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode spectre response: %w", err))
			}
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		default:
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: string(data)})
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retryMaxAttempts-1), ctx))
}

func asAPIErr(err error, target **APIError) bool {
	return errors.As(err, target)
}
