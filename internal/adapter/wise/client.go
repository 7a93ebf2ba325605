package wise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/phygrid/wiserecon/internal/domain"
)

const (
	// Statement windows above this are rejected by Wise.
	maxStatementWindowDays = 469

	scaHeader       = "x-2fa-approval"
	signatureHeader = "X-Signature"

	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
	retryMaxAttempts     = 5
)

// APIError is a non-transient Wise API failure.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wise api error: status %d: %s", e.StatusCode, e.Body)
}

// Clock abstracts time for session-expiry tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Client is a read-only Wise API client with SCA signing support.
type Client struct {
	baseURL    string
	token      string
	signer     *Signer
	sessionTTL time.Duration
	http       *http.Client
	clock      Clock
	log        zerolog.Logger

	sessions *sessionCache

	// One token bucket per profile to stay inside provider limits.
	limitMu    sync.Mutex
	limiters   map[int64]*rate.Limiter
	ratePerSec float64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithClock overrides the time source.
func WithClock(clk Clock) Option { return func(c *Client) { c.clock = clk } }

// NewClient creates a Wise client. The signer may be nil when only
// token-authenticated endpoints are used.
func NewClient(baseURL, token string, signer *Signer, sessionTTL time.Duration, ratePerSec float64, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		signer:     signer,
		sessionTTL: sessionTTL,
		http:       &http.Client{Timeout: 30 * time.Second},
		clock:      realClock{},
		log:        log,
		sessions:   newSessionCache(),
		limiters:   make(map[int64]*rate.Limiter),
		ratePerSec: ratePerSec,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListProfiles returns the business profiles visible to the token.
func (c *Client) ListProfiles(ctx context.Context) ([]Profile, error) {
	var raw []profileResponse
	if err := c.get(ctx, 0, "/v2/profiles", nil, &raw); err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(raw))
	for _, p := range raw {
		if p.Type != "BUSINESS" {
			continue
		}
		profiles = append(profiles, Profile{ID: p.ID, Type: p.Type, BusinessName: p.Details.Name})
	}
	return profiles, nil
}

// ListBalances returns the STANDARD balances of a profile.
func (c *Client) ListBalances(ctx context.Context, profileID int64) ([]Balance, error) {
	var raw []balanceResponse
	path := fmt.Sprintf("/v4/profiles/%d/balances", profileID)
	if err := c.get(ctx, profileID, path, url.Values{"types": {"STANDARD"}}, &raw); err != nil {
		return nil, err
	}

	balances := make([]Balance, 0, len(raw))
	for _, b := range raw {
		balances = append(balances, Balance{ID: b.ID, Currency: b.Currency, Amount: b.Amount.Value})
	}
	return balances, nil
}

// GetStatement fetches one balance statement. The endpoint sits behind SCA,
// so this call performs or reuses the two-step handshake.
func (c *Client) GetStatement(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*Statement, error) {
	if end.Sub(start) > maxStatementWindowDays*24*time.Hour {
		return nil, domain.ErrRangeTooLarge
	}
	if c.token == "" {
		return nil, domain.ErrAuthRequired
	}

	path := fmt.Sprintf("/v1/profiles/%d/balance-statements/%d/statement.json", profileID, balanceID)
	params := url.Values{
		"currency":      {currency},
		"intervalStart": {start.UTC().Format("2006-01-02T15:04:05.000Z")},
		"intervalEnd":   {end.UTC().Format("2006-01-02T15:04:05.999Z")},
		"type":          {"COMPACT"},
	}

	var raw statementResponse
	if err := c.getSCA(ctx, profileID, path, params, &raw); err != nil {
		return nil, err
	}

	st := &Statement{Transactions: make([]domain.BankTransaction, 0, len(raw.Transactions))}
	for i := range raw.Transactions {
		tx := raw.Transactions[i].toDomain("", profileID, currency)
		if tx.Reference == "" {
			c.log.Warn().Int64("profile_id", profileID).Msg("skipping statement line without reference")
			continue
		}
		st.Transactions = append(st.Transactions, tx)
	}
	return st, nil
}

// get performs a token-authenticated GET with retry on transient failures.
func (c *Client) get(ctx context.Context, profileID int64, path string, params url.Values, out any) error {
	if c.token == "" {
		return domain.ErrAuthRequired
	}
	return c.retry(ctx, func() error {
		status, body, _, err := c.do(ctx, profileID, path, params, nil)
		if err != nil {
			return err
		}
		return c.decode(status, body, out)
	})
}

// getSCA performs a GET behind the SCA handshake, reusing the cached session
// for the profile when it is still inside its five-minute window.
func (c *Client) getSCA(ctx context.Context, profileID int64, path string, params url.Values, out any) error {
	return c.retry(ctx, func() error {
		lock := c.sessions.profileLock(profileID)
		lock.Lock()
		defer lock.Unlock()

		sess := c.sessions.get(profileID, c.clock.Now())
		status, body, header, err := c.do(ctx, profileID, path, params, sess)
		if err != nil {
			return err
		}

		if status == http.StatusForbidden {
			// Session expired or first contact: restart the handshake.
			c.sessions.drop(profileID)

			ott := header.Get(scaHeader)
			if ott == "" {
				return backoff.Permanent(fmt.Errorf("%w: 403 without sca challenge", domain.ErrAuthRequired))
			}
			if c.signer == nil {
				return backoff.Permanent(fmt.Errorf("%w: sca challenge but no private key", domain.ErrAuthRequired))
			}

			signature, err := c.signer.SignOTT(ott)
			if err != nil {
				return backoff.Permanent(err)
			}
			fresh := &scaSession{ott: ott, signature: signature, expiresAt: c.clock.Now().Add(c.sessionTTL)}

			status, body, _, err = c.do(ctx, profileID, path, params, fresh)
			if err != nil {
				return err
			}
			if status == http.StatusForbidden {
				return backoff.Permanent(fmt.Errorf("%w: sca retry rejected", domain.ErrAuthRequired))
			}
			if err := c.decode(status, body, out); err != nil {
				return err
			}
			c.sessions.put(profileID, fresh)
			return nil
		}

		return c.decode(status, body, out)
	})
}

// do issues one request, applying the per-profile rate limit.
func (c *Client) do(ctx context.Context, profileID int64, path string, params url.Values, sess *scaSession) (int, []byte, http.Header, error) {
	if err := c.limiter(profileID).Wait(ctx); err != nil {
		return 0, nil, nil, err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if sess != nil {
		req.Header.Set(scaHeader, sess.ott)
		req.Header.Set(signatureHeader, sess.signature)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures are transient and retried by the caller.
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, body, resp.Header, nil
}

// decode maps status codes onto the error policy and unmarshals on success.
func (c *Client) decode(status int, body []byte, out any) error {
	switch {
	case status >= 200 && status < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode wise response: %w", err))
		}
		return nil
	case status == http.StatusNotFound:
		// No statement for this balance; callers treat it as empty.
		return backoff.Permanent(&APIError{StatusCode: status, Body: string(body)})
	case status == http.StatusUnauthorized:
		return backoff.Permanent(fmt.Errorf("%w: status 401", domain.ErrAuthRequired))
	case status >= 500 || status == http.StatusTooManyRequests:
		return &APIError{StatusCode: status, Body: truncate(body)}
	default:
		return backoff.Permanent(&APIError{StatusCode: status, Body: truncate(body)})
	}
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retryMaxAttempts-1), ctx))
}

func (c *Client) limiter(profileID int64) *rate.Limiter {
	c.limitMu.Lock()
	defer c.limitMu.Unlock()
	l, ok := c.limiters[profileID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.ratePerSec), 1)
		c.limiters[profileID] = l
	}
	return l
}

// IsNotFound reports whether an error is the 404 "no statement" case.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
