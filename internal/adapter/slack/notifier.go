package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notifier posts reconciliation events to a Slack incoming webhook.
// Delivery is fire-and-forget: failures are logged, never propagated.
type Notifier struct {
	webhookURL string
	channel    string
	http       *http.Client
	log        zerolog.Logger
}

// BatchSummary describes one finished orchestrator run.
type BatchSummary struct {
	EntityName  string
	Start       time.Time
	End         time.Time
	Processed   int
	ByTier      map[string]int
	ByAction    map[string]int
	Unmatched   int
	Quarantined int
	Duration    time.Duration
}

// NewNotifier creates a Slack notifier. An empty webhook URL disables it.
func NewNotifier(webhookURL, channel string, log zerolog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		channel:    channel,
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// WithHTTPClient overrides the transport, mainly for tests.
func (n *Notifier) WithHTTPClient(h *http.Client) *Notifier {
	n.http = h
	return n
}

// PostBatchSummary announces a finished batch with counts by status.
func (n *Notifier) PostBatchSummary(ctx context.Context, s *BatchSummary) {
	var b strings.Builder
	fmt.Fprintf(&b, ":bank: Reconciliation finished for *%s* (%s to %s)\n",
		s.EntityName, s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"))
	fmt.Fprintf(&b, "Processed %d transactions in %s\n", s.Processed, s.Duration.Round(time.Second))

	for _, tier := range sortedKeys(s.ByTier) {
		fmt.Fprintf(&b, "• %s: %d\n", tier, s.ByTier[tier])
	}
	for _, action := range sortedKeys(s.ByAction) {
		fmt.Fprintf(&b, "• %s: %d\n", action, s.ByAction[action])
	}
	if s.Unmatched > 0 {
		fmt.Fprintf(&b, "• unmatched: %d\n", s.Unmatched)
	}
	if s.Quarantined > 0 {
		fmt.Fprintf(&b, ":warning: quarantined: %d\n", s.Quarantined)
	}

	n.post(ctx, b.String())
}

// PostDiscrepancyAlert posts the caller's detail text as a discrepancy alert
// for one entity. The orchestrator sends it when a batch quarantines more
// records than the alert threshold; no alert is sent for large amounts.
func (n *Notifier) PostDiscrepancyAlert(ctx context.Context, entityName, detail string) {
	n.post(ctx, fmt.Sprintf(":rotating_light: Reconciliation discrepancy for *%s*: %s", entityName, detail))
}

// PostAuthFailure pages the on-call channel about a fatal bank auth error.
func (n *Notifier) PostAuthFailure(ctx context.Context, entityName string, err error) {
	n.post(ctx, fmt.Sprintf(":lock: Bank authentication failed for *%s*: %v — cursor not advanced, operator action needed", entityName, err))
}

// PostDailyDigest summarizes pending approvals per entity.
func (n *Notifier) PostDailyDigest(ctx context.Context, pendingCount int, pendingAmount decimal.Decimal, byEntity map[string]int) {
	var b strings.Builder
	fmt.Fprintf(&b, ":newspaper: Daily reconciliation digest\n")
	fmt.Fprintf(&b, "Pending approvals: %d (total %s)\n", pendingCount, pendingAmount.StringFixed(2))
	for _, entity := range sortedKeys(byEntity) {
		fmt.Fprintf(&b, "• %s: %d\n", entity, byEntity[entity])
	}
	n.post(ctx, b.String())
}

func (n *Notifier) post(ctx context.Context, text string) {
	if n.webhookURL == "" {
		return
	}

	payload := map[string]string{"text": text}
	if n.channel != "" {
		payload["channel"] = n.channel
	}
	data, err := json.Marshal(payload)
	if err != nil {
		n.log.Warn().Err(err).Msg("slack payload marshal failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		n.log.Warn().Err(err).Msg("slack request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		n.log.Warn().Err(err).Msg("slack webhook post failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn().Int("status", resp.StatusCode).Msg("slack webhook rejected message")
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
