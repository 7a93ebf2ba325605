package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/adapter/qdrant"
	"github.com/phygrid/wiserecon/internal/adapter/slack"
	"github.com/phygrid/wiserecon/internal/adapter/spectre"
	"github.com/phygrid/wiserecon/internal/adapter/wise"
	"github.com/phygrid/wiserecon/internal/domain"
)

// BankClient is the read-only Wise surface the pipeline consumes.
type BankClient interface {
	ListProfiles(ctx context.Context) ([]wise.Profile, error)
	ListBalances(ctx context.Context, profileID int64) ([]wise.Balance, error)
	GetStatement(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error)
}

// ApprovalClient is the Spectre surface the pipeline consumes.
type ApprovalClient interface {
	SubmitSuggestion(ctx context.Context, s *spectre.Suggestion) (*spectre.SuggestionResponse, error)
	GetSuggestion(ctx context.Context, id string) (*spectre.SuggestionDetail, error)
	ListReviewedSince(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error)
	GetGLEntries(ctx context.Context, subsidiaryID int64, start, end time.Time, accountTypes []string, unreconciledOnly bool) ([]domain.GLEntry, error)
	ListPatterns(ctx context.Context, activeOnly bool) ([]domain.Pattern, error)
	CreatePattern(ctx context.Context, p *spectre.NewPattern) (string, error)
	UpdatePattern(ctx context.Context, p *domain.Pattern) error
	Enrich(ctx context.Context, e *domain.Enrichment) error
}

// TransactionRepository persists bank transactions and scoring attempts.
type TransactionRepository interface {
	Upsert(ctx context.Context, txs []domain.BankTransaction, now time.Time) (int, error)
	GetByReference(ctx context.Context, reference string) (*domain.BankTransaction, error)
	ListPending(ctx context.Context, entity string, limit int) ([]*domain.BankTransaction, error)
	MarkSubmitted(ctx context.Context, tx Transaction, reference, suggestionID string, confidence decimal.Decimal, expectedAttempts int, at time.Time) error
	SetSuggestionID(ctx context.Context, reference, suggestionID string) error
	RevertToPending(ctx context.Context, reference string, at time.Time) error
	RecordAttempt(ctx context.Context, reference string, confidence decimal.Decimal, at time.Time) error
	Resolve(ctx context.Context, reference string, status domain.MatchStatus, reason string, at time.Time) error
	PendingSummary(ctx context.Context) (map[string]int, decimal.Decimal, error)
	SaveCandidates(ctx context.Context, tx Transaction, cands []*domain.Candidate, at time.Time) error
}

// CursorRepository persists per-(profile, currency) sync cursors.
type CursorRepository interface {
	Acquire(ctx context.Context, profileID int64, currency, entityName string, balanceID int64) (*domain.SyncCursor, error)
	Complete(ctx context.Context, id int64, endDate time.Time, count int, at time.Time) error
	Fail(ctx context.Context, id int64, message string) error
	Get(ctx context.Context, profileID int64, currency string) (*domain.SyncCursor, error)
}

// StatsRepository tracks counterparty review statistics and processed
// review events.
type StatsRepository interface {
	MarkProcessed(ctx context.Context, suggestionID string, reviewedAt time.Time) (bool, error)
	RecordApproval(ctx context.Context, counterparty string, at time.Time) error
	RecordRejection(ctx context.Context, counterparty string, at time.Time) error
	Approvals(ctx context.Context, counterparty string) (int, error)
}

// Cache is the advisory byte cache (GL entries). A nil error with nil data
// is a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LeaseStore hands out per-transaction scoring leases.
type LeaseStore interface {
	Acquire(ctx context.Context, reference, owner string) error
	Release(ctx context.Context, reference, owner string) error
}

// PollCursorStore persists the learning loop watermark.
type PollCursorStore interface {
	Get(ctx context.Context) (time.Time, error)
	Set(ctx context.Context, t time.Time) error
}

// VectorIndex is the pattern similarity index.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float64, payload map[string]any) error
	Search(ctx context.Context, vector []float64, limit int, threshold float64) ([]qdrant.ScoredPoint, error)
	Delete(ctx context.Context, ids ...string) error
}

// Embedder turns normalized text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Notifier is the fire-and-forget Slack surface.
type Notifier interface {
	PostBatchSummary(ctx context.Context, s *slack.BatchSummary)
	PostDiscrepancyAlert(ctx context.Context, entityName, detail string)
	PostAuthFailure(ctx context.Context, entityName string, err error)
	PostDailyDigest(ctx context.Context, pendingCount int, pendingAmount decimal.Decimal, byEntity map[string]int)
}

// IDGenerator generates unique ids.
type IDGenerator interface {
	Generate() string
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Clock abstracts the time source so tests can freeze it.
type Clock interface {
	Now() time.Time
}

// RealClock is the production clock.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }
