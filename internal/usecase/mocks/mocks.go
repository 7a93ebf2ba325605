package mocks

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/phygrid/wiserecon/internal/adapter/qdrant"
	"github.com/phygrid/wiserecon/internal/adapter/slack"
	"github.com/phygrid/wiserecon/internal/adapter/spectre"
	"github.com/phygrid/wiserecon/internal/adapter/wise"
	"github.com/phygrid/wiserecon/internal/domain"
	"github.com/phygrid/wiserecon/internal/usecase"
)

// MockTransaction is a no-op usecase.Transaction.
type MockTransaction struct {
	Committed  bool
	RolledBack bool
}

func (t *MockTransaction) Commit(ctx context.Context) error {
	t.Committed = true
	return nil
}

func (t *MockTransaction) Rollback(ctx context.Context) error {
	t.RolledBack = true
	return nil
}

// MockTransactionManager hands out MockTransactions.
type MockTransactionManager struct {
	mu        sync.Mutex
	Begun     []*MockTransaction
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &MockTransaction{}
	m.Begun = append(m.Begun, tx)
	return tx, nil
}

// MockBankClient is a mock implementation of usecase.BankClient.
type MockBankClient struct {
	ListProfilesFunc func(ctx context.Context) ([]wise.Profile, error)
	ListBalancesFunc func(ctx context.Context, profileID int64) ([]wise.Balance, error)
	GetStatementFunc func(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error)

	StatementCalls []StatementCall
	mu             sync.Mutex
}

// StatementCall records one GetStatement invocation.
type StatementCall struct {
	ProfileID, BalanceID int64
	Currency             string
	Start, End           time.Time
}

func (m *MockBankClient) ListProfiles(ctx context.Context) ([]wise.Profile, error) {
	if m.ListProfilesFunc != nil {
		return m.ListProfilesFunc(ctx)
	}
	return nil, nil
}

func (m *MockBankClient) ListBalances(ctx context.Context, profileID int64) ([]wise.Balance, error) {
	if m.ListBalancesFunc != nil {
		return m.ListBalancesFunc(ctx, profileID)
	}
	return nil, nil
}

func (m *MockBankClient) GetStatement(ctx context.Context, profileID, balanceID int64, currency string, start, end time.Time) (*wise.Statement, error) {
	m.mu.Lock()
	m.StatementCalls = append(m.StatementCalls, StatementCall{profileID, balanceID, currency, start, end})
	m.mu.Unlock()
	if m.GetStatementFunc != nil {
		return m.GetStatementFunc(ctx, profileID, balanceID, currency, start, end)
	}
	return &wise.Statement{}, nil
}

// MockApprovalClient is a mock implementation of usecase.ApprovalClient.
type MockApprovalClient struct {
	mu sync.Mutex

	SubmitSuggestionFunc  func(ctx context.Context, s *spectre.Suggestion) (*spectre.SuggestionResponse, error)
	GetSuggestionFunc     func(ctx context.Context, id string) (*spectre.SuggestionDetail, error)
	ListReviewedSinceFunc func(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error)
	GetGLEntriesFunc      func(ctx context.Context, subsidiaryID int64, start, end time.Time, accountTypes []string, unreconciledOnly bool) ([]domain.GLEntry, error)
	ListPatternsFunc      func(ctx context.Context, activeOnly bool) ([]domain.Pattern, error)
	CreatePatternFunc     func(ctx context.Context, p *spectre.NewPattern) (string, error)
	UpdatePatternFunc     func(ctx context.Context, p *domain.Pattern) error
	EnrichFunc            func(ctx context.Context, e *domain.Enrichment) error

	Submitted       []*spectre.Suggestion
	CreatedPatterns []*spectre.NewPattern
	UpdatedPatterns []domain.Pattern
	Enrichments     []*domain.Enrichment
	GLCalls         int
}

func (m *MockApprovalClient) SubmitSuggestion(ctx context.Context, s *spectre.Suggestion) (*spectre.SuggestionResponse, error) {
	m.mu.Lock()
	m.Submitted = append(m.Submitted, s)
	m.mu.Unlock()
	if m.SubmitSuggestionFunc != nil {
		return m.SubmitSuggestionFunc(ctx, s)
	}
	return &spectre.SuggestionResponse{ID: "sg-" + s.WiseTransactionID, Status: "pending"}, nil
}

func (m *MockApprovalClient) GetSuggestion(ctx context.Context, id string) (*spectre.SuggestionDetail, error) {
	if m.GetSuggestionFunc != nil {
		return m.GetSuggestionFunc(ctx, id)
	}
	return &spectre.SuggestionDetail{ID: id, Status: "pending"}, nil
}

func (m *MockApprovalClient) ListReviewedSince(ctx context.Context, since time.Time, limit int) ([]*spectre.SuggestionDetail, error) {
	if m.ListReviewedSinceFunc != nil {
		return m.ListReviewedSinceFunc(ctx, since, limit)
	}
	return nil, nil
}

func (m *MockApprovalClient) GetGLEntries(ctx context.Context, subsidiaryID int64, start, end time.Time, accountTypes []string, unreconciledOnly bool) ([]domain.GLEntry, error) {
	m.mu.Lock()
	m.GLCalls++
	m.mu.Unlock()
	if m.GetGLEntriesFunc != nil {
		return m.GetGLEntriesFunc(ctx, subsidiaryID, start, end, accountTypes, unreconciledOnly)
	}
	return nil, nil
}

func (m *MockApprovalClient) ListPatterns(ctx context.Context, activeOnly bool) ([]domain.Pattern, error) {
	if m.ListPatternsFunc != nil {
		return m.ListPatternsFunc(ctx, activeOnly)
	}
	return nil, nil
}

func (m *MockApprovalClient) CreatePattern(ctx context.Context, p *spectre.NewPattern) (string, error) {
	m.mu.Lock()
	m.CreatedPatterns = append(m.CreatedPatterns, p)
	m.mu.Unlock()
	if m.CreatePatternFunc != nil {
		return m.CreatePatternFunc(ctx, p)
	}
	return "pt-new", nil
}

func (m *MockApprovalClient) UpdatePattern(ctx context.Context, p *domain.Pattern) error {
	m.mu.Lock()
	m.UpdatedPatterns = append(m.UpdatedPatterns, *p)
	m.mu.Unlock()
	if m.UpdatePatternFunc != nil {
		return m.UpdatePatternFunc(ctx, p)
	}
	return nil
}

func (m *MockApprovalClient) Enrich(ctx context.Context, e *domain.Enrichment) error {
	m.mu.Lock()
	m.Enrichments = append(m.Enrichments, e)
	m.mu.Unlock()
	if m.EnrichFunc != nil {
		return m.EnrichFunc(ctx, e)
	}
	return nil
}

// MockTransactionRepository is an in-memory usecase.TransactionRepository.
type MockTransactionRepository struct {
	mu  sync.RWMutex
	Txs map[string]*domain.BankTransaction

	UpsertFunc        func(ctx context.Context, txs []domain.BankTransaction, now time.Time) (int, error)
	ListPendingFunc   func(ctx context.Context, entity string, limit int) ([]*domain.BankTransaction, error)
	MarkSubmittedFunc func(ctx context.Context, txn usecase.Transaction, reference, suggestionID string, confidence decimal.Decimal, expectedAttempts int, at time.Time) error

	SavedCandidates [][]*domain.Candidate
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{Txs: make(map[string]*domain.BankTransaction)}
}

func (m *MockTransactionRepository) Upsert(ctx context.Context, txs []domain.BankTransaction, now time.Time) (int, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, txs, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for i := range txs {
		tx := txs[i]
		if existing, ok := m.Txs[tx.Reference]; ok {
			// Only statement fields refresh; match state stays.
			if existing.Description == tx.Description &&
				existing.PaymentReference == tx.PaymentReference &&
				existing.CounterpartyName == tx.CounterpartyName {
				continue
			}
			existing.Description = tx.Description
			existing.PaymentReference = tx.PaymentReference
			existing.CounterpartyName = tx.CounterpartyName
			existing.RunningBalance = tx.RunningBalance
			existing.Fees = tx.Fees
			changed++
			continue
		}
		tx.Status = domain.StatusPending
		tx.CreatedAt = now
		m.Txs[tx.Reference] = &tx
		changed++
	}
	return changed, nil
}

func (m *MockTransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.Txs[reference]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MockTransactionRepository) ListPending(ctx context.Context, entity string, limit int) ([]*domain.BankTransaction, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, entity, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.BankTransaction
	for _, tx := range m.Txs {
		if tx.Entity == entity && tx.Status == domain.StatusPending {
			cp := *tx
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockTransactionRepository) MarkSubmitted(ctx context.Context, txn usecase.Transaction, reference, suggestionID string, confidence decimal.Decimal, expectedAttempts int, at time.Time) error {
	if m.MarkSubmittedFunc != nil {
		return m.MarkSubmittedFunc(ctx, txn, reference, suggestionID, confidence, expectedAttempts, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.Txs[reference]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if tx.Status != domain.StatusPending || tx.Attempts != expectedAttempts {
		return domain.ErrStaleAttempt
	}
	tx.Status = domain.StatusSubmitted
	tx.SuggestionID = suggestionID
	tx.RecordAttempt(confidence, at)
	return nil
}

func (m *MockTransactionRepository) SetSuggestionID(ctx context.Context, reference, suggestionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.Txs[reference]; ok {
		tx.SuggestionID = suggestionID
	}
	return nil
}

func (m *MockTransactionRepository) RevertToPending(ctx context.Context, reference string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.Txs[reference]; ok && tx.Status == domain.StatusSubmitted {
		tx.Status = domain.StatusPending
		tx.SuggestionID = ""
	}
	return nil
}

func (m *MockTransactionRepository) RecordAttempt(ctx context.Context, reference string, confidence decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.Txs[reference]; ok {
		tx.RecordAttempt(confidence, at)
	}
	return nil
}

func (m *MockTransactionRepository) Resolve(ctx context.Context, reference string, status domain.MatchStatus, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.Txs[reference]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if tx.Status.Terminal() {
		return domain.ErrStatusRegression
	}
	tx.Status = status
	return nil
}

func (m *MockTransactionRepository) PendingSummary(ctx context.Context) (map[string]int, decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byEntity := make(map[string]int)
	total := decimal.Zero
	for _, tx := range m.Txs {
		if tx.Status == domain.StatusPending || tx.Status == domain.StatusSubmitted {
			byEntity[tx.Entity]++
			total = total.Add(tx.Amount.Abs())
		}
	}
	return byEntity, total, nil
}

func (m *MockTransactionRepository) SaveCandidates(ctx context.Context, txn usecase.Transaction, cands []*domain.Candidate, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SavedCandidates = append(m.SavedCandidates, cands)
	return nil
}

// MockCursorRepository is an in-memory usecase.CursorRepository.
type MockCursorRepository struct {
	mu      sync.Mutex
	Cursors map[string]*domain.SyncCursor
	nextID  int64

	AcquireFunc func(ctx context.Context, profileID int64, currency, entityName string, balanceID int64) (*domain.SyncCursor, error)
}

func NewMockCursorRepository() *MockCursorRepository {
	return &MockCursorRepository{Cursors: make(map[string]*domain.SyncCursor)}
}

func cursorKey(profileID int64, currency string) string {
	return currency + "@" + strconv.FormatInt(profileID, 10)
}

func (m *MockCursorRepository) Acquire(ctx context.Context, profileID int64, currency, entityName string, balanceID int64) (*domain.SyncCursor, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, profileID, currency, entityName, balanceID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cursorKey(profileID, currency)
	c, ok := m.Cursors[key]
	if !ok {
		m.nextID++
		c = &domain.SyncCursor{
			ID:         m.nextID,
			ProfileID:  profileID,
			Currency:   currency,
			EntityName: entityName,
			BalanceID:  balanceID,
			Status:     domain.SyncIdle,
		}
		m.Cursors[key] = c
	}
	if c.Status == domain.SyncSyncing {
		return nil, domain.ErrCursorBusy
	}
	c.Status = domain.SyncSyncing
	cp := *c
	return &cp, nil
}

func (m *MockCursorRepository) Complete(ctx context.Context, id int64, endDate time.Time, count int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Cursors {
		if c.ID == id {
			c.Status = domain.SyncIdle
			c.LastEndDate = &endDate
			c.LastSyncedAt = &at
			c.Count += int64(count)
			c.Error = ""
		}
	}
	return nil
}

func (m *MockCursorRepository) Fail(ctx context.Context, id int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Cursors {
		if c.ID == id {
			c.Status = domain.SyncError
			c.Error = message
		}
	}
	return nil
}

func (m *MockCursorRepository) Get(ctx context.Context, profileID int64, currency string) (*domain.SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Cursors[cursorKey(profileID, currency)]
	if !ok {
		return nil, domain.ErrCursorNotFound
	}
	cp := *c
	return &cp, nil
}

// MockStatsRepository is an in-memory usecase.StatsRepository.
type MockStatsRepository struct {
	mu         sync.Mutex
	Processed  map[string]bool
	Counts     map[string]int
	Rejections map[string]int
}

func NewMockStatsRepository() *MockStatsRepository {
	return &MockStatsRepository{
		Processed:  make(map[string]bool),
		Counts:     make(map[string]int),
		Rejections: make(map[string]int),
	}
}

func (m *MockStatsRepository) MarkProcessed(ctx context.Context, suggestionID string, reviewedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := suggestionID + "@" + reviewedAt.UTC().Format(time.RFC3339Nano)
	if m.Processed[key] {
		return false, nil
	}
	m.Processed[key] = true
	return true, nil
}

func (m *MockStatsRepository) RecordApproval(ctx context.Context, counterparty string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if counterparty != "" {
		m.Counts[counterparty]++
	}
	return nil
}

func (m *MockStatsRepository) RecordRejection(ctx context.Context, counterparty string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if counterparty != "" {
		m.Rejections[counterparty]++
		if m.Counts[counterparty] > 0 {
			m.Counts[counterparty]--
		}
	}
	return nil
}

func (m *MockStatsRepository) Approvals(ctx context.Context, counterparty string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[counterparty], nil
}

// MockCache is an in-memory usecase.Cache with no TTL expiry.
type MockCache struct {
	mu    sync.Mutex
	Store map[string][]byte
	Sets  int
	Gets  int
}

func NewMockCache() *MockCache {
	return &MockCache{Store: make(map[string][]byte)}
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	return m.Store[key], nil
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	m.Store[key] = value
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Store, key)
	return nil
}

// MockLeaseStore is an in-memory usecase.LeaseStore.
type MockLeaseStore struct {
	mu     sync.Mutex
	Leases map[string]string

	AcquireFunc func(ctx context.Context, reference, owner string) error
}

func NewMockLeaseStore() *MockLeaseStore {
	return &MockLeaseStore{Leases: make(map[string]string)}
}

func (m *MockLeaseStore) Acquire(ctx context.Context, reference, owner string) error {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, reference, owner)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.Leases[reference]; held {
		return domain.ErrLeaseConflict
	}
	m.Leases[reference] = owner
	return nil
}

func (m *MockLeaseStore) Release(ctx context.Context, reference, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Leases[reference] == owner {
		delete(m.Leases, reference)
	}
	return nil
}

// MockPollCursor is an in-memory usecase.PollCursorStore.
type MockPollCursor struct {
	mu sync.Mutex
	At time.Time
}

func (m *MockPollCursor) Get(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.At, nil
}

func (m *MockPollCursor) Set(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.At = t
	return nil
}

// MockVectorIndex is an in-memory usecase.VectorIndex.
type MockVectorIndex struct {
	mu     sync.Mutex
	Points map[string]qdrant.ScoredPoint

	SearchFunc func(ctx context.Context, vector []float64, limit int, threshold float64) ([]qdrant.ScoredPoint, error)
	Deleted    []string
}

func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{Points: make(map[string]qdrant.ScoredPoint)}
}

func (m *MockVectorIndex) Upsert(ctx context.Context, id string, vector []float64, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Points[id] = qdrant.ScoredPoint{ID: id, Payload: payload}
	return nil
}

func (m *MockVectorIndex) Search(ctx context.Context, vector []float64, limit int, threshold float64) ([]qdrant.ScoredPoint, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, vector, limit, threshold)
	}
	return nil, nil
}

func (m *MockVectorIndex) Delete(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.Points, id)
		m.Deleted = append(m.Deleted, id)
	}
	return nil
}

// MockEmbedder returns a fixed-size deterministic vector.
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float64, error)
	Calls     []string
	mu        sync.Mutex
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

// MockNotifier records notifications.
type MockNotifier struct {
	mu           sync.Mutex
	Summaries    []*slack.BatchSummary
	Alerts       []string
	AuthFailures []string
	Digests      int
}

func (m *MockNotifier) PostBatchSummary(ctx context.Context, s *slack.BatchSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Summaries = append(m.Summaries, s)
}

func (m *MockNotifier) PostDiscrepancyAlert(ctx context.Context, entityName, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, entityName+": "+detail)
}

func (m *MockNotifier) PostAuthFailure(ctx context.Context, entityName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthFailures = append(m.AuthFailures, entityName)
}

func (m *MockNotifier) PostDailyDigest(ctx context.Context, pendingCount int, pendingAmount decimal.Decimal, byEntity map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Digests++
}

// MockIDGenerator returns sequential ids.
type MockIDGenerator struct {
	mu sync.Mutex
	n  int
}

func (m *MockIDGenerator) Generate() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return "id-" + strconv.Itoa(m.n)
}

// FrozenClock is a settable usecase.Clock.
type FrozenClock struct {
	mu sync.Mutex
	At time.Time
}

func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.At
}

// Advance moves the clock forward.
func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.At = c.At.Add(d)
}
