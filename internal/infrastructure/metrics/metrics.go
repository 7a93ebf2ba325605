package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the reconciliation pipeline.
type Metrics struct {
	// Ingestion
	TransactionsSynced  *prometheus.CounterVec
	SyncRuns            *prometheus.CounterVec
	SyncDuration        prometheus.Histogram

	// Matching
	MatchAttempts    prometheus.Counter
	MatchesByTier    *prometheus.CounterVec
	MatchesByAction  *prometheus.CounterVec
	MatchDuration    prometheus.Histogram
	MatchConfidence  prometheus.Histogram
	LeaseConflicts   prometheus.Counter
	QuarantinedItems prometheus.Counter

	// Suggestions
	SuggestionsSubmitted *prometheus.CounterVec
	SubmitErrors         prometheus.Counter

	// Learning
	PatternsCreated  prometheus.Counter
	PatternsPromoted prometheus.Counter
	PatternsRetired  prometheus.Counter

	// External APIs
	BankRequests     *prometheus.CounterVec
	SCAHandshakes    prometheus.Counter
	SpectreRequests  *prometheus.CounterVec
	LLMCalls         *prometheus.CounterVec
	EmbeddingCalls   *prometheus.CounterVec
	VectorSearches   prometheus.Counter

	// HTTP surface
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		TransactionsSynced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_transactions_synced_total",
				Help: "Bank transactions upserted during ingestion",
			},
			[]string{"entity", "currency"},
		),
		SyncRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_sync_runs_total",
				Help: "Ingestion runs by outcome",
			},
			[]string{"outcome"},
		),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wiserecon_sync_duration_seconds",
			Help:    "Duration of one (profile,currency) sync",
			Buckets: prometheus.DefBuckets,
		}),

		MatchAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_match_attempts_total",
			Help: "Scoring attempts across all transactions",
		}),
		MatchesByTier: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_matches_total",
				Help: "Selected candidates by tier",
			},
			[]string{"tier"},
		),
		MatchesByAction: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_match_actions_total",
				Help: "Policy decisions by action",
			},
			[]string{"action"},
		),
		MatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wiserecon_match_duration_seconds",
			Help:    "Duration of scoring one transaction",
			Buckets: prometheus.DefBuckets,
		}),
		MatchConfidence: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wiserecon_match_confidence",
			Help:    "Final confidence of selected candidates",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		}),
		LeaseConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_lease_conflicts_total",
			Help: "Scoring attempts dropped due to lease conflicts",
		}),
		QuarantinedItems: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_quarantined_total",
			Help: "Records quarantined by validation failures",
		}),

		SuggestionsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_suggestions_submitted_total",
				Help: "Suggestions delivered to the approval service",
			},
			[]string{"action"},
		),
		SubmitErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_submit_errors_total",
			Help: "Failed suggestion submissions",
		}),

		PatternsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_patterns_created_total",
			Help: "Patterns learned from approvals",
		}),
		PatternsPromoted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_patterns_promoted_total",
			Help: "Pattern boost promotions",
		}),
		PatternsRetired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_patterns_retired_total",
			Help: "Patterns deactivated after repeated rejections",
		}),

		BankRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_bank_requests_total",
				Help: "Wise API requests by outcome",
			},
			[]string{"outcome"},
		),
		SCAHandshakes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_sca_handshakes_total",
			Help: "Completed SCA signing handshakes",
		}),
		SpectreRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_spectre_requests_total",
				Help: "Approval-service requests by outcome",
			},
			[]string{"operation", "outcome"},
		),
		LLMCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_llm_calls_total",
				Help: "LLM matcher calls by outcome",
			},
			[]string{"outcome"},
		),
		EmbeddingCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_embedding_calls_total",
				Help: "Embedding calls by outcome",
			},
			[]string{"outcome"},
		),
		VectorSearches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wiserecon_vector_searches_total",
			Help: "Pattern vector similarity searches",
		}),

		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wiserecon_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wiserecon_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}
