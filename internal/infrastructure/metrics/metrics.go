package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement core.
type Metrics struct {
	// Ledger metrics
	JournalEntriesPosted *prometheus.CounterVec

	// Hold metrics
	HoldsCreated  prometheus.Counter
	HoldsConsumed prometheus.Counter
	HoldsReleased prometheus.Counter

	// Deposit pipeline metrics
	BlocksScanned     prometheus.Counter
	DepositsObserved  prometheus.Counter
	DepositsConfirmed prometheus.Counter
	ScanDuration      prometheus.Histogram
	ProviderRetries   prometheus.Counter
	RangeBisections   prometheus.Counter

	// Outbox metrics
	OutboxPublished    *prometheus.CounterVec
	OutboxFailed       prometheus.Counter
	OutboxDeadLettered prometheus.Counter

	// Job lock metrics
	JobLockAcquired *prometheus.CounterVec
	JobLockLost     *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		JournalEntriesPosted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_journal_entries_posted_total",
				Help: "Total journal entries posted by type",
			},
			[]string{"type"},
		),

		HoldsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_holds_created_total",
			Help: "Total holds created",
		}),
		HoldsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_holds_consumed_total",
			Help: "Total holds consumed",
		}),
		HoldsReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_holds_released_total",
			Help: "Total holds released",
		}),

		BlocksScanned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_blocks_scanned_total",
			Help: "Total chain blocks scanned for deposits",
		}),
		DepositsObserved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_deposits_observed_total",
			Help: "Total deposit events recorded as pending",
		}),
		DepositsConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_deposits_confirmed_total",
			Help: "Total deposit events credited and confirmed",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_scan_duration_seconds",
			Help:    "Duration of one scan invocation",
			Buckets: prometheus.DefBuckets,
		}),
		ProviderRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_provider_retries_total",
			Help: "Total retries after provider rate-limit signals",
		}),
		RangeBisections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_range_bisections_total",
			Help: "Total block-range bisections after provider rejections",
		}),

		OutboxPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_outbox_published_total",
				Help: "Total outbox events published by topic",
			},
			[]string{"topic"},
		),
		OutboxFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_outbox_failed_total",
			Help: "Total outbox publish failures rescheduled for retry",
		}),
		OutboxDeadLettered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "settlement_outbox_dead_lettered_total",
			Help: "Total outbox events dead-lettered",
		}),

		JobLockAcquired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_job_lock_acquired_total",
				Help: "Total successful job lock acquisitions by key",
			},
			[]string{"key"},
		),
		JobLockLost: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_job_lock_lost_total",
				Help: "Total job lock acquisition failures by key",
			},
			[]string{"key"},
		),
	}
}
