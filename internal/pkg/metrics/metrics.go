package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guildgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "status"})

	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guildgate_auth_failures_total",
		Help: "Rejected credentials by error code",
	}, []string{"code"})

	TenantViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guildgate_tenant_violations_total",
		Help: "Operations rejected by tenant scoping",
	}, []string{"reason"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guildgate_rate_limited_total",
		Help: "Requests rejected by the per-community rate limiter",
	}, []string{"community"})

	AuditRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guildgate_audit_records_total",
		Help: "Audit records by outcome (queued, dropped, invalid, written, failed)",
	}, []string{"outcome"})

	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guildgate_audit_queue_depth",
		Help: "Audit records waiting for the writer",
	})

	LedgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guildgate_ledger_writes_total",
		Help: "Ledger appends by result",
	}, []string{"result"})

	LedgerCASRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guildgate_ledger_cas_retries_total",
		Help: "Chain head compare-and-swap conflicts that forced a retry",
	})

	LedgerVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guildgate_ledger_verifications_total",
		Help: "Integrity verifications by result",
	}, []string{"result"})
)
