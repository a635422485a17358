package observability

import (
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Repair reasons reported by the invoice aggregator.
const (
	RepairDuplicate = "duplicate"
	RepairOrphan    = "orphan"
	RepairStale     = "stale"
)

// Materialized row kinds.
const (
	RowPhysical  = "physical"
	RowVirtual   = "virtual"
	RowException = "exception"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	materializedRows *prometheus.CounterVec
	invoiceRepairs   *prometheus.CounterVec
	invoiceUpserts   *prometheus.CounterVec
	scopedEdits      *prometheus.CounterVec
	advisorRequests  *prometheus.CounterVec
	tokensUsed       *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of operations by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		materializedRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_materialized_rows_total",
				Help: "Rows emitted by the transaction materializer, by kind.",
			},
			[]string{"kind"},
		),
		invoiceRepairs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_invoice_repairs_total",
				Help: "Synthetic invoice rows removed by the resync self-healing pass.",
			},
			[]string{"reason"},
		),
		invoiceUpserts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_invoice_upserts_total",
				Help: "Synthetic invoice rows written by resync.",
			},
			[]string{"action"},
		),
		scopedEdits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_scoped_edits_total",
				Help: "Transaction edits and deletes by scope.",
			},
			[]string{"op", "scope"},
		),
		advisorRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_advisor_requests_total",
				Help: "Advisor requests by status.",
			},
			[]string{"status"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_advisor_tokens_total",
				Help: "Total LLM tokens consumed by the advisor.",
			},
			[]string{"type"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rate_limited_total",
				Help: "Requests rejected by a rate limiter.",
			},
			[]string{"limiter"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// AddMaterialized counts rows emitted by the materializer.
func (m *Metrics) AddMaterialized(kind string, n int) {
	if n > 0 {
		m.materializedRows.WithLabelValues(kind).Add(float64(n))
	}
}

// IncrInvoiceRepair counts one self-healing deletion.
func (m *Metrics) IncrInvoiceRepair(reason string) {
	m.invoiceRepairs.WithLabelValues(reason).Inc()
}

// IncrInvoiceUpsert counts a synthetic invoice row created or updated.
func (m *Metrics) IncrInvoiceUpsert(action string) {
	m.invoiceUpserts.WithLabelValues(action).Inc()
}

// IncrScopedEdit counts an update or delete by scope.
func (m *Metrics) IncrScopedEdit(op, scope string) {
	if scope == "" {
		scope = "none"
	}
	m.scopedEdits.WithLabelValues(op, scope).Inc()
}

// IncrAdvisorRequest increments the advisor counter with a status label.
func (m *Metrics) IncrAdvisorRequest(status string) {
	m.advisorRequests.WithLabelValues(status).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrRateLimited counts a request rejected by the named limiter.
func (m *Metrics) IncrRateLimited(limiter string) {
	m.rateLimited.WithLabelValues(limiter).Inc()
}

// GetEngineSnapshot returns the cumulative engine counters for the
// GET /v1/metrics/engine endpoint. A steadily growing repair count points to
// concurrent writers racing on invoice resync.
func (m *Metrics) GetEngineSnapshot() *domain.EngineMetrics {
	hits := getCounterValue(m.cacheHits, "category")
	misses := getCounterValue(m.cacheMisses, "category")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.EngineMetrics{
		MaterializedPhysical:  int64(getCounterValue(m.materializedRows, RowPhysical)),
		MaterializedVirtual:   int64(getCounterValue(m.materializedRows, RowVirtual)),
		MaterializedException: int64(getCounterValue(m.materializedRows, RowException)),
		RepairsDuplicate:      int64(getCounterValue(m.invoiceRepairs, RepairDuplicate)),
		RepairsOrphan:         int64(getCounterValue(m.invoiceRepairs, RepairOrphan)),
		RepairsStale:          int64(getCounterValue(m.invoiceRepairs, RepairStale)),
		InvoicesCreated:       int64(getCounterValue(m.invoiceUpserts, "created")),
		InvoicesUpdated:       int64(getCounterValue(m.invoiceUpserts, "updated")),
		AdvisorRequests: int64(getCounterValue(m.advisorRequests, "success") +
			getCounterValue(m.advisorRequests, "error")),
		RateLimited:          int64(getCounterValue(m.rateLimited, "advisor")),
		CategoryCacheHitRate: hitRate,
		Period:               "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
