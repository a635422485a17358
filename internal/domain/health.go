package domain

// ============================================================
// Health API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// EngineMetrics is returned by GET /v1/metrics/engine.
type EngineMetrics struct {
	MaterializedPhysical  int64   `json:"materializedPhysical"`
	MaterializedVirtual   int64   `json:"materializedVirtual"`
	MaterializedException int64   `json:"materializedException"`
	RepairsDuplicate      int64   `json:"repairsDuplicate"`
	RepairsOrphan         int64   `json:"repairsOrphan"`
	RepairsStale          int64   `json:"repairsStale"`
	InvoicesCreated       int64   `json:"invoicesCreated"`
	InvoicesUpdated       int64   `json:"invoicesUpdated"`
	AdvisorRequests       int64   `json:"advisorRequests"`
	RateLimited           int64   `json:"rateLimited"`
	CategoryCacheHitRate  float64 `json:"categoryCacheHitRate"`
	Period                string  `json:"period"`
}
