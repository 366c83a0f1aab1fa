package domain

// ============================================================
// Health & Metrics API Responses
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

// BotMetrics is returned by GET /v1/metrics/bot.
type BotMetrics struct {
	RenderDecisions    map[string]int64 `json:"renderDecisions"`
	StatementRequests  map[string]int64 `json:"statementRequests"`
	Reports            map[string]int64 `json:"reports"`
	RateGateWaits      int64            `json:"rateGateWaits"`
	RateGateWaitSecs   float64          `json:"rateGateWaitSeconds"`
	CacheHitRate       float64          `json:"cacheHitRate"`
	ActiveSessions     int              `json:"activeSessions"`
	StatementErrorRate float64          `json:"statementErrorRate"`
}

// ReportResult is returned by the admin report trigger.
type ReportResult struct {
	UserID  int64  `json:"userId"`
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
