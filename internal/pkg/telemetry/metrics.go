package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Data freshness
	MetricMapStaleness    = "map.snapshot_age_seconds"
	MetricPositionLatency = "realtime.position_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricClaims   = "business.claims_settled"
	MetricContests = "business.contests_opened"
)
