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
	MetricDealFreshness   = "deals.data_age_seconds"
	MetricProgressLatency = "discovery.progress_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricLeadsDiscovered    = "business.leads_discovered"
	MetricPropertiesCaptured = "business.properties_captured"
)
