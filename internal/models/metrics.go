package models

import "time"

// SystemMetrics is a lightweight aggregate snapshot served to API clients;
// full series live in the Prometheus registry.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	DistributionRuns         uint64    `json:"distribution_runs"`
	SessionsPlaced           uint64    `json:"sessions_placed"`
	SessionsUnscheduled      uint64    `json:"sessions_unscheduled"`
	InstancesGenerated       uint64    `json:"instances_generated"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
