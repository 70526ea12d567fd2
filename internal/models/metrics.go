package models

import "time"

// SystemMetricsSummary is the aggregated JSON view served next to the
// Prometheus endpoint.
type SystemMetricsSummary struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	StorageOperations        uint64    `json:"storage_operations"`
	StorageErrors            uint64    `json:"storage_errors"`
	CleanupJobsProcessed     uint64    `json:"cleanup_jobs_processed"`
	CleanupJobsFailed        uint64    `json:"cleanup_jobs_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
