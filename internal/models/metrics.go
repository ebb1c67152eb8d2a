package models

import "time"

// HTTPMetrics aggregates request counters across every route.
type HTTPMetrics struct {
	RequestsTotal     uint64  `json:"requests_total"`
	AverageDurationMs float64 `json:"average_duration_ms"`
}

// CacheMetrics aggregates Redis lookup counters.
type CacheMetrics struct {
	HitRatio float64 `json:"hit_ratio"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
}

// DBMetrics aggregates query counters across repositories.
type DBMetrics struct {
	QueryCount        uint64  `json:"query_count"`
	AverageDurationMs float64 `json:"average_duration_ms"`
}

// AdmissionMetrics counts lifecycle activity since process start. Denied
// transitions are tracked apart from applied ones, not folded into them.
type AdmissionMetrics struct {
	TransitionsApplied uint64 `json:"transitions_applied"`
	TransitionsDenied  uint64 `json:"transitions_denied"`
	StreamClients      int    `json:"stream_clients"`
}

// ReportMetrics describes the export pipeline at snapshot time.
type ReportMetrics struct {
	QueueDepth int `json:"queue_depth"`
}

// SystemMetrics is the JSON body of the internal metrics endpoint, grouped
// by subsystem so operators can scan one section at a time.
type SystemMetrics struct {
	HTTP        HTTPMetrics      `json:"http"`
	Cache       CacheMetrics     `json:"cache"`
	DB          DBMetrics        `json:"db"`
	Admissions  AdmissionMetrics `json:"admissions"`
	Reports     ReportMetrics    `json:"reports"`
	Goroutines  int              `json:"goroutines"`
	GeneratedAt time.Time        `json:"generated_at"`
}
