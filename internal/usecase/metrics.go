package usecase

import (
	"sync"
	"time"

	"github.com/example/pose-coach/internal/scoring"
)

// MetricsSummary represents aggregated analysis insights since process start.
type MetricsSummary struct {
	TotalRequests              int64   `json:"total_requests"`
	PoseDetected               int64   `json:"pose_detected"`
	NoPose                     int64   `json:"no_pose"`
	Unavailable                int64   `json:"unavailable"`
	CacheHits                  int64   `json:"cache_hits"`
	PoseRate                   float64 `json:"pose_rate"`
	AverageScore               float64 `json:"average_score"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

type analysisMetrics struct {
	mu          sync.Mutex
	total       int64
	withPose    int64
	noPose      int64
	unavailable int64
	cacheHits   int64
	scoreSum    int64
	latency     time.Duration
}

func (m *analysisMetrics) record(result scoring.ScoreResult, latency time.Duration, cacheHit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latency += latency
	if cacheHit {
		m.cacheHits++
	}
	switch {
	case result.HasPose:
		m.withPose++
		m.scoreSum += int64(result.ConfidenceScore)
	case result.IsUnavailable():
		m.unavailable++
	default:
		m.noPose++
	}
}

// GetMetricsSummary aggregates the in-memory analysis counters.
func (uc *AnalysisUseCase) GetMetricsSummary() *MetricsSummary {
	m := uc.metrics
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := &MetricsSummary{
		TotalRequests: m.total,
		PoseDetected:  m.withPose,
		NoPose:        m.noPose,
		Unavailable:   m.unavailable,
		CacheHits:     m.cacheHits,
	}

	if m.total > 0 {
		summary.PoseRate = float64(m.withPose) / float64(m.total)
		summary.AverageProcessingLatencyMs = float64(m.latency.Microseconds()) / 1000 / float64(m.total)
	}
	if m.withPose > 0 {
		summary.AverageScore = float64(m.scoreSum) / float64(m.withPose)
	}

	return summary
}
