package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	TranscriptRequests atomic.Int64
	TranscriptErrors   atomic.Int64
	PlaylistRequests   atomic.Int64
	LLMCalls           atomic.Int64
	LLMErrors          atomic.Int64
	VideosProcessed    atomic.Int64
	GenerationErrors   atomic.Int64
	ThrottleWaits      atomic.Int64
	Runs               atomic.Int64
}

var metricKeys = []string{
	"runs", "videos_processed",
	"transcript_requests", "transcript_errors",
	"playlist_requests",
	"llm_calls", "llm_errors", "generation_errors",
	"throttle_waits",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"runs":                metrics.Runs.Load(),
		"videos_processed":    metrics.VideosProcessed.Load(),
		"transcript_requests": metrics.TranscriptRequests.Load(),
		"transcript_errors":   metrics.TranscriptErrors.Load(),
		"playlist_requests":   metrics.PlaylistRequests.Load(),
		"llm_calls":           metrics.LLMCalls.Load(),
		"llm_errors":          metrics.LLMErrors.Load(),
		"generation_errors":   metrics.GenerationErrors.Load(),
		"throttle_waits":      metrics.ThrottleWaits.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrTranscriptRequests() { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptErrors()   { metrics.TranscriptErrors.Add(1) }
func IncrPlaylistRequests()   { metrics.PlaylistRequests.Add(1) }
func IncrVideosProcessed()    { metrics.VideosProcessed.Add(1) }
func IncrGenerationErrors()   { metrics.GenerationErrors.Add(1) }
func IncrRuns()               { metrics.Runs.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
