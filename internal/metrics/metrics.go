// Package metrics records run statistics in a Prometheus registry that can be
// exported in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/temirov/recap/internal/types"
)

const (
	namespace = "recap"

	labelRole    = "role"
	labelOutcome = "outcome"
	labelLevel   = "level"
	labelResult  = "result"

	// Cache lookup levels.
	LevelNode  = "node"
	LevelChunk = "chunk"

	resultHit  = "hit"
	resultMiss = "miss"
)

// RunObservation is the outcome of one run.
type RunObservation struct {
	Outcome     string
	Files       int
	Skipped     int
	Excluded    int
	Degraded    int
	NodeHits    int64
	NodeMisses  int64
	ChunkHits   int64
	ChunkMisses int64
	Duration    time.Duration
	FinishedAt  time.Time
}

// Recorder owns a registry scoped to one run.
type Recorder struct {
	registry        *prometheus.Registry
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	files           prometheus.Gauge
	skipped         prometheus.Gauge
	excluded        prometheus.Gauge
	degraded        prometheus.Gauge
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
	outcome         *prometheus.GaugeVec
}

// NewRecorder constructs a Recorder with its own registry.
func NewRecorder() *Recorder {
	recorder := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summarization_attempts_total",
				Help:      "Provider calls by role and outcome",
			},
			[]string{labelRole, labelOutcome},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "summarization_duration_seconds",
				Help:      "Provider call latency",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{labelRole},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Summary cache lookups by level and result",
			},
			[]string{labelLevel, labelResult},
		),
		files:       newGauge("files_summarized", "Files included in the last run"),
		skipped:     newGauge("files_skipped", "Included files skipped for their content in the last run"),
		excluded:    newGauge("paths_excluded", "Paths removed by exclusion rules in the last run"),
		degraded:    newGauge("summaries_degraded", "Placeholder summaries in the last run"),
		runDuration: newGauge("run_duration_seconds", "Wall time of the last run"),
		lastRun:     newGauge("last_run_timestamp_seconds", "Unix time the last run finished"),
		outcome: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_outcome",
				Help:      "Outcome of the last run, 1 for the reported outcome",
			},
			[]string{labelOutcome},
		),
	}
	recorder.registry.MustRegister(
		recorder.attempts,
		recorder.attemptDuration,
		recorder.cacheLookups,
		recorder.files,
		recorder.skipped,
		recorder.excluded,
		recorder.degraded,
		recorder.runDuration,
		recorder.lastRun,
		recorder.outcome,
	)
	return recorder
}

func newGauge(name string, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// Registry exposes the underlying registry.
func (recorder *Recorder) Registry() *prometheus.Registry {
	return recorder.registry
}

// ObserveAttempt counts one provider call.
func (recorder *Recorder) ObserveAttempt(role types.Role, outcome string, duration time.Duration) {
	recorder.attempts.WithLabelValues(string(role), outcome).Inc()
	recorder.attemptDuration.WithLabelValues(string(role)).Observe(duration.Seconds())
}

// ObserveRun records the totals of a finished run.
func (recorder *Recorder) ObserveRun(observation RunObservation) {
	recorder.cacheLookups.WithLabelValues(LevelNode, resultHit).Add(float64(observation.NodeHits))
	recorder.cacheLookups.WithLabelValues(LevelNode, resultMiss).Add(float64(observation.NodeMisses))
	recorder.cacheLookups.WithLabelValues(LevelChunk, resultHit).Add(float64(observation.ChunkHits))
	recorder.cacheLookups.WithLabelValues(LevelChunk, resultMiss).Add(float64(observation.ChunkMisses))
	recorder.files.Set(float64(observation.Files))
	recorder.skipped.Set(float64(observation.Skipped))
	recorder.excluded.Set(float64(observation.Excluded))
	recorder.degraded.Set(float64(observation.Degraded))
	recorder.runDuration.Set(observation.Duration.Seconds())
	finishedAt := observation.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	recorder.lastRun.Set(float64(finishedAt.Unix()))
	if observation.Outcome != "" {
		recorder.outcome.Reset()
		recorder.outcome.WithLabelValues(observation.Outcome).Set(1)
	}
}

// WriteTextfile writes the registry to path in the text exposition format.
func (recorder *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, recorder.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
