package resolver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Estimator tracks per-worker classification counts against a known total
// and start time, used to report progress during a batch_resolve run. It is
// the Go analogue of the original's RuntimeStats: counters are never
// persisted, only ever used for estimation, per spec.md §3's RuntimeStats
// definition.
type Estimator struct {
	mu        sync.Mutex
	counts    map[string]int
	total     int
	startedAt time.Time
	logger    *slog.Logger
}

// NewEstimator returns an Estimator for a run of total items starting now.
func NewEstimator(total int, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		counts:    make(map[string]int),
		total:     total,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// Update adds n to worker id's count. Safe for concurrent use by every
// worker task.
func (e *Estimator) Update(id string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts[id] += n
}

// Progress is the snapshot returned by Estimate.
type Progress struct {
	Processed        int
	Remaining        int
	ElapsedSeconds   float64
	EstRemainingSecs float64
	EstTotalSeconds  float64
}

// Estimate returns the current progress snapshot. est_total_seconds is
// `total * elapsed / processed` once at least one item has been processed,
// else zero, matching spec.md §4.4 exactly.
func (e *Estimator) Estimate() Progress {
	e.mu.Lock()
	processed := 0
	for _, n := range e.counts {
		processed += n
	}
	e.mu.Unlock()

	elapsed := time.Since(e.startedAt).Seconds()
	remaining := e.total - processed
	if remaining < 0 {
		remaining = 0
	}

	var estTotal, estRemaining float64
	if processed > 0 {
		estTotal = float64(e.total) * elapsed / float64(processed)
		estRemaining = estTotal - elapsed
		if estRemaining < 0 {
			estRemaining = 0
		}
	}

	return Progress{
		Processed:        processed,
		Remaining:        remaining,
		ElapsedSeconds:   elapsed,
		EstRemainingSecs: estRemaining,
		EstTotalSeconds:  estTotal,
	}
}

// Log emits one human-readable progress line at info level, per spec.md
// §4.4's log(). Durations are rendered with humanize.RelTime the way the
// original renders them with humanfriendly.format_timespan.
func (e *Estimator) Log() {
	p := e.Estimate()
	e.logger.Info("progress",
		"processed", p.Processed,
		"remaining", p.Remaining,
		"elapsed", humanize.RelTime(time.Now().Add(-time.Duration(p.ElapsedSeconds*float64(time.Second))), time.Now(), "", ""),
		"est_remaining", humanize.RelTime(time.Now(), time.Now().Add(time.Duration(p.EstRemainingSecs*float64(time.Second))), "", ""),
	)
}
