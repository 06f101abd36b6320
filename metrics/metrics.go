// Package metrics exposes optional Prometheus counters for the patch
// engine's operations. A nil *Recorder is valid and records nothing, so
// callers that don't want metrics never need to construct a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the counters one orchestrator run updates.
type Recorder struct {
	filesApplied prometheus.Counter
	filesSkipped prometheus.Counter
	blobsFetched prometheus.Counter
	gcBytesFreed prometheus.Counter
	runDuration  *prometheus.SummaryVec
}

// NewRecorder registers and returns a Recorder on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		filesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socket_patch",
			Name:      "files_applied_total",
			Help:      "Number of files written by the apply or rollback engine.",
		}),
		filesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socket_patch",
			Name:      "files_skipped_total",
			Help:      "Number of files left untouched because they were already in the target state.",
		}),
		blobsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socket_patch",
			Name:      "blobs_fetched_total",
			Help:      "Number of blobs fetched from a remote provider.",
		}),
		gcBytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "socket_patch",
			Name:      "gc_bytes_freed_total",
			Help:      "Bytes freed by garbage collection.",
		}),
		runDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: "socket_patch",
			Name:      "operation_duration_seconds",
			Help:      "Duration of a top-level operation (gc, repair), by outcome.",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(r.filesApplied, r.filesSkipped, r.blobsFetched, r.gcBytesFreed, r.runDuration)
	return r
}

// ObserveDuration records the time elapsed since start against the named
// operation and outcome. Safe to call on a nil Recorder.
func (r *Recorder) ObserveDuration(start time.Time, operation, outcome string) {
	if r == nil {
		return
	}
	r.runDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// AddFilesApplied increments the files-applied counter. Safe to call on a
// nil Recorder.
func (r *Recorder) AddFilesApplied(n int) {
	if r == nil || n == 0 {
		return
	}
	r.filesApplied.Add(float64(n))
}

// AddFilesSkipped increments the files-skipped counter. Safe to call on a
// nil Recorder.
func (r *Recorder) AddFilesSkipped(n int) {
	if r == nil || n == 0 {
		return
	}
	r.filesSkipped.Add(float64(n))
}

// AddBlobsFetched increments the blobs-fetched counter. Safe to call on a
// nil Recorder.
func (r *Recorder) AddBlobsFetched(n int) {
	if r == nil || n == 0 {
		return
	}
	r.blobsFetched.Add(float64(n))
}

// AddGCBytesFreed increments the GC-bytes-freed counter. Safe to call on a
// nil Recorder.
func (r *Recorder) AddGCBytesFreed(n int64) {
	if r == nil || n == 0 {
		return
	}
	r.gcBytesFreed.Add(float64(n))
}
