// Package metrics exposes Prometheus counters for one generation run.
//
// Every run owns its registry so several runs (or tests) can coexist in one
// process. A nil *Run is valid and records nothing.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run holds the collectors of a single run.
type Run struct {
	Registry *prometheus.Registry

	// Generation
	EventGroupsGenerated prometheus.Counter
	ShowersGenerated     prometheus.Counter
	Placeholders         prometheus.Counter

	// Propagation
	PropagatorCalls    *prometheus.CounterVec
	PropagatorDuration prometheus.Histogram
	SecondaryProducts  *prometheus.CounterVec

	// Output
	ShardsWritten     prometheus.Counter
	ShardBytesWritten prometheus.Counter
	StageDuration     *prometheus.GaugeVec
}

// NewRun registers the run collectors on a fresh registry.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Run{
		Registry: reg,
		EventGroupsGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgen_event_groups_generated_total",
			Help: "Event groups generated in the full simulation volume",
		}),
		ShowersGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgen_showers_total",
			Help: "Shower records in the final table",
		}),
		Placeholders: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgen_placeholder_rows_total",
			Help: "Placeholder rows synthesized because no shower reached the fiducial volume",
		}),
		PropagatorCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgen_propagator_calls_total",
			Help: "Secondary propagator calls",
		}, []string{"status"}),
		PropagatorDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventgen_propagator_duration_seconds",
			Help:    "Duration of a secondary propagator call in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SecondaryProducts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventgen_secondary_products_total",
			Help: "Secondary products returned by the propagator",
		}, []string{"shower_type", "fiducial"}),
		ShardsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgen_shards_written_total",
			Help: "Output shards written",
		}),
		ShardBytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "eventgen_shard_bytes_written_total",
			Help: "Total bytes of output shards written",
		}),
		StageDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eventgen_stage_duration_seconds",
			Help: "Wall-clock duration of each pipeline stage in seconds",
		}, []string{"stage"}),
	}
}

// ObservePropagation records one propagator call.
func (r *Run) ObservePropagation(d time.Duration, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.PropagatorCalls.WithLabelValues(status).Inc()
	r.PropagatorDuration.Observe(d.Seconds())
}

// ObserveProduct records one secondary product.
func (r *Run) ObserveProduct(showerType string, fiducial bool) {
	if r == nil {
		return
	}
	r.SecondaryProducts.WithLabelValues(showerType, fmt.Sprint(fiducial)).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (r *Run) ObserveStage(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Set(time.Since(start).Seconds())
}

// AddEventGroups counts generated event groups.
func (r *Run) AddEventGroups(n int64) {
	if r == nil {
		return
	}
	r.EventGroupsGenerated.Add(float64(n))
}

// AddShowers counts rows of the final table.
func (r *Run) AddShowers(n int) {
	if r == nil {
		return
	}
	r.ShowersGenerated.Add(float64(n))
}

// IncPlaceholder counts a synthesized placeholder row.
func (r *Run) IncPlaceholder() {
	if r == nil {
		return
	}
	r.Placeholders.Inc()
}

// AddShard counts one written shard of the given size.
func (r *Run) AddShard(bytes int64) {
	if r == nil {
		return
	}
	r.ShardsWritten.Inc()
	r.ShardBytesWritten.Add(float64(bytes))
}

// Push sends the run metrics to a Prometheus Pushgateway, grouped by run id.
func (r *Run) Push(ctx context.Context, url, job, runID string) error {
	if r == nil || url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(r.Registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
