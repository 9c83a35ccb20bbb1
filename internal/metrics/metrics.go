// Package metrics exposes run progress as Prometheus metrics.
//
// Counters:
//
//	fogsim_placements_total{outcome}  placements by outcome
//	fogsim_runs_total{status}         finished runs by final status
//
// Histograms:
//
//	fogsim_reward                     per-step reward
//	fogsim_task_delay_seconds         estimated end-to-end delay on the primary
//
// Gauges:
//
//	fogsim_aggregate_reliability      product of node reliabilities
//	fogsim_workload_imbalance         mean absolute deviation of node workloads
//	fogsim_exploration_rate           current epsilon
//	fogsim_q_table_states             discretized states with a value matrix
//	fogsim_pending_tasks              tasks still waiting for placement
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

const namespace = "fogsim"

// Collector holds the simulator's Prometheus metrics
type Collector struct {
	placements *prometheus.CounterVec
	runs       *prometheus.CounterVec

	reward prometheus.Histogram
	delay  prometheus.Histogram

	reliability  prometheus.Gauge
	imbalance    prometheus.Gauge
	exploration  prometheus.Gauge
	qTableStates prometheus.Gauge
	pending      prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_total",
			Help:      "Total number of placement attempts by outcome",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of finished runs by status",
		}, []string{"status"}),
		reward: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reward",
			Help:      "Per-step reward handed to the controller",
			Buckets:   []float64{0, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10},
		}),
		delay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_delay_seconds",
			Help:      "Estimated end-to-end task delay on the primary node",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		reliability: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregate_reliability",
			Help:      "Product of all node reliabilities",
		}),
		imbalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workload_imbalance",
			Help:      "Mean absolute deviation of node workloads",
		}),
		exploration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exploration_rate",
			Help:      "Current epsilon of the controller",
		}),
		qTableStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "q_table_states",
			Help:      "Number of discretized states with a value matrix",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tasks",
			Help:      "Tasks waiting for placement",
		}),
	}

	reg.MustRegister(
		c.placements,
		c.runs,
		c.reward,
		c.delay,
		c.reliability,
		c.imbalance,
		c.exploration,
		c.qTableStates,
		c.pending,
	)

	return c
}

// Step holds the per-step values recorded by RecordStep
type Step struct {
	Outcome              models.PlacementOutcome
	Reward               float64
	Delay                float64
	AggregateReliability float64
	WorkloadImbalance    float64
	ExplorationRate      float64
	StateCount           int
	Pending              int
}

// RecordStep records one observe-place-learn step
func (c *Collector) RecordStep(s Step) {
	c.placements.WithLabelValues(s.Outcome.String()).Inc()
	c.reward.Observe(s.Reward)
	c.delay.Observe(s.Delay)
	c.reliability.Set(s.AggregateReliability)
	c.imbalance.Set(s.WorkloadImbalance)
	c.exploration.Set(s.ExplorationRate)
	c.qTableStates.Set(float64(s.StateCount))
	c.pending.Set(float64(s.Pending))
}

// RecordRunEnd counts a finished run
func (c *Collector) RecordRunEnd(status string) {
	c.runs.WithLabelValues(status).Inc()
}
