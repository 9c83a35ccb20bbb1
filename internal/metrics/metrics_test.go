package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

func TestNewCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	assert.NotNil(t, collector.placements, "placements counter should be initialized")
	assert.NotNil(t, collector.reward, "reward histogram should be initialized")
	assert.NotNil(t, collector.exploration, "exploration gauge should be initialized")

	assert.Panics(t, func() { NewCollector(reg) }, "registering twice should panic")
}

func TestRecordStep(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordStep(Step{
		Outcome:              models.OutcomeAccepted,
		Reward:               1.2,
		Delay:                3.5,
		AggregateReliability: 0.9,
		WorkloadImbalance:    1.5e9,
		ExplorationRate:      0.99,
		StateCount:           1,
		Pending:              3,
	})
	collector.RecordStep(Step{Outcome: models.OutcomeBackupRejected, AggregateReliability: 0.8, ExplorationRate: 0.98, StateCount: 2})
	collector.RecordStep(Step{Outcome: models.OutcomeAccepted, AggregateReliability: 0.7, ExplorationRate: 0.97, StateCount: 2})

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.placements.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.placements.WithLabelValues("backup_rejected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.placements.WithLabelValues("primary_rejected")))

	assert.Equal(t, 0.7, testutil.ToFloat64(collector.reliability))
	assert.Equal(t, 0.97, testutil.ToFloat64(collector.exploration))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.qTableStates))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.pending))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.reward))
	assert.Equal(t, 3, testutil.CollectAndCount(collector.placements))
}

func TestRecordRunEnd(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	collector.RecordRunEnd("completed")
	collector.RecordRunEnd("completed")
	collector.RecordRunEnd("cancelled")

	expected := `
# HELP fogsim_runs_total Total number of finished runs by status
# TYPE fogsim_runs_total counter
fogsim_runs_total{status="cancelled"} 1
fogsim_runs_total{status="completed"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fogsim_runs_total"))
}
