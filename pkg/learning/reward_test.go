package learning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

func TestReward_WeightedSum(t *testing.T) {
	prev := models.State{{Reliability: 0.9, Workload: 0}, {Reliability: 0.8, Workload: 6}}
	next := models.State{{Reliability: 0.6, Workload: 3}, {Reliability: 0.8, Workload: 6}}

	rc := ComputeRewardComponents(prev, next, 2, 8)

	// imbalance 3 -> 1.5, reliability 0.72 -> 0.48
	assert.InDelta(t, 2.0, rc.WorkloadRatio, 1e-9)
	assert.InDelta(t, 0.25, rc.DelayRatio, 1e-9)
	assert.InDelta(t, 1.5, rc.ReliabilityRatio, 1e-9)

	expected := 0.36*2.0 + 0.27*0.25 + 0.29*1.5
	assert.InDelta(t, expected, rc.Total(), 1e-9)
	assert.InDelta(t, expected, Reward(prev, next, 2, 8), 1e-9)
}

func TestReward_GuardsZeroDenominators(t *testing.T) {
	balanced := models.State{{Reliability: 0, Workload: 1}, {Reliability: 1, Workload: 1}}

	r := Reward(balanced, balanced, 1, 0)
	assert.False(t, math.IsNaN(r))
	assert.False(t, math.IsInf(r, 0))

	rc := ComputeRewardComponents(balanced, balanced, 0, 1)
	assert.Zero(t, rc.WorkloadRatio, "0 / (0+eps) is 0")
	assert.Zero(t, rc.ReliabilityRatio)
}

func TestQLearning_RewardIgnoresAction(t *testing.T) {
	ql, err := NewQLearning(DefaultConfig(2), nil)
	require.NoError(t, err)

	prev := models.State{{Reliability: 1, Workload: 0}, {Reliability: 1, Workload: 2}}
	next := models.State{{Reliability: 0.5, Workload: 1}, {Reliability: 1, Workload: 2}}

	a := ql.Reward(prev, Action{Primary: 0, Backup: 1}, next, 1, 10)
	b := ql.Reward(prev, Action{Primary: 1, Backup: 0}, next, 1, 10)
	assert.Equal(t, a, b)
	assert.Equal(t, Reward(prev, next, 1, 10), a)
}
