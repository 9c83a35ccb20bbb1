package learning

import (
	"github.com/casperlundberg/fog-offloader/pkg/models"
)

// Fixed reward weights
const (
	WorkloadWeight    = 0.36
	DelayWeight       = 0.27
	ReliabilityWeight = 0.29

	rewardEpsilon = 1e-10
)

// RewardComponents is the unweighted breakdown of a reward
type RewardComponents struct {
	WorkloadRatio    float64 `json:"workload_ratio"`    // imbalance before / after
	DelayRatio       float64 `json:"delay_ratio"`       // delay / deadline
	ReliabilityRatio float64 `json:"reliability_ratio"` // reliability before / after
}

// Total returns the weighted sum
func (rc RewardComponents) Total() float64 {
	return WorkloadWeight*rc.WorkloadRatio +
		DelayWeight*rc.DelayRatio +
		ReliabilityWeight*rc.ReliabilityRatio
}

// ComputeRewardComponents returns the three ratios of a transition. The
// "before / after" direction of the imbalance and reliability ratios is kept
// as-is; see DESIGN.md.
func ComputeRewardComponents(prev, next models.State, delay, deadline float64) RewardComponents {
	return RewardComponents{
		WorkloadRatio:    prev.WorkloadImbalance() / (next.WorkloadImbalance() + rewardEpsilon),
		DelayRatio:       delay / (deadline + rewardEpsilon),
		ReliabilityRatio: prev.Reliability() / (next.Reliability() + rewardEpsilon),
	}
}

// Reward scores the transition prev -> next for a task with the given delay and deadline
func Reward(prev, next models.State, delay, deadline float64) float64 {
	return ComputeRewardComponents(prev, next, delay, deadline).Total()
}

// Reward scores a transition for the controller. The action does not enter
// the formula.
func (ql *QLearning) Reward(prev models.State, action Action, next models.State, delay, deadline float64) float64 {
	return Reward(prev, next, delay, deadline)
}
