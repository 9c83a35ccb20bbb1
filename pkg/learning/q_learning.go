package learning

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

const buckets = 10

// QLearning is a tabular Q-learning controller choosing (primary, backup) pairs.
// The table is keyed by discretized state and holds an N×N matrix of expected
// returns per state, allocated the first time a state is updated.
type QLearning struct {
	qTable        map[StateKey]*mat.Dense
	numNodes      int
	alpha         float64
	gamma         float64
	epsilon       float64
	decay         float64
	workloadScale float64
	rng           *rand.Rand
	totalUpdates  int
	lastDelta     float64
}

// NewQLearning creates a controller; rng drives exploration and must not be shared
// with another goroutine
func NewQLearning(cfg Config, rng *rand.Rand) (*QLearning, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &QLearning{
		qTable:        make(map[StateKey]*mat.Dense),
		numNodes:      cfg.NumNodes,
		alpha:         cfg.LearningRate,
		gamma:         cfg.DiscountFactor,
		epsilon:       cfg.ExplorationRate,
		decay:         cfg.ExplorationDecay,
		workloadScale: cfg.WorkloadScale,
		rng:           rng,
	}, nil
}

// ExplorationRate returns the current epsilon
func (ql *QLearning) ExplorationRate() float64 {
	return ql.epsilon
}

// StateCount returns how many discretized states have a value matrix
func (ql *QLearning) StateCount() int {
	return len(ql.qTable)
}

// Discretize maps every node's (reliability, workload) onto two digits in [0,9]
// and concatenates them in node order
func (ql *QLearning) Discretize(state models.State) StateKey {
	var sb strings.Builder
	sb.Grow(2 * len(state))
	for _, o := range state {
		sb.WriteByte(byte('0' + bucket(o.Reliability*buckets)))
		sb.WriteByte(byte('0' + bucket(o.Workload*ql.workloadScale)))
	}
	return StateKey(sb.String())
}

func bucket(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v >= buckets-1 {
		return buckets - 1
	}
	return int(math.Floor(v))
}

// SelectAction picks a uniformly random pair with probability epsilon and the
// greedy pair otherwise
func (ql *QLearning) SelectAction(state models.State) Action {
	if ql.rng.Float64() < ql.epsilon {
		return Action{
			Primary: ql.rng.Intn(ql.numNodes),
			Backup:  ql.rng.Intn(ql.numNodes),
		}
	}
	return ql.BestAction(state)
}

// BestAction returns the argmax pair for state; ties go to the first pair in
// row-major order, and an unseen state yields (0,0)
func (ql *QLearning) BestAction(state models.State) Action {
	q, ok := ql.qTable[ql.Discretize(state)]
	if !ok {
		return Action{}
	}
	best := Action{}
	bestValue := q.At(0, 0)
	for p := 0; p < ql.numNodes; p++ {
		for b := 0; b < ql.numNodes; b++ {
			if v := q.At(p, b); v > bestValue {
				bestValue = v
				best = Action{Primary: p, Backup: b}
			}
		}
	}
	return best
}

// UpdateQValue applies Q(s,a) += alpha * (reward + gamma*max Q(s',·) - Q(s,a))
// and then decays epsilon. An action outside the node range returns
// ErrInvalidAction and leaves the table untouched.
func (ql *QLearning) UpdateQValue(state models.State, action Action, reward float64, next models.State) error {
	if !action.inRange(ql.numNodes) {
		return fmt.Errorf("%w: (%d,%d) with %d nodes", ErrInvalidAction, action.Primary, action.Backup, ql.numNodes)
	}
	q := ql.table(ql.Discretize(state))

	maxNext := 0.0
	if nq, ok := ql.qTable[ql.Discretize(next)]; ok {
		maxNext = mat.Max(nq)
	}

	current := q.At(action.Primary, action.Backup)
	updated := current + ql.alpha*(reward+ql.gamma*maxNext-current)
	q.Set(action.Primary, action.Backup, updated)

	ql.lastDelta = math.Abs(updated - current)
	ql.totalUpdates++
	ql.epsilon *= ql.decay
	return nil
}

// QValue returns Q(state, action), zero for unseen states
func (ql *QLearning) QValue(state models.State, action Action) float64 {
	q, ok := ql.qTable[ql.Discretize(state)]
	if !ok {
		return 0
	}
	return q.At(action.Primary, action.Backup)
}

func (ql *QLearning) table(key StateKey) *mat.Dense {
	q, ok := ql.qTable[key]
	if !ok {
		q = mat.NewDense(ql.numNodes, ql.numNodes, nil)
		ql.qTable[key] = q
	}
	return q
}

// Stats returns statistics about the Q-learning process
func (ql *QLearning) Stats() Stats {
	stats := Stats{
		StateCount:      len(ql.qTable),
		TotalUpdates:    ql.totalUpdates,
		LastDelta:       ql.lastDelta,
		ExplorationRate: ql.epsilon,
		LearningRate:    ql.alpha,
		DiscountFactor:  ql.gamma,
		LastUpdated:     time.Now(),
	}
	if len(ql.qTable) == 0 {
		return stats
	}

	stats.MaxQValue = math.Inf(-1)
	stats.MinQValue = math.Inf(1)
	sum := 0.0
	for _, q := range ql.qTable {
		sum += mat.Sum(q)
		stats.MaxQValue = math.Max(stats.MaxQValue, mat.Max(q))
		stats.MinQValue = math.Min(stats.MinQValue, mat.Min(q))
	}
	stats.AverageQValue = sum / float64(len(ql.qTable)*ql.numNodes*ql.numNodes)
	return stats
}

// Reset drops the value table; epsilon keeps its current value
func (ql *QLearning) Reset() {
	ql.qTable = make(map[StateKey]*mat.Dense)
	ql.totalUpdates = 0
	ql.lastDelta = 0
}
