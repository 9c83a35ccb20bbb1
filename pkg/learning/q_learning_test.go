package learning

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

func newTestQLearning(t *testing.T, nodes int, epsilon float64, seed int64) *QLearning {
	t.Helper()
	cfg := DefaultConfig(nodes)
	cfg.ExplorationRate = epsilon
	ql, err := NewQLearning(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("NewQLearning() error: %v", err)
	}
	return ql
}

func update(t *testing.T, ql *QLearning, s models.State, a Action, reward float64, next models.State) {
	t.Helper()
	if err := ql.UpdateQValue(s, a, reward, next); err != nil {
		t.Fatalf("UpdateQValue() error: %v", err)
	}
}

func TestQLearning_NewQLearning(t *testing.T) {
	ql := newTestQLearning(t, 3, 1.0, 1)

	if ql.alpha != 0.1 {
		t.Errorf("Expected alpha=0.1, got %f", ql.alpha)
	}
	if ql.gamma != 0.9 {
		t.Errorf("Expected gamma=0.9, got %f", ql.gamma)
	}
	if ql.epsilon != 1.0 {
		t.Errorf("Expected epsilon=1.0, got %f", ql.epsilon)
	}
	if ql.qTable == nil {
		t.Error("Q-table should be initialized")
	}
	if len(ql.qTable) != 0 {
		t.Errorf("Q-table should start empty, has %d states", len(ql.qTable))
	}
}

func TestQLearning_InvalidConfig(t *testing.T) {
	bad := []Config{
		{NumNodes: 0, LearningRate: 0.1, DiscountFactor: 0.9, ExplorationRate: 1, ExplorationDecay: 0.99, WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0, DiscountFactor: 0.9, ExplorationRate: 1, ExplorationDecay: 0.99, WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0.1, DiscountFactor: 1.5, ExplorationRate: 1, ExplorationDecay: 0.99, WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0.1, DiscountFactor: 0.9, ExplorationRate: 2, ExplorationDecay: 0.99, WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0.1, DiscountFactor: 0.9, ExplorationRate: 1, ExplorationDecay: 0, WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0.1, DiscountFactor: 0.9, ExplorationRate: 1, ExplorationDecay: 0.99, WorkloadScale: 0},
		{NumNodes: 3, LearningRate: math.NaN(), DiscountFactor: 0.9, ExplorationRate: 1, ExplorationDecay: 0.99, WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0.1, DiscountFactor: math.NaN(), ExplorationRate: 1, ExplorationDecay: 0.99, WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0.1, DiscountFactor: 0.9, ExplorationRate: math.NaN(), ExplorationDecay: 0.99, WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0.1, DiscountFactor: 0.9, ExplorationRate: 1, ExplorationDecay: math.NaN(), WorkloadScale: 1},
		{NumNodes: 3, LearningRate: 0.1, DiscountFactor: 0.9, ExplorationRate: 1, ExplorationDecay: 0.99, WorkloadScale: math.Inf(1)},
	}
	for i, cfg := range bad {
		if _, err := NewQLearning(cfg, nil); err == nil {
			t.Errorf("config %d should be rejected", i)
		}
	}
}

func TestQLearning_Discretize(t *testing.T) {
	ql := newTestQLearning(t, 3, 0, 1)

	state := models.State{
		{Reliability: 1.0, Workload: 0},     // r=10 clamps to 9
		{Reliability: 0.37, Workload: 0.25}, // 3, 2
		{Reliability: 0.0, Workload: 5e9},   // unbounded workload clamps to 9
	}
	key := ql.Discretize(state)
	if key != "903209" {
		t.Errorf("Expected key 903209, got %s", key)
	}

	if ql.Discretize(state) != key {
		t.Error("Same state should produce same key")
	}

	state[1].Reliability = 0.41
	if ql.Discretize(state) == key {
		t.Error("Different buckets should produce different keys")
	}

	weird := models.State{{Reliability: math.NaN(), Workload: -3}}
	if k := ql.Discretize(weird); k != "00" {
		t.Errorf("NaN and negative inputs should map to bucket 0, got %s", k)
	}
}

func TestQLearning_DiscretizeWorkloadScale(t *testing.T) {
	cfg := DefaultConfig(1)
	cfg.WorkloadScale = 1e-9
	ql, err := NewQLearning(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if k := ql.Discretize(models.State{{Reliability: 0.5, Workload: 3.7e9}}); k != "53" {
		t.Errorf("Expected key 53, got %s", k)
	}
}

func TestQLearning_SelectActionExploresWithinRange(t *testing.T) {
	ql := newTestQLearning(t, 4, 1.0, 7)
	state := models.State{{}, {}, {}, {}}

	seen := make(map[Action]int)
	for i := 0; i < 2000; i++ {
		a := ql.SelectAction(state)
		if a.Primary < 0 || a.Primary >= 4 || a.Backup < 0 || a.Backup >= 4 {
			t.Fatalf("action out of range: %+v", a)
		}
		seen[a]++
	}
	if len(seen) != 16 {
		t.Errorf("Expected all 16 pairs to be explored, saw %d", len(seen))
	}
}

func TestQLearning_SelectActionExploitsWithZeroEpsilon(t *testing.T) {
	ql := newTestQLearning(t, 3, 0, 1)
	state := models.State{{Reliability: 1}, {Reliability: 1}, {Reliability: 1}}

	if a := ql.SelectAction(state); a != (Action{}) {
		t.Errorf("Unseen state should exploit to (0,0), got %+v", a)
	}
	if ql.StateCount() != 0 {
		t.Error("Selecting an action must not grow the table")
	}

	update(t, ql, state, Action{Primary: 2, Backup: 1}, 5, state)
	if a := ql.SelectAction(state); a != (Action{Primary: 2, Backup: 1}) {
		t.Errorf("Expected greedy action (2,1), got %+v", a)
	}
}

func TestQLearning_BestActionTieBreak(t *testing.T) {
	ql := newTestQLearning(t, 3, 0, 1)
	state := models.State{{}, {}, {}}

	update(t, ql, state, Action{Primary: 1, Backup: 2}, 1, state)

	q := ql.qTable[ql.Discretize(state)]
	q.Set(1, 2, 0.5)
	q.Set(2, 0, 0.5)

	if a := ql.BestAction(state); a != (Action{Primary: 1, Backup: 2}) {
		t.Errorf("Ties should go to the first pair in row-major order, got %+v", a)
	}

	// all-negative matrix still returns an in-range pair
	q.Zero()
	q.Apply(func(i, j int, v float64) float64 { return -1 }, q)
	q.Set(0, 1, -0.5)
	if a := ql.BestAction(state); a != (Action{Primary: 0, Backup: 1}) {
		t.Errorf("Expected (0,1), got %+v", a)
	}
}

func TestQLearning_UpdateQValue(t *testing.T) {
	ql := newTestQLearning(t, 2, 0.5, 1)
	s := models.State{{Reliability: 0.9}, {Reliability: 0.9}}
	next := models.State{{Reliability: 0.5}, {Reliability: 0.9}}
	a := Action{Primary: 0, Backup: 1}

	// unseen next state contributes max Q = 0
	update(t, ql, s, a, 2.0, next)
	if got := ql.QValue(s, a); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("Expected Q=0.2, got %f", got)
	}

	// seed next state then update again
	update(t, ql, next, Action{Primary: 1, Backup: 1}, 10, next)
	maxNext := ql.QValue(next, Action{Primary: 1, Backup: 1})
	update(t, ql, s, a, 2.0, next)
	expected := 0.2 + 0.1*(2.0+0.9*maxNext-0.2)
	if got := ql.QValue(s, a); math.Abs(got-expected) > 1e-12 {
		t.Errorf("Expected Q=%f, got %f", expected, got)
	}

	if ql.StateCount() != 2 {
		t.Errorf("Expected 2 states, got %d", ql.StateCount())
	}
}

func TestQLearning_UpdateRejectsOutOfRangeAction(t *testing.T) {
	ql := newTestQLearning(t, 2, 0.5, 1)
	s := models.State{{}, {}}

	for _, a := range []Action{{Primary: 2}, {Backup: 2}, {Primary: -1}} {
		err := ql.UpdateQValue(s, a, 1, s)
		if !errors.Is(err, ErrInvalidAction) {
			t.Errorf("Expected ErrInvalidAction for %+v, got %v", a, err)
		}
	}
	if ql.StateCount() != 0 {
		t.Errorf("Rejected updates must not grow the table, has %d states", ql.StateCount())
	}
	if ql.ExplorationRate() != 0.5 {
		t.Errorf("Rejected updates must not decay epsilon, got %f", ql.ExplorationRate())
	}
}

func TestQLearning_ExplorationDecay(t *testing.T) {
	ql := newTestQLearning(t, 2, 1.0, 1)
	s := models.State{{}, {}}

	const n = 250
	for i := 0; i < n; i++ {
		update(t, ql, s, Action{}, 0, s)
	}

	expected := math.Pow(0.99, n)
	if math.Abs(ql.ExplorationRate()-expected) > 1e-12 {
		t.Errorf("Expected epsilon=%g, got %g", expected, ql.ExplorationRate())
	}
	if ql.ExplorationRate() < 0 {
		t.Error("epsilon must stay non-negative")
	}
	if ql.Stats().TotalUpdates != n {
		t.Errorf("Expected %d updates, got %d", n, ql.Stats().TotalUpdates)
	}
}

func TestQLearning_Stats(t *testing.T) {
	ql := newTestQLearning(t, 2, 0, 1)

	stats := ql.Stats()
	if stats.StateCount != 0 || stats.MaxQValue != 0 || stats.MinQValue != 0 {
		t.Errorf("Empty table stats should be zero, got %+v", stats)
	}

	s := models.State{{}, {}}
	update(t, ql, s, Action{Primary: 1, Backup: 1}, 4, s)

	stats = ql.Stats()
	if stats.StateCount != 1 {
		t.Errorf("Expected 1 state, got %d", stats.StateCount)
	}
	if math.Abs(stats.MaxQValue-0.4) > 1e-12 {
		t.Errorf("Expected max 0.4, got %f", stats.MaxQValue)
	}
	if stats.MinQValue != 0 {
		t.Errorf("Expected min 0, got %f", stats.MinQValue)
	}
	if math.Abs(stats.AverageQValue-0.1) > 1e-12 {
		t.Errorf("Expected average 0.1, got %f", stats.AverageQValue)
	}

	ql.Reset()
	if ql.StateCount() != 0 {
		t.Error("Reset should clear the table")
	}
}
