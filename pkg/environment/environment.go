// Package environment owns the fog nodes, the broker and the pending task
// stream, and is the only place node queues are mutated during a run.
package environment

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

var (
	ErrNoPendingTasks = errors.New("no pending tasks")
	ErrNodeOutOfRange = errors.New("node index out of range")
)

// Config describes the node set and the uplink
type Config struct {
	NumNodes     int                 `yaml:"nodes"`
	Capacity     float64             `yaml:"capacity"`
	Frequency    float64             `yaml:"frequency"`
	FailureRate  float64             `yaml:"failure_rate"`
	DrainPolicy  models.DrainPolicy  `yaml:"drain_policy"`
	Broker       models.BrokerParams `yaml:"broker"`
	NodeOverride []models.NodeSpec   `yaml:"node_overrides,omitempty"` // matched by ID
}

// DefaultConfig returns the ten-node setup of the reference experiment
func DefaultConfig() Config {
	return Config{
		NumNodes:    10,
		Capacity:    100,
		Frequency:   2.5e9,
		FailureRate: 0.01,
		DrainPolicy: models.DrainBoth,
		Broker:      models.DefaultBrokerParams(),
	}
}

// NodeSpecs expands the homogeneous settings and overrides into one spec per node
func (c Config) NodeSpecs() ([]models.NodeSpec, error) {
	if c.NumNodes <= 0 {
		return nil, fmt.Errorf("%w: node count must be > 0, got %d", models.ErrInvalidNode, c.NumNodes)
	}
	specs := make([]models.NodeSpec, c.NumNodes)
	for i := range specs {
		specs[i] = models.NodeSpec{ID: i, Capacity: c.Capacity, Frequency: c.Frequency, FailureRate: c.FailureRate}
	}
	for _, o := range c.NodeOverride {
		if o.ID < 0 || o.ID >= c.NumNodes {
			return nil, fmt.Errorf("node override %d: %w", o.ID, ErrNodeOutOfRange)
		}
		specs[o.ID] = o
	}
	return specs, nil
}

// Placement is the result of one PlaceTask step
type Placement struct {
	Task    *models.Task
	Outcome models.PlacementOutcome
}

// Environment is the offloading world the controller acts on.
// It is not safe for concurrent use.
type Environment struct {
	nodes   []*models.FogNode
	broker  *models.Broker
	pending []*models.Task
	policy  models.DrainPolicy
	logger  hclog.Logger
}

// New builds the nodes and broker, failing on any degenerate parameter
func New(cfg Config, logger hclog.Logger) (*Environment, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.DrainPolicy == "" {
		cfg.DrainPolicy = models.DrainBoth
	}
	if !cfg.DrainPolicy.Valid() {
		return nil, fmt.Errorf("unknown drain policy %q", cfg.DrainPolicy)
	}

	broker, err := models.NewBroker(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	specs, err := cfg.NodeSpecs()
	if err != nil {
		return nil, err
	}
	nodes := make([]*models.FogNode, len(specs))
	for i, spec := range specs {
		spec.ID = i
		node, err := models.NewFogNode(spec, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create node %d: %w", i, err)
		}
		nodes[i] = node
	}

	logger.Debug("environment created", "nodes", len(nodes), "channel_capacity", broker.ChannelCapacity())

	return &Environment{
		nodes:  nodes,
		broker: broker,
		policy: cfg.DrainPolicy,
		logger: logger,
	}, nil
}

func (e *Environment) NumNodes() int                   { return len(e.nodes) }
func (e *Environment) Broker() *models.Broker          { return e.broker }
func (e *Environment) Pending() int                    { return len(e.pending) }
func (e *Environment) DrainPolicy() models.DrainPolicy { return e.policy }

// Nodes returns the node slice; callers must not mutate the nodes
func (e *Environment) Nodes() []*models.FogNode {
	return append([]*models.FogNode(nil), e.nodes...)
}

// Node returns node i
func (e *Environment) Node(i int) (*models.FogNode, error) {
	if i < 0 || i >= len(e.nodes) {
		return nil, fmt.Errorf("node %d of %d: %w", i, len(e.nodes), ErrNodeOutOfRange)
	}
	return e.nodes[i], nil
}

// AddTask validates task and appends an unassigned copy to the pending FIFO
func (e *Environment) AddTask(task models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("task %d: %w", task.ID, err)
	}
	task.Primary = models.Unassigned
	task.Backup = models.Unassigned
	e.pending = append(e.pending, &task)
	return nil
}

// AddTasks appends tasks in order, stopping at the first invalid one
func (e *Environment) AddTasks(tasks []models.Task) error {
	for _, t := range tasks {
		if err := e.AddTask(t); err != nil {
			return err
		}
	}
	return nil
}

// Observe returns (reliability, workload) for every node, recomputed on each call
func (e *Environment) Observe() models.State {
	state := make(models.State, len(e.nodes))
	for i, n := range e.nodes {
		state[i] = models.NodeObservation{
			Reliability: n.Reliability(e.broker),
			Workload:    n.TotalWorkload(),
		}
	}
	return state
}

// PlaceTask pops the next pending task and tries to admit it on primary and
// then on backup. If the backup refuses, the primary admission is undone so
// the task ends up in no queue at all.
func (e *Environment) PlaceTask(primary, backup int) (Placement, error) {
	p, err := e.Node(primary)
	if err != nil {
		return Placement{}, fmt.Errorf("primary: %w", err)
	}
	b, err := e.Node(backup)
	if err != nil {
		return Placement{}, fmt.Errorf("backup: %w", err)
	}
	if len(e.pending) == 0 {
		return Placement{}, ErrNoPendingTasks
	}

	task := e.pending[0]
	e.pending[0] = nil
	e.pending = e.pending[1:]

	task.Primary = primary
	task.Backup = backup

	if !p.Admit(task, false) {
		e.logger.Debug("primary rejected task", "task", task.ID, "primary", primary, "load", p.CurrentLoad())
		return Placement{Task: task, Outcome: models.OutcomePrimaryRejected}, nil
	}
	if !b.Admit(task, true) {
		p.Release(task)
		e.logger.Debug("backup rejected task, primary rolled back", "task", task.ID, "primary", primary, "backup", backup)
		return Placement{Task: task, Outcome: models.OutcomeBackupRejected}, nil
	}

	e.logger.Debug("task placed", "task", task.ID, "primary", primary, "backup", backup)
	return Placement{Task: task, Outcome: models.OutcomeAccepted}, nil
}

// EstimateDelay returns transmission, execution and queueing delay of task on
// the primary node as it stands now
func (e *Environment) EstimateDelay(task *models.Task, primary int) (float64, error) {
	n, err := e.Node(primary)
	if err != nil {
		return 0, err
	}
	return n.Delay(task, e.broker), nil
}

// WorkloadImbalance is the mean absolute deviation of node workloads
func (e *Environment) WorkloadImbalance() float64 {
	state := make(models.State, len(e.nodes))
	for i, n := range e.nodes {
		state[i].Workload = n.TotalWorkload()
	}
	return state.WorkloadImbalance()
}

// AggregateReliability is the product of every node's batch reliability
func (e *Environment) AggregateReliability() float64 {
	total := 1.0
	for _, n := range e.nodes {
		total *= n.Reliability(e.broker)
	}
	return total
}

// ScheduleAll orders every node's queues by deadline
func (e *Environment) ScheduleAll() {
	for _, n := range e.nodes {
		n.ScheduleByDeadline()
	}
}

// DrainAll executes every node with the configured drain policy
func (e *Environment) DrainAll() []*models.Task {
	var executed []*models.Task
	for _, n := range e.nodes {
		executed = append(executed, n.Execute(e.policy)...)
	}
	e.logger.Debug("nodes drained", "tasks", len(executed))
	return executed
}

// Reset empties every node and drops all pending tasks
func (e *Environment) Reset() {
	for _, n := range e.nodes {
		n.Reset()
	}
	e.pending = nil
}
