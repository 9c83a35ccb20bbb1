package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/hashicorp/go-hclog"

	"github.com/casperlundberg/fog-offloader/internal/database"
	"github.com/casperlundberg/fog-offloader/internal/metrics"
	"github.com/casperlundberg/fog-offloader/pkg/environment"
	"github.com/casperlundberg/fog-offloader/pkg/learning"
	"github.com/casperlundberg/fog-offloader/pkg/models"
	"github.com/casperlundberg/fog-offloader/pkg/simulation"
)

// Options configures a single run
type Options struct {
	Name          string
	Environment   environment.Config
	Agent         learning.Config
	Generator     simulation.GeneratorConfig
	Tasks         int
	Seed          int64
	SnapshotEvery int // learning snapshot interval in steps; <= 0 means 10
}

// StepRecord is one observe-place-learn iteration
type StepRecord struct {
	Step                 int
	Task                 models.Task
	Action               learning.Action
	Outcome              models.PlacementOutcome
	Delay                float64
	Reward               float64
	AggregateReliability float64 // after placement
	WorkloadImbalance    float64 // after placement
	ExplorationRate      float64 // after the update
	StateCount           int
}

// Summary describes the end state of a run, taken before the final drain
type Summary struct {
	Steps                int     `json:"steps"`
	Accepted             int     `json:"accepted"`
	PrimaryRejected      int     `json:"primary_rejected"`
	BackupRejected       int     `json:"backup_rejected"`
	AggregateReliability float64 `json:"aggregate_reliability"`
	WorkloadImbalance    float64 `json:"workload_imbalance"`
	TotalReward          float64 `json:"total_reward"`
	FinalExplorationRate float64 `json:"final_exploration_rate"`
	StateCount           int     `json:"state_count"`
}

// AcceptanceRate is the share of steps whose task got both a primary and a backup
func (s Summary) AcceptanceRate() float64 {
	if s.Steps == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Steps)
}

// NodeAllocation lists the task IDs queued on a node at the end of a run
type NodeAllocation struct {
	Node    int     `json:"node"`
	Load    float64 `json:"load"`
	Primary []int   `json:"primary"`
	Backup  []int   `json:"backup"`
}

// Result is returned by Runner.Run
type Result struct {
	RunID      string           `json:"run_id"`
	Steps      []StepRecord     `json:"-"`
	Summary    Summary          `json:"summary"`
	Allocation []NodeAllocation `json:"allocation"`
	Drained    int              `json:"drained"`
}

// Runner drives the controller over a generated task stream
type Runner struct {
	opts     Options
	env      *environment.Environment
	agent    *learning.QLearning
	tasks    []models.Task
	recorder Recorder
	metrics  *metrics.Collector
	logger   hclog.Logger
}

// NewRunner builds the environment, the controller and the task stream.
// recorder, collector and logger may be nil.
func NewRunner(opts Options, recorder Recorder, collector *metrics.Collector, logger hclog.Logger) (*Runner, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if recorder == nil {
		recorder = NewNopRecorder()
	}
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = 10
	}
	if opts.Tasks < 0 {
		return nil, fmt.Errorf("task count must be >= 0, got %d", opts.Tasks)
	}

	env, err := environment.New(opts.Environment, logger.Named("environment"))
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}

	opts.Agent.NumNodes = env.NumNodes()
	agent, err := learning.NewQLearning(opts.Agent, rand.New(rand.NewSource(opts.Seed+1)))
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	gen, err := simulation.NewTaskGenerator(opts.Generator, opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create task generator: %w", err)
	}

	return &Runner{
		opts:     opts,
		env:      env,
		agent:    agent,
		tasks:    gen.Generate(opts.Tasks),
		recorder: recorder,
		metrics:  collector,
		logger:   logger.With("run", recorder.RunID()),
	}, nil
}

// Environment exposes the environment for inspection
func (r *Runner) Environment() *environment.Environment { return r.env }

// Agent exposes the controller for inspection
func (r *Runner) Agent() *learning.QLearning { return r.agent }

// Run places every task, then captures the summary and allocation and drains
// the nodes. On cancellation the partial result is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.env.Reset()
	if err := r.env.AddTasks(r.tasks); err != nil {
		return Result{}, r.fail(Summary{}, err)
	}

	r.logger.Info("run started", "tasks", len(r.tasks), "nodes", r.env.NumNodes(), "drain_policy", r.env.DrainPolicy())

	result := Result{
		RunID: r.recorder.RunID(),
		Steps: make([]StepRecord, 0, len(r.tasks)),
	}

	for step := 0; r.env.Pending() > 0; step++ {
		if err := ctx.Err(); err != nil {
			r.finish(&result)
			r.logger.Warn("run cancelled", "step", step)
			if cerr := r.close(result.Summary, database.StatusCancelled); cerr != nil {
				return result, errors.Join(err, cerr)
			}
			return result, err
		}

		rec, err := r.step(step)
		if err != nil {
			return result, r.abort(&result, err)
		}
		result.Steps = append(result.Steps, rec)
		result.Summary.TotalReward += rec.Reward
		countOutcome(&result.Summary, rec.Outcome)

		if err := r.recorder.RecordStep(rec); err != nil {
			return result, r.abort(&result, fmt.Errorf("failed to record step %d: %w", step, err))
		}
		if (step+1)%r.opts.SnapshotEvery == 0 {
			if err := r.recorder.RecordLearning(step, r.agent.Stats()); err != nil {
				return result, r.abort(&result, fmt.Errorf("failed to record learning at step %d: %w", step, err))
			}
		}
	}

	r.finish(&result)
	if n := len(result.Steps); n > 0 && n%r.opts.SnapshotEvery != 0 {
		if err := r.recorder.RecordLearning(len(result.Steps)-1, r.agent.Stats()); err != nil {
			return result, r.fail(result.Summary, err)
		}
	}

	r.logger.Info("run completed",
		"accepted", result.Summary.Accepted,
		"primary_rejected", result.Summary.PrimaryRejected,
		"backup_rejected", result.Summary.BackupRejected,
		"reliability", result.Summary.AggregateReliability,
		"imbalance", result.Summary.WorkloadImbalance,
		"epsilon", result.Summary.FinalExplorationRate)

	if err := r.close(result.Summary, database.StatusCompleted); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) step(step int) (StepRecord, error) {
	state := r.env.Observe()
	action := r.agent.SelectAction(state)

	placement, err := r.env.PlaceTask(action.Primary, action.Backup)
	if err != nil {
		return StepRecord{}, fmt.Errorf("step %d: %w", step, err)
	}
	next := r.env.Observe()

	delay, err := r.env.EstimateDelay(placement.Task, action.Primary)
	if err != nil {
		return StepRecord{}, fmt.Errorf("step %d: %w", step, err)
	}
	reward := r.agent.Reward(state, action, next, delay, placement.Task.Deadline)
	if err := r.agent.UpdateQValue(state, action, reward, next); err != nil {
		return StepRecord{}, fmt.Errorf("step %d: %w", step, err)
	}

	rec := StepRecord{
		Step:                 step,
		Task:                 *placement.Task,
		Action:               action,
		Outcome:              placement.Outcome,
		Delay:                delay,
		Reward:               reward,
		AggregateReliability: next.Reliability(),
		WorkloadImbalance:    next.WorkloadImbalance(),
		ExplorationRate:      r.agent.ExplorationRate(),
		StateCount:           r.agent.StateCount(),
	}

	r.logger.Debug("task placed",
		"step", step,
		"task", rec.Task.ID,
		"primary", action.Primary,
		"backup", action.Backup,
		"outcome", rec.Outcome,
		"reward", reward)

	if r.metrics != nil {
		r.metrics.RecordStep(metrics.Step{
			Outcome:              rec.Outcome,
			Reward:               rec.Reward,
			Delay:                rec.Delay,
			AggregateReliability: rec.AggregateReliability,
			WorkloadImbalance:    rec.WorkloadImbalance,
			ExplorationRate:      rec.ExplorationRate,
			StateCount:           rec.StateCount,
			Pending:              r.env.Pending(),
		})
	}
	return rec, nil
}

// finish orders the queues, captures the summary and allocation, then drains
func (r *Runner) finish(result *Result) {
	r.env.ScheduleAll()

	result.Summary.Steps = len(result.Steps)
	result.Summary.AggregateReliability = r.env.AggregateReliability()
	result.Summary.WorkloadImbalance = r.env.WorkloadImbalance()
	result.Summary.FinalExplorationRate = r.agent.ExplorationRate()
	result.Summary.StateCount = r.agent.StateCount()
	result.Allocation = allocation(r.env)

	result.Drained = len(r.env.DrainAll())
}

func (r *Runner) close(summary Summary, status string) error {
	if r.metrics != nil {
		r.metrics.RecordRunEnd(status)
	}
	if err := r.recorder.Close(summary, status); err != nil {
		return fmt.Errorf("failed to close recorder: %w", err)
	}
	return nil
}

// abort finishes a run interrupted by err and closes it as failed with the
// summary of the steps taken so far
func (r *Runner) abort(result *Result, err error) error {
	r.finish(result)
	return r.fail(result.Summary, err)
}

func (r *Runner) fail(summary Summary, err error) error {
	r.logger.Error("run failed", "error", err)
	if cerr := r.close(summary, database.StatusFailed); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func countOutcome(s *Summary, o models.PlacementOutcome) {
	switch o {
	case models.OutcomeAccepted:
		s.Accepted++
	case models.OutcomePrimaryRejected:
		s.PrimaryRejected++
	case models.OutcomeBackupRejected:
		s.BackupRejected++
	}
}

func allocation(env *environment.Environment) []NodeAllocation {
	nodes := env.Nodes()
	out := make([]NodeAllocation, len(nodes))
	for i, n := range nodes {
		out[i] = NodeAllocation{
			Node:    n.ID(),
			Load:    n.CurrentLoad(),
			Primary: taskIDs(n.PrimaryQueue()),
			Backup:  taskIDs(n.BackupQueue()),
		}
	}
	return out
}

func taskIDs(tasks []*models.Task) []int {
	ids := make([]int, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
