package simulation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/casperlundberg/fog-offloader/internal/database"
	"github.com/casperlundberg/fog-offloader/internal/metrics"
)

// SweepGrid lists the parameter values to combine
type SweepGrid struct {
	NodeCounts   []int
	TaskCounts   []int
	FailureRates []float64
}

// Size returns the number of combinations
func (g SweepGrid) Size() int {
	return len(g.NodeCounts) * len(g.TaskCounts) * len(g.FailureRates)
}

// SweepResult holds the points of a sweep in grid order
type SweepResult struct {
	SweepID string                `json:"sweep_id"`
	Points  []database.SweepPoint `json:"points"`
}

// Sweep runs every combination of the grid sequentially, each with a fresh
// environment and controller seeded from base.Seed. A nil repo keeps the
// results in memory only.
type Sweep struct {
	base    Options
	grid    SweepGrid
	repo    *database.Repository
	metrics *metrics.Collector
	logger  hclog.Logger
}

func NewSweep(base Options, grid SweepGrid, repo *database.Repository, collector *metrics.Collector, logger hclog.Logger) (*Sweep, error) {
	if grid.Size() == 0 {
		return nil, fmt.Errorf("sweep grid is empty")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Sweep{
		base:    base,
		grid:    grid,
		repo:    repo,
		metrics: collector,
		logger:  logger,
	}, nil
}

// Run executes the sweep; it stops at the first failing combination or when ctx is done
func (s *Sweep) Run(ctx context.Context) (SweepResult, error) {
	result := SweepResult{
		SweepID: uuid.New().String(),
		Points:  make([]database.SweepPoint, 0, s.grid.Size()),
	}
	logger := s.logger.With("sweep", result.SweepID)
	logger.Info("sweep started", "combinations", s.grid.Size())

	for _, nodes := range s.grid.NodeCounts {
		for _, tasks := range s.grid.TaskCounts {
			for _, rate := range s.grid.FailureRates {
				if err := ctx.Err(); err != nil {
					return result, s.save(result, err)
				}

				opts := s.base
				opts.Name = fmt.Sprintf("sweep n=%d t=%d f=%g", nodes, tasks, rate)
				opts.Environment.NumNodes = nodes
				opts.Environment.FailureRate = rate
				opts.Environment.NodeOverride = nil
				opts.Tasks = tasks

				point, err := s.runOne(ctx, result.SweepID, opts, logger)
				if err != nil {
					return result, s.save(result, fmt.Errorf("%s: %w", opts.Name, err))
				}
				result.Points = append(result.Points, point)
			}
		}
	}

	logger.Info("sweep completed", "points", len(result.Points))
	return result, s.save(result, nil)
}

func (s *Sweep) runOne(ctx context.Context, sweepID string, opts Options, logger hclog.Logger) (database.SweepPoint, error) {
	var recorder Recorder
	if s.repo != nil {
		dc, err := NewDBCollector(s.repo, RunInfo{
			Name:        opts.Name,
			SweepID:     sweepID,
			Seed:        opts.Seed,
			Nodes:       opts.Environment.NumNodes,
			Tasks:       opts.Tasks,
			DrainPolicy: string(opts.Environment.DrainPolicy),
			Config:      opts,
		})
		if err != nil {
			return database.SweepPoint{}, err
		}
		recorder = dc
	}

	runner, err := NewRunner(opts, recorder, s.metrics, logger)
	if err != nil {
		if recorder != nil {
			_ = recorder.Close(Summary{}, database.StatusFailed)
		}
		return database.SweepPoint{}, err
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return database.SweepPoint{}, err
	}

	return database.SweepPoint{
		SweepID:              sweepID,
		RunID:                res.RunID,
		Nodes:                opts.Environment.NumNodes,
		Tasks:                opts.Tasks,
		FailureRate:          opts.Environment.FailureRate,
		AggregateReliability: res.Summary.AggregateReliability,
		WorkloadImbalance:    res.Summary.WorkloadImbalance,
		AcceptanceRate:       res.Summary.AcceptanceRate(),
		TotalReward:          res.Summary.TotalReward,
	}, nil
}

// save persists whatever points were produced and returns runErr unless saving fails
func (s *Sweep) save(result SweepResult, runErr error) error {
	if s.repo == nil || len(result.Points) == 0 {
		return runErr
	}
	if err := s.repo.SaveSweepPoints(result.Points); err != nil {
		if runErr != nil {
			return fmt.Errorf("%w (and failed to save sweep points: %v)", runErr, err)
		}
		return fmt.Errorf("failed to save sweep points: %w", err)
	}
	return runErr
}
