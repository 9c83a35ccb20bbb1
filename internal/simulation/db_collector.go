package simulation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casperlundberg/fog-offloader/internal/database"
	"github.com/casperlundberg/fog-offloader/pkg/learning"
)

// Recorder receives the progress of one run
type Recorder interface {
	RunID() string
	RecordStep(step StepRecord) error
	RecordLearning(step int, stats learning.Stats) error
	Close(summary Summary, status string) error
}

// RunInfo describes a run when its record is created
type RunInfo struct {
	Name        string
	SweepID     string
	Seed        int64
	Nodes       int
	Tasks       int
	DrainPolicy string
	Config      interface{} // stored as JSON
}

// NopRecorder discards everything; it still hands out a run ID
type NopRecorder struct {
	id string
}

func NewNopRecorder() *NopRecorder {
	return &NopRecorder{id: uuid.New().String()}
}

func (n *NopRecorder) RunID() string                            { return n.id }
func (n *NopRecorder) RecordStep(StepRecord) error              { return nil }
func (n *NopRecorder) RecordLearning(int, learning.Stats) error { return nil }
func (n *NopRecorder) Close(Summary, string) error              { return nil }

// DBCollector buffers step records and stores them in the database
type DBCollector struct {
	repo       *database.Repository
	runID      string
	buffer     []database.Placement
	bufferSize int
	lastFlush  time.Time
}

// NewDBCollector creates the run record and returns a collector for it
func NewDBCollector(repo *database.Repository, info RunInfo) (*DBCollector, error) {
	configJSON := ""
	if info.Config != nil {
		data, err := json.Marshal(info.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to encode run config: %w", err)
		}
		configJSON = string(data)
	}

	run := &database.Run{
		ID:          uuid.New().String(),
		Name:        info.Name,
		SweepID:     info.SweepID,
		Seed:        info.Seed,
		Nodes:       info.Nodes,
		Tasks:       info.Tasks,
		DrainPolicy: info.DrainPolicy,
		Config:      configJSON,
		Status:      database.StatusRunning,
		StartTime:   time.Now(),
	}
	if err := repo.CreateRun(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return &DBCollector{
		repo:       repo,
		runID:      run.ID,
		buffer:     make([]database.Placement, 0, 100),
		bufferSize: 100,
		lastFlush:  time.Now(),
	}, nil
}

// RunID returns the ID of the run record
func (dc *DBCollector) RunID() string {
	return dc.runID
}

// RecordStep buffers one placement and flushes when the buffer is full
func (dc *DBCollector) RecordStep(step StepRecord) error {
	dc.buffer = append(dc.buffer, database.Placement{
		RunID:                dc.runID,
		Step:                 step.Step,
		TaskID:               step.Task.ID,
		Load:                 step.Task.Load,
		Size:                 step.Task.Size,
		Length:               step.Task.Length,
		Deadline:             step.Task.Deadline,
		PrimaryNode:          step.Action.Primary,
		BackupNode:           step.Action.Backup,
		Outcome:              int(step.Outcome),
		OutcomeName:          step.Outcome.String(),
		Delay:                step.Delay,
		Reward:               step.Reward,
		AggregateReliability: step.AggregateReliability,
		WorkloadImbalance:    step.WorkloadImbalance,
		ExplorationRate:      step.ExplorationRate,
		CreatedAt:            time.Now(),
	})

	if len(dc.buffer) >= dc.bufferSize || time.Since(dc.lastFlush) > 5*time.Second {
		return dc.flush()
	}
	return nil
}

// RecordLearning stores value table statistics
func (dc *DBCollector) RecordLearning(step int, stats learning.Stats) error {
	return dc.repo.SaveLearningSnapshot(&database.LearningSnapshot{
		RunID:           dc.runID,
		Step:            step,
		StateCount:      stats.StateCount,
		TotalUpdates:    stats.TotalUpdates,
		AverageQValue:   stats.AverageQValue,
		MaxQValue:       stats.MaxQValue,
		MinQValue:       stats.MinQValue,
		LastDelta:       stats.LastDelta,
		ExplorationRate: stats.ExplorationRate,
		CreatedAt:       stats.LastUpdated,
	})
}

func (dc *DBCollector) flush() error {
	if len(dc.buffer) == 0 {
		return nil
	}
	if err := dc.repo.BatchSavePlacements(dc.buffer); err != nil {
		return fmt.Errorf("failed to save placements: %w", err)
	}
	dc.buffer = dc.buffer[:0]
	dc.lastFlush = time.Now()
	return nil
}

// Close flushes remaining placements, stores the summary and sets the final status
func (dc *DBCollector) Close(summary Summary, status string) error {
	if err := dc.flush(); err != nil {
		return err
	}

	run, err := dc.repo.GetRun(dc.runID)
	if err != nil {
		return err
	}
	run.Accepted = summary.Accepted
	run.PrimaryRejected = summary.PrimaryRejected
	run.BackupRejected = summary.BackupRejected
	run.AggregateReliability = summary.AggregateReliability
	run.WorkloadImbalance = summary.WorkloadImbalance
	run.TotalReward = summary.TotalReward
	run.FinalExplorationRate = summary.FinalExplorationRate
	run.StateCount = summary.StateCount
	if err := dc.repo.UpdateRun(run); err != nil {
		return fmt.Errorf("failed to store run summary: %w", err)
	}

	return dc.repo.EndRun(dc.runID, status)
}
