package database

import (
	"time"
)

// Run status values
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run represents a single simulation run
type Run struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name"`
	SweepID     string     `json:"sweep_id,omitempty" gorm:"index"`
	Seed        int64      `json:"seed"`
	Nodes       int        `json:"nodes"`
	Tasks       int        `json:"tasks"`
	DrainPolicy string     `json:"drain_policy"`
	Config      string     `json:"config"` // JSON configuration
	Status      string     `json:"status"` // running, completed, cancelled, failed
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`

	// Summary, captured before the final drain
	Accepted             int     `json:"accepted"`
	PrimaryRejected      int     `json:"primary_rejected"`
	BackupRejected       int     `json:"backup_rejected"`
	AggregateReliability float64 `json:"aggregate_reliability"`
	WorkloadImbalance    float64 `json:"workload_imbalance"`
	TotalReward          float64 `json:"total_reward"`
	FinalExplorationRate float64 `json:"final_exploration_rate"`
	StateCount           int     `json:"state_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Placement is one observe-place-learn step of a run
type Placement struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	RunID string `json:"run_id" gorm:"index"`
	Step  int    `json:"step" gorm:"index"`

	TaskID      int     `json:"task_id"`
	Load        float64 `json:"load"`
	Size        float64 `json:"size"`
	Length      float64 `json:"length"`
	Deadline    float64 `json:"deadline"`
	PrimaryNode int     `json:"primary_node"`
	BackupNode  int     `json:"backup_node"`
	Outcome     int     `json:"outcome" gorm:"index"` // 1 accepted, 0 primary rejected, -1 backup rejected
	OutcomeName string  `json:"outcome_name"`

	Delay                float64 `json:"delay"`
	Reward               float64 `json:"reward"`
	AggregateReliability float64 `json:"aggregate_reliability"`
	WorkloadImbalance    float64 `json:"workload_imbalance"`
	ExplorationRate      float64 `json:"exploration_rate"`

	CreatedAt time.Time `json:"created_at"`
}

// LearningSnapshot captures the value table statistics at a step
type LearningSnapshot struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	RunID string `json:"run_id" gorm:"index"`
	Step  int    `json:"step"`

	StateCount      int     `json:"state_count"`
	TotalUpdates    int     `json:"total_updates"`
	AverageQValue   float64 `json:"average_q_value"`
	MaxQValue       float64 `json:"max_q_value"`
	MinQValue       float64 `json:"min_q_value"`
	LastDelta       float64 `json:"last_delta"`
	ExplorationRate float64 `json:"exploration_rate"`

	CreatedAt time.Time `json:"created_at"`
}

// SweepPoint is the outcome of one parameter combination of a sweep
type SweepPoint struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	SweepID string `json:"sweep_id" gorm:"index"`
	RunID   string `json:"run_id"`

	Nodes       int     `json:"nodes"`
	Tasks       int     `json:"tasks"`
	FailureRate float64 `json:"failure_rate"`

	AggregateReliability float64 `json:"aggregate_reliability"`
	WorkloadImbalance    float64 `json:"workload_imbalance"`
	AcceptanceRate       float64 `json:"acceptance_rate"`
	TotalReward          float64 `json:"total_reward"`

	CreatedAt time.Time `json:"created_at"`
}

// RunSummary aggregates the stored placements of a run
type RunSummary struct {
	Run             *Run    `json:"run"`
	Placements      int64   `json:"placements"`
	Accepted        int64   `json:"accepted"`
	PrimaryRejected int64   `json:"primary_rejected"`
	BackupRejected  int64   `json:"backup_rejected"`
	AverageReward   float64 `json:"average_reward"`
	AverageDelay    float64 `json:"average_delay"`
	MinReliability  float64 `json:"min_reliability"`
	MaxImbalance    float64 `json:"max_imbalance"`
}
