package learning

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

// ErrInvalidAction is returned when an action names a node outside the table
var ErrInvalidAction = errors.New("invalid action")

// Config contains the Q-learning hyperparameters
type Config struct {
	NumNodes         int     `yaml:"-"`
	LearningRate     float64 `yaml:"learning_rate"`     // alpha
	DiscountFactor   float64 `yaml:"discount_factor"`   // gamma
	ExplorationRate  float64 `yaml:"exploration_rate"`  // initial epsilon
	ExplorationDecay float64 `yaml:"exploration_decay"` // epsilon multiplier applied after every update
	WorkloadScale    float64 `yaml:"workload_scale"`    // workload -> bucket multiplier
}

// DefaultConfig returns the hyperparameters of the reference agent
func DefaultConfig(numNodes int) Config {
	return Config{
		NumNodes:         numNodes,
		LearningRate:     0.1,
		DiscountFactor:   0.9,
		ExplorationRate:  1.0,
		ExplorationDecay: 0.99,
		WorkloadScale:    10,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	var errs models.ValidationErrors

	errs.AddIf(c.NumNodes <= 0, "NumNodes", c.NumNodes, "NumNodes must be > 0")
	errs.AddIf(!finite(c.LearningRate) || c.LearningRate <= 0 || c.LearningRate > 1, "LearningRate", c.LearningRate,
		"LearningRate must be in (0,1]")
	errs.AddIf(!finite(c.DiscountFactor) || c.DiscountFactor < 0 || c.DiscountFactor > 1, "DiscountFactor", c.DiscountFactor,
		"DiscountFactor must be in [0,1]")
	errs.AddIf(!finite(c.ExplorationRate) || c.ExplorationRate < 0 || c.ExplorationRate > 1, "ExplorationRate", c.ExplorationRate,
		"ExplorationRate must be in [0,1]")
	errs.AddIf(!finite(c.ExplorationDecay) || c.ExplorationDecay <= 0 || c.ExplorationDecay > 1, "ExplorationDecay", c.ExplorationDecay,
		"ExplorationDecay must be in (0,1]")
	errs.AddIf(!finite(c.WorkloadScale) || c.WorkloadScale <= 0, "WorkloadScale", c.WorkloadScale,
		"WorkloadScale must be finite and > 0")

	if errs.HasErrors() {
		return fmt.Errorf("invalid learning config: %w", errs)
	}
	return nil
}

// Action is a (primary, backup) node pair
type Action struct {
	Primary int `json:"primary"`
	Backup  int `json:"backup"`
}

func (a Action) inRange(numNodes int) bool {
	return a.Primary >= 0 && a.Primary < numNodes && a.Backup >= 0 && a.Backup < numNodes
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// StateKey is the discretized composite state used to index the value table
type StateKey string

// Stats provides insights into the Q-learning process
type Stats struct {
	StateCount      int       `json:"state_count"`
	TotalUpdates    int       `json:"total_updates"`
	AverageQValue   float64   `json:"average_q_value"`
	MaxQValue       float64   `json:"max_q_value"`
	MinQValue       float64   `json:"min_q_value"`
	LastDelta       float64   `json:"last_delta"` // |ΔQ| of the latest update
	ExplorationRate float64   `json:"exploration_rate"`
	LearningRate    float64   `json:"learning_rate"`
	DiscountFactor  float64   `json:"discount_factor"`
	LastUpdated     time.Time `json:"last_updated"`
}
