package simulation

import (
	"fmt"
	"math/rand"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

// IntRange is an inclusive integer range
type IntRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// FloatRange is a half-open [Min, Max) range
type FloatRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// GeneratorConfig defines the distribution of generated tasks
type GeneratorConfig struct {
	Load     IntRange   `json:"load" yaml:"load"`
	Size     IntRange   `json:"size" yaml:"size"`
	Length   FloatRange `json:"length" yaml:"length"`
	Deadline IntRange   `json:"deadline" yaml:"deadline"`
}

// DefaultGeneratorConfig returns the task distribution of the reference experiment
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Load:     IntRange{Min: 50, Max: 300},
		Size:     IntRange{Min: 100, Max: 1000},
		Length:   FloatRange{Min: 1e9, Max: 5e9},
		Deadline: IntRange{Min: 100, Max: 5000},
	}
}

// Validate validates the generator ranges
func (c GeneratorConfig) Validate() error {
	var errs models.ValidationErrors

	errs.AddIf(c.Load.Min < 0 || c.Load.Max < c.Load.Min, "Load", c.Load, "Load range must be non-negative and ordered")
	errs.AddIf(c.Size.Min < 0 || c.Size.Max < c.Size.Min, "Size", c.Size, "Size range must be non-negative and ordered")
	errs.AddIf(c.Length.Min <= 0 || c.Length.Max < c.Length.Min, "Length", c.Length, "Length range must be positive and ordered")
	errs.AddIf(c.Deadline.Min <= 0 || c.Deadline.Max < c.Deadline.Min, "Deadline", c.Deadline, "Deadline range must be positive and ordered")

	if errs.HasErrors() {
		return fmt.Errorf("invalid generator config: %w", errs)
	}
	return nil
}

// TaskGenerator produces a reproducible random task stream
type TaskGenerator struct {
	config GeneratorConfig
	random *rand.Rand
	nextID int
}

// NewTaskGenerator creates a generator seeded with seed
func NewTaskGenerator(config GeneratorConfig, seed int64) (*TaskGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &TaskGenerator{
		config: config,
		random: rand.New(rand.NewSource(seed)),
	}, nil
}

// Next returns the next task; ids are sequential from 0
func (tg *TaskGenerator) Next() models.Task {
	t := models.Task{
		ID:       tg.nextID,
		Load:     float64(tg.intIn(tg.config.Load)),
		Size:     float64(tg.intIn(tg.config.Size)),
		Length:   tg.config.Length.Min + tg.random.Float64()*(tg.config.Length.Max-tg.config.Length.Min),
		Deadline: float64(tg.intIn(tg.config.Deadline)),
		Primary:  models.Unassigned,
		Backup:   models.Unassigned,
	}
	tg.nextID++
	return t
}

// Generate returns the next n tasks
func (tg *TaskGenerator) Generate(n int) []models.Task {
	tasks := make([]models.Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, tg.Next())
	}
	return tasks
}

func (tg *TaskGenerator) intIn(r IntRange) int {
	return r.Min + tg.random.Intn(r.Max-r.Min+1)
}
