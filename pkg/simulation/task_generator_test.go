package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskGenerator_Reproducible(t *testing.T) {
	a, err := NewTaskGenerator(DefaultGeneratorConfig(), 42)
	require.NoError(t, err)
	b, err := NewTaskGenerator(DefaultGeneratorConfig(), 42)
	require.NoError(t, err)

	assert.Equal(t, a.Generate(50), b.Generate(50))

	c, err := NewTaskGenerator(DefaultGeneratorConfig(), 43)
	require.NoError(t, err)
	a2, _ := NewTaskGenerator(DefaultGeneratorConfig(), 42)
	assert.NotEqual(t, a2.Generate(50), c.Generate(50))
}

func TestTaskGenerator_RangesAndValidity(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	gen, err := NewTaskGenerator(cfg, 1)
	require.NoError(t, err)

	tasks := gen.Generate(500)
	require.Len(t, tasks, 500)
	for i, task := range tasks {
		assert.Equal(t, i, task.ID)
		assert.NoError(t, task.Validate())
		assert.False(t, task.IsAssigned())

		assert.GreaterOrEqual(t, task.Load, float64(cfg.Load.Min))
		assert.LessOrEqual(t, task.Load, float64(cfg.Load.Max))
		assert.GreaterOrEqual(t, task.Size, float64(cfg.Size.Min))
		assert.LessOrEqual(t, task.Size, float64(cfg.Size.Max))
		assert.GreaterOrEqual(t, task.Length, cfg.Length.Min)
		assert.Less(t, task.Length, cfg.Length.Max)
		assert.GreaterOrEqual(t, task.Deadline, float64(cfg.Deadline.Min))
		assert.LessOrEqual(t, task.Deadline, float64(cfg.Deadline.Max))
	}
}

func TestTaskGenerator_DegenerateRanges(t *testing.T) {
	cfg := GeneratorConfig{
		Load:     IntRange{Min: 10, Max: 10},
		Size:     IntRange{Min: 0, Max: 0},
		Length:   FloatRange{Min: 5, Max: 5},
		Deadline: IntRange{Min: 1, Max: 1},
	}
	gen, err := NewTaskGenerator(cfg, 1)
	require.NoError(t, err)

	task := gen.Next()
	assert.Equal(t, 10.0, task.Load)
	assert.Equal(t, 5.0, task.Length)

	cfg.Deadline = IntRange{Min: 5, Max: 1}
	_, err = NewTaskGenerator(cfg, 1)
	assert.Error(t, err)
}
