package simulation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperlundberg/fog-offloader/internal/database"
)

func TestSweepInMemory(t *testing.T) {
	grid := SweepGrid{
		NodeCounts:   []int{2, 4},
		TaskCounts:   []int{5},
		FailureRates: []float64{0.001, 0.1},
	}
	sweep, err := NewSweep(testOptions(0, 3), grid, nil, nil, nil)
	require.NoError(t, err)

	res, err := sweep.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.SweepID)
	require.Len(t, res.Points, 4)

	assert.Equal(t, 2, res.Points[0].Nodes)
	assert.Equal(t, 0.001, res.Points[0].FailureRate)
	assert.Equal(t, 4, res.Points[3].Nodes)
	assert.Equal(t, 0.1, res.Points[3].FailureRate)
	for _, p := range res.Points {
		assert.Equal(t, 5, p.Tasks)
		assert.GreaterOrEqual(t, p.AcceptanceRate, 0.0)
		assert.LessOrEqual(t, p.AcceptanceRate, 1.0)
		assert.GreaterOrEqual(t, p.AggregateReliability, 0.0)
		assert.LessOrEqual(t, p.AggregateReliability, 1.0)
	}
}

func TestSweepPersists(t *testing.T) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	defer db.Close()
	repo := database.NewRepository(db)

	grid := SweepGrid{NodeCounts: []int{3}, TaskCounts: []int{4, 6}, FailureRates: []float64{0.01}}
	sweep, err := NewSweep(testOptions(0, 1), grid, repo, nil, nil)
	require.NoError(t, err)

	res, err := sweep.Run(context.Background())
	require.NoError(t, err)

	points, err := repo.GetSweepPoints(res.SweepID)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 4, points[0].Tasks)
	assert.Equal(t, 6, points[1].Tasks)

	runs, err := repo.ListRuns(res.SweepID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, database.StatusCompleted, run.Status)
	}

	placements, err := repo.GetPlacements(points[1].RunID, nil, 0)
	require.NoError(t, err)
	assert.Len(t, placements, 6)
}

func TestSweepErrors(t *testing.T) {
	_, err := NewSweep(testOptions(0, 1), SweepGrid{NodeCounts: []int{3}}, nil, nil, nil)
	assert.Error(t, err)

	sweep, err := NewSweep(testOptions(0, 1), SweepGrid{
		NodeCounts:   []int{0},
		TaskCounts:   []int{1},
		FailureRates: []float64{0.01},
	}, nil, nil, nil)
	require.NoError(t, err)
	_, err = sweep.Run(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sweep, err = NewSweep(testOptions(0, 1), SweepGrid{
		NodeCounts:   []int{3},
		TaskCounts:   []int{1},
		FailureRates: []float64{0.01},
	}, nil, nil, nil)
	require.NoError(t, err)
	res, err := sweep.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Points)
}
