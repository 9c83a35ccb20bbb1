package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/casperlundberg/fog-offloader/pkg/models"
)

// ErrNotFound is returned when a run or sweep does not exist
var ErrNotFound = errors.New("record not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateRun creates a new run record
func (r *Repository) CreateRun(run *Run) error {
	return r.db.Create(run).Error
}

// GetRun retrieves a run by ID
func (r *Repository) GetRun(id string) (*Run, error) {
	var run Run
	err := r.db.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns lists runs, newest first; an empty sweepID lists every run
func (r *Repository) ListRuns(sweepID string) ([]Run, error) {
	var runs []Run
	query := r.db.Order("created_at DESC")
	if sweepID != "" {
		query = query.Where("sweep_id = ?", sweepID)
	}
	err := query.Find(&runs).Error
	return runs, err
}

// UpdateRun saves every field of run
func (r *Repository) UpdateRun(run *Run) error {
	return r.db.Save(run).Error
}

// EndRun sets the final status and end time of a run
func (r *Repository) EndRun(id string, status string) error {
	now := time.Now()
	res := r.db.Model(&Run{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"end_time": now,
			"status":   status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// BatchSavePlacements saves multiple placements efficiently
func (r *Repository) BatchSavePlacements(placements []Placement) error {
	if len(placements) == 0 {
		return nil
	}
	return r.db.CreateInBatches(placements, 100).Error
}

// GetPlacements returns the placements of a run in step order.
// A nil outcome returns every placement; limit <= 0 means no limit.
func (r *Repository) GetPlacements(runID string, outcome *models.PlacementOutcome, limit int) ([]Placement, error) {
	var placements []Placement
	query := r.db.Where("run_id = ?", runID)

	if outcome != nil {
		query = query.Where("outcome = ?", int(*outcome))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Order("step ASC").Find(&placements).Error
	return placements, err
}

// SaveLearningSnapshot saves value table statistics
func (r *Repository) SaveLearningSnapshot(snapshot *LearningSnapshot) error {
	return r.db.Create(snapshot).Error
}

// GetLearningSnapshots retrieves the learning curve of a run
func (r *Repository) GetLearningSnapshots(runID string) ([]LearningSnapshot, error) {
	var snapshots []LearningSnapshot
	err := r.db.Where("run_id = ?", runID).
		Order("step ASC").
		Find(&snapshots).Error
	return snapshots, err
}

// SaveSweepPoints stores the points of a sweep
func (r *Repository) SaveSweepPoints(points []SweepPoint) error {
	if len(points) == 0 {
		return nil
	}
	return r.db.CreateInBatches(points, 100).Error
}

// GetSweepPoints retrieves the points of a sweep ordered by grid position
func (r *Repository) GetSweepPoints(sweepID string) ([]SweepPoint, error) {
	var points []SweepPoint
	err := r.db.Where("sweep_id = ?", sweepID).
		Order("nodes ASC, tasks ASC, failure_rate ASC").
		Find(&points).Error
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("sweep %s: %w", sweepID, ErrNotFound)
	}
	return points, nil
}

// GetRunSummary aggregates the stored placements of a run
func (r *Repository) GetRunSummary(runID string) (*RunSummary, error) {
	run, err := r.GetRun(runID)
	if err != nil {
		return nil, err
	}
	summary := &RunSummary{Run: run}

	var stats struct {
		AverageReward  float64
		AverageDelay   float64
		MinReliability float64
		MaxImbalance   float64
	}
	err = r.db.Model(&Placement{}).
		Where("run_id = ?", runID).
		Select("COALESCE(AVG(reward), 0) as average_reward, COALESCE(AVG(delay), 0) as average_delay, " +
			"COALESCE(MIN(aggregate_reliability), 0) as min_reliability, COALESCE(MAX(workload_imbalance), 0) as max_imbalance").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate placements: %w", err)
	}
	summary.AverageReward = stats.AverageReward
	summary.AverageDelay = stats.AverageDelay
	summary.MinReliability = stats.MinReliability
	summary.MaxImbalance = stats.MaxImbalance

	counts := []struct {
		outcome *models.PlacementOutcome
		dst     *int64
	}{
		{nil, &summary.Placements},
		{outcomePtr(models.OutcomeAccepted), &summary.Accepted},
		{outcomePtr(models.OutcomePrimaryRejected), &summary.PrimaryRejected},
		{outcomePtr(models.OutcomeBackupRejected), &summary.BackupRejected},
	}
	for _, c := range counts {
		query := r.db.Model(&Placement{}).Where("run_id = ?", runID)
		if c.outcome != nil {
			query = query.Where("outcome = ?", int(*c.outcome))
		}
		if err := query.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count placements: %w", err)
		}
	}

	return summary, nil
}

// DeleteRun deletes a run and all related data
func (r *Repository) DeleteRun(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&Placement{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&LearningSnapshot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&SweepPoint{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ?", id).Delete(&Run{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func outcomePtr(o models.PlacementOutcome) *models.PlacementOutcome {
	return &o
}
