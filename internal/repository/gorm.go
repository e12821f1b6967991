package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tanaka-lab/cpmp/pkg/model"
	"gorm.io/gorm"
)

// GormRunHistoryRepository implements RunHistoryRepository using GORM,
// supporting sqlite (the zero-dependency default), mysql, and postgres
// backends through the dialector selected in NewGormDB.
type GormRunHistoryRepository struct {
	db *gorm.DB
}

// NewGormRunHistoryRepository creates a new GormRunHistoryRepository.
func NewGormRunHistoryRepository(db *gorm.DB) *GormRunHistoryRepository {
	return &GormRunHistoryRepository{db: db}
}

// AutoMigrate ensures the solve_run_history table exists.
func (r *GormRunHistoryRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&RunHistory{})
}

// SaveRun records a completed solve.
func (r *GormRunHistoryRepository) SaveRun(ctx context.Context, req *model.SolveRequest, res *model.SolveResult) error {
	record, err := FromModel(req, res)
	if err != nil {
		return fmt.Errorf("failed to marshal run history: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to save run history: %w", err)
	}
	return nil
}

// GetRun retrieves a previously recorded run by its RunID.
func (r *GormRunHistoryRepository) GetRun(ctx context.Context, runID string) (*model.SolveRequest, *model.SolveResult, error) {
	var record RunHistory
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, nil, fmt.Errorf("failed to get run history: %w", err)
	}
	return record.ToModel()
}

// ListRuns returns the most recent runs, newest first.
func (r *GormRunHistoryRepository) ListRuns(ctx context.Context, limit int) ([]*model.SolveResult, error) {
	var records []RunHistory
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}

	results := make([]*model.SolveResult, 0, len(records))
	for _, record := range records {
		_, res, err := record.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", record.RunID, err)
		}
		results = append(results, res)
	}
	return results, nil
}
