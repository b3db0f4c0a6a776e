package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/youpoison/YM-Logs-API/internal/daterange"
)

// RunStatus is the outcome of an export run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// ExportRun is one row of the run journal.
type ExportRun struct {
	ID          string    `gorm:"primaryKey;size:36"`
	RunID       string    `gorm:"size:36;index"`
	Project     string    `gorm:"size:128;index:idx_export_runs_project_source"`
	Source      string    `gorm:"size:16;index:idx_export_runs_project_source"`
	Destination string    `gorm:"size:255"`
	Date1       string    `gorm:"size:10"`
	Date2       string    `gorm:"size:10"`
	Rows        int       `gorm:"not null;default:0"`
	Status      RunStatus `gorm:"size:16;index"`
	Error       string    `gorm:"type:text"`
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (ExportRun) TableName() string {
	return "ym_export_runs"
}

// RecordRun stores run, assigning an ID when it has none.
func (s *Store) RecordRun(ctx context.Context, run *ExportRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to record export run: %w", err)
	}
	return nil
}

// LastLoaded returns the last day exported successfully for project and source, or
// the zero time when nothing was exported yet.
func (s *Store) LastLoaded(ctx context.Context, project, source string) (time.Time, error) {
	var run ExportRun
	err := s.db.WithContext(ctx).
		Where("project = ? AND source = ? AND status = ?", project, source, RunSucceeded).
		Order("date2 DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read run journal: %w", err)
	}
	return daterange.Parse(run.Date2)
}

// Runs lists the journal of project, newest first.
func (s *Store) Runs(ctx context.Context, project string, limit int) ([]ExportRun, error) {
	var runs []ExportRun
	q := s.db.WithContext(ctx).Where("project = ?", project).Order("finished_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to read run journal: %w", err)
	}
	return runs, nil
}
