// Package repository provides database abstraction for the cpmp solve
// history: the run log of past premarshalling instances and their
// solutions, recorded when the CLI is invoked with --save-history.
package repository

import (
	"context"

	"github.com/tanaka-lab/cpmp/pkg/model"
)

// RunHistoryRepository persists SolveRequest/SolveResult pairs and allows
// later lookup, e.g. by a "cpmp history" inspection command or a
// dashboard built on top of the same database.
type RunHistoryRepository interface {
	// SaveRun records a completed solve, request and result together.
	SaveRun(ctx context.Context, req *model.SolveRequest, res *model.SolveResult) error

	// GetRun retrieves a previously recorded run by its RunID.
	GetRun(ctx context.Context, runID string) (*model.SolveRequest, *model.SolveResult, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]*model.SolveResult, error)
}
