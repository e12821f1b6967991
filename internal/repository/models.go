// Package repository provides database abstraction for the cpmp solve
// history service.
package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/tanaka-lab/cpmp/pkg/model"
)

// RunHistory represents the solve_run_history table: one row per
// completed Solve call, request and result flattened together for easy
// querying.
type RunHistory struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID          string    `gorm:"column:run_id;type:varchar(64);uniqueIndex"`
	InputPath      string    `gorm:"column:input_path;type:varchar(512)"`
	NumStack       int       `gorm:"column:num_stack"`
	StackHeight    int       `gorm:"column:stack_height"`
	NumBlock       int       `gorm:"column:num_block"`
	TimeLimitSec   int       `gorm:"column:time_limit_sec"`
	Status         string    `gorm:"column:status;type:varchar(32)"`
	NumRelocation  int       `gorm:"column:num_relocation"`
	Relocations    JSONField `gorm:"column:relocations;type:json"`
	NodesVisited   int64     `gorm:"column:nodes_visited"`
	ElapsedMillis  int64     `gorm:"column:elapsed_millis"`
	SubmittedAt    time.Time `gorm:"column:submitted_at"`
	CompletedAt    time.Time `gorm:"column:completed_at;autoCreateTime"`
}

// TableName returns the table name for RunHistory.
func (RunHistory) TableName() string {
	return "solve_run_history"
}

// FromModel populates a RunHistory row from a request/result pair.
func FromModel(req *model.SolveRequest, res *model.SolveResult) (*RunHistory, error) {
	relocJSON, err := json.Marshal(res.Relocations)
	if err != nil {
		return nil, err
	}
	return &RunHistory{
		RunID:         req.RunID,
		InputPath:     req.InputPath,
		NumStack:      req.NumStack,
		StackHeight:   req.StackHeight,
		NumBlock:      req.NumBlock,
		TimeLimitSec:  req.TimeLimitSec,
		Status:        res.Status,
		NumRelocation: res.NumRelocation,
		Relocations:   relocJSON,
		NodesVisited:  res.NodesVisited,
		ElapsedMillis: res.ElapsedMillis,
		SubmittedAt:   req.SubmittedAt,
		CompletedAt:   res.CompletedAt,
	}, nil
}

// ToModel splits a RunHistory row back into its request/result halves.
func (h *RunHistory) ToModel() (*model.SolveRequest, *model.SolveResult, error) {
	req := &model.SolveRequest{
		RunID:       h.RunID,
		InputPath:   h.InputPath,
		NumStack:    h.NumStack,
		StackHeight: h.StackHeight,
		NumBlock:    h.NumBlock,
		TimeLimitSec: h.TimeLimitSec,
		SubmittedAt: h.SubmittedAt,
	}
	res := &model.SolveResult{
		RunID:         h.RunID,
		Status:        h.Status,
		NumRelocation: h.NumRelocation,
		NodesVisited:  h.NodesVisited,
		ElapsedMillis: h.ElapsedMillis,
		CompletedAt:   h.CompletedAt,
	}
	if h.Relocations != nil {
		if err := json.Unmarshal(h.Relocations, &res.Relocations); err != nil {
			return nil, nil, err
		}
	}
	return req, res, nil
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
