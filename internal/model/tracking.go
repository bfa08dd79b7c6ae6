package model

import "time"

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// RunRecord represents one pipeline run over a scenario
type RunRecord struct {
	ID         string    `json:"id"`
	Scenario   string    `json:"scenario"`
	BeginStage string    `json:"begin_stage"`
	FinalStage string    `json:"final_stage"`
	Test       bool      `json:"test"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OperatorRecord represents the outcome of one operator inside a run
type OperatorRecord struct {
	RunID       string        `json:"run_id"`
	Operator    string        `json:"operator"`
	TargetStage string        `json:"target_stage"`
	Status      string        `json:"status"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RunDetail bundles a run with its operator outcomes
type RunDetail struct {
	RunRecord
	Operators []OperatorRecord `json:"operators"`
}
