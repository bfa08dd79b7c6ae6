package pipeline

import (
	"context"

	"go-forecast-pipeline/internal/model"
)

// Tracker records the history of pipeline runs. Tracking failures are
// logged and never fail a run.
type Tracker interface {
	StartRun(ctx context.Context, run model.RunRecord) error
	FinishRun(ctx context.Context, runID, status string, runErr error) error
	RecordOperator(ctx context.Context, rec model.OperatorRecord) error
}

type nopTracker struct{}

func (nopTracker) StartRun(context.Context, model.RunRecord) error            { return nil }
func (nopTracker) FinishRun(context.Context, string, string, error) error     { return nil }
func (nopTracker) RecordOperator(context.Context, model.OperatorRecord) error { return nil }
