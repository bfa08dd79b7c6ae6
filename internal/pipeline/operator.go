package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/stage"
)

// Work is the body of an operator. It writes its artifacts into scn and
// returns the context the next operator should receive, or nil to keep the
// current one.
type Work func(ctx context.Context, st stage.Stage, sctx scope.Context, scn *scenario.Scenario) (scope.Context, error)

// Operator is a unit of work that brings a scenario to its target stage.
type Operator struct {
	ID     string
	Target stage.Stage
	work   Work
}

func NewOperator(id string, target stage.Stage, work Work) Operator {
	return Operator{ID: id, Target: target, work: work}
}

// Call runs the work and times it. Errors are returned untouched.
func (o Operator) Call(ctx context.Context, st stage.Stage, sctx scope.Context, scn *scenario.Scenario, log *zap.SugaredLogger) (scope.Context, error) {
	start := time.Now()
	log.Infow("Operator started", logger.FieldOperator, o.ID, logger.FieldStage, st.String())

	out, err := o.work(ctx, st, sctx, scn)

	elapsed := time.Since(start)
	status := model.StatusCompleted
	if err != nil {
		status = model.StatusFailed
	}
	operatorDuration.WithLabelValues(o.ID, status).Observe(elapsed.Seconds())
	log.Infow("Operator finished",
		logger.FieldOperator, o.ID,
		logger.FieldStatus, status,
		logger.FieldDurationMS, elapsed.Milliseconds(),
	)
	return out, err
}
