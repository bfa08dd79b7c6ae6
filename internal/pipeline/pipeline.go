// Package pipeline runs an ordered list of operators over a scenario,
// skipping every operator whose target stage the scenario already reached.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/stage"
)

// Config configures a pipeline run.
type Config struct {
	Scenario *scenario.Scenario
	// Reference is the scenario compared against in test mode.
	Reference *scenario.Scenario
	Begin     stage.Stage
	Final     stage.Stage
	Test      bool
	Operators []Operator
	Logger    *zap.SugaredLogger
	// Tracker is optional.
	Tracker Tracker
}

type Pipeline struct {
	cfg Config
	log *zap.SugaredLogger
}

// New validates cfg.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Scenario == nil {
		return nil, errors.New("pipeline needs a scenario")
	}
	cmp, err := cfg.Begin.Compare(cfg.Final)
	if err != nil {
		return nil, err
	}
	if cmp > 0 {
		return nil, errors.Newf("begin stage %s is after final stage %s", cfg.Begin, cfg.Final)
	}
	if cfg.Test && cfg.Reference == nil {
		return nil, errors.WithHint(errors.New("test mode needs a reference scenario"),
			"pass --reference with the path of a completed scenario")
	}
	seen := map[string]bool{}
	for _, op := range cfg.Operators {
		if !op.Target.Valid() {
			return nil, errors.Wrapf(errors.ErrUnknownStage, "operator %s targets stage %d", op.ID, int(op.Target))
		}
		if op.work == nil {
			return nil, errors.Newf("operator %s has no work", op.ID)
		}
		if seen[op.ID] {
			return nil, errors.Newf("operator %s is declared twice", op.ID)
		}
		seen[op.ID] = true
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = nopTracker{}
	}
	return &Pipeline{cfg: cfg, log: logger.Component(log, "pipeline").With(logger.FieldScenario, cfg.Scenario.Name())}, nil
}

// Run executes the operators from the begin stage. The scenario stage is
// persisted after every operator, so a failed run can be restarted from
// the scenario's stage and completed operators are skipped.
func (p *Pipeline) Run(ctx context.Context, input scope.Context) (err error) {
	scn := p.cfg.Scenario
	runID := uuid.NewString()
	scn.SetRunID(runID)
	scn.SetTest(p.cfg.Test)
	log := p.log.With(logger.FieldRunID, runID)

	p.track(log, p.cfg.Tracker.StartRun(ctx, model.RunRecord{
		ID:         runID,
		Scenario:   scn.Name(),
		BeginStage: p.cfg.Begin.String(),
		FinalStage: p.cfg.Final.String(),
		Test:       p.cfg.Test,
		Status:     model.StatusRunning,
		CreatedAt:  time.Now().UTC(),
	}))
	defer func() {
		status := model.StatusCompleted
		if err != nil {
			status = model.StatusFailed
			log.Errorw("Pipeline failed", logger.FieldStage, scn.Stage().String(), logger.FieldError, err)
		}
		p.track(log, p.cfg.Tracker.FinishRun(context.WithoutCancel(ctx), runID, status, err))
	}()

	log.Infow("Pipeline started",
		"begin", p.cfg.Begin.String(),
		"final", p.cfg.Final.String(),
		"operators", len(p.cfg.Operators),
		"test", p.cfg.Test,
	)

	current := p.cfg.Begin
	for _, op := range p.cfg.Operators {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "pipeline interrupted")
		}
		if current.AtLeast(op.Target) {
			operatorsSkipped.WithLabelValues(op.ID).Inc()
			log.Infow("Operator skipped", logger.FieldOperator, op.ID,
				logger.FieldStage, current.String(), "target", op.Target.String())
			now := time.Now().UTC()
			p.track(log, p.cfg.Tracker.RecordOperator(ctx, model.OperatorRecord{
				RunID: runID, Operator: op.ID, TargetStage: op.Target.String(),
				Status: model.StatusSkipped, StartTime: now, EndTime: now,
			}))
			continue
		}
		if current.AtLeast(p.cfg.Final) {
			break
		}

		start := time.Now().UTC()
		out, err := op.Call(ctx, current, input, scn, log)
		if err == nil && p.cfg.Test {
			err = scn.Compare(p.cfg.Reference, op.Target)
		}
		rec := model.OperatorRecord{
			RunID: runID, Operator: op.ID, TargetStage: op.Target.String(),
			Status: model.StatusCompleted, StartTime: start, EndTime: time.Now().UTC(),
		}
		rec.Duration = rec.EndTime.Sub(start)
		if err != nil {
			rec.Status, rec.Error = model.StatusFailed, err.Error()
			p.track(log, p.cfg.Tracker.RecordOperator(ctx, rec))
			return errors.Wrapf(err, "operator %s", op.ID)
		}

		scn.SetStage(op.Target)
		if err := scn.SaveInfo(); err != nil {
			return errors.Wrapf(err, "persist stage %s", op.Target)
		}
		stagesPersisted.WithLabelValues(op.Target.String()).Inc()
		p.track(log, p.cfg.Tracker.RecordOperator(ctx, rec))

		current = op.Target
		if out != nil {
			input = out
		}
		if current.AtLeast(p.cfg.Final) {
			break
		}
	}

	if err := scn.Save(); err != nil {
		return errors.Wrap(err, "persist scenario")
	}
	log.Infow("Pipeline finished", logger.FieldStage, scn.Stage().String(), "outputs", len(scn.Outputs()))
	return nil
}

func (p *Pipeline) track(log *zap.SugaredLogger, err error) {
	if err != nil {
		log.Warnw("Run tracking failed", logger.FieldError, err)
	}
}
