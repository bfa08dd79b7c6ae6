package forecast

import (
	"go.uber.org/zap"

	"go-forecast-pipeline/internal/pipeline"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/stage"
)

// RunOptions selects what a demand forecast run does.
type RunOptions struct {
	Scenario  *scenario.Scenario
	Reference *scenario.Scenario
	Final     stage.Stage
	Test      bool
	Tracker   pipeline.Tracker
	Logger    *zap.SugaredLogger
}

// Pipeline builds the demand forecast pipeline over opts.Scenario. The run
// resumes from the scenario's stage. Outside backtest mode the final stage
// is clamped to PREDICTION_PREDICTED.
func (f *Forecast) Pipeline(opts RunOptions) (*pipeline.Pipeline, error) {
	final := opts.Final
	if opts.Scenario != nil && !opts.Scenario.Config().IsBacktest() && final.Valid() && final.After(stage.PredictionPredicted) {
		f.log.Infow("Not a backtest run, stopping after prediction", "requested", final.String())
		final = stage.PredictionPredicted
	}
	begin := stage.First
	if opts.Scenario != nil {
		begin = opts.Scenario.Stage()
	}
	if final.Valid() && begin.Valid() && begin.After(final) {
		// nothing left to do: run from the final stage so every operator skips
		begin = final
	}
	return pipeline.New(pipeline.Config{
		Scenario:  opts.Scenario,
		Reference: opts.Reference,
		Begin:     begin,
		Final:     final,
		Test:      opts.Test,
		Operators: f.Operators(),
		Logger:    opts.Logger,
		Tracker:   opts.Tracker,
	})
}
