package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/stage"
	"go-forecast-pipeline/internal/table"
)

func testConfig() *config.Config {
	return &config.Config{
		RunInfo: config.RunInfo{InformationHorizon: "2021-06-28", RunMode: config.RunModeForecast},
		DemandForecast: config.DemandForecast{
			Model:          config.Model{Name: "mean"},
			RangeWeekSales: 4,
			NanStrategy:    "strict",
			Granularity:    config.Granularity{config.DimProducts: "product_id"},
			Target:         "nb_sold_pieces",
			TrainingContext: config.ContextConfig{
				Time: config.TimeConfig{Granularity: "week", TimeRange: 8},
			},
			PredictionContext: config.ContextConfig{
				Time: config.TimeConfig{Granularity: "week", TimeRange: 4},
			},
		},
	}
}

func newScenario(t *testing.T, name string) *scenario.Scenario {
	t.Helper()
	scn, err := scenario.Create(t.TempDir(), name, testConfig(), "rev", logger.Nop())
	require.NoError(t, err)
	return scn
}

func dataInput(demand int64) *table.Table {
	return table.New([]string{"product_id", "demand"}, model.GenericRecord{"product_id": int64(1), "demand": demand})
}

type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *counter) work(id string, fn func(scn *scenario.Scenario) error) Work {
	return func(_ context.Context, _ stage.Stage, _ scope.Context, scn *scenario.Scenario) (scope.Context, error) {
		c.mu.Lock()
		if c.calls == nil {
			c.calls = map[string]int{}
		}
		c.calls[id]++
		c.mu.Unlock()
		if fn == nil {
			return nil, nil
		}
		return nil, fn(scn)
	}
}

func writeInput(demand int64) func(*scenario.Scenario) error {
	return func(scn *scenario.Scenario) error {
		return scn.WriteTable(dataInput(demand), stage.FileDataInput, stage.TrainingPreprocessed)
	}
}

type recordingTracker struct {
	runs      []model.RunRecord
	finished  []string
	operators []model.OperatorRecord
}

func (r *recordingTracker) StartRun(_ context.Context, run model.RunRecord) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *recordingTracker) FinishRun(_ context.Context, _ string, status string, _ error) error {
	r.finished = append(r.finished, status)
	return nil
}

func (r *recordingTracker) RecordOperator(_ context.Context, rec model.OperatorRecord) error {
	r.operators = append(r.operators, rec)
	return nil
}

func TestNewValidatesConfig(t *testing.T) {
	scn := newScenario(t, "validate")
	_, err := New(Config{Scenario: scn, Begin: stage.PredictionInit, Final: stage.TrainingInit})
	assert.Error(t, err)

	_, err = New(Config{Scenario: scn, Begin: stage.First, Final: stage.Last, Test: true})
	assert.Error(t, err)

	_, err = New(Config{Scenario: scn, Begin: stage.Stage(42), Final: stage.Last})
	assert.True(t, errors.Is(err, errors.ErrUnknownStage))

	_, err = New(Config{Begin: stage.First, Final: stage.Last})
	assert.Error(t, err)

	var c counter
	_, err = New(Config{Scenario: scn, Begin: stage.First, Final: stage.Last, Operators: []Operator{
		NewOperator("a", stage.TrainingFetched, c.work("a", nil)),
		NewOperator("a", stage.TrainingTrained, c.work("a", nil)),
	}})
	assert.Error(t, err)
}

func TestRunAndRestartIsIdempotent(t *testing.T) {
	scn := newScenario(t, "restart")
	var c counter
	ops := []Operator{
		NewOperator("fetch", stage.TrainingFetched, c.work("fetch", nil)),
		NewOperator("preprocess", stage.TrainingPreprocessed, c.work("preprocess", writeInput(3))),
	}
	tracker := &recordingTracker{}
	p, err := New(Config{Scenario: scn, Begin: scn.Stage(), Final: stage.TrainingPreprocessed, Operators: ops, Tracker: tracker})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), nil))

	assert.Equal(t, map[string]int{"fetch": 1, "preprocess": 1}, c.calls)
	assert.Equal(t, stage.TrainingPreprocessed, scn.Stage())
	assert.NotEmpty(t, scn.RunID())
	assert.Equal(t, []string{model.StatusCompleted}, tracker.finished)
	require.Len(t, tracker.operators, 2)
	assert.Equal(t, model.StatusCompleted, tracker.operators[1].Status)

	reloaded, err := scenario.Load(scn.Location(), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, stage.TrainingPreprocessed, reloaded.Stage())

	p, err = New(Config{Scenario: reloaded, Begin: reloaded.Stage(), Final: stage.TrainingPreprocessed, Operators: ops, Tracker: tracker})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), nil))

	assert.Equal(t, map[string]int{"fetch": 1, "preprocess": 1}, c.calls)
	assert.Equal(t, stage.TrainingPreprocessed, reloaded.Stage())
	require.Len(t, tracker.operators, 4)
	assert.Equal(t, model.StatusSkipped, tracker.operators[2].Status)
	assert.Equal(t, model.StatusSkipped, tracker.operators[3].Status)
}

func TestSkipLawCountsSkippedOperators(t *testing.T) {
	scn := newScenario(t, "skip")
	var c counter
	before := testutil.ToFloat64(operatorsSkipped.WithLabelValues("skip-law-fetch"))
	persisted := testutil.ToFloat64(stagesPersisted.WithLabelValues(stage.PredictionInit.String()))
	p, err := New(Config{Scenario: scn, Begin: stage.TrainingTrained, Final: stage.Last, Operators: []Operator{
		NewOperator("skip-law-fetch", stage.TrainingFetched, c.work("skip-law-fetch", nil)),
		NewOperator("init-prediction", stage.PredictionInit, c.work("init-prediction", nil)),
	}})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), nil))

	assert.Equal(t, map[string]int{"init-prediction": 1}, c.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(operatorsSkipped.WithLabelValues("skip-law-fetch")))
	assert.Equal(t, persisted+1, testutil.ToFloat64(stagesPersisted.WithLabelValues(stage.PredictionInit.String())))
}

func TestRunStopsAtFinalStage(t *testing.T) {
	scn := newScenario(t, "final")
	var c counter
	p, err := New(Config{Scenario: scn, Begin: stage.First, Final: stage.TrainingFetched, Operators: []Operator{
		NewOperator("fetch", stage.TrainingFetched, c.work("fetch", nil)),
		NewOperator("preprocess", stage.TrainingPreprocessed, c.work("preprocess", writeInput(1))),
	}})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), nil))

	assert.Equal(t, map[string]int{"fetch": 1}, c.calls)
	assert.Equal(t, stage.TrainingFetched, scn.Stage())
}

func TestRunWithBeginAtFinalInvokesNothing(t *testing.T) {
	scn := newScenario(t, "begin-final")
	var c counter
	tracker := &recordingTracker{}
	p, err := New(Config{Scenario: scn, Begin: stage.TrainingTrained, Final: stage.TrainingTrained, Tracker: tracker, Operators: []Operator{
		NewOperator("fetch", stage.TrainingFetched, c.work("fetch", nil)),
		NewOperator("train", stage.TrainingTrained, c.work("train", nil)),
		NewOperator("init-prediction", stage.PredictionInit, c.work("init-prediction", nil)),
	}})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), nil))

	assert.Empty(t, c.calls)
	require.Len(t, tracker.operators, 2)
	assert.Equal(t, model.StatusSkipped, tracker.operators[0].Status)
	assert.Equal(t, model.StatusSkipped, tracker.operators[1].Status)
	assert.Equal(t, []string{model.StatusCompleted}, tracker.finished)
	assert.Equal(t, stage.TrainingInit, scn.Stage())
}

func TestFailureLeavesLastCompletedStage(t *testing.T) {
	scn := newScenario(t, "failure")
	var c counter
	boom := errors.New("boom")
	tracker := &recordingTracker{}
	p, err := New(Config{Scenario: scn, Begin: stage.First, Final: stage.Last, Tracker: tracker, Operators: []Operator{
		NewOperator("fetch", stage.TrainingFetched, c.work("fetch", nil)),
		NewOperator("preprocess", stage.TrainingPreprocessed, c.work("preprocess", func(*scenario.Scenario) error { return boom })),
		NewOperator("train", stage.TrainingTrained, c.work("train", nil)),
	}})
	require.NoError(t, err)

	err = p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 0, c.calls["train"])

	reloaded, err := scenario.Load(scn.Location(), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, stage.TrainingFetched, reloaded.Stage())
	assert.Equal(t, []string{model.StatusFailed}, tracker.finished)
	assert.Equal(t, model.StatusFailed, tracker.operators[len(tracker.operators)-1].Status)
}

func TestReturnedContextIsThreaded(t *testing.T) {
	scn := newScenario(t, "threading")
	trainingCtx, err := scope.NewTraining(scn.Config())
	require.NoError(t, err)

	var got scope.Context
	p, err := New(Config{Scenario: scn, Begin: stage.First, Final: stage.Last, Operators: []Operator{
		NewOperator("first", stage.TrainingFetched,
			func(context.Context, stage.Stage, scope.Context, *scenario.Scenario) (scope.Context, error) {
				return trainingCtx, nil
			}),
		NewOperator("second", stage.TrainingPreprocessed,
			func(_ context.Context, st stage.Stage, sctx scope.Context, _ *scenario.Scenario) (scope.Context, error) {
				assert.Equal(t, stage.TrainingFetched, st)
				got = sctx
				return nil, nil
			}),
	}})
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), nil))
	assert.Same(t, trainingCtx, got)
}

func TestTestModeComparesAgainstReference(t *testing.T) {
	ref := newScenario(t, "reference")
	require.NoError(t, ref.WriteTable(dataInput(5), stage.FileDataInput, stage.TrainingPreprocessed))
	ref.SetStage(stage.TrainingPreprocessed)
	require.NoError(t, ref.SaveInfo())

	run := func(name string, demand int64) (*scenario.Scenario, error) {
		scn := newScenario(t, name)
		var c counter
		p, err := New(Config{
			Scenario: scn, Reference: ref, Test: true,
			Begin: stage.First, Final: stage.TrainingPreprocessed,
			Operators: []Operator{
				NewOperator("fetch", stage.TrainingFetched, c.work("fetch", nil)),
				NewOperator("preprocess", stage.TrainingPreprocessed, c.work("preprocess", writeInput(demand))),
			},
		})
		require.NoError(t, err)
		return scn, p.Run(context.Background(), nil)
	}

	scn, err := run("same", 5)
	require.NoError(t, err)
	assert.True(t, scn.Test())

	scn, err = run("different", 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTestMismatch))
	assert.Equal(t, stage.TrainingFetched, scn.Stage())
}
