package forecast

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/stage"
	"go-forecast-pipeline/internal/store"
	"go-forecast-pipeline/internal/table"
)

func testConfig(t *testing.T, runMode string) *config.Config {
	t.Helper()
	v := config.NewViper()
	v.Set("run_info.information_horizon", "2021-06-28")
	v.Set("run_info.run_mode", runMode)
	v.Set("demand_forecast.range_week_sales", 2)
	v.Set("demand_forecast.training_context.time.time_range", 2)
	v.Set("demand_forecast.training_context.min_sales", 1)
	v.Set("demand_forecast.prediction_context.time.time_range", 2)
	v.Set("export.database", true)
	cfg, err := config.LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "forecast.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Seed(context.Background(), store.SeedOptions{
		Start:    time.Date(2021, 5, 17, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2021, 7, 25, 0, 0, 0, 0, time.UTC),
		Products: 4,
		Stores:   2,
		Seed:     1,
	}))
	return s
}

func run(t *testing.T, fc *Forecast, opts RunOptions) error {
	t.Helper()
	p, err := fc.Pipeline(opts)
	require.NoError(t, err)
	return p.Run(context.Background(), nil)
}

func TestBacktestRun(t *testing.T) {
	ctx := context.Background()
	db := seededStore(t)
	root := t.TempDir()
	fc := New(db, db, logger.Nop())

	scn, err := scenario.Create(root, "backtest", testConfig(t, config.RunModeBacktest), "rev", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, run(t, fc, RunOptions{Scenario: scn, Final: stage.Last, Tracker: db}))

	assert.Equal(t, stage.PredictionBacktested, scn.Stage())
	assert.Contains(t, scn.Outputs(), OutputBias)
	assert.Contains(t, scn.Outputs(), OutputSmape)

	preds, err := scn.ReadTable(stage.FilePredictions, stage.PredictionPredicted)
	require.NoError(t, err)
	assert.Equal(t, []string{"product_id", "store_id", "week_id", PredictionColumn}, preds.Columns())
	assert.Equal(t, 4*2*2, preds.Len())
	for _, p := range preds.Floats(PredictionColumn) {
		assert.GreaterOrEqual(t, p, 0.0)
	}

	backtest, err := scn.ReadTable(stage.FileBacktest, stage.PredictionBacktested)
	require.NoError(t, err)
	assert.Equal(t, preds.Len(), backtest.Len())
	assert.True(t, backtest.HasColumn(ActualColumn))

	reloaded, err := scenario.Load(scn.Location(), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, scn.Outputs(), reloaded.Outputs())
	assert.NoError(t, reloaded.Compare(reloaded))

	exported, err := db.Query(ctx, `SELECT COUNT(*) AS n FROM demand_predictions WHERE scenario = 'backtest'`)
	require.NoError(t, err)
	assert.Equal(t, int64(preds.Len()), exported.Value(0, "n"))

	runs, err := db.ListRuns(ctx, "backtest")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.StatusCompleted, runs[0].Status)
	assert.Len(t, runs[0].Operators, 6)

	// a second scenario built from the same data reproduces every artifact
	again, err := scenario.Create(root, "backtest-again", testConfig(t, config.RunModeBacktest), "rev", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, run(t, fc, RunOptions{Scenario: again, Reference: scn, Test: true, Final: stage.Last}))
	assert.Equal(t, scn.Outputs(), again.Outputs())
}

func TestForecastRunStopsAtPrediction(t *testing.T) {
	db := seededStore(t)
	fc := New(db, nil, logger.Nop())

	scn, err := scenario.Create(t.TempDir(), "forecast", testConfig(t, config.RunModeForecast), "rev", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, run(t, fc, RunOptions{Scenario: scn, Final: stage.PredictionFetched}))
	assert.Equal(t, stage.PredictionFetched, scn.Stage())

	// resumes from PREDICTION_FETCHED, the final stage is clamped
	require.NoError(t, run(t, fc, RunOptions{Scenario: scn, Final: stage.Last}))
	assert.Equal(t, stage.PredictionPredicted, scn.Stage())
	assert.True(t, scn.Exists(stage.FilePredictions, stage.PredictionPredicted))
	assert.False(t, scn.Exists(stage.FilePredictions, stage.PredictionBacktestingFetched))
	assert.Empty(t, scn.Outputs())

	_, err = scenario.Load(scn.Location(), logger.Nop())
	assert.NoError(t, err)

	// nothing left to run
	require.NoError(t, run(t, fc, RunOptions{Scenario: scn, Final: stage.Last}))
	assert.Equal(t, stage.PredictionPredicted, scn.Stage())
}

func TestTrainingWindowsDoNotOverlap(t *testing.T) {
	db := seededStore(t)
	fc := New(db, nil, logger.Nop())
	scn, err := scenario.Create(t.TempDir(), "windows", testConfig(t, config.RunModeBacktest), "rev", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, run(t, fc, RunOptions{Scenario: scn, Final: stage.TrainingTrained}))

	data, err := scn.ReadTable(stage.FileDataInput, stage.TrainingPreprocessed)
	require.NoError(t, err)
	require.NotZero(t, data.Len())

	weeks := map[string]bool{}
	for _, w := range data.Column("week_id") {
		weeks[fmt.Sprint(w)] = true
	}
	assert.Equal(t, map[string]bool{"1": true, "2": true}, weeks)

	var salesColumns []string
	for _, c := range data.Columns() {
		suffix, ok := strings.CutPrefix(c, "nb_sold_pieces_")
		if !ok || suffix == table.OpSum {
			continue
		}
		salesColumns = append(salesColumns, c)
		week, err := strconv.Atoi(suffix)
		require.NoError(t, err, c)
		assert.LessOrEqual(t, week, 0, c)
	}
	assert.ElementsMatch(t, []string{"nb_sold_pieces_-1", "nb_sold_pieces_0"}, salesColumns)
}

func TestPredictNeedsTrainedModel(t *testing.T) {
	db := seededStore(t)
	fc := New(db, nil, logger.Nop())
	scn, err := scenario.Create(t.TempDir(), "untrained", testConfig(t, config.RunModeForecast), "rev", logger.Nop())
	require.NoError(t, err)

	_, err = fc.predict(context.Background(), stage.PredictionFetched, nil, scn)
	assert.Error(t, err)
}

func TestSameIndex(t *testing.T) {
	want := table.New([]string{"product_id", "week_id"},
		model.GenericRecord{"product_id": int64(1), "week_id": int64(1)},
		model.GenericRecord{"product_id": int64(2), "week_id": int64(1)},
	)
	got := want.Clone()
	assert.NoError(t, sameIndex(got, want, []string{"product_id", "week_id"}))

	got.Rows()[1]["product_id"] = int64(3)
	assert.True(t, errors.Is(sameIndex(got, want, []string{"product_id", "week_id"}), errors.ErrShapeMismatch))

	short := table.New(want.Columns(), want.Rows()[0])
	assert.True(t, errors.Is(sameIndex(short, want, []string{"product_id"}), errors.ErrShapeMismatch))
}

func TestIDColumns(t *testing.T) {
	assert.Equal(t, []string{"product_id", "store_id"}, idColumns(config.Granularity{
		config.DimProducts: "product_id", config.DimLocation: "store_id", config.DimTime: "week",
	}))
	assert.Equal(t, []string{"product_id"}, idColumns(config.Granularity{config.DimProducts: "product_id"}))
}
