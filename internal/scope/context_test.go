package scope

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/stage"
)

func testConfig(runMode string) *config.Config {
	return &config.Config{
		RunInfo: config.RunInfo{InformationHorizon: "2021-06-28", RunMode: runMode},
		DemandForecast: config.DemandForecast{
			RangeWeekSales: 4,
			TrainingContext: config.ContextConfig{
				Location: config.Filter{Granularity: "store_id", Values: []int{1, 2}},
				Time:     config.TimeConfig{Granularity: "week", TimeRange: 8},
				MinSales: 10,
			},
			PredictionContext: config.ContextConfig{
				Time: config.TimeConfig{Granularity: "week", TimeRange: 4},
			},
		},
	}
}

func date(s string) time.Time {
	t, err := time.Parse(config.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTrainingDates(t *testing.T) {
	tc, err := NewTraining(testConfig(config.RunModeForecast))
	require.NoError(t, err)

	assert.Equal(t, KindTraining, tc.Kind())
	assert.Equal(t, date("2021-05-03"), tc.InformationHorizon())
	assert.Equal(t, date("2021-04-05"), tc.StartDate())
	end, err := tc.EndDate()
	require.NoError(t, err)
	assert.Equal(t, date("2021-06-28"), end)
	lastSales, err := tc.Attr(AttrLastSalesDate)
	require.NoError(t, err)
	assert.Equal(t, date("2021-05-02"), lastSales)
	lastTarget, err := tc.Attr(AttrLastTargetDate)
	require.NoError(t, err)
	assert.Equal(t, date("2021-06-27"), lastTarget)
	assert.Equal(t, "training_context.yaml", tc.FileName())
	assert.Equal(t, stage.TrainingTrained, tc.FileStage())
}

func TestPredictionEndOnlyInBacktest(t *testing.T) {
	pc, err := NewPrediction(testConfig(config.RunModeForecast))
	require.NoError(t, err)
	_, err = pc.EndDate()
	assert.True(t, errors.Is(err, errors.ErrUnsetAttribute))
	_, err = pc.Attr(AttrEndDate)
	assert.True(t, errors.Is(err, errors.ErrUnsetAttribute))
	_, err = pc.Attr(AttrLastTargetDate)
	assert.True(t, errors.Is(err, errors.ErrUnsetAttribute))
	assert.Equal(t, date("2021-05-31"), pc.StartDate())

	bt, err := NewPrediction(testConfig(config.RunModeBacktest))
	require.NoError(t, err)
	end, err := bt.EndDate()
	require.NoError(t, err)
	assert.Equal(t, date("2021-07-26"), end)
	assert.Equal(t, stage.PredictionPredicted, bt.FileStage())
	assert.Equal(t, "prediction_context.yaml", bt.FileName())
}

func TestTimeIndex(t *testing.T) {
	pc, err := NewPrediction(testConfig(config.RunModeForecast))
	require.NoError(t, err)

	weeks, err := pc.TimeIndex("week")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, weeks)

	daysIdx, err := pc.TimeIndex("day")
	require.NoError(t, err)
	assert.Len(t, daysIdx, 28)

	_, err = pc.TimeIndex("month")
	assert.True(t, errors.Is(err, errors.ErrNotImplemented))
}

func TestSaveLoadEqual(t *testing.T) {
	dir := t.TempDir()
	tc, err := NewTraining(testConfig(config.RunModeBacktest))
	require.NoError(t, err)

	path := filepath.Join(dir, tc.FileName())
	require.NoError(t, Save(tc, path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.IsType(t, &TrainingContext{}, loaded)
	assert.True(t, Equal(tc, loaded))

	other := testConfig(config.RunModeBacktest)
	other.DemandForecast.TrainingContext.MinSales = 11
	changed, err := NewTraining(other)
	require.NoError(t, err)
	assert.False(t, Equal(tc, changed))

	pc, err := NewPrediction(testConfig(config.RunModeForecast))
	require.NoError(t, err)
	require.NoError(t, Save(pc, filepath.Join(dir, pc.FileName())))
	loadedPC, err := Load(filepath.Join(dir, pc.FileName()))
	require.NoError(t, err)
	assert.IsType(t, &PredictionContext{}, loadedPC)
	assert.True(t, Equal(pc, loadedPC))
	assert.False(t, Equal(tc, pc))
	assert.False(t, Equal(tc, nil))
}

func TestParseScope(t *testing.T) {
	sc, err := Parse("Evaluation")
	require.NoError(t, err)
	assert.Equal(t, Evaluation, sc)

	_, err = Parse("serving")
	assert.True(t, errors.Is(err, errors.ErrUnknownScope))

	st, err := FetchedStage(Evaluation)
	require.NoError(t, err)
	assert.Equal(t, stage.PredictionBacktestingFetched, st)

	_, err = FetchedStage(Scope("serving"))
	assert.True(t, errors.Is(err, errors.ErrUnknownScope))
}
