package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/stage"
	"go-forecast-pipeline/internal/table"
)

func testConfig(runMode string) *config.Config {
	return &config.Config{
		RunInfo: config.RunInfo{InformationHorizon: "2021-06-28", RunMode: runMode},
		DemandForecast: config.DemandForecast{
			Model:          config.Model{Name: "mean"},
			RangeWeekSales: 4,
			NanStrategy:    "strict",
			Granularity:    config.Granularity{config.DimProducts: "product_id", config.DimTime: "week"},
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

func newScenario(t *testing.T, root, name, runMode string) *Scenario {
	t.Helper()
	s, err := Create(root, name, testConfig(runMode), "rev1", logger.Nop())
	require.NoError(t, err)
	return s
}

func sample() *table.Table {
	return table.New([]string{"product_id", "demand"},
		map[string]interface{}{"product_id": int64(1), "demand": 2.5},
		map[string]interface{}{"product_id": int64(2), "demand": int64(4)},
	)
}

// fill writes every required artifact of the stages up to st.
func fill(t *testing.T, s *Scenario, upTo stage.Stage) {
	t.Helper()
	for _, st := range stage.All() {
		if st.After(upTo) {
			break
		}
		for _, file := range st.Children() {
			switch filepath.Ext(file) {
			case ".csv":
				require.NoError(t, s.WriteTable(sample(), file, st))
			case ".yaml":
				require.NoError(t, os.WriteFile(s.RelPath(file, st), []byte("kind: test\n"), 0o644))
			default:
				require.NoError(t, s.WriteBlob([]byte{1, 2, 3}, file, st))
			}
		}
	}
	s.SetStage(upTo)
	require.NoError(t, s.SaveInfo())
}

func TestCreateLayout(t *testing.T) {
	root := t.TempDir()
	s := newScenario(t, root, "demo", config.RunModeForecast)

	assert.Equal(t, stage.First, s.Stage())
	assert.Equal(t, filepath.Join(root, "demo"), s.Location())
	assert.NotEmpty(t, s.Hash())
	assert.Equal(t, "rev1", s.SourceRevision())
	for _, f := range []string{FileInfo, FileConfig, FileOutput} {
		assert.FileExists(t, s.Path(f))
	}
	assert.DirExists(t, s.StageDir(stage.PredictionBacktested))
	assert.Equal(t,
		filepath.Join(root, "demo", "training", "TRAINING_TRAINED", stage.FileModel),
		s.RelPath(stage.FileModel, stage.TrainingTrained))

	_, err := Create(root, "demo", testConfig(config.RunModeForecast), "rev1", logger.Nop())
	assert.True(t, errors.Is(err, errors.ErrScenarioExists))
}

func TestConcurrentCreateHasOneWinner(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		exists  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Create(root, "same", testConfig(config.RunModeForecast), "rev1", logger.Nop())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, errors.ErrScenarioExists):
				exists++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, exists)
}

func TestSaveLeavesNoTemporaryFiles(t *testing.T) {
	s := newScenario(t, t.TempDir(), "atomic", config.RunModeForecast)
	s.SetRunID("run-1")
	require.NoError(t, s.SaveInfo())
	s.SetOutput("Bias", 1)
	require.NoError(t, s.SaveOutput())

	entries, err := os.ReadDir(s.Location())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
	loaded, err := Load(s.Location(), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID())
	assert.Equal(t, map[string]float64{"Bias": 1}, loaded.Outputs())
}

func TestHashDependsOnConfigAndRevision(t *testing.T) {
	root := t.TempDir()
	a := newScenario(t, root, "a", config.RunModeForecast)
	b := newScenario(t, root, "b", config.RunModeForecast)
	c := newScenario(t, root, "c", config.RunModeBacktest)
	d, err := Create(root, "d", testConfig(config.RunModeForecast), "rev2", logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.NotEqual(t, a.Hash(), d.Hash())
}

func TestValidationRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := newScenario(t, root, "demo", config.RunModeForecast)
	fill(t, s, stage.PredictionPredicted)
	s.SetOutput("Bias", 1.25)
	require.NoError(t, s.Save())

	loaded, err := Load(s.Location(), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, s.Stage(), loaded.Stage())
	assert.Equal(t, s.Hash(), loaded.Hash())
	assert.Equal(t, s.Outputs(), loaded.Outputs())
	assert.True(t, s.CreatedAt().Equal(loaded.CreatedAt()))
	assert.Equal(t, s.Config().RunInfo, loaded.Config().RunInfo)
	assert.False(t, loaded.Config().DemandForecast.Granularity.Active(config.DimLocation))
	assert.True(t, IsValid(s.Location()))
}

func TestValidationMissingArtifact(t *testing.T) {
	root := t.TempDir()
	s := newScenario(t, root, "demo", config.RunModeForecast)
	fill(t, s, stage.TrainingTrained)
	require.NoError(t, os.Remove(s.RelPath(stage.FileDataInput, stage.TrainingPreprocessed)))

	_, err := Load(s.Location(), logger.Nop())
	assert.True(t, errors.Is(err, errors.ErrInvalidScenario))
	assert.False(t, IsValid(s.Location()))
}

func TestValidationOptionalInputs(t *testing.T) {
	root := t.TempDir()
	s := newScenario(t, root, "demo", config.RunModeForecast)
	fill(t, s, stage.TrainingTrained)
	require.NoError(t, os.Remove(s.RelPath(stage.FileProducts, stage.TrainingFetched)))

	_, err := Load(s.Location(), logger.Nop())
	assert.NoError(t, err)
}

func TestValidationBacktestGating(t *testing.T) {
	root := t.TempDir()

	forecast := newScenario(t, root, "forecast", config.RunModeForecast)
	fill(t, forecast, stage.PredictionPredicted)
	forecast.SetStage(stage.PredictionBacktested)
	require.NoError(t, forecast.SaveInfo())
	_, err := Load(forecast.Location(), logger.Nop())
	assert.NoError(t, err)

	backtest := newScenario(t, root, "backtest", config.RunModeBacktest)
	fill(t, backtest, stage.PredictionPredicted)
	backtest.SetStage(stage.PredictionBacktested)
	require.NoError(t, backtest.SaveInfo())
	_, err = Load(backtest.Location(), logger.Nop())
	assert.True(t, errors.Is(err, errors.ErrInvalidScenario))
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"), logger.Nop())
	assert.True(t, errors.Is(err, errors.ErrInvalidScenario))
}

func TestCompare(t *testing.T) {
	root := t.TempDir()
	a := newScenario(t, root, "a", config.RunModeForecast)
	b := newScenario(t, root, "b", config.RunModeForecast)
	fill(t, a, stage.PredictionPredicted)
	fill(t, b, stage.PredictionPredicted)

	assert.NoError(t, a.Compare(b))
	assert.NoError(t, a.Compare(b, stage.TrainingTrained))

	// Row order does not matter.
	shuffled := table.New([]string{"demand", "product_id"},
		map[string]interface{}{"product_id": int64(2), "demand": int64(4)},
		map[string]interface{}{"product_id": int64(1), "demand": 2.5},
	)
	require.NoError(t, b.WriteTable(shuffled, stage.FilePredictions, stage.PredictionPredicted))
	assert.NoError(t, a.Compare(b, stage.PredictionPredicted))

	// Model blobs are not compared.
	require.NoError(t, b.WriteBlob([]byte{9}, stage.FileModel, stage.TrainingTrained))
	assert.NoError(t, a.Compare(b, stage.TrainingTrained))

	changed := sample()
	changed.Rows()[0]["demand"] = 3.0
	require.NoError(t, b.WriteTable(changed, stage.FilePredictions, stage.PredictionPredicted))
	err := a.Compare(b, stage.PredictionPredicted)
	assert.True(t, errors.Is(err, errors.ErrTestMismatch))
	assert.True(t, errors.Is(a.Compare(b), errors.ErrTestMismatch))

	require.NoError(t, os.WriteFile(b.RelPath(stage.FileTrainingContext, stage.TrainingTrained), []byte("kind: other\n"), 0o644))
	assert.True(t, errors.Is(a.Compare(b, stage.TrainingTrained), errors.ErrTestMismatch))
}

func TestCompareReferenceBehind(t *testing.T) {
	root := t.TempDir()
	a := newScenario(t, root, "a", config.RunModeForecast)
	b := newScenario(t, root, "b", config.RunModeForecast)
	fill(t, a, stage.TrainingTrained)
	fill(t, b, stage.TrainingFetched)

	err := a.Compare(b, stage.TrainingTrained)
	assert.True(t, errors.Is(err, errors.ErrTestMismatch))
}

func TestDelete(t *testing.T) {
	root := t.TempDir()
	s := newScenario(t, root, "demo", config.RunModeForecast)

	require.NoError(t, s.Delete(false))
	assert.DirExists(t, s.Location())

	require.NoError(t, s.Delete(true))
	assert.NoDirExists(t, s.Location())
	assert.NoError(t, s.Delete(true))
}

func TestList(t *testing.T) {
	root := t.TempDir()
	newScenario(t, root, "a", config.RunModeForecast)
	newScenario(t, root, "b", config.RunModeForecast)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "junk"), 0o755))

	list, err := List(root, logger.Nop())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	empty, err := List(filepath.Join(root, "missing"), logger.Nop())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSourceRevisionOutsideRepository(t *testing.T) {
	assert.Equal(t, UnknownRevision, SourceRevision(t.TempDir()))
}
