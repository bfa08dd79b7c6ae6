package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/table"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "forecast.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedOptions() SeedOptions {
	return SeedOptions{
		Start:    time.Date(2021, 5, 3, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2021, 5, 16, 0, 0, 0, 0, time.UTC),
		Products: 3,
		Stores:   2,
		Seed:     7,
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a, b := openStore(t), openStore(t)
	require.NoError(t, a.Seed(ctx, seedOptions()))
	require.NoError(t, b.Seed(ctx, seedOptions()))

	counts, err := a.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts["products"])
	assert.Equal(t, 2, counts["stores"])
	assert.Greater(t, counts["transactions"], 0)

	q := `SELECT date, product_id, store_id, nb_sold_pieces FROM transactions`
	ta, err := a.Query(ctx, q)
	require.NoError(t, err)
	tb, err := b.Query(ctx, q)
	require.NoError(t, err)
	assert.NoError(t, table.SetEqual(ta, tb))

	// seeding again replaces the data set
	require.NoError(t, a.Seed(ctx, seedOptions()))
	again, err := a.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts, again)
}

func TestSeedRejectsBadOptions(t *testing.T) {
	s := openStore(t)
	opts := seedOptions()
	opts.Products = 0
	assert.Error(t, s.Seed(context.Background(), opts))

	opts = seedOptions()
	opts.End = opts.Start.AddDate(0, 0, -1)
	assert.Error(t, s.Seed(context.Background(), opts))
}

func TestQueryNormalizesValues(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Seed(ctx, seedOptions()))

	out, err := s.Query(ctx, `SELECT date, product_id, nb_sold_pieces FROM transactions
		WHERE date BETWEEN '2021-05-10' AND '2021-05-16' ORDER BY date LIMIT 1`)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, []string{"date", "product_id", "nb_sold_pieces"}, out.Columns())
	assert.IsType(t, "", out.Value(0, "date"))
	assert.IsType(t, int64(0), out.Value(0, "product_id"))
	assert.Equal(t, "2021-05-10", out.Value(0, "date"))

	products, err := s.Query(ctx, `SELECT product_id, gross_price FROM products ORDER BY product_id`)
	require.NoError(t, err)
	assert.IsType(t, float64(0), products.Value(0, "gross_price"))

	_, err = s.Query(ctx, `SELECT * FROM nowhere`)
	assert.Error(t, err)
}

func TestRunTracking(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.StartRun(ctx, model.RunRecord{
		ID: "run-1", Scenario: "demo", BeginStage: "TRAINING_INIT", FinalStage: "PREDICTION_PREDICTED",
		Status: model.StatusRunning, CreatedAt: now,
	}))
	require.NoError(t, s.RecordOperator(ctx, model.OperatorRecord{
		RunID: "run-1", Operator: "fetch-train", TargetStage: "TRAINING_FETCHED",
		Status: model.StatusCompleted, StartTime: now, EndTime: now.Add(2 * time.Second), Duration: 2 * time.Second,
	}))
	require.NoError(t, s.RecordOperator(ctx, model.OperatorRecord{
		RunID: "run-1", Operator: "train", TargetStage: "TRAINING_TRAINED",
		Status: model.StatusFailed, StartTime: now, EndTime: now, Error: "boom",
	}))
	require.NoError(t, s.FinishRun(ctx, "run-1", model.StatusFailed, errors.New("boom")))

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, run.Status)
	assert.Equal(t, "boom", run.Error)
	assert.True(t, run.CreatedAt.Equal(now))
	require.Len(t, run.Operators, 2)
	assert.Equal(t, "fetch-train", run.Operators[0].Operator)
	assert.Equal(t, 2*time.Second, run.Operators[0].Duration)
	assert.Equal(t, "boom", run.Operators[1].Error)

	runs, err := s.ListRuns(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].Operators, 2)

	runs, err = s.ListRuns(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = s.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestExportPredictions(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	preds := table.New([]string{"product_id", "week_id", "prediction"},
		model.GenericRecord{"product_id": int64(1), "week_id": int64(1), "prediction": 2.5},
		model.GenericRecord{"product_id": int64(2), "week_id": int64(1), "prediction": 4.0},
	)
	require.NoError(t, s.ExportPredictions(ctx, "demo", "run-1", preds, "prediction"))
	require.NoError(t, s.ExportPredictions(ctx, "demo", "run-2", preds, "prediction"))

	out, err := s.Query(ctx, `SELECT run_id, product_id, store_id, prediction FROM demand_predictions ORDER BY product_id`)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "run-2", out.Value(0, "run_id"))
	assert.Nil(t, out.Value(0, "store_id"))
	assert.Equal(t, 2.5, out.Value(0, "prediction"))

	assert.Error(t, s.ExportPredictions(ctx, "demo", "run-3", preds, "missing"))
}
