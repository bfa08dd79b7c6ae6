package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-forecast-pipeline/internal/errors"
)

func TestCatalogOrder(t *testing.T) {
	names := []string{
		"TRAINING_INIT", "TRAINING_FETCHED", "TRAINING_PREPROCESSED", "TRAINING_TRAINED",
		"PREDICTION_INIT", "PREDICTION_FETCHED", "PREDICTION_PREPROCESSED", "PREDICTION_PREDICTED",
		"PREDICTION_BACKTESTINGFETCHED", "PREDICTION_BACKTESTED",
	}
	all := All()
	require.Len(t, all, len(names))
	for i, s := range all {
		assert.Equal(t, names[i], s.String())
		assert.Equal(t, i, s.Index())
	}
	assert.Equal(t, TrainingInit, First)
	assert.Equal(t, PredictionBacktested, Last)
}

func TestTotalOrder(t *testing.T) {
	for _, a := range All() {
		for _, b := range All() {
			c, err := a.Compare(b)
			require.NoError(t, err)
			assert.Equal(t, a.Index() < b.Index(), c < 0)
			assert.Equal(t, a.Index() == b.Index(), c == 0)
			assert.Equal(t, a.Before(b), b.After(a))
			assert.Equal(t, a.AtMost(b), b.AtLeast(a))
		}
	}
}

func TestIncrement(t *testing.T) {
	s := First
	steps := 0
	for s != Last {
		prev := s
		require.NoError(t, s.Increment())
		assert.Equal(t, prev.Index()+1, s.Index())
		steps++
	}
	assert.Equal(t, len(All())-1, steps)

	err := s.Increment()
	assert.True(t, errors.Is(err, errors.ErrLastStage))
	assert.Equal(t, Last, s)
}

func TestParse(t *testing.T) {
	s, err := Parse("prediction_predicted")
	require.NoError(t, err)
	assert.Equal(t, PredictionPredicted, s)

	_, err = Parse("PREDICTION_DONE")
	assert.True(t, errors.Is(err, errors.ErrUnknownStage))
}

func TestCompareRejectsUnknownOrdinal(t *testing.T) {
	_, err := TrainingInit.Compare(Stage(42))
	assert.True(t, errors.Is(err, errors.ErrUnknownStage))
	_, err = Stage(-1).Compare(TrainingInit)
	assert.True(t, errors.Is(err, errors.ErrUnknownStage))
	assert.Panics(t, func() { Stage(42).Before(TrainingInit) })
}

func TestChildrenAndPhase(t *testing.T) {
	assert.Empty(t, TrainingInit.Children())
	assert.Equal(t, []string{FileModel, FileTrainingContext}, TrainingTrained.Children())
	assert.Equal(t, PhaseTraining, TrainingTrained.Phase())
	assert.Equal(t, PhasePrediction, PredictionInit.Phase())

	assert.True(t, TrainingFetched.Optional(FileProducts))
	assert.False(t, TrainingPreprocessed.Optional(FileDataInput))
	assert.False(t, PredictionBacktestingFetched.Optional(FileTransactions))
	assert.True(t, PredictionBacktested.BacktestOnly())
}

func TestTextRoundTrip(t *testing.T) {
	b, err := PredictionFetched.MarshalText()
	require.NoError(t, err)
	var s Stage
	require.NoError(t, s.UnmarshalText(b))
	assert.Equal(t, PredictionFetched, s)
}
