// Package stage defines the ordered catalog of pipeline stages and the
// artifacts each stage is expected to leave in a scenario directory.
package stage

import (
	"strings"

	"go-forecast-pipeline/internal/errors"
)

// Stage is a position in the global stage catalog. Stages compare by index
// only; the zero value is TrainingInit.
type Stage int

const (
	TrainingInit Stage = iota
	TrainingFetched
	TrainingPreprocessed
	TrainingTrained
	PredictionInit
	PredictionFetched
	PredictionPreprocessed
	PredictionPredicted
	PredictionBacktestingFetched
	PredictionBacktested
)

// Phase directories.
const (
	PhaseTraining   = "training"
	PhasePrediction = "prediction"
)

// Artifact file names.
const (
	FileProducts          = "products.csv"
	FileTransactions      = "transactions.csv"
	FileDataInput         = "data_input.csv"
	FileModel             = "demand.model"
	FileTrainingContext   = "training_context.yaml"
	FilePredictions       = "demand_predictions.csv"
	FilePredictionContext = "prediction_context.yaml"
	FileBacktest          = "demand_backtest.csv"
)

type entry struct {
	name     string
	phase    string
	children []string
}

var catalog = []entry{
	{"TRAINING_INIT", PhaseTraining, nil},
	{"TRAINING_FETCHED", PhaseTraining, []string{FileProducts, FileTransactions}},
	{"TRAINING_PREPROCESSED", PhaseTraining, []string{FileDataInput}},
	{"TRAINING_TRAINED", PhaseTraining, []string{FileModel, FileTrainingContext}},
	{"PREDICTION_INIT", PhasePrediction, nil},
	{"PREDICTION_FETCHED", PhasePrediction, []string{FileProducts, FileTransactions}},
	{"PREDICTION_PREPROCESSED", PhasePrediction, []string{FileDataInput}},
	{"PREDICTION_PREDICTED", PhasePrediction, []string{FilePredictions, FilePredictionContext}},
	{"PREDICTION_BACKTESTINGFETCHED", PhasePrediction, []string{FilePredictions, FileTransactions}},
	{"PREDICTION_BACKTESTED", PhasePrediction, []string{FileBacktest}},
}

// First and Last bound the catalog.
const (
	First = TrainingInit
	Last  = PredictionBacktested
)

// All returns every stage in catalog order.
func All() []Stage {
	out := make([]Stage, len(catalog))
	for i := range catalog {
		out[i] = Stage(i)
	}
	return out
}

// Parse resolves a stage name. Matching is case-insensitive.
func Parse(name string) (Stage, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i, e := range catalog {
		if e.name == n {
			return Stage(i), nil
		}
	}
	return 0, errors.Wrapf(errors.ErrUnknownStage, "%q", name)
}

// Valid reports whether s is a catalog ordinal.
func (s Stage) Valid() bool {
	return s >= First && s <= Last
}

// Index is the stage's position in the catalog.
func (s Stage) Index() int { return int(s) }

func (s Stage) String() string {
	if !s.Valid() {
		return "UNKNOWN"
	}
	return catalog[s].name
}

// Phase is the parent directory of the stage inside a scenario.
func (s Stage) Phase() string {
	if !s.Valid() {
		return ""
	}
	return catalog[s].phase
}

// Children lists the artifact files a completed stage must contain.
func (s Stage) Children() []string {
	if !s.Valid() {
		return nil
	}
	out := make([]string, len(catalog[s].children))
	copy(out, catalog[s].children)
	return out
}

// Fetched reports whether the stage holds raw inputs pulled from the origin.
func (s Stage) Fetched() bool {
	return s == TrainingFetched || s == PredictionFetched
}

// BacktestOnly reports whether the stage only exists in backtest runs.
func (s Stage) BacktestOnly() bool {
	return s == PredictionBacktestingFetched || s == PredictionBacktested
}

// Optional reports whether a child file may be absent from a valid scenario.
// Raw input tables of the fetched stages are optional.
func (s Stage) Optional(file string) bool {
	return s.Fetched() && strings.HasSuffix(file, ".csv")
}

// Compare orders two stages. Both operands must belong to the catalog.
func (s Stage) Compare(o Stage) (int, error) {
	if !s.Valid() {
		return 0, errors.Wrapf(errors.ErrUnknownStage, "ordinal %d", int(s))
	}
	if !o.Valid() {
		return 0, errors.Wrapf(errors.ErrUnknownStage, "ordinal %d", int(o))
	}
	switch {
	case s < o:
		return -1, nil
	case s > o:
		return 1, nil
	}
	return 0, nil
}

func (s Stage) mustCompare(o Stage) int {
	c, err := s.Compare(o)
	if err != nil {
		panic(errors.AssertionFailedf("stage comparison: %v", err))
	}
	return c
}

// Before reports s < o. It panics on operands outside the catalog.
func (s Stage) Before(o Stage) bool { return s.mustCompare(o) < 0 }

// After reports s > o. It panics on operands outside the catalog.
func (s Stage) After(o Stage) bool { return s.mustCompare(o) > 0 }

// AtLeast reports s >= o. It panics on operands outside the catalog.
func (s Stage) AtLeast(o Stage) bool { return s.mustCompare(o) >= 0 }

// AtMost reports s <= o. It panics on operands outside the catalog.
func (s Stage) AtMost(o Stage) bool { return s.mustCompare(o) <= 0 }

// Increment advances s to the next stage in the catalog.
func (s *Stage) Increment() error {
	if !s.Valid() {
		return errors.Wrapf(errors.ErrUnknownStage, "ordinal %d", int(*s))
	}
	if *s == Last {
		return errors.Wrapf(errors.ErrLastStage, "cannot increment %s", s)
	}
	*s++
	return nil
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Wrapf(errors.ErrUnknownStage, "ordinal %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
