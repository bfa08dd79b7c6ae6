// Package scope defines the run scopes and the temporal context a phase of
// the forecast runs under.
package scope

import (
	"strings"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/stage"
)

// Scope is the purpose a data pipeline is run for.
type Scope string

const (
	Training   Scope = "training"
	Prediction Scope = "prediction"
	Evaluation Scope = "evaluation"
)

// Parse resolves a scope name.
func Parse(s string) (Scope, error) {
	sc := Scope(strings.ToLower(strings.TrimSpace(s)))
	switch sc {
	case Training, Prediction, Evaluation:
		return sc, nil
	}
	return "", errors.Wrapf(errors.ErrUnknownScope, "%q", s)
}

// FetchedStage is the stage holding the raw inputs fetched for a scope.
func FetchedStage(sc Scope) (stage.Stage, error) {
	switch sc {
	case Training:
		return stage.TrainingFetched, nil
	case Prediction:
		return stage.PredictionFetched, nil
	case Evaluation:
		return stage.PredictionBacktestingFetched, nil
	}
	return 0, errors.Wrapf(errors.ErrUnknownScope, "%q", string(sc))
}
