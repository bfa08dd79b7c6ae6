// Package errors provides error handling for the forecast pipeline.
//
// It re-exports github.com/cockroachdb/errors so that every package gets
// stack traces, wrapping and hints from a single import, and declares the
// sentinel errors the runtime reports. Wrap a sentinel to add context and
// test for it with errors.Is.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New           = crdb.New
	Newf          = crdb.Newf
	Wrap          = crdb.Wrap
	Wrapf         = crdb.Wrapf
	WithStack     = crdb.WithStack
	WithMessage   = crdb.WithMessage
	WithMessagef  = crdb.WithMessagef
	Mark          = crdb.Mark
	CombineErrors = crdb.CombineErrors
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors reported by the runtime. None of them is retried: each one
// ends the current run and leaves the persisted stage at the last completed
// operator.
var (
	// ErrInvalidScenario indicates a scenario directory is missing artifacts
	// required by its persisted stage.
	ErrInvalidScenario = New("invalid scenario")

	// ErrLastStage is returned when incrementing the terminal stage.
	ErrLastStage = New("last stage reached")

	// ErrUnknownStage indicates a stage name or ordinal outside the catalog.
	ErrUnknownStage = New("unknown stage")

	// ErrUnknownScope indicates a scope other than training, prediction or evaluation.
	ErrUnknownScope = New("unknown scope")

	// ErrShapeMismatch indicates a join or a prediction did not produce the expected rows.
	ErrShapeMismatch = New("shape mismatch")

	// ErrMissingProperty indicates the feature engine was run before being fully configured.
	ErrMissingProperty = New("missing pipeline property")

	// ErrTestMismatch indicates a test-mode comparison found a differing artifact.
	ErrTestMismatch = New("test mismatch")

	// ErrUnknownModel indicates a model name missing from the registry.
	ErrUnknownModel = New("unknown model")

	// ErrUnsetAttribute indicates a context attribute that is not defined for this run.
	ErrUnsetAttribute = New("context attribute not set")

	// ErrNotImplemented indicates a granularity level a data source does not declare.
	ErrNotImplemented = New("not implemented")

	// ErrMissingTrainedState indicates a trained transformer replayed without fitted state.
	ErrMissingTrainedState = New("missing trained state")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = New("not found")

	// ErrScenarioExists indicates a scenario directory is already taken.
	ErrScenarioExists = New("scenario already exists")
)
