// Package service bundles the long lived collaborators of the CLI and the
// HTTP API.
package service

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/forecast"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/stage"
	"go-forecast-pipeline/internal/store"
)

// Provider is built once at startup and passed to whoever needs it.
type Provider struct {
	Config   *config.Config
	Log      *zap.SugaredLogger
	Store    *store.Store
	Forecast *forecast.Forecast
	// Revision is the source revision mixed into every scenario hash.
	Revision string
}

// RunRequest selects the stages a run covers.
type RunRequest struct {
	Final     stage.Stage
	Test      bool
	Reference *scenario.Scenario
}

// New opens the origin store named by cfg and wires the forecast operators
// over it.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Provider, error) {
	if cfg == nil {
		return nil, errors.New("service needs a config")
	}
	if log == nil {
		log = logger.Nop()
	}
	st, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &Provider{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Forecast: forecast.New(st, st, log),
		Revision: scenario.SourceRevision(wd),
	}, nil
}

func (p *Provider) Close() error {
	return p.Store.Close()
}

// ScenarioPath is where a scenario named name lives.
func (p *Provider) ScenarioPath(name string) string {
	return filepath.Join(p.Config.Storage.Root, name)
}

// CreateScenario initialises a scenario under the storage root with the
// provider's config.
// It fails with ErrScenarioExists when the name is taken.
func (p *Provider) CreateScenario(name string) (*scenario.Scenario, error) {
	return scenario.Create(p.Config.Storage.Root, name, p.Config, p.Revision, p.Log)
}

// LoadScenario opens a scenario under the storage root by name.
func (p *Provider) LoadScenario(name string) (*scenario.Scenario, error) {
	return scenario.Load(p.ScenarioPath(name), p.Log)
}

// Run drives scn towards req.Final, recording the run in the store.
func (p *Provider) Run(ctx context.Context, scn *scenario.Scenario, req RunRequest) error {
	pl, err := p.Forecast.Pipeline(forecast.RunOptions{
		Scenario:  scn,
		Reference: req.Reference,
		Final:     req.Final,
		Test:      req.Test,
		Tracker:   p.Store,
		Logger:    p.Log,
	})
	if err != nil {
		return err
	}
	return pl.Run(ctx, nil)
}
