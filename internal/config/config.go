// Package config holds the run configuration of the forecasting pipeline.
package config

import (
	"time"
)

// DateLayout is the layout of every calendar date in configuration and
// persisted context files.
const DateLayout = "2006-01-02"

// Run modes.
const (
	RunModeBacktest = "backtest"
	RunModeForecast = "forecast"
)

// Granularity dimensions, in index order.
const (
	DimProducts = "products"
	DimLocation = "location"
	DimTime     = "time"
)

// Dimensions lists the granularity dimensions in the order index columns
// are derived.
var Dimensions = []string{DimProducts, DimLocation, DimTime}

// Config is the full run configuration. A YAML snapshot of it is stored in
// every scenario.
type Config struct {
	RunInfo        RunInfo        `mapstructure:"run_info" yaml:"run_info"`
	RunParam       RunParam       `mapstructure:"run_param" yaml:"run_param"`
	DemandForecast DemandForecast `mapstructure:"demand_forecast" yaml:"demand_forecast"`
	Storage        Storage        `mapstructure:"storage" yaml:"storage"`
	Database       Database       `mapstructure:"database" yaml:"database"`
	Export         Export         `mapstructure:"export" yaml:"export"`
	Seed           Seed           `mapstructure:"seed" yaml:"seed"`
	Server         Server         `mapstructure:"server" yaml:"server"`
	Log            Log            `mapstructure:"log" yaml:"log"`
}

type RunInfo struct {
	InformationHorizon string `mapstructure:"information_horizon" yaml:"information_horizon" validate:"required,datetime=2006-01-02"`
	RunMode            string `mapstructure:"run_mode" yaml:"run_mode" validate:"required,oneof=backtest forecast"`
}

type RunParam struct {
	RandomSeed         int64 `mapstructure:"random_seed" yaml:"random_seed"`
	UseCrossValidation bool  `mapstructure:"use_cross_validation" yaml:"use_cross_validation"`
	NbFolds            int   `mapstructure:"nb_folds" yaml:"nb_folds" validate:"gte=0"`
}

type Model struct {
	Name   string             `mapstructure:"name" yaml:"name" validate:"required"`
	Params map[string]float64 `mapstructure:"params" yaml:"params,omitempty"`
}

// DemandForecast configures the demand forecasting pipeline.
type DemandForecast struct {
	Model Model `mapstructure:"model" yaml:"model"`
	// Features maps a data source name to the columns kept after aggregation.
	// A source without an entry keeps every column.
	Features          map[string][]string `mapstructure:"features" yaml:"features,omitempty"`
	RangeWeekSales    int                 `mapstructure:"range_week_sales" yaml:"range_week_sales" validate:"gt=0"`
	NanStrategy       string              `mapstructure:"nan_strategy" yaml:"nan_strategy" validate:"oneof=strict zero"`
	Granularity       Granularity         `mapstructure:"granularity" yaml:"granularity" validate:"required"`
	Target            string              `mapstructure:"target" yaml:"target" validate:"required"`
	TrainingContext   ContextConfig       `mapstructure:"training_context" yaml:"training_context"`
	PredictionContext ContextConfig       `mapstructure:"prediction_context" yaml:"prediction_context"`
}

// Granularity maps a dimension to its active level. An empty level marks
// the dimension inactive.
type Granularity map[string]string

// MarshalYAML writes every dimension, inactive ones as empty strings, so
// that a reloaded snapshot does not pick up default levels.
func (g Granularity) MarshalYAML() (interface{}, error) {
	out := make(map[string]string, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = g[d]
	}
	for k, v := range g {
		out[k] = v
	}
	return out, nil
}

// Active reports whether dim has a level selected.
func (g Granularity) Active(dim string) bool {
	return g[dim] != ""
}

type ContextConfig struct {
	Location Filter     `mapstructure:"location" yaml:"location"`
	Products Filter     `mapstructure:"products" yaml:"products"`
	Time     TimeConfig `mapstructure:"time" yaml:"time"`
	MinSales float64    `mapstructure:"min_sales" yaml:"min_sales"`
}

// Filter restricts a dimension to a set of ids. No values means no restriction.
type Filter struct {
	Granularity string `mapstructure:"granularity" yaml:"granularity,omitempty"`
	Values      []int  `mapstructure:"values" yaml:"values,omitempty"`
}

type TimeConfig struct {
	Granularity string `mapstructure:"granularity" yaml:"granularity" validate:"oneof=day week"`
	TimeRange   int    `mapstructure:"time_range" yaml:"time_range" validate:"gt=0"`
}

type Storage struct {
	Root string `mapstructure:"root" yaml:"root"`
}

type Database struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type Export struct {
	Database bool `mapstructure:"database" yaml:"database"`
}

// Seed drives the generation of mock origin data.
type Seed struct {
	StartDate string `mapstructure:"start_date" yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `mapstructure:"end_date" yaml:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Products  int    `mapstructure:"products" yaml:"products" validate:"gte=0"`
	Stores    int    `mapstructure:"stores" yaml:"stores" validate:"gte=0"`
}

type Server struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type Log struct {
	JSON  bool   `mapstructure:"json" yaml:"json"`
	Level string `mapstructure:"level" yaml:"level"`
}

// Horizon parses the information horizon.
func (c *Config) Horizon() (time.Time, error) {
	return time.Parse(DateLayout, c.RunInfo.InformationHorizon)
}

// IsBacktest reports whether the run evaluates predictions against actuals.
func (c *Config) IsBacktest() bool {
	return c.RunInfo.RunMode == RunModeBacktest
}

// SeedWindow is the date range of the mock origin data. Unset bounds default
// to the widest window a run of this configuration reads: the first sales
// week of the training context through the end of the prediction context.
func (c *Config) SeedWindow() (start, end time.Time, err error) {
	h, err := c.Horizon()
	if err != nil {
		return start, end, err
	}
	df := c.DemandForecast
	start = h.AddDate(0, 0, -7*(df.TrainingContext.Time.TimeRange+df.RangeWeekSales))
	end = h.AddDate(0, 0, 7*df.PredictionContext.Time.TimeRange)
	if c.Seed.StartDate != "" {
		if start, err = time.Parse(DateLayout, c.Seed.StartDate); err != nil {
			return start, end, err
		}
	}
	if c.Seed.EndDate != "" {
		if end, err = time.Parse(DateLayout, c.Seed.EndDate); err != nil {
			return start, end, err
		}
	}
	return start, end, nil
}
