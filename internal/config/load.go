package config

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"go-forecast-pipeline/internal/errors"
)

var validate = validator.New()

// SetDefaults registers the default value of every optional key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("run_info.run_mode", RunModeForecast)

	v.SetDefault("run_param.random_seed", 42)
	v.SetDefault("run_param.use_cross_validation", false)
	v.SetDefault("run_param.nb_folds", 3)

	v.SetDefault("demand_forecast.model.name", "ridge")
	v.SetDefault("demand_forecast.model.params", map[string]float64{"alpha": 1.0})
	v.SetDefault("demand_forecast.features", map[string][]string{"products": {"category", "gross_price"}})
	v.SetDefault("demand_forecast.range_week_sales", 4)
	v.SetDefault("demand_forecast.nan_strategy", "strict")
	v.SetDefault("demand_forecast.target", "nb_sold_pieces")
	v.SetDefault("demand_forecast.granularity", map[string]string{
		DimProducts: "product_id",
		DimLocation: "store_id",
		DimTime:     "week",
	})
	v.SetDefault("demand_forecast.training_context.time.granularity", "week")
	v.SetDefault("demand_forecast.training_context.time.time_range", 8)
	v.SetDefault("demand_forecast.prediction_context.time.granularity", "week")
	v.SetDefault("demand_forecast.prediction_context.time.time_range", 4)

	v.SetDefault("storage.root", "./scenarios")
	v.SetDefault("database.path", "forecast.db")
	v.SetDefault("export.database", false)
	v.SetDefault("seed.products", 20)
	v.SetDefault("seed.stores", 3)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// NewViper returns a viper instance with defaults and FORECAST_* environment
// overrides bound.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("FORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadWithViper decodes and validates the configuration held by v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(dateToString)); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a YAML configuration file, including scenario snapshots.
func LoadFile(path string) (*Config, error) {
	v := NewViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", path)
	}
	return cfg, nil
}

// Validate checks struct constraints and the rules spanning several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WithHint(errors.Wrap(err, "invalid config"),
			"check run_info and demand_forecast sections")
	}
	for dim := range c.DemandForecast.Granularity {
		if !knownDimension(dim) {
			return errors.Newf("invalid config: unknown granularity dimension %q", dim)
		}
	}
	if !c.DemandForecast.Granularity.Active(DimProducts) {
		return errors.New("invalid config: products granularity is required")
	}
	if t := c.DemandForecast.Granularity[DimTime]; t != "" && t != "day" && t != "week" {
		return errors.Newf("invalid config: time granularity %q", t)
	}
	if c.RunParam.UseCrossValidation && c.RunParam.NbFolds < 2 {
		return errors.Newf("invalid config: cross validation needs at least 2 folds, got %d", c.RunParam.NbFolds)
	}
	return nil
}

func knownDimension(dim string) bool {
	for _, d := range Dimensions {
		if d == dim {
			return true
		}
	}
	return false
}

// Snapshot renders the configuration as YAML. Map keys are sorted, so equal
// configurations render identically.
func (c *Config) Snapshot() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render config snapshot")
	}
	return b, nil
}

// WriteSnapshot writes the YAML snapshot to path.
func (c *Config) WriteSnapshot(path string) error {
	b, err := c.Snapshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config snapshot %s", path)
	}
	return nil
}

// Hash is the md5 digest of the config snapshot followed by the source
// revision.
func (c *Config) Hash(revision string) (string, error) {
	b, err := c.Snapshot()
	if err != nil {
		return "", err
	}
	h := md5.New()
	h.Write(b)
	h.Write([]byte(revision))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// dateToString lets unquoted YAML dates land in string fields.
func dateToString(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	if t, ok := data.(time.Time); ok {
		return t.Format(DateLayout), nil
	}
	return data, nil
}
