package scope

import (
	"os"
	"reflect"
	"time"

	"gopkg.in/yaml.v3"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/stage"
)

// Kind discriminates the two context implementations.
type Kind string

const (
	KindTraining   Kind = "training"
	KindPrediction Kind = "prediction"
)

// Context attribute names usable in load windows.
const (
	AttrStartDate          = "start_date"
	AttrEndDate            = "end_date"
	AttrInformationHorizon = "information_horizon"
	// AttrLastSalesDate is the last day of known sales, the day before the
	// information horizon.
	AttrLastSalesDate = "last_sales_date"
	// AttrLastTargetDate is the last day of the target window, the day
	// before the end date.
	AttrLastTargetDate = "last_target_date"
)

// weeks per time granularity used to size a time index.
var periodsPerWeek = map[string]int{"day": 7, "week": 1}

// Context is the temporal and filtering scope of a training or prediction
// phase. It is persisted next to the phase artifacts and compared to decide
// whether cached inputs are still valid.
type Context interface {
	Kind() Kind
	Name() string
	IsBacktest() bool
	InformationHorizon() time.Time
	StartDate() time.Time
	// EndDate fails with ErrUnsetAttribute when the phase has no end.
	EndDate() (time.Time, error)
	// Attr resolves a load-window attribute by name.
	Attr(name string) (time.Time, error)
	TimeGranularity() string
	TimeIndex(granularity string) ([]int, error)
	Location() config.Filter
	Products() config.Filter
	MinSales() float64
	FileName() string
	FileStage() stage.Stage
	Record() Record
}

// Record is the persisted form of a context.
type Record struct {
	Kind               Kind          `yaml:"kind"`
	InformationHorizon string        `yaml:"information_horizon"`
	StartDate          string        `yaml:"start_date"`
	EndDate            string        `yaml:"end_date,omitempty"`
	Backtest           bool          `yaml:"backtest"`
	TimeGranularity    string        `yaml:"time_granularity"`
	TimeRange          int           `yaml:"time_range"`
	RangeWeekSales     int           `yaml:"range_week_sales"`
	MinSales           float64       `yaml:"min_sales"`
	Location           config.Filter `yaml:"location"`
	Products           config.Filter `yaml:"products"`
}

type base struct {
	kind     Kind
	horizon  time.Time
	start    time.Time
	end      time.Time
	hasEnd   bool
	backtest bool
	rws      int
	cfg      config.ContextConfig
}

func (b *base) Kind() Kind                    { return b.kind }
func (b *base) Name() string                  { return string(b.kind) + "_context" }
func (b *base) IsBacktest() bool              { return b.backtest }
func (b *base) InformationHorizon() time.Time { return b.horizon }
func (b *base) StartDate() time.Time          { return b.start }
func (b *base) TimeGranularity() string       { return b.cfg.Time.Granularity }
func (b *base) Location() config.Filter       { return b.cfg.Location }
func (b *base) Products() config.Filter       { return b.cfg.Products }
func (b *base) MinSales() float64             { return b.cfg.MinSales }
func (b *base) FileName() string              { return b.Name() + ".yaml" }

func (b *base) EndDate() (time.Time, error) {
	if !b.hasEnd {
		return time.Time{}, errors.Wrapf(errors.ErrUnsetAttribute, "%s end date", b.kind)
	}
	return b.end, nil
}

func (b *base) Attr(name string) (time.Time, error) {
	switch name {
	case AttrStartDate:
		return b.start, nil
	case AttrEndDate:
		return b.EndDate()
	case AttrInformationHorizon:
		return b.horizon, nil
	case AttrLastSalesDate:
		return b.horizon.Add(-days(1)), nil
	case AttrLastTargetDate:
		end, err := b.EndDate()
		if err != nil {
			return time.Time{}, err
		}
		return end.Add(-days(1)), nil
	}
	return time.Time{}, errors.Wrapf(errors.ErrUnsetAttribute, "unknown context attribute %q", name)
}

// TimeIndex enumerates the 1-based periods the phase covers.
func (b *base) TimeIndex(granularity string) ([]int, error) {
	n, ok := periodsPerWeek[granularity]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotImplemented, "time granularity %q", granularity)
	}
	out := make([]int, 0, b.cfg.Time.TimeRange*n)
	for i := 1; i <= b.cfg.Time.TimeRange*n; i++ {
		out = append(out, i)
	}
	return out, nil
}

func (b *base) Record() Record {
	r := Record{
		Kind:               b.kind,
		InformationHorizon: b.horizon.Format(config.DateLayout),
		StartDate:          b.start.Format(config.DateLayout),
		Backtest:           b.backtest,
		TimeGranularity:    b.cfg.Time.Granularity,
		TimeRange:          b.cfg.Time.TimeRange,
		RangeWeekSales:     b.rws,
		MinSales:           b.cfg.MinSales,
		Location:           normalizeFilter(b.cfg.Location),
		Products:           normalizeFilter(b.cfg.Products),
	}
	if b.hasEnd {
		r.EndDate = b.end.Format(config.DateLayout)
	}
	return r
}

func normalizeFilter(f config.Filter) config.Filter {
	if len(f.Values) == 0 {
		f.Values = nil
	}
	return f
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// TrainingContext is the context of the training phase. Its horizon sits
// time_range weeks before the run horizon so that the target window ends
// where the prediction phase begins. Sales cover the range_week_sales whole
// weeks before the horizon.
type TrainingContext struct{ base }

// NewTraining derives the training context from the run configuration.
func NewTraining(cfg *config.Config) (*TrainingContext, error) {
	horizon, err := cfg.Horizon()
	if err != nil {
		return nil, errors.Wrap(err, "training context: information horizon")
	}
	tc := cfg.DemandForecast.TrainingContext
	rws := cfg.DemandForecast.RangeWeekSales
	h := horizon.Add(-days(7 * tc.Time.TimeRange))
	return &TrainingContext{base{
		kind:     KindTraining,
		horizon:  h,
		start:    h.Add(-days(7 * rws)),
		end:      h.Add(days(7 * tc.Time.TimeRange)),
		hasEnd:   true,
		backtest: cfg.IsBacktest(),
		rws:      rws,
		cfg:      tc,
	}}, nil
}

func (t *TrainingContext) FileStage() stage.Stage { return stage.TrainingTrained }

// PredictionContext is the context of the prediction phase. It only has an end
// date in backtest runs.
type PredictionContext struct{ base }

// NewPrediction derives the prediction context from the run configuration.
func NewPrediction(cfg *config.Config) (*PredictionContext, error) {
	horizon, err := cfg.Horizon()
	if err != nil {
		return nil, errors.Wrap(err, "prediction context: information horizon")
	}
	pc := cfg.DemandForecast.PredictionContext
	rws := cfg.DemandForecast.RangeWeekSales
	p := &PredictionContext{base{
		kind:     KindPrediction,
		horizon:  horizon,
		start:    horizon.Add(-days(7 * rws)),
		backtest: cfg.IsBacktest(),
		rws:      rws,
		cfg:      pc,
	}}
	if p.backtest {
		p.end = horizon.Add(days(7 * pc.Time.TimeRange))
		p.hasEnd = true
	}
	return p, nil
}

func (p *PredictionContext) FileStage() stage.Stage { return stage.PredictionPredicted }

// FromRecord rebuilds a context from its persisted form.
func FromRecord(r Record) (Context, error) {
	horizon, err := time.Parse(config.DateLayout, r.InformationHorizon)
	if err != nil {
		return nil, errors.Wrap(err, "context record: information horizon")
	}
	start, err := time.Parse(config.DateLayout, r.StartDate)
	if err != nil {
		return nil, errors.Wrap(err, "context record: start date")
	}
	b := base{
		kind:     r.Kind,
		horizon:  horizon,
		start:    start,
		backtest: r.Backtest,
		rws:      r.RangeWeekSales,
		cfg: config.ContextConfig{
			Location: r.Location,
			Products: r.Products,
			Time:     config.TimeConfig{Granularity: r.TimeGranularity, TimeRange: r.TimeRange},
			MinSales: r.MinSales,
		},
	}
	if r.EndDate != "" {
		if b.end, err = time.Parse(config.DateLayout, r.EndDate); err != nil {
			return nil, errors.Wrap(err, "context record: end date")
		}
		b.hasEnd = true
	}
	switch r.Kind {
	case KindTraining:
		return &TrainingContext{b}, nil
	case KindPrediction:
		return &PredictionContext{b}, nil
	}
	return nil, errors.Newf("context record: unknown kind %q", r.Kind)
}

// Save writes the context record to path.
func Save(c Context, path string) error {
	b, err := yaml.Marshal(c.Record())
	if err != nil {
		return errors.Wrap(err, "failed to encode context")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write context %s", path)
	}
	return nil
}

// Load reads a context persisted with Save.
func Load(path string) (Context, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read context %s", path)
	}
	var r Record
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, errors.Wrapf(err, "failed to decode context %s", path)
	}
	return FromRecord(r)
}

// Equal compares two contexts on their whole persisted record. A nil
// context only equals another nil context.
func Equal(a, b Context) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a.Record(), b.Record())
}
