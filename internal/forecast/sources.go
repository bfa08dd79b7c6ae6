package forecast

import (
	"context"
	"embed"

	"go.uber.org/zap"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/datasource"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/table"
)

//go:embed queries/*.sql
var queries embed.FS

// Data source names. Fetched tables are cached as <name>.csv.
const (
	SourceTransactions  = "transactions"
	SourceProducts      = "products"
	SourcePredictions   = "demand_predictions"
	SourceTimeIndex     = "time_index"
	SourceLocationIndex = "location_index"
)

func query(name string) string {
	b, err := queries.ReadFile("queries/" + name + ".sql")
	if err != nil {
		panic(errors.AssertionFailedf("missing embedded query %s", name))
	}
	return string(b)
}

var (
	productLevels  = map[string]datasource.IndexSpec{"product_id": datasource.Map("product_id")}
	locationLevels = map[string]datasource.IndexSpec{"store_id": datasource.Map("store_id")}
)

func transactionsSpec() datasource.Spec {
	return datasource.Spec{
		Name: SourceTransactions,
		Dimensions: []datasource.Dimension{
			{Name: config.DimProducts, Levels: productLevels},
			{Name: config.DimLocation, Levels: locationLevels},
			{Name: config.DimTime, Levels: map[string]datasource.IndexSpec{
				"week": datasource.Agg(datasource.PeriodIndex, table.OpSum, "date", "week_id"),
				"day":  datasource.Agg(datasource.PeriodIndex, table.OpSum, "date", "day_id"),
			}},
		},
		Query: query("transactions"),
	}
}

func productsSpec() datasource.Spec {
	return datasource.Spec{
		Name:       SourceProducts,
		Dimensions: []datasource.Dimension{{Name: config.DimProducts, Levels: productLevels}},
		Query:      query("products"),
	}
}

// predictionsSpec reads the predictions copied next to the backtest
// actuals. It has no query: the file is written by the predict operator.
func predictionsSpec() datasource.Spec {
	return datasource.Spec{
		Name: SourcePredictions,
		Dimensions: []datasource.Dimension{
			{Name: config.DimProducts, Levels: productLevels},
			{Name: config.DimLocation, Levels: locationLevels},
			{Name: config.DimTime, Levels: map[string]datasource.IndexSpec{
				"week": datasource.Map("week_id"),
				"day":  datasource.Map("day_id"),
			}},
		},
	}
}

// timeIndexSpec holds the periods to predict.
func timeIndexSpec(sctx scope.Context, level string) (datasource.Spec, error) {
	periods, err := sctx.TimeIndex(level)
	if err != nil {
		return datasource.Spec{}, err
	}
	column := timeColumn(level)
	values := make([]interface{}, len(periods))
	for i, p := range periods {
		values[i] = int64(p)
	}
	return datasource.Spec{
		Name: SourceTimeIndex,
		Dimensions: []datasource.Dimension{{Name: config.DimTime, Levels: map[string]datasource.IndexSpec{
			level: datasource.Map(column),
		}}},
		Data: table.FromColumn(column, values...),
	}, nil
}

// locationIndexSpec holds the stores to predict: the configured ones, or
// every store of the origin.
func locationIndexSpec(ctx context.Context, sctx scope.Context, origin datasource.Origin) (datasource.Spec, error) {
	var data *table.Table
	if values := sctx.Location().Values; len(values) > 0 {
		ids := make([]interface{}, len(values))
		for i, v := range values {
			ids[i] = int64(v)
		}
		data = table.FromColumn("store_id", ids...)
	} else {
		if origin == nil {
			return datasource.Spec{}, errors.Wrap(errors.ErrMissingProperty, "location index needs an origin store")
		}
		stores, err := origin.Query(ctx, query("stores"))
		if err != nil {
			return datasource.Spec{}, errors.Wrap(err, "list stores")
		}
		data = stores
	}
	return datasource.Spec{
		Name:       SourceLocationIndex,
		Dimensions: []datasource.Dimension{{Name: config.DimLocation, Levels: locationLevels}},
		Data:       data,
	}, nil
}

func timeColumn(level string) string {
	if level == "day" {
		return "day_id"
	}
	return "week_id"
}

func newSources(g config.Granularity, origin datasource.Origin, log *zap.SugaredLogger, specs ...datasource.Spec) ([]*datasource.Source, error) {
	out := make([]*datasource.Source, 0, len(specs))
	for _, spec := range specs {
		src, err := datasource.New(spec, g, origin, log)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}
