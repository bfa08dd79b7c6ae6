package forecast

import (
	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/datasource"
	"go-forecast-pipeline/internal/features"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/table"
)

// Feature ids.
const (
	FeatureTarget      = "target"
	FeatureProducts    = "product_features"
	FeatureSales       = "sales_features"
	FeaturePredictions = "predictions"
	FeatureActuals     = "actuals"
	filterMinTarget    = "min_target"
	PredictionColumn   = "demand_pred"
	ActualColumn       = "demand_act"
)

func newRegistry(cfg *config.Config) *features.Registry {
	reg := features.NewRegistry()
	product := cfg.DemandForecast.Granularity[config.DimProducts]
	reg.RegisterFilter(filterMinTarget, features.MinTotal(product, cfg.DemandForecast.Target))
	return reg
}

// demandFeatures declares the features of the training and prediction
// tables.
func demandFeatures(cfg *config.Config, sctx scope.Context, reg *features.Registry) ([]features.Feature, error) {
	df := cfg.DemandForecast
	g := df.Granularity
	salesIndex := []string{g[config.DimProducts]}
	if g.Active(config.DimLocation) {
		salesIndex = append(salesIndex, g[config.DimLocation])
	}

	salesSteps := []features.Step{{
		Name: "agg",
		Args: features.Args{"index": salesIndex, "values": df.Target, "agg": table.OpSum},
	}}
	if g.Active(config.DimTime) {
		salesSteps = append([]features.Step{{
			Name: "pivot",
			Args: features.Args{"index": salesIndex, "columns": timeColumn(g[config.DimTime]), "values": df.Target},
		}}, salesSteps...)
	}

	declared := []features.Feature{
		{
			ID:     FeatureTarget,
			Source: SourceTransactions,
			Load:   &datasource.Window{Start: scope.AttrInformationHorizon, End: scope.AttrLastTargetDate},
			Filter: &features.Filter{Name: filterMinTarget, Level: sctx.MinSales()},
			Scopes: []scope.Scope{scope.Training},
		},
		{
			ID:     FeatureProducts,
			Source: SourceProducts,
			Transform: &features.Transform{Mode: features.Series, Steps: []features.Step{
				{Name: "encode", Trained: true},
				{Name: "manage_nan", Args: features.Args{"strategy": df.NanStrategy}},
			}},
			Scopes: []scope.Scope{scope.Training, scope.Prediction},
		},
		{
			ID:        FeatureSales,
			Source:    SourceTransactions,
			Load:      &datasource.Window{Start: scope.AttrStartDate, End: scope.AttrLastSalesDate},
			Transform: &features.Transform{Mode: features.Parallel, Steps: salesSteps},
			Merge:     &features.Merge{How: table.Left},
			Scopes:    []scope.Scope{scope.Training, scope.Prediction},
		},
	}
	return validated(reg, declared)
}

// backtestFeatures joins the predictions with the actual demand of the
// predicted periods.
func backtestFeatures(cfg *config.Config, reg *features.Registry) ([]features.Feature, error) {
	declared := []features.Feature{
		{
			ID:     FeaturePredictions,
			Source: SourcePredictions,
			Scopes: []scope.Scope{scope.Evaluation},
		},
		{
			ID:     FeatureActuals,
			Source: SourceTransactions,
			Load:   &datasource.Window{Start: scope.AttrInformationHorizon, End: scope.AttrLastTargetDate},
			Transform: &features.Transform{Mode: features.Series, Steps: []features.Step{
				{Name: "rename", Args: features.Args{"from": cfg.DemandForecast.Target, "to": ActualColumn}},
				{Name: "manage_nan", Args: features.Args{"strategy": "zero"}},
			}},
			Merge:  &features.Merge{How: table.Left},
			Scopes: []scope.Scope{scope.Evaluation},
		},
	}
	return validated(reg, declared)
}

func validated(reg *features.Registry, declared []features.Feature) ([]features.Feature, error) {
	out := make([]features.Feature, 0, len(declared))
	for _, f := range declared {
		v, err := features.NewFeature(f, reg)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
