// Package forecast wires the demand forecasting pipeline: data sources
// over the origin store, feature declarations, and the operators that
// fetch, train, predict and evaluate.
package forecast

import (
	"context"
	"math"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/datasource"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/features"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/mlmodel"
	"go-forecast-pipeline/internal/pipeline"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/stage"
	"go-forecast-pipeline/internal/table"
)

// Operator ids.
const (
	OpFetchTraining   = "fetch-train"
	OpTrain           = "train"
	OpFetchPrediction = "fetch-pred"
	OpPredict         = "predict"
	OpFetchBacktest   = "fetch-backtest"
	OpEvaluate        = "evaluate"
)

// Output keys.
const (
	OutputBias    = "Bias"
	OutputSmape   = "Smape"
	OutputCVSmape = "Cv_Smape"
)

// Exporter receives the predictions of a run.
type Exporter interface {
	ExportPredictions(ctx context.Context, scenario, runID string, t *table.Table, prediction string) error
}

// Forecast holds the collaborators of the demand forecasting operators.
// Everything run specific is read from the scenario.
type Forecast struct {
	origin   datasource.Origin
	exporter Exporter
	models   *mlmodel.Registry
	log      *zap.SugaredLogger
}

// New returns a Forecast fetching from origin. exporter may be nil.
func New(origin datasource.Origin, exporter Exporter, log *zap.SugaredLogger) *Forecast {
	return &Forecast{
		origin:   origin,
		exporter: exporter,
		models:   mlmodel.NewRegistry(),
		log:      logger.Component(log, "forecast"),
	}
}

// Operators returns the operators of a full run in stage order.
func (f *Forecast) Operators() []pipeline.Operator {
	return []pipeline.Operator{
		pipeline.NewOperator(OpFetchTraining, stage.TrainingFetched, f.fetchTraining),
		pipeline.NewOperator(OpTrain, stage.TrainingTrained, f.train),
		pipeline.NewOperator(OpFetchPrediction, stage.PredictionFetched, f.fetchPrediction),
		pipeline.NewOperator(OpPredict, stage.PredictionPredicted, f.predict),
		pipeline.NewOperator(OpFetchBacktest, stage.PredictionBacktestingFetched, f.fetchBacktest),
		pipeline.NewOperator(OpEvaluate, stage.PredictionBacktested, f.evaluate),
	}
}

// trainedModel is the blob persisted at TRAINING_TRAINED.
type trainedModel struct {
	Model   []byte                `msgpack:"model"`
	Trained features.TrainedState `msgpack:"trained"`
}

func (f *Forecast) fetchTraining(ctx context.Context, _ stage.Stage, sctx scope.Context, scn *scenario.Scenario) (scope.Context, error) {
	cfg := scn.Config()
	tctx, err := trainingContext(cfg, sctx)
	if err != nil {
		return nil, err
	}
	if err := f.fetch(ctx, scn, tctx, scope.Training, transactionsSpec(), productsSpec()); err != nil {
		return nil, err
	}
	return tctx, saveContext(scn, tctx)
}

func (f *Forecast) train(ctx context.Context, _ stage.Stage, sctx scope.Context, scn *scenario.Scenario) (scope.Context, error) {
	cfg := scn.Config()
	df := cfg.DemandForecast
	tctx, err := trainingContext(cfg, sctx)
	if err != nil {
		return nil, err
	}
	reg := newRegistry(cfg)
	feats, err := demandFeatures(cfg, tctx, reg)
	if err != nil {
		return nil, err
	}
	eng, err := f.engine(scn, tctx, reg, feats, transactionsSpec(), productsSpec())
	if err != nil {
		return nil, err
	}
	if err := eng.SetIndex(features.FromFeature(FeatureTarget)); err != nil {
		return nil, err
	}

	trained := features.TrainedState{}
	data, err := eng.Run(ctx, scope.Training, trained)
	if err != nil {
		return nil, errors.Wrap(err, "build training table")
	}
	if data.Len() == 0 {
		return nil, errors.WithHint(errors.New("training table is empty"),
			"check the origin store covers the training window and min_sales")
	}
	data = zeroFill(data)
	if err := scn.WriteTable(data, stage.FileDataInput, stage.TrainingPreprocessed); err != nil {
		return nil, err
	}

	x := data.Drop(append(idColumns(df.Granularity), df.Target)...)
	y := data.Floats(df.Target)
	demand, err := mlmodel.NewDemand(f.models, df.Model.Name, df.Model.Params)
	if err != nil {
		return nil, err
	}
	if cfg.RunParam.UseCrossValidation {
		scores, err := demand.CrossValidate(f.models, x, y, cfg.RunParam.NbFolds, cfg.RunParam.RandomSeed)
		if err != nil {
			return nil, errors.Wrap(err, "cross validation")
		}
		var sum float64
		for _, s := range scores {
			sum += s
		}
		scn.SetOutput(OutputCVSmape, mlmodel.Round(sum/float64(len(scores)), 2))
		f.log.Infow("Cross validation done", logger.FieldScenario, scn.Name(), "scores", scores)
	}
	if err := demand.Fit(x, y); err != nil {
		return nil, errors.Wrap(err, "fit demand model")
	}

	m, err := demand.Marshal()
	if err != nil {
		return nil, err
	}
	blob, err := msgpack.Marshal(trainedModel{Model: m, Trained: trained})
	if err != nil {
		return nil, errors.Wrap(err, "encode trained model")
	}
	if err := scn.WriteBlob(blob, stage.FileModel, stage.TrainingTrained); err != nil {
		return nil, err
	}
	f.log.Infow("Model trained",
		logger.FieldScenario, scn.Name(),
		logger.FieldModel, df.Model.Name,
		logger.FieldRows, x.Len(),
		logger.FieldColumns, len(x.Columns()),
	)
	return tctx, saveContext(scn, tctx)
}

func (f *Forecast) fetchPrediction(ctx context.Context, _ stage.Stage, sctx scope.Context, scn *scenario.Scenario) (scope.Context, error) {
	pctx, err := predictionContext(scn, sctx, false)
	if err != nil {
		return nil, err
	}
	if err := f.fetch(ctx, scn, pctx, scope.Prediction, transactionsSpec(), productsSpec()); err != nil {
		return nil, err
	}
	return pctx, saveContext(scn, pctx)
}

func (f *Forecast) predict(ctx context.Context, _ stage.Stage, sctx scope.Context, scn *scenario.Scenario) (scope.Context, error) {
	cfg := scn.Config()
	g := cfg.DemandForecast.Granularity
	pctx, err := predictionContext(scn, sctx, false)
	if err != nil {
		return nil, err
	}
	demand, trained, err := f.loadModel(scn)
	if err != nil {
		return nil, err
	}

	specs := []datasource.Spec{transactionsSpec(), productsSpec()}
	index := map[string]features.Feature{
		config.DimProducts: {ID: "product_index", Source: SourceProducts},
	}
	if g.Active(config.DimLocation) {
		spec, err := locationIndexSpec(ctx, pctx, f.origin)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
		index[config.DimLocation] = features.Feature{ID: "location_index", Source: SourceLocationIndex}
	}
	if g.Active(config.DimTime) {
		spec, err := timeIndexSpec(pctx, g[config.DimTime])
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
		index[config.DimTime] = features.Feature{ID: "time_index", Source: SourceTimeIndex}
	}

	reg := newRegistry(cfg)
	feats, err := demandFeatures(cfg, pctx, reg)
	if err != nil {
		return nil, err
	}
	eng, err := f.engine(scn, pctx, reg, feats, specs...)
	if err != nil {
		return nil, err
	}
	if err := eng.SetIndex(features.FromData(index)); err != nil {
		return nil, err
	}
	data, err := eng.Run(ctx, scope.Prediction, trained)
	if err != nil {
		return nil, errors.Wrap(err, "build prediction table")
	}
	data = zeroFill(data)
	if err := scn.WriteTable(data, stage.FileDataInput, stage.PredictionPreprocessed); err != nil {
		return nil, err
	}

	values, err := demand.Predict(data.Drop(idColumns(g)...))
	if err != nil {
		return nil, errors.Wrap(err, "predict demand")
	}
	out, err := data.Select(eng.IndexNames()...)
	if err != nil {
		return nil, err
	}
	preds := make([]interface{}, len(values))
	for i, v := range values {
		// demand is never negative
		preds[i] = math.Max(0, v)
	}
	if err := out.SetColumn(PredictionColumn, preds); err != nil {
		return nil, err
	}

	expected, err := eng.Index(ctx, scope.Prediction, trained)
	if err != nil {
		return nil, err
	}
	if err := sameIndex(out, expected, eng.IndexNames()); err != nil {
		return nil, err
	}

	if err := scn.WriteTable(out, stage.FilePredictions, stage.PredictionPredicted); err != nil {
		return nil, err
	}
	if pctx.IsBacktest() {
		if err := scn.WriteTable(out, stage.FilePredictions, stage.PredictionBacktestingFetched); err != nil {
			return nil, err
		}
	}
	if f.exporter != nil && cfg.Export.Database {
		if err := f.exporter.ExportPredictions(ctx, scn.Name(), scn.RunID(), out, PredictionColumn); err != nil {
			return nil, err
		}
	}
	f.log.Infow("Demand predicted", logger.FieldScenario, scn.Name(), logger.FieldRows, out.Len())
	return pctx, saveContext(scn, pctx)
}

func (f *Forecast) fetchBacktest(ctx context.Context, _ stage.Stage, sctx scope.Context, scn *scenario.Scenario) (scope.Context, error) {
	pctx, err := predictionContext(scn, sctx, true)
	if err != nil {
		return nil, err
	}
	if !pctx.IsBacktest() {
		return nil, errors.Wrap(errors.ErrUnsetAttribute, "backtest needs a backtest prediction context")
	}
	if err := f.fetch(ctx, scn, pctx, scope.Evaluation, transactionsSpec()); err != nil {
		return nil, err
	}
	if !scn.Exists(stage.FilePredictions, stage.PredictionBacktestingFetched) {
		preds, err := scn.ReadTable(stage.FilePredictions, stage.PredictionPredicted)
		if err != nil {
			return nil, err
		}
		if err := scn.WriteTable(preds, stage.FilePredictions, stage.PredictionBacktestingFetched); err != nil {
			return nil, err
		}
	}
	return pctx, nil
}

func (f *Forecast) evaluate(ctx context.Context, _ stage.Stage, sctx scope.Context, scn *scenario.Scenario) (scope.Context, error) {
	cfg := scn.Config()
	pctx, err := predictionContext(scn, sctx, true)
	if err != nil {
		return nil, err
	}
	reg := newRegistry(cfg)
	feats, err := backtestFeatures(cfg, reg)
	if err != nil {
		return nil, err
	}
	eng, err := f.engine(scn, pctx, reg, feats, predictionsSpec(), transactionsSpec())
	if err != nil {
		return nil, err
	}
	if err := eng.SetIndex(features.FromFeature(FeaturePredictions)); err != nil {
		return nil, err
	}
	data, err := eng.Run(ctx, scope.Evaluation, features.TrainedState{})
	if err != nil {
		return nil, errors.Wrap(err, "build backtest table")
	}
	data = zeroFill(data)
	if !data.HasColumn(ActualColumn) {
		return nil, errors.Wrapf(errors.ErrShapeMismatch, "backtest table %s has no %s column", data, ActualColumn)
	}

	pred, act := data.Floats(PredictionColumn), data.Floats(ActualColumn)
	bias := mlmodel.Round(mlmodel.Bias(pred, act), 2)
	smape := mlmodel.Round(mlmodel.SMAPE(pred, act), 2)
	scn.SetOutput(OutputBias, bias)
	scn.SetOutput(OutputSmape, smape)
	if err := scn.WriteTable(data, stage.FileBacktest, stage.PredictionBacktested); err != nil {
		return nil, err
	}
	f.log.Infow("Backtest evaluated", logger.FieldScenario, scn.Name(), OutputBias, bias, OutputSmape, smape)
	return pctx, nil
}

// fetch pulls every source whose cache is stale for sctx.
func (f *Forecast) fetch(ctx context.Context, scn *scenario.Scenario, sctx scope.Context, sc scope.Scope, specs ...datasource.Spec) error {
	srcs, err := newSources(scn.Config().DemandForecast.Granularity, f.origin, scn.Logger(), specs...)
	if err != nil {
		return err
	}
	for _, src := range srcs {
		fetched, err := src.FetchIfNeeded(ctx, scn, sctx, sc, true)
		if err != nil {
			return err
		}
		if !fetched {
			f.log.Infow("Cached data is up to date", logger.FieldSource, src.Name(), logger.FieldScope, string(sc))
		}
	}
	return nil
}

func (f *Forecast) engine(scn *scenario.Scenario, sctx scope.Context, reg *features.Registry, feats []features.Feature, specs ...datasource.Spec) (*features.Engine, error) {
	cfg := scn.Config()
	srcs, err := newSources(cfg.DemandForecast.Granularity, f.origin, scn.Logger(), specs...)
	if err != nil {
		return nil, err
	}
	eng := features.NewEngine(scn, sctx, reg, scn.Logger())
	eng.SetGranularity(cfg.DemandForecast.Granularity, cfg.DemandForecast.Features)
	eng.SetSources(srcs...)
	eng.SetFeatures(feats...)
	return eng, nil
}

func (f *Forecast) loadModel(scn *scenario.Scenario) (*mlmodel.Demand, features.TrainedState, error) {
	blob, err := scn.ReadBlob(stage.FileModel, stage.TrainingTrained)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read trained model")
	}
	var tm trainedModel
	if err := msgpack.Unmarshal(blob, &tm); err != nil {
		return nil, nil, errors.Wrap(err, "decode trained model")
	}
	demand, err := mlmodel.UnmarshalDemand(f.models, tm.Model)
	if err != nil {
		return nil, nil, err
	}
	if tm.Trained == nil {
		tm.Trained = features.TrainedState{}
	}
	return demand, tm.Trained, nil
}

func trainingContext(cfg *config.Config, sctx scope.Context) (scope.Context, error) {
	if sctx != nil && sctx.Kind() == scope.KindTraining {
		return sctx, nil
	}
	return scope.NewTraining(cfg)
}

// predictionContext returns sctx when it is a prediction context. Otherwise
// it is rebuilt from the config, or read from the scenario when persisted
// is set and the scenario holds one.
func predictionContext(scn *scenario.Scenario, sctx scope.Context, persisted bool) (scope.Context, error) {
	if sctx != nil && sctx.Kind() == scope.KindPrediction {
		return sctx, nil
	}
	if persisted && scn.Exists(stage.FilePredictionContext, stage.PredictionPredicted) {
		return scope.Load(scn.RelPath(stage.FilePredictionContext, stage.PredictionPredicted))
	}
	return scope.NewPrediction(scn.Config())
}

func saveContext(scn *scenario.Scenario, sctx scope.Context) error {
	return scope.Save(sctx, scn.RelPath(sctx.FileName(), sctx.FileStage()))
}

// idColumns are the product and location index columns. They identify
// rows and are not model features.
func idColumns(g config.Granularity) []string {
	var out []string
	for _, dim := range []string{config.DimProducts, config.DimLocation} {
		if g.Active(dim) {
			out = append(out, g[dim])
		}
	}
	return out
}

func zeroFill(t *table.Table) *table.Table {
	out := t.Clone()
	for _, r := range out.Rows() {
		for _, c := range out.Columns() {
			if r[c] == nil {
				r[c] = int64(0)
			}
		}
	}
	return out
}

// sameIndex checks that predictions cover exactly the expected index.
func sameIndex(got, want *table.Table, columns []string) error {
	if got.Len() != want.Len() {
		return errors.Wrapf(errors.ErrShapeMismatch, "predictions %s do not match index %s", got, want)
	}
	for _, c := range columns {
		if !reflect.DeepEqual(got.DistinctValues(c), want.DistinctValues(c)) {
			return errors.Wrapf(errors.ErrShapeMismatch, "predictions and index differ on %s values", c)
		}
	}
	return nil
}
