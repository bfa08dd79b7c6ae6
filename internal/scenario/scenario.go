// Package scenario stores the artifacts of one forecasting run in a
// directory tree laid out as {root}/{name}/{phase}/{STAGE}/{file}, with the
// run metadata at the scenario root.
package scenario

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/stage"
	"go-forecast-pipeline/internal/table"
)

// Metadata files at the scenario root.
const (
	FileInfo   = "info.yaml"
	FileConfig = "model_config.yaml"
	FileOutput = "output.yaml"
)

// Info is the persisted run metadata.
type Info struct {
	Name           string      `yaml:"name"`
	Hash           string      `yaml:"hash"`
	CreatedAt      time.Time   `yaml:"created_at"`
	Stage          stage.Stage `yaml:"stage"`
	Test           bool        `yaml:"test"`
	SourceRevision string      `yaml:"source_revision"`
	RunID          string      `yaml:"run_id,omitempty"`
}

// Scenario is a handle on a scenario directory. It is owned by a single
// pipeline run at a time.
type Scenario struct {
	root     string
	location string
	info     Info
	cfg      *config.Config
	outputs  map[string]float64
	log      *zap.SugaredLogger
}

// Create initialises a fresh scenario at {root}/{name}. The hash is derived
// from the config snapshot and the source revision; the stage starts at the
// first stage of the catalog.
func Create(root, name string, cfg *config.Config, revision string, log *zap.SugaredLogger) (*Scenario, error) {
	if name == "" {
		return nil, errors.New("scenario name is empty")
	}
	if cfg == nil {
		return nil, errors.New("scenario config is nil")
	}
	location := filepath.Join(root, name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create scenario root %s", root)
	}
	// Mkdir is the existence check: concurrent creators of one name race on it
	// and exactly one wins.
	if err := os.Mkdir(location, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, errors.WithHint(
				errors.Wrapf(errors.ErrScenarioExists, "%s", location),
				"load it to restart from its persisted stage, or delete it first")
		}
		return nil, errors.Wrapf(err, "failed to create scenario directory %s", location)
	}

	hash, err := cfg.Hash(revision)
	if err != nil {
		return nil, err
	}
	s := &Scenario{
		root:     root,
		location: location,
		info: Info{
			Name:           name,
			Hash:           hash,
			CreatedAt:      time.Now().UTC().Truncate(time.Second),
			Stage:          stage.First,
			SourceRevision: revision,
		},
		cfg:     cfg,
		outputs: map[string]float64{},
		log:     logger.Component(log, "scenario").With(logger.FieldScenario, name),
	}
	for _, st := range stage.All() {
		if err := os.MkdirAll(s.StageDir(st), 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create stage directory %s", st)
		}
	}
	if err := s.Save(); err != nil {
		return nil, err
	}
	s.log.Infow("Scenario created", "hash", hash, logger.FieldPath, location)
	return s, nil
}

// Load opens an existing scenario and validates it against its persisted
// stage.
func Load(location string, log *zap.SugaredLogger) (*Scenario, error) {
	location = filepath.Clean(location)
	b, err := os.ReadFile(filepath.Join(location, FileInfo))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidScenario, "%s: %v", location, err)
	}
	var info Info
	if err := yaml.Unmarshal(b, &info); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidScenario, "%s: decode info: %v", location, err)
	}
	cfg, err := config.LoadFile(filepath.Join(location, FileConfig))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidScenario, "%s: %v", location, err)
	}

	outputs := map[string]float64{}
	if b, err := os.ReadFile(filepath.Join(location, FileOutput)); err == nil {
		if err := yaml.Unmarshal(b, &outputs); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidScenario, "%s: decode output: %v", location, err)
		}
		if outputs == nil {
			outputs = map[string]float64{}
		}
	}

	s := &Scenario{
		root:     filepath.Dir(location),
		location: location,
		info:     info,
		cfg:      cfg,
		outputs:  outputs,
		log:      logger.Component(log, "scenario").With(logger.FieldScenario, info.Name),
	}
	if missing := s.missing(); len(missing) > 0 {
		return nil, errors.WithDetailf(
			errors.Wrapf(errors.ErrInvalidScenario, "%s at stage %s is missing %d artifacts",
				location, info.Stage, len(missing)),
			"missing: %v", missing)
	}
	s.log.Infow("Scenario loaded", logger.FieldStage, info.Stage.String(), "hash", info.Hash)
	return s, nil
}

// IsValid reports whether location holds a scenario that loads cleanly.
func IsValid(location string) bool {
	_, err := Load(location, nil)
	return err == nil
}

// missing lists the required artifacts absent for every stage up to and
// including the persisted one.
func (s *Scenario) missing() []string {
	var out []string
	for _, st := range stage.All() {
		if st.After(s.info.Stage) {
			break
		}
		if st.BacktestOnly() && !s.cfg.IsBacktest() {
			continue
		}
		for _, file := range st.Children() {
			if st.Optional(file) {
				continue
			}
			if _, err := os.Stat(s.RelPath(file, st)); err != nil {
				out = append(out, filepath.Join(st.Phase(), st.String(), file))
			}
		}
	}
	return out
}

func (s *Scenario) Name() string               { return s.info.Name }
func (s *Scenario) Location() string           { return s.location }
func (s *Scenario) Root() string               { return s.root }
func (s *Scenario) Hash() string               { return s.info.Hash }
func (s *Scenario) SourceRevision() string     { return s.info.SourceRevision }
func (s *Scenario) CreatedAt() time.Time       { return s.info.CreatedAt }
func (s *Scenario) Stage() stage.Stage         { return s.info.Stage }
func (s *Scenario) SetStage(st stage.Stage)    { s.info.Stage = st }
func (s *Scenario) Test() bool                 { return s.info.Test }
func (s *Scenario) SetTest(test bool)          { s.info.Test = test }
func (s *Scenario) RunID() string              { return s.info.RunID }
func (s *Scenario) SetRunID(id string)         { s.info.RunID = id }
func (s *Scenario) Config() *config.Config     { return s.cfg }
func (s *Scenario) Logger() *zap.SugaredLogger { return s.log }

// Outputs returns a copy of the recorded metrics.
func (s *Scenario) Outputs() map[string]float64 {
	out := make(map[string]float64, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}

// SetOutput records a run metric.
func (s *Scenario) SetOutput(key string, value float64) { s.outputs[key] = value }

// Summary describes the scenario for listings.
func (s *Scenario) Summary() model.ScenarioSummary {
	return model.ScenarioSummary{
		Name:           s.info.Name,
		Hash:           s.info.Hash,
		Stage:          s.info.Stage.String(),
		Test:           s.info.Test,
		SourceRevision: s.info.SourceRevision,
		RunID:          s.info.RunID,
		CreatedAt:      s.info.CreatedAt,
	}
}

// StageDir is the directory holding the artifacts of st.
func (s *Scenario) StageDir(st stage.Stage) string {
	return filepath.Join(s.location, st.Phase(), st.String())
}

// RelPath is the location of file within stage st. It does not touch the
// filesystem.
func (s *Scenario) RelPath(file string, st stage.Stage) string {
	return filepath.Join(s.StageDir(st), file)
}

// Path is the location of a file at the scenario root.
func (s *Scenario) Path(file string) string {
	return filepath.Join(s.location, file)
}

// Exists reports whether file is present in stage st.
func (s *Scenario) Exists(file string, st stage.Stage) bool {
	_, err := os.Stat(s.RelPath(file, st))
	return err == nil
}

// ReadTable loads a tabular artifact.
func (s *Scenario) ReadTable(file string, st stage.Stage) (*table.Table, error) {
	return table.ReadCSV(s.RelPath(file, st))
}

// WriteTable stores a tabular artifact.
func (s *Scenario) WriteTable(t *table.Table, file string, st stage.Stage) error {
	path := s.RelPath(file, st)
	if err := t.WriteCSV(path); err != nil {
		return err
	}
	rows, cols := t.Shape()
	s.log.Debugw("Table written", logger.FieldFile, path, logger.FieldRows, rows, logger.FieldColumns, cols)
	return nil
}

// WriteBlob stores an opaque artifact such as a trained model.
func (s *Scenario) WriteBlob(b []byte, file string, st stage.Stage) error {
	path := s.RelPath(file, st)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// ReadBlob loads an opaque artifact.
func (s *Scenario) ReadBlob(file string, st stage.Stage) ([]byte, error) {
	path := s.RelPath(file, st)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return b, nil
}

// SaveInfo persists the run metadata.
func (s *Scenario) SaveInfo() error {
	return writeYAML(s.Path(FileInfo), s.info)
}

// SaveConfig persists the config snapshot.
func (s *Scenario) SaveConfig() error {
	return s.cfg.WriteSnapshot(s.Path(FileConfig))
}

// SaveOutput persists the run metrics.
func (s *Scenario) SaveOutput() error {
	return writeYAML(s.Path(FileOutput), s.outputs)
}

// Save persists config, metadata and metrics.
func (s *Scenario) Save() error {
	if err := os.MkdirAll(s.location, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create scenario directory %s", s.location)
	}
	if err := s.SaveConfig(); err != nil {
		return err
	}
	if err := s.SaveInfo(); err != nil {
		return err
	}
	return s.SaveOutput()
}

// Delete releases the scenario and, when disk is set, removes its tree.
// A tree that is already gone is not an error.
func (s *Scenario) Delete(disk bool) error {
	if !disk {
		return nil
	}
	if _, err := os.Stat(s.location); os.IsNotExist(err) {
		s.log.Infow("Scenario not found on disk", logger.FieldPath, s.location)
		return nil
	}
	if err := os.RemoveAll(s.location); err != nil {
		return errors.Wrapf(err, "failed to delete scenario %s", s.location)
	}
	s.log.Infow("Scenario deleted", logger.FieldPath, s.location)
	return nil
}

// List returns the summaries of every loadable scenario under root, newest
// first.
func List(root string, log *zap.SugaredLogger) ([]model.ScenarioSummary, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list scenarios in %s", root)
	}
	var out []model.ScenarioSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := Load(filepath.Join(root, e.Name()), log)
		if err != nil {
			continue
		}
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// writeYAML replaces path atomically so that readers never see a partial
// document.
func writeYAML(path string, v interface{}) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", path)
	}
	return nil
}
