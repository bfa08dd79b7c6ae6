package scenario

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/stage"
	"go-forecast-pipeline/internal/table"
)

// Compare checks the artifacts of the given stages against a reference
// scenario. With no stage, every stage up to the scenario's own stage is
// compared in order. Tables compare as row sets, YAML files by decoded
// value, model blobs are skipped. The first difference is returned as
// ErrTestMismatch.
func (s *Scenario) Compare(ref *Scenario, stages ...stage.Stage) error {
	if ref == nil {
		return errors.Wrap(errors.ErrTestMismatch, "no reference scenario")
	}
	if s.info.Hash != ref.info.Hash {
		s.log.Warnw("Scenarios were produced from different configs",
			"hash", s.info.Hash, "reference_hash", ref.info.Hash)
	}
	if len(stages) == 0 {
		for _, st := range stage.All() {
			if st.After(s.info.Stage) {
				break
			}
			stages = append(stages, st)
		}
	}

	for _, st := range stages {
		if err := s.compareStage(ref, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) compareStage(ref *Scenario, st stage.Stage) error {
	if ref.info.Stage.Before(st) {
		return errors.Wrapf(errors.ErrTestMismatch,
			"reference %s has not reached %s (at %s)", ref.Name(), st, ref.info.Stage)
	}
	if st.BacktestOnly() && !s.cfg.IsBacktest() {
		return nil
	}
	for _, file := range st.Children() {
		if strings.HasSuffix(file, ".model") {
			continue
		}
		mine, theirs := s.RelPath(file, st), ref.RelPath(file, st)
		if st.Optional(file) && !(fileExists(mine) && fileExists(theirs)) {
			continue
		}
		if err := compareFile(mine, theirs); err != nil {
			return errors.Wrapf(errors.ErrTestMismatch, "%s: %v",
				filepath.Join(st.Phase(), st.String(), file), err)
		}
		s.log.Infow("Artifact matches reference", logger.FieldStage, st.String(), logger.FieldFile, file)
	}
	return nil
}

func compareFile(a, b string) error {
	switch strings.ToLower(filepath.Ext(a)) {
	case ".csv":
		ta, err := table.ReadCSV(a)
		if err != nil {
			return err
		}
		tb, err := table.ReadCSV(b)
		if err != nil {
			return err
		}
		return table.SetEqual(ta, tb)
	case ".yaml", ".yml":
		va, err := decodeYAML(a)
		if err != nil {
			return err
		}
		vb, err := decodeYAML(b)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(va, vb) {
			return errors.New("values differ")
		}
		return nil
	}
	ba, err := os.ReadFile(a)
	if err != nil {
		return err
	}
	bb, err := os.ReadFile(b)
	if err != nil {
		return err
	}
	if !bytes.Equal(ba, bb) {
		return errors.New("contents differ")
	}
	return nil
}

func decodeYAML(path string) (interface{}, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return v, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
