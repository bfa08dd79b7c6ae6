package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go-forecast-pipeline/internal/errors"

	"go-forecast-pipeline/internal/model"
)

// ErrUnsafePath is returned for names or paths that would leave the
// scenario root.
var ErrUnsafePath = errors.New("unsafe artifact path")

// OutputManager resolves and describes the artifacts stored under a
// scenario root.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// ScenarioDir returns the directory of scenario name. The name must be a
// single path segment.
func (om *OutputManager) ScenarioDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", errors.Wrapf(ErrUnsafePath, "scenario name %q", name)
	}
	return filepath.Join(om.BaseOutputDir, name), nil
}

// GetOutputFilePath resolves rel inside the scenario directory. Absolute
// paths and paths escaping the scenario are rejected.
func (om *OutputManager) GetOutputFilePath(name, rel string) (string, error) {
	dir, err := om.ScenarioDir(name)
	if err != nil {
		return "", err
	}
	rel = filepath.FromSlash(rel)
	if rel == "" || filepath.IsAbs(rel) {
		return "", errors.Wrapf(ErrUnsafePath, "artifact %q", rel)
	}
	clean := filepath.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrUnsafePath, "artifact %q", rel)
	}
	return filepath.Join(dir, clean), nil
}

// GetDownloadURL generates a download URL for a file
func (om *OutputManager) GetDownloadURL(name, rel string) string {
	return fmt.Sprintf("/api/v1/scenarios/%s/artifacts/%s", name, filepath.ToSlash(rel))
}

// GetFileType determines the file type based on extension
func (om *OutputManager) GetFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return "csv"
	case ".yaml", ".yml":
		return "yaml"
	case ".model":
		return "model"
	case ".json":
		return "json"
	default:
		return "unknown"
	}
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}

// List walks the scenario tree and describes every regular file, in
// lexical path order.
func (om *OutputManager) List(name string) ([]model.Artifact, error) {
	dir, err := om.ScenarioDir(name)
	if err != nil {
		return nil, err
	}
	var out []model.Artifact
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		size, err := om.GetFileSize(path)
		if err != nil {
			return err
		}
		out = append(out, model.Artifact{
			Path:        filepath.ToSlash(rel),
			Type:        om.GetFileType(path),
			Size:        size,
			DownloadURL: om.GetDownloadURL(name, rel),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list artifacts of %s", name)
	}
	return out, nil
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}
