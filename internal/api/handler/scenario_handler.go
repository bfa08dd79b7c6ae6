package handler

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/service"
	"go-forecast-pipeline/internal/stage"
	"go-forecast-pipeline/pkg/utils"
)

const scenariosPrefix = "/api/v1/scenarios/"

// Handler serves the scenario API over a service provider.
type Handler struct {
	provider  *service.Provider
	artifacts *utils.OutputManager
	log       *zap.SugaredLogger
	runs      sync.WaitGroup
}

func New(p *service.Provider) *Handler {
	return &Handler{
		provider:  p,
		artifacts: utils.NewOutputManager(p.Config.Storage.Root),
		log:       logger.Component(p.Log, "api"),
	}
}

// Wait blocks until every scheduled run has returned.
func (h *Handler) Wait() {
	h.runs.Wait()
}

// ListScenarios lists the scenarios under the storage root
// @Summary List scenarios
// @Description List every loadable scenario under the storage root, newest first
// @Tags scenarios
// @Produce json
// @Success 200 {array} model.ScenarioSummary "Scenario summaries"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /scenarios [get]
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := scenario.List(h.provider.Config.Storage.Root, h.provider.Log)
	if err != nil {
		h.log.Errorw("Failed to list scenarios", logger.FieldError, err)
		http.Error(w, "Failed to list scenarios", http.StatusInternalServerError)
		return
	}
	if scenarios == nil {
		scenarios = []model.ScenarioSummary{}
	}
	writeJSON(w, http.StatusOK, scenarios)
}

// CreateScenario creates a scenario and runs the forecast on it
// @Summary Create and run a scenario
// @Description Create a scenario from the server configuration and run the forecast pipeline on it asynchronously
// @Tags scenarios
// @Accept json
// @Produce json
// @Param scenario body model.CreateScenarioRequest false "Scenario name and final stage"
// @Success 202 {object} model.CreateScenarioResponse "Run scheduled"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 409 {object} map[string]interface{} "Scenario already exists"
// @Router /scenarios [post]
func (h *Handler) CreateScenario(w http.ResponseWriter, r *http.Request) {
	var req model.CreateScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		req.Name = uuid.NewString()
	}
	if _, err := h.artifacts.ScenarioDir(req.Name); err != nil {
		http.Error(w, "Invalid scenario name", http.StatusBadRequest)
		return
	}
	final := stage.Last
	if req.FinalStage != "" {
		st, err := stage.Parse(req.FinalStage)
		if err != nil {
			http.Error(w, "Unknown final stage", http.StatusBadRequest)
			return
		}
		final = st
	}
	scn, err := h.provider.CreateScenario(req.Name)
	if errors.Is(err, errors.ErrScenarioExists) {
		http.Error(w, "Scenario already exists", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Errorw("Failed to create scenario", logger.FieldScenario, req.Name, logger.FieldError, err)
		http.Error(w, "Failed to create scenario", http.StatusInternalServerError)
		return
	}

	// Each run owns its freshly created scenario
	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		if err := h.provider.Run(context.Background(), scn, service.RunRequest{Final: final}); err != nil {
			h.log.Errorw("Scenario run failed", logger.FieldScenario, scn.Name(), logger.FieldError, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, model.CreateScenarioResponse{
		Name:       scn.Name(),
		FinalStage: final.String(),
		Status:     model.StatusRunning,
		Message:    "Scenario created, run scheduled",
		CreatedAt:  time.Now().UTC(),
	})
}

// GetScenario retrieves a scenario
// @Summary Get scenario
// @Description Retrieve the summary of a scenario, including its current stage
// @Tags scenarios
// @Produce json
// @Param name path string true "Scenario name"
// @Success 200 {object} model.ScenarioSummary "Scenario summary"
// @Failure 404 {object} map[string]interface{} "Scenario not found"
// @Router /scenarios/{name} [get]
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	scn, ok := h.loadScenario(w, r, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, scn.Summary())
}

// GetScenarioOutput retrieves the metrics recorded by a scenario
// @Summary Get scenario outputs
// @Tags scenarios
// @Produce json
// @Param name path string true "Scenario name"
// @Success 200 {object} model.ScenarioOutput "Recorded metrics"
// @Failure 404 {object} map[string]interface{} "Scenario not found"
// @Router /scenarios/{name}/output [get]
func (h *Handler) GetScenarioOutput(w http.ResponseWriter, r *http.Request) {
	scn, ok := h.loadScenario(w, r, "/output")
	if !ok {
		return
	}
	outputs := map[string]interface{}{}
	for k, v := range scn.Outputs() {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			// encoding/json rejects non-finite floats
			outputs[k] = strconv.FormatFloat(v, 'g', -1, 64)
			continue
		}
		outputs[k] = v
	}
	writeJSON(w, http.StatusOK, model.ScenarioOutput{
		Name:    scn.Name(),
		Stage:   scn.Stage().String(),
		Outputs: outputs,
	})
}

// GetScenarioRuns lists the runs recorded for a scenario
// @Summary List scenario runs
// @Tags runs
// @Produce json
// @Param name path string true "Scenario name"
// @Success 200 {array} model.RunDetail "Runs with operator outcomes"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /scenarios/{name}/runs [get]
func (h *Handler) GetScenarioRuns(w http.ResponseWriter, r *http.Request) {
	name, ok := h.scenarioName(w, r, "/runs")
	if !ok {
		return
	}
	runs, err := h.provider.Store.ListRuns(r.Context(), name)
	if err != nil {
		h.log.Errorw("Failed to list runs", logger.FieldScenario, name, logger.FieldError, err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.RunDetail{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// ListArtifacts lists the files stored in a scenario
// @Summary List scenario artifacts
// @Tags artifacts
// @Produce json
// @Param name path string true "Scenario name"
// @Success 200 {array} model.Artifact "Artifacts"
// @Failure 404 {object} map[string]interface{} "Scenario not found"
// @Router /scenarios/{name}/artifacts [get]
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	name, ok := h.scenarioName(w, r, "/artifacts")
	if !ok {
		return
	}
	artifacts, err := h.artifacts.List(name)
	if err != nil {
		http.Error(w, "Scenario not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

// DownloadArtifact serves one file of a scenario
// @Summary Download an artifact
// @Tags artifacts
// @Produce octet-stream
// @Param name path string true "Scenario name"
// @Param path path string true "Artifact path inside the scenario"
// @Success 200 {file} file "File content"
// @Failure 400 {object} map[string]interface{} "Unsafe path"
// @Failure 404 {object} map[string]interface{} "Artifact not found"
// @Router /scenarios/{name}/artifacts/{path} [get]
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, scenariosPrefix)
	name, rel, found := strings.Cut(rest, "/artifacts/")
	if !found || name == "" || rel == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	path, err := h.artifacts.GetOutputFilePath(name, rel)
	if err != nil {
		http.Error(w, "Invalid artifact path", http.StatusBadRequest)
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}
	if h.artifacts.GetFileType(path) == "csv" {
		w.Header().Set("Content-Type", "text/csv")
	}
	http.ServeFile(w, r, path)
}

// scenarioName extracts the scenario segment of /api/v1/scenarios/{name}{suffix}.
func (h *Handler) scenarioName(w http.ResponseWriter, r *http.Request, suffix string) (string, bool) {
	path := r.URL.Path
	if !strings.HasPrefix(path, scenariosPrefix) || !strings.HasSuffix(path, suffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return "", false
	}
	name := path[len(scenariosPrefix) : len(path)-len(suffix)]
	if _, err := h.artifacts.ScenarioDir(name); err != nil {
		http.Error(w, "Invalid scenario name", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func (h *Handler) loadScenario(w http.ResponseWriter, r *http.Request, suffix string) (*scenario.Scenario, bool) {
	name, ok := h.scenarioName(w, r, suffix)
	if !ok {
		return nil, false
	}
	scn, err := h.provider.LoadScenario(name)
	if err != nil {
		if !errors.Is(err, errors.ErrInvalidScenario) {
			h.log.Warnw("Failed to load scenario", logger.FieldScenario, name, logger.FieldError, err)
		}
		http.Error(w, "Scenario not found", http.StatusNotFound)
		return nil, false
	}
	return scn, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
