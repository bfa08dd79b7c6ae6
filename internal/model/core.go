package model

import "time"

// GenericRecord is a schema-agnostic row keyed by column name
type GenericRecord map[string]interface{}

// ScenarioSummary describes a scenario directory for listings
type ScenarioSummary struct {
	Name           string    `json:"name" yaml:"name"`
	Hash           string    `json:"hash" yaml:"hash"`
	Stage          string    `json:"stage" yaml:"stage"`
	Test           bool      `json:"test" yaml:"test"`
	SourceRevision string    `json:"source_revision" yaml:"source_revision"`
	RunID          string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// CreateScenarioRequest asks the API to create a scenario and run it
type CreateScenarioRequest struct {
	Name       string `json:"name"`
	FinalStage string `json:"final_stage"`
}

// CreateScenarioResponse is returned once the run has been scheduled
type CreateScenarioResponse struct {
	Name       string    `json:"name"`
	FinalStage string    `json:"final_stage"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScenarioOutput is the metric set recorded by a scenario. Non-finite
// metrics are reported as the strings "+Inf", "-Inf" or "NaN"
type ScenarioOutput struct {
	Name    string                 `json:"name"`
	Stage   string                 `json:"stage"`
	Outputs map[string]interface{} `json:"outputs"`
}

// Artifact describes one file stored in a scenario tree
type Artifact struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}
