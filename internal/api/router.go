package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	_ "go-forecast-pipeline/internal/api/docs"
	"go-forecast-pipeline/internal/api/handler"
	"go-forecast-pipeline/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/api/v1/scenarios", h.ListScenarios)
	r.POST("/api/v1/scenarios", h.CreateScenario)
	// More specific routes first
	r.GET("/api/v1/scenarios/*/output", h.GetScenarioOutput)
	r.GET("/api/v1/scenarios/*/runs", h.GetScenarioRuns)
	r.GET("/api/v1/scenarios/*/artifacts", h.ListArtifacts)
	r.GET("/api/v1/scenarios/*/artifacts/*", h.DownloadArtifact)
	// Generic scenario route last
	r.GET("/api/v1/scenarios/*", h.GetScenario)

	r.Handle("/swagger/", httpSwagger.WrapHandler)
}
