package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/malosaaa/p2000mon/internal/config"
	"github.com/malosaaa/p2000mon/internal/coordinator"
	"github.com/malosaaa/p2000mon/internal/scrape"
)

// NewRouter wires the HTTP surface: health and metrics at the root, the
// instance read API and the validation probe under the configured base path.
func NewRouter(manager *coordinator.Manager, fetcher *scrape.Fetcher, gatherer prometheus.Gatherer, logger *logrus.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := NewHandler(manager, fetcher, logger)

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group(cfg.BasePath)
	{
		// Instances
		api.GET("/instances", h.ListInstances)
		api.GET("/instances/:name", h.GetInstance)
		api.GET("/instances/:name/diagnostics", h.GetDiagnostics)
		api.POST("/instances/:name/poll", h.TriggerPoll)

		// Region path validation
		api.POST("/validate", h.ValidateRegion)
	}
	return r
}
