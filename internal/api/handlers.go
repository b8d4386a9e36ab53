package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/malosaaa/p2000mon/internal/coordinator"
	"github.com/malosaaa/p2000mon/internal/scrape"
)

type Handler struct {
	manager *coordinator.Manager
	fetcher *scrape.Fetcher
	logger  *logrus.Logger
}

func NewHandler(manager *coordinator.Manager, fetcher *scrape.Fetcher, logger *logrus.Logger) *Handler {
	return &Handler{manager: manager, fetcher: fetcher, logger: logger}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "instances": len(h.manager.List())})
}

func (h *Handler) ListInstances(c *gin.Context) {
	coords := h.manager.List()
	out := make([]coordinator.PublishedState, 0, len(coords))
	for _, coord := range coords {
		out = append(out, coord.Published())
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetInstance(c *gin.Context) {
	name := c.Param("name")
	coord, ok := h.manager.Get(name)
	if !ok {
		h.logger.Errorf("Unknown instance %s", name)
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
		return
	}

	c.JSON(http.StatusOK, coord.Published())
}

func (h *Handler) GetDiagnostics(c *gin.Context) {
	name := c.Param("name")
	coord, ok := h.manager.Get(name)
	if !ok {
		h.logger.Errorf("Unknown instance %s", name)
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
		return
	}

	c.JSON(http.StatusOK, coord.Diagnose())
}

func (h *Handler) TriggerPoll(c *gin.Context) {
	name := c.Param("name")
	coord, ok := h.manager.Get(name)
	if !ok {
		h.logger.Errorf("Unknown instance %s", name)
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
		return
	}

	// The poll outlives the request on purpose: its result lands in the
	// instance state, not in this response.
	if !coord.PollAsync(context.Background()) {
		c.JSON(http.StatusConflict, gin.H{"error": "Poll already running"})
		return
	}

	h.logger.Infof("Manual poll started for instance %s", name)
	c.JSON(http.StatusAccepted, gin.H{"status": "poll started", "instance": name})
}

// ValidateRegionRequest is the body of a validation probe.
type ValidateRegionRequest struct {
	RegionPath string `json:"region_path" binding:"required"`
}

func (h *Handler) ValidateRegion(c *gin.Context) {
	var req ValidateRegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for validate: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rec, err := coordinator.Probe(c.Request.Context(), h.fetcher, req.RegionPath)
	if err != nil {
		status, msg := probeErrorResponse(err)
		h.logger.Errorf("Validation of region path %q failed: %v", req.RegionPath, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	h.logger.Infof("Validated region path %q", req.RegionPath)
	c.JSON(http.StatusOK, gin.H{
		"region_path":    req.RegionPath,
		"url":            h.fetcher.URL(req.RegionPath),
		"newest_message": rec,
	})
}

// probeErrorResponse maps a probe failure onto a response status and message.
func probeErrorResponse(err error) (int, string) {
	var ferr *scrape.FetchError
	if errors.As(err, &ferr) {
		switch ferr.Kind {
		case scrape.KindHTTPStatus:
			if ferr.Status == http.StatusNotFound {
				return http.StatusNotFound, "Region path not found"
			}
			return http.StatusBadGateway, fmt.Sprintf("Upstream returned status %d", ferr.Status)
		case scrape.KindTimeout:
			return http.StatusGatewayTimeout, "Upstream timed out"
		case scrape.KindEmptyBody:
			return http.StatusBadGateway, "Upstream returned an empty page"
		default:
			return http.StatusBadGateway, "Cannot reach upstream site"
		}
	}
	if errors.Is(err, scrape.ErrStructureChanged) {
		return http.StatusUnprocessableEntity, "No readable messages on page"
	}
	return http.StatusInternalServerError, "Validation failed"
}
