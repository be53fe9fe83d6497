package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/go-graphrag/pkg/server/dto"
)

const serviceName = "go-graphrag"

// HealthHandler handles health check requests
type HealthHandler struct {
	graph Graph
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(graph Graph) *HealthHandler {
	return &HealthHandler{graph: graph}
}

// HealthCheck handles GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// ReadinessCheck handles GET /ready. The service is ready once a pipeline
// run has produced a graph.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	store, err := h.graph.Store()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   dto.ErrNotReady,
			Message: err.Error(),
			Code:    http.StatusServiceUnavailable,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ready",
		"service":       serviceName,
		"entities":      store.NumEntities(),
		"relationships": store.NumRelationships(),
	})
}
