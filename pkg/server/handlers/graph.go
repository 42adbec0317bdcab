package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmesh/skillgraph"
	"github.com/skillmesh/skillgraph/pkg/server/dto"
	"github.com/skillmesh/skillgraph/pkg/types"
)

// GraphHandler serves community detection and topology export.
type GraphHandler struct {
	detector skillgraph.CommunityDetector
	exporter skillgraph.TopologyExporter
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(detector skillgraph.CommunityDetector, exporter skillgraph.TopologyExporter) *GraphHandler {
	return &GraphHandler{detector: detector, exporter: exporter}
}

// Detect handles POST /api/v1/orgs/:org_id/detect
func (h *GraphHandler) Detect(c *gin.Context) {
	orgID := c.Param("org_id")
	result, err := h.detector.DetectCommunities(c.Request.Context(), orgID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrEmptyOrgID) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.ErrorResponse{Error: "detection failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Topology handles GET /api/v1/orgs/:org_id/topology. The principal comes
// from the X-Principal-ID header; absent means anonymous.
func (h *GraphHandler) Topology(c *gin.Context) {
	orgID := c.Param("org_id")
	principalID := c.GetHeader("X-Principal-ID")

	topology, err := h.exporter.GetTopology(c.Request.Context(), orgID, principalID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrEmptyOrgID) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.ErrorResponse{Error: "topology export failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, topology)
}
