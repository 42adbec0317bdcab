package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmesh/skillgraph"
	"github.com/skillmesh/skillgraph/pkg/server/dto"
	"github.com/skillmesh/skillgraph/pkg/types"
)

// SearchHandler serves hybrid search requests.
type SearchHandler struct {
	searcher skillgraph.Searcher
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searcher skillgraph.Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	results, err := h.searcher.Search(c.Request.Context(), req.OrgID, req.Query,
		req.QueryEmbedding, req.PrincipalID, req.Limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrEmptyOrgID) || errors.Is(err, skillgraph.ErrEmptyQuery) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.ErrorResponse{Error: "search failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}
