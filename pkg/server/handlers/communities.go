package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	graphrag "github.com/soundprediction/go-graphrag"
	"github.com/soundprediction/go-graphrag/pkg/graph"
	"github.com/soundprediction/go-graphrag/pkg/server/dto"
	"github.com/soundprediction/go-graphrag/pkg/types"
)

// Graph is the read side of a pipeline run.
type Graph interface {
	Store() (*graph.Store, error)
	Hierarchy() (*types.Hierarchy, error)
	GetCommunitySummaries(ctx context.Context) (map[int]string, error)
}

// CommunityHandler serves communities, summaries and entities.
type CommunityHandler struct {
	graph Graph
}

// NewCommunityHandler creates a new community handler
func NewCommunityHandler(graph Graph) *CommunityHandler {
	return &CommunityHandler{graph: graph}
}

// ListCommunities handles GET /communities
func (h *CommunityHandler) ListCommunities(c *gin.Context) {
	hier, err := h.graph.Hierarchy()
	if err != nil {
		abortWithError(c, err)
		return
	}

	finest := hier.Finest()
	resp := dto.CommunitiesResponse{
		Communities: make([]dto.CommunityResponse, 0, len(finest)),
		Total:       len(finest),
	}
	if !hier.Empty() {
		resp.Levels = len(hier.Levels)
		resp.Modularity = hier.Modularity
	}
	for _, comm := range finest {
		resp.Communities = append(resp.Communities, communityResponse(comm, false))
	}

	c.JSON(http.StatusOK, resp)
}

// GetCommunity handles GET /communities/:id
func (h *CommunityHandler) GetCommunity(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   dto.ErrInvalidRequest,
			Message: "community id must be an integer",
			Code:    http.StatusBadRequest,
		})
		return
	}

	hier, err := h.graph.Hierarchy()
	if err != nil {
		abortWithError(c, err)
		return
	}
	comm, ok := hier.Community(id)
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   dto.ErrNotFound,
			Message: "community " + strconv.Itoa(id) + " not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	resp := communityResponse(comm, true)
	summaries, err := h.graph.GetCommunitySummaries(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	resp.Summary = summaries[id]

	c.JSON(http.StatusOK, resp)
}

// ListSummaries handles GET /summaries
func (h *CommunityHandler) ListSummaries(c *gin.Context) {
	summaries, err := h.graph.GetCommunitySummaries(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SummariesResponse{
		Summaries: summaries,
		Total:     len(summaries),
	})
}

// GetEntity handles GET /entities/:id
func (h *CommunityHandler) GetEntity(c *gin.Context) {
	store, err := h.graph.Store()
	if err != nil {
		abortWithError(c, err)
		return
	}

	id := c.Param("id")
	entity, err := store.Entity(id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := dto.EntityResponse{
		ID:          entity.ID,
		Type:        entity.Type,
		Description: entity.Description,
		Placeholder: entity.IsPlaceholder(),
		Neighbors:   store.Neighbors(id),
	}

	hier, err := h.graph.Hierarchy()
	if err != nil {
		abortWithError(c, err)
		return
	}
	if cid, ok := hier.FinalAssignment()[id]; ok {
		resp.CommunityID = &cid
	}

	c.JSON(http.StatusOK, resp)
}

func communityResponse(comm types.Community, withMembers bool) dto.CommunityResponse {
	resp := dto.CommunityResponse{
		ID:       comm.ID,
		Level:    comm.Level,
		ParentID: comm.ParentID,
		Size:     comm.Size(),
		Final:    comm.Final,
	}
	if withMembers {
		resp.Members = comm.Members
	}
	return resp
}

// abortWithError maps pipeline errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, dto.ErrInternal
	switch {
	case errors.Is(err, graphrag.ErrNotRun):
		status, code = http.StatusServiceUnavailable, dto.ErrNotReady
	case errors.Is(err, graph.ErrEntityNotFound):
		status, code = http.StatusNotFound, dto.ErrNotFound
	}
	c.JSON(status, dto.ErrorResponse{
		Error:   code,
		Message: err.Error(),
		Code:    status,
	})
}
