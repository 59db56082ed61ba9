package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type IngestionHandler struct {
	ingestionService service.IngestionService
}

func NewIngestionHandler(ingestionService service.IngestionService) *IngestionHandler {
	return &IngestionHandler{ingestionService: ingestionService}
}

func (h *IngestionHandler) RegisterRoutes(router *gin.RouterGroup) {
	acquisitions := router.Group("/api/acquisitions")
	acquisitions.Use(middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor))
	{
		acquisitions.POST("", h.Ingest)
		acquisitions.POST("/batch", h.IngestBatch)
	}
}

// Ingest runs one acquisition through the full pipeline: persistence,
// detection, auto-resolution, queue population and state settlement
func (h *IngestionHandler) Ingest(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	resp, err := h.ingestionService.Ingest(c.Request.Context(), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, resp))
}

// IngestBatch processes independent acquisitions concurrently
func (h *IngestionHandler) IngestBatch(c *gin.Context) {
	var reqs []service.IngestRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	results, err := h.ingestionService.IngestBatch(c.Request.Context(), reqs)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, results))
}
