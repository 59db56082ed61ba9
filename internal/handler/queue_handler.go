package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type QueueHandler struct {
	queueService service.QueueService
}

func NewQueueHandler(queueService service.QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

func (h *QueueHandler) RegisterRoutes(router *gin.RouterGroup) {
	queues := router.Group("/api/queues")
	queues.Use(middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor))
	{
		queues.GET("/stats", h.Stats)
		queues.GET("/:kind", h.List)
		queues.GET("/entries/:id", h.Get)
		queues.POST("/entries/:id/claim", h.Claim)
		queues.POST("/entries/:id/release", h.Release)
		queues.POST("/entries/:id/decide", h.Decide)
		queues.POST("/entries/bulk-decide", h.BulkDecide)
	}
}

// Stats returns pending entry counts per queue
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queueService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// List returns entries of one queue, pending first by priority then age
func (h *QueueHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.SupervisionFilter{
		QueueKind: c.Param("kind"),
		Status:    c.Query("status"),
		Page:      p.Page,
		Limit:     p.Limit,
	}

	entries, total, err := h.queueService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   entries,
		"total":  total,
		"page":   p.Page,
		"limit":  p.Limit,
	})
}

// Get returns one queue entry with its anomaly detail
func (h *QueueHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid entry id"))
		return
	}

	entry, err := h.queueService.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// Claim takes the entry for the authenticated operator
func (h *QueueHandler) Claim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid entry id"))
		return
	}

	if err := h.queueService.Claim(c.Request.Context(), id, middleware.OperatorFrom(c)); err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"claimed": true}))
}

// Release gives a claimed entry back to the queue
func (h *QueueHandler) Release(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid entry id"))
		return
	}

	if err := h.queueService.Release(c.Request.Context(), id, middleware.OperatorFrom(c)); err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"released": true}))
}

// Decide finalizes a claimed entry with APPROVE, MODIFY or REJECT
func (h *QueueHandler) Decide(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid entry id"))
		return
	}

	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.queueService.Decide(c.Request.Context(), id, middleware.OperatorFrom(c), req)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

type bulkDecideRequest struct {
	EntryIDs []string                `json:"entry_ids" binding:"required"`
	Decision service.DecisionRequest `json:"decision" binding:"required"`
}

// BulkDecide applies one decision to many entries atomically
func (h *QueueHandler) BulkDecide(c *gin.Context) {
	var req bulkDecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	ids := make([]uuid.UUID, 0, len(req.EntryIDs))
	for _, raw := range req.EntryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid entry id "+raw))
			return
		}
		ids = append(ids, id)
	}

	result, err := h.queueService.BulkDecide(c.Request.Context(), ids, middleware.OperatorFrom(c), req.Decision)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
