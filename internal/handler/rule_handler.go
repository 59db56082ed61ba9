package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RuleHandler struct {
	learnerService service.LearnerService
}

func NewRuleHandler(learnerService service.LearnerService) *RuleHandler {
	return &RuleHandler{learnerService: learnerService}
}

func (h *RuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	rules := router.Group("/api/rules")
	{
		rules.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor), h.List)
		rules.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor), h.Get)
		rules.POST("/:id/revoke", middleware.RequireRole(model.RoleAdmin), h.Revoke)
	}
}

// List returns learned rules, optionally filtered by queue
func (h *RuleHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	rules, total, err := h.learnerService.List(c.Request.Context(), c.Query("queue"), p.Page, p.Limit)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   rules,
		"total":  total,
		"page":   p.Page,
		"limit":  p.Limit,
	})
}

// Get returns one rule with its approval and contest counters
func (h *RuleHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid rule id"))
		return
	}

	rule, err := h.learnerService.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// Revoke takes a promoted rule out of service
func (h *RuleHandler) Revoke(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid rule id"))
		return
	}

	rule, err := h.learnerService.Revoke(c.Request.Context(), id, middleware.OperatorFrom(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}
