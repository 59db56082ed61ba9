package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	audits := router.Group("/api/audit")
	audits.Use(middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor))
	{
		audits.GET("", h.List)
	}
}

// List returns activity log entries, newest first
func (h *AuditHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.AuditFilter{
		Operator:   c.Query("operator"),
		Action:     c.Query("action"),
		EntityKind: c.Query("entity_kind"),
		EntityID:   c.Query("entity_id"),
		Page:       p.Page,
		Limit:      p.Limit,
	}

	entries, total, err := h.auditService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": http.StatusInternalServerError, "error": err.Error()})
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
