package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	adminService service.AdminService
}

func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	{
		admin.POST("/reset", h.Reset)
		admin.POST("/backup", h.Backup)
		admin.GET("/stats", h.Stats)
	}
}

type resetRequest struct {
	Confirmation string `json:"confirmation" binding:"required"`
}

// Reset wipes all ingested data; rules, master data, operators and the
// activity log survive
func (h *AdminHandler) Reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	counts, err := h.adminService.Reset(c.Request.Context(), middleware.OperatorFrom(c), req.Confirmation)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, counts))
}

// Backup writes a JSON snapshot and returns its path
func (h *AdminHandler) Backup(c *gin.Context) {
	path, err := h.adminService.Backup(c.Request.Context(), middleware.OperatorFrom(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"path": path}))
}

// Stats returns system-wide counters
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
