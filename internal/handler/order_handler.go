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

type OrderHandler struct {
	orderService     service.OrderService
	exportService    service.ExportService
	lifecycleService service.LifecycleService
}

func NewOrderHandler(orderService service.OrderService, exportService service.ExportService, lifecycleService service.LifecycleService) *OrderHandler {
	return &OrderHandler{
		orderService:     orderService,
		exportService:    exportService,
		lifecycleService: lifecycleService,
	}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/orders")
	orders.Use(middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor))
	{
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.GET("/:id/anomalies", h.Anomalies)
		orders.POST("/:id/request-export", h.RequestExport)
		orders.POST("/:id/export", h.Export)
	}
	// Re-opening an exported order is an admin capability.
	router.POST("/api/orders/:id/reopen", middleware.RequireRole(model.RoleAdmin), h.Reopen)
}

// List returns orders filtered by vendor and state
func (h *OrderHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.OrderFilter{
		VendorCode: c.Query("vendor_code"),
		State:      c.Query("state"),
		Page:       p.Page,
		Limit:      p.Limit,
	}

	orders, total, err := h.orderService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   orders,
		"total":  total,
		"page":   p.Page,
		"limit":  p.Limit,
	})
}

// Get returns one order with its lines and open anomalies
func (h *OrderHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid order id"))
		return
	}

	order, err := h.orderService.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// Anomalies returns the order's open anomalies in resolution order
func (h *OrderHandler) Anomalies(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid order id"))
		return
	}

	anomalies, err := h.orderService.Anomalies(c.Request.Context(), id)
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, anomalies))
}

// RequestExport marks a validated order ready for export
func (h *OrderHandler) RequestExport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid order id"))
		return
	}

	if err := h.exportService.Request(c.Request.Context(), id, middleware.OperatorFrom(c)); err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"state": model.OrderStateReadyToExport}))
}

// Export hands the order record to the management system
func (h *OrderHandler) Export(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid order id"))
		return
	}

	payload, err := h.exportService.Export(c.Request.Context(), id, middleware.OperatorFrom(c))
	if err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, payload))
}

// Reopen returns an exported order to VALIDATED
func (h *OrderHandler) Reopen(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid order id"))
		return
	}

	if err := h.lifecycleService.Reopen(c.Request.Context(), id, middleware.OperatorFrom(c)); err != nil {
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"state": model.OrderStateValidated}))
}
