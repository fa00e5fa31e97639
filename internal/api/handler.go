package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/service"
	"festival-booking/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups what the handlers call into
type Services struct {
	Catalog *service.CatalogService
	Ledger  *service.InventoryLedger
	Coupons *service.CouponService
	Orders  *service.OrderService
	Gateway *service.SimulatedGateway
}

// Handler contains HTTP handlers
type Handler struct {
	catalog *service.CatalogService
	ledger  *service.InventoryLedger
	coupons *service.CouponService
	orders  *service.OrderService
	gateway *service.SimulatedGateway
	eventID string
	checks  map[string]Pinger
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, eventID string, checks map[string]Pinger) *Handler {
	return &Handler{
		catalog: svc.Catalog,
		ledger:  svc.Ledger,
		coupons: svc.Coupons,
		orders:  svc.Orders,
		gateway: svc.Gateway,
		eventID: eventID,
		checks:  checks,
		logger:  util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/catalog/dates", h.listDates)
		v1.GET("/catalog/dates/:id/slots", h.listSlots)
		v1.GET("/catalog/slots/:id/skus", h.listSKUs)

		v1.POST("/coupons/validate", h.validateCoupon)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/pay", h.payOrder)
		v1.POST("/orders/:id/confirm", h.confirmOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)

		v1.GET("/payments/simulate/:merchantOrderId", h.simulatePayment)

		v1.POST("/checkin", h.checkIn)
	}

	admin := v1.Group("/admin")
	{
		admin.GET("/dates", h.adminListDates)
		admin.POST("/dates", h.adminCreateDate)
		admin.PATCH("/dates/:id", h.adminToggleDate)
		admin.DELETE("/dates/:id", h.adminDeleteDate)
		admin.GET("/dates/:id/slots", h.listSlots)

		admin.POST("/slots", h.adminCreateSlot)
		admin.DELETE("/slots/:id", h.adminDeleteSlot)

		admin.GET("/skus", h.adminListSKUs)
		admin.POST("/skus", h.adminCreateSKU)
		admin.PATCH("/skus/:id", h.adminToggleSKU)
		admin.DELETE("/skus/:id", h.adminDeleteSKU)

		admin.GET("/inventory", h.adminListInventory)
		admin.POST("/inventory", h.adminProvisionInventory)
		admin.PUT("/inventory", h.adminSetInventoryTotal)
		admin.POST("/inventory/hold", h.adminHoldInventory)
		admin.POST("/inventory/release", h.adminReleaseInventory)

		admin.GET("/coupons", h.adminListCoupons)
		admin.POST("/coupons", h.adminCreateCoupon)
		admin.GET("/coupons/:id", h.adminGetCoupon)
		admin.PATCH("/coupons/:id", h.adminUpdateCoupon)
		admin.DELETE("/coupons/:id", h.adminDeleteCoupon)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// bindJSON decodes the request body and answers 400 on failure
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// respondError maps service errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	var cerr *service.CouponError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": verr.Fields})
	case errors.As(err, &cerr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": cerr.Reason, "details": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})
	case errors.Is(err, models.ErrInsufficientInventory):
		c.JSON(http.StatusConflict, gin.H{"error": "Not enough tickets available", "details": err.Error()})
	case errors.Is(err, models.ErrDuplicateCouponCode),
		errors.Is(err, models.ErrDuplicateInventory),
		errors.Is(err, models.ErrDuplicateOrder),
		errors.Is(err, models.ErrOrderNotPending),
		errors.Is(err, models.ErrInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflict", "details": err.Error()})
	case errors.Is(err, models.ErrPaymentNotCompleted):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Payment not completed", "details": err.Error()})
	case errors.Is(err, models.ErrStoreUnavailable):
		h.logger.Error("Store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
