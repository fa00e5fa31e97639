package api

import (
	"net/http"
	"net/url"

	"festival-booking/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) listDates(c *gin.Context) {
	dates, err := h.catalog.ListDates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

func (h *Handler) listSlots(c *gin.Context) {
	slots, err := h.catalog.ListSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

func (h *Handler) listSKUs(c *gin.Context) {
	skus, err := h.catalog.ListSKUsWithAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skus": skus})
}

type validateCouponRequest struct {
	Code       string          `json:"code" binding:"required"`
	EventID    string          `json:"event_id"`
	OrderTotal decimal.Decimal `json:"order_total"`
}

// validateCoupon answers 200 for rejected coupons too; the verdict says why
func (h *Handler) validateCoupon(c *gin.Context) {
	var req validateCouponRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.EventID == "" {
		req.EventID = h.eventID
	}

	verdict, err := h.coupons.Validate(c.Request.Context(), req.Code, req.EventID, req.OrderTotal)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

// createOrder handles checkout
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.Checkout(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type payOrderRequest struct {
	ReturnURL string `json:"return_url"`
}

func (h *Handler) payOrder(c *gin.Context) {
	var req payOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	session, err := h.orders.InitiatePayment(c.Request.Context(), c.Param("id"), req.ReturnURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) confirmOrder(c *gin.Context) {
	order, err := h.orders.ConfirmOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// simulatePayment plays the hosted payment page. Sessions with a return URL
// send the visitor back to the storefront.
func (h *Handler) simulatePayment(c *gin.Context) {
	session, err := h.gateway.Complete(c.Request.Context(), c.Param("merchantOrderId"), c.Query("outcome"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	if session.ReturnURL != "" {
		if u, err := url.Parse(session.ReturnURL); err == nil {
			q := u.Query()
			q.Set("order_id", session.OrderID)
			q.Set("merchant_order_id", session.MerchantOrderID)
			q.Set("status", session.Status)
			u.RawQuery = q.Encode()
			c.Redirect(http.StatusFound, u.String())
			return
		}
	}
	c.JSON(http.StatusOK, session)
}

type checkInRequest struct {
	Payload string `json:"payload" binding:"required"`
}

func (h *Handler) checkIn(c *gin.Context) {
	var req checkInRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.orders.CheckIn(c.Request.Context(), req.Payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
