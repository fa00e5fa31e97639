package api

import (
	"context"
	"net/http"

	"festival-booking/internal/service"

	"github.com/gin-gonic/gin"
)

type createDateRequest struct {
	Date        string `json:"date" binding:"required"`
	IsAvailable *bool  `json:"is_available"`
}

type toggleDateRequest struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}

type toggleSKURequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type inventoryRequest struct {
	TimeSlotID    string `json:"time_slot_id" binding:"required"`
	SKUID         string `json:"sku_id" binding:"required"`
	TotalQuantity *int   `json:"total_quantity" binding:"required"`
}

func (h *Handler) adminListDates(c *gin.Context) {
	dates, err := h.catalog.AllDates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dates": dates})
}

func (h *Handler) adminCreateDate(c *gin.Context) {
	var req createDateRequest
	if !bindJSON(c, &req) {
		return
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	date, err := h.catalog.CreateDate(c.Request.Context(), req.Date, available)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, date)
}

func (h *Handler) adminToggleDate(c *gin.Context) {
	var req toggleDateRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.catalog.SetDateAvailability(c.Request.Context(), c.Param("id"), *req.IsAvailable); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) adminDeleteDate(c *gin.Context) {
	if err := h.catalog.DeleteDate(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) adminCreateSlot(c *gin.Context) {
	var req service.TimeSlotInput
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.catalog.CreateSlot(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) adminDeleteSlot(c *gin.Context) {
	if err := h.catalog.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) adminListSKUs(c *gin.Context) {
	skus, err := h.catalog.AllSKUs(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skus": skus})
}

func (h *Handler) adminCreateSKU(c *gin.Context) {
	var req service.SKUInput
	if !bindJSON(c, &req) {
		return
	}
	sku, err := h.catalog.CreateSKU(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sku)
}

func (h *Handler) adminToggleSKU(c *gin.Context) {
	var req toggleSKURequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.catalog.SetSKUActive(c.Request.Context(), c.Param("id"), *req.IsActive); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) adminDeleteSKU(c *gin.Context) {
	if err := h.catalog.DeleteSKU(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) adminListInventory(c *gin.Context) {
	slotID := c.Query("time_slot_id")
	if slotID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time_slot_id is required"})
		return
	}
	inventory, err := h.ledger.ListBySlot(c.Request.Context(), slotID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": inventory})
}

func (h *Handler) adminProvisionInventory(c *gin.Context) {
	var req inventoryRequest
	if !bindJSON(c, &req) {
		return
	}
	inv, err := h.ledger.Provision(c.Request.Context(), req.TimeSlotID, req.SKUID, *req.TotalQuantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *Handler) adminSetInventoryTotal(c *gin.Context) {
	var req inventoryRequest
	if !bindJSON(c, &req) {
		return
	}
	inv, err := h.ledger.SetTotal(c.Request.Context(), req.TimeSlotID, req.SKUID, *req.TotalQuantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

type inventoryAdjustRequest struct {
	TimeSlotID string `json:"time_slot_id" binding:"required"`
	SKUID      string `json:"sku_id" binding:"required"`
	Quantity   int    `json:"quantity"`
}

// adminHoldInventory takes tickets off sale for the box office
func (h *Handler) adminHoldInventory(c *gin.Context) {
	h.adjustInventory(c, h.ledger.Reserve)
}

// adminReleaseInventory puts held tickets back on sale
func (h *Handler) adminReleaseInventory(c *gin.Context) {
	h.adjustInventory(c, h.ledger.Release)
}

func (h *Handler) adjustInventory(c *gin.Context, adjust func(ctx context.Context, timeSlotID, skuID string, quantity int) error) {
	var req inventoryAdjustRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	if err := adjust(ctx, req.TimeSlotID, req.SKUID, req.Quantity); err != nil {
		h.respondError(c, err)
		return
	}
	available, err := h.ledger.GetAvailability(ctx, req.TimeSlotID, req.SKUID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"time_slot_id": req.TimeSlotID, "sku_id": req.SKUID, "available": available})
}

func (h *Handler) adminListCoupons(c *gin.Context) {
	coupons, err := h.coupons.List(c.Request.Context(), c.Query("event_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

func (h *Handler) adminGetCoupon(c *gin.Context) {
	coupon, err := h.coupons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, coupon)
}

func (h *Handler) adminCreateCoupon(c *gin.Context) {
	var req service.CouponInput
	if !bindJSON(c, &req) {
		return
	}
	coupon, err := h.coupons.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func (h *Handler) adminUpdateCoupon(c *gin.Context) {
	var req service.CouponInput
	if !bindJSON(c, &req) {
		return
	}
	coupon, err := h.coupons.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, coupon)
}

func (h *Handler) adminDeleteCoupon(c *gin.Context) {
	if err := h.coupons.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
