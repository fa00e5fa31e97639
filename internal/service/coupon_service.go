package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/pricing"
	"festival-booking/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CouponService validates coupons for the storefront and manages them for admins
type CouponService struct {
	store          CouponStore
	clock          *Clock
	currencySymbol string
	logger         *zap.Logger
}

// NewCouponService creates a new coupon service
func NewCouponService(store CouponStore, clock *Clock, currencySymbol string) *CouponService {
	return &CouponService{
		store:          store,
		clock:          clock,
		currencySymbol: currencySymbol,
		logger:         util.GetLogger(),
	}
}

// Validate checks a coupon code against an order without changing anything.
// A rejected coupon is a Verdict with Valid=false, not an error.
func (cs *CouponService) Validate(ctx context.Context, code, eventID string, subtotal decimal.Decimal) (pricing.Verdict, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Validate", attribute.String("coupon_code", code))
	defer span.End()

	if subtotal.IsNegative() {
		return pricing.Verdict{}, invalidField("order_total", "Order total cannot be negative")
	}

	_, verdict, err := cs.evaluate(ctx, code, eventID, subtotal)
	if err != nil {
		util.FailSpan(span, err)
		return pricing.Verdict{}, err
	}
	return verdict, nil
}

func (cs *CouponService) evaluate(ctx context.Context, code, eventID string, subtotal decimal.Decimal) (*models.Coupon, pricing.Verdict, error) {
	var coupon *models.Coupon
	if code = strings.TrimSpace(code); code != "" {
		c, err := cs.store.GetCouponByCode(ctx, code)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, pricing.Verdict{}, err
		}
		coupon = c
	}

	verdict := pricing.Evaluate(coupon, pricing.OrderContext{
		EventID:        eventID,
		Subtotal:       subtotal,
		Today:          cs.clock.Today(),
		CurrencySymbol: cs.currencySymbol,
	})

	if verdict.Valid {
		util.CouponValidationsTotal.WithLabelValues("valid").Inc()
	} else {
		util.CouponValidationsTotal.WithLabelValues("invalid").Inc()
		cs.logger.Debug("Coupon rejected",
			zap.String("coupon_code", code),
			zap.String("reason", verdict.Reason))
	}
	return coupon, verdict, nil
}

// CouponInput is the admin payload for creating or patching a coupon.
// Absent fields are left untouched on update. Empty or zero optional
// fields clear the stored value.
type CouponInput struct {
	Code           *string          `json:"code"`
	EventID        *string          `json:"event_id"`
	DiscountType   *string          `json:"discount_type"`
	DiscountValue  *decimal.Decimal `json:"discount_value"`
	MinOrderAmount *decimal.Decimal `json:"min_order_amount"`
	MaxDiscount    *decimal.Decimal `json:"max_discount"`
	UsageLimit     *int             `json:"usage_limit"`
	StartDate      *string          `json:"start_date"`
	EndDate        *string          `json:"end_date"`
	IsActive       *bool            `json:"is_active"`
}

// List returns coupons usable for eventID, global ones included. An empty
// eventID lists everything.
func (cs *CouponService) List(ctx context.Context, eventID string) ([]models.Coupon, error) {
	return cs.store.ListCoupons(ctx, eventID)
}

// Get retrieves a coupon by ID
func (cs *CouponService) Get(ctx context.Context, id string) (*models.Coupon, error) {
	return cs.store.GetCoupon(ctx, id)
}

// Create adds a coupon
func (cs *CouponService) Create(ctx context.Context, in CouponInput) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Create")
	defer span.End()

	c := &models.Coupon{
		ID:       uuid.New().String(),
		IsActive: true,
	}

	verr := &ValidationError{}
	if in.Code == nil || strings.TrimSpace(*in.Code) == "" {
		verr.Add("code", "Code is required")
	}
	if in.DiscountType == nil {
		verr.Add("discount_type", "Discount type is required")
	}
	if in.DiscountValue == nil {
		verr.Add("discount_value", "Discount value is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	applyCouponInput(c, in)
	if err := validateCoupon(c); err != nil {
		return nil, err
	}

	if err := cs.store.CreateCoupon(ctx, c); err != nil {
		return nil, err
	}

	cs.logger.Info("Coupon created", zap.String("coupon_id", c.ID), zap.String("code", c.Code))
	return c, nil
}

// Update patches a coupon. used_count is never written.
func (cs *CouponService) Update(ctx context.Context, id string, in CouponInput) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Update", attribute.String("coupon_id", id))
	defer span.End()

	c, err := cs.store.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Code != nil && strings.TrimSpace(*in.Code) == "" {
		return nil, invalidField("code", "Code is required")
	}

	applyCouponInput(c, in)
	if err := validateCoupon(c); err != nil {
		return nil, err
	}

	if err := cs.store.UpdateCoupon(ctx, c); err != nil {
		return nil, err
	}

	cs.logger.Info("Coupon updated", zap.String("coupon_id", c.ID), zap.String("code", c.Code))
	return c, nil
}

// Delete removes a coupon. Orders keep the code they were priced with.
func (cs *CouponService) Delete(ctx context.Context, id string) error {
	return cs.store.DeleteCoupon(ctx, id)
}

func applyCouponInput(c *models.Coupon, in CouponInput) {
	if in.Code != nil {
		c.Code = strings.ToUpper(strings.TrimSpace(*in.Code))
	}
	if in.EventID != nil {
		c.EventID = optionalString(*in.EventID)
	}
	if in.DiscountType != nil {
		c.DiscountType = strings.TrimSpace(*in.DiscountType)
	}
	if in.DiscountValue != nil {
		c.DiscountValue = *in.DiscountValue
	}
	if in.MinOrderAmount != nil {
		c.MinOrderAmount = optionalAmount(*in.MinOrderAmount)
	}
	if in.MaxDiscount != nil {
		c.MaxDiscount = optionalAmount(*in.MaxDiscount)
	}
	if in.UsageLimit != nil {
		c.UsageLimit = nil
		if *in.UsageLimit != 0 {
			limit := *in.UsageLimit
			c.UsageLimit = &limit
		}
	}
	if in.StartDate != nil {
		c.StartDate = optionalString(*in.StartDate)
	}
	if in.EndDate != nil {
		c.EndDate = optionalString(*in.EndDate)
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

func validateCoupon(c *models.Coupon) error {
	verr := &ValidationError{}

	switch c.DiscountType {
	case models.DiscountTypePercentage:
		if c.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			verr.Add("discount_value", "Percentage discount cannot exceed 100")
		}
	case models.DiscountTypeFixedAmount:
		if c.MaxDiscount.Valid {
			verr.Add("max_discount", "Max discount only applies to percentage coupons")
		}
	default:
		verr.Add("discount_type", "Discount type must be percentage or fixed_amount")
	}

	if !c.DiscountValue.IsPositive() {
		verr.Add("discount_value", "Discount value must be greater than 0")
	}
	if c.MinOrderAmount.Valid && c.MinOrderAmount.Decimal.IsNegative() {
		verr.Add("min_order_amount", "Minimum order amount cannot be negative")
	}
	if c.MaxDiscount.Valid && c.MaxDiscount.Decimal.IsNegative() {
		verr.Add("max_discount", "Max discount cannot be negative")
	}
	if c.UsageLimit != nil {
		if *c.UsageLimit <= 0 {
			verr.Add("usage_limit", "Usage limit must be greater than 0")
		} else if *c.UsageLimit < c.UsedCount {
			verr.Add("usage_limit", "Usage limit cannot be below the times already used")
		}
	}

	start, startOK := parseDate(c.StartDate)
	end, endOK := parseDate(c.EndDate)
	if !startOK {
		verr.Add("start_date", "Start date must be formatted as YYYY-MM-DD")
	}
	if !endOK {
		verr.Add("end_date", "End date must be formatted as YYYY-MM-DD")
	}
	if startOK && endOK && c.StartDate != nil && c.EndDate != nil && start.After(end) {
		verr.Add("end_date", "End date must not be before start date")
	}

	return verr.OrNil()
}

// parseDate accepts a nil date as valid
func parseDate(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", *s)
	return t, err == nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalAmount(d decimal.Decimal) decimal.NullDecimal {
	if d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
