package store

import (
	"context"
	"database/sql"
	"errors"

	"festival-booking/internal/models"

	"github.com/jmoiron/sqlx"
)

const couponColumns = `id, code, event_id, discount_type, discount_value, min_order_amount, max_discount,
	usage_limit, used_count, to_char(start_date, 'YYYY-MM-DD') AS start_date,
	to_char(end_date, 'YYYY-MM-DD') AS end_date, is_active, created_at, updated_at`

// ListCoupons returns all coupons, or those usable for eventID (scoped to it
// or global) when eventID is set.
func (s *Store) ListCoupons(ctx context.Context, eventID string) ([]models.Coupon, error) {
	coupons := []models.Coupon{}
	var err error
	if eventID == "" {
		err = s.db.SelectContext(ctx, &coupons,
			`SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	} else {
		err = s.db.SelectContext(ctx, &coupons,
			`SELECT `+couponColumns+` FROM coupons WHERE event_id = $1 OR event_id IS NULL ORDER BY created_at DESC`,
			eventID)
	}
	if err != nil {
		return nil, wrapErr("list coupons", err)
	}
	return coupons, nil
}

// GetCoupon retrieves a coupon by ID
func (s *Store) GetCoupon(ctx context.Context, id string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.GetContext(ctx, &c, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("coupon", id)
	}
	if err != nil {
		return nil, wrapErr("get coupon", err)
	}
	return &c, nil
}

// GetCouponByCode looks a coupon up case-insensitively
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.GetContext(ctx, &c, `SELECT `+couponColumns+` FROM coupons WHERE upper(code) = upper($1)`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("coupon", code)
	}
	if err != nil {
		return nil, wrapErr("get coupon by code", err)
	}
	return &c, nil
}

// CreateCoupon inserts a coupon. Codes are unique regardless of case.
func (s *Store) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO coupons (id, code, event_id, discount_type, discount_value, min_order_amount, max_discount,
			usage_limit, used_count, start_date, end_date, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		c.ID, c.Code, c.EventID, c.DiscountType, c.DiscountValue, c.MinOrderAmount, c.MaxDiscount,
		c.UsageLimit, c.StartDate, c.EndDate, c.IsActive).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateCouponCode
	}
	if err != nil {
		return wrapErr("create coupon", err)
	}
	c.UsedCount = 0
	return nil
}

// UpdateCoupon writes the editable fields of a coupon. used_count is never
// written here.
func (s *Store) UpdateCoupon(ctx context.Context, c *models.Coupon) error {
	err := s.db.QueryRowxContext(ctx,
		`UPDATE coupons SET code = $2, event_id = $3, discount_type = $4, discount_value = $5,
			min_order_amount = $6, max_discount = $7, usage_limit = $8, start_date = $9, end_date = $10,
			is_active = $11, updated_at = NOW()
		 WHERE id = $1
		 RETURNING used_count, updated_at`,
		c.ID, c.Code, c.EventID, c.DiscountType, c.DiscountValue, c.MinOrderAmount, c.MaxDiscount,
		c.UsageLimit, c.StartDate, c.EndDate, c.IsActive).Scan(&c.UsedCount, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("coupon", c.ID)
	}
	if isUniqueViolation(err) {
		return models.ErrDuplicateCouponCode
	}
	if err != nil {
		return wrapErr("update coupon", err)
	}
	return nil
}

// DeleteCoupon removes a coupon
func (s *Store) DeleteCoupon(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return wrapErr("delete coupon", err)
	}
	return expectOne(res, "coupon", id)
}

// redeemCoupon bumps used_count unless the usage limit is already reached.
// It reports whether the coupon was redeemed.
func redeemCoupon(ctx context.Context, tx *sqlx.Tx, code string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE coupons SET used_count = used_count + 1, updated_at = NOW()
		 WHERE upper(code) = upper($1) AND (usage_limit IS NULL OR used_count < usage_limit)`,
		code)
	if err != nil {
		return false, wrapErr("redeem coupon", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("redeem coupon", err)
	}
	return n == 1, nil
}
