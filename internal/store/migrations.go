package store

import (
	"context"
	"fmt"

	"festival-booking/internal/util"

	"go.uber.org/zap"
)

// RunMigrations creates the schema if it does not exist yet
func (s *Store) RunMigrations(ctx context.Context) error {
	logger := util.GetLogger()
	logger.Info("Running database migrations")

	migrations := []string{
		createEventDatesTable,
		createTimeSlotsTable,
		createSKUsTable,
		createInventoryTable,
		createCouponsTable,
		createOrdersTable,
		createBookingsTable,
		createPaymentsTable,
		createProcessedEventsTable,
		createOrdersExpiryIndex,
	}

	for i, migration := range migrations {
		logger.Debug("Running migration", zap.Int("step", i+1))
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Info("All migrations completed successfully")
	return nil
}

const createEventDatesTable = `
CREATE TABLE IF NOT EXISTS event_dates (
    id UUID PRIMARY KEY,
    event_id VARCHAR(100) NOT NULL,
    date DATE NOT NULL,
    is_available BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(event_id, date)
);`

const createTimeSlotsTable = `
CREATE TABLE IF NOT EXISTS time_slots (
    id UUID PRIMARY KEY,
    event_date_id UUID NOT NULL REFERENCES event_dates(id) ON DELETE CASCADE,
    start_time VARCHAR(5) NOT NULL,
    end_time VARCHAR(5) NOT NULL,
    capacity INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (start_time ~ '^[0-2][0-9]:[0-5][0-9]$' AND end_time ~ '^[0-2][0-9]:[0-5][0-9]$'),
    CHECK (start_time < end_time),
    CHECK (capacity >= 0)
);`

const createSKUsTable = `
CREATE TABLE IF NOT EXISTS skus (
    id UUID PRIMARY KEY,
    event_id VARCHAR(100) NOT NULL,
    name VARCHAR(200) NOT NULL,
    description TEXT,
    base_price NUMERIC(10,2) NOT NULL,
    category VARCHAR(100),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (base_price >= 0)
);`

const createInventoryTable = `
CREATE TABLE IF NOT EXISTS inventory (
    id UUID PRIMARY KEY,
    time_slot_id UUID NOT NULL REFERENCES time_slots(id) ON DELETE CASCADE,
    sku_id UUID NOT NULL REFERENCES skus(id) ON DELETE CASCADE,
    total_quantity INTEGER NOT NULL,
    available_quantity INTEGER NOT NULL,
    version BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(time_slot_id, sku_id),
    CHECK (available_quantity >= 0 AND available_quantity <= total_quantity)
);`

const createCouponsTable = `
CREATE TABLE IF NOT EXISTS coupons (
    id UUID PRIMARY KEY,
    code VARCHAR(50) NOT NULL,
    event_id VARCHAR(100),
    discount_type VARCHAR(20) NOT NULL,
    discount_value NUMERIC(10,2) NOT NULL,
    min_order_amount NUMERIC(10,2),
    max_discount NUMERIC(10,2),
    usage_limit INTEGER,
    used_count INTEGER NOT NULL DEFAULT 0,
    start_date DATE,
    end_date DATE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (discount_type IN ('percentage', 'fixed_amount')),
    CHECK (discount_value > 0),
    CHECK (used_count >= 0),
    CHECK (usage_limit IS NULL OR used_count <= usage_limit)
);
CREATE UNIQUE INDEX IF NOT EXISTS coupons_code_upper_idx ON coupons (upper(code));`

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
    id UUID PRIMARY KEY,
    event_id VARCHAR(100) NOT NULL,
    time_slot_id UUID NOT NULL REFERENCES time_slots(id),
    idempotency_key VARCHAR(255) NOT NULL UNIQUE,
    visitor_name VARCHAR(200) NOT NULL,
    visitor_email VARCHAR(255) NOT NULL,
    visitor_phone VARCHAR(30) NOT NULL,
    coupon_code VARCHAR(50),
    coupon_redeemed BOOLEAN NOT NULL DEFAULT FALSE,
    subtotal NUMERIC(12,2) NOT NULL,
    discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    total_price NUMERIC(12,2) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    merchant_order_id VARCHAR(100) UNIQUE,
    qr_payload TEXT,
    cancel_reason VARCHAR(50),
    expires_at TIMESTAMPTZ NOT NULL,
    confirmed_at TIMESTAMPTZ,
    cancelled_at TIMESTAMPTZ,
    checked_in_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('pending', 'confirmed', 'cancelled')),
    CHECK (total_price >= 0)
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id UUID PRIMARY KEY,
    order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    time_slot_id UUID NOT NULL REFERENCES time_slots(id),
    sku_id UUID NOT NULL REFERENCES skus(id),
    sku_name VARCHAR(200) NOT NULL,
    quantity INTEGER NOT NULL,
    unit_price NUMERIC(10,2) NOT NULL,
    subtotal NUMERIC(12,2) NOT NULL,
    discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    total_price NUMERIC(12,2) NOT NULL,
    coupon_code VARCHAR(50),
    visitor_name VARCHAR(200) NOT NULL,
    visitor_email VARCHAR(255) NOT NULL,
    visitor_phone VARCHAR(30) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    qr_payload TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (quantity > 0),
    CHECK (status IN ('pending', 'confirmed', 'cancelled'))
);
CREATE INDEX IF NOT EXISTS bookings_order_id_idx ON bookings (order_id);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    merchant_order_id VARCHAR(100) NOT NULL UNIQUE,
    status VARCHAR(20) NOT NULL,
    amount NUMERIC(12,2) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createProcessedEventsTable = `
CREATE TABLE IF NOT EXISTS processed_events (
    event_id VARCHAR(100) PRIMARY KEY,
    event_type VARCHAR(50) NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createOrdersExpiryIndex = `
CREATE INDEX IF NOT EXISTS orders_pending_expiry_idx ON orders (expires_at) WHERE status = 'pending';`
