package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"festival-booking/internal/models"

	"github.com/jmoiron/sqlx"
)

const inventoryColumns = `id, time_slot_id, sku_id, total_quantity, available_quantity, version, updated_at`

// ResetMode decides what SetInventoryTotal does with tickets already sold
type ResetMode string

const (
	// PreserveSold keeps sold tickets counted: available = max(0, total - sold)
	PreserveSold ResetMode = "preserve_sold"
	// ResetAvailable overwrites both counters with the new total
	ResetAvailable ResetMode = "reset"
)

// GetInventory retrieves the counter for a (time slot, SKU) pair
func (s *Store) GetInventory(ctx context.Context, timeSlotID, skuID string) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.GetContext(ctx, &inv,
		`SELECT `+inventoryColumns+` FROM inventory WHERE time_slot_id = $1 AND sku_id = $2`,
		timeSlotID, skuID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("inventory", timeSlotID+"/"+skuID)
	}
	if err != nil {
		return nil, wrapErr("get inventory", err)
	}
	return &inv, nil
}

// ListInventoryBySlot returns every provisioned SKU counter of a time slot
func (s *Store) ListInventoryBySlot(ctx context.Context, timeSlotID string) ([]models.Inventory, error) {
	rows := []models.Inventory{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+inventoryColumns+` FROM inventory WHERE time_slot_id = $1 ORDER BY sku_id`, timeSlotID)
	if err != nil {
		return nil, wrapErr("list inventory", err)
	}
	return rows, nil
}

// ProvisionInventory creates the counter for a (time slot, SKU) pair with
// every ticket available.
func (s *Store) ProvisionInventory(ctx context.Context, inv *models.Inventory) error {
	inv.AvailableQuantity = inv.TotalQuantity
	err := s.db.GetContext(ctx, &inv.UpdatedAt,
		`INSERT INTO inventory (id, time_slot_id, sku_id, total_quantity, available_quantity)
		 VALUES ($1, $2, $3, $4, $4) RETURNING updated_at`,
		inv.ID, inv.TimeSlotID, inv.SKUID, inv.TotalQuantity)
	if isUniqueViolation(err) {
		return models.ErrDuplicateInventory
	}
	if err != nil {
		return wrapErr("provision inventory", err)
	}
	return nil
}

// ReserveInventory takes quantity tickets out of the available pool in a
// single conditional statement. A missing row counts as zero available.
func (s *Store) ReserveInventory(ctx context.Context, timeSlotID, skuID string, quantity int) (*models.Inventory, error) {
	return reserve(ctx, s.db, timeSlotID, skuID, quantity)
}

// ReleaseInventory returns quantity tickets to the pool, never above total.
// It returns nil when the pair was never provisioned.
func (s *Store) ReleaseInventory(ctx context.Context, timeSlotID, skuID string, quantity int) (*models.Inventory, error) {
	return release(ctx, s.db, timeSlotID, skuID, quantity)
}

// SetInventoryTotal changes the total of a counter and recomputes availability
func (s *Store) SetInventoryTotal(ctx context.Context, timeSlotID, skuID string, total int, mode ResetMode) (*models.Inventory, error) {
	available := `GREATEST(0, $1 - (total_quantity - available_quantity))`
	if mode == ResetAvailable {
		available = `$1`
	}

	var inv models.Inventory
	err := s.db.GetContext(ctx, &inv,
		`UPDATE inventory SET total_quantity = $1, available_quantity = `+available+`, version = version + 1, updated_at = NOW()
		 WHERE time_slot_id = $2 AND sku_id = $3
		 RETURNING `+inventoryColumns,
		total, timeSlotID, skuID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("inventory", timeSlotID+"/"+skuID)
	}
	if err != nil {
		return nil, wrapErr("set inventory total", err)
	}
	return &inv, nil
}

func reserve(ctx context.Context, q sqlx.QueryerContext, timeSlotID, skuID string, quantity int) (*models.Inventory, error) {
	var inv models.Inventory
	err := sqlx.GetContext(ctx, q, &inv,
		`UPDATE inventory SET available_quantity = available_quantity - $1, version = version + 1, updated_at = NOW()
		 WHERE time_slot_id = $2 AND sku_id = $3 AND available_quantity >= $1
		 RETURNING `+inventoryColumns,
		quantity, timeSlotID, skuID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sku %s in slot %s: %w", skuID, timeSlotID, models.ErrInsufficientInventory)
	}
	if err != nil {
		return nil, wrapErr("reserve inventory", err)
	}
	return &inv, nil
}

func release(ctx context.Context, q sqlx.QueryerContext, timeSlotID, skuID string, quantity int) (*models.Inventory, error) {
	var inv models.Inventory
	err := sqlx.GetContext(ctx, q, &inv,
		`UPDATE inventory SET available_quantity = LEAST(total_quantity, available_quantity + $1), version = version + 1, updated_at = NOW()
		 WHERE time_slot_id = $2 AND sku_id = $3
		 RETURNING `+inventoryColumns,
		quantity, timeSlotID, skuID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("release inventory", err)
	}
	return &inv, nil
}
