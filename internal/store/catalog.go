package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"festival-booking/internal/models"

	"github.com/jmoiron/sqlx"
)

const eventDateColumns = `id, event_id, to_char(date, 'YYYY-MM-DD') AS date, is_available, created_at`

const timeSlotColumns = `id, event_date_id, start_time, end_time, capacity, created_at`

const skuColumns = `id, event_id, name, description, base_price, category, is_active, created_at`

// ListEventDates returns the dates of an event in calendar order
func (s *Store) ListEventDates(ctx context.Context, eventID string, onlyAvailable bool) ([]models.EventDate, error) {
	query := `SELECT ` + eventDateColumns + ` FROM event_dates WHERE event_id = $1`
	if onlyAvailable {
		query += ` AND is_available`
	}
	query += ` ORDER BY date`

	dates := []models.EventDate{}
	if err := s.db.SelectContext(ctx, &dates, query, eventID); err != nil {
		return nil, wrapErr("list event dates", err)
	}
	return dates, nil
}

// GetEventDate retrieves an event date by ID
func (s *Store) GetEventDate(ctx context.Context, id string) (*models.EventDate, error) {
	var d models.EventDate
	err := s.db.GetContext(ctx, &d, `SELECT `+eventDateColumns+` FROM event_dates WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("event date", id)
	}
	if err != nil {
		return nil, wrapErr("get event date", err)
	}
	return &d, nil
}

// CreateEventDate inserts a new event date
func (s *Store) CreateEventDate(ctx context.Context, d *models.EventDate) error {
	err := s.db.GetContext(ctx, &d.CreatedAt,
		`INSERT INTO event_dates (id, event_id, date, is_available) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		d.ID, d.EventID, d.Date, d.IsAvailable)
	if err != nil {
		return wrapErr("create event date", err)
	}
	return nil
}

// SetEventDateAvailability toggles whether a date is offered on the storefront
func (s *Store) SetEventDateAvailability(ctx context.Context, id string, available bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE event_dates SET is_available = $1 WHERE id = $2`, available, id)
	if err != nil {
		return wrapErr("update event date", err)
	}
	return expectOne(res, "event date", id)
}

// DeleteEventDate removes a date and, by cascade, its time slots
func (s *Store) DeleteEventDate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM event_dates WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete event date %s: %w", id, models.ErrInUse)
	}
	if err != nil {
		return wrapErr("delete event date", err)
	}
	return expectOne(res, "event date", id)
}

// ListTimeSlots returns the slots of a date ordered by start time
func (s *Store) ListTimeSlots(ctx context.Context, eventDateID string) ([]models.TimeSlot, error) {
	slots := []models.TimeSlot{}
	err := s.db.SelectContext(ctx, &slots,
		`SELECT `+timeSlotColumns+` FROM time_slots WHERE event_date_id = $1 ORDER BY start_time`, eventDateID)
	if err != nil {
		return nil, wrapErr("list time slots", err)
	}
	return slots, nil
}

// GetTimeSlot retrieves a time slot by ID
func (s *Store) GetTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	var slot models.TimeSlot
	err := s.db.GetContext(ctx, &slot, `SELECT `+timeSlotColumns+` FROM time_slots WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("time slot", id)
	}
	if err != nil {
		return nil, wrapErr("get time slot", err)
	}
	return &slot, nil
}

// CreateTimeSlot inserts a new time slot
func (s *Store) CreateTimeSlot(ctx context.Context, slot *models.TimeSlot) error {
	err := s.db.GetContext(ctx, &slot.CreatedAt,
		`INSERT INTO time_slots (id, event_date_id, start_time, end_time, capacity)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		slot.ID, slot.EventDateID, slot.StartTime, slot.EndTime, slot.Capacity)
	if err != nil {
		return wrapErr("create time slot", err)
	}
	return nil
}

// DeleteTimeSlot removes a time slot and its inventory rows
func (s *Store) DeleteTimeSlot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete time slot %s: %w", id, models.ErrInUse)
	}
	if err != nil {
		return wrapErr("delete time slot", err)
	}
	return expectOne(res, "time slot", id)
}

// ListSKUs returns the ticket types of an event
func (s *Store) ListSKUs(ctx context.Context, eventID string, onlyActive bool) ([]models.SKU, error) {
	query := `SELECT ` + skuColumns + ` FROM skus WHERE event_id = $1`
	if onlyActive {
		query += ` AND is_active`
	}
	query += ` ORDER BY base_price, name`

	skus := []models.SKU{}
	if err := s.db.SelectContext(ctx, &skus, query, eventID); err != nil {
		return nil, wrapErr("list skus", err)
	}
	return skus, nil
}

// GetSKU retrieves a SKU by ID
func (s *Store) GetSKU(ctx context.Context, id string) (*models.SKU, error) {
	var sku models.SKU
	err := s.db.GetContext(ctx, &sku, `SELECT `+skuColumns+` FROM skus WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("sku", id)
	}
	if err != nil {
		return nil, wrapErr("get sku", err)
	}
	return &sku, nil
}

// GetSKUsByIDs retrieves multiple SKUs by IDs
func (s *Store) GetSKUsByIDs(ctx context.Context, ids []string) ([]models.SKU, error) {
	if len(ids) == 0 {
		return []models.SKU{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+skuColumns+` FROM skus WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var skus []models.SKU
	if err := s.db.SelectContext(ctx, &skus, query, args...); err != nil {
		return nil, wrapErr("get skus", err)
	}
	return skus, nil
}

// CreateSKU inserts a new SKU
func (s *Store) CreateSKU(ctx context.Context, sku *models.SKU) error {
	err := s.db.GetContext(ctx, &sku.CreatedAt,
		`INSERT INTO skus (id, event_id, name, description, base_price, category, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		sku.ID, sku.EventID, sku.Name, sku.Description, sku.BasePrice, sku.Category, sku.IsActive)
	if err != nil {
		return wrapErr("create sku", err)
	}
	return nil
}

// SetSKUActive toggles whether a SKU can be purchased
func (s *Store) SetSKUActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE skus SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return wrapErr("update sku", err)
	}
	return expectOne(res, "sku", id)
}

// DeleteSKU removes a SKU and its inventory rows
func (s *Store) DeleteSKU(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skus WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete sku %s: %w", id, models.ErrInUse)
	}
	if err != nil {
		return wrapErr("delete sku", err)
	}
	return expectOne(res, "sku", id)
}
