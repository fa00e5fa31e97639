package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"festival-booking/internal/models"
	"festival-booking/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// SKUAvailability is an active SKU with its live availability for a slot
type SKUAvailability struct {
	models.SKU
	Available int `json:"available"`
}

// CatalogService serves the storefront catalog and its admin surface
type CatalogService struct {
	store   CatalogStore
	ledger  *InventoryLedger
	eventID string
}

// NewCatalogService creates a new catalog service for one event
func NewCatalogService(store CatalogStore, ledger *InventoryLedger, eventID string) *CatalogService {
	return &CatalogService{store: store, ledger: ledger, eventID: eventID}
}

// ListDates returns the dates open for booking
func (cs *CatalogService) ListDates(ctx context.Context) ([]models.EventDate, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListDates")
	defer span.End()

	return cs.store.ListEventDates(ctx, cs.eventID, true)
}

// ListSlots returns the time slots of a date
func (cs *CatalogService) ListSlots(ctx context.Context, eventDateID string) ([]models.TimeSlot, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListSlots", attribute.String("event_date_id", eventDateID))
	defer span.End()

	if _, err := cs.store.GetEventDate(ctx, eventDateID); err != nil {
		return nil, err
	}
	return cs.store.ListTimeSlots(ctx, eventDateID)
}

// ListSKUsWithAvailability returns the active SKUs with what is left of each in the slot
func (cs *CatalogService) ListSKUsWithAvailability(ctx context.Context, timeSlotID string) ([]SKUAvailability, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListSKUsWithAvailability", attribute.String("time_slot_id", timeSlotID))
	defer span.End()

	if _, err := cs.store.GetTimeSlot(ctx, timeSlotID); err != nil {
		return nil, err
	}

	skus, err := cs.store.ListSKUs(ctx, cs.eventID, true)
	if err != nil {
		return nil, err
	}

	result := make([]SKUAvailability, 0, len(skus))
	for _, sku := range skus {
		available, err := cs.ledger.GetAvailability(ctx, timeSlotID, sku.ID)
		if err != nil {
			util.FailSpan(span, err)
			return nil, err
		}
		result = append(result, SKUAvailability{SKU: sku, Available: available})
	}
	return result, nil
}

// AllDates lists every date of the event, including unavailable ones
func (cs *CatalogService) AllDates(ctx context.Context) ([]models.EventDate, error) {
	return cs.store.ListEventDates(ctx, cs.eventID, false)
}

// CreateDate adds a calendar date (YYYY-MM-DD) to the event
func (cs *CatalogService) CreateDate(ctx context.Context, date string, available bool) (*models.EventDate, error) {
	date = strings.TrimSpace(date)
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, invalidField("date", "Date must be formatted as YYYY-MM-DD")
	}

	d := &models.EventDate{
		ID:          uuid.New().String(),
		EventID:     cs.eventID,
		Date:        date,
		IsAvailable: available,
	}
	if err := cs.store.CreateEventDate(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// SetDateAvailability opens or closes a date for booking
func (cs *CatalogService) SetDateAvailability(ctx context.Context, id string, available bool) error {
	return cs.store.SetEventDateAvailability(ctx, id, available)
}

// DeleteDate removes a date that no order references
func (cs *CatalogService) DeleteDate(ctx context.Context, id string) error {
	return cs.store.DeleteEventDate(ctx, id)
}

// TimeSlotInput is the admin payload for a new time slot
type TimeSlotInput struct {
	EventDateID string `json:"event_date_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Capacity    int    `json:"capacity"`
}

// CreateSlot adds a time slot to a date. Times are HH:MM and start must precede end.
func (cs *CatalogService) CreateSlot(ctx context.Context, in TimeSlotInput) (*models.TimeSlot, error) {
	verr := &ValidationError{}
	if in.EventDateID == "" {
		verr.Add("event_date_id", "Event date is required")
	}
	if !clockPattern.MatchString(in.StartTime) {
		verr.Add("start_time", "Start time must be formatted as HH:MM")
	}
	if !clockPattern.MatchString(in.EndTime) {
		verr.Add("end_time", "End time must be formatted as HH:MM")
	}
	// zero-padded HH:MM compares correctly as strings
	if verr.OrNil() == nil && in.StartTime >= in.EndTime {
		verr.Add("end_time", "End time must be after start time")
	}
	if in.Capacity < 0 {
		verr.Add("capacity", "Capacity cannot be negative")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if _, err := cs.store.GetEventDate(ctx, in.EventDateID); err != nil {
		return nil, err
	}

	slot := &models.TimeSlot{
		ID:          uuid.New().String(),
		EventDateID: in.EventDateID,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Capacity:    in.Capacity,
	}
	if err := cs.store.CreateTimeSlot(ctx, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// DeleteSlot removes a time slot that no order references
func (cs *CatalogService) DeleteSlot(ctx context.Context, id string) error {
	return cs.store.DeleteTimeSlot(ctx, id)
}

// AllSKUs lists every SKU of the event, including inactive ones
func (cs *CatalogService) AllSKUs(ctx context.Context) ([]models.SKU, error) {
	return cs.store.ListSKUs(ctx, cs.eventID, false)
}

// SKUInput is the admin payload for a new SKU
type SKUInput struct {
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Category    *string         `json:"category"`
	IsActive    *bool           `json:"is_active"`
}

// CreateSKU adds a ticket type. New SKUs are active unless stated otherwise.
func (cs *CatalogService) CreateSKU(ctx context.Context, in SKUInput) (*models.SKU, error) {
	name := strings.TrimSpace(in.Name)

	verr := &ValidationError{}
	if name == "" {
		verr.Add("name", "Name is required")
	}
	if in.BasePrice.IsNegative() {
		verr.Add("base_price", "Base price cannot be negative")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	sku := &models.SKU{
		ID:          uuid.New().String(),
		EventID:     cs.eventID,
		Name:        name,
		Description: in.Description,
		BasePrice:   in.BasePrice,
		Category:    in.Category,
		IsActive:    active,
	}
	if err := cs.store.CreateSKU(ctx, sku); err != nil {
		return nil, err
	}
	return sku, nil
}

// SetSKUActive toggles whether a SKU is sold
func (cs *CatalogService) SetSKUActive(ctx context.Context, id string, active bool) error {
	return cs.store.SetSKUActive(ctx, id, active)
}

// DeleteSKU removes a SKU that no order references
func (cs *CatalogService) DeleteSKU(ctx context.Context, id string) error {
	return cs.store.DeleteSKU(ctx, id)
}
