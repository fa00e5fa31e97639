// Package ticket builds the document encoded in a confirmed order's QR code
// and renders it as a PNG data URL for the ticket e-mail.
package ticket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"festival-booking/internal/models"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 300

// Event describes where the ticket is valid
type Event struct {
	ID    string
	Name  string
	Venue string
}

// Line is one ticket type on the pass
type Line struct {
	BookingID  string          `json:"bookingId"`
	TicketType string          `json:"ticketType"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

// Payload is the JSON document scanned at the gate
type Payload struct {
	OrderID      string          `json:"orderId"`
	BookingIDs   []string        `json:"bookingIds"`
	VisitorName  string          `json:"visitorName"`
	VisitorEmail string          `json:"visitorEmail"`
	Tickets      []Line          `json:"tickets"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	Date         string          `json:"date"`
	Time         string          `json:"time"`
	EndTime      string          `json:"endTime"`
	EventID      string          `json:"eventId"`
	EventName    string          `json:"eventName"`
	Venue        string          `json:"venue"`
	Status       string          `json:"status"`
}

// Build assembles the payload of a confirmed order
func Build(order *models.Order, bookings []models.Booking, slot *models.TimeSlot, date *models.EventDate, event Event) *Payload {
	p := &Payload{
		OrderID:      order.ID,
		BookingIDs:   make([]string, 0, len(bookings)),
		VisitorName:  order.VisitorName,
		VisitorEmail: order.VisitorEmail,
		Tickets:      make([]Line, 0, len(bookings)),
		TotalPrice:   order.TotalPrice,
		Time:         slot.StartTime,
		EndTime:      slot.EndTime,
		EventID:      event.ID,
		EventName:    event.Name,
		Venue:        event.Venue,
		Status:       models.OrderStatusConfirmed,
	}
	if date != nil {
		p.Date = date.Date
	}

	for _, b := range bookings {
		p.BookingIDs = append(p.BookingIDs, b.ID)
		p.Tickets = append(p.Tickets, Line{
			BookingID:  b.ID,
			TicketType: b.SKUName,
			Quantity:   b.Quantity,
			Price:      b.TotalPrice,
		})
	}
	return p
}

// Encode serialises the payload
func (p *Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ticket payload: %w", err)
	}
	return string(data), nil
}

// Parse reads a scanned payload
func Parse(raw string) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to parse ticket payload: %w", err)
	}
	if p.OrderID == "" {
		return nil, fmt.Errorf("ticket payload has no order id")
	}
	return &p, nil
}

// DataURL renders content as a QR code PNG data URL
func DataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
