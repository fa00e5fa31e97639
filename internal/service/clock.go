package service

import "time"

// Clock tells the event-local time
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock returns a clock in the named IANA timezone
func NewClock(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// FixedClock reports t until advanced. Used in tests.
func FixedClock(t time.Time) *Clock {
	return &Clock{loc: t.Location(), now: func() time.Time { return t }}
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	cur := c.now().Add(d)
	c.now = func() time.Time { return cur }
}

// Now returns the current time in the event timezone
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the event-local calendar date as YYYY-MM-DD
func (c *Clock) Today() string {
	return c.Now().Format("2006-01-02")
}
