package service

import (
	"fmt"
	"sort"
	"strings"

	"festival-booking/internal/models"
)

// ValidationError collects per-field input problems
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

// Add records a problem with field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// OrNil returns e as an error only if something was recorded
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalidField(field, msg string) error {
	e := &ValidationError{}
	e.Add(field, msg)
	return e
}

// CouponError is returned by checkout when the applied coupon is rejected
type CouponError struct {
	Reason string
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("%s: %s", models.ErrCouponInvalid, e.Reason)
}

func (e *CouponError) Unwrap() error {
	return models.ErrCouponInvalid
}
