package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitorNormalize(t *testing.T) {
	v, err := Visitor{Name: "  Anne-Marie   O'Neil ", Email: " Anne@Example.COM ", Phone: "+91 98765-43210"}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, "Anne-Marie O'Neil", v.Name)
	assert.Equal(t, "anne@example.com", v.Email)
	assert.Equal(t, "919876543210", v.Phone)
}

func TestVisitorNormalizeAcceptsUnicodeNames(t *testing.T) {
	_, err := Visitor{Name: "Zoë Ångström", Email: "z@x.io", Phone: "0123456789"}.Normalize()
	assert.NoError(t, err)
}

func TestVisitorNormalizeRejects(t *testing.T) {
	tests := []struct {
		name  string
		in    Visitor
		field string
	}{
		{"short name", Visitor{Name: "A", Email: "a@b.co", Phone: "9876543210"}, "visitor.name"},
		{"digits in name", Visitor{Name: "R2D2", Email: "a@b.co", Phone: "9876543210"}, "visitor.name"},
		{"email without domain dot", Visitor{Name: "Asha", Email: "a@b", Phone: "9876543210"}, "visitor.email"},
		{"email with space", Visitor{Name: "Asha", Email: "a b@c.de", Phone: "9876543210"}, "visitor.email"},
		{"short phone", Visitor{Name: "Asha", Email: "a@b.co", Phone: "12345"}, "visitor.phone"},
		{"long phone", Visitor{Name: "Asha", Email: "a@b.co", Phone: "1234567890123456"}, "visitor.phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Normalize()

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}
