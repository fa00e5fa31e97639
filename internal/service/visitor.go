package service

import (
	"regexp"
	"strings"
)

var (
	namePattern  = regexp.MustCompile(`^[\p{L}\s\-']+$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// Visitor identifies the ticket holder
type Visitor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Normalize validates the visitor and returns a cleaned copy: trimmed name,
// lower-cased e-mail and a digits-only phone number.
func (v Visitor) Normalize() (Visitor, error) {
	verr := &ValidationError{}

	name := strings.Join(strings.Fields(v.Name), " ")
	switch {
	case len([]rune(name)) < 2:
		verr.Add("visitor.name", "Name must be at least 2 characters")
	case !namePattern.MatchString(name):
		verr.Add("visitor.name", "Name can only contain letters, spaces, hyphens and apostrophes")
	}

	email := strings.ToLower(strings.TrimSpace(v.Email))
	if !emailPattern.MatchString(email) {
		verr.Add("visitor.email", "Please enter a valid email address")
	}

	phone := nonDigits.ReplaceAllString(v.Phone, "")
	if len(phone) < 10 || len(phone) > 15 {
		verr.Add("visitor.phone", "Phone number must have 10 to 15 digits")
	}

	if err := verr.OrNil(); err != nil {
		return Visitor{}, err
	}
	return Visitor{Name: name, Email: email, Phone: phone}, nil
}
