package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// UnknownCustomer is displayed when an order carries no usable customer record.
const UnknownCustomer = "unknown customer"

var (
	// ErrCustomerAbsent is returned by ParseCustomer for empty or null payloads.
	ErrCustomerAbsent = errors.New("customer is absent")
	// ErrCustomerMalformed is returned when the payload is not a customer object.
	ErrCustomerMalformed = errors.New("customer is malformed")
)

var textPolicy = bluemonday.StrictPolicy()

// Customer is the optional buyer record attached to an order.
type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// DisplayName tolerates a nil receiver.
func (c *Customer) DisplayName() string {
	if c == nil {
		return UnknownCustomer
	}
	switch {
	case c.Name != "":
		return c.Name
	case c.Email != "":
		return c.Email
	case c.Phone != "":
		return c.Phone
	default:
		return UnknownCustomer
	}
}

// ParseCustomer decodes a customer payload coming from the data source. It
// never panics: absent, non-object or field-less payloads produce an error and
// a nil customer.
func ParseCustomer(raw []byte) (*Customer, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrCustomerAbsent
	}

	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, errors.Join(ErrCustomerMalformed, err)
	}

	c := &Customer{
		Name:  textField(fields["name"]),
		Email: textField(fields["email"]),
		Phone: textField(fields["phone"]),
	}
	if c.Name == "" && c.Email == "" && c.Phone == "" {
		return nil, ErrCustomerMalformed
	}
	return c, nil
}

// Sanitized returns a copy with markup stripped the way ParseCustomer strips
// it, so stored fields are what search matches against. Nil stays nil.
func (c *Customer) Sanitized() *Customer {
	if c == nil {
		return nil
	}
	return &Customer{
		Name:  sanitizeText(c.Name),
		Email: sanitizeText(c.Email),
		Phone: sanitizeText(c.Phone),
	}
}

// MarshalCustomer is the inverse of ParseCustomer; a nil customer encodes as null.
func MarshalCustomer(c *Customer) []byte {
	if c == nil {
		return []byte("null")
	}
	b, err := json.Marshal(c.Sanitized())
	if err != nil {
		return []byte("null")
	}
	return b
}

func textField(v any) string {
	switch value := v.(type) {
	case string:
		return sanitizeText(value)
	case float64:
		// phone numbers frequently arrive as JSON numbers
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}

func sanitizeText(value string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(value)))
}

// matches reports whether any customer field contains the lowered needle.
func (c *Customer) matches(needle string) bool {
	if c == nil {
		return false
	}
	for _, field := range []string{c.Name, c.Email, c.Phone} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
