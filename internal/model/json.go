package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID is a backend identifier. The API is not consistent about encoding ids
// as numbers or strings, so both are accepted and numeric ids are written
// back as numbers.
type ID string

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool { return id == "" }

// IsNumericZero reports whether the id is the number 0, which the API uses
// as a missing id.
func (id ID) IsNumericZero() bool {
	n, err := strconv.ParseFloat(string(id), 64)
	return err == nil && n == 0
}

func (id ID) String() string { return string(id) }

// Ptr returns a pointer to a copy of id.
func (id ID) Ptr() *ID { return &id }

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	s, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(s)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(string(id)), nil
	}
	return json.Marshal(string(id))
}

// Text is a display value the API may send as a string or a number, such
// as a coupon discount.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	s, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("decode text: %w", err)
	}
	*t = Text(s)
	return nil
}

// Count is a quantity the API may send as a number or a numeric string.
// Values that carry no usable number decode as 0.
type Count int

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*c = 1
		return nil
	case len(data) == 0, data[0] == '{', data[0] == '[',
		bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*c = 0
		return nil
	}

	s, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("decode count: %w", err)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		*c = 0
		return nil
	}
	*c = Count(math.Trunc(n))
	return nil
}

// Flag is a status field evaluated by truthiness: false, null, 0 and ""
// are false, anything else is true.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		*f = false
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		*f = s != ""
	case data[0] == '{' || data[0] == '[':
		*f = true
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*f = false
	case bytes.Equal(data, []byte("true")):
		*f = true
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		*f = n != 0
	}
	return nil
}

func scalarText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
