package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout dates are written with.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned by ParseDate for values that are not a date.
var ErrInvalidDate = errors.New("invalid date")

// Layouts accepted when reading stored dates. Timestamps written by older
// exports ("2024-03-01 00:00:00") keep only their calendar day.
var parseLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"01/02/2006",
}

// Date is a calendar day without a time of day. The zero value means the
// date is absent or could not be parsed; 0001-01-01 is still a valid day.
type Date struct {
	t     time.Time
	valid bool
}

// NewDate returns the date for the given day. Out of range values are
// normalized the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), valid: true}
}

// DateOf returns the calendar day of t in t's location. The zero time.Time
// yields an absent date.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return dayOf(t)
}

func dayOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a stored date value.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nat", "nan", "null", "none":
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dayOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ParseDateStrict only accepts DateLayout.
func ParseDateStrict(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return dayOf(t), nil
}

// IsZero reports whether the date is absent.
func (d Date) IsZero() bool { return !d.valid }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.t }

// Before reports whether d is an earlier day than o.
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// Equal reports whether d and o are the same day, or both absent.
func (d Date) Equal(o Date) bool { return d.valid == o.valid && d.t.Equal(o.t) }

// String formats the date with DateLayout, or returns "" for an absent date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// MarshalJSON encodes the date as "2006-01-02", or null when absent.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts null, "" or a "2006-01-02" string.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDateStrict(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
