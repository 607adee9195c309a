package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseDateAcceptedLayouts(t *testing.T) {
	want := NewDate(2024, time.March, 1)
	tests := []struct {
		name  string
		value string
	}{
		{name: "iso date", value: "2024-03-01"},
		{name: "timestamp", value: "2024-03-01 00:00:00"},
		{name: "timestamp with time", value: "2024-03-01 17:45:10"},
		{name: "iso timestamp", value: "2024-03-01T08:00:00"},
		{name: "rfc3339", value: "2024-03-01T08:00:00Z"},
		{name: "slashes", value: "2024/03/01"},
		{name: "us format", value: "03/01/2024"},
		{name: "padded", value: "  2024-03-01 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.value)
			if err != nil {
				t.Fatalf("ParseDate(%q): %v", tt.value, err)
			}
			if !got.Equal(want) {
				t.Fatalf("ParseDate(%q) = %s, want %s", tt.value, got, want)
			}
		})
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "not-a-date", "NaT", "nan", "2024-13-45"} {
		d, err := ParseDate(v)
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("ParseDate(%q) error = %v, want ErrInvalidDate", v, err)
		}
		if !d.IsZero() {
			t.Fatalf("ParseDate(%q) = %s, want zero date", v, d)
		}
	}
}

func TestDateJSON(t *testing.T) {
	rec := Record{Title: "essay", Date: NewDate(2024, time.May, 9)}
	payload, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"title":"essay","date":"2024-05-09","description":""}` {
		t.Fatalf("unexpected payload: %s", payload)
	}

	var absent Record
	if err := json.Unmarshal([]byte(`{"title":"x","date":null}`), &absent); err != nil {
		t.Fatalf("unmarshal null date: %v", err)
	}
	if !absent.Date.IsZero() {
		t.Fatalf("expected zero date, got %s", absent.Date)
	}
	out, err := json.Marshal(absent)
	if err != nil {
		t.Fatalf("marshal absent: %v", err)
	}
	if string(out) != `{"title":"x","date":null,"description":""}` {
		t.Fatalf("unexpected payload for absent date: %s", out)
	}

	var bad Record
	if err := json.Unmarshal([]byte(`{"date":"tomorrow"}`), &bad); err == nil {
		t.Fatalf("expected error for invalid date")
	}
}

func TestDateOfDropsTimeOfDay(t *testing.T) {
	ts := time.Date(2024, time.March, 1, 23, 59, 0, 0, time.UTC)
	if got := DateOf(ts); !got.Equal(NewDate(2024, time.March, 1)) {
		t.Fatalf("DateOf = %s", got)
	}
	if !DateOf(time.Time{}).IsZero() {
		t.Fatalf("expected zero time to map to zero date")
	}
}

func TestFirstDayOfEraIsValid(t *testing.T) {
	d, err := ParseDate("0001-01-01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.IsZero() {
		t.Fatalf("0001-01-01 must not be treated as absent")
	}
	if d.String() != "0001-01-01" {
		t.Fatalf("String = %q", d.String())
	}
	if d.Equal(Date{}) {
		t.Fatalf("valid date must not equal the absent date")
	}
	groups := GroupByDate([]Record{{Title: "epoch", Date: d}, {Title: "undated"}})
	if len(groups) != 1 || groups[0].Records[0].Title != "epoch" {
		t.Fatalf("unexpected groups %#v", groups)
	}
}
