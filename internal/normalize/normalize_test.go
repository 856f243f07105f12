package normalize_test

import (
	"math"
	"testing"
	"time"

	"github.com/meterwerk/meter-import-worker/internal/normalize"
)

func TestDate_NativeTime(t *testing.T) {
	in := time.Date(2024, 3, 1, 14, 22, 5, 0, time.UTC)

	got, ok := normalize.Date(in)
	if !ok {
		t.Fatal("expected native time to normalize")
	}

	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDate_SpreadsheetSerial(t *testing.T) {
	// Serial 45352 is 2024-03-01 relative to the 1899-12-30 epoch.
	got, ok := normalize.Date(float64(45352))
	if !ok {
		t.Fatal("expected serial to normalize")
	}

	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDate_SerialWithTimeFraction(t *testing.T) {
	got, ok := normalize.Date(45352.75) // 18:00 on 2024-03-01

	if !ok {
		t.Fatal("expected fractional serial to normalize")
	}
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDate_Strings(t *testing.T) {
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []string{
		"2024-03-01",
		"2024/03/01",
		"2024-03-01T10:30:00Z",
		"2024-03-01 10:30:00",
		"01.03.2024",
		"  01.03.2024  ",
	}

	for _, in := range cases {
		got, ok := normalize.Date(in)
		if !ok {
			t.Errorf("expected %q to normalize", in)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestDate_Invalid(t *testing.T) {
	cases := []any{
		"not a date",
		"",
		"2024-13-40",
		"99.99.2024",
		nil,
		math.NaN(),
		time.Time{},
	}

	for _, in := range cases {
		if _, ok := normalize.Date(in); ok {
			t.Errorf("expected %v to be invalid", in)
		}
	}
}

func TestNumber_Native(t *testing.T) {
	got, ok := normalize.Number(42.5)
	if !ok || got != 42.5 {
		t.Errorf("expected 42.5, got %v (ok=%v)", got, ok)
	}

	if _, ok := normalize.Number(math.NaN()); ok {
		t.Error("expected NaN to be invalid")
	}
}

func TestNumber_Strings(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"42", 42},
		{"42.5", 42.5},
		{"-17", -17},
		{"1.234,56 kWh", 1.23456}, // everything but digits, '-' and '.' stripped
		{"  250  ", 250},
		{"M-100", -100},
	}

	for _, c := range cases {
		got, ok := normalize.Number(c.in)
		if !ok {
			t.Errorf("expected %q to normalize", c.in)
			continue
		}
		if got != c.want {
			t.Errorf("%q: expected %v, got %v", c.in, c.want, got)
		}
	}
}

func TestNumber_Invalid(t *testing.T) {
	cases := []any{"", ".", "-", "kWh", nil, "-."}

	for _, in := range cases {
		if _, ok := normalize.Number(in); ok {
			t.Errorf("expected %v to be invalid", in)
		}
	}
}
