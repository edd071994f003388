package timeutil

import (
	"testing"
	"time"
)

func TestParseISOVariants(t *testing.T) {
	want := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	cases := []string{
		"2025-06-01T09:30:00Z",
		"2025-06-01T09:30:00",       // naive input is UTC
		"2025-06-01T11:30:00+02:00", // offsets normalize
	}
	for _, in := range cases {
		got, err := ParseISO(in)
		if err != nil {
			t.Fatalf("ParseISO(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseISO(%q): got %v, want %v", in, got, want)
		}
	}
	if _, err := ParseISO("June 1st"); err == nil {
		t.Fatal("ParseISO should reject garbage")
	}
}

func TestFormatISO(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	in := time.Date(2025, 6, 1, 4, 30, 0, 123456789, loc)
	if got, want := FormatISO(in), "2025-06-01T09:30:00Z"; got != want {
		t.Fatalf("FormatISO: got %q, want %q", got, want)
	}
}

func TestEpochRoundTrip(t *testing.T) {
	in := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	if got := FromEpoch(ToEpoch(in)); !got.Equal(in) {
		t.Fatalf("round trip: got %v, want %v", got, in)
	}
}

func TestDayDateAndSameDay(t *testing.T) {
	now := time.Date(2025, 6, 1, 15, 45, 0, 0, time.UTC)
	d1 := DayDate(now, 1)
	if want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC); !d1.Equal(want) {
		t.Fatalf("DayDate(1): got %v, want %v", d1, want)
	}
	d3 := DayDate(now, 3)
	if want := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC); !d3.Equal(want) {
		t.Fatalf("DayDate(3): got %v, want %v", d3, want)
	}
	if !SameDay(now, d1.Add(23*time.Hour)) {
		t.Fatal("SameDay should match within the same UTC date")
	}
	if SameDay(now, d3) {
		t.Fatal("SameDay should reject different dates")
	}
}
