package util

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 6, 2, 16, 31, 0, 0, time.UTC)
	for _, s := range []string{"2025-06-02T16:31:00Z", "2025-06-02T12:31:00-04:00", "1748881860", "1748881860000"} {
		got, ok := ParseTime(s)
		if !ok || !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("%s: got %v %v", s, got, ok)
		}
	}
	if got, ok := ParseTime("2025-06-02T16:31:00.250Z"); !ok || got.Nanosecond() != 250_000_000 {
		t.Fatalf("fractional seconds: %v %v", got, ok)
	}
	for _, s := range []string{"", "yesterday", "-5", "0"} {
		if _, ok := ParseTime(s); ok {
			t.Fatalf("%q should not parse", s)
		}
	}
}

func TestAlignRangeIncludesPartialBucket(t *testing.T) {
	from := time.Date(2025, 6, 2, 14, 7, 30, 0, time.UTC)
	to := time.Date(2025, 6, 2, 14, 12, 1, 0, time.UTC)
	f, e := AlignRange(from, to, 5*time.Minute)
	if f.Minute() != 5 || e.Minute() != 15 {
		t.Fatalf("unexpected range %v..%v", f, e)
	}
	f, e = AlignRange(from, to, time.Second)
	if f.Minute() != 7 || f.Second() != 0 || e.Minute() != 13 {
		t.Fatalf("sub-minute steps align to minutes, got %v..%v", f, e)
	}
}

func TestParseFloat(t *testing.T) {
	if v, ok := ParseFloat(" 601.25 "); !ok || v != 601.25 {
		t.Fatalf("unexpected %v %v", v, ok)
	}
	for _, s := range []string{"", "abc", "NaN", "+Inf"} {
		if _, ok := ParseFloat(s); ok {
			t.Fatalf("%q should not parse", s)
		}
	}
}

func TestUpperSymbol(t *testing.T) {
	if got := UpperSymbol("  spy "); got != "SPY" {
		t.Fatalf("got %q", got)
	}
}
