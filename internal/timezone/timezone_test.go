package timezone

import (
	"testing"
	"time"
)

func TestParseSlot(t *testing.T) {
	got, err := ParseSlot("2026-03-04", "09:30:00", time.UTC)
	if err != nil {
		t.Fatalf("ParseSlot: %v", err)
	}
	want := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	if _, err := ParseSlot("2026-13-04", "09:30:00", nil); err == nil {
		t.Fatal("expected invalid month to fail")
	}
}

func TestValidators(t *testing.T) {
	if !ValidDate("2026-01-31") || ValidDate("31/01/2026") {
		t.Fatal("date validation mismatch")
	}
	if !ValidTime("23:59:59") || ValidTime("9:30") {
		t.Fatal("time validation mismatch")
	}
}

func TestLocationFallback(t *testing.T) {
	if Location("Nowhere/Invalid").String() != DefaultTimezone {
		t.Fatal("invalid tz must fall back to default")
	}
}
