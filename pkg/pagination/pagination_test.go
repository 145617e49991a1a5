package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("expected default %d, got %d", DefaultLimit, got)
	}
	if got := NormalizeLimit(-5); got != DefaultLimit {
		t.Fatalf("expected default %d, got %d", DefaultLimit, got)
	}
	if got := NormalizeLimit(10); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	if got := NormalizeLimit(1000); got != MaxLimit {
		t.Fatalf("expected cap %d, got %d", MaxLimit, got)
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected buffer 11, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{
		Timestamp: time.Date(2026, 3, 15, 9, 30, 0, 123456789, time.UTC),
		ID:        uuid.New(),
	}

	decoded, err := Parse(cursor.Encode())
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if decoded == nil {
		t.Fatal("expected decoded cursor")
	}
	if !decoded.Timestamp.Equal(cursor.Timestamp) {
		t.Fatalf("timestamp mismatch: %v != %v", decoded.Timestamp, cursor.Timestamp)
	}
	if decoded.ID != cursor.ID {
		t.Fatalf("id mismatch: %s != %s", decoded.ID, cursor.ID)
	}
}

func TestParseEmptyCursorIsNil(t *testing.T) {
	decoded, err := Parse("  ")
	if err != nil {
		t.Fatalf("parse empty cursor: %v", err)
	}
	if decoded != nil {
		t.Fatalf("expected nil cursor, got %+v", decoded)
	}
}

func TestParseMalformedCursor(t *testing.T) {
	cases := []string{
		"%%%",
		"bm90LWEtY3Vyc29y", // base64("not-a-cursor")
		"MjAyNi0wMS0wMVQwMDowMDowMFp8bm90LWEtdXVpZA", // valid time, bad uuid
	}
	for _, value := range cases {
		if _, err := Parse(value); err == nil {
			t.Fatalf("expected error for cursor %q", value)
		}
	}
}
