package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := NormalizeLimit(-3); got != DefaultLimit {
		t.Fatalf("expected default limit for negative input, got %d", got)
	}
	if got := NormalizeLimit(MaxLimit + 50); got != MaxLimit {
		t.Fatalf("expected max limit, got %d", got)
	}
	if got := NormalizeLimit(10); got != 10 {
		t.Fatalf("expected passthrough, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC),
		ID:        uuid.New(),
	}

	token := EncodeCursor(original)
	parsed, err := ParseCursor(token)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if parsed == nil {
		t.Fatal("expected cursor, got nil")
	}
	if !parsed.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("timestamp mismatch: got %v want %v", parsed.CreatedAt, original.CreatedAt)
	}
	if parsed.ID != original.ID {
		t.Fatalf("id mismatch: got %s want %s", parsed.ID, original.ID)
	}
}

func TestParseCursorEmpty(t *testing.T) {
	parsed, err := ParseCursor("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != nil {
		t.Fatal("expected nil cursor for blank token")
	}
}

func TestParseCursorInvalid(t *testing.T) {
	cases := []string{
		"not-base64!!!",
		"bm8tc2VwYXJhdG9y", // "no-separator"
	}
	for _, tc := range cases {
		if _, err := ParseCursor(tc); err == nil {
			t.Fatalf("expected error for %q", tc)
		}
	}
}

func TestTrimPage(t *testing.T) {
	n, more := TrimPage(26, 25)
	if n != 25 || !more {
		t.Fatalf("expected trimmed page with more rows, got n=%d more=%v", n, more)
	}

	n, more = TrimPage(12, 25)
	if n != 12 || more {
		t.Fatalf("expected untouched page, got n=%d more=%v", n, more)
	}
}
