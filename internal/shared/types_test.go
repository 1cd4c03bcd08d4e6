package shared

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	tests := []struct {
		prefix string
	}{
		{prefix: "call_"},
		{prefix: "qe_"},
		{prefix: "conn_"},
		{prefix: ""},
	}

	for _, tt := range tests {
		t.Run("prefix_"+tt.prefix, func(t *testing.T) {
			id := NewID(tt.prefix)
			if !strings.HasPrefix(id, tt.prefix) {
				t.Errorf("expected ID to start with '%s', got '%s'", tt.prefix, id)
			}
			expectedLen := len(tt.prefix) + 32
			if len(id) != expectedLen {
				t.Errorf("expected length %d, got %d", expectedLen, len(id))
			}
		})
	}

	id1 := NewID("test_")
	id2 := NewID("test_")
	if id1 == id2 {
		t.Error("expected unique IDs, got duplicates")
	}
}

func TestClock_Now(t *testing.T) {
	var c Clock
	before := time.Now().UTC().Add(-time.Second)
	if now := c.Now(); now.Before(before) {
		t.Errorf("nil clock should return current time, got %v", now)
	}

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	c = FixedClock(fixed)
	got := c.Now()
	if !got.Equal(fixed) {
		t.Errorf("expected %v, got %v", fixed, got)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", got.Location())
	}
}
