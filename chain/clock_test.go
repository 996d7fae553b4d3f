package chain

import (
	"context"
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(100)
	ctx := context.Background()

	if now, _ := c.Now(ctx); now != 100 {
		t.Errorf("Now = %d, want 100", now)
	}
	if got := c.Advance(50); got != 150 {
		t.Errorf("Advance = %d, want 150", got)
	}
	c.Set(10)
	if now, _ := c.Now(ctx); now != 10 {
		t.Errorf("Now after Set = %d, want 10", now)
	}
}

func TestSystemClock(t *testing.T) {
	before := uint64(time.Now().Unix())
	now, err := SystemClock{}.Now(context.Background())
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	if now < before {
		t.Errorf("Now = %d, want >= %d", now, before)
	}
}
