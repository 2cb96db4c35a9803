package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInFlightAddDone(t *testing.T) {
	r := NewInFlight()
	r.Add("b")
	r.Add("a")
	r.Add("a")

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	ids := r.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs() = %v", ids)
	}

	r.Done("a")
	r.Done("a")
	r.Done("unknown")
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestInFlightWait(t *testing.T) {
	r := NewInFlight()
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on empty tracker: %v", err)
	}

	r.Add("x")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Done("x")
	}()
	if err := r.Wait(context.Background()); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestInFlightConcurrent(t *testing.T) {
	r := NewInFlight()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Add(id)
			r.IDs()
			r.Done(id)
		}(string(rune('A' + i)))
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestListOptionsNormalize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-5, 20},
		{50, 50},
		{500, 100},
	}
	for _, tt := range tests {
		if got := (ListOptions{Limit: tt.in}).Normalize().Limit; got != tt.want {
			t.Errorf("Normalize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
