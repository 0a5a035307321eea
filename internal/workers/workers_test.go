package workers

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv("TEST_WORKERS", "")

	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{
			name:       "CPU-bound task (1.0x multiplier)",
			multiplier: 1.0,
			minExpect:  1,
			maxExpect:  availableCPU,
		},
		{
			name:       "I/O-bound task (2.0x multiplier)",
			multiplier: 2.0,
			minExpect:  1,
			maxExpect:  availableCPU * 2,
		},
		{
			name:       "With limit lower than calculated",
			multiplier: 2.0,
			limit:      2,
			minExpect:  1,
			maxExpect:  2,
		},
		{
			name:       "Tiny multiplier still yields one worker",
			multiplier: 0.0001,
			minExpect:  1,
			maxExpect:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count("TEST_WORKERS", tt.multiplier, tt.limit)
			if got < tt.minExpect || got > tt.maxExpect {
				t.Errorf("Count() = %d, want between %d and %d", got, tt.minExpect, tt.maxExpect)
			}
		})
	}
}

func TestCountEnvOverride(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		limit    int
		expected int
	}{
		{"valid override", "7", 0, 7},
		{"override capped by limit", "7", 3, 3},
		{"invalid override ignored", "many", 1, 1},
		{"zero override ignored", "0", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_WORKERS", tt.value)
			if got := Count("TEST_WORKERS", 1.0, tt.limit); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestForEachPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out := make([]int, len(items))

	err := ForEach(context.Background(), 3, items, func(_ context.Context, i, item int) error {
		out[i] = item * item
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	for i, item := range items {
		if out[i] != item*item {
			t.Errorf("out[%d] = %d, want %d", i, out[i], item*item)
		}
	}
}

func TestForEachBoundsConcurrency(t *testing.T) {
	var active, peak int32
	items := make([]struct{}, 50)

	err := ForEach(context.Background(), 4, items, func(_ context.Context, _ int, _ struct{}) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		runtime.Gosched()
		atomic.AddInt32(&active, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach failed: %v", err)
	}
	if peak > 4 {
		t.Errorf("Expected at most 4 concurrent calls, saw %d", peak)
	}
}

func TestForEachReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEach(context.Background(), 2, []int{1, 2, 3}, func(_ context.Context, _ int, item int) error {
		if item == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
}

func TestForEachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ForEach(ctx, 2, []int{1, 2, 3}, func(context.Context, int, int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestProfileSize(t *testing.T) {
	t.Setenv("THUMBNAIL_WORKERS", "")
	t.Setenv("INDEX_WORKERS", "5")

	cpus := runtime.GOMAXPROCS(0)
	if got := CPU.Size(0); got != cpus {
		t.Errorf("CPU.Size(0) = %d, want %d", got, cpus)
	}
	if got := IO.Size(0); got != 5 {
		t.Errorf("IO.Size(0) = %d, want the INDEX_WORKERS override 5", got)
	}
	if got := IO.Size(2); got != 2 {
		t.Errorf("IO.Size(2) = %d, want the limit 2", got)
	}
	if got := Mixed.Size(0); got != max(int(float64(cpus)*1.5), 1) {
		t.Errorf("Mixed.Size(0) = %d", got)
	}
}
