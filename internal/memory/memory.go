package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"photo-indexer/internal/logging"
	"photo-indexer/internal/metrics"
)

// Config tunes a Monitor.
type Config struct {
	// LimitBytes overrides GOMEMLIMIT; 0 uses GOMEMLIMIT.
	LimitBytes int64
	// HighWaterMark is the usage below which paused work resumes.
	HighWaterMark float64
	// CriticalWaterMark is the usage at which work pauses.
	CriticalWaterMark float64
	CheckInterval     time.Duration
}

// DefaultConfig pauses at 85% of the limit and resumes below 70%.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor tracks heap usage against a limit. Without a limit it never
// pauses.
type Monitor struct {
	config Config
	limit  int64
	sample func() uint64
	log    *logging.Logger

	mu      sync.Mutex
	current uint64
	paused  bool
	resume  chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMonitor creates a Monitor. Call Start to begin sampling.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	m := &Monitor{
		config: config,
		limit:  limit,
		sample: heapAlloc,
		log:    logging.For("memory"),
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
	}
	if limit == 0 {
		m.log.Info("No memory limit configured, scan backpressure disabled")
	} else {
		m.log.Info("Scan backpressure at %.0f%% of %s", config.CriticalWaterMark*100, formatBytes(limit))
	}
	return m
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start samples usage every CheckInterval until Stop.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.check()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases every waiter.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) check() {
	alloc := m.sample()
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = alloc

	switch {
	case !m.paused && usage >= m.config.CriticalWaterMark:
		m.log.Warn("Memory critical (%.1f%% of limit), pausing scans", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.HighWaterMark:
		m.log.Info("Memory recovered (%.1f%% of limit), resuming scans", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait returns immediately unless usage is critical, in which case it blocks
// until usage recovers, the monitor stops, or ctx ends.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return nil
	}
	resume := m.resume
	m.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-m.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether work is currently held back.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled heap usage as a fraction of the limit.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.current) / float64(m.limit)
}
