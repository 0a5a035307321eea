package indexer

import (
	"context"
	"sync"
	"time"

	"photo-indexer/internal/database"
)

// State is the lifecycle stage of a scan.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Summary is a point-in-time view of a scan.
type Summary struct {
	Token      string    `json:"token"`
	State      State     `json:"state"`
	Folders    []string  `json:"folders"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Indexed    int       `json:"indexed"`
	Unchanged  int       `json:"unchanged"`
	Skipped    int       `json:"skipped"`
	Pruned     int64     `json:"pruned"`
	Percent    float64   `json:"percent"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Scan is the handle of one scan run.
type Scan struct {
	token     string
	folders   []database.Folder
	full      bool
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	summary Summary
	err     error
}

func newScan(ctx context.Context, cancel context.CancelFunc, token string, folders []database.Folder, full bool) *Scan {
	paths := make([]string, len(folders))
	for i, f := range folders {
		paths[i] = f.Path
	}
	now := time.Now()
	return &Scan{
		token:     token,
		folders:   folders,
		full:      full,
		startedAt: now,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		summary: Summary{
			Token:     token,
			State:     StateRunning,
			Folders:   paths,
			StartedAt: now,
		},
	}
}

// Token returns the scan's correlation token.
func (s *Scan) Token() string { return s.token }

// Cancel asks the scan to stop. It is checked between files; the scan then
// fails with context.Canceled.
func (s *Scan) Cancel() { s.cancel() }

// Done is closed when the scan has finished and its terminal event is out.
func (s *Scan) Done() <-chan struct{} { return s.done }

// Wait blocks until the scan finishes or ctx ends, and returns the scan's
// error.
func (s *Scan) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle stage.
func (s *Scan) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.State
}

// Summary returns a copy of the scan's counters.
func (s *Scan) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := s.summary
	sum.Folders = append([]string(nil), s.summary.Folders...)
	return sum
}

func (s *Scan) setTotal(n int) {
	s.mu.Lock()
	s.summary.Total = n
	s.mu.Unlock()
}

func (s *Scan) setProgress(pct float64) {
	s.mu.Lock()
	if pct > s.summary.Percent {
		s.summary.Percent = pct
	}
	s.mu.Unlock()
}

func (s *Scan) setPruned(n int64) {
	s.mu.Lock()
	s.summary.Pruned = n
	s.mu.Unlock()
}

func (s *Scan) count(o fileOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.Processed++
	switch o {
	case outcomeIndexed:
		s.summary.Indexed++
	case outcomeUnchanged:
		s.summary.Unchanged++
	default:
		s.summary.Skipped++
	}
}

// finish records the outcome and returns the final summary. Done is closed
// separately, once the terminal event is out.
func (s *Scan) finish(err error) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.summary.FinishedAt = time.Now()
	if err != nil {
		s.summary.State = StateFailed
		s.summary.Error = err.Error()
	} else {
		s.summary.State = StateCompleted
		s.summary.Percent = 100
	}
	return s.summary
}
