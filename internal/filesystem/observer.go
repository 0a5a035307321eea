package filesystem

import (
	"sync/atomic"
	"time"
)

// Op describes one finished filesystem call, including every retry.
type Op struct {
	// Name is "stat", "open", "readdir" or "readfile".
	Name   string
	Volume string
	// Attempts counts calls made; 1 means no retry was needed.
	Attempts    int
	StaleErrors int
	Duration    time.Duration
	Err         error
}

// Retried reports whether the call hit at least one stale handle.
func (o Op) Retried() bool { return o.Attempts > 1 }

// Observer receives one Op per filesystem call. The metrics package
// provides the Prometheus implementation.
type Observer interface {
	Observe(Op)
}

var observer atomic.Pointer[Observer]

// SetObserver sets the package-level observer; nil disables reporting.
func SetObserver(o Observer) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&o)
}

func report(op Op) {
	if o := observer.Load(); o != nil {
		(*o).Observe(op)
	}
}
