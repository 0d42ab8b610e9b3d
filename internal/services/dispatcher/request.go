package dispatcher

import (
	"sync/atomic"
	"time"
)

// State lifecycle of a queued request.
type State int32

const (
	StateEnqueued State = iota
	StateTokenGranted
	StateExecuting
	StateCompleted
	StateFailed
	StateTimedOut
)

var stateNames = [...]string{"enqueued", "token_granted", "executing", "completed", "failed", "timed_out"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Request an admission-gated unit of work.
type Request struct {
	Name     string
	Arrival  time.Time
	Deadline time.Time
	state    atomic.Int32
}

func newRequest(name string, now time.Time, timeout time.Duration) *Request {
	return &Request{Name: name, Arrival: now, Deadline: now.Add(timeout)}
}

// State returns the current lifecycle state.
func (r *Request) State() State {
	return State(r.state.Load())
}

func (r *Request) set(s State) {
	r.state.Store(int32(s))
}

// finish moves the request to a terminal state unless it already has one.
func (r *Request) finish(s State) {
	for {
		cur := r.state.Load()
		if State(cur) >= StateCompleted {
			return
		}
		if r.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}
