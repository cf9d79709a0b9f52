package scheduler

import (
	"sync"
	"time"
)

// State is a request's position in the lifecycle state machine
// (spec.md 4.H). Finished and Canceled are terminal; a canceled request
// never transitions to Finished.
type State int

const (
	Inactive State = iota
	Active
	Finished
	Canceled
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Active:
		return "Active"
	case Finished:
		return "Finished"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Handle is the submitter-facing request handle: Start enqueues it,
// Cancel withdraws or flags it, WaitForFinished blocks for its terminal
// state, and the two channel-valued signals stand in for spec.md's
// stateChanged/resultsAvailable callbacks.
type Handle struct {
	eng     *Engine
	kind    Kind
	payload any

	mu      sync.Mutex
	state   State
	err     error
	results any

	done         chan struct{}
	stateChanged chan State
	resultsAvail chan struct{}
}

// Kind reports the request's kind.
func (h *Handle) Kind() Kind { return h.kind }

// Start transitions Inactive -> Active and enqueues the request on the
// worker's pending queue. Returns false if the request was already
// started.
func (h *Handle) Start() bool {
	h.mu.Lock()
	if h.state != Inactive {
		h.mu.Unlock()
		return false
	}
	h.state = Active
	h.mu.Unlock()

	h.signalStateChanged(Active)
	h.eng.enqueue(h)
	return true
}

// Cancel withdraws a still-pending request (it never runs) or, for a
// request already executing, best-effort marks it Canceled so its result
// is discarded when the in-flight database operation completes instead of
// transitioning the request to Finished. Returns false if the request has
// already reached a terminal state or was never started.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	if h.state == Inactive || h.state == Finished || h.state == Canceled {
		h.mu.Unlock()
		return false
	}
	h.mu.Unlock()

	if h.eng.cancelPending(h) {
		h.mu.Lock()
		h.state = Canceled
		h.mu.Unlock()
		close(h.done)
		h.signalStateChanged(Canceled)
		return true
	}

	if h.eng.isExecuting(h) {
		h.mu.Lock()
		if h.state == Finished || h.state == Canceled {
			// Raced with the worker's finish, which won the same check
			// inside finish and already closed h.done; back off instead
			// of closing it again.
			h.mu.Unlock()
			return false
		}
		h.state = Canceled
		h.mu.Unlock()
		close(h.done)
		h.signalStateChanged(Canceled)
		return true
	}

	// Raced with the worker finishing between the pending-check and
	// here; the request is about to (or already did) transition to
	// Finished on its own.
	return false
}

// WaitForFinished blocks until the request reaches a terminal state or
// timeout elapses, reporting which happened. If the request is still
// pending, it is first promoted to the head of the queue.
func (h *Handle) WaitForFinished(timeout time.Duration) bool {
	h.eng.promoteToHead(h)
	select {
	case <-h.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// State returns the request's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the error from the request's execution, if any. Only
// meaningful once State is Finished.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Results returns the request's kind-specific result value. Only
// meaningful once State is Finished.
func (h *Handle) Results() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.results
}

// StateChanged delivers the request's state transitions. Buffered and
// coalesced: a slow consumer observes only the latest state, never
// blocks the worker.
func (h *Handle) StateChanged() <-chan State { return h.stateChanged }

// ResultsAvailable fires once the final results have been stored,
// strictly before the corresponding stateChanged(Finished) delivery.
// Partial results are not delivered: it fires at most once per request.
func (h *Handle) ResultsAvailable() <-chan struct{} { return h.resultsAvail }

// finish is called by the worker once a request's execution completes: it
// stores the outcome, flips the state to Finished, and fires
// resultsAvailable before stateChanged (spec.md §8: "stateChanged(Finished)
// never precedes the last resultsAvailable"). If Cancel raced it and already
// moved the request to Canceled, finish is a no-op: the state check and the
// Finished transition happen under the same h.mu lock Cancel's executing-path
// branch uses, so exactly one of the two ever closes h.done.
func (h *Handle) finish(results any, err error) {
	h.mu.Lock()
	if h.state == Canceled {
		h.mu.Unlock()
		return
	}
	h.results = results
	h.err = err
	h.state = Finished
	h.mu.Unlock()

	// Drop a stale undelivered state (Active) so a consumer woken by
	// resultsAvailable next observes Finished, the latest state.
	select {
	case <-h.stateChanged:
	default:
	}
	h.signalResultsAvailable()
	close(h.done)
	h.signalStateChanged(Finished)
}

func (h *Handle) signalStateChanged(s State) {
	select {
	case h.stateChanged <- s:
	default:
		// Coalesce: drop the stale pending notification, keep the latest.
		select {
		case <-h.stateChanged:
		default:
		}
		select {
		case h.stateChanged <- s:
		default:
		}
	}
}

func (h *Handle) signalResultsAvailable() {
	select {
	case h.resultsAvail <- struct{}{}:
	default:
	}
}
