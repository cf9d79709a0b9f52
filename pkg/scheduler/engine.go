package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazel-systems/contactstore/pkg/aggregate"
	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/notify"
	"github.com/hazel-systems/contactstore/pkg/reader"
	"github.com/hazel-systems/contactstore/pkg/store"
	"github.com/hazel-systems/contactstore/pkg/writer"
)

// Engine is the single background worker that serializes every
// asynchronous request against its own store.Adapter, kept separate from
// the synchronous caller's handle per spec.md §5's "Shared-resource
// policy" (the worker owns its database handle exclusively).
type Engine struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Handle
	current *Handle
	running bool
	wg      sync.WaitGroup

	adapter *store.Adapter
	reader  *reader.Reader
	writer  *writer.Writer
	log     *slog.Logger

	// degraded and degradedErr implement the open-failure degraded mode:
	// if the worker's own database handle could not be opened, every
	// dequeued request finishes immediately with UnspecifiedError.
	degraded    bool
	degradedErr error
}

// Open opens the worker's own store.Adapter at path (distinct from any
// adapter synchronous callers use, per spec.md §5's "Shared-resource
// policy") and starts its goroutine. If the database cannot be opened,
// Open still returns a usable Engine in degraded mode rather than
// failing: every dequeued request then finishes immediately with
// UnspecifiedError (spec.md 4.H "Open-failure degraded mode").
func Open(path string, opts store.Options, agg *aggregate.Engine, notifier *notify.Notifier, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{log: log, running: true}
	e.cond = sync.NewCond(&e.mu)

	adapter, err := store.Open(path, opts)
	if err != nil {
		e.degraded = true
		e.degradedErr = err
	} else {
		e.adapter = adapter
		e.reader = reader.New(adapter, nil)
		e.writer = writer.New(adapter, agg, notifier, log)
	}

	e.wg.Add(1)
	go e.run()
	return e
}

// Stop signals the worker to drain its pending queue then exit, blocks
// until it has, and closes the worker's own database handle.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()

	if e.adapter != nil {
		e.adapter.Close()
	}
}

// NewRequest constructs an Inactive request bound to e. Call Start to
// enqueue it (spec.md 4.H "request state transitions Inactive -> Active
// at enqueue time").
func (e *Engine) NewRequest(kind Kind, payload any) *Handle {
	return &Handle{
		eng:          e,
		kind:         kind,
		payload:      payload,
		state:        Inactive,
		done:         make(chan struct{}),
		stateChanged: make(chan State, 1),
		resultsAvail: make(chan struct{}, 1),
	}
}

func (e *Engine) run() {
	defer e.wg.Done()
	ctx := context.Background()

	for {
		e.mu.Lock()
		for len(e.pending) == 0 && e.running {
			e.cond.Wait()
		}
		if len(e.pending) == 0 && !e.running {
			e.mu.Unlock()
			return
		}
		h := e.pending[0]
		e.pending = e.pending[1:]
		e.current = h
		e.mu.Unlock()

		var result any
		var err error
		if e.degraded {
			err = model.NewError(model.UnspecifiedError, "scheduler: worker database unavailable: %v", e.degradedErr)
		} else {
			result, err = execute(ctx, e.reader, e.writer, request{Kind: h.kind, Payload: h.payload})
		}

		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()

		// If Cancel's executing-path branch raced with the database
		// operation above and won, h.state is already Canceled by the
		// time finish acquires h.mu, and finish becomes a no-op: the
		// in-flight operation's result is discarded, per spec.md 4.H.
		h.finish(result, err)
	}
}

// enqueue appends h to the pending queue and wakes the worker.
func (e *Engine) enqueue(h *Handle) {
	e.mu.Lock()
	e.pending = append(e.pending, h)
	e.cond.Signal()
	e.mu.Unlock()
}

// cancelPending removes h from the pending queue if it is still there,
// reporting whether it was found.
func (e *Engine) cancelPending(h *Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.pending {
		if p == h {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return true
		}
	}
	return false
}

// isExecuting reports whether h is the request currently running on the
// worker.
func (e *Engine) isExecuting(h *Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current == h
}

// promoteToHead moves h to the front of the pending queue, a no-op if h
// is not currently pending (spec.md 4.H "Wait-for-finished: if request is
// pending, reorder it to the queue head").
func (e *Engine) promoteToHead(h *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.pending {
		if p == h {
			if i != 0 {
				e.pending = append(e.pending[:i], e.pending[i+1:]...)
				e.pending = append([]*Handle{h}, e.pending...)
			}
			return
		}
	}
}
