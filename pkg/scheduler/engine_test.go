package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/notify"
	"github.com/hazel-systems/contactstore/pkg/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.db")

	// EnsureSentinelCollections must run before the scheduler's worker
	// starts issuing contact saves against the same file.
	seed, err := store.Open(path, store.Options{})
	require.NoError(t, err)
	require.NoError(t, seed.EnsureSentinelCollections(context.Background()))
	seed.Close()

	e := Open(path, store.Options{}, nil, notify.New(false, nil), nil)
	t.Cleanup(e.Stop)
	return e
}

func nameContact() *model.Contact {
	return &model.Contact{
		CollectionID: model.LocalCollectionID,
		Details: []model.Detail{{
			Type:   model.TypeName,
			Fields: map[model.FieldKey]any{model.FieldNameGiven: "Jane"},
		}},
	}
}

func TestCancellationScenario(t *testing.T) {
	e := newTestEngine(t)

	const n = 100
	handles := make([]*Handle, n)
	for i := 0; i < n; i++ {
		handles[i] = e.NewRequest(ContactSave, ContactSavePayload{Contact: nameContact()})
		require.True(t, handles[i].Start())
		if i%2 == 0 {
			handles[i].Cancel()
		}
	}

	for i, h := range handles {
		h.WaitForFinished(5 * time.Second)
		if i%2 == 0 {
			require.Equal(t, Canceled, h.State(), "even-indexed request %d should be canceled", i)
		} else {
			require.Equal(t, Finished, h.State(), "odd-indexed request %d should finish", i)
			require.NoError(t, h.Err())
		}
	}

	// Every finished (odd-indexed) contact save must have actually
	// assigned an id.
	for i, h := range handles {
		if i%2 == 1 {
			p := h.Results().(*model.Contact)
			require.NotZero(t, p.ID)
		}
	}
}

// TestCancelRaceDoesNotPanic guards against a regression where Cancel's
// executing-path branch and the worker's finish could each decide (from a
// stale read) that they were the one to transition the handle to its
// terminal state, and both close h.done. Run with -race: the assertions
// below hold regardless of interleaving, but a reintroduced double-close
// panics the test process outright.
func TestCancelRaceDoesNotPanic(t *testing.T) {
	e := newTestEngine(t)

	const n = 200
	var wg sync.WaitGroup
	handles := make([]*Handle, n)
	for i := 0; i < n; i++ {
		h := e.NewRequest(ContactSave, ContactSavePayload{Contact: nameContact()})
		handles[i] = h
		require.True(t, h.Start())

		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			h.Cancel()
		}(h)
	}
	wg.Wait()

	for _, h := range handles {
		h.WaitForFinished(5 * time.Second)
		require.Contains(t, []State{Finished, Canceled}, h.State())
	}
}

func TestFIFOOrdering(t *testing.T) {
	e := newTestEngine(t)

	r1 := e.NewRequest(ContactSave, ContactSavePayload{Contact: nameContact()})
	r2 := e.NewRequest(ContactSave, ContactSavePayload{Contact: nameContact()})
	require.True(t, r1.Start())
	require.True(t, r2.Start())

	require.True(t, r1.WaitForFinished(5*time.Second))
	require.Equal(t, Finished, r1.State())
	require.True(t, r2.WaitForFinished(5*time.Second))
	require.Equal(t, Finished, r2.State())
}

func TestAtMostOneTerminalEventResultsPrecedeStateChanged(t *testing.T) {
	e := newTestEngine(t)

	h := e.NewRequest(ContactSave, ContactSavePayload{Contact: nameContact()})
	require.True(t, h.Start())

	resultsSeen := false
	select {
	case <-h.ResultsAvailable():
		resultsSeen = true
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resultsAvailable")
	}
	require.True(t, resultsSeen)

	select {
	case s := <-h.StateChanged():
		require.Equal(t, Finished, s)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stateChanged(Finished)")
	}

	require.True(t, h.WaitForFinished(time.Second))
	require.Equal(t, Finished, h.State())
}

func TestDegradedModeFinishesWithUnspecifiedError(t *testing.T) {
	// An unopenable directory path as the database file forces store.Open
	// to fail, putting the worker into degraded mode.
	e := Open(t.TempDir(), store.Options{}, nil, notify.New(false, nil), nil)
	t.Cleanup(e.Stop)

	h := e.NewRequest(ContactSave, ContactSavePayload{Contact: nameContact()})
	require.True(t, h.Start())
	require.True(t, h.WaitForFinished(5*time.Second))
	require.Equal(t, Finished, h.State())

	var target *model.Error
	require.ErrorAs(t, h.Err(), &target)
	require.Equal(t, model.UnspecifiedError, target.Code)
}
