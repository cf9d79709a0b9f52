package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/reader"
	"github.com/hazel-systems/contactstore/pkg/scheduler"
)

func TestOpenRegistersAndAssignsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.db")
	uri := "manager://test-open"

	e, err := Open(context.Background(), path, uri, Options{})
	require.NoError(t, err)
	require.NotEmpty(t, e.UUID())
	require.Len(t, Lookup(uri), 1)
	require.Same(t, e, Lookup(uri)[0])

	require.NoError(t, e.Close())
	require.Empty(t, Lookup(uri))
}

func TestOpenTwiceReusesPersistedIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.db")
	uri := "manager://test-reopen"

	e1, err := Open(context.Background(), path, uri, Options{})
	require.NoError(t, err)
	id := e1.UUID()
	require.NoError(t, e1.Close())

	e2, err := Open(context.Background(), path, uri, Options{})
	require.NoError(t, err)
	defer e2.Close()
	require.Equal(t, id, e2.UUID())
}

func TestSchedulerSharesWriterState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.db")
	e, err := Open(context.Background(), path, "manager://test-scheduler", Options{})
	require.NoError(t, err)
	defer e.Close()

	contact := &model.Contact{
		CollectionID: model.LocalCollectionID,
		Details: []model.Detail{{
			Type:   model.TypeName,
			Fields: map[model.FieldKey]any{model.FieldNameGiven: "Ada"},
		}},
	}

	h := e.Scheduler.NewRequest(scheduler.ContactSave, scheduler.ContactSavePayload{Contact: contact})
	require.True(t, h.Start())
	require.True(t, h.WaitForFinished(5*time.Second))
	require.Equal(t, scheduler.Finished, h.State())

	saved := h.Results().(*model.Contact)
	require.NotZero(t, saved.ID)

	fetched, err := e.Reader.ReadContacts(context.Background(), reader.Filter{CollectionID: model.LocalCollectionID}, reader.Sorting{}, model.FetchHint{})
	require.NoError(t, err)
	require.Contains(t, idsOf(fetched), saved.ID)
}

func idsOf(contacts []model.Contact) []model.ContactID {
	ids := make([]model.ContactID, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
	}
	return ids
}
