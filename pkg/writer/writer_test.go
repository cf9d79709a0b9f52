package writer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazel-systems/contactstore/pkg/changetrack"
	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/notify"
	"github.com/hazel-systems/contactstore/pkg/store"
)

func newTestWriter(t *testing.T) (*Writer, *store.Adapter) {
	t.Helper()
	adapter, err := store.Open(filepath.Join(t.TempDir(), "contacts.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	require.NoError(t, adapter.EnsureSentinelCollections(context.Background()))

	n := notify.New(false, nil)
	return New(adapter, nil, n, nil), adapter
}

func TestClearChangeFlagsLeavesOnlyUnmodified(t *testing.T) {
	w, adapter := newTestWriter(t)
	ctx := context.Background()

	var id model.ContactID
	require.NoError(t, adapter.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		id, err = tx.InsertContact(ctx, model.LocalCollectionID, uint8(changetrack.FlagAdded))
		return err
	}))

	require.NoError(t, w.ClearChangeFlags(ctx, []model.ContactID{id}))

	changes, err := w.FetchContactChanges(ctx, model.LocalCollectionID)
	require.NoError(t, err)
	require.Contains(t, changes.Unmodified, id)
	require.NotContains(t, changes.Added, id)
}

func TestStoreChangesConflictResolutionScenario(t *testing.T) {
	w, adapter := newTestWriter(t)
	ctx := context.Background()

	var contactID model.ContactID
	var detailID int32
	require.NoError(t, adapter.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		contactID, err = tx.InsertContact(ctx, model.LocalCollectionID, 0)
		if err != nil {
			return err
		}
		detailID, err = tx.InsertDetail(ctx, contactID, phoneDetail("old"), uint8(changetrack.FlagModified))
		return err
	}))

	remote := model.Contact{
		ID:      contactID,
		Details: []model.Detail{phoneDetailWithID(detailID, "new")},
	}

	require.NoError(t, w.StoreChanges(ctx, nil, []model.Contact{remote}, nil, changetrack.PreserveLocalChanges, true))
	details, err := adapter.ListDetails(ctx, contactID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, "old", details[0].StringValue(model.FieldPhoneNumber), "PreserveLocalChanges keeps the locally modified value")

	require.NoError(t, w.StoreChanges(ctx, nil, []model.Contact{remote}, nil, changetrack.PreserveRemoteChanges, true))
	details, err = adapter.ListDetails(ctx, contactID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, "new", details[0].StringValue(model.FieldPhoneNumber), "PreserveRemoteChanges overwrites with the remote value")

	row, err := adapter.GetContactRow(ctx, contactID)
	require.NoError(t, err)
	require.Equal(t, changetrack.Clean, changetrack.StateOf(changetrack.Flags(row.ChangeFlags)), "clearFlags zeroes the contact's flags after apply")
}

func TestSaveContactRejectsSelfContact(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	contact := model.Contact{ID: model.SelfContactID, CollectionID: model.LocalCollectionID}
	err := w.SaveContact(ctx, &contact, nil)
	require.Error(t, err)

	merr, ok := err.(*model.Error)
	require.True(t, ok)
	require.Equal(t, model.NotSupportedError, merr.Code)
}

func TestRemoveContactsRejectsSelfContact(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	errs := w.RemoveContacts(ctx, []model.ContactID{model.SelfContactID})
	require.Contains(t, errs.PerIndex, 0)
	require.Equal(t, model.NotSupportedError, errs.PerIndex[0].Code)
}

func TestRegenerateContactBypassesSelfContactGuard(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	contact := model.Contact{ID: model.SelfContactID, CollectionID: model.LocalCollectionID}
	require.NoError(t, w.RegenerateContact(ctx, &contact, nil))
}

func phoneDetail(number string) model.Detail {
	return model.Detail{Type: model.TypePhoneNumber, Fields: map[model.FieldKey]any{
		model.FieldPhoneNumber: number,
	}}
}

func phoneDetailWithID(detailID int32, number string) model.Detail {
	d := phoneDetail(number)
	d.DetailID = detailID
	d.Fields[model.FieldDatabaseID] = int32(detailID)
	return d
}
