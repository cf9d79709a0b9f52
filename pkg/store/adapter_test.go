package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazel-systems/contactstore/pkg/model"
)

func openTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "contacts.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestEnsureSentinelCollectionsCreatesSentinels(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.EnsureSentinelCollections(ctx))

	agg, err := a.GetCollection(ctx, model.AggregateCollectionID)
	require.NoError(t, err)
	require.Equal(t, "Aggregate", agg.Name)
	require.True(t, agg.ReadOnly)

	local, err := a.GetCollection(ctx, model.LocalCollectionID)
	require.NoError(t, err)
	require.Equal(t, "Local", local.Name)
	require.True(t, local.Aggregable)

	self, err := a.GetContactRow(ctx, model.SelfContactID)
	require.NoError(t, err)
	require.Equal(t, model.LocalCollectionID, self.CollectionID)
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.EnsureSentinelCollections(ctx))

	var contactID model.ContactID
	err := a.WithTx(ctx, func(tx *Tx) error {
		id, err := tx.InsertContact(ctx, model.LocalCollectionID, 0)
		if err != nil {
			return err
		}
		contactID = id
		return nil
	})
	require.NoError(t, err)

	row, err := a.GetContactRow(ctx, contactID)
	require.NoError(t, err)
	require.Equal(t, model.LocalCollectionID, row.CollectionID)

	sentinel := errRollbackSentinel
	err = a.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.InsertContact(ctx, model.LocalCollectionID, 0); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	ids, err := a.ListContactIDs(ctx, model.LocalCollectionID)
	require.NoError(t, err)
	require.Len(t, ids, 2) // self contact + the one committed row, not the rolled-back one
}

func TestDetailFieldsRoundTrip(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.EnsureSentinelCollections(ctx))

	d := model.Detail{
		Type: model.TypeName,
		Fields: map[model.FieldKey]any{
			model.FieldNameGiven:  "Ada",
			model.FieldNameFamily: "Lovelace",
			model.FieldDatabaseID: int32(42),
		},
	}

	var contactID model.ContactID
	err := a.WithTx(ctx, func(tx *Tx) error {
		id, err := tx.InsertContact(ctx, model.LocalCollectionID, 0)
		if err != nil {
			return err
		}
		contactID = id
		_, err = tx.InsertDetail(ctx, id, d, 0)
		return err
	})
	require.NoError(t, err)

	details, err := a.ListDetails(ctx, contactID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	require.Equal(t, "Ada", details[0].StringValue(model.FieldNameGiven))
	require.Equal(t, "Lovelace", details[0].StringValue(model.FieldNameFamily))
	require.Equal(t, int32(42), details[0].DatabaseID())
}

var errRollbackSentinel = rollbackError("intentional rollback for test")

type rollbackError string

func (e rollbackError) Error() string { return string(e) }
