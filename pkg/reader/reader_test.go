package reader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/store"
)

func hobbyDetail(name string) model.Detail {
	return model.Detail{Type: model.TypeHobby, Fields: map[model.FieldKey]any{
		model.FieldDisplayLabel: name,
	}}
}

func TestDetailFetchWithSortScenario(t *testing.T) {
	adapter, err := store.Open(filepath.Join(t.TempDir(), "contacts.db"), store.Options{})
	require.NoError(t, err)
	defer adapter.Close()

	ctx := context.Background()
	require.NoError(t, adapter.EnsureSentinelCollections(ctx))

	for _, name := range []string{"Bungee", "Acting", "Cooking"} {
		require.NoError(t, adapter.WithTx(ctx, func(tx *store.Tx) error {
			id, err := tx.InsertContact(ctx, model.LocalCollectionID, 0)
			if err != nil {
				return err
			}
			_, err = tx.InsertDetail(ctx, id, hobbyDetail(name), 0)
			return err
		}))
	}

	r := New(adapter, nil)
	details, err := r.ReadDetails(ctx, model.TypeHobby, model.FieldDisplayLabel, Filter{}, Sorting{})
	require.NoError(t, err)
	require.Equal(t, []string{"Acting", "Bungee", "Cooking"}, hobbyNames(details))

	require.NoError(t, adapter.WithTx(ctx, func(tx *store.Tx) error {
		id, err := tx.InsertContact(ctx, model.LocalCollectionID, 0)
		if err != nil {
			return err
		}
		_, err = tx.InsertDetail(ctx, id, hobbyDetail("Amateur radio"), 0)
		return err
	}))

	details, err = r.ReadDetails(ctx, model.TypeHobby, model.FieldDisplayLabel, Filter{}, Sorting{})
	require.NoError(t, err)
	require.Equal(t, []string{"Acting", "Amateur radio", "Bungee", "Cooking"}, hobbyNames(details))
}

func hobbyNames(details []model.Detail) []string {
	out := make([]string, len(details))
	for i, d := range details {
		out[i] = d.StringValue(model.FieldDisplayLabel)
	}
	return out
}
