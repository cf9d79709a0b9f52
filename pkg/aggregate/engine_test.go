package aggregate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Adapter) {
	t.Helper()
	adapter, err := store.Open(filepath.Join(t.TempDir(), "contacts.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	ctx := context.Background()
	require.NoError(t, adapter.EnsureSentinelCollections(ctx))

	syncCollection := model.Collection{Name: "sync-source", Aggregable: true}
	var collID model.CollectionID
	err = adapter.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		collID, err = tx.InsertCollection(ctx, syncCollection)
		return err
	})
	require.NoError(t, err)
	t.Logf("sync collection id = %d", collID)

	eng, err := New(ctx, adapter, nil, nil)
	require.NoError(t, err)
	return eng, adapter
}

func insertContact(t *testing.T, ctx context.Context, adapter *store.Adapter, collection model.CollectionID, details ...model.Detail) model.ContactID {
	t.Helper()
	var id model.ContactID
	err := adapter.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		id, err = tx.InsertContact(ctx, collection, 0)
		if err != nil {
			return err
		}
		for _, d := range details {
			if _, err := tx.InsertDetail(ctx, id, d, 0); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return id
}

func nameDetail(family, given string) model.Detail {
	return model.Detail{Type: model.TypeName, Fields: map[model.FieldKey]any{
		model.FieldNameFamily: family,
		model.FieldNameGiven:  given,
	}}
}

func phoneDetail(number string) model.Detail {
	return model.Detail{Type: model.TypePhoneNumber, Fields: map[model.FieldKey]any{
		model.FieldPhoneNumber: number,
	}}
}

func emailDetail(addr string) model.Detail {
	return model.Detail{Type: model.TypeEmailAddress, Fields: map[model.FieldKey]any{
		model.FieldEmailAddress: addr,
	}}
}

func TestAggregationBasicScenario(t *testing.T) {
	eng, adapter := newTestEngine(t)
	ctx := context.Background()

	local := insertContact(t, ctx, adapter, model.LocalCollectionID,
		nameDetail("Smith", "John"), phoneDetail("+1-555"))
	_, err := eng.Sync(ctx, local, false)
	require.NoError(t, err)

	syncCols, err := adapter.ListCollections(ctx)
	require.NoError(t, err)
	var syncCollID model.CollectionID
	for _, c := range syncCols {
		if c.Name == "sync-source" {
			syncCollID = c.ID
		}
	}
	require.NotZero(t, syncCollID)

	remote := insertContact(t, ctx, adapter, syncCollID,
		nameDetail("Smith", "John"), emailDetail("j@x"))
	_, err = eng.Sync(ctx, remote, false)
	require.NoError(t, err)

	aggIDs, err := adapter.ListContactIDs(ctx, model.AggregateCollectionID)
	require.NoError(t, err)
	require.Len(t, aggIDs, 1)

	details, err := adapter.ListDetails(ctx, aggIDs[0])
	require.NoError(t, err)

	var gotName, gotPhone, gotEmail bool
	for _, d := range details {
		switch d.Type {
		case model.TypeName:
			require.Equal(t, "Smith", d.StringValue(model.FieldNameFamily))
			provenance, _ := d.Value(model.FieldProvenance)
			require.Equal(t, int32(local), provenance)
			gotName = true
		case model.TypePhoneNumber:
			require.Equal(t, "+1-555", d.StringValue(model.FieldPhoneNumber))
			gotPhone = true
		case model.TypeEmailAddress:
			require.Equal(t, "j@x", d.StringValue(model.FieldEmailAddress))
			provenance, _ := d.Value(model.FieldProvenance)
			require.Equal(t, int32(remote), provenance)
			gotEmail = true
		}
	}
	require.True(t, gotName)
	require.True(t, gotPhone)
	require.True(t, gotEmail)
}

func TestRemoveLastConstituentTearsDownAggregate(t *testing.T) {
	eng, adapter := newTestEngine(t)
	ctx := context.Background()

	local := insertContact(t, ctx, adapter, model.LocalCollectionID, nameDetail("Doe", "Jane"))
	_, err := eng.Sync(ctx, local, false)
	require.NoError(t, err)

	aggIDs, err := adapter.ListContactIDs(ctx, model.AggregateCollectionID)
	require.NoError(t, err)
	require.Len(t, aggIDs, 1)

	_, removed, err := eng.Remove(ctx, local)
	require.NoError(t, err)
	require.Equal(t, []model.ContactID{aggIDs[0]}, removed)

	aggIDs, err = adapter.ListContactIDs(ctx, model.AggregateCollectionID)
	require.NoError(t, err)
	require.Empty(t, aggIDs)
}

// mockLengthLabelGenerator reproduces Concrete Scenario 4's grouping rule:
// group by last-name length rather than content, so the test can assert
// sort order without depending on actual alphabetic content.
type mockLengthLabelGenerator struct{}

func (mockLengthLabelGenerator) DisplayLabelGroup(lastName string) string {
	n := len(lastName)
	switch {
	case n == 0:
		return "Z"
	case n < 6:
		return string(rune('0' + n))
	case (n-6)%2 == 0:
		return "E"
	default:
		return "O"
	}
}

func (mockLengthLabelGenerator) DisplayLabelGroups() []string {
	return []string{"1", "2", "3", "4", "5", "E", "O", "Z"}
}

// TestConcurrentSyncOfSharedIdentityCreatesOneAggregate guards against a
// regression where two constituents sharing an identity key, synced from
// separate goroutines (mirroring pkg/engine's regeneration fan-out and the
// synchronous-Writer-vs-scheduler-worker split), could each read the
// identity index before the other's write landed and create two separate
// aggregates instead of one. Run with -race.
func TestConcurrentSyncOfSharedIdentityCreatesOneAggregate(t *testing.T) {
	eng, adapter := newTestEngine(t)
	ctx := context.Background()

	const n = 16
	ids := make([]model.ContactID, n)
	for i := range ids {
		ids[i] = insertContact(t, ctx, adapter, model.LocalCollectionID, phoneDetail("+15551234567"))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id model.ContactID) {
			defer wg.Done()
			_, err := eng.Sync(ctx, id, false)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	aggIDs, err := adapter.ListContactIDs(ctx, model.AggregateCollectionID)
	require.NoError(t, err)
	require.Len(t, aggIDs, 1, "every constituent sharing the same phone identity must land on one aggregate")

	rels, err := adapter.ListRelationshipsFrom(ctx, aggIDs[0], model.AggregatesRelationshipType)
	require.NoError(t, err)
	require.Len(t, rels, n)
}

func TestDisplayLabelGroupingScenario(t *testing.T) {
	gen := mockLengthLabelGenerator{}
	lengths := []int{1, 5, 8, 7, 3, 0, 6, 4, 8}
	wantGroups := []string{"1", "5", "E", "O", "3", "Z", "E", "4", "E"}

	for i, n := range lengths {
		lastName := make([]byte, n)
		for j := range lastName {
			lastName[j] = 'a'
		}
		require.Equal(t, wantGroups[i], gen.DisplayLabelGroup(string(lastName)), "length %d", n)
	}

	entries := make([]LabelGroupEntry, len(lengths))
	for i, n := range lengths {
		lastName := make([]byte, n)
		for j := range lastName {
			lastName[j] = byte('a' + j%26)
		}
		entries[i] = LabelGroupEntry{Label: string(lastName), Group: gen.DisplayLabelGroup(string(lastName))}
	}

	SortByLabelGroup(entries)

	require.Equal(t, "Z", entries[len(entries)-1].Group, "the zero-length last name's group sorts last")
	require.Equal(t, "", entries[len(entries)-1].Label)
}

func TestDefaultLabelGroupGeneratorFallsBackToHashForEmpty(t *testing.T) {
	gen := DefaultLabelGroupGenerator{}
	require.Equal(t, "#", gen.DisplayLabelGroup(""))
	require.Equal(t, "S", gen.DisplayLabelGroup("smith"))
}
