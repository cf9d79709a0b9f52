package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/store"
	"github.com/hazel-systems/contactstore/pkg/writer"
)

// regenerationConcurrency bounds how many synthetic saves run at once
// during a regeneration pass. The store layer serializes the underlying
// writes anyway (WithTx's BEGIN IMMEDIATE), so this only bounds how many
// goroutines queue up behind it at a time.
const regenerationConcurrency = 8

// regenerate issues a synthetic save of every local contact so the
// aggregation engine re-derives aggregates from scratch (spec.md 4.D
// "Regeneration"). It runs once, driven by Open after detecting an
// aggregate collection that is empty while the local collection is not;
// a schema version bump on its own does not trigger it.
func regenerate(ctx context.Context, adapter *store.Adapter, w *writer.Writer) error {
	ids, err := adapter.ListContactIDs(ctx, model.LocalCollectionID)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(regenerationConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			details, err := adapter.ListDetails(ctx, id)
			if err != nil {
				return err
			}
			contact := model.Contact{ID: id, CollectionID: model.LocalCollectionID, Details: details}
			return w.RegenerateContact(ctx, &contact, nil)
		})
	}
	return g.Wait()
}
