package writer

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"github.com/hazel-systems/contactstore/pkg/changetrack"
	"github.com/hazel-systems/contactstore/pkg/delta"
	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/notify"
	"github.com/hazel-systems/contactstore/pkg/store"
)

// StoreChanges atomically applies a synchronization delta: added contacts
// are inserted, modified contacts are merged detail-by-detail against the
// local row under policy, and removed contacts are marked Deleted. If
// clearFlags is true, every touched row's change flags are zeroed once
// the merge completes (spec.md 4.F "storeChanges").
//
// Per-detail conflict resolution (Concrete Scenario 6): a remote detail
// only overwrites the local one if changetrack.Resolve allows it for that
// detail's current change-flags under policy.
func (w *Writer) StoreChanges(ctx context.Context, added, modified []model.Contact, removedIDs []model.ContactID, policy changetrack.Policy, clearFlags bool) error {
	touched := map[model.ContactID]struct{}{}

	err := w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		for i := range added {
			flags := changetrack.FlagAdded
			if clearFlags {
				flags = 0
			}
			id, err := tx.InsertContact(ctx, added[i].CollectionID, uint8(flags))
			if err != nil {
				return err
			}
			added[i].ID = id
			for _, d := range added[i].Details {
				if _, err := tx.InsertDetail(ctx, id, d, uint8(flags)); err != nil {
					return err
				}
			}
			touched[id] = struct{}{}
		}

		for _, remote := range modified {
			if err := w.applyModification(ctx, tx, remote, policy); err != nil {
				return err
			}
			touched[remote.ID] = struct{}{}
		}

		for _, id := range removedIDs {
			row, err := tx.GetContactRow(ctx, id)
			if err != nil {
				continue
			}
			next := changetrack.Transition(changetrack.Flags(row.ChangeFlags), changetrack.Delete)
			if err := tx.SetContactChangeFlags(ctx, id, uint8(next)); err != nil {
				return err
			}
			touched[id] = struct{}{}
		}

		if clearFlags {
			for id := range touched {
				if err := tx.SetContactChangeFlags(ctx, id, uint8(changetrack.Transition(0, changetrack.Clear))); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	ids := lo.Map(lo.Keys(touched), func(id model.ContactID, _ int) uint32 { return uint32(id) })
	if len(ids) > 0 {
		w.notifier.Publish(notify.Event{Name: notify.ContactsChanged, IDs: ids})
	}
	return nil
}

// applyModification resolves remote against the current local details of
// remote.ID using the detail-delta classification, then applies only the
// changes Resolve permits under policy. All reads go through tx, since
// remote.ID's row and details may have been written earlier in this same
// open transaction by a prior added/modified entry.
func (w *Writer) applyModification(ctx context.Context, tx *store.Tx, remote model.Contact, policy changetrack.Policy) error {
	localRows, err := tx.ListDetailsWithFlags(ctx, remote.ID)
	if err != nil {
		return err
	}
	local := make([]model.Detail, len(localRows))
	flagsByDetailID := map[int32]uint8{}
	for i, row := range localRows {
		local[i] = row.Detail
		flagsByDetailID[row.Detail.DetailID] = row.ChangeFlags
	}

	classified := delta.Diff(local, remote.Details, delta.DefaultOptions())
	if w.log.Enabled(ctx, slog.LevelDebug) {
		if diff := delta.RenderUnified(local, remote.Details); diff != "" {
			w.log.Debug("applyModification: local/remote detail diff", "contact_id", remote.ID, "diff", diff)
		}
	}

	for _, add := range classified.Additions {
		if _, err := tx.InsertDetail(ctx, remote.ID, add, uint8(changetrack.FlagAdded)); err != nil {
			return err
		}
	}
	for _, del := range classified.Deletions {
		localFlags := changetrack.Flags(flagsByDetailID[del.DetailID])
		if !changetrack.Resolve(localFlags, policy) {
			continue
		}
		if err := tx.DeleteDetail(ctx, del.DetailID); err != nil {
			return err
		}
	}
	for _, mod := range classified.Modifications {
		localFlags := changetrack.Flags(flagsByDetailID[mod.DetailID])
		if !changetrack.Resolve(localFlags, policy) {
			continue
		}
		if err := tx.UpdateDetail(ctx, mod.DetailID, mod, uint8(changetrack.FlagModified)); err != nil {
			return err
		}
	}

	row, err := tx.GetContactRow(ctx, remote.ID)
	if err != nil {
		return err
	}
	next := changetrack.Transition(changetrack.Flags(row.ChangeFlags), changetrack.Modify)
	return tx.SetContactChangeFlags(ctx, remote.ID, uint8(next))
}

// CollectionChanges partitions every collection matching accountID/app by
// change state, per spec.md 4.F "fetchCollectionChanges". A zero accountID
// or empty app matches every collection.
type CollectionChanges struct {
	Added      []model.Collection
	Modified   []model.Collection
	Removed    []model.CollectionID
	Unmodified []model.CollectionID
}

// FetchCollectionChanges is a placeholder partition: this module's schema
// does not track a per-collection change-flags word (only per-contact),
// so every collection matching accountID/app is reported Unmodified. A
// future schema revision that adds collection-level flags would extend
// this without changing the signature.
func (w *Writer) FetchCollectionChanges(ctx context.Context, accountID int32, app string) (CollectionChanges, error) {
	collections, err := w.adapter.ListCollections(ctx)
	if err != nil {
		return CollectionChanges{}, err
	}
	var out CollectionChanges
	for _, c := range collections {
		if accountID != 0 && c.AccountID != accountID {
			continue
		}
		if app != "" && c.ApplicationName != app {
			continue
		}
		out.Unmodified = append(out.Unmodified, c.ID)
	}
	return out, nil
}

// ContactChanges partitions a collection's contacts by change state, per
// spec.md 4.F "fetchContactChanges".
type ContactChanges struct {
	Added      []model.ContactID
	Modified   []model.ContactID
	Removed    []model.ContactID
	Unmodified []model.ContactID
}

// FetchContactChanges partitions every contact in collection by its
// current change-flags state.
func (w *Writer) FetchContactChanges(ctx context.Context, collection model.CollectionID) (ContactChanges, error) {
	ids, err := w.adapter.ListContactIDs(ctx, collection)
	if err != nil {
		return ContactChanges{}, err
	}

	var out ContactChanges
	for _, id := range ids {
		row, err := w.adapter.GetContactRow(ctx, id)
		if err != nil {
			return ContactChanges{}, err
		}
		switch changetrack.StateOf(changetrack.Flags(row.ChangeFlags)) {
		case changetrack.Added:
			out.Added = append(out.Added, id)
		case changetrack.Modified:
			out.Modified = append(out.Modified, id)
		case changetrack.Deleted:
			out.Removed = append(out.Removed, id)
		default:
			out.Unmodified = append(out.Unmodified, id)
		}
	}
	return out, nil
}
