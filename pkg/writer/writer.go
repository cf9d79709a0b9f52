// Package writer implements the Writer: every mutating operation over
// contacts, collections, relationships and OOB scopes, each wrapped in a
// store transaction. Contact saves and removals are followed by an
// aggregation-engine sync; contact, collection and relationship
// mutations are followed by a notifier publish.
package writer

import (
	"context"
	"log/slog"

	"github.com/hazel-systems/contactstore/pkg/aggregate"
	"github.com/hazel-systems/contactstore/pkg/changetrack"
	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/notify"
	"github.com/hazel-systems/contactstore/pkg/store"
)

// Writer mutates the backing store and keeps the aggregation engine and
// notifier in sync with every change.
type Writer struct {
	adapter  *store.Adapter
	agg      *aggregate.Engine
	notifier *notify.Notifier
	log      *slog.Logger
}

// New constructs a Writer. log may be nil (slog.Default is used).
func New(adapter *store.Adapter, agg *aggregate.Engine, notifier *notify.Notifier, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{adapter: adapter, agg: agg, notifier: notifier, log: log}
}

// SaveContact inserts contact if ID is zero, or replaces its details
// otherwise. When detailMask is non-empty, only detail types in the mask
// are replaced (the Presence fast path per spec.md 4.D); an empty mask
// means a full replace of every detail. The Self Contact's identity is
// read-only (spec.md §1, §7): a save targeting it fails with
// NotSupportedError rather than silently mutating the sentinel row.
func (w *Writer) SaveContact(ctx context.Context, contact *model.Contact, detailMask map[model.DetailType]struct{}) error {
	if contact.ID == model.SelfContactID {
		return model.NewError(model.NotSupportedError, "self-contact identity is read-only")
	}
	return w.saveContact(ctx, contact, detailMask)
}

// RegenerateContact is SaveContact without the self-contact guard, for
// aggregate regeneration (pkg/engine's one-shot pass over every local
// contact after a schema upgrade), which legitimately rewrites the Self
// Contact's row like any other local contact.
func (w *Writer) RegenerateContact(ctx context.Context, contact *model.Contact, detailMask map[model.DetailType]struct{}) error {
	return w.saveContact(ctx, contact, detailMask)
}

func (w *Writer) saveContact(ctx context.Context, contact *model.Contact, detailMask map[model.DetailType]struct{}) error {
	presenceOnly := isPresenceOnlyMask(detailMask)

	err := w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		if contact.ID == 0 {
			id, err := tx.InsertContact(ctx, contact.CollectionID, uint8(changetrack.Transition(0, changetrack.Insert)))
			if err != nil {
				return err
			}
			contact.ID = id
		} else {
			row, err := tx.GetContactRow(ctx, contact.ID)
			if err != nil {
				return err
			}
			next := changetrack.Transition(changetrack.Flags(row.ChangeFlags), changetrack.Modify)
			if err := tx.SetContactChangeFlags(ctx, contact.ID, uint8(next)); err != nil {
				return err
			}

			if len(detailMask) == 0 {
				if err := tx.DeleteDetailsForContact(ctx, contact.ID); err != nil {
					return err
				}
			} else {
				existing, err := tx.ListDetails(ctx, contact.ID)
				if err != nil {
					return err
				}
				for _, d := range existing {
					if _, masked := detailMask[d.Type]; masked {
						if err := tx.DeleteDetail(ctx, d.DetailID); err != nil {
							return err
						}
					}
				}
			}
		}

		for _, d := range contact.Details {
			if len(detailMask) > 0 {
				if _, masked := detailMask[d.Type]; !masked {
					continue
				}
			}
			if _, err := tx.InsertDetail(ctx, contact.ID, d, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return w.syncAndPublish(ctx, contact.ID, presenceOnly)
}

func isPresenceOnlyMask(mask map[model.DetailType]struct{}) bool {
	if len(mask) != 1 {
		return false
	}
	_, ok := mask[model.TypePresence]
	return ok
}

func (w *Writer) syncAndPublish(ctx context.Context, contactID model.ContactID, presenceOnly bool) error {
	row, err := w.adapter.GetContactRow(ctx, contactID)
	if err != nil {
		return err
	}
	coll, err := w.adapter.GetCollection(ctx, row.CollectionID)
	if err != nil {
		return err
	}

	event := notify.ContactsChanged
	if presenceOnly {
		event = notify.ContactsPresenceChanged
	}
	w.notifier.Publish(notify.Event{Name: event, IDs: []uint32{uint32(contactID)}})

	if !coll.Aggregable || w.agg == nil {
		return nil
	}

	affected, err := w.agg.Sync(ctx, contactID, presenceOnly)
	if err != nil {
		return err
	}
	if len(affected) == 0 {
		return nil
	}
	ids := make([]uint32, len(affected))
	for i, id := range affected {
		ids[i] = uint32(id)
	}
	w.notifier.Publish(notify.Event{Name: notify.ContactsChanged, IDs: ids})
	return nil
}

// RemoveContacts sets IsDeleted on each row's change-flags word. A
// contact's details are physically removed only when it no longer
// belongs to any tracked collection (i.e. the row itself is about to be
// deleted by a subsequent clearChangeFlags, not here). Per-index errors
// (e.g. a nonexistent id) are recorded without failing the whole batch.
// The Self Contact is read-only (spec.md §1, §7): removing it records
// NotSupportedError for that index instead of deleting the sentinel row.
func (w *Writer) RemoveContacts(ctx context.Context, ids []model.ContactID) model.BatchErrors {
	var errs model.BatchErrors
	for i, id := range ids {
		if id == model.SelfContactID {
			errs.Record(i, model.NewError(model.NotSupportedError, "self-contact identity is read-only"))
			continue
		}
		row, err := w.adapter.GetContactRow(ctx, id)
		if err != nil {
			errs.Record(i, model.NewError(model.DoesNotExistError, "contact %d does not exist", id))
			continue
		}

		err = w.adapter.WithTx(ctx, func(tx *store.Tx) error {
			next := changetrack.Transition(changetrack.Flags(row.ChangeFlags), changetrack.Delete)
			return tx.SetContactChangeFlags(ctx, id, uint8(next))
		})
		if err != nil {
			errs.Record(i, model.NewError(model.UnspecifiedError, "%s", err))
			continue
		}

		if w.agg != nil {
			coll, err := w.adapter.GetCollection(ctx, row.CollectionID)
			if err == nil && coll.Aggregable {
				if _, _, err := w.agg.Remove(ctx, id); err != nil {
					errs.Record(i, model.NewError(model.UnspecifiedError, "%s", err))
					continue
				}
			}
		}
		w.notifier.Publish(notify.Event{Name: notify.ContactsRemoved, IDs: []uint32{uint32(id)}})
	}
	return errs
}

// ClearChangeFlags zeroes change flags for ids and physically removes any
// row whose prior state was Deleted (a tombstone ready to be purged).
func (w *Writer) ClearChangeFlags(ctx context.Context, ids []model.ContactID) error {
	return w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		for _, id := range ids {
			row, err := tx.GetContactRow(ctx, id)
			if err != nil {
				continue
			}
			if changetrack.StateOf(changetrack.Flags(row.ChangeFlags)) == changetrack.Deleted {
				if err := tx.DeleteDetailsForContact(ctx, id); err != nil {
					return err
				}
				if err := tx.DeleteRelationshipsInvolving(ctx, id); err != nil {
					return err
				}
				if err := tx.DeleteContact(ctx, id); err != nil {
					return err
				}
				continue
			}
			if err := tx.SetContactChangeFlags(ctx, id, uint8(changetrack.Transition(0, changetrack.Clear))); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveCollection inserts col if ID is zero, or otherwise is a no-op
// placeholder for future field updates (the schema's collection row is
// effectively immutable post-creation in this module's scope).
func (w *Writer) SaveCollection(ctx context.Context, col *model.Collection) error {
	if col.ID != 0 {
		return nil
	}
	err := w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		id, err := tx.InsertCollection(ctx, *col)
		if err != nil {
			return err
		}
		col.ID = id
		return nil
	})
	if err != nil {
		return err
	}
	w.notifier.Publish(notify.Event{Name: notify.CollectionsAdded, IDs: []uint32{uint32(col.ID)}})
	return nil
}

// RemoveCollection deletes a collection. Callers must have already
// removed (or reassigned) its contacts.
func (w *Writer) RemoveCollection(ctx context.Context, id model.CollectionID) error {
	err := w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteCollection(ctx, id)
	})
	if err != nil {
		return err
	}
	w.notifier.Publish(notify.Event{Name: notify.CollectionsRemoved, IDs: []uint32{uint32(id)}})
	return nil
}

// SaveRelationship inserts rel, accepting unknown relationship types
// verbatim (spec.md §7 "Unknown relationship types: NoError").
func (w *Writer) SaveRelationship(ctx context.Context, rel model.Relationship) error {
	err := w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		return tx.InsertRelationship(ctx, rel)
	})
	if err != nil {
		return err
	}
	w.notifier.Publish(notify.Event{Name: notify.RelationshipsAdded, IDs: []uint32{uint32(rel.First), uint32(rel.Second)}})
	return nil
}

// RemoveRelationship deletes rel.
func (w *Writer) RemoveRelationship(ctx context.Context, rel model.Relationship) error {
	err := w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteRelationship(ctx, rel)
	})
	if err != nil {
		return err
	}
	w.notifier.Publish(notify.Event{Name: notify.RelationshipsRemoved, IDs: []uint32{uint32(rel.First), uint32(rel.Second)}})
	return nil
}

// StoreOOB writes a single out-of-band scoped key/value pair.
func (w *Writer) StoreOOB(ctx context.Context, scope, key, value string) error {
	return w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetOOB(ctx, scope, key, value)
	})
}

// RemoveOOB deletes a single scoped key.
func (w *Writer) RemoveOOB(ctx context.Context, scope, key string) error {
	return w.adapter.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteOOB(ctx, scope, key)
	})
}
