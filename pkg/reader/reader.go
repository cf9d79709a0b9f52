// Package reader implements the Reader: synchronous query operations
// over the backing store, with optional incremental-result delivery for
// asynchronous scheduler callers.
package reader

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/store"
)

// Sink receives incremental results as a query streams them, so the
// scheduler can deliver partial results before the request's terminal
// state transition. A nil Sink means the caller is synchronous: Reader
// simply accumulates and returns the full result.
type Sink interface {
	ContactsAvailable([]model.Contact)
	ContactIDsAvailable([]model.ContactID)
	CollectionsAvailable([]model.Collection)
}

// chunkSize bounds how many rows Reader batches per Sink callback.
const chunkSize = 64

// Filter restricts readContacts/readContactIds to a collection (zero
// means "all collections").
type Filter struct {
	CollectionID model.CollectionID
}

// Sorting is a single ascending/descending key; Reader only supports
// sorting on detail string-fields (readDetails) and contact id (the rest).
type Sorting struct {
	Descending bool
}

// Reader answers read queries against adapter, optionally streaming
// through sink.
type Reader struct {
	adapter *store.Adapter
	sink    Sink
}

// New constructs a Reader. sink may be nil for synchronous callers.
func New(adapter *store.Adapter, sink Sink) *Reader {
	return &Reader{adapter: adapter, sink: sink}
}

// ReadContacts returns every contact matching filter, restricted by hint,
// sorted by id.
func (r *Reader) ReadContacts(ctx context.Context, filter Filter, sorting Sorting, hint model.FetchHint) ([]model.Contact, error) {
	ids, err := r.collectionIDs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return r.readContactsByIDs(ctx, ids, sorting, hint)
}

// ReadContactsByIDs returns the contacts named by ids, in the order
// requested.
func (r *Reader) ReadContactsByIDs(ctx context.Context, ids []model.ContactID, hint model.FetchHint) ([]model.Contact, error) {
	return r.readContactsByIDs(ctx, ids, Sorting{}, hint)
}

func (r *Reader) readContactsByIDs(ctx context.Context, ids []model.ContactID, sorting Sorting, hint model.FetchHint) ([]model.Contact, error) {
	var out []model.Contact
	for _, id := range ids {
		row, err := r.adapter.GetContactRow(ctx, id)
		if err != nil {
			return nil, err
		}
		c := model.Contact{ID: row.ID, CollectionID: row.CollectionID, ChangeFlags: row.ChangeFlags}

		if len(hint.DetailTypes) == 0 {
			details, err := r.adapter.ListDetails(ctx, id)
			if err != nil {
				return nil, err
			}
			c.Details = details
		} else {
			for t := range hint.DetailTypes {
				details, err := r.adapter.ListDetailsByType(ctx, id, t)
				if err != nil {
					return nil, err
				}
				c.Details = append(c.Details, details...)
			}
		}

		out = append(out, c)
		if hint.MaxCount > 0 && len(out) >= hint.MaxCount {
			break
		}
		if r.sink != nil && len(out)%chunkSize == 0 {
			r.sink.ContactsAvailable(out[len(out)-chunkSize:])
		}
	}

	if sorting.Descending {
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}

	if r.sink != nil {
		if rem := len(out) % chunkSize; rem > 0 {
			r.sink.ContactsAvailable(out[len(out)-rem:])
		}
	}
	return out, nil
}

// ReadContactIDs returns the ids of every contact matching filter.
func (r *Reader) ReadContactIDs(ctx context.Context, filter Filter, sorting Sorting) ([]model.ContactID, error) {
	ids, err := r.collectionIDs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if sorting.Descending {
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	}
	if r.sink != nil {
		r.sink.ContactIDsAvailable(ids)
	}
	return ids, nil
}

func (r *Reader) collectionIDs(ctx context.Context, filter Filter) ([]model.ContactID, error) {
	if filter.CollectionID != 0 {
		return r.adapter.ListContactIDs(ctx, filter.CollectionID)
	}
	collections, err := r.adapter.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	collectionIDs := lo.Map(collections, func(c model.Collection, _ int) model.CollectionID { return c.ID })

	var all []model.ContactID
	for _, id := range collectionIDs {
		ids, err := r.adapter.ListContactIDs(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all, nil
}

// ReadCollections returns every collection.
func (r *Reader) ReadCollections(ctx context.Context) ([]model.Collection, error) {
	collections, err := r.adapter.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	if r.sink != nil {
		r.sink.CollectionsAvailable(collections)
	}
	return collections, nil
}

// ReadRelationships returns every relationship of typ linking first and
// second; either may be zero, meaning "any". If both are zero, no
// relationships are returned.
func (r *Reader) ReadRelationships(ctx context.Context, typ string, first, second model.ContactID) ([]model.Relationship, error) {
	switch {
	case first != 0:
		rels, err := r.adapter.ListRelationshipsFrom(ctx, first, typ)
		if err != nil || second == 0 {
			return rels, err
		}
		return lo.Filter(rels, func(rel model.Relationship, _ int) bool { return rel.Second == second }), nil
	case second != 0:
		return r.adapter.ListRelationshipsTo(ctx, second, typ)
	default:
		return nil, nil
	}
}

// ReadDetails projects a single detail type across every contact matching
// filter, sorted ascending (or descending) by the field named sortField.
func (r *Reader) ReadDetails(ctx context.Context, t model.DetailType, sortField model.FieldKey, filter Filter, sorting Sorting) ([]model.Detail, error) {
	ids, err := r.collectionIDs(ctx, filter)
	if err != nil {
		return nil, err
	}

	var out []model.Detail
	for _, id := range ids {
		details, err := r.adapter.ListDetailsByType(ctx, id, t)
		if err != nil {
			return nil, err
		}
		out = append(out, details...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].StringValue(sortField), out[j].StringValue(sortField)
		if sorting.Descending {
			return a > b
		}
		return a < b
	})
	return out, nil
}

// FetchOOB returns the values for keys within scope; if keys is empty,
// every key currently set in scope is returned.
func (r *Reader) FetchOOB(ctx context.Context, scope string, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		var err error
		keys, err = r.adapter.ListOOBKeys(ctx, scope)
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := r.adapter.GetOOB(ctx, scope, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// FetchOOBKeys lists every key currently set within scope.
func (r *Reader) FetchOOBKeys(ctx context.Context, scope string) ([]string, error) {
	return r.adapter.ListOOBKeys(ctx, scope)
}
