// Package aggregate implements the Aggregation Engine: it presents one
// contact per real-world person while preserving per-source fidelity,
// matching constituents by name/phone/online-account identity and
// promoting their details onto a synthetic aggregate contact.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"dario.cat/mergo"

	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/store"
)

// singletonTypes are promoted by precedence (Local wins, else lowest-id
// constituent) rather than union, per spec.md 4.D "Promotion".
var singletonTypes = map[model.DetailType]struct{}{
	model.TypeName:         {},
	model.TypeDisplayLabel: {},
	model.TypeFavorite:     {},
}

// Engine owns the in-memory identity index and the logic that keeps
// aggregate contacts in sync with their constituents. mu serializes every
// Sync/Remove: each does a candidates read followed by an attach/reindex
// write against the shared index and is not safe to interleave, and the
// same Engine is driven concurrently by both the synchronous Writer and
// the scheduler's worker Writer (spec.md §5), plus any fan-out during
// aggregate regeneration.
type Engine struct {
	mu sync.Mutex

	adapter *store.Adapter
	index   *identityIndex
	labels  LabelGroupGenerator
	log     *slog.Logger
}

// New constructs an Engine and rebuilds its identity index from the
// backing store's current Aggregates relationships. db must already have
// its schema applied (store.Open).
func New(ctx context.Context, adapter *store.Adapter, labels LabelGroupGenerator, log *slog.Logger) (*Engine, error) {
	if labels == nil {
		labels = DefaultLabelGroupGenerator{}
	}
	if log == nil {
		log = slog.Default()
	}
	idx, err := newIdentityIndex()
	if err != nil {
		return nil, err
	}
	e := &Engine{adapter: adapter, index: idx, labels: labels, log: log}
	if err := e.rebuildIndex(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// rebuildIndex walks every aggregate contact's constituents and repopulates
// the identity index; it never touches persisted state.
func (e *Engine) rebuildIndex(ctx context.Context) error {
	aggIDs, err := e.adapter.ListContactIDs(ctx, model.AggregateCollectionID)
	if err != nil {
		return err
	}
	for _, aggID := range aggIDs {
		keys, err := e.constituentIdentityKeys(ctx, aggID)
		if err != nil {
			return err
		}
		if err := e.index.replace(aggID, keys); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) constituentIdentityKeys(ctx context.Context, aggregateID model.ContactID) ([]identityKey, error) {
	rels, err := e.adapter.ListRelationshipsFrom(ctx, aggregateID, model.AggregatesRelationshipType)
	if err != nil {
		return nil, err
	}
	var keys []identityKey
	for _, r := range rels {
		details, err := e.adapter.ListDetails(ctx, r.Second)
		if err != nil {
			return nil, err
		}
		keys = append(keys, identityKeysForDetails(details)...)
	}
	return keys, nil
}

// Sync is called after a Writer mutation of a constituent in an Aggregable
// collection. It finds (or creates) the matching aggregate, attaches the
// constituent, recomputes the identity index, and re-promotes the
// aggregate's details. It returns the affected aggregate ids.
func (e *Engine) Sync(ctx context.Context, constituent model.ContactID, presenceOnly bool) ([]model.ContactID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	details, err := e.adapter.ListDetails(ctx, constituent)
	if err != nil {
		return nil, err
	}

	existing, err := e.ownerOf(ctx, constituent)
	if err != nil {
		return nil, err
	}

	if presenceOnly && existing != 0 {
		if err := e.promote(ctx, existing); err != nil {
			return nil, err
		}
		return []model.ContactID{existing}, nil
	}

	keys := identityKeysForDetails(details)
	candidates, err := e.index.candidates(keys)
	if err != nil {
		return nil, err
	}

	var target model.ContactID
	switch {
	case len(candidates) > 0:
		target = candidates[0] // lowest-id match wins; spec.md 4.D "Matching"
	case existing != 0:
		target = existing
	default:
		target, err = e.createAggregate(ctx)
		if err != nil {
			return nil, err
		}
	}

	if existing != target {
		if existing != 0 {
			if err := e.detach(ctx, existing, constituent); err != nil {
				return nil, err
			}
			if empty, err := e.isEmpty(ctx, existing); err != nil {
				return nil, err
			} else if empty {
				if err := e.teardown(ctx, existing); err != nil {
					return nil, err
				}
			} else if err := e.promote(ctx, existing); err != nil {
				return nil, err
			}
		}
		if err := e.attach(ctx, target, constituent); err != nil {
			return nil, err
		}
	}

	if err := e.reindex(ctx, target); err != nil {
		return nil, err
	}
	if err := e.promote(ctx, target); err != nil {
		return nil, err
	}

	affected := []model.ContactID{target}
	if existing != 0 && existing != target {
		affected = append(affected, existing)
	}
	return affected, nil
}

// Remove detaches constituent from whatever aggregate owns it. If it was
// the last constituent, the aggregate itself is torn down and its id is
// returned in removed; otherwise the aggregate is re-promoted and its id
// is returned in changed.
func (e *Engine) Remove(ctx context.Context, constituent model.ContactID) (changed, removed []model.ContactID, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	owner, err := e.ownerOf(ctx, constituent)
	if err != nil || owner == 0 {
		return nil, nil, err
	}

	if err := e.detach(ctx, owner, constituent); err != nil {
		return nil, nil, err
	}

	empty, err := e.isEmpty(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	if empty {
		if err := e.teardown(ctx, owner); err != nil {
			return nil, nil, err
		}
		return nil, []model.ContactID{owner}, nil
	}

	if err := e.reindex(ctx, owner); err != nil {
		return nil, nil, err
	}
	if err := e.promote(ctx, owner); err != nil {
		return nil, nil, err
	}
	return []model.ContactID{owner}, nil, nil
}

// NeedsRegeneration reports whether the aggregate collection is empty
// while the local collection is not, the trigger condition for a one-shot
// regeneration pass after a schema version bump (spec.md 4.D
// "Regeneration"). The caller (pkg/writer or pkg/engine) is responsible
// for then issuing a synthetic save of every local contact.
func (e *Engine) NeedsRegeneration(ctx context.Context) (bool, error) {
	aggIDs, err := e.adapter.ListContactIDs(ctx, model.AggregateCollectionID)
	if err != nil {
		return false, err
	}
	if len(aggIDs) > 0 {
		return false, nil
	}
	localIDs, err := e.adapter.ListContactIDs(ctx, model.LocalCollectionID)
	if err != nil {
		return false, err
	}
	return len(localIDs) > 0, nil
}

func (e *Engine) ownerOf(ctx context.Context, constituent model.ContactID) (model.ContactID, error) {
	rels, err := e.adapter.ListRelationshipsTo(ctx, constituent, model.AggregatesRelationshipType)
	if err != nil || len(rels) == 0 {
		return 0, err
	}
	return rels[0].First, nil
}

func (e *Engine) isEmpty(ctx context.Context, aggregateID model.ContactID) (bool, error) {
	rels, err := e.adapter.ListRelationshipsFrom(ctx, aggregateID, model.AggregatesRelationshipType)
	return len(rels) == 0, err
}

func (e *Engine) createAggregate(ctx context.Context) (model.ContactID, error) {
	var id model.ContactID
	err := e.adapter.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		id, err = tx.InsertContact(ctx, model.AggregateCollectionID, 0)
		return err
	})
	return id, err
}

func (e *Engine) attach(ctx context.Context, aggregateID, constituent model.ContactID) error {
	return e.adapter.WithTx(ctx, func(tx *store.Tx) error {
		return tx.InsertRelationship(ctx, model.Relationship{
			First: aggregateID, Type: model.AggregatesRelationshipType, Second: constituent,
		})
	})
}

func (e *Engine) detach(ctx context.Context, aggregateID, constituent model.ContactID) error {
	return e.adapter.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteRelationship(ctx, model.Relationship{
			First: aggregateID, Type: model.AggregatesRelationshipType, Second: constituent,
		})
	})
}

func (e *Engine) teardown(ctx context.Context, aggregateID model.ContactID) error {
	if err := e.index.remove(aggregateID); err != nil {
		return err
	}
	return e.adapter.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.DeleteDetailsForContact(ctx, aggregateID); err != nil {
			return err
		}
		if err := tx.DeleteRelationshipsInvolving(ctx, aggregateID); err != nil {
			return err
		}
		return tx.DeleteContact(ctx, aggregateID)
	})
}

func (e *Engine) reindex(ctx context.Context, aggregateID model.ContactID) error {
	keys, err := e.constituentIdentityKeys(ctx, aggregateID)
	if err != nil {
		return err
	}
	return e.index.replace(aggregateID, keys)
}

// constituent is a resolved (id, in-Local-collection, details) tuple used
// during promotion.
type constituent struct {
	id      model.ContactID
	local   bool
	details []model.Detail
}

// promote recomputes every detail of aggregateID from its current
// constituents: non-singleton types union, singleton types pick the Local
// constituent (else the lowest id), per spec.md 4.D "Promotion".
func (e *Engine) promote(ctx context.Context, aggregateID model.ContactID) error {
	rels, err := e.adapter.ListRelationshipsFrom(ctx, aggregateID, model.AggregatesRelationshipType)
	if err != nil {
		return err
	}

	constituents := make([]constituent, 0, len(rels))
	for _, r := range rels {
		row, err := e.adapter.GetContactRow(ctx, r.Second)
		if err != nil {
			return err
		}
		details, err := e.adapter.ListDetails(ctx, r.Second)
		if err != nil {
			return err
		}
		constituents = append(constituents, constituent{
			id:      r.Second,
			local:   row.CollectionID == model.LocalCollectionID,
			details: details,
		})
	}
	sort.Slice(constituents, func(i, j int) bool { return constituents[i].id < constituents[j].id })

	promoted, err := promoteDetails(constituents)
	if err != nil {
		return err
	}

	return e.adapter.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.DeleteDetailsForContact(ctx, aggregateID); err != nil {
			return err
		}
		for _, d := range promoted {
			if _, err := tx.InsertDetail(ctx, aggregateID, d, 0); err != nil {
				return err
			}
		}
		return nil
	})
}

// promoteDetails implements the union/precedence rule over an ordered set
// of constituents (already sorted ascending by id).
func promoteDetails(constituents []constituent) ([]model.Detail, error) {
	var order []model.DetailType
	seen := map[model.DetailType]struct{}{}

	byType := map[model.DetailType][]struct {
		owner  constituent
		detail model.Detail
	}{}

	for _, c := range constituents {
		for _, d := range c.details {
			if _, ok := seen[d.Type]; !ok {
				seen[d.Type] = struct{}{}
				order = append(order, d.Type)
			}
			byType[d.Type] = append(byType[d.Type], struct {
				owner  constituent
				detail model.Detail
			}{c, d})
		}
	}

	var out []model.Detail
	for _, t := range order {
		entries := byType[t]
		if _, singleton := singletonTypes[t]; singleton {
			chosen := entries[0]
			for _, e := range entries {
				if e.owner.local {
					chosen = e
					break
				}
			}
			promoted, err := promoteOne(chosen.detail, chosen.owner.id)
			if err != nil {
				return nil, err
			}
			out = append(out, promoted)
			continue
		}
		for _, e := range entries {
			promoted, err := promoteOne(e.detail, e.owner.id)
			if err != nil {
				return nil, err
			}
			out = append(out, promoted)
		}
	}
	return out, nil
}

// promoteOne copies src's fields onto a fresh promoted detail, stamping
// Provenance with the owning constituent and clearing the source-specific
// DatabaseID and DetailID (an aggregate detail is synthetic).
func promoteOne(src model.Detail, owner model.ContactID) (model.Detail, error) {
	fields := map[model.FieldKey]any{}
	if err := mergo.Merge(&fields, src.Fields); err != nil {
		return model.Detail{}, err
	}
	fields[model.FieldProvenance] = int32(owner)
	delete(fields, model.FieldDatabaseID)
	return model.Detail{Type: src.Type, Fields: fields}, nil
}
