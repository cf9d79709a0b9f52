package aggregate

import (
	"strconv"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/hazel-systems/contactstore/pkg/idutil"
	"github.com/hazel-systems/contactstore/pkg/model"
)

const (
	identityTable = "identity"
	all           = "all"

	kindName    = "name"
	kindPhone   = "phone"
	kindAccount = "account"
)

// identityRecord is one (kind, key) -> aggregate mapping. A single
// aggregate typically owns several records (one name key, one per phone
// number, one per online account).
type identityRecord struct {
	RecordID       string
	Kind           string
	Key            string
	AggregateID    model.ContactID
	AggregateIDStr string
}

var identitySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		identityTable: {
			Name: identityTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "RecordID"},
				},
				"key": {
					Name:   "key",
					Unique: false,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Kind"},
							&memdb.StringFieldIndex{Field: "Key"},
						},
					},
				},
				"aggregate": {
					Name:    "aggregate",
					Unique:  false,
					Indexer: &memdb.StringFieldIndex{Field: "AggregateIDStr"},
				},
				all: {
					Name: all,
					Indexer: &memdb.ConditionalIndex{
						Conditional: func(interface{}) (bool, error) { return true, nil },
					},
				},
			},
		},
	},
}

// identityIndex is an in-memory, rebuildable index from identity keys
// (normalized name, phone number, online-account uri) to the aggregate
// that currently owns them. It is never persisted; New rebuilds it from
// the Aggregates relationship table (see Engine.rebuildIndex).
type identityIndex struct {
	db *memdb.MemDB
}

func newIdentityIndex() (*identityIndex, error) {
	db, err := memdb.NewMemDB(identitySchema)
	if err != nil {
		return nil, err
	}
	return &identityIndex{db: db}, nil
}

// candidates returns the distinct aggregate ids whose identity set
// intersects any of keys, in ascending id order (matching picks the
// lowest-id candidate per spec.md 4.D "Matching").
func (x *identityIndex) candidates(keys []identityKey) ([]model.ContactID, error) {
	txn := x.db.Txn(false)
	defer txn.Abort()

	seen := map[model.ContactID]struct{}{}
	for _, k := range keys {
		it, err := txn.Get(identityTable, "key", k.kind, k.key)
		if err != nil {
			return nil, err
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			rec := raw.(*identityRecord)
			seen[rec.AggregateID] = struct{}{}
		}
	}

	out := make([]model.ContactID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sortContactIDs(out)
	return out, nil
}

// replace removes every identity record owned by aggregateID and inserts
// fresh ones for keys, atomically.
func (x *identityIndex) replace(aggregateID model.ContactID, keys []identityKey) error {
	txn := x.db.Txn(true)
	defer txn.Abort()

	idStr := strconv.Itoa(int(aggregateID))
	it, err := txn.Get(identityTable, "aggregate", idStr)
	if err != nil {
		return err
	}
	var stale []*identityRecord
	for raw := it.Next(); raw != nil; raw = it.Next() {
		stale = append(stale, raw.(*identityRecord))
	}
	for _, rec := range stale {
		if err := txn.Delete(identityTable, rec); err != nil {
			return err
		}
	}

	for _, k := range keys {
		rec := &identityRecord{
			RecordID:       idutil.UUID(),
			Kind:           k.kind,
			Key:            k.key,
			AggregateID:    aggregateID,
			AggregateIDStr: idStr,
		}
		if err := txn.Insert(identityTable, rec); err != nil {
			return err
		}
	}

	txn.Commit()
	return nil
}

// remove deletes every identity record owned by aggregateID (used when an
// aggregate is torn down).
func (x *identityIndex) remove(aggregateID model.ContactID) error {
	return x.replace(aggregateID, nil)
}

func sortContactIDs(ids []model.ContactID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
