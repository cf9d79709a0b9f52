// Package scheduler implements the Request Scheduler: a single background
// worker goroutine that serializes every asynchronous request (save,
// remove, fetch, change-fetch, change-save) against the store, while
// letting submitters enqueue, cancel, and bounded-wait-join independently
// of the worker.
package scheduler

import (
	"github.com/hazel-systems/contactstore/pkg/changetrack"
	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/reader"
)

// Kind is the closed set of request kinds a submitter may enqueue.
type Kind int

const (
	ContactSave Kind = iota
	ContactRemove
	ContactFetch
	ContactIDFetch
	ContactFetchByID
	RelationshipFetch
	RelationshipSave
	RelationshipRemove
	CollectionFetch
	CollectionSave
	CollectionRemove
	DetailFetch
	CollectionChangesFetch
	ContactChangesFetch
	ChangesSave
	ClearChangeFlags
)

func (k Kind) String() string {
	switch k {
	case ContactSave:
		return "ContactSave"
	case ContactRemove:
		return "ContactRemove"
	case ContactFetch:
		return "ContactFetch"
	case ContactIDFetch:
		return "ContactIDFetch"
	case ContactFetchByID:
		return "ContactFetchByID"
	case RelationshipFetch:
		return "RelationshipFetch"
	case RelationshipSave:
		return "RelationshipSave"
	case RelationshipRemove:
		return "RelationshipRemove"
	case CollectionFetch:
		return "CollectionFetch"
	case CollectionSave:
		return "CollectionSave"
	case CollectionRemove:
		return "CollectionRemove"
	case DetailFetch:
		return "DetailFetch"
	case CollectionChangesFetch:
		return "CollectionChangesFetch"
	case ContactChangesFetch:
		return "ContactChangesFetch"
	case ChangesSave:
		return "ChangesSave"
	case ClearChangeFlags:
		return "ClearChangeFlags"
	default:
		return "Unknown"
	}
}

// request is the tagged union enqueued onto the worker: one Kind plus an
// untyped Payload, dispatched by execute's type switch. Grounded on the
// teacher's crud.Event{Op, Kind, Obj, OldObj} shape.
type request struct {
	Kind    Kind
	Payload any
}

// Payload shapes, one per Kind.

type ContactSavePayload struct {
	Contact    *model.Contact
	DetailMask map[model.DetailType]struct{}
}

type ContactRemovePayload struct {
	IDs []model.ContactID
}

type ContactFetchPayload struct {
	Filter  reader.Filter
	Sorting reader.Sorting
	Hint    model.FetchHint
}

type ContactIDFetchPayload struct {
	Filter  reader.Filter
	Sorting reader.Sorting
}

type ContactFetchByIDPayload struct {
	IDs  []model.ContactID
	Hint model.FetchHint
}

type RelationshipFetchPayload struct {
	Type          string
	First, Second model.ContactID
}

type RelationshipSavePayload struct {
	Relationship model.Relationship
}

type RelationshipRemovePayload struct {
	Relationship model.Relationship
}

type CollectionSavePayload struct {
	Collection *model.Collection
}

type CollectionRemovePayload struct {
	ID model.CollectionID
}

type DetailFetchPayload struct {
	Type      model.DetailType
	SortField model.FieldKey
	Filter    reader.Filter
	Sorting   reader.Sorting
}

type CollectionChangesFetchPayload struct {
	AccountID int32
	App       string
}

type ContactChangesFetchPayload struct {
	Collection model.CollectionID
}

type ChangesSavePayload struct {
	Added      []model.Contact
	Modified   []model.Contact
	RemovedIDs []model.ContactID
	Policy     changetrack.Policy
	ClearFlags bool
}

type ClearChangeFlagsPayload struct {
	IDs []model.ContactID
}
