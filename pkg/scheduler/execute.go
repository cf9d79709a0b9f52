package scheduler

import (
	"context"

	"github.com/hazel-systems/contactstore/pkg/model"
	"github.com/hazel-systems/contactstore/pkg/reader"
	"github.com/hazel-systems/contactstore/pkg/writer"
)

// execute is the one function that matches on req.Kind and dispatches to
// the Reader or Writer, per Design Note 9's "tagged variant... one execute
// function that matches on the tag" guidance. Its return value becomes the
// Handle's Results(); its error becomes Handle's Err().
func execute(ctx context.Context, r *reader.Reader, w *writer.Writer, req request) (any, error) {
	switch req.Kind {
	case ContactSave:
		p := req.Payload.(ContactSavePayload)
		if err := w.SaveContact(ctx, p.Contact, p.DetailMask); err != nil {
			return nil, err
		}
		return p.Contact, nil

	case ContactRemove:
		p := req.Payload.(ContactRemovePayload)
		errs := w.RemoveContacts(ctx, p.IDs)
		if errs.Overall == nil {
			return errs, nil
		}
		return errs, errs.Overall

	case ContactFetch:
		p := req.Payload.(ContactFetchPayload)
		return r.ReadContacts(ctx, p.Filter, p.Sorting, p.Hint)

	case ContactIDFetch:
		p := req.Payload.(ContactIDFetchPayload)
		return r.ReadContactIDs(ctx, p.Filter, p.Sorting)

	case ContactFetchByID:
		p := req.Payload.(ContactFetchByIDPayload)
		return r.ReadContactsByIDs(ctx, p.IDs, p.Hint)

	case RelationshipFetch:
		p := req.Payload.(RelationshipFetchPayload)
		return r.ReadRelationships(ctx, p.Type, p.First, p.Second)

	case RelationshipSave:
		p := req.Payload.(RelationshipSavePayload)
		return nil, w.SaveRelationship(ctx, p.Relationship)

	case RelationshipRemove:
		p := req.Payload.(RelationshipRemovePayload)
		return nil, w.RemoveRelationship(ctx, p.Relationship)

	case CollectionFetch:
		return r.ReadCollections(ctx)

	case CollectionSave:
		p := req.Payload.(CollectionSavePayload)
		if err := w.SaveCollection(ctx, p.Collection); err != nil {
			return nil, err
		}
		return p.Collection, nil

	case CollectionRemove:
		p := req.Payload.(CollectionRemovePayload)
		return nil, w.RemoveCollection(ctx, p.ID)

	case DetailFetch:
		p := req.Payload.(DetailFetchPayload)
		return r.ReadDetails(ctx, p.Type, p.SortField, p.Filter, p.Sorting)

	case CollectionChangesFetch:
		p := req.Payload.(CollectionChangesFetchPayload)
		return w.FetchCollectionChanges(ctx, p.AccountID, p.App)

	case ContactChangesFetch:
		p := req.Payload.(ContactChangesFetchPayload)
		return w.FetchContactChanges(ctx, p.Collection)

	case ChangesSave:
		p := req.Payload.(ChangesSavePayload)
		return nil, w.StoreChanges(ctx, p.Added, p.Modified, p.RemovedIDs, p.Policy, p.ClearFlags)

	case ClearChangeFlags:
		p := req.Payload.(ClearChangeFlagsPayload)
		return nil, w.ClearChangeFlags(ctx, p.IDs)

	default:
		return nil, model.NewError(model.UnspecifiedError, "scheduler: unknown request kind %d", req.Kind)
	}
}
