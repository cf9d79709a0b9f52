// Package model defines the core contact, detail, collection and
// relationship types shared by every other package in contactstore.
package model

// ContactID is a collection-scoped, database-internal contact identity.
type ContactID int32

// CollectionID is a database-internal collection identity.
type CollectionID int32

// Well-known sentinel collections, registered at engine open.
const (
	AggregateCollectionID CollectionID = 1
	LocalCollectionID     CollectionID = 2
)

// SelfContactID is the read-only identity of the Self Contact, always
// present in the Local collection.
const SelfContactID ContactID = 2

// DetailType is a closed enumeration of the kinds of detail a contact may
// carry.
type DetailType int

const (
	TypeUnknown DetailType = iota
	TypeName
	TypePhoneNumber
	TypeEmailAddress
	TypeAddress
	TypeAvatar
	TypePresence
	TypeNickname
	TypeOnlineAccount
	TypeOrganization
	TypeHobby
	TypeDisplayLabel
	TypeFavorite
	// Deactivated and StatusFlags never appear as promoted aggregate
	// details; they exist solely as default-ignored types for the
	// delta engine (see original_source contactdelta_impl.h).
	TypeDeactivated
	TypeStatusFlags
)

func (t DetailType) String() string {
	switch t {
	case TypeName:
		return "Name"
	case TypePhoneNumber:
		return "PhoneNumber"
	case TypeEmailAddress:
		return "EmailAddress"
	case TypeAddress:
		return "Address"
	case TypeAvatar:
		return "Avatar"
	case TypePresence:
		return "Presence"
	case TypeNickname:
		return "Nickname"
	case TypeOnlineAccount:
		return "OnlineAccount"
	case TypeOrganization:
		return "Organization"
	case TypeHobby:
		return "Hobby"
	case TypeDisplayLabel:
		return "DisplayLabel"
	case TypeFavorite:
		return "Favorite"
	case TypeDeactivated:
		return "Deactivated"
	case TypeStatusFlags:
		return "StatusFlags"
	default:
		return "Unknown"
	}
}

// FieldKey identifies a value within a Detail's Fields map. The common
// extended fields share one range; every DetailType owns a disjoint
// per-type sub-range so that a map[FieldKey]any can hold both without
// collision.
type FieldKey int

// Common extended fields, present on any detail type.
const (
	FieldModifiable FieldKey = iota + 1
	FieldNonexportable
	FieldChangeFlags
	FieldDatabaseID
	FieldProvenance
	FieldDetailURI
	FieldLinkedDetailURIs

	fieldCommonEnd // sentinel: per-type fields start after this
)

// Per-type fields. Each type reserves a block of 100 keys starting at
// fieldCommonEnd + 100*type so that unrelated types never collide.
const perTypeBlock = 100

func typeFieldBase(t DetailType) FieldKey {
	return fieldCommonEnd + FieldKey(int(t)*perTypeBlock)
}

var (
	// Name fields.
	FieldNameFamily = typeFieldBase(TypeName) + 1
	FieldNameGiven  = typeFieldBase(TypeName) + 2
	FieldNameMiddle = typeFieldBase(TypeName) + 3

	// PhoneNumber fields.
	FieldPhoneNumber           = typeFieldBase(TypePhoneNumber) + 1
	FieldPhoneNumberNormalized = typeFieldBase(TypePhoneNumber) + 2

	// EmailAddress fields.
	FieldEmailAddress = typeFieldBase(TypeEmailAddress) + 1

	// OnlineAccount fields.
	FieldOnlineAccountURI = typeFieldBase(TypeOnlineAccount) + 1

	// Presence fields.
	FieldPresenceState = typeFieldBase(TypePresence) + 1

	// DisplayLabel fields.
	FieldDisplayLabel      = typeFieldBase(TypeDisplayLabel) + 1
	FieldDisplayLabelGroup = typeFieldBase(TypeDisplayLabel) + 2

	// Favorite fields.
	FieldFavoriteValue = typeFieldBase(TypeFavorite) + 1
)

// Detail is a single tagged attribute attached to a contact.
type Detail struct {
	Type     DetailType
	Fields   map[FieldKey]any
	DetailID int32
}

// Value returns the field value and whether it was present.
func (d Detail) Value(k FieldKey) (any, bool) {
	if d.Fields == nil {
		return nil, false
	}
	v, ok := d.Fields[k]
	return v, ok
}

// StringValue returns the field as a string, treating a missing field the
// same as an empty string (per the delta engine's equality tolerance
// rules).
func (d Detail) StringValue(k FieldKey) string {
	v, ok := d.Value(k)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// DatabaseID returns the FieldDatabaseID value, or 0 if unset.
func (d Detail) DatabaseID() int32 {
	v, ok := d.Value(FieldDatabaseID)
	if !ok {
		return 0
	}
	id, _ := v.(int32)
	return id
}

// WithField returns a copy of d with k set to v.
func (d Detail) WithField(k FieldKey, v any) Detail {
	fields := make(map[FieldKey]any, len(d.Fields)+1)
	for fk, fv := range d.Fields {
		fields[fk] = fv
	}
	fields[k] = v
	d.Fields = fields
	return d
}

// Contact is an unordered bag of Details plus an identity.
type Contact struct {
	ID           ContactID
	CollectionID CollectionID
	Details      []Detail
	ChangeFlags  uint8
}

// Collection is a named container of contacts.
type Collection struct {
	ID              CollectionID
	Name            string
	Aggregable      bool
	ApplicationName string
	AccountID       int32
	RemotePath      string
	ReadOnly        bool
}

// Relationship is a triple linking two contacts by a named relation type.
type Relationship struct {
	First  ContactID
	Type   string
	Second ContactID
}

// AggregatesRelationshipType is the relation type D uses to link an
// aggregate to each of its constituents.
const AggregatesRelationshipType = "Aggregates"

// FetchHint restricts what a read operation projects/returns.
type FetchHint struct {
	DetailTypes     map[DetailType]struct{}
	MaxCount        int
	NoRelationships bool
}
