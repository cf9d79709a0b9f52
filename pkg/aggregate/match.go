package aggregate

import (
	"strings"

	"github.com/hazel-systems/contactstore/pkg/model"
)

// identityKey is one normalized matchable attribute of a constituent: a
// composed name, a phone number, or an online account uri.
type identityKey struct {
	kind string
	key  string
}

// identityKeysForDetails derives every identityKey a constituent's detail
// set contributes, per spec.md 4.D "Matching": a name-based identity
// (composed family+given+middle, normalized), plus one key per exact
// phone number and per exact online-account identifier.
func identityKeysForDetails(details []model.Detail) []identityKey {
	var keys []identityKey

	if k, ok := nameKey(details); ok {
		keys = append(keys, identityKey{kind: kindName, key: k})
	}

	for _, d := range details {
		switch d.Type {
		case model.TypePhoneNumber:
			number := d.StringValue(model.FieldPhoneNumberNormalized)
			if number == "" {
				number = d.StringValue(model.FieldPhoneNumber)
			}
			if number != "" {
				keys = append(keys, identityKey{kind: kindPhone, key: number})
			}
		case model.TypeOnlineAccount:
			uri := d.StringValue(model.FieldOnlineAccountURI)
			if uri != "" {
				keys = append(keys, identityKey{kind: kindAccount, key: uri})
			}
		}
	}

	return keys
}

// nameKey composes the first Name detail's family+given+middle fields,
// normalized by lowercasing and collapsing whitespace.
func nameKey(details []model.Detail) (string, bool) {
	for _, d := range details {
		if d.Type != model.TypeName {
			continue
		}
		composed := strings.Join([]string{
			d.StringValue(model.FieldNameFamily),
			d.StringValue(model.FieldNameGiven),
			d.StringValue(model.FieldNameMiddle),
		}, " ")
		normalized := normalizeIdentityString(composed)
		if normalized == "" {
			return "", false
		}
		return normalized, true
	}
	return "", false
}

// normalizeIdentityString lowercases s and collapses runs of whitespace
// to a single space, trimming the result.
func normalizeIdentityString(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
