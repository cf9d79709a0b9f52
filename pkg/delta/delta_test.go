package delta

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazel-systems/contactstore/pkg/model"
)

func phone(number string, databaseID int32) model.Detail {
	fields := map[model.FieldKey]any{model.FieldPhoneNumber: number}
	if databaseID != 0 {
		fields[model.FieldDatabaseID] = databaseID
	}
	return model.Detail{Type: model.TypePhoneNumber, Fields: fields}
}

func email(addr string) model.Detail {
	return model.Detail{Type: model.TypeEmailAddress, Fields: map[model.FieldKey]any{model.FieldEmailAddress: addr}}
}

func hobby(name string) model.Detail {
	return model.Detail{Type: model.TypeHobby, Fields: map[model.FieldKey]any{model.FieldDisplayLabel: name}}
}

func TestDiffRoundTripScenario(t *testing.T) {
	old := []model.Detail{phone("111", 9), email("a@b")}
	next := []model.Detail{phone("112", 0), email("a@b"), hobby("chess")}

	result := Diff(old, next, DefaultOptions())

	require.Len(t, result.Additions, 1)
	require.Equal(t, "chess", result.Additions[0].StringValue(model.FieldDisplayLabel))

	require.Len(t, result.Modifications, 1)
	mod := result.Modifications[0]
	require.Equal(t, "112", mod.StringValue(model.FieldPhoneNumber))
	require.Equal(t, int32(9), mod.DatabaseID())

	require.Empty(t, result.Deletions)
}

func TestDiffIsIdempotent(t *testing.T) {
	details := []model.Detail{phone("111", 9), email("a@b"), hobby("chess")}

	result := Diff(details, details, DefaultOptions())

	require.Empty(t, result.Additions)
	require.Empty(t, result.Modifications)
	require.Empty(t, result.Deletions)
}

func TestDiffStripsIgnoredTypes(t *testing.T) {
	old := []model.Detail{{Type: model.TypeStatusFlags, Fields: map[model.FieldKey]any{model.FieldFavoriteValue: "x"}}}
	next := []model.Detail{}

	result := Diff(old, next, DefaultOptions())

	require.Empty(t, result.Additions)
	require.Empty(t, result.Modifications)
	require.Empty(t, result.Deletions)
}

func TestDiffEmptyStringToleratesMissing(t *testing.T) {
	old := []model.Detail{{Type: model.TypeNickname, Fields: map[model.FieldKey]any{}}}
	next := []model.Detail{{Type: model.TypeNickname, Fields: map[model.FieldKey]any{model.FieldDisplayLabel: ""}}}

	result := Diff(old, next, DefaultOptions())

	require.Empty(t, result.Additions)
	require.Empty(t, result.Modifications)
	require.Empty(t, result.Deletions)
}

func TestConstructModificationTransfersFieldsIndependently(t *testing.T) {
	old := model.Detail{
		Type: model.TypePhoneNumber,
		Fields: map[model.FieldKey]any{
			model.FieldPhoneNumber: "111",
			model.FieldDatabaseID:  int32(5),
			model.FieldModifiable:  true,
			model.FieldProvenance:  int32(2),
			model.FieldDetailURI:   "uri://old",
		},
	}
	next := model.Detail{
		Type: model.TypePhoneNumber,
		Fields: map[model.FieldKey]any{
			model.FieldPhoneNumber: "112",
			model.FieldProvenance:  int32(3), // explicitly set, must NOT be overwritten
		},
	}

	out := constructModification(old, next)

	require.Equal(t, "112", out.StringValue(model.FieldPhoneNumber))
	require.Equal(t, int32(5), out.DatabaseID())
	modifiable, _ := out.Value(model.FieldModifiable)
	require.Equal(t, true, modifiable)
	provenance, _ := out.Value(model.FieldProvenance)
	require.Equal(t, int32(3), provenance)
	uri, _ := out.Value(model.FieldDetailURI)
	require.Equal(t, "uri://old", uri)
}
