package changetrack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionInsertAlwaysAdded(t *testing.T) {
	require.Equal(t, FlagAdded, Transition(0, Insert))
	require.Equal(t, FlagAdded, Transition(FlagModified, Insert))
}

func TestTransitionModifyWhileAddedStaysAdded(t *testing.T) {
	require.Equal(t, FlagAdded, Transition(FlagAdded, Modify))
}

func TestTransitionModifyWhileCleanOrModifiedEntersModified(t *testing.T) {
	require.Equal(t, FlagModified, Transition(0, Modify))
	require.Equal(t, FlagModified, Transition(FlagModified, Modify))
}

func TestTransitionDeleteAlwaysDeleted(t *testing.T) {
	require.Equal(t, FlagDeleted, Transition(FlagAdded, Delete))
	require.Equal(t, FlagDeleted, Transition(0, Delete))
}

func TestConflictResolutionScenario(t *testing.T) {
	localFlags := FlagModified

	require.False(t, Resolve(localFlags, PreserveLocalChanges), "local modified row keeps its own Phone value")
	require.True(t, Resolve(localFlags, PreserveRemoteChanges), "remote always wins under PreserveRemoteChanges")

	require.True(t, Resolve(0, PreserveLocalChanges), "a Clean local row accepts the remote value under either policy")
}
