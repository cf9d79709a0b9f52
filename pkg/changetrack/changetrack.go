// Package changetrack implements the Change-Tracking Protocol: the
// per-record change-flag state machine and the conflict-resolution
// policies storeChanges applies against it.
package changetrack

// Flags is the per-contact/per-detail change-flag bitmask.
type Flags uint8

const (
	FlagAdded Flags = 1 << iota
	FlagModified
	FlagDeleted
)

// State names the position in the Clean → Added → Modified → Deleted
// state machine a Flags value currently occupies.
type State int

const (
	Clean State = iota
	Added
	Modified
	Deleted
)

// StateOf maps a Flags bitmask to its State. Deleted dominates Added and
// Modified (a row can be flagged IsDeleted alongside stale IsAdded/
// IsModified bits, but the effective state is Deleted).
func StateOf(f Flags) State {
	switch {
	case f&FlagDeleted != 0:
		return Deleted
	case f&FlagAdded != 0:
		return Added
	case f&FlagModified != 0:
		return Modified
	default:
		return Clean
	}
}

// Transition computes the new Flags after a caller action, per spec.md
// 4.G: "A new insert always enters Added. A modification while in Added
// remains Added. A modification while in Clean/Modified enters Modified.
// A delete always enters Deleted."
func Transition(current Flags, action Action) Flags {
	switch action {
	case Insert:
		return FlagAdded
	case Modify:
		if StateOf(current) == Added {
			return current
		}
		return FlagModified
	case Delete:
		return FlagDeleted
	case Clear:
		return 0
	default:
		return current
	}
}

// Action is a mutation kind fed into Transition.
type Action int

const (
	Insert Action = iota
	Modify
	Delete
	Clear
)

// Policy governs how storeChanges resolves a conflict between a locally
// modified row and an incoming remote value, at detail granularity.
type Policy int

const (
	// PreserveLocalChanges discards the remote change for any detail
	// whose local flag is not Clean.
	PreserveLocalChanges Policy = iota
	// PreserveRemoteChanges always applies the remote value.
	PreserveRemoteChanges
)

// Resolve decides, for one detail, whether the remote value should win
// under policy given the detail's current local flags.
func Resolve(localFlags Flags, policy Policy) (applyRemote bool) {
	if policy == PreserveRemoteChanges {
		return true
	}
	return StateOf(localFlags) == Clean
}
