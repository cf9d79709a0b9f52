package engine

import (
	"log/slog"

	"github.com/hazel-systems/contactstore/pkg/aggregate"
)

// Options are the engine's construction parameters (spec.md §6 "per
// request kind" construction parameters, carried at the engine level).
type Options struct {
	// Nonprivileged requests an unprivileged store handle even if an
	// exclusive lock would otherwise be obtainable (Open sets
	// store.Options.Privileged unless this is set).
	Nonprivileged bool
	// AutoTest opens an isolated, throwaway database in place of the
	// caller-supplied path, for engines constructed by tests.
	AutoTest bool
	// MergePresenceChanges is forwarded to notify.New: when true, every
	// ContactsPresenceChanged event is published as ContactsChanged.
	MergePresenceChanges bool

	// Labels is the aggregation engine's display-label group generator.
	// Nil selects aggregate.DefaultLabelGroupGenerator.
	Labels aggregate.LabelGroupGenerator
	// Log receives structured log output from every component. Nil
	// selects slog.Default().
	Log *slog.Logger
}
