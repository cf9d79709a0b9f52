// Package engine wires the Storage Adapter, Notifier, Aggregation
// Engine, Reader, Writer and Request Scheduler into one construction
// point, and owns the process-wide manager registry (spec.md §9).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazel-systems/contactstore/pkg/aggregate"
	"github.com/hazel-systems/contactstore/pkg/idutil"
	"github.com/hazel-systems/contactstore/pkg/notify"
	"github.com/hazel-systems/contactstore/pkg/reader"
	"github.com/hazel-systems/contactstore/pkg/scheduler"
	"github.com/hazel-systems/contactstore/pkg/store"
	"github.com/hazel-systems/contactstore/pkg/writer"
)

const identityKey = "engine-uuid"

// Engine is one open contacts store: a synchronous Reader/Writer pair
// plus an asynchronous Scheduler, sharing one Aggregation Engine and
// Notifier but never a *store.Adapter between the sync and async sides
// (spec.md §5 "Shared-resource policy").
type Engine struct {
	managerURI string
	uuid       string

	adapter *store.Adapter
	agg     *aggregate.Engine

	Notifier  *notify.Notifier
	Reader    *reader.Reader
	Writer    *writer.Writer
	Scheduler *scheduler.Engine

	log *slog.Logger
}

// Open opens (creating if absent) the sqlite database at path, registers
// the resulting Engine under managerURI in the process-wide registry, and
// runs one-shot aggregate regeneration if needed. The returned Engine
// owns two independent store.Adapters: one here for synchronous calls,
// one inside Scheduler for the worker goroutine. If opts.AutoTest is set,
// path is ignored in favor of a fresh throwaway file per Open call.
func Open(ctx context.Context, path, managerURI string, opts Options) (*Engine, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	labels := opts.Labels
	if labels == nil {
		labels = aggregate.DefaultLabelGroupGenerator{}
	}
	if opts.AutoTest {
		dir, err := os.MkdirTemp("", "contacts-store-test-*")
		if err != nil {
			return nil, fmt.Errorf("engine: creating autotest directory: %w", err)
		}
		path = filepath.Join(dir, "contacts-store-test.db")
	}

	storeOpts := store.Options{Privileged: !opts.Nonprivileged}

	adapter, err := store.Open(path, storeOpts)
	if err != nil {
		return nil, fmt.Errorf("engine: opening store: %w", err)
	}
	if storeOpts.Privileged && !adapter.EffectivePrivileged {
		log.Warn("engine: privileged access requested but unavailable, continuing unprivileged", "manager_uri", managerURI)
	}
	if err := adapter.EnsureSentinelCollections(ctx); err != nil {
		adapter.Close()
		return nil, fmt.Errorf("engine: ensuring sentinel collections: %w", err)
	}

	uuid, err := identity(ctx, adapter)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("engine: loading identity: %w", err)
	}

	agg, err := aggregate.New(ctx, adapter, labels, log)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("engine: building aggregation engine: %w", err)
	}

	notifier := notify.New(opts.MergePresenceChanges, log)
	w := writer.New(adapter, agg, notifier, log)
	r := reader.New(adapter, nil)

	needsRegen, err := agg.NeedsRegeneration(ctx)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("engine: checking regeneration trigger: %w", err)
	}
	if needsRegen {
		log.Info("engine: regenerating aggregates after schema upgrade", "manager_uri", managerURI)
		if err := regenerate(ctx, adapter, w); err != nil {
			adapter.Close()
			return nil, fmt.Errorf("engine: regenerating aggregates: %w", err)
		}
	}

	e := &Engine{
		managerURI: managerURI,
		uuid:       uuid,
		adapter:    adapter,
		agg:        agg,
		Notifier:   notifier,
		Reader:     r,
		Writer:     w,
		Scheduler:  scheduler.Open(path, storeOpts, agg, notifier, log),
		log:        log,
	}
	register(managerURI, e)
	return e, nil
}

// identity returns the engine instance's persisted uuid, generating and
// storing one on first open.
func identity(ctx context.Context, adapter *store.Adapter) (string, error) {
	existing, ok, err := adapter.GetIdentity(ctx, identityKey)
	if err != nil {
		return "", err
	}
	if ok {
		return existing, nil
	}
	fresh := idutil.UUID()
	if err := adapter.SetIdentity(ctx, identityKey, fresh); err != nil {
		return "", err
	}
	return fresh, nil
}

// UUID returns the engine instance's persisted identity.
func (e *Engine) UUID() string { return e.uuid }

// ManagerURI returns the manager URI this Engine is registered under.
func (e *Engine) ManagerURI() string { return e.managerURI }

// Close stops the worker goroutine, closes both store.Adapters, and
// removes the Engine from the process-wide registry.
func (e *Engine) Close() error {
	e.log.Info("engine: closing", "manager_uri", e.managerURI, "uuid", e.uuid)
	unregister(e.managerURI, e)
	e.Scheduler.Stop()
	return e.adapter.Close()
}
