package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fedledger/authority/compliance"
	"github.com/fedledger/authority/fund"
	"github.com/fedledger/authority/id"
	"github.com/fedledger/authority/snapshot"
	"github.com/fedledger/authority/types"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so each emit walks only the plugins that
// implement the hook.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onNodeCreated        []OnNodeCreated
	onTransition         []OnTransition
	onObligationPosted   []OnObligationPosted
	onDisbursementPosted []OnDisbursementPosted
	onAuthorityAdjusted  []OnAuthorityAdjusted
	onComplianceRejected []OnComplianceRejected
	onCommandFailed      []OnCommandFailed
	onSnapshotGenerated  []OnSnapshotGenerated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnNodeCreated); ok {
		r.onNodeCreated = append(r.onNodeCreated, v)
	}
	if v, ok := p.(OnTransition); ok {
		r.onTransition = append(r.onTransition, v)
	}
	if v, ok := p.(OnObligationPosted); ok {
		r.onObligationPosted = append(r.onObligationPosted, v)
	}
	if v, ok := p.(OnDisbursementPosted); ok {
		r.onDisbursementPosted = append(r.onDisbursementPosted, v)
	}
	if v, ok := p.(OnAuthorityAdjusted); ok {
		r.onAuthorityAdjusted = append(r.onAuthorityAdjusted, v)
	}
	if v, ok := p.(OnComplianceRejected); ok {
		r.onComplianceRejected = append(r.onComplianceRejected, v)
	}
	if v, ok := p.(OnCommandFailed); ok {
		r.onCommandFailed = append(r.onCommandFailed, v)
	}
	if v, ok := p.(OnSnapshotGenerated); ok {
		r.onSnapshotGenerated = append(r.onSnapshotGenerated, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())

	return nil
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitNodeCreated emits a node created event.
func (r *Registry) EmitNodeCreated(ctx context.Context, n *fund.Node) {
	r.mu.RLock()
	plugins := r.onNodeCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNodeCreated(ctx, n)
		}); err != nil {
			r.logger.Warn("plugin OnNodeCreated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitTransition emits a committed transition event.
func (r *Registry) EmitTransition(ctx context.Context, n *fund.Node, from fund.Status, event string) {
	r.mu.RLock()
	plugins := r.onTransition
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransition(ctx, n, from, event)
		}); err != nil {
			r.logger.Warn("plugin OnTransition failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitObligationPosted emits an obligation posted event.
func (r *Registry) EmitObligationPosted(ctx context.Context, source, obligation *fund.Node) {
	r.mu.RLock()
	plugins := r.onObligationPosted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnObligationPosted(ctx, source, obligation)
		}); err != nil {
			r.logger.Warn("plugin OnObligationPosted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitDisbursementPosted emits a disbursement posted event.
func (r *Registry) EmitDisbursementPosted(ctx context.Context, target, expense *fund.Node) {
	r.mu.RLock()
	plugins := r.onDisbursementPosted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDisbursementPosted(ctx, target, expense)
		}); err != nil {
			r.logger.Warn("plugin OnDisbursementPosted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitAuthorityAdjusted emits an authority adjusted event.
func (r *Registry) EmitAuthorityAdjusted(ctx context.Context, n *fund.Node, delta types.Money) {
	r.mu.RLock()
	plugins := r.onAuthorityAdjusted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAuthorityAdjusted(ctx, n, delta)
		}); err != nil {
			r.logger.Warn("plugin OnAuthorityAdjusted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitComplianceRejected emits a compliance rejection event.
func (r *Registry) EmitComplianceRejected(ctx context.Context, result *compliance.Result) {
	r.mu.RLock()
	plugins := r.onComplianceRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnComplianceRejected(ctx, result)
		}); err != nil {
			r.logger.Warn("plugin OnComplianceRejected failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCommandFailed emits a command failure event.
func (r *Registry) EmitCommandFailed(ctx context.Context, commandID id.CommandID, cmdErr error) {
	r.mu.RLock()
	plugins := r.onCommandFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCommandFailed(ctx, commandID, cmdErr)
		}); err != nil {
			r.logger.Warn("plugin OnCommandFailed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitSnapshotGenerated emits a snapshot generated event.
func (r *Registry) EmitSnapshotGenerated(ctx context.Context, meta *snapshot.Metadata) {
	r.mu.RLock()
	plugins := r.onSnapshotGenerated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSnapshotGenerated(ctx, meta)
		}); err != nil {
			r.logger.Warn("plugin OnSnapshotGenerated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the command pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
