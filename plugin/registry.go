package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
)

// DefaultHookTimeout bounds a single plugin call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onAccountProvisioned []OnAccountProvisioned
	onTransactionsPosted []OnTransactionsPosted
	onSessionSettled     []OnSessionSettled
	onDonationReceived   []OnDonationReceived
	onSupportGranted     []OnSupportGranted
	onSupportDenied      []OnSupportDenied
	onInsufficientFunds  []OnInsufficientFunds
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
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
	if v, ok := p.(OnAccountProvisioned); ok {
		r.onAccountProvisioned = append(r.onAccountProvisioned, v)
	}
	if v, ok := p.(OnTransactionsPosted); ok {
		r.onTransactionsPosted = append(r.onTransactionsPosted, v)
	}
	if v, ok := p.(OnSessionSettled); ok {
		r.onSessionSettled = append(r.onSessionSettled, v)
	}
	if v, ok := p.(OnDonationReceived); ok {
		r.onDonationReceived = append(r.onDonationReceived, v)
	}
	if v, ok := p.(OnSupportGranted); ok {
		r.onSupportGranted = append(r.onSupportGranted, v)
	}
	if v, ok := p.(OnSupportDenied); ok {
		r.onSupportDenied = append(r.onSupportDenied, v)
	}
	if v, ok := p.(OnInsufficientFunds); ok {
		r.onInsufficientFunds = append(r.onInsufficientFunds, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnAccountProvisioned", reflect.TypeFor[OnAccountProvisioned]()},
	{"OnTransactionsPosted", reflect.TypeFor[OnTransactionsPosted]()},
	{"OnSessionSettled", reflect.TypeFor[OnSessionSettled]()},
	{"OnDonationReceived", reflect.TypeFor[OnDonationReceived]()},
	{"OnSupportGranted", reflect.TypeFor[OnSupportGranted]()},
	{"OnSupportDenied", reflect.TypeFor[OnSupportDenied]()},
	{"OnInsufficientFunds", reflect.TypeFor[OnInsufficientFunds]()},
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInit", p.Name(), func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnShutdown", p.Name(), func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitAccountProvisioned emits an account provisioned event.
func (r *Registry) EmitAccountProvisioned(ctx context.Context, acct *account.Account) {
	r.mu.RLock()
	plugins := r.onAccountProvisioned
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnAccountProvisioned", p.Name(), func() error {
			return p.OnAccountProvisioned(ctx, acct)
		})
	}
}

// EmitTransactionsPosted emits a posting event.
func (r *Registry) EmitTransactionsPosted(ctx context.Context, posting *transaction.Posting) {
	r.mu.RLock()
	plugins := r.onTransactionsPosted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnTransactionsPosted", p.Name(), func() error {
			return p.OnTransactionsPosted(ctx, posting)
		})
	}
}

// EmitSessionSettled emits a session settled event.
func (r *Registry) EmitSessionSettled(ctx context.Context, settlement *transaction.Settlement) {
	r.mu.RLock()
	plugins := r.onSessionSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnSessionSettled", p.Name(), func() error {
			return p.OnSessionSettled(ctx, settlement)
		})
	}
}

// EmitDonationReceived emits a donation event.
func (r *Registry) EmitDonationReceived(ctx context.Context, donor id.AccountID, amount int64) {
	r.mu.RLock()
	plugins := r.onDonationReceived
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnDonationReceived", p.Name(), func() error {
			return p.OnDonationReceived(ctx, donor, amount)
		})
	}
}

// EmitSupportGranted emits a support granted event.
func (r *Registry) EmitSupportGranted(ctx context.Context, accountID id.AccountID, amount int64) {
	r.mu.RLock()
	plugins := r.onSupportGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnSupportGranted", p.Name(), func() error {
			return p.OnSupportGranted(ctx, accountID, amount)
		})
	}
}

// EmitSupportDenied emits a support denied event.
func (r *Registry) EmitSupportDenied(ctx context.Context, accountID id.AccountID, reason string) {
	r.mu.RLock()
	plugins := r.onSupportDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnSupportDenied", p.Name(), func() error {
			return p.OnSupportDenied(ctx, accountID, reason)
		})
	}
}

// EmitInsufficientFunds emits an insufficient funds event.
func (r *Registry) EmitInsufficientFunds(ctx context.Context, accountID id.AccountID, required, available int64) {
	r.mu.RLock()
	plugins := r.onInsufficientFunds
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInsufficientFunds", p.Name(), func() error {
			return p.OnInsufficientFunds(ctx, accountID, required, available)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, hook, pluginName string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// A slow plugin must not hold up the caller of a ledger operation.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
