package registry

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

// LifecycleHook is notified when a table becomes ready. Hooks are called
// synchronously, once per table, after its CREATE TABLE has run.
type LifecycleHook interface {
	// OnReady is called with the table name and its schema. If this hook
	// returns an error, registration fails and is retried by the next
	// caller.
	OnReady(ctx context.Context, tableName string, schema *core.Schema) error
}

// LifecycleHookFunc is a function type that implements LifecycleHook.
type LifecycleHookFunc func(ctx context.Context, tableName string, schema *core.Schema) error

// OnReady calls f.
func (f LifecycleHookFunc) OnReady(ctx context.Context, tableName string, schema *core.Schema) error {
	return f(ctx, tableName, schema)
}

// LifecycleManager holds the hooks run when tables become ready.
type LifecycleManager struct {
	mu    sync.RWMutex
	hooks []LifecycleHook
}

// NewLifecycleManager creates a new lifecycle manager.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		hooks: make([]LifecycleHook, 0),
	}
}

// RegisterHook registers a hook. Hooks are executed in the order they were
// registered. Tables that are already ready are not replayed.
func (lm *LifecycleManager) RegisterHook(hook LifecycleHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

// ExecuteReadyHooks executes all registered hooks in order.
// If any hook returns an error, execution stops and the error is returned.
func (lm *LifecycleManager) ExecuteReadyHooks(ctx context.Context, tableName string, schema *core.Schema) error {
	lm.mu.RLock()
	hooks := make([]LifecycleHook, len(lm.hooks))
	copy(hooks, lm.hooks)
	lm.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook.OnReady(ctx, tableName, schema); err != nil {
			return err
		}
	}
	return nil
}

// ClearHooks removes all registered hooks.
func (lm *LifecycleManager) ClearHooks() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = make([]LifecycleHook, 0)
}

// HookCount returns the number of registered hooks.
func (lm *LifecycleManager) HookCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.hooks)
}
