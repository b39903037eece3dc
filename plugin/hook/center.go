package hook

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrInterrupt signals that a Hook handler wants to stop further processing.
// Before* events treat it as a veto.
var ErrInterrupt = errors.New("hook interrupted")

// HookFn is a hook handler function.
// Returns (modified data, nil) to continue, or (data, ErrInterrupt) to stop.
// Any other error is recorded and the remaining handlers still run.
type HookFn func(ctx context.Context, event string, data interface{}) (interface{}, error)

type hookEntry struct {
	priority int
	seq      int
	fn       HookFn
	name     string
}

// HookCenter manages event hook registrations.
type HookCenter struct {
	mu    sync.RWMutex
	hooks map[string][]*hookEntry
	seq   int
}

// NewHookCenter creates a new HookCenter.
func NewHookCenter() *HookCenter {
	return &HookCenter{hooks: make(map[string][]*hookEntry)}
}

// Register adds a HookFn for the given event with the given priority (lower
// runs first, registration order breaks ties). name is used for Unregister.
func (hc *HookCenter) Register(event string, priority int, name string, fn HookFn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.seq++
	entries := append(hc.hooks[event], &hookEntry{priority: priority, seq: hc.seq, fn: fn, name: name})
	slices.SortFunc(entries, func(a, b *hookEntry) int {
		if a.priority != b.priority {
			return a.priority - b.priority
		}
		return a.seq - b.seq
	})
	hc.hooks[event] = entries
}

// Unregister removes all hooks with the given name for the given event.
func (hc *HookCenter) Unregister(event, name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.hooks[event] = slices.DeleteFunc(hc.hooks[event], func(e *hookEntry) bool { return e.name == name })
}

// UnregisterAll removes all hooks registered with the given name across all events.
func (hc *HookCenter) UnregisterAll(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for event, entries := range hc.hooks {
		hc.hooks[event] = slices.DeleteFunc(entries, func(e *hookEntry) bool { return e.name == name })
	}
}

// Has reports whether any handler is registered for event.
func (hc *HookCenter) Has(event string) bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.hooks[event]) > 0
}

// Trigger executes all registered hooks for event in priority order.
// Data flows through each handler, allowing modification.
// If any handler returns ErrInterrupt, execution stops and the error is
// returned; other handler errors are joined and returned after the rest run.
func (hc *HookCenter) Trigger(ctx context.Context, event string, data interface{}) (interface{}, error) {
	hc.mu.RLock()
	entries := slices.Clone(hc.hooks[event])
	hc.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data = out
	}
	return data, errors.Join(errs...)
}

// ---- Hook event names ----

const (
	// BattleCreated carries the new *match.Match.
	BattleCreated = "battle.created"
	// BeforeChoice carries a *match.ChoiceEvent; ErrInterrupt rejects the choice.
	BeforeChoice = "battle.before_choice"
	// BattleTurn carries a *match.TurnEvent after every Play call.
	BattleTurn = "battle.turn"
	// BattleEnded carries the *model.BattleRecord about to be persisted.
	BattleEnded = "battle.ended"
	// BattleAbandoned carries the id of a match swept while idle.
	BattleAbandoned = "battle.abandoned"
)
