package cluster_authority

import (
	"fmt"
	"sync"

	"github.com/clustermesh/authority/internal/authority"
)

// WatchFunc receives every committed authority event, in commit order.
type WatchFunc func(ev authority.Event)

type watchRegistry struct {
	mu       sync.RWMutex
	watchers map[string]WatchFunc
	order    []string
}

var registry = &watchRegistry{watchers: make(map[string]WatchFunc)}

// RegisterWatcher subscribes a named callback to committed authority events.
// Watchers run synchronously on the consensus path and must be fast; anything
// slow belongs behind a channel on the watcher's side.
func RegisterWatcher(name string, fn WatchFunc) error {
	if name == "" {
		return fmt.Errorf("%s: watcher name cannot be empty", ExtensionName)
	}
	if fn == nil {
		return fmt.Errorf("%s: watcher %q callback cannot be nil", ExtensionName, name)
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.watchers[name]; exists {
		return fmt.Errorf("%s: watcher %q already registered", ExtensionName, name)
	}
	registry.watchers[name] = fn
	registry.order = append(registry.order, name)
	return nil
}

// dispatchEvent fans a committed event out to watchers in registration order.
func dispatchEvent(ev authority.Event) {
	registry.mu.RLock()
	fns := make([]WatchFunc, 0, len(registry.order))
	for _, name := range registry.order {
		if fn, ok := registry.watchers[name]; ok {
			fns = append(fns, fn)
		}
	}
	registry.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// ResetWatchersForTest clears the watcher registry. Tests only.
func ResetWatchersForTest() {
	registry.mu.Lock()
	registry.watchers = make(map[string]WatchFunc)
	registry.order = nil
	registry.mu.Unlock()
}
