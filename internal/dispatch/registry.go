// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dispatch

import (
	"slices"
	"sync"

	"github.com/mia-platform/logdispatch/internal/logging"
	"github.com/mia-platform/logdispatch/internal/resource"
)

// Registry maps the canonical form of a resource identifier to its logger handle.
// Entries live until the process exits: they are replaced on re-creation and never evicted.
type Registry struct {
	lock    sync.RWMutex
	handles map[string]logging.Handle
	// creating serializes Create calls sharing a canonical identifier.
	creating map[string]*sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles:  make(map[string]logging.Handle),
		creating: make(map[string]*sync.Mutex),
	}
}

// Create stores the handle returned by create under id. Calls for the same id run one
// at a time, so the stored handle is always the one created last.
// The registry is left untouched when create fails.
func (r *Registry) Create(id resource.Identifier, create func() (logging.Handle, error)) (bool, error) {
	key := id.String()

	r.lock.Lock()
	keyLock, ok := r.creating[key]
	if !ok {
		keyLock = new(sync.Mutex)
		r.creating[key] = keyLock
	}
	r.lock.Unlock()

	keyLock.Lock()
	defer keyLock.Unlock()

	handle, err := create()
	if err != nil {
		return false, err
	}
	return r.set(key, handle), nil
}

// Set stores handle under id and reports whether a previous handle was replaced.
func (r *Registry) Set(id resource.Identifier, handle logging.Handle) bool {
	return r.set(id.String(), handle)
}

func (r *Registry) set(key string, handle logging.Handle) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, replaced := r.handles[key]
	r.handles[key] = handle
	return replaced
}

// Get returns the handle stored under id.
func (r *Registry) Get(id resource.Identifier) (logging.Handle, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	handle, ok := r.handles[id.String()]
	return handle, ok
}

// Keys returns the sorted canonical identifiers in the registry.
func (r *Registry) Keys() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	keys := make([]string, 0, len(r.handles))
	for key := range r.handles {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.handles)
}
