// Package subscription implements the predicate-keyed callback registry
// the projector fans events out through.
package subscription

import (
	"sync"

	"github.com/cuemby/eventbase/pkg/predicate"
	"github.com/cuemby/eventbase/pkg/types"
)

// Callback receives one notification for a matching event.
//
//   - PUT: payload is the post-state data, meta is the post-state MetaData.
//   - DELETE: payload is the pre-state data (event.OldData), meta is nil.
type Callback func(id string, payload []byte, meta *types.MetaData, event *types.Event)

// Unsubscribe deregisters the callback it was returned for. Calling it more
// than once is a no-op.
type Unsubscribe func()

type entry struct {
	id        uint64
	predicate predicate.Predicate
	callback  Callback
}

// Registry holds one (predicate, callback) entry per registration and fans
// out projected events to the ones that match. Identical predicates are not
// merged: each registration is stored and evaluated separately.
type Registry struct {
	mu      sync.RWMutex
	nextID  uint64
	entries map[uint64]*entry
	active  int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[uint64]*entry)}
}

// Register adds cb under predicate p and returns a handle that deregisters
// this exact callback when invoked.
func (r *Registry) Register(p predicate.Predicate, cb Callback) Unsubscribe {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries[id] = &entry{id: id, predicate: p, callback: cb}
	r.active++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if _, ok := r.entries[id]; ok {
				delete(r.entries, id)
				if r.active > 0 {
					r.active--
				}
			}
			r.mu.Unlock()
		})
	}
}

// ActiveSubscriptions returns the number of callbacks currently registered.
func (r *Registry) ActiveSubscriptions() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Notify evaluates every registered predicate against the post-state
// document (for PUT) and invokes the matching callbacks. For DELETE, every
// callback fires unconditionally and receives the pre-state payload from
// event.OldData.
//
// Notify must be called from the projector's single goroutine, in log
// order, so that callback delivery for sequence s1 < s2 is ordered.
// Notify returns how many callbacks fired, so callers can emit
// SUBSCRIBE_EMIT telemetry only when delivery actually happened.
func (r *Registry) Notify(event *types.Event, doc map[string]interface{}, meta *types.MetaData, payload []byte) int {
	r.mu.RLock()
	matched := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if event.Type == types.EventDelete || predicate.Match(doc, e.predicate) {
			matched = append(matched, e)
		}
	}
	r.mu.RUnlock()

	for _, e := range matched {
		e.callback(event.ID, payload, meta, event)
	}
	return len(matched)
}
