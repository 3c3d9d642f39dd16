// Package registry keeps the set of live push subscriptions in memory.
package registry

import (
	"errors"
	"sync"
)

// ErrInvalidSubscription is returned when a subscription has no endpoint.
var ErrInvalidSubscription = errors.New("subscription must include an endpoint")

// Keys holds the client encryption keys from the browser's PushSubscription.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a push delivery descriptor. The endpoint URL is unique per
// browser registration and is used as the registry key.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// Registry stores subscriptions keyed by endpoint.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		subs: make(map[string]Subscription),
	}
}

// Register inserts or replaces the subscription keyed by its endpoint and
// returns the total number of registered subscriptions.
func (r *Registry) Register(sub Subscription) (int, error) {
	if sub.Endpoint == "" {
		return 0, ErrInvalidSubscription
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[sub.Endpoint] = sub
	return len(r.subs), nil
}

// Remove deletes the subscription for the given endpoint. Removing an
// unknown endpoint is a no-op.
func (r *Registry) Remove(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, endpoint)
}

// Snapshot returns a point-in-time copy of all subscriptions. Later mutations
// of the registry do not affect a snapshot already taken.
func (r *Registry) Snapshot() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		snapshot = append(snapshot, sub)
	}
	return snapshot
}

// Size returns the current number of registered subscriptions.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs)
}
