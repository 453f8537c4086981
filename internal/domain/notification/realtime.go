package notification

import (
	"context"
	"sync"
)

// RealtimeNotifier pushes a notification to connected clients of a user.
type RealtimeNotifier interface {
	Notify(ctx context.Context, userID int64, n *Notification) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, int64, *Notification) error { return nil }

// RealtimeRegistry holds the process-wide realtime notifier. It is created in
// main and injected; Get never returns nil.
type RealtimeRegistry struct {
	mu       sync.RWMutex
	notifier RealtimeNotifier
}

func NewRealtimeRegistry() *RealtimeRegistry {
	return &RealtimeRegistry{}
}

// Configure replaces the notifier. Passing nil resets to the no-op.
func (r *RealtimeRegistry) Configure(n RealtimeNotifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

func (r *RealtimeRegistry) Get() RealtimeNotifier {
	if r == nil {
		return noopNotifier{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.notifier == nil {
		return noopNotifier{}
	}
	return r.notifier
}
