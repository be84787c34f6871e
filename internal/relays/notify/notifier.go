package notify

import (
	"context"
	"sort"
	"sync"

	relays "webrelay/internal/relays/domain"
)

// Observer is told about every confirmed relay change.
type Observer interface {
	StateConfirmed(ctx context.Context, change relays.StateChange)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change relays.StateChange)

// StateConfirmed implements Observer.
func (f ObserverFunc) StateConfirmed(ctx context.Context, change relays.StateChange) {
	f(ctx, change)
}

// Notifier fans confirmed changes out to registered observers. Notify must
// not be called while holding the command store lock.
type Notifier struct {
	mu        sync.Mutex
	observers map[uint64]Observer
	nextID    uint64
}

// NewNotifier constructs a Notifier with no observers.
func NewNotifier() *Notifier {
	return &Notifier{observers: make(map[uint64]Observer)}
}

// Subscribe registers an observer and returns a function removing it.
func (n *Notifier) Subscribe(observer Observer) func() {
	if n == nil || observer == nil {
		return func() {}
	}
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.observers[id] = observer
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.observers, id)
			n.mu.Unlock()
		})
	}
}

// Len returns the number of registered observers.
func (n *Notifier) Len() int {
	if n == nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.observers)
}

// Notify calls every observer synchronously, in registration order.
func (n *Notifier) Notify(ctx context.Context, change relays.StateChange) {
	if n == nil {
		return
	}
	n.mu.Lock()
	ids := make([]uint64, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	observers := make([]Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, n.observers[id])
	}
	n.mu.Unlock()

	for _, observer := range observers {
		observer.StateConfirmed(ctx, change)
	}
}
