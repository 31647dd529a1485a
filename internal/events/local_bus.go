package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrBusClosed = errors.New("event bus closed")

type subscription struct {
	fn     func(Event)
	signal chan struct{}

	mu     sync.Mutex
	latest Event
}

// LocalBus is a process-wide in-memory broadcast.
//
// Each subscription holds a single pending signal. Publishing while a
// delivery is pending merges into it; publishing while fn is running
// schedules exactly one more call. Subscribers therefore never miss the
// last notification, but may see fewer calls than publishes.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*subscription]struct{}
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs: make(map[uuid.UUID]map[*subscription]struct{}),
		done: make(chan struct{}),
	}
}

func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for sub := range b.subs[ev.UserID] {
		sub.mu.Lock()
		sub.latest = ev
		sub.mu.Unlock()
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, userID uuid.UUID, fn func(Event)) error {
	if fn == nil {
		return errors.New("subscriber callback required")
	}
	sub := &subscription{fn: fn, signal: make(chan struct{}, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*subscription]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer b.remove(userID, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-sub.signal:
				sub.mu.Lock()
				ev := sub.latest
				sub.mu.Unlock()
				sub.fn(ev)
			}
		}
	}()
	return nil
}

func (b *LocalBus) remove(userID uuid.UUID, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[userID], sub)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
}

// Subscribers reports the number of active subscriptions for a user.
func (b *LocalBus) Subscribers(userID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// Close stops every subscription and waits for in-flight deliveries.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
