// Package events provides typed publish/subscribe topics shared by the gateway services.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
)

// Topic name of an event stream.
type Topic string

// Payload is implemented by every event body. Validate is called at publish time.
type Payload interface {
	Topic() Topic
	Validate() error
}

// Event envelope delivered to subscribers.
type Event[T Payload] struct {
	ID      string    `json:"id"`
	Topic   Topic     `json:"topic"`
	At      time.Time `json:"at"`
	Payload T         `json:"payload"`
}

// Broadcaster fans out events of one topic to all subscribers via buffered channels.
type Broadcaster[T Payload] struct {
	mu      sync.RWMutex
	subs    map[chan Event[T]]struct{}
	buffer  int
	clock   clockwork.Clock
	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster[T Payload](buffer int, clock clockwork.Clock) *Broadcaster[T] {
	if buffer < 1 {
		buffer = 64
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broadcaster[T]{
		subs:   make(map[chan Event[T]]struct{}),
		buffer: buffer,
		clock:  clock,
	}
}

// Publish validates the payload and sends it to all subscribers, dropping if a reader is slow.
func (b *Broadcaster[T]) Publish(p T) error {
	if err := p.Validate(); err != nil {
		return errors.Wrapf(domain.NewError(domain.ErrValidation, err), "publish %s", p.Topic())
	}

	ev := Event[T]{
		ID:      uuid.NewString(),
		Topic:   p.Topic(),
		At:      b.clock.Now(),
		Payload: p,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *Broadcaster[T]) Subscribe() chan Event[T] {
	ch := make(chan Event[T], b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster[T]) Unsubscribe(ch chan Event[T]) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Dropped number of deliveries skipped because a subscriber was full.
func (b *Broadcaster[T]) Dropped() uint64 {
	return b.dropped.Load()
}
