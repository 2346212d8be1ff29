package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// subscriberBuffer is the per-subscriber channel capacity. Events sent to a
// full subscriber are dropped: the events already queued still trigger a re-read.
const subscriberBuffer = 16

// Bus delivers change events to listeners by topic.
type Bus interface {
	// Publish announces a change. Delivery is best effort.
	Publish(ctx context.Context, event Event) error

	// Subscribe returns a channel of events for topic and a function that
	// stops the subscription and closes the channel.
	Subscribe(topic string) (<-chan Event, func())
}

// LocalBus is an in-process Bus.
type LocalBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]chan Event)}
}

func (b *LocalBus) Publish(_ context.Context, event Event) error {
	b.dispatch(event)
	return nil
}

func (b *LocalBus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	b.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[topic]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subs, topic)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// dispatch fans an event out to the local subscribers of its topic.
func (b *LocalBus) dispatch(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs[event.Topic] {
		select {
		case ch <- event:
		default:
			log.Debug().Str("topic", event.Topic).Int("subscriber", id).Msg("Subscriber buffer full, event dropped")
		}
	}
}
