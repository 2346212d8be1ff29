package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBlockTimeout is how long one XREAD blocks waiting for new messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultBatchSize is the number of messages read per call
	DefaultBatchSize = 100

	// DefaultMaxLen caps the change stream (approximate trimming)
	DefaultMaxLen = 10000
)

// RedisBus shares change events between processes through a Redis stream.
// Every process runs one reader that tails the stream from the moment it
// started and fans events out to its local subscribers.
type RedisBus struct {
	client *redis.Client
	stream string
	local  *LocalBus

	blockTime time.Duration
	batchSize int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRedisBus creates a bus backed by the given Redis client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{
		client:    client,
		stream:    StreamChanges,
		local:     NewLocalBus(),
		blockTime: DefaultBlockTimeout,
		batchSize: DefaultBatchSize,
	}
}

// Publish adds the event to the stream using XADD.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	values, err := event.ToMap()
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: DefaultMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		log.Error().Err(err).Str("stream", b.stream).Str("topic", event.Topic).Msg("Publish failed")
		return fmt.Errorf("xadd to stream: %w", err)
	}

	log.Debug().Str("stream", b.stream).Str("topic", event.Topic).Str("kind", event.Kind).
		Str("msg_id", messageID).Msg("Event published")
	return nil
}

func (b *RedisBus) Subscribe(topic string) (<-chan Event, func()) {
	return b.local.Subscribe(topic)
}

// Start launches the stream reader. Call Stop to shut it down.
func (b *RedisBus) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	lastID := b.startID(ctx)

	b.wg.Add(1)
	go b.run(ctx, lastID)
}

// Stop shuts down the reader and waits for it to exit.
func (b *RedisBus) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	b.wg.Wait()
	log.Info().Str("stream", b.stream).Msg("Realtime reader stopped")
}

func (b *RedisBus) run(ctx context.Context, lastID string) {
	defer b.wg.Done()

	log.Info().Str("stream", b.stream).Str("from", lastID).Msg("Realtime reader started")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, nextID, err := b.read(ctx, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("stream", b.stream).Msg("Realtime read failed")
			time.Sleep(time.Second) // Back off on error
			continue
		}
		lastID = nextID

		for _, event := range events {
			b.local.dispatch(event)
		}
	}
}

// startID returns the id of the newest message in the stream, so the reader
// only sees messages added after it started.
func (b *RedisBus) startID(ctx context.Context) string {
	msgs, err := b.client.XRevRangeN(ctx, b.stream, "+", "-", 1).Result()
	if err != nil {
		log.Warn().Err(err).Str("stream", b.stream).Msg("Could not read stream tail, using $")
		return "$"
	}
	if len(msgs) == 0 {
		return "0-0"
	}
	return msgs[0].ID
}

// read performs one blocking XREAD after lastID and returns the parsed events
// and the id to continue from.
func (b *RedisBus) read(ctx context.Context, lastID string) ([]Event, string, error) {
	streams, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{b.stream, lastID},
		Count:   b.batchSize,
		Block:   b.blockTime,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, fmt.Errorf("xread: %w", err)
	}

	var events []Event
	for _, s := range streams {
		for _, msg := range s.Messages {
			lastID = msg.ID
			event, err := ParseEvent(msg.Values)
			if err != nil {
				log.Warn().Err(err).Str("msg_id", msg.ID).Msg("Skipping malformed event")
				continue
			}
			events = append(events, event)
		}
	}
	return events, lastID, nil
}
