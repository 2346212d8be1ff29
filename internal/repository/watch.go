package repository

import (
	"context"

	"github.com/rs/zerolog/log"

	"ddpcore/internal/realtime"
)

// watchQuery re-runs load on every event of topic and hands each result to fn.
// The subscription is opened before the first load so no change is missed.
func watchQuery[T any](ctx context.Context, bus realtime.Bus, topic string, load func(context.Context) (T, error), fn func(T)) error {
	events, cancel := bus.Subscribe(topic)
	defer cancel()

	deliver := func() {
		result, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("topic", topic).Msg("Listener query failed")
			}
			return
		}
		fn(result)
	}

	deliver()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
			deliver()
		}
	}
}

// publish announces a change and logs, rather than returns, a bus failure:
// the write it follows has already succeeded.
func publish(ctx context.Context, bus realtime.Bus, topic, kind, docID string) {
	if err := bus.Publish(ctx, realtime.NewEvent(topic, kind, docID)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Str("doc_id", docID).Msg("Change event not published")
	}
}
