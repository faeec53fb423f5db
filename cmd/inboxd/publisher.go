package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shootingwala/inbox/internal/engine"
	"github.com/shootingwala/inbox/internal/metrics"
)

// eventSink receives engine events and snapshots. *store.RedisStore implements it.
type eventSink interface {
	PublishEvent(ctx context.Context, actorID string, ev engine.Event) error
	SaveSnapshot(ctx context.Context, actorID string, snap engine.Snapshot) error
}

// publisher forwards engine events to a sink from its own goroutine so that
// a slow sink never stalls the engine.
type publisher struct {
	sink     eventSink
	snapshot func() engine.Snapshot
	actorID  string
	events   chan engine.Event
	logger   zerolog.Logger
}

func newPublisher(sink eventSink, snapshot func() engine.Snapshot, actorID string, logger zerolog.Logger) *publisher {
	return &publisher{
		sink:     sink,
		snapshot: snapshot,
		actorID:  actorID,
		events:   make(chan engine.Event, 256),
		logger:   logger,
	}
}

// handle is registered with Engine.On.
func (p *publisher) handle(ev engine.Event) {
	select {
	case p.events <- ev:
	default:
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
	}
}

// run publishes queued events until ctx is done.
func (p *publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			p.publish(ctx, ev)
		}
	}
}

func (p *publisher) publish(ctx context.Context, ev engine.Event) {
	// The snapshot goes first so a subscriber reacting to the event reads fresh state.
	if err := p.sink.SaveSnapshot(ctx, p.actorID, p.snapshot()); err != nil {
		p.logger.Warn().Err(err).Msg("failed to cache snapshot")
	}
	if err := p.sink.PublishEvent(ctx, p.actorID, ev); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("failed to publish event")
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}
