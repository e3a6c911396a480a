package broadcasts

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/metrics"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/state"
)

// Broadcaster queues committed events and delivers them to every subscriber of the
// event's challenge from a single goroutine.
type Broadcaster struct {
	registry *state.Registry
	events   chan model.Event
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewBroadcaster(registry *state.Registry, buffer int, log *zap.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		events:   make(chan model.Event, buffer),
		log:      log.Named("fanout"),
		metrics:  m,
	}
}

// Publish never blocks. When the queue is full the event is dropped.
func (b *Broadcaster) Publish(event model.Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case b.events <- event:
	default:
		b.metrics.FanoutDropped.Inc()
		b.log.Warn("broadcast queue full, dropping event",
			zap.String("challenge_id", event.ChallengeID),
			zap.String("type", string(event.Type)))
	}
}

// Run delivers queued events until ctx is done, then closes every subscriber.
func (b *Broadcaster) Run(ctx context.Context) {
	defer b.registry.CloseAll()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.events:
			b.Deliver(event)
		}
	}
}

// Deliver sends event to each subscriber of its challenge. A subscriber whose send fails
// is removed and closed; the others still receive the event.
func (b *Broadcaster) Deliver(event model.Event) {
	for _, sub := range b.registry.Subscribers(event.ChallengeID) {
		if err := sub.Send(event); err != nil {
			b.log.Info("dropping subscriber after failed send",
				zap.String("challenge_id", event.ChallengeID),
				zap.String("subscriber", sub.ID()),
				zap.Error(err))
			b.registry.Unsubscribe(event.ChallengeID, sub.ID())
			_ = sub.Close()
		}
	}
	b.metrics.FanoutSubscribers.Set(float64(b.registry.Total()))
}
