package broadcasts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lijuuu/StakedChallengeService/internal/metrics"
	"github.com/lijuuu/StakedChallengeService/internal/model"
	"github.com/lijuuu/StakedChallengeService/internal/state"
)

type recordingSub struct {
	id     string
	fail   bool
	mu     sync.Mutex
	events []model.Event
	closed bool
}

func (s *recordingSub) ID() string { return s.id }

func (s *recordingSub) Send(e model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSub) received() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

func TestDeliverDropsFailingSubscriberOnly(t *testing.T) {
	reg := state.NewRegistry()
	good := &recordingSub{id: "good"}
	bad := &recordingSub{id: "bad", fail: true}
	other := &recordingSub{id: "other"}
	reg.Subscribe("c1", good)
	reg.Subscribe("c1", bad)
	reg.Subscribe("c2", other)

	b := NewBroadcaster(reg, 8, zap.NewNop(), metrics.New(nil))
	b.Deliver(model.Event{Type: model.EventParticipantJoined, ChallengeID: "c1"})

	require.Len(t, good.received(), 1)
	assert.Empty(t, other.received())
	assert.True(t, bad.closed)
	assert.Equal(t, 1, reg.Count("c1"))
}

func TestPublishNeverBlocks(t *testing.T) {
	m := metrics.New(nil)
	b := NewBroadcaster(state.NewRegistry(), 1, zap.NewNop(), m)

	done := make(chan struct{})
	go func() {
		b.Publish(model.Event{ChallengeID: "c1"})
		b.Publish(model.Event{ChallengeID: "c1"})
		b.Publish(model.Event{ChallengeID: "c1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FanoutDropped))
}

func TestRunDeliversAndClosesOnShutdown(t *testing.T) {
	reg := state.NewRegistry()
	sub := &recordingSub{id: "s"}
	reg.Subscribe("c1", sub)

	b := NewBroadcaster(reg, 8, zap.NewNop(), metrics.New(nil))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(stopped)
	}()

	b.Publish(model.Event{Type: model.EventPoolDistributed, ChallengeID: "c1"})
	require.Eventually(t, func() bool { return len(sub.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, sub.received()[0].At.IsZero())

	cancel()
	<-stopped
	assert.True(t, sub.closed)
	assert.Zero(t, reg.Total())
}
