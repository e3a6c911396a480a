package state

import (
	"sync"

	"github.com/lijuuu/StakedChallengeService/internal/model"
)

// Subscriber is one live observer of a challenge's events.
type Subscriber interface {
	ID() string
	Send(event model.Event) error
	Close() error
}

// Registry maps challenge ids to their subscribers. Each challenge has its own lock,
// independent of the coordinator's per-challenge lock.
type Registry struct {
	topics map[string]*topic
	mu     sync.RWMutex
}

type topic struct {
	subscribers map[string]Subscriber
	mu          sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]*topic),
	}
}

func (r *Registry) topic(challengeID string) *topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topics[challengeID]
}

// Subscribe adds sub to the challenge. A subscriber with the same id is replaced and closed.
func (r *Registry) Subscribe(challengeID string, sub Subscriber) {
	r.mu.Lock()
	t, exists := r.topics[challengeID]
	if !exists {
		t = &topic{subscribers: make(map[string]Subscriber)}
		r.topics[challengeID] = t
	}
	t.mu.Lock()
	prev, replaced := t.subscribers[sub.ID()]
	t.subscribers[sub.ID()] = sub
	t.mu.Unlock()
	r.mu.Unlock()

	if replaced && prev != sub {
		_ = prev.Close()
	}
}

// Unsubscribe removes the subscriber and reports whether it was present. A challenge
// left without subscribers is dropped from the registry.
func (r *Registry) Unsubscribe(challengeID, subscriberID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, exists := r.topics[challengeID]
	if !exists {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.subscribers[subscriberID]; !exists {
		return false
	}
	delete(t.subscribers, subscriberID)
	if len(t.subscribers) == 0 {
		delete(r.topics, challengeID)
	}
	return true
}

// Subscribers returns a snapshot so callers can deliver without holding the topic lock.
func (r *Registry) Subscribers(challengeID string) []Subscriber {
	t := r.topic(challengeID)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Subscriber, 0, len(t.subscribers))
	for _, s := range t.subscribers {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count(challengeID string) int {
	t := r.topic(challengeID)
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}

func (r *Registry) Total() int {
	r.mu.RLock()
	topics := make([]*topic, 0, len(r.topics))
	for _, t := range r.topics {
		topics = append(topics, t)
	}
	r.mu.RUnlock()

	total := 0
	for _, t := range topics {
		t.mu.RLock()
		total += len(t.subscribers)
		t.mu.RUnlock()
	}
	return total
}

// CloseAll closes and removes every subscriber of every challenge.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	topics := r.topics
	r.topics = make(map[string]*topic)
	r.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		for _, s := range t.subscribers {
			_ = s.Close()
		}
		t.subscribers = nil
		t.mu.Unlock()
	}
}
