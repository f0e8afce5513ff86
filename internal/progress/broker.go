// Package progress is the Progress Tracker: a bounded, per-subscriber
// pub/sub broker that fans crawl/annotate events out to websocket
// clients without letting one slow subscriber block publishers
// (spec.md §4.7).
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one progress update for a job or source.
type Event struct {
	Topic     string      `json:"topic"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Dropped   int         `json:"dropped,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const defaultBufferSize = 64

type subscriber struct {
	ch      chan Event
	dropped int
}

// Broker is a topic-keyed pub/sub broker. Each subscriber gets its own
// bounded channel; when a subscriber falls behind, the oldest buffered
// event is dropped to make room rather than blocking the publisher, and
// the next delivered event carries a cumulative Dropped count.
type Broker struct {
	mu         sync.Mutex
	topics     map[string]map[*subscriber]struct{}
	bufferSize int
	rdb        *redis.Client
}

// NewBroker constructs a Broker with the given per-subscriber buffer
// size (defaults to 64 when zero). rdb is optional: when non-nil,
// cumulative per-topic drop counts are also persisted to Redis so they
// survive a subscriber reconnecting to a different process, falling
// back to the in-memory counter alone when REDIS_URL is unset.
func NewBroker(bufferSize int, rdb *redis.Client) *Broker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Broker{topics: make(map[string]map[*subscriber]struct{}), bufferSize: bufferSize, rdb: rdb}
}

// Subscription is a live handle to a topic subscription. Callers must
// call Close when done to free the broker-side registration.
type Subscription struct {
	broker *Broker
	topic  string
	sub    *subscriber
}

// Events returns the channel to receive on.
func (s *Subscription) Events() <-chan Event {
	return s.sub.ch
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if subs, ok := s.broker.topics[s.topic]; ok {
		delete(subs, s.sub)
		if len(subs) == 0 {
			delete(s.broker.topics, s.topic)
		}
	}
}

// Subscribe registers a new subscriber for topic (a job_id or source_id
// string).
func (b *Broker) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*subscriber]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	return &Subscription{broker: b, topic: topic, sub: sub}
}

// Publish delivers an event to every current subscriber of topic. A
// subscriber whose buffer is full has its oldest event dropped to make
// room; Publish itself never blocks.
func (b *Broker) Publish(topic string, eventType string, payload interface{}) {
	b.mu.Lock()
	subs := b.topics[topic]
	targets := make([]*subscriber, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		b.deliver(s, Event{Topic: topic, Type: eventType, Payload: payload, Timestamp: time.Now().UTC()})
	}
}

func (b *Broker) deliver(s *subscriber, ev Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest event, then enqueue this one marked
	// with the cumulative drop count.
	select {
	case <-s.ch:
		s.dropped++
		if b.rdb != nil {
			go b.rdb.Incr(context.Background(), "codedox:progress:dropped:"+ev.Topic)
		}
	default:
	}
	ev.Dropped = s.dropped
	select {
	case s.ch <- ev:
	default:
		// Lost the race to another publisher; give up rather than block.
	}
}

// SubscriberCount reports how many active subscribers a topic has
// (diagnostic use only).
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
