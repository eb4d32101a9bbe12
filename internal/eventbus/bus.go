// Package eventbus implements C4: an in-process publish/subscribe broker
// with bounded per-subscriber buffers and a drop-oldest policy on a full
// channel (§4.4). It is adapted from the teacher's websocket hub — its
// register/unregister/broadcast roles become Subscribe/unsubscribe/Publish
// over a mutex-guarded subscriber map, decoupled from any transport.
package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Topic names the three channels C4 carries (§4.4).
type Topic string

const (
	TopicTrackChanged    Topic = "track_changed"
	TopicHistoryAppended Topic = "history_appended"
	TopicDJState         Topic = "dj_state"
)

// subscriberBufferSize is the default bounded channel capacity (§4.4).
const subscriberBufferSize = 32

// Message is an envelope carrying a topic and an opaque payload. C4 does
// not interpret Payload; publishers and subscribers agree on its shape out
// of band (NowSnapshot, PlayEvent, job state strings, etc).
type Message struct {
	Topic   Topic
	Payload any
}

// Subscription is a live registration; callers must call Unsubscribe when
// done to free the subscriber's buffer and goroutine-less channel.
type Subscription struct {
	C      <-chan Message
	bus    *Bus
	id     uint64
	topics map[Topic]bool
}

func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s)
}

type subscriber struct {
	id     uint64
	ch     chan Message
	topics map[Topic]bool
}

// Bus is the in-process broker. Publish never blocks: a full subscriber
// buffer has its oldest message dropped to make room, and a drop counter is
// incremented (§4.4 — "presentation channels tolerate loss").
type Bus struct {
	logger *zap.Logger

	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]*subscriber

	droppedMu sync.Mutex
	dropped   map[Topic]int64
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		logger:  logger,
		subs:    make(map[uint64]*subscriber),
		dropped: make(map[Topic]int64),
	}
}

// Subscribe registers for the given topics. A nil or empty topics list
// subscribes to all topics.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	set := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}

	sub := &subscriber{id: id, ch: make(chan Message, subscriberBufferSize), topics: set}
	b.subs[id] = sub

	return &Subscription{C: sub.ch, bus: b, id: id, topics: set}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[s.id]; ok {
		close(sub.ch)
		delete(b.subs, s.id)
	}
}

// Publish fans a message out to every matching subscriber without blocking.
func (b *Bus) Publish(topic Topic, payload any) {
	msg := Message{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if len(sub.topics) > 0 && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Full buffer: drop the oldest in-flight message and retry once.
			select {
			case <-sub.ch:
				b.droppedMu.Lock()
				b.dropped[topic]++
				b.droppedMu.Unlock()
			default:
			}
			select {
			case sub.ch <- msg:
			default:
				b.logger.Debug("eventbus: subscriber buffer saturated, message dropped",
					zap.Uint64("subscriber_id", sub.id), zap.String("topic", string(topic)))
			}
		}
	}
}

// DroppedCount returns the cumulative number of dropped messages for topic,
// for metrics/debugging.
func (b *Bus) DroppedCount(topic Topic) int64 {
	b.droppedMu.Lock()
	defer b.droppedMu.Unlock()
	return b.dropped[topic]
}

// SubscriberCount reports the current number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
