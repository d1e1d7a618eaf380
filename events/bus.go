// Package events carries pipeline notifications between components.
//
// Messages are wake-ups, not work items: the persisted queues remain the
// source of truth, so a dropped message only delays work until the next poll.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/docflow/core"
)

// Topic names a class of message.
type Topic string

const (
	// TopicDocumentIngested is published after a document and its chunks are stored.
	TopicDocumentIngested Topic = "document.ingested"
	// TopicEnrichmentQueued is published after an enrichment queue item is created.
	TopicEnrichmentQueued Topic = "enrichment.queued"
	// TopicEnrichmentCompleted is published after a queue item reaches a terminal state.
	TopicEnrichmentCompleted Topic = "enrichment.completed"
	// TopicAlertRaised is published for every persisted alert.
	TopicAlertRaised Topic = "alert.raised"
)

// Message is a single notification.
type Message struct {
	Topic      Topic
	DocumentID string
	ItemID     core.ID
	Alert      *core.Alert
	Detail     string
	Timestamp  time.Time
}

// Bus publishes messages to subscribers.
type Bus interface {
	// Publish delivers msg to every subscriber of its topic without blocking.
	Publish(ctx context.Context, msg Message)

	// Subscribe returns a channel receiving messages for the given topics and
	// a function that cancels the subscription and closes the channel.
	Subscribe(buffer int, topics ...Topic) (<-chan Message, func())

	// Close cancels every subscription.
	Close() error
}

type subscription struct {
	ch     chan Message
	topics map[Topic]bool
}

// MemoryBus is an in-process Bus. Slow subscribers lose messages rather
// than stall publishers.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
	logger *slog.Logger
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an empty bus. A nil logger uses slog.Default().
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{
		subs:   make(map[int]*subscription),
		logger: logger.With("component", "events"),
	}
}

// Publish fans msg out to matching subscribers. Full subscriber buffers drop the message.
func (b *MemoryBus) Publish(ctx context.Context, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if len(sub.topics) > 0 && !sub.topics[msg.Topic] {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			b.logger.Warn("dropping message for slow subscriber", "topic", msg.Topic, "document", msg.DocumentID)
		}
	}
}

// Subscribe registers a subscriber. No topics means every topic.
func (b *MemoryBus) Subscribe(buffer int, topics ...Topic) (<-chan Message, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscription{
		ch:     make(chan Message, buffer),
		topics: make(map[Topic]bool, len(topics)),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Close cancels every subscription. Later publishes are ignored.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	return nil
}

// Nop is a Bus that discards everything.
type Nop struct{}

var _ Bus = Nop{}

// Publish discards msg.
func (Nop) Publish(context.Context, Message) {}

// Subscribe returns a closed channel.
func (Nop) Subscribe(int, ...Topic) (<-chan Message, func()) {
	ch := make(chan Message)
	close(ch)
	return ch, func() {}
}

// Close is a no-op.
func (Nop) Close() error { return nil }
