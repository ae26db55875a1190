// Package events is the in-process notification bus for the chat core. The
// orchestrator and the admin view-model publish toasts and lifecycle events
// here; UI surfaces subscribe with optional filters.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	defaultBufferSize = 64
	defaultMaxEvents  = 256
)

// Broker implements a publish-subscribe broker with bounded history
type Broker struct {
	mu         sync.RWMutex
	subs       map[chan Event][]Filter
	done       chan struct{}
	history    []Event
	maxEvents  int
	bufferSize int
}

// NewBroker creates a new broker with default settings
func NewBroker() *Broker {
	return &Broker{
		subs:       make(map[chan Event][]Filter),
		done:       make(chan struct{}),
		maxEvents:  defaultMaxEvents,
		bufferSize: defaultBufferSize,
	}
}

// Publish publishes an event to all matching subscribers
func (b *Broker) Publish(eventType EventType, threadID, message string, errs ...error) {
	select {
	case <-b.done:
		return
	default:
	}

	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ThreadID:  threadID,
		Message:   message,
		Timestamp: time.Now(),
	}
	if len(errs) > 0 && errs[0] != nil {
		event.Err = errs[0].Error()
	}

	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.maxEvents {
		b.history = append(b.history[:0], b.history[len(b.history)-b.maxEvents:]...)
	}
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, filters := range b.subs {
		if !match(event, filters) {
			continue
		}
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up; drop rather than block the
			// publisher.
			log.Warn("event channel full, dropping event", "type", event.Type, "id", event.ID)
		}
	}
}

// Subscribe creates a new subscription with optional filters. The channel is
// closed when ctx is cancelled or the broker shuts down.
func (b *Broker) Subscribe(ctx context.Context, filters ...Filter) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subs[ch] = filters

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.unsubscribe(ch)
	}()

	return ch
}

func (b *Broker) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// History returns recent events matching the given filters
func (b *Broker) History(filters ...Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.history {
		if match(event, filters) {
			result = append(result, event)
		}
	}
	return result
}

// Shutdown gracefully shuts down the broker
func (b *Broker) Shutdown() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func match(event Event, filters []Filter) bool {
	for _, f := range filters {
		if !f(event) {
			return false
		}
	}
	return true
}
