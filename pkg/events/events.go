package events

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// EventType represents the type of event
type EventType string

const (
	EventRequestCreated  EventType = "request.created"
	EventRequestModified EventType = "request.modified"
	EventRequestReverted EventType = "request.reverted"
	EventRequestDeleted  EventType = "request.deleted"
	EventRequestUpdated  EventType = "request.updated"

	EventAllocationSucceeded EventType = "allocation.succeeded"
	EventAllocationFailed    EventType = "allocation.failed"
	EventAllocationReleased  EventType = "allocation.released"
	EventAllocationRequeued  EventType = "allocation.requeued"

	EventReservationCreated EventType = "reservation.created"
	EventReservationDeleted EventType = "reservation.deleted"

	EventResourceCreated EventType = "resource.created"
	EventResourceDeleted EventType = "resource.deleted"
)

// Event represents a lifecycle event
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// New creates an event with optional key/value metadata pairs
func New(eventType EventType, message string, keyValues ...string) *Event {
	event := &Event{Type: eventType, Message: message}
	for i := 0; i+1 < len(keyValues); i += 2 {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string)
		}
		event.Metadata[keyValues[i]] = keyValues[i+1]
	}
	return event
}

// Publisher is implemented by anything accepting events
type Publisher interface {
	Publish(event *Event)
}

// Discard drops every event
type Discard struct{}

// Publish implements Publisher
func (Discard) Publish(*Event) {}

// Subscriber is a channel that receives events
type Subscriber chan *Event

type subscription struct {
	prefixes []string
}

func (s subscription) matches(event *Event) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, prefix := range s.prefixes {
		if strings.HasPrefix(string(event.Type), prefix) {
			return true
		}
	}
	return false
}

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]subscription
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Uint64
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]subscription),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a subscription. With prefixes (for example
// "request." or "allocation.") only matching event types are delivered.
func (b *Broker) Subscribe(prefixes ...string) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = subscription{prefixes: prefixes}
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for distribution. Publishing never blocks the
// caller; events are dropped when the queue is full.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
		b.dropped.Inc()
	}
}

// Dropped returns how many events were discarded because of a full queue
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, s := range b.subscribers {
		if !s.matches(event) {
			continue
		}
		select {
		case sub <- event:
		default:
			b.dropped.Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
