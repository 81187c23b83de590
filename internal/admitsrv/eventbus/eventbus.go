// Package eventbus is an in-memory publish/subscribe bus carrying admission
// activity between goroutines: check-in outcomes fan out to the audit log and
// to any dashboard streams without coupling the validation path to either.
package eventbus

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/admitd/admitd/internal/common/uuid"
)

// Topic layout is dot-separated: "checkin.<event-id>", "scanner.<event-id>".
// A pattern may use "*" per component, or bare "*" for everything.

// TopicCheckIn returns the check-in topic for an event.
func TopicCheckIn(eventID uuid.UUID) string {
	return "checkin." + eventID.String()
}

// TopicScanner returns the scanner lifecycle topic for an event.
func TopicScanner(eventID uuid.UUID) string {
	return "scanner." + eventID.String()
}

// Event is a single bus message.
type Event struct {
	Topic string
	Data  any
}

// subscription is one subscriber's buffered delivery channel.
type subscription struct {
	id      string
	ch      chan Event
	mu      sync.Mutex
	closed  bool
	pattern string
}

func (s *subscription) send(event Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus routes events to pattern subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscription // pattern -> id -> sub
	counter     uint64
}

func New() *Bus {
	return &Bus{subscribers: make(map[string]map[string]*subscription)}
}

// Subscribe registers interest in a topic pattern and returns the delivery
// channel plus an unsubscribe function. Slow subscribers drop events rather
// than block publishers.
func (b *Bus) Subscribe(pattern string, bufferSize int) (<-chan Event, func()) {
	id := fmt.Sprintf("sub-%d", atomic.AddUint64(&b.counter, 1))
	sub := &subscription{
		id:      id,
		ch:      make(chan Event, bufferSize),
		pattern: pattern,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[pattern]; !ok {
		b.subscribers[pattern] = make(map[string]*subscription)
	}
	b.subscribers[pattern][id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subMap, ok := b.subscribers[pattern]; ok {
			if s, ok := subMap[id]; ok {
				s.close()
				delete(subMap, id)
				if len(subMap) == 0 {
					delete(b.subscribers, pattern)
				}
			}
		}
	}
	return sub.ch, unsubscribe
}

// Publish delivers an event to every subscriber whose pattern matches the
// topic, waiting at most timeout per slow subscriber.
func (b *Bus) Publish(topic string, data any, timeout time.Duration) {
	event := Event{Topic: topic, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, subMap := range b.subscribers {
		if matchTopic(pattern, topic) {
			for _, sub := range subMap {
				sub.send(event, timeout)
			}
		}
	}
}

// Shutdown closes every subscriber and clears the bus.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			sub.close()
		}
	}
	b.subscribers = make(map[string]map[string]*subscription)
}

// matchTopic matches a dot-separated topic against a pattern with per-component
// wildcards.
func matchTopic(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "*" || pattern == topic {
		return true
	}
	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")
	if len(patternParts) != len(topicParts) {
		return false
	}
	for i := range patternParts {
		if patternParts[i] == "*" {
			continue
		}
		if patternParts[i] != topicParts[i] {
			return false
		}
	}
	return true
}
