// Package events is the typed publish/subscribe bus that carries state
// changes, transcript lines and progress updates to observers.
package events

import (
	"sync"

	"github.com/lucasnoah/fixfactory/internal/backend"
)

// Topic enumerates what an event is about.
type Topic int

const (
	TopicStateChanged Topic = iota
	TopicTranscript
	TopicProgress
	TopicAnalyzeProgress
)

func (t Topic) String() string {
	switch t {
	case TopicStateChanged:
		return "state_changed"
	case TopicTranscript:
		return "transcript"
	case TopicProgress:
		return "agentic_progress"
	case TopicAnalyzeProgress:
		return "analyze_progress"
	default:
		return "unknown"
	}
}

// Event is one published notification. Text is set for transcript and
// analyze-progress events; Progress for agentic progress.
type Event struct {
	Topic    Topic
	Text     string
	Progress backend.ProgressEvent
}

// Observer receives events for the topics it subscribed to.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Notify calls f(e).
func (f ObserverFunc) Notify(e Event) { f(e) }

type subscription struct {
	id  uint64
	obs Observer
}

// Bus fans events out to observers. Observers are called synchronously in
// subscription order and must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers obs for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, obs Observer) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, obs: obs})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, s := range list {
				if s.id == id {
					b.subs[topic] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers e to every observer of e.Topic. A nil bus drops events.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[e.Topic]...)
	b.mu.RUnlock()
	for _, s := range list {
		s.obs.Notify(e)
	}
}
