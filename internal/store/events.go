package store

import "sync"

// Event represents an adapter store change.
// Minimal and stable: name + adapter ID and optional fields via key/values.
type Event struct {
	Name      string
	AdapterID string
	Fields    map[string]any
}

// EventAdaptersChanged is broadcast after a successful save or delete and is
// consumed by the external registration system.
const EventAdaptersChanged = "adapters_changed"

// Publisher receives events from the store. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
