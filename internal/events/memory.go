package events

import (
	"context"
	"sync"
)

// MemoryPublisher records published events for tests.
type MemoryPublisher struct {
	mu        sync.Mutex
	published []Published
}

type Published struct {
	RoutingKey string
	Event      interface{}
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, routingKey string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, Published{RoutingKey: routingKey, Event: event})
	return nil
}

func (p *MemoryPublisher) Published() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]Published, len(p.published))
	copy(result, p.published)
	return result
}
