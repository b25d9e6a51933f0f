package stream

import (
	"context"
	"sync"
)

// memoryBroker delivers events synchronously inside one process. It is the
// single-node default and the test double for the Redis broker.
type memoryBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*memorySubscription
	closed bool
}

type memorySubscription struct {
	broker  *memoryBroker
	id      int
	table   string
	op      Op
	filter  Filter
	handler Handler
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() Broker {
	return &memoryBroker{subs: make(map[int]*memorySubscription)}
}

func (b *memoryBroker) Publish(_ context.Context, event ChangeEvent) error {
	b.mu.RLock()
	targets := make([]*memorySubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if matches(event, sub.table, sub.op, sub.filter) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.handler(event)
	}
	return nil
}

func (b *memoryBroker) Subscribe(table string, op Op, filter Filter, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &memorySubscription{
		broker:  b,
		id:      b.nextID,
		table:   table,
		op:      op,
		filter:  filter,
		handler: handler,
	}
	b.subs[sub.id] = sub
	return sub, nil
}

func (b *memoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[int]*memorySubscription)
	b.closed = true
}

func (s *memorySubscription) Close() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	delete(s.broker.subs, s.id)
}
