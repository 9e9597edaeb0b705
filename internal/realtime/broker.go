package realtime

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// Broker fans published changes out to in-process subscribers. Publish calls
// are serialized, so each subscriber sees changes in publish order.
type Broker struct {
	pubMu sync.Mutex

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*brokerSub
	closed bool
}

// NewBroker returns an empty, open broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[uint64]*brokerSub),
	}
}

var (
	_ Subscriber = (*Broker)(nil)
	_ Publisher  = (*Broker)(nil)
)

type brokerSub struct {
	id     uint64
	spec   Spec
	fn     func(Change)
	broker *Broker
	done   chan struct{}
	once   sync.Once
}

func (s *brokerSub) Unsubscribe() {
	s.broker.remove(s.id)
}

func (s *brokerSub) Done() <-chan struct{} {
	return s.done
}

func (s *brokerSub) end() {
	s.once.Do(func() { close(s.done) })
}

// Subscribe registers fn for changes matching spec.
func (b *Broker) Subscribe(ctx context.Context, spec Spec, fn func(Change)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	b.nextID++
	s := &brokerSub{
		id:     b.nextID,
		spec:   spec,
		fn:     fn,
		broker: b,
		done:   make(chan struct{}),
	}
	b.subs[s.id] = s
	glog.V(1).Infof("realtime: subscribe #%d %s", s.id, spec)
	return s, nil
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		glog.V(1).Infof("realtime: unsubscribe #%d %s", id, s.spec)
		s.end()
	}
}

// Publish delivers c to every matching subscriber. Callbacks run on the
// caller's goroutine and must not block for long.
func (b *Broker) Publish(c Change) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.RLock()
	matched := make([]*brokerSub, 0, len(b.subs))
	for _, s := range b.subs {
		if s.spec.Matches(c) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		select {
		case <-s.done:
			continue
		default:
		}
		s.fn(c)
	}
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*brokerSub)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.end()
	}
}
