// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package events

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBusClosed          = errors.New("event bus closed")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 5 * time.Second
)

// Subscriber receives events from a Bus. Send is called from a single
// goroutine per subscriber, a Subscriber whose Send returns an error
// is removed from the bus and closed.
type Subscriber interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Stats records delivery statistics for a single subscriber.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

type BusOption func(o *busOptions)

type busOptions struct {
	queueSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
}

// WithQueueSize sets the number of events queued per subscriber before
// the oldest is dropped.
func WithQueueSize(n int) BusOption {
	return func(o *busOptions) {
		o.queueSize = n
	}
}

// WithSendTimeout bounds the time taken to deliver a single event.
func WithSendTimeout(d time.Duration) BusOption {
	return func(o *busOptions) {
		o.sendTimeout = d
	}
}

func WithBusLogger(l *slog.Logger) BusOption {
	return func(o *busOptions) {
		o.logger = l
	}
}

// Bus delivers events to subscribers. Each subscriber has its own
// bounded queue and goroutine so that a slow subscriber never delays
// the publisher or any other subscriber.
type Bus struct {
	busOptions
	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	id     string
	sub    Subscriber
	mu     sync.Mutex
	queue  []Event
	stats  Stats
	notify chan struct{}
	done   chan struct{}
}

// NewBus returns a new Bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		busOptions: busOptions{
			queueSize:   DefaultQueueSize,
			sendTimeout: DefaultSendTimeout,
		},
		subs: map[string]*subscription{},
	}
	for _, opt := range opts {
		opt(&b.busOptions)
	}
	if b.queueSize < 1 {
		b.queueSize = 1
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	b.logger = b.logger.With("mod", "events")
	return b
}

// Subscribe adds a subscriber and returns the identifier used to
// remove it.
func (b *Bus) Subscribe(s Subscriber) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrBusClosed
	}
	sub := &subscription{
		id:     uuid.NewString(),
		sub:    s,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.subs[sub.id] = sub
	b.wg.Add(1)
	go b.deliver(sub)
	b.logger.Info("subscribed", "id", sub.id, "subscribers", len(b.subs))
	return sub.id, nil
}

// Unsubscribe removes and closes the specified subscriber.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if !ok {
		return ErrSubscriberNotFound
	}
	close(sub.done)
	return nil
}

// Publish queues ev for every subscriber. It never blocks, if a
// subscriber's queue is full its oldest event is discarded.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.mu.Lock()
		if len(sub.queue) >= b.queueSize {
			sub.queue = sub.queue[1:]
			sub.stats.Dropped++
		}
		sub.queue = append(sub.queue, ev)
		sub.mu.Unlock()
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of current subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stats returns the delivery statistics for the specified subscriber.
func (b *Bus) Stats(id string) (Stats, error) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	b.mu.Unlock()
	if !ok {
		return Stats{}, ErrSubscriberNotFound
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.stats, nil
}

// Close removes all subscribers and waits for their delivery
// goroutines to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[string]*subscription{}
	b.mu.Unlock()
	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
}

func (b *Bus) remove(sub *subscription, err error) {
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	if ok {
		delete(b.subs, sub.id)
	}
	b.mu.Unlock()
	if ok {
		b.logger.Info("subscriber removed", "id", sub.id, "err", err)
	}
}

func (sub *subscription) next() (Event, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.queue) == 0 {
		return Event{}, false
	}
	ev := sub.queue[0]
	sub.queue = sub.queue[1:]
	return ev, true
}

func (b *Bus) deliver(sub *subscription) {
	defer b.wg.Done()
	defer sub.sub.Close()
	for {
		select {
		case <-sub.done:
			return
		case <-sub.notify:
		}
		for {
			ev, ok := sub.next()
			if !ok {
				break
			}
			ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
			err := sub.sub.Send(ctx, ev)
			cancel()
			if err != nil {
				b.remove(sub, err)
				return
			}
			sub.mu.Lock()
			sub.stats.Sent++
			sub.mu.Unlock()
			select {
			case <-sub.done:
				return
			default:
			}
		}
	}
}
