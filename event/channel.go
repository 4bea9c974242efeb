package event

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// subscriber is one registered handler on a Channel.
type subscriber[T any] struct {
	id      uuid.UUID
	handler func(T)
	filter  func(T) bool // nil means no filtering
}

// Channel is the broadcast primitive for a single event type. Each published
// value is delivered synchronously to every subscriber registered at publish
// time, in subscription order. Channels hold no history: a subscriber sees
// only events published after it subscribed.
//
// Channels are normally obtained from a Bus, which creates one per event
// type on demand. Subscriptions made directly on a Channel (via ChannelOf)
// are not tracked by the owning bus's aggregate Close.
type Channel[T any] struct {
	mu     sync.Mutex
	subs   []subscriber[T]
	closed bool
}

// NewChannel creates a standalone Channel. Most callers want a Bus instead.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{}
}

// Subscribe registers a handler invoked for every subsequent publish.
// The returned Subscription deregisters exactly that handler.
func (c *Channel[T]) Subscribe(handler func(T)) (*Subscription, error) {
	return c.subscribe(handler, nil)
}

// SubscribeFiltered registers a handler invoked only for published events
// that satisfy pred. The predicate is evaluated once per publish per
// subscriber.
func (c *Channel[T]) SubscribeFiltered(handler func(T), pred func(T) bool) (*Subscription, error) {
	if pred == nil {
		return nil, ErrNilHandler
	}
	return c.subscribe(handler, pred)
}

func (c *Channel[T]) subscribe(handler func(T), filter func(T) bool) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrBusClosed
	}

	id := uuid.New()
	c.subs = append(c.subs, subscriber[T]{id: id, handler: handler, filter: filter})

	return &Subscription{remove: func() { c.unsubscribe(id) }}, nil
}

// unsubscribe removes the subscriber with the given id, preserving the
// order of the remaining subscribers.
func (c *Channel[T]) unsubscribe(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.subs {
		if sub.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current subscriber in subscription order.
// It does not return until every handler has run. A panicking handler does
// not prevent later subscribers from running; recovered panics are collected
// and returned to the publisher as a single joined error.
func (c *Channel[T]) Publish(ev T) error {
	if isNilEvent(ev) {
		return ErrNilEvent
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrBusClosed
	}
	// Dispatch on a snapshot so handlers never run under the channel lock
	// and may themselves subscribe or publish.
	subs := make([]subscriber[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		if err := safeCall(sub.handler, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// safeCall invokes a handler, converting a panic into an error.
func safeCall[T any](handler func(T), ev T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	handler(ev)
	return nil
}

// SubscriberCount returns the number of currently registered subscribers.
func (c *Channel[T]) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// close drops every subscriber and marks the channel unusable.
func (c *Channel[T]) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = nil
	c.closed = true
}

// subscriberCount implements broadcaster for the owning bus.
func (c *Channel[T]) subscriberCount() int {
	return c.SubscriberCount()
}
