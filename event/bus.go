package event

import (
	"errors"
	"reflect"
	"sync"

	"github.com/uiforge/appcore/logging"
)

// Sentinel errors returned by bus operations.
var (
	ErrNilEvent   = errors.New("event must not be nil")
	ErrNilHandler = errors.New("handler must not be nil")
	ErrBusClosed  = errors.New("event bus is closed")
)

// broadcaster is the type-erased view of a Channel held by the bus.
type broadcaster interface {
	subscriberCount() int
	close()
}

// Subscription deregisters exactly one handler from exactly one channel.
// Close is idempotent.
type Subscription struct {
	once   sync.Once
	remove func()
}

// Close deregisters the handler. Safe to call multiple times, and safe to
// call after the owning bus has been closed.
func (s *Subscription) Close() {
	s.once.Do(s.remove)
}

// Bus is a typed publish/subscribe hub. It owns one Channel per concrete
// event type, created lazily on first publish or subscribe, and tears all of
// them down on Close together with every subscription created through the
// bus's own Subscribe functions.
//
// Subscriber bookkeeping is mutex-guarded, but dispatch itself runs outside
// any lock on the set of subscribers current at publish time. The bus
// assumes Publish and Subscribe are driven from the application's event
// loop; no ordering contract is given for concurrent publishes.
//
// Because Go methods cannot introduce type parameters, the typed operations
// are package-level functions taking the bus as their first argument:
// Publish, Subscribe, SubscribeFiltered, and ChannelOf.
type Bus struct {
	mu            sync.Mutex
	channels      map[reflect.Type]broadcaster
	tracked       []*Subscription
	closed        bool
	logger        *logging.Logger
	warnUnhandled bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithWarnUnhandled makes the bus log a warning whenever an event is
// published with no subscribers registered for its type.
func WithWarnUnhandled(on bool) Option {
	return func(b *Bus) { b.warnUnhandled = on }
}

// New creates an event bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		channels: make(map[reflect.Type]broadcaster),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// typeKey returns the map key for event type T. Taking the type via a
// pointer element keeps interface type parameters working.
func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// channelFor returns the channel for T, creating it if needed.
// Returns ErrBusClosed once the bus has been closed.
func channelFor[T any](b *Bus) (*Channel[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	key := typeKey[T]()
	if existing, ok := b.channels[key]; ok {
		return existing.(*Channel[T]), nil
	}

	ch := NewChannel[T]()
	b.channels[key] = ch
	b.logger.Debug("event channel created", "event_type", key.String())
	return ch, nil
}

// Publish delivers ev synchronously to every subscriber of type T active at
// publish time, in subscription order. It returns ErrNilEvent for nil
// events and ErrBusClosed after Close.
//
// A panicking subscriber does not stop dispatch: every remaining subscriber
// still runs, and the recovered panics are logged and returned to the
// publisher as one joined error.
func Publish[T any](b *Bus, ev T) error {
	if isNilEvent(ev) {
		return ErrNilEvent
	}

	ch, err := channelFor[T](b)
	if err != nil {
		return err
	}

	if b.warnUnhandled && ch.SubscriberCount() == 0 {
		b.logger.Warn("event published with no subscribers",
			"event_type", typeKey[T]().String())
	}

	if err := ch.Publish(ev); err != nil {
		b.logger.Error("event dispatch failed",
			"event_type", typeKey[T]().String(),
			"error", err)
		return err
	}
	return nil
}

// Subscribe registers handler for every subsequent publish of type T. The
// returned Subscription deregisters exactly that handler; the bus also
// retains it so Close tears it down even if the caller never does.
func Subscribe[T any](b *Bus, handler func(T)) (*Subscription, error) {
	return subscribeTracked(b, func(ch *Channel[T]) (*Subscription, error) {
		return ch.Subscribe(handler)
	})
}

// SubscribeFiltered registers handler for publishes of type T that satisfy
// pred. The predicate is evaluated once per publish per subscriber.
func SubscribeFiltered[T any](b *Bus, handler func(T), pred func(T) bool) (*Subscription, error) {
	return subscribeTracked(b, func(ch *Channel[T]) (*Subscription, error) {
		return ch.SubscribeFiltered(handler, pred)
	})
}

func subscribeTracked[T any](b *Bus, register func(*Channel[T]) (*Subscription, error)) (*Subscription, error) {
	ch, err := channelFor[T](b)
	if err != nil {
		return nil, err
	}

	sub, err := register(ch)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.tracked = append(b.tracked, sub)
	b.mu.Unlock()
	return sub, nil
}

// ChannelOf exposes the raw channel for type T for caller-side composition.
// Subscriptions made directly on the returned channel bypass the bus's
// tracked-subscription bookkeeping: the caller owns their lifetime, though
// closing the bus still closes the channel itself.
func ChannelOf[T any](b *Bus) (*Channel[T], error) {
	return channelFor[T](b)
}

// SubscriptionCount returns the total number of subscribers across all
// channels, including untracked ones.
func (b *Bus) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, ch := range b.channels {
		count += ch.subscriberCount()
	}
	return count
}

// Close tears down every channel and every bus-tracked subscription, then
// clears the type-to-channel map. Channels are not reusable afterward;
// subsequent Publish and Subscribe calls return ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	channels := b.channels
	tracked := b.tracked
	b.channels = make(map[reflect.Type]broadcaster)
	b.tracked = nil
	b.mu.Unlock()

	for _, sub := range tracked {
		sub.Close()
	}
	for _, ch := range channels {
		ch.close()
	}

	b.logger.Debug("event bus closed", "channel_count", len(channels))
	return nil
}

// isNilEvent reports whether ev is a nil pointer, interface, map, slice,
// func, or channel. Publishing nil is a usage error.
func isNilEvent(ev any) bool {
	if ev == nil {
		return true
	}
	v := reflect.ValueOf(ev)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}
