// Package event provides a typed publish-subscribe bus for decoupled
// communication between the components of an appcore application.
//
// Producers publish plain Go values; consumers subscribe per concrete event
// type. Neither side knows about the other, which keeps UI logic, task
// bodies, and services free of direct dependencies.
//
// # Main Types
//
//   - [Bus]: type-indexed hub owning one channel per event type
//   - [Channel]: per-type broadcast primitive with no replay buffer
//   - [Subscription]: handle that deregisters exactly one handler
//
// Because Go methods cannot introduce type parameters, the typed operations
// are package-level functions: [Publish], [Subscribe], [SubscribeFiltered],
// and [ChannelOf].
//
// # Delivery Semantics
//
// Publish dispatches synchronously, in subscription order, to every
// subscriber registered at publish time. Channels keep no history, so a
// subscriber never sees events published before it subscribed. Publishing
// with zero subscribers is a no-op.
//
// A panicking subscriber is isolated: the panic is recovered, remaining
// subscribers still run, and the publisher receives the recovered panics
// as one joined error from Publish.
//
// # Basic Usage
//
//	type SceneLoaded struct{ Name string }
//
//	bus := event.New()
//
//	sub, _ := event.Subscribe(bus, func(e SceneLoaded) {
//		log.Printf("scene %s loaded", e.Name)
//	})
//	defer sub.Close()
//
//	_ = event.Publish(bus, SceneLoaded{Name: "menu"})
//
// Predicate subscriptions fire only for matching events:
//
//	event.SubscribeFiltered(bus, onBossDeath, func(e EnemyDied) bool {
//		return e.Boss
//	})
//
// Closing the bus tears down every channel and every subscription created
// through the bus's Subscribe functions, even ones the caller never closed.
package event
