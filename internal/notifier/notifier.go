// Package notifier implements the Notifier out-port (C10): an abstract
// (userID, event, payload) delivery boundary with a default log sink and an
// optional per-user websocket fan-out sink, wired at composition time.
package notifier

import (
	"context"
	"log"
	"sync"

	"trading-core/internal/events"
)

// Notifier delivers one event addressed to exactly one user. Concrete
// sinks (chat platform, webhook, websocket) are injected at composition
// time; the core never depends on a specific transport.
type Notifier interface {
	Notify(ctx context.Context, userID string, event events.Event, payload any) error
}

// LogSink is the default Notifier: it writes one structured line per
// notification. Always safe to use, even with no operator-facing channel
// configured.
type LogSink struct{}

func (LogSink) Notify(ctx context.Context, userID string, event events.Event, payload any) error {
	log.Printf("notify user=%s event=%s payload=%+v", userID, event, payload)
	return nil
}

// Multi fans a notification out to every configured sink. A failing sink
// is logged and does not prevent delivery to the remaining sinks.
type Multi struct {
	sinks []Notifier
}

// NewMulti builds a Multi over the given sinks, in delivery order.
func NewMulti(sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx context.Context, userID string, event events.Event, payload any) error {
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, userID, event, payload); err != nil {
			log.Printf("notifier sink failed: user=%s event=%s err=%v", userID, event, err)
		}
	}
	return nil
}

// Dispatcher subscribes to the event bus's user-addressed topics and routes
// each payload to a Notifier, extracting the target user ID from the
// payload map published by the Scheduler and Trade Queue.
type Dispatcher struct {
	bus    *events.Bus
	sink   Notifier
	topics []events.Event
}

// NewDispatcher builds a Dispatcher over the given bus and sink, listening
// to the standard set of user-addressed topics.
func NewDispatcher(bus *events.Bus, sink Notifier) *Dispatcher {
	return &Dispatcher{
		bus:  bus,
		sink: sink,
		topics: []events.Event{
			events.EventUserActivated,
			events.EventUserDeactivated,
			events.EventTradeSucceeded,
			events.EventTradeFailed,
			events.EventUserError,
		},
	}
}

// Run subscribes to every topic and blocks, dispatching notifications
// until ctx is canceled. One goroutine per topic forwards its channel into
// dispatch; all are torn down together on cancellation.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, topic := range d.topics {
		ch, unsub := d.bus.Subscribe(topic, 64)
		wg.Add(1)
		go func(event events.Event, ch <-chan any, unsub func()) {
			defer wg.Done()
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-ch:
					if !ok {
						return
					}
					d.dispatch(ctx, event, payload)
				}
			}
		}(topic, ch, unsub)
	}
	wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, event events.Event, payload any) {
	userID := extractUserID(payload)
	if userID == "" {
		return
	}
	if err := d.sink.Notify(ctx, userID, event, payload); err != nil {
		log.Printf("dispatch failed: event=%s err=%v", event, err)
	}
}

func extractUserID(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	userID, _ := m["user_id"].(string)
	return userID
}
