package world

import (
	"context"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"aiverse/internal/common"
)

// dispatchQueueSize bounds how many WorldEvents can be queued for
// subscribers before the dispatcher starts dropping new ones; a slow or
// stuck subscriber must never be able to stall the engine.
const dispatchQueueSize = 1024

// Subscriber receives every WorldEvent the World emits, dispatched
// outside the world lock. Implementations (the WebSocket hub) must not
// block for long: subscribers are called one after another on the single
// dispatch goroutine, so a slow subscriber delays delivery to every
// subscriber, but never the engine.
type Subscriber func(common.WorldEvent)

// dispatcher drains a bounded channel of events on its own goroutine and
// fans each one out to every registered subscriber. That goroutine is
// supervised by a tomb tied to the caller's context.
type dispatcher struct {
	events      chan common.WorldEvent
	subscribers []Subscriber
}

func newDispatcher() *dispatcher {
	return &dispatcher{events: make(chan common.WorldEvent, dispatchQueueSize)}
}

func (d *dispatcher) subscribe(s Subscriber) {
	d.subscribers = append(d.subscribers, s)
}

// enqueue is called by World.emit. If the queue is full, the event is
// dropped rather than blocking the caller; broadcast is best-effort, the
// append-only log is authoritative.
func (d *dispatcher) enqueue(ev common.WorldEvent) {
	select {
	case d.events <- ev:
	default:
		log.Warn().Str("event_type", string(ev.Type)).Msg("event dispatch queue full, dropping broadcast")
	}
}

// run drains the queue until t is dying, invoking every subscriber for
// each event in order.
func (d *dispatcher) run(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case ev := <-d.events:
			for _, sub := range d.subscribers {
				sub(ev)
			}
		}
	}
}

// Start launches the dispatcher's draining goroutine, supervised by a
// tomb tied to ctx.
func (d *dispatcher) Start(ctx context.Context) *tomb.Tomb {
	t, _ := tomb.WithContext(ctx)
	t.Go(func() error { return d.run(t) })
	return t
}
