// Package broadcast delivers coordinator events to connection sinks, either
// to a single connection or to every attached one.
package broadcast

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/orgchat/internal/logging"
	"github.com/Tyrowin/orgchat/internal/session"
	"github.com/Tyrowin/orgchat/internal/telemetry"
)

// parallelThreshold is the recipient count above which Broadcast fans out
// on separate goroutines.
const parallelThreshold = 32

var (
	ErrDuplicate = errors.New("broadcast: connection already attached")
	ErrNilSink   = errors.New("broadcast: nil sink")
)

// Router implements session.Router over a map of live sinks.
type Router struct {
	mu    sync.RWMutex
	sinks map[string]session.Sink
	log   zerolog.Logger
}

var _ session.Router = (*Router)(nil)

func NewRouter() *Router {
	return &Router{
		sinks: make(map[string]session.Sink),
		log:   logging.Component("broadcast"),
	}
}

func (r *Router) Attach(connID string, sink session.Sink) error {
	if sink == nil {
		return ErrNilSink
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sinks[connID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, connID)
	}
	r.sinks[connID] = sink
	return nil
}

func (r *Router) Detach(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sinks[connID]
	delete(r.sinks, connID)
	return ok
}

func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Unicast delivers ev to connID only.
func (r *Router) Unicast(connID string, ev session.Event) {
	r.mu.RLock()
	sink, ok := r.sinks[connID]
	r.mu.RUnlock()

	if !ok {
		r.failed(connID, ev, errors.New("no sink attached"))
		return
	}
	r.deliver(connID, sink, ev)
}

// Broadcast delivers ev to every attached connection. The sink table is
// snapshotted first so no lock is held while delivering.
func (r *Router) Broadcast(ev session.Event) {
	targets := r.snapshot()

	if len(targets) <= parallelThreshold {
		for _, t := range targets {
			r.deliver(t.connID, t.sink, ev)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, t := range targets {
		go func() {
			defer wg.Done()
			r.deliver(t.connID, t.sink, ev)
		}()
	}
	wg.Wait()
}

type target struct {
	connID string
	sink   session.Sink
}

func (r *Router) snapshot() []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]target, 0, len(r.sinks))
	for id, s := range r.sinks {
		out = append(out, target{connID: id, sink: s})
	}
	return out
}

// deliver isolates one recipient: an error or panic from its sink is logged
// and counted, and never reaches the caller.
func (r *Router) deliver(connID string, sink session.Sink, ev session.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.failed(connID, ev, fmt.Errorf("sink panicked: %v", p))
		}
	}()

	if err := sink.Deliver(ev); err != nil {
		r.failed(connID, ev, err)
		return
	}
	telemetry.EventsDeliveredTotal.WithLabelValues(ev.Kind.String()).Inc()
}

func (r *Router) failed(connID string, ev session.Event, err error) {
	telemetry.DeliveryFailuresTotal.WithLabelValues(ev.Kind.String()).Inc()
	r.log.Warn().Err(err).Str("conn", connID).Str("event", ev.Kind.String()).Msg("delivery failed")
}
