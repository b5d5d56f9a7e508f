package audit

import (
	"log"
	"sync"
)

// Journal actions.
const (
	ActionPushApplied      = "push_applied"
	ActionPushDeferred     = "push_deferred"
	ActionServerWins       = "server_wins"
	ActionTombstone        = "tombstone"
	ActionTransitionDenied = "transition_denied"
	ActionIncoming         = "incoming_applied"
	ActionPassFailed       = "pass_failed"
)

type Event struct {
	OwnerKey string
	Action   string
	Entity   string
	EntityID *int64
	Metadata any
}

// Sink receives journal events. Sync code never waits on it.
type Sink interface {
	Dispatch(ev Event)
}

type Dispatcher struct {
	logger *Logger
	queue  chan Event

	// mu guards closed; senders hold it shared so Close never races a send.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(logger *Logger) *Dispatcher {
	d := &Dispatcher{
		logger: logger,
		queue:  make(chan Event, 100),
		done:   make(chan struct{}),
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.queue {
		if err := d.logger.Log(
			ev.OwnerKey,
			ev.Action,
			ev.Entity,
			ev.EntityID,
			ev.Metadata,
		); err != nil {
			log.Println("sync journal error:", err)
		}
	}
}

// Dispatch drops the event once the dispatcher is closed.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- ev:
	default:
		// queue full, drop the entry; journaling never fails a pass
		log.Println("sync journal queue full, dropping event")
	}
}

// Close drains queued events and stops the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Dispatch(Event) {}
