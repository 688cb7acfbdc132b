package events

import (
	"sync"

	"github.com/decred/slog"
)

var log = slog.Disabled

// UseLogger sets the package logger.
func UseLogger(l slog.Logger) {
	log = l
}

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit      EventType = "block_commit"
	EventTxExecuted       EventType = "tx_executed"
	EventTxFailed         EventType = "tx_failed"
	EventTokenTransfer    EventType = "token_transfer"
	EventPlayerRegistered EventType = "player_registered"
	EventGameCreated      EventType = "game_created"
	EventGameJoined       EventType = "game_joined"
	EventMoveCommitted    EventType = "move_committed"
	EventMoveRevealed     EventType = "move_revealed"
	EventGameFinalized    EventType = "game_finalized"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

type subscription struct {
	id uint64
	h  Handler
}

// Emitter is a simple pub/sub broker. Handlers run synchronously on the
// emitting goroutine, so they must not block.
type Emitter struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
	all      []subscription
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]subscription)}
}

// Subscribe registers h to be called whenever typ is emitted. The returned
// func removes the subscription.
func (e *Emitter) Subscribe(typ EventType, h Handler) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers[typ] = append(e.handlers[typ], subscription{id, h})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.handlers[typ] = removeSub(e.handlers[typ], id)
	}
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.all = append(e.all, subscription{id, h})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.all = removeSub(e.all, id)
	}
}

func removeSub(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Emit delivers ev to all subscribers for ev.Type, then to catch-all
// subscribers. Each handler is guarded by panic recovery so a misbehaving
// subscriber cannot halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	subs := make([]subscription, 0, len(e.handlers[ev.Type])+len(e.all))
	subs = append(subs, e.handlers[ev.Type]...)
	subs = append(subs, e.all...)
	e.mu.RUnlock()
	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("handler panicked for %s: %v", ev.Type, r)
				}
			}()
			s.h(ev)
		}()
	}
}
