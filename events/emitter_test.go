package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitDeliversByType(t *testing.T) {
	e := NewEmitter()
	var created, all []Event
	e.Subscribe(EventGameCreated, func(ev Event) { created = append(created, ev) })
	e.SubscribeAll(func(ev Event) { all = append(all, ev) })

	e.Emit(Event{Type: EventGameCreated, TxID: "a"})
	e.Emit(Event{Type: EventGameJoined, TxID: "b"})

	assert.Len(t, created, 1)
	assert.Equal(t, "a", created[0].TxID)
	assert.Len(t, all, 2)
}

func TestCancelStopsDelivery(t *testing.T) {
	e := NewEmitter()
	n := 0
	cancel := e.Subscribe(EventMoveRevealed, func(Event) { n++ })
	e.Emit(Event{Type: EventMoveRevealed})
	cancel()
	e.Emit(Event{Type: EventMoveRevealed})
	assert.Equal(t, 1, n)
}

func TestPanickingHandlerIsContained(t *testing.T) {
	e := NewEmitter()
	reached := false
	e.Subscribe(EventGameFinalized, func(Event) { panic("boom") })
	e.Subscribe(EventGameFinalized, func(Event) { reached = true })
	assert.NotPanics(t, func() { e.Emit(Event{Type: EventGameFinalized}) })
	assert.True(t, reached)
}
