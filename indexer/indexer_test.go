package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/internal/testutil"
)

func TestGamesByPlayer(t *testing.T) {
	em := events.NewEmitter()
	idx := New(testutil.NewMemDB(), em)

	em.Emit(events.Event{Type: events.EventGameCreated, Data: map[string]any{"game_id": uint64(2), "player": "alice"}})
	em.Emit(events.Event{Type: events.EventGameCreated, Data: map[string]any{"game_id": uint64(1), "player": "alice"}})
	em.Emit(events.Event{Type: events.EventGameJoined, Data: map[string]any{"game_id": uint64(1), "player": "bob"}})
	em.Emit(events.Event{Type: events.EventGameJoined, Data: map[string]any{"game_id": uint64(1), "player": "bob"}})

	got, err := idx.GetGamesByPlayer("alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, got)

	got, err = idx.GetGamesByPlayer("bob")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, got)

	got, err = idx.GetGamesByPlayer("nobody")
	require.NoError(t, err)
	assert.Empty(t, got)

	em.Emit(events.Event{Type: events.EventGameFinalized, Data: map[string]any{
		"game_id": uint64(1), "player_one": "alice", "player_two": "bob",
	}})
	got, err = idx.GetFinishedGamesByPlayer("bob")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, got)

	idx.Close()
	em.Emit(events.Event{Type: events.EventGameCreated, Data: map[string]any{"game_id": uint64(3), "player": "alice"}})
	got, err = idx.GetGamesByPlayer("alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, got)
}
