package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveBeatsIsCyclic(t *testing.T) {
	assert.True(t, MoveAttack.Beats(MoveDefense))
	assert.True(t, MoveDefense.Beats(MoveMagic))
	assert.True(t, MoveMagic.Beats(MoveAttack))
	for _, m := range []Move{MoveAttack, MoveDefense, MoveMagic} {
		assert.False(t, m.Beats(m))
		assert.True(t, m.Valid())
	}
	assert.False(t, MoveNone.Valid())
	assert.False(t, Move(4).Valid())
}

func TestParseMove(t *testing.T) {
	m, err := ParseMove("Magic")
	require.NoError(t, err)
	assert.Equal(t, MoveMagic, m)
	m, err = ParseMove("2")
	require.NoError(t, err)
	assert.Equal(t, MoveDefense, m)
	_, err = ParseMove("0")
	assert.ErrorIs(t, err, ErrInvalidMove)
}

func TestParticipantOf(t *testing.T) {
	g := &Game{ID: 1, PlayerOne: "a", PlayerTwo: "b"}
	p, err := g.ParticipantOf("a")
	require.NoError(t, err)
	assert.Equal(t, PlayerOne, p)
	p, err = g.ParticipantOf("b")
	require.NoError(t, err)
	assert.Equal(t, PlayerTwo, p)
	_, err = g.ParticipantOf("c")
	assert.ErrorIs(t, err, ErrNotAParticipant)

	// An empty seat never matches an empty caller.
	open := &Game{ID: 2, PlayerOne: "a"}
	_, err = open.ParticipantOf("")
	assert.ErrorIs(t, err, ErrNotAParticipant)
}

func TestGameJSONCommitmentPresence(t *testing.T) {
	c, err := ParseCommitment("ab" + strings.Repeat("00", 31))
	require.NoError(t, err)
	g := &Game{ID: 3, PlayerOne: "a", PlayerTwo: "b", Status: StatusWaitingForPlayer}
	g.SetCommitment(PlayerTwo, c)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "p1_commitment")
	assert.Contains(t, string(data), `"p2_commitment":"ab00`)

	var back Game
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Nil(t, back.CommitmentOf(PlayerOne))
	require.NotNil(t, back.CommitmentOf(PlayerTwo))
	assert.Equal(t, c, *back.CommitmentOf(PlayerTwo))
	assert.False(t, back.BothCommitted())
}

func TestParseSaltRejectsWrongLength(t *testing.T) {
	_, err := ParseSalt("abcd")
	assert.Error(t, err)
	_, err = ParseSalt("zz")
	assert.Error(t, err)
}
