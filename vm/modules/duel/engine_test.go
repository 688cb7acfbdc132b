package duel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/internal/testutil"
	"github.com/tolelom/duelchain/vm/modules/economy"
)

const (
	alice = "alice"
	bob   = "bob"
	carol = "carol"
)

type fixture struct {
	t      *testing.T
	state  core.State
	ledger *economy.Ledger
	eng    *Engine
	codec  *crypto.Committer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := testutil.NewStateDB()
	ledger := economy.NewLedger(state)
	codec := crypto.NewCommitter(nil)
	clock := int64(1000)
	f := &fixture{
		t:      t,
		state:  state,
		ledger: ledger,
		codec:  codec,
		eng: &Engine{
			State:  state,
			Ledger: ledger,
			Codec:  codec,
			Now:    func() int64 { clock++; return clock },
		},
	}
	for _, addr := range []string{alice, bob, carol} {
		require.NoError(t, state.SetAccount(&core.Account{Address: addr, Balance: 1000}))
		_, _, err := f.eng.RegisterPlayer(addr)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) balance(addr string) uint64 {
	f.t.Helper()
	b, err := f.ledger.Balance(core.NativeToken, addr)
	require.NoError(f.t, err)
	return b
}

func salt(b byte) core.Salt {
	var s core.Salt
	for i := range s {
		s[i] = b + byte(i)
	}
	return s
}

func (f *fixture) commitment(m core.Move, s core.Salt) core.Commitment {
	return core.Commitment(f.codec.Commit(uint32(m), s))
}

// committedGame plays create, join and both commits with a 100 stake.
func (f *fixture) committedGame(m1, m2 core.Move) *core.Game {
	f.t.Helper()
	g, err := f.eng.CreateGame(alice, 100, "")
	require.NoError(f.t, err)
	_, err = f.eng.JoinGame(g.ID, bob, "")
	require.NoError(f.t, err)
	_, err = f.eng.CommitMove(g.ID, alice, f.commitment(m1, salt(1)))
	require.NoError(f.t, err)
	g, err = f.eng.CommitMove(g.ID, bob, f.commitment(m2, salt(2)))
	require.NoError(f.t, err)
	require.Equal(f.t, core.StatusMovesCommitted, g.Status)
	return g
}

func (f *fixture) revealedGame(m1, m2 core.Move) *core.Game {
	f.t.Helper()
	g := f.committedGame(m1, m2)
	_, err := f.eng.RevealMove(g.ID, bob, m2, salt(2))
	require.NoError(f.t, err)
	g, err = f.eng.RevealMove(g.ID, alice, m1, salt(1))
	require.NoError(f.t, err)
	return g
}

func TestRegisterPlayerIdempotent(t *testing.T) {
	f := newFixture(t)
	p, created, err := f.eng.RegisterPlayer(alice)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, alice, p.Address)

	_, err = f.eng.GetPlayer("nobody")
	assert.ErrorIs(t, err, core.ErrNotRegistered)
}

func TestCreateGameEscrowsStake(t *testing.T) {
	f := newFixture(t)
	g, err := f.eng.CreateGame(alice, 100, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), g.ID)
	assert.Equal(t, core.StatusWaitingForPlayer, g.Status)
	assert.Equal(t, core.NativeToken, g.Token)
	assert.Nil(t, g.P1Commitment)
	assert.Nil(t, g.P2Commitment)
	assert.Equal(t, uint64(900), f.balance(alice))
	assert.Equal(t, uint64(100), f.balance(core.EscrowAddress))

	g2, err := f.eng.CreateGame(bob, 50, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), g2.ID)

	active, err := f.eng.ActiveGames()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, active)
}

func TestCreateGameRequiresRegistration(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.CreateGame("stranger", 10, "")
	assert.ErrorIs(t, err, core.ErrNotRegistered)
}

func TestCreateGameTransferFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.CreateGame(alice, 5000, "")
	require.ErrorIs(t, err, core.ErrTransferFailed)

	active, err := f.eng.ActiveGames()
	require.NoError(t, err)
	assert.Empty(t, active)
	_, err = f.eng.GetGame(1)
	assert.ErrorIs(t, err, core.ErrGameNotFound)

	// The counter was rolled back with the failed call.
	g, err := f.eng.CreateGame(alice, 10, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), g.ID)
}

func TestJoinGameValidation(t *testing.T) {
	f := newFixture(t)
	g, err := f.eng.CreateGame(alice, 100, "")
	require.NoError(t, err)

	_, err = f.eng.JoinGame(99, bob, "")
	assert.ErrorIs(t, err, core.ErrGameNotFound)

	_, err = f.eng.JoinGame(g.ID, alice, "")
	assert.ErrorIs(t, err, core.ErrSelfPlay)

	_, err = f.eng.JoinGame(g.ID, "stranger", "")
	assert.ErrorIs(t, err, core.ErrNotRegistered)

	_, err = f.eng.JoinGame(g.ID, bob, "gold")
	assert.ErrorIs(t, err, core.ErrTokenMismatch)

	g, err = f.eng.JoinGame(g.ID, bob, core.NativeToken)
	require.NoError(t, err)
	assert.Equal(t, bob, g.PlayerTwo)
	assert.Equal(t, core.StatusWaitingForPlayer, g.Status)
	assert.Equal(t, uint64(200), f.balance(core.EscrowAddress))

	_, err = f.eng.JoinGame(g.ID, carol, "")
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestJoinGameTransferFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.state.SetAccount(&core.Account{Address: bob, Balance: 10}))
	g, err := f.eng.CreateGame(alice, 100, "")
	require.NoError(t, err)

	_, err = f.eng.JoinGame(g.ID, bob, "")
	require.ErrorIs(t, err, core.ErrTransferFailed)
	assert.ErrorIs(t, err, economy.ErrInsufficientBalance)

	g, err = f.eng.GetGame(g.ID)
	require.NoError(t, err)
	assert.False(t, g.HasOpponent())
	assert.Equal(t, uint64(10), f.balance(bob))
}

func TestCommitMove(t *testing.T) {
	f := newFixture(t)
	g, err := f.eng.CreateGame(alice, 100, "")
	require.NoError(t, err)

	c1 := f.commitment(core.MoveAttack, salt(1))
	_, err = f.eng.CommitMove(g.ID, alice, c1)
	assert.ErrorIs(t, err, core.ErrInvalidState, "no opponent yet")

	_, err = f.eng.JoinGame(g.ID, bob, "")
	require.NoError(t, err)

	_, err = f.eng.CommitMove(g.ID, carol, c1)
	assert.ErrorIs(t, err, core.ErrNotAParticipant)

	_, err = f.eng.CommitMove(g.ID, alice, core.Commitment{})
	assert.ErrorIs(t, err, core.ErrInvalidCommitment)

	g, err = f.eng.CommitMove(g.ID, alice, c1)
	require.NoError(t, err)
	assert.Equal(t, core.StatusWaitingForPlayer, g.Status)

	_, err = f.eng.CommitMove(g.ID, alice, f.commitment(core.MoveMagic, salt(9)))
	assert.ErrorIs(t, err, core.ErrAlreadyCommitted)
	g, err = f.eng.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, c1, *g.P1Commitment, "original commitment kept")

	g, err = f.eng.CommitMove(g.ID, bob, f.commitment(core.MoveDefense, salt(2)))
	require.NoError(t, err)
	assert.Equal(t, core.StatusMovesCommitted, g.Status)
}

func TestRevealMove(t *testing.T) {
	f := newFixture(t)
	g, err := f.eng.CreateGame(alice, 100, "")
	require.NoError(t, err)
	_, err = f.eng.RevealMove(g.ID, alice, core.MoveAttack, salt(1))
	assert.ErrorIs(t, err, core.ErrInvalidState)

	f2 := newFixture(t)
	g = f2.committedGame(core.MoveAttack, core.MoveDefense)

	_, err = f2.eng.RevealMove(g.ID, alice, core.Move(4), salt(1))
	assert.ErrorIs(t, err, core.ErrInvalidMove)
	_, err = f2.eng.RevealMove(g.ID, alice, core.MoveNone, salt(1))
	assert.ErrorIs(t, err, core.ErrInvalidMove)

	_, err = f2.eng.RevealMove(g.ID, carol, core.MoveAttack, salt(1))
	assert.ErrorIs(t, err, core.ErrNotAParticipant)

	_, err = f2.eng.RevealMove(g.ID, alice, core.MoveDefense, salt(1))
	assert.ErrorIs(t, err, core.ErrCommitmentMismatch)
	_, err = f2.eng.RevealMove(g.ID, alice, core.MoveAttack, salt(7))
	assert.ErrorIs(t, err, core.ErrCommitmentMismatch)
	g, err = f2.eng.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MoveNone, g.P1Move)

	g, err = f2.eng.RevealMove(g.ID, alice, core.MoveAttack, salt(1))
	require.NoError(t, err)
	assert.Equal(t, core.MoveAttack, g.P1Move)
	assert.Equal(t, core.StatusMovesCommitted, g.Status)

	_, err = f2.eng.RevealMove(g.ID, alice, core.MoveAttack, salt(1))
	assert.ErrorIs(t, err, core.ErrAlreadyRevealed)
}

func TestFinalizeWinScenario(t *testing.T) {
	f := newFixture(t)
	g := f.revealedGame(core.MoveAttack, core.MoveDefense)

	g, plan, err := f.eng.FinalizeGame(g.ID, "")
	require.NoError(t, err)
	assert.Equal(t, core.OutcomePlayer1Wins, plan.Outcome)
	assert.Equal(t, alice, g.Winner)
	assert.Equal(t, core.StatusCompleted, g.Status)
	assert.NotZero(t, g.FinalizedAt)

	assert.Equal(t, uint64(1100), f.balance(alice))
	assert.Equal(t, uint64(900), f.balance(bob))
	assert.Equal(t, uint64(0), f.balance(core.EscrowAddress))

	p1, err := f.eng.GetPlayer(alice)
	require.NoError(t, err)
	p2, err := f.eng.GetPlayer(bob)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), p1.Wins)
	assert.Equal(t, uint32(0), p1.Draws)
	assert.Equal(t, uint32(1), p2.Losses)
	assert.Equal(t, uint32(0), p2.Draws)

	active, err := f.eng.ActiveGames()
	require.NoError(t, err)
	assert.NotContains(t, active, g.ID)
}

func TestFinalizeDrawScenario(t *testing.T) {
	f := newFixture(t)
	g := f.revealedGame(core.MoveMagic, core.MoveMagic)

	g, plan, err := f.eng.FinalizeGame(g.ID, core.NativeToken)
	require.NoError(t, err)
	assert.True(t, g.IsDraw())
	assert.Empty(t, g.Winner)
	assert.Len(t, plan.Payouts, 2)

	assert.Equal(t, uint64(1000), f.balance(alice))
	assert.Equal(t, uint64(1000), f.balance(bob))
	for _, addr := range []string{alice, bob} {
		p, err := f.eng.GetPlayer(addr)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), p.Draws)
		assert.Zero(t, p.Wins)
		assert.Zero(t, p.Losses)
	}
}

func TestEscrowConservation(t *testing.T) {
	for _, m1 := range allMoves {
		for _, m2 := range allMoves {
			f := newFixture(t)
			g := f.revealedGame(m1, m2)
			before := f.balance(alice) + f.balance(bob)
			_, plan, err := f.eng.FinalizeGame(g.ID, "")
			require.NoError(t, err)
			assert.Equal(t, uint64(200), plan.Total(), "%s vs %s", m1, m2)
			assert.Equal(t, before+200, f.balance(alice)+f.balance(bob))
			assert.Zero(t, f.balance(core.EscrowAddress))
		}
	}
}

func TestFinalizeIncompleteReveal(t *testing.T) {
	f := newFixture(t)
	g := f.committedGame(core.MoveAttack, core.MoveDefense)
	_, err := f.eng.RevealMove(g.ID, alice, core.MoveAttack, salt(1))
	require.NoError(t, err)

	_, _, err = f.eng.FinalizeGame(g.ID, "")
	require.ErrorIs(t, err, core.ErrIncompleteReveal)

	g, err = f.eng.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusMovesCommitted, g.Status)
	assert.Equal(t, uint64(200), f.balance(core.EscrowAddress))
	assert.Equal(t, uint64(900), f.balance(alice))
}

func TestFinalizeOnce(t *testing.T) {
	f := newFixture(t)
	g := f.revealedGame(core.MoveDefense, core.MoveMagic)
	_, _, err := f.eng.FinalizeGame(g.ID, "")
	require.NoError(t, err)

	_, _, err = f.eng.FinalizeGame(g.ID, "")
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, uint64(1100), f.balance(alice))

	_, _, err = f.eng.FinalizeGame(42, "")
	assert.ErrorIs(t, err, core.ErrGameNotFound)
}

func TestFinalizeTokenMismatch(t *testing.T) {
	f := newFixture(t)
	g := f.revealedGame(core.MoveAttack, core.MoveMagic)
	_, _, err := f.eng.FinalizeGame(g.ID, "gold")
	assert.ErrorIs(t, err, core.ErrTokenMismatch)
}

// flakyLedger fails the nth transfer and delegates the rest.
type flakyLedger struct {
	next  Ledger
	calls int
	failN int
}

func (l *flakyLedger) Transfer(token, from, to string, amount uint64) error {
	l.calls++
	if l.calls == l.failN {
		return errors.New("ledger offline")
	}
	return l.next.Transfer(token, from, to, amount)
}

func TestFinalizeTransferFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	g := f.revealedGame(core.MoveMagic, core.MoveMagic)

	// Draw pays two refunds; fail the second one.
	f.eng.Ledger = &flakyLedger{next: f.ledger, failN: 2}
	_, _, err := f.eng.FinalizeGame(g.ID, "")
	require.ErrorIs(t, err, core.ErrTransferFailed)

	assert.Equal(t, uint64(900), f.balance(alice), "first refund rolled back")
	assert.Equal(t, uint64(200), f.balance(core.EscrowAddress))
	p, err := f.eng.GetPlayer(alice)
	require.NoError(t, err)
	assert.Zero(t, p.Draws)
	g, err = f.eng.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusMovesCommitted, g.Status)
	active, err := f.eng.ActiveGames()
	require.NoError(t, err)
	assert.Contains(t, active, g.ID)

	f.eng.Ledger = f.ledger
	_, _, err = f.eng.FinalizeGame(g.ID, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), f.balance(alice))
}

func TestZeroStakeGame(t *testing.T) {
	f := newFixture(t)
	g, err := f.eng.CreateGame(alice, 0, "")
	require.NoError(t, err)
	_, err = f.eng.JoinGame(g.ID, bob, "")
	require.NoError(t, err)
	_, err = f.eng.CommitMove(g.ID, alice, f.commitment(core.MoveMagic, salt(1)))
	require.NoError(t, err)
	_, err = f.eng.CommitMove(g.ID, bob, f.commitment(core.MoveAttack, salt(2)))
	require.NoError(t, err)
	_, err = f.eng.RevealMove(g.ID, alice, core.MoveMagic, salt(1))
	require.NoError(t, err)
	_, err = f.eng.RevealMove(g.ID, bob, core.MoveAttack, salt(2))
	require.NoError(t, err)

	g, _, err = f.eng.FinalizeGame(g.ID, "")
	require.NoError(t, err)
	assert.Equal(t, alice, g.Winner)
	assert.Equal(t, uint64(1000), f.balance(alice))
}
