// Package duel implements the stake-backed commit-reveal duel: the game
// lifecycle, move resolution and escrow settlement.
package duel

import (
	"errors"
	"fmt"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
)

// Ledger moves token balances. Transfer must either fully succeed or leave
// balances untouched.
type Ledger interface {
	Transfer(token, from, to string, amount uint64) error
}

// Engine runs duel operations against chain state. Callers are already
// authenticated: the address arguments are trusted to be the caller.
//
// Every mutating method runs inside a state snapshot and reverts it on
// error, so a failed call leaves no partial writes behind.
type Engine struct {
	State  core.State
	Ledger Ledger
	Codec  *crypto.Committer
	Now    func() int64
}

func (e *Engine) now() int64 {
	if e.Now == nil {
		return 0
	}
	return e.Now()
}

func (e *Engine) atomic(fn func() error) error {
	snap, err := e.State.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := fn(); err != nil {
		if rerr := e.State.RevertToSnapshot(snap); rerr != nil {
			return fmt.Errorf("%w (revert: %v)", err, rerr)
		}
		return err
	}
	return e.State.DiscardSnapshot(snap)
}

func transfer(l Ledger, token, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	err := l.Transfer(token, from, to, amount)
	if err != nil && !errors.Is(err, core.ErrTransferFailed) {
		err = fmt.Errorf("%w: %w", core.ErrTransferFailed, err)
	}
	return err
}

// RegisterPlayer creates a zeroed profile for addr, or returns the existing
// one. created reports whether a new profile was written.
func (e *Engine) RegisterPlayer(addr string) (p *core.Player, created bool, err error) {
	if addr == "" {
		return nil, false, errors.New("player address required")
	}
	existing, err := e.State.GetPlayer(addr)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, false, fmt.Errorf("load player %s: %w", addr, err)
	}
	p = &core.Player{Address: addr, RegisteredAt: e.now()}
	if err := e.State.SetPlayer(p); err != nil {
		return nil, false, err
	}
	log.Debugf("registered player %s", addr)
	return p, true, nil
}

// GetPlayer returns addr's profile or ErrNotRegistered.
func (e *Engine) GetPlayer(addr string) (*core.Player, error) {
	p, err := e.State.GetPlayer(addr)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrNotRegistered, addr)
	}
	return p, err
}

func (e *Engine) requireRegistered(addr string) error {
	ok, err := e.State.HasPlayer(addr)
	if err != nil {
		return fmt.Errorf("check player %s: %w", addr, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNotRegistered, addr)
	}
	return nil
}

// GetGame returns the game or ErrGameNotFound.
func (e *Engine) GetGame(id uint64) (*core.Game, error) {
	g, err := e.State.GetGame(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", core.ErrGameNotFound, id)
	}
	return g, err
}

// ActiveGames lists ids of games that have not completed, ascending.
func (e *Engine) ActiveGames() ([]uint64, error) {
	return e.State.ActiveGames()
}

// checkToken accepts an empty token as "the game's token".
func checkToken(g *core.Game, token string) error {
	if token == "" || core.NormalizeToken(token) == g.Token {
		return nil
	}
	return fmt.Errorf("%w: game %d uses %s, got %s", core.ErrTokenMismatch, g.ID, g.Token, token)
}

// CreateGame escrows stake from creator and opens a new game waiting for an
// opponent.
func (e *Engine) CreateGame(creator string, stake uint64, token string) (*core.Game, error) {
	if err := e.requireRegistered(creator); err != nil {
		return nil, err
	}
	token = core.NormalizeToken(token)

	var g *core.Game
	err := e.atomic(func() error {
		id, err := e.State.NextGameID()
		if err != nil {
			return fmt.Errorf("allocate game id: %w", err)
		}
		if err := transfer(e.Ledger, token, creator, core.EscrowAddress, stake); err != nil {
			return fmt.Errorf("escrow stake: %w", err)
		}
		now := e.now()
		g = &core.Game{
			ID:        id,
			PlayerOne: creator,
			Stake:     stake,
			Token:     token,
			Status:    core.StatusWaitingForPlayer,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.State.SetGame(g); err != nil {
			return err
		}
		return e.State.AddActiveGame(id)
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("game %d created by %s, stake %d %s", g.ID, creator, stake, token)
	return g, nil
}

// JoinGame seats player as the opponent and escrows the matching stake.
func (e *Engine) JoinGame(id uint64, player, token string) (*core.Game, error) {
	g, err := e.GetGame(id)
	if err != nil {
		return nil, err
	}
	if g.Status != core.StatusWaitingForPlayer {
		return nil, fmt.Errorf("%w: game %d is %s", core.ErrInvalidState, id, g.Status)
	}
	if g.HasOpponent() {
		return nil, fmt.Errorf("%w: game %d already has two players", core.ErrInvalidState, id)
	}
	if player == g.PlayerOne {
		return nil, fmt.Errorf("%w: game %d", core.ErrSelfPlay, id)
	}
	if err := e.requireRegistered(player); err != nil {
		return nil, err
	}
	if err := checkToken(g, token); err != nil {
		return nil, err
	}

	err = e.atomic(func() error {
		if err := transfer(e.Ledger, g.Token, player, core.EscrowAddress, g.Stake); err != nil {
			return fmt.Errorf("escrow stake: %w", err)
		}
		g.PlayerTwo = player
		g.UpdatedAt = e.now()
		return e.State.SetGame(g)
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("game %d joined by %s", id, player)
	return g, nil
}

// CommitMove stores player's commitment. The game moves to MovesCommitted
// once both seats have committed.
func (e *Engine) CommitMove(id uint64, player string, c core.Commitment) (*core.Game, error) {
	g, err := e.GetGame(id)
	if err != nil {
		return nil, err
	}
	if !g.HasOpponent() {
		return nil, fmt.Errorf("%w: game %d has no opponent yet", core.ErrInvalidState, id)
	}
	seat, err := g.ParticipantOf(player)
	if err != nil {
		return nil, err
	}
	if g.CommitmentOf(seat) != nil {
		return nil, fmt.Errorf("%w: %s in game %d", core.ErrAlreadyCommitted, seat, id)
	}
	if g.Status != core.StatusWaitingForPlayer {
		return nil, fmt.Errorf("%w: game %d is %s", core.ErrInvalidState, id, g.Status)
	}
	if c.IsZero() {
		return nil, fmt.Errorf("%w: zero digest", core.ErrInvalidCommitment)
	}

	g.SetCommitment(seat, c)
	if g.BothCommitted() {
		g.Status = core.StatusMovesCommitted
	}
	g.UpdatedAt = e.now()
	if err := e.atomic(func() error { return e.State.SetGame(g) }); err != nil {
		return nil, err
	}
	log.Debugf("game %d: %s committed", id, seat)
	return g, nil
}

// RevealMove opens player's commitment. The move is stored only if
// (move, salt) hashes to exactly the committed digest.
func (e *Engine) RevealMove(id uint64, player string, move core.Move, salt core.Salt) (*core.Game, error) {
	g, err := e.GetGame(id)
	if err != nil {
		return nil, err
	}
	if g.Status != core.StatusMovesCommitted {
		return nil, fmt.Errorf("%w: game %d is %s", core.ErrInvalidState, id, g.Status)
	}
	if !move.Valid() {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidMove, uint32(move))
	}
	seat, err := g.ParticipantOf(player)
	if err != nil {
		return nil, err
	}
	c := g.CommitmentOf(seat)
	if c == nil {
		return nil, fmt.Errorf("%w: %s in game %d", core.ErrMissingCommitment, seat, id)
	}
	if g.MoveOf(seat) != core.MoveNone {
		return nil, fmt.Errorf("%w: %s in game %d", core.ErrAlreadyRevealed, seat, id)
	}
	codec := e.Codec
	if codec == nil {
		codec = crypto.NewCommitter(nil)
	}
	if !codec.Verify(uint32(move), salt, *c) {
		return nil, fmt.Errorf("%w: %s in game %d", core.ErrCommitmentMismatch, seat, id)
	}

	g.SetMove(seat, move)
	g.UpdatedAt = e.now()
	if err := e.atomic(func() error { return e.State.SetGame(g) }); err != nil {
		return nil, err
	}
	log.Debugf("game %d: %s revealed %s", id, seat, move)
	return g, nil
}

// FinalizeGame resolves a fully revealed game, pays out the escrow and
// records the result. Anyone may trigger it. The Completed status makes a
// second call fail with ErrInvalidState, so settlement happens once.
func (e *Engine) FinalizeGame(id uint64, token string) (*core.Game, *Settlement, error) {
	g, err := e.GetGame(id)
	if err != nil {
		return nil, nil, err
	}
	if g.Status != core.StatusMovesCommitted {
		return nil, nil, fmt.Errorf("%w: game %d is %s", core.ErrInvalidState, id, g.Status)
	}
	if !g.BothRevealed() {
		return nil, nil, fmt.Errorf("%w: game %d", core.ErrIncompleteReveal, id)
	}
	if err := checkToken(g, token); err != nil {
		return nil, nil, err
	}

	outcome := Resolve(g.P1Move, g.P2Move)
	plan, err := PlanSettlement(g, outcome)
	if err != nil {
		return nil, nil, err
	}

	err = e.atomic(func() error {
		if err := plan.apply(e.State, e.Ledger); err != nil {
			return fmt.Errorf("settle game %d: %w", id, err)
		}
		now := e.now()
		g.Winner = plan.Winner
		g.Status = core.StatusCompleted
		g.UpdatedAt = now
		g.FinalizedAt = now
		if err := e.State.SetGame(g); err != nil {
			return err
		}
		return e.State.RemoveActiveGame(id)
	})
	if err != nil {
		return nil, nil, err
	}
	log.Infof("game %d finalized: %s (%s vs %s), paid %d %s",
		id, outcome, g.P1Move, g.P2Move, plan.Total(), plan.Token)
	return g, plan, nil
}
