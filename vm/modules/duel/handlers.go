package duel

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/vm"
	"github.com/tolelom/duelchain/vm/modules/economy"
)

func init() {
	vm.Register(core.TxRegisterPlayer, handleRegisterPlayer)
	vm.Register(core.TxCreateGame, handleCreateGame)
	vm.Register(core.TxJoinGame, handleJoinGame)
	vm.Register(core.TxCommitMove, handleCommitMove)
	vm.Register(core.TxRevealMove, handleRevealMove)
	vm.Register(core.TxFinalizeGame, handleFinalizeGame)
}

// NewEngine builds an Engine over the transaction's state, paying through
// the economy ledger and stamping records with the block time.
func NewEngine(ctx *vm.Context) *Engine {
	return &Engine{
		State:  ctx.State,
		Ledger: economy.NewLedger(ctx.State),
		Codec:  ctx.Committer,
		Now:    ctx.Now,
	}
}

// FinalizeResult is the receipt result of finalize_game.
type FinalizeResult struct {
	Game       *core.Game  `json:"game"`
	Settlement *Settlement `json:"settlement"`
}

func decode(payload json.RawMessage, v any, typ core.TxType) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", typ, err)
	}
	return nil
}

func handleRegisterPlayer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RegisterPlayerPayload
	if err := decode(payload, &p, core.TxRegisterPlayer); err != nil {
		return err
	}
	pl, created, err := NewEngine(ctx).RegisterPlayer(ctx.Tx.From)
	if err != nil {
		return err
	}
	if created {
		ctx.Emit(events.EventPlayerRegistered, map[string]any{"address": pl.Address})
	}
	return ctx.SetResult(pl)
}

func handleCreateGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CreateGamePayload
	if err := decode(payload, &p, core.TxCreateGame); err != nil {
		return err
	}
	g, err := NewEngine(ctx).CreateGame(ctx.Tx.From, p.Stake, p.Token)
	if err != nil {
		return err
	}
	ctx.Emit(events.EventGameCreated, map[string]any{
		"game_id": g.ID,
		"player":  g.PlayerOne,
		"stake":   g.Stake,
		"token":   g.Token,
	})
	return ctx.SetResult(g)
}

func handleJoinGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.JoinGamePayload
	if err := decode(payload, &p, core.TxJoinGame); err != nil {
		return err
	}
	g, err := NewEngine(ctx).JoinGame(p.GameID, ctx.Tx.From, p.Token)
	if err != nil {
		return err
	}
	ctx.Emit(events.EventGameJoined, map[string]any{
		"game_id": g.ID,
		"player":  g.PlayerTwo,
	})
	return ctx.SetResult(g)
}

func handleCommitMove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CommitMovePayload
	if err := decode(payload, &p, core.TxCommitMove); err != nil {
		return err
	}
	g, err := NewEngine(ctx).CommitMove(p.GameID, ctx.Tx.From, p.Commitment)
	if err != nil {
		return err
	}
	ctx.Emit(events.EventMoveCommitted, map[string]any{
		"game_id": g.ID,
		"player":  ctx.Tx.From,
		"status":  string(g.Status),
	})
	return ctx.SetResult(g)
}

func handleRevealMove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RevealMovePayload
	if err := decode(payload, &p, core.TxRevealMove); err != nil {
		return err
	}
	g, err := NewEngine(ctx).RevealMove(p.GameID, ctx.Tx.From, p.Move, p.Salt)
	if err != nil {
		return err
	}
	ctx.Emit(events.EventMoveRevealed, map[string]any{
		"game_id": g.ID,
		"player":  ctx.Tx.From,
		"move":    p.Move.String(),
	})
	return ctx.SetResult(g)
}

func handleFinalizeGame(ctx *vm.Context, payload json.RawMessage) error {
	var p core.FinalizeGamePayload
	if err := decode(payload, &p, core.TxFinalizeGame); err != nil {
		return err
	}
	g, plan, err := NewEngine(ctx).FinalizeGame(p.GameID, p.Token)
	if err != nil {
		return err
	}
	ctx.Emit(events.EventGameFinalized, map[string]any{
		"game_id":    g.ID,
		"outcome":    plan.Outcome.String(),
		"winner":     g.Winner,
		"player_one": g.PlayerOne,
		"player_two": g.PlayerTwo,
		"p1_move":    g.P1Move.String(),
		"p2_move":    g.P2Move.String(),
		"token":      plan.Token,
		"payouts":    plan.Payouts,
	})
	for _, po := range plan.Payouts {
		ctx.Emit(events.EventTokenTransfer, map[string]any{
			"from":   core.EscrowAddress,
			"to":     po.To,
			"amount": po.Amount,
			"token":  plan.Token,
		})
	}
	return ctx.SetResult(FinalizeResult{Game: g, Settlement: plan})
}
