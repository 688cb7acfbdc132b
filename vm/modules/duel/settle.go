package duel

import (
	"fmt"
	"math"

	"github.com/tolelom/duelchain/core"
)

// Payout is one transfer out of escrow.
type Payout struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// StatDelta is the change applied to one player's record.
type StatDelta struct {
	Address string `json:"address"`
	Wins    uint32 `json:"wins,omitempty"`
	Losses  uint32 `json:"losses,omitempty"`
	Draws   uint32 `json:"draws,omitempty"`
}

// Settlement is the full effect of finalizing a game, computed before any
// funds move.
type Settlement struct {
	GameID  uint64       `json:"game_id"`
	Outcome core.Outcome `json:"outcome"`
	Token   string       `json:"token"`
	Winner  string       `json:"winner,omitempty"`
	Payouts []Payout     `json:"payouts"`
	Stats   []StatDelta  `json:"stats"`
}

// Total returns the sum paid out of escrow.
func (s *Settlement) Total() uint64 {
	var sum uint64
	for _, p := range s.Payouts {
		sum += p.Amount
	}
	return sum
}

// PlanSettlement computes payouts and stat changes for g under outcome.
// A win pays the whole pot to the winner in one transfer; a draw refunds
// each player's stake separately. Zero amounts produce no payout.
func PlanSettlement(g *core.Game, outcome core.Outcome) (*Settlement, error) {
	if !g.HasOpponent() {
		return nil, fmt.Errorf("%w: game %d has one player", core.ErrInvalidState, g.ID)
	}
	if g.Stake > math.MaxUint64/2 {
		return nil, fmt.Errorf("%w: pot of game %d overflows", core.ErrTransferFailed, g.ID)
	}
	s := &Settlement{GameID: g.ID, Outcome: outcome, Token: g.Token}

	switch outcome {
	case core.OutcomePlayer1Wins, core.OutcomePlayer2Wins:
		won, lost := core.PlayerOne, core.PlayerTwo
		if outcome == core.OutcomePlayer2Wins {
			won, lost = lost, won
		}
		winner, loser := g.Address(won), g.Address(lost)
		s.Winner = winner
		s.Payouts = appendPayout(s.Payouts, winner, 2*g.Stake)
		s.Stats = []StatDelta{
			{Address: winner, Wins: 1},
			{Address: loser, Losses: 1},
		}
	case core.OutcomeDraw:
		s.Payouts = appendPayout(s.Payouts, g.PlayerOne, g.Stake)
		s.Payouts = appendPayout(s.Payouts, g.PlayerTwo, g.Stake)
		s.Stats = []StatDelta{
			{Address: g.PlayerOne, Draws: 1},
			{Address: g.PlayerTwo, Draws: 1},
		}
	default:
		return nil, fmt.Errorf("unknown outcome %s", outcome)
	}
	return s, nil
}

func appendPayout(ps []Payout, to string, amount uint64) []Payout {
	if amount == 0 {
		return ps
	}
	return append(ps, Payout{To: to, Amount: amount})
}

// apply runs the plan: every escrow transfer first, then the stat records.
// Stats are untouched if any transfer fails; the caller reverts the
// transfers that did succeed.
func (s *Settlement) apply(state core.State, ledger Ledger) error {
	for _, p := range s.Payouts {
		if err := transfer(ledger, s.Token, core.EscrowAddress, p.To, p.Amount); err != nil {
			return fmt.Errorf("pay %d to %s: %w", p.Amount, p.To, err)
		}
	}
	for _, d := range s.Stats {
		pl, err := state.GetPlayer(d.Address)
		if err != nil {
			return fmt.Errorf("load player %s: %w", d.Address, err)
		}
		pl.Wins += d.Wins
		pl.Losses += d.Losses
		pl.Draws += d.Draws
		if err := state.SetPlayer(pl); err != nil {
			return fmt.Errorf("store player %s: %w", d.Address, err)
		}
	}
	return nil
}
