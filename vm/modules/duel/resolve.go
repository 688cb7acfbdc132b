package duel

import "github.com/tolelom/duelchain/core"

// Resolve decides a game from the two revealed moves. Equal moves draw;
// otherwise the cyclic beats relation picks the winner. Both moves must be
// valid.
func Resolve(m1, m2 core.Move) core.Outcome {
	switch {
	case m1 == m2:
		return core.OutcomeDraw
	case m1.Beats(m2):
		return core.OutcomePlayer1Wins
	default:
		return core.OutcomePlayer2Wins
	}
}
