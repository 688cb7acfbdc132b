package core

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Move is a duel move. The zero value means "not revealed"; 1..3 are the
// wire encoding used when revealing.
type Move uint32

const (
	MoveNone    Move = 0
	MoveAttack  Move = 1
	MoveDefense Move = 2
	MoveMagic   Move = 3
)

// Valid reports whether m is one of Attack, Defense, Magic.
func (m Move) Valid() bool {
	return m >= MoveAttack && m <= MoveMagic
}

// Beats reports whether m wins against other under the cyclic rule
// Attack > Defense > Magic > Attack.
func (m Move) Beats(other Move) bool {
	switch m {
	case MoveAttack:
		return other == MoveDefense
	case MoveDefense:
		return other == MoveMagic
	case MoveMagic:
		return other == MoveAttack
	}
	return false
}

func (m Move) String() string {
	switch m {
	case MoveNone:
		return "none"
	case MoveAttack:
		return "attack"
	case MoveDefense:
		return "defense"
	case MoveMagic:
		return "magic"
	}
	return "move(" + strconv.FormatUint(uint64(m), 10) + ")"
}

// ParseMove accepts a move name or its numeric wire value.
func ParseMove(s string) (Move, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "attack", "1":
		return MoveAttack, nil
	case "defense", "2":
		return MoveDefense, nil
	case "magic", "3":
		return MoveMagic, nil
	}
	return MoveNone, fmt.Errorf("%w: %q", ErrInvalidMove, s)
}

// Commitment is a hiding digest of (move, salt). Its JSON form is hex.
type Commitment [32]byte

// Salt is the secret mixed into a commitment. Its JSON form is hex.
type Salt [32]byte

// IsZero reports whether every byte of c is zero. Zero digests are rejected
// at commit time.
func (c Commitment) IsZero() bool { return c == Commitment{} }

func (c Commitment) Hex() string { return hex.EncodeToString(c[:]) }
func (s Salt) Hex() string { return hex.EncodeToString(s[:]) }

func (c Commitment) MarshalText() ([]byte, error) { return []byte(c.Hex()), nil }
func (s Salt) MarshalText() ([]byte, error) { return []byte(s.Hex()), nil }

func (c *Commitment) UnmarshalText(b []byte) error { return decodeFixed32(c[:], string(b), "commitment") }
func (s *Salt) UnmarshalText(b []byte) error { return decodeFixed32(s[:], string(b), "salt") }

// ParseCommitment decodes a 64-char hex commitment.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	err := decodeFixed32(c[:], s, "commitment")
	return c, err
}

// ParseSalt decodes a 64-char hex salt.
func ParseSalt(s string) (Salt, error) {
	var out Salt
	err := decodeFixed32(out[:], s, "salt")
	return out, err
}

func decodeFixed32(dst []byte, s, what string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid %s hex: %w", what, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("%s must be 32 bytes, got %d", what, len(b))
	}
	copy(dst, b)
	return nil
}

// GameStatus is the lifecycle position of a game. Transitions are forward only.
type GameStatus string

const (
	StatusWaitingForPlayer GameStatus = "waiting_for_player"
	StatusMovesCommitted   GameStatus = "moves_committed"
	StatusCompleted        GameStatus = "completed"
)

// Participant identifies which seat of a game an address occupies.
type Participant int

const (
	PlayerOne Participant = iota + 1
	PlayerTwo
)

func (p Participant) String() string {
	switch p {
	case PlayerOne:
		return "player_one"
	case PlayerTwo:
		return "player_two"
	}
	return "participant(" + strconv.Itoa(int(p)) + ")"
}

// Outcome is the resolved result of a game.
type Outcome int

const (
	OutcomeDraw Outcome = iota
	OutcomePlayer1Wins
	OutcomePlayer2Wins
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDraw:
		return "draw"
	case OutcomePlayer1Wins:
		return "player1_wins"
	case OutcomePlayer2Wins:
		return "player2_wins"
	}
	return "outcome(" + strconv.Itoa(int(o)) + ")"
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	for _, c := range []Outcome{OutcomeDraw, OutcomePlayer1Wins, OutcomePlayer2Wins} {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// Game is the aggregate root of one duel.
//
// A nil commitment means the seat has not committed yet. Winner is empty both
// before finalize and after a draw; Status tells the two apart.
type Game struct {
	ID           uint64      `json:"id"`
	PlayerOne    string      `json:"player_one"`
	PlayerTwo    string      `json:"player_two,omitempty"`
	Stake        uint64      `json:"stake"`
	Token        string      `json:"token"`
	Status       GameStatus  `json:"status"`
	P1Commitment *Commitment `json:"p1_commitment,omitempty"`
	P2Commitment *Commitment `json:"p2_commitment,omitempty"`
	P1Move       Move        `json:"p1_move"`
	P2Move       Move        `json:"p2_move"`
	Winner       string      `json:"winner,omitempty"`
	CreatedAt    int64       `json:"created_at"`
	UpdatedAt    int64       `json:"updated_at"`
	FinalizedAt  int64       `json:"finalized_at,omitempty"`
}

// HasOpponent reports whether a second player has joined.
func (g *Game) HasOpponent() bool { return g.PlayerTwo != "" }

// IsDraw reports whether the game completed without a winner.
func (g *Game) IsDraw() bool { return g.Status == StatusCompleted && g.Winner == "" }

// ParticipantOf maps addr to its seat, or returns ErrNotAParticipant.
func (g *Game) ParticipantOf(addr string) (Participant, error) {
	switch {
	case addr != "" && addr == g.PlayerOne:
		return PlayerOne, nil
	case addr != "" && addr == g.PlayerTwo:
		return PlayerTwo, nil
	default:
		return 0, fmt.Errorf("%w: %s in game %d", ErrNotAParticipant, addr, g.ID)
	}
}

// Address returns the address seated at p.
func (g *Game) Address(p Participant) string {
	switch p {
	case PlayerOne:
		return g.PlayerOne
	case PlayerTwo:
		return g.PlayerTwo
	}
	panic("core: unknown participant " + p.String())
}

// CommitmentOf returns the stored commitment for p, or nil.
func (g *Game) CommitmentOf(p Participant) *Commitment {
	switch p {
	case PlayerOne:
		return g.P1Commitment
	case PlayerTwo:
		return g.P2Commitment
	}
	panic("core: unknown participant " + p.String())
}

// SetCommitment stores a copy of c in p's slot.
func (g *Game) SetCommitment(p Participant, c Commitment) {
	switch p {
	case PlayerOne:
		g.P1Commitment = &c
	case PlayerTwo:
		g.P2Commitment = &c
	default:
		panic("core: unknown participant " + p.String())
	}
}

// MoveOf returns the revealed move for p (MoveNone if not revealed).
func (g *Game) MoveOf(p Participant) Move {
	switch p {
	case PlayerOne:
		return g.P1Move
	case PlayerTwo:
		return g.P2Move
	}
	panic("core: unknown participant " + p.String())
}

// SetMove records p's revealed move.
func (g *Game) SetMove(p Participant, m Move) {
	switch p {
	case PlayerOne:
		g.P1Move = m
	case PlayerTwo:
		g.P2Move = m
	default:
		panic("core: unknown participant " + p.String())
	}
}

// BothCommitted reports whether both seats hold a commitment.
func (g *Game) BothCommitted() bool { return g.P1Commitment != nil && g.P2Commitment != nil }

// BothRevealed reports whether both seats revealed a move.
func (g *Game) BothRevealed() bool { return g.P1Move != MoveNone && g.P2Move != MoveNone }

// Player is a per-address duel record.
type Player struct {
	Address      string `json:"address"`
	Wins         uint32 `json:"wins"`
	Losses       uint32 `json:"losses"`
	Draws        uint32 `json:"draws"`
	RegisteredAt int64  `json:"registered_at"`
}
