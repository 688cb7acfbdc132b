// Package economy moves token balances between accounts. It backs the
// transfer transaction and the escrow movements of the duel module.
package economy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/vm"
)

// ErrInsufficientBalance is wrapped into transfer failures caused by a
// short debit account.
var ErrInsufficientBalance = errors.New("insufficient balance")

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

// Ledger applies balance transfers directly to chain state.
type Ledger struct {
	State core.State
}

// NewLedger returns a Ledger over state.
func NewLedger(state core.State) *Ledger {
	return &Ledger{State: state}
}

// Balance returns addr's holdings of token.
func (l *Ledger) Balance(token, addr string) (uint64, error) {
	acc, err := l.State.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.BalanceOf(core.NormalizeToken(token)), nil
}

// Transfer moves amount of token from one account to another. Every failure
// wraps core.ErrTransferFailed. A zero amount is a no-op.
func (l *Ledger) Transfer(token, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	token = core.NormalizeToken(token)
	if from == "" || to == "" {
		return fmt.Errorf("%w: empty account address", core.ErrTransferFailed)
	}

	sender, err := l.State.GetAccount(from)
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", core.ErrTransferFailed, from, err)
	}
	have := sender.BalanceOf(token)
	if have < amount {
		return fmt.Errorf("%w: %w: %s has %d %s, needs %d",
			core.ErrTransferFailed, ErrInsufficientBalance, from, have, token, amount)
	}
	if from == to {
		return nil
	}
	sender.SetBalanceOf(token, have-amount)
	if err := l.State.SetAccount(sender); err != nil {
		return fmt.Errorf("%w: store %s: %v", core.ErrTransferFailed, from, err)
	}

	recipient, err := l.State.GetAccount(to)
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", core.ErrTransferFailed, to, err)
	}
	held := recipient.BalanceOf(token)
	if held > math.MaxUint64-amount {
		return fmt.Errorf("%w: balance overflow for %s", core.ErrTransferFailed, to)
	}
	recipient.SetBalanceOf(token, held+amount)
	if err := l.State.SetAccount(recipient); err != nil {
		return fmt.Errorf("%w: store %s: %v", core.ErrTransferFailed, to, err)
	}
	return nil
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if p.To == "" {
		return errors.New("transfer to address required")
	}
	if p.To == core.EscrowAddress {
		return errors.New("cannot transfer into the escrow account")
	}

	token := core.NormalizeToken(p.Token)
	if err := NewLedger(ctx.State).Transfer(token, ctx.Tx.From, p.To, p.Amount); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": p.Amount,
		"token":  token,
	})
	return nil
}
