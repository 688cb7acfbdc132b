package vm

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/events"
)

// Context is passed to every Handler and provides access to the chain state,
// the current block, the triggering transaction and the commitment scheme.
//
// Events raised through Emit are buffered and only published once the
// transaction has applied successfully.
type Context struct {
	State     core.State
	Block     *core.Block
	Tx        *core.Transaction
	Committer *crypto.Committer

	pending []events.Event
	result  json.RawMessage
}

// Emit queues an event for the running transaction.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	ev := events.Event{Type: typ, Data: data}
	if c.Tx != nil {
		ev.TxID = c.Tx.ID
	}
	if c.Block != nil {
		ev.BlockHeight = c.Block.Header.Height
	}
	c.pending = append(c.pending, ev)
}

// SetResult records v as the transaction's result. The last call wins.
func (c *Context) SetResult(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	c.result = data
	return nil
}

// Now returns the block timestamp used to stamp records.
func (c *Context) Now() int64 {
	if c.Block == nil {
		return 0
	}
	return c.Block.Header.Timestamp
}

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	state     core.State
	emitter   *events.Emitter
	committer *crypto.Committer
}

// NewExecutor creates an Executor. A nil committer selects SHA-256
// commitments.
func NewExecutor(state core.State, emitter *events.Emitter, committer *crypto.Committer) *Executor {
	if committer == nil {
		committer = crypto.NewCommitter(nil)
	}
	return &Executor{state: state, emitter: emitter, committer: committer}
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback
// and returns the handler's result, if any. On failure the state is exactly
// as it was before the call and no events are published.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) (json.RawMessage, error) {
	if err := tx.Verify(); err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	ctx := &Context{
		State:     e.state,
		Block:     block,
		Tx:        tx,
		Committer: e.committer,
	}
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return nil, fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		log.Debugf("tx %s (%s) failed: %v", tx.ID, tx.Type, err)
		return nil, err
	}
	if err := e.state.DiscardSnapshot(snapID); err != nil {
		return nil, fmt.Errorf("discard snapshot: %w", err)
	}

	if e.emitter != nil {
		for _, ev := range ctx.pending {
			e.emitter.Emit(ev)
		}
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
		})
	}
	return ctx.result, nil
}

// applyTx deducts the fee, increments the nonce, then dispatches to the handler.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("insufficient balance for fee: have %d need %d", acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	return globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
