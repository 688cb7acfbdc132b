package vm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/internal/testutil"
	"github.com/tolelom/duelchain/storage"
	"github.com/tolelom/duelchain/wallet"
)

const (
	txSeat   core.TxType = "test_seat"
	txBroken core.TxType = "test_broken"
)

var errBroken = errors.New("broken handler")

// Both handlers seat the sender as a player and emit; the broken one then
// fails.
func init() {
	Register(txSeat, func(ctx *Context, _ json.RawMessage) error {
		p := &core.Player{Address: ctx.Tx.From, RegisteredAt: ctx.Now()}
		if err := ctx.State.SetPlayer(p); err != nil {
			return err
		}
		ctx.Emit(events.EventPlayerRegistered, map[string]any{"address": p.Address})
		return ctx.SetResult(p)
	})
	Register(txBroken, func(ctx *Context, _ json.RawMessage) error {
		if err := ctx.State.SetPlayer(&core.Player{Address: ctx.Tx.From}); err != nil {
			return err
		}
		ctx.Emit(events.EventPlayerRegistered, map[string]any{"address": ctx.Tx.From})
		return errBroken
	})
}

type execFixture struct {
	state *storage.StateDB
	exec  *Executor
	w     *wallet.Wallet
	block *core.Block
	seen  []events.Event
}

func newExecFixture(t *testing.T, balance uint64) *execFixture {
	t.Helper()
	f := &execFixture{state: testutil.NewStateDB()}
	em := events.NewEmitter()
	em.SubscribeAll(func(ev events.Event) { f.seen = append(f.seen, ev) })
	f.exec = NewExecutor(f.state, em, nil)

	var err error
	f.w, err = wallet.Generate("t")
	require.NoError(t, err)
	require.NoError(t, f.state.SetAccount(&core.Account{Address: f.w.PubKey(), Balance: balance}))
	f.block = core.NewBlock(3, "prev", f.w.PubKey())
	return f
}

func (f *execFixture) account(t *testing.T) *core.Account {
	t.Helper()
	acc, err := f.state.GetAccount(f.w.PubKey())
	require.NoError(t, err)
	return acc
}

func TestExecuteTxChecksNonceAndFee(t *testing.T) {
	f := newExecFixture(t, 5)

	early, err := f.w.NewTx(txSeat, 1, 0, nil)
	require.NoError(t, err)
	_, err = f.exec.ExecuteTx(f.block, early)
	assert.ErrorContains(t, err, "invalid nonce")

	costly, err := f.w.NewTx(txSeat, 0, 6, nil)
	require.NoError(t, err)
	_, err = f.exec.ExecuteTx(f.block, costly)
	assert.ErrorContains(t, err, "insufficient balance for fee")

	acc := f.account(t)
	assert.Equal(t, uint64(0), acc.Nonce)
	assert.Equal(t, uint64(5), acc.Balance)
	assert.Empty(t, f.seen)

	ok, err := f.w.NewTx(txSeat, 0, 5, nil)
	require.NoError(t, err)
	result, err := f.exec.ExecuteTx(f.block, ok)
	require.NoError(t, err)
	acc = f.account(t)
	assert.Equal(t, uint64(1), acc.Nonce)
	assert.Zero(t, acc.Balance, "fee is burned")

	var p core.Player
	require.NoError(t, json.Unmarshal(result, &p))
	assert.Equal(t, f.w.PubKey(), p.Address)
	assert.Equal(t, f.block.Header.Timestamp, p.RegisteredAt)
}

func TestExecuteTxRevertsFailedHandler(t *testing.T) {
	f := newExecFixture(t, 10)

	tx, err := f.w.NewTx(txBroken, 0, 4, nil)
	require.NoError(t, err)
	result, err := f.exec.ExecuteTx(f.block, tx)
	require.ErrorIs(t, err, errBroken)
	assert.Nil(t, result)

	registered, err := f.state.HasPlayer(f.w.PubKey())
	require.NoError(t, err)
	assert.False(t, registered, "handler write is rolled back")
	acc := f.account(t)
	assert.Equal(t, uint64(0), acc.Nonce)
	assert.Equal(t, uint64(10), acc.Balance, "fee is refunded with the revert")
	assert.Empty(t, f.seen, "events of a failed tx are never published")

	unknown, err := f.w.NewTx("no_such_type", 0, 0, nil)
	require.NoError(t, err)
	_, err = f.exec.ExecuteTx(f.block, unknown)
	assert.ErrorContains(t, err, "no handler registered")
}

func TestExecuteTxPublishesBufferedEvents(t *testing.T) {
	f := newExecFixture(t, 0)

	tx, err := f.w.NewTx(txSeat, 0, 0, nil)
	require.NoError(t, err)
	_, err = f.exec.ExecuteTx(f.block, tx)
	require.NoError(t, err)

	require.Len(t, f.seen, 2)
	assert.Equal(t, events.EventPlayerRegistered, f.seen[0].Type)
	assert.Equal(t, events.EventTxExecuted, f.seen[1].Type)
	for _, ev := range f.seen {
		assert.Equal(t, tx.ID, ev.TxID)
		assert.Equal(t, int64(3), ev.BlockHeight)
	}
}

func TestExecuteTxRejectsBadSignature(t *testing.T) {
	f := newExecFixture(t, 0)
	tx, err := f.w.NewTx(txSeat, 0, 0, nil)
	require.NoError(t, err)
	tx.Nonce = 7

	_, err = f.exec.ExecuteTx(f.block, tx)
	assert.ErrorContains(t, err, "signature")
	assert.Empty(t, f.seen)
}

// A successful tx closes its own snapshot, so an enclosing block snapshot
// still rewinds it.
func TestExecuteTxInsideBlockSnapshot(t *testing.T) {
	f := newExecFixture(t, 0)
	blockSnap, err := f.state.Snapshot()
	require.NoError(t, err)

	tx, err := f.w.NewTx(txSeat, 0, 0, nil)
	require.NoError(t, err)
	_, err = f.exec.ExecuteTx(f.block, tx)
	require.NoError(t, err)
	registered, err := f.state.HasPlayer(f.w.PubKey())
	require.NoError(t, err)
	require.True(t, registered)

	require.NoError(t, f.state.RevertToSnapshot(blockSnap))
	registered, err = f.state.HasPlayer(f.w.PubKey())
	require.NoError(t, err)
	assert.False(t, registered)
	assert.Equal(t, uint64(0), f.account(t).Nonce)
}
