// Package consensus implements single-authority block production. The node
// holding the authority key is the only writer: it drains the mempool,
// executes each transaction in isolation and seals the successful ones into
// a signed block.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/tolelom/duelchain/config"
	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/vm"
)

var log = slog.Disabled

// UseLogger sets the package logger.
func UseLogger(l slog.Logger) {
	log = l
}

const defaultMaxBlockTxs = 500

// ErrStateCommit means a block was stored but its state could not be
// flushed. The node must stop.
var ErrStateCommit = errors.New("state commit failed after block was stored")

// Producer builds blocks for the local authority.
type Producer struct {
	bc          *core.Blockchain
	state       core.State
	mempool     *core.Mempool
	exec        *vm.Executor
	emitter     *events.Emitter
	privKey     crypto.PrivateKey
	pubKey      crypto.PublicKey
	maxBlockTxs int
}

// New creates a Producer signing with privKey. maxBlockTxs <= 0 selects 500.
func New(
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	maxBlockTxs int,
) *Producer {
	if maxBlockTxs <= 0 {
		maxBlockTxs = defaultMaxBlockTxs
	}
	return &Producer{
		bc:          bc,
		state:       state,
		mempool:     mempool,
		exec:        exec,
		emitter:     emitter,
		privKey:     privKey,
		pubKey:      privKey.Public(),
		maxBlockTxs: maxBlockTxs,
	}
}

// ProduceBlock executes pending transactions and commits the next block.
// Each transaction gets a receipt; failed ones are left out of the block and
// dropped from the mempool. It returns (nil, nil) when the mempool is empty.
func (p *Producer) ProduceBlock() (*core.Block, error) {
	txs := p.mempool.Pending(p.maxBlockTxs)
	if len(txs) == 0 {
		return nil, nil
	}

	tip := p.bc.Tip()
	prevHash, height := config.GenesisHash, int64(1)
	if tip != nil {
		prevHash, height = tip.Hash, tip.Header.Height+1
	}
	block := core.NewBlock(height, prevHash, p.pubKey.Hex())

	blockSnap, err := p.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	included := make([]*core.Transaction, 0, len(txs))
	var failed []*core.Receipt
	for _, tx := range txs {
		r := &core.Receipt{TxID: tx.ID, Type: tx.Type, From: tx.From, BlockHeight: height}
		if result, err := p.exec.ExecuteTx(block, tx); err != nil {
			r.Error = err.Error()
			failed = append(failed, r)
		} else {
			r.Success = true
			r.Result = result
			included = append(included, tx)
		}
		if err := p.state.SetReceipt(r); err != nil {
			_ = p.state.RevertToSnapshot(blockSnap)
			return nil, fmt.Errorf("store receipt %s: %w", tx.ID, err)
		}
	}

	// Compute root from the write buffer before flushing so that if AddBlock
	// fails nothing has been persisted yet.
	block.Seal(included, p.state.ComputeRoot(), p.privKey)

	if err := p.bc.AddBlock(block); err != nil {
		if rerr := p.state.RevertToSnapshot(blockSnap); rerr != nil {
			return nil, fmt.Errorf("add block: %w (revert: %v)", err, rerr)
		}
		return nil, fmt.Errorf("add block: %w", err)
	}
	if err := p.state.Commit(); err != nil {
		log.Criticalf("block %d stored but state commit failed: %v", height, err)
		return nil, fmt.Errorf("%w: block %d: %v", ErrStateCommit, height, err)
	}

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	p.mempool.Remove(ids)

	for _, r := range failed {
		p.emitter.Emit(events.Event{
			Type:        events.EventTxFailed,
			TxID:        r.TxID,
			BlockHeight: height,
			Data:        map[string]any{"type": string(r.Type), "from": r.From, "error": r.Error},
		})
	}
	p.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(included), "failed": len(failed)},
	})
	log.Infof("block %d committed: %d txs, %d failed", height, len(included), len(failed))
	return block, nil
}

// Run produces a block every interval until ctx is done. It returns early
// only when the node can no longer make progress safely.
func (p *Producer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.ProduceBlock(); err != nil {
				if errors.Is(err, ErrStateCommit) {
					return err
				}
				log.Errorf("produce block: %v", err)
			}
		}
	}
}
