package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	maxMempoolSize = 10_000
	maxTxAge       = int64(time.Hour)
	maxTxFuture    = int64(5 * time.Minute)
)

// Mempool errors.
var (
	ErrMempoolFull  = errors.New("mempool full")
	ErrDuplicateTx  = errors.New("tx already in pool")
	ErrTxExpired    = errors.New("transaction expired")
	ErrTxFromFuture = errors.New("transaction timestamp too far in the future")
	ErrWrongChainID = errors.New("chain id mismatch")
)

// Mempool is a thread-safe pool of signed, not yet executed transactions.
// Pending returns them in arrival order so a player's commit always runs
// before the reveal submitted after it.
type Mempool struct {
	chainID string

	mu  sync.RWMutex
	txs map[string]*Transaction
	ord []string
}

// NewMempool creates an empty mempool accepting transactions for chainID.
// An empty chainID accepts any chain.
func NewMempool(chainID string) *Mempool {
	return &Mempool{chainID: chainID, txs: make(map[string]*Transaction)}
}

// Add verifies and inserts tx. The ID is recomputed from the signed body so
// a client cannot choose it.
func (m *Mempool) Add(tx *Transaction) error {
	if m.chainID != "" && tx.ChainID != m.chainID {
		return fmt.Errorf("%w: got %q want %q", ErrWrongChainID, tx.ChainID, m.chainID)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	tx.ID = tx.Hash()

	now := time.Now().UnixNano()
	if now-tx.Timestamp > maxTxAge {
		return ErrTxExpired
	}
	if tx.Timestamp-now > maxTxFuture {
		return ErrTxFromFuture
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) >= maxMempoolSize {
		return ErrMempoolFull
	}
	if _, exists := m.txs[tx.ID]; exists {
		return ErrDuplicateTx
	}
	m.txs[tx.ID] = tx
	m.ord = append(m.ord, tx.ID)
	return nil
}

// Get returns a pending transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n transactions in arrival order.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Transaction, 0, min(n, len(m.ord)))
	for _, id := range m.ord {
		if len(out) >= n {
			break
		}
		if tx, ok := m.txs[id]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// Remove drops transactions once they have been executed or rejected.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.txs, id)
	}
	kept := m.ord[:0]
	for _, id := range m.ord {
		if _, ok := m.txs[id]; ok {
			kept = append(kept, id)
		}
	}
	m.ord = kept
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
