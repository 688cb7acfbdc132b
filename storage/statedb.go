package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
)

// registerPrefix records a state-key prefix so that ComputeRoot covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixPlayer  = registerPrefix("plyr:")
	prefixGame    = registerPrefix("game:")
	prefixMeta    = registerPrefix("meta:")
)

// Receipts are not consensus state, so their prefix is not registered.
const prefixReceipt = "rcpt:"

var (
	keyGameCounter = prefixMeta + "game_counter"
	keyActiveGames = prefixMeta + "active_games"
)

func gameKey(id uint64) string {
	return fmt.Sprintf("%s%020d", prefixGame, id)
}

// journalEntry records what a buffered key held before a write, so
// snapshots can be undone without copying the buffer.
type journalEntry struct {
	key        string
	prev       []byte
	hadPrev    bool
	wasDeleted bool
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer, snapshot/rollback and deterministic state-root computation.
//
// The block producer is the only writer. RPC readers may call it
// concurrently and can observe writes of the block being produced.
type StateDB struct {
	db DB

	mu        sync.RWMutex
	dirty     map[string][]byte
	deleted   map[string]bool
	journal   []journalEntry
	snapshots []int // journal length at each open snapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- raw get / set / has ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	if s.deleted[key] {
		s.mu.RUnlock()
		return nil, core.ErrNotFound
	}
	v, ok := s.dirty[key]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) > 0 {
		prev, had := s.dirty[key]
		s.journal = append(s.journal, journalEntry{
			key:        key,
			prev:       prev,
			hadPrev:    had,
			wasDeleted: s.deleted[key],
		})
	}
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) has(key string) (bool, error) {
	_, err := s.get(key)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.set(key, data)
	return nil
}

// ---- Account ----

// GetAccount returns a zero-value account for unknown addresses.
func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Player ----

func (s *StateDB) GetPlayer(address string) (*core.Player, error) {
	var p core.Player
	if err := s.getJSON(prefixPlayer+address, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetPlayer(p *core.Player) error {
	return s.setJSON(prefixPlayer+p.Address, p)
}

func (s *StateDB) HasPlayer(address string) (bool, error) {
	return s.has(prefixPlayer + address)
}

// ---- Game ----

func (s *StateDB) GetGame(id uint64) (*core.Game, error) {
	var g core.Game
	if err := s.getJSON(gameKey(id), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *StateDB) SetGame(g *core.Game) error {
	if g.ID == 0 {
		return errors.New("game id must be assigned before storing")
	}
	return s.setJSON(gameKey(g.ID), g)
}

// NextGameID reads the counter (absent means 1), stores counter+1 and
// returns the value read. The write goes through the same buffer as the
// game record, so a reverted snapshot also rewinds the counter.
func (s *StateDB) NextGameID() (uint64, error) {
	next := uint64(1)
	data, err := s.get(keyGameCounter)
	switch {
	case errors.Is(err, core.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		next, err = strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("decode game counter: %w", err)
		}
	}
	s.set(keyGameCounter, []byte(strconv.FormatUint(next+1, 10)))
	return next, nil
}

// ActiveGames returns the ids of games that are not completed, ascending.
func (s *StateDB) ActiveGames() ([]uint64, error) {
	var ids []uint64
	err := s.getJSON(keyActiveGames, &ids)
	if errors.Is(err, core.ErrNotFound) {
		return []uint64{}, nil
	}
	return ids, err
}

func (s *StateDB) AddActiveGame(id uint64) error {
	ids, err := s.ActiveGames()
	if err != nil {
		return err
	}
	i, found := slices.BinarySearch(ids, id)
	if found {
		return nil
	}
	ids = slices.Insert(ids, i, id)
	return s.setJSON(keyActiveGames, ids)
}

func (s *StateDB) RemoveActiveGame(id uint64) error {
	ids, err := s.ActiveGames()
	if err != nil {
		return err
	}
	i, found := slices.BinarySearch(ids, id)
	if !found {
		return nil
	}
	ids = slices.Delete(ids, i, i+1)
	return s.setJSON(keyActiveGames, ids)
}

// ---- Receipt ----

func (s *StateDB) GetReceipt(txID string) (*core.Receipt, error) {
	var r core.Receipt
	if err := s.getJSON(prefixReceipt+txID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *StateDB) SetReceipt(r *core.Receipt) error {
	return s.setJSON(prefixReceipt+r.TxID, r)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot marks the current write buffer and returns a snapshot ID. Writes
// made while any snapshot is open are journaled.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, len(s.journal))
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot undoes every write made since snapshot id and discards it
// and every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	mark := s.snapshots[id]
	for i := len(s.journal) - 1; i >= mark; i-- {
		e := s.journal[i]
		if e.hadPrev {
			s.dirty[e.key] = e.prev
		} else {
			delete(s.dirty, e.key)
		}
		if e.wasDeleted {
			s.deleted[e.key] = true
		}
	}
	s.journal = s.journal[:mark]
	s.snapshots = s.snapshots[:id]
	return nil
}

// DiscardSnapshot closes snapshot id and every later snapshot, keeping their
// writes. An enclosing snapshot can still revert them.
func (s *StateDB) DiscardSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	s.snapshots = s.snapshots[:id]
	if len(s.snapshots) == 0 {
		s.journal = nil
	}
	return nil
}

// ComputeRoot hashes the complete world state: persisted entries under the
// registered prefixes merged with the write buffer, sorted by key and
// length-prefix encoded. It does not flush anything.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[string(it.Key())] = v
		}
		if err := it.Error(); err != nil {
			log.Errorf("state root: iterate %q: %v", prefix, err)
		}
		it.Release()
	}
	for k, v := range s.dirty {
		if isStateKey(k) {
			merged[k] = v
		}
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

func isStateKey(k string) bool {
	for _, p := range statePrefixes {
		if len(k) >= len(p) && k[:len(p)] == p {
			return true
		}
	}
	return false
}

// Commit flushes the write buffer to the DB in one batch and clears it.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("flush state (%d writes): %w", len(s.dirty)+len(s.deleted), err)
	}
	log.Tracef("flushed %d writes, %d deletes", len(s.dirty), len(s.deleted))
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.journal = nil
	s.snapshots = nil
	return nil
}
