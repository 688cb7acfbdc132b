// Package indexer maintains secondary indexes over executed transactions so
// clients can query games by player without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/decred/slog"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/storage"
)

var log = slog.Disabled

// UseLogger sets the package logger.
func UseLogger(l slog.Logger) {
	log = l
}

const (
	prefixPlayerGames  = "idx:player:game:"
	prefixPlayerResult = "idx:player:finished:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db     storage.DB
	cancel []func()
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	idx.cancel = append(idx.cancel,
		emitter.Subscribe(events.EventGameCreated, idx.onGameSeated),
		emitter.Subscribe(events.EventGameJoined, idx.onGameSeated),
		emitter.Subscribe(events.EventGameFinalized, idx.onGameFinalized),
	)
	return idx
}

// Close stops listening for events.
func (idx *Indexer) Close() {
	for _, c := range idx.cancel {
		c()
	}
	idx.cancel = nil
}

// GetGamesByPlayer returns the ids of every game addr has a seat in,
// ascending.
func (idx *Indexer) GetGamesByPlayer(addr string) ([]uint64, error) {
	return idx.getList(prefixPlayerGames + addr)
}

// GetFinishedGamesByPlayer returns the ids of addr's completed games.
func (idx *Indexer) GetFinishedGamesByPlayer(addr string) ([]uint64, error) {
	return idx.getList(prefixPlayerResult + addr)
}

// ---- event handlers ----

func (idx *Indexer) onGameSeated(ev events.Event) {
	player, _ := ev.Data["player"].(string)
	id, _ := ev.Data["game_id"].(uint64)
	if player == "" || id == 0 {
		return
	}
	if err := idx.addToList(prefixPlayerGames+player, id); err != nil {
		log.Errorf("index game %d for %s: %v", id, player, err)
	}
}

func (idx *Indexer) onGameFinalized(ev events.Event) {
	id, _ := ev.Data["game_id"].(uint64)
	if id == 0 {
		return
	}
	for _, k := range []string{"player_one", "player_two"} {
		player, _ := ev.Data[k].(string)
		if player == "" {
			continue
		}
		if err := idx.addToList(prefixPlayerResult+player, id); err != nil {
			log.Errorf("index finished game %d for %s: %v", id, player, err)
		}
	}
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []uint64{}, nil
		}
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

// addToList inserts value keeping the list sorted and free of duplicates.
func (idx *Indexer) addToList(key string, value uint64) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	i, found := slices.BinarySearch(ids, value)
	if found {
		return nil
	}
	ids = slices.Insert(ids, i, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
