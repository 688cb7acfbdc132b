package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tolelom/duelchain/core"
)

const (
	redisOpTimeout = 5 * time.Second
	redisScanCount = 256
)

// RedisOptions configures a Redis-backed DB.
type RedisOptions struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string // namespaces every key, e.g. "duel:"
}

// RedisDB implements DB on a Redis server. Batches are applied inside
// MULTI/EXEC so a block's state lands all at once.
type RedisDB struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisDB connects to Redis and checks the connection with PING.
func NewRedisDB(opts RedisOptions) (*RedisDB, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	log.Infof("connected to redis at %s (db %d)", opts.Addr, opts.DB)
	return &RedisDB{rdb: rdb, prefix: opts.KeyPrefix}, nil
}

func (r *RedisDB) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

func (r *RedisDB) key(k []byte) string { return r.prefix + string(k) }

func (r *RedisDB) Get(key []byte) ([]byte, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	val, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrNotFound
	}
	return val, err
}

func (r *RedisDB) Set(key, value []byte) error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.rdb.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisDB) Delete(key []byte) error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.rdb.Del(ctx, r.key(key)).Err()
}

// NewIterator snapshots all keys under prefix with SCAN, sorted, and loads
// their values with MGET. Errors surface through Iterator.Error.
func (r *RedisDB) NewIterator(prefix []byte) Iterator {
	ctx, cancel := r.ctx()
	defer cancel()

	full := r.key(prefix)
	match := escapeGlob(full) + "*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.rdb.Scan(ctx, cursor, match, redisScanCount).Result()
		if err != nil {
			return &sliceIter{idx: -1, err: fmt.Errorf("redis scan %q: %w", match, err)}
		}
		for _, k := range batch {
			if strings.HasPrefix(k, full) {
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	keys = slices.Compact(keys) // SCAN may return a key more than once
	if len(keys) == 0 {
		return &sliceIter{idx: -1}
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return &sliceIter{idx: -1, err: fmt.Errorf("redis mget: %w", err)}
	}
	pairs := make([]kvPair, 0, len(keys))
	for i, k := range keys {
		s, ok := vals[i].(string)
		if !ok {
			continue // deleted between SCAN and MGET
		}
		pairs = append(pairs, kvPair{k: []byte(k[len(r.prefix):]), v: []byte(s)})
	}
	return &sliceIter{pairs: pairs, idx: -1}
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (r *RedisDB) NewBatch() Batch {
	return &redisBatch{db: r}
}

func (r *RedisDB) Close() error {
	return r.rdb.Close()
}

type redisBatch struct {
	db  *RedisDB
	ops []batchOp
}

type batchOp struct {
	key   string
	value []byte
	del   bool
}

func (b *redisBatch) Set(key, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.ops = append(b.ops, batchOp{key: b.db.key(key), value: cp})
}

func (b *redisBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: b.db.key(key), del: true})
}

func (b *redisBatch) Reset() { b.ops = nil }

func (b *redisBatch) Write() error {
	if len(b.ops) == 0 {
		return nil
	}
	ctx, cancel := b.db.ctx()
	defer cancel()
	_, err := b.db.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.ops {
			if op.del {
				pipe.Del(ctx, op.key)
			} else {
				pipe.Set(ctx, op.key, op.value, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis exec batch (%d ops): %w", len(b.ops), err)
	}
	return nil
}

type kvPair struct{ k, v []byte }

type sliceIter struct {
	pairs []kvPair
	idx   int
	err   error
}

func (it *sliceIter) Next() bool    { it.idx++; return it.idx < len(it.pairs) }
func (it *sliceIter) Key() []byte   { return it.pairs[it.idx].k }
func (it *sliceIter) Value() []byte { return it.pairs[it.idx].v }
func (it *sliceIter) Release()      {}
func (it *sliceIter) Error() error  { return it.err }
