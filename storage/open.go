package storage

import (
	"fmt"
	"path/filepath"
)

// Open returns the DB for backend: "leveldb" (or empty) under dir/chaindata,
// or "redis" using opts.
func Open(backend, dir string, opts RedisOptions) (DB, error) {
	switch backend {
	case "", "leveldb":
		return NewLevelDB(filepath.Join(dir, "chaindata"))
	case "redis":
		return NewRedisDB(opts)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
