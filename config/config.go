package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/logging"
)

// Environment variables read by ApplyEnv. Secrets never live in the JSON
// file.
const (
	EnvPassword      = "DUEL_PASSWORD"
	EnvRPCSecret     = "DUEL_RPC_SECRET"
	EnvRedisPassword = "DUEL_REDIS_PASSWORD"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID    string                       `json:"chain_id"`
	Alloc      map[string]uint64            `json:"alloc"`                 // pubkey hex → native balance
	TokenAlloc map[string]map[string]uint64 `json:"token_alloc,omitempty"` // token → pubkey hex → balance
}

// RedisConfig selects the Redis server used when Storage is "redis".
type RedisConfig struct {
	Addr      string `json:"addr"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"-"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// Config holds all node configuration.
type Config struct {
	NodeID          string        `json:"node_id"`
	DataDir         string        `json:"data_dir"`
	RPCPort         int           `json:"rpc_port"`
	RPCSecret       string        `json:"-"`                 // HS256 secret; empty disables auth
	BlockIntervalMS int           `json:"block_interval_ms"` // 0 → 1000
	MaxBlockTxs     int           `json:"max_block_txs"`     // max transactions per block; 0 → 500
	LogLevel        string        `json:"log_level"`
	CommitHash      string        `json:"commit_hash"` // sha256 or blake2b
	Storage         string        `json:"storage"`     // leveldb or redis
	Redis           RedisConfig   `json:"redis"`
	Genesis         GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:          "node0",
		DataDir:         "./data",
		RPCPort:         8545,
		BlockIntervalMS: 1000,
		MaxBlockTxs:     500,
		LogLevel:        "info",
		CommitHash:      "sha256",
		Storage:         "leveldb",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "duel:",
		},
		Genesis: GenesisConfig{
			ChainID: "duelchain-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment. Missing files are skipped; existing variables win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv copies secrets from the environment into cfg.
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv(EnvRPCSecret); v != "" {
		cfg.RPCSecret = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.Redis.Password = v
	}
}

// BlockInterval returns the block production period.
func (cfg *Config) BlockInterval() time.Duration {
	if cfg.BlockIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(cfg.BlockIntervalMS) * time.Millisecond
}

// Validate rejects settings the node cannot start with.
func (cfg *Config) Validate() error {
	if cfg.Genesis.ChainID == "" {
		return errors.New("genesis.chain_id required")
	}
	if cfg.RPCPort < 0 || cfg.RPCPort > 65535 {
		return fmt.Errorf("rpc_port %d out of range", cfg.RPCPort)
	}
	switch cfg.Storage {
	case "", "leveldb":
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("redis.addr required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
	if _, err := crypto.HashByName(cfg.CommitHash); err != nil {
		return fmt.Errorf("commit_hash: %w", err)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}
