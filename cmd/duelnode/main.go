// Command duelnode runs a single-authority duel chain node.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/decred/slog"

	"github.com/tolelom/duelchain/config"
	"github.com/tolelom/duelchain/consensus"
	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/events"
	"github.com/tolelom/duelchain/indexer"
	"github.com/tolelom/duelchain/logging"
	"github.com/tolelom/duelchain/rpc"
	"github.com/tolelom/duelchain/storage"
	"github.com/tolelom/duelchain/vm"
	"github.com/tolelom/duelchain/vm/modules/duel"
	"github.com/tolelom/duelchain/wallet"
)

var log = slog.Disabled

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "duelnode:", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "authority.key", "path to keystore file")
	envPath := flag.String("env", ".env", "path to .env file with secrets")
	genKey := flag.Bool("genkey", false, "generate a new authority key and exit")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		return err
	}

	// Read keystore password from environment (not CLI flags, they leak via ps).
	password := os.Getenv(config.EnvPassword)

	if *genKey {
		priv, _, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		id, err := wallet.SaveKey(*keyPath, password, priv)
		if err != nil {
			return err
		}
		fmt.Printf("Generated key %s\nPublic key (authority address): %s\nSaved to: %s\n",
			id, priv.Public().Hex(), *keyPath)
		return nil
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logs := logging.NewBackend(os.Stdout)
	log = logs.Logger(logging.SubNode)
	consensus.UseLogger(logs.Logger(logging.SubCons))
	vm.UseLogger(logs.Logger(logging.SubExec))
	duel.UseLogger(logs.Logger(logging.SubDuel))
	rpc.UseLogger(logs.Logger(logging.SubRPC))
	indexer.UseLogger(logs.Logger(logging.SubIndexer))
	storage.UseLogger(logs.Logger(logging.SubStorage))
	events.UseLogger(logs.Logger(logging.SubEvents))
	if err := logs.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	if password == "" {
		log.Warnf("%s not set, keystore uses an empty password", config.EnvPassword)
	}

	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	hash, err := crypto.HashByName(cfg.CommitHash)
	if err != nil {
		return err
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.Open(cfg.Storage, cfg.DataDir, storage.RedisOptions{
		Addr:      cfg.Redis.Addr,
		Username:  cfg.Redis.Username,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesis); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.Infof("genesis block committed: %s", genesis.Hash)
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	defer idx.Close()
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	exec := vm.NewExecutor(state, emitter, crypto.NewCommitter(hash))
	producer := consensus.New(bc, state, mempool, exec, emitter, privKey, cfg.MaxBlockTxs)

	// ---- RPC ----
	rpcHandler := rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpcHandler, emitter, cfg.RPCSecret)
	if _, err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	if cfg.RPCSecret != "" {
		log.Infof("RPC JWT authentication enabled")
	}

	// ---- block production ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Infof("producing blocks every %s (authority %s, tx types %v)",
		cfg.BlockInterval(), privKey.Public().Hex(), vm.SupportedTypes())
	err = producer.Run(ctx, cfg.BlockInterval())
	log.Infof("shutting down")
	if errors.Is(err, consensus.ErrStateCommit) {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config file not found at %s, using defaults\n", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
