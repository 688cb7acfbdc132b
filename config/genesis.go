package config

import (
	"strings"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0 from the genesis allocations.
// It also credits the initial balances in state and commits.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	accounts := make(map[string]*core.Account)
	account := func(addr string) *core.Account {
		acc, ok := accounts[addr]
		if !ok {
			acc = &core.Account{Address: addr}
			accounts[addr] = acc
		}
		return acc
	}
	for addr, balance := range cfg.Genesis.Alloc {
		account(addr).Balance = balance
	}
	for token, holders := range cfg.Genesis.TokenAlloc {
		for addr, balance := range holders {
			account(addr).SetBalanceOf(token, balance)
		}
	}
	for _, acc := range accounts {
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposerPub.Hex())
	block.Seal(nil, stateRoot, proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return len(h) == 64 && strings.Count(h, "0") == len(h)
}
