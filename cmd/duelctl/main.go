// Command duelctl manages duel keys and secrets and submits signed
// transactions to a duelnode over JSON-RPC.
//
// Usage:
//
//	duelctl genkey  -key player.key
//	duelctl genkey  -key player.key -key-hex <private key hex>
//	duelctl commit  -move attack -out secret.json
//	duelctl send    -key player.key -type create_game -stake 100
//	duelctl send    -key player.key -type commit_move -game 1 -secret secret.json
//	duelctl token   -subject alice -ttl 1h
//	duelctl call    getGame '{"id":1}'
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tolelom/duelchain/config"
	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/rpc"
	"github.com/tolelom/duelchain/wallet"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	var err error
	switch os.Args[1] {
	case "genkey":
		err = cmdGenKey(os.Args[2:])
	case "commit":
		err = cmdCommit(os.Args[2:])
	case "send":
		err = cmdSend(os.Args[2:])
	case "token":
		err = cmdToken(os.Args[2:])
	case "call":
		err = cmdCall(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: duelctl <genkey|commit|send|token|call> [flags]")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "duelctl:", err)
	os.Exit(1)
}

func cmdGenKey(args []string) error {
	fs := flag.NewFlagSet("genkey", flag.ExitOnError)
	keyPath := fs.String("key", "player.key", "keystore output path")
	keyHex := fs.String("key-hex", "", "import this hex private key instead of generating one")
	fs.Parse(args)

	var priv crypto.PrivateKey
	var err error
	if *keyHex != "" {
		priv, err = crypto.PrivKeyFromHex(*keyHex)
	} else {
		priv, _, err = crypto.GenerateKeyPair()
	}
	if err != nil {
		return err
	}
	id, err := wallet.SaveKey(*keyPath, os.Getenv(config.EnvPassword), priv)
	if err != nil {
		return err
	}
	fmt.Printf("key id:  %s\naddress: %s\nsaved:   %s\n", id, priv.Public().Hex(), *keyPath)
	return nil
}

func cmdCommit(args []string) error {
	fs := flag.NewFlagSet("commit", flag.ExitOnError)
	moveName := fs.String("move", "", "attack, defense or magic")
	gameID := fs.Uint64("game", 0, "game the secret is for (informational)")
	out := fs.String("out", "secret.json", "secret output path")
	hashName := fs.String("hash", "sha256", "commitment hash used by the chain")
	fs.Parse(args)

	move, err := core.ParseMove(*moveName)
	if err != nil {
		return err
	}
	h, err := crypto.HashByName(*hashName)
	if err != nil {
		return err
	}
	secret, err := wallet.NewSecretMove(move, crypto.NewCommitter(h))
	if err != nil {
		return err
	}
	secret.GameID = *gameID
	if err := wallet.SaveSecret(*out, secret); err != nil {
		return err
	}
	fmt.Printf("commitment: %s\nsecret saved to %s (keep it until reveal)\n", secret.Commitment.Hex(), *out)
	return nil
}

func cmdSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	keyPath := fs.String("key", "player.key", "keystore path")
	endpoint := fs.String("rpc", "http://localhost:8545", "node RPC endpoint")
	chainID := fs.String("chain", "duelchain-dev", "chain id")
	typ := fs.String("type", "", "tx type")
	nonceFlag := fs.Int64("nonce", -1, "account nonce; -1 queries the node")
	fee := fs.Uint64("fee", 0, "fee in native token")
	gameID := fs.Uint64("game", 0, "game id")
	stake := fs.Uint64("stake", 0, "stake for create_game")
	token := fs.String("token", "", "token for stake or transfer; empty means native or the game's token")
	to := fs.String("to", "", "recipient for transfer")
	amount := fs.Uint64("amount", 0, "amount for transfer")
	secretPath := fs.String("secret", "secret.json", "secret file for commit_move and reveal_move")
	hashName := fs.String("hash", "sha256", "commitment hash used by the chain")
	fs.Parse(args)

	priv, err := wallet.LoadKey(*keyPath, os.Getenv(config.EnvPassword))
	if err != nil {
		return err
	}
	w := wallet.New(priv, *chainID)
	c := &client{url: *endpoint, secret: os.Getenv(config.EnvRPCSecret), subject: w.PubKey()}

	nonce := uint64(*nonceFlag)
	if *nonceFlag < 0 {
		if nonce, err = c.nonce(w.PubKey()); err != nil {
			return fmt.Errorf("query nonce: %w", err)
		}
	}

	loadSecret := func() (*wallet.SecretMove, error) {
		h, err := crypto.HashByName(*hashName)
		if err != nil {
			return nil, err
		}
		return wallet.LoadSecret(*secretPath, crypto.NewCommitter(h))
	}

	var tx *core.Transaction
	switch core.TxType(*typ) {
	case core.TxTransfer:
		tx, err = w.Transfer(*to, *token, *amount, nonce, *fee)
	case core.TxRegisterPlayer:
		tx, err = w.RegisterPlayer(nonce, *fee)
	case core.TxCreateGame:
		tx, err = w.CreateGame(*stake, *token, nonce, *fee)
	case core.TxJoinGame:
		tx, err = w.JoinGame(*gameID, *token, nonce, *fee)
	case core.TxCommitMove, core.TxRevealMove:
		var secret *wallet.SecretMove
		if secret, err = loadSecret(); err != nil {
			return err
		}
		if core.TxType(*typ) == core.TxCommitMove {
			tx, err = w.CommitMove(*gameID, secret, nonce, *fee)
		} else {
			tx, err = w.RevealMove(*gameID, secret, nonce, *fee)
		}
	case core.TxFinalizeGame:
		tx, err = w.FinalizeGame(*gameID, *token, nonce, *fee)
	default:
		return fmt.Errorf("unknown tx type %q", *typ)
	}
	if err != nil {
		return err
	}

	var result struct {
		TxID string `json:"tx_id"`
	}
	if err := c.call("sendTx", tx, &result); err != nil {
		return err
	}
	fmt.Printf("submitted %s (nonce %d)\n", result.TxID, nonce)
	return nil
}

func cmdToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "duelctl", "token subject")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	fs.Parse(args)

	secret := os.Getenv(config.EnvRPCSecret)
	if secret == "" {
		return fmt.Errorf("%s not set", config.EnvRPCSecret)
	}
	tok, err := rpc.IssueToken(secret, *subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func cmdCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	endpoint := fs.String("rpc", "http://localhost:8545", "node RPC endpoint")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("method required")
	}
	var params any
	if fs.NArg() > 1 {
		params = json.RawMessage(fs.Arg(1))
	}
	c := &client{url: *endpoint, secret: os.Getenv(config.EnvRPCSecret), subject: "duelctl"}
	var result json.RawMessage
	if err := c.call(fs.Arg(0), params, &result); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}

type client struct {
	url     string
	secret  string
	subject string
}

func (c *client) nonce(addr string) (uint64, error) {
	var res struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.call("getBalance", map[string]string{"address": addr}, &res); err != nil {
		return 0, err
	}
	return res.Nonce, nil
}

func (c *client) call(method string, params, result any) error {
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		tok, err := rpc.IssueToken(c.secret, c.subject, time.Minute)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.Error      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	if result == nil || len(out.Result) == 0 {
		return nil
	}
	return json.Unmarshal(out.Result, result)
}
