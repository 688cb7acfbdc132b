package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/indexer"
	"github.com/tolelom/duelchain/vm"
	"github.com/tolelom/duelchain/vm/modules/duel"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	duel    *duel.Engine
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{
		bc:      bc,
		mempool: mempool,
		state:   state,
		indexer: idx,
		duel:    &duel.Engine{State: state},
		chainID: chainID,
	}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getPlayer":
		return h.getPlayer(req)

	case "getGame":
		return h.getGame(req)

	case "getActiveGames":
		ids, err := h.duel.ActiveGames()
		if err != nil {
			return stateErr(req.ID, err)
		}
		return okResponse(req.ID, ids)

	case "getGamesByPlayer":
		return h.getGamesByPlayer(req)

	case "getReceipt":
		return h.getReceipt(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// stateErr maps lookup misses to CodeNotFound and everything else to an
// internal error.
func stateErr(id any, err error) Response {
	switch {
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrGameNotFound),
		errors.Is(err, core.ErrNotRegistered):
		return errResponse(id, CodeNotFound, err.Error())
	default:
		return errResponse(id, CodeInternalError, err.Error())
	}
}

func decodeParams(req Request, v any) *Response {
	if len(req.Params) == 0 {
		resp := errResponse(req.ID, CodeInvalidParams, "params required")
		return &resp
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &resp
	}
	return nil
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if resp := decodeParams(req, &params); resp != nil {
			return *resp
		}
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return stateErr(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return stateErr(req.ID, err)
	}
	token := core.NormalizeToken(params.Token)
	return okResponse(req.ID, map[string]any{
		"address": params.Address,
		"token":   token,
		"balance": acc.BalanceOf(token),
		"nonce":   acc.Nonce,
	})
}

func (h *Handler) getPlayer(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	p, err := h.duel.GetPlayer(params.Address)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, p)
}

func (h *Handler) getGame(req Request) Response {
	var params struct {
		ID uint64 `json:"id"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.ID == 0 {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	g, err := h.duel.GetGame(params.ID)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, g)
}

func (h *Handler) getGamesByPlayer(req Request) Response {
	var params struct {
		Address  string `json:"address"`
		Finished bool   `json:"finished"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	get := h.indexer.GetGamesByPlayer
	if params.Finished {
		get = h.indexer.GetFinishedGamesByPlayer
	}
	ids, err := get(params.Address)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if resp := decodeParams(req, &params); resp != nil {
		return *resp
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	r, err := h.state.GetReceipt(params.TxID)
	if err != nil {
		return stateErr(req.ID, err)
	}
	return okResponse(req.ID, r)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if resp := decodeParams(req, &tx); resp != nil {
		return *resp
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	if !vm.Supports(tx.Type) {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unsupported tx type %q", tx.Type))
	}
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeTxRejected, err.Error())
	}
	log.Debugf("accepted tx %s (%s) from %s", tx.ID, tx.Type, tx.From)
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
