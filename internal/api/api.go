// Package api defines the JSON-RPC methods a node exposes to clients: method
// names, parameter and result shapes, and the application error codes.
package api

import (
	"errors"

	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/mempool"
	"github.com/gabapcia/powchain/internal/miner"
	"github.com/gabapcia/powchain/internal/p2p"
)

const (
	MethodSubmitTransaction = "submitTransaction"
	MethodGetBalance        = "getBalance"
	MethodGetChain          = "getChain"
	MethodGetStatus         = "getStatus"
	MethodMineBlock         = "mineBlock"
)

// Application error codes, outside the range reserved by JSON-RPC.
const (
	CodeValidation    = 1001
	CodeCrypto        = 1002
	CodeMempool       = 1003
	CodeNothingToMine = 1004
)

// SubmitTransactionResult acknowledges mempool admission.
type SubmitTransactionResult struct {
	ID ledger.Hash `json:"id"`
}

type BalanceParams struct {
	Address string `json:"address" validate:"required,hexadecimal,len=66"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// ChainResult carries the full active chain. Work is a decimal string since
// it does not fit in a JSON number.
type ChainResult struct {
	Blocks []ledger.Block `json:"blocks"`
	Work   string         `json:"work"`
}

type StatusResult struct {
	NodeID      string         `json:"node_id"`
	Height      uint64         `json:"height"`
	Tip         ledger.Hash    `json:"tip"`
	Work        string         `json:"work"`
	Difficulty  uint8          `json:"difficulty"`
	MempoolSize int            `json:"mempool_size"`
	MinerState  string         `json:"miner_state"`
	Peers       []p2p.PeerInfo `json:"peers"`
}

type MineBlockResult struct {
	Block ledger.Block `json:"block"`
}

// ErrorCode maps a domain error to its application code. ok is false for
// errors that have no application code.
func ErrorCode(err error) (code int, ok bool) {
	switch {
	case errors.Is(err, ledger.ErrCrypto):
		return CodeCrypto, true
	case errors.Is(err, ledger.ErrValidation):
		return CodeValidation, true
	case errors.Is(err, mempool.ErrMempool):
		return CodeMempool, true
	case errors.Is(err, miner.ErrNothingToMine):
		return CodeNothingToMine, true
	default:
		return 0, false
	}
}

// CodeError returns the domain error category for an application code, or nil.
func CodeError(code int) error {
	switch code {
	case CodeCrypto:
		return ledger.ErrCrypto
	case CodeValidation:
		return ledger.ErrValidation
	case CodeMempool:
		return mempool.ErrMempool
	case CodeNothingToMine:
		return miner.ErrNothingToMine
	default:
		return nil
	}
}
