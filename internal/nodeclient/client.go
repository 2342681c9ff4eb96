// Package nodeclient is the typed client of a node's JSON-RPC API.
package nodeclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gabapcia/powchain/internal/api"
	"github.com/gabapcia/powchain/internal/ledger"
	rpc "github.com/gabapcia/powchain/internal/pkg/transport/jsonrpc"
)

// ErrInvalidResponse is returned when a node answers with an unusable result.
var ErrInvalidResponse = errors.New("invalid response from node")

type Client interface {
	SubmitTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Hash, error)
	Balance(ctx context.Context, address ledger.PublicKey) (uint64, error)
	Chain(ctx context.Context) ([]ledger.Block, *big.Int, error)
	Status(ctx context.Context) (api.StatusResult, error)
	MineBlock(ctx context.Context) (ledger.Block, error)
}

type client struct {
	rpc rpc.Client
}

var _ Client = (*client)(nil)

// New wraps a JSON-RPC client.
func New(c rpc.Client) *client {
	return &client{rpc: c}
}

// call invokes method and translates application error codes back into the
// domain error categories, so callers can match them with errors.Is.
func (c *client) call(ctx context.Context, method string, params, result any) error {
	err := c.rpc.Call(ctx, method, params, result)

	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		if category := api.CodeError(rpcErr.Code); category != nil {
			return fmt.Errorf("%w: %w", category, rpcErr)
		}
	}
	return err
}

func (c *client) SubmitTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Hash, error) {
	var out api.SubmitTransactionResult
	if err := c.call(ctx, api.MethodSubmitTransaction, tx, &out); err != nil {
		return ledger.Hash{}, err
	}

	if out.ID != tx.ID() {
		return ledger.Hash{}, fmt.Errorf("%w: acknowledged id %s, expected %s", ErrInvalidResponse, out.ID, tx.ID())
	}
	return out.ID, nil
}

func (c *client) Balance(ctx context.Context, address ledger.PublicKey) (uint64, error) {
	var out api.BalanceResult
	if err := c.call(ctx, api.MethodGetBalance, api.BalanceParams{Address: address.String()}, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

func (c *client) Chain(ctx context.Context) ([]ledger.Block, *big.Int, error) {
	var out api.ChainResult
	if err := c.call(ctx, api.MethodGetChain, nil, &out); err != nil {
		return nil, nil, err
	}

	work, ok := new(big.Int).SetString(out.Work, 10)
	if !ok {
		return nil, nil, fmt.Errorf("%w: work %q", ErrInvalidResponse, out.Work)
	}
	return out.Blocks, work, nil
}

func (c *client) Status(ctx context.Context) (api.StatusResult, error) {
	var out api.StatusResult
	err := c.call(ctx, api.MethodGetStatus, nil, &out)
	return out, err
}

func (c *client) MineBlock(ctx context.Context) (ledger.Block, error) {
	var out api.MineBlockResult
	if err := c.call(ctx, api.MethodMineBlock, nil, &out); err != nil {
		return ledger.Block{}, err
	}
	return out.Block, nil
}
