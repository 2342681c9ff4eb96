package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/powchain/internal/api"
	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/pkg/validator"
	"github.com/gabapcia/powchain/internal/wallet"
)

// submitTransaction takes the signed transaction object as params.
func (h *handler) submitTransaction(ctx context.Context, params json.RawMessage) (any, error) {
	var tx ledger.Transaction
	if err := decodeParams(params, &tx); err != nil {
		return nil, err
	}

	if err := h.backend.SubmitTransaction(ctx, tx); err != nil {
		return nil, err
	}

	return api.SubmitTransactionResult{ID: tx.ID()}, nil
}

func (h *handler) getBalance(ctx context.Context, params json.RawMessage) (any, error) {
	var p api.BalanceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if err := validator.Validate(p); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidParams, err)
	}

	address, err := wallet.ParseAddress(p.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidParams, err)
	}

	return api.BalanceResult{
		Address: address.String(),
		Balance: h.backend.Balance(address),
	}, nil
}

func (h *handler) getChain(ctx context.Context, _ json.RawMessage) (any, error) {
	return api.ChainResult{
		Blocks: h.backend.Blocks(),
		Work:   h.backend.Work().String(),
	}, nil
}

func (h *handler) getStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	return h.backend.Status(ctx), nil
}

func (h *handler) mineBlock(ctx context.Context, _ json.RawMessage) (any, error) {
	block, err := h.backend.MineBlock(ctx)
	if err != nil {
		return nil, err
	}

	return api.MineBlockResult{Block: block}, nil
}
