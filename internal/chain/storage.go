package chain

import (
	"context"
	"errors"

	"github.com/gabapcia/powchain/internal/ledger"
)

// ErrNoChainFound is returned by Storage.LoadChain when nothing was persisted yet.
var ErrNoChainFound = errors.New("no chain found")

// Storage persists the active chain so a node can resume after a restart.
type Storage interface {
	// LoadChain returns the persisted chain in index order.
	LoadChain(ctx context.Context) ([]ledger.Block, error)

	// AppendBlock persists a block that extends the stored tip.
	AppendBlock(ctx context.Context, block ledger.Block) error

	// ReplaceChain atomically overwrites the stored chain.
	ReplaceChain(ctx context.Context, blocks []ledger.Block) error
}

// nopStorage keeps nothing; it is the default when no backend is configured.
type nopStorage struct{}

var _ Storage = nopStorage{}

func (nopStorage) LoadChain(context.Context) ([]ledger.Block, error) {
	return nil, ErrNoChainFound
}

func (nopStorage) AppendBlock(context.Context, ledger.Block) error {
	return nil
}

func (nopStorage) ReplaceChain(context.Context, []ledger.Block) error {
	return nil
}
