package miner

import (
	"context"

	"github.com/gabapcia/powchain/internal/ledger"
)

// Ledger is the view of node state the miner builds on.
type Ledger interface {
	Params() ledger.Params
	Tip() ledger.Block
	Version() uint64
	TipChanged() <-chan struct{}
	TransactionsAdded() <-chan struct{}
	SelectTransactions(n int) []ledger.Transaction
	AcceptBlock(ctx context.Context, block ledger.Block) error
}

// Broadcaster announces sealed blocks to peers.
type Broadcaster interface {
	BroadcastBlock(ctx context.Context, block ledger.Block)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastBlock(context.Context, ledger.Block) {}
