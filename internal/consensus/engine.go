// Package consensus coordinates the active chain and the mempool so that both
// change together: accepted blocks drain the pool and chain reorganizations
// return abandoned transfers to it.
package consensus

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/mempool"
	"github.com/gabapcia/powchain/internal/pkg/logger"
)

// ErrAlreadyConfirmed is returned when a submitted transfer is already in the active chain.
var ErrAlreadyConfirmed = fmt.Errorf("%w: transaction already confirmed", mempool.ErrMempool)

// Engine is the single writer in front of the chain store and the pool.
type Engine struct {
	mu    sync.Mutex
	chain *chain.Store
	pool  *mempool.Pool
}

// New wires an Engine over an existing chain store and pool.
func New(store *chain.Store, pool *mempool.Pool) *Engine {
	return &Engine{
		chain: store,
		pool:  pool,
	}
}

// SubmitTransaction admits tx to the pool unless it is invalid, pending or
// confirmed, or the sender cannot cover it. The sender's available funds are
// the confirmed balance minus what it already has pending.
func (e *Engine) SubmitTransaction(ctx context.Context, tx ledger.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := tx.ID()
	if e.chain.HasTransaction(id) {
		return ErrAlreadyConfirmed
	}

	if err := ledger.ValidateTransaction(tx); err != nil {
		return err
	}

	if e.pool.Contains(id) {
		return mempool.ErrDuplicate
	}

	balance, pending := e.chain.Balance(tx.Sender), e.pool.Debits(tx.Sender)
	available := uint64(0)
	if balance > pending {
		available = balance - pending
	}

	if available < tx.Amount {
		logger.Debug(ctx, "transaction rejected for insufficient funds",
			"tx.id", id,
			"tx.amount", tx.Amount,
			"sender.available", available,
		)
		return fmt.Errorf("%w: available %d, amount %d", ledger.ErrInsufficientFunds, available, tx.Amount)
	}

	return e.pool.Submit(tx)
}

// AcceptBlock appends block to the active chain and drops its transactions from the pool.
func (e *Engine) AcceptBlock(ctx context.Context, block ledger.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.chain.Append(ctx, block); err != nil {
		return err
	}

	e.pool.RemoveConfirmed(block)
	return nil
}

// ProposeChain applies fork choice: candidate replaces the active chain only
// when it is valid and strictly heavier. Transfers from abandoned blocks that
// the new chain does not confirm go back to the pool.
func (e *Engine) ProposeChain(ctx context.Context, candidate []ledger.Block) (chain.Replacement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	replacement, err := e.chain.Replace(ctx, candidate)
	if err != nil {
		return chain.Replacement{}, err
	}

	for _, b := range replacement.Added {
		e.pool.RemoveConfirmed(b)
	}

	restored := 0
	for _, b := range replacement.Removed {
		for _, tx := range b.Transactions {
			if tx.IsCoinbase() || e.chain.HasTransaction(tx.ID()) {
				continue
			}

			if err := e.pool.Submit(tx); err != nil {
				logger.Debug(ctx, "abandoned transaction not restored",
					"tx.id", tx.ID(),
					"error", err,
				)
				continue
			}
			restored++
		}
	}

	if restored > 0 {
		logger.Info(ctx, "abandoned transactions restored to mempool", "mempool.restored", restored)
	}

	return replacement, nil
}

func (e *Engine) Params() ledger.Params {
	return e.chain.Params()
}

func (e *Engine) Tip() ledger.Block {
	return e.chain.Tip()
}

func (e *Engine) Height() uint64 {
	return e.chain.Height()
}

func (e *Engine) Version() uint64 {
	return e.chain.Version()
}

func (e *Engine) TipChanged() <-chan struct{} {
	return e.chain.TipChanged()
}

func (e *Engine) Blocks() []ledger.Block {
	return e.chain.Blocks()
}

func (e *Engine) Work() *big.Int {
	return e.chain.Work()
}

func (e *Engine) Balance(account ledger.PublicKey) uint64 {
	return e.chain.Balance(account)
}

// SelectTransactions returns up to n pending transfers in arrival order.
func (e *Engine) SelectTransactions(n int) []ledger.Transaction {
	return e.pool.SelectForBlock(n)
}

func (e *Engine) PendingTransactions() []ledger.Transaction {
	return e.pool.Transactions()
}

func (e *Engine) MempoolSize() int {
	return e.pool.Size()
}

// TransactionsAdded signals after new transfers enter the pool.
func (e *Engine) TransactionsAdded() <-chan struct{} {
	return e.pool.Added()
}

// EvictExpired drops stale pending transfers.
func (e *Engine) EvictExpired(ctx context.Context) {
	if evicted := e.pool.EvictExpired(); len(evicted) > 0 {
		logger.Info(ctx, "expired transactions evicted", "mempool.evicted", len(evicted))
	}
}
