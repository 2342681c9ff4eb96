// Package chain keeps the node's authoritative copy of the blockchain. All
// mutations go through Append and Replace, which validate before changing
// anything, and every reader gets a snapshot copy.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/gabapcia/powchain/internal/chain"

var (
	// ErrStaleTip is returned by Append when the block does not build on the current tip.
	ErrStaleTip = errors.New("block does not extend the current tip")

	// ErrNotHeavier is returned by Replace when the candidate lacks strictly more work.
	ErrNotHeavier = errors.New("candidate chain is not heavier than the active chain")
)

// Replacement describes how the active chain changed after a Replace.
type Replacement struct {
	// ForkIndex is the index of the last block shared by both chains.
	ForkIndex uint64

	// Removed holds the abandoned blocks after the fork point.
	Removed []ledger.Block

	// Added holds the adopted blocks after the fork point.
	Added []ledger.Block
}

// Store is the guarded, in-memory active chain.
type Store struct {
	mu         sync.RWMutex
	params     ledger.Params
	blocks     []ledger.Block
	work       *big.Int
	txIndex    map[ledger.Hash]uint64
	tipChanged chan struct{}

	version atomic.Uint64

	storage Storage

	appended     metric.Int64Counter
	replacements metric.Int64Counter
}

type config struct {
	storage Storage
}

// Option configures a Store.
type Option func(*config)

// WithStorage persists the chain through s.
func WithStorage(s Storage) Option {
	return func(c *config) {
		c.storage = s
	}
}

// New loads the chain from storage, or starts from the genesis block when
// nothing is stored. A stored chain that fails validation is an error.
func New(ctx context.Context, params ledger.Params, opts ...Option) (*Store, error) {
	cfg := config{
		storage: nopStorage{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := otel.Meter(meterName)
	appended, err := meter.Int64Counter("powchain.chain.blocks_appended",
		metric.WithDescription("Blocks appended to the active chain"),
	)
	if err != nil {
		return nil, err
	}

	replacements, err := meter.Int64Counter("powchain.chain.replacements",
		metric.WithDescription("Active chain replacements by a heavier peer chain"),
	)
	if err != nil {
		return nil, err
	}

	blocks, err := cfg.storage.LoadChain(ctx)
	switch {
	case errors.Is(err, ErrNoChainFound):
		blocks = []ledger.Block{ledger.Genesis()}
		if err := cfg.storage.ReplaceChain(ctx, blocks); err != nil {
			return nil, fmt.Errorf("persist genesis: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load chain: %w", err)
	default:
		if err := ledger.ValidateChain(params, blocks); err != nil {
			return nil, fmt.Errorf("stored chain is invalid: %w", err)
		}
	}

	s := &Store{
		params:       params,
		tipChanged:   make(chan struct{}),
		storage:      cfg.storage,
		appended:     appended,
		replacements: replacements,
	}
	s.reset(blocks)

	logger.Info(ctx, "chain loaded",
		"chain.height", s.tipLocked().Index,
		"chain.tip", s.tipLocked().Hash,
	)

	return s, nil
}

// reset rebuilds every derived index from blocks. Callers hold mu for writing.
func (s *Store) reset(blocks []ledger.Block) {
	s.blocks = blocks
	s.work = ledger.ChainWork(blocks)
	s.txIndex = make(map[ledger.Hash]uint64)
	for _, b := range blocks {
		s.indexBlock(b)
	}
}

func (s *Store) indexBlock(b ledger.Block) {
	for _, tx := range b.Transactions {
		if !tx.IsCoinbase() {
			s.txIndex[tx.ID()] = b.Index
		}
	}
}

// bumpTip advances the tip version and wakes everyone waiting on TipChanged.
// Callers hold mu for writing.
func (s *Store) bumpTip() {
	s.version.Add(1)
	close(s.tipChanged)
	s.tipChanged = make(chan struct{})
}

func (s *Store) tipLocked() ledger.Block {
	return s.blocks[len(s.blocks)-1]
}

// Params returns the consensus parameters the store validates against.
func (s *Store) Params() ledger.Params {
	return s.params
}

// Tip returns the last block of the active chain.
func (s *Store) Tip() ledger.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tipLocked()
}

// Height returns the index of the tip.
func (s *Store) Height() uint64 {
	return s.Tip().Index
}

// Blocks returns a snapshot copy of the active chain.
func (s *Store) Blocks() []ledger.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ledger.Block(nil), s.blocks...)
}

// BlockAt returns the block at index, if present.
func (s *Store) BlockAt(index uint64) (ledger.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index >= uint64(len(s.blocks)) {
		return ledger.Block{}, false
	}
	return s.blocks[index], true
}

// Work returns the accumulated work of the active chain.
func (s *Store) Work() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return new(big.Int).Set(s.work)
}

// Version increases every time the tip changes.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// TipChanged returns a channel that is closed on the next tip change.
func (s *Store) TipChanged() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tipChanged
}

// HasTransaction reports whether a transfer is confirmed in the active chain.
func (s *Store) HasTransaction(id ledger.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.txIndex[id]
	return ok
}

// Balance returns the balance of account over the active chain.
func (s *Store) Balance(account ledger.PublicKey) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ledger.Balance(s.blocks, account)
}

// Append validates block against the tip and, if valid, makes it the new tip.
func (s *Store) Append(ctx context.Context, block ledger.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip := s.tipLocked()
	if block.Index != tip.Index+1 || block.PreviousHash != tip.Hash {
		return ErrStaleTip
	}

	if err := ledger.ValidateBlock(s.params, block, tip); err != nil {
		return err
	}

	for _, tx := range block.Transactions {
		if tx.IsCoinbase() {
			continue
		}
		if _, ok := s.txIndex[tx.ID()]; ok {
			return fmt.Errorf("%w: %s already confirmed", ledger.ErrDuplicateTransaction, tx.ID())
		}
	}

	s.blocks = append(s.blocks, block)
	s.work.Add(s.work, ledger.Work(block.Difficulty))
	s.indexBlock(block)
	s.bumpTip()
	s.appended.Add(ctx, 1)

	if err := s.storage.AppendBlock(ctx, block); err != nil {
		logger.Error(ctx, "failed to persist block",
			"block.index", block.Index,
			"block.hash", block.Hash,
			"error", err,
		)
	}

	logger.Info(ctx, "block accepted",
		"block.index", block.Index,
		"block.hash", block.Hash,
		"block.transactions", len(block.Transactions),
	)

	return nil
}

// Replace adopts candidate if it is fully valid and carries strictly more
// work than the active chain. Ties keep the active chain. The swap is atomic
// for readers.
func (s *Store) Replace(ctx context.Context, candidate []ledger.Block) (Replacement, error) {
	if err := ledger.ValidateChain(s.params, candidate); err != nil {
		return Replacement{}, err
	}

	candidateWork := ledger.ChainWork(candidate)
	blocks := append([]ledger.Block(nil), candidate...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if candidateWork.Cmp(s.work) <= 0 {
		return Replacement{}, ErrNotHeavier
	}

	fork := forkPoint(s.blocks, blocks)
	replacement := Replacement{
		ForkIndex: uint64(fork),
		Removed:   append([]ledger.Block(nil), s.blocks[fork+1:]...),
		Added:     append([]ledger.Block(nil), blocks[fork+1:]...),
	}

	previousHeight := s.tipLocked().Index
	s.reset(blocks)
	s.bumpTip()
	s.replacements.Add(ctx, 1)

	if err := s.storage.ReplaceChain(ctx, blocks); err != nil {
		logger.Error(ctx, "failed to persist replaced chain", "error", err)
	}

	logger.Info(ctx, "chain replaced",
		"chain.previous_height", previousHeight,
		"chain.height", s.tipLocked().Index,
		"chain.fork_index", fork,
		"chain.tip", s.tipLocked().Hash,
	)

	return replacement, nil
}

// forkPoint returns the index of the last block both chains share.
// Both chains start at the same genesis, so the result is at least zero.
func forkPoint(a, b []ledger.Block) int {
	n := min(len(a), len(b))
	for i := 1; i < n; i++ {
		if a[i].Hash != b[i].Hash {
			return i - 1
		}
	}
	return n - 1
}
