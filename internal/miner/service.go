// Package miner seals blocks by proof of work on top of the current tip.
// The nonce search runs in bounded batches; between batches it checks for
// cancellation and for a newer tip, in which case the candidate is dropped and
// rebuilt.
package miner

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/gabapcia/powchain/internal/miner"

var (
	ErrServiceAlreadyStarted = errors.New("service already started")

	// ErrNothingToMine is returned when the pool is empty and empty blocks are disabled.
	ErrNothingToMine = errors.New("no pending transactions to mine")

	errTipChanged = errors.New("tip changed during search")
)

type Service interface {
	// Start runs the background mining loop until Close or ctx is done.
	Start(ctx context.Context) error
	Close()

	// MineBlock seals, appends and broadcasts exactly one block.
	MineBlock(ctx context.Context) (ledger.Block, error)

	State() State
}

type closeFunc func()

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc closeFunc

	searchMu sync.Mutex
	state    atomic.Int32

	ledger      Ledger
	broadcaster Broadcaster

	rewardAddress ledger.PublicKey
	allowEmpty    bool
	batchSize     uint64
	idleInterval  time.Duration
	now           func() time.Time

	blocksSealed metric.Int64Counter
	hashAttempts metric.Int64Counter
}

var _ Service = (*service)(nil)

func (s *service) State() State {
	return State(s.state.Load())
}

func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.closeFunc = func() {
		cancel()
		<-done
	}

	go func() {
		defer close(done)
		s.run(ctx)
	}()

	s.isStarted = true
	return nil
}

func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeFunc != nil {
		s.closeFunc()
	}
	s.isStarted = false
	s.closeFunc = nil
}

func (s *service) run(ctx context.Context) {
	ticker := time.NewTicker(s.idleInterval)
	defer ticker.Stop()

	logger.Info(ctx, "miner started", "miner.reward_address", s.rewardAddress)

	for {
		_, err := s.MineBlock(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err == nil:
			continue
		case errors.Is(err, ErrNothingToMine):
		default:
			logger.Error(ctx, "mining attempt failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.ledger.TransactionsAdded():
		case <-s.ledger.TipChanged():
		case <-ticker.C:
		}
	}
}

func (s *service) MineBlock(ctx context.Context) (ledger.Block, error) {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	for {
		block, err := s.search(ctx)
		if errors.Is(err, errTipChanged) {
			logger.Debug(ctx, "newer tip observed, restarting search")
			continue
		}
		if err != nil {
			return ledger.Block{}, err
		}

		if err := s.ledger.AcceptBlock(ctx, block); err != nil {
			if errors.Is(err, chain.ErrStaleTip) {
				continue
			}

			logger.Error(ctx, "locally sealed block rejected",
				"block.index", block.Index,
				"block.hash", block.Hash,
				"error", err,
			)
			s.state.Store(int32(Idle))
			return ledger.Block{}, err
		}

		s.state.Store(int32(Sealed))
		s.blocksSealed.Add(ctx, 1)
		logger.Info(ctx, "block sealed",
			"block.index", block.Index,
			"block.hash", block.Hash,
			"block.nonce", block.Nonce,
			"block.transactions", len(block.Transactions),
		)

		s.broadcaster.BroadcastBlock(ctx, block)
		return block, nil
	}
}

// candidate assembles the unsealed block on top of tip.
func (s *service) candidate(tip ledger.Block, params ledger.Params) (ledger.BlockHeader, []ledger.Transaction, error) {
	txs := s.ledger.SelectTransactions(params.MaxBlockTransactions)
	if len(txs) == 0 && !s.allowEmpty {
		return ledger.BlockHeader{}, nil, ErrNothingToMine
	}

	timestamp := max(s.now().Unix(), tip.Timestamp)
	if !s.rewardAddress.IsZero() && params.Reward > 0 {
		coinbase := ledger.NewCoinbase(s.rewardAddress, params.Reward, timestamp)
		txs = append([]ledger.Transaction{coinbase}, txs...)
	}

	return ledger.BlockHeader{
		Index:        tip.Index + 1,
		Timestamp:    timestamp,
		PreviousHash: tip.Hash,
		Difficulty:   params.Difficulty,
	}, txs, nil
}

// search runs the nonce search for a single candidate. It returns
// errTipChanged when the tip moves and ctx.Err() when cancelled.
func (s *service) search(ctx context.Context) (ledger.Block, error) {
	version := s.ledger.Version()
	tip := s.ledger.Tip()
	params := s.ledger.Params()

	header, txs, err := s.candidate(tip, params)
	if err != nil {
		return ledger.Block{}, err
	}

	s.state.Store(int32(Searching))
	defer s.state.CompareAndSwap(int32(Searching), int32(Idle))

	hasher := ledger.NewHasher(header, txs)
	for start := uint64(0); ; start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return ledger.Block{}, err
		}

		if s.ledger.Version() != version {
			return ledger.Block{}, errTipChanged
		}

		end := start + s.batchSize
		if end < start {
			end = math.MaxUint64
		}

		for nonce := start; nonce < end; nonce++ {
			hash := hasher.Hash(nonce)
			if !ledger.MeetsDifficulty(hash, header.Difficulty) {
				continue
			}

			s.hashAttempts.Add(ctx, int64(nonce-start+1))
			header.Nonce = nonce
			return ledger.Block{
				BlockHeader:  header,
				Transactions: txs,
				Hash:         hash,
			}, nil
		}

		s.hashAttempts.Add(ctx, int64(end-start))
		if end == math.MaxUint64 {
			// Nonce space exhausted: rebuild with a fresh timestamp.
			return ledger.Block{}, errTipChanged
		}
	}
}

type config struct {
	broadcaster   Broadcaster
	rewardAddress ledger.PublicKey
	allowEmpty    bool
	batchSize     uint64
	idleInterval  time.Duration
	now           func() time.Time
}

type Option func(*config)

// New builds a miner over l. Defaults: batches of 4096 nonces, a 5s idle
// recheck, no coinbase and no empty blocks.
func New(l Ledger, opts ...Option) (*service, error) {
	cfg := config{
		broadcaster:  nopBroadcaster{},
		batchSize:    4096,
		idleInterval: 5 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := otel.Meter(meterName)
	blocksSealed, err := meter.Int64Counter("powchain.miner.blocks_sealed",
		metric.WithDescription("Blocks sealed and accepted locally"),
	)
	if err != nil {
		return nil, err
	}

	hashAttempts, err := meter.Int64Counter("powchain.miner.hash_attempts",
		metric.WithDescription("Block hashes computed while searching for a nonce"),
	)
	if err != nil {
		return nil, err
	}

	return &service{
		ledger:        l,
		broadcaster:   cfg.broadcaster,
		rewardAddress: cfg.rewardAddress,
		allowEmpty:    cfg.allowEmpty,
		batchSize:     max(cfg.batchSize, 1),
		idleInterval:  cfg.idleInterval,
		now:           cfg.now,
		blocksSealed:  blocksSealed,
		hashAttempts:  hashAttempts,
	}, nil
}

func WithBroadcaster(b Broadcaster) Option {
	return func(c *config) {
		c.broadcaster = b
	}
}

// WithRewardAddress pays a coinbase to address in every sealed block. No
// coinbase is minted while the network reward is zero.
func WithRewardAddress(address ledger.PublicKey) Option {
	return func(c *config) {
		c.rewardAddress = address
	}
}

// WithEmptyBlocks lets the miner seal blocks while the pool is empty.
func WithEmptyBlocks(allow bool) Option {
	return func(c *config) {
		c.allowEmpty = allow
	}
}

// WithBatchSize sets how many nonces are tried between cancellation checks.
func WithBatchSize(n uint64) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithIdleInterval sets how often an idle miner rechecks the pool.
func WithIdleInterval(d time.Duration) Option {
	return func(c *config) {
		c.idleInterval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}
