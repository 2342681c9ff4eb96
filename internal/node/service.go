// Package node wires the chain store, mempool, miner, peer network and
// JSON-RPC server of a single powchain node.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gabapcia/powchain/internal/api"
	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/config"
	"github.com/gabapcia/powchain/internal/consensus"
	"github.com/gabapcia/powchain/internal/handlers/jsonrpc"
	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/mempool"
	"github.com/gabapcia/powchain/internal/miner"
	"github.com/gabapcia/powchain/internal/p2p"
	"github.com/gabapcia/powchain/internal/pkg/logger"
	"github.com/gabapcia/powchain/internal/wallet"
)

var ErrServiceAlreadyStarted = errors.New("service already started")

type Service interface {
	// Start runs the peer network, the RPC server, the mempool expiry ticker
	// and, when enabled, the mining loop.
	Start(ctx context.Context) error

	// Close stops every component and releases the chain storage. A closed
	// node cannot be started again.
	Close()

	Connect(ctx context.Context, address string) error

	// SubmitTransaction admits tx into the mempool and gossips it to peers.
	SubmitTransaction(ctx context.Context, tx ledger.Transaction) error
	MineBlock(ctx context.Context) (ledger.Block, error)

	Balance(address ledger.PublicKey) uint64
	Blocks() []ledger.Block
	Work() *big.Int
	Status(ctx context.Context) api.StatusResult

	P2PAddr() net.Addr
	RPCAddr() net.Addr
}

type closeFunc func()

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc closeFunc
	rpcAddr   net.Addr

	nodeID string
	mine   bool

	engine  *consensus.Engine
	miner   miner.Service
	network p2p.Service
	server  *http.Server

	rpcListenAddr  string
	expiryInterval time.Duration

	storage      io.Closer
	storageClose sync.Once
}

var (
	_ Service         = (*service)(nil)
	_ jsonrpc.Backend = (*service)(nil)
)

func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.rpcListenAddr)
	if err != nil {
		return fmt.Errorf("listen rpc on %s: %w", s.rpcListenAddr, err)
	}

	if err := s.network.Start(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	if s.mine {
		if err := s.miner.Start(ctx); err != nil {
			_ = ln.Close()
			s.network.Close()
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "rpc server stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.expiryLoop(ctx)
	}()

	logger.Info(ctx, "node started",
		"node.id", s.nodeID,
		"rpc.address", ln.Addr().String(),
		"p2p.address", s.network.Addr().String(),
		"miner.enabled", s.mine,
	)

	s.closeFunc = func() {
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			_ = s.server.Close()
		}

		s.miner.Close()
		s.network.Close()
		wg.Wait()
	}
	s.rpcAddr = ln.Addr()
	s.isStarted = true
	return nil
}

func (s *service) Close() {
	s.mu.Lock()
	closeFn := s.closeFunc
	s.closeFunc = nil
	s.isStarted = false
	s.mu.Unlock()

	if closeFn != nil {
		closeFn()
	}

	s.storageClose.Do(func() {
		if err := s.storage.Close(); err != nil {
			logger.Error(context.Background(), "failed to close chain storage", "error", err)
		}
	})
}

func (s *service) expiryLoop(ctx context.Context) {
	if s.expiryInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.engine.EvictExpired(ctx)
		}
	}
}

func (s *service) Connect(ctx context.Context, address string) error {
	return s.network.Connect(ctx, address)
}

func (s *service) SubmitTransaction(ctx context.Context, tx ledger.Transaction) error {
	if err := s.engine.SubmitTransaction(ctx, tx); err != nil {
		return err
	}

	s.network.BroadcastTransaction(ctx, tx)
	return nil
}

func (s *service) MineBlock(ctx context.Context) (ledger.Block, error) {
	return s.miner.MineBlock(ctx)
}

func (s *service) Balance(address ledger.PublicKey) uint64 {
	return s.engine.Balance(address)
}

func (s *service) Blocks() []ledger.Block {
	return s.engine.Blocks()
}

func (s *service) Work() *big.Int {
	return s.engine.Work()
}

func (s *service) Status(ctx context.Context) api.StatusResult {
	tip := s.engine.Tip()

	return api.StatusResult{
		NodeID:      s.nodeID,
		Height:      tip.Index,
		Tip:         tip.Hash,
		Work:        s.engine.Work().String(),
		Difficulty:  s.engine.Params().Difficulty,
		MempoolSize: s.engine.MempoolSize(),
		MinerState:  s.miner.State().String(),
		Peers:       s.network.Peers(),
	}
}

func (s *service) P2PAddr() net.Addr {
	return s.network.Addr()
}

// RPCAddr is the bound JSON-RPC address, or nil before Start.
func (s *service) RPCAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rpcAddr
}

type options struct {
	storage      chain.Storage
	p2pOptions   []p2p.Option
	minerOptions []miner.Option
}

type Option func(*options)

// WithStorage overrides the storage driver selected by the configuration.
func WithStorage(s chain.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithP2POptions appends options after the ones derived from the configuration.
func WithP2POptions(opts ...p2p.Option) Option {
	return func(o *options) {
		o.p2pOptions = append(o.p2pOptions, opts...)
	}
}

// WithMinerOptions appends options after the ones derived from the configuration.
func WithMinerOptions(opts ...miner.Option) Option {
	return func(o *options) {
		o.minerOptions = append(o.minerOptions, opts...)
	}
}

// New loads the chain and builds every component described by cfg. Nothing
// listens until Start.
func New(ctx context.Context, cfg config.Server, opts ...Option) (*service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	params := ledger.Params{
		Difficulty:           cfg.Difficulty,
		MaxBlockTransactions: cfg.MaxBlockTransactions,
		Reward:               cfg.MiningReward,
	}

	storage, closer := o.storage, io.Closer(nopCloser{})
	if storage == nil {
		var err error
		if storage, closer, err = openStorage(ctx, cfg); err != nil {
			return nil, err
		}
	}

	n, err := build(ctx, cfg, params, storage, o)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	n.storage = closer

	return n, nil
}

func build(ctx context.Context, cfg config.Server, params ledger.Params, storage chain.Storage, o options) (*service, error) {
	var storeOpts []chain.Option
	if storage != nil {
		storeOpts = append(storeOpts, chain.WithStorage(storage))
	}

	store, err := chain.New(ctx, params, storeOpts...)
	if err != nil {
		return nil, err
	}

	pool := mempool.New(
		mempool.WithCapacity(cfg.MempoolCapacity),
		mempool.WithTTL(cfg.MempoolTTL),
	)
	engine := consensus.New(store, pool)

	network, err := p2p.New(engine, append([]p2p.Option{
		p2p.WithListenAddr(cfg.P2PAddr),
		p2p.WithSeeds(cfg.Peers...),
		p2p.WithMaxPeers(cfg.MaxPeers),
		p2p.WithDiscoveryInterval(cfg.DiscoveryInterval),
		p2p.WithDialTimeout(cfg.DialTimeout),
		p2p.WithSeenWindow(cfg.SeenWindow),
		p2p.WithRateLimit(cfg.PeerRateLimit, cfg.PeerRateBurst),
	}, o.p2pOptions...)...)
	if err != nil {
		return nil, err
	}

	minerOpts := []miner.Option{
		miner.WithBroadcaster(network),
		miner.WithEmptyBlocks(cfg.MineEmptyBlocks),
	}
	if cfg.MinerAddress != "" {
		reward, err := wallet.ParseAddress(cfg.MinerAddress)
		if err != nil {
			return nil, fmt.Errorf("miner address: %w", err)
		}
		minerOpts = append(minerOpts, miner.WithRewardAddress(reward))
	}

	m, err := miner.New(engine, append(minerOpts, o.minerOptions...)...)
	if err != nil {
		return nil, err
	}

	n := &service{
		nodeID:         cfg.NodeID,
		mine:           cfg.Mine,
		engine:         engine,
		miner:          m,
		network:        network,
		rpcListenAddr:  cfg.RPCAddr,
		expiryInterval: expiryInterval(cfg.MempoolTTL),
	}
	n.server = &http.Server{
		Handler:           jsonrpc.NewHandler(n),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return n, nil
}

// expiryInterval sweeps the mempool several times per TTL, at most once a
// second and at least once a minute.
func expiryInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return min(max(ttl/4, time.Second), time.Minute)
}
