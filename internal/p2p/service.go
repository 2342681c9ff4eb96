// Package p2p runs the peer network: length-prefixed JSON messages over TCP,
// gossip of transactions and blocks with a bounded seen-window, and chain
// synchronization through ChainRequest/ChainResponse and fork choice.
package p2p

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/pkg/logger"
	"github.com/gabapcia/powchain/internal/pkg/resilience/retry"
	"github.com/gabapcia/powchain/internal/pkg/transport/frame"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const meterName = "github.com/gabapcia/powchain/internal/p2p"

// Ledger is the node state the network reads from and feeds into.
type Ledger interface {
	Tip() ledger.Block
	Blocks() []ledger.Block
	SubmitTransaction(ctx context.Context, tx ledger.Transaction) error
	AcceptBlock(ctx context.Context, block ledger.Block) error
	ProposeChain(ctx context.Context, blocks []ledger.Block) (chain.Replacement, error)
}

type Service interface {
	// Start listens for peers and runs the discovery loop until Close or ctx is done.
	Start(ctx context.Context) error
	Close()

	// Connect dials address and asks the new peer for its chain.
	Connect(ctx context.Context, address string) error

	BroadcastTransaction(ctx context.Context, tx ledger.Transaction)
	BroadcastBlock(ctx context.Context, block ledger.Block)

	Peers() []PeerInfo
	Addr() net.Addr
}

type closeFunc func()

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc closeFunc
	runCtx    context.Context
	listener  net.Listener

	ledger Ledger
	seen   *seenWindow
	retry  retry.Retry
	dialer net.Dialer

	peersMu sync.RWMutex
	peers   map[string]*Peer
	wg      sync.WaitGroup

	listenAddr        string
	seeds             []string
	maxPeers          int
	discoveryInterval time.Duration
	rateLimit         rate.Limit
	rateBurst         int
	queueSize         int
	maxFrameSize      uint32

	messages metric.Int64Counter
}

var _ Service = (*service)(nil)

func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %w", ErrNetwork, s.listenAddr, err)
	}

	ctx, cancel := context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, ln)
	}()
	go func() {
		defer s.wg.Done()
		s.discoveryLoop(ctx)
	}()

	logger.Info(ctx, "p2p listening", "p2p.address", ln.Addr().String())

	s.closeFunc = func() {
		cancel()
		_ = ln.Close()
		for _, p := range s.snapshot() {
			p.Close()
		}
		s.wg.Wait()
	}
	s.runCtx = ctx
	s.listener = ln
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
}

func (s *service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *service) Peers() []PeerInfo {
	peers := s.snapshot()
	infos := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, p.Info())
	}

	slices.SortFunc(infos, func(a, b PeerInfo) int {
		return cmp.Compare(a.Address, b.Address)
	})
	return infos
}

func (s *service) snapshot() []*Peer {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()

	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	return peers
}

func (s *service) hasPeer(address string) bool {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()

	_, ok := s.peers[address]
	return ok
}

func (s *service) running() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isStarted || s.runCtx.Err() != nil {
		return nil, false
	}
	return s.runCtx, true
}

func (s *service) Connect(ctx context.Context, address string) error {
	runCtx, ok := s.running()
	if !ok {
		return ErrServiceNotStarted
	}

	if s.hasPeer(address) {
		return ErrAlreadyConnected
	}

	var conn net.Conn
	err := s.retry.Execute(ctx, func() error {
		c, err := s.dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return err
		}

		conn = c
		return nil
	})
	if err != nil {
		logger.Warn(ctx, "peer dial failed", "peer.address", address, "error", err)
		return fmt.Errorf("%w: dial %s: %w", ErrNetwork, address, err)
	}

	p, err := s.addPeer(conn, address, Outbound)
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.runPeer(runCtx, p)

	// Initial sync: the new peer answers with its chain and fork choice decides.
	return p.Send(ChainRequest{})
}

func (s *service) addPeer(conn net.Conn, address string, direction Direction) (*Peer, error) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()

	if _, ok := s.peers[address]; ok {
		return nil, ErrAlreadyConnected
	}

	if len(s.peers) >= s.maxPeers {
		return nil, ErrPeerLimit
	}

	p := newPeer(conn, address, direction, rate.NewLimiter(s.rateLimit, s.rateBurst), s.queueSize, s.maxFrameSize)
	s.peers[address] = p
	return p, nil
}

func (s *service) removePeer(p *Peer) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()

	if s.peers[p.address] == p {
		delete(s.peers, p.address)
	}
}

// runPeer starts the writer and reader goroutines of p. A failure on either
// side closes only this connection.
func (s *service) runPeer(ctx context.Context, p *Peer) {
	p.state.Store(int32(PeerConnected))
	logger.Info(ctx, "peer connected",
		"peer.address", p.address,
		"peer.direction", p.direction,
	)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer p.Close()

		if err := p.writeLoop(ctx); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "peer write failed", "peer.address", p.address, "error", err)
		}
	}()

	go func() {
		defer s.wg.Done()
		defer s.removePeer(p)
		defer p.Close()

		err := p.readLoop(ctx, func(ctx context.Context, m Message) {
			s.handle(ctx, p, m)
		})
		switch {
		case errors.Is(err, ErrMalformedMessage):
			logger.Warn(ctx, "malformed message from peer, closing connection",
				"peer.address", p.address,
				"error", err,
			)
		case err != nil && ctx.Err() == nil:
			logger.Warn(ctx, "peer read failed", "peer.address", p.address, "error", err)
		}

		logger.Info(ctx, "peer disconnected", "peer.address", p.address)
	}()
}

func (s *service) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}

			logger.Warn(ctx, "failed to accept peer connection", "error", err)
			continue
		}

		p, err := s.addPeer(conn, conn.RemoteAddr().String(), Inbound)
		if err != nil {
			logger.Warn(ctx, "inbound peer refused",
				"peer.address", conn.RemoteAddr().String(),
				"error", err,
			)
			_ = conn.Close()
			continue
		}

		s.runPeer(ctx, p)

		// Inbound peers are asked for their chain as well.
		if err := p.Send(ChainRequest{}); err != nil {
			logger.Warn(ctx, "initial chain request failed", "peer.address", p.address, "error", err)
		}
	}
}

func (s *service) discoveryLoop(ctx context.Context) {
	if len(s.seeds) == 0 {
		return
	}

	ticker := time.NewTicker(s.discoveryInterval)
	defer ticker.Stop()

	for {
		s.discover(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// discover dials every configured peer that is not currently connected.
func (s *service) discover(ctx context.Context) {
	for _, address := range s.seeds {
		if ctx.Err() != nil {
			return
		}

		if s.hasPeer(address) {
			continue
		}

		err := s.Connect(ctx, address)
		if err != nil && !errors.Is(err, ErrAlreadyConnected) {
			logger.Debug(ctx, "discovery could not reach peer", "peer.address", address, "error", err)
		}
	}
}

func (s *service) BroadcastTransaction(ctx context.Context, tx ledger.Transaction) {
	s.seen.firstSeen(TypeNewTransaction, tx.ID())
	s.relay(ctx, nil, NewTransaction{Transaction: tx})
}

func (s *service) BroadcastBlock(ctx context.Context, block ledger.Block) {
	s.seen.firstSeen(TypeNewBlock, block.Hash)
	s.relay(ctx, nil, NewBlock{Block: block})
}

// relay sends m to every connected peer except the one it came from.
func (s *service) relay(ctx context.Context, except *Peer, m Message) {
	data, err := EncodeMessage(m)
	if err != nil {
		logger.Error(ctx, "failed to encode message", "message.type", m.Type(), "error", err)
		return
	}

	for _, p := range s.snapshot() {
		if p == except {
			continue
		}

		if err := p.sendRaw(data); err != nil {
			logger.Debug(ctx, "failed to relay message",
				"peer.address", p.address,
				"message.type", m.Type(),
				"error", err,
			)
		}
	}
}

type config struct {
	listenAddr        string
	seeds             []string
	maxPeers          int
	discoveryInterval time.Duration
	dialTimeout       time.Duration
	seenWindow        time.Duration
	rateLimit         rate.Limit
	rateBurst         int
	queueSize         int
	maxFrameSize      uint32
	retry             retry.Retry
}

type Option func(*config)

// New builds the peer network over l. Nothing listens until Start.
func New(l Ledger, opts ...Option) (*service, error) {
	cfg := config{
		listenAddr:        ":7000",
		maxPeers:          16,
		discoveryInterval: 10 * time.Second,
		dialTimeout:       5 * time.Second,
		seenWindow:        10 * time.Minute,
		rateLimit:         100,
		rateBurst:         200,
		queueSize:         256,
		maxFrameSize:      frame.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.retry == nil {
		cfg.retry = retry.New(
			retry.WithAttempts(3),
			retry.WithDelay(500*time.Millisecond),
			retry.WithMaxDelay(2*time.Second),
		)
	}

	messages, err := otel.Meter(meterName).Int64Counter("powchain.p2p.messages",
		metric.WithDescription("Messages received from peers"),
	)
	if err != nil {
		return nil, err
	}

	return &service{
		ledger:            l,
		seen:              newSeenWindow(cfg.seenWindow),
		retry:             cfg.retry,
		dialer:            net.Dialer{Timeout: cfg.dialTimeout},
		peers:             make(map[string]*Peer),
		listenAddr:        cfg.listenAddr,
		seeds:             cfg.seeds,
		maxPeers:          cfg.maxPeers,
		discoveryInterval: cfg.discoveryInterval,
		rateLimit:         cfg.rateLimit,
		rateBurst:         cfg.rateBurst,
		queueSize:         cfg.queueSize,
		maxFrameSize:      cfg.maxFrameSize,
		messages:          messages,
	}, nil
}

// WithListenAddr sets the TCP address peers connect to. Defaults to ":7000".
func WithListenAddr(address string) Option {
	return func(c *config) {
		c.listenAddr = address
	}
}

// WithSeeds sets the peers the discovery loop keeps connected.
func WithSeeds(addresses ...string) Option {
	return func(c *config) {
		c.seeds = addresses
	}
}

func WithMaxPeers(n int) Option {
	return func(c *config) {
		c.maxPeers = n
	}
}

func WithDiscoveryInterval(d time.Duration) Option {
	return func(c *config) {
		c.discoveryInterval = d
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		c.dialTimeout = d
	}
}

// WithSeenWindow sets how long gossiped ids are remembered.
func WithSeenWindow(d time.Duration) Option {
	return func(c *config) {
		c.seenWindow = d
	}
}

// WithRateLimit throttles inbound messages per peer.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *config) {
		c.rateLimit = rate.Limit(perSecond)
		c.rateBurst = burst
	}
}

// WithQueueSize bounds the outbound queue of each peer.
func WithQueueSize(n int) Option {
	return func(c *config) {
		c.queueSize = n
	}
}

func WithMaxFrameSize(n uint32) Option {
	return func(c *config) {
		c.maxFrameSize = n
	}
}

// WithRetry sets the policy used when dialing peers.
func WithRetry(r retry.Retry) Option {
	return func(c *config) {
		c.retry = r
	}
}
