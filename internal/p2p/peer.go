package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabapcia/powchain/internal/pkg/transport/frame"

	"golang.org/x/time/rate"
)

// PeerState is the connection state of a peer.
type PeerState int32

const (
	PeerConnecting PeerState = iota
	PeerConnected
	PeerDisconnected
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (s PeerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Direction tells who opened the connection.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// PeerInfo is a point-in-time snapshot of a peer.
type PeerInfo struct {
	Address   string    `json:"address"`
	Direction Direction `json:"direction"`
	State     PeerState `json:"state"`
	LastSeen  time.Time `json:"last_seen"`
}

// Peer is a single live connection. Writes go through a bounded queue drained
// by one writer goroutine; reads are throttled by a per-peer limiter.
type Peer struct {
	address   string
	direction Direction
	conn      net.Conn

	state    atomic.Int32
	lastSeen atomic.Int64

	reader  *frame.Reader
	writer  *frame.Writer
	limiter *rate.Limiter

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(conn net.Conn, address string, direction Direction, limiter *rate.Limiter, queueSize int, maxFrameSize uint32) *Peer {
	p := &Peer{
		address:   address,
		direction: direction,
		conn:      conn,
		reader:    frame.NewReader(conn, frame.WithMaxSize(maxFrameSize)),
		writer:    frame.NewWriter(conn, frame.WithMaxSize(maxFrameSize)),
		limiter:   limiter,
		outbound:  make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
	p.state.Store(int32(PeerConnecting))
	p.touch()

	return p
}

func (p *Peer) Address() string {
	return p.address
}

func (p *Peer) State() PeerState {
	return PeerState(p.state.Load())
}

func (p *Peer) LastSeen() time.Time {
	return time.Unix(0, p.lastSeen.Load())
}

func (p *Peer) Info() PeerInfo {
	return PeerInfo{
		Address:   p.address,
		Direction: p.direction,
		State:     p.State(),
		LastSeen:  p.LastSeen(),
	}
}

func (p *Peer) touch() {
	p.lastSeen.Store(time.Now().UnixNano())
}

// Done is closed once the connection is torn down.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Send queues m for delivery without blocking.
func (p *Peer) Send(m Message) error {
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}

	return p.sendRaw(data)
}

func (p *Peer) sendRaw(data []byte) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.outbound <- data:
		return nil
	case <-p.done:
		return ErrPeerClosed
	default:
		return ErrSendQueueFull
	}
}

// Close tears down the connection. It is safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.state.Store(int32(PeerDisconnected))
		close(p.done)
		_ = p.conn.Close()
	})
}

// writeLoop drains the outbound queue until the peer or ctx is done.
func (p *Peer) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case data := <-p.outbound:
			if err := p.writer.WriteFrame(data); err != nil {
				return fmt.Errorf("%w: write to %s: %w", ErrNetwork, p.address, err)
			}
		}
	}
}

// readLoop decodes frames and hands each message to handle. It returns on the
// first wire or decoding error; a clean remote close returns nil.
func (p *Peer) readLoop(ctx context.Context, handle func(context.Context, Message)) error {
	for {
		data, err := p.reader.ReadFrame()
		if err != nil {
			select {
			case <-p.done:
				return nil
			default:
			}

			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, frame.ErrFrameTooLarge) || errors.Is(err, frame.ErrEmptyFrame) {
				return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
			}
			return fmt.Errorf("%w: read from %s: %w", ErrNetwork, p.address, err)
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		m, err := DecodeMessage(data)
		if err != nil {
			return err
		}

		p.touch()
		handle(ctx, m)
	}
}
