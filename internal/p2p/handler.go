package p2p

import (
	"context"
	"errors"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func (s *service) handle(ctx context.Context, from *Peer, m Message) {
	s.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("message.type", string(m.Type()))))

	switch m := m.(type) {
	case NewTransaction:
		s.handleNewTransaction(ctx, from, m)
	case NewBlock:
		s.handleNewBlock(ctx, from, m)
	case ChainRequest:
		s.handleChainRequest(ctx, from)
	case ChainResponse:
		s.handleChainResponse(ctx, from, m)
	}
}

func (s *service) handleNewTransaction(ctx context.Context, from *Peer, m NewTransaction) {
	id := m.Transaction.ID()
	if !s.seen.firstSeen(TypeNewTransaction, id) {
		return
	}

	if err := s.ledger.SubmitTransaction(ctx, m.Transaction); err != nil {
		logger.Warn(ctx, "transaction rejected from peer",
			"peer.address", from.Address(),
			"tx.id", id,
			"error", err,
		)
		return
	}

	s.relay(ctx, from, m)
}

func (s *service) handleNewBlock(ctx context.Context, from *Peer, m NewBlock) {
	block := m.Block
	if !s.seen.firstSeen(TypeNewBlock, block.ComputeHash()) {
		return
	}

	tip := s.ledger.Tip()
	switch {
	case block.Index == tip.Index+1 && block.PreviousHash == tip.Hash:
		if err := s.ledger.AcceptBlock(ctx, block); err != nil {
			logger.Warn(ctx, "block rejected from peer",
				"peer.address", from.Address(),
				"block.index", block.Index,
				"block.hash", block.Hash,
				"error", err,
			)
			return
		}
		s.relay(ctx, from, m)

	case block.Index > tip.Index:
		// The sender is on another branch that may be heavier.
		logger.Info(ctx, "peer announced a block ahead of the tip, requesting its chain",
			"peer.address", from.Address(),
			"block.index", block.Index,
			"chain.height", tip.Index,
		)
		if err := from.Send(ChainRequest{}); err != nil {
			logger.Warn(ctx, "failed to request chain from peer", "peer.address", from.Address(), "error", err)
		}

	default:
		logger.Debug(ctx, "ignoring block behind the tip",
			"peer.address", from.Address(),
			"block.index", block.Index,
		)
	}
}

func (s *service) handleChainRequest(ctx context.Context, from *Peer) {
	if err := from.Send(ChainResponse{Blocks: s.ledger.Blocks()}); err != nil {
		logger.Warn(ctx, "failed to answer chain request", "peer.address", from.Address(), "error", err)
	}
}

func (s *service) handleChainResponse(ctx context.Context, from *Peer, m ChainResponse) {
	replacement, err := s.ledger.ProposeChain(ctx, m.Blocks)
	switch {
	case errors.Is(err, chain.ErrNotHeavier):
		logger.Debug(ctx, "peer chain is not heavier, keeping the active chain",
			"peer.address", from.Address(),
			"peer.height", len(m.Blocks),
		)
		return
	case err != nil:
		logger.Warn(ctx, "peer chain rejected",
			"peer.address", from.Address(),
			"error", err,
		)
		return
	}

	logger.Info(ctx, "adopted peer chain",
		"peer.address", from.Address(),
		"chain.fork_index", replacement.ForkIndex,
		"chain.blocks_removed", len(replacement.Removed),
		"chain.blocks_added", len(replacement.Added),
	)

	tip := m.Blocks[len(m.Blocks)-1]
	s.seen.firstSeen(TypeNewBlock, tip.Hash)
	s.relay(ctx, from, NewBlock{Block: tip})
}
