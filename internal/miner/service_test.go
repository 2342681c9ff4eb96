package miner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gabapcia/powchain/internal/chain"
	"github.com/gabapcia/powchain/internal/consensus"
	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/ledger/ledgertest"
	"github.com/gabapcia/powchain/internal/mempool"
	"github.com/gabapcia/powchain/internal/pkg/logger"
	"github.com/gabapcia/powchain/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init(logger.WithLevel("error"))
}

type broadcasterMock struct {
	mock.Mock
}

func (m *broadcasterMock) BroadcastBlock(ctx context.Context, block ledger.Block) {
	m.Called(ctx, block)
}

func newBroadcasterMock(t *testing.T) *broadcasterMock {
	m := new(broadcasterMock)
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// unsolvableLedger never lets a nonce succeed and bumps its version after
// a fixed number of reads.
type unsolvableLedger struct {
	Ledger
	reads    atomic.Int64
	bumpAt   int64
	selected []ledger.Transaction
}

func (l *unsolvableLedger) Params() ledger.Params {
	return ledger.Params{Difficulty: 255, MaxBlockTransactions: 10, Reward: 100}
}

func (l *unsolvableLedger) Tip() ledger.Block { return ledger.Genesis() }

func (l *unsolvableLedger) SelectTransactions(int) []ledger.Transaction { return l.selected }

func (l *unsolvableLedger) Version() uint64 {
	if n := l.reads.Add(1); l.bumpAt > 0 && n >= l.bumpAt {
		return 1
	}
	return 0
}

func newEngineWithParams(t *testing.T, params ledger.Params) *consensus.Engine {
	t.Helper()

	store, err := chain.New(t.Context(), params)
	require.NoError(t, err)

	return consensus.New(store, mempool.New())
}

func newEngine(t *testing.T) *consensus.Engine {
	t.Helper()

	return newEngineWithParams(t, ledgertest.Params)
}

// newFundedEngine returns an engine whose chain credits amount to w in block 1.
func newFundedEngine(t *testing.T, w *wallet.Wallet, amount uint64) *consensus.Engine {
	t.Helper()

	e := newEngine(t)
	require.NoError(t, e.AcceptBlock(t.Context(), ledgertest.Fund(t, e.Tip(), ledgertest.Params.Difficulty, w, amount)))
	return e
}

func TestService_MineBlock(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)

	t.Run("seals pending transactions on the tip", func(t *testing.T) {
		e := newFundedEngine(t, alice, 100)
		tip := e.Tip()
		tx := ledgertest.Transfer(t, alice, bob, 10, 1700000100)
		require.NoError(t, e.SubmitTransaction(t.Context(), tx))

		b := newBroadcasterMock(t)
		b.On("BroadcastBlock", mock.Anything, mock.AnythingOfType("ledger.Block")).Once()

		m, err := New(e, WithBroadcaster(b), WithBatchSize(64))
		require.NoError(t, err)

		block, err := m.MineBlock(t.Context())
		require.NoError(t, err)

		assert.Equal(t, uint64(2), block.Index)
		assert.Equal(t, tip.Hash, block.PreviousHash)
		assert.Equal(t, []ledger.Transaction{tx}, block.Transactions)
		assert.True(t, ledger.MeetsDifficulty(block.Hash, ledgertest.Params.Difficulty))
		assert.Equal(t, block, e.Tip())
		assert.Zero(t, e.MempoolSize())
		assert.Equal(t, Sealed, m.State())
	})

	t.Run("empty pool without empty blocks", func(t *testing.T) {
		m, err := New(newEngine(t))
		require.NoError(t, err)

		_, err = m.MineBlock(t.Context())
		assert.ErrorIs(t, err, ErrNothingToMine)
		assert.Equal(t, Idle, m.State())
	})

	t.Run("empty block pays the reward address", func(t *testing.T) {
		e := newEngine(t)
		m, err := New(e, WithEmptyBlocks(true), WithRewardAddress(alice.PublicKey()))
		require.NoError(t, err)

		block, err := m.MineBlock(t.Context())
		require.NoError(t, err)

		require.Len(t, block.Transactions, 1)
		assert.True(t, block.Transactions[0].IsCoinbase())
		assert.Equal(t, alice.PublicKey(), block.Transactions[0].Recipient)
		assert.Equal(t, ledgertest.Params.Reward, e.Balance(alice.PublicKey()))
	})

	t.Run("reward of zero seals without a coinbase", func(t *testing.T) {
		e := newEngineWithParams(t, ledger.Params{Difficulty: 4, MaxBlockTransactions: 10, Reward: 0})
		m, err := New(e, WithEmptyBlocks(true), WithRewardAddress(alice.PublicKey()))
		require.NoError(t, err)

		for i := uint64(1); i <= 2; i++ {
			block, err := m.MineBlock(t.Context())
			require.NoError(t, err)

			assert.Equal(t, i, block.Index)
			assert.Empty(t, block.Transactions)
		}
		assert.Equal(t, uint64(2), e.Height())
		assert.Zero(t, e.Balance(alice.PublicKey()))
	})

	t.Run("timestamp never precedes the tip", func(t *testing.T) {
		e := newEngine(t)
		m, err := New(e,
			WithEmptyBlocks(true),
			WithClock(func() time.Time { return time.Unix(1, 0) }),
		)
		require.NoError(t, err)

		block, err := m.MineBlock(t.Context())
		require.NoError(t, err)
		assert.Equal(t, ledger.Genesis().Timestamp, block.Timestamp)
	})
}

func TestService_search(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)
	pending := []ledger.Transaction{ledgertest.Transfer(t, alice, bob, 1, 1700000100)}

	t.Run("abandons the candidate when the tip moves", func(t *testing.T) {
		l := &unsolvableLedger{bumpAt: 3, selected: pending}
		m, err := New(l, WithBatchSize(16))
		require.NoError(t, err)

		_, err = m.search(t.Context())
		assert.ErrorIs(t, err, errTipChanged)
		assert.Equal(t, Idle, m.State())
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		l := &unsolvableLedger{selected: pending}
		m, err := New(l, WithBatchSize(16))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		_, err = m.search(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestService_Start(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)

	t.Run("cannot start twice", func(t *testing.T) {
		m, err := New(newEngine(t))
		require.NoError(t, err)

		require.NoError(t, m.Start(t.Context()))
		defer m.Close()

		assert.ErrorIs(t, m.Start(t.Context()), ErrServiceAlreadyStarted)
	})

	t.Run("mines submitted transactions in the background", func(t *testing.T) {
		e := newFundedEngine(t, alice, 100)
		m, err := New(e, WithIdleInterval(time.Hour))
		require.NoError(t, err)

		require.NoError(t, m.Start(t.Context()))
		defer m.Close()

		require.NoError(t, e.SubmitTransaction(t.Context(), ledgertest.Transfer(t, alice, bob, 5, 1700000100)))

		assert.Eventually(t, func() bool {
			return e.Height() == 2
		}, 5*time.Second, 10*time.Millisecond)
		assert.Zero(t, e.MempoolSize())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		m, err := New(newEngine(t))
		require.NoError(t, err)

		require.NoError(t, m.Start(t.Context()))
		m.Close()
		m.Close()
	})
}
