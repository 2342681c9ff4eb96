package chain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/ledger/ledgertest"
	"github.com/gabapcia/powchain/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init(logger.WithLevel("error"))
}

type storageMock struct {
	mock.Mock
}

func newStorageMock(t *testing.T) *storageMock {
	m := &storageMock{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *storageMock) LoadChain(ctx context.Context) ([]ledger.Block, error) {
	args := m.Called(ctx)
	blocks, _ := args.Get(0).([]ledger.Block)
	return blocks, args.Error(1)
}

func (m *storageMock) AppendBlock(ctx context.Context, block ledger.Block) error {
	return m.Called(ctx, block).Error(0)
}

func (m *storageMock) ReplaceChain(ctx context.Context, blocks []ledger.Block) error {
	return m.Called(ctx, blocks).Error(0)
}

var _ Storage = (*storageMock)(nil)

func TestNew(t *testing.T) {
	t.Run("starts at genesis without storage", func(t *testing.T) {
		s, err := New(t.Context(), ledgertest.Params)
		require.NoError(t, err)

		assert.Equal(t, ledger.Genesis(), s.Tip())
		assert.Equal(t, uint64(0), s.Height())
		assert.Equal(t, uint64(0), s.Version())
	})

	t.Run("persists genesis when storage is empty", func(t *testing.T) {
		storage := newStorageMock(t)
		storage.On("LoadChain", mock.Anything).Return(nil, ErrNoChainFound)
		storage.On("ReplaceChain", mock.Anything, []ledger.Block{ledger.Genesis()}).Return(nil)

		_, err := New(t.Context(), ledgertest.Params, WithStorage(storage))
		require.NoError(t, err)
	})

	t.Run("resumes a stored chain", func(t *testing.T) {
		stored := ledgertest.Chain(t, 2)
		storage := newStorageMock(t)
		storage.On("LoadChain", mock.Anything).Return(stored, nil)

		s, err := New(t.Context(), ledgertest.Params, WithStorage(storage))
		require.NoError(t, err)
		assert.Equal(t, stored, s.Blocks())
	})

	t.Run("rejects an invalid stored chain", func(t *testing.T) {
		stored := ledgertest.Chain(t, 2)
		stored[2].Nonce++
		storage := newStorageMock(t)
		storage.On("LoadChain", mock.Anything).Return(stored, nil)

		_, err := New(t.Context(), ledgertest.Params, WithStorage(storage))
		assert.ErrorIs(t, err, ledger.ErrValidation)
	})

	t.Run("storage load failure", func(t *testing.T) {
		storage := newStorageMock(t)
		storage.On("LoadChain", mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := New(t.Context(), ledgertest.Params, WithStorage(storage))
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestStore_Append(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)

	t.Run("valid block becomes the tip", func(t *testing.T) {
		s, err := New(t.Context(), ledgertest.Params)
		require.NoError(t, err)

		tx := ledgertest.Transfer(t, alice, bob, 10, 1700000100)
		block := ledgertest.Seal(t, s.Tip(), ledgertest.Params.Difficulty, tx)
		changed := s.TipChanged()

		require.NoError(t, s.Append(t.Context(), block))

		assert.Equal(t, block, s.Tip())
		assert.Equal(t, uint64(1), s.Version())
		assert.True(t, s.HasTransaction(tx.ID()))
		assert.Equal(t, ledger.ChainWork([]ledger.Block{ledger.Genesis(), block}), s.Work())
		select {
		case <-changed:
		default:
			t.Fatal("tip change was not signalled")
		}
	})

	t.Run("block is persisted", func(t *testing.T) {
		storage := newStorageMock(t)
		storage.On("LoadChain", mock.Anything).Return([]ledger.Block{ledger.Genesis()}, nil)

		s, err := New(t.Context(), ledgertest.Params, WithStorage(storage))
		require.NoError(t, err)

		block := ledgertest.Seal(t, s.Tip(), ledgertest.Params.Difficulty)
		storage.On("AppendBlock", mock.Anything, block).Return(nil)

		require.NoError(t, s.Append(t.Context(), block))
	})

	t.Run("persistence failure keeps the block", func(t *testing.T) {
		storage := newStorageMock(t)
		storage.On("LoadChain", mock.Anything).Return([]ledger.Block{ledger.Genesis()}, nil)

		s, err := New(t.Context(), ledgertest.Params, WithStorage(storage))
		require.NoError(t, err)

		block := ledgertest.Seal(t, s.Tip(), ledgertest.Params.Difficulty)
		storage.On("AppendBlock", mock.Anything, block).Return(errors.New("disk full"))

		require.NoError(t, s.Append(t.Context(), block))
		assert.Equal(t, block, s.Tip())
	})

	t.Run("block on an old tip is stale", func(t *testing.T) {
		s, err := New(t.Context(), ledgertest.Params)
		require.NoError(t, err)

		first := ledgertest.Seal(t, s.Tip(), ledgertest.Params.Difficulty)
		require.NoError(t, s.Append(t.Context(), first))

		competing := ledgertest.Seal(t, ledger.Genesis(), ledgertest.Params.Difficulty,
			ledgertest.Transfer(t, alice, bob, 1, 1700000100),
		)
		assert.ErrorIs(t, s.Append(t.Context(), competing), ErrStaleTip)
		assert.Equal(t, first, s.Tip())
	})

	t.Run("invalid block leaves the chain untouched", func(t *testing.T) {
		s, err := New(t.Context(), ledgertest.Params)
		require.NoError(t, err)

		block := ledgertest.Seal(t, s.Tip(), ledgertest.Params.Difficulty, ledgertest.Transfer(t, alice, bob, 10, 1700000100))
		block.Transactions[0].Amount = 11

		assert.ErrorIs(t, s.Append(t.Context(), block), ledger.ErrValidation)
		assert.Equal(t, uint64(0), s.Height())
		assert.Equal(t, uint64(0), s.Version())
	})

	t.Run("replayed transfer is rejected", func(t *testing.T) {
		s, err := New(t.Context(), ledgertest.Params)
		require.NoError(t, err)

		tx := ledgertest.Transfer(t, alice, bob, 10, 1700000100)
		require.NoError(t, s.Append(t.Context(), ledgertest.Seal(t, s.Tip(), ledgertest.Params.Difficulty, tx)))

		replay := ledgertest.Seal(t, s.Tip(), ledgertest.Params.Difficulty, tx)
		assert.ErrorIs(t, s.Append(t.Context(), replay), ledger.ErrDuplicateTransaction)
	})
}

func TestStore_Replace(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)

	newStore := func(t *testing.T, blocks []ledger.Block) *Store {
		storage := newStorageMock(t)
		storage.On("LoadChain", mock.Anything).Return(blocks, nil)
		storage.On("ReplaceChain", mock.Anything, mock.Anything).Return(nil).Maybe()

		s, err := New(t.Context(), ledgertest.Params, WithStorage(storage))
		require.NoError(t, err)
		return s
	}

	t.Run("heavier fork is adopted", func(t *testing.T) {
		localTx := ledgertest.Transfer(t, alice, bob, 1, 1700000100)
		remoteTx := ledgertest.Transfer(t, bob, alice, 2, 1700000100)

		local := ledgertest.Chain(t, 1, localTx)
		remote := ledgertest.Chain(t, 2, remoteTx)
		s := newStore(t, local)

		replacement, err := s.Replace(t.Context(), remote)
		require.NoError(t, err)

		assert.Equal(t, remote, s.Blocks())
		assert.Equal(t, uint64(0), replacement.ForkIndex)
		assert.Equal(t, local[1:], replacement.Removed)
		assert.Equal(t, remote[1:], replacement.Added)
		assert.True(t, s.HasTransaction(remoteTx.ID()))
		assert.False(t, s.HasTransaction(localTx.ID()))
		assert.Equal(t, uint64(1), s.Version())
	})

	t.Run("extension of the active chain shares its prefix", func(t *testing.T) {
		local := ledgertest.Chain(t, 2)
		remote := ledgertest.Extend(t, local, 1)
		s := newStore(t, local)

		replacement, err := s.Replace(t.Context(), remote)
		require.NoError(t, err)

		assert.Equal(t, uint64(2), replacement.ForkIndex)
		assert.Empty(t, replacement.Removed)
		assert.Equal(t, remote[3:], replacement.Added)
	})

	t.Run("equal work keeps the active chain", func(t *testing.T) {
		local := ledgertest.Chain(t, 1, ledgertest.Transfer(t, alice, bob, 1, 1700000100))
		remote := ledgertest.Chain(t, 1, ledgertest.Transfer(t, alice, bob, 2, 1700000100))
		s := newStore(t, local)

		_, err := s.Replace(t.Context(), remote)
		assert.ErrorIs(t, err, ErrNotHeavier)
		assert.Equal(t, local, s.Blocks())
		assert.Equal(t, uint64(0), s.Version())
	})

	t.Run("shorter chain is ignored", func(t *testing.T) {
		s := newStore(t, ledgertest.Chain(t, 3))

		_, err := s.Replace(t.Context(), ledgertest.Chain(t, 1, ledgertest.Transfer(t, alice, bob, 1, 1700000100)))
		assert.ErrorIs(t, err, ErrNotHeavier)
	})

	t.Run("invalid heavier chain is rejected", func(t *testing.T) {
		s := newStore(t, ledgertest.Chain(t, 1))

		remote := ledgertest.Chain(t, 3, ledgertest.Transfer(t, alice, bob, 10, 1700000100))
		remote[1].Transactions[0].Amount = 1000

		_, err := s.Replace(t.Context(), remote)
		assert.ErrorIs(t, err, ledger.ErrValidation)
		assert.Equal(t, uint64(1), s.Height())
	})

	t.Run("readers never observe a partial chain", func(t *testing.T) {
		s := newStore(t, ledgertest.Chain(t, 1))
		remote := ledgertest.Chain(t, 4, ledgertest.Transfer(t, alice, bob, 3, 1700000100))

		var wg sync.WaitGroup
		stop := make(chan struct{})
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
						assert.NoError(t, ledger.ValidateChain(ledgertest.Params, s.Blocks()))
					}
				}
			}()
		}

		_, err := s.Replace(t.Context(), remote)
		close(stop)
		wg.Wait()

		require.NoError(t, err)
		assert.Equal(t, uint64(4), s.Height())
	})
}

func TestStore_Blocks(t *testing.T) {
	s, err := New(t.Context(), ledgertest.Params)
	require.NoError(t, err)

	snapshot := s.Blocks()
	snapshot[0].Nonce = 42

	assert.Equal(t, ledger.Genesis(), s.Tip())

	_, ok := s.BlockAt(1)
	assert.False(t, ok)
}

func TestStore_Balance(t *testing.T) {
	miner := ledgertest.NewWallet(t)
	s, err := New(t.Context(), ledgertest.Params)
	require.NoError(t, err)

	block := ledgertest.Seal(t, s.Tip(), ledgertest.Params.Difficulty,
		ledger.NewCoinbase(miner.PublicKey(), ledgertest.Params.Reward, 1700000100),
	)
	require.NoError(t, s.Append(t.Context(), block))

	assert.Equal(t, ledgertest.Params.Reward, s.Balance(miner.PublicKey()))
}
