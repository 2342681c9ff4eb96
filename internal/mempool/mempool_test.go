package mempool

import (
	"sync"
	"testing"
	"time"

	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/ledger/ledgertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Submit(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)

	t.Run("valid transaction is pending", func(t *testing.T) {
		pool := New()
		tx := ledgertest.Transfer(t, alice, bob, 10, 1700000100)

		require.NoError(t, pool.Submit(tx))
		assert.Equal(t, 1, pool.Size())
		assert.True(t, pool.Contains(tx.ID()))
	})

	t.Run("duplicate is rejected", func(t *testing.T) {
		pool := New()
		tx := ledgertest.Transfer(t, alice, bob, 10, 1700000100)
		require.NoError(t, pool.Submit(tx))

		err := pool.Submit(tx)
		assert.ErrorIs(t, err, ErrDuplicate)
		assert.ErrorIs(t, err, ErrMempool)
		assert.Equal(t, 1, pool.Size())
	})

	t.Run("bad signature is rejected", func(t *testing.T) {
		pool := New()
		tx := ledgertest.Transfer(t, alice, bob, 10, 1700000100)
		tx.Amount = 20

		assert.ErrorIs(t, pool.Submit(tx), ledger.ErrCrypto)
		assert.Zero(t, pool.Size())
	})

	t.Run("coinbase is rejected", func(t *testing.T) {
		pool := New()

		err := pool.Submit(ledger.NewCoinbase(bob.PublicKey(), 100, 1700000100))
		assert.ErrorIs(t, err, ledger.ErrUnexpectedCoinbase)
	})

	t.Run("full pool rejects new arrivals", func(t *testing.T) {
		pool := New(WithCapacity(2))
		first := ledgertest.Transfer(t, alice, bob, 1, 1700000100)
		second := ledgertest.Transfer(t, alice, bob, 2, 1700000100)
		require.NoError(t, pool.Submit(first))
		require.NoError(t, pool.Submit(second))

		err := pool.Submit(ledgertest.Transfer(t, alice, bob, 3, 1700000100))
		assert.ErrorIs(t, err, ErrCapacityExceeded)
		assert.Equal(t, []ledger.Transaction{first, second}, pool.Transactions())
	})

	t.Run("submission signals the miner once per burst", func(t *testing.T) {
		pool := New()
		require.NoError(t, pool.Submit(ledgertest.Transfer(t, alice, bob, 1, 1700000100)))
		require.NoError(t, pool.Submit(ledgertest.Transfer(t, alice, bob, 2, 1700000100)))

		assert.Len(t, pool.Added(), 1)
	})

	t.Run("concurrent duplicates are admitted once", func(t *testing.T) {
		pool := New()
		tx := ledgertest.Transfer(t, alice, bob, 5, 1700000100)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if pool.Submit(tx) == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, accepted)
		assert.Equal(t, 1, pool.Size())
	})
}

func TestPool_SelectForBlock(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)
	pool := New()

	var submitted []ledger.Transaction
	for i := range 5 {
		tx := ledgertest.Transfer(t, alice, bob, uint64(i+1), 1700000100)
		require.NoError(t, pool.Submit(tx))
		submitted = append(submitted, tx)
	}

	t.Run("oldest first and bounded", func(t *testing.T) {
		assert.Equal(t, submitted[:3], pool.SelectForBlock(3))
	})

	t.Run("bound larger than pool", func(t *testing.T) {
		assert.Equal(t, submitted, pool.SelectForBlock(100))
	})

	t.Run("selection does not remove", func(t *testing.T) {
		pool.SelectForBlock(5)
		assert.Equal(t, 5, pool.Size())
	})

	t.Run("zero bound", func(t *testing.T) {
		assert.Empty(t, pool.SelectForBlock(0))
	})
}

func TestPool_RemoveConfirmed(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)

	pool := New()
	included := ledgertest.Transfer(t, alice, bob, 1, 1700000100)
	pending := ledgertest.Transfer(t, alice, bob, 2, 1700000100)
	require.NoError(t, pool.Submit(included))
	require.NoError(t, pool.Submit(pending))

	block := ledgertest.Seal(t, ledger.Genesis(), ledgertest.Params.Difficulty, included)

	pool.RemoveConfirmed(block)
	assert.Equal(t, []ledger.Transaction{pending}, pool.Transactions())

	t.Run("idempotent", func(t *testing.T) {
		pool.RemoveConfirmed(block)
		assert.Equal(t, []ledger.Transaction{pending}, pool.Transactions())
	})

	t.Run("removed transaction can be submitted again", func(t *testing.T) {
		assert.NoError(t, pool.Submit(included))
	})
}

func TestPool_EvictExpired(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)

	t.Run("drops stale entries only", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		pool := New(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

		stale := ledgertest.Transfer(t, alice, bob, 1, 1700000100)
		require.NoError(t, pool.Submit(stale))

		now = now.Add(2 * time.Minute)
		fresh := ledgertest.Transfer(t, alice, bob, 2, 1700000100)
		require.NoError(t, pool.Submit(fresh))

		evicted := pool.EvictExpired()
		assert.Equal(t, []ledger.Hash{stale.ID()}, evicted)
		assert.Equal(t, []ledger.Transaction{fresh}, pool.Transactions())
	})

	t.Run("disabled without ttl", func(t *testing.T) {
		pool := New()
		require.NoError(t, pool.Submit(ledgertest.Transfer(t, alice, bob, 1, 1700000100)))

		assert.Empty(t, pool.EvictExpired())
		assert.Equal(t, 1, pool.Size())
	})
}

func TestPool_Debits(t *testing.T) {
	alice, bob := ledgertest.NewWallet(t), ledgertest.NewWallet(t)

	t.Run("sums pending amounts sent by the account", func(t *testing.T) {
		pool := New()
		require.NoError(t, pool.Submit(ledgertest.Transfer(t, alice, bob, 10, 1700000100)))
		require.NoError(t, pool.Submit(ledgertest.Transfer(t, alice, bob, 15, 1700000101)))
		require.NoError(t, pool.Submit(ledgertest.Transfer(t, bob, alice, 7, 1700000100)))

		assert.Equal(t, uint64(25), pool.Debits(alice.PublicKey()))
		assert.Equal(t, uint64(7), pool.Debits(bob.PublicKey()))
	})

	t.Run("saturates instead of wrapping", func(t *testing.T) {
		pool := New()
		require.NoError(t, pool.Submit(ledgertest.Transfer(t, alice, bob, ^uint64(0), 1700000100)))
		require.NoError(t, pool.Submit(ledgertest.Transfer(t, alice, bob, 2, 1700000101)))

		assert.Equal(t, ^uint64(0), pool.Debits(alice.PublicKey()))
	})
}
