// Package ledgertest provides helpers to build signed transactions and sealed
// blocks in tests. Keep difficulties small: sealing is a real nonce search.
package ledgertest

import (
	"testing"

	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/wallet"

	"github.com/stretchr/testify/require"
)

// Params are cheap consensus parameters for tests.
var Params = ledger.Params{
	Difficulty:           4,
	MaxBlockTransactions: 10,
	Reward:               100,
}

// NewWallet generates a wallet or fails the test.
func NewWallet(t testing.TB) *wallet.Wallet {
	t.Helper()

	w, err := wallet.Generate()
	require.NoError(t, err)
	return w
}

// Transfer signs a transfer of amount from one wallet to another.
func Transfer(t testing.TB, from, to *wallet.Wallet, amount uint64, timestamp int64) ledger.Transaction {
	t.Helper()

	tx, err := from.NewTransaction(to.PublicKey(), amount, timestamp)
	require.NoError(t, err)
	return tx
}

// Seal mines a successor of prev holding txs.
func Seal(t testing.TB, prev ledger.Block, difficulty uint8, txs ...ledger.Transaction) ledger.Block {
	t.Helper()

	return SealHeader(t, ledger.BlockHeader{
		Index:        prev.Index + 1,
		Timestamp:    prev.Timestamp + 10,
		PreviousHash: prev.Hash,
		Difficulty:   difficulty,
	}, txs...)
}

// SealHeader searches nonces until header meets its difficulty.
func SealHeader(t testing.TB, header ledger.BlockHeader, txs ...ledger.Transaction) ledger.Block {
	t.Helper()

	hasher := ledger.NewHasher(header, txs)
	for nonce := uint64(0); ; nonce++ {
		if h := hasher.Hash(nonce); ledger.MeetsDifficulty(h, header.Difficulty) {
			header.Nonce = nonce
			return ledger.Block{BlockHeader: header, Transactions: txs, Hash: h}
		}
	}
}

// Extend appends n sealed blocks to chain; txs go into the first new block.
func Extend(t testing.TB, chain []ledger.Block, n int, txs ...ledger.Transaction) []ledger.Block {
	t.Helper()

	out := append([]ledger.Block(nil), chain...)
	for i := 0; i < n; i++ {
		var blockTxs []ledger.Transaction
		if i == 0 {
			blockTxs = txs
		}
		out = append(out, Seal(t, out[len(out)-1], Params.Difficulty, blockTxs...))
	}
	return out
}

// Chain builds genesis plus n sealed blocks; txs go into block 1.
func Chain(t testing.TB, n int, txs ...ledger.Transaction) []ledger.Block {
	t.Helper()

	return Extend(t, []ledger.Block{ledger.Genesis()}, n, txs...)
}

// Fund seals a successor of prev whose coinbase credits amount to w.
// amount must not exceed the reward of the chain it is appended to.
func Fund(t testing.TB, prev ledger.Block, difficulty uint8, w *wallet.Wallet, amount uint64) ledger.Block {
	t.Helper()

	return Seal(t, prev, difficulty, ledger.NewCoinbase(w.PublicKey(), amount, prev.Timestamp+10))
}
