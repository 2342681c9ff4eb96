package ledger_test

import (
	"testing"

	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/ledger/ledgertest"
	"github.com/gabapcia/powchain/internal/wallet"
)

var testParams = ledgertest.Params

func newWallet(t *testing.T) *wallet.Wallet {
	return ledgertest.NewWallet(t)
}

func transfer(t *testing.T, from, to *wallet.Wallet, amount uint64, ts int64) ledger.Transaction {
	return ledgertest.Transfer(t, from, to, amount, ts)
}

func seal(t *testing.T, prev ledger.Block, difficulty uint8, txs ...ledger.Transaction) ledger.Block {
	return ledgertest.Seal(t, prev, difficulty, txs...)
}

func sealHeader(t *testing.T, header ledger.BlockHeader, txs ...ledger.Transaction) ledger.Block {
	return ledgertest.SealHeader(t, header, txs...)
}

func buildChain(t *testing.T, n int, txs ...ledger.Transaction) []ledger.Block {
	return ledgertest.Chain(t, n, txs...)
}
