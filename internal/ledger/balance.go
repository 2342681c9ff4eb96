package ledger

import "github.com/gabapcia/powchain/internal/pkg/types"

// Balances walks the chain crediting recipients and debiting senders.
// Debits saturate at zero. Block validation does not enforce balances;
// admission to the pool does.
func Balances(blocks []Block) map[PublicKey]uint64 {
	balances := types.NewDefaultMap[PublicKey](func() uint64 { return 0 })

	for _, b := range blocks {
		for _, tx := range b.Transactions {
			balances.Update(tx.Recipient, func(v uint64) uint64 {
				return saturatingAdd(v, tx.Amount)
			})

			if tx.IsCoinbase() {
				continue
			}

			balances.Update(tx.Sender, func(v uint64) uint64 {
				return saturatingSub(v, tx.Amount)
			})
		}
	}

	return balances.ToMap()
}

// Balance returns the balance of a single account.
func Balance(blocks []Block, account PublicKey) uint64 {
	return Balances(blocks)[account]
}

func saturatingAdd(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
