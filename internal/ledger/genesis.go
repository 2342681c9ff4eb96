package ledger

const genesisTimestamp = 1700000000

var genesis = func() Block {
	b := Block{
		BlockHeader: BlockHeader{
			Index:     0,
			Timestamp: genesisTimestamp,
		},
		Transactions: []Transaction{},
	}
	b.Hash = b.ComputeHash()
	return b
}()

// Genesis returns the fixed first block shared by every node.
func Genesis() Block {
	return genesis
}

// IsGenesis reports whether b is exactly the genesis block.
func IsGenesis(b Block) bool {
	return b.BlockHeader == genesis.BlockHeader &&
		len(b.Transactions) == 0 &&
		b.Hash == genesis.Hash
}
