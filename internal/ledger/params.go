package ledger

// Params are the consensus parameters every node of a network must share.
type Params struct {
	// Difficulty is the number of leading zero bits a block hash needs.
	Difficulty uint8

	// MaxBlockTransactions caps the non-coinbase transactions in a block.
	MaxBlockTransactions int

	// Reward is the largest coinbase amount a block may mint.
	Reward uint64
}
