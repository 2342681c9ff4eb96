package ledger

import (
	"fmt"

	"github.com/gabapcia/powchain/internal/pkg/types"
)

// ValidateTransaction checks a standalone transfer: positive amount, a
// recipient and a signature that verifies against the sender key.
func ValidateTransaction(tx Transaction) error {
	return tx.Verify()
}

// ValidateBlock checks that block is a valid successor of previous under params.
// Both hashes are recomputed, so a predecessor whose contents no longer match
// its stored hash is never linked to.
func ValidateBlock(params Params, block, previous Block) error {
	return validateSuccessor(params, block, previous, previous.ComputeHash())
}

// validateSuccessor checks block against previous, whose recomputed hash the
// caller already knows.
func validateSuccessor(params Params, block, previous Block, previousHash Hash) error {
	if block.Index != previous.Index+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidIndex, previous.Index+1, block.Index)
	}

	if block.PreviousHash != previousHash {
		return ErrInvalidPreviousHash
	}

	if block.Timestamp < previous.Timestamp {
		return ErrInvalidTimestamp
	}

	if block.Difficulty != params.Difficulty {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDifficulty, params.Difficulty, block.Difficulty)
	}

	hash := block.ComputeHash()
	if hash != block.Hash {
		return ErrHashMismatch
	}

	if !MeetsDifficulty(hash, block.Difficulty) {
		return ErrInsufficientWork
	}

	return validateTransactions(params, block.Transactions)
}

func validateTransactions(params Params, txs []Transaction) error {
	transfers := 0
	seen := types.NewSet[Hash]()

	for i, tx := range txs {
		if tx.IsCoinbase() {
			if err := validateCoinbase(params, i, tx); err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}
			continue
		}

		transfers++
		if transfers > params.MaxBlockTransactions {
			return fmt.Errorf("%w: limit is %d", ErrTooManyTransactions, params.MaxBlockTransactions)
		}

		id := tx.ID()
		if seen.Has(id) {
			return fmt.Errorf("transaction %d: %w: %s", i, ErrDuplicateTransaction, id)
		}
		seen.Add(id)

		if err := ValidateTransaction(tx); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	return nil
}

func validateCoinbase(params Params, position int, tx Transaction) error {
	switch {
	case position != 0:
		return ErrMisplacedCoinbase
	case tx.Amount == 0:
		return fmt.Errorf("%w: zero amount", ErrInvalidCoinbase)
	case tx.Amount > params.Reward:
		return fmt.Errorf("%w: amount %d exceeds reward %d", ErrInvalidCoinbase, tx.Amount, params.Reward)
	case tx.Recipient.IsZero():
		return fmt.Errorf("%w: missing recipient", ErrInvalidCoinbase)
	case len(tx.Signature) != 0:
		return fmt.Errorf("%w: coinbase must not be signed", ErrInvalidCoinbase)
	}

	return nil
}

// ValidateChain checks a whole chain: it must start at the genesis block,
// every adjacent pair must pass ValidateBlock and no transfer may appear twice.
func ValidateChain(params Params, blocks []Block) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}

	if !IsGenesis(blocks[0]) {
		return ErrInvalidGenesis
	}

	// Each block's hash is recomputed when it is validated, so the stored hash
	// can link the next pair.
	confirmed := types.NewSet[Hash]()
	for i := 1; i < len(blocks); i++ {
		if err := validateSuccessor(params, blocks[i], blocks[i-1], blocks[i-1].Hash); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}

		for _, tx := range blocks[i].Transactions {
			if tx.IsCoinbase() {
				continue
			}

			id := tx.ID()
			if confirmed.Has(id) {
				return fmt.Errorf("block %d: %w: %s", i, ErrDuplicateTransaction, id)
			}
			confirmed.Add(id)
		}
	}

	return nil
}
