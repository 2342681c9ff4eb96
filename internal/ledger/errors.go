package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of every structural or consensus rule violation.
	ErrValidation = errors.New("validation error")

	// ErrCrypto is the root of every key or signature failure.
	ErrCrypto = errors.New("crypto error")
)

var (
	ErrInvalidPublicKey = fmt.Errorf("%w: invalid public key", ErrCrypto)
	ErrBadSignature     = fmt.Errorf("%w: signature verification failed", ErrCrypto)

	ErrInvalidAmount        = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrMissingRecipient     = fmt.Errorf("%w: recipient is required", ErrValidation)
	ErrUnexpectedCoinbase   = fmt.Errorf("%w: coinbase transaction outside of a block", ErrValidation)
	ErrInvalidCoinbase      = fmt.Errorf("%w: invalid coinbase transaction", ErrValidation)
	ErrMisplacedCoinbase    = fmt.Errorf("%w: coinbase must be the first transaction", ErrValidation)
	ErrDuplicateTransaction = fmt.Errorf("%w: duplicate transaction", ErrValidation)
	ErrTooManyTransactions  = fmt.Errorf("%w: too many transactions", ErrValidation)
	ErrInsufficientFunds    = fmt.Errorf("%w: insufficient funds", ErrValidation)

	ErrInvalidIndex        = fmt.Errorf("%w: invalid block index", ErrValidation)
	ErrInvalidPreviousHash = fmt.Errorf("%w: previous hash mismatch", ErrValidation)
	ErrHashMismatch        = fmt.Errorf("%w: block hash mismatch", ErrValidation)
	ErrInvalidDifficulty   = fmt.Errorf("%w: unexpected difficulty", ErrValidation)
	ErrInsufficientWork    = fmt.Errorf("%w: hash does not meet difficulty", ErrValidation)
	ErrInvalidTimestamp    = fmt.Errorf("%w: timestamp precedes previous block", ErrValidation)

	ErrEmptyChain     = fmt.Errorf("%w: empty chain", ErrValidation)
	ErrInvalidGenesis = fmt.Errorf("%w: genesis block mismatch", ErrValidation)
)
