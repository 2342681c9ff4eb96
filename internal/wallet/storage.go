package wallet

import (
	"context"
	"errors"
)

// ErrWalletNotFound is returned by Storage when no wallet exists under a name.
var ErrWalletNotFound = errors.New("wallet not found")

// Storage persists wallets by name.
type Storage interface {
	SaveWallet(ctx context.Context, name string, w *Wallet) error
	LoadWallet(ctx context.Context, name string) (*Wallet, error)
}
