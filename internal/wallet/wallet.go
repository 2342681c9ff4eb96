// Package wallet holds secp256k1 key pairs and signs transactions with them.
// A Wallet never leaves the client process; only its public key, used as the
// account address, is shared with nodes.
package wallet

import (
	"errors"
	"fmt"

	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/pkg/types"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const privateKeySize = 32

var (
	ErrInvalidPrivateKey = fmt.Errorf("%w: invalid private key", ledger.ErrCrypto)
	ErrSenderMismatch    = fmt.Errorf("%w: sender is not this wallet", ledger.ErrValidation)
)

// Wallet is a secp256k1 key pair.
type Wallet struct {
	privateKey *secp256k1.PrivateKey
	publicKey  ledger.PublicKey
}

func newWallet(key *secp256k1.PrivateKey) *Wallet {
	var pk ledger.PublicKey
	copy(pk[:], key.PubKey().SerializeCompressed())

	return &Wallet{
		privateKey: key,
		publicKey:  pk,
	}
}

// Generate creates a wallet from a fresh random private key.
func Generate() (*Wallet, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Join(ErrInvalidPrivateKey, err)
	}

	return newWallet(key), nil
}

// FromPrivateKey restores a wallet from its 32-byte private scalar.
func FromPrivateKey(b []byte) (*Wallet, error) {
	if len(b) != privateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrivateKey, privateKeySize, len(b))
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidPrivateKey)
	}

	return newWallet(secp256k1.NewPrivateKey(&scalar)), nil
}

// PrivateKey returns the 32-byte private scalar for persistence.
func (w *Wallet) PrivateKey() []byte {
	return w.privateKey.Serialize()
}

func (w *Wallet) PublicKey() ledger.PublicKey {
	return w.publicKey
}

// Address is the hex encoding of the compressed public key.
func (w *Wallet) Address() string {
	return w.publicKey.String()
}

// Sign produces a DER ECDSA signature over fields. Fields that could never form
// a valid transaction are rejected before any signing work.
func (w *Wallet) Sign(fields ledger.TransactionFields) (types.HexBytes, error) {
	switch {
	case fields.Amount == 0:
		return nil, ledger.ErrInvalidAmount
	case fields.Recipient.IsZero():
		return nil, ledger.ErrMissingRecipient
	case fields.Sender != w.publicKey:
		return nil, ErrSenderMismatch
	}

	hash := ledger.SigningHash(fields)
	return ecdsa.Sign(w.privateKey, hash[:]).Serialize(), nil
}

// NewTransaction builds and signs a transfer from this wallet.
func (w *Wallet) NewTransaction(recipient ledger.PublicKey, amount uint64, timestamp int64) (ledger.Transaction, error) {
	fields := ledger.TransactionFields{
		Sender:    w.publicKey,
		Recipient: recipient,
		Amount:    amount,
		Timestamp: timestamp,
	}

	sig, err := w.Sign(fields)
	if err != nil {
		return ledger.Transaction{}, err
	}

	return ledger.Transaction{
		TransactionFields: fields,
		Signature:         sig,
	}, nil
}

// ParseAddress decodes an account address into a public key.
func ParseAddress(address string) (ledger.PublicKey, error) {
	return ledger.ParsePublicKey(address)
}
