package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/gabapcia/powchain/internal/pkg/types"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// signingBytesSize is sender(33) + recipient(33) + amount(8) + timestamp(8).
const signingBytesSize = 2*PublicKeySize + 8 + 8

// TransactionFields are the signed part of a transaction.
type TransactionFields struct {
	Sender    PublicKey `json:"sender"`
	Recipient PublicKey `json:"recipient"`
	Amount    uint64    `json:"amount"`
	Timestamp int64     `json:"timestamp"`
}

// Transaction is a signed value transfer. Signature is a DER-encoded ECDSA
// signature over SigningHash(fields), empty for coinbase transactions.
type Transaction struct {
	TransactionFields
	Signature types.HexBytes `json:"signature"`
}

// SigningBytes returns the canonical fixed-layout encoding of fields:
// sender ‖ recipient ‖ amount (u64 BE) ‖ timestamp (i64 BE).
func SigningBytes(fields TransactionFields) []byte {
	buf := make([]byte, 0, signingBytesSize)
	buf = append(buf, fields.Sender[:]...)
	buf = append(buf, fields.Recipient[:]...)
	buf = binary.BigEndian.AppendUint64(buf, fields.Amount)
	buf = binary.BigEndian.AppendUint64(buf, uint64(fields.Timestamp))
	return buf
}

// SigningHash is the digest that gets signed and verified.
func SigningHash(fields TransactionFields) Hash {
	return sha256.Sum256(SigningBytes(fields))
}

// ID identifies a transaction by the hash of its signed encoding.
func (tx Transaction) ID() Hash {
	return SigningHash(tx.TransactionFields)
}

// IsCoinbase reports whether tx is a block reward, which has no sender.
func (tx Transaction) IsCoinbase() bool {
	return tx.Sender.IsZero()
}

// NewCoinbase builds the unsigned reward transaction paying the block miner.
func NewCoinbase(recipient PublicKey, reward uint64, timestamp int64) Transaction {
	return Transaction{
		TransactionFields: TransactionFields{
			Recipient: recipient,
			Amount:    reward,
			Timestamp: timestamp,
		},
	}
}

func (pk PublicKey) parse() (*secp256k1.PublicKey, error) {
	key, err := secp256k1.ParsePubKey(pk[:])
	if err != nil {
		return nil, errors.Join(ErrInvalidPublicKey, err)
	}
	return key, nil
}

// Verify reports whether signature is a valid signature of fields by key.
// Malformed keys or signatures yield false.
func Verify(key PublicKey, fields TransactionFields, signature []byte) bool {
	pub, err := key.parse()
	if err != nil {
		return false
	}

	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}

	hash := SigningHash(fields)
	return sig.Verify(hash[:], pub)
}

// Verify checks that tx is a well-formed, correctly signed transfer.
func (tx Transaction) Verify() error {
	if tx.IsCoinbase() {
		return ErrUnexpectedCoinbase
	}

	if tx.Amount == 0 {
		return ErrInvalidAmount
	}

	if tx.Recipient.IsZero() {
		return ErrMissingRecipient
	}

	if _, err := tx.Sender.parse(); err != nil {
		return err
	}

	if !Verify(tx.Sender, tx.TransactionFields, tx.Signature) {
		return ErrBadSignature
	}

	return nil
}
