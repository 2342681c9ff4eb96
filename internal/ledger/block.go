package ledger

import (
	"crypto/sha256"
	"encoding/binary"
)

// BlockHeader holds the hashed scalar fields of a block.
type BlockHeader struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	PreviousHash Hash   `json:"previous_hash"`
	Difficulty   uint8  `json:"difficulty"`
	Nonce        uint64 `json:"nonce"`
}

// Block is a sealed batch of transactions. Hash is carried on the wire and
// always checked against HashBlock on receipt.
type Block struct {
	BlockHeader
	Transactions []Transaction `json:"transactions"`
	Hash         Hash          `json:"hash"`
}

// Hasher computes block hashes for a fixed header and transaction list while
// varying only the nonce. The nonce is the trailing field of the encoding so
// the rest of the buffer is built once.
type Hasher struct {
	buf []byte
}

// NewHasher encodes header (minus nonce) and txs in canonical order:
// index ‖ timestamp ‖ previous_hash ‖ difficulty ‖ per tx (id ‖ sig length ‖ sig) ‖ nonce.
func NewHasher(header BlockHeader, txs []Transaction) *Hasher {
	size := 8 + 8 + HashSize + 1 + 8
	for _, tx := range txs {
		size += HashSize + 2 + len(tx.Signature)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint64(buf, header.Index)
	buf = binary.BigEndian.AppendUint64(buf, uint64(header.Timestamp))
	buf = append(buf, header.PreviousHash[:]...)
	buf = append(buf, header.Difficulty)
	for _, tx := range txs {
		id := tx.ID()
		buf = append(buf, id[:]...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(tx.Signature)))
		buf = append(buf, tx.Signature...)
	}
	buf = binary.BigEndian.AppendUint64(buf, 0)

	return &Hasher{buf: buf}
}

// Hash returns the block hash for nonce.
func (h *Hasher) Hash(nonce uint64) Hash {
	binary.BigEndian.PutUint64(h.buf[len(h.buf)-8:], nonce)
	return sha256.Sum256(h.buf)
}

// HashBlock is a pure function of the header fields and the ordered transactions.
func HashBlock(header BlockHeader, txs []Transaction) Hash {
	return NewHasher(header, txs).Hash(header.Nonce)
}

// ComputeHash recomputes the hash of b from its contents.
func (b Block) ComputeHash() Hash {
	return HashBlock(b.BlockHeader, b.Transactions)
}

// TransactionIDs lists the ids of the block's transactions in order.
func (b Block) TransactionIDs() []Hash {
	ids := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID()
	}
	return ids
}
