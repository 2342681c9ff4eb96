package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/gabapcia/powchain/internal/pkg/types"
)

const (
	HashSize      = 32
	PublicKeySize = 33
)

// Hash is a SHA-256 digest.
type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return types.DecodeHexInto(h[:], s)
}

// PublicKey is a SEC1 compressed secp256k1 public key. Its hex form is the
// account address. The zero value is reserved for coinbase senders.
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a hex address and checks that it is a point on the curve.
func ParsePublicKey(address string) (PublicKey, error) {
	var pk PublicKey
	if err := types.DecodeHexInto(pk[:], address); err != nil {
		return PublicKey{}, errors.Join(ErrInvalidPublicKey, err)
	}

	if _, err := pk.parse(); err != nil {
		return PublicKey{}, err
	}

	return pk, nil
}

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return types.DecodeHexInto(pk[:], s)
}
