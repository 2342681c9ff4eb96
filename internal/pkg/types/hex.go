package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HexBytes is a byte slice that is encoded as a lowercase hexadecimal JSON
// string (e.g., "3045022100..."). An optional "0x" prefix is accepted on input.
type HexBytes []byte

// HexBytesFromString decodes s into a HexBytes value.
func HexBytesFromString(s string) (HexBytes, error) {
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hexadecimal value: %w", err)
	}
	return b, nil
}

// DecodeHexInto decodes s into dst, requiring the decoded value to fill dst exactly.
// It is meant for fixed-width values such as hashes and public keys.
func DecodeHexInto(dst []byte, s string) error {
	s = trimHexPrefix(s)
	if hex.DecodedLen(len(s)) != len(dst) {
		return fmt.Errorf("invalid hexadecimal length: expected %d bytes, got %d characters", len(dst), len(s))
	}

	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("invalid hexadecimal value: %w", err)
	}

	return nil
}

func trimHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// String returns the lowercase hexadecimal representation without prefix.
func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

// MarshalJSON encodes the bytes as a JSON hex string.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON parses a JSON hex string. An empty string decodes to nil.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid hex string: %w", err)
	}

	if s == "" {
		*h = nil
		return nil
	}

	b, err := HexBytesFromString(s)
	if err != nil {
		return err
	}

	*h = b
	return nil
}
