package ledger

import (
	"math/big"
	"math/bits"
)

// LeadingZeroBits counts the zero bits at the start of h.
func LeadingZeroBits(h Hash) int {
	n := 0
	for _, b := range h {
		if b != 0 {
			return n + bits.LeadingZeros8(b)
		}
		n += 8
	}
	return n
}

// MeetsDifficulty reports whether h starts with at least difficulty zero bits.
func MeetsDifficulty(h Hash, difficulty uint8) bool {
	return LeadingZeroBits(h) >= int(difficulty)
}

// Work is the expected number of hashes needed to seal a block at difficulty.
func Work(difficulty uint8) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(difficulty))
}

// ChainWork sums the work of every block in blocks.
func ChainWork(blocks []Block) *big.Int {
	total := new(big.Int)
	for _, b := range blocks {
		total.Add(total, Work(b.Difficulty))
	}
	return total
}
