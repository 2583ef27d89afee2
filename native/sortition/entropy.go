package sortition

import (
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrZeroTotal is returned when reducing entropy into an empty range.
var ErrZeroTotal = errors.New("sortition: total weight must be positive")

// entropyBits is the width of the seed space the reduction draws from.
const entropyBits = 256

// ReduceEntropy maps a 256-bit seed into [0, total) without modulo bias.
// Naive `seed % total` over-selects low values whenever total does not evenly
// divide the seed space, which skews draws toward low-slot participants.
// Rejection sampling re-hashes the seed with keccak256 until the candidate
// falls inside the largest multiple of total, then reduces. The expected
// number of re-hashes is below two for any total.
func ReduceEntropy(seed []byte, total *big.Int) (*big.Int, error) {
	if total == nil || total.Sign() <= 0 {
		return nil, ErrZeroTotal
	}

	space := new(big.Int).Lsh(big.NewInt(1), entropyBits)
	// limit = space - (space mod total): candidates at or above it would bias
	// the reduction and are rejected.
	limit := new(big.Int).Sub(space, new(big.Int).Mod(space, total))

	digest := ethcrypto.Keccak256(seed)
	candidate := new(big.Int).SetBytes(digest)
	for candidate.Cmp(limit) >= 0 {
		digest = ethcrypto.Keccak256(digest)
		candidate.SetBytes(digest)
	}
	return candidate.Mod(candidate, total), nil
}

// CombineEntropy derives the draw seed from the block hash captured at the
// lock boundary and the operator's revealed secret. The XOR keeps both
// parties' contributions in play; the trailing keccak decorrelates the result
// from either input alone. This is commit-reveal entropy, not a strong RNG:
// the operator picks the secret and validators influence the block hash, a
// documented trust assumption.
func CombineEntropy(blockHash [32]byte, secret [32]byte) []byte {
	mixed := make([]byte, 32)
	for i := range mixed {
		mixed[i] = blockHash[i] ^ secret[i]
	}
	return ethcrypto.Keccak256(mixed)
}
