// Package rng models the verifiable randomness collaborator: requests go out through a Provider
// and words come back later through a Fulfiller, at least once per request id.
package rng

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/sha3"
)

// Word is one 256-bit random value.
type Word [32]byte

// Request asks for NumWords random words correlated by ID.
type Request struct {
	ID       uuid.UUID
	NumWords int
}

// Provider accepts randomness requests. Delivery happens asynchronously through a Fulfiller.
// Requesting the same ID twice must be harmless.
type Provider interface {
	RequestRandomness(ctx context.Context, req Request) error
}

// Fulfiller receives random words. Implementations must be idempotent per request id.
type Fulfiller interface {
	FulfillRandomness(ctx context.Context, id uuid.UUID, words []Word) error
}

// Derive returns keccak256(word || i) as a new word, the per-draw expansion of a single VRF word.
func Derive(w Word, i uint64) Word {
	var idx [32]byte
	binary.BigEndian.PutUint64(idx[24:], i)
	h := sha3.NewLegacyKeccak256()
	h.Write(w[:])
	h.Write(idx[:])
	var out Word
	copy(out[:], h.Sum(nil))
	return out
}

// Mod returns the word as an unsigned 256-bit integer modulo n. n must be > 0.
func Mod(w Word, n uint64) uint64 {
	v := new(big.Int).SetBytes(w[:])
	return v.Mod(v, new(big.Int).SetUint64(n)).Uint64()
}

// Uniform returns a value in [lo, hi] picked by w.
func Uniform(w Word, lo, hi uint64) uint64 {
	if hi <= lo {
		return lo
	}
	span := hi - lo + 1
	if span == 0 { // full uint64 range
		return binary.BigEndian.Uint64(w[24:])
	}
	return lo + Mod(w, span)
}
