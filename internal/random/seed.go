// Package random resolves the session seed and builds the single random
// source every stochastic step of a session draws from.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Resolve returns seed unchanged when it is non-zero, otherwise a fresh one.
func Resolve(seed int64) (int64, error) {
	if seed != 0 {
		return seed, nil
	}
	return NewSeed()
}

// New returns a deterministic source for seed. Sources are not safe for
// concurrent use; callers draw from them on one goroutine.
func New(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
