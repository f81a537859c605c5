// Package simulation generates synthetic daily OHLC bars from a geometric Brownian motion
// close series and Brownian-bridge intraday paths.
//
// Every generator takes its random source explicitly so runs are reproducible for a seed.
package simulation

import (
	"math/rand"
	"sync"
)

// RandomSource produces standard normal draws. *rand.Rand satisfies it.
type RandomSource interface {
	NormFloat64() float64
}

// DefaultSeed replaces seed 0 so that the zero value still yields a fixed stream.
const DefaultSeed int64 = 1

// NewSeededSource returns a deterministic source for the seed.
// Seed 0 maps to DefaultSeed.
func NewSeededSource(seed int64) *rand.Rand {
	if seed == 0 {
		seed = DefaultSeed
	}
	return rand.New(rand.NewSource(seed))
}

// DeriveSource returns an independent deterministic source for a sub-stream of seed.
// The same (seed, stream) pair always yields the same sequence.
func DeriveSource(seed int64, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = DefaultSeed
	}
	return rand.New(rand.NewSource(deriveSeed(seed, stream)))
}

// deriveSeed mixes a parent seed and a stream id with the SplitMix64 finalizer.
func deriveSeed(parent int64, stream uint64) int64 {
	x := uint64(parent) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

// LockedSource serializes draws from a shared source.
// Draw order across goroutines is not deterministic; use DeriveSource for reproducible workers.
type LockedSource struct {
	mu  sync.Mutex
	src RandomSource
}

// NewLockedSource wraps src for concurrent use.
func NewLockedSource(src RandomSource) *LockedSource {
	return &LockedSource{src: src}
}

// NormFloat64 returns the next standard normal draw of the wrapped source.
func (l *LockedSource) NormFloat64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.NormFloat64()
}
