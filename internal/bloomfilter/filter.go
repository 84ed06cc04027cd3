// Package bloomfilter implements the probabilistic membership filter:
// a Bloom filter over short codes with an exact binary snapshot format
// (big-endian hash count, then the raw bit array). The periodic snapshot
// task that persists filters runs in internal/lifecycle, not here.
package bloomfilter

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"
)

// Filter is safe for concurrent MayContain/Insert/Snapshot. Reads take
// the shared side of the lock; Insert takes the exclusive side.
// Snapshot copies the bit array into a detached buffer under the shared
// lock so readers are never blocked for longer than a memcpy.
type Filter struct {
	mu   sync.RWMutex
	bits []byte
	m    uint64 // number of bits
	k    uint32 // number of hash functions
}

// New builds an empty filter sized for m bits (rounded up to a whole
// number of bytes, so Load recovers the same m from a snapshot) and k hash
// functions.
func New(m uint64, k uint32) *Filter {
	if m == 0 {
		m = 1
	}
	m = (m + 7) / 8 * 8
	return &Filter{
		bits: make([]byte, (m+7)/8),
		m:    m,
		k:    k,
	}
}

// NewForCapacity sizes a filter for n expected items at false-positive
// probability p, using the standard optimal-m/k formulas.
func NewForCapacity(n uint64, p float64) *Filter {
	if n == 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	m := optimalM(n, p)
	k := optimalK(m, n)
	return New(m, k)
}

func optimalM(n uint64, p float64) uint64 {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	return uint64(math.Ceil(m))
}

func optimalK(m, n uint64) uint32 {
	if n == 0 {
		return 1
	}
	k := math.Round(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	return uint32(k)
}

// indices computes the k bit positions for key via double hashing
// (Kirsch–Mitzenmacher): h_i(x) = h1(x) + i*h2(x) mod m.
func (f *Filter) indices(key []byte) []uint64 {
	h1 := fnv.New64a()
	h1.Write(key)
	a := h1.Sum64()

	h2 := fnv.New64()
	h2.Write(key)
	b := h2.Sum64()
	if b == 0 {
		b = 1
	}

	out := make([]uint64, f.k)
	for i := uint32(0); i < f.k; i++ {
		out[i] = (a + uint64(i)*b) % f.m
	}
	return out
}

// MayContain reports whether key might be a member; false negatives are
// impossible.
func (f *Filter) MayContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, idx := range f.indices(key) {
		byteIdx := idx / 8
		bitIdx := idx % 8
		if f.bits[byteIdx]&(1<<bitIdx) == 0 {
			return false
		}
	}
	return true
}

// Insert adds key to the filter. Idempotent.
func (f *Filter) Insert(key []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, idx := range f.indices(key) {
		byteIdx := idx / 8
		bitIdx := idx % 8
		f.bits[byteIdx] |= 1 << bitIdx
	}
}

// Snapshot encodes the filter as: big-endian uint32 hash count k,
// followed by the raw bit array. The bit array is copied under the
// shared lock before encoding so it reflects one consistent point in
// time without blocking concurrent Insert calls beyond the copy.
func (f *Filter) Snapshot() []byte {
	f.mu.RLock()
	bitsCopy := make([]byte, len(f.bits))
	copy(bitsCopy, f.bits)
	k := f.k
	f.mu.RUnlock()

	out := make([]byte, 4+len(bitsCopy))
	binary.BigEndian.PutUint32(out[:4], k)
	copy(out[4:], bitsCopy)
	return out
}

// Load decodes a snapshot produced by Snapshot into a new Filter. The
// number of bits m is inferred from the payload length.
func Load(data []byte) (*Filter, error) {
	if len(data) < 4 {
		return nil, errCorruptSnapshot
	}
	k := binary.BigEndian.Uint32(data[:4])
	bits := make([]byte, len(data)-4)
	copy(bits, data[4:])

	return &Filter{
		bits: bits,
		m:    uint64(len(bits)) * 8,
		k:    k,
	}, nil
}
