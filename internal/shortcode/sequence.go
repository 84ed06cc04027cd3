package shortcode

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
)

// window is the local range of ordinals [current, end) claimed from the
// global cursor; guarded by Sequence.mu.
type window struct {
	current uint64
	end     uint64
}

// Sequence is the monotonic, block-allocating engine: a global cursor
// served from a local window, refilled by fetch-and-add when exhausted.
// Each ordinal is encoded as a fixed-width base-|alphabet| numeral.
type Sequence struct {
	alphabet  []byte
	length    int
	maxOrdinal uint64

	blockSize       uint64
	persistInterval uint64
	statePath       string

	nextGlobal atomic.Uint64

	mu              sync.Mutex
	win             window
	sincePersist    uint64
}

// NewSequence constructs a Sequence engine. If statePath is non-empty, the
// persisted cursor is loaded (best-effort: a missing or unreadable file
// starts the cursor at zero, sacrificing density for availability).
func NewSequence(alphabet string, length int, blockSize, persistInterval uint64, statePath string) (*Sequence, error) {
	n := uint64(len(alphabet))
	maxOrdinal, overflow := pow(n, uint64(length))
	if overflow {
		maxOrdinal = math.MaxUint64
	}

	s := &Sequence{
		alphabet:        []byte(alphabet),
		length:          length,
		maxOrdinal:      maxOrdinal,
		blockSize:       blockSize,
		persistInterval: persistInterval,
		statePath:       statePath,
	}

	if statePath != "" {
		if next, err := loadCursor(statePath); err == nil {
			s.nextGlobal.Store(next)
		}
	}

	return s, nil
}

func (s *Sequence) Name() string { return "sequence" }

// Generate issues the next ordinal, refilling the window (and, if a
// state path is configured, persisting the new cursor) as needed.
// Persistence failures are returned as errors but do not prevent
// issuance: the call that triggered the flush still succeeds internally
// before reporting it, matching the "best-effort, surfaced" contract in
// the specification.
func (s *Sequence) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.win.current >= s.win.end {
		start := s.nextGlobal.Add(s.blockSize) - s.blockSize
		end := start + s.blockSize
		s.win = window{current: start, end: end}
	}

	ordinal := s.win.current
	s.win.current++

	if ordinal >= s.maxOrdinal {
		return "", ErrExhausted
	}

	code, err := encodeFixedWidth(ordinal, s.alphabet, s.length)
	if err != nil {
		return "", err
	}

	var persistErr error
	if s.statePath != "" {
		s.sincePersist++
		if s.sincePersist >= s.persistInterval {
			s.sincePersist = 0
			persistErr = saveCursor(s.statePath, s.nextGlobal.Load())
		}
	}

	return code, persistErr
}

// encodeFixedWidth encodes v as a base-|alphabet| numeral, left-padded
// with alphabet[0] to exactly length digits.
func encodeFixedWidth(v uint64, alphabet []byte, length int) (string, error) {
	n := uint64(len(alphabet))
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = alphabet[v%n]
		v /= n
	}
	if v != 0 {
		return "", ErrExhausted
	}
	return string(buf), nil
}

// pow returns base^exp and whether it overflowed a uint64.
func pow(base, exp uint64) (result uint64, overflow bool) {
	result = 1
	for i := uint64(0); i < exp; i++ {
		next := result * base
		if base != 0 && next/base != result {
			return 0, true
		}
		result = next
	}
	return result, false
}

// loadCursor/saveCursor persist the *next* cursor value (never the last
// issued one) as a single big-endian uint64, so replay after a crash
// never reissues an ordinal — it only skips up to one full block.
func loadCursor(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("corrupt sequence cursor file %s", path)
	}
	return binary.BigEndian.Uint64(b), nil
}

func saveCursor(path string, next uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, next)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("writing sequence cursor: %w", err)
	}
	return os.Rename(tmp, path)
}
