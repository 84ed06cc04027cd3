package shortcode

import (
	"crypto/rand"
	"fmt"
)

// Random draws L characters independently and uniformly from the
// configured alphabet using a cryptographic RNG. It is stateless and
// never returns ErrExhausted.
type Random struct {
	alphabet []byte
	length   int
}

// NewRandom constructs a Random engine. alphabet must have at least 2
// distinct bytes; length must be >= 1 (the specification enforces >= 5
// at the configuration layer).
func NewRandom(alphabet string, length int) *Random {
	return &Random{alphabet: []byte(alphabet), length: length}
}

func (r *Random) Name() string { return "random" }

// Generate draws each character via rejection sampling: a raw byte % n
// is biased whenever 256 % n != 0 (true for the default 62-char
// alphabet), so bytes at or past the last full multiple of n are
// discarded and redrawn instead of reduced.
func (r *Random) Generate() (string, error) {
	n := len(r.alphabet)
	limit := (256 / n) * n
	buf := make([]byte, r.length)
	scratch := make([]byte, r.length)
	filled := 0
	for filled < r.length {
		if _, err := rand.Read(scratch[:r.length-filled]); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range scratch[:r.length-filled] {
			if int(b) >= limit {
				continue
			}
			buf[filled] = r.alphabet[int(b)%n]
			filled++
		}
	}
	return string(buf), nil
}
