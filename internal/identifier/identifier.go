// Package identifier produces human-readable document numbers of the form
// PREFIX-YYYYMM-NNNN. Numbers are not checked for collisions against the store.
package identifier

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Clock is the time source used for numbering and lifecycle timestamps.
type Clock interface {
	Now() time.Time
}

// RandomSource supplies the numeric suffix.
type RandomSource interface {
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// SystemRandom draws from the auto-seeded math/rand/v2 source.
type SystemRandom struct{}

func (SystemRandom) IntN(n int) int { return rand.IntN(n) }

const suffixSpace = 10000

// Generate formats "{prefix}-{YYYY}{MM}-{4-digit zero-padded random}".
func Generate(prefix string, now time.Time, rnd RandomSource) string {
	n := rnd.IntN(suffixSpace) % suffixSpace
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%s-%04d%02d-%04d", prefix, now.Year(), int(now.Month()), n)
}

// Generator binds a clock and random source so callers only supply the prefix.
type Generator struct {
	Clock  Clock
	Random RandomSource
}

// NewGenerator returns a Generator on the system clock and random source.
func NewGenerator() *Generator {
	return &Generator{Clock: SystemClock{}, Random: SystemRandom{}}
}

func (g *Generator) Next(prefix string) string {
	return Generate(prefix, g.Clock.Now(), g.Random)
}
