package core

import (
	"fmt"
	"math/rand/v2"
	"profileflow/pkg/domain"
	"strings"
)

const (
	idDigits  = 4
	idSpace   = 10_000
	keyDigits = 5
	keySpace  = 100_000
)

// IDSet holds identifiers already in use. Generators add to it so later
// records in a batch never collide with earlier ones.
type IDSet map[string]struct{}

// NewIDSet builds a set from existing values, ignoring blanks.
func NewIDSet(values ...string) IDSet {
	s := make(IDSet, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s IDSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v.
func (s IDSet) Add(v string) { s[v] = struct{}{} }

// Generator draws profile identifiers from an injectable random source.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator over src; nil selects a randomly seeded PCG.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rng: rand.New(src)}
}

// ProfileID returns an unused "<initial><4 digits>" code for gender and adds
// it to existing.
func (g *Generator) ProfileID(gender domain.Gender, existing IDSet) (string, error) {
	if gender != domain.Female && gender != domain.Male {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidGender, string(gender))
	}
	prefix := gender.Initial()
	id, err := g.draw(existing, idSpace, func(n int) string {
		return fmt.Sprintf("%s%0*d", prefix, idDigits, n)
	})
	if err != nil {
		return "", fmt.Errorf("profile id for %s: %w", gender, err)
	}
	return id, nil
}

// ProfileKey returns an unused 5 digit key and adds it to existing.
func (g *Generator) ProfileKey(existing IDSet) (string, error) {
	key, err := g.draw(existing, keySpace, func(n int) string {
		return fmt.Sprintf("%0*d", keyDigits, n)
	})
	if err != nil {
		return "", fmt.Errorf("profile key: %w", err)
	}
	return key, nil
}

// draw samples uniformly until it hits a free code. Once the free codes
// become scarce it falls back to a scan so exhaustion is detected instead of
// looping forever.
func (g *Generator) draw(existing IDSet, space int, format func(int) string) (string, error) {
	zero := format(0)
	prefix := strings.TrimRight(zero, "0")
	width := len(zero) - len(prefix)
	used := 0
	for v := range existing {
		if _, ok := codeOf(v, prefix, width, space); ok {
			used++
		}
	}
	if used >= space {
		return "", domain.ErrIdentitySpaceExhausted
	}
	// Expected draws stay small while at least 1/16 of the space is free.
	if space-used >= space/16 {
		for {
			v := format(g.rng.IntN(space))
			if !existing.Has(v) {
				existing.Add(v)
				return v, nil
			}
		}
	}
	start := g.rng.IntN(space)
	for i := 0; i < space; i++ {
		v := format((start + i) % space)
		if !existing.Has(v) {
			existing.Add(v)
			return v, nil
		}
	}
	return "", domain.ErrIdentitySpaceExhausted
}

// codeOf recovers the numeric code of v when v is prefix followed by
// exactly width digits.
func codeOf(v, prefix string, width, space int) (int, bool) {
	if !strings.HasPrefix(v, prefix) {
		return 0, false
	}
	digits := v[len(prefix):]
	if len(digits) != width {
		return 0, false
	}
	n := 0
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, n < space
}
