// Package randutil provides the seeded randomness every part of a world
// simulation draws from.
//
// A Stream is a reproducible source of pseudo-random values. Two streams built
// from the same seed and driven through the same calls produce identical
// output. A Stream is not safe for concurrent use: to fan work out, derive one
// child per task on the coordinating goroutine and hand each child to exactly
// one worker.
package randutil

import (
	"errors"
	"fmt"
	"math"
	rand "math/rand/v2"
)

// ErrInvalidArgument is returned when a caller breaks an operation's
// precondition, such as choosing from an empty slice.
var ErrInvalidArgument = errors.New("invalid argument")

// Stream is a seeded, independently advancing random source.
type Stream struct {
	rng *rand.Rand
}

// NewStream returns a stream seeded from seed.
func NewStream(seed int64) *Stream {
	return &Stream{rng: New(seed)}
}

// Derive consumes exactly one value from s and uses it to seed a new stream.
// The child shares no state with s: advancing either never affects the other.
func (s *Stream) Derive() *Stream {
	return NewStream(int64(s.rng.Uint64()))
}

// Bool returns a uniform coin flip.
func (s *Stream) Bool() bool {
	return s.rng.IntN(2) == 1
}

// Int returns a uniform non-negative value in [0, math.MaxInt32).
func (s *Stream) Int() int {
	return s.rng.IntN(math.MaxInt32)
}

// IntN returns a uniform value in [0, n).
func (s *Stream) IntN(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("draw from empty range [0, %d): %w", n, ErrInvalidArgument)
	}
	return s.rng.IntN(n), nil
}

// Choose returns a uniformly selected element of items.
func Choose[T any](s *Stream, items []T) (T, error) {
	if len(items) == 0 {
		var zero T
		return zero, fmt.Errorf("choose from empty slice: %w", ErrInvalidArgument)
	}
	return items[s.rng.IntN(len(items))], nil
}

// Shuffle permutes items in place.
func Shuffle[T any](s *Stream, items []T) {
	s.rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

// Pairs emits perElement pairs for every element of items, each pairing
// items[i] with a uniformly drawn partner at a different index. The result has
// len(items)*perElement entries in index order.
func Pairs[T any](s *Stream, items []T, perElement int) ([]Pair[T, T], error) {
	if len(items) < 2 {
		return nil, fmt.Errorf("pair %d elements: need at least 2: %w", len(items), ErrInvalidArgument)
	}
	if perElement < 0 {
		return nil, fmt.Errorf("pairs per element %d: %w", perElement, ErrInvalidArgument)
	}

	pairs := make([]Pair[T, T], 0, len(items)*perElement)
	for i := range items {
		for range perElement {
			// Draw over the len-1 valid partners and skip over i.
			other := s.rng.IntN(len(items) - 1)
			if other >= i {
				other++
			}
			pairs = append(pairs, MakePair(items[i], items[other]))
		}
	}
	return pairs, nil
}

// BipartitePairs matches a against b one-to-one at random. b is shuffled in
// place, then both slices are zipped by position. When the lengths differ the
// tail of the longer slice is left unmatched; a keeps its order.
func BipartitePairs[A, B any](s *Stream, a []A, b []B) []Pair[A, B] {
	Shuffle(s, b)

	n := min(len(a), len(b))
	pairs := make([]Pair[A, B], n)
	for i := range n {
		pairs[i] = MakePair(a[i], b[i])
	}
	return pairs
}

// Allocate assigns every resource to a recipient.
//
// With no recipients nothing is allocated. With one recipient it receives
// everything and no values are drawn. Otherwise each resource draws a
// recipient index from [0, len(recipients)-1), so the last recipient never
// receives a resource. Stored worlds depend on that draw range and count, so
// it must not be widened.
func Allocate[R, S any](s *Stream, recipients []R, resources []S) []Pair[R, S] {
	switch len(recipients) {
	case 0:
		return []Pair[R, S]{}
	case 1:
		pairs := make([]Pair[R, S], len(resources))
		for i, resource := range resources {
			pairs[i] = MakePair(recipients[0], resource)
		}
		return pairs
	}

	pairs := make([]Pair[R, S], len(resources))
	for i, resource := range resources {
		pairs[i] = MakePair(recipients[s.rng.IntN(len(recipients)-1)], resource)
	}
	return pairs
}
