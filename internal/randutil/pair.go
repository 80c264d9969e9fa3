package randutil

import "fmt"

// Pair is an ordered two-element tuple relating two entities, such as two
// friends or a recipient and the resource it was allocated.
type Pair[A, B any] struct {
	First  A
	Second B
}

// MakePair returns the pair (first, second).
func MakePair[A, B any](first A, second B) Pair[A, B] {
	return Pair[A, B]{First: first, Second: second}
}

func (p Pair[A, B]) String() string {
	return fmt.Sprintf("(%v, %v)", p.First, p.Second)
}
