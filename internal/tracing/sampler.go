package tracing

import (
	"fmt"
)

// Sampler reports whether a step should be traced.
type Sampler func(step int) bool

// Sampling functions understood by NewSampler.
const (
	SampleEvery = "every"
	SampleLog   = "log"
)

// NewSampler builds a step sampler. "every" samples steps divisible by arg;
// "log" samples steps that are a power of arg (1, arg, arg², ...).
func NewSampler(function string, arg int) (Sampler, error) {
	switch function {
	case SampleEvery:
		if arg < 1 {
			return nil, fmt.Errorf("sampling function %q needs arg >= 1, got %d", function, arg)
		}
		return func(step int) bool {
			return step > 0 && step%arg == 0
		}, nil
	case SampleLog:
		if arg < 2 {
			return nil, fmt.Errorf("sampling function %q needs arg >= 2, got %d", function, arg)
		}
		return func(step int) bool {
			if step < 1 {
				return false
			}
			for step%arg == 0 {
				step /= arg
			}
			return step == 1
		}, nil
	default:
		return nil, fmt.Errorf("unknown sampling function %q", function)
	}
}
