package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/worldsim/internal/randutil"
	"github.com/lox/worldsim/internal/store"
	"github.com/lox/worldsim/internal/world"
)

// Step is what an agent sees while running one region.
type Step struct {
	Number int
	Date   time.Time

	World            *world.World
	Store            store.Store
	AdultAge         int
	FriendsPerPerson int
}

// AdultsBornBy is the latest birth date of an adult on this step.
func (s *Step) AdultsBornBy() time.Time {
	return s.Date.AddDate(-s.AdultAge, 0, 0)
}

// Kind tells write agents from read agents.
type Kind int

const (
	// Write agents return the number of records stored.
	Write Kind = iota
	// Read agents only query the store and return the number of results.
	Read
)

func (k Kind) String() string {
	if k == Read {
		return "read"
	}
	return "write"
}

// Agent works on a world region by region. Run is called concurrently for
// different regions of the same step and returns the number of records
// written, or for a read agent the number of results read.
type Agent interface {
	Name() string
	Kind() Kind
	Regions(w *world.World) []world.Region
	Run(ctx context.Context, step *Step, region world.Region, rng *randutil.Stream) (int, error)
}

// regional adapts a function over a concrete region type to Agent.
type regional[R world.Region] struct {
	name    string
	kind    Kind
	regions func(w *world.World) []R
	run     func(ctx context.Context, step *Step, region R, rng *randutil.Stream) (int, error)
}

func (a regional[R]) Name() string { return a.name }
func (a regional[R]) Kind() Kind   { return a.kind }

func (a regional[R]) Regions(w *world.World) []world.Region {
	concrete := a.regions(w)
	regions := make([]world.Region, len(concrete))
	for i, r := range concrete {
		regions[i] = r
	}
	return regions
}

func (a regional[R]) Run(ctx context.Context, step *Step, region world.Region, rng *randutil.Stream) (int, error) {
	r, ok := region.(R)
	if !ok {
		return 0, fmt.Errorf("agent %s: unexpected region %T", a.name, region)
	}
	return a.run(ctx, step, r, rng)
}

func cityAgent(name string, kind Kind, run func(context.Context, *Step, *world.City, *randutil.Stream) (int, error)) Agent {
	return regional[*world.City]{
		name:    name,
		kind:    kind,
		regions: func(w *world.World) []*world.City { return w.Cities },
		run:     run,
	}
}

func countryAgent(name string, kind Kind, run func(context.Context, *Step, *world.Country, *randutil.Stream) (int, error)) Agent {
	return regional[*world.Country]{
		name:    name,
		kind:    kind,
		regions: func(w *world.World) []*world.Country { return w.Countries },
		run:     run,
	}
}
