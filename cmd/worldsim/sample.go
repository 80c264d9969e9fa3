package main

import (
	"fmt"
	"io"
	"os"

	"github.com/lox/worldsim/internal/randutil"
	"github.com/lox/worldsim/internal/world"
)

type SampleCmd struct {
	Seed  int64 `short:"s" default:"1" help:"Random seed"`
	Count int   `short:"n" default:"5" help:"Number of addresses to draw"`
}

func (c *SampleCmd) Run() error {
	return c.execute(os.Stdout)
}

// execute prints draws from one root stream. The same seed always prints the
// same lines.
func (c *SampleCmd) execute(out io.Writer) error {
	if c.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", c.Count)
	}
	w, err := world.Default(1)
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}

	root := randutil.NewStream(c.Seed)

	addresses := root.Derive()
	fmt.Fprintf(out, "seed %d\n\naddresses:\n", c.Seed)
	for range c.Count {
		city, err := randutil.Choose(addresses, w.Cities)
		if err != nil {
			return err
		}
		address, err := world.Address(addresses, w, city)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s\n", address)
	}

	choice, err := randutil.Choose(root.Derive(), w.Surnames)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nsurname: %s\n", choice)

	friends := w.CitiesIn(w.Continents[0])
	pairs, err := randutil.Pairs(root.Derive(), friends, 1)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\npairs:")
	for _, p := range pairs {
		fmt.Fprintf(out, "  %s\n", p)
	}
	return nil
}
