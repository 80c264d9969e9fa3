package simulator

import (
	"context"
	"fmt"

	"github.com/lox/worldsim/internal/randutil"
	"github.com/lox/worldsim/internal/world"
)

// residents reads the current residents of a city.
func residents(ctx context.Context, step *Step, city *world.City, _ *randutil.Stream) (int, error) {
	emails, err := step.Store.Residents(ctx, city.Name)
	if err != nil {
		return 0, err
	}
	return len(emails), nil
}

// citiesInContinent lists the other cities on the city's continent.
func citiesInContinent(_ context.Context, step *Step, city *world.City, _ *randutil.Stream) (int, error) {
	n := 0
	for _, other := range step.World.CitiesIn(city.Country.Continent) {
		if other != city {
			n++
		}
	}
	return n, nil
}

// maritalStatus looks up whether each resident of a country who came of age
// this step is married.
func maritalStatus(ctx context.Context, step *Step, country *world.Country, _ *randutil.Stream) (int, error) {
	read := 0
	for _, city := range country.Cities {
		emails, err := step.Store.ResidentsBornOn(ctx, city.Name, step.AdultsBornBy())
		if err != nil {
			return read, err
		}
		for _, email := range emails {
			if _, err := step.Store.Spouse(ctx, email); err != nil {
				return read, fmt.Errorf("marital status of %s: %w", email, err)
			}
			read++
		}
	}
	return read, nil
}

// friendOfFriend picks a resident of a city and collects the distinct people
// two friendship hops away, excluding the resident and direct friends.
func friendOfFriend(ctx context.Context, step *Step, city *world.City, rng *randutil.Stream) (int, error) {
	emails, err := step.Store.Residents(ctx, city.Name)
	if err != nil {
		return 0, err
	}
	if len(emails) == 0 {
		return 0, nil
	}
	start, err := randutil.Choose(rng, emails)
	if err != nil {
		return 0, err
	}

	friends, err := step.Store.Friends(ctx, start)
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{start: true}
	for _, f := range friends {
		seen[f] = true
	}

	reached := 0
	for _, f := range friends {
		next, err := step.Store.Friends(ctx, f)
		if err != nil {
			return reached, err
		}
		for _, email := range next {
			if !seen[email] {
				seen[email] = true
				reached++
			}
		}
	}
	return reached, nil
}
