package world

import (
	"fmt"

	"github.com/lox/worldsim/internal/randutil"
)

// Address draws a street address in city. It consumes, in order, a house
// number, a gender coin for the street's forename (true is male, as for
// births), the forename and a zip code.
func Address(s *randutil.Stream, w *World, city *City) (string, error) {
	houseNumber, err := s.IntN(1000)
	if err != nil {
		return "", err
	}
	street, err := randutil.Choose(s, w.Forenames(!s.Bool()))
	if err != nil {
		return "", fmt.Errorf("street name: %w", err)
	}
	zipCode, err := s.IntN(10000)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %s Street, %s, %d %s", houseNumber, street, city.Name, zipCode, city.Country.Name), nil
}
