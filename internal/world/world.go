// Package world holds the static geography and name lists a simulation
// populates: continents, countries, cities and the vocabularies people and
// companies are named from.
package world

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

//go:embed data/*.csv
var dataFS embed.FS

// Region is a place an agent can run in.
type Region interface {
	RegionName() string
}

// Continent groups countries.
type Continent struct {
	Name      string
	Countries []*Country
}

// Country belongs to one continent and contains cities.
type Country struct {
	Code      string
	Name      string
	Continent *Continent
	Cities    []*City
}

// City belongs to one country.
type City struct {
	Name    string
	Country *Country
}

func (c *Continent) RegionName() string { return c.Name }
func (c *Country) RegionName() string   { return c.Name }
func (c *City) RegionName() string      { return c.Name }

func (c *City) String() string    { return c.Name }
func (c *Country) String() string { return c.Name }

// World is the loaded data set. Slices keep file order so that iterating
// regions is deterministic.
type World struct {
	ScaleFactor int

	Continents []*Continent
	Countries  []*Country
	Cities     []*City

	FemaleForenames []string
	MaleForenames   []string
	Surnames        []string
	Adjectives      []string
	Nouns           []string
}

// Forenames returns the forename list for a gender.
func (w *World) Forenames(female bool) []string {
	if female {
		return w.FemaleForenames
	}
	return w.MaleForenames
}

// Default loads the embedded data set.
func Default(scaleFactor int) (*World, error) {
	sub, err := fs.Sub(dataFS, "data")
	if err != nil {
		return nil, err
	}
	return Load(sub, scaleFactor)
}

// Load reads a world from CSV files in fsys. Every file starts with a header
// row.
func Load(fsys fs.FS, scaleFactor int) (*World, error) {
	if scaleFactor <= 0 {
		return nil, fmt.Errorf("scale factor must be positive, got %d", scaleFactor)
	}

	w := &World{ScaleFactor: scaleFactor}

	continents, err := readRecords(fsys, "continents.csv", 1)
	if err != nil {
		return nil, err
	}
	continentByName := make(map[string]*Continent, len(continents))
	for _, rec := range continents {
		c := &Continent{Name: rec[0]}
		if _, dup := continentByName[c.Name]; dup {
			return nil, fmt.Errorf("continents.csv: duplicate continent %q", c.Name)
		}
		continentByName[c.Name] = c
		w.Continents = append(w.Continents, c)
	}

	countries, err := readRecords(fsys, "countries.csv", 3)
	if err != nil {
		return nil, err
	}
	countryByCode := make(map[string]*Country, len(countries))
	for _, rec := range countries {
		continent, ok := continentByName[rec[2]]
		if !ok {
			return nil, fmt.Errorf("countries.csv: country %q references unknown continent %q", rec[1], rec[2])
		}
		c := &Country{Code: rec[0], Name: rec[1], Continent: continent}
		if _, dup := countryByCode[c.Code]; dup {
			return nil, fmt.Errorf("countries.csv: duplicate country code %q", c.Code)
		}
		countryByCode[c.Code] = c
		continent.Countries = append(continent.Countries, c)
		w.Countries = append(w.Countries, c)
	}

	cities, err := readRecords(fsys, "cities.csv", 2)
	if err != nil {
		return nil, err
	}
	seenCity := make(map[string]bool, len(cities))
	for _, rec := range cities {
		country, ok := countryByCode[rec[1]]
		if !ok {
			return nil, fmt.Errorf("cities.csv: city %q references unknown country %q", rec[0], rec[1])
		}
		// City names key residency records, so they must be unique.
		if seenCity[rec[0]] {
			return nil, fmt.Errorf("cities.csv: duplicate city %q", rec[0])
		}
		seenCity[rec[0]] = true
		c := &City{Name: rec[0], Country: country}
		country.Cities = append(country.Cities, c)
		w.Cities = append(w.Cities, c)
	}
	if len(w.Cities) == 0 {
		return nil, errors.New("cities.csv: no cities")
	}

	lists := []struct {
		file string
		dst  *[]string
	}{
		{"female_forenames.csv", &w.FemaleForenames},
		{"male_forenames.csv", &w.MaleForenames},
		{"surnames.csv", &w.Surnames},
		{"adjectives.csv", &w.Adjectives},
		{"nouns.csv", &w.Nouns},
	}
	for _, l := range lists {
		if *l.dst, err = readList(fsys, l.file); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// CitiesIn returns every city of a continent in load order.
func (w *World) CitiesIn(continent *Continent) []*City {
	var cities []*City
	for _, country := range continent.Countries {
		cities = append(cities, country.Cities...)
	}
	return cities
}

func readList(fsys fs.FS, name string) ([]string, error) {
	records, err := readRecords(fsys, name, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: list is empty", name)
	}
	values := make([]string, len(records))
	for i, rec := range records {
		values[i] = rec[0]
	}
	return values, nil
}

// readRecords returns the rows of a CSV file after its header, requiring
// exactly fields columns of non-blank values.
func readRecords(fsys fs.FS, name string, fields int) ([][]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields
	r.TrimLeadingSpace = true

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header", name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
			if rec[i] == "" {
				line, _ := r.FieldPos(i)
				return nil, fmt.Errorf("%s:%d: empty field %d", name, line, i+1)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
