// Package store defines the records a simulation writes and the queries its
// agents read back. Every list query returns results in ascending order so
// that agents drawing from them stay reproducible.
package store

import (
	"context"
	"errors"
	"time"
)

// Genders used on Person records.
const (
	Female = "female"
	Male   = "male"
)

// ErrNotFound is returned when a write references a record that does not
// exist.
var ErrNotFound = errors.New("not found")

// Person is a simulated resident, keyed by email.
type Person struct {
	Email     string    `json:"email"`
	Forename  string    `json:"forename"`
	Surname   string    `json:"surname"`
	Gender    string    `json:"gender"`
	BirthDate time.Time `json:"birth_date"`
	BirthCity string    `json:"birth_city"`
}

// Marriage joins a wife and a husband in a city.
type Marriage struct {
	ID           string    `json:"id"`
	WifeEmail    string    `json:"wife_email"`
	HusbandEmail string    `json:"husband_email"`
	City         string    `json:"city"`
	Date         time.Time `json:"date"`
}

// Parentship records a child of a marriage.
type Parentship struct {
	MarriageID string `json:"marriage_id"`
	ChildEmail string `json:"child_email"`
}

// Friendship is a directed friendship between two people.
type Friendship struct {
	Email       string `json:"email"`
	FriendEmail string `json:"friend_email"`
}

// Company is registered in a country at an address.
type Company struct {
	Name    string    `json:"name"`
	Country string    `json:"country"`
	City    string    `json:"city"`
	Address string    `json:"address"`
	Founded time.Time `json:"founded"`
}

// Employment places a person at a company.
type Employment struct {
	Email   string    `json:"email"`
	Company string    `json:"company"`
	Start   time.Time `json:"start"`
}

// Counts summarises the contents of a store.
type Counts struct {
	People      int `db:"people" json:"people"`
	Relocations int `db:"relocations" json:"relocations"`
	Marriages   int `db:"marriages" json:"marriages"`
	Parentships int `db:"parentships" json:"parentships"`
	Friendships int `db:"friendships" json:"friendships"`
	Companies   int `db:"companies" json:"companies"`
	Employments int `db:"employments" json:"employments"`
}

// Store persists a simulated world. Implementations must be safe for
// concurrent use by agents running in different regions.
type Store interface {
	// InsertPerson records a birth and opens a residency in the birth city.
	InsertPerson(ctx context.Context, p Person) error
	InsertMarriage(ctx context.Context, m Marriage) error
	InsertParentship(ctx context.Context, p Parentship) error
	// InsertFriendship ignores a friendship that already exists and reports
	// whether f was newly stored.
	InsertFriendship(ctx context.Context, f Friendship) (bool, error)
	InsertCompany(ctx context.Context, c Company) error
	InsertEmployment(ctx context.Context, e Employment) error
	// Relocate closes email's current residency at at and opens one in city.
	Relocate(ctx context.Context, email, city string, at time.Time) error

	// Residents lists the emails currently resident in city.
	Residents(ctx context.Context, city string) ([]string, error)
	// SingleAdults lists unmarried residents of city of the given gender born
	// on or before bornBefore.
	SingleAdults(ctx context.Context, city, gender string, bornBefore time.Time) ([]string, error)
	// BornIn lists people born in city on date.
	BornIn(ctx context.Context, city string, date time.Time) ([]string, error)
	// Marriages lists marriages registered in city, ordered by ID.
	Marriages(ctx context.Context, city string) ([]Marriage, error)
	// Unemployed lists residents of city born on or before bornBefore with no
	// employment.
	Unemployed(ctx context.Context, city string, bornBefore time.Time) ([]string, error)
	// ResidentsBornOn lists current residents of city born on date.
	ResidentsBornOn(ctx context.Context, city string, date time.Time) ([]string, error)
	// Spouse returns the email of email's spouse, or "" when unmarried.
	Spouse(ctx context.Context, email string) (string, error)
	// Friends lists the people email has befriended.
	Friends(ctx context.Context, email string) ([]string, error)
	Counts(ctx context.Context) (Counts, error)

	Close() error
}
