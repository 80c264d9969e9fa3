// Package memory provides an in-process Store backed by maps.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lox/worldsim/internal/store"
)

// Store keeps a simulated world in memory.
type Store struct {
	mu sync.RWMutex

	people      map[string]store.Person
	residence   map[string]string // email -> current city
	relocations int
	marriages   map[string]store.Marriage
	spouse      map[string]string
	parentships map[store.Parentship]struct{}
	friendships map[store.Friendship]struct{}
	friendsOf   map[string][]string
	companies   map[string]store.Company
	employment  map[string]store.Employment
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		people:      make(map[string]store.Person),
		residence:   make(map[string]string),
		marriages:   make(map[string]store.Marriage),
		spouse:      make(map[string]string),
		parentships: make(map[store.Parentship]struct{}),
		friendships: make(map[store.Friendship]struct{}),
		friendsOf:   make(map[string][]string),
		companies:   make(map[string]store.Company),
		employment:  make(map[string]store.Employment),
	}
}

func (s *Store) InsertPerson(ctx context.Context, p store.Person) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.people[p.Email]; ok {
		return fmt.Errorf("person %s already exists", p.Email)
	}
	s.people[p.Email] = p
	s.residence[p.Email] = p.BirthCity
	return nil
}

func (s *Store) InsertMarriage(ctx context.Context, m store.Marriage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.marriages[m.ID]; ok {
		return fmt.Errorf("marriage %s already exists", m.ID)
	}
	for _, email := range []string{m.WifeEmail, m.HusbandEmail} {
		if _, ok := s.people[email]; !ok {
			return fmt.Errorf("marriage %s: person %s: %w", m.ID, email, store.ErrNotFound)
		}
	}
	s.marriages[m.ID] = m
	s.spouse[m.WifeEmail] = m.HusbandEmail
	s.spouse[m.HusbandEmail] = m.WifeEmail
	return nil
}

func (s *Store) InsertParentship(ctx context.Context, p store.Parentship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.marriages[p.MarriageID]; !ok {
		return fmt.Errorf("parentship: marriage %s: %w", p.MarriageID, store.ErrNotFound)
	}
	if _, ok := s.people[p.ChildEmail]; !ok {
		return fmt.Errorf("parentship: child %s: %w", p.ChildEmail, store.ErrNotFound)
	}
	if _, ok := s.parentships[p]; ok {
		return fmt.Errorf("parentship %s/%s already exists", p.MarriageID, p.ChildEmail)
	}
	s.parentships[p] = struct{}{}
	return nil
}

func (s *Store) InsertFriendship(ctx context.Context, f store.Friendship) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, email := range []string{f.Email, f.FriendEmail} {
		if _, ok := s.people[email]; !ok {
			return false, fmt.Errorf("friendship: person %s: %w", email, store.ErrNotFound)
		}
	}
	if _, ok := s.friendships[f]; ok {
		return false, nil
	}
	s.friendships[f] = struct{}{}
	s.friendsOf[f.Email] = append(s.friendsOf[f.Email], f.FriendEmail)
	return true, nil
}

func (s *Store) InsertCompany(ctx context.Context, c store.Company) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[c.Name]; ok {
		return fmt.Errorf("company %s already exists", c.Name)
	}
	s.companies[c.Name] = c
	return nil
}

func (s *Store) InsertEmployment(ctx context.Context, e store.Employment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.people[e.Email]; !ok {
		return fmt.Errorf("employment: person %s: %w", e.Email, store.ErrNotFound)
	}
	if _, ok := s.companies[e.Company]; !ok {
		return fmt.Errorf("employment: company %s: %w", e.Company, store.ErrNotFound)
	}
	if _, ok := s.employment[e.Email]; ok {
		return fmt.Errorf("employment: %s is already employed", e.Email)
	}
	s.employment[e.Email] = e
	return nil
}

func (s *Store) Relocate(ctx context.Context, email, city string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.residence[email]; !ok {
		return fmt.Errorf("relocate %s: residency: %w", email, store.ErrNotFound)
	}
	s.residence[email] = city
	s.relocations++
	return nil
}

func (s *Store) Residents(ctx context.Context, city string) ([]string, error) {
	return s.selectPeople(ctx, func(p store.Person) bool {
		return s.residence[p.Email] == city
	})
}

func (s *Store) SingleAdults(ctx context.Context, city, gender string, bornBefore time.Time) ([]string, error) {
	return s.selectPeople(ctx, func(p store.Person) bool {
		return s.residence[p.Email] == city &&
			p.Gender == gender &&
			!p.BirthDate.After(bornBefore) &&
			s.spouse[p.Email] == ""
	})
}

func (s *Store) BornIn(ctx context.Context, city string, date time.Time) ([]string, error) {
	return s.selectPeople(ctx, func(p store.Person) bool {
		return p.BirthCity == city && p.BirthDate.Equal(date)
	})
}

func (s *Store) Unemployed(ctx context.Context, city string, bornBefore time.Time) ([]string, error) {
	return s.selectPeople(ctx, func(p store.Person) bool {
		_, employed := s.employment[p.Email]
		return s.residence[p.Email] == city &&
			!p.BirthDate.After(bornBefore) &&
			!employed
	})
}

func (s *Store) ResidentsBornOn(ctx context.Context, city string, date time.Time) ([]string, error) {
	return s.selectPeople(ctx, func(p store.Person) bool {
		return s.residence[p.Email] == city && p.BirthDate.Equal(date)
	})
}

func (s *Store) Spouse(ctx context.Context, email string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.spouse[email], nil
}

func (s *Store) Friends(ctx context.Context, email string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	friends := slices.Clone(s.friendsOf[email])
	slices.Sort(friends)
	return friends, nil
}

func (s *Store) Marriages(ctx context.Context, city string) ([]store.Marriage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var marriages []store.Marriage
	for _, m := range s.marriages {
		if m.City == city {
			marriages = append(marriages, m)
		}
	}
	slices.SortFunc(marriages, func(a, b store.Marriage) int {
		return strings.Compare(a.ID, b.ID)
	})
	return marriages, nil
}

func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	if err := ctx.Err(); err != nil {
		return store.Counts{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return store.Counts{
		People:      len(s.people),
		Relocations: s.relocations,
		Marriages:   len(s.marriages),
		Parentships: len(s.parentships),
		Friendships: len(s.friendships),
		Companies:   len(s.companies),
		Employments: len(s.employment),
	}, nil
}

func (s *Store) Close() error {
	return nil
}

// selectPeople returns the sorted emails of people matching keep. keep runs
// under the read lock.
func (s *Store) selectPeople(ctx context.Context, keep func(store.Person) bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emails []string
	for _, p := range s.people {
		if keep(p) {
			emails = append(emails, p.Email)
		}
	}
	slices.Sort(emails)
	return emails, nil
}
