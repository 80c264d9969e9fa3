// Package storetest is a conformance suite every Store backend runs.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/worldsim/internal/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

func year(y int) time.Time {
	return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func person(email, gender, city string, born int) store.Person {
	return store.Person{
		Email:     email,
		Forename:  "F" + email,
		Surname:   "S" + email,
		Gender:    gender,
		BirthDate: year(born),
		BirthCity: city,
	}
}

// Run exercises newStore against the Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("people and residents", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, newStore)

		require.NoError(t, s.InsertPerson(ctx, person("c@x", store.Female, "Paris", 1)))
		require.NoError(t, s.InsertPerson(ctx, person("a@x", store.Male, "Paris", 1)))
		require.NoError(t, s.InsertPerson(ctx, person("b@x", store.Female, "Lyon", 2)))

		assert.Error(t, s.InsertPerson(ctx, person("a@x", store.Male, "Lyon", 3)), "duplicate email")

		residents, err := s.Residents(ctx, "Paris")
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x", "c@x"}, residents)

		residents, err = s.Residents(ctx, "Nowhere")
		require.NoError(t, err)
		assert.Empty(t, residents)

		born, err := s.BornIn(ctx, "Paris", year(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x", "c@x"}, born)

		born, err = s.BornIn(ctx, "Paris", year(2))
		require.NoError(t, err)
		assert.Empty(t, born)

		assertCounts(t, s, store.Counts{People: 3})
	})

	t.Run("relocation", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, newStore)

		require.NoError(t, s.InsertPerson(ctx, person("a@x", store.Male, "Paris", 1)))
		require.NoError(t, s.Relocate(ctx, "a@x", "Lyon", year(5)))

		paris, err := s.Residents(ctx, "Paris")
		require.NoError(t, err)
		assert.Empty(t, paris)

		lyon, err := s.Residents(ctx, "Lyon")
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x"}, lyon)

		born, err := s.BornIn(ctx, "Paris", year(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x"}, born, "birth city survives relocation")

		err = s.Relocate(ctx, "ghost@x", "Lyon", year(5))
		assert.ErrorIs(t, err, store.ErrNotFound)

		assertCounts(t, s, store.Counts{People: 1, Relocations: 1})
	})

	t.Run("single adults", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, newStore)

		for _, p := range []store.Person{
			person("w1@x", store.Female, "Paris", 1),
			person("w2@x", store.Female, "Paris", 1),
			person("w3@x", store.Female, "Paris", 10),
			person("w4@x", store.Female, "Lyon", 1),
			person("m1@x", store.Male, "Paris", 1),
		} {
			require.NoError(t, s.InsertPerson(ctx, p))
		}

		women, err := s.SingleAdults(ctx, "Paris", store.Female, year(5))
		require.NoError(t, err)
		assert.Equal(t, []string{"w1@x", "w2@x"}, women)

		women, err = s.SingleAdults(ctx, "Paris", store.Female, year(10))
		require.NoError(t, err)
		assert.Equal(t, []string{"w1@x", "w2@x", "w3@x"}, women, "bornBefore is inclusive")

		require.NoError(t, s.InsertMarriage(ctx, store.Marriage{
			ID: "m-1", WifeEmail: "w1@x", HusbandEmail: "m1@x", City: "Paris", Date: year(6),
		}))

		women, err = s.SingleAdults(ctx, "Paris", store.Female, year(5))
		require.NoError(t, err)
		assert.Equal(t, []string{"w2@x"}, women)

		men, err := s.SingleAdults(ctx, "Paris", store.Male, year(5))
		require.NoError(t, err)
		assert.Empty(t, men)
	})

	t.Run("marriages and parentships", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, newStore)

		for _, p := range []store.Person{
			person("w1@x", store.Female, "Paris", 1),
			person("m1@x", store.Male, "Paris", 1),
			person("w2@x", store.Female, "Paris", 1),
			person("m2@x", store.Male, "Paris", 1),
			person("kid@x", store.Male, "Paris", 20),
		} {
			require.NoError(t, s.InsertPerson(ctx, p))
		}

		second := store.Marriage{ID: "m-b", WifeEmail: "w2@x", HusbandEmail: "m2@x", City: "Paris", Date: year(7)}
		first := store.Marriage{ID: "m-a", WifeEmail: "w1@x", HusbandEmail: "m1@x", City: "Paris", Date: year(6)}
		require.NoError(t, s.InsertMarriage(ctx, second))
		require.NoError(t, s.InsertMarriage(ctx, first))

		assert.Error(t, s.InsertMarriage(ctx, first), "duplicate id")
		assert.Error(t, s.InsertMarriage(ctx, store.Marriage{
			ID: "m-c", WifeEmail: "ghost@x", HusbandEmail: "m1@x", City: "Paris", Date: year(6),
		}), "unknown spouse")

		marriages, err := s.Marriages(ctx, "Paris")
		require.NoError(t, err)
		require.Len(t, marriages, 2)
		for i, want := range []store.Marriage{first, second} {
			got := marriages[i]
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.WifeEmail, got.WifeEmail)
			assert.Equal(t, want.HusbandEmail, got.HusbandEmail)
			assert.Equal(t, want.City, got.City)
			assert.True(t, want.Date.Equal(got.Date), "date %v != %v", want.Date, got.Date)
		}

		marriages, err = s.Marriages(ctx, "Lyon")
		require.NoError(t, err)
		assert.Empty(t, marriages)

		require.NoError(t, s.InsertParentship(ctx, store.Parentship{MarriageID: "m-a", ChildEmail: "kid@x"}))
		assert.Error(t, s.InsertParentship(ctx, store.Parentship{MarriageID: "m-a", ChildEmail: "kid@x"}), "duplicate")
		assert.Error(t, s.InsertParentship(ctx, store.Parentship{MarriageID: "m-z", ChildEmail: "kid@x"}), "unknown marriage")

		assertCounts(t, s, store.Counts{People: 5, Marriages: 2, Parentships: 1})
	})

	t.Run("friendships are idempotent", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, newStore)

		require.NoError(t, s.InsertPerson(ctx, person("a@x", store.Male, "Paris", 1)))
		require.NoError(t, s.InsertPerson(ctx, person("b@x", store.Male, "Paris", 1)))
		require.NoError(t, s.InsertPerson(ctx, person("c@x", store.Male, "Paris", 1)))

		f := store.Friendship{Email: "a@x", FriendEmail: "c@x"}
		stored, err := s.InsertFriendship(ctx, f)
		require.NoError(t, err)
		assert.True(t, stored)

		stored, err = s.InsertFriendship(ctx, f)
		require.NoError(t, err)
		assert.False(t, stored, "duplicate is ignored")

		for _, f := range []store.Friendship{
			{Email: "c@x", FriendEmail: "a@x"},
			{Email: "a@x", FriendEmail: "b@x"},
		} {
			stored, err = s.InsertFriendship(ctx, f)
			require.NoError(t, err)
			assert.True(t, stored)
		}

		_, err = s.InsertFriendship(ctx, store.Friendship{Email: "a@x", FriendEmail: "ghost@x"})
		assert.Error(t, err)

		friends, err := s.Friends(ctx, "a@x")
		require.NoError(t, err)
		assert.Equal(t, []string{"b@x", "c@x"}, friends)

		friends, err = s.Friends(ctx, "b@x")
		require.NoError(t, err)
		assert.Empty(t, friends, "friendships are directed")

		assertCounts(t, s, store.Counts{People: 3, Friendships: 3})
	})

	t.Run("residents born on and spouses", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, newStore)

		for _, p := range []store.Person{
			person("w1@x", store.Female, "Paris", 1),
			person("m1@x", store.Male, "Paris", 1),
			person("w2@x", store.Female, "Paris", 1),
			person("old@x", store.Male, "Paris", 0),
		} {
			require.NoError(t, s.InsertPerson(ctx, p))
		}
		require.NoError(t, s.Relocate(ctx, "w2@x", "Lyon", year(3)))

		born, err := s.ResidentsBornOn(ctx, "Paris", year(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"m1@x", "w1@x"}, born, "movers leave the list")

		born, err = s.ResidentsBornOn(ctx, "Lyon", year(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"w2@x"}, born)

		require.NoError(t, s.InsertMarriage(ctx, store.Marriage{
			ID: "m-1", WifeEmail: "w1@x", HusbandEmail: "m1@x", City: "Paris", Date: year(20),
		}))

		for email, want := range map[string]string{
			"w1@x":    "m1@x",
			"m1@x":    "w1@x",
			"w2@x":    "",
			"ghost@x": "",
		} {
			spouse, err := s.Spouse(ctx, email)
			require.NoError(t, err)
			assert.Equal(t, want, spouse, email)
		}
	})

	t.Run("companies and employment", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, newStore)

		require.NoError(t, s.InsertPerson(ctx, person("a@x", store.Male, "Paris", 1)))
		require.NoError(t, s.InsertPerson(ctx, person("b@x", store.Female, "Paris", 1)))
		require.NoError(t, s.InsertPerson(ctx, person("young@x", store.Female, "Paris", 30)))

		company := store.Company{Name: "SwiftRiver-1-0", Country: "France", City: "Paris", Address: "1 Alice Street, Paris, 75 France", Founded: year(20)}
		require.NoError(t, s.InsertCompany(ctx, company))
		assert.Error(t, s.InsertCompany(ctx, company), "duplicate name")

		unemployed, err := s.Unemployed(ctx, "Paris", year(18))
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x", "b@x"}, unemployed)

		require.NoError(t, s.InsertEmployment(ctx, store.Employment{Email: "a@x", Company: company.Name, Start: year(20)}))
		assert.Error(t, s.InsertEmployment(ctx, store.Employment{Email: "a@x", Company: company.Name, Start: year(21)}), "already employed")
		assert.Error(t, s.InsertEmployment(ctx, store.Employment{Email: "b@x", Company: "Nope", Start: year(21)}), "unknown company")

		unemployed, err = s.Unemployed(ctx, "Paris", year(18))
		require.NoError(t, err)
		assert.Equal(t, []string{"b@x"}, unemployed)

		assertCounts(t, s, store.Counts{People: 3, Companies: 1, Employments: 1})
	})

	t.Run("concurrent writers", func(t *testing.T) {
		ctx := context.Background()
		s := open(t, newStore)

		errs := make(chan error, 40)
		for i := range 40 {
			go func() {
				email := string(rune('a'+i%26)) + string(rune('a'+i/26)) + "@x"
				errs <- s.InsertPerson(ctx, person(email, store.Female, "Paris", 1))
			}()
		}
		for range 40 {
			require.NoError(t, <-errs)
		}

		residents, err := s.Residents(ctx, "Paris")
		require.NoError(t, err)
		assert.Len(t, residents, 40)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := open(t, newStore)

		assert.Error(t, s.InsertPerson(ctx, person("a@x", store.Male, "Paris", 1)))
		_, err := s.Residents(ctx, "Paris")
		assert.Error(t, err)
	})
}

func open(t *testing.T, newStore Factory) store.Store {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func assertCounts(t *testing.T, s store.Store, want store.Counts) {
	t.Helper()
	got, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
