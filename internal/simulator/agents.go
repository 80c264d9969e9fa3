package simulator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lox/worldsim/internal/config"
	"github.com/lox/worldsim/internal/randutil"
	"github.com/lox/worldsim/internal/store"
	"github.com/lox/worldsim/internal/world"
)

var agents = map[string]Agent{
	config.AgentPersonBirth: cityAgent(config.AgentPersonBirth, Write, personBirth),
	config.AgentMarriage:    cityAgent(config.AgentMarriage, Write, marriage),
	config.AgentParenthood:  cityAgent(config.AgentParenthood, Write, parenthood),
	config.AgentRelocation:  countryAgent(config.AgentRelocation, Write, relocation),
	config.AgentFriendship:  cityAgent(config.AgentFriendship, Write, friendship),
	config.AgentEmployment:  countryAgent(config.AgentEmployment, Write, employment),

	config.AgentResidents:         cityAgent(config.AgentResidents, Read, residents),
	config.AgentCitiesInContinent: cityAgent(config.AgentCitiesInContinent, Read, citiesInContinent),
	config.AgentMaritalStatus:     countryAgent(config.AgentMaritalStatus, Read, maritalStatus),
	config.AgentFriendOfFriend:    cityAgent(config.AgentFriendOfFriend, Read, friendOfFriend),
}

// AgentByName returns the agent registered under name.
func AgentByName(name string) (Agent, error) {
	agent, ok := agents[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}
	return agent, nil
}

// personBirth adds scale factor newborns to a city.
func personBirth(ctx context.Context, step *Step, city *world.City, rng *randutil.Stream) (int, error) {
	w := step.World
	for i := range w.ScaleFactor {
		surname, err := randutil.Choose(rng, w.Surnames)
		if err != nil {
			return i, fmt.Errorf("surname: %w", err)
		}
		gender := store.Female
		male := rng.Bool()
		if male {
			gender = store.Male
		}
		forename, err := randutil.Choose(rng, w.Forenames(!male))
		if err != nil {
			return i, fmt.Errorf("forename: %w", err)
		}

		// The email keys the person, so it carries everything that makes a
		// birth unique.
		email := fmt.Sprintf("%s.%s_%s_%d_%d_%s_%s_%s@gmail.com",
			forename, surname, step.Date.Format("2006-01-02T15:04"), i, step.Number,
			city.Name, city.Country.Name, city.Country.Continent.Name)

		if err := step.Store.InsertPerson(ctx, store.Person{
			Email:     email,
			Forename:  forename,
			Surname:   surname,
			Gender:    gender,
			BirthDate: step.Date,
			BirthCity: city.Name,
		}); err != nil {
			return i, err
		}
	}
	return w.ScaleFactor, nil
}

// marriage pairs off single adult women and men resident in a city.
func marriage(ctx context.Context, step *Step, city *world.City, rng *randutil.Stream) (int, error) {
	women, err := step.Store.SingleAdults(ctx, city.Name, store.Female, step.AdultsBornBy())
	if err != nil {
		return 0, err
	}
	men, err := step.Store.SingleAdults(ctx, city.Name, store.Male, step.AdultsBornBy())
	if err != nil {
		return 0, err
	}

	couples := randutil.BipartitePairs(rng, women, men)
	for i, couple := range couples {
		if err := step.Store.InsertMarriage(ctx, store.Marriage{
			ID:           MarriageID(couple.First, couple.Second),
			WifeEmail:    couple.First,
			HusbandEmail: couple.Second,
			City:         city.Name,
			Date:         step.Date,
		}); err != nil {
			return i, err
		}
	}
	return len(couples), nil
}

// MarriageID derives a stable identifier from the spouses' emails.
func MarriageID(wifeEmail, husbandEmail string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(wifeEmail+"\x00"+husbandEmail)).String()
}

// parenthood assigns the city's newborns to its marriages.
func parenthood(ctx context.Context, step *Step, city *world.City, rng *randutil.Stream) (int, error) {
	children, err := step.Store.BornIn(ctx, city.Name, step.Date)
	if err != nil {
		return 0, err
	}
	marriages, err := step.Store.Marriages(ctx, city.Name)
	if err != nil {
		return 0, err
	}

	parentships := randutil.Allocate(rng, marriages, children)
	for i, p := range parentships {
		if err := step.Store.InsertParentship(ctx, store.Parentship{
			MarriageID: p.First.ID,
			ChildEmail: p.Second,
		}); err != nil {
			return i, err
		}
	}
	return len(parentships), nil
}

// relocation moves up to scale factor residents of a country to other cities
// of the same country.
func relocation(ctx context.Context, step *Step, country *world.Country, rng *randutil.Stream) (int, error) {
	if len(country.Cities) == 0 {
		return 0, nil
	}

	var residents []string
	current := make(map[string]string)
	for _, city := range country.Cities {
		emails, err := step.Store.Residents(ctx, city.Name)
		if err != nil {
			return 0, err
		}
		for _, email := range emails {
			current[email] = city.Name
		}
		residents = append(residents, emails...)
	}

	randutil.Shuffle(rng, residents)
	movers := residents[:min(len(residents), step.World.ScaleFactor)]

	moved := 0
	for _, move := range randutil.Allocate(rng, country.Cities, movers) {
		if current[move.Second] == move.First.Name {
			continue
		}
		if err := step.Store.Relocate(ctx, move.Second, move.First.Name, step.Date); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// friendship befriends each resident of a city with others in the same city.
// Repeated pairs are stored once and counted once.
func friendship(ctx context.Context, step *Step, city *world.City, rng *randutil.Stream) (int, error) {
	residents, err := step.Store.Residents(ctx, city.Name)
	if err != nil {
		return 0, err
	}
	if len(residents) < 2 {
		return 0, nil
	}

	pairs, err := randutil.Pairs(rng, residents, step.FriendsPerPerson)
	if err != nil {
		return 0, err
	}
	stored := 0
	for _, p := range pairs {
		ok, err := step.Store.InsertFriendship(ctx, store.Friendship{
			Email:       p.First,
			FriendEmail: p.Second,
		})
		if err != nil {
			return stored, err
		}
		if ok {
			stored++
		}
	}
	return stored, nil
}

// employment founds scale factor companies in a country and hires its
// unemployed adults into them.
func employment(ctx context.Context, step *Step, country *world.Country, rng *randutil.Stream) (int, error) {
	if len(country.Cities) == 0 {
		return 0, nil
	}
	w := step.World

	companies := make([]store.Company, 0, w.ScaleFactor)
	for i := range w.ScaleFactor {
		adjective, err := randutil.Choose(rng, w.Adjectives)
		if err != nil {
			return len(companies), fmt.Errorf("company adjective: %w", err)
		}
		noun, err := randutil.Choose(rng, w.Nouns)
		if err != nil {
			return len(companies), fmt.Errorf("company noun: %w", err)
		}
		city, err := randutil.Choose(rng, country.Cities)
		if err != nil {
			return len(companies), fmt.Errorf("company city: %w", err)
		}
		address, err := world.Address(rng, w, city)
		if err != nil {
			return len(companies), fmt.Errorf("company address: %w", err)
		}

		company := store.Company{
			Name:    fmt.Sprintf("%s%s-%s-%d-%d", adjective, noun, country.Code, step.Number, i),
			Country: country.Name,
			City:    city.Name,
			Address: address,
			Founded: step.Date,
		}
		if err := step.Store.InsertCompany(ctx, company); err != nil {
			return len(companies), err
		}
		companies = append(companies, company)
	}

	var unemployed []string
	for _, city := range country.Cities {
		emails, err := step.Store.Unemployed(ctx, city.Name, step.AdultsBornBy())
		if err != nil {
			return len(companies), err
		}
		unemployed = append(unemployed, emails...)
	}

	written := len(companies)
	for _, hire := range randutil.Allocate(rng, companies, unemployed) {
		if err := step.Store.InsertEmployment(ctx, store.Employment{
			Email:   hire.Second,
			Company: hire.First.Name,
			Start:   step.Date,
		}); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
