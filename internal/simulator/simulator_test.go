package simulator

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/lox/worldsim/internal/config"
	"github.com/lox/worldsim/internal/randutil"
	"github.com/lox/worldsim/internal/store"
	"github.com/lox/worldsim/internal/store/memory"
	"github.com/lox/worldsim/internal/store/sqlite"
	"github.com/lox/worldsim/internal/tracing"
	"github.com/lox/worldsim/internal/world"
)

func testWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.Default(2)
	require.NoError(t, err)
	return w
}

func testConfig(t *testing.T, s store.Store) Config {
	return Config{
		World:            testWorld(t),
		Store:            s,
		Seed:             7,
		Iterations:       6,
		StartYear:        1,
		AdultAge:         2,
		FriendsPerPerson: 1,
		Parallelism:      4,
		Agents:           config.AgentNames,
		Clock:            quartz.NewMock(t),
		Logger:           log.NewWithOptions(io.Discard, log.Options{}),
	}
}

func run(t *testing.T, cfg Config) *Result {
	t.Helper()
	sim, err := New(cfg)
	require.NoError(t, err)
	result, err := sim.Run(context.Background())
	require.NoError(t, err)
	return result
}

// snapshot captures the observable state of every city.
type snapshot struct {
	Residents map[string][]string
	Marriages map[string][]store.Marriage
}

func takeSnapshot(t *testing.T, w *world.World, s store.Store) snapshot {
	t.Helper()
	ctx := context.Background()
	snap := snapshot{
		Residents: make(map[string][]string),
		Marriages: make(map[string][]store.Marriage),
	}
	for _, city := range w.Cities {
		residents, err := s.Residents(ctx, city.Name)
		require.NoError(t, err)
		snap.Residents[city.Name] = residents

		marriages, err := s.Marriages(ctx, city.Name)
		require.NoError(t, err)
		for i := range marriages {
			marriages[i].Date = marriages[i].Date.UTC()
		}
		snap.Marriages[city.Name] = marriages
	}
	return snap
}

func TestRunIsIndependentOfParallelism(t *testing.T) {
	serial := memory.New()
	cfg := testConfig(t, serial)
	cfg.Parallelism = 1
	serialResult := run(t, cfg)

	parallel := memory.New()
	cfg = testConfig(t, parallel)
	cfg.Parallelism = 8
	parallelResult := run(t, cfg)

	assert.Equal(t, serialResult.Counts, parallelResult.Counts)
	assert.Equal(t, serialResult.Steps, parallelResult.Steps)
	assert.Equal(t, takeSnapshot(t, cfg.World, serial), takeSnapshot(t, cfg.World, parallel))
}

func TestRunMemoryMatchesSQLite(t *testing.T) {
	mem := memory.New()
	memResult := run(t, testConfig(t, mem))

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cfg := testConfig(t, db)
	dbResult := run(t, cfg)

	assert.Equal(t, memResult.Counts, dbResult.Counts)
	assert.Equal(t, memResult.Steps, dbResult.Steps)
	assert.Equal(t, takeSnapshot(t, cfg.World, mem), takeSnapshot(t, cfg.World, db))
}

func TestRunSeedChangesOutcome(t *testing.T) {
	a := memory.New()
	cfg := testConfig(t, a)
	run(t, cfg)

	b := memory.New()
	cfg = testConfig(t, b)
	cfg.Seed = 8
	run(t, cfg)

	assert.NotEqual(t, takeSnapshot(t, cfg.World, a).Residents, takeSnapshot(t, cfg.World, b).Residents)
}

func TestRunPopulatesWorld(t *testing.T) {
	s := memory.New()
	cfg := testConfig(t, s)
	result := run(t, cfg)

	cities := len(cfg.World.Cities)
	births := cfg.Iterations * cities * cfg.World.ScaleFactor
	assert.Equal(t, births, result.Counts.People)
	assert.Equal(t, cfg.Iterations*len(cfg.World.Countries)*cfg.World.ScaleFactor, result.Counts.Companies)
	assert.Positive(t, result.Counts.Marriages)
	assert.Positive(t, result.Counts.Friendships)
	assert.Positive(t, result.Counts.Employments)
	assert.LessOrEqual(t, result.Counts.Relocations, cfg.Iterations*len(cfg.World.Countries)*cfg.World.ScaleFactor)

	require.Len(t, result.Steps, cfg.Iterations)
	for i, step := range result.Steps {
		assert.Equal(t, i+1, step.Step)
		require.Len(t, step.Agents, len(config.AgentNames))
		assert.Equal(t, config.AgentPersonBirth, step.Agents[0].Name)
		assert.Equal(t, cities, step.Agents[0].Regions)
		assert.Equal(t, cities*cfg.World.ScaleFactor, step.Agents[0].Records)
	}

	births0 := result.RegionRecords[config.AgentPersonBirth]
	assert.Equal(t, cfg.Iterations*cities, births0.Count)
	assert.Equal(t, float64(births), births0.Sum)
	assert.Equal(t, float64(cfg.World.ScaleFactor), births0.Max)

	total := 0
	for _, step := range result.Steps {
		total += step.Records()
	}
	assert.Positive(t, total)
}

func TestFriendshipRecordsMatchStore(t *testing.T) {
	s := memory.New()
	cfg := testConfig(t, s)
	cfg.Seed = 1
	cfg.Iterations = 10
	cfg.FriendsPerPerson = 3
	cfg.Agents = []string{config.AgentPersonBirth, config.AgentFriendship}
	result := run(t, cfg)

	reported := 0
	for _, step := range result.Steps {
		for _, agent := range step.Agents {
			if agent.Name == config.AgentFriendship {
				reported += agent.Records
			}
		}
	}
	assert.Positive(t, reported)
	assert.Equal(t, result.Counts.Friendships, reported)
	assert.Equal(t, float64(reported), result.RegionRecords[config.AgentFriendship].Sum)
}

func TestReadAgentsReportReads(t *testing.T) {
	s := memory.New()
	cfg := testConfig(t, s)
	result := run(t, cfg)

	cities := len(cfg.World.Cities)
	neighbours := 0
	for _, city := range cfg.World.Cities {
		neighbours += len(cfg.World.CitiesIn(city.Country.Continent)) - 1
	}

	reads := map[string]int{}
	for i, step := range result.Steps {
		stepReads := 0
		for _, agent := range step.Agents {
			switch agent.Name {
			case config.AgentResidents, config.AgentCitiesInContinent, config.AgentMaritalStatus, config.AgentFriendOfFriend:
				assert.Equal(t, "read", agent.Kind, agent.Name)
				assert.Zero(t, agent.Records, agent.Name)
				reads[agent.Name] += agent.Reads
				stepReads += agent.Reads
			default:
				assert.Equal(t, "write", agent.Kind, agent.Name)
				assert.Zero(t, agent.Reads, agent.Name)
			}
			switch agent.Name {
			case config.AgentResidents:
				// Every person lives somewhere.
				assert.Equal(t, (i+1)*cities*cfg.World.ScaleFactor, agent.Reads)
			case config.AgentCitiesInContinent:
				assert.Equal(t, neighbours, agent.Reads)
			}
		}
		assert.Equal(t, stepReads, step.Reads())
	}
	// Adults come of age from step AdultAge+1 on.
	assert.Positive(t, reads[config.AgentMaritalStatus])
	assert.Positive(t, reads[config.AgentFriendOfFriend])

	writeRuns, written := 0, 0
	for _, name := range config.AgentNames {
		agent, err := AgentByName(name)
		require.NoError(t, err)
		if agent.Kind() == Write {
			writeRuns += result.RegionRecords[name].Count
		}
	}
	for _, step := range result.Steps {
		written += step.Records()
	}
	assert.Equal(t, writeRuns, result.Written.Count)
	assert.Equal(t, float64(written), result.Written.Sum)
}

func TestMaritalStatusReadsAdultsComingOfAge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	w := testWorld(t)
	france := w.Cities[3].Country
	require.Equal(t, "France", france.Name)

	step := &Step{Number: 20, Date: time.Date(20, time.January, 1, 0, 0, 0, 0, time.UTC), World: w, Store: s, AdultAge: 18}
	adult := step.AdultsBornBy()
	for _, p := range []store.Person{
		{Email: "w@x", Gender: store.Female, BirthCity: "Paris", BirthDate: adult},
		{Email: "m@x", Gender: store.Male, BirthCity: "Lyon", BirthDate: adult},
		{Email: "kid@x", Gender: store.Male, BirthCity: "Paris", BirthDate: step.Date},
		{Email: "away@x", Gender: store.Male, BirthCity: "Berlin", BirthDate: adult},
	} {
		require.NoError(t, s.InsertPerson(ctx, p))
	}
	require.NoError(t, s.InsertMarriage(ctx, store.Marriage{ID: "m", WifeEmail: "w@x", HusbandEmail: "m@x", City: "Paris", Date: step.Date}))

	n, err := maritalStatus(ctx, step, france, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFriendOfFriendCountsSecondHop(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	w := testWorld(t)
	paris := w.Cities[3]
	require.Equal(t, "Paris", paris.Name)

	born := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertPerson(ctx, store.Person{Email: "a@x", BirthCity: "Paris", BirthDate: born}))
	for _, email := range []string{"b@x", "c@x", "d@x", "e@x"} {
		require.NoError(t, s.InsertPerson(ctx, store.Person{Email: email, BirthCity: "Lyon", BirthDate: born}))
	}
	for _, f := range []store.Friendship{
		{Email: "a@x", FriendEmail: "b@x"},
		{Email: "a@x", FriendEmail: "e@x"},
		{Email: "b@x", FriendEmail: "a@x"},
		{Email: "b@x", FriendEmail: "c@x"},
		{Email: "b@x", FriendEmail: "e@x"},
		{Email: "e@x", FriendEmail: "c@x"},
		{Email: "c@x", FriendEmail: "d@x"},
	} {
		_, err := s.InsertFriendship(ctx, f)
		require.NoError(t, err)
	}

	// a is the only Paris resident; only c is two hops from a.
	step := &Step{Number: 1, Date: born, World: w, Store: s}
	n, err := friendOfFriend(ctx, step, paris, randutil.NewStream(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = friendOfFriend(ctx, step, w.Cities[0], randutil.NewStream(1))
	require.NoError(t, err)
	assert.Zero(t, n, "nobody lives in London")
}

func TestMarriagesPairWomenWithMen(t *testing.T) {
	s := memory.New()
	cfg := testConfig(t, s)
	run(t, cfg)

	ctx := context.Background()
	spouses := make(map[string]bool)
	for _, city := range cfg.World.Cities {
		marriages, err := s.Marriages(ctx, city.Name)
		require.NoError(t, err)
		for _, m := range marriages {
			assert.Equal(t, MarriageID(m.WifeEmail, m.HusbandEmail), m.ID)
			assert.False(t, spouses[m.WifeEmail], "%s married twice", m.WifeEmail)
			assert.False(t, spouses[m.HusbandEmail], "%s married twice", m.HusbandEmail)
			spouses[m.WifeEmail] = true
			spouses[m.HusbandEmail] = true
		}
	}

	// Married people are no longer single.
	for _, city := range cfg.World.Cities {
		for _, gender := range []string{store.Female, store.Male} {
			singles, err := s.SingleAdults(ctx, city.Name, gender, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			for _, email := range singles {
				assert.False(t, spouses[email])
			}
		}
	}
}

func TestOnlyConfiguredAgentsRun(t *testing.T) {
	s := memory.New()
	cfg := testConfig(t, s)
	cfg.Iterations = 1
	cfg.Agents = []string{config.AgentPersonBirth}
	result := run(t, cfg)

	assert.Equal(t, store.Counts{People: len(cfg.World.Cities) * cfg.World.ScaleFactor}, result.Counts)
	assert.Len(t, result.RegionRecords, 1)
}

func TestStepDate(t *testing.T) {
	cfg := testConfig(t, memory.New())
	cfg.StartYear = 2000
	sim, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC), sim.StepDate(1))
	assert.Equal(t, time.Date(2009, time.January, 1, 0, 0, 0, 0, time.UTC), sim.StepDate(10))
}

type recordingMonitor struct {
	clock   *quartz.Mock
	starts  []int
	reports []StepReport
}

func (m *recordingMonitor) OnStepStart(step int, _ time.Time) {
	m.starts = append(m.starts, step)
	m.clock.Advance(time.Second).MustWait(context.Background())
}

func (m *recordingMonitor) OnStepComplete(report StepReport) {
	m.reports = append(m.reports, report)
}

func TestMonitorAndTiming(t *testing.T) {
	clock := quartz.NewMock(t)
	monitor := &recordingMonitor{clock: clock}

	cfg := testConfig(t, memory.New())
	cfg.Iterations = 3
	cfg.Clock = clock
	cfg.Monitor = NewMultiMonitor(nil, monitor)
	result := run(t, cfg)

	assert.Equal(t, []int{1, 2, 3}, monitor.starts)
	assert.Equal(t, result.Steps, monitor.reports)
	for _, report := range monitor.reports {
		assert.Equal(t, time.Second, report.Duration)
		for _, agent := range report.Agents {
			assert.Zero(t, agent.Duration, "the clock only moves between steps")
		}
	}
	assert.Equal(t, 3*time.Second, result.Duration)
}

func TestTracingFollowsSampler(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	sampler, err := tracing.NewSampler(tracing.SampleLog, 2)
	require.NoError(t, err)

	cfg := testConfig(t, memory.New())
	cfg.Iterations = 5
	cfg.Sampler = sampler
	cfg.Tracer = tp.Tracer("test")
	cfg.TracedAgents = map[string]bool{config.AgentMarriage: true}
	run(t, cfg)

	names := make(map[string]int)
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}
	// Steps 1, 2 and 4 are sampled; only the marriage agent is traced.
	assert.Equal(t, map[string]int{
		"step":   3,
		"agent":  3,
		"region": 3 * len(cfg.World.Cities),
	}, names)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim, err := New(testConfig(t, memory.New()))
	require.NoError(t, err)
	result, err := sim.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Steps)
	assert.Equal(t, store.Counts{}, result.Counts)
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig(t, memory.New())
	cfg.Agents = []string{"taxation"}
	_, err := New(cfg)
	assert.ErrorContains(t, err, "taxation")

	cfg = testConfig(t, memory.New())
	cfg.World = nil
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t, nil)
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t, memory.New())
	cfg.Iterations = 0
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestMarriageID(t *testing.T) {
	id := MarriageID("w@x", "m@x")
	assert.Equal(t, id, MarriageID("w@x", "m@x"))
	assert.NotEqual(t, id, MarriageID("m@x", "w@x"))
	assert.NotEqual(t, MarriageID("ab", "c"), MarriageID("a", "bc"))
	assert.Len(t, id, 36)
}

func TestNewMultiMonitor(t *testing.T) {
	assert.Equal(t, NullMonitor{}, NewMultiMonitor())
	assert.Equal(t, NullMonitor{}, NewMultiMonitor(nil))

	single := &recordingMonitor{}
	assert.Same(t, single, NewMultiMonitor(nil, single))
	assert.IsType(t, &MultiMonitor{}, NewMultiMonitor(single, NullMonitor{}))
}
