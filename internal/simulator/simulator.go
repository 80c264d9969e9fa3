// Package simulator grows a synthetic world step by step. Each step runs a
// fixed sequence of agents; every agent runs once per region, in parallel,
// from a random stream derived for that region.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/lox/worldsim/internal/randutil"
	"github.com/lox/worldsim/internal/statistics"
	"github.com/lox/worldsim/internal/store"
	"github.com/lox/worldsim/internal/tracing"
	"github.com/lox/worldsim/internal/world"
)

// Config holds configuration for a simulation run.
type Config struct {
	World *world.World
	Store store.Store

	Seed             int64
	Iterations       int
	StartYear        int
	AdultAge         int
	FriendsPerPerson int
	Parallelism      int

	// Agents run in this order on every step.
	Agents []string
	// TracedAgents get spans on sampled steps.
	TracedAgents map[string]bool
	Sampler      tracing.Sampler
	Tracer       trace.Tracer

	Clock   quartz.Clock
	Monitor Monitor
	Logger  *log.Logger
}

// AgentReport describes one agent's work on one step. Write agents fill
// Records, read agents fill Reads.
type AgentReport struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Regions  int           `json:"regions"`
	Records  int           `json:"records"`
	Reads    int           `json:"reads"`
	Duration time.Duration `json:"duration"`
}

// StepReport describes one step.
type StepReport struct {
	Step     int           `json:"step"`
	Date     time.Time     `json:"date"`
	Agents   []AgentReport `json:"agents"`
	Duration time.Duration `json:"duration"`
}

// Records totals the records written by every agent on the step.
func (r StepReport) Records() int {
	total := 0
	for _, a := range r.Agents {
		total += a.Records
	}
	return total
}

// Reads totals the results read by every agent on the step.
func (r StepReport) Reads() int {
	total := 0
	for _, a := range r.Agents {
		total += a.Reads
	}
	return total
}

// Result is the outcome of a run.
type Result struct {
	Steps  []StepReport `json:"steps"`
	Counts store.Counts `json:"counts"`
	// RegionRecords summarises, by agent, what each region run produced:
	// records written, or results read.
	RegionRecords map[string]statistics.Summary `json:"region_records"`
	// Written summarises records written per region run across every write
	// agent.
	Written  statistics.Summary `json:"written"`
	Duration time.Duration      `json:"duration"`
}

// Simulator runs simulations.
type Simulator struct {
	config Config
	agents []Agent
}

// New validates config, fills in optional collaborators and resolves the
// agents.
func New(config Config) (*Simulator, error) {
	if config.World == nil {
		return nil, errors.New("simulator: world is required")
	}
	if config.Store == nil {
		return nil, errors.New("simulator: store is required")
	}
	if config.Iterations < 1 {
		return nil, fmt.Errorf("simulator: iterations must be positive, got %d", config.Iterations)
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.Sampler == nil {
		config.Sampler = func(int) bool { return false }
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if config.Clock == nil {
		config.Clock = quartz.NewReal()
	}
	if config.Monitor == nil {
		config.Monitor = NullMonitor{}
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard)
	}

	s := &Simulator{config: config}
	for _, name := range config.Agents {
		agent, err := AgentByName(name)
		if err != nil {
			return nil, fmt.Errorf("simulator: %w", err)
		}
		s.agents = append(s.agents, agent)
	}
	return s, nil
}

// StepDate returns the simulated date of a 1-based step.
func (s *Simulator) StepDate(step int) time.Time {
	return time.Date(s.config.StartYear+step-1, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Run executes every step and returns the reports gathered so far, even when
// it stops early on an error or cancellation.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	start := s.config.Clock.Now()
	root := randutil.NewStream(s.config.Seed)

	result := &Result{}
	distributions := make(map[string]*statistics.Distribution)
	for _, agent := range s.agents {
		distributions[agent.Name()] = &statistics.Distribution{}
	}

	var runErr error
	for step := 1; step <= s.config.Iterations; step++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		report, err := s.runStep(ctx, step, root, distributions)
		result.Steps = append(result.Steps, report)
		if err != nil {
			runErr = fmt.Errorf("step %d: %w", step, err)
			break
		}
	}

	result.RegionRecords = make(map[string]statistics.Summary, len(distributions))
	for name, d := range distributions {
		summary, err := d.Summary()
		if err != nil {
			return result, errors.Join(runErr, fmt.Errorf("summarise %s: %w", name, err))
		}
		result.RegionRecords[name] = summary
	}

	written := &statistics.Distribution{}
	for _, agent := range s.agents {
		if agent.Kind() == Write {
			written.Merge(distributions[agent.Name()])
		}
	}
	s.config.Logger.Debug("summarising writes", "region_runs", written.Count())
	summary, err := written.Summary()
	if err != nil {
		return result, errors.Join(runErr, fmt.Errorf("summarise writes: %w", err))
	}
	result.Written = summary

	// Counts are still useful after a failed run; a cancelled context would
	// refuse the query.
	counts, err := s.config.Store.Counts(context.WithoutCancel(ctx))
	if err != nil {
		return result, errors.Join(runErr, fmt.Errorf("count records: %w", err))
	}
	result.Counts = counts
	result.Duration = s.config.Clock.Since(start)
	return result, runErr
}

func (s *Simulator) runStep(ctx context.Context, number int, root *randutil.Stream, distributions map[string]*statistics.Distribution) (StepReport, error) {
	start := s.config.Clock.Now()
	step := &Step{
		Number:           number,
		Date:             s.StepDate(number),
		World:            s.config.World,
		Store:            s.config.Store,
		AdultAge:         s.config.AdultAge,
		FriendsPerPerson: s.config.FriendsPerPerson,
	}
	report := StepReport{Step: number, Date: step.Date}

	s.config.Monitor.OnStepStart(number, step.Date)

	sampled := s.config.Sampler(number) && len(s.config.TracedAgents) > 0
	ctx, span := s.startSpan(ctx, sampled, "step",
		attribute.Int("step", number),
		attribute.String("date", step.Date.Format(time.DateOnly)),
	)
	defer span.End()

	for _, agent := range s.agents {
		if err := ctx.Err(); err != nil {
			report.Duration = s.config.Clock.Since(start)
			return report, err
		}
		traced := sampled && s.config.TracedAgents[agent.Name()]
		agentReport, regionRecords, err := s.runAgent(ctx, step, agent, root, traced)
		report.Agents = append(report.Agents, agentReport)
		for _, n := range regionRecords {
			distributions[agent.Name()].Add(float64(n))
		}
		if err != nil {
			report.Duration = s.config.Clock.Since(start)
			return report, fmt.Errorf("agent %s: %w", agent.Name(), err)
		}
		s.config.Logger.Debug("agent complete",
			"step", number, "agent", agent.Name(), "kind", agentReport.Kind,
			"regions", agentReport.Regions, "records", agentReport.Records,
			"reads", agentReport.Reads, "duration", agentReport.Duration)
	}

	report.Duration = s.config.Clock.Since(start)
	s.config.Logger.Info("step complete",
		"step", number, "date", step.Date.Format(time.DateOnly),
		"records", report.Records(), "reads", report.Reads(), "duration", report.Duration)
	s.config.Monitor.OnStepComplete(report)
	return report, nil
}

// runAgent runs agent over all of its regions. Streams are derived from root
// on this goroutine, in region order, before any region starts, so the
// outcome does not depend on parallelism or scheduling.
func (s *Simulator) runAgent(ctx context.Context, step *Step, agent Agent, root *randutil.Stream, traced bool) (AgentReport, []int, error) {
	start := s.config.Clock.Now()
	regions := agent.Regions(step.World)
	streams := make([]*randutil.Stream, len(regions))
	for i := range regions {
		streams[i] = root.Derive()
	}

	ctx, span := s.startSpan(ctx, traced, "agent",
		attribute.String("agent", agent.Name()),
		attribute.String("kind", agent.Kind().String()),
		attribute.Int("regions", len(regions)),
	)
	defer span.End()

	records := make([]int, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Parallelism)
	for i, region := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rctx, rspan := s.startSpan(gctx, traced, "region",
				attribute.String("agent", agent.Name()),
				attribute.String("region", region.RegionName()),
			)
			defer rspan.End()

			n, err := agent.Run(rctx, step, region, streams[i])
			records[i] = n
			rspan.SetAttributes(attribute.Int(outputKey(agent), n))
			if err != nil {
				rspan.RecordError(err)
				return fmt.Errorf("region %s: %w", region.RegionName(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	report := AgentReport{Name: agent.Name(), Kind: agent.Kind().String(), Regions: len(regions)}
	total := 0
	for _, n := range records {
		total += n
	}
	if agent.Kind() == Read {
		report.Reads = total
	} else {
		report.Records = total
	}
	report.Duration = s.config.Clock.Since(start)
	span.SetAttributes(attribute.Int(outputKey(agent), total))
	return report, records, err
}

// outputKey names the span attribute carrying what an agent produced.
func outputKey(agent Agent) string {
	if agent.Kind() == Read {
		return "reads"
	}
	return "records"
}

// startSpan starts a span when traced. Otherwise ctx is returned unchanged
// with a non-recording span, so ending it never touches a parent span.
func (s *Simulator) startSpan(ctx context.Context, traced bool, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !traced {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return s.config.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
