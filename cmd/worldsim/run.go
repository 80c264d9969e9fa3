package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"github.com/lox/worldsim/cmd/worldsim/shared"
	"github.com/lox/worldsim/internal/config"
	"github.com/lox/worldsim/internal/fileutil"
	"github.com/lox/worldsim/internal/simulator"
	"github.com/lox/worldsim/internal/store"
	"github.com/lox/worldsim/internal/store/journal"
	"github.com/lox/worldsim/internal/store/memory"
	"github.com/lox/worldsim/internal/store/sqlite"
	"github.com/lox/worldsim/internal/tracing"
	"github.com/lox/worldsim/internal/world"
)

type RunCmd struct {
	Config      string `short:"c" default:"worldsim.hcl" help:"HCL configuration file (optional)"`
	Seed        *int64 `short:"s" help:"Random seed (overrides config and WORLDSIM_SEED)"`
	Iterations  *int   `short:"n" help:"Number of simulation steps"`
	ScaleFactor *int   `help:"Births, movers and companies per region per step"`
	Parallelism *int   `short:"p" help:"Regions run concurrently"`
	Storage     string `help:"Storage driver (memory, sqlite)"`
	DB          string `help:"SQLite database path"`
	Report      string `help:"Write a JSON run report to this path"`
	NoColor     bool   `help:"Disable colored output"`
	Quiet       bool   `short:"q" help:"Hide progress dots"`
	Debug       bool   `help:"Enable debug logging"`
}

// runReport is the JSON document written by --report.
type runReport struct {
	RunID       string            `json:"run_id"`
	Seed        int64             `json:"seed"`
	Iterations  int               `json:"iterations"`
	ScaleFactor int               `json:"scale_factor"`
	Storage     string            `json:"storage"`
	Agents      []string          `json:"agents"`
	Result      *simulator.Result `json:"result"`
	Error       string            `json:"error,omitempty"`
}

func (c *RunCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)
	ctx, stop := shared.SetupSignalHandler(logger)
	defer stop()

	return c.execute(ctx, logger, os.Stdout, os.Stderr)
}

func (c *RunCmd) execute(ctx context.Context, logger *log.Logger, stdout, stderr io.Writer) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.SeedSet {
		logger.Warn("no seed supplied, using default", "seed", cfg.Seed)
	}

	w, err := world.Default(cfg.ScaleFactor)
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	tracingCfg := tracing.Config{}
	if cfg.Tracing != nil {
		tracingCfg = tracing.Config{Endpoint: cfg.Tracing.Endpoint, Insecure: cfg.Tracing.Insecure}
	}
	tp, shutdown, err := tracing.Setup(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("flush traces", "error", err)
		}
	}()

	sampler, err := tracing.NewSampler(cfg.TraceSampling.Function, cfg.TraceSampling.Arg)
	if err != nil {
		return fmt.Errorf("trace sampling: %w", err)
	}

	renderer := lipgloss.NewRenderer(stdout)
	progressRenderer := lipgloss.NewRenderer(stderr)
	if c.NoColor {
		renderer.SetColorProfile(termenv.Ascii)
		progressRenderer.SetColorProfile(termenv.Ascii)
	}

	monitors := []simulator.Monitor{logMonitor{logger: logger}}
	var progress *dotMonitor
	if !c.Quiet {
		progress = newDotMonitor(stderr, progressRenderer, cfg.Iterations)
		monitors = append(monitors, progress)
	}

	sim, err := simulator.New(simulator.Config{
		World:            w,
		Store:            st,
		Seed:             cfg.Seed,
		Iterations:       cfg.Iterations,
		StartYear:        cfg.StartYear,
		AdultAge:         cfg.AdultAge,
		FriendsPerPerson: cfg.FriendsPerPerson,
		Parallelism:      cfg.Parallelism,
		Agents:           cfg.EnabledAgents(),
		TracedAgents:     cfg.TracedAgents(),
		Sampler:          sampler,
		Tracer:           tp.Tracer(tracing.ServiceName),
		Clock:            quartz.NewReal(),
		Monitor:          simulator.NewMultiMonitor(monitors...),
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting simulation",
		"seed", cfg.Seed, "iterations", cfg.Iterations, "scale_factor", cfg.ScaleFactor,
		"storage", cfg.Storage.Driver, "parallelism", cfg.Parallelism)

	result, runErr := sim.Run(ctx)
	if progress != nil {
		progress.Finish()
	}
	if result != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("simulation interrupted", "steps", len(result.Steps))
		}
		if _, err := fmt.Fprintln(stdout, renderReport(renderer, cfg, result)); err != nil {
			return errors.Join(runErr, err)
		}
		if c.Report != "" {
			report := runReport{
				RunID:       runID(),
				Seed:        cfg.Seed,
				Iterations:  cfg.Iterations,
				ScaleFactor: cfg.ScaleFactor,
				Storage:     cfg.Storage.Driver,
				Agents:      cfg.EnabledAgents(),
				Result:      result,
			}
			if runErr != nil {
				report.Error = runErr.Error()
			}
			if err := fileutil.WriteJSONAtomic(c.Report, report, 0o644); err != nil {
				return errors.Join(runErr, fmt.Errorf("write report: %w", err))
			}
			logger.Info("report written", "path", c.Report)
		}
	}
	return runErr
}

// runID identifies a report file. It is time ordered, not derived from the
// seed.
func runID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// loadConfig layers the config file, the environment and flags, in that
// order, then validates the result.
func (c *RunCmd) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", c.Config, err)
	}

	if c.Seed != nil {
		cfg.Seed = *c.Seed
		cfg.SeedSet = true
	}
	if c.Iterations != nil {
		cfg.Iterations = *c.Iterations
	}
	if c.ScaleFactor != nil {
		cfg.ScaleFactor = *c.ScaleFactor
	}
	if c.Parallelism != nil {
		cfg.Parallelism = *c.Parallelism
	}
	if c.Storage != "" {
		cfg.Storage.Driver = c.Storage
	}
	if c.DB != "" {
		cfg.Storage.Path = c.DB
	}
	if cfg.Storage.Driver == config.DriverSQLite && cfg.Storage.Path == "" {
		cfg.Storage.Path = "worldsim.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore builds the configured backend, wrapped in the Kafka journal when
// brokers are configured.
func openStore(cfg *config.Config, logger *log.Logger) (store.Store, error) {
	var st store.Store
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		logger.Debug("opened sqlite store", "path", cfg.Storage.Path)
		st = db
	default:
		st = memory.New()
	}

	if cfg.Journal != nil {
		logger.Info("journaling writes to kafka", "brokers", cfg.Journal.Brokers, "topic", cfg.Journal.Topic)
		st = journal.Open(st, cfg.Journal.Brokers, cfg.Journal.Topic)
	}
	return st, nil
}
