// Package config loads simulation settings from an HCL file, then applies
// WORLDSIM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// Agent names, in the order a default run executes them. Write agents grow
// the world; read agents query it back once the step's writes are done.
const (
	AgentPersonBirth = "personBirth"
	AgentMarriage    = "marriage"
	AgentParenthood  = "parenthood"
	AgentRelocation  = "relocation"
	AgentFriendship  = "friendship"
	AgentEmployment  = "employment"

	AgentResidents         = "residents"
	AgentCitiesInContinent = "citiesInContinent"
	AgentMaritalStatus     = "maritalStatus"
	AgentFriendOfFriend    = "friendOfFriend"
)

// AgentNames lists every known agent in default run order.
var AgentNames = []string{
	AgentPersonBirth,
	AgentMarriage,
	AgentParenthood,
	AgentRelocation,
	AgentFriendship,
	AgentEmployment,
	AgentResidents,
	AgentCitiesInContinent,
	AgentMaritalStatus,
	AgentFriendOfFriend,
}

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the complete run configuration.
type Config struct {
	Seed             int64 `hcl:"seed,optional"`
	Iterations       int   `hcl:"iterations,optional"`
	ScaleFactor      int   `hcl:"scale_factor,optional"`
	Parallelism      int   `hcl:"parallelism,optional"`
	StartYear        int   `hcl:"start_year,optional"`
	AdultAge         int   `hcl:"adult_age,optional"`
	FriendsPerPerson int   `hcl:"friends_per_person,optional"`

	TraceSampling *TraceSampling `hcl:"trace_sampling,block"`
	Storage       *StorageConfig `hcl:"storage,block"`
	Journal       *JournalConfig `hcl:"journal,block"`
	Tracing       *TracingConfig `hcl:"tracing,block"`
	Agents        []AgentConfig  `hcl:"agent,block"`

	// SeedSet records whether a seed was supplied by the file or the
	// environment.
	SeedSet bool

	// explicit holds the top-level attributes the file sets. Zero is a valid
	// value for some of them, so defaults only fill attributes left out.
	explicit map[string]bool
}

// TraceSampling picks which steps are traced.
type TraceSampling struct {
	Function string `hcl:"function,optional"`
	Arg      int    `hcl:"arg,optional"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	Driver string `hcl:"driver,optional"`
	Path   string `hcl:"path,optional"`
}

// JournalConfig enables the Kafka event journal when Brokers is non-empty.
type JournalConfig struct {
	Brokers []string `hcl:"brokers"`
	Topic   string   `hcl:"topic,optional"`
}

// TracingConfig points at an OTLP/HTTP collector.
type TracingConfig struct {
	Endpoint string `hcl:"endpoint"`
	Insecure bool   `hcl:"insecure,optional"`
}

// AgentConfig enables an agent and its tracing. Agents run in the order their
// blocks appear.
type AgentConfig struct {
	Name  string `hcl:"name,label"`
	Run   *bool  `hcl:"run,optional"`
	Trace bool   `hcl:"trace,optional"`
}

// Enabled reports whether the agent runs. Agents run unless disabled.
func (a AgentConfig) Enabled() bool {
	return a.Run == nil || *a.Run
}

// envOverrides holds values that, when present in the environment, replace
// file values.
type envOverrides struct {
	Seed          *int64  `env:"WORLDSIM_SEED"`
	Iterations    *int    `env:"WORLDSIM_ITERATIONS"`
	ScaleFactor   *int    `env:"WORLDSIM_SCALE_FACTOR"`
	StorageDriver *string `env:"WORLDSIM_STORAGE_DRIVER"`
	StoragePath   *string `env:"WORLDSIM_STORAGE_PATH"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads filename, applies defaults and environment overrides. A missing
// file yields Default with overrides applied. The result is not validated.
func Load(filename string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(filename); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	} else {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
		}
		if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
		if body, ok := file.Body.(*hclsyntax.Body); ok {
			cfg.explicit = make(map[string]bool, len(body.Attributes))
			for name := range body.Attributes {
				cfg.explicit[name] = true
			}
			cfg.SeedSet = cfg.explicit["seed"]
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
		c.SeedSet = true
	}
	if o.Iterations != nil {
		c.Iterations = *o.Iterations
	}
	if o.ScaleFactor != nil {
		c.ScaleFactor = *o.ScaleFactor
	}
	if o.StorageDriver != nil || o.StoragePath != nil {
		if c.Storage == nil {
			c.Storage = &StorageConfig{}
		}
		if o.StorageDriver != nil {
			c.Storage.Driver = *o.StorageDriver
		}
		if o.StoragePath != nil {
			c.Storage.Path = *o.StoragePath
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if !c.SeedSet && c.Seed == 0 {
		c.Seed = 1
	}
	if c.Iterations == 0 {
		c.Iterations = 10
	}
	if c.ScaleFactor == 0 {
		c.ScaleFactor = 5
	}
	if c.Parallelism == 0 {
		c.Parallelism = 8
	}
	if c.StartYear == 0 {
		c.StartYear = 1
	}
	if c.AdultAge == 0 && !c.explicit["adult_age"] {
		c.AdultAge = 18
	}
	if c.FriendsPerPerson == 0 && !c.explicit["friends_per_person"] {
		c.FriendsPerPerson = 1
	}

	if c.TraceSampling == nil {
		c.TraceSampling = &TraceSampling{}
	}
	if c.TraceSampling.Function == "" {
		c.TraceSampling.Function = "every"
	}
	if c.TraceSampling.Arg == 0 {
		c.TraceSampling.Arg = 1
	}

	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		c.Storage.Path = "worldsim.db"
	}

	if c.Journal != nil && c.Journal.Topic == "" {
		c.Journal.Topic = "worldsim"
	}

	// With no agent blocks every agent runs untraced.
	if len(c.Agents) == 0 {
		for _, name := range AgentNames {
			c.Agents = append(c.Agents, AgentConfig{Name: name})
		}
	}
}

// Validate checks ranges and names.
func (c *Config) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.ScaleFactor < 1 {
		return fmt.Errorf("scale_factor must be positive, got %d", c.ScaleFactor)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	if c.AdultAge < 0 {
		return fmt.Errorf("adult_age must not be negative, got %d", c.AdultAge)
	}
	if c.FriendsPerPerson < 0 {
		return fmt.Errorf("friends_per_person must not be negative, got %d", c.FriendsPerPerson)
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}

	if c.Journal != nil && len(c.Journal.Brokers) == 0 {
		return fmt.Errorf("journal needs at least one broker")
	}

	known := make(map[string]bool, len(AgentNames))
	for _, name := range AgentNames {
		known[name] = true
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, agent := range c.Agents {
		if !known[agent.Name] {
			return fmt.Errorf("agent %s: unknown agent", agent.Name)
		}
		if seen[agent.Name] {
			return fmt.Errorf("agent %s: configured twice", agent.Name)
		}
		seen[agent.Name] = true
	}

	return nil
}

// TracedAgents returns the names of enabled agents with tracing on.
func (c *Config) TracedAgents() map[string]bool {
	traced := make(map[string]bool)
	for _, agent := range c.Agents {
		if agent.Enabled() && agent.Trace {
			traced[agent.Name] = true
		}
	}
	return traced
}

// EnabledAgents returns the names of enabled agents in run order.
func (c *Config) EnabledAgents() []string {
	var names []string
	for _, agent := range c.Agents {
		if agent.Enabled() {
			names = append(names, agent.Name)
		}
	}
	return names
}
