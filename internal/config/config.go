// Package config loads the YAML configuration shared by the fogsim commands.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/casperlundberg/fog-offloader/pkg/environment"
	"github.com/casperlundberg/fog-offloader/pkg/learning"
	"github.com/casperlundberg/fog-offloader/pkg/models"
	"github.com/casperlundberg/fog-offloader/pkg/simulation"
)

// Config is the root of fogsim.yaml
type Config struct {
	Environment environment.Config `yaml:"environment"`
	Agent       learning.Config    `yaml:"agent"`
	Generator   GeneratorConfig    `yaml:"generator"`
	Database    DatabaseConfig     `yaml:"database"`
	Server      ServerConfig       `yaml:"server"`
	Sweep       SweepConfig        `yaml:"sweep"`
	Log         LogConfig          `yaml:"log"`
}

// GeneratorConfig sets the size and seed of the task stream
type GeneratorConfig struct {
	Tasks  int                        `yaml:"tasks"`
	Seed   int64                      `yaml:"seed"`
	Ranges simulation.GeneratorConfig `yaml:",inline"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty disables persistence
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SweepConfig lists the grid explored by the sweep command
type SweepConfig struct {
	NodeCounts   []int     `yaml:"node_counts"`
	TaskCounts   []int     `yaml:"task_counts"`
	FailureRates []float64 `yaml:"failure_rates"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration of the reference experiment
func Default() *Config {
	env := environment.DefaultConfig()
	return &Config{
		Environment: env,
		Agent:       learning.DefaultConfig(env.NumNodes),
		Generator: GeneratorConfig{
			Tasks:  100,
			Seed:   42,
			Ranges: simulation.DefaultGeneratorConfig(),
		},
		Database: DatabaseConfig{Path: "fogsim.db"},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Sweep: SweepConfig{
			NodeCounts:   []int{5, 10, 20},
			TaskCounts:   []int{50, 100, 200},
			FailureRates: []float64{0.001, 0.01, 0.1},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path on top of Default; keys absent from the file keep their defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Agent.NumNodes = cfg.Environment.NumNodes

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the sections that are not validated by their own constructors
func (c *Config) Validate() error {
	var errs models.ValidationErrors

	errs.AddIf(c.Environment.NumNodes <= 0, "environment.nodes", c.Environment.NumNodes, "node count must be > 0")
	errs.AddIf(c.Environment.DrainPolicy != "" && !c.Environment.DrainPolicy.Valid(),
		"environment.drain_policy", c.Environment.DrainPolicy, "drain policy must be both or backup_first")
	if err := c.Environment.Broker.Validate(); err != nil {
		errs.Add("environment.broker", c.Environment.Broker, err.Error())
	}
	agent := c.Agent
	agent.NumNodes = c.Environment.NumNodes
	if err := agent.Validate(); err != nil {
		errs.Add("agent", c.Agent, err.Error())
	}
	errs.AddIf(c.Generator.Tasks < 0, "generator.tasks", c.Generator.Tasks, "task count must be >= 0")
	if err := c.Generator.Ranges.Validate(); err != nil {
		errs.Add("generator", c.Generator.Ranges, err.Error())
	}
	errs.AddIf(c.Server.Port <= 0 || c.Server.Port > 65535, "server.port", c.Server.Port, "port must be in 1..65535")
	for _, n := range c.Sweep.NodeCounts {
		errs.AddIf(n <= 0, "sweep.node_counts", n, "node counts must be > 0")
	}
	for _, n := range c.Sweep.TaskCounts {
		errs.AddIf(n < 0, "sweep.task_counts", n, "task counts must be >= 0")
	}
	for _, f := range c.Sweep.FailureRates {
		errs.AddIf(f < 0, "sweep.failure_rates", f, "failure rates must be >= 0")
	}
	errs.AddIf(hclog.LevelFromString(c.Log.Level) == hclog.NoLevel, "log.level", c.Log.Level, "unknown log level")

	if errs.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", errs)
	}
	return nil
}
