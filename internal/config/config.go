package config

import (
	"fmt"
	"os"
	"time"

	"github.com/FairForge/drctl/internal/dr"
	"github.com/FairForge/drctl/internal/eventstore"
	"gopkg.in/yaml.v3"
)

// Duration parses Go duration strings ("10s", "5m") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full controller configuration.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Regions     []dr.RegionConfig  `yaml:"regions"`
	Primary     string             `yaml:"primary"`
	Health      HealthConfig       `yaml:"health"`
	Failover    FailoverConfig     `yaml:"failover"`
	Replication ReplicationConfig  `yaml:"replication"`
	Database    *eventstore.Config `yaml:"database,omitempty"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	APISecret string `yaml:"api_secret"`
}

type HealthConfig struct {
	Interval          Duration `yaml:"interval"`
	CheckTimeout      Duration `yaml:"check_timeout"`
	FailureThreshold  int      `yaml:"failure_threshold"`
	RecoveryThreshold int      `yaml:"recovery_threshold"`
}

type FailoverConfig struct {
	Auto              bool     `yaml:"auto"`
	Cooldown          Duration `yaml:"cooldown"`
	TransitionTimeout Duration `yaml:"transition_timeout"`
}

type ReplicationConfig struct {
	MaxLag         Duration `yaml:"max_lag"`
	ConflictPolicy string   `yaml:"conflict_policy"`
}

// Default returns the reference configuration without any topology.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Health: HealthConfig{
			Interval:          Duration(10 * time.Second),
			CheckTimeout:      Duration(5 * time.Second),
			FailureThreshold:  3,
			RecoveryThreshold: 2,
		},
		Failover: FailoverConfig{
			Auto:              true,
			Cooldown:          Duration(5 * time.Minute),
			TransitionTimeout: Duration(2 * time.Second),
		},
		Replication: ReplicationConfig{
			MaxLag:         Duration(time.Second),
			ConflictPolicy: dr.ConflictPolicyLastWriteWins,
		},
	}
}

// Load reads a YAML file over the defaults and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the parts the registry cannot check for itself.
func (c *Config) Validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("config: at least one region required")
	}
	if c.Primary == "" {
		return fmt.Errorf("config: primary region required")
	}
	found := false
	for _, region := range c.Regions {
		if region.ID == c.Primary {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: primary %q not in region topology", c.Primary)
	}
	if c.Replication.ConflictPolicy != "" && c.Replication.ConflictPolicy != dr.ConflictPolicyLastWriteWins {
		return fmt.Errorf("config: unsupported conflict policy %q", c.Replication.ConflictPolicy)
	}
	return nil
}

// ControllerConfig maps the file options onto the dr package types.
func (c *Config) ControllerConfig() dr.ControllerConfig {
	return dr.ControllerConfig{
		Regions: c.Regions,
		Primary: c.Primary,
		Monitor: dr.MonitorConfig{
			Interval:          time.Duration(c.Health.Interval),
			CheckTimeout:      time.Duration(c.Health.CheckTimeout),
			FailureThreshold:  c.Health.FailureThreshold,
			RecoveryThreshold: c.Health.RecoveryThreshold,
			MaxReplicationLag: time.Duration(c.Replication.MaxLag),
		},
		Failover: dr.EngineConfig{
			Auto:              c.Failover.Auto,
			Cooldown:          time.Duration(c.Failover.Cooldown),
			TransitionTimeout: time.Duration(c.Failover.TransitionTimeout),
		},
	}
}
