// Package config loads the ledger's runtime configuration.
//
// Sources are applied in order, each overriding the previous one:
// built-in defaults, an optional YAML file, an optional .env file, and
// FXLEDGER_* environment variables. The merged result is checked against
// an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FXLEDGER_"

// Config is the complete runtime configuration.
type Config struct {
	State    StateConfig    `yaml:"state" json:"state"`
	Transfer TransferConfig `yaml:"transfer" json:"transfer"`
	Events   EventsConfig   `yaml:"events" json:"events"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// StateConfig selects where the ledger is persisted.
type StateConfig struct {
	// Backend is one of "file", "sqlite" or "pebble".
	Backend string `yaml:"backend" json:"backend"`
	Dir     string `yaml:"dir" json:"dir"`
}

// TransferConfig tunes the simulated bank.
type TransferConfig struct {
	MinLatency           Duration `yaml:"min_latency" json:"min_latency"`
	MaxLatency           Duration `yaml:"max_latency" json:"max_latency"`
	FailureRate          float64  `yaml:"failure_rate" json:"failure_rate"`
	CompensationAttempts int      `yaml:"compensation_attempts" json:"compensation_attempts"`
	Seed                 uint64   `yaml:"seed" json:"seed"`
}

// EventsConfig configures settlement publication. No brokers disables it.
type EventsConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers,omitempty"`
	Topic   string   `yaml:"topic" json:"topic"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MarshalJSON writes the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		State: StateConfig{
			Backend: "file",
			Dir:     "state",
		},
		Transfer: TransferConfig{
			MinLatency:           Duration{200 * time.Millisecond},
			MaxLatency:           Duration{400 * time.Millisecond},
			CompensationAttempts: 3,
		},
		Events: EventsConfig{
			Topic: "fx.settlements",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadOptions names the sources Load reads.
type LoadOptions struct {
	// File is a YAML config file. Empty skips it; a named file must exist.
	File string

	// EnvFile is a dotenv file. A missing file is skipped.
	EnvFile string

	// LookupEnv reads the process environment. Default: os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the configuration from defaults, opts.File, opts.EnvFile and
// the environment, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.File != "" {
		if err := cfg.mergeFile(opts.File); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if opts.EnvFile != "" {
		m, err := godotenv.Read(opts.EnvFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := env(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := env(EnvPrefix + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		dst.Duration = d
		return nil
	}

	str("STATE_BACKEND", &c.State.Backend)
	str("STATE_DIR", &c.State.Dir)
	if err := dur("TRANSFER_MIN_LATENCY", &c.Transfer.MinLatency); err != nil {
		return err
	}
	if err := dur("TRANSFER_MAX_LATENCY", &c.Transfer.MaxLatency); err != nil {
		return err
	}
	if v, ok := env(EnvPrefix + "TRANSFER_FAILURE_RATE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sTRANSFER_FAILURE_RATE: %w", EnvPrefix, err)
		}
		c.Transfer.FailureRate = f
	}
	if v, ok := env(EnvPrefix + "TRANSFER_COMPENSATION_ATTEMPTS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sTRANSFER_COMPENSATION_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.Transfer.CompensationAttempts = n
	}
	if v, ok := env(EnvPrefix + "TRANSFER_SEED"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sTRANSFER_SEED: %w", EnvPrefix, err)
		}
		c.Transfer.Seed = n
	}
	if v, ok := env(EnvPrefix + "EVENTS_BROKERS"); ok {
		c.Events.Brokers = splitList(v)
	}
	str("EVENTS_TOPIC", &c.Events.Topic)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks c against the CUE schema and the cross-field rules the
// schema cannot express.
func (c *Config) Validate() error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("build config value: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Transfer.MaxLatency.Duration < c.Transfer.MinLatency.Duration {
		return fmt.Errorf("invalid config: transfer.max_latency %s is below transfer.min_latency %s",
			c.Transfer.MaxLatency, c.Transfer.MinLatency)
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return fmt.Errorf("invalid config: events.topic is required when brokers are set")
	}
	return nil
}
