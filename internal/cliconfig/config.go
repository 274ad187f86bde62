package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/ticksync/internal/domain"
)

// DefaultBlockTag is the block the bitmap words are read at.
const DefaultBlockTag = "latest"

// Pool is one tick range to synchronize.
type Pool struct {
	Address     string
	MinTick     int32
	MaxTick     int32
	TickSpacing int32
}

// Config holds CLI configuration for ticksync.
type Config struct {
	RPCURL   string
	BlockTag string

	// Pool is the single pool given on the command line
	Pool Pool
	// Pools are the pools listed in the config file
	Pools []Pool

	MaxBatchSize      int
	GroupCap          int
	RequestsPerSecond float64
	Burst             int
	GroupPause        time.Duration

	HTTPTimeout time.Duration
	RetryMax    int
	MaxAttempts int

	StateDir     string
	MirrorDir    string
	PollInterval time.Duration
	MetricsAddr  string
	LogLevel     string

	Verify bool
	Once   bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BlockTag:     DefaultBlockTag,
		Pool:         Pool{MinTick: domain.MinTick, MaxTick: domain.MaxTick, TickSpacing: 1},
		MaxBatchSize: domain.DefaultBatchSize,
		GroupCap:     domain.DefaultBatchSize,
		Burst:        1,
		HTTPTimeout:  30 * time.Second,
		RetryMax:     5,
		MaxAttempts:  5,
		PollInterval: time.Minute,
		LogLevel:     "info",
		StateDir:     "", // Derived from the home directory during Validate
	}
}

// Policy returns the batch policy described by the configuration.
func (c *Config) Policy() domain.BatchPolicy {
	return domain.BatchPolicy{MaxBatchSize: c.MaxBatchSize, GroupCap: c.GroupCap}
}

// AllPools returns the command line pool, if any, followed by the file pools.
func (c *Config) AllPools() []Pool {
	var out []Pool
	if c.Pool.Address != "" {
		out = append(out, c.Pool)
	}
	return append(out, c.Pools...)
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc-url is required")
	}
	if c.BlockTag == "" {
		c.BlockTag = DefaultBlockTag
	}

	// Zero bounds would never make progress, reject them here
	if err := c.Policy().Validate(); err != nil {
		return err
	}

	pools := c.AllPools()
	if len(pools) == 0 {
		return fmt.Errorf("at least one pool is required (--pool or [[pools]])")
	}
	seen := make(map[string]bool, len(pools))
	for _, p := range pools {
		if p.Address == "" {
			return fmt.Errorf("pool address is required")
		}
		key := strings.ToLower(p.Address)
		if seen[key] {
			return fmt.Errorf("pool %s listed twice", p.Address)
		}
		seen[key] = true
		if _, err := domain.NewWordInterval(p.MinTick, p.MaxTick, p.TickSpacing); err != nil {
			return fmt.Errorf("pool %s: %w", p.Address, err)
		}
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if !c.Once && c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.StateDir == "" {
		c.StateDir = filepath.Join(DefaultHome(), "state")
	}

	return nil
}

// DefaultHome returns ~/.ticksync, or .ticksync when the home directory is unknown.
func DefaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".ticksync")
	}
	return ".ticksync"
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setTick sets a tick value from a pointer, since zero and negative ticks are valid.
func (s *configSetter) setTick(flag string, value *int32, dst *int32) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setTickFromString parses a possibly negative tick.
func (s *configSetter) setTickFromString(flag, value string, dst *int32) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = int32(i)
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
