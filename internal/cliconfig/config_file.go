package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/ticksync/internal/domain"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	RPCURL            string     `toml:"rpc_url"`
	BlockTag          string     `toml:"block_tag"`
	MaxBatchSize      int        `toml:"max_batch_size"`
	GroupCap          int        `toml:"group_cap"`
	RequestsPerSecond float64    `toml:"requests_per_second"`
	Burst             int        `toml:"burst"`
	GroupPause        string     `toml:"group_pause"`
	HTTPTimeout       string     `toml:"http_timeout"`
	RetryMax          int        `toml:"retry_max"`
	MaxAttempts       int        `toml:"max_attempts"`
	StateDir          string     `toml:"state_dir"`
	MirrorDir         string     `toml:"mirror_dir"`
	PollInterval      string     `toml:"poll_interval"`
	MetricsAddr       string     `toml:"metrics_addr"`
	LogLevel          string     `toml:"log_level"`
	Verify            *bool      `toml:"verify"`
	Once              *bool      `toml:"once"`
	Pools             []FilePool `toml:"pools"`
}

// FilePool is one [[pools]] entry. Omitted ticks default to the full tick domain.
type FilePool struct {
	Address     string `toml:"address"`
	MinTick     *int32 `toml:"min_tick"`
	MaxTick     *int32 `toml:"max_tick"`
	TickSpacing int32  `toml:"tick_spacing"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.ticksync/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".ticksync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("rpc-url", fc.RPCURL, &cfg.RPCURL)
	s.setString("block", fc.BlockTag, &cfg.BlockTag)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("mirror-dir", fc.MirrorDir, &cfg.MirrorDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("group-pause", fc.GroupPause, &cfg.GroupPause); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setFloat("rps", fc.RequestsPerSecond, &cfg.RequestsPerSecond)

	s.setInt("max-batch-size", fc.MaxBatchSize, &cfg.MaxBatchSize)
	s.setInt("group-cap", fc.GroupCap, &cfg.GroupCap)
	s.setInt("burst", fc.Burst, &cfg.Burst)
	s.setInt("retry-max", fc.RetryMax, &cfg.RetryMax)
	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)

	s.setBool("verify", fc.Verify, &cfg.Verify)
	s.setBool("once", fc.Once, &cfg.Once)

	pools, err := filePools(fc.Pools)
	if err != nil {
		return err
	}
	cfg.Pools = pools

	return nil
}

func filePools(entries []FilePool) ([]Pool, error) {
	pools := make([]Pool, 0, len(entries))
	for i, e := range entries {
		if e.Address == "" {
			return nil, fmt.Errorf("pools[%d]: address is required", i)
		}
		p := Pool{Address: e.Address, MinTick: domain.MinTick, MaxTick: domain.MaxTick, TickSpacing: e.TickSpacing}
		if e.MinTick != nil {
			p.MinTick = *e.MinTick
		}
		if e.MaxTick != nil {
			p.MaxTick = *e.MaxTick
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load builds the effective configuration: cfg holds defaults overlaid with
// flag values, changed names the flags set explicitly. The file at path, if
// it exists, is applied first and environment variables override it.
func Load(cfg Config, path string, changed map[string]bool) (Config, error) {
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
