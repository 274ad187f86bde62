package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (TICKSYNC_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("rpc-url", os.Getenv("TICKSYNC_RPC_URL"), &cfg.RPCURL)
	s.setString("block", os.Getenv("TICKSYNC_BLOCK_TAG"), &cfg.BlockTag)
	s.setString("pool", os.Getenv("TICKSYNC_POOL"), &cfg.Pool.Address)
	s.setString("state-dir", os.Getenv("TICKSYNC_STATE_DIR"), &cfg.StateDir)
	s.setString("mirror-dir", os.Getenv("TICKSYNC_MIRROR_DIR"), &cfg.MirrorDir)
	s.setString("metrics-addr", os.Getenv("TICKSYNC_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", os.Getenv("TICKSYNC_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setTickFromString("min-tick", os.Getenv("TICKSYNC_MIN_TICK"), &cfg.Pool.MinTick); err != nil {
		return err
	}
	if err := s.setTickFromString("max-tick", os.Getenv("TICKSYNC_MAX_TICK"), &cfg.Pool.MaxTick); err != nil {
		return err
	}
	if err := s.setTickFromString("tick-spacing", os.Getenv("TICKSYNC_TICK_SPACING"), &cfg.Pool.TickSpacing); err != nil {
		return err
	}

	if err := s.setDuration("poll", os.Getenv("TICKSYNC_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("group-pause", os.Getenv("TICKSYNC_GROUP_PAUSE"), &cfg.GroupPause); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("TICKSYNC_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setFloatFromString("rps", os.Getenv("TICKSYNC_REQUESTS_PER_SECOND"), &cfg.RequestsPerSecond); err != nil {
		return err
	}

	if err := s.setIntFromString("max-batch-size", os.Getenv("TICKSYNC_MAX_BATCH_SIZE"), &cfg.MaxBatchSize); err != nil {
		return err
	}
	if err := s.setIntFromString("group-cap", os.Getenv("TICKSYNC_GROUP_CAP"), &cfg.GroupCap); err != nil {
		return err
	}
	if err := s.setIntFromString("burst", os.Getenv("TICKSYNC_BURST"), &cfg.Burst); err != nil {
		return err
	}
	if err := s.setIntFromString("retry-max", os.Getenv("TICKSYNC_RETRY_MAX"), &cfg.RetryMax); err != nil {
		return err
	}
	if err := s.setIntFromString("max-attempts", os.Getenv("TICKSYNC_MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}

	s.setBoolFromString("verify", os.Getenv("TICKSYNC_VERIFY"), &cfg.Verify)
	s.setBoolFromString("once", os.Getenv("TICKSYNC_ONCE"), &cfg.Once)

	return nil
}
