package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/ticksync/internal/adapters/fs"
	"github.com/bft-labs/ticksync/internal/adapters/leveldb"
	logAdapter "github.com/bft-labs/ticksync/internal/adapters/log"
	"github.com/bft-labs/ticksync/internal/adapters/memory"
	"github.com/bft-labs/ticksync/internal/adapters/rpc"
	"github.com/bft-labs/ticksync/internal/app"
	"github.com/bft-labs/ticksync/internal/cliconfig"
	"github.com/bft-labs/ticksync/internal/metrics"
	"github.com/bft-labs/ticksync/internal/pacing"
	"github.com/bft-labs/ticksync/internal/ports"
)

const helpDescription = `
Mirror the tick bitmap of concentrated-liquidity pools from a JSON-RPC node.

Highlights:
  - Maps a tick range to bitmap words and fetches them in bounded batches.
  - Every word of the range is fetched exactly once, including the last one.
  - Progress is checkpointed after each batch; interrupted runs resume.
  - Request rate, batch size and group pauses are tunable for rate-limited nodes.
`

var exampleUsage = strings.TrimSpace(`
  ticksync --rpc-url http://localhost:8545 --pool 0x88e6...5640 --tick-spacing 10 --once
  ticksync --config $HOME/.ticksync/config.toml --metrics-addr :9102
  ticksync plan --min-tick -887272 --max-tick 887272 --tick-spacing 1
  ticksync word -- -887272
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "ticksync",
		Short:   "Mirror the tick bitmap of concentrated-liquidity pools",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			// Build set of changed flags
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			flagCfg := cfg
			load := func() (cliconfig.Config, error) {
				return cliconfig.Load(flagCfg, cfgFile, changed)
			}
			loaded, err := load()
			if err != nil {
				return err
			}
			if err := cliconfig.SetLogLevel(loaded.LogLevel); err != nil {
				return err
			}
			log = cliconfig.Logger()
			log.Info().Interface("config", loaded).Msg("configuration")

			return run(loaded, cfgFile, load, log)
		},
	}

	// Flags
	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.ticksync/config.toml)")
	root.Flags().StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "JSON-RPC endpoint of the node")
	root.Flags().StringVar(&cfg.BlockTag, "block", cfg.BlockTag, "block tag or number the words are read at")

	root.Flags().StringVar(&cfg.Pool.Address, "pool", cfg.Pool.Address, "pool contract address")
	root.Flags().Int32Var(&cfg.Pool.MinTick, "min-tick", cfg.Pool.MinTick, "lowest tick of the range")
	root.Flags().Int32Var(&cfg.Pool.MaxTick, "max-tick", cfg.Pool.MaxTick, "highest tick of the range")
	root.Flags().Int32Var(&cfg.Pool.TickSpacing, "tick-spacing", cfg.Pool.TickSpacing, "tick spacing of the pool")

	root.Flags().IntVar(&cfg.MaxBatchSize, "max-batch-size", cfg.MaxBatchSize, "maximum words per request")
	root.Flags().IntVar(&cfg.GroupCap, "group-cap", cfg.GroupCap, "words per group before pausing")
	root.Flags().DurationVar(&cfg.GroupPause, "group-pause", cfg.GroupPause, "pause after each group")
	root.Flags().Float64Var(&cfg.RequestsPerSecond, "rps", cfg.RequestsPerSecond, "maximum requests per second (0 = unlimited)")
	root.Flags().IntVar(&cfg.Burst, "burst", cfg.Burst, "requests allowed back to back")

	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout per request")
	root.Flags().IntVar(&cfg.RetryMax, "retry-max", cfg.RetryMax, "transport retries per request")
	root.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "attempts per run, each resuming from the checkpoint")

	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "checkpoint directory (default: $HOME/.ticksync/state)")
	root.Flags().StringVar(&cfg.MirrorDir, "mirror-dir", cfg.MirrorDir, "leveldb directory for fetched words (in memory when empty)")
	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "delay between runs in continuous mode")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().BoolVar(&cfg.Verify, "verify", cfg.Verify, "check every word was fetched exactly once")
	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "synchronize every pool once and exit")

	root.AddCommand(newPlanCmd(), newWordCmd(), newTicksCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("ticksync")
		os.Exit(1)
	}
}

// run wires the adapters and runs the service until it finishes or a signal arrives.
func run(cfg cliconfig.Config, cfgFile string, load func() (cliconfig.Config, error), log zerolog.Logger) error {
	logger := logAdapter.NewZerologAdapterWithLogger(log)

	rpcCfg := rpc.DefaultConfig(cfg.RPCURL)
	rpcCfg.BlockTag = cfg.BlockTag
	rpcCfg.Timeout = cfg.HTTPTimeout
	rpcCfg.RetryMax = cfg.RetryMax
	fetcher, err := rpc.NewFetcher(rpcCfg, rpc.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	var mirror ports.Mirror = memory.NewMirror()
	if cfg.MirrorDir != "" {
		db, err := leveldb.Open(cfg.MirrorDir)
		if err != nil {
			return fmt.Errorf("open mirror: %w", err)
		}
		defer db.Close()
		mirror = db
	}

	emitter := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: emitter.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
		defer srv.Close()
	}

	pacer := pacing.New(pacing.Config{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		GroupPause:        cfg.GroupPause,
	})
	lifecycle := app.NewLifecycle(logger, nil)
	syncer := app.NewSynchronizer(
		app.SynchronizerConfig{Verify: cfg.Verify},
		fetcher,
		mirror,
		fs.NewCheckpointFileRepository(cfg.StateDir),
		pacer,
		logger,
		app.BatchEvents{emitter, lifecycle},
	)
	runner := app.NewRunner(app.RunnerConfig{
		Pools:        appPools(cfg.AllPools()),
		Policy:       cfg.Policy(),
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: cfg.PollInterval,
		Once:         cfg.Once,
	}, syncer, logger)
	svc := app.NewService(runner, lifecycle, logger)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !cfg.Once && cliconfig.FileExists(cfgFile) {
		w := cliconfig.NewWatcher(cfgFile, load, func(c cliconfig.Config) {
			if err := runner.Update(appPools(c.AllPools()), c.Policy()); err != nil {
				logger.Error("rejected reloaded config", ports.Err(err))
			}
		}, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("config watcher stopped", ports.Err(err))
			}
		}()
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start ticksync: %w", err)
	}

	// Wait for signal or completion
	select {
	case <-sigCh:
		log.Info().Msg("received signal, stopping...")
	case <-svc.Done():
		logProgress(logger, svc.Progress())
		if svc.Status() == app.StateCrashed {
			return fmt.Errorf("ticksync crashed: %w", svc.Err())
		}
		return nil
	}

	if err := svc.Stop(); err != nil {
		return fmt.Errorf("stop ticksync: %w", err)
	}
	return nil
}

func logProgress(logger ports.Logger, progress []app.PoolProgress) {
	for _, p := range progress {
		logger.Info("pool progress",
			ports.String("pool", p.Pool),
			ports.Int("runs", p.Runs),
			ports.Int("failed_runs", p.FailedRuns),
			ports.Int("batches", p.Batches),
			ports.Int("words", p.Words),
			ports.String("last_error", p.LastError),
		)
	}
}

func appPools(pools []cliconfig.Pool) []app.Pool {
	out := make([]app.Pool, 0, len(pools))
	for _, p := range pools {
		out = append(out, app.Pool{
			Address: p.Address,
			MinTick: p.MinTick,
			MaxTick: p.MaxTick,
			Spacing: p.TickSpacing,
		})
	}
	return out
}
