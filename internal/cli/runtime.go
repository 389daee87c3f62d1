package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/roach88/fxledger/internal/config"
	"github.com/roach88/fxledger/internal/durable"
	"github.com/roach88/fxledger/internal/engine"
	"github.com/roach88/fxledger/internal/events"
	"github.com/roach88/fxledger/internal/exchange"
	"github.com/roach88/fxledger/internal/kv"
	"github.com/roach88/fxledger/internal/store"
	"github.com/roach88/fxledger/internal/transfer"
)

// Backend file and directory names inside the state directory.
const (
	SQLiteFile = "ledger.db"
	PebbleDir  = "ledger.pebble"
)

// Runtime is a recovered ledger with its engine running.
type Runtime struct {
	Config  *config.Config
	Engine  *engine.Engine
	Service *exchange.Service

	backend   durable.Backend
	publisher events.Publisher
	cancel    context.CancelFunc
	done      chan error
}

// loadConfig merges the config sources and the command-line overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:      opts.ConfigFile,
		EnvFile:   opts.EnvFile,
		LookupEnv: opts.LookupEnv,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	if opts.StateDir != "" {
		cfg.State.Dir = opts.StateDir
	}
	if opts.Backend != "" {
		cfg.State.Backend = opts.Backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openRuntime loads configuration, recovers the ledger from the state
// directory and starts the engine. The caller must Close the runtime.
func openRuntime(ctx context.Context, opts *RootOptions, errOut io.Writer) (*Runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	kitLogger := setupLogging(cfg.Log, opts.Verbose, errOut)

	slog.Debug("opening state", "backend", cfg.State.Backend, "dir", cfg.State.Dir)
	backend, err := openBackend(cfg.State)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open state", err)
	}

	st, err := engine.Recover(ctx, backend)
	if err != nil {
		backend.Close()
		return nil, WrapExitError(ExitCommandError, "failed to recover ledger", err)
	}

	transfers := opts.Transfers
	if transfers == nil {
		sim, err := transfer.NewSimulated(transfer.Config{
			MinLatency:  cfg.Transfer.MinLatency.Duration,
			MaxLatency:  cfg.Transfer.MaxLatency.Duration,
			FailureRate: cfg.Transfer.FailureRate,
			Seed:        cfg.Transfer.Seed,
		})
		if err != nil {
			backend.Close()
			return nil, WrapExitError(ExitCommandError, "invalid transfer configuration", err)
		}
		transfers = sim
	}
	transfers = transfer.NewLoggingService(level.Debug(kitLogger), transfers)

	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.Nop{}
		if len(cfg.Events.Brokers) > 0 {
			slog.Debug("publishing settlements", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
			publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		}
	}

	e := engine.New(st, backend)
	svc := exchange.New(e, transfers,
		exchange.WithPublisher(publisher),
		exchange.WithCompensationAttempts(cfg.Transfer.CompensationAttempts),
	)

	// Operations outlive the command context: once queued they finish.
	runCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		Config:    cfg,
		Engine:    e,
		Service:   svc,
		backend:   backend,
		publisher: publisher,
		cancel:    cancel,
		done:      make(chan error, 1),
	}
	go func() { rt.done <- e.Run(runCtx) }()

	return rt, nil
}

// Close drains the engine and releases the backend and the publisher.
func (rt *Runtime) Close() error {
	rt.Engine.Stop()
	rt.cancel()
	runErr := <-rt.done
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(runErr, rt.publisher.Close(), rt.backend.Close())
}

// openBackend opens the configured durability backend, creating the state
// directory if needed.
func openBackend(cfg config.StateConfig) (durable.Backend, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	switch cfg.Backend {
	case "file":
		return durable.OpenFile(cfg.Dir)
	case "sqlite":
		return store.Open(filepath.Join(cfg.Dir, SQLiteFile))
	case "pebble":
		return kv.Open(filepath.Join(cfg.Dir, PebbleDir))
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// setupLogging installs the slog default handler and returns the go-kit
// logger used by the transfer client. Both write to w.
func setupLogging(cfg config.LogConfig, verbose bool, w io.Writer) kitlog.Logger {
	lvl := slog.LevelInfo
	allow := level.AllowInfo()
	switch cfg.Level {
	case "debug":
		lvl, allow = slog.LevelDebug, level.AllowDebug()
	case "warn":
		lvl, allow = slog.LevelWarn, level.AllowWarn()
	case "error":
		lvl, allow = slog.LevelError, level.AllowError()
	}
	if verbose {
		lvl, allow = slog.LevelDebug, level.AllowDebug()
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(w, handlerOpts)
	var kitLogger kitlog.Logger
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
		kitLogger = kitlog.NewJSONLogger(kitlog.NewSyncWriter(w))
	} else {
		kitLogger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	}
	slog.SetDefault(slog.New(handler))

	kitLogger = kitlog.With(kitLogger, "ts", kitlog.DefaultTimestampUTC, "component", "transfer")
	return level.NewFilter(kitLogger, allow)
}
