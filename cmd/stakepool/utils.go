package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
	"github.com/fortiblox/x1-stakepool/pkg/config"
	"github.com/fortiblox/x1-stakepool/pkg/genesis"
	"github.com/fortiblox/x1-stakepool/pkg/logging"
	"github.com/fortiblox/x1-stakepool/pkg/runtime"
	"github.com/fortiblox/x1-stakepool/pkg/snapshot"
)

// loadConfig reads the config file and applies command line overrides.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return cfg, errors.Wrap(err, "load config")
	}
	if ctx.IsSet(dataDirFlag.Name) {
		// Paths derived from the old data dir follow the override.
		if cfg.Accounts.Path == filepath.Join(cfg.DataDir, "accounts") {
			cfg.Accounts.Path = ""
		}
		if cfg.Journal.Driver == "sqlite" && cfg.Journal.DSN == filepath.Join(cfg.DataDir, "journal.db") {
			cfg.Journal.DSN = ""
		}
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(backendFlag.Name) {
		cfg.Accounts.Backend = ctx.String(backendFlag.Name)
		if cfg.Accounts.Backend == accounts.BackendMemory {
			cfg.Accounts.Path = ""
		}
	}
	if ctx.IsSet(logLevelFlag.Name) {
		cfg.Log.Level = ctx.String(logLevelFlag.Name)
	}
	if ctx.IsSet(rpcAddrFlag.Name) {
		cfg.RPC.Addr = ctx.String(rpcAddrFlag.Name)
	}
	if ctx.IsSet(metricsAddrFlag.Name) {
		cfg.Metrics.Addr = ctx.String(metricsAddrFlag.Name)
	}
	if ctx.IsSet(genesisFlag.Name) {
		cfg.Genesis.File = ctx.String(genesisFlag.Name)
	}
	cfg.Fill()
	return cfg, errors.Wrap(cfg.Validate(), "invalid config")
}

func initLogger(cfg config.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.Setup(logging.Options{
		Service: "stakepool",
		Env:     cfg.Log.Env,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "init logger")
	}
	return logger, closer, nil
}

func statePath(cfg config.Config) string {
	return filepath.Join(cfg.DataDir, "state.json")
}

// ledger is an open accounts database with its executor.
type ledger struct {
	cfg  config.Config
	db   accounts.AccountsDB
	exec *runtime.Executor
}

// openLedger opens the configured accounts backend and restores the executor
// state saved by the last run.
func openLedger(cfg config.Config) (*ledger, error) {
	if cfg.Accounts.Path != "" {
		if err := os.MkdirAll(cfg.Accounts.Path, 0o755); err != nil {
			return nil, errors.Wrap(err, "create accounts dir")
		}
	}
	db, err := accounts.Open(cfg.Accounts.Backend, cfg.Accounts.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s accounts db", cfg.Accounts.Backend)
	}

	registry := runtime.NewProgramRegistry()
	runtime.RegisterNativePrograms(registry)
	exec := runtime.NewExecutor(db, registry, runtime.SystemClock{})

	state, ok, err := snapshot.LoadState(statePath(cfg))
	if err != nil {
		db.Close()
		return nil, err
	}
	if ok {
		exec.SetSlot(state.Slot)
		exec.SetLastTimestamp(state.LastTimestamp)
	}
	return &ledger{cfg: cfg, db: db, exec: exec}, nil
}

func (l *ledger) state() snapshot.State {
	return snapshot.State{Slot: l.exec.Slot(), LastTimestamp: l.exec.LastTimestamp()}
}

// saveState persists the executor state. The memory backend has nothing to
// resume, so it is skipped.
func (l *ledger) saveState() error {
	if l.cfg.Accounts.Backend == accounts.BackendMemory {
		return nil
	}
	return errors.Wrap(snapshot.SaveState(statePath(l.cfg), l.state()), "save node state")
}

func (l *ledger) Close() error {
	return l.db.Close()
}

// applyGenesis bootstraps the ledger from file, falling back to the pool
// defaults in cfg for values the file leaves out.
func (l *ledger) applyGenesis(file string) (*genesis.Result, error) {
	spec, err := genesis.ReadSpec(file)
	if err != nil {
		return nil, err
	}
	if spec.RewardRate == 0 {
		spec.RewardRate = l.cfg.Pool.RewardRate
	}
	if spec.ReceiptDecimals == nil {
		decimals := l.cfg.Pool.ReceiptDecimals
		spec.ReceiptDecimals = &decimals
	}
	g, err := spec.Resolve(filepath.Dir(file))
	if err != nil {
		return nil, err
	}
	result, err := g.Apply(l.db, l.exec)
	if err != nil {
		return nil, errors.Wrap(err, "apply genesis")
	}
	return result, l.saveState()
}

// handleExitSignal returns a context cancelled on SIGINT or SIGTERM.
func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)
		sig := <-exitSignalCh
		slog.Info("exit signal received", "signal", sig.String())
		cancel()
	}()
	return ctx
}
