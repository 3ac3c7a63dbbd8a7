package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/fortiblox/x1-stakepool/pkg/journal"
	"github.com/fortiblox/x1-stakepool/pkg/metrics"
	"github.com/fortiblox/x1-stakepool/pkg/node"
	"github.com/fortiblox/x1-stakepool/pkg/rpc"
)

const shutdownTimeout = 10 * time.Second

func serveAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, logCloser, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	defer func() { logger.Info("exited") }()

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer func() { logger.Info("closing accounts database..."); l.Close() }()

	if l.db.GetAccountsCount() == 0 {
		if cfg.Genesis.File == "" {
			return errors.New("ledger is empty: run init or set genesis.file")
		}
		result, err := l.applyGenesis(cfg.Genesis.File)
		if err != nil {
			return err
		}
		logger.Info("genesis applied", "pool", result.Pool.String(), "mint", result.Mint.String())
	}

	opts := []node.Option{
		node.WithLogger(logger),
		node.WithAirdrop(cfg.RPC.Airdrop),
	}

	health := metrics.NewHealthChecker()
	if cfg.Journal.Driver != "none" {
		j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			return errors.Wrap(err, "open journal")
		}
		defer func() { logger.Info("closing journal..."); j.Close() }()
		opts = append(opts, node.WithJournal(j))
		health.RegisterPingCheck("journal", j)
	}

	m := metrics.NewMetrics()
	opts = append(opts, node.WithMetrics(m))
	n := node.New(l.db, l.exec, opts...)
	if err := m.Register(metrics.NewPoolCollector(n)); err != nil {
		return errors.Wrap(err, "register pool collector")
	}
	health.RegisterPingCheck("accounts", n)

	if _, _, err := n.PoolState(); err != nil {
		return errors.Wrap(err, "read pool state")
	}

	exitSignal := handleExitSignal()

	rpcConfig := rpc.DefaultServerConfig()
	rpcConfig.Address = cfg.RPC.Addr
	rpcConfig.RateLimitRPS = cfg.RPC.RateLimit
	rpcConfig.RateLimitBurst = cfg.RPC.Burst
	rpcConfig.AllowedOrigins = cfg.RPC.CORSOrigins
	rpcConfig.Version = fullVersion()
	rpcConfig.Logger = logger
	rpcSrv := rpc.NewServer(rpcConfig, n)
	if err := rpcSrv.Start(); err != nil {
		return err
	}
	defer stopWithTimeout(logger, "rpc server", rpcSrv.Stop)

	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(m,
			metrics.WithAddr(cfg.Metrics.Addr),
			metrics.WithHealthChecker(health),
			metrics.WithLogger(logger),
		)
		if err := metricsSrv.Start(); err != nil {
			return err
		}
		logger.Info("metrics server listening", "addr", metricsSrv.Addr())
		defer stopWithTimeout(logger, "metrics server", metricsSrv.Stop)
	}

	health.Start(exitSignal)
	defer health.Stop()
	health.SetReady(true)

	logger.Info("node started",
		"version", fullVersion(),
		"slot", uint64(n.Slot()),
		"pool", n.Client().Pool.String(),
		"accounts_backend", cfg.Accounts.Backend,
		"journal", cfg.Journal.Driver,
	)

	<-exitSignal.Done()
	health.SetReady(false)

	// Stop accepting transactions before recording the final state.
	stopWithTimeout(logger, "rpc server", rpcSrv.Stop)
	if err := l.saveState(); err != nil {
		return err
	}
	logger.Info("node state saved", "slot", uint64(n.Slot()))
	return nil
}

func stopWithTimeout(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("shutdown failed", "component", name, "error", err)
	}
}
