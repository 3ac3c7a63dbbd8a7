package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var (
	configFlag = cli.StringFlag{
		Name:   "config",
		Usage:  "path to the YAML/TOML/JSON config file",
		EnvVar: "STAKEPOOL_CONFIG",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory for the ledger, journal and node state (overrides data_dir)",
	}
	backendFlag = cli.StringFlag{
		Name:  "accounts-backend",
		Usage: "accounts storage backend (memory|badger|leveldb)",
	}
	rpcAddrFlag = cli.StringFlag{
		Name:  "rpc-addr",
		Usage: "JSON-RPC listening address",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "metrics and health listening address",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "log level (debug|info|warn|error)",
	}
	genesisFlag = cli.StringFlag{
		Name:  "genesis",
		Usage: "path to the genesis YAML file",
	}
	outFlag = cli.StringFlag{
		Name:  "out",
		Usage: "output file",
	}
	inFlag = cli.StringFlag{
		Name:  "in",
		Usage: "input file",
	}
	forceFlag = cli.BoolFlag{
		Name:  "force",
		Usage: "overwrite an existing file",
	}
)

var commonFlags = []cli.Flag{
	configFlag,
	dataDirFlag,
	backendFlag,
	logLevelFlag,
}
