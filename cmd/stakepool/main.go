// stakepool runs a single-node ledger hosting the stake pool program.
package main

import (
	"fmt"
	"os"

	cli "gopkg.in/urfave/cli.v1"
)

var (
	version   = "0.1.0"
	gitCommit string
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "stakepool"
	app.Usage = "stake pool ledger node"
	app.Version = fullVersion()
	app.Commands = []cli.Command{
		{
			Name:   "init",
			Usage:  "bootstrap an empty ledger from a genesis file",
			Flags:  append([]cli.Flag{genesisFlag}, commonFlags...),
			Action: initAction,
		},
		{
			Name:  "serve",
			Usage: "serve JSON-RPC and metrics over the ledger",
			Flags: append([]cli.Flag{
				rpcAddrFlag,
				metricsAddrFlag,
				genesisFlag,
			}, commonFlags...),
			Action: serveAction,
		},
		{
			Name:  "snapshot",
			Usage: "export, import or verify ledger snapshots",
			Subcommands: []cli.Command{
				{
					Name:   "export",
					Usage:  "write the ledger to a snapshot archive",
					Flags:  append([]cli.Flag{outFlag}, commonFlags...),
					Action: snapshotExportAction,
				},
				{
					Name:   "import",
					Usage:  "load a snapshot archive into an empty ledger",
					Flags:  append([]cli.Flag{inFlag}, commonFlags...),
					Action: snapshotImportAction,
				},
				{
					Name:   "verify",
					Usage:  "check a snapshot archive against its manifest",
					Flags:  []cli.Flag{inFlag},
					Action: snapshotVerifyAction,
				},
			},
		},
		{
			Name:  "version",
			Usage: "print the version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(fullVersion())
				return nil
			},
		},
		{
			Name:   "keygen",
			Usage:  "generate a keypair file",
			Flags:  []cli.Flag{outFlag, forceFlag},
			Action: keygenAction,
		},
	}
	return app
}

func fullVersion() string {
	if gitCommit == "" {
		return version + "-dev"
	}
	return fmt.Sprintf("%s-%s", version, gitCommit)
}
