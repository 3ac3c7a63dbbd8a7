package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/fortiblox/x1-stakepool/pkg/crypto"
	"github.com/fortiblox/x1-stakepool/pkg/snapshot"
)

func initAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Genesis.File == "" {
		return errors.New("-genesis or genesis.file is required")
	}
	logger, closer, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	result, err := l.applyGenesis(cfg.Genesis.File)
	if err != nil {
		return err
	}
	logger.Info("ledger initialized",
		"pool", result.Pool.String(),
		"mint", result.Mint.String(),
		"authority", result.Authority.String(),
		"state_hash", result.StateHash.String(),
		"data_dir", cfg.DataDir,
	)
	return nil
}

func snapshotExportAction(ctx *cli.Context) error {
	out := ctx.String(outFlag.Name)
	if out == "" {
		return errors.New("-out is required")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	manifest, err := snapshot.Export(l.db, l.state(), out)
	if err != nil {
		return errors.Wrap(err, "export snapshot")
	}
	digest, err := snapshot.FileDigest(out)
	if err != nil {
		return errors.Wrap(err, "digest snapshot")
	}
	fmt.Printf("exported %d accounts at slot %d to %s\nstate hash %s\narchive digest %s\n",
		manifest.AccountsCount, manifest.Slot, out, manifest.StateHash, digest)
	return nil
}

func snapshotImportAction(ctx *cli.Context) error {
	in := ctx.String(inFlag.Name)
	if in == "" {
		return errors.New("-in is required")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	result, err := snapshot.Load(in, l.db)
	if err != nil {
		return errors.Wrap(err, "import snapshot")
	}
	state := result.Manifest.State()
	l.exec.SetSlot(state.Slot)
	l.exec.SetLastTimestamp(state.LastTimestamp)
	if err := l.saveState(); err != nil {
		return err
	}
	fmt.Printf("imported %d accounts at slot %d\nstate hash %s\n",
		result.AccountsLoaded, state.Slot, result.StateHash)
	return nil
}

func snapshotVerifyAction(ctx *cli.Context) error {
	in := ctx.String(inFlag.Name)
	if in == "" {
		return errors.New("-in is required")
	}
	result, err := snapshot.Verify(in)
	if err != nil {
		return errors.Wrap(err, "verify snapshot")
	}
	digest, err := snapshot.FileDigest(in)
	if err != nil {
		return errors.Wrap(err, "digest snapshot")
	}
	fmt.Printf("ok: %d accounts, %d lamports, slot %d\nstate hash %s\narchive digest %s\n",
		result.AccountsCount, result.LamportsTotal, result.Manifest.Slot, result.StateHash, digest)
	return nil
}

func keygenAction(ctx *cli.Context) error {
	out := ctx.String(outFlag.Name)
	if out == "" {
		return errors.New("-out is required")
	}
	if _, err := os.Stat(out); err == nil && !ctx.Bool(forceFlag.Name) {
		return errors.Errorf("%s exists, use -force to overwrite", out)
	}
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := kp.Save(out); err != nil {
		return errors.Wrap(err, "save keypair")
	}
	fmt.Println(kp.Pubkey().String())
	return nil
}
