package snapshot

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/x1-stakepool/pkg/accounts"
)

// Export writes every account in db plus state to an archive at path.
// The archive is written to a temporary file and renamed into place. The
// caller must keep db quiescent for the duration.
func Export(db accounts.AccountsDB, state State, path string) (*Manifest, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	// Account records are staged first: the manifest precedes them in the
	// archive but carries their hash and tar needs the entry size up front.
	staged, err := os.CreateTemp(dir, ".accounts-*.bin")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		staged.Close()
		os.Remove(staged.Name())
	}()

	aw := NewAccountsWriter(staged)
	if err := db.ForEach(aw.Write); err != nil {
		return nil, fmt.Errorf("write accounts: %w", err)
	}
	if err := aw.Flush(); err != nil {
		return nil, fmt.Errorf("flush accounts: %w", err)
	}
	size, err := staged.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Version:       FormatVersion,
		Slot:          uint64(state.Slot),
		LastTimestamp: state.LastTimestamp,
		AccountsCount: aw.Count(),
		LamportsTotal: aw.LamportsTotal(),
		StateHash:     aw.StateHash(),
		CreatedAt:     time.Now().UTC(),
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}

	out, err := os.CreateTemp(dir, ".snapshot-*.tar.zst")
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	tmpName := out.Name()
	committed := false
	defer func() {
		if !committed {
			out.Close()
			os.Remove(tmpName)
		}
	}()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	tw := tar.NewWriter(enc)
	if err := writeEntry(tw, manifestEntry, int64(len(manifestJSON)), bytes.NewReader(manifestJSON)); err != nil {
		return nil, err
	}
	if err := writeEntry(tw, accountsEntry, size, staged); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close zstd: %w", err)
	}
	if err := out.Sync(); err != nil {
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("rename archive: %w", err)
	}
	committed = true
	return manifest, nil
}

func writeEntry(tw *tar.Writer, name string, size int64, r io.Reader) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    size,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := io.CopyN(tw, r, size); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
