package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fortiblox/x1-stakepool/pkg/types"
)

// stateFile is the JSON form of State kept next to a persistent ledger.
type stateFile struct {
	Slot          uint64 `json:"slot"`
	LastTimestamp int64  `json:"last_timestamp"`
}

// SaveState writes state to path atomically.
func SaveState(path string, state State) error {
	body, err := json.Marshal(stateFile{Slot: uint64(state.Slot), LastTimestamp: state.LastTimestamp})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadState reads state saved by SaveState. A missing file yields the zero
// State and ok == false.
func LoadState(path string) (state State, ok bool, err error) {
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("read state: %w", err)
	}
	var f stateFile
	if err := json.Unmarshal(body, &f); err != nil {
		return State{}, false, fmt.Errorf("parse state %s: %w", path, err)
	}
	state.Slot = types.Slot(f.Slot)
	state.LastTimestamp = f.LastTimestamp
	return state, true, nil
}
