package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/bft-labs/ticksync/internal/ports"
)

const checkpointPrefix = "checkpoint-"

// CheckpointFileRepository implements ports.CheckpointRepository with one
// JSON file per pool.
type CheckpointFileRepository struct {
	dir string
}

// NewCheckpointFileRepository creates a repository storing files under dir.
func NewCheckpointFileRepository(dir string) *CheckpointFileRepository {
	return &CheckpointFileRepository{dir: dir}
}

// Load retrieves the checkpoint for pool.
// Returns false and nil error if no checkpoint file exists.
func (r *CheckpointFileRepository) Load(ctx context.Context, pool string) (ports.Checkpoint, bool, error) {
	data, err := os.ReadFile(r.Path(pool))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ports.Checkpoint{}, false, nil
		}
		return ports.Checkpoint{}, false, err
	}

	var cp ports.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return ports.Checkpoint{}, false, fmt.Errorf("decode checkpoint %s: %w", r.Path(pool), err)
	}
	return cp, true, nil
}

// Save persists the checkpoint, replacing the previous file atomically.
func (r *CheckpointFileRepository) Save(ctx context.Context, cp ports.Checkpoint) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(r.Path(cp.Pool), bytes.NewReader(data))
}

// Delete removes the checkpoint file for pool.
func (r *CheckpointFileRepository) Delete(ctx context.Context, pool string) error {
	err := os.Remove(r.Path(pool))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Path returns the full path to the checkpoint file of pool.
func (r *CheckpointFileRepository) Path(pool string) string {
	return filepath.Join(r.dir, checkpointPrefix+fileSafe(pool)+".json")
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(s))
}
