package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/ticksync/internal/batch"
	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/ports"
)

func TestCheckpointFileRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	repo := NewCheckpointFileRepository(dir)

	expected := ports.Checkpoint{
		Pool:      "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
		MinTick:   domain.MinTick,
		MaxTick:   domain.MaxTick,
		Spacing:   10,
		Policy:    domain.DefaultBatchPolicy(),
		State:     batch.State{Cursor: 120, Remaining: 5, GroupAccumulated: 3},
		UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := repo.Save(ctx, expected); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(repo.Path(expected.Pool)) != "checkpoint-0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640.json" {
		t.Errorf("unexpected checkpoint path %s", repo.Path(expected.Pool))
	}

	got, ok, err := repo.Load(ctx, expected.Pool)
	if err != nil || !ok {
		t.Fatalf("Load = (%v, %v)", ok, err)
	}
	if got.State != expected.State || got.Policy != expected.Policy || !got.UpdatedAt.Equal(expected.UpdatedAt) {
		t.Errorf("Load = %+v, want %+v", got, expected)
	}
	if !got.Matches(expected.Pool, domain.MinTick, domain.MaxTick, 10) {
		t.Errorf("checkpoint should match its own range")
	}
}

func TestCheckpointFileRepository_Missing(t *testing.T) {
	repo := NewCheckpointFileRepository(t.TempDir())

	_, ok, err := repo.Load(context.Background(), "0xabc")
	if err != nil || ok {
		t.Errorf("Load of missing checkpoint = (%v, %v), want (false, nil)", ok, err)
	}
	if err := repo.Delete(context.Background(), "0xabc"); err != nil {
		t.Errorf("Delete of missing checkpoint = %v, want nil", err)
	}
}

func TestCheckpointFileRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointFileRepository(t.TempDir())

	if err := repo.Save(ctx, ports.Checkpoint{Pool: "pool/a"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, "pool/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(repo.Path("pool/a")); !os.IsNotExist(err) {
		t.Errorf("checkpoint file still present: %v", err)
	}
}

func TestCheckpointFileRepository_Corrupt(t *testing.T) {
	dir := t.TempDir()
	repo := NewCheckpointFileRepository(dir)
	if err := os.WriteFile(repo.Path("x"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := repo.Load(context.Background(), "x"); err == nil {
		t.Errorf("Load of corrupt checkpoint should fail")
	}
}
