package indexer

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	cp := NewFileCheckpoint(filepath.Join(t.TempDir(), "state", "checkpoint.json"))

	if _, ok, err := cp.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty checkpoint, ok=%v err=%v", ok, err)
	}
	if err := cp.Save(ctx, 1234); err != nil {
		t.Fatalf("save: %v", err)
	}
	last, ok, err := cp.Load(ctx)
	if err != nil || !ok || last != 1234 {
		t.Fatalf("load mismatch: %d %v %v", last, ok, err)
	}
}

func TestFileCheckpointDirectory(t *testing.T) {
	cp := NewFileCheckpoint(t.TempDir())
	if _, _, err := cp.Load(context.Background()); err == nil {
		t.Fatalf("expected error for directory path")
	}
}
