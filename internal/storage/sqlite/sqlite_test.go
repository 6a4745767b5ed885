package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/chrissnell/disturbancemonitor/internal/state"
	"github.com/chrissnell/disturbancemonitor/internal/storage/storagetest"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state.db"), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, newTestStorage(t))
}

func TestReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := New(path, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SavePixel(ctx, "forest", storagetest.Pixel("a")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(path, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.LoadPixel(ctx, "forest", "a"); err != nil {
		t.Errorf("pixel lost across reopen: %v", err)
	}
}

func TestCorruptBlob(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.db.Exec(`INSERT INTO pixel_states (monitor_name, pixel_id, state, updated_at) VALUES (?, ?, ?, ?)`,
		"forest", "px", []byte("garbage"), "2023-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadPixel(ctx, "forest", "px"); !errors.Is(err, state.ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
}
