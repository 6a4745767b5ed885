package storage

import (
	"context"
	"errors"
	"testing"
)

type failingStore struct{ *Memory }

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthManager(t *testing.T) {
	hm := NewHealthManager()
	ctx := context.Background()

	if h := hm.Check(ctx, "memory", NewMemory()); h.Status != StatusHealthy {
		t.Errorf("expected healthy, got %+v", h)
	}
	if !hm.IsHealthy() {
		t.Error("expected overall healthy")
	}

	h := hm.Check(ctx, "sqlite", failingStore{NewMemory()})
	if h.Status != StatusUnhealthy || h.Error != "connection refused" {
		t.Errorf("unexpected health %+v", h)
	}
	if hm.IsHealthy() {
		t.Error("one unhealthy backend must make the whole unhealthy")
	}
	if all := hm.GetAllHealth(); len(all) != 2 {
		t.Errorf("expected 2 backends, got %v", all)
	}
	if _, ok := hm.GetHealth("redis"); ok {
		t.Error("unknown backend reported")
	}
}
