// Package storagetest holds the behaviour every storage.Store backend must
// share, run by each backend's own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chrissnell/disturbancemonitor/internal/state"
	"github.com/chrissnell/disturbancemonitor/internal/storage"
)

// Pixel returns a valid pixel record with a stable monitor.
func Pixel(id string) *state.Pixel {
	model := &state.Model{
		Coefficients: []float64{0.3, 0.01, -0.02, 0, 0},
		RMSE:         0.02,
		Harmonics:    2,
		FittedAt:     "2022-01-01/2023-01-01",
		Observations: 40,
	}
	last := time.Date(2023, 3, 1, 10, 30, 0, 0, time.UTC)
	mon := state.NewMonitor(model, 5, 5)
	mon.Streak = 2
	mon.LastObserved = &last
	return &state.Pixel{ID: id, Model: model, Monitor: mon, UpdatedAt: last}
}

// Run exercises s against the Store contract. s must be empty.
func Run(t *testing.T, s storage.Store) {
	ctx := context.Background()

	t.Run("pixels", func(t *testing.T) {
		if _, err := s.LoadPixel(ctx, "forest", "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		p := Pixel("12_40")
		if err := s.SavePixel(ctx, "forest", p); err != nil {
			t.Fatalf("SavePixel: %v", err)
		}
		got, err := s.LoadPixel(ctx, "forest", "12_40")
		if err != nil {
			t.Fatalf("LoadPixel: %v", err)
		}
		if got.Monitor.Streak != 2 || !got.Monitor.LastObserved.Equal(*p.Monitor.LastObserved) ||
			got.Model.Coefficients[2] != -0.02 {
			t.Errorf("round trip mismatch: %+v", got.Monitor)
		}

		disturbed := time.Date(2023, 4, 2, 0, 0, 0, 0, time.UTC)
		got.Monitor.Streak = 5
		got.Monitor.DisturbedDate = &disturbed
		if err := s.SavePixel(ctx, "forest", got); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		again, err := s.LoadPixel(ctx, "forest", "12_40")
		if err != nil {
			t.Fatal(err)
		}
		if !again.Monitor.Disturbed() || !again.Monitor.DisturbedDate.Equal(disturbed) {
			t.Errorf("overwrite not persisted: %+v", again.Monitor)
		}

		if _, err := s.LoadPixel(ctx, "other", "12_40"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("pixels must be scoped by monitor, got %v", err)
		}

		bad := Pixel("bad")
		bad.Monitor.Bound = 0
		if err := s.SavePixel(ctx, "forest", bad); !errors.Is(err, state.ErrCorruptState) {
			t.Errorf("expected invalid record to be refused, got %v", err)
		}
	})

	t.Run("results", func(t *testing.T) {
		if err := s.SaveResults(ctx, "forest", "1", map[string]int{"2023-04-02": 3, "2023-04-12": 1}); err != nil {
			t.Fatalf("SaveResults: %v", err)
		}
		// A later batch of the same feature adds to a recorded date.
		if err := s.SaveResults(ctx, "forest", "1", map[string]int{"2023-04-02": 2, "2023-05-01": 2}); err != nil {
			t.Fatalf("SaveResults: %v", err)
		}
		if err := s.SaveResults(ctx, "forest", "2", map[string]int{"2023-04-02": 7}); err != nil {
			t.Fatalf("SaveResults: %v", err)
		}

		all, err := s.LoadResults(ctx, "forest", "")
		if err != nil {
			t.Fatal(err)
		}
		want := []storage.Result{
			{Monitor: "forest", Feature: "1", Date: "2023-04-02", Count: 5},
			{Monitor: "forest", Feature: "1", Date: "2023-04-12", Count: 1},
			{Monitor: "forest", Feature: "1", Date: "2023-05-01", Count: 2},
			{Monitor: "forest", Feature: "2", Date: "2023-04-02", Count: 7},
		}
		if len(all) != len(want) {
			t.Fatalf("expected %d results, got %v", len(want), all)
		}
		for i := range want {
			if all[i] != want[i] {
				t.Errorf("result %d: expected %+v, got %+v", i, want[i], all[i])
			}
		}

		one, _ := s.LoadResults(ctx, "forest", "2")
		if len(one) != 1 || one[0].Count != 7 {
			t.Errorf("feature filter: %v", one)
		}

		if err := s.DeleteResults(ctx, "forest", "2"); err != nil {
			t.Fatal(err)
		}
		if rest, _ := s.LoadResults(ctx, "forest", ""); len(rest) != 3 {
			t.Errorf("expected 3 results after deleting feature 2, got %v", rest)
		}
	})

	t.Run("runs", func(t *testing.T) {
		base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"run-a", "run-b"} {
			r := &storage.Run{
				ID: id, Monitor: "forest", Feature: "1",
				From: base.AddDate(0, -1, 0), To: base,
				StartedAt: base.Add(time.Duration(i) * time.Hour), FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
				Pixels: 10, Fitted: 10 - i, Disturbed: i, Failed: 0,
			}
			if err := s.RecordRun(ctx, r); err != nil {
				t.Fatalf("RecordRun: %v", err)
			}
		}
		runs, err := s.ListRuns(ctx, "forest")
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 2 || runs[0].ID != "run-b" || runs[0].Disturbed != 1 || !runs[0].To.Equal(base) {
			t.Errorf("unexpected runs %+v", runs)
		}
	})

	t.Run("commit", func(t *testing.T) {
		at := time.Date(2023, 7, 1, 12, 0, 0, 0, time.UTC)
		run := &storage.Run{ID: "run-c", Monitor: "forest", Feature: "3", From: at.AddDate(0, -1, 0), To: at,
			StartedAt: at, FinishedAt: at.Add(time.Minute), Pixels: 2, Disturbed: 2}

		bad := Pixel("3_bad")
		bad.Monitor.Bound = 0
		failed := &storage.Run{ID: "run-failed", Monitor: "forest", Feature: "3", StartedAt: at.Add(-time.Hour), FinishedAt: at}
		if err := s.CommitRun(ctx, failed, []*state.Pixel{Pixel("3_1"), bad}, map[string]int{"2023-06-20": 1}); !errors.Is(err, state.ErrCorruptState) {
			t.Fatalf("expected invalid record to fail the commit, got %v", err)
		}
		if _, err := s.LoadPixel(ctx, "forest", "3_1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("failed commit stored a pixel: %v", err)
		}
		if rs, _ := s.LoadResults(ctx, "forest", "3"); len(rs) != 0 {
			t.Errorf("failed commit stored results: %v", rs)
		}

		for i, id := range []string{"run-c", "run-d"} {
			r := *run
			r.ID = id
			r.StartedAt = at.Add(time.Duration(i) * time.Second)
			if err := s.CommitRun(ctx, &r, []*state.Pixel{Pixel("3_1"), Pixel("3_2")}, map[string]int{"2023-06-20": 2}); err != nil {
				t.Fatalf("CommitRun: %v", err)
			}
		}

		for _, id := range []string{"3_1", "3_2"} {
			if _, err := s.LoadPixel(ctx, "forest", id); err != nil {
				t.Errorf("pixel %s not committed: %v", id, err)
			}
		}
		rs, err := s.LoadResults(ctx, "forest", "3")
		if err != nil {
			t.Fatal(err)
		}
		if len(rs) != 1 || rs[0].Date != "2023-06-20" || rs[0].Count != 4 {
			t.Errorf("expected counts of both commits to add up, got %v", rs)
		}
		runs, _ := s.ListRuns(ctx, "forest")
		if len(runs) != 4 {
			t.Errorf("expected 4 runs, got %+v", runs)
		}
		for _, r := range runs {
			if r.ID == "run-failed" {
				t.Error("failed commit recorded its run")
			}
		}
	})

	t.Run("delete monitor", func(t *testing.T) {
		if err := s.DeleteMonitor(ctx, "forest"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.LoadPixel(ctx, "forest", "12_40"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("pixel survived monitor deletion: %v", err)
		}
		if rs, _ := s.LoadResults(ctx, "forest", ""); len(rs) != 0 {
			t.Errorf("results survived monitor deletion: %v", rs)
		}
		if runs, _ := s.ListRuns(ctx, "forest"); len(runs) != 0 {
			t.Errorf("runs survived monitor deletion: %v", runs)
		}
	})

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
