package timescaledb

import (
	"testing"
	"time"

	"github.com/chrissnell/disturbancemonitor/internal/storage"
)

func TestResultRows(t *testing.T) {
	rows, err := resultRows("forest", "7", map[string]int{"2023-04-02": 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].Date.Equal(time.Date(2023, 4, 2, 0, 0, 0, 0, time.UTC)) || rows[0].Value != 3 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	back := fromResultRow(rows[0])
	want := storage.Result{Monitor: "forest", Feature: "7", Date: "2023-04-02", Count: 3}
	if back != want {
		t.Errorf("expected %+v, got %+v", want, back)
	}

	if _, err := resultRows("forest", "7", map[string]int{"04/02/2023": 1}); err == nil {
		t.Error("expected error for a malformed date key")
	}
}

func TestRunRowConversion(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	r := &storage.Run{ID: "x", Monitor: "forest", Feature: "1", From: now.AddDate(0, -1, 0), To: now,
		StartedAt: now, FinishedAt: now.Add(time.Minute), Pixels: 4, Fitted: 1, Disturbed: 2, Failed: 1}

	if got := fromRunRow(toRunRow(r)); got != *r {
		t.Errorf("expected %+v, got %+v", *r, got)
	}
}
