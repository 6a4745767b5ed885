package redis

import (
	"testing"
	"time"

	"github.com/chrissnell/disturbancemonitor/internal/storage"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{pixelsKey("forest"), "dm:forest:pixels"},
		{featuresKey("forest"), "dm:forest:features"},
		{runsKey("forest"), "dm:forest:runs"},
		{resultsKey("forest", "12"), "dm:forest:results:12"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected key %q, got %q", tt.want, tt.got)
		}
	}
}

func TestRunEncoding(t *testing.T) {
	now := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	run := &storage.Run{ID: "abc", Monitor: "forest", Feature: "1", From: now.AddDate(0, -1, 0), To: now,
		StartedAt: now, FinishedAt: now.Add(time.Minute), Pixels: 3, Fitted: 3, Disturbed: 1}

	b, err := encodeRun(run)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeRun(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != run.ID || got.Disturbed != 1 || !got.StartedAt.Equal(now) || !got.From.Equal(run.From) {
		t.Errorf("unexpected decoded run %+v", got)
	}

	if _, err := decodeRun([]byte{0xc1}); err == nil {
		t.Error("expected error decoding garbage")
	}
}
