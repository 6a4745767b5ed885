// Package storage defines the persistence interface shared by the pixel
// state backends (SQLite, TimescaleDB, Redis) and an in-memory store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chrissnell/disturbancemonitor/internal/state"
)

// ErrNotFound is returned by LoadPixel when a pixel has no persisted record.
var ErrNotFound = errors.New("not found")

// Result is the number of pixels of a feature that became disturbed on Date.
type Result struct {
	Monitor string `json:"monitor"`
	Feature string `json:"feature"`
	Date    string `json:"date"`
	Count   int    `json:"count"`
}

// Run is the log record of one monitoring pass over a scene batch.
type Run struct {
	ID         string    `json:"id"`
	Monitor    string    `json:"monitor"`
	Feature    string    `json:"feature"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Pixels     int       `json:"pixels"`
	Fitted     int       `json:"fitted"`
	Disturbed  int       `json:"disturbed"`
	Failed     int       `json:"failed"`
}

// Store persists pixel state, disturbance results and the run log of every
// monitor. Implementations must be safe for concurrent use.
type Store interface {
	// LoadPixel returns ErrNotFound when the pixel was never saved, and
	// state.ErrCorruptState when the stored blob does not decode.
	LoadPixel(ctx context.Context, monitor, pixelID string) (*state.Pixel, error)
	SavePixel(ctx context.Context, monitor string, p *state.Pixel) error

	// SaveResults adds per-date counts to those already recorded for the
	// monitor and feature.
	SaveResults(ctx context.Context, monitor, feature string, counts map[string]int) error
	// LoadResults returns results ordered by feature and date. An empty
	// feature selects every feature of the monitor.
	LoadResults(ctx context.Context, monitor, feature string) ([]Result, error)
	DeleteResults(ctx context.Context, monitor, feature string) error

	RecordRun(ctx context.Context, r *Run) error

	// CommitRun saves the pixels, adds counts to the results of r.Feature and
	// records r as one unit. When it fails none of the pixels may be stored
	// as updated, so that a retried batch emits the same disturbances again.
	CommitRun(ctx context.Context, r *Run, pixels []*state.Pixel, counts map[string]int) error
	ListRuns(ctx context.Context, monitor string) ([]Run, error)

	// DeleteMonitor removes every pixel, result and run of a monitor.
	DeleteMonitor(ctx context.Context, monitor string) error

	Ping(ctx context.Context) error
	Close() error
}
