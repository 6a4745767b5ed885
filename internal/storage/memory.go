package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/chrissnell/disturbancemonitor/internal/state"
)

// Memory is a Store that keeps everything in process memory. Pixel records
// are held encoded so that they round-trip through the same codec as the
// persistent backends.
type Memory struct {
	mu      sync.RWMutex
	pixels  map[string]map[string][]byte
	results map[string]map[string]map[string]int // monitor -> feature -> date
	runs    map[string][]Run
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pixels:  make(map[string]map[string][]byte),
		results: make(map[string]map[string]map[string]int),
		runs:    make(map[string][]Run),
	}
}

func (m *Memory) LoadPixel(_ context.Context, monitor, pixelID string) (*state.Pixel, error) {
	m.mu.RLock()
	blob, ok := m.pixels[monitor][pixelID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return state.Decode(blob)
}

func (m *Memory) SavePixel(_ context.Context, monitor string, p *state.Pixel) error {
	blob, err := state.Encode(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pixels[monitor] == nil {
		m.pixels[monitor] = make(map[string][]byte)
	}
	m.pixels[monitor][p.ID] = blob
	return nil
}

// PutRaw stores an arbitrary blob for a pixel, bypassing the codec.
func (m *Memory) PutRaw(monitor, pixelID string, blob []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pixels[monitor] == nil {
		m.pixels[monitor] = make(map[string][]byte)
	}
	m.pixels[monitor][pixelID] = blob
}

func (m *Memory) SaveResults(_ context.Context, monitor, feature string, counts map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addResults(monitor, feature, counts)
	return nil
}

// addResults must be called with m.mu held.
func (m *Memory) addResults(monitor, feature string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	if m.results[monitor] == nil {
		m.results[monitor] = make(map[string]map[string]int)
	}
	byDate := m.results[monitor][feature]
	if byDate == nil {
		byDate = make(map[string]int)
		m.results[monitor][feature] = byDate
	}
	for date, n := range counts {
		byDate[date] += n
	}
}

func (m *Memory) CommitRun(_ context.Context, r *Run, pixels []*state.Pixel, counts map[string]int) error {
	blobs := make(map[string][]byte, len(pixels))
	for _, p := range pixels {
		blob, err := state.Encode(p)
		if err != nil {
			return err
		}
		blobs[p.ID] = blob
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(blobs) > 0 && m.pixels[r.Monitor] == nil {
		m.pixels[r.Monitor] = make(map[string][]byte)
	}
	for id, blob := range blobs {
		m.pixels[r.Monitor][id] = blob
	}
	m.addResults(r.Monitor, r.Feature, counts)
	m.runs[r.Monitor] = append(m.runs[r.Monitor], *r)
	return nil
}

func (m *Memory) LoadResults(_ context.Context, monitor, feature string) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Result
	for f, byDate := range m.results[monitor] {
		if feature != "" && f != feature {
			continue
		}
		for date, n := range byDate {
			out = append(out, Result{Monitor: monitor, Feature: f, Date: date, Count: n})
		}
	}
	SortResults(out)
	return out, nil
}

func (m *Memory) DeleteResults(_ context.Context, monitor, feature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if feature == "" {
		delete(m.results, monitor)
	} else if m.results[monitor] != nil {
		delete(m.results[monitor], feature)
	}
	return nil
}

func (m *Memory) RecordRun(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.Monitor] = append(m.runs[r.Monitor], *r)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, monitor string) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Run(nil), m.runs[monitor]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) DeleteMonitor(_ context.Context, monitor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pixels, monitor)
	delete(m.results, monitor)
	delete(m.runs, monitor)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// SortResults orders results by monitor, feature and date.
func SortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Monitor != rs[j].Monitor {
			return rs[i].Monitor < rs[j].Monitor
		}
		if rs[i].Feature != rs[j].Feature {
			return rs[i].Feature < rs[j].Feature
		}
		return rs[i].Date < rs[j].Date
	})
}
