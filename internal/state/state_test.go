package state

import (
	"errors"
	"math"
	"testing"
	"time"
)

func testModel() *Model {
	return &Model{
		Coefficients: []float64{0.3, 0.01, -0.02, 0, 0.005},
		RMSE:         0.02,
		Harmonics:    2,
		FittedAt:     "2022-01-01/2023-01-01",
		Observations: 24,
	}
}

func TestEncodeDecode(t *testing.T) {
	disturbed := time.Date(2023, 6, 14, 0, 0, 0, 0, time.UTC)
	mon := NewMonitor(testModel(), 5, 5)
	mon.Streak = 5
	mon.DisturbedDate = &disturbed
	mon.LastObserved = &disturbed

	in := &Pixel{ID: "px-1", Model: testModel(), Monitor: mon, UpdatedAt: disturbed}
	blob, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != "px-1" || out.Monitor.Streak != 5 || !out.Monitor.DisturbedDate.Equal(disturbed) {
		t.Errorf("decoded record differs: %+v", out.Monitor)
	}
	if len(out.Model.Coefficients) != 5 || out.Model.Coefficients[0] != 0.3 {
		t.Errorf("decoded model differs: %+v", out.Model)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	good, err := Encode(&Pixel{ID: "px", Model: testModel()})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	truncated := good[:len(good)/2]
	wrongVersion := append([]byte{9}, good[1:]...)
	garbage := []byte{codecVersion, 0xff, 0xfe, 0x01}

	for name, blob := range map[string][]byte{
		"empty":         nil,
		"truncated":     truncated,
		"wrong version": wrongVersion,
		"garbage":       garbage,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(blob); !errors.Is(err, ErrCorruptState) {
				t.Errorf("expected ErrCorruptState, got %v", err)
			}
		})
	}
}

func TestMonitorValidate(t *testing.T) {
	day := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(m *Monitor)
		ok     bool
	}{
		{"fresh monitor", func(m *Monitor) {}, true},
		{"streak below bound", func(m *Monitor) { m.Streak = 4 }, true},
		{"terminal", func(m *Monitor) { m.Streak = 5; m.DisturbedDate = &day }, true},
		{"negative streak", func(m *Monitor) { m.Streak = -1 }, false},
		{"streak at bound without date", func(m *Monitor) { m.Streak = 5 }, false},
		{"disturbed without streak", func(m *Monitor) { m.DisturbedDate = &day }, false},
		{"even coefficient count", func(m *Monitor) { m.Coefficients = m.Coefficients[:4] }, false},
		{"NaN coefficient", func(m *Monitor) { m.Coefficients[1] = math.NaN() }, false},
		{"negative rmse", func(m *Monitor) { m.RMSE = -0.1 }, false},
		{"zero sensitivity", func(m *Monitor) { m.Sensitivity = 0 }, false},
		{"zero bound", func(m *Monitor) { m.Bound = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(testModel(), 5, 5)
			tt.mutate(m)
			err := m.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrCorruptState) {
				t.Errorf("expected ErrCorruptState, got %v", err)
			}
		})
	}
}

func TestPixelValidateMismatch(t *testing.T) {
	mon := NewMonitor(testModel(), 5, 5)
	mon.Coefficients = []float64{1, 0, 0}
	p := &Pixel{ID: "px", Model: testModel(), Monitor: mon}
	if err := p.Validate(); !errors.Is(err, ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
	if _, err := Encode(p); !errors.Is(err, ErrCorruptState) {
		t.Errorf("encode should refuse invalid records, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	day := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMonitor(testModel(), 5, 5)
	m.LastObserved = &day

	c := m.Clone()
	c.Coefficients[0] = 99
	*c.LastObserved = day.AddDate(1, 0, 0)

	if m.Coefficients[0] == 99 || !m.LastObserved.Equal(day) {
		t.Error("clone shares memory with the original")
	}
}
