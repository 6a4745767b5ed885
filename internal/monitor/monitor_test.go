package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/disturbancemonitor/internal/sensor"
	"github.com/chrissnell/disturbancemonitor/internal/state"
)

var day0 = time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)

func ndviScene(days int, red, nir float64) Scene {
	return Scene{
		Time:   day0.AddDate(0, 0, days),
		Sensor: sensor.IDS2L2A,
		Bands: sensor.Sample{
			sensor.BandS2Red:    red,
			sensor.BandS2NIR:    nir,
			sensor.BandS2SCL:    4,
			sensor.BandDataMask: 1,
		},
	}
}

// NDVI 0.1 against a predicted 0.3
func anomalous(days int) Scene { return ndviScene(days, 0.09, 0.11) }

// NDVI 0.3, on the model
func normal(days int) Scene { return ndviScene(days, 0.07, 0.13) }

func cloudy(days int) Scene {
	s := ndviScene(days, 0.5, 0.5)
	s.Bands[sensor.BandS2SCL] = 9
	return s
}

func flatState(rmse float64) *state.Monitor {
	return &state.Monitor{
		Coefficients: []float64{0.3, 0, 0, 0, 0},
		RMSE:         rmse,
		Sensitivity:  5,
		Bound:        5,
	}
}

func mustProcess(t *testing.T, m *Monitor, s *state.Monitor, scenes ...Scene) *Result {
	t.Helper()
	res, err := m.Process("px", s, scenes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func TestStreakBuildsToDisturbance(t *testing.T) {
	m := New(sensor.S2L2A{}, 1)

	res := mustProcess(t, m, flatState(0.02), anomalous(0), anomalous(10), anomalous(20), anomalous(30))
	if res.State.Streak != 4 || res.State.Disturbed() || res.Event != nil {
		t.Fatalf("after 4 anomalies: streak=%d disturbed=%v event=%v", res.State.Streak, res.State.Disturbed(), res.Event)
	}

	fifth := anomalous(40)
	res = mustProcess(t, m, res.State, fifth)
	if !res.State.Disturbed() {
		t.Fatal("expected disturbance after the 5th anomaly")
	}
	if !res.State.DisturbedDate.Equal(fifth.Time) || res.State.Streak != 5 {
		t.Errorf("expected disturbance on %s with streak 5, got %s / %d",
			fifth.Time.Format(time.DateOnly), res.State.DisturbedDate.Format(time.DateOnly), res.State.Streak)
	}
	if res.Event == nil || res.Event.PixelID != "px" || res.Event.Streak != 5 || !res.Event.Date.Equal(fifth.Time) {
		t.Errorf("unexpected event %+v", res.Event)
	}
}

func TestInvalidSceneDoesNotTouchStreak(t *testing.T) {
	m := New(sensor.S2L2A{}, 1)

	res := mustProcess(t, m, flatState(0.02), anomalous(0), anomalous(10), cloudy(15), anomalous(20))
	if res.State.Streak != 3 {
		t.Errorf("expected streak 3 across a cloudy scene, got %d", res.State.Streak)
	}
	if res.Invalid != 1 || res.Valid != 3 {
		t.Errorf("expected 3 valid / 1 invalid, got %d / %d", res.Valid, res.Invalid)
	}

	only := mustProcess(t, m, res.State, cloudy(25), cloudy(26))
	if only.State.Streak != 3 || !only.State.LastObserved.Equal(*res.State.LastObserved) {
		t.Errorf("all-invalid batch changed state: %+v", only.State)
	}
}

func TestNormalSceneResetsStreak(t *testing.T) {
	m := New(sensor.S2L2A{}, 1)

	start := flatState(0.02)
	start.Streak = 4
	res := mustProcess(t, m, start, normal(0))
	if res.State.Streak != 0 {
		t.Errorf("expected streak reset to 0, got %d", res.State.Streak)
	}
}

func TestEmptyBatch(t *testing.T) {
	m := New(sensor.S2L2A{}, 1)
	start := flatState(0.02)
	start.Streak = 2

	res := mustProcess(t, m, start)
	if res.Event != nil || res.State.Streak != 2 || res.State.Disturbed() || res.State.LastObserved != nil {
		t.Errorf("empty batch changed state: %+v", res.State)
	}
	if res.State == start {
		t.Error("Process returned the caller's state value")
	}
}

func TestDisturbedIsTerminal(t *testing.T) {
	m := New(sensor.S2L2A{}, 1)

	res := mustProcess(t, m, flatState(0.02),
		anomalous(0), anomalous(1), anomalous(2), anomalous(3), anomalous(4))
	if res.Event == nil {
		t.Fatal("expected a disturbance")
	}
	date, streak := *res.State.DisturbedDate, res.State.Streak

	again := mustProcess(t, m, res.State, normal(10), anomalous(11), anomalous(12))
	if again.Event != nil {
		t.Error("a disturbed pixel emitted a second event")
	}
	if !again.State.DisturbedDate.Equal(date) || again.State.Streak != streak {
		t.Errorf("terminal state changed: %s/%d -> %s/%d",
			date, streak, again.State.DisturbedDate, again.State.Streak)
	}
	if again.Unevaluated != 3 {
		t.Errorf("expected 3 unevaluated scenes, got %d", again.Unevaluated)
	}
}

func TestFirstExceedanceStopsBatch(t *testing.T) {
	m := New(sensor.S2L2A{}, 1)
	s := flatState(0.02)
	s.Bound = 2

	res := mustProcess(t, m, s, anomalous(0), anomalous(1), normal(2), anomalous(3))
	if res.Event == nil || !res.Event.Date.Equal(anomalous(1).Time) {
		t.Fatalf("expected disturbance on the 2nd scene, got %+v", res.Event)
	}
	if res.Unevaluated != 2 || res.State.Streak != 2 {
		t.Errorf("expected 2 unevaluated scenes and streak 2, got %d / %d", res.Unevaluated, res.State.Streak)
	}
	if !res.State.LastObserved.Equal(anomalous(1).Time) {
		t.Errorf("last observation should be the triggering scene, got %s", res.State.LastObserved)
	}
}

func TestScenesAreOrderedAndReplaysIgnored(t *testing.T) {
	m := New(sensor.S2L2A{}, 1)

	// Out of order: the normal scene is chronologically last and resets the streak.
	res := mustProcess(t, m, flatState(0.02), normal(30), anomalous(10), anomalous(20))
	if res.State.Streak != 0 {
		t.Errorf("expected streak 0 after chronological processing, got %d", res.State.Streak)
	}

	res = mustProcess(t, m, flatState(0.02), anomalous(10), anomalous(20))
	replay := mustProcess(t, m, res.State, anomalous(10), anomalous(20))
	if replay.State.Streak != 2 || replay.Replayed != 2 {
		t.Errorf("replayed scenes were scored: streak=%d replayed=%d", replay.State.Streak, replay.Replayed)
	}
}

func TestRMSEFloor(t *testing.T) {
	// Calibration RMSE of zero: the floor of 1 gives a threshold of 5, so a
	// residual of 0.2 is not anomalous.
	res := mustProcess(t, New(sensor.S2L2A{}, 1), flatState(0), anomalous(0))
	if res.State.Streak != 0 {
		t.Errorf("expected floor to suppress anomaly, got streak %d", res.State.Streak)
	}

	// A small configured floor makes the same residual anomalous.
	res = mustProcess(t, New(sensor.S2L2A{}, 0.01), flatState(0), anomalous(0))
	if res.State.Streak != 1 {
		t.Errorf("expected anomaly with floor 0.01, got streak %d", res.State.Streak)
	}

	if got := New(sensor.S2L2A{}, 0).Threshold(flatState(0)); got != 5*DefaultRMSEFloor {
		t.Errorf("expected default floor threshold %g, got %g", 5*DefaultRMSEFloor, got)
	}
}

func TestCorruptStateIsSurfaced(t *testing.T) {
	s := flatState(0.02)
	s.Streak = 7 // beyond the bound without a disturbance date

	_, err := New(sensor.S2L2A{}, 1).Process("px", s, []Scene{anomalous(0)})
	if !errors.Is(err, state.ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
}

func TestWrongSensorIsInvalid(t *testing.T) {
	sc := anomalous(0)
	sc.Sensor = sensor.IDARPS
	res := mustProcess(t, New(sensor.S2L2A{}, 1), flatState(0.02), sc)
	if res.Invalid != 1 || res.State.Streak != 0 {
		t.Errorf("scene from another sensor was scored: %+v", res)
	}
}

func TestTally(t *testing.T) {
	shared := NewTally()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := NewTally()
			for i := 0; i < 100; i++ {
				local.AddEvent(&Event{Date: day0.AddDate(0, 0, i%2)})
			}
			local.AddEvent(nil)
			shared.Merge(local)
		}()
	}
	wg.Wait()

	snap := shared.Snapshot()
	if snap["2023-01-05"] != 400 || snap["2023-01-06"] != 400 {
		t.Errorf("unexpected counts %v", snap)
	}
	if shared.Total() != 800 {
		t.Errorf("expected total 800, got %d", shared.Total())
	}
}

func TestSameTimestampObservedOnce(t *testing.T) {
	m := New(sensor.S2L2A{}, 1)

	res := mustProcess(t, m, flatState(0.02), anomalous(0), anomalous(0), anomalous(10))
	if res.State.Streak != 2 || res.Valid != 2 || res.Replayed != 1 {
		t.Errorf("duplicate timestamp: streak=%d valid=%d replayed=%d", res.State.Streak, res.Valid, res.Replayed)
	}

	// A masked scene leaves its timestamp to a usable one.
	res = mustProcess(t, m, flatState(0.02), cloudy(0), anomalous(0))
	if res.State.Streak != 1 || res.Valid != 1 || res.Invalid != 1 || res.Replayed != 0 {
		t.Errorf("masked then usable: streak=%d valid=%d invalid=%d replayed=%d",
			res.State.Streak, res.Valid, res.Invalid, res.Replayed)
	}
}

func TestZeroTally(t *testing.T) {
	var tally Tally
	tally.Add(day0)
	var merged Tally
	merged.Merge(&tally)
	if merged.Total() != 1 || merged.Snapshot()["2023-01-05"] != 1 {
		t.Errorf("unexpected zero-value tally counts %v", merged.Snapshot())
	}
}
