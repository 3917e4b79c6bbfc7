package report

import (
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-linkcup/pkg/clock"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// mockEngine implements Consumer.
type mockEngine struct {
	mu        sync.Mutex
	intensity int
	window    int
	consumed  int
}

func (m *mockEngine) ConsumeIntensity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.intensity
	m.intensity = 0
	m.consumed++
	return v
}

func (m *mockEngine) ConsumeThrustWindow() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.window
	m.window = 0
	return v
}

func (m *mockEngine) add(intensity, thrusts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intensity += intensity
	m.window += thrusts
}

type harness struct {
	clk      *clock.Fake
	engine   *mockEngine
	reporter *Reporter

	mu      sync.Mutex
	batches [][]Report
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clk: clock.NewFake(epoch), engine: &mockEngine{}}
	h.reporter = New(DefaultConfig(), h.clk, h.engine, func(r []Report) {
		h.mu.Lock()
		h.batches = append(h.batches, r)
		h.mu.Unlock()
	}, nil)
	t.Cleanup(h.reporter.Stop)
	return h
}

func (h *harness) delivered() [][]Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]Report(nil), h.batches...)
}

func (h *harness) advance(d time.Duration) {
	h.clk.Advance(d)
}

func motion(dir session.Direction) session.Event {
	return session.RealtimeEvent{Snapshot: session.Snapshot{
		Direction:                dir,
		Position:                 4,
		ExcitementLevel:          3,
		ThrustFrequency:          42,
		EffectiveInteractionTime: 95 * time.Second,
	}}
}

func TestReporter_CountdownDeliversReport(t *testing.T) {
	h := newHarness(t)
	h.engine.add(750, 9)

	h.reporter.Handle(motion(session.Forward), true)
	h.advance(9 * time.Second)
	if n := len(h.delivered()); n != 0 {
		t.Fatalf("delivered %d batches before countdown", n)
	}

	h.advance(time.Second)
	batches := h.delivered()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("batches = %v, want one report", batches)
	}

	r := batches[0][0]
	if r.Reason != ReasonPeriodic {
		t.Errorf("Reason = %s, want periodic", r.Reason)
	}
	if r.Intensity != 750 || r.IntensityBand != BandStrong {
		t.Errorf("intensity = %d/%s, want 750/strong", r.Intensity, r.IntensityBand)
	}
	if r.Thrusts != 9 {
		t.Errorf("Thrusts = %d, want 9", r.Thrusts)
	}
	if r.PositionLabel != "doggy style" || r.ExcitementLabel != "excited" {
		t.Errorf("labels = %q/%q", r.PositionLabel, r.ExcitementLabel)
	}
	if r.Session != 95*time.Second {
		t.Errorf("Session = %v, want 95s", r.Session)
	}
	if h.engine.intensity != 0 || h.engine.window != 0 {
		t.Error("engine accumulators not drained")
	}
}

func TestReporter_CooldownBlocksRearm(t *testing.T) {
	h := newHarness(t)
	h.engine.add(100, 1)

	h.reporter.Handle(motion(session.Forward), true)
	h.advance(10 * time.Second)

	h.engine.add(300, 3)
	h.reporter.Handle(motion(session.Backward), true)
	h.advance(14 * time.Second)
	if n := len(h.delivered()); n != 1 {
		t.Fatalf("delivered %d batches during cooldown, want 1", n)
	}

	h.advance(time.Second) // cooldown over
	h.reporter.Handle(motion(session.Forward), true)
	h.advance(10 * time.Second)

	batches := h.delivered()
	if len(batches) != 2 {
		t.Fatalf("delivered %d batches, want 2", len(batches))
	}
	if got := batches[1][0].Intensity; got != 300 {
		t.Errorf("second report intensity = %d, want 300", got)
	}
}

func TestReporter_NoIntensityNoReport(t *testing.T) {
	h := newHarness(t)

	h.reporter.Handle(motion(session.Forward), true)
	h.advance(10 * time.Second)
	if n := len(h.delivered()); n != 0 {
		t.Fatalf("delivered %d batches with zero intensity", n)
	}

	// No cooldown started, so motion re-arms at once.
	h.engine.add(50, 1)
	h.reporter.Handle(motion(session.Forward), true)
	h.advance(10 * time.Second)
	if n := len(h.delivered()); n != 1 {
		t.Errorf("delivered %d batches, want 1", n)
	}
}

func TestReporter_StillDoesNotArm(t *testing.T) {
	h := newHarness(t)
	h.engine.add(500, 4)

	h.reporter.Handle(motion(session.Still), true)
	h.advance(30 * time.Second)

	if n := len(h.delivered()); n != 0 {
		t.Errorf("delivered %d batches without motion", n)
	}
}

func TestReporter_NoAudience(t *testing.T) {
	h := newHarness(t)
	h.engine.add(500, 4)

	h.reporter.Handle(motion(session.Forward), false)
	h.reporter.Handle(session.ReinsertionEvent{Stillness: 12 * time.Second}, false)
	h.advance(30 * time.Second)

	if n := len(h.delivered()); n != 0 {
		t.Errorf("delivered %d batches without an audience", n)
	}
	if h.engine.intensity != 500 {
		t.Errorf("intensity drained without an audience: %d", h.engine.intensity)
	}
}

func TestReporter_ReinsertionFlushesPendingCountdown(t *testing.T) {
	h := newHarness(t)
	h.engine.add(1700, 12)

	h.reporter.Handle(motion(session.Forward), true)
	h.advance(3 * time.Second)
	h.reporter.Handle(session.ReinsertionEvent{Snapshot: session.Snapshot{Position: 1}}, true)

	batches := h.delivered()
	if len(batches) != 1 {
		t.Fatalf("delivered %d batches, want 1", len(batches))
	}
	b := batches[0]
	if len(b) != 2 || b[0].Reason != ReasonPeriodic || b[1].Reason != ReasonReinsertion {
		t.Fatalf("batch = %+v, want periodic then re-insertion", b)
	}
	if b[0].IntensityBand != BandBeast {
		t.Errorf("band = %s, want beast", b[0].IntensityBand)
	}
	if b[1].PositionLabel != "missionary" {
		t.Errorf("PositionLabel = %q, want missionary", b[1].PositionLabel)
	}

	// The cancelled countdown must not fire.
	h.advance(10 * time.Second)
	if n := len(h.delivered()); n != 1 {
		t.Errorf("delivered %d batches, want 1", n)
	}
}

func TestReporter_ReinsertionWithoutCountdown(t *testing.T) {
	h := newHarness(t)

	h.reporter.Handle(session.ReinsertionEvent{}, true)

	batches := h.delivered()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0].Reason != ReasonReinsertion {
		t.Fatalf("batches = %+v, want a single re-insertion report", batches)
	}

	// Cooling down: a second re-insertion waits for the next flush.
	h.reporter.Handle(session.ReinsertionEvent{}, true)
	if n := len(h.delivered()); n != 1 {
		t.Errorf("delivered %d batches during cooldown, want 1", n)
	}
}

func TestReporter_ReinsertionDuringCooldownQueued(t *testing.T) {
	h := newHarness(t)

	h.reporter.Handle(session.ReinsertionEvent{}, true)
	h.reporter.Handle(session.ReinsertionEvent{Snapshot: session.Snapshot{Position: 1}}, true)
	h.advance(15 * time.Second) // cooldown over

	h.engine.add(300, 4)
	h.reporter.Handle(motion(session.Forward), true)
	h.advance(10 * time.Second)

	batches := h.delivered()
	if len(batches) != 2 {
		t.Fatalf("delivered %d batches, want 2", len(batches))
	}
	b := batches[1]
	if len(b) != 2 || b[0].Reason != ReasonPeriodic || b[1].Reason != ReasonReinsertion {
		t.Fatalf("batch = %+v, want periodic then queued re-insertion", b)
	}
	if b[1].PositionLabel != "missionary" {
		t.Errorf("PositionLabel = %q, want the position at re-insertion", b[1].PositionLabel)
	}
	if b[0].PositionLabel != "doggy style" {
		t.Errorf("PositionLabel = %q, want the latest position", b[0].PositionLabel)
	}

	// Delivered once only.
	h.advance(15 * time.Second)
	h.reporter.Handle(motion(session.Forward), true)
	h.advance(10 * time.Second)
	if n := len(h.delivered()); n != 2 {
		t.Errorf("delivered %d batches, want 2", n)
	}
}

func TestReporter_ClimaxDropsQueuedReinsertion(t *testing.T) {
	h := newHarness(t)

	h.reporter.Handle(session.ReinsertionEvent{}, true)
	h.reporter.Handle(session.ReinsertionEvent{}, true)
	h.reporter.Handle(session.ClimaxEvent{}, true)

	h.reporter.Handle(motion(session.Forward), true)
	h.advance(10 * time.Second)
	if n := len(h.delivered()); n != 1 {
		t.Errorf("delivered %d batches, want 1", n)
	}
}

func TestReporter_ClimaxResets(t *testing.T) {
	h := newHarness(t)
	h.engine.add(100, 1)

	h.reporter.Handle(motion(session.Forward), true)
	h.reporter.Handle(session.ClimaxEvent{}, true)
	h.advance(10 * time.Second)

	if n := len(h.delivered()); n != 0 {
		t.Fatalf("countdown survived climax: %d batches", n)
	}
	if h.engine.intensity != 0 {
		t.Errorf("climax did not consume intensity")
	}

	// Cooldown is cleared too.
	h.reporter.Handle(session.ReinsertionEvent{}, true)
	h.reporter.Handle(session.ClimaxEvent{}, true)
	h.reporter.Handle(session.ReinsertionEvent{}, true)
	if n := len(h.delivered()); n != 2 {
		t.Errorf("delivered %d batches, want 2", n)
	}
}

func TestReporter_StopCancelsTimers(t *testing.T) {
	h := newHarness(t)
	h.engine.add(100, 1)

	h.reporter.Handle(motion(session.Forward), true)
	h.reporter.Stop()
	if h.clk.Pending() != 0 {
		t.Errorf("Pending = %d after Stop, want 0", h.clk.Pending())
	}

	h.reporter.Handle(motion(session.Forward), true)
	h.advance(time.Minute)
	if n := len(h.delivered()); n != 0 {
		t.Errorf("stopped reporter delivered %d batches", n)
	}
}

func TestLabels(t *testing.T) {
	bands := []struct {
		intensity int
		want      Band
	}{
		{0, BandLight},
		{199, BandLight},
		{200, BandSteady},
		{599, BandSteady},
		{600, BandStrong},
		{1599, BandStrong},
		{1600, BandBeast},
	}
	for _, tt := range bands {
		if got := BandOf(tt.intensity); got != tt.want {
			t.Errorf("BandOf(%d) = %s, want %s", tt.intensity, got, tt.want)
		}
	}

	if got := PositionLabel(10); got != "standing back" {
		t.Errorf("PositionLabel(10) = %q", got)
	}
	if got := PositionLabel(0); got != "unknown" {
		t.Errorf("PositionLabel(0) = %q", got)
	}
	if got := ExcitementLabel(5); got != "ecstatic" {
		t.Errorf("ExcitementLabel(5) = %q", got)
	}
	if got := ExcitementLabel(6); got != "unknown" {
		t.Errorf("ExcitementLabel(6) = %q", got)
	}
}
