// Package session implements the motion and arousal state machine that turns
// accessory telemetry into semantic events.
//
// An Engine owns one session. Samples arrive through Update; the engine
// derives direction, thrust counts, speed, intensity, the excitement level and
// the engagement timer, and reports the result to a Sink as typed events.
// Three time sources mutate the state: samples, a thrust frequency ticker and
// an excitement ticker, plus a one-shot pause timer armed on disengagement.
// All of them are serialized by a single mutex.
package session

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-linkcup/pkg/clock"
)

// state is the mutable session aggregate. Guarded by Engine.mu.
type state struct {
	at time.Time

	v        int
	position int
	yaw      float64
	pitch    float64
	roll     float64

	lastV     int
	direction Direction

	// Thrust latch: latch only moves on a non-zero direction.
	latch          Direction
	lastLatch      Direction
	hasLatchChange bool
	latchChangeAt  time.Time
	latchChangeV   int

	thrustTotal   int
	thrustWindow  int
	perSecond     int
	frequency     int
	speed         int
	intensity     int
	excitementAcc int
	level         int

	lastUpdate time.Time
	hasUpdate  bool

	// Stillness/withdrawal sub-machine
	wasStill  bool
	stillness time.Duration
	activity  time.Duration
	streak    time.Duration
	sustained bool

	engaged bool
	timer   TimerState
}

// Engine is the session state machine. Create one per connected session
// with New and release it with Dispose.
type Engine struct {
	cfg    Config
	clock  clock.Clock
	sink   Sink
	logger *slog.Logger

	// dispatchMu serializes event delivery; mu guards st. The sink runs with
	// dispatchMu held and mu released.
	dispatchMu sync.Mutex
	mu         sync.Mutex
	st         state
	audience   bool
	disposed   bool

	frequencyTimer  clock.Timer
	excitementTimer clock.Timer
	pauseTimer      clock.Timer
	pauseGen        uint64
}

// New creates an engine and starts its periodic ticks.
// A nil clock uses wall time; a nil logger discards output.
func New(cfg Config, clk clock.Clock, sink Sink, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	e := &Engine{
		cfg:    cfg.withDefaults(),
		clock:  clk,
		sink:   sink,
		logger: logger,
	}
	e.resetLocked(TimerState{})

	e.frequencyTimer = clk.Tick(e.cfg.FrequencyInterval, e.tickFrequency)
	e.excitementTimer = clk.Tick(e.cfg.ExcitementInterval, e.tickExcitement)
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Update ingests a sample at the clock's current time.
func (e *Engine) Update(s Sample) Snapshot {
	return e.UpdateAt(s, e.clock.Now())
}

// UpdateAt ingests a sample observed at now and emits zero or more semantic
// events followed by exactly one realtime event.
func (e *Engine) UpdateAt(s Sample, now time.Time) Snapshot {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	e.mu.Lock()
	if e.disposed {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap
	}
	events := e.updateLocked(s, now)
	snap := e.snapshotLocked()
	events = append(events, RealtimeEvent{Snapshot: snap})
	audience := e.audience
	e.mu.Unlock()

	e.emit(events, audience)
	return snap
}

// SignalTerminalEvent ends the active session at the clock's current time.
func (e *Engine) SignalTerminalEvent() bool {
	return e.SignalTerminalEventAt(e.clock.Now())
}

// SignalTerminalEventAt ends the active session and emits a climax event.
// It reports false, emitting nothing, when no unended session is active.
func (e *Engine) SignalTerminalEventAt(now time.Time) bool {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	e.mu.Lock()
	t := &e.st.timer
	if e.disposed || !t.Started || t.Ended {
		e.mu.Unlock()
		return false
	}
	t.Ended = true
	e.cancelPauseLocked()
	e.st.at = now
	ev := ClimaxEvent{Snapshot: e.snapshotLocked(), Inside: e.st.v > 0}
	audience := e.audience
	e.mu.Unlock()

	e.logger.Info("session ended", "interaction", ev.EffectiveInteractionTime, "inside", ev.Inside)
	e.emit([]Event{ev}, audience)
	return true
}

// ConsumeIntensity zeroes the intensity accumulator and returns its value.
func (e *Engine) ConsumeIntensity() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.st.intensity
	e.st.intensity = 0
	return v
}

// ConsumeThrustWindow zeroes the windowed thrust counter and returns its value.
func (e *Engine) ConsumeThrustWindow() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.st.thrustWindow
	e.st.thrustWindow = 0
	return v
}

// SetAudience sets the capability flag passed to every sink call.
func (e *Engine) SetAudience(present bool) {
	e.mu.Lock()
	e.audience = present
	e.mu.Unlock()
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// TimerState returns the engagement timer so it can outlive this engine.
func (e *Engine) TimerState() TimerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.timer
}

// Reset clears all derived state. With preserveEngagementTimer the
// engagement timer (started, ended, paused, interaction time) is kept.
func (e *Engine) Reset(preserveEngagementTimer bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var saved TimerState
	if preserveEngagementTimer {
		saved = e.st.timer
	}
	e.resetLocked(saved)
}

// ResetFrom clears all derived state and restores a previously saved
// engagement timer.
func (e *Engine) ResetFrom(ts TimerState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetLocked(ts)
	if ts.Started && !ts.Ended {
		e.logger.Info("engagement timer restored", "interaction", ts.Interaction, "paused", ts.Paused)
	}
}

// Dispose stops every timer. Later calls on the engine are no-ops.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}
	e.disposed = true
	e.frequencyTimer.Stop()
	e.excitementTimer.Stop()
	e.cancelPauseLocked()
}

func (e *Engine) resetLocked(saved TimerState) {
	e.cancelPauseLocked()
	if saved.Interaction < 0 {
		saved.Interaction = 0
	}
	e.st = state{
		level:    MinLevel,
		wasStill: true,
		timer:    saved,
	}
}

func (e *Engine) emit(events []Event, audience bool) {
	if e.sink == nil {
		return
	}
	for _, ev := range events {
		e.sink(ev, audience)
	}
}

func (e *Engine) updateLocked(s Sample, now time.Time) []Event {
	st := &e.st

	var elapsed time.Duration
	if st.hasUpdate {
		elapsed = max(now.Sub(st.lastUpdate), 0)
	}
	st.lastUpdate = now
	st.hasUpdate = true
	st.at = now

	st.v = s.LinearValue
	st.position = s.Position
	st.yaw = s.Yaw
	st.pitch = s.Pitch
	st.roll = s.Roll

	st.direction = directionOf(st.lastV, st.v)

	e.trackEngagement(elapsed)

	// At most one semantic event per sample; motion transitions win over bang.
	var events []Event
	if ev := e.trackMotion(elapsed); ev != nil {
		events = append(events, ev)
	}
	if ev := e.trackThrust(now); ev != nil && len(events) == 0 {
		events = append(events, ev)
	}

	st.lastV = st.v
	return events
}

// trackEngagement advances the effective interaction timer.
func (e *Engine) trackEngagement(elapsed time.Duration) {
	st := &e.st
	t := &st.timer

	engaged := st.v != 0
	resumed := engaged && !st.engaged
	st.engaged = engaged

	if engaged && !t.Started {
		t.Started = true
		e.logger.Info("session started")
	}

	if resumed && t.Ended {
		t.Ended = false
		t.Interaction = 0
		t.Paused = false
		e.cancelPauseLocked()
		e.logger.Info("session re-armed")
	}

	if !t.Started || t.Ended {
		return
	}

	if engaged {
		t.Paused = false
		e.cancelPauseLocked()
	} else if !t.Paused && e.pauseTimer == nil {
		e.armPauseLocked()
	}

	if !t.Paused {
		t.Interaction += elapsed
	}
}

// trackMotion runs the stillness/withdrawal sub-machine on v > 0.
func (e *Engine) trackMotion(elapsed time.Duration) Event {
	st := &e.st

	if st.v > 0 {
		var stillness time.Duration
		reinserted := false
		if st.wasStill {
			stillness = st.stillness
			reinserted = stillness > e.cfg.ReinsertionStillness
			st.activity = 0
			st.sustained = false
		}
		st.wasStill = false
		st.activity += elapsed
		st.stillness = 0

		if reinserted {
			return ReinsertionEvent{Snapshot: e.snapshotLocked(), Stillness: stillness}
		}
		return nil
	}

	if !st.wasStill {
		st.streak = st.activity
		st.sustained = st.activity > e.cfg.SustainedActivity
		st.stillness = 0
	}
	st.wasStill = true
	st.stillness += elapsed
	st.activity = 0

	if st.sustained && st.stillness > e.cfg.WithdrawalStillness {
		st.sustained = false
		return WithdrawalEvent{Snapshot: e.snapshotLocked(), Activity: st.streak, Stillness: st.stillness}
	}
	return nil
}

// trackThrust counts latched direction reversals and derives speed.
func (e *Engine) trackThrust(now time.Time) Event {
	st := &e.st

	if st.direction != Still {
		st.latch = st.direction
	}
	prev := st.lastLatch
	st.lastLatch = st.latch

	if st.latch == Still || st.latch == prev {
		return nil
	}

	st.thrustTotal++
	st.thrustWindow++
	st.perSecond++

	if st.hasLatchChange {
		if dt := now.Sub(st.latchChangeAt); dt > 0 {
			ms := float64(dt) / float64(time.Millisecond)
			speed := saturate(math.Ceil((float64(st.v) - float64(st.latchChangeV)) * 1000 / ms))
			st.speed = speed
			abs := speed
			if abs < 0 {
				abs = -abs
			}
			st.intensity = addSaturated(st.intensity, abs)
			st.excitementAcc = addSaturated(st.excitementAcc, abs)
		}
	}
	st.hasLatchChange = true
	st.latchChangeAt = now
	st.latchChangeV = st.v

	if prev == Backward && st.latch == Forward {
		return BangEvent{Snapshot: e.snapshotLocked()}
	}
	return nil
}

// saturate converts f to an int clamped to [-MaxInt, MaxInt] so its
// absolute value is always representable.
func saturate(f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= -math.MaxInt:
		return -math.MaxInt
	}
	return int(f)
}

// addSaturated adds a non-negative n to acc without wrapping.
func addSaturated(acc, n int) int {
	if acc > math.MaxInt-n {
		return math.MaxInt
	}
	return acc + n
}

func (e *Engine) armPauseLocked() {
	e.pauseGen++
	gen := e.pauseGen
	e.pauseTimer = e.clock.AfterFunc(e.cfg.PauseDelay, func() { e.firePause(gen) })
}

// cancelPauseLocked stops any pending pause. Bumping the generation also
// voids a callback that already fired and is waiting on mu.
func (e *Engine) cancelPauseLocked() {
	e.pauseGen++
	if e.pauseTimer != nil {
		e.pauseTimer.Stop()
		e.pauseTimer = nil
	}
}

func (e *Engine) firePause(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed || gen != e.pauseGen {
		return
	}
	e.pauseTimer = nil
	t := &e.st.timer
	if t.Started && !t.Ended {
		t.Paused = true
		e.logger.Debug("engagement timer paused", "interaction", t.Interaction)
	}
}

func (e *Engine) tickFrequency() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}
	e.st.frequency = e.st.perSecond * e.cfg.FrequencyScale
	e.st.perSecond = 0
}

func (e *Engine) tickExcitement() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}
	prev := e.st.level
	e.st.level = e.cfg.Ladder.Step(prev, e.st.excitementAcc)
	if e.st.level != prev {
		e.logger.Debug("excitement level changed", "from", prev, "to", e.st.level, "acc", e.st.excitementAcc)
	}
	e.st.excitementAcc = 0
}

func (e *Engine) snapshotLocked() Snapshot {
	st := &e.st
	return Snapshot{
		At:                       st.at,
		LinearValue:              st.v,
		Position:                 st.position,
		Yaw:                      st.yaw,
		Pitch:                    st.pitch,
		Roll:                     st.roll,
		Direction:                st.direction,
		ThrustCount:              st.thrustTotal,
		ThrustCountWindow:        st.thrustWindow,
		ThrustFrequency:          st.frequency,
		InstantSpeed:             st.speed,
		Intensity:                st.intensity,
		ExcitementAccumulator:    st.excitementAcc,
		ExcitementLevel:          st.level,
		Moving:                   !st.wasStill,
		EffectiveInteractionTime: st.timer.Interaction,
		SessionActive:            st.timer.Started,
		SessionEnded:             st.timer.Ended,
		Paused:                   st.timer.Paused,
	}
}
