// Package report turns session engine events into periodic activity reports.
//
// Motion arms a countdown; when it fires the reporter drains the engine's
// intensity and thrust window into a Report and then cools down before it can
// arm again. A re-insertion flushes immediately. A climax clears everything.
package report

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-linkcup/pkg/clock"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

// Reason says what produced a report.
type Reason string

const (
	ReasonPeriodic    Reason = "periodic"
	ReasonReinsertion Reason = "re-insertion"
)

// Report summarizes activity since the previous report.
type Report struct {
	At              time.Time
	Reason          Reason
	Position        int
	PositionLabel   string
	Intensity       int
	IntensityBand   Band
	ExcitementLevel int
	ExcitementLabel string
	Thrusts         int
	ThrustFrequency int
	Session         time.Duration
}

// Consumer is the part of the engine the reporter drains.
// *session.Engine implements it.
type Consumer interface {
	ConsumeIntensity() int
	ConsumeThrustWindow() int
}

// Config holds reporter timing.
type Config struct {
	Countdown time.Duration `toml:"countdown"`
	Cooldown  time.Duration `toml:"cooldown"`
}

// DefaultConfig returns the stock report cadence.
func DefaultConfig() Config {
	return Config{
		Countdown: 10 * time.Second,
		Cooldown:  15 * time.Second,
	}
}

// Reporter schedules reports for one session.
type Reporter struct {
	cfg     Config
	clock   clock.Clock
	src     Consumer
	deliver func([]Report)
	logger  *slog.Logger

	mu           sync.Mutex
	last         session.Snapshot
	audience     bool
	counting     bool
	cooling      bool
	countdown    clock.Timer
	cooldown     clock.Timer
	countdownGen uint64
	cooldownGen  uint64
	stopped      bool

	// A re-insertion seen while cooling down waits for the next flush.
	pendingReinsertion bool
	reinsertionAt      session.Snapshot
}

// New creates a reporter draining src and handing reports to deliver.
// deliver is called without internal locks held.
func New(cfg Config, clk clock.Clock, src Consumer, deliver func([]Report), logger *slog.Logger) *Reporter {
	d := DefaultConfig()
	if cfg.Countdown <= 0 {
		cfg.Countdown = d.Countdown
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = d.Cooldown
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reporter{
		cfg:     cfg,
		clock:   clk,
		src:     src,
		deliver: deliver,
		logger:  logger,
	}
}

// Handle observes one engine event. It is meant to be called from the
// engine's sink.
func (r *Reporter) Handle(ev session.Event, audience bool) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.last = ev.State()
	r.audience = audience

	switch ev.(type) {
	case session.ClimaxEvent:
		r.resetLocked()
		r.mu.Unlock()
		r.src.ConsumeIntensity()
		return
	case session.ReinsertionEvent:
		if !audience {
			r.mu.Unlock()
			return
		}
		r.reinsertionAt = r.last
		if r.cooling {
			r.pendingReinsertion = true
			r.mu.Unlock()
			r.logger.Debug("re-insertion queued until cooldown ends")
			return
		}
		standard := r.counting
		r.cancelCountdownLocked()
		out := r.flushLocked(standard, true)
		r.mu.Unlock()
		r.emit(out)
		return
	}

	if audience && r.last.Direction != session.Still && !r.counting && !r.cooling {
		r.counting = true
		r.countdownGen++
		gen := r.countdownGen
		r.countdown = r.clock.AfterFunc(r.cfg.Countdown, func() { r.fireCountdown(gen) })
		r.logger.Debug("report countdown armed", "in", r.cfg.Countdown)
	}
	r.mu.Unlock()
}

// Reset cancels pending timers and clears the countdown and cooldown.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// Stop cancels pending timers. Later calls are no-ops.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.stopped = true
}

func (r *Reporter) resetLocked() {
	r.cancelCountdownLocked()
	r.pendingReinsertion = false
	r.cooldownGen++
	if r.cooldown != nil {
		r.cooldown.Stop()
		r.cooldown = nil
	}
	r.cooling = false
}

func (r *Reporter) cancelCountdownLocked() {
	r.countdownGen++
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	r.counting = false
}

func (r *Reporter) fireCountdown(gen uint64) {
	r.mu.Lock()
	if r.stopped || gen != r.countdownGen {
		r.mu.Unlock()
		return
	}
	r.countdown = nil
	var out []Report
	if r.audience {
		out = r.flushLocked(true, false)
	} else {
		r.counting = false
	}
	r.mu.Unlock()
	r.emit(out)
}

func (r *Reporter) fireCooldown(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || gen != r.cooldownGen {
		return
	}
	r.cooldown = nil
	r.cooling = false
}

// flushLocked drains the engine and builds the queued reports. A standard
// report is only queued when intensity accumulated; a re-insertion held back
// by the cooldown goes out with it. Sending anything starts the cooldown.
func (r *Reporter) flushLocked(standard, reinsertion bool) []Report {
	r.counting = false

	intensity := r.src.ConsumeIntensity()
	var out []Report
	if standard && intensity > 0 {
		out = append(out, r.build(r.last, ReasonPeriodic, intensity))
	}
	if reinsertion || r.pendingReinsertion {
		out = append(out, r.build(r.reinsertionAt, ReasonReinsertion, intensity))
		r.pendingReinsertion = false
	}
	if len(out) == 0 {
		return nil
	}

	thrusts := r.src.ConsumeThrustWindow()
	for i := range out {
		out[i].Thrusts = thrusts
	}

	r.cooling = true
	r.cooldownGen++
	gen := r.cooldownGen
	r.cooldown = r.clock.AfterFunc(r.cfg.Cooldown, func() { r.fireCooldown(gen) })
	return out
}

func (r *Reporter) build(s session.Snapshot, reason Reason, intensity int) Report {
	return Report{
		At:              r.clock.Now(),
		Reason:          reason,
		Position:        s.Position,
		PositionLabel:   PositionLabel(s.Position),
		Intensity:       intensity,
		IntensityBand:   BandOf(intensity),
		ExcitementLevel: s.ExcitementLevel,
		ExcitementLabel: ExcitementLabel(s.ExcitementLevel),
		ThrustFrequency: s.ThrustFrequency,
		Session:         s.EffectiveInteractionTime,
	}
}

func (r *Reporter) emit(out []Report) {
	if len(out) == 0 || r.deliver == nil {
		return
	}
	r.logger.Info("report ready", "reason", out[len(out)-1].Reason, "count", len(out))
	r.deliver(out)
}
