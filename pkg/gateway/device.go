package gateway

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-linkcup/pkg/breath"
	"github.com/teslashibe/go-linkcup/pkg/protocol"
	"github.com/teslashibe/go-linkcup/pkg/recording"
	"github.com/teslashibe/go-linkcup/pkg/report"
	"github.com/teslashibe/go-linkcup/pkg/session"
	"github.com/teslashibe/go-linkcup/pkg/store"
)

// Device is one connected accessory bridge and the session it drives.
type Device struct {
	ID        string
	Connected time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex

	engine   *session.Engine
	reporter *report.Reporter
	recorder *recording.Writer

	mu         sync.Mutex
	lastSeen   time.Time
	lastKey    time.Time
	position   int // manual override, 0 follows the device
	last       session.Snapshot
	sess       store.Session
	thrustBase int
}

// Send writes a message to the bridge.
func (d *Device) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.conn == nil {
		return ErrDeviceNotConnected
	}
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

// Snapshot returns the device's current session state.
func (d *Device) Snapshot() session.Snapshot {
	return d.engine.Snapshot()
}

func (d *Device) touch(now time.Time) {
	d.mu.Lock()
	d.lastSeen = now
	d.mu.Unlock()
}

// acceptKey applies the key cooldown. A press inside the cooldown of the
// last accepted press is dropped.
func (d *Device) acceptKey(now time.Time, cooldown time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.lastKey.IsZero() && now.Sub(d.lastKey) < cooldown {
		return false
	}
	d.lastKey = now
	return true
}

func (d *Device) applyPosition(s session.Sample) session.Sample {
	d.mu.Lock()
	if d.position > 0 {
		s.Position = d.position
	}
	d.mu.Unlock()
	return s
}

// observe folds an event into the running session summary. It returns the
// number of thrusts counted since the previous event and, on climax, the
// finished summary.
func (d *Device) observe(ev session.Event, now time.Time) (thrusts int, done *store.Session) {
	snap := ev.State()

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.last.ThrustCount
	thrusts = max(snap.ThrustCount-prev, 0)
	d.last = snap

	if snap.SessionActive && !snap.SessionEnded && d.sess.StartedAt.IsZero() {
		d.sess.StartedAt = now
		d.thrustBase = prev
	}
	d.sess.PeakLevel = max(d.sess.PeakLevel, snap.ExcitementLevel)

	if ev.Type() == session.EventClimax {
		s := d.summaryLocked(snap, now)
		s.Climaxed = true
		d.sess = store.Session{DeviceID: d.ID}
		d.thrustBase = snap.ThrustCount
		return thrusts, &s
	}
	return thrusts, nil
}

// finish returns the open session summary, if one was started.
func (d *Device) finish(snap session.Snapshot, now time.Time) (store.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sess.StartedAt.IsZero() {
		return store.Session{}, false
	}
	s := d.summaryLocked(snap, now)
	d.sess = store.Session{DeviceID: d.ID}
	return s, true
}

func (d *Device) summaryLocked(snap session.Snapshot, now time.Time) store.Session {
	s := d.sess
	s.DeviceID = d.ID
	s.EndedAt = now
	s.Interaction = snap.EffectiveInteractionTime
	s.Thrusts = max(snap.ThrustCount-d.thrustBase, 0)
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	return s
}

// DeviceInfo describes a connected device for the API.
type DeviceInfo struct {
	ID        string             `json:"id"`
	Connected time.Time          `json:"connected"`
	LastSeen  time.Time          `json:"last_seen"`
	Position  int                `json:"position_override"`
	State     protocol.StateData `json:"state"`
	Breath    BreathInfo         `json:"breath"`
}

// BreathInfo is the breathing cue for the device's excitement level.
type BreathInfo struct {
	PeriodMs int64   `json:"period_ms"`
	Value    float64 `json:"value"`
}

func (d *Device) info(now time.Time) DeviceInfo {
	snap := d.engine.Snapshot()
	period := breath.Period(snap.ExcitementLevel)

	d.mu.Lock()
	defer d.mu.Unlock()
	return DeviceInfo{
		ID:        d.ID,
		Connected: d.Connected,
		LastSeen:  d.lastSeen,
		Position:  d.position,
		State:     protocol.StateFromSnapshot(snap),
		Breath: BreathInfo{
			PeriodMs: period.Milliseconds(),
			Value:    breath.Value(now.Sub(d.Connected), period),
		},
	}
}
