package session

import "time"

// Sample is one decoded telemetry frame.
// Position is an opaque classification key (nominally 1..10).
type Sample struct {
	LinearValue int
	Position    int
	Yaw         float64
	Pitch       float64
	Roll        float64
}

// Direction is the sign of the change in linear value between samples.
type Direction int

const (
	Backward Direction = -1
	Still    Direction = 0
	Forward  Direction = 1
)

// directionOf compares rather than subtracts so extreme values cannot overflow.
func directionOf(prev, cur int) Direction {
	switch {
	case cur > prev:
		return Forward
	case cur < prev:
		return Backward
	}
	return Still
}

// TimerState is the engagement timer, the part of a session that survives a
// transport reconnect.
type TimerState struct {
	Started     bool          `json:"started"`
	Ended       bool          `json:"ended"`
	Paused      bool          `json:"paused"`
	Interaction time.Duration `json:"interaction"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	At time.Time

	// Raw sample fields
	LinearValue int
	Position    int
	Yaw         float64
	Pitch       float64
	Roll        float64

	Direction Direction

	// Thrust accounting
	ThrustCount       int
	ThrustCountWindow int
	ThrustFrequency   int // thrusts per minute
	InstantSpeed      int

	// Intensity is the |speed| sum since the last ConsumeIntensity.
	Intensity int

	// ExcitementAccumulator is the |speed| sum inside the current
	// excitement window.
	ExcitementAccumulator int
	ExcitementLevel       int

	Moving bool

	// Engagement timer
	EffectiveInteractionTime time.Duration
	SessionActive            bool
	SessionEnded             bool
	Paused                   bool
}

// State returns the snapshot itself; events embedding a Snapshot promote it.
func (s Snapshot) State() Snapshot {
	return s
}

func (Snapshot) sealed() {}
