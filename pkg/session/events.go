package session

import "time"

// EventType tags an Event.
type EventType string

const (
	EventRealtime    EventType = "realtime"
	EventReinsertion EventType = "re-insertion"
	EventWithdrawal  EventType = "withdrawal"
	EventBang        EventType = "bang"
	EventClimax      EventType = "climax"
)

// Event is one emission from the engine. The set of implementations is closed:
// RealtimeEvent, ReinsertionEvent, WithdrawalEvent, BangEvent and ClimaxEvent.
type Event interface {
	Type() EventType
	State() Snapshot
	sealed()
}

// Sink receives events synchronously from inside Update and
// SignalTerminalEvent. audience reports whether a listener (a selected
// character) is present. A sink must not block and must not call Update or
// SignalTerminalEvent; the consume hooks are safe.
type Sink func(ev Event, audience bool)

// RealtimeEvent is emitted once per Update, after all other processing.
type RealtimeEvent struct {
	Snapshot
}

func (RealtimeEvent) Type() EventType { return EventRealtime }

// ReinsertionEvent marks motion resuming after a long stillness.
type ReinsertionEvent struct {
	Snapshot
	Stillness time.Duration
}

func (ReinsertionEvent) Type() EventType { return EventReinsertion }

// WithdrawalEvent marks stillness confirmed after a sustained motion streak.
type WithdrawalEvent struct {
	Snapshot
	Activity  time.Duration
	Stillness time.Duration
}

func (WithdrawalEvent) Type() EventType { return EventWithdrawal }

// BangEvent marks the latched direction flipping from backward to forward.
type BangEvent struct {
	Snapshot
}

func (BangEvent) Type() EventType { return EventBang }

// ClimaxEvent is the terminal event of a session.
// Inside reports whether the accessory was engaged (positive linear value)
// when the signal arrived.
type ClimaxEvent struct {
	Snapshot
	Inside bool
}

func (ClimaxEvent) Type() EventType { return EventClimax }
