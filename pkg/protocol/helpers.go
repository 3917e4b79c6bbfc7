package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/teslashibe/go-linkcup/pkg/report"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewSampleMessage creates a decoded sample message
func NewSampleMessage(s session.Sample) (*Message, error) {
	return NewMessage(TypeSample, SampleData{
		V:     s.LinearValue,
		P:     s.Position,
		Yaw:   s.Yaw,
		Pitch: s.Pitch,
		Roll:  s.Roll,
	})
}

// NewKeyMessage creates a key press message
func NewKeyMessage(button int) (*Message, error) {
	return NewMessage(TypeKey, KeyData{Button: button})
}

// NewFrameMessage wraps a raw device notification. The payload must be JSON.
func NewFrameMessage(raw []byte) (*Message, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: frame payload is not JSON", ErrMalformedMessage)
	}
	return &Message{
		Type:      TypeFrame,
		Timestamp: nowMillis(),
		Data:      json.RawMessage(raw),
	}, nil
}

// NewEventMessage creates an event message for one engine emission
func NewEventMessage(deviceID string, ev session.Event, audience bool) (*Message, error) {
	return NewMessage(TypeEvent, EventFromSession(deviceID, ev, audience))
}

// NewReportMessage creates a report message
func NewReportMessage(deviceID string, r report.Report) (*Message, error) {
	return NewMessage(TypeReport, ReportFromSession(deviceID, r))
}

// NewDeviceStateMessage creates a device connection state message
func NewDeviceStateMessage(deviceID string, connected bool) (*Message, error) {
	return NewMessage(TypeState, DeviceStateData{DeviceID: deviceID, Connected: connected})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: nowMillis(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Conversions
// =============================================================================

// StateFromSnapshot converts an engine snapshot to its wire form
func StateFromSnapshot(s session.Snapshot) StateData {
	var ts int64
	if !s.At.IsZero() {
		ts = s.At.UnixMilli()
	}
	return StateData{
		TS:                ts,
		V:                 s.LinearValue,
		P:                 s.Position,
		Yaw:               s.Yaw,
		Pitch:             s.Pitch,
		Roll:              s.Roll,
		Direction:         int(s.Direction),
		ThrustCount:       s.ThrustCount,
		ThrustCountWindow: s.ThrustCountWindow,
		ThrustFrequency:   s.ThrustFrequency,
		InstantSpeed:      s.InstantSpeed,
		Intensity:         s.Intensity,
		ExcitementAcc:     s.ExcitementAccumulator,
		ExcitementLevel:   s.ExcitementLevel,
		Moving:            s.Moving,
		InteractionMs:     s.EffectiveInteractionTime.Milliseconds(),
		Active:            s.SessionActive,
		Ended:             s.SessionEnded,
		Paused:            s.Paused,
	}
}

// EventFromSession converts an engine event to its wire form
func EventFromSession(deviceID string, ev session.Event, audience bool) EventData {
	data := EventData{
		DeviceID: deviceID,
		Event:    string(ev.Type()),
		State:    StateFromSnapshot(ev.State()),
		Audience: audience,
	}

	switch e := ev.(type) {
	case session.ReinsertionEvent:
		data.StillnessMs = e.Stillness.Milliseconds()
	case session.WithdrawalEvent:
		data.StillnessMs = e.Stillness.Milliseconds()
		data.ActivityMs = e.Activity.Milliseconds()
	case session.ClimaxEvent:
		inside := e.Inside
		data.Inside = &inside
	}
	return data
}

// ReportFromSession converts a report to its wire form
func ReportFromSession(deviceID string, r report.Report) ReportData {
	return ReportData{
		DeviceID:        deviceID,
		Reason:          string(r.Reason),
		Position:        r.Position,
		PositionLabel:   r.PositionLabel,
		Intensity:       r.Intensity,
		IntensityBand:   string(r.IntensityBand),
		ExcitementLevel: r.ExcitementLevel,
		ExcitementLabel: r.ExcitementLabel,
		Thrusts:         r.Thrusts,
		ThrustFrequency: r.ThrustFrequency,
		SessionMs:       r.Session.Milliseconds(),
	}
}

// Sample converts wire sample data to an engine sample
func (s SampleData) Sample() session.Sample {
	return session.Sample{
		LinearValue: s.V,
		Position:    s.P,
		Yaw:         s.Yaw,
		Pitch:       s.Pitch,
		Roll:        s.Roll,
	}
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetSampleData extracts sample data from a message
func (m *Message) GetSampleData() (*SampleData, error) {
	var data SampleData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetKeyData extracts key data from a message
func (m *Message) GetKeyData() (*KeyData, error) {
	var data KeyData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetEventData extracts event data from a message
func (m *Message) GetEventData() (*EventData, error) {
	var data EventData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetReportData extracts report data from a message
func (m *Message) GetReportData() (*ReportData, error) {
	var data ReportData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
