// Package protocol defines the WebSocket message types exchanged between the
// device bridge, the gateway and dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Bridge → Gateway messages
	TypeSample MessageType = "sample" // Decoded telemetry sample
	TypeKey    MessageType = "key"    // Device key press
	TypeFrame  MessageType = "frame"  // Raw device JSON, decoded server-side

	// Gateway → Bridge / dashboard messages
	TypeEvent  MessageType = "event"  // Session engine event
	TypeReport MessageType = "report" // Periodic session report
	TypeState  MessageType = "state"  // Device connection state

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: nowMillis(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return &msg, nil
}

// =============================================================================
// Bridge → Gateway Message Types
// =============================================================================

// SampleData is one telemetry sample already decoded by the bridge.
type SampleData struct {
	V     int     `json:"v"`
	P     int     `json:"p"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// KeyData reports a key press on the device.
type KeyData struct {
	Button int `json:"button,omitempty"`
}

// =============================================================================
// Gateway → Client Message Types
// =============================================================================

// StateData is the wire form of a session snapshot.
type StateData struct {
	TS int64 `json:"ts"` // Unix milliseconds of the last update

	V     int     `json:"v"`
	P     int     `json:"p"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`

	Direction         int `json:"direction"`
	ThrustCount       int `json:"thrust_count"`
	ThrustCountWindow int `json:"thrust_count_window"`
	ThrustFrequency   int `json:"thrust_frequency"`
	InstantSpeed      int `json:"instant_speed"`
	Intensity         int `json:"intensity"`
	ExcitementAcc     int `json:"excitement_acc"`
	ExcitementLevel   int `json:"excitement_level"`

	Moving        bool  `json:"moving"`
	InteractionMs int64 `json:"interaction_ms"`
	Active        bool  `json:"active"`
	Ended         bool  `json:"ended"`
	Paused        bool  `json:"paused"`
}

// EventData carries one engine event for a device.
type EventData struct {
	DeviceID string    `json:"device_id"`
	Event    string    `json:"event"`
	State    StateData `json:"state"`
	Audience bool      `json:"audience"`

	StillnessMs int64 `json:"stillness_ms,omitempty"` // re-insertion, withdrawal
	ActivityMs  int64 `json:"activity_ms,omitempty"`  // withdrawal
	Inside      *bool `json:"inside,omitempty"`       // climax
}

// ReportData carries a periodic report for a device.
type ReportData struct {
	DeviceID        string `json:"device_id"`
	Reason          string `json:"reason"`
	Position        int    `json:"position"`
	PositionLabel   string `json:"position_label"`
	Intensity       int    `json:"intensity"`
	IntensityBand   string `json:"intensity_band"`
	ExcitementLevel int    `json:"excitement_level"`
	ExcitementLabel string `json:"excitement_label"`
	Thrusts         int    `json:"thrusts"`
	ThrustFrequency int    `json:"thrust_frequency"`
	SessionMs       int64  `json:"session_ms"`
}

// DeviceStateData announces a device connecting or disconnecting.
type DeviceStateData struct {
	DeviceID  string `json:"device_id"`
	Connected bool   `json:"connected"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
