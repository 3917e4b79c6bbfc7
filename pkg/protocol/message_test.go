package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-linkcup/pkg/report"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "sample message",
			msgType: TypeSample,
			data:    SampleData{V: 12, P: 3},
		},
		{
			name:    "key message",
			msgType: TypeKey,
			data:    KeyData{},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeEvent,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr bool
	}{
		{"sample", `{"type":"sample","ts":1,"data":{"v":3}}`, TypeSample, false},
		{"no data", `{"type":"ping"}`, TypePing, false},
		{"missing type", `{"ts":1}`, "", true},
		{"not json", `hello`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedMessage) {
					t.Errorf("ParseMessage() error = %v, want ErrMalformedMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if msg.Type != tt.want {
				t.Errorf("Type = %v, want %v", msg.Type, tt.want)
			}
		})
	}
}

func TestSampleMessage(t *testing.T) {
	in := session.Sample{LinearValue: 37, Position: 5, Yaw: -3, Pitch: 12, Roll: 1}

	msg, err := NewSampleMessage(in)
	if err != nil {
		t.Fatalf("NewSampleMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	data, err := parsed.GetSampleData()
	if err != nil {
		t.Fatalf("GetSampleData() error = %v", err)
	}
	if got := data.Sample(); got != in {
		t.Errorf("Sample() = %+v, want %+v", got, in)
	}
}

func TestFrameMessage(t *testing.T) {
	msg, err := NewFrameMessage([]byte(`{"type":7,"value":{"v":5}}`))
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}
	if msg.Type != TypeFrame {
		t.Errorf("Type = %v, want frame", msg.Type)
	}

	frame, err := DecodeDeviceFrame(msg.Data)
	if err != nil {
		t.Fatalf("DecodeDeviceFrame() error = %v", err)
	}
	if frame.Sample.LinearValue != 5 {
		t.Errorf("LinearValue = %d, want 5", frame.Sample.LinearValue)
	}

	if _, err := NewFrameMessage([]byte("{bad")); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("NewFrameMessage(bad) error = %v, want ErrMalformedMessage", err)
	}
}

func TestEventMessage(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	snap := session.Snapshot{
		At:                       at,
		LinearValue:              20,
		Direction:                session.Forward,
		ThrustCount:              14,
		ExcitementLevel:          2,
		Moving:                   true,
		EffectiveInteractionTime: 61500 * time.Millisecond,
		SessionActive:            true,
	}

	tests := []struct {
		name          string
		ev            session.Event
		wantEvent     string
		wantStillness int64
		wantActivity  int64
		wantInside    *bool
	}{
		{
			name:      "realtime",
			ev:        session.RealtimeEvent{Snapshot: snap},
			wantEvent: "realtime",
		},
		{
			name:          "re-insertion",
			ev:            session.ReinsertionEvent{Snapshot: snap, Stillness: 12 * time.Second},
			wantEvent:     "re-insertion",
			wantStillness: 12000,
		},
		{
			name:          "withdrawal",
			ev:            session.WithdrawalEvent{Snapshot: snap, Activity: 11 * time.Second, Stillness: 1200 * time.Millisecond},
			wantEvent:     "withdrawal",
			wantStillness: 1200,
			wantActivity:  11000,
		},
		{
			name:       "climax",
			ev:         session.ClimaxEvent{Snapshot: snap, Inside: false},
			wantEvent:  "climax",
			wantInside: new(bool),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewEventMessage("cup-1", tt.ev, true)
			if err != nil {
				t.Fatalf("NewEventMessage() error = %v", err)
			}
			data, err := msg.GetEventData()
			if err != nil {
				t.Fatalf("GetEventData() error = %v", err)
			}

			if data.DeviceID != "cup-1" || !data.Audience {
				t.Errorf("DeviceID/Audience = %q/%v", data.DeviceID, data.Audience)
			}
			if data.Event != tt.wantEvent {
				t.Errorf("Event = %q, want %q", data.Event, tt.wantEvent)
			}
			if data.StillnessMs != tt.wantStillness || data.ActivityMs != tt.wantActivity {
				t.Errorf("stillness/activity = %d/%d, want %d/%d",
					data.StillnessMs, data.ActivityMs, tt.wantStillness, tt.wantActivity)
			}
			if (data.Inside == nil) != (tt.wantInside == nil) {
				t.Errorf("Inside = %v, want %v", data.Inside, tt.wantInside)
			} else if data.Inside != nil && *data.Inside != *tt.wantInside {
				t.Errorf("Inside = %v, want %v", *data.Inside, *tt.wantInside)
			}

			st := data.State
			if st.TS != at.UnixMilli() || st.V != 20 || st.Direction != 1 || st.ThrustCount != 14 {
				t.Errorf("State = %+v", st)
			}
			if st.InteractionMs != 61500 || !st.Active || st.Ended {
				t.Errorf("timer fields = %d/%v/%v", st.InteractionMs, st.Active, st.Ended)
			}
		})
	}
}

func TestEventMessage_ClimaxInsideSerialized(t *testing.T) {
	msg, err := NewEventMessage("cup-1", session.ClimaxEvent{Inside: false}, false)
	if err != nil {
		t.Fatalf("NewEventMessage() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v, ok := raw["inside"]; !ok || v != false {
		t.Errorf("inside = %v (present %v), want false", v, ok)
	}
}

func TestReportMessage(t *testing.T) {
	r := report.Report{
		Reason:          report.ReasonPeriodic,
		Position:        4,
		PositionLabel:   "doggy style",
		Intensity:       640,
		IntensityBand:   report.BandStrong,
		ExcitementLevel: 3,
		ExcitementLabel: "excited",
		Thrusts:         11,
		Session:         2 * time.Minute,
	}

	msg, err := NewReportMessage("cup-2", r)
	if err != nil {
		t.Fatalf("NewReportMessage() error = %v", err)
	}
	data, err := msg.GetReportData()
	if err != nil {
		t.Fatalf("GetReportData() error = %v", err)
	}

	want := ReportData{
		DeviceID:        "cup-2",
		Reason:          "periodic",
		Position:        4,
		PositionLabel:   "doggy style",
		Intensity:       640,
		IntensityBand:   "strong",
		ExcitementLevel: 3,
		ExcitementLabel: "excited",
		Thrusts:         11,
		SessionMs:       120000,
	}
	if *data != want {
		t.Errorf("ReportData = %+v, want %+v", *data, want)
	}
}

func TestPingPongMessage(t *testing.T) {
	ping, err := NewPingMessage("ping-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}
	pingData, err := ping.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}
	if pingData.ID != "ping-123" {
		t.Errorf("ID = %v, want ping-123", pingData.ID)
	}

	pingTS := time.Now().UnixMilli()
	pongTS := pingTS + 50
	pong, err := NewPongMessage("ping-123", pingTS, pongTS)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	pongData, err := pong.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.LatencyMs != 50 {
		t.Errorf("LatencyMs = %v, want 50", pongData.LatencyMs)
	}
}

func TestDeviceStateMessage(t *testing.T) {
	msg, err := NewDeviceStateMessage("cup-3", true)
	if err != nil {
		t.Fatalf("NewDeviceStateMessage() error = %v", err)
	}
	var data DeviceStateData
	if err := msg.ParseData(&data); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if data.DeviceID != "cup-3" || !data.Connected {
		t.Errorf("data = %+v", data)
	}
}
