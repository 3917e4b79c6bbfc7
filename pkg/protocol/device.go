package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/teslashibe/go-linkcup/pkg/session"
)

// Device notification types.
const (
	DeviceTypeUUID      = 1
	DeviceTypeMAC       = 4
	DeviceTypeFirmware  = 5
	DeviceTypeRealtime  = 7
	DeviceTypeKey       = 11
	DeviceTypeRealtime2 = 14
)

// FrameKind classifies a decoded device frame.
type FrameKind int

const (
	FrameRealtime FrameKind = iota + 1
	FrameKey
)

// DeviceFrame is a decoded device notification.
// Sample is only set for FrameRealtime.
type DeviceFrame struct {
	Kind   FrameKind
	Type   int
	Sample session.Sample
}

type deviceValue struct {
	V     json.RawMessage `json:"v"`
	P     *float64        `json:"p"`
	Yaw   *float64        `json:"Yaw"`
	Pitch *float64        `json:"Pitch"`
	Roll  *float64        `json:"Roll"`
}

type deviceNotification struct {
	Type  int          `json:"type"`
	Value *deviceValue `json:"value"`
	deviceValue
}

// DecodeDeviceFrame decodes one JSON notification from the accessory.
// Realtime frames carry their readings either in a nested "value" object or
// at the top level; v may be a number or an array whose first element wins.
// Orientation is reported in hundredths and is scaled and rounded here.
// Handshake and unknown types return ErrUnsupportedFrame.
func DecodeDeviceFrame(raw []byte) (DeviceFrame, error) {
	var n deviceNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return DeviceFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch n.Type {
	case DeviceTypeRealtime, DeviceTypeRealtime2:
		val := n.deviceValue
		if n.Value != nil {
			val = *n.Value
		}
		v, err := linearValue(val.V)
		if err != nil {
			return DeviceFrame{}, err
		}
		return DeviceFrame{
			Kind: FrameRealtime,
			Type: n.Type,
			Sample: session.Sample{
				LinearValue: v,
				Position:    clampInt(math.Trunc(deref(val.P))),
				Yaw:         roundHalfUp(deref(val.Yaw) / 100),
				Pitch:       roundHalfUp(deref(val.Pitch) / 100),
				Roll:        roundHalfUp(deref(val.Roll) / 100),
			},
		}, nil
	case DeviceTypeKey:
		return DeviceFrame{Kind: FrameKey, Type: n.Type}, nil
	}
	return DeviceFrame{Type: n.Type}, fmt.Errorf("%w: type %d", ErrUnsupportedFrame, n.Type)
}

func linearValue(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	if raw[0] == '[' {
		var arr []float64
		if err := json.Unmarshal(raw, &arr); err != nil {
			return 0, fmt.Errorf("%w: v: %v", ErrMalformedFrame, err)
		}
		if len(arr) == 0 {
			return 0, nil
		}
		return clampInt(arr[0]), nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("%w: v: %v", ErrMalformedFrame, err)
	}
	return clampInt(f), nil
}

// clampInt rounds f to the nearest int, saturating at the int range.
func clampInt(f float64) int {
	r := math.Round(f)
	switch {
	case math.IsNaN(r):
		return 0
	case r >= math.MaxInt:
		return math.MaxInt
	case r <= math.MinInt:
		return math.MinInt
	}
	return int(r)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(f float64) float64 {
	return math.Floor(f + 0.5)
}
