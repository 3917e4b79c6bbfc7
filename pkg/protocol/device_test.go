package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-linkcup/pkg/session"
)

func TestDecodeDeviceFrame(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind FrameKind
		want     session.Sample
		wantErr  error
	}{
		{
			name:     "nested value",
			input:    `{"type":7,"value":{"v":42,"p":3,"Yaw":1234,"Pitch":-250,"Roll":49}}`,
			wantKind: FrameRealtime,
			want:     session.Sample{LinearValue: 42, Position: 3, Yaw: 12, Pitch: -2, Roll: 0},
		},
		{
			name:     "flat fields",
			input:    `{"type":14,"v":7,"p":1,"Yaw":150,"Pitch":0,"Roll":-151}`,
			wantKind: FrameRealtime,
			want:     session.Sample{LinearValue: 7, Position: 1, Yaw: 2, Roll: -2},
		},
		{
			name:     "array v first wins",
			input:    `{"type":7,"value":{"v":[9,3,1],"p":2}}`,
			wantKind: FrameRealtime,
			want:     session.Sample{LinearValue: 9, Position: 2},
		},
		{
			name:     "missing v",
			input:    `{"type":7,"value":{"p":2}}`,
			wantKind: FrameRealtime,
			want:     session.Sample{Position: 2},
		},
		{
			name:     "empty array",
			input:    `{"type":7,"value":{"v":[]}}`,
			wantKind: FrameRealtime,
		},
		{
			name:     "huge v saturates",
			input:    `{"type":7,"value":{"v":1e300,"p":1e300}}`,
			wantKind: FrameRealtime,
			want:     session.Sample{LinearValue: math.MaxInt, Position: math.MaxInt},
		},
		{
			name:     "huge negative v in array saturates",
			input:    `{"type":7,"value":{"v":[-1e300,4]}}`,
			wantKind: FrameRealtime,
			want:     session.Sample{LinearValue: math.MinInt},
		},
		{
			name:     "key press",
			input:    `{"type":11}`,
			wantKind: FrameKey,
		},
		{
			name:    "handshake uuid",
			input:   `{"type":1,"uuid":"abc"}`,
			wantErr: ErrUnsupportedFrame,
		},
		{
			name:    "handshake firmware",
			input:   `{"type":5,"ver":"1.0"}`,
			wantErr: ErrUnsupportedFrame,
		},
		{
			name:    "unknown type",
			input:   `{"type":99}`,
			wantErr: ErrUnsupportedFrame,
		},
		{
			name:    "not json",
			input:   `\x01\x02`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "string v",
			input:   `{"type":7,"value":{"v":"fast"}}`,
			wantErr: ErrMalformedFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeDeviceFrame([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("DecodeDeviceFrame() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDeviceFrame() error = %v", err)
			}
			if frame.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", frame.Kind, tt.wantKind)
			}
			if frame.Sample != tt.want {
				t.Errorf("Sample = %+v, want %+v", frame.Sample, tt.want)
			}
		})
	}
}
