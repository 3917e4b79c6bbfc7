package protocol

import "errors"

var (
	// ErrMalformedMessage is returned when an envelope cannot be parsed.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrMalformedFrame is returned when a device notification is not valid JSON
	// or carries a non-numeric reading.
	ErrMalformedFrame = errors.New("protocol: malformed device frame")

	// ErrUnsupportedFrame is returned for device notifications the gateway
	// does not process, including the connection handshake.
	ErrUnsupportedFrame = errors.New("protocol: unsupported device frame")
)
