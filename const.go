package websocket

import "errors"

const (
	websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	// DefaultGreeting is the text frame sent right after a successful upgrade.
	DefaultGreeting = "Hey client, this is server talking!"
	// DefaultReadBufferSize bounds a single transport read handed to the decoder.
	DefaultReadBufferSize = 4096

	// MaxFramePayload is the largest payload the single length byte encodes.
	MaxFramePayload = 125
)

var (
	ErrMissingKey          = errors.New("ErrMissingKey")
	ErrTruncatedFrame      = errors.New("ErrTruncatedFrame")
	ErrPayloadTooLong      = errors.New("ErrPayloadTooLong")
	ErrUnmaskedClientFrame = errors.New("ErrUnmaskedClientFrame")
	ErrSessionClosed       = errors.New("ErrSessionClosed")
	ErrBadHandshake        = errors.New("ErrBadHandshake")
)

const (
	PayloadTypeContinue byte = 0x0
	PayloadTypeText     byte = 0x1
	PayloadTypeBinary   byte = 0x2
	PayloadTypeClose    byte = 0x8
	PayloadTypePing     byte = 0x9
	PayloadTypePong     byte = 0xa
)

// wire layout bits
const (
	finalBit      byte = 0x80
	opcodeMask    byte = 0x0F
	maskBit       byte = 0x80
	payloadLenBit byte = 0x7F

	payloadLen16 = 126
	payloadLen64 = 127
	maskKeyLen   = 4
)

// close status codes, RFC 6455 section 7.4.1
const (
	CloseNormalClosure    = 1000
	CloseGoingAway        = 1001
	CloseProtocolError    = 1002
	CloseNoStatusReceived = 1005
)
