package websocket

import (
	"encoding/binary"
	"fmt"
)

type FrameKind int

const (
	FrameText FrameKind = iota
	FrameClose
	FrameIgnored
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameClose:
		return "close"
	default:
		return "ignored"
	}
}

// DecodedFrame is a single client frame after unmasking.
type DecodedFrame struct {
	Kind       FrameKind
	OpCode     byte
	Fin        bool
	PayloadLen uint64
	Payload    []byte
	// Size is the number of input bytes the frame occupied.
	Size       int

	// set only for FrameClose
	CloseCode   int
	CloseReason string
}

func (f DecodedFrame) Text() string {
	return string(f.Payload)
}

type frameHeader struct {
	length  uint64
	masked  bool
	maskKey [maskKeyLen]byte
	offset  int // first payload byte
}

func (h frameHeader) end() int {
	return h.offset + int(h.length)
}

// EncodeTextFrame builds a final, unmasked text frame. Payloads above
// MaxFramePayload bytes are rejected instead of emitting a corrupt length.
func EncodeTextFrame(text string) ([]byte, error) {
	return encodeFrame(PayloadTypeText, []byte(text))
}

// EncodeCloseFrame builds a final, unmasked close frame carrying code and reason.
func EncodeCloseFrame(code int, reason string) ([]byte, error) {
	return encodeFrame(PayloadTypeClose, FormatCloseMessage(code, reason))
}

func encodeFrame(opCode byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLong, len(payload), MaxFramePayload)
	}
	out := make([]byte, 2+len(payload))
	out[0] = finalBit | opCode
	out[1] = byte(len(payload))
	copy(out[2:], payload)
	return out, nil
}

// DecodeFrame decodes one client-to-server frame from raw. Client frames
// must be masked. Close frames are reported as FrameClose, opcodes other
// than text and close as FrameIgnored.
func DecodeFrame(raw []byte) (DecodedFrame, error) {
	return parseFrame(raw, true)
}

func parseFrame(raw []byte, requireMask bool) (f DecodedFrame, err error) {
	need := 2
	if requireMask {
		need += maskKeyLen
	}
	if len(raw) < need {
		return DecodedFrame{}, fmt.Errorf("%w: got %d bytes, need at least %d", ErrTruncatedFrame, len(raw), need)
	}

	f.Fin = raw[0]&finalBit != 0
	f.OpCode = raw[0] & opcodeMask

	switch f.OpCode {
	case PayloadTypeClose:
		f.Kind = FrameClose
		f.CloseCode = CloseNoStatusReceived
		f.Size = len(raw)
		// status and reason are optional; a damaged payload is still a close
		if h, herr := readFrameHeader(raw, requireMask); herr == nil {
			f.PayloadLen = h.length
			f.Payload = unmaskPayload(raw, h)
			f.Size = h.end()
			f.CloseCode, f.CloseReason = DecodeCloseMessage(f.Payload)
		}
		return f, nil
	case PayloadTypeText:
	default:
		f.Kind = FrameIgnored
		f.Size = len(raw)
		if h, herr := readFrameHeader(raw, requireMask); herr == nil {
			f.PayloadLen = h.length
			f.Size = h.end()
		}
		return f, nil
	}

	h, err := readFrameHeader(raw, requireMask)
	if err != nil {
		return DecodedFrame{}, err
	}
	f.Kind = FrameText
	f.PayloadLen = h.length
	f.Payload = unmaskPayload(raw, h)
	f.Size = h.end()
	return f, nil
}

// readFrameHeader parses the length field, extended length and mask key,
// checking each against the remaining input before it is sliced.
func readFrameHeader(raw []byte, requireMask bool) (h frameHeader, err error) {
	if len(raw) < 2 {
		return h, fmt.Errorf("%w: missing length byte", ErrTruncatedFrame)
	}
	h.masked = raw[1]&maskBit != 0
	if requireMask && !h.masked {
		return h, ErrUnmaskedClientFrame
	}

	h.offset = 2
	switch payLen := raw[1] & payloadLenBit; payLen {
	case payloadLen16:
		if len(raw) < h.offset+2 {
			return h, fmt.Errorf("%w: missing 16-bit length", ErrTruncatedFrame)
		}
		h.length = uint64(binary.BigEndian.Uint16(raw[h.offset:]))
		h.offset += 2
	case payloadLen64:
		if len(raw) < h.offset+8 {
			return h, fmt.Errorf("%w: missing 64-bit length", ErrTruncatedFrame)
		}
		h.length = binary.BigEndian.Uint64(raw[h.offset:])
		h.offset += 8
	default:
		h.length = uint64(payLen)
	}

	if h.masked {
		if len(raw) < h.offset+maskKeyLen {
			return h, fmt.Errorf("%w: missing mask key", ErrTruncatedFrame)
		}
		copy(h.maskKey[:], raw[h.offset:h.offset+maskKeyLen])
		h.offset += maskKeyLen
	}

	if h.length > uint64(len(raw)-h.offset) {
		return h, fmt.Errorf("%w: payload length %d, %d bytes available", ErrTruncatedFrame, h.length, len(raw)-h.offset)
	}
	return h, nil
}

func unmaskPayload(raw []byte, h frameHeader) []byte {
	payload := make([]byte, h.length)
	copy(payload, raw[h.offset:h.end()])
	if h.masked {
		maskBytes(h.maskKey, payload)
	}
	return payload
}

// maskBytes XORs b in place with the rolling 4-byte key. Applying it twice
// restores the input.
func maskBytes(key [maskKeyLen]byte, b []byte) {
	for i := range b {
		b[i] ^= key[i%maskKeyLen]
	}
}
