package websocket

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

type State int32

const (
	StateHandshaking State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Handler receives decoded text frames of an open session. It runs on the
// session's own goroutine and may call Send or Close on s.
type Handler interface {
	OnMessage(s *Session, f DecodedFrame)
}

type HandlerFunc func(s *Session, f DecodedFrame)

func (fn HandlerFunc) OnMessage(s *Session, f DecodedFrame) {
	fn(s, f)
}

// Session is the per-connection state after a successful upgrade. It is
// owned by the goroutine that runs Serve (or calls Feed) and must not be
// shared.
type Session struct {
	rwc    io.ReadWriteCloser
	r      io.Reader
	w      *bufio.Writer
	remote string
	state  State

	handler        Handler
	log            logrus.FieldLogger
	metrics        *Metrics
	readBufferSize int
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) RemoteAddr() string {
	return s.remote
}

// Feed decodes a chunk received from the transport and dispatches every
// complete frame in it. A decode error closes the session and is returned;
// nothing is written back to the client in that case.
func (s *Session) Feed(chunk []byte) error {
	if s.state != StateOpen {
		return ErrSessionClosed
	}
	for len(chunk) > 0 && s.state == StateOpen {
		f, err := DecodeFrame(chunk)
		if err != nil {
			s.metrics.frameError(err)
			s.log.Warnf("[Feed]: drop session remote = %v, err = %v", s.remote, err)
			s.terminate()
			return err
		}
		s.metrics.frameReceived(f.Kind)

		switch f.Kind {
		case FrameClose:
			s.handleClose(f)
			return nil
		case FrameText:
			s.handler.OnMessage(s, f)
		default:
			s.log.Debugf("[Feed]: ignore %s frame control = %v, len = %v", opCodeName(f.OpCode), isControlFrame(f.OpCode), f.PayloadLen)
		}
		chunk = chunk[f.Size:]
	}
	return nil
}

// Serve reads transport chunks into Feed until the session closes, the
// transport fails or ctx is cancelled. A clean disconnect returns nil.
func (s *Session) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.rwc.Close()
	})
	defer stop()

	size := s.readBufferSize
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	buf := make([]byte, size)
	for s.state == StateOpen {
		n, err := s.r.Read(buf)
		if n > 0 {
			if ferr := s.Feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if s.state == StateOpen {
				s.log.Infof("[Serve]: transport closed remote = %v, err = %v", s.remote, err)
			}
			s.terminate()
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// Send writes text as a single text frame.
func (s *Session) Send(text string) error {
	if s.state != StateOpen {
		return ErrSessionClosed
	}
	frame, err := EncodeTextFrame(text)
	if err != nil {
		return err
	}
	return s.writeFrame(frame)
}

// Close sends a close frame and closes the transport.
func (s *Session) Close(code int, reason string) error {
	if s.state != StateOpen {
		return ErrSessionClosed
	}
	frame, err := EncodeCloseFrame(code, reason)
	if err != nil {
		return err
	}
	err = s.writeFrame(frame)
	s.terminate()
	return err
}

func (s *Session) handleClose(f DecodedFrame) {
	s.log.Infof("[handleClose]: receive close frame code = %v, msg = %v", f.CloseCode, f.CloseReason)
	code := f.CloseCode
	if code == CloseNoStatusReceived {
		code = CloseNormalClosure
	}
	frame, err := EncodeCloseFrame(code, "")
	if err == nil {
		err = s.writeFrame(frame)
	}
	if err != nil {
		s.log.Errorf("[handleClose]: write close frame err = %v", err)
	}
	s.terminate()
}

func (s *Session) open() {
	s.state = StateOpen
	s.metrics.sessionOpened()
}

func (s *Session) terminate() {
	if s.state == StateClosed {
		return
	}
	wasOpen := s.state == StateOpen
	s.state = StateClosed
	s.rwc.Close()
	if wasOpen {
		s.metrics.sessionClosed()
	}
}

func (s *Session) writeFrame(frame []byte) (err error) {
	if _, err = s.w.Write(frame); err != nil {
		return
	}
	if err = s.w.Flush(); err != nil {
		return
	}
	s.metrics.frameSent()
	return
}

func logMessage(s *Session, f DecodedFrame) {
	s.log.Infof("[OnMessage]: client websocket frame value ->%s<-", f.Text())
}

func FormatCloseMessage(closeCode int, text string) []byte {
	if closeCode == CloseNoStatusReceived {
		// CloseNoStatusReceived must never be sent on the wire.
		return []byte{}
	}
	buf := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(buf, uint16(closeCode))
	copy(buf[2:], text)
	return buf
}

func DecodeCloseMessage(payload []byte) (code int, msg string) {
	code = CloseNoStatusReceived
	if len(payload) >= 2 {
		code = int(binary.BigEndian.Uint16(payload))
		msg = string(payload[2:])
	}
	return
}
