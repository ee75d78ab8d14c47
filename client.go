package websocket

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const maxClientReadPayload = 1 << 20

// ClientConn is the client end of a session. It is used to probe a server
// and in tests; it is not safe for concurrent use.
type ClientConn struct {
	nc       net.Conn
	r        *bufio.Reader
	greeting string
}

// Dial opens a TCP connection to rawURL, performs the upgrade, checks the
// accept token and reads the server greeting.
func Dial(ctx context.Context, rawURL string) (c *ClientConn, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	logrus.Infof("[Dial]: url = %v", u.String())

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		logrus.Errorf("[Dial]: host = %v, err = %v", u.Host, err)
		return
	}
	logrus.Infof("[Dial]: tcp connected remote = %v", nc.RemoteAddr().String())

	c, err = Handshake(nc, u)
	if err != nil {
		nc.Close()
		logrus.Errorf("[Dial]: %v", err)
		return nil, err
	}
	return c, nil
}

// Handshake runs the client side of the upgrade over an established nc.
func Handshake(nc net.Conn, u *url.URL) (*ClientConn, error) {
	key, err := generateKey()
	if err != nil {
		return nil, err
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	w := bufio.NewWriter(nc)
	fmt.Fprintf(w, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(w, "Host: %s\r\n", u.Host)
	w.WriteString("Upgrade: websocket\r\n")
	w.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(w, "Sec-WebSocket-Key: %s\r\n", key)
	w.WriteString("Sec-WebSocket-Version: 13\r\n\r\n")
	if err = w.Flush(); err != nil {
		return nil, err
	}

	r := bufio.NewReader(nc)
	rsp, err := http.ReadResponse(r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade response: %w", err)
	}
	if rsp.StatusCode != http.StatusSwitchingProtocols {
		return nil, fmt.Errorf("%w: status = %v", ErrBadHandshake, rsp.Status)
	}
	if got, want := rsp.Header.Get("Sec-WebSocket-Accept"), SignKey(key); got != want {
		return nil, fmt.Errorf("%w: accept = %q, want %q", ErrBadHandshake, got, want)
	}

	c := &ClientConn{nc: nc, r: r}
	f, err := c.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	c.greeting = f.Text()
	return c, nil
}

func (c *ClientConn) Greeting() string {
	return c.greeting
}

// ReadFrame reads exactly one server frame off the stream.
func (c *ClientConn) ReadFrame() (DecodedFrame, error) {
	raw := make([]byte, 2, 14)
	if _, err := io.ReadFull(c.r, raw); err != nil {
		return DecodedFrame{}, err
	}
	ext := 0
	switch raw[1] & payloadLenBit {
	case payloadLen16:
		ext = 2
	case payloadLen64:
		ext = 8
	}
	if raw[1]&maskBit != 0 {
		ext += maskKeyLen
	}
	raw = raw[:2+ext]
	if _, err := io.ReadFull(c.r, raw[2:]); err != nil {
		return DecodedFrame{}, err
	}
	h, err := readFrameHeader(raw, false)
	if err == nil {
		return parseFrame(raw, false)
	}
	// header is complete, only the payload is missing
	if h.length > maxClientReadPayload {
		return DecodedFrame{}, fmt.Errorf("%w: server frame of %d bytes", ErrPayloadTooLong, h.length)
	}
	payload := make([]byte, h.length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return DecodedFrame{}, err
	}
	return parseFrame(append(raw, payload...), false)
}

// SendText writes text as a masked client frame under a random key.
func (c *ClientConn) SendText(text string) error {
	var key [maskKeyLen]byte
	if _, err := rand.Read(key[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(MaskTextFrame(text, key))
	return err
}

// SendClose writes a masked close frame.
func (c *ClientConn) SendClose(code int, reason string) error {
	var key [maskKeyLen]byte
	if _, err := rand.Read(key[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(maskFrame(PayloadTypeClose, FormatCloseMessage(code, reason), key))
	return err
}

// SetDeadline bounds the next reads and writes on the underlying connection.
func (c *ClientConn) SetDeadline(t time.Time) error {
	return c.nc.SetDeadline(t)
}

func (c *ClientConn) Close() error {
	return c.nc.Close()
}

// MaskTextFrame builds a final text frame the way a client sends it,
// masked with key.
func MaskTextFrame(text string, key [4]byte) []byte {
	return maskFrame(PayloadTypeText, []byte(text), key)
}

func maskFrame(opCode byte, payload []byte, key [maskKeyLen]byte) []byte {
	header := []byte{finalBit | opCode, maskBit}
	switch n := len(payload); {
	case n <= MaxFramePayload:
		header[1] |= byte(n)
	case n <= 0xFFFF:
		header[1] |= payloadLen16
		header = binary.BigEndian.AppendUint16(header, uint16(n))
	default:
		header[1] |= payloadLen64
		header = binary.BigEndian.AppendUint64(header, uint64(n))
	}
	header = append(header, key[:]...)

	data := make([]byte, len(payload))
	copy(data, payload)
	maskBytes(key, data)
	return append(header, data...)
}

func generateKey() (string, error) {
	p := make([]byte, 16)
	if _, err := rand.Read(p); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(p), nil
}
