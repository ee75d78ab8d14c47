package websocket

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cmz2012/textsocket"

// Upgrader holds the settings shared by every upgraded connection. It keeps
// no per-connection state and is safe for concurrent use.
type Upgrader struct {
	// Greeting is sent as a text frame right after the handshake.
	// Empty means DefaultGreeting.
	Greeting       string
	ReadBufferSize int
	Handler        Handler
	Logger         logrus.FieldLogger
	Metrics        *Metrics
	Tracer         trace.Tracer
}

// SignKey derives the Sec-WebSocket-Accept token for a client key.
func SignKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// HandleUpgrade answers an upgrade request given its headers. It returns
// the 101 response head and the encoded greeting frame, or ErrMissingKey
// when the request carries no Sec-WebSocket-Key.
func (up *Upgrader) HandleUpgrade(header http.Header) (response, greeting []byte, err error) {
	key := headerValue(header, "Sec-WebSocket-Key")
	if key == "" {
		return nil, nil, ErrMissingKey
	}
	greeting, err = EncodeTextFrame(up.greeting())
	if err != nil {
		return nil, nil, err
	}
	response = []byte(strings.Join([]string{
		"HTTP/1.1 101 Web Socket Protocols",
		"Upgrade: WebSocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Accept: " + SignKey(key),
		"\r\n",
	}, "\r\n"))
	return response, greeting, nil
}

// Upgrade hijacks the connection behind w and completes the handshake.
// The returned session is open; the caller runs Serve on it.
func (up *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Session, error) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		up.Metrics.upgrade("error")
		http.Error(w, "websocket: response does not support hijacking", http.StatusInternalServerError)
		return nil, errors.New("websocket: response does not implement http.Hijacker")
	}
	nc, buf, err := hj.Hijack()
	if err != nil {
		up.Metrics.upgrade("error")
		return nil, err
	}
	return up.handshake(r.Context(), nc, buf, r.Header, r.RemoteAddr)
}

// ServeConn reads an upgrade request straight off nc, completes the
// handshake and serves the session until it closes.
func (up *Upgrader) ServeConn(ctx context.Context, nc net.Conn) error {
	buf := bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc))
	req, err := http.ReadRequest(buf.Reader)
	if err != nil {
		up.Metrics.upgrade("error")
		up.logger().Errorf("[ServeConn]: read upgrade request remote = %v, err = %v", nc.RemoteAddr(), err)
		nc.Close()
		return err
	}
	s, err := up.handshake(ctx, nc, buf, req.Header, nc.RemoteAddr().String())
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (up *Upgrader) handshake(ctx context.Context, nc net.Conn, buf *bufio.ReadWriter, header http.Header, remote string) (*Session, error) {
	_, span := up.tracer().Start(ctx, "websocket.upgrade", trace.WithAttributes(
		attribute.String("net.peer.addr", remote),
	))
	defer span.End()

	log := up.logger().WithField("remote", remote)
	s := &Session{
		rwc:            nc,
		r:              buf.Reader,
		w:              buf.Writer,
		remote:         remote,
		state:          StateHandshaking,
		handler:        up.Handler,
		log:            log,
		metrics:        up.Metrics,
		readBufferSize: up.ReadBufferSize,
	}
	if s.handler == nil {
		s.handler = HandlerFunc(logMessage)
	}

	response, greeting, err := up.HandleUpgrade(header)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrMissingKey) {
			result = "missing_key"
		}
		up.Metrics.upgrade(result)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeShakeBadResponse(buf.Writer, err)
		log.Errorf("[Upgrade]: reject handshake err = %v", err)
		s.terminate()
		return nil, err
	}

	if err = writeShakeSuccessResponse(buf.Writer, response, greeting); err != nil {
		up.Metrics.upgrade("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("[Upgrade]: write handshake err = %v", err)
		s.terminate()
		return nil, err
	}
	up.Metrics.upgrade("ok")
	up.Metrics.frameSent()
	s.open()
	log.Infof("[Upgrade]: session open")
	return s, nil
}

func writeShakeSuccessResponse(w *bufio.Writer, response, greeting []byte) error {
	if _, err := w.Write(response); err != nil {
		return err
	}
	if _, err := w.Write(greeting); err != nil {
		return err
	}
	return w.Flush()
}

func writeShakeBadResponse(w *bufio.Writer, cause error) {
	fmt.Fprintf(w, "HTTP/1.1 %03d %s\r\n", http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
	fmt.Fprintf(w, "Sec-WebSocket-Version: %d\r\n", 13)
	w.WriteString("Connection: close\r\n")
	w.WriteString("\r\n")
	io.WriteString(w, "websocket handshake error: "+cause.Error())
	w.Flush()
}

// headerValue looks name up case-insensitively, including in headers that
// were built by hand and never canonicalized.
func headerValue(header http.Header, name string) string {
	if v := strings.TrimSpace(header.Get(name)); v != "" {
		return v
	}
	for k, vs := range header {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			if v := strings.TrimSpace(vs[0]); v != "" {
				return v
			}
		}
	}
	return ""
}

func (up *Upgrader) greeting() string {
	if up.Greeting == "" {
		return DefaultGreeting
	}
	return up.Greeting
}

func (up *Upgrader) logger() logrus.FieldLogger {
	if up.Logger == nil {
		return logrus.StandardLogger()
	}
	return up.Logger
}

func (up *Upgrader) tracer() trace.Tracer {
	if up.Tracer == nil {
		return otel.Tracer(tracerName)
	}
	return up.Tracer
}
