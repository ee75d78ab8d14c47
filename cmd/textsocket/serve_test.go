package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	websocket "github.com/cmz2012/textsocket"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	logrus.SetOutput(io.Discard)
	reg := prometheus.NewRegistry()
	up := newUpgrader(cfg, websocket.NewMetrics(reg, "textsocket"))
	srv := httptest.NewServer(newRouter(cfg, up, reg))
	t.Cleanup(srv.Close)
	return srv
}

func dialTest(t *testing.T, srv *httptest.Server) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, msg, err := conn.ReadMessage(); err != nil || string(msg) != websocket.DefaultGreeting {
		t.Fatalf("greeting %q err=%v", msg, err)
	}
	return conn
}

func TestRouterPlainRequest(t *testing.T) {
	srv := newTestServer(t, defaultConfig())
	rsp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rsp.Body.Close()
	body, _ := io.ReadAll(rsp.Body)
	if string(body) != "Hello!" {
		t.Fatalf("body %q", body)
	}
	if got := rsp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin %q", got)
	}
}

func TestRouterPingPong(t *testing.T) {
	srv := newTestServer(t, defaultConfig())
	conn := dialTest(t, srv)

	if err := conn.WriteMessage(gws.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `{"type":"pong"}` {
		t.Fatalf("reply %q", msg)
	}
}

func TestRouterEcho(t *testing.T) {
	cfg := defaultConfig()
	cfg.Echo = true
	srv := newTestServer(t, cfg)
	conn := dialTest(t, srv)

	if err := conn.WriteMessage(gws.TextMessage, []byte("Hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "Hello" {
		t.Fatalf("echo %q", msg)
	}
}

func TestRouterMetrics(t *testing.T) {
	srv := newTestServer(t, defaultConfig())
	dialTest(t, srv)

	// the counter is bumped after the greeting is flushed
	var body []byte
	deadline := time.Now().Add(2 * time.Second)
	for {
		rsp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		body, _ = io.ReadAll(rsp.Body)
		rsp.Body.Close()
		if strings.Contains(string(body), `textsocket_upgrades_total{result="ok"} 1`) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics missing upgrade count:\n%s", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIsUpgradeRequest(t *testing.T) {
	cases := map[string]bool{
		"websocket":      true,
		"WebSocket":      true,
		"h2c, websocket": true,
		"h2c":            false,
		"":               false,
	}
	for v, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if v != "" {
			req.Header.Set("Upgrade", v)
		}
		if got := isUpgradeRequest(req); got != want {
			t.Fatalf("%q: got %v want %v", v, got, want)
		}
	}
}
