package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	websocket "github.com/cmz2012/textsocket"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept WebSocket upgrades and serve sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			setupLogging(cfg)
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config file")
	return cmd
}

func runServer(parent context.Context, cfg Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	up := newUpgrader(cfg, websocket.NewMetrics(reg, "textsocket"))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(cfg, up, reg),
		ReadHeaderTimeout: 10 * time.Second,
		// sessions run on request contexts, so shutdown reaches hijacked conns
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("[Serve]: server running on %v", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Infof("[Serve]: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newUpgrader(cfg Config, metrics *websocket.Metrics) *websocket.Upgrader {
	return &websocket.Upgrader{
		Greeting:       cfg.Greeting,
		ReadBufferSize: cfg.ReadBufferSize,
		Handler:        newMessageHandler(cfg.Echo),
		Logger:         logrus.StandardLogger(),
		Metrics:        metrics,
	}
}

// newRouter answers plain requests with a short text body and hands every
// upgrade-intent request, whatever its path, to up.
func newRouter(cfg Config, up *websocket.Upgrader, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(upgradeMiddleware(up))

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		if cfg.AllowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", cfg.AllowOrigin)
		}
		io.WriteString(w, "Hello!")
	})
	if cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func upgradeMiddleware(up *websocket.Upgrader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !isUpgradeRequest(req) {
				next.ServeHTTP(w, req)
				return
			}
			s, err := up.Upgrade(w, req)
			if err != nil {
				logrus.Infof("[upgradeMiddleware]: upgrade failed remote = %v, err = %v", req.RemoteAddr, err)
				return
			}
			if err := s.Serve(req.Context()); err != nil {
				logrus.Warnf("[upgradeMiddleware]: session ended remote = %v, err = %v", req.RemoteAddr, err)
			}
		})
	}
}

func isUpgradeRequest(req *http.Request) bool {
	for _, v := range req.Header.Values("Upgrade") {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "websocket") {
				return true
			}
		}
	}
	return false
}

func newMessageHandler(echo bool) websocket.Handler {
	return websocket.HandlerFunc(func(s *websocket.Session, f websocket.DecodedFrame) {
		log := logrus.WithField("remote", s.RemoteAddr())
		log.Infof("[OnMessage]: client websocket frame value ->%s<-", f.Text())

		if f.Get("type").String() == "ping" {
			if err := s.SendJSON(map[string]string{"type": "pong"}); err != nil {
				log.Warnf("[OnMessage]: send pong err = %v", err)
			}
			return
		}
		if !echo {
			return
		}
		if err := s.Send(f.Text()); err != nil {
			log.Warnf("[OnMessage]: echo err = %v", err)
		}
	})
}
