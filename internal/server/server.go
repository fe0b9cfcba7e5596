package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/BioHazard786/mindconnect/internal/ice"
	"github.com/BioHazard786/mindconnect/internal/signaling"
	"github.com/BioHazard786/mindconnect/internal/store"
)

// Options wires the server to its collaborators.
type Options struct {
	Addr   string
	WSPath string
	Hub    *signaling.Hub
	Store  store.Store
	ICE    ice.Provider
	Logger *slog.Logger
}

type Server struct {
	log *slog.Logger
	hub *signaling.Hub
	mux *http.ServeMux
	srv *http.Server
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WSPath == "" {
		opts.WSPath = "/ws"
	}
	s := &Server{
		log: opts.Logger,
		hub: opts.Hub,
		mux: http.NewServeMux(),
	}
	registerRoutes(s.mux, opts)

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           chain(s.mux, recoverMiddleware(s.log), requestLoggerMiddleware(s.log)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler is the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is cancelled, then drains HTTP requests and
// disconnects every websocket client.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info("signaling server listening", "addr", l.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(l) }()

	select {
	case err := <-errc:
		s.hub.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = s.srv.Shutdown(shutdownCtx)
	s.hub.Close()
	if errors.Is(<-errc, http.ErrServerClosed) {
		s.log.Info("signaling server stopped")
	}
	return err
}

type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func recoverMiddleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in http handler", "recover", rec, "stack", string(debug.Stack()))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func requestLoggerMiddleware(logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(sw, r)

			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", r.RemoteAddr,
			)
		})
	}
}
