package web

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"time"
)

// statusPeriod is how often the motor snapshot is pushed to SSE clients.
const statusPeriod = time.Second

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, m Motor, runDemo RunDemoFunc, panel PanelConfig) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}

	handlers := NewHandlers(broadcaster, m, runDemo, panel, subFS)

	return &Server{
		addr:     addr,
		handlers: handlers,
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /speed", s.handlers.HandleSpeed)
	mux.HandleFunc("POST /stop", s.handlers.HandleStop)
	mux.HandleFunc("POST /brake", s.handlers.HandleBrake)
	mux.HandleFunc("POST /enable", s.handlers.HandleEnable)
	mux.HandleFunc("POST /disable", s.handlers.HandleDisable)
	mux.HandleFunc("POST /encoder/reset", s.handlers.HandleEncoderReset)
	mux.HandleFunc("POST /demo", s.handlers.HandleDemo)
	mux.HandleFunc("GET /status", s.handlers.HandleStatus)
	mux.HandleFunc("GET /config", s.handlers.HandleConfig)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.handlers.staticFS))))
	mux.HandleFunc("GET /{$}", s.handlers.ServeIndex) // exact match for root only

	return mux
}

// StartDemo runs the named demo the same way POST /demo does.
func (s *Server) StartDemo(name string) error {
	return s.handlers.StartDemo(name)
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// While running, the motor snapshot is broadcast every statusPeriod. A running
// demo has returned by the time Run does.
func (s *Server) Run(ctx context.Context) error {
	defer s.handlers.stopDemo()

	srv := &http.Server{Addr: s.addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	ticker := time.NewTicker(statusPeriod)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		case <-ticker.C:
			s.handlers.Broadcaster.BroadcastStatus(s.handlers.Motor.Snapshot())
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.handlers.stopDemo()
			return srv.Shutdown(shutdownCtx)
		}
	}
}
