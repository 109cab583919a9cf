package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/GoBridge/internal/debug"
	"github.com/cjeanneret/GoBridge/internal/hw/motor"
)

const (
	// maxBodyBytes bounds request bodies; commands are tiny JSON objects.
	maxBodyBytes = 1 << 10
	// demoCooldown is the minimum delay between two demo starts.
	demoCooldown = 5 * time.Second
)

// Motor is the controller surface exposed over HTTP.
type Motor interface {
	SetSpeed(speed int16) error
	Stop() error
	Brake() error
	Enable() error
	Disable() error
	ResetEncoder() error
	Snapshot() motor.Status
}

// RunDemoFunc runs a named demo routine.
// It is called from the POST /demo handler in a goroutine.
type RunDemoFunc func(ctx context.Context, name string) error

// PanelConfig holds the values the control page needs (from config).
type PanelConfig struct {
	MaxDuty   uint16   `json:"max_duty"`
	DemoSpeed int      `json:"demo_speed"`
	Demos     []string `json:"demos"`
	Encoder   bool     `json:"encoder"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Motor       Motor
	RunDemo     RunDemoFunc
	Panel       PanelConfig
	runningMu   sync.Mutex
	running     bool
	cancelDemo  context.CancelFunc
	demoDone    chan struct{}
	lastDemo    time.Time
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If runDemo is nil, POST /demo will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, m Motor, runDemo RunDemoFunc, panel PanelConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Motor:       m,
		RunDemo:     runDemo,
		Panel:       panel,
		staticFS:    staticFS,
	}
}

// HandleConfig returns the panel settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Panel)
}

// HandleStatus returns a snapshot of the motor.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Motor.Snapshot())
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

type speedRequest struct {
	Speed *int `json:"speed"`
}

// HandleSpeed handles POST /speed {"speed": n}.
func (h *Handlers) HandleSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Speed == nil {
		http.Error(w, "speed is required", http.StatusBadRequest)
		return
	}
	if *req.Speed < math.MinInt16 || *req.Speed > math.MaxInt16 {
		http.Error(w, "speed out of range", http.StatusBadRequest)
		return
	}
	if !h.idle(w) {
		return
	}
	speed := int16(*req.Speed)
	h.command(w, func() error { return h.Motor.SetSpeed(speed) })
}

// HandleStop handles POST /stop. A running demo is cancelled and waited
// for first.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.stopDemo()
	h.command(w, h.Motor.Stop)
}

// HandleBrake handles POST /brake. A running demo is cancelled and waited
// for first; it ends with the driver disabled, so the brake applies once
// the enable lines are raised again.
func (h *Handlers) HandleBrake(w http.ResponseWriter, r *http.Request) {
	h.stopDemo()
	h.command(w, h.Motor.Brake)
}

// HandleEnable handles POST /enable.
func (h *Handlers) HandleEnable(w http.ResponseWriter, r *http.Request) {
	h.command(w, h.Motor.Enable)
}

// HandleDisable handles POST /disable. A running demo is cancelled and
// waited for first.
func (h *Handlers) HandleDisable(w http.ResponseWriter, r *http.Request) {
	h.stopDemo()
	h.command(w, h.Motor.Disable)
}

// HandleEncoderReset handles POST /encoder/reset.
func (h *Handlers) HandleEncoderReset(w http.ResponseWriter, r *http.Request) {
	h.command(w, h.Motor.ResetEncoder)
}

type demoRequest struct {
	Name string `json:"name"`
}

// Demo start failures.
var (
	ErrUnknownDemo   = errors.New("unknown demo")
	ErrDemosDisabled = errors.New("demos not configured")
	ErrDemoRunning   = errors.New("demo already in progress")
	ErrDemoTooSoon   = errors.New("demo started too recently")
)

// HandleDemo handles POST /demo {"name": "sweep"} to start a routine.
func (h *Handlers) HandleDemo(w http.ResponseWriter, r *http.Request) {
	var req demoRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch err := h.StartDemo(req.Name); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, ErrUnknownDemo):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrDemosDisabled):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ErrDemoRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	}
}

// StartDemo runs the named demo in the background. While it runs, manual
// speed commands are refused and stop, brake or disable cancel it.
func (h *Handlers) StartDemo(name string) error {
	known := false
	for _, d := range h.Panel.Demos {
		known = known || d == name
	}
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownDemo, name)
	}
	if h.RunDemo == nil {
		return ErrDemosDisabled
	}

	h.runningMu.Lock()
	if h.running {
		h.runningMu.Unlock()
		return ErrDemoRunning
	}
	if !h.lastDemo.IsZero() && time.Since(h.lastDemo) < demoCooldown {
		h.runningMu.Unlock()
		return ErrDemoTooSoon
	}
	h.lastDemo = time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.running = true
	h.cancelDemo = cancel
	h.demoDone = done
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer close(done)
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = false
			h.cancelDemo = nil
			h.demoDone = nil
			h.runningMu.Unlock()
		}()

		err := h.RunDemo(ctx, name)
		switch {
		case err == nil:
			h.Broadcaster.Broadcast("info", "Demo complete")
		case errors.Is(err, context.Canceled):
			h.Broadcaster.Broadcast("info", "Demo cancelled")
		default:
			h.Broadcaster.Broadcast("error", "Demo failed: "+err.Error())
			log.Printf("demo %s failed: %v", name, err)
		}
	}()
	return nil
}

// Running reports whether a demo is in progress.
func (h *Handlers) Running() bool {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// idle rejects manual speed commands while a demo owns the motor.
func (h *Handlers) idle(w http.ResponseWriter) bool {
	if h.Running() {
		http.Error(w, "demo in progress", http.StatusConflict)
		return false
	}
	return true
}

// stopDemo cancels a running demo and waits until it has returned, so
// the demo's own shutdown does not land after the caller's command.
func (h *Handlers) stopDemo() {
	h.runningMu.Lock()
	cancel, done := h.cancelDemo, h.demoDone
	h.runningMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// command runs fn and replies with the resulting status, or the error
// mapped to an HTTP code.
func (h *Handlers) command(w http.ResponseWriter, fn func() error) {
	if err := fn(); err != nil {
		debug.Error(err)
		h.Broadcaster.Broadcast("error", err.Error())
		http.Error(w, err.Error(), statusCode(err))
		return
	}
	writeJSON(w, http.StatusOK, h.Motor.Snapshot())
}

// statusCode maps a motor error to an HTTP status.
func statusCode(err error) int {
	switch motor.Class(err) {
	case motor.ClassConfiguration:
		if errors.Is(err, motor.ErrNotInitialized) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case motor.ClassIO:
		return http.StatusBadGateway
	case motor.ClassFault:
		if errors.Is(err, motor.ErrHardwareFault) {
			// no encoder wired
			return http.StatusNotImplemented
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
