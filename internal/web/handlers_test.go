package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/GoBridge/internal/hw/motor"
)

// fakeMotor records commands and returns err for every command when set.
type fakeMotor struct {
	mu     sync.Mutex
	status motor.Status
	calls  []string
	err    error
}

func (m *fakeMotor) do(call string, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.err != nil {
		return m.err
	}
	fn()
	return nil
}

func (m *fakeMotor) SetSpeed(speed int16) error {
	return m.do("speed", func() { m.status.Speed = speed })
}
func (m *fakeMotor) Stop() error   { return m.do("stop", func() { m.status.Speed = 0 }) }
func (m *fakeMotor) Brake() error  { return m.do("brake", func() { m.status.DirName = "brake" }) }
func (m *fakeMotor) Enable() error { return m.do("enable", func() { m.status.Enabled = true }) }
func (m *fakeMotor) Disable() error {
	return m.do("disable", func() { m.status.Enabled = false })
}
func (m *fakeMotor) ResetEncoder() error { return m.do("reset", func() { m.status.Pulses = 0 }) }
func (m *fakeMotor) Snapshot() motor.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ---------- Handler helpers ----------

func newTestHandlers(m *fakeMotor, runDemo RunDemoFunc) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	return NewHandlers(
		NewStatusBroadcaster(),
		m,
		runDemo,
		PanelConfig{MaxDuty: 1000, DemoSpeed: 500, Demos: []string{"sweep", "brake"}, Encoder: true},
		staticFS,
	)
}

func noopDemo(_ context.Context, _ string) error {
	return nil
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) motor.Status {
	t.Helper()
	var st motor.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

// ---------- Motor commands ----------

func TestHandleSpeed(t *testing.T) {
	m := &fakeMotor{}
	h := newTestHandlers(m, noopDemo)

	w := post(h.HandleSpeed, "/speed", `{"speed":-300}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	if st := decodeStatus(t, w); st.Speed != -300 {
		t.Errorf("speed = %d, want -300", st.Speed)
	}
}

func TestHandleSpeed_BadRequests(t *testing.T) {
	cases := map[string]string{
		"invalid_json": "not json",
		"missing":      `{}`,
		"overflow":     `{"speed":40000}`,
		"underflow":    `{"speed":-40000}`,
		"oversized":    `{"speed":1,"pad":"` + strings.Repeat("x", 2<<10) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			m := &fakeMotor{}
			w := post(newTestHandlers(m, noopDemo).HandleSpeed, "/speed", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if len(m.calls) != 0 {
				t.Errorf("motor was called: %v", m.calls)
			}
		})
	}
}

func TestCommands(t *testing.T) {
	cases := []struct {
		path string
		fn   func(*Handlers) http.HandlerFunc
		call string
	}{
		{"/stop", func(h *Handlers) http.HandlerFunc { return h.HandleStop }, "stop"},
		{"/brake", func(h *Handlers) http.HandlerFunc { return h.HandleBrake }, "brake"},
		{"/enable", func(h *Handlers) http.HandlerFunc { return h.HandleEnable }, "enable"},
		{"/disable", func(h *Handlers) http.HandlerFunc { return h.HandleDisable }, "disable"},
		{"/encoder/reset", func(h *Handlers) http.HandlerFunc { return h.HandleEncoderReset }, "reset"},
	}
	for _, tc := range cases {
		t.Run(tc.call, func(t *testing.T) {
			m := &fakeMotor{}
			w := post(tc.fn(newTestHandlers(m, noopDemo)), tc.path, "")
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if len(m.calls) != 1 || m.calls[0] != tc.call {
				t.Errorf("calls = %v, want [%s]", m.calls, tc.call)
			}
		})
	}
}

func TestCommand_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{motor.ErrNotInitialized, http.StatusConflict},
		{motor.ErrInvalidSpeed, http.StatusBadRequest},
		{fmt.Errorf("write pwm: %w: bus", motor.ErrPWM), http.StatusBadGateway},
		{fmt.Errorf("%w: no encoder configured", motor.ErrHardwareFault), http.StatusNotImplemented},
		{motor.ErrOverCurrent, http.StatusInternalServerError},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			m := &fakeMotor{err: tc.err}
			w := post(newTestHandlers(m, noopDemo).HandleEnable, "/enable", "")
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	m := &fakeMotor{status: motor.Status{Initialized: true, Speed: 42, DirName: "forward", HasEncoder: true, Pulses: 7}}
	h := newTestHandlers(m, noopDemo)
	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	st := decodeStatus(t, w)
	if st.Speed != 42 || st.DirName != "forward" || st.Pulses != 7 {
		t.Errorf("status = %+v", st)
	}
}

// ---------- HandleDemo ----------

func TestHandleDemo_Started(t *testing.T) {
	done := make(chan string, 1)
	h := newTestHandlers(&fakeMotor{}, func(_ context.Context, name string) error {
		done <- name
		return nil
	})

	w := post(h.HandleDemo, "/demo", `{"name":"sweep"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	select {
	case name := <-done:
		if name != "sweep" {
			t.Errorf("demo = %q, want sweep", name)
		}
	case <-time.After(time.Second):
		t.Fatal("demo did not run")
	}
}

func TestHandleDemo_Rejections(t *testing.T) {
	if w := post(newTestHandlers(&fakeMotor{}, noopDemo).HandleDemo, "/demo", `{"name":"spin"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown demo: status = %d, want 400", w.Code)
	}
	if w := post(newTestHandlers(&fakeMotor{}, noopDemo).HandleDemo, "/demo", "not json"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON: status = %d, want 400", w.Code)
	}
	if w := post(newTestHandlers(&fakeMotor{}, nil).HandleDemo, "/demo", `{"name":"sweep"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("nil RunDemo: status = %d, want 503", w.Code)
	}
}

func TestHandleDemo_ConcurrentAndStop(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan error, 1)
	blocking := func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		finished <- ctx.Err()
		return ctx.Err()
	}
	m := &fakeMotor{}
	h := newTestHandlers(m, blocking)

	if w := post(h.HandleDemo, "/demo", `{"name":"sweep"}`); w.Code != http.StatusAccepted {
		t.Fatalf("first demo: status = %d", w.Code)
	}
	<-started

	if w := post(h.HandleDemo, "/demo", `{"name":"brake"}`); w.Code != http.StatusConflict {
		t.Errorf("second demo: status = %d, want 409", w.Code)
	}
	if w := post(h.HandleSpeed, "/speed", `{"speed":10}`); w.Code != http.StatusConflict {
		t.Errorf("manual speed during demo: status = %d, want 409", w.Code)
	}

	if w := post(h.HandleStop, "/stop", ""); w.Code != http.StatusOK {
		t.Errorf("stop: status = %d", w.Code)
	}
	select {
	case err := <-finished:
		if err != context.Canceled {
			t.Errorf("demo ctx err = %v, want Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the demo")
	}
}

func TestStartDemo_StopCancelsAndWaits(t *testing.T) {
	m := &fakeMotor{}
	started := make(chan struct{})
	h := newTestHandlers(m, func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		// Demos end by disabling the driver.
		_ = m.Disable()
		return ctx.Err()
	})

	if err := h.StartDemo("sweep"); err != nil {
		t.Fatalf("StartDemo: %v", err)
	}
	<-started

	if w := post(h.HandleSpeed, "/speed", `{"speed":10}`); w.Code != http.StatusConflict {
		t.Errorf("manual speed during demo: status = %d, want 409", w.Code)
	}

	if w := post(h.HandleBrake, "/brake", ""); w.Code != http.StatusOK {
		t.Fatalf("brake: status = %d", w.Code)
	}
	if h.Running() {
		t.Error("demo still running after /brake returned")
	}
	m.mu.Lock()
	last := m.calls[len(m.calls)-1]
	m.mu.Unlock()
	if last != "brake" {
		t.Errorf("last motor call = %s, want brake after the demo's own shutdown", last)
	}
}

func TestStartDemo_Errors(t *testing.T) {
	h := newTestHandlers(&fakeMotor{}, noopDemo)
	if err := h.StartDemo("spin"); !errors.Is(err, ErrUnknownDemo) {
		t.Errorf("unknown demo: error = %v", err)
	}
	if err := newTestHandlers(&fakeMotor{}, nil).StartDemo("sweep"); !errors.Is(err, ErrDemosDisabled) {
		t.Errorf("nil RunDemo: error = %v", err)
	}
}

func TestHandleDemo_RateLimiting(t *testing.T) {
	h := newTestHandlers(&fakeMotor{}, noopDemo)
	if w := post(h.HandleDemo, "/demo", `{"name":"sweep"}`); w.Code != http.StatusAccepted {
		t.Fatalf("first demo: status = %d", w.Code)
	}

	deadline := time.Now().Add(time.Second)
	for h.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if w := post(h.HandleDemo, "/demo", `{"name":"sweep"}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("second demo: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

// ---------- HandleConfig / ServeIndex ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(&fakeMotor{}, noopDemo)
	w := httptest.NewRecorder()
	h.HandleConfig(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	var pc PanelConfig
	if err := json.NewDecoder(w.Body).Decode(&pc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.MaxDuty != 1000 || pc.DemoSpeed != 500 || len(pc.Demos) != 2 || !pc.Encoder {
		t.Errorf("config = %+v", pc)
	}
}

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(&fakeMotor{}, noopDemo)
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

// ---------- Server ----------

func TestServer_Routes(t *testing.T) {
	m := &fakeMotor{}
	srv := NewServer(":0", NewStatusBroadcaster(), m, noopDemo, PanelConfig{MaxDuty: 100})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/speed", "application/json", strings.NewReader(`{"speed":25}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("POST /speed = %d", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/speed")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /speed = %d, want 405", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("GET / = %d (embedded index)", res.StatusCode)
	}
}
