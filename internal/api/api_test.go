package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/yok-tottii/EzCapture/internal/audio"
	"github.com/yok-tottii/EzCapture/internal/capture"
	"github.com/yok-tottii/EzCapture/internal/config"
	"github.com/yok-tottii/EzCapture/internal/server"
	"github.com/yok-tottii/EzCapture/internal/telemetry"
)

// stubEngine mimics capture.Engine state rules without audio
type stubEngine struct {
	mu         sync.Mutex
	state      capture.State
	bufferSize int
	startErr   error
	devices    []audio.Device
	listErr    error
	starts     int
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		bufferSize: capture.DefaultBufferSize,
		devices:    []audio.Device{{ID: 0, Name: "Mic", IsDefault: true}},
	}
}

func (e *stubEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if e.startErr != nil {
		return e.startErr
	}
	e.state = capture.Started
	return nil
}

func (e *stubEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = capture.Idle
}

func (e *stubEngine) Configure(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == capture.Started {
		return capture.ErrAlreadyStarted
	}
	if n < 1 || n > capture.MaxBufferSize {
		return fmt.Errorf("%w: %d", capture.ErrBufferSize, n)
	}
	e.bufferSize = n
	return nil
}

func (e *stubEngine) BufferSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bufferSize
}

func (e *stubEngine) State() capture.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *stubEngine) Format() audio.Format {
	if e.State() == capture.Started {
		return audio.Format{Channels: 2, SampleRate: 48000, BitsPerSample: 16}
	}
	return audio.Format{}
}

func (e *stubEngine) Stats() telemetry.Snapshot {
	return telemetry.Snapshot{Chunks: 3}
}

func (e *stubEngine) Backend() string {
	return "stub"
}

func (e *stubEngine) ListDevices() ([]audio.Device, error) {
	return e.devices, e.listErr
}

func do(t *testing.T, h *Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig()
	handler := New(newStubEngine(), cfg, "", nil)

	if handler == nil {
		t.Fatal("Expected handler to be created")
	}
	if handler.config != cfg {
		t.Error("Expected config to be set")
	}
}

func TestStatus(t *testing.T) {
	engine := newStubEngine()
	handler := New(engine, nil, "", nil)

	w := do(t, handler, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var status StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.State != "Idle" || status.Backend != "stub" || status.BufferSize != capture.DefaultBufferSize {
		t.Errorf("Unexpected status %+v", status)
	}
	if status.Format != nil {
		t.Error("Idle status should not carry a format")
	}
	if status.Stats.Chunks != 3 {
		t.Errorf("Expected stats passed through, got %+v", status.Stats)
	}

	if w := do(t, handler, http.MethodPost, "/api/status", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestStartStop(t *testing.T) {
	engine := newStubEngine()
	handler := New(engine, nil, "", nil)

	var changes []capture.State
	handler.OnStateChange(func(s capture.State) { changes = append(changes, s) })

	w := do(t, handler, http.MethodPost, "/api/capture/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)
	if status.State != "Started" || status.Format == nil || status.Format.SampleRate != 48000 {
		t.Errorf("Unexpected status after start %+v", status)
	}

	if w := do(t, handler, http.MethodPost, "/api/capture/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if engine.State() != capture.Idle {
		t.Error("Expected engine stopped")
	}

	if len(changes) != 2 || changes[0] != capture.Started || changes[1] != capture.Idle {
		t.Errorf("Unexpected state notifications %v", changes)
	}

	if w := do(t, handler, http.MethodGet, "/api/capture/start", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET start, got %d", w.Code)
	}
}

func TestStartFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"device error", &capture.StartError{Op: "initialize", Err: errors.New("no device")}, http.StatusInternalServerError},
		{"closed engine", capture.ErrClosed, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newStubEngine()
			engine.startErr = tt.err
			handler := New(engine, nil, "", nil)

			w := do(t, handler, http.MethodPost, "/api/capture/start", nil)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
			var body map[string]string
			json.NewDecoder(w.Body).Decode(&body)
			if body["error"] != tt.err.Error() {
				t.Errorf("Expected error %q, got %q", tt.err.Error(), body["error"])
			}
		})
	}
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name     string
		started  bool
		body     interface{}
		expected int
		size     int
	}{
		{"valid", false, ConfigRequest{BufferSize: 4096}, http.StatusOK, 4096},
		{"minimum", false, ConfigRequest{BufferSize: 1}, http.StatusOK, 1},
		{"maximum", false, ConfigRequest{BufferSize: capture.MaxBufferSize}, http.StatusOK, capture.MaxBufferSize},
		{"zero", false, ConfigRequest{BufferSize: 0}, http.StatusBadRequest, capture.DefaultBufferSize},
		{"too large", false, ConfigRequest{BufferSize: capture.MaxBufferSize + 1}, http.StatusBadRequest, capture.DefaultBufferSize},
		{"while started", true, ConfigRequest{BufferSize: 4096}, http.StatusConflict, capture.DefaultBufferSize},
		{"invalid json", false, "{", http.StatusBadRequest, capture.DefaultBufferSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newStubEngine()
			if tt.started {
				engine.Start()
			}
			cfg := config.DefaultConfig()
			handler := New(engine, cfg, "", nil)

			w := do(t, handler, http.MethodPut, "/api/config", tt.body)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body)
			}
			if engine.BufferSize() != tt.size {
				t.Errorf("Expected engine buffer size %d, got %d", tt.size, engine.BufferSize())
			}
			if cfg.BufferSize != tt.size {
				t.Errorf("Expected config buffer size %d, got %d", tt.size, cfg.BufferSize)
			}
		})
	}
}

func TestConfigGetAndPersist(t *testing.T) {
	engine := newStubEngine()
	cfg := config.DefaultConfig()
	path := filepath.Join(t.TempDir(), "config.yaml")
	handler := New(engine, cfg, path, nil)

	if w := do(t, handler, http.MethodPut, "/api/config", ConfigRequest{BufferSize: 9600}); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	w := do(t, handler, http.MethodGet, "/api/config", nil)
	var got ConfigRequest
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.BufferSize != 9600 {
		t.Errorf("Expected buffer_size 9600, got %d", got.BufferSize)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.BufferSize != 9600 {
		t.Errorf("Expected persisted buffer_size 9600, got %d", loaded.BufferSize)
	}

	if w := do(t, handler, http.MethodDelete, "/api/config", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestDevices(t *testing.T) {
	engine := newStubEngine()
	handler := New(engine, nil, "", nil)

	w := do(t, handler, http.MethodGet, "/api/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp DevicesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Backend != "stub" || len(resp.Devices) != 1 || !resp.Devices[0].IsDefault {
		t.Errorf("Unexpected devices response %+v", resp)
	}

	engine.devices = nil
	w = do(t, handler, http.MethodGet, "/api/devices", nil)
	if body := w.Body.String(); !strings.Contains(body, `"devices":[]`) {
		t.Errorf("Expected empty device list, got %s", body)
	}

	engine.listErr = errors.New("backend gone")
	if w := do(t, handler, http.MethodGet, "/api/devices", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

// TestServerIntegration registers routes on the server mux before Start
func TestServerIntegration(t *testing.T) {
	serverConfig := server.DefaultConfig()
	serverConfig.Port = 0
	srv := server.New(serverConfig, nil)

	engine := newStubEngine()
	New(engine, config.DefaultConfig(), "", nil).RegisterRoutes(srv.GetMux())

	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Stop()

	resp, err := http.Post(srv.URL()+"/api/capture/start", "application/json", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL()+"/api/config", bytes.NewBufferString(`{"buffer_size": 100}`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 while started, got %d", resp.StatusCode)
	}
}
