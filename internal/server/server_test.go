package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testConfig() Config {
	config := DefaultConfig()
	config.Port = 0 // random port
	return config
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Port != 18766 {
		t.Errorf("Expected default port 18766, got %d", config.Port)
	}
	if config.ReadTimeout != 10*time.Second || config.WriteTimeout != 10*time.Second {
		t.Errorf("Unexpected timeouts: %v / %v", config.ReadTimeout, config.WriteTimeout)
	}
	if config.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout 5s, got %v", config.ShutdownTimeout)
	}
}

func TestNew(t *testing.T) {
	server := New(DefaultConfig(), nil)

	if server == nil {
		t.Fatal("Expected server to be created")
	}
	if server.GetMux() == nil {
		t.Fatal("Expected mux to exist before Start")
	}
	if server.IsRunning() {
		t.Error("Server should not be running initially")
	}
}

func TestStartStop(t *testing.T) {
	server := New(testConfig(), nil)
	server.GetMux().HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if !server.IsRunning() {
		t.Error("Server should be running after Start")
	}
	if err := server.Start(); err == nil {
		t.Error("Second Start should fail")
	}

	resp, err := http.Get(server.URL() + "/api/ping")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("Expected pong, got %q", body)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
	if server.IsRunning() {
		t.Error("Server should not be running after Stop")
	}
	if err := server.Stop(); err != nil {
		t.Errorf("Second Stop should be a no-op, got %v", err)
	}
}

func TestServe(t *testing.T) {
	server := New(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !server.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("Server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestURL(t *testing.T) {
	config := DefaultConfig()
	config.Port = 19999
	server := New(config, nil)

	if server.URL() != "http://127.0.0.1:19999" {
		t.Errorf("Unexpected URL %s", server.URL())
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := corsMiddleware(next)

	tests := []struct {
		name        string
		method      string
		origin      string
		wantAllowed bool
		wantStatus  int
	}{
		{"preflight localhost", http.MethodOptions, "http://localhost:3000", true, http.StatusOK},
		{"loopback get", http.MethodGet, "http://127.0.0.1:18766", true, http.StatusTeapot},
		{"foreign origin", http.MethodGet, "http://example.com", false, http.StatusTeapot},
		{"lookalike host", http.MethodGet, "http://localhost.example.com", false, http.StatusTeapot},
		{"no origin", http.MethodGet, "", false, http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			allowed := w.Header().Get("Access-Control-Allow-Origin") != ""
			if allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v", tt.wantAllowed, allowed)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestMultipleStartStop(t *testing.T) {
	for i := 0; i < 3; i++ {
		server := New(testConfig(), nil)

		if err := server.Start(); err != nil {
			t.Fatalf("Iteration %d: Failed to start server: %v", i, err)
		}
		if err := server.Stop(); err != nil {
			t.Fatalf("Iteration %d: Failed to stop server: %v", i, err)
		}
	}
}

func TestPort(t *testing.T) {
	server := New(testConfig(), nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	if server.Port() == 0 {
		t.Error("Expected non-zero port after start")
	}
}
