package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/yok-tottii/EzCapture/internal/audio"
	"github.com/yok-tottii/EzCapture/internal/capture"
	"github.com/yok-tottii/EzCapture/internal/config"
	"github.com/yok-tottii/EzCapture/internal/logger"
	"github.com/yok-tottii/EzCapture/internal/telemetry"
)

// Engine is the capture control surface the API drives
type Engine interface {
	Start() error
	Stop()
	Configure(bufferSize int) error
	BufferSize() int
	State() capture.State
	Format() audio.Format
	Stats() telemetry.Snapshot
	Backend() string
	ListDevices() ([]audio.Device, error)
}

// Handler manages API endpoints
type Handler struct {
	engine        Engine
	config        *config.Config
	configPath    string
	log           *logger.Logger
	onStateChange func(capture.State)
}

// New creates a new API handler. When configPath is empty, accepted
// configuration changes are applied but not persisted.
func New(engine Engine, cfg *config.Config, configPath string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		engine:     engine,
		config:     cfg,
		configPath: configPath,
		log:        log.Named("api"),
	}
}

// OnStateChange sets a callback run after start and stop requests
func (h *Handler) OnStateChange(fn func(capture.State)) {
	h.onStateChange = fn
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/capture/start", h.handleStart)
	mux.HandleFunc("/api/capture/stop", h.handleStop)
	mux.HandleFunc("/api/config", h.handleConfig)
	mux.HandleFunc("/api/devices", h.handleDevices)
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	State      string             `json:"state"`
	Backend    string             `json:"backend"`
	BufferSize int                `json:"buffer_size"`
	Format     *audio.Format      `json:"format,omitempty"`
	Stats      telemetry.Snapshot `json:"stats"`
}

// ConfigRequest is the body of PUT /api/config and of its responses
type ConfigRequest struct {
	BufferSize int `json:"buffer_size"`
}

// DevicesResponse is the body of GET /api/devices
type DevicesResponse struct {
	Backend string         `json:"backend"`
	Devices []audio.Device `json:"devices"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  err.Error(),
	})
}

func (h *Handler) status() StatusResponse {
	resp := StatusResponse{
		State:      h.engine.State().String(),
		Backend:    h.engine.Backend(),
		BufferSize: h.engine.BufferSize(),
		Stats:      h.engine.Stats(),
	}
	if format := h.engine.Format(); format.FrameSize() > 0 {
		resp.Format = &format
	}
	return resp
}

// handleStatus handles GET /api/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// handleStart handles POST /api/capture/start
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.engine.Start(); err != nil {
		h.log.Error("Capture start via API failed: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrClosed) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	h.notify()

	writeJSON(w, http.StatusOK, h.status())
}

// handleStop handles POST /api/capture/stop
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.engine.Stop()
	h.notify()

	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) notify() {
	if h.onStateChange != nil {
		h.onStateChange(h.engine.State())
	}
}

// handleConfig handles GET and PUT /api/config
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, ConfigRequest{BufferSize: h.engine.BufferSize()})
	case http.MethodPut:
		h.putConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// putConfig applies a new buffer size and persists it
func (h *Handler) putConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := h.engine.Configure(req.BufferSize); err != nil {
		switch {
		case errors.Is(err, capture.ErrAlreadyStarted):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, capture.ErrBufferSize):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	if h.config != nil {
		h.config.SetBufferSize(req.BufferSize)
		if h.configPath != "" {
			// the engine already runs with the new size; a save failure is only logged
			if err := h.config.Save(h.configPath); err != nil {
				h.log.Warn("Failed to save config: %v", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, ConfigRequest{BufferSize: h.engine.BufferSize()})
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices, err := h.engine.ListDevices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to list audio devices: %w", err))
		return
	}
	if devices == nil {
		devices = []audio.Device{}
	}

	writeJSON(w, http.StatusOK, DevicesResponse{
		Backend: h.engine.Backend(),
		Devices: devices,
	})
}
