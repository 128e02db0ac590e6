package tray

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/getlantern/systray"

	"github.com/yok-tottii/EzCapture/internal/logger"
)

// State represents the current capture state shown in the tray
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateError
)

// String returns the tooltip suffix of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCapturing:
		return "Capturing"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Manager manages the system tray icon and menu
type Manager struct {
	stateMutex      sync.RWMutex
	state           State
	ready           bool
	log             *logger.Logger
	onReadyCallback func()
	onStart         func()
	onStop          func()
	onDeviceChange  func(deviceID int)
	onQuit          func()

	menuStart         *systray.MenuItem
	menuStop          *systray.MenuItem
	menuDevices       *systray.MenuItem
	menuQuit          *systray.MenuItem
	deviceMenuItems   []*systray.MenuItem
	deviceCancelFuncs []context.CancelFunc

	// systray calls for the device submenu
	addDeviceItem  func(parent *systray.MenuItem, title, tooltip string) *systray.MenuItem
	hideDeviceItem func(item *systray.MenuItem)

	iconIdle      []byte
	iconCapturing []byte
	iconError     []byte
}

// Config holds tray manager configuration
type Config struct {
	Logger         *logger.Logger
	OnReady        func() // called once systray is ready
	OnStart        func()
	OnStop         func()
	OnDeviceChange func(deviceID int)
	OnQuit         func()
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{
		state:           StateIdle,
		log:             log.Named("tray"),
		onReadyCallback: config.OnReady,
		onStart:         config.OnStart,
		onStop:          config.OnStop,
		onDeviceChange:  config.OnDeviceChange,
		onQuit:          config.OnQuit,
	}
	m.addDeviceItem = func(parent *systray.MenuItem, title, tooltip string) *systray.MenuItem {
		return parent.AddSubMenuItem(title, tooltip)
	}
	m.hideDeviceItem = func(item *systray.MenuItem) { item.Hide() }

	m.iconIdle = m.loadIconData("idle.png", solidIcon(color.RGBA{0xE3, 0xE3, 0xE3, 0xFF}))
	m.iconCapturing = m.loadIconData("capturing.png", solidIcon(color.RGBA{0xF1, 0x9E, 0x39, 0xFF}))
	m.iconError = m.loadIconData("error.png", solidIcon(color.RGBA{0xE5, 0x3E, 0x3E, 0xFF}))

	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

func (m *Manager) onReady() {
	m.menuStart = systray.AddMenuItem("Start capture", "Start capturing audio")
	m.menuStop = systray.AddMenuItem("Stop capture", "Stop capturing audio")
	m.menuDevices = systray.AddMenuItem("Input device", "Select input device")

	systray.AddSeparator()

	m.menuQuit = systray.AddMenuItem("Quit", "Quit the application")

	m.stateMutex.Lock()
	m.ready = true
	m.applyState()
	m.stateMutex.Unlock()

	go m.handleMenuEvents()

	if m.onReadyCallback != nil {
		m.onReadyCallback()
	}
}

func (m *Manager) onExit() {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.ready = false
	m.cancelDeviceHandlers()
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuStart.ClickedCh:
			if m.onStart != nil {
				m.onStart()
			}
		case <-m.menuStop.ClickedCh:
			if m.onStop != nil {
				m.onStop()
			}
		case <-m.menuQuit.ClickedCh:
			if m.onQuit != nil {
				m.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

// SetState updates the tray icon and menu for the given state
func (m *Manager) SetState(state State) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.state = state
	if m.ready {
		m.applyState()
	}
}

// GetState returns the state last set
func (m *Manager) GetState() State {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

// applyState pushes the state to systray. stateMutex must be held.
func (m *Manager) applyState() {
	systray.SetIcon(m.iconFor(m.state))
	systray.SetTooltip("EzCapture - " + m.state.String())

	if m.state == StateCapturing {
		m.menuStart.Disable()
		m.menuStop.Enable()
	} else {
		m.menuStart.Enable()
		m.menuStop.Disable()
	}
}

func (m *Manager) iconFor(state State) []byte {
	switch state {
	case StateCapturing:
		return m.iconCapturing
	case StateError:
		return m.iconError
	default:
		return m.iconIdle
	}
}

// Device represents an audio device for the menu
type Device struct {
	ID        int
	Name      string
	IsDefault bool
	IsCurrent bool
}

// deviceLabel returns the submenu title of a device
func deviceLabel(d Device) string {
	label := d.Name
	if d.IsDefault {
		label += " (default)"
	}
	if d.IsCurrent {
		label = "✓ " + label
	}
	return label
}

// cancelDeviceHandlers stops the click watchers. stateMutex must be held.
func (m *Manager) cancelDeviceHandlers() {
	for _, cancel := range m.deviceCancelFuncs {
		cancel()
	}
	m.deviceCancelFuncs = nil
}

// UpdateDeviceMenu replaces the device submenu. It may be called from a
// device click handler.
func (m *Manager) UpdateDeviceMenu(devices []Device) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if !m.ready || m.menuDevices == nil {
		return
	}

	m.cancelDeviceHandlers()
	for _, item := range m.deviceMenuItems {
		m.hideDeviceItem(item)
	}
	m.deviceMenuItems = nil

	for _, device := range devices {
		item := m.addDeviceItem(m.menuDevices, deviceLabel(device), device.Name)
		m.deviceMenuItems = append(m.deviceMenuItems, item)

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancelFuncs = append(m.deviceCancelFuncs, cancel)

		go func(ctx context.Context, id int, item *systray.MenuItem) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					if m.onDeviceChange != nil {
						m.onDeviceChange(id)
					}
				}
			}
		}(ctx, device.ID, item)
	}
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// loadIconData loads an icon from assets/icon next to the executable,
// falling back to the generated placeholder
func (m *Manager) loadIconData(filename string, fallback []byte) []byte {
	exe, err := os.Executable()
	if err != nil {
		m.log.Debug("Executable path unavailable: %v", err)
		return fallback
	}

	iconPath := filepath.Join(filepath.Dir(exe), "assets", "icon", filename)
	data, err := os.ReadFile(iconPath)
	if err != nil {
		m.log.Debug("Using placeholder icon for %s: %v", filename, err)
		return fallback
	}

	return data
}

// solidIcon renders a 16x16 filled circle as PNG
func solidIcon(c color.RGBA) []byte {
	const size = 16
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x*2-size+1, y*2-size+1
			if dx*dx+dy*dy <= size*size {
				img.SetRGBA(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
