package hotkey

import (
	"fmt"
	"strings"
	"sync"

	"golang.design/x/hotkey"
)

// TriggerMode defines how the hotkey controls capture
type TriggerMode int

const (
	// PressToHold mode: capture while the key is held down
	PressToHold TriggerMode = iota
	// Toggle mode: first press starts, second press stops
	Toggle
)

// String returns the config name of the mode
func (m TriggerMode) String() string {
	switch m {
	case PressToHold:
		return "press-to-hold"
	case Toggle:
		return "toggle"
	default:
		return "unknown"
	}
}

// ParseMode converts a config string to a TriggerMode
func ParseMode(s string) (TriggerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "press-to-hold":
		return PressToHold, nil
	case "toggle":
		return Toggle, nil
	default:
		return PressToHold, fmt.Errorf("unknown trigger mode %q", s)
	}
}

// EventType represents the type of hotkey event
type EventType int

const (
	// Pressed means capture should start
	Pressed EventType = iota
	// Released means capture should stop
	Released
)

// Event represents a hotkey event
type Event struct {
	Type EventType
}

// Config holds hotkey configuration
type Config struct {
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
	Mode      TriggerMode
}

// Settings is the user-facing description of a hotkey
type Settings struct {
	Ctrl, Shift, Alt, Cmd bool
	Key                   string
	Mode                  string
}

// ParseConfig resolves settings to platform modifiers and key codes
func ParseConfig(s Settings) (Config, error) {
	key, err := ParseKey(s.Key)
	if err != nil {
		return Config{}, err
	}
	mode, err := ParseMode(s.Mode)
	if err != nil {
		return Config{}, err
	}
	mods := modifiers(s.Ctrl, s.Shift, s.Alt, s.Cmd)
	if len(mods) == 0 {
		return Config{}, fmt.Errorf("hotkey needs at least one modifier")
	}
	return Config{Modifiers: mods, Key: key, Mode: mode}, nil
}

// Manager manages global hotkey registration and events
type Manager struct {
	hk        *hotkey.Hotkey
	config    Config
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a new hotkey manager with the default Ctrl+Alt+Space binding
func New() *Manager {
	return &Manager{
		config: Config{
			Modifiers: modifiers(true, false, true, false),
			Key:       hotkey.KeySpace,
			Mode:      PressToHold,
		},
		eventChan: make(chan Event, 10),
		stopChan:  make(chan struct{}),
	}
}

// Register registers the hotkey with the system
func (m *Manager) Register(config Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkey is already running, call Close() first")
	}

	m.config = config

	// channels may have been closed by a previous Close()
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 10)

	hk := hotkey.New(m.config.Modifiers, m.config.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", FormatHotkey(config.Modifiers, config.Key), err)
	}

	m.hk = hk
	m.running = true

	m.wg.Add(1)
	go m.listen(hk, m.config.Mode, m.eventChan, m.stopChan)

	return nil
}

// listen translates key transitions into capture events
func (m *Manager) listen(hk *hotkey.Hotkey, mode TriggerMode, events chan<- Event, stop <-chan struct{}) {
	defer m.wg.Done()

	tm := newTranslator(mode)
	for {
		select {
		case <-hk.Keydown():
			if ev, ok := tm.down(); ok {
				m.send(events, stop, ev)
			}
		case <-hk.Keyup():
			if ev, ok := tm.up(); ok {
				m.send(events, stop, ev)
			}
		case <-stop:
			return
		}
	}
}

func (m *Manager) send(events chan<- Event, stop <-chan struct{}, ev Event) {
	select {
	case events <- ev:
	case <-stop:
	}
}

// translator maps key transitions to events for one trigger mode
type translator struct {
	mode   TriggerMode
	active bool
}

func newTranslator(mode TriggerMode) *translator {
	return &translator{mode: mode}
}

func (t *translator) down() (Event, bool) {
	switch t.mode {
	case Toggle:
		t.active = !t.active
		if t.active {
			return Event{Type: Pressed}, true
		}
		return Event{Type: Released}, true
	default:
		return Event{Type: Pressed}, true
	}
}

func (t *translator) up() (Event, bool) {
	if t.mode == PressToHold {
		return Event{Type: Released}, true
	}
	return Event{}, false
}

// Events returns the event channel for receiving hotkey events
func (m *Manager) Events() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventChan
}

// Close unregisters the hotkey and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var unregisterErr error

	close(m.stopChan)
	m.wg.Wait()

	// cleanup continues even when Unregister fails
	if m.hk != nil {
		if err := m.hk.Unregister(); err != nil {
			unregisterErr = fmt.Errorf("failed to unregister hotkey: %w", err)
		}
		m.hk = nil
	}

	// consumers observe shutdown as a closed channel
	close(m.eventChan)

	// reset even on error so that Register can be retried
	m.running = false

	return unregisterErr
}

// IsRunning returns whether the hotkey is currently registered and running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetConfig returns a deep copy of the current hotkey configuration
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	configCopy := m.config
	if m.config.Modifiers != nil {
		configCopy.Modifiers = make([]hotkey.Modifier, len(m.config.Modifiers))
		copy(configCopy.Modifiers, m.config.Modifiers)
	}

	return configCopy
}
