package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yok-tottii/EzCapture/internal/api"
	"github.com/yok-tottii/EzCapture/internal/audio"
	"github.com/yok-tottii/EzCapture/internal/capture"
	"github.com/yok-tottii/EzCapture/internal/config"
	"github.com/yok-tottii/EzCapture/internal/hotkey"
	"github.com/yok-tottii/EzCapture/internal/logger"
	"github.com/yok-tottii/EzCapture/internal/notification"
	"github.com/yok-tottii/EzCapture/internal/permissions"
	"github.com/yok-tottii/EzCapture/internal/server"
	"github.com/yok-tottii/EzCapture/internal/telemetry"
	"github.com/yok-tottii/EzCapture/internal/tray"
)

// App holds all application state
type App struct {
	logger     *logger.Logger
	config     *config.Config
	configPath string
	driver     audio.Driver
	engine     *capture.Engine
	httpServer *server.Server
	apiHandler *api.Handler
	hotkeyMgr  *hotkey.Manager
	trayMgr    *tray.Manager
	notifier   notifier
	sink       io.WriteCloser

	stateMu   sync.Mutex
	lastState capture.State
}

// notifier is the subset of notification.NotificationManager the app uses
type notifier interface {
	CaptureStarted(device string) error
	CaptureStopped() error
	CaptureFailed(reason string) error
	DeviceLost() error
	MicrophonePermissionDenied() error
}

// permissionChecker is the subset of permissions.PermissionChecker the app uses
type permissionChecker interface {
	CheckMicrophonePermission() permissions.PermissionStatus
	RequestMicrophonePermission() error
}

// newApp wires logger, driver, engine and HTTP API from the configuration
func newApp() (*App, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logDir, err := cfg.GetLogDir()
	if err != nil {
		return nil, err
	}
	logConfig := logger.DefaultConfig()
	logConfig.LogDir = logDir
	logConfig.Level = level
	logConfig.Console = true

	log, err := logger.New(logConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		logger:     log,
		config:     cfg,
		configPath: path,
		notifier:   notification.NewNotificationManager("EzCapture", log),
	}
	log.Info("EzCapture v%s starting (config %s)", version, path)

	app.checkPermissions(permissions.NewPermissionChecker())

	app.driver, err = audio.OpenDriver(cfg.Backend)
	if err != nil {
		log.Close()
		return nil, err
	}

	policy, _ := capture.ParseOverflowPolicy(cfg.OverflowPolicy)
	app.engine = capture.New(app.driver,
		capture.WithLatency(time.Duration(cfg.LatencyMs)*time.Millisecond),
		capture.WithDevice(cfg.DeviceID),
		capture.WithQueueSize(cfg.QueueSize),
		capture.WithOverflowPolicy(policy),
		capture.WithDiscardOnStop(cfg.DiscardOnStop),
		capture.WithLogger(log),
		capture.WithRecorder(telemetry.NewRecorder(log)),
	)
	if err := app.engine.Configure(cfg.BufferSize); err != nil {
		app.close()
		return nil, err
	}

	if outputPath != "" {
		f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to open output: %w", err)
		}
		app.sink = f
	}

	if cfg.HTTPPort > 0 {
		serverConfig := server.DefaultConfig()
		serverConfig.Port = cfg.HTTPPort
		app.httpServer = server.New(serverConfig, log)
		app.apiHandler = api.New(app.engine, cfg, path, log)
		app.apiHandler.OnStateChange(func(capture.State) { app.syncState() })
		app.apiHandler.RegisterRoutes(app.httpServer.GetMux())
	}

	return app, nil
}

// consume drains delivered chunks until the engine is closed
func (a *App) consume(ctx context.Context) error {
	return capture.Consume(ctx, a.engine.Chunks(), func(c *capture.Chunk) error {
		a.logger.Debug("Chunk %d: %d bytes (%v), %s, session %s", c.Seq(), c.Len(), c.Duration(), c.Format(), c.SessionID())
		if a.sink == nil {
			return nil
		}
		if _, err := a.sink.Write(c.Bytes()); err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}
		return nil
	})
}

// registerHotkey registers the configured hotkey; a failure only disables it
func (a *App) registerHotkey() bool {
	hk := a.config.Clone().Hotkey
	if !hk.Enabled {
		return false
	}

	hkConfig, err := hotkey.ParseConfig(hotkey.Settings{
		Ctrl: hk.Ctrl, Shift: hk.Shift, Alt: hk.Alt, Cmd: hk.Cmd,
		Key: hk.Key, Mode: hk.Mode,
	})
	if err != nil {
		a.logger.Warn("Hotkey disabled: %v", err)
		return false
	}

	a.hotkeyMgr = hotkey.New()
	if err := a.hotkeyMgr.Register(hkConfig); err != nil {
		a.logger.Warn("Hotkey disabled: %v", err)
		a.hotkeyMgr = nil
		return false
	}
	a.logger.Info("Hotkey registered: %s (%s)", hotkey.FormatHotkey(hkConfig.Modifiers, hkConfig.Key), hkConfig.Mode)
	return true
}

// checkPermissions warns about missing microphone access and opens the
// system settings page when access was denied
func (a *App) checkPermissions(pc permissionChecker) {
	status := pc.CheckMicrophonePermission()
	if status == permissions.PermissionAuthorized {
		return
	}
	a.logger.Warn("%s", permissions.GetPermissionStatusMessage(status))
	if status != permissions.PermissionDenied {
		return
	}
	go a.notify(a.notifier.MicrophonePermissionDenied)
	if err := pc.RequestMicrophonePermission(); err != nil {
		a.logger.Warn("Failed to open microphone settings: %v", err)
	}
}

// Start starts capture and reflects the state in the tray
func (a *App) Start() error {
	err := a.engine.Start()
	a.syncState()
	return err
}

// Stop stops capture and reflects the state in the tray
func (a *App) Stop() {
	a.engine.Stop()
	a.syncState()
}

// syncState updates the tray and notifies on a start or stop transition
func (a *App) syncState() {
	state := a.engine.State()

	a.stateMu.Lock()
	changed := state != a.lastState
	a.lastState = state
	a.stateMu.Unlock()

	if a.trayMgr != nil {
		if state == capture.Started {
			a.trayMgr.SetState(tray.StateCapturing)
		} else {
			a.trayMgr.SetState(tray.StateIdle)
		}
	}

	if !changed {
		return
	}
	if state == capture.Started {
		device := a.deviceName()
		go a.notify(func() error { return a.notifier.CaptureStarted(device) })
	} else {
		go a.notify(a.notifier.CaptureStopped)
	}
}

// deviceName returns the name of the configured input device
func (a *App) deviceName() string {
	devices, err := a.engine.ListDevices()
	if err != nil {
		return "the default device"
	}
	current := a.config.Clone().DeviceID
	for _, d := range devices {
		if d.ID == current || (current < 0 && d.IsDefault) {
			return d.Name
		}
	}
	return "the default device"
}

func (a *App) reportError(err error) {
	a.logger.Error("Capture start failed: %v", err)
	if a.trayMgr != nil {
		a.trayMgr.SetState(tray.StateError)
	}

	code, _ := audio.HResultCode(err)
	switch {
	case audio.IsDeviceInvalidated(code):
		go a.notify(a.notifier.DeviceLost)
	case audio.IsAccessDenied(code):
		go a.notify(a.notifier.MicrophonePermissionDenied)
	default:
		go a.notify(func() error { return a.notifier.CaptureFailed(err.Error()) })
	}
}

// notify runs one notification; failures only reach the debug log
func (a *App) notify(send func() error) {
	if err := send(); err != nil {
		a.logger.Debug("Notification not shown: %v", err)
	}
}

// serve runs every front-end until ctx is done, then closes the engine
func (a *App) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.consume(context.Background())
	})

	if a.httpServer != nil {
		g.Go(func() error {
			return a.httpServer.Serve(ctx)
		})
	}

	if a.registerHotkey() {
		g.Go(func() error {
			err := hotkey.Dispatch(ctx, a.hotkeyMgr.Events(), a, a.reportError)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if autoStart {
		if err := a.Start(); err != nil {
			a.reportError(err)
		}
	}

	// closing the engine closes Chunks and ends the consumer
	g.Go(func() error {
		<-ctx.Done()
		if a.hotkeyMgr != nil {
			if err := a.hotkeyMgr.Close(); err != nil {
				a.logger.Warn("%v", err)
			}
		}
		return a.engine.Close()
	})

	return g.Wait()
}

// close releases everything newApp acquired
func (a *App) close() {
	if a.engine != nil {
		a.engine.Close()
		stats := a.engine.Stats()
		a.logger.Info("Captured %d chunks (%d bytes), %d dropped, %d tail bytes discarded",
			stats.Chunks, stats.ChunkBytes, stats.ChunksDropped, stats.TailBytesDropped)
	}
	if a.driver != nil {
		if err := a.driver.Close(); err != nil {
			a.logger.Warn("Failed to close audio driver: %v", err)
		}
	}
	if a.sink != nil {
		a.sink.Close()
	}
	a.logger.Info("EzCapture stopped")
	a.logger.Close()
}

// runHeadless serves until SIGINT or SIGTERM
func runHeadless() error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.serve(ctx)
}

// runTray serves behind a system tray icon until Quit or a signal
func runTray() error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		once    sync.Once
		serveMu sync.Mutex
		served  error
		ready   = make(chan struct{})
		done    = make(chan struct{})
	)

	app.trayMgr = tray.NewManager(tray.Config{
		Logger: app.logger,
		OnReady: func() {
			close(ready)
			app.refreshDevices()
			go func() {
				defer close(done)
				err := app.serve(ctx)
				serveMu.Lock()
				served = err
				serveMu.Unlock()
				app.trayMgr.Quit()
			}()
		},
		OnStart: func() {
			if err := app.Start(); err != nil {
				app.reportError(err)
			}
		},
		OnStop:         app.Stop,
		OnDeviceChange: app.selectDevice,
		OnQuit: func() {
			once.Do(stop)
		},
	})

	app.trayMgr.Run()

	once.Do(stop)
	select {
	case <-ready:
		<-done
	default:
	}

	serveMu.Lock()
	defer serveMu.Unlock()
	return served
}

// selectDevice switches the input device while idle and persists the choice
func (a *App) selectDevice(id int) {
	if err := a.engine.SetDevice(id); err != nil {
		a.logger.Warn("Cannot change device %d: %v", id, err)
		return
	}
	a.config.SetDeviceID(id)
	if err := a.config.Save(a.configPath); err != nil {
		a.logger.Warn("Failed to save config: %v", err)
	}
	a.logger.Info("Input device %d selected", id)
	a.refreshDevices()
}

// refreshDevices fills the tray device menu
func (a *App) refreshDevices() {
	devices, err := a.engine.ListDevices()
	if err != nil {
		a.logger.Warn("Failed to list devices: %v", err)
		return
	}

	current := a.config.Clone().DeviceID
	items := make([]tray.Device, 0, len(devices))
	for _, d := range devices {
		items = append(items, tray.Device{
			ID:        d.ID,
			Name:      d.Name,
			IsDefault: d.IsDefault,
			IsCurrent: d.ID == current || (current < 0 && d.IsDefault),
		})
	}
	a.trayMgr.UpdateDeviceMenu(items)
}
