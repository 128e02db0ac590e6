package notification

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/yok-tottii/EzCapture/internal/logger"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeWarning is a warning notification
	TypeWarning NotificationType = "warning"
	// TypeError is an error notification
	TypeError NotificationType = "error"
)

// Notification represents a desktop notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// ErrUnsupported is returned where no notification command exists
var ErrUnsupported = fmt.Errorf("notification: not supported on %s", runtime.GOOS)

// NotificationManager sends desktop notifications through the platform's command-line notifier
type NotificationManager struct {
	appName string
	log     *logger.Logger
	goos    string
	run     func(name string, args ...string) error
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(appName string, log *logger.Logger) *NotificationManager {
	if log == nil {
		log = logger.Nop()
	}
	return &NotificationManager{
		appName: appName,
		log:     log.Named("notification"),
		goos:    runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send delivers a notification to the user
func (nm *NotificationManager) Send(notification *Notification) error {
	if notification == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	name, args, err := buildCommand(nm.goos, notification)
	if err != nil {
		nm.log.Info("%s: %s", notification.Title, notification.Message)
		return err
	}

	if err := nm.run(name, args...); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// buildCommand returns the notifier invocation for goos
func buildCommand(goos string, n *Notification) (string, []string, error) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(n.Message), escapeAppleScript(n.Title))
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		urgency := "normal"
		switch n.Type {
		case TypeError:
			urgency = "critical"
		case TypeInfo:
			urgency = "low"
		}
		return "notify-send", []string{"--urgency=" + urgency, "--", n.Title, n.Message}, nil
	default:
		return "", nil, ErrUnsupported
	}
}

// escapeAppleScript escapes special characters for an AppleScript string literal
func escapeAppleScript(s string) string {
	// backslashes first to avoid double-escaping
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}

// SendInfo sends an informational notification
func (nm *NotificationManager) SendInfo(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeInfo})
}

// SendWarning sends a warning notification
func (nm *NotificationManager) SendWarning(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeWarning})
}

// SendError sends an error notification
func (nm *NotificationManager) SendError(title, message string) error {
	return nm.Send(&Notification{Title: title, Message: message, Type: TypeError})
}

// CaptureStarted sends a notification that capture has started
func (nm *NotificationManager) CaptureStarted(device string) error {
	return nm.SendInfo(nm.appName, "Capturing from "+device)
}

// CaptureStopped sends a notification that capture has stopped
func (nm *NotificationManager) CaptureStopped() error {
	return nm.SendInfo(nm.appName, "Capture stopped")
}

// CaptureFailed sends a notification that capture could not start
func (nm *NotificationManager) CaptureFailed(reason string) error {
	message := "Capture failed"
	if reason != "" {
		message += ": " + reason
	}
	return nm.SendError(nm.appName, message)
}

// DeviceLost sends a notification that the capture device went away
func (nm *NotificationManager) DeviceLost() error {
	return nm.SendError(nm.appName, "The audio device was disconnected or reconfigured. Reconnect it and start again.")
}

// MicrophonePermissionDenied sends a notification that microphone access is blocked
func (nm *NotificationManager) MicrophonePermissionDenied() error {
	return nm.SendWarning(nm.appName, "Microphone access is not granted. Allow it in the system privacy settings.")
}
