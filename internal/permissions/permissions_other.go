//go:build !darwin && !windows

package permissions

import "errors"

// no per-application microphone gate exists
func microphoneStatus() PermissionStatus {
	return PermissionAuthorized
}

func openMicrophoneSettings() error {
	return errors.New("permissions: no microphone settings page on this platform")
}
