package permissions

import "os/exec"

// the consent store is not queried; capture errors surface as E_ACCESSDENIED
func microphoneStatus() PermissionStatus {
	return PermissionNotDetermined
}

func openMicrophoneSettings() error {
	return exec.Command("explorer.exe", "ms-settings:privacy-microphone").Start()
}
