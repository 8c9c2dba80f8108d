package hub

import "runtime"

// Platform describes the installation to the remote service.
type Platform struct {
	OS        string `json:"os"`
	OSVersion string `json:"os_version"`
	Arch      string `json:"arch"`
}

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS, OSVersion: osVersion(), Arch: runtime.GOARCH}
}
