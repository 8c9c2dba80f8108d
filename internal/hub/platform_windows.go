//go:build windows

package hub

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// osVersion returns the Windows version, e.g. "10.0.22631".
func osVersion() string {
	v := windows.RtlGetVersion()
	return fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)
}
