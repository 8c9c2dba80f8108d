//go:build !(linux || darwin || freebsd || netbsd || openbsd || windows)

package hub

func osVersion() string { return "" }
