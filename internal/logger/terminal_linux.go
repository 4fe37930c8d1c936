//go:build linux

package logger

import "golang.org/x/sys/unix"

// isTerminal reports whether fd refers to a terminal, via a TCGETS ioctl
// issued through golang.org/x/sys/unix (the same package rpmsgchar uses for
// its own ioctls).
func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}
