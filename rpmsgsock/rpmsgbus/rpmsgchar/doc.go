// Package rpmsgchar implements rpmsgbus.Bus against the Linux RPMsg
// character-device driver (/dev/rpmsg_ctrl*, /dev/rpmsg*). It is the one
// concrete stand-in for the underlying RPMsg device: the rest of this
// repository is exercised against simbus in tests and the demo CLI, but a
// real deployment on an asymmetric-multiprocessing SoC links this package
// in instead.
//
// The Linux char-device API is not truly zero-copy the way a bare-metal
// NuttX-style driver is: RPMSG_CREATE_EPT_IOCTL hands back a file
// descriptor and ordinary read/write syscalls move bytes through a kernel
// copy. GetTXBuffer here returns a plain heap buffer
// rather than a pool-backed region; everything above this package (the
// Connection core) is unaffected, since rpmsgbus.TXBuffer never promised
// zero-copy to its callers, only an acquire/fill/submit-or-release
// lifecycle.
//
// Device discovery (WatchDeviceCreated/WatchDeviceDestroyed) and name
// service matching are approximated by watching /dev for the rpmsg_ctrl.<cpu>
// control device nodes the kernel driver creates, the same syscall-level
// style internal/logger/terminal_linux.go uses for its ioctls. This is a
// best-effort surface, not a faithful reimplementation of the kernel's
// internal name-service protocol, which is not observable from userspace.
package rpmsgchar
