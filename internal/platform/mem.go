// Package platform wraps the kernel primitives the loader needs from the
// host: anonymous memory mapping, page protection, and the architectural
// thread pointer. x86-64/Linux only.
package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PageSize is the x86-64 page size.
const PageSize = 0x1000

// Prot is a {R,W,X} protection bitmask, independent of the unix package's
// PROT_* encoding so callers (protect, layout, tlsalloc) don't import
// golang.org/x/sys/unix directly.
type Prot int

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

func (p Prot) toUnix() int {
	var out int
	if p&ProtRead != 0 {
		out |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		out |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		out |= unix.PROT_EXEC
	}
	return out
}

// MapAnon allocates a size-byte anonymous, private RW mapping.
func MapAnon(size uint64) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return b, nil
}

// Protect changes the protection of a previously mapped byte slice in
// place.
func Protect(region []byte, prot Prot) error {
	if len(region) == 0 {
		return nil
	}
	if err := unix.Mprotect(region, prot.toUnix()); err != nil {
		return fmt.Errorf("mprotect: %w", err)
	}
	return nil
}

// SetThreadPointer installs addr as the x86-64 thread pointer (FS base)
// for the calling OS thread via ARCH_SET_FS.
func SetThreadPointer(addr uintptr) error {
	const archSetFS = 0x1002
	_, _, errno := unix.Syscall(unix.SYS_ARCH_PRCTL, archSetFS, uintptr(addr), 0)
	if errno != 0 {
		return fmt.Errorf("arch_prctl(ARCH_SET_FS): %w", errno)
	}
	return nil
}
