// Package tlsalloc implements the TLS Allocator: one contiguous TLS
// block for every loaded object plus a TCB, with the x86-64 thread
// pointer installed via ARCH_SET_FS.
package tlsalloc

import (
	"encoding/binary"
	"unsafe"

	"ldlink/internal/lderrors"
	"ldlink/internal/model"
	"ldlink/internal/platform"
)

// Allocate reserves a tlsSize-byte TLS buffer plus a trailing TCB page,
// installs the thread pointer, and returns the arrangement. primarySize
// is recorded as the primary's reserved top slice of the buffer; it does
// not affect allocation size.
//
// installTCB distinguishes hosts that need a freshly allocated TCB page
// from hosts that reuse an existing one: on the latter, pass false to
// skip the extra page and the ARCH_SET_FS call while keeping the same
// TLS buffer layout.
func Allocate(tlsSize, primarySize uint64, installTCB bool) (*model.TLS, error) {
	if !installTCB {
		buf, err := platform.MapAnon(tlsSize)
		if err != nil {
			return nil, lderrors.New(lderrors.KindMapFailed, "tls", err)
		}
		return &model.TLS{Buffer: buf, PrimarySize: primarySize}, nil
	}

	total := tlsSize + platform.PageSize
	buf, err := platform.MapAnon(total)
	if err != nil {
		return nil, lderrors.New(lderrors.KindMapFailed, "tls", err)
	}

	tls := buf[:tlsSize]
	tcb := buf[tlsSize:total]

	threadPtr := uint64(uintptr(unsafe.Pointer(&tcb[0])))
	binary.LittleEndian.PutUint64(tcb[:8], threadPtr)

	if err := platform.SetThreadPointer(uintptr(threadPtr)); err != nil {
		return nil, lderrors.New(lderrors.KindMapFailed, "tls", err)
	}

	return &model.TLS{
		Buffer:      tls,
		PrimarySize: primarySize,
		TCB:         tcb,
		ThreadPtr:   threadPtr,
	}, nil
}
