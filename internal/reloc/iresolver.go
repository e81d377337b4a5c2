// R_X86_64_IRELATIVE resolvers are ordinary machine code living inside an
// already-mapped, already-protected PT_LOAD segment. Go cannot call a raw
// computed function pointer without cgo or hand-written assembly, so this
// sandbox mirrors the resolver's own page(s) into a Unicorn x86-64 context
// at their real addresses and executes the call there.
package reloc

import (
	"encoding/binary"
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"ldlink/internal/elfmach"
	"ldlink/internal/lderrors"
	"ldlink/internal/llog"
	"ldlink/internal/model"
)

const (
	sandboxStackBase = uint64(0x7f0000000000)
	sandboxStackSize = uint64(0x4000)
	sandboxRetAddr   = uint64(0x7f0000000000) - elfmach.Page // unmapped: traps once the resolver returns
)

// IResolverSandbox executes IRELATIVE resolver functions in a contained
// x86-64 Unicorn VM that mirrors the real process's mapped pages.
type IResolverSandbox struct {
	mu     uc.Unicorn
	mapped map[uint64]uint64 // page-aligned base -> size, already MemMap'd
}

// NewIResolverSandbox starts a fresh Unicorn x86-64 context.
func NewIResolverSandbox() (*IResolverSandbox, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return nil, fmt.Errorf("create unicorn x86-64 context: %w", err)
	}
	if err := mu.MemMap(sandboxStackBase, sandboxStackSize); err != nil {
		mu.Close()
		return nil, fmt.Errorf("map sandbox stack: %w", err)
	}
	return &IResolverSandbox{mu: mu, mapped: make(map[uint64]uint64)}, nil
}

// Close releases the Unicorn context.
func (s *IResolverSandbox) Close() error {
	return s.mu.Close()
}

// mirror ensures obj's mapping is visible in the sandbox at its real
// base address, copying current bytes (including earlier relocation
// writes and the first protection pass's effects on their content).
func (s *IResolverSandbox) mirror(obj *model.Object) error {
	if obj.Mapping == nil {
		return nil
	}
	base := obj.Base
	size := uint64(len(obj.Mapping))
	pageBase := base &^ (elfmach.Page - 1)
	pageSize := ((base + size - pageBase + elfmach.Page - 1) / elfmach.Page) * elfmach.Page

	if existing, ok := s.mapped[pageBase]; !ok || existing < pageSize {
		if ok {
			_ = s.mu.MemUnmap(pageBase, existing)
		}
		if err := s.mu.MemMap(pageBase, pageSize); err != nil {
			return fmt.Errorf("mirror map %s: %w", obj.Name, err)
		}
		s.mapped[pageBase] = pageSize
	}
	if err := s.mu.MemWrite(base, obj.Mapping); err != nil {
		return fmt.Errorf("mirror write %s: %w", obj.Name, err)
	}
	return nil
}

// Call executes the zero-argument resolver at callee and returns its u64
// result, which the caller writes into the relocation's target location.
func (s *IResolverSandbox) Call(callee uint64) (uint64, error) {
	retBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(retBuf, sandboxRetAddr)

	sp := sandboxStackBase + sandboxStackSize - 0x100
	if err := s.mu.MemWrite(sp, retBuf); err != nil {
		return 0, fmt.Errorf("write return address: %w", err)
	}
	if err := s.mu.RegWrite(uc.X86_REG_RSP, sp); err != nil {
		return 0, fmt.Errorf("set RSP: %w", err)
	}

	// Best-effort run: the resolver's own `ret` jumps to the unmapped
	// sandboxRetAddr, which Unicorn reports as a fetch fault after RAX
	// already holds the computed result.
	_ = s.mu.Start(callee, sandboxRetAddr)

	rax, err := s.mu.RegRead(uc.X86_REG_RAX)
	if err != nil {
		return 0, fmt.Errorf("read RAX: %w", err)
	}
	return rax, nil
}

// SecondPass executes every deferred IRELATIVE relocation and writes its
// resolver's return value at P, in object iteration order.
func SecondPass(deferred []Deferred, log *llog.Logger) error {
	if len(deferred) == 0 {
		return nil
	}
	if log == nil {
		log = llog.NewNop()
	}

	sandbox, err := NewIResolverSandbox()
	if err != nil {
		return err
	}
	defer sandbox.Close()

	mirrored := make(map[string]bool)
	for _, d := range deferred {
		if !mirrored[d.Obj.Name] {
			if err := sandbox.mirror(d.Obj); err != nil {
				return err
			}
			mirrored[d.Obj.Name] = true
		}

		value, err := sandbox.Call(d.Callee)
		if err != nil {
			return lderrors.New(lderrors.KindMissingSymbolIndex, d.Obj.Name,
				fmt.Errorf("ifunc resolver at %#x: %w", d.Callee, err))
		}

		offsetInMapping := d.Offset - d.Obj.Base
		if err := writeU64(d.Obj, offsetInMapping, value); err != nil {
			return err
		}
		log.Reloc(d.Obj.Name, "R_X86_64_IRELATIVE", offsetInMapping, value)
	}
	return nil
}
