package reloc_test

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"ldlink/internal/elfmach"
	"ldlink/internal/elftest"
	"ldlink/internal/llog"
	"ldlink/internal/model"
	"ldlink/internal/protect"
	"ldlink/internal/reloc"
)

// ifuncResolver is `mov eax, 0x2a; ret`, a zero-argument resolver that
// returns a fixed address (42) without touching any other register.
var ifuncResolver = []byte{0xb8, 0x2a, 0x00, 0x00, 0x00, 0xc3}

func TestSecondPassExecutesIRelativeResolver(t *testing.T) {
	obj := buildMapped(t, "a.out", elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 5, Data: ifuncResolver, Memsz: 0x1000}, // R+X: the resolver itself
			{Vaddr: 0x2000, Flags: 6, Data: make([]byte, 0x10), Memsz: 0x1000}, // R+W: the GOT slot
		},
		Rela: []elftest.Rela{
			{Offset: 0x2008, Type: uint32(elf.R_X86_64_IRELATIVE), Addend: 0x1000},
		},
	})
	rels, err := elfmach.ParseRelocations(obj.ELF)
	if err != nil {
		t.Fatalf("ParseRelocations: %v", err)
	}
	symbols := model.NewSymbolTable()
	deferred, err := reloc.FirstPass(obj, symbols, rels, llog.NewNop())
	if err != nil {
		t.Fatalf("FirstPass: %v", err)
	}
	if len(deferred) != 1 {
		t.Fatalf("FirstPass deferred %d relocations, want 1", len(deferred))
	}
	if err := protect.Apply(obj, llog.NewNop()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := reloc.SecondPass(deferred, llog.NewNop()); err != nil {
		t.Skipf("IRELATIVE sandbox unavailable in this environment: %v", err)
	}

	got := binary.LittleEndian.Uint64(obj.Mapping[0x2008 : 0x2008+8])
	if got != 42 {
		t.Errorf("IRELATIVE slot = %d, want 42 (the resolver's return value)", got)
	}
}

