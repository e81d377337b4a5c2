package reloc_test

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"ldlink/internal/elfmach"
	"ldlink/internal/elftest"
	"ldlink/internal/layout"
	"ldlink/internal/llog"
	"ldlink/internal/model"
	"ldlink/internal/reloc"
	"ldlink/internal/segcopy"
)

func buildMapped(t *testing.T, name string, o elftest.Object) *model.Object {
	t.Helper()
	data := elftest.Build(o)
	f, err := elfmach.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	obj := &model.Object{Name: name, Data: data, ELF: f}
	if err := layout.Plan(obj); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if err := segcopy.NewCopier(nil).Copy(obj); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	return obj
}

func readU64(mapping []byte, off uint64) uint64 {
	return binary.LittleEndian.Uint64(mapping[off : off+8])
}

func TestFirstPassRelative(t *testing.T) {
	obj := buildMapped(t, "a.out", elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 6, Data: make([]byte, 0x20), Memsz: 0x1000},
		},
		Rela: []elftest.Rela{
			{Offset: 0x1008, Type: uint32(elf.R_X86_64_RELATIVE), Addend: 0x50},
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
	if len(deferred) != 0 {
		t.Errorf("FirstPass deferred %d relocations, want 0 for RELATIVE", len(deferred))
	}
	got := readU64(obj.Mapping, 0x1008)
	want := obj.Base + 0x50
	if got != want {
		t.Errorf("R_X86_64_RELATIVE wrote %#x, want B+A=%#x", got, want)
	}
}

func TestFirstPassGlobDatResolvesAgainstSymbolTable(t *testing.T) {
	obj := buildMapped(t, "a.out", elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 6, Data: make([]byte, 0x20), Memsz: 0x1000},
		},
		Syms: []elftest.Sym{
			{Name: "external_fn", Value: 0, Bind: 1}, // undefined reference
		},
		Rela: []elftest.Rela{
			{Offset: 0x1010, Sym: 1, Type: uint32(elf.R_X86_64_GLOB_DAT)},
		},
	})

	symbols := model.NewSymbolTable()
	symbols.InsertIfAbsent("external_fn", 0xdeadbeef)

	rels, err := elfmach.ParseRelocations(obj.ELF)
	if err != nil {
		t.Fatalf("ParseRelocations: %v", err)
	}
	if _, err := reloc.FirstPass(obj, symbols, rels, llog.NewNop()); err != nil {
		t.Fatalf("FirstPass: %v", err)
	}
	got := readU64(obj.Mapping, 0x1010)
	if got != 0xdeadbeef {
		t.Errorf("R_X86_64_GLOB_DAT wrote %#x, want 0xdeadbeef", got)
	}
}

func TestFirstPassUndefinedResolvesToZero(t *testing.T) {
	obj := buildMapped(t, "a.out", elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 6, Data: make([]byte, 0x20), Memsz: 0x1000},
		},
		Syms: []elftest.Sym{
			{Name: "never_defined", Value: 0, Bind: 1},
		},
		Rela: []elftest.Rela{
			{Offset: 0x1010, Sym: 1, Type: uint32(elf.R_X86_64_GLOB_DAT)},
		},
	})

	symbols := model.NewSymbolTable() // left empty: never_defined stays unresolved
	rels, err := elfmach.ParseRelocations(obj.ELF)
	if err != nil {
		t.Fatalf("ParseRelocations: %v", err)
	}
	if _, err := reloc.FirstPass(obj, symbols, rels, llog.NewNop()); err != nil {
		t.Fatalf("FirstPass: %v", err)
	}
	if got := readU64(obj.Mapping, 0x1010); got != 0 {
		t.Errorf("undefined strong reference wrote %#x, want 0", got)
	}
}

func TestFirstPassDefersIRelative(t *testing.T) {
	obj := buildMapped(t, "a.out", elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 6, Data: make([]byte, 0x20), Memsz: 0x1000},
		},
		Rela: []elftest.Rela{
			{Offset: 0x1018, Type: uint32(elf.R_X86_64_IRELATIVE), Addend: 0x30},
		},
	})

	symbols := model.NewSymbolTable()
	rels, err := elfmach.ParseRelocations(obj.ELF)
	if err != nil {
		t.Fatalf("ParseRelocations: %v", err)
	}
	deferred, err := reloc.FirstPass(obj, symbols, rels, llog.NewNop())
	if err != nil {
		t.Fatalf("FirstPass: %v", err)
	}
	if len(deferred) != 1 {
		t.Fatalf("FirstPass deferred %d relocations, want 1 for IRELATIVE", len(deferred))
	}
	if deferred[0].Callee != obj.Base+0x30 {
		t.Errorf("deferred.Callee = %#x, want B+A=%#x", deferred[0].Callee, obj.Base+0x30)
	}
	// The IRELATIVE slot itself must be untouched until the second pass.
	if got := readU64(obj.Mapping, 0x1018); got != 0 {
		t.Errorf("IRELATIVE slot written during FirstPass: %#x", got)
	}
}

func TestFirstPassMissingSymbolIndex(t *testing.T) {
	obj := buildMapped(t, "a.out", elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 6, Data: make([]byte, 0x20), Memsz: 0x1000},
		},
		Rela: []elftest.Rela{
			{Offset: 0x1008, Sym: 7, Type: uint32(elf.R_X86_64_GLOB_DAT)}, // no symbol 7 exists
		},
	})

	symbols := model.NewSymbolTable()
	rels, err := elfmach.ParseRelocations(obj.ELF)
	if err != nil {
		t.Fatalf("ParseRelocations: %v", err)
	}
	if _, err := reloc.FirstPass(obj, symbols, rels, llog.NewNop()); err == nil {
		t.Errorf("FirstPass with an out-of-range symbol index returned nil error")
	}
}
