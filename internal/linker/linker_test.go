package linker_test

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"ldlink/internal/elftest"
	"ldlink/internal/linker"
	"ldlink/internal/llog"
	"ldlink/internal/trace"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
	return path
}

func TestLinkStandaloneObject(t *testing.T) {
	dir := t.TempDir()
	data := elftest.Build(elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 5, Data: []byte{0x90, 0x90, 0xc3}, Memsz: 0x1000},
		},
	})
	path := writeFile(t, dir, "a.out", data)

	lk := linker.New(dir, llog.NewNop())
	if err := lk.Load("a.out", path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry, err := lk.Link("a.out")
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if entry == 0 {
		t.Errorf("Link returned entry=0")
	}
}

func TestLinkResolvesJumpSlotAgainstDependency(t *testing.T) {
	dir := t.TempDir()

	lib := elftest.Build(elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 5, Data: []byte{0x90}, Memsz: 0x1000},
		},
		Syms: []elftest.Sym{
			{Name: "helper", Value: 0x1000, Bind: 1},
		},
	})
	writeFile(t, dir, "libhelper.so", lib)

	primary := elftest.Build(elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 5, Data: []byte{0x90}, Memsz: 0x1000},
			{Vaddr: 0x2000, Flags: 6, Data: make([]byte, 0x10), Memsz: 0x1000},
		},
		Needed: []string{"libhelper.so"},
		Syms: []elftest.Sym{
			{Name: "helper", Value: 0, Bind: 1}, // imported, undefined here
		},
		RelaPlt: []elftest.Rela{
			{Offset: 0x2008, Sym: 1, Type: uint32(elf.R_X86_64_JMP_SLOT)},
		},
	})
	path := writeFile(t, dir, "a.out", primary)

	lk := linker.New(dir, llog.NewNop())
	if err := lk.Load("a.out", path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := lk.Link("a.out"); err != nil {
		t.Fatalf("Link: %v", err)
	}
}

func TestLinkMissingPrimaryEntry(t *testing.T) {
	lk := linker.New(".", llog.NewNop())
	if _, err := lk.Link("never-loaded"); err == nil {
		t.Errorf("Link on an unloaded primary name returned nil error")
	}
}

func TestLinkTracksPhasesAndEvents(t *testing.T) {
	dir := t.TempDir()
	data := elftest.Build(elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 5, Data: []byte{0x90}, Memsz: 0x1000},
		},
	})
	path := writeFile(t, dir, "a.out", data)

	lk := linker.New(dir, llog.NewNop())
	var phases []string
	lk.OnPhase = func(p string) { phases = append(phases, p) }
	var events []*trace.Event
	lk.OnEvent = func(e *trace.Event) { events = append(events, e) }

	if err := lk.Load("a.out", path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := lk.Link("a.out"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(phases) == 0 {
		t.Errorf("OnPhase was never invoked during Link")
	}
	if len(events) == 0 {
		t.Errorf("OnEvent was never invoked during Link")
	}
}
