package symtab_test

import (
	"testing"

	"ldlink/internal/elfmach"
	"ldlink/internal/elftest"
	"ldlink/internal/layout"
	"ldlink/internal/model"
	"ldlink/internal/symtab"
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
	return obj
}

func TestScanGlobalsInsertsOnlyGlobalDefined(t *testing.T) {
	obj := buildMapped(t, "liba.so", elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 5, Data: []byte{0x90}},
		},
		Syms: []elftest.Sym{
			{Name: "exported_fn", Value: 0x1000, Bind: 1},
			{Name: "local_helper", Value: 0x1008, Bind: 0},
			{Name: "undef_ref", Value: 0, Bind: 1},
		},
	})

	table := model.NewSymbolTable()
	if err := symtab.ScanGlobals(table, obj); err != nil {
		t.Fatalf("ScanGlobals: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("table.Len() = %d, want 1", table.Len())
	}
	addr, ok := table.Lookup("exported_fn")
	if !ok {
		t.Fatalf("Lookup(exported_fn) not found")
	}
	if addr != obj.Base+0x1000 {
		t.Errorf("Lookup(exported_fn) = %#x, want %#x", addr, obj.Base+0x1000)
	}
	if _, ok := table.Lookup("local_helper"); ok {
		t.Errorf("local_helper leaked into the global table")
	}
	if _, ok := table.Lookup("undef_ref"); ok {
		t.Errorf("undefined-value symbol leaked into the global table")
	}
}

func TestScanGlobalsPrimaryPrecedence(t *testing.T) {
	primary := buildMapped(t, "a.out", elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 5, Data: []byte{0x90}},
		},
		Syms: []elftest.Sym{
			{Name: "shared_sym", Value: 0x1000, Bind: 1},
		},
	})
	lib := buildMapped(t, "lib.so", elftest.Object{
		Entry: 0x2000,
		Segments: []elftest.Segment{
			{Vaddr: 0x2000, Flags: 5, Data: []byte{0x90}},
		},
		Syms: []elftest.Sym{
			{Name: "shared_sym", Value: 0x2000, Bind: 1},
		},
	})

	table := model.NewSymbolTable()
	if err := symtab.ScanGlobals(table, primary); err != nil {
		t.Fatalf("ScanGlobals(primary): %v", err)
	}
	if err := symtab.ScanGlobals(table, lib); err != nil {
		t.Fatalf("ScanGlobals(lib): %v", err)
	}

	addr, _ := table.Lookup("shared_sym")
	if addr != primary.Base+0x1000 {
		t.Errorf("shared_sym resolved to %#x, want the primary's definition %#x", addr, primary.Base+0x1000)
	}
}
