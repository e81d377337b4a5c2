// Package model holds the data shared across linking-pipeline phases:
// per-object loader state, and the process-wide TLS arrangement and
// global symbol table.
package model

import "debug/elf"

// Object is a loaded ELF image tracked by the loader.
type Object struct {
	Name string
	Data []byte // raw file bytes, immutable after load
	ELF  *elf.File

	// Mapping is the anonymous mmap backing this object's PT_LOAD spans.
	// nil if the object has no PT_LOAD segments (nothing to map).
	Mapping []byte

	// Base is the mapping's start address: Mapping's first byte's
	// address. p_vaddr values are direct offsets into Mapping.
	Base uint64

	IsPrimary bool

	HasTLS   bool
	TLSIndex int    // 0 for primary, otherwise an incrementing counter (reserved for future use)
	TLSStart uint64 // offset of this object's slot within the TLS buffer T
	TLSLen   uint64 // valign'd length of the copied slot
}

// TLS is the process-wide TLS arrangement shared by every loaded object.
type TLS struct {
	Buffer      []byte // T: contiguous buffer of size Σ vsize(PT_TLS)
	PrimarySize uint64 // tls_primary: bytes of T reserved for the primary, at the top
	TCB         []byte // one page above T; first word is the thread pointer
	ThreadPtr   uint64 // address installed via ARCH_SET_FS
}

// SymbolTable is the process-global name→address map.
type SymbolTable struct {
	byName map[string]uint64
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]uint64)}
}

// InsertIfAbsent adds name→addr only if name is not already present,
// giving first-inserted precedence. Callers that want the primary
// object's definitions to dominate must insert its symbols first.
func (t *SymbolTable) InsertIfAbsent(name string, addr uint64) {
	if _, ok := t.byName[name]; !ok {
		t.byName[name] = addr
	}
}

// Lookup returns the address for name, or (0, false) if undefined.
func (t *SymbolTable) Lookup(name string) (uint64, bool) {
	addr, ok := t.byName[name]
	return addr, ok
}

// Len returns the number of interned symbols.
func (t *SymbolTable) Len() int { return len(t.byName) }
