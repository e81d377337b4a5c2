// Package elfmach holds the x86-64/ELF64 parsing and arithmetic shared by
// every phase of the linking pipeline: page-rounding program headers,
// decoding relocation entries, and resolving symbol bind/value. The ELF
// parser itself is debug/elf; this package is the thin adaptation layer
// the pipeline phases build on.
package elfmach

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// Page is the x86-64 page size assumed throughout the pipeline.
const Page = 0x1000

// PageRound computes the page-aligned vaddr and size for a segment:
// voff = vaddr mod PAGE, vaddr -= voff, vsize = ceil((memsz+voff)/PAGE)*PAGE.
func PageRound(vaddr, memsz uint64) (alignedVaddr, size uint64) {
	voff := vaddr % Page
	alignedVaddr = vaddr - voff
	size = ((memsz + voff + Page - 1) / Page) * Page
	return
}

// LoadBounds folds every PT_LOAD's page-rounded span into [lo, hi).
// hasLoad is false if the object has no PT_LOAD, in which case it is
// skipped entirely rather than mapped.
func LoadBounds(progs []*elf.Prog) (lo, hi uint64, hasLoad bool) {
	lo = ^uint64(0)
	for _, p := range progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		vaddr, size := PageRound(p.Vaddr, p.Memsz)
		if !hasLoad || vaddr < lo {
			lo = vaddr
		}
		if end := vaddr + size; end > hi {
			hi = end
		}
		hasLoad = true
	}
	if !hasLoad {
		lo = 0
	}
	return
}

// TLSSize returns the page-rounded size of an object's PT_TLS segment(s),
// summed (an object has at most one PT_TLS in practice, but the pipeline
// does not assume it).
func TLSSize(progs []*elf.Prog) (size uint64, hasTLS bool) {
	for _, p := range progs {
		if p.Type != elf.PT_TLS {
			continue
		}
		_, vsize := PageRound(p.Vaddr, p.Memsz)
		size += vsize
		hasTLS = true
	}
	return
}

// TLSValign computes the aligned TLS copy size:
// ceil(memsz/align)*align when align > 0, else memsz.
func TLSValign(memsz, align uint64) uint64 {
	if align == 0 {
		return memsz
	}
	return ((memsz + align - 1) / align) * align
}

// Rel is one decoded relocation entry, addend-normalized (0 for REL
// entries, which carry none).
type Rel struct {
	Offset uint64
	Sym    uint32 // 1-based ELF symbol index (0 = none)
	Type   uint32
	Addend int64
}

const (
	relaEntrySize = 24 // r_offset(8) r_info(8) r_addend(8)
	relEntrySize  = 16 // r_offset(8) r_info(8)
)

func decodeRela(data []byte) []Rel {
	var out []Rel
	for i := 0; i+relaEntrySize <= len(data); i += relaEntrySize {
		off := binary.LittleEndian.Uint64(data[i:])
		info := binary.LittleEndian.Uint64(data[i+8:])
		add := int64(binary.LittleEndian.Uint64(data[i+16:]))
		out = append(out, Rel{
			Offset: off,
			Sym:    uint32(info >> 32),
			Type:   uint32(info),
			Addend: add,
		})
	}
	return out
}

func decodeRel(data []byte) []Rel {
	var out []Rel
	for i := 0; i+relEntrySize <= len(data); i += relEntrySize {
		off := binary.LittleEndian.Uint64(data[i:])
		info := binary.LittleEndian.Uint64(data[i+8:])
		out = append(out, Rel{
			Offset: off,
			Sym:    uint32(info >> 32),
			Type:   uint32(info),
		})
	}
	return out
}

// Relocations holds the three relocation tables the pipeline processes,
// in the order they must be applied.
type Relocations struct {
	Dynrelas  []Rel // .rela.dyn
	Dynrels   []Rel // .rel.dyn
	Pltrelocs []Rel // .rela.plt / .rel.plt
}

// All returns the relocation entries in the pipeline's required iteration
// order: dynrelas ⧺ dynrels ⧺ pltrelocs.
func (r Relocations) All() []Rel {
	out := make([]Rel, 0, len(r.Dynrelas)+len(r.Dynrels)+len(r.Pltrelocs))
	out = append(out, r.Dynrelas...)
	out = append(out, r.Dynrels...)
	out = append(out, r.Pltrelocs...)
	return out
}

// ParseRelocations decodes the dynamic relocation sections of f.
func ParseRelocations(f *elf.File) (Relocations, error) {
	var r Relocations
	for _, sec := range f.Sections {
		switch sec.Name {
		case ".rela.dyn":
			data, err := sec.Data()
			if err != nil {
				return r, fmt.Errorf("read %s: %w", sec.Name, err)
			}
			r.Dynrelas = decodeRela(data)
		case ".rel.dyn":
			data, err := sec.Data()
			if err != nil {
				return r, fmt.Errorf("read %s: %w", sec.Name, err)
			}
			r.Dynrels = decodeRel(data)
		case ".rela.plt":
			data, err := sec.Data()
			if err != nil {
				return r, fmt.Errorf("read %s: %w", sec.Name, err)
			}
			r.Pltrelocs = append(r.Pltrelocs, decodeRela(data)...)
		case ".rel.plt":
			data, err := sec.Data()
			if err != nil {
				return r, fmt.Errorf("read %s: %w", sec.Name, err)
			}
			r.Pltrelocs = append(r.Pltrelocs, decodeRel(data)...)
		}
	}
	return r, nil
}

// SymByIndex builds a lookup from 1-based ELF dynsym index to the decoded
// symbol, accounting for debug/elf's DynamicSymbols() silently skipping
// the STN_UNDEF entry at index 0 (so array index i corresponds to ELF
// symbol index i+1).
func SymByIndex(dynsyms []elf.Symbol) map[uint32]elf.Symbol {
	m := make(map[uint32]elf.Symbol, len(dynsyms))
	for i, sym := range dynsyms {
		m[uint32(i+1)] = sym
	}
	return m
}

// IsGlobalDefined reports whether sym is a GLOBAL binding with a nonzero
// value, the criterion for exporting a symbol into the global table.
func IsGlobalDefined(sym elf.Symbol) bool {
	return elf.ST_BIND(sym.Info) == elf.STB_GLOBAL && sym.Value != 0
}

// Parse decodes raw file bytes as an ELF64 little-endian x86-64 object.
func Parse(data []byte) (*elf.File, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("unsupported ELF class/encoding: %v/%v", f.Class, f.Data)
	}
	if f.Machine != elf.EM_X86_64 {
		return nil, fmt.Errorf("unsupported machine: %v", f.Machine)
	}
	return f, nil
}

// NeededLibraries returns the DT_NEEDED entries of f, in file order.
func NeededLibraries(f *elf.File) ([]string, error) {
	return f.ImportedLibraries()
}
