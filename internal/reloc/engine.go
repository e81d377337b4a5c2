// Package reloc implements the Relocation Engine: two-pass x86-64
// relocation processing, including the IRELATIVE resolver calls
// deferred to the second pass.
package reloc

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"ldlink/internal/elfmach"
	"ldlink/internal/lderrors"
	"ldlink/internal/llog"
	"ldlink/internal/model"
)

func fieldType(t uint32) zap.Field { return zap.Uint32("type", t) }

// x86-64 relocation type codes. debug/elf defines these as elf.R_X86_64,
// reused here as plain constants for the switch below.
const (
	rX8664_64       = uint32(elf.R_X86_64_64)
	rX8664GlobDat   = uint32(elf.R_X86_64_GLOB_DAT)
	rX8664JumpSlot  = uint32(elf.R_X86_64_JMP_SLOT)
	rX8664Relative  = uint32(elf.R_X86_64_RELATIVE)
	rX8664TPOff64   = uint32(elf.R_X86_64_TPOFF64)
	rX8664IRelative = uint32(elf.R_X86_64_IRELATIVE)
)

// Deferred is one IRELATIVE relocation postponed to the second pass.
type Deferred struct {
	Obj    *model.Object
	Offset uint64 // P = B + r_offset
	Callee uint64 // B + A, the resolver's entry address
}

// FirstPass resolves every relocation except IRELATIVE, writing directly
// into obj.Mapping, and collects IRELATIVE entries for the second pass.
func FirstPass(obj *model.Object, symbols *model.SymbolTable, rels elfmach.Relocations, log *llog.Logger) ([]Deferred, error) {
	if obj.Mapping == nil {
		return nil, nil
	}
	if log == nil {
		log = llog.NewNop()
	}

	dynsyms, _ := obj.ELF.DynamicSymbols()
	symByIndex := elfmach.SymByIndex(dynsyms)

	var deferred []Deferred
	b := obj.Base
	t := uint64(0)
	if obj.HasTLS {
		t = obj.TLSStart
	}

	for _, rel := range rels.All() {
		a := uint64(rel.Addend)
		p := b + rel.Offset

		var s uint64
		if rel.Sym > 0 {
			sym, ok := symByIndex[rel.Sym]
			if !ok {
				return deferred, lderrors.New(lderrors.KindMissingSymbolIndex, obj.Name,
					fmt.Errorf("relocation references symbol index %d", rel.Sym))
			}
			if sym.Name == "" {
				return deferred, lderrors.New(lderrors.KindMissingSymbolName, obj.Name,
					fmt.Errorf("symbol at index %d has no name", rel.Sym))
			}
			if addr, ok := symbols.Lookup(sym.Name); ok {
				s = addr
			} else {
				s = 0 // undefined strong reference resolves to 0
			}
		}

		switch rel.Type {
		case rX8664_64:
			if err := writeU64(obj, rel.Offset, s+a); err != nil {
				return deferred, err
			}
			log.Reloc(obj.Name, "R_X86_64_64", rel.Offset, s+a)
		case rX8664GlobDat, rX8664JumpSlot:
			if err := writeU64(obj, rel.Offset, s); err != nil {
				return deferred, err
			}
			log.Reloc(obj.Name, "R_X86_64_GLOB_DAT/JUMP_SLOT", rel.Offset, s)
		case rX8664Relative:
			if err := writeU64(obj, rel.Offset, b+a); err != nil {
				return deferred, err
			}
			log.Reloc(obj.Name, "R_X86_64_RELATIVE", rel.Offset, b+a)
		case rX8664TPOff64:
			v := (s + a) - t // wrapping
			if err := writeU64(obj, rel.Offset, v); err != nil {
				return deferred, err
			}
			log.Reloc(obj.Name, "R_X86_64_TPOFF64", rel.Offset, v)
		case rX8664IRelative:
			deferred = append(deferred, Deferred{Obj: obj, Offset: p, Callee: b + a})
		default:
			log.Warn("unsupported relocation type, skipping", fieldType(rel.Type))
		}
	}

	return deferred, nil
}

func writeU64(obj *model.Object, offset, value uint64) error {
	if offset+8 > uint64(len(obj.Mapping)) {
		return lderrors.New(lderrors.KindOutOfBoundsSegment, obj.Name,
			fmt.Errorf("relocation write at %#x exceeds mapping of %d bytes", offset, len(obj.Mapping)))
	}
	binary.LittleEndian.PutUint64(obj.Mapping[offset:offset+8], value)
	return nil
}
