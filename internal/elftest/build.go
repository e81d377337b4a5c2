// Package elftest builds minimal, valid ELF64 little-endian x86-64
// objects in memory, for tests that exercise the loading pipeline
// without a real toolchain-produced binary.
package elftest

import (
	"bytes"
	"encoding/binary"
)

const (
	ehsize = 64
	phsize = 56
	shsize = 64

	symsize  = 24 // Elf64_Sym
	relasize = 24 // Elf64_Rela
	dynsize  = 16 // Elf64_Dyn
)

// Segment describes one PT_LOAD to embed in the object.
type Segment struct {
	Vaddr uint64
	Flags uint32 // PF_R=4, PF_W=2, PF_X=1
	Data  []byte // file image; Memsz defaults to len(Data)
	Memsz uint64 // if 0, defaults to len(Data)
}

// TLS describes the optional PT_TLS to embed.
type TLS struct {
	Vaddr uint64
	Data  []byte
	Memsz uint64
	Align uint64
}

// Sym describes one dynamic symbol to embed.
type Sym struct {
	Name  string
	Value uint64
	Bind  uint8 // STB_GLOBAL=1, STB_LOCAL=0
	Shndx uint16
}

// Rela describes one Elf64_Rela entry.
type Rela struct {
	Offset uint64
	Sym    uint32 // 1-based dynsym index
	Type   uint32
	Addend int64
}

// Object is the complete description of a synthetic ELF object.
type Object struct {
	Entry     uint64
	Segments  []Segment
	TLS       *TLS
	Needed    []string
	Syms      []Sym
	Rela      []Rela // .rela.dyn
	RelaPlt   []Rela // .rela.plt
}

// Build encodes obj as a full ELF64 little-endian x86-64 file.
func Build(obj Object) []byte {
	var strtab strtabBuilder
	strtab.add("") // index 0 is always empty

	// dynsym: index 0 is the mandatory null symbol.
	dynsymNames := make([]uint32, len(obj.Syms)+1)
	for i, s := range obj.Syms {
		dynsymNames[i+1] = strtab.add(s.Name)
	}

	var dynstrForNeeded strtabBuilder
	dynstrForNeeded.add("")
	neededOffsets := make([]uint32, len(obj.Needed))
	for i, n := range obj.Needed {
		neededOffsets[i] = dynstrForNeeded.add(n)
	}

	// Layout: header, program headers, then section payloads, then
	// section header table. Offsets are computed incrementally.
	var buf bytes.Buffer
	phoff := uint64(ehsize)
	nProgs := len(obj.Segments)
	if obj.TLS != nil {
		nProgs++
	}
	dataStart := alignUp(phoff+uint64(nProgs)*phsize, 16)

	type placed struct {
		off  uint64
		size uint64
	}

	// Compute section offsets sequentially after program data.
	offset := dataStart
	segPlaced := make([]placed, len(obj.Segments))
	for i, s := range obj.Segments {
		segPlaced[i] = placed{off: offset, size: uint64(len(s.Data))}
		offset += uint64(len(s.Data))
		offset = alignUp(offset, 8)
	}
	var tlsPlaced placed
	if obj.TLS != nil {
		tlsPlaced = placed{off: offset, size: uint64(len(obj.TLS.Data))}
		offset += uint64(len(obj.TLS.Data))
		offset = alignUp(offset, 8)
	}

	dynsymOff := offset
	dynsymSize := uint64(len(dynsymNames)) * symsize
	offset += dynsymSize
	offset = alignUp(offset, 8)

	dynstrOff := offset
	dynstrBytes := strtab.bytes()
	offset += uint64(len(dynstrBytes))
	offset = alignUp(offset, 8)

	relaOff := offset
	relaSize := uint64(len(obj.Rela)) * relasize
	offset += relaSize
	offset = alignUp(offset, 8)

	relaPltOff := offset
	relaPltSize := uint64(len(obj.RelaPlt)) * relasize
	offset += relaPltSize
	offset = alignUp(offset, 8)

	neededStrOff := offset
	neededStrBytes := dynstrForNeeded.bytes()
	offset += uint64(len(neededStrBytes))
	offset = alignUp(offset, 8)

	dynamicOff := offset
	dynEntries := len(obj.Needed) + 1 // + DT_NULL
	dynamicSize := uint64(dynEntries) * dynsize
	offset += dynamicSize
	offset = alignUp(offset, 8)

	shstrtab := newShstrtab()
	shNames := shstrtab.names()
	shstrOff := offset
	shstrBytes := shstrtab.bytes()
	offset += uint64(len(shstrBytes))
	offset = alignUp(offset, 8)

	shoff := offset

	// --- ELF header ---
	var eh [ehsize]byte
	copy(eh[0:4], []byte{0x7f, 'E', 'L', 'F'})
	eh[4] = 2 // ELFCLASS64
	eh[5] = 1 // ELFDATA2LSB
	eh[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(eh[16:], 3)       // ET_DYN
	binary.LittleEndian.PutUint16(eh[18:], 0x3e)    // EM_X86_64
	binary.LittleEndian.PutUint32(eh[20:], 1)       // EV_CURRENT
	binary.LittleEndian.PutUint64(eh[24:], obj.Entry)
	binary.LittleEndian.PutUint64(eh[32:], phoff)
	binary.LittleEndian.PutUint64(eh[40:], shoff)
	binary.LittleEndian.PutUint16(eh[52:], ehsize)
	binary.LittleEndian.PutUint16(eh[54:], phsize)
	binary.LittleEndian.PutUint16(eh[56:], uint16(nProgs))
	binary.LittleEndian.PutUint16(eh[58:], shsize)
	binary.LittleEndian.PutUint16(eh[60:], uint16(len(shNames)+1)) // + SHT_NULL
	binary.LittleEndian.PutUint16(eh[62:], 7)                      // section index of .shstrtab
	buf.Write(eh[:])

	// --- program headers ---
	for i, s := range obj.Segments {
		memsz := s.Memsz
		if memsz == 0 {
			memsz = uint64(len(s.Data))
		}
		writeProg(&buf, 1 /* PT_LOAD */, s.Flags, segPlaced[i].off, s.Vaddr, uint64(len(s.Data)), memsz, 0x1000)
	}
	if obj.TLS != nil {
		memsz := obj.TLS.Memsz
		if memsz == 0 {
			memsz = uint64(len(obj.TLS.Data))
		}
		align := obj.TLS.Align
		if align == 0 {
			align = 8
		}
		writeProg(&buf, 7 /* PT_TLS */, 4, tlsPlaced.off, obj.TLS.Vaddr, uint64(len(obj.TLS.Data)), memsz, align)
	}

	// --- pad to dataStart ---
	padTo(&buf, dataStart)

	for i, s := range obj.Segments {
		padTo(&buf, segPlaced[i].off)
		buf.Write(s.Data)
	}
	if obj.TLS != nil {
		padTo(&buf, tlsPlaced.off)
		buf.Write(obj.TLS.Data)
	}

	padTo(&buf, dynsymOff)
	// null symbol
	writeSym(&buf, 0, 0, 0, 0)
	for i, s := range obj.Syms {
		info := (s.Bind << 4) | 1 // STT_OBJECT
		writeSym(&buf, dynsymNames[i+1], info, s.Shndx, s.Value)
	}

	padTo(&buf, dynstrOff)
	buf.Write(dynstrBytes)

	padTo(&buf, relaOff)
	for _, r := range obj.Rela {
		writeRela(&buf, r)
	}

	padTo(&buf, relaPltOff)
	for _, r := range obj.RelaPlt {
		writeRela(&buf, r)
	}

	padTo(&buf, neededStrOff)
	buf.Write(neededStrBytes)

	padTo(&buf, dynamicOff)
	for _, off := range neededOffsets {
		writeDyn(&buf, 1 /* DT_NEEDED */, uint64(off)) // value indexes neededStrBytes
	}
	writeDyn(&buf, 0, 0) // DT_NULL

	padTo(&buf, shstrOff)
	buf.Write(shstrBytes)

	padTo(&buf, shoff)

	// --- section headers ---
	// index: 0 null, 1 dynsym, 2 dynstr, 3 dynamic, 4 rela.dyn, 5 rela.plt,
	// 6 needed.str, 7 shstrtab.
	writeShdr(&buf, 0, 0, 0, 0, 0, 0, 0, 0) // SHT_NULL
	writeShdr(&buf, uint32(shNames["dynsym"]), 11 /* SHT_DYNSYM */, 2, 0, dynsymOff, dynsymSize, 2 /* link: dynstr */, symsize)
	writeShdr(&buf, uint32(shNames["dynstr"]), 3 /* SHT_STRTAB */, 2, 0, dynstrOff, uint64(len(dynstrBytes)), 0, 1)
	writeShdr(&buf, uint32(shNames["dynamic"]), 6 /* SHT_DYNAMIC */, 2, 0, dynamicOff, dynamicSize, 6 /* link: needed-str */, dynsize)
	writeShdr(&buf, uint32(shNames["rela.dyn"]), 4 /* SHT_RELA */, 2, 0, relaOff, relaSize, 1 /* link: dynsym */, relasize)
	writeShdr(&buf, uint32(shNames["rela.plt"]), 4, 2, 0, relaPltOff, relaPltSize, 1 /* link: dynsym */, relasize)
	writeShdr(&buf, uint32(shNames["needed.str"]), 3, 0, 0, neededStrOff, uint64(len(neededStrBytes)), 0, 1)
	writeShdr(&buf, uint32(shNames["shstrtab"]), 3, 0, 0, shstrOff, uint64(len(shstrBytes)), 0, 1)

	return buf.Bytes()
}

func alignUp(v, align uint64) uint64 {
	if v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

func padTo(buf *bytes.Buffer, target uint64) {
	for uint64(buf.Len()) < target {
		buf.WriteByte(0)
	}
}

func writeProg(buf *bytes.Buffer, typ uint32, flags uint32, off, vaddr, filesz, memsz, align uint64) {
	var ph [phsize]byte
	binary.LittleEndian.PutUint32(ph[0:], typ)
	binary.LittleEndian.PutUint32(ph[4:], flags)
	binary.LittleEndian.PutUint64(ph[8:], off)
	binary.LittleEndian.PutUint64(ph[16:], vaddr)
	binary.LittleEndian.PutUint64(ph[24:], vaddr) // paddr == vaddr
	binary.LittleEndian.PutUint64(ph[32:], filesz)
	binary.LittleEndian.PutUint64(ph[40:], memsz)
	binary.LittleEndian.PutUint64(ph[48:], align)
	buf.Write(ph[:])
}

func writeShdr(buf *bytes.Buffer, name uint32, typ uint32, flags, addr, off, size uint64, link, entsize uint64) {
	var sh [shsize]byte
	binary.LittleEndian.PutUint32(sh[0:], name)
	binary.LittleEndian.PutUint32(sh[4:], typ)
	binary.LittleEndian.PutUint64(sh[8:], flags)
	binary.LittleEndian.PutUint64(sh[16:], addr)
	binary.LittleEndian.PutUint64(sh[24:], off)
	binary.LittleEndian.PutUint64(sh[32:], size)
	binary.LittleEndian.PutUint32(sh[40:], uint32(link))
	binary.LittleEndian.PutUint64(sh[56:], entsize)
	buf.Write(sh[:])
}

// writeSym encodes one Elf64_Sym entry.
func writeSym(buf *bytes.Buffer, name uint32, info uint8, shndx uint16, value uint64) {
	var e [symsize]byte
	binary.LittleEndian.PutUint32(e[0:], name)
	e[4] = info
	e[5] = 0 // other
	binary.LittleEndian.PutUint16(e[6:], shndx)
	binary.LittleEndian.PutUint64(e[8:], value)
	binary.LittleEndian.PutUint64(e[16:], 0) // size
	buf.Write(e[:])
}

func writeRela(buf *bytes.Buffer, r Rela) {
	var e [relasize]byte
	binary.LittleEndian.PutUint64(e[0:], r.Offset)
	info := (uint64(r.Sym) << 32) | uint64(r.Type)
	binary.LittleEndian.PutUint64(e[8:], info)
	binary.LittleEndian.PutUint64(e[16:], uint64(r.Addend))
	buf.Write(e[:])
}

func writeDyn(buf *bytes.Buffer, tag int64, val uint64) {
	var e [dynsize]byte
	binary.LittleEndian.PutUint64(e[0:], uint64(tag))
	binary.LittleEndian.PutUint64(e[8:], val)
	buf.Write(e[:])
}

type strtabBuilder struct {
	buf bytes.Buffer
}

func (s *strtabBuilder) add(name string) uint32 {
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

func (s *strtabBuilder) bytes() []byte {
	if s.buf.Len() == 0 {
		return []byte{0}
	}
	return s.buf.Bytes()
}

type shstrtab struct {
	strtabBuilder
	nameOff map[string]uint32
}

func newShstrtab() *shstrtab {
	s := &shstrtab{nameOff: make(map[string]uint32)}
	s.add("") // index 0
	for _, n := range []string{"dynsym", "dynstr", "dynamic", "rela.dyn", "rela.plt", "needed.str", "shstrtab"} {
		s.nameOff["."+n] = s.add("." + n)
	}
	return s
}

func (s *shstrtab) names() map[string]uint16 {
	out := make(map[string]uint16, len(s.nameOff))
	for k, v := range s.nameOff {
		out[k[1:]] = uint16(v)
	}
	return out
}
