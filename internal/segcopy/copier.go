// Package segcopy implements the Segment Copier: copying PT_LOAD and
// PT_TLS file images into their mapped/TLS slots.
package segcopy

import (
	"debug/elf"
	"fmt"

	"ldlink/internal/elfmach"
	"ldlink/internal/lderrors"
	"ldlink/internal/model"
)

// Copier threads a running TLS offset/index across objects as each one's
// PT_TLS slot is carved out of the shared buffer.
type Copier struct {
	tls       *model.TLS
	tlsOffset uint64
	tlsIndex  int
}

// NewCopier starts a Copier over tls, with the offset primed past the
// primary's reserved top slice.
func NewCopier(tls *model.TLS) *Copier {
	offset := uint64(0)
	if tls != nil {
		offset = tls.PrimarySize
	}
	return &Copier{tls: tls, tlsOffset: offset}
}

// Copy writes obj's PT_LOAD and PT_TLS file images into place.
func (c *Copier) Copy(obj *model.Object) error {
	for _, ph := range obj.ELF.Progs {
		switch ph.Type {
		case elf.PT_LOAD:
			if err := c.copyLoad(obj, ph); err != nil {
				return err
			}
		case elf.PT_TLS:
			if err := c.copyTLS(obj, ph); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Copier) copyLoad(obj *model.Object, ph *elf.Prog) error {
	if obj.Mapping == nil {
		return nil
	}
	off, filesz := ph.Off, ph.Filesz
	if off+filesz > uint64(len(obj.Data)) {
		return lderrors.New(lderrors.KindOutOfBoundsSegment, obj.Name,
			fmt.Errorf("file range [%#x,%#x) exceeds %d bytes", off, off+filesz, len(obj.Data)))
	}
	src := obj.Data[off : off+filesz]

	vaddr := ph.Vaddr
	if vaddr+uint64(len(src)) > uint64(len(obj.Mapping)) {
		return lderrors.New(lderrors.KindOutOfBoundsSegment, obj.Name,
			fmt.Errorf("mapping range [%#x,%#x) exceeds %d bytes", vaddr, vaddr+uint64(len(src)), len(obj.Mapping)))
	}
	copy(obj.Mapping[vaddr:vaddr+uint64(len(src))], src)
	// Memsz > filesz tails are implicit: the anonymous mapping is already
	// zero-initialized.
	return nil
}

func (c *Copier) copyTLS(obj *model.Object, ph *elf.Prog) error {
	if c.tls == nil {
		return nil
	}
	valign := elfmach.TLSValign(ph.Memsz, ph.Align)
	_, vsize := elfmach.PageRound(0, ph.Memsz)

	var start uint64
	total := uint64(len(c.tls.Buffer))
	if obj.IsPrimary {
		obj.TLSIndex = 0
		if valign > total {
			return lderrors.New(lderrors.KindOutOfBoundsSegment, obj.Name, fmt.Errorf("tls slot exceeds buffer"))
		}
		start = total - valign
	} else {
		if c.tlsOffset+valign > total {
			return lderrors.New(lderrors.KindOutOfBoundsSegment, obj.Name, fmt.Errorf("tls slot exceeds buffer"))
		}
		start = total - (c.tlsOffset + valign)
		c.tlsOffset += vsize
		c.tlsIndex++
		obj.TLSIndex = c.tlsIndex
	}

	off, filesz := ph.Off, ph.Filesz
	if off+filesz > uint64(len(obj.Data)) {
		return lderrors.New(lderrors.KindOutOfBoundsSegment, obj.Name,
			fmt.Errorf("tls file range [%#x,%#x) exceeds %d bytes", off, off+filesz, len(obj.Data)))
	}
	src := obj.Data[off : off+filesz]

	if start+uint64(len(src)) > total {
		return lderrors.New(lderrors.KindOutOfBoundsSegment, obj.Name, fmt.Errorf("tls write out of bounds"))
	}
	copy(c.tls.Buffer[start:start+uint64(len(src))], src)

	obj.HasTLS = true
	obj.TLSStart = start
	obj.TLSLen = valign
	return nil
}
