// Package protect implements the Protection Finalizer: translating
// PT_LOAD flags to a W⊕X protection mask and applying it.
package protect

import (
	"debug/elf"

	"ldlink/internal/elfmach"
	"ldlink/internal/lderrors"
	"ldlink/internal/llog"
	"ldlink/internal/model"
	"ldlink/internal/platform"
)

// FromFlags translates p_flags into a {R,W,X} mask under the W⊕X rule:
// X is granted verbatim; W is granted only when X is not set, even if
// both were requested.
func FromFlags(flags elf.ProgFlag) platform.Prot {
	var prot platform.Prot
	if flags&elf.PF_R != 0 {
		prot |= platform.ProtRead
	}
	if flags&elf.PF_X != 0 {
		prot |= platform.ProtExec
	} else if flags&elf.PF_W != 0 {
		prot |= platform.ProtWrite
	}
	return prot
}

func protString(prot platform.Prot) string {
	s := ""
	if prot&platform.ProtRead != 0 {
		s += "R"
	}
	if prot&platform.ProtWrite != 0 {
		s += "W"
	}
	if prot&platform.ProtExec != 0 {
		s += "X"
	}
	if s == "" {
		s = "-"
	}
	return s
}

// Apply sets every PT_LOAD segment of obj to its W⊕X-derived protection.
// Called twice per object: once after the first relocation pass, once
// after the second (IRELATIVE) pass, so pages end up executable only
// once every write to them is complete.
func Apply(obj *model.Object, log *llog.Logger) error {
	if obj.Mapping == nil {
		return nil
	}
	if log == nil {
		log = llog.NewNop()
	}

	for _, ph := range obj.ELF.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		vaddr, vsize := elfmach.PageRound(ph.Vaddr, ph.Memsz)
		if vaddr+vsize > uint64(len(obj.Mapping)) {
			return lderrors.New(lderrors.KindProtectFailed, obj.Name, nil)
		}

		prot := FromFlags(ph.Flags)
		if err := platform.Protect(obj.Mapping[vaddr:vaddr+vsize], prot); err != nil {
			return lderrors.New(lderrors.KindProtectFailed, obj.Name, err)
		}
		log.Protect(obj.Name, vaddr, vsize, protString(prot))
	}
	return nil
}
