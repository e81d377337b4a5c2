// Package layout implements the Memory Layout Planner: computing
// per-object virtual bounds and allocating backing mappings.
package layout

import (
	"unsafe"

	"ldlink/internal/elfmach"
	"ldlink/internal/lderrors"
	"ldlink/internal/model"
	"ldlink/internal/platform"
)

// Plan computes obj's PT_LOAD bounds and, if it has at least one
// PT_LOAD, allocates its backing mapping and sets obj.Mapping/obj.Base.
// Objects with no PT_LOAD are left unmapped.
func Plan(obj *model.Object) error {
	_, hi, hasLoad := elfmach.LoadBounds(obj.ELF.Progs)
	if !hasLoad {
		return nil
	}

	mapping, err := platform.MapAnon(hi)
	if err != nil {
		return lderrors.New(lderrors.KindMapFailed, obj.Name, err)
	}

	obj.Mapping = mapping
	if len(mapping) > 0 {
		obj.Base = uint64(uintptr(unsafe.Pointer(&mapping[0])))
	}
	return nil
}

// TLSSize returns the total page-rounded PT_TLS size of obj, and whether
// it has one.
func TLSSize(obj *model.Object) (uint64, bool) {
	return elfmach.TLSSize(obj.ELF.Progs)
}
