package protect_test

import (
	"debug/elf"
	"testing"

	"ldlink/internal/elfmach"
	"ldlink/internal/elftest"
	"ldlink/internal/layout"
	"ldlink/internal/llog"
	"ldlink/internal/model"
	"ldlink/internal/platform"
	"ldlink/internal/protect"
)

func TestFromFlagsDeniesWriteWhenExecutable(t *testing.T) {
	prot := protect.FromFlags(elf.PF_R | elf.PF_W | elf.PF_X)
	if prot&platform.ProtWrite != 0 {
		t.Errorf("FromFlags(RWX) granted write, want W⊕X to drop it when X is set")
	}
	if prot&platform.ProtExec == 0 {
		t.Errorf("FromFlags(RWX) dropped exec")
	}
}

func TestFromFlagsAllowsWriteWithoutExec(t *testing.T) {
	prot := protect.FromFlags(elf.PF_R | elf.PF_W)
	if prot&platform.ProtWrite == 0 {
		t.Errorf("FromFlags(RW) dropped write when X was never requested")
	}
	if prot&platform.ProtExec != 0 {
		t.Errorf("FromFlags(RW) granted exec")
	}
}

func TestApplyOnMappedObject(t *testing.T) {
	data := elftest.Build(elftest.Object{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{Vaddr: 0x1000, Flags: 5, Data: []byte{0x90}, Memsz: 0x1000}, // R+X
		},
	})
	f, err := elfmach.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	obj := &model.Object{Name: "a.out", Data: data, ELF: f}
	if err := layout.Plan(obj); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if err := protect.Apply(obj, llog.NewNop()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestApplyNoopOnUnmappedObject(t *testing.T) {
	obj := &model.Object{Name: "nop"}
	if err := protect.Apply(obj, nil); err != nil {
		t.Errorf("Apply on an unmapped object returned %v, want nil", err)
	}
}
