package main

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/arch/x86/x86asm"

	"ldlink/internal/elfmach"
	"ldlink/internal/ui/colorize"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <object>",
		Short: "Show segments, symbols, and relocations of an ELF object",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	f, err := elfmach.Parse(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	fmt.Printf("%s %s\n", colorize.Header("▶"), path)
	fmt.Printf("  entry: %s\n", colorize.Address(f.Entry))

	fmt.Println("\nsegments:")
	for _, ph := range f.Progs {
		vaddr, vsize := elfmach.PageRound(ph.Vaddr, ph.Memsz)
		fmt.Printf("  %-8s vaddr=%s memsz=%s filesz=%s mapped=[%s,%s) prot=%s\n",
			ph.Type, colorize.Address(ph.Vaddr), colorize.Detail(fmt.Sprintf("%#x", ph.Memsz)),
			colorize.Detail(fmt.Sprintf("%#x", ph.Filesz)),
			colorize.Address(vaddr), colorize.Address(vaddr+vsize), colorize.Prot(protString(ph.Flags)))
	}

	needed, _ := elfmach.NeededLibraries(f)
	if len(needed) > 0 {
		fmt.Println("\nneeded:")
		for _, lib := range needed {
			fmt.Printf("  %s\n", colorize.FuncName(lib))
		}
	}

	dynsyms, _ := f.DynamicSymbols()
	var globals []string
	for _, s := range dynsyms {
		if elfmach.IsGlobalDefined(s) {
			globals = append(globals, s.Name)
		}
	}
	sort.Strings(globals)
	fmt.Printf("\nglobal symbols: %d\n", len(globals))
	for _, name := range globals {
		fmt.Printf("  %s\n", colorize.FuncName(name))
	}

	rels, err := elfmach.ParseRelocations(f)
	if err == nil {
		all := rels.All()
		fmt.Printf("\nrelocations: %d\n", len(all))
		counts := make(map[string]int)
		for _, r := range all {
			counts[elf.R_X86_64(r.Type).String()]++
		}
		for _, name := range sortedKeys(counts) {
			fmt.Printf("  %s %s\n", colorize.RelocType(name), colorize.Detail(fmt.Sprintf("x%d", counts[name])))
		}
	}

	printEntryWindow(data, f)
	return nil
}

// printEntryWindow disassembles a handful of instructions starting at the
// entry point, translating the entry's virtual address to a file offset
// via the PT_LOAD segment that contains it.
func printEntryWindow(data []byte, f *elf.File) {
	off, ok := fileOffsetOf(f, f.Entry)
	if !ok {
		return
	}
	fmt.Println("\nentry window:")
	pc := f.Entry
	for i := 0; i < 10 && off < uint64(len(data)); i++ {
		window := data[off:]
		if len(window) > 16 {
			window = window[:16]
		}
		inst, err := x86asm.Decode(window, 64)
		if err != nil {
			fmt.Printf("  %s  %s\n", colorize.Address(pc), colorize.Detail("(bad)"))
			break
		}
		dis := x86asm.GNUSyntax(inst, pc, nil)
		fmt.Printf("  %s  %s\n", colorize.Address(pc), colorize.Instruction(dis))
		off += uint64(inst.Len)
		pc += uint64(inst.Len)
	}
}

func fileOffsetOf(f *elf.File, vaddr uint64) (uint64, bool) {
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		if vaddr >= ph.Vaddr && vaddr < ph.Vaddr+ph.Filesz {
			return ph.Off + (vaddr - ph.Vaddr), true
		}
	}
	return 0, false
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func protString(flags elf.ProgFlag) string {
	s := ""
	if flags&elf.PF_R != 0 {
		s += "R"
	}
	if flags&elf.PF_W != 0 {
		s += "W"
	}
	if flags&elf.PF_X != 0 {
		s += "X"
	}
	if s == "" {
		s = "-"
	}
	return s
}
