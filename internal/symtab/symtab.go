// Package symtab implements the Symbol Table: scanning each mapped
// object's dynamic symbols into the process-global name→address map.
package symtab

import (
	"ldlink/internal/elfmach"
	"ldlink/internal/model"
)

// ScanGlobals adds obj's GLOBAL, defined dynsyms to table. Callers must
// scan the primary object first so its definitions dominate on name
// collision; table.InsertIfAbsent enforces insert-if-absent once that
// ordering is honored.
func ScanGlobals(table *model.SymbolTable, obj *model.Object) error {
	if obj.Mapping == nil {
		return nil
	}

	dynsyms, err := obj.ELF.DynamicSymbols()
	if err != nil {
		// No dynamic symbol table: nothing to export, not an error.
		return nil
	}

	for _, sym := range dynsyms {
		if !elfmach.IsGlobalDefined(sym) {
			continue
		}
		if sym.Name == "" {
			continue // missing string-table entry: silently skipped
		}
		table.InsertIfAbsent(sym.Name, obj.Base+sym.Value)
	}

	return nil
}
