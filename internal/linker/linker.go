// Package linker implements the Linker Driver: phase orchestration over
// the object store, resolver, layout, TLS, symbol, copy, relocation, and
// protection stages, returning the primary's entry point.
package linker

import (
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ldlink/internal/elfmach"
	"ldlink/internal/lderrors"
	"ldlink/internal/layout"
	"ldlink/internal/llog"
	"ldlink/internal/model"
	"ldlink/internal/objstore"
	"ldlink/internal/protect"
	"ldlink/internal/reloc"
	"ldlink/internal/resolver"
	"ldlink/internal/segcopy"
	"ldlink/internal/symtab"
	"ldlink/internal/tlsalloc"
	"ldlink/internal/trace"
)

// Linker holds the Object Store and orchestrates Load/LoadLibrary/Link,
// the three operations a caller needs: load, load a named library, and
// link.
type Linker struct {
	store     *objstore.Store
	resolver  *resolver.Resolver
	log       *llog.Logger
	SessionID uuid.UUID

	// OnPhase, if set, is called as Link enters each pipeline phase; the
	// CLI's "trace" subcommand uses it to drive a live Bubble Tea view.
	OnPhase func(phase string)

	// OnEvent, if set, receives a finer-grained trace.Event for each
	// object-level milestone (mapped, relocated, protected), for the
	// IRELATIVE pass, and for the resolved entry.
	OnEvent func(e *trace.Event)
}

func (l *Linker) emit(tag trace.Tag, name, detail string, kv ...string) {
	if l.OnEvent == nil {
		return
	}
	e := trace.NewEvent(tag, name, detail)
	for i := 0; i+1 < len(kv); i += 2 {
		e.Annotate(kv[i], kv[i+1])
	}
	l.OnEvent(e)
}

// New constructs a Linker that searches dependencies along searchPath.
func New(searchPath string, log *llog.Logger) *Linker {
	if log == nil {
		log = llog.NewNop()
	}
	store := objstore.New()
	return &Linker{
		store:     store,
		resolver:  resolver.New(searchPath, store, log),
		log:       log,
		SessionID: uuid.New(),
	}
}

// Load ingests name from path and its transitive DT_NEEDED closure.
func (l *Linker) Load(name, path string) error {
	return l.resolver.Load(name, path)
}

// LoadLibrary locates name along the search path and loads it.
func (l *Linker) LoadLibrary(name string) error {
	return l.resolver.LoadLibrary(name)
}

func (l *Linker) phase(log *llog.Logger, name string) {
	log.Phase(name)
	if l.OnPhase != nil {
		l.OnPhase(name)
	}
}

// Link finalizes the pipeline and returns the primary's runnable entry
// address.
func (l *Linker) Link(primary string) (uint64, error) {
	sessLog := l.log.With(zap.String("session", l.SessionID.String()))

	// 1. Re-parse every stored object.
	l.phase(sessLog, "parse")
	objects, order, err := l.parseAll(primary)
	if err != nil {
		return 0, err
	}

	// 2. Plan+allocate mappings; scan globals into the symbol table.
	// The primary is scanned first so its strong definitions dominate
	// (see DESIGN.md for why insert-if-absent needs this ordering).
	l.phase(sessLog, "plan")
	symbols := model.NewSymbolTable()
	var tlsTotal, tlsPrimary uint64
	for _, name := range order {
		obj := objects[name]
		if err := layout.Plan(obj); err != nil {
			return 0, err
		}
		if size, has := layout.TLSSize(obj); has {
			tlsTotal += size
			if obj.IsPrimary {
				tlsPrimary += size
			}
		}
		l.emit(trace.Object, name, "mapped", "base", llog.Hex(obj.Base))
	}
	for _, name := range order {
		if err := symtab.ScanGlobals(symbols, objects[name]); err != nil {
			return 0, err
		}
	}

	// 3. Allocate TLS.
	l.phase(sessLog, "tls")
	tls, err := tlsalloc.Allocate(tlsTotal, tlsPrimary, true)
	if err != nil {
		return 0, err
	}

	// 4. Copy all segments.
	l.phase(sessLog, "copy")
	copier := segcopy.NewCopier(tls)
	for _, name := range order {
		if err := copier.Copy(objects[name]); err != nil {
			return 0, err
		}
	}

	// 5. First relocation pass + protect per object.
	l.phase(sessLog, "relocate")
	var allDeferred []reloc.Deferred
	for _, name := range order {
		obj := objects[name]
		if obj.Mapping == nil {
			continue
		}
		rels, err := elfmach.ParseRelocations(obj.ELF)
		if err != nil {
			return 0, lderrors.New(lderrors.KindParseFailed, obj.Name, err)
		}
		deferred, err := reloc.FirstPass(obj, symbols, rels, sessLog)
		if err != nil {
			return 0, err
		}
		allDeferred = append(allDeferred, deferred...)
		l.emit(trace.Reloc, name, "relocated",
			"count", strconv.Itoa(len(rels.All())), "deferred", strconv.Itoa(len(deferred)))
		if err := protect.Apply(obj, sessLog); err != nil {
			return 0, err
		}
	}

	// 6. Second (IRELATIVE) pass + re-confirm protect per object.
	l.phase(sessLog, "irelative")
	if err := reloc.SecondPass(allDeferred, sessLog); err != nil {
		return 0, err
	}
	l.emit(trace.IFunc, primary, "ifunc resolvers executed", "count", strconv.Itoa(len(allDeferred)))
	for _, name := range order {
		obj := objects[name]
		if err := protect.Apply(obj, sessLog); err != nil {
			return 0, err
		}
		l.emit(trace.Protect, name, "protection finalized")
	}

	// 7-8. Locate the primary's entry.
	l.phase(sessLog, "entry")
	primaryObj, ok := objects[primary]
	if !ok || primaryObj.Mapping == nil {
		return 0, lderrors.New(lderrors.KindMissingEntry, primary, nil)
	}
	entry := primaryObj.Base + primaryObj.ELF.Entry
	sessLog.Object("entry", primary, llog.Addr("entry", entry))
	l.emit(trace.Entry, primary, "entry resolved", "addr", llog.Hex(entry))
	return entry, nil
}

// parseAll builds the per-object parse view over every name in the
// Object Store, in the store's deterministic order.
// order places primary first (so its symbols win on collision, per
// DESIGN.md) followed by the remaining names in store order.
func (l *Linker) parseAll(primary string) (map[string]*model.Object, []string, error) {
	names := l.store.Names()
	objects := make(map[string]*model.Object, len(names))
	var order []string
	if l.store.Has(primary) {
		order = append(order, primary)
	}
	for _, name := range names {
		if name != primary {
			order = append(order, name)
		}
	}

	for _, name := range names {
		data, _ := l.store.Get(name)
		parsed, err := elfmach.Parse(data)
		if err != nil {
			return nil, nil, lderrors.New(lderrors.KindParseFailed, name, err)
		}
		objects[name] = &model.Object{
			Name:      name,
			Data:      data,
			ELF:       parsed,
			IsPrimary: name == primary,
		}
	}
	return objects, order, nil
}
