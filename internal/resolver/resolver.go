// Package resolver implements the Dependency Resolver: locating and
// loading an object and its transitive DT_NEEDED closure from a
// delimited search path.
package resolver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"ldlink/internal/elfmach"
	"ldlink/internal/lderrors"
	"ldlink/internal/llog"
	"ldlink/internal/objstore"
)

// PathSep is the search-path component delimiter: ';' on Windows,
// ':' elsewhere.
func PathSep() byte {
	if runtime.GOOS == "windows" {
		return ';'
	}
	return ':'
}

// Resolver loads objects and their dependency closure into a Store.
type Resolver struct {
	store      *objstore.Store
	searchPath string
	log        *llog.Logger
	loading    map[string]bool // cycle guard against DT_NEEDED loops
}

// New constructs a Resolver over store, searching dependencies along
// searchPath.
func New(searchPath string, store *objstore.Store, log *llog.Logger) *Resolver {
	if log == nil {
		log = llog.NewNop()
	}
	return &Resolver{
		store:      store,
		searchPath: searchPath,
		log:        log,
		loading:    make(map[string]bool),
	}
}

// Load opens path, reads it fully, recurses into its DT_NEEDED closure,
// then inserts its bytes under name.
func (r *Resolver) Load(name, path string) error {
	if r.store.Has(name) {
		return nil // idempotent: already loaded under this name
	}
	if r.loading[name] {
		return nil // cycle guard: already in progress, avoid infinite recursion
	}
	r.loading[name] = true
	defer delete(r.loading, name)

	r.log.Object("load", name, zap.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return lderrors.New(lderrors.KindOpenFailed, path, err)
	}
	defer f.Close()
	// close-on-exec: the fd must not leak into any later-loaded resolver.
	if fd := int(f.Fd()); fd >= 0 {
		if flags, ferr := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); ferr == nil {
			_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return lderrors.New(lderrors.KindReadFailed, path, err)
	}

	parsed, err := elfmach.Parse(data)
	if err != nil {
		return lderrors.New(lderrors.KindParseFailed, path, err)
	}

	needed, err := elfmach.NeededLibraries(parsed)
	if err != nil {
		return lderrors.New(lderrors.KindParseFailed, path, err)
	}

	for _, lib := range needed {
		if r.store.Has(lib) {
			continue
		}
		if err := r.LoadLibrary(lib); err != nil {
			return err
		}
	}

	r.store.Insert(name, data)
	return nil
}

// LoadLibrary finds name along the search path (or directly, if it
// contains a path separator) and loads it.
func (r *Resolver) LoadLibrary(name string) error {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return r.Load(name, name)
	}

	sep := string(PathSep())
	for _, part := range strings.Split(r.searchPath, sep) {
		var path string
		if part == "" {
			path = "./" + name
		} else {
			path = part + "/" + name
		}

		if _, err := os.Stat(path); err == nil {
			return r.Load(name, path)
		}
	}

	return lderrors.New(lderrors.KindNotFound, name, fmt.Errorf("not found on search path %q", r.searchPath))
}
