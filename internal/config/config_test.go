package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"ldlink/internal/config"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	yaml := `
primary: ./a.out
search_path: /lib:/usr/lib
debug: true
preload:
  - name: libpreload.so
    path: ./libpreload.so
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Primary != "./a.out" {
		t.Errorf("Primary = %q, want ./a.out", cfg.Primary)
	}
	if cfg.SearchPath != "/lib:/usr/lib" {
		t.Errorf("SearchPath = %q, want /lib:/usr/lib", cfg.SearchPath)
	}
	if !cfg.Debug {
		t.Errorf("Debug = false, want true")
	}
	if len(cfg.Preload) != 1 || cfg.Preload[0].Name != "libpreload.so" {
		t.Errorf("Preload = %+v, want one entry named libpreload.so", cfg.Preload)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/session.yaml"); err == nil {
		t.Errorf("Load on a missing file returned nil error")
	}
}
