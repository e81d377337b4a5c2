package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ldlink/internal/config"
	"ldlink/internal/linker"
	"ldlink/internal/llog"
)

var (
	verbose    bool
	searchPath string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ldlink [binary]",
		Short: "Link and run an x86-64 ELF object against its dependency closure",
		Long: `ldlink loads an ELF64 x86-64 object, resolves its DT_NEEDED closure along
a search path, maps every object's segments, relocates them, finalizes
page protection under a strict W⊕X rule, and reports the runnable entry
address.

Examples:
  ldlink ./a.out                       # link and print the entry address
  ldlink ./a.out -L /usr/lib:/lib      # search dependencies along a path
  ldlink -c session.yaml               # link from a YAML config file
  ldlink info libfoo.so                # dump segments, symbols, relocations
  ldlink trace ./a.out                 # live phase trace in a TUI`,
		Args:                  cobra.MaximumNArgs(1),
		DisableFlagsInUseLine: true,
		RunE:                  runLink,
	}

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.Flags().StringVarP(&searchPath, "search-path", "L", "", "dependency search path")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML session config (overrides positional arg)")

	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newTraceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultSearchPath() string {
	if p := os.Getenv("LDLINK_PATH"); p != "" {
		return p
	}
	return "/lib:/usr/lib"
}

func runLink(cmd *cobra.Command, args []string) error {
	primary, sp, preload, err := resolveInputs(args)
	if err != nil {
		return err
	}
	log := llog.New(verbose)
	defer log.Sync()

	if sp != "" && searchPath == "" {
		searchPath = sp
	}
	if searchPath == "" {
		searchPath = defaultSearchPath()
	}

	lk := linker.New(searchPath, log)
	name := filepath.Base(primary)
	if err := lk.Load(name, primary); err != nil {
		return fmt.Errorf("load %s: %w", primary, err)
	}
	for _, p := range preload {
		if err := lk.Load(p.Name, p.Path); err != nil {
			return fmt.Errorf("preload %s: %w", p.Name, err)
		}
	}

	entry, err := lk.Link(name)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	fmt.Printf("entry: 0x%x\n", entry)
	return nil
}

// resolveInputs gathers the primary object path, search path, and preload
// list from either -c/--config or the single positional argument.
func resolveInputs(args []string) (primary, sp string, preload []config.Object, err error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return "", "", nil, err
		}
		if cfg.Debug {
			verbose = true
		}
		return cfg.Primary, cfg.SearchPath, cfg.Preload, nil
	}
	if len(args) == 0 {
		return "", "", nil, fmt.Errorf("no primary object given (pass a path or -c config.yaml)")
	}
	return args[0], "", nil, nil
}
