package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/pulse.report/internal/catalog"
	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/fsutil"
)

// runImport indexes session directories recorded without a catalog:
// pulse import [-catalog PATH | -config FILE] <session-dir>...
// It returns the process exit code.
func runImport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	catalogPath := fs.String("catalog", "", "Catalog database (defaults to catalog_path from -config)")
	cfgPath := fs.String("config", "", "Path to a JSON config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: pulse import [-catalog PATH | -config FILE] <session-dir>...")
		return 2
	}

	path := *catalogPath
	if path == "" && *cfgPath != "" {
		cfg, err := config.LoadPipelineConfig(*cfgPath)
		if err != nil {
			fmt.Fprintf(stderr, "load config: %v\n", err)
			return 1
		}
		path = cfg.GetCatalogPath()
	}
	if path == "" {
		fmt.Fprintln(stderr, "no catalog: pass -catalog or a config with catalog_path")
		return 2
	}

	cat, err := catalog.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "open catalog: %v\n", err)
		return 1
	}
	defer cat.Close()

	code := 0
	for _, root := range fs.Args() {
		id, err := cat.ImportSession(fsutil.OSFileSystem{}, root)
		if err != nil {
			fmt.Fprintf(stderr, "import %s: %v\n", root, err)
			code = 1
			continue
		}
		fmt.Fprintf(stdout, "%s %s\n", id, root)
	}
	return code
}
