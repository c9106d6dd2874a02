package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/pulse.report/internal/httputil"
	"github.com/banshee-data/pulse.report/internal/monitor"
)

// runCtl drives a running instance: pulse ctl [-addr URL] status|toggle [dir]|extract|exit.
// It returns the process exit code.
func runCtl(args []string, stdout, stderr io.Writer, hc httputil.HTTPClient) int {
	fs := flag.NewFlagSet("ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8090", "Base URL of the pulse instance")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: pulse ctl [-addr URL] status|toggle [dir]|extract|exit")
		return 2
	}

	c := monitor.NewClient(*addr, hc)
	var (
		out interface{}
		err error
	)
	switch strings.ToLower(fs.Arg(0)) {
	case "status":
		out, err = c.Status()
	case "toggle":
		out, err = c.Toggle(strings.Join(fs.Args()[1:], " "))
	case "extract":
		out, err = c.Extract()
	case "exit", "quit":
		out, err = c.Exit()
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", fs.Arg(0), err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}
