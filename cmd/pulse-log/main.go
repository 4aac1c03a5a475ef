// Command pulse-log views and analyzes pulse protocol capture files.
//
// Capture files are written by pulse-mock and pulse-runtime when started
// with --capture-log.
//
// Usage:
//
//	pulse-log <command> [flags] <file.plog>
//
// Commands:
//
//	view     View events in human-readable form
//	export   Export events as JSON lines or CSV
//	filter   Write matching events to a new capture file
//	stats    Show statistics, including capture rates per connection
//
// Examples:
//
//	# Only counter captures
//	pulse-log view --family 3 server.plog
//
//	# Client-side events as CSV
//	pulse-log export --format csv runtime.plog
//
//	# One connection into its own file
//	pulse-log filter --conn-id 1b4e28ba -o conn.plog server.plog
package main

import (
	"fmt"
	"os"

	"github.com/pulse-protocol/pulse-go/cmd/pulse-log/commands"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	flag "github.com/spf13/pflag"
)

const usage = `pulse-log - Pulse Protocol Capture Analyzer

Usage:
  pulse-log <command> [flags] <file.plog>

Commands:
  view     View events in human-readable form
  export   Export events as JSON lines or CSV
  filter   Write matching events to a new capture file
  stats    Show statistics about the capture file

Use "pulse-log <command> --help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// addFilterFlags registers the filter flags shared by view and filter.
func addFilterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.SessionID, "session-id", "", "Filter by mock server session ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, protocol, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (packet, state, error)")
	fs.StringVar(&opts.Role, "role", "", "Filter by capturing side (client, server)")
	fs.IntVar(&opts.Family, "family", -1, "Filter by packet family (0 control, 3 capture)")
	return opts
}

func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "pulse-log %s - %s\n\nUsage:\n  pulse-log %s [flags] <file.plog>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func buildFilter(opts *commands.FilterOptions) log.Filter {
	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	return filter
}

func runView(args []string) {
	fs := newFlagSet("view", "View events in human-readable form")
	opts := addFilterFlags(fs)
	path := parse(fs, args)

	if err := commands.RunView(path, buildFilter(opts), os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export events as JSON lines or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.StringP("output", "o", "", "Output file (default: stdout)")
	path := parse(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Write matching events to a new capture file")
	output := fs.StringP("output", "o", "", "Output file (required)")
	opts := addFilterFlags(fs)
	path := parse(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *output, buildFilter(opts))
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture file")
	path := parse(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
