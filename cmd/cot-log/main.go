// Command cot-log is a tool for viewing and analyzing CoT trace files.
//
// Trace files are created by cot-client with the -trace flag. They
// hold a CBOR stream of transport, codec and dispatch events.
//
// Usage:
//
//	cot-log <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View trace file in human-readable format
//	filter   Filter trace file and write to new file
//	stats    Show statistics about the trace file
//
// Examples:
//
//	# View all events
//	cot-log view trace.cbor
//
//	# View only incoming transport frames
//	cot-log view -layer transport -direction in trace.cbor
//
//	# Keep one unit's traffic
//	cot-log filter -uid ANDROID-abc123 -o unit.cbor trace.cbor
//
//	# Show statistics
//	cot-log stats trace.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/omnitak/cot-go/cmd/cot-log/commands"
	"github.com/omnitak/cot-go/pkg/log"
)

const usage = `cot-log - CoT Trace Analyzer

Usage:
  cot-log <command> [flags] <file.cbor>

Commands:
  view     View trace file in human-readable format
  filter   Filter trace file and write to new file
  stats    Show statistics about the trace file

Use "cot-log <command> -help" for more information about a command.
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

// filterFlags registers the shared filter flags on a flag set and
// returns a builder that assembles the log.Filter after parsing.
func filterFlags(fs *flag.FlagSet) func() log.Filter {
	layer := fs.String("layer", "", "Filter by layer (transport, cot, dispatch)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	connID := fs.String("conn-id", "", "Filter by connection ID")
	uid := fs.String("uid", "", "Filter by unit identifier")

	return func() log.Filter {
		var filter log.Filter
		filter.ConnectionID = *connID
		filter.UID = *uid

		if *layer != "" {
			l, err := commands.ParseLayer(*layer)
			if err != nil {
				fatal(err)
			}
			filter.Layer = &l
		}
		if *direction != "" {
			d, err := commands.ParseDirection(*direction)
			if err != nil {
				fatal(err)
			}
			filter.Direction = &d
		}
		if *category != "" {
			c, err := commands.ParseCategory(*category)
			if err != nil {
				fatal(err)
			}
			filter.Category = &c
		}
		return filter
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	buildFilter := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requireFile(fs)

	if err := commands.RunView(path, buildFilter(), os.Stdout); err != nil {
		fatal(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	out := fs.String("o", "", "Output file path (required)")
	buildFilter := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requireFile(fs)

	if *out == "" {
		fmt.Fprintln(os.Stderr, "Error: -o output file required")
		os.Exit(1)
	}

	count, err := commands.RunFilter(path, *out, buildFilter())
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %d events to %s\n", count, *out)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requireFile(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fatal(err)
	}
}

func requireFile(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
