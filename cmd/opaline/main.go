package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/manifest"
	"github.com/opaline-lang/opaline/internal/service"
	"github.com/opaline-lang/opaline/pkg/engine"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "check":
		os.Exit(runCheck(os.Args[2:]))
	case "bindings":
		os.Exit(runBindings(os.Args[2:]))
	case "help", "-help", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: opaline <command> [flags] <document|directory>...

Commands:
  check      load documents, resolve opaque declarations, report diagnostics
  bindings   print every resolved binding and use-site representation

Flags for check:
  -archive FILE   record resolved bindings and report drift against the
                  previous run (empty FILE selects `+config.DefaultArchivePath+`)
  -remote ADDR    analyze through a running semad instead of locally
                  (empty ADDR selects $`+config.EnvDaemonAddr+` or `+config.DefaultDaemonAddr+`)
`)
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	archivePath := fs.String("archive", "", "record resolved bindings and report drift")
	remote := fs.String("remote", "", "analyze through a running semad")
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "check: no documents given")
		return 2
	}

	if flagGiven(fs, "archive") && *archivePath == "" {
		*archivePath = config.DefaultArchivePath
	}
	if flagGiven(fs, "remote") {
		if *archivePath != "" {
			fmt.Fprintln(os.Stderr, "check: -archive and -remote cannot be combined; the archive belongs to the local run")
			return 2
		}
		addr := *remote
		if addr == "" {
			addr = config.DaemonAddr()
		}
		return remoteCheck(addr, paths)
	}

	report, err := engine.New(engine.WithArchive(*archivePath)).
		AnalyzeFiles(context.Background(), paths...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "check:", err)
		return 1
	}

	printer := diagnostics.NewPrinter(os.Stderr)
	printer.Print(report.Diagnostics)
	for _, d := range report.Drifts {
		printer.Warnf("drift", "%s", d)
	}
	if report.Failed() {
		return 1
	}
	fmt.Printf("ok: %d opaque declarations resolved\n", len(report.Bindings))
	return 0
}

func remoteCheck(addr string, paths []string) int {
	sources, err := readDocuments(paths)
	if err != nil {
		fmt.Fprintln(os.Stderr, "check:", err)
		return 1
	}

	client, err := service.Dial(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "check: cannot reach semad:", err)
		return 1
	}
	defer client.Close()

	result, err := client.Check(context.Background(), sources)
	if err != nil {
		fmt.Fprintln(os.Stderr, "check:", err)
		return 1
	}

	if diagnostics.NewPrinter(os.Stderr).Print(result.Diagnostics) > 0 {
		return 1
	}
	fmt.Printf("ok: %d opaque declarations resolved\n", len(result.Bindings))
	return 0
}

func runBindings(args []string) int {
	fs := flag.NewFlagSet("bindings", flag.ExitOnError)
	fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "bindings: no documents given")
		return 2
	}

	report, err := engine.New().AnalyzeFiles(context.Background(), paths...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bindings:", err)
		return 1
	}

	diagnostics.NewPrinter(os.Stderr).Print(report.Diagnostics)

	for _, b := range report.Bindings {
		fmt.Printf("%s = %s\n", b.Decl, b.Underlying)
		fmt.Printf("    key:          %s\n", b.Key)
		fmt.Printf("    capabilities: %s\n", b.Caps)
	}
	if len(report.Sites) > 0 {
		fmt.Println("use sites:")
		for _, site := range report.Sites {
			where := site.File
			if site.Line > 0 {
				where = fmt.Sprintf("%s:%d", site.File, site.Line)
			}
			fmt.Printf("    %s %s %s (from %s) -> %s\n",
				where, site.Kind, site.Decl, site.Module, site.Representation)
		}
	}

	if report.Failed() {
		return 1
	}
	return 0
}

// readDocuments loads document contents for a remote check; the daemon
// never reads the client's filesystem.
func readDocuments(paths []string) (map[string][]byte, error) {
	sources := make(map[string][]byte)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			found, err := manifest.Discover(path)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				src, err := os.ReadFile(f)
				if err != nil {
					return nil, err
				}
				sources[f] = src
			}
			continue
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sources[path] = src
	}
	return sources, nil
}

func flagGiven(fs *flag.FlagSet, name string) bool {
	given := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			given = true
		}
	})
	return given
}
