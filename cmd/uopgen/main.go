// uopgen generates instruction implementations and stack effect tables
// from micro-op definitions.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/uopgen/backend"
	"github.com/chazu/uopgen/generator"
	"github.com/chazu/uopgen/manifest"
)

func main() {
	dir := flag.String("C", ".", "Directory to search for uopgen.toml (walks up)")
	targetName := flag.String("target", "", "Output target: c or go (overrides manifest)")
	output := flag.String("o", "", "Instructions output file (overrides manifest)")
	stackEffects := flag.String("stack-effects", "", "Stack effect table output file (overrides manifest)")
	pkg := flag.String("package", "", "Package clause for Go output (overrides manifest)")
	storePath := flag.String("store", "", "Summaries database path (overrides manifest)")
	noStore := flag.Bool("no-store", false, "Do not record summaries")
	unused := flag.String("unused", "", "Name of never-materialized stack effects (overrides manifest)")
	skipValidation := flag.Bool("skip-validation", false, "Do not parse generated Go before writing it")
	verbose := flag.Int("v", 0, "Log verbosity (0 errors only, 1 info, 2 debug)")
	logPath := flag.String("log", "", "Log to this file instead of stderr")
	show := flag.String("show", "", "Print the stored summary and code of one instruction and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: uopgen [options] [definition files...]\n\n")
		fmt.Fprintf(os.Stderr, "Analyses the stack effects of micro-op instructions and generates their code.\n")
		fmt.Fprintf(os.Stderr, "Settings come from the nearest uopgen.toml; flags override them.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  uopgen                            # Use ./uopgen.toml\n")
		fmt.Fprintf(os.Stderr, "  uopgen -target go -o cases.go     # Generate Go instead of C\n")
		fmt.Fprintf(os.Stderr, "  uopgen -no-store extra/bytecodes.toml\n")
		fmt.Fprintf(os.Stderr, "  uopgen -show LOAD_ATTR            # Inspect a stored instruction\n")
	}
	flag.Parse()

	var logFile *string
	if *logPath != "" {
		logFile = logPath
	}
	commonlog.Configure(*verbose, logFile)

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		// No manifest: run from defaults rooted at -C.
		if m, err = manifest.Default(*dir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *targetName != "" {
		if err := m.SetTarget(*targetName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := generator.ConfigFromManifest(m)
	if *output != "" {
		cfg.Output = *output
	}
	if *stackEffects != "" {
		cfg.StackEffects = *stackEffects
	}
	if *pkg != "" {
		cfg.Package = *pkg
	}
	if *storePath != "" {
		cfg.StorePath = *storePath
	}
	if *noStore {
		cfg.StorePath = ""
	}
	if *unused != "" {
		cfg.Unused = *unused
	}
	cfg.SkipValidation = *skipValidation
	cfg.Files = append(cfg.Files, flag.Args()...)

	g, err := generator.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *show != "" {
		out, err := g.Show(*show)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	report, err := g.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, s := range report.Skipped {
		fmt.Fprintf(os.Stderr, "Warning: skipped %s: %s\n", s.Instruction, s.Reason)
	}
	if len(report.Validation) > 0 {
		fmt.Fprintf(os.Stderr, "Go validation errors:\n%s", backend.FormatValidationErrors(report.Validation))
	}
	fmt.Printf("Generated %d instructions to %s\n", len(report.Instructions), cfg.Output)
	for _, name := range report.Changed {
		fmt.Printf("  changed %s\n", name)
	}
	for _, name := range report.Pruned {
		fmt.Printf("  removed %s\n", name)
	}
}
