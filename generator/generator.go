// Package generator runs one batch: it loads instruction definitions,
// analyses each instruction, renders the results for a target and records
// them in the summaries store.
package generator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/uopgen/analysis"
	"github.com/chazu/uopgen/backend"
	"github.com/chazu/uopgen/defs"
	"github.com/chazu/uopgen/emit"
	"github.com/chazu/uopgen/hash"
	"github.com/chazu/uopgen/instr"
	"github.com/chazu/uopgen/manifest"
	"github.com/chazu/uopgen/store"
)

var log = commonlog.GetLogger("uopgen.generator")

// ErrNoDefinitions is returned when the configured sources hold no
// definition files.
var ErrNoDefinitions = errors.New("no definition files found")

// ErrNoStore is returned by Show when the store is disabled.
var ErrNoStore = errors.New("no summaries store configured")

// Config describes one generator run.
type Config struct {
	Dirs  []string
	Files []string

	Target  string
	Package string
	Unused  string

	// Output is the path of the instructions file.
	Output string
	// StackEffects is the path of the stack effect table file. Empty
	// disables it.
	StackEffects string
	// StorePath is the summaries database. Empty disables the store.
	StorePath string

	SkipValidation bool
}

// ConfigFromManifest builds a run configuration from a loaded manifest.
func ConfigFromManifest(m *manifest.Manifest) Config {
	return Config{
		Dirs:         m.SourceDirPaths(),
		Files:        m.SourceFilePaths(),
		Target:       m.Output.Target,
		Package:      m.Output.Package,
		Unused:       m.Analysis.Unused,
		Output:       m.OutputPath(),
		StackEffects: m.StackEffectsPath(),
		StorePath:    m.StorePath(),
	}
}

// Report summarizes a run.
type Report struct {
	Files        []string
	Instructions []string
	Changed      []string
	Pruned       []string
	Skipped      []backend.Skipped
	Warnings     []string
	Validation   []backend.ValidationError
}

// Generator holds the state of one run. Opcodes are numbered in
// definition order starting at zero; each Run numbers afresh.
type Generator struct {
	cfg     Config
	printer backend.Printer
	ctx     *analysis.Context

	nextOpcode int
}

// New returns a generator for cfg.
func New(cfg Config) (*Generator, error) {
	printer, err := backend.New(cfg.Target, backend.Options{
		Package:        cfg.Package,
		SkipValidation: cfg.SkipValidation,
	})
	if err != nil {
		return nil, err
	}
	ctx := analysis.NewContext(printer.Syntax())
	if cfg.Unused != "" {
		ctx.Unused = cfg.Unused
	}
	return &Generator{cfg: cfg, printer: printer, ctx: ctx}, nil
}

// Analysed is one instruction after analysis.
type Analysed struct {
	Entry backend.Entry
	Hash  string
}

// Analyse computes the summary, script and content hash of every
// instruction. All failing instructions are reported together; the
// successful ones are still returned in definition order.
func (g *Generator) Analyse(insts []*instr.Instruction) ([]Analysed, error) {
	var out []Analysed
	var errs []error
	for _, inst := range insts {
		opcode := g.nextOpcode
		g.nextOpcode++

		a, err := g.analyse(inst, opcode)
		if err != nil {
			log.Errorf("%s: %s", inst.Name, err)
			errs = append(errs, err)
			continue
		}
		log.Debugf("%s: opcode %d, popped %s, pushed %s", inst.Name, opcode, a.Entry.Summary.Popped, a.Entry.Summary.Pushed)
		out = append(out, a)
	}
	return out, errors.Join(errs...)
}

func (g *Generator) analyse(inst *instr.Instruction, opcode int) (Analysed, error) {
	// The summary and the script each need their own manager chain: the
	// writer rebases the managers it is given.
	summary, err := analysis.MacroStackEffect(g.ctx, inst)
	if err != nil {
		return Analysed{}, fmt.Errorf("%s: %w", inst.Name, err)
	}
	script, err := emit.WriteComponents(g.ctx, inst)
	if err != nil {
		return Analysed{}, err
	}
	return Analysed{
		Entry: backend.Entry{
			Name:    inst.Name,
			Opcode:  opcode,
			Summary: summary,
			Script:  script,
		},
		Hash: hash.Hex(inst),
	}, nil
}

// Run performs the whole batch. Nothing is written unless every
// instruction analyses cleanly.
func (g *Generator) Run() (*Report, error) {
	report := &Report{}
	g.nextOpcode = 0

	files, err := defs.Discover(g.cfg.Dirs, g.cfg.Files)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoDefinitions
	}
	report.Files = files

	set, err := defs.Load(files...)
	if err != nil {
		return nil, err
	}
	// Bad definitions and failed analyses are reported together.
	insts, defErr := set.Instructions()
	if defErr != nil {
		log.Errorf("%s", defErr)
	}
	results, err := g.Analyse(insts)
	if err := errors.Join(defErr, err); err != nil {
		return nil, fmt.Errorf("generation failed:\n%w", err)
	}

	entries := make([]backend.Entry, len(results))
	for i, a := range results {
		entries[i] = a.Entry
		report.Instructions = append(report.Instructions, a.Entry.Name)
	}

	result, err := g.printer.Instructions(entries)
	if err != nil {
		return nil, err
	}
	report.Skipped = result.Skipped
	report.Warnings = result.Warnings
	report.Validation = result.Validation
	for _, w := range result.Warnings {
		log.Warning(w)
	}
	if err := writeFile(g.cfg.Output, result.Code); err != nil {
		return nil, err
	}

	if g.cfg.StackEffects != "" {
		code, err := g.printer.StackEffects(entries)
		if err != nil {
			return nil, err
		}
		if err := writeFile(g.cfg.StackEffects, code); err != nil {
			return nil, err
		}
	}

	if g.cfg.StorePath == "" {
		report.Changed = report.Instructions
	} else if err := g.record(results, report); err != nil {
		return nil, err
	}

	log.Infof("generated %d instructions from %d files (%d changed, %d skipped)",
		len(report.Instructions), len(files), len(report.Changed), len(report.Skipped))
	return report, nil
}

func (g *Generator) record(results []Analysed, report *Report) error {
	s, err := store.Open(g.cfg.StorePath)
	if err != nil {
		return err
	}
	defer s.Close()

	keep := make(map[string]bool, len(results))
	for _, a := range results {
		keep[a.Entry.Name] = true
		changed, err := s.Put(&store.Record{
			Name:    a.Entry.Name,
			Opcode:  a.Entry.Opcode,
			Hash:    a.Hash,
			Target:  g.printer.Syntax().Name(),
			Summary: a.Entry.Summary,
			Script:  a.Entry.Script,
		})
		if err != nil {
			return err
		}
		if changed {
			report.Changed = append(report.Changed, a.Entry.Name)
		}
	}

	report.Pruned, err = s.Prune(keep)
	return err
}

// Show renders the stored record of one instruction: its summary line
// followed by its code, printed for the target it was generated for.
func (g *Generator) Show(name string) (string, error) {
	if g.cfg.StorePath == "" {
		return "", ErrNoStore
	}
	s, err := store.Open(g.cfg.StorePath)
	if err != nil {
		return "", err
	}
	defer s.Close()

	rec, err := s.Get(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	printer := g.printer
	if rec.Target != printer.Syntax().Name() {
		log.Debugf("%s: stored for target %s", name, rec.Target)
		printer, err = backend.New(rec.Target, backend.Options{Package: g.cfg.Package, SkipValidation: true})
		if err != nil {
			return "", err
		}
	}
	result, err := printer.Instructions([]backend.Entry{{
		Name:    rec.Name,
		Opcode:  rec.Opcode,
		Summary: rec.Summary,
		Script:  rec.Script,
	}})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("// %s: opcode %d, popped %s, pushed %s, hash %s\n%s",
		rec.Name, rec.Opcode, rec.Summary.Popped, rec.Summary.Pushed, rec.Hash, result.Code), nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
