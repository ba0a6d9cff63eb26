package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/h64p/horsec/asynccheck"
	"github.com/h64p/horsec/codegen"
	"github.com/h64p/horsec/internal/config"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/project"
	"github.com/h64p/horsec/resolver"
	"github.com/h64p/horsec/scanner"
	"github.com/h64p/horsec/storage"
	"github.com/urfave/cli/v2"

	"github.com/h64p/horsec/ast"
)

// loadedProject bundles the pieces every subcommand needs after loading: the
// project itself (for ImportLookup and further GetAST calls), the root
// chunks in input order, and the program they were registered into.
type loadedProject struct {
	cp     *project.CompileProject
	prog   *ir.Program
	bag    *diag.Bag
	chunks []*ast.Chunk
}

// loadFiles finds the project root from the first file argument, builds a
// CompileProject rooted there, and loads every file argument concurrently
// via CompileProject.LoadAll, per §4.5. cliFlags are the -Wall/-W<name>/
// -Wno-<name> flags given on the command line; they're merged on top of
// the project's horse.toml warning defaults (if any) before a single
// scanner.Config is applied to every file the project loads, root files
// and transitive imports alike.
func loadFiles(ctx context.Context, files []string, cliFlags []string) (*loadedProject, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one file must be provided")
	}

	root, err := project.FindProjectRoot(files[0])
	if err != nil {
		return nil, err
	}

	relPaths := make([]string, len(files))
	for i, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return nil, err
		}
		relPaths[i] = filepath.ToSlash(rel)
	}

	prog := ir.NewProgram()
	bag := &diag.Bag{}
	cp := project.NewCompileProject(root, prog, bag)

	var allFlags []string
	if manifest, ok, err := project.LoadManifest(root); err != nil {
		return nil, fmt.Errorf("reading project manifest: %w", err)
	} else if ok {
		allFlags = manifestWarnFlags(manifest)
	}
	// CLI flags are appended last so they override the manifest's defaults,
	// per config.ParseFlags applying its args slice in order.
	allFlags = append(allFlags, cliFlags...)
	w, err := config.ParseFlags(allFlags)
	if err != nil {
		return nil, err
	}
	cp.ScannerConfig = scanner.Config{WarnUnrecognizedEscape: w.UnrecognizedEscapeSeq}

	chunks, err := cp.LoadAll(ctx, relPaths)
	if err != nil {
		return nil, err
	}

	return &loadedProject{cp: cp, prog: prog, bag: bag, chunks: chunks}, nil
}

// resolve runs phase F over lp's chunks, then again over every chunk
// CompileProject ended up caching (picking up anything only discovered
// transitively through ImportLookup mid-resolve - see DESIGN.md's "resolver
// (module F)" entry on transitively-discovered chunks for why a second pass
// is needed).
func (lp *loadedProject) resolve() {
	r := resolver.New(lp.prog, lp.bag, lp.cp.ImportLookup)
	r.ResolveProject(lp.chunks)
	r.ResolveProject(lp.cp.CachedChunks())
}

// allChunks returns every chunk the project ended up loading, root files
// and transitive imports alike, for the stages (G, H) that need to see the
// whole program.
func (lp *loadedProject) allChunks() []*ast.Chunk {
	return lp.cp.CachedChunks()
}

// manifestWarnFlags turns a horse.toml's [warnings] table into the same
// -W<name>/-Wno-<name> flag shape the CLI's --warn values produce, so both
// sources flow through the one config.ParseFlags call in loadFiles.
func manifestWarnFlags(m project.Manifest) []string {
	flags := make([]string, 0, len(m.Warnings.All)+len(m.Warnings.Off))
	for _, name := range m.Warnings.All {
		flags = append(flags, "-W"+name)
	}
	for _, name := range m.Warnings.Off {
		flags = append(flags, "-Wno-"+name)
	}
	return flags
}

// compilePipeline runs the full front end: load, resolve (F), local storage
// allocation (G), async-propagation checking (H), bytecode emission (I) and
// linking (J). Codegen only runs if the earlier stages left no errors in
// lp.bag - a program generated over a project with unresolved names or
// storage conflicts would just encode garbage.
func compilePipeline(ctx context.Context, files []string, cliFlags []string) (*loadedProject, error) {
	lp, err := loadFiles(ctx, files, cliFlags)
	if err != nil {
		return nil, err
	}
	lp.resolve()
	if lp.bag.HasErrors() {
		return lp, nil
	}
	all := lp.allChunks()
	storage.Allocate(all)
	asynccheck.Check(lp.prog, all, lp.bag)
	if lp.bag.HasErrors() {
		return lp, nil
	}

	units := codegen.Generate(lp.prog, all, lp.bag)
	if lp.bag.HasErrors() {
		return lp, nil
	}
	if err := codegen.Link(lp.prog, units); err != nil {
		lp.bag.Add(diag.Error, err.Error(), "", 0, 0)
	}
	return lp, nil
}

// printDiagnostics writes every message in bag to w, one per line, sorted
// by file/line/column (diag.Bag.Messages already sorts).
func printDiagnostics(w io.Writer, bag *diag.Bag) {
	for _, m := range bag.Messages() {
		fmt.Fprintln(w, m.String())
	}
}

// filesFromContext returns the positional file arguments, erroring if none
// were given - every subcommand in this driver operates on an explicit file
// list rather than scanning the whole project by default.
func filesFromContext(c *cli.Context) ([]string, error) {
	files := c.Args().Slice()
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: at least one file must be provided", c.Command.Name)
	}
	return files, nil
}

// exitWithDiagnostics prints bag's messages to stderr and returns a plain
// error when bag has at least one error-level message, matching §7's "any
// error in any stage sets project.result.success = false" contract at the
// CLI boundary: each subcommand prints its own diagnostics and returns a
// bare error so main.go doesn't double-print.
func exitWithDiagnostics(c *cli.Context, bag *diag.Bag) error {
	printDiagnostics(c.App.ErrWriter, bag)
	if bag.HasErrors() {
		return cli.Exit("", 1)
	}
	return nil
}
