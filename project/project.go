// Package project implements the project & import resolver (E): base-folder
// discovery, the "a.b.c [from LIB]" import resolution order of spec.md
// §4.5, a VFS overlay for built-in modules, a per-file AST cache keyed by
// normalized project-relative path, and concurrent loading of the
// transitive import graph.
//
// Grounded on the teacher's internal/maincmd (ParseFiles/ResolveFiles stage
// split) for the overall "parse then resolve" pipeline shape, generalized
// here to a project with imports rather than a flat list of CLI-given
// files; the concurrent-loading stage (LoadAll) is grounded on the
// errgroup.WithContext + SetLimit + indexed-results pattern used for
// per-file parallel work in the retrieved pack (see DESIGN.md).
package project

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/parser"
	"github.com/h64p/horsec/scanner"
)

// CompileProject owns the base folder, the VFS overlay, the per-file AST
// cache, and the project-wide diagnostics bag that every per-file bag
// merges into, per spec.md §4.5's get_ast contract.
type CompileProject struct {
	BaseFolder string
	VFS        *VFS
	Prog       *ir.Program
	Bag        *diag.Bag

	ScannerConfig scanner.Config

	mu    sync.Mutex
	cache map[string]*ast.Chunk // keyed by normalized project-relative path
}

// NewCompileProject returns a project rooted at baseFolder (an absolute,
// normalized directory), sharing prog and bag across every file loaded.
func NewCompileProject(baseFolder string, prog *ir.Program, bag *diag.Bag) *CompileProject {
	return &CompileProject{
		BaseFolder: filepath.Clean(baseFolder),
		VFS:        NewVFS(),
		Prog:       prog,
		Bag:        bag,
		cache:      make(map[string]*ast.Chunk),
	}
}

// FindProjectRoot implements spec.md §4.5's "project-root guessing": walk
// up from file's directory, stopping at the first ancestor containing
// ".git" or "horse_modules". Falling back to cwd if it contains file, else
// erroring.
func FindProjectRoot(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	for {
		if hasMarker(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(cwd, abs)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return cwd, nil
	}
	return "", &RootNotFoundError{File: file}
}

func hasMarker(dir string) bool {
	for _, marker := range []string{".git", "horse_modules"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// RootNotFoundError is returned by FindProjectRoot when no ancestor marker
// exists and the file isn't under the current working directory either.
type RootNotFoundError struct{ File string }

func (e *RootNotFoundError) Error() string {
	return "cannot determine project root for " + e.File
}

// normalizeModulePath joins dotted path components with "." to form the
// project-relative-minus-suffix module path used as a cache key and as
// Chunk.ModulePath, per §4.5 ("directory separators in the resolved path
// are replaced by '.' ... the .h64 suffix is stripped").
func normalizeModulePath(components []string) string {
	return strings.Join(components, ".")
}

// componentsToRelPath turns ["a","b","c"] into "a/b/c.h64", rejecting any
// component containing a "." (module path components cannot be dotted),
// per §4.5.
func componentsToRelPath(components []string) (string, error) {
	for _, c := range components {
		if strings.Contains(c, ".") {
			return "", &DottedComponentError{Component: c}
		}
	}
	return strings.Join(components, "/") + ".h64", nil
}

// DottedComponentError is returned when an import path component contains
// a "." outside the implicit ".h64" suffix.
type DottedComponentError struct{ Component string }

func (e *DottedComponentError) Error() string {
	return "import path component cannot contain '.': " + e.Component
}

// ResolveImport implements spec.md §4.5's three-step lookup order for one
// "import a.b.c [from LIB]" statement. fromDir is the directory of the
// importing file (used for project-local probing); library is "" when
// there's no "from LIB" clause.
//
// On a C-module hit, resolvedFileURI is "" and isCModule is true: the
// caller (the resolver, via ImportLookup) should not attempt to load an
// AST, only resolve names against the registered module symbols.
func (cp *CompileProject) ResolveImport(fromDir string, components []string, library string) (resolvedFileURI string, modulePath string, isCModule bool, err error) {
	modulePath = normalizeModulePath(components)
	relPath, err := componentsToRelPath(components)
	if err != nil {
		return "", "", false, err
	}

	// Step 1: C-module probe.
	if mod, ok := cp.Prog.Modules[ir.ModuleKey(library, modulePath)]; ok && moduleIsAllCFuncs(cp.Prog, mod) {
		return "", modulePath, true, nil
	}

	// Step 2: library source, when "from LIB" is present.
	if library != "" {
		builtinRel := "horse_modules_builtin/" + library + "/" + relPath
		if uri, inVFS, ok := cp.VFS.Exists(cp.BaseFolder, builtinRel); ok {
			_ = inVFS
			return uri, modulePath, false, nil
		}
		libRel := "horse_modules/" + library + "/" + relPath
		if uri, _, ok := cp.VFS.Exists(cp.BaseFolder, libRel); ok {
			return uri, modulePath, false, nil
		}
		return "", "", false, &ImportNotFoundError{Path: modulePath, Library: library}
	}

	// Step 3: project-local walk-up, preferring the deepest (closest to
	// fromDir) match.
	dir := fromDir
	for {
		candidate := filepath.Join(dir, relPath)
		rel, relErr := filepath.Rel(cp.BaseFolder, candidate)
		if relErr == nil {
			if uri, _, ok := cp.VFS.Exists(cp.BaseFolder, rel); ok {
				return uri, modulePath, false, nil
			}
		}
		if dir == cp.BaseFolder {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", "", false, &ImportNotFoundError{Path: modulePath, Library: library}
}

// ImportNotFoundError is returned when no candidate path in any resolution
// step exists.
type ImportNotFoundError struct {
	Path    string
	Library string
}

func (e *ImportNotFoundError) Error() string {
	if e.Library != "" {
		return "import not found: " + e.Path + " from " + e.Library
	}
	return "import not found: " + e.Path
}

// moduleIsAllCFuncs reports whether mod has at least one registered symbol
// and every registered func is a C function (no classes/globals, no
// non-native funcs), per §4.5 step 1's "every registered symbol being a C
// function."
func moduleIsAllCFuncs(prog *ir.Program, mod *ir.ModuleSymbols) bool {
	if len(mod.FuncSymbols) == 0 || len(mod.ClassSymbols) != 0 || len(mod.GlobalSymbols) != 0 {
		return false
	}
	for _, sym := range mod.FuncSymbols {
		if !prog.Func(ir.FuncID(sym.ID)).IsCFunction {
			return false
		}
	}
	return true
}

// GetAST returns the cached *ast.Chunk for relPath (a project-relative
// path, "/"-separated), loading, parsing and resolving its own imports'
// file paths if absent. Per §4.5's get_ast: the cache key is the
// normalized project-relative path, and any new diagnostics from parsing
// flow into cp.Bag (deduplicated). The library a file was reached through
// (if any) is derived from relPath itself, so the resulting Chunk
// registers under the right module key.
func (cp *CompileProject) GetAST(relPath string) (*ast.Chunk, error) {
	key := filepath.ToSlash(relPath)

	cp.mu.Lock()
	if ch, ok := cp.cache[key]; ok {
		cp.mu.Unlock()
		return ch, nil
	}
	cp.mu.Unlock()

	src, resolvedURI, _, ok := cp.VFS.Lookup(cp.BaseFolder, relPath)
	if !ok {
		return nil, &ImportNotFoundError{Path: relPath}
	}

	fileBag := &diag.Bag{}
	ch := parser.ParseChunk(key, src, cp.ScannerConfig, fileBag)
	ch.FileURI = resolvedURI
	ch.ModulePath = modulePathFromRelPath(relPath)
	ch.LibraryName = libraryFromRelPath(relPath)
	cp.resolveImportsIn(ch, relPath, fileBag)
	cp.Bag.Merge(fileBag)

	cp.mu.Lock()
	if existing, ok := cp.cache[key]; ok {
		// another goroutine loaded it first; keep whichever won the race.
		cp.mu.Unlock()
		return existing, nil
	}
	cp.cache[key] = ch
	cp.mu.Unlock()
	return ch, nil
}

// modulePathFromRelPath strips the ".h64" suffix and replaces "/" with "."
// per §4.5.
func modulePathFromRelPath(relPath string) string {
	p := strings.TrimSuffix(filepath.ToSlash(relPath), ".h64")
	return strings.ReplaceAll(p, "/", ".")
}

// libraryFromRelPath recovers the "from LIB" library name a file was
// reached through from its own project-relative path, for files living
// under horse_modules(_builtin)/LIB/...; a plain project-local file has no
// library ("").
func libraryFromRelPath(relPath string) string {
	p := filepath.ToSlash(relPath)
	for _, prefix := range [...]string{"horse_modules_builtin/", "horse_modules/"} {
		if rest, ok := strings.CutPrefix(p, prefix); ok {
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				return rest[:i]
			}
		}
	}
	return ""
}

// resolveImportsIn resolves (via cp.ResolveImport, using ch's own
// directory as step 3's starting point) every import statement found
// anywhere in ch - including ones nested inside function or class bodies -
// setting ImportStmt.ResolvedFileURI/IsCModule directly on each node. This
// runs once per file, right after parsing, so the resolver (F) never needs
// to re-derive the importing file's directory from a bare module path: it
// only ever consumes the already-resolved URI recorded here.
func (cp *CompileProject) resolveImportsIn(ch *ast.Chunk, relPath string, fileBag *diag.Bag) {
	fromDir := filepath.Dir(filepath.Join(cp.BaseFolder, relPath))
	for _, imp := range collectImportStmts(ch) {
		cp.resolveOneImport(imp, fromDir, fileBag)
	}
}

// collectImportStmts walks ch's full statement tree (nested blocks and
// class/func bodies included) and returns every import statement, in the
// order a reader encounters them.
func collectImportStmts(ch *ast.Chunk) []*ast.ImportStmt {
	var imports []*ast.ImportStmt
	var collector ast.VisitorFunc
	collector = func(n ast.Node, dir ast.VisitDirection) ast.Visitor {
		if dir != ast.VisitEnter {
			return nil
		}
		if imp, ok := n.(*ast.ImportStmt); ok {
			imports = append(imports, imp)
		}
		return collector
	}
	ast.Walk(collector, ch.Block)
	return imports
}

func (cp *CompileProject) resolveOneImport(imp *ast.ImportStmt, fromDir string, fileBag *diag.Bag) {
	components := make([]string, len(imp.Path))
	for i, id := range imp.Path {
		components[i] = id.Lit
	}
	library := ""
	if imp.Library != nil {
		library = imp.Library.Lit
	}

	uri, _, isCModule, err := cp.ResolveImport(fromDir, components, library)
	if err != nil {
		line, col := imp.Import.LineCol()
		fileBag.Add(diag.Error, err.Error(), "", line, col)
		return
	}
	imp.ResolvedFileURI = uri
	imp.IsCModule = isCModule
}

// LoadAll parses every path in relPaths concurrently (bounded by the host's
// CPU count), per the Domain Stack's errgroup wiring: file loading is the
// one part of the pipeline that's embarrassingly parallel, while
// resolve/storage/asynccheck/codegen remain single-threaded per spec.md §5.
// Results preserve the input order. Every path here is a root/project-local
// file (library is ""); transitive imports are discovered and loaded
// on-demand by the resolver's ImportLookup callback instead (they aren't
// known up front).
func (cp *CompileProject) LoadAll(ctx context.Context, relPaths []string) ([]*ast.Chunk, error) {
	if len(relPaths) == 0 {
		return nil, nil
	}
	chunks := make([]*ast.Chunk, len(relPaths))

	g, gctx := errgroup.WithContext(ctx)
	limit := runtime.NumCPU()
	if limit > len(relPaths) {
		limit = len(relPaths)
	}
	g.SetLimit(limit)

	for i, rp := range relPaths {
		i, rp := i, rp
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ch, err := cp.GetAST(rp)
			if err != nil {
				return err
			}
			chunks[i] = ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// ImportLookup adapts CompileProject into a resolver.ImportLookup: given a
// resolvedFileURI already written to some ImportStmt.ResolvedFileURI (by
// resolveImportsIn, before the resolver (F) ever runs), load (or return
// the cached) corresponding Chunk. Never called for a C-module import -
// the resolver resolves those directly against the registered module's
// symbol maps instead, per spec.md §4.6 phase 2.
func (cp *CompileProject) ImportLookup(resolvedFileURI string) *ast.Chunk {
	relPath, ok := cp.relPathForURI(resolvedFileURI)
	if !ok {
		return nil
	}
	ch, err := cp.GetAST(relPath)
	if err != nil {
		return nil
	}
	return ch
}

// CachedChunks returns every chunk loaded so far (root files and any
// transitive import reached via ImportLookup), in no particular order. The
// driver uses this after ResolveProject to find chunks that were only
// discovered mid-resolve and so never got a phase-2 identifiers pass - see
// DESIGN.md's "resolver (module F)" entry on transitively-discovered chunks.
func (cp *CompileProject) CachedChunks() []*ast.Chunk {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	out := make([]*ast.Chunk, 0, len(cp.cache))
	for _, ch := range cp.cache {
		out = append(out, ch)
	}
	return out
}

// relPathForURI recovers the project-relative cache key GetAST expects
// from a resolved URI produced by ResolveImport/VFS.Exists: a "vfs:"-
// prefixed key is already relative; a "file://"-prefixed absolute path is
// made relative to baseFolder.
func (cp *CompileProject) relPathForURI(uri string) (string, bool) {
	if rest, ok := strings.CutPrefix(uri, "vfs:"); ok {
		return rest, true
	}
	if abs, ok := strings.CutPrefix(uri, "file://"); ok {
		if rel, err := filepath.Rel(cp.BaseFolder, abs); err == nil {
			return filepath.ToSlash(rel), true
		}
	}
	return "", false
}
