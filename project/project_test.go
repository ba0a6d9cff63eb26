package project_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/project"
	"github.com/h64p/horsec/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProjectRootStopsAtGitMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	sub := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	file := filepath.Join(sub, "main.h64")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	got, err := project.FindProjectRoot(file)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestFindProjectRootStopsAtHorseModulesMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "horse_modules"), 0o755))
	file := filepath.Join(root, "main.h64")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	got, err := project.FindProjectRoot(file)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestResolveImportCModuleProbe(t *testing.T) {
	prog := ir.NewProgram()
	fid := prog.AddFunc(ir.Func{IsCFunction: true, Threadable: true})
	prog.Module("", "mathutil").RegisterFunc("sin", fid, 0)

	cp := project.NewCompileProject(t.TempDir(), prog, &diag.Bag{})
	_, modulePath, isCModule, err := cp.ResolveImport(cp.BaseFolder, []string{"mathutil"}, "")
	require.NoError(t, err)
	assert.True(t, isCModule)
	assert.Equal(t, "mathutil", modulePath)
}

func TestResolveImportLibrarySourcePrefersBuiltinOverlay(t *testing.T) {
	root := t.TempDir()
	libDir := filepath.Join(root, "horse_modules", "mylib")
	require.NoError(t, os.MkdirAll(libDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "x.h64"), []byte("// disk\n"), 0o644))

	prog := ir.NewProgram()
	cp := project.NewCompileProject(root, prog, &diag.Bag{})
	cp.VFS.AddBuiltin("mylib/x.h64", []byte("// builtin\n"))

	uri, modulePath, isCModule, err := cp.ResolveImport(cp.BaseFolder, []string{"x"}, "mylib")
	require.NoError(t, err)
	assert.False(t, isCModule)
	assert.Equal(t, "x", modulePath)
	assert.Equal(t, "vfs:horse_modules_builtin/mylib/x.h64", uri)
}

func TestResolveImportLibrarySourceFallsBackToDisk(t *testing.T) {
	root := t.TempDir()
	libDir := filepath.Join(root, "horse_modules", "mylib")
	require.NoError(t, os.MkdirAll(libDir, 0o755))
	target := filepath.Join(libDir, "x.h64")
	require.NoError(t, os.WriteFile(target, []byte("// disk\n"), 0o644))

	prog := ir.NewProgram()
	cp := project.NewCompileProject(root, prog, &diag.Bag{})

	uri, _, isCModule, err := cp.ResolveImport(cp.BaseFolder, []string{"x"}, "mylib")
	require.NoError(t, err)
	assert.False(t, isCModule)
	assert.Equal(t, project.FileURI(target), uri)
}

func TestResolveImportProjectLocalPrefersDeepestMatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b.h64"), []byte("// shallow\n"), 0o644))

	subDir := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(subDir, "a"), 0o755))
	deepFile := filepath.Join(subDir, "a", "b.h64")
	require.NoError(t, os.WriteFile(deepFile, []byte("// deep\n"), 0o644))

	prog := ir.NewProgram()
	cp := project.NewCompileProject(root, prog, &diag.Bag{})

	uri, modulePath, isCModule, err := cp.ResolveImport(subDir, []string{"a", "b"}, "")
	require.NoError(t, err)
	assert.False(t, isCModule)
	assert.Equal(t, "a.b", modulePath)
	assert.Equal(t, project.FileURI(deepFile), uri)
}

func TestResolveImportRejectsDottedComponent(t *testing.T) {
	prog := ir.NewProgram()
	cp := project.NewCompileProject(t.TempDir(), prog, &diag.Bag{})

	_, _, _, err := cp.ResolveImport(cp.BaseFolder, []string{"a.b", "c"}, "")
	require.Error(t, err)
	var dotErr *project.DottedComponentError
	require.ErrorAs(t, err, &dotErr)
}

func TestResolveImportNotFoundError(t *testing.T) {
	prog := ir.NewProgram()
	cp := project.NewCompileProject(t.TempDir(), prog, &diag.Bag{})

	_, _, _, err := cp.ResolveImport(cp.BaseFolder, []string{"nope"}, "")
	require.Error(t, err)
	var notFound *project.ImportNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestGetASTCachesByRelPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.h64"), []byte("func run() {\n    return 1\n}\n"), 0o644))

	prog := ir.NewProgram()
	cp := project.NewCompileProject(root, prog, &diag.Bag{})

	ch1, err := cp.GetAST("main.h64")
	require.NoError(t, err)
	ch2, err := cp.GetAST("main.h64")
	require.NoError(t, err)
	assert.Same(t, ch1, ch2)
}

func TestLoadAllPreservesInputOrder(t *testing.T) {
	root := t.TempDir()
	names := []string{"one.h64", "two.h64", "three.h64", "four.h64", "five.h64"}
	for i, n := range names {
		src := fmt.Sprintf("func f%d() {\n    return %d\n}\n", i, i)
		require.NoError(t, os.WriteFile(filepath.Join(root, n), []byte(src), 0o644))
	}

	prog := ir.NewProgram()
	cp := project.NewCompileProject(root, prog, &diag.Bag{})

	chunks, err := cp.LoadAll(context.Background(), names)
	require.NoError(t, err)
	require.Len(t, chunks, len(names))
	for i, n := range names {
		assert.Equal(t, n, chunks[i].Name)
	}
}

// TestImportedFuncResolvesAcrossFiles exercises the whole E->F handoff: a
// project-local import resolved by CompileProject, consumed lazily by the
// resolver's ImportLookup while walking main.h64's identifier chain.
func TestImportedFuncResolvesAcrossFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib.h64"), []byte(`
func helper() {
    return 42
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.h64"), []byte(`
import lib

func run() {
    return lib.helper()
}
`), 0o644))

	prog := ir.NewProgram()
	bag := &diag.Bag{}
	cp := project.NewCompileProject(root, prog, bag)

	chunks, err := cp.LoadAll(context.Background(), []string{"main.h64"})
	require.NoError(t, err)
	require.True(t, bag.Success(), "load errors: %v", bag.Messages())

	r := resolver.New(prog, bag, cp.ImportLookup)
	r.ResolveProject(chunks)
	require.True(t, bag.Success(), "resolve errors: %v", bag.Messages())

	run := findFunc(t, chunks[0], "run")
	ret := run.Body.Stmts[0].(*ast.ReturnStmt)
	call := ret.Expr.(*ast.CallExpr)
	dot := call.Fn.(*ast.DotExpr)
	assert.Equal(t, ast.GlobalFuncSlot, dot.ExprInfo.Storage.Kind)

	helperID, ok := prog.Module("", "lib").FuncIndex["helper"]
	require.True(t, ok)
	assert.Equal(t, int(helperID), dot.ExprInfo.Storage.ID)
}

func TestImportedSymbolNotFoundIsAnError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib.h64"), []byte(`
func helper() {
    return 42
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.h64"), []byte(`
import lib

func run() {
    return lib.missing()
}
`), 0o644))

	prog := ir.NewProgram()
	bag := &diag.Bag{}
	cp := project.NewCompileProject(root, prog, bag)

	chunks, err := cp.LoadAll(context.Background(), []string{"main.h64"})
	require.NoError(t, err)
	require.True(t, bag.Success())

	r := resolver.New(prog, bag, cp.ImportLookup)
	r.ResolveProject(chunks)
	assert.False(t, bag.Success())
}

func findFunc(t *testing.T, ch *ast.Chunk, name string) *ast.FuncStmt {
	t.Helper()
	for _, stmt := range ch.Block.Stmts {
		if fs, ok := stmt.(*ast.FuncStmt); ok && fs.Name.Lit == name {
			return fs
		}
	}
	t.Fatalf("no func named %s", name)
	return nil
}
