package asynccheck_test

import (
	"testing"

	"github.com/h64p/horsec/asynccheck"
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/parser"
	"github.com/h64p/horsec/resolver"
	"github.com/h64p/horsec/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveOne(t *testing.T, src string) (*ast.Chunk, *ir.Program) {
	t.Helper()
	bag := &diag.Bag{}
	ch := parser.ParseChunk("test.h64", []byte(src), scanner.Config{}, bag)
	require.True(t, bag.Success(), "parse errors: %v", bag.Messages())
	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})
	require.True(t, bag.Success(), "resolve errors: %v", bag.Messages())
	return ch, prog
}

func funcID(t *testing.T, ch *ast.Chunk, name string) ir.FuncID {
	t.Helper()
	for _, stmt := range ch.Block.Stmts {
		if fs, ok := stmt.(*ast.FuncStmt); ok && fs.Name.Lit == name {
			fid, ok := fs.FuncID.(ir.FuncID)
			require.True(t, ok, "no FuncID recorded for %s", name)
			return fid
		}
	}
	t.Fatalf("no func named %s", name)
	return 0
}

func classID(t *testing.T, ch *ast.Chunk, name string) ir.ClassID {
	t.Helper()
	for _, stmt := range ch.Block.Stmts {
		if cs, ok := stmt.(*ast.ClassStmt); ok && cs.Name.Lit == name {
			cid, ok := cs.ClassInfo.(ir.ClassID)
			require.True(t, ok, "no ClassInfo recorded for %s", name)
			return cid
		}
	}
	t.Fatalf("no class named %s", name)
	return 0
}

func TestNonThreadableCalleePropagatesToCaller(t *testing.T) {
	ch, prog := resolveOne(t, `
func helper() noasync {
    return 1
}

func caller() {
    return helper()
}
`)
	bag := &diag.Bag{}
	asynccheck.Check(prog, []*ast.Chunk{ch}, bag)
	assert.True(t, bag.Success())

	caller := funcID(t, ch, "caller")
	assert.False(t, prog.Func(caller).Threadable)
}

func TestAsyncCallerOfNoAsyncCalleeIsAnError(t *testing.T) {
	ch, prog := resolveOne(t, `
func helper() noasync {
    return 1
}

func caller() async {
    return helper()
}
`)
	bag := &diag.Bag{}
	asynccheck.Check(prog, []*ast.Chunk{ch}, bag)
	assert.False(t, bag.Success())

	caller := funcID(t, ch, "caller")
	assert.False(t, prog.Func(caller).Threadable)
}

func TestNonThreadableInitDemotesWholeClass(t *testing.T) {
	ch, prog := resolveOne(t, `
func broken() noasync {
    return 1
}

class Widget {
    func init() {
        return broken()
    }

    func other() {
        return 1
    }
}
`)
	bag := &diag.Bag{}
	asynccheck.Check(prog, []*ast.Chunk{ch}, bag)
	assert.True(t, bag.Success())

	cid := classID(t, ch, "Widget")
	assert.False(t, prog.Class(cid).Threadable)
}

func TestAsyncFuncAccessingNonConstGlobalIsAnError(t *testing.T) {
	ch, prog := resolveOne(t, `
var counter = 0

func bump() async {
    counter = counter + 1
    return counter
}
`)
	bag := &diag.Bag{}
	asynccheck.Check(prog, []*ast.Chunk{ch}, bag)
	assert.False(t, bag.Success())

	bump := funcID(t, ch, "bump")
	assert.False(t, prog.Func(bump).Threadable)
}

func TestAsyncFuncAccessingSimpleConstIsFine(t *testing.T) {
	ch, prog := resolveOne(t, `
const limit = 10

func check() async {
    return limit
}
`)
	bag := &diag.Bag{}
	asynccheck.Check(prog, []*ast.Chunk{ch}, bag)
	assert.True(t, bag.Success())

	check := funcID(t, ch, "check")
	assert.True(t, prog.Func(check).Threadable)
}

func TestDemotionConvergesAcrossMultipleHops(t *testing.T) {
	ch, prog := resolveOne(t, `
func c() noasync {
    return 1
}

func b() {
    return c()
}

func a() async {
    return b()
}
`)
	bag := &diag.Bag{}
	asynccheck.Check(prog, []*ast.Chunk{ch}, bag)
	assert.False(t, bag.Success())

	assert.False(t, prog.Func(funcID(t, ch, "b")).Threadable)
	assert.False(t, prog.Func(funcID(t, ch, "a")).Threadable)
}
