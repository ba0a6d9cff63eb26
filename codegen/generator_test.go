package codegen_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/h64p/horsec/asynccheck"
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/codegen"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/parser"
	"github.com/h64p/horsec/resolver"
	"github.com/h64p/horsec/scanner"
	"github.com/h64p/horsec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileOne runs every front-end stage (parse, resolve, storage
// allocation, async-propagation, codegen, linking) over a single-chunk
// source string, requiring no errors along the way.
func compileOne(t *testing.T, src string) (*ast.Chunk, *ir.Program) {
	t.Helper()
	bag := &diag.Bag{}
	ch := parser.ParseChunk("test.h64", []byte(src), scanner.Config{}, bag)
	require.True(t, bag.Success(), "parse errors: %v", bag.Messages())

	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})
	require.True(t, bag.Success(), "resolve errors: %v", bag.Messages())

	chunks := []*ast.Chunk{ch}
	storage.Allocate(chunks)
	asynccheck.Check(prog, chunks, bag)
	require.True(t, bag.Success(), "async-check errors: %v", bag.Messages())

	units := codegen.Generate(prog, chunks, bag)
	require.True(t, bag.Success(), "codegen errors: %v", bag.Messages())

	require.NoError(t, codegen.Link(prog, units))
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

func TestSimpleFuncEndsInReturn(t *testing.T) {
	ch, prog := compileOne(t, `
func add(a, b) {
    return a + b
}
`)
	fn := prog.Func(funcID(t, ch, "add"))
	require.NotEmpty(t, fn.Code)

	dis := codegen.Disassemble(prog)
	assert.Contains(t, dis, "function: add")
	assert.Contains(t, dis, "binop")
	assert.Contains(t, dis, "returnvalue")
}

func TestFuncWithNoExplicitReturnGetsImplicitNone(t *testing.T) {
	ch, prog := compileOne(t, `
func greet() {
    var x = 1
}
`)
	fn := prog.Func(funcID(t, ch, "greet"))
	assert.GreaterOrEqual(t, fn.InnerStackSize, 1)

	dis := codegen.Disassemble(prog)
	assert.Contains(t, dis, "function: greet")
	assert.Contains(t, dis, "setconst")
	assert.Contains(t, dis, "none")
	assert.Contains(t, dis, "returnvalue")
}

func TestIfStatementEmitsCondJump(t *testing.T) {
	_, prog := compileOne(t, `
func choose(flag) {
    if flag {
        return 1
    } else {
        return 2
    }
}
`)
	dis := codegen.Disassemble(prog)
	assert.Contains(t, dis, "condjump")
	assert.Contains(t, dis, "jump ")
}

func TestWhileLoopEmitsJumpsBothWays(t *testing.T) {
	_, prog := compileOne(t, `
func countdown(n) {
    while n {
        n = n - 1
    }
    return n
}
`)
	dis := codegen.Disassemble(prog)
	assert.Contains(t, dis, "condjump")
	assert.Contains(t, dis, "jump ")
	assert.Contains(t, dis, "binop")
}

func TestAndOrShortCircuitEmitOneCondJumpEach(t *testing.T) {
	ch, prog := compileOne(t, `
func both(a, b) {
    return a and b
}

func either(a, b) {
    return a or b
}
`)
	bothFn := prog.Func(funcID(t, ch, "both"))
	eitherFn := prog.Func(funcID(t, ch, "either"))
	assert.NotEmpty(t, bothFn.Code)
	assert.NotEmpty(t, eitherFn.Code)

	assert.Equal(t, 1, strings.Count(funcDisasmBlock(t, prog, funcID(t, ch, "both")), "condjump"))
	assert.Equal(t, 1, strings.Count(funcDisasmBlock(t, prog, funcID(t, ch, "either")), "condjump"))
}

func TestAttributeAccessUsesRuntimeLookup(t *testing.T) {
	_, prog := compileOne(t, `
class Point {
    var x = 0
    var y = 0
}

func getX(p) {
    return p.x
}
`)
	dis := codegen.Disassemble(prog)
	assert.Contains(t, dis, "getattributebyname")
}

func TestClassWithFieldInitGetsVarInitFunc(t *testing.T) {
	ch, prog := compileOne(t, `
class Point {
    var x = 1
    var y = 2
}
`)
	cid := classID(t, ch, "Point")
	cl := prog.Class(cid)
	require.True(t, cl.HasVarInitFunc)
	assert.NotEqual(t, ir.NoID, cl.VarInitFunc)

	varInit := prog.Func(cl.VarInitFunc)
	assert.NotEmpty(t, varInit.Code)
}

func TestClassWithNoFieldInitHasNoVarInitFunc(t *testing.T) {
	ch, prog := compileOne(t, `
class Empty {
    func hello() {
        return 1
    }
}
`)
	cid := classID(t, ch, "Empty")
	cl := prog.Class(cid)
	assert.False(t, cl.HasVarInitFunc)
}

func TestDerivedClassVarInitCallsBaseFirst(t *testing.T) {
	ch, prog := compileOne(t, `
class Base {
    var a = 1
}

class Derived extends Base {
    var b = 2
}
`)
	derived := prog.Class(classID(t, ch, "Derived"))
	require.True(t, derived.HasVarInitFunc)

	dis := codegen.Disassemble(prog)
	assert.Contains(t, dis, "$$varinit")
}

// TestInheritedVarAttrsFormPrefix checks spec.md §8's "C's varattr list
// starts with a prefix equal to base.varattrs": Derived.VarAttrs must be
// [a, b] in that order, not [b, a] - so the index Base's methods use for
// "a" (0) still means "a" once inherited into Derived.
func TestInheritedVarAttrsFormPrefix(t *testing.T) {
	ch, prog := compileOne(t, `
class Base {
    var a = 1
}

class Derived extends Base {
    var b = 2
}
`)
	derived := prog.Class(classID(t, ch, "Derived"))
	require.Len(t, derived.VarAttrs, 2)
	assert.Equal(t, "a", prog.Attrs.Name(derived.VarAttrs[0].NameID))
	assert.Equal(t, "b", prog.Attrs.Name(derived.VarAttrs[1].NameID))

	// Derived's own $$varinit stores into its own slot, b, which - since
	// a's prefix now occupies index 0 - must be index 1, not 0 (0 would
	// mean a method compiled against Base's layout writes b instead of a
	// on a Derived instance).
	block := funcDisasmBlock(t, prog, derived.VarInitFunc)
	assert.Contains(t, block, ".#1 =")
	assert.NotContains(t, block, ".#0 =")
}

// funcDisasmBlock returns the "function: ..." block of Disassemble's output
// belonging to id, by counting "function: " headers in order - Disassemble
// emits one per prog.Funcs index, in index order.
func funcDisasmBlock(t *testing.T, prog *ir.Program, id ir.FuncID) string {
	t.Helper()
	dis := codegen.Disassemble(prog)
	blocks := strings.Split(dis, "function: ")
	require.Greater(t, len(blocks), int(id), "no disassembly block for func #%d", id)
	return blocks[int(id)+1]
}

func TestGlobalInitCollectsTopLevelStatements(t *testing.T) {
	_, prog := compileOne(t, `
var counter = 1
counter = counter + 1
`)
	require.NotEqual(t, ir.NoID, prog.GlobalInitFuncIndex)
	fn := prog.Func(prog.GlobalInitFuncIndex)
	assert.NotEmpty(t, fn.Code)
}

func TestForInLoopEmitsIterateAndNewIterator(t *testing.T) {
	_, prog := compileOne(t, `
func sumAll(xs) {
    var total = 0
    for x in xs {
        total = total + x
    }
    return total
}
`)
	dis := codegen.Disassemble(prog)
	assert.Contains(t, dis, "newiterator")
	assert.Contains(t, dis, "iterate")
}

// TestDoRescueFinallyPopsCatchFrameAfterFinallyBody checks spec.md §4.9's
// required order - body, jumptofinally, rescue target, rescue body,
// finally target, finally body, popcatchframe, end - by asserting the
// frame's pop comes after the finally body's own code, not right after the
// try body.
func TestDoRescueFinallyPopsCatchFrameAfterFinallyBody(t *testing.T) {
	ch, prog := compileOne(t, `
class ValueError {
}

func f() {
    do {
        var x = 1
    } rescue ValueError as e {
        var y = 2
    } finally {
        var z = 3
    }
}
`)
	block := funcDisasmBlock(t, prog, funcID(t, ch, "f"))
	pop := strings.Index(block, "popcatchframe")
	finallyBody := regexp.MustCompile(`setconst \d+, 3`).FindStringIndex(block)
	rescueBody := regexp.MustCompile(`setconst \d+, 2`).FindStringIndex(block)
	require.NotEqual(t, -1, pop)
	require.NotNil(t, finallyBody, "expected the finally body's setconst 3 in %s", block)
	require.NotNil(t, rescueBody, "expected the rescue body's setconst 2 in %s", block)
	assert.Greater(t, pop, finallyBody[0], "popcatchframe must come after the finally body")
	assert.Greater(t, pop, rescueBody[0], "popcatchframe must come after every rescue body")
}

// TestDoWithNoFinallyStillPopsCatchFrame checks that a do/rescue with no
// finally clause still pops its catch frame before the function ends -
// the bug this guards was the frame never being popped on the
// rescue/unwind path when there was no explicit finally block.
func TestDoWithNoFinallyStillPopsCatchFrame(t *testing.T) {
	ch, prog := compileOne(t, `
class ValueError {
}

func f() {
    do {
        var x = 1
    } rescue ValueError {
        var y = 2
    }
}
`)
	block := funcDisasmBlock(t, prog, funcID(t, ch, "f"))
	assert.Contains(t, block, "popcatchframe")
}

// TestWithMultipleClausesNestsPerClauseFrames checks spec.md's with-bullet:
// "nest tiny per-clause do/finally frames so that failure in one clause's
// close() still runs the subsequent clauses' close()". Two with-clauses
// must produce two nested pushcatchframe/popcatchframe pairs around their
// close() dispatch, not one shared frame.
func TestWithMultipleClausesNestsPerClauseFrames(t *testing.T) {
	ch, prog := compileOne(t, `
func f(a, b) {
    with a as x, b as y {
        var z = 1
    }
}
`)
	block := funcDisasmBlock(t, prog, funcID(t, ch, "f"))
	assert.Equal(t, 3, strings.Count(block, "pushcatchframe"), "expected one outer frame plus one per with-clause")
	assert.Equal(t, 3, strings.Count(block, "popcatchframe"))
	assert.Equal(t, 2, strings.Count(block, "hasattrjump"), "expected one close() dispatch per with-clause")
}

func TestNewExpressionCallsConstructor(t *testing.T) {
	_, prog := compileOne(t, `
class Widget {
    func init() {
        return 1
    }
}

func makeOne() {
    return new Widget()
}
`)
	dis := codegen.Disassemble(prog)
	assert.Contains(t, dis, "newinstance")
	assert.Contains(t, dis, "getconstructor")
}
