package storage_test

import (
	"testing"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/parser"
	"github.com/h64p/horsec/resolver"
	"github.com/h64p/horsec/scanner"
	"github.com/h64p/horsec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveOne(t *testing.T, src string) *ast.Chunk {
	t.Helper()
	bag := &diag.Bag{}
	ch := parser.ParseChunk("test.h64", []byte(src), scanner.Config{}, bag)
	require.True(t, bag.Success(), "parse errors: %v", bag.Messages())
	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})
	require.True(t, bag.Success(), "resolve errors: %v", bag.Messages())
	return ch
}

func funcStorage(t *testing.T, ch *ast.Chunk, name string) *storage.FuncInfo {
	t.Helper()
	for _, stmt := range ch.Block.Stmts {
		if fs, ok := stmt.(*ast.FuncStmt); ok && fs.Name.Lit == name {
			fi, ok := fs.StorageInfo.(*storage.FuncInfo)
			require.True(t, ok, "no storage info for %s", name)
			return fi
		}
	}
	t.Fatalf("no func named %s", name)
	return nil
}

func TestSimpleLocalsGetDistinctSlots(t *testing.T) {
	ch := resolveOne(t, `
func f() {
    var a = 1
    var b = 2
    return a + b
}
`)
	storage.Allocate([]*ast.Chunk{ch})

	fi := funcStorage(t, ch, "f")
	assert.Len(t, fi.Assignments, 2)
	assert.NotEqual(t, fi.Assignments[0].ValueSlot, fi.Assignments[1].ValueSlot)
}

func TestDisjointLifetimesReuseSlot(t *testing.T) {
	ch := resolveOne(t, `
func f() {
    var a = 1
    var unused_gap = a
    var b = 2
    return b
}
`)
	storage.Allocate([]*ast.Chunk{ch})

	fi := funcStorage(t, ch, "f")
	// a's lifetime ends before b's starts, so b should be able to reuse a's
	// slot instead of growing the frame for every local.
	slots := map[string]int{}
	for _, as := range fi.Assignments {
		slots[as.Def.Name] = as.ValueSlot
	}
	assert.Equal(t, slots["a"], slots["b"])
}

func TestMethodSelfOccupiesSlotZero(t *testing.T) {
	ch := resolveOne(t, `
class Counter {
    var count = 0

    func bump() {
        var step = 1
        return self.count + step
    }
}
`)
	storage.Allocate([]*ast.Chunk{ch})

	cls := ch.Block.Stmts[0].(*ast.ClassStmt)
	fi, ok := cls.Body.Methods[0].StorageInfo.(*storage.FuncInfo)
	require.True(t, ok)
	assert.True(t, fi.HasSelf)
	require.Len(t, fi.Assignments, 1)
	assert.Equal(t, 1, fi.Assignments[0].ValueSlot) // slot 0 reserved for self
}

func TestClosureCaptureGetsBoxSlot(t *testing.T) {
	ch := resolveOne(t, `
func outer() {
    var x = 1
    func inner() {
        return x
    }
    return inner
}
`)
	storage.Allocate([]*ast.Chunk{ch})

	outer := funcStorage(t, ch, "outer")
	require.Len(t, outer.Assignments, 2) // x itself, plus the inner func-def value
	var xAssign *storage.Assignment
	for i := range outer.Assignments {
		if outer.Assignments[i].Def.Name == "x" {
			xAssign = &outer.Assignments[i]
		}
	}
	require.NotNil(t, xAssign)
	assert.GreaterOrEqual(t, xAssign.ValueBoxSlot, 0)

	var innerStmt *ast.FuncStmt
	for _, s := range ch.Block.Stmts {
		if fs, ok := s.(*ast.FuncStmt); ok && fs.Name.Lit == "outer" {
			innerStmt = fs.Body.Stmts[1].(*ast.FuncStmt)
		}
	}
	require.NotNil(t, innerStmt)
	inner, ok := innerStmt.StorageInfo.(*storage.FuncInfo)
	require.True(t, ok)
	require.Len(t, inner.ClosureBoundVars, 1)
	assert.Equal(t, "x", inner.ClosureBoundVars[0].Name)
}

func TestForIteratorAlwaysAllocates(t *testing.T) {
	ch := resolveOne(t, `
func f(items) {
    for item in items {
        var discard = 0
    }
}
`)
	storage.Allocate([]*ast.Chunk{ch})

	fi := funcStorage(t, ch, "f")
	found := false
	for _, as := range fi.Assignments {
		if as.Def.Name == "item" {
			found = true
		}
	}
	assert.True(t, found, "loop iterator should always get a storage slot")
}
