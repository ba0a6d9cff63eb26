package resolver_test

import (
	"testing"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/parser"
	"github.com/h64p/horsec/resolver"
	"github.com/h64p/horsec/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, src string) (*ast.Chunk, *diag.Bag) {
	t.Helper()
	bag := &diag.Bag{}
	ch := parser.ParseChunk("test.h64", []byte(src), scanner.Config{}, bag)
	require.True(t, bag.Success(), "parse errors: %v", bag.Messages())
	return ch, bag
}

func TestResolveGlobalVarAndFunc(t *testing.T) {
	src := `
var counter = 0

func increment() {
    counter = counter + 1
    return counter
}
`
	ch, bag := parseOne(t, src)
	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})

	require.True(t, bag.Success(), "resolve errors: %v", bag.Messages())
	require.Len(t, prog.Globals, 1)
	assert.Equal(t, "counter", prog.Globals[0].Name)
	require.Len(t, prog.Funcs, 1)
	assert.Equal(t, 0, prog.Funcs[0].PosArgCount)
}

func TestResolveUndefinedIdentifier(t *testing.T) {
	src := `
func f() {
    return missing
}
`
	ch, bag := parseOne(t, src)
	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})

	assert.False(t, bag.Success())
}

func TestResolveClassInheritance(t *testing.T) {
	src := `
class Animal {
    var name = "animal"

    func speak() {
        return self.name
    }
}

class Dog extends Animal {
    func bark() {
        return self.name
    }
}
`
	ch, bag := parseOne(t, src)
	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})

	require.True(t, bag.Success(), "resolve errors: %v", bag.Messages())
	require.Len(t, prog.Classes, 2)

	dog := prog.Classes[1]
	require.Equal(t, ir.ClassID(0), dog.BaseClass)
	// Dog inherits Animal's "name" var-attr and keeps its own "bark" method
	// plus Animal's "speak" method.
	assert.Len(t, dog.VarAttrs, 1)
	assert.Len(t, dog.FuncAttrs, 2)
}

// TestInheritedVarAttrsArePrefix matches spec.md §8 scenario 3 exactly:
// "class A { var x }" / "class B extends A { var y }" must leave B's
// varattrs as [x, y], in that order - base attrs form a prefix, they are
// never appended after the child's own.
func TestInheritedVarAttrsArePrefix(t *testing.T) {
	src := `
class A {
    var x = 1
}

class B extends A {
    var y = 2
}
`
	ch, bag := parseOne(t, src)
	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})
	require.True(t, bag.Success(), "resolve errors: %v", bag.Messages())

	b := prog.Classes[1]
	require.Len(t, b.VarAttrs, 2)
	assert.Equal(t, "x", prog.Attrs.Name(b.VarAttrs[0].NameID))
	assert.Equal(t, "y", prog.Attrs.Name(b.VarAttrs[1].NameID))
}

func TestSelfOutsideMethodIsAnError(t *testing.T) {
	src := `
func f() {
    return self
}
`
	ch, bag := parseOne(t, src)
	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})

	assert.False(t, bag.Success())
}

func TestClosureCapturesOuterLocal(t *testing.T) {
	src := `
func outer() {
    var x = 1
    func inner() {
        return x
    }
    return inner
}
`
	ch, bag := parseOne(t, src)
	prog := ir.NewProgram()
	r := resolver.New(prog, bag, nil)
	r.ResolveProject([]*ast.Chunk{ch})

	require.True(t, bag.Success(), "resolve errors: %v", bag.Messages())
}
