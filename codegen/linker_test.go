package codegen_test

import (
	"testing"

	"github.com/h64p/horsec/ir"
	"github.com/stretchr/testify/assert"
)

func TestLinkProducesNonEmptyCodeForEveryUnit(t *testing.T) {
	_, prog := compileOne(t, `
func f(a) {
    if a {
        return 1
    }
    return 0
}
`)
	for i := range prog.Funcs {
		assert.NotEmpty(t, prog.Func(ir.FuncID(i)).Code, "func #%d has no linked code", i)
	}
}

func TestLinkRecordsLineTableEntries(t *testing.T) {
	ch, prog := compileOne(t, `
func f() {
    return 1
}
`)
	fid := funcID(t, ch, "f")
	assert.NotEmpty(t, prog.Debug.LineTab[fid])
}

func TestLinkResolvesForwardAndBackwardJumps(t *testing.T) {
	_, prog := compileOne(t, `
func loopy(n) {
    while n {
        if n {
            n = n - 1
        }
    }
    return n
}
`)
	for i := range prog.Funcs {
		assert.NotEmpty(t, prog.Func(ir.FuncID(i)).Code)
	}
}
