package ir_test

import (
	"testing"

	"github.com/h64p/horsec/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramAddFuncClassGlobal(t *testing.T) {
	p := ir.NewProgram()

	fid := p.AddFunc(ir.Func{PosArgCount: 2, Threadable: true})
	assert.Equal(t, ir.FuncID(0), fid)
	assert.Equal(t, 2, p.Func(fid).PosArgCount)

	cid := p.AddClass(ir.Class{BaseClass: ir.NoID})
	assert.Equal(t, ir.ClassID(0), cid)
	assert.Equal(t, ir.NoID, int(p.Class(cid).VarInitFunc))

	gid := p.AddGlobal(ir.Global{Name: "x", IsConst: true})
	assert.Equal(t, ir.GlobalID(0), gid)
	assert.Equal(t, "x", p.Global(gid).Name)
}

func TestProgramModuleRegistration(t *testing.T) {
	p := ir.NewProgram()
	fid := p.AddFunc(ir.Func{})

	mod := p.Module("net", "http.server")
	mod.RegisterFunc("listen", fid, 0)

	same := p.Module("net", "http.server")
	require.Same(t, mod, same)

	got, ok := same.FuncIndex["listen"]
	require.True(t, ok)
	assert.Equal(t, fid, got)

	builtin := p.Module("", "")
	_, ok = p.Modules[ir.BuiltinModuleKey]
	assert.True(t, ok)
	assert.NotNil(t, builtin)
}

func TestModuleKey(t *testing.T) {
	assert.Equal(t, "@io", ir.ModuleKey("", "io"))
	assert.Equal(t, "@mylib/io.net", ir.ModuleKey("mylib", "io.net"))
}
