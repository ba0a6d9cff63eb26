package ir_test

import (
	"testing"

	"github.com/h64p/horsec/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrTableIntern(t *testing.T) {
	tbl := ir.NewAttrTable()

	id, ok := tbl.Intern("to_str", false)
	assert.False(t, ok)

	id, ok = tbl.Intern("to_str", true)
	require.True(t, ok)
	assert.Equal(t, id, tbl.Known.ToStr)

	again, ok := tbl.Intern("to_str", false)
	require.True(t, ok)
	assert.Equal(t, id, again)

	other, ok := tbl.Intern("my_attr", true)
	require.True(t, ok)
	assert.NotEqual(t, id, other)
	assert.Equal(t, "my_attr", tbl.Name(other))
}

func TestAttrHashTableRebuildAndLookup(t *testing.T) {
	cl := ir.Class{
		VarAttrs:  []ir.VarAttr{{NameID: 3}, {NameID: 7}},
		FuncAttrs: []ir.FuncAttr{{NameID: 11}},
	}
	var h ir.AttrHashTable
	h.Rebuild(&cl)

	slot, ok := h.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, 0, slot)

	slot, ok = h.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, 1, slot)

	slot, ok = h.Lookup(11)
	require.True(t, ok)
	assert.Equal(t, ir.MethodOffset, slot)

	_, ok = h.Lookup(99)
	assert.False(t, ok)
}
