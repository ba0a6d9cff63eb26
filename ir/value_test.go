package ir_test

import (
	"strings"
	"testing"

	"github.com/h64p/horsec/ir"
	"github.com/stretchr/testify/assert"
)

func TestNewStringValueShortVsLong(t *testing.T) {
	short := ir.NewStringValue("hello")
	assert.Equal(t, ir.KindShortStr, short.Kind)
	assert.Equal(t, "hello", short.Str())

	long := ir.NewStringValue(strings.Repeat("x", ir.ShortStrLen+1))
	assert.Equal(t, ir.KindLongStr, long.Kind)
	assert.Equal(t, ir.ShortStrLen+1, len(long.Str()))
}

func TestNewBytesValueShortVsLong(t *testing.T) {
	short := ir.NewBytesValue([]byte("ab"))
	assert.Equal(t, ir.KindShortBytes, short.Kind)

	long := ir.NewBytesValue(make([]byte, ir.ShortStrLen+1))
	assert.Equal(t, ir.KindLongBytes, long.Kind)
}

func TestScalarValueConstructors(t *testing.T) {
	assert.Equal(t, int64(42), ir.NewIntValue(42).Int)
	assert.Equal(t, 3.5, ir.NewFloatValue(3.5).Float)
	assert.True(t, ir.NewBoolValue(true).Bool)
	assert.Equal(t, ir.KindNone, ir.NoneValue.Kind)
	assert.Equal(t, ir.KindUnspecifiedKwarg, ir.UnspecifiedKwargValue.Kind)
}
