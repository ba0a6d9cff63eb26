package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakePosLineCol(t *testing.T) {
	cases := []struct {
		line, col int
	}{
		{1, 1},
		{1, 80},
		{42, 1},
		{MaxLines, MaxCols},
	}
	for _, c := range cases {
		p := MakePos(c.line, c.col)
		gotLine, gotCol := p.LineCol()
		assert.Equal(t, c.line, gotLine)
		assert.Equal(t, c.col, gotCol)
	}
}

func TestPosUnknownAndValid(t *testing.T) {
	var zero Pos
	assert.True(t, zero.Unknown())
	assert.False(t, zero.IsValid())

	p := MakePos(1, 1)
	assert.False(t, p.Unknown())
	assert.True(t, p.IsValid())

	// a zero line or column alone still counts as unknown
	assert.True(t, MakePos(0, 5).Unknown())
	assert.True(t, MakePos(5, 0).Unknown())
}
