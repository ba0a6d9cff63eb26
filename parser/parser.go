// Package parser implements the Horse64 parser (D): a recursive-descent,
// operator-precedence-climbing parser that turns a token stream into an
// *ast.Chunk.
package parser

import (
	"errors"
	"strings"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/scanner"
	"github.com/h64p/horsec/token"
)

// ParseChunk parses a single Horse64 source file into an *ast.Chunk. Lex and
// parse errors are reported to bag; per spec.md §4.3's failure model, a
// Chunk is always returned (possibly with partially-synthesized BadStmt/
// BadExpr nodes) so callers can keep compiling the rest of a project.
func ParseChunk(filename string, src []byte, cfg scanner.Config, bag *diag.Bag) *ast.Chunk {
	var p parser
	p.init(filename, src, cfg, bag)
	ch := p.parseChunk()
	ch.Name = filename
	return ch
}

// parser parses one file and generates an AST.
type parser struct {
	filename string
	scan     scanner.Scanner
	bag      *diag.Bag

	tok   token.Token
	val   scanner.Value
	nTok  int // running token index, for ast.ExprInfo.TokenIndex / lifetime analysis

	// peeked holds one token of lookahead, consumed lazily for the "not in"
	// synthesis (two keywords forming a single binary operator).
	hasPeek bool
	peekTok token.Token
	peekVal scanner.Value
}

func (p *parser) init(filename string, src []byte, cfg scanner.Config, bag *diag.Bag) {
	p.filename = filename
	p.bag = bag
	p.scan.Init(filename, src, cfg, bag)
	p.nTok = -1
	p.advance()
}

func (p *parser) pos() token.Pos { return token.MakePos(p.val.Line, p.val.Col) }

func (p *parser) rawScan() (token.Token, scanner.Value) {
	var v scanner.Value
	t := p.scan.Scan(&v)
	return t, v
}

func (p *parser) advance() {
	if p.hasPeek {
		p.tok, p.val = p.peekTok, p.peekVal
		p.hasPeek = false
	} else {
		p.tok, p.val = p.rawScan()
	}
	p.nTok++
}

// peek returns the token following the current one without consuming it.
func (p *parser) peek() token.Token {
	if !p.hasPeek {
		p.peekTok, p.peekVal = p.rawScan()
		p.hasPeek = true
	}
	return p.peekTok
}

var errPanicMode = errors.New("parser panic mode")

// expect consumes and returns the position of the current token if it
// matches one of toks, otherwise reports an error and unwinds to the
// nearest statement boundary via errPanicMode.
func (p *parser) expect(toks ...token.Token) token.Pos {
	pos := p.pos()
	for _, t := range toks {
		if p.tok == t {
			p.advance()
			return pos
		}
	}
	p.errorExpected(pos, describeToks(toks))
	panic(errPanicMode)
}

func (p *parser) at(toks ...token.Token) bool {
	for _, t := range toks {
		if p.tok == t {
			return true
		}
	}
	return false
}

func describeToks(toks []token.Token) string {
	var buf strings.Builder
	for i, t := range toks {
		if i > 0 {
			buf.WriteString(" or ")
		}
		buf.WriteString(t.GoString())
	}
	if len(toks) > 1 {
		return "one of " + buf.String()
	}
	return buf.String()
}

func (p *parser) error(pos token.Pos, msg string) {
	if p.bag == nil {
		return
	}
	line, col := pos.LineCol()
	p.bag.Add(diag.Error, msg, p.filename, line, col)
}

func (p *parser) errorExpected(pos token.Pos, what string) {
	msg := "expected " + what
	if pos == p.pos() {
		if lit := p.tok.GoString(); p.tok == token.IDENT {
			msg += ", found identifier " + p.val.Raw
		} else {
			msg += ", found " + lit
		}
	}
	p.error(pos, msg)
}
