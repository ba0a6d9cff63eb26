package parser

import (
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/token"
)

// parseChunk parses an entire file: a sequence of top-level statements (no
// enclosing braces) terminated by EOF.
func (p *parser) parseChunk() *ast.Chunk {
	var chunk ast.Chunk
	chunk.Block = p.parseStmtList(token.EOF)
	chunk.EOF = p.expect(token.EOF)
	return &chunk
}

// parseBlock parses a brace-delimited statement list: "{ stmt* }".
func (p *parser) parseBlock() *ast.Block {
	lbrace := p.expect(token.LBRACE)
	block := p.parseStmtList(token.RBRACE)
	block.Start = lbrace
	rbrace := p.expect(token.RBRACE)
	block.End = rbrace.Advance(1)
	return block
}

// parseStmtList collects statements until the current token is end or EOF.
// It does not consume end itself, leaving that to the caller.
func (p *parser) parseStmtList(end token.Token) *ast.Block {
	var block ast.Block
	block.Start = p.pos()

	var ending ast.Stmt
	var endingReported bool
	for p.tok != end && p.tok != token.EOF {
		stmt := p.parseStmt()
		if stmt == nil {
			continue
		}
		if ending != nil && !endingReported {
			pos, _ := stmt.Span()
			p.errorExpected(pos, "end of block")
			endingReported = true
		} else if stmt.BlockEnding() {
			ending = stmt
		}
		block.Stmts = append(block.Stmts, stmt)
	}
	block.End = p.pos()
	return &block
}
