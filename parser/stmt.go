package parser

import (
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/token"
)

// parseStmt parses one statement, recovering to a BadStmt spanning the
// skipped tokens if a parse error is hit, per spec.md §4.4.
func (p *parser) parseStmt() (stmt ast.Stmt) {
	start := p.pos()
	startTok := p.nTok

	defer func() {
		if r := recover(); r != nil {
			if r == errPanicMode {
				stmt = &ast.BadStmt{Start: start, End: p.syncAfterError()}
				return
			}
			panic(r)
		}
		if stmt != nil {
			if ts, ok := stmt.(ast.TokenIndexSetter); ok {
				ts.SetTokenIndex(startTok)
			}
		}
	}()

	switch p.tok {
	case token.SEMI:
		p.advance()
		return nil
	case token.VAR, token.CONST:
		return p.parseDeclStmt()
	case token.IF:
		return p.parseIfStmt(0, false)
	case token.WHILE:
		return p.parseWhileStmt()
	case token.FOR:
		return p.parseForInStmt()
	case token.FUNC:
		return p.parseFuncStmt()
	case token.CLASS:
		return p.parseClassStmt()
	case token.DO:
		return p.parseDoStmt()
	case token.WITH:
		return p.parseWithStmt()
	case token.IMPORT:
		return p.parseImportStmt()
	case token.RETURN:
		return p.parseReturnStmt()
	case token.BREAK, token.CONTINUE:
		return p.parseBreakContinueStmt()
	default:
		return p.parseExprOrAssignStmt()
	}
}

func (p *parser) parseDeclStmt() *ast.AssignStmt {
	var stmt ast.AssignStmt
	stmt.DeclType = p.tok
	stmt.DeclStart = p.expect(token.VAR, token.CONST)

	stmt.Left = append(stmt.Left, p.parseIdentExpr())
	for p.tok == token.COMMA {
		p.advance()
		stmt.Left = append(stmt.Left, p.parseIdentExpr())
	}

	if p.tok == token.EQ {
		stmt.AssignTok = token.EQ
		stmt.AssignPos = p.expect(token.EQ)
		stmt.Right = p.parseExprList()
	}
	return &stmt
}

func (p *parser) parseIfStmt(elseifStart token.Pos, isElseIf bool) *ast.IfStmt {
	var stmt ast.IfStmt
	stmt.IsElseIf = isElseIf
	if isElseIf {
		stmt.Start = elseifStart
	} else {
		stmt.Start = p.expect(token.IF)
	}

	stmt.Cond = p.parseExpr()
	stmt.Body = p.parseBlock()

	if p.tok == token.ELSEIF {
		pos := p.expect(token.ELSEIF)
		stmt.Else = pos
		stmt.ElseIf = p.parseIfStmt(pos, true)
	} else if p.tok == token.ELSE {
		stmt.Else = p.expect(token.ELSE)
		stmt.ElseBlock = p.parseBlock()
	}
	return &stmt
}

func (p *parser) parseWhileStmt() *ast.WhileStmt {
	var stmt ast.WhileStmt
	stmt.While = p.expect(token.WHILE)
	stmt.Cond = p.parseExpr()
	stmt.Body = p.parseBlock()
	return &stmt
}

func (p *parser) parseForInStmt() *ast.ForInStmt {
	var stmt ast.ForInStmt
	stmt.For = p.expect(token.FOR)

	stmt.Left = append(stmt.Left, p.parseIdentExpr())
	for p.tok == token.COMMA {
		p.advance()
		stmt.Left = append(stmt.Left, p.parseIdentExpr())
	}

	stmt.In = p.expect(token.IN)
	stmt.Right = p.parseExpr()
	stmt.Body = p.parseBlock()
	return &stmt
}

func (p *parser) parseFuncStmt() *ast.FuncStmt {
	var stmt ast.FuncStmt
	stmt.Fn = p.expect(token.FUNC)
	stmt.Name = p.parseIdentExpr()
	stmt.Sig = p.parseFuncSignature()
	stmt.Body = p.parseBlock()
	return &stmt
}

func (p *parser) parseClassStmt() *ast.ClassStmt {
	var stmt ast.ClassStmt
	stmt.Class = p.expect(token.CLASS)
	stmt.Name = p.parseIdentExpr()
	if p.tok == token.EXTENDS {
		extends := p.expect(token.EXTENDS)
		base := p.parseSuffixedExpr()
		stmt.Inherits = &ast.ClassInherit{Extends: extends, Expr: base}
	}
	switch p.tok {
	case token.ASYNC:
		stmt.IsCanAsync = true
		p.advance()
	case token.NOASYNC:
		stmt.IsNoAsync = true
		p.advance()
	}
	stmt.Body = p.parseClassBody()
	return &stmt
}

func (p *parser) parseClassBody() *ast.ClassBody {
	var body ast.ClassBody
	body.Lbrace = p.expect(token.LBRACE)
	for !p.at(token.RBRACE, token.EOF) {
		switch p.tok {
		case token.FUNC:
			body.Methods = append(body.Methods, p.parseFuncStmt())
		case token.VAR, token.CONST:
			body.Fields = append(body.Fields, p.parseDeclStmt())
		case token.SEMI:
			p.advance()
		default:
			p.expect(token.FUNC, token.VAR, token.CONST)
		}
	}
	body.Rbrace = p.expect(token.RBRACE)
	return &body
}

func (p *parser) parseDoStmt() *ast.DoStmt {
	var stmt ast.DoStmt
	stmt.Do = p.expect(token.DO)
	stmt.Body = p.parseBlock()

	for p.tok == token.RESCUE {
		var rc ast.RescueClause
		rc.Rescue = p.expect(token.RESCUE)
		rc.Types = append(rc.Types, p.parseSuffixedExpr())
		for p.tok == token.COMMA {
			p.advance()
			rc.Types = append(rc.Types, p.parseSuffixedExpr())
		}
		if p.tok == token.AS {
			rc.As = p.expect(token.AS)
			rc.Name = p.parseIdentExpr()
		}
		rc.Body = p.parseBlock()
		stmt.Rescues = append(stmt.Rescues, &rc)
	}

	if p.tok == token.FINALLY {
		stmt.Finally = p.expect(token.FINALLY)
		stmt.FinBody = p.parseBlock()
	}
	return &stmt
}

func (p *parser) parseWithStmt() *ast.WithStmt {
	var stmt ast.WithStmt
	stmt.With = p.expect(token.WITH)

	stmt.Clauses = append(stmt.Clauses, p.parseWithClause())
	for p.tok == token.COMMA {
		p.advance()
		stmt.Clauses = append(stmt.Clauses, p.parseWithClause())
	}

	stmt.Body = p.parseBlock()
	return &stmt
}

func (p *parser) parseWithClause() *ast.WithClause {
	var c ast.WithClause
	c.Value = p.parseExpr()
	if p.tok == token.AS {
		c.As = p.expect(token.AS)
		c.Name = p.parseIdentExpr()
	}
	return &c
}

func (p *parser) parseImportStmt() *ast.ImportStmt {
	var stmt ast.ImportStmt
	stmt.Import = p.expect(token.IMPORT)
	stmt.Path = append(stmt.Path, p.parseIdentExpr())
	for p.tok == token.DOT {
		p.advance()
		stmt.Path = append(stmt.Path, p.parseIdentExpr())
	}
	if p.tok == token.FROM {
		stmt.From = p.expect(token.FROM)
		stmt.Library = p.parseIdentExpr()
	}
	return &stmt
}

func (p *parser) parseReturnStmt() *ast.ReturnStmt {
	var stmt ast.ReturnStmt
	stmt.Start = p.expect(token.RETURN)
	if maybeExprStart(p.tok) {
		stmt.Expr = p.parseExpr()
	}
	return &stmt
}

func (p *parser) parseBreakContinueStmt() *ast.BreakContinueStmt {
	var stmt ast.BreakContinueStmt
	stmt.Type = p.tok
	stmt.Start = p.expect(p.tok)
	return &stmt
}

// parseExprOrAssignStmt handles the remaining statement forms that all
// start with an expression: plain/compound assignment and call statements.
func (p *parser) parseExprOrAssignStmt() ast.Stmt {
	expr := p.parseExpr()

	switch {
	case p.tok == token.COMMA || p.tok == token.EQ:
		return p.parseAssignStmt(expr)
	case p.tok.IsAssignOp():
		return p.parseAugAssignStmt(expr)
	default:
		if !ast.IsCallExpression(expr) {
			start, _ := expr.Span()
			p.errorExpected(start, "function call")
		}
		return &ast.ExprStmt{Expr: expr}
	}
}

func (p *parser) parseAssignStmt(first ast.Expr) *ast.AssignStmt {
	var stmt ast.AssignStmt
	left := []ast.Expr{first}
	for p.tok == token.COMMA {
		p.advance()
		left = append(left, p.parseExpr())
	}
	for _, e := range left {
		if !ast.IsAssignable(e) {
			start, _ := e.Span()
			p.errorExpected(start, "assignable expression")
		}
	}
	stmt.Left = left
	stmt.AssignTok = token.EQ
	stmt.AssignPos = p.expect(token.EQ)
	stmt.Right = p.parseExprList()
	return &stmt
}

func (p *parser) parseAugAssignStmt(first ast.Expr) *ast.AssignStmt {
	var stmt ast.AssignStmt
	if !ast.IsAssignable(first) {
		start, _ := first.Span()
		p.errorExpected(start, "assignable expression")
	}
	stmt.Left = []ast.Expr{first}
	stmt.AssignTok = p.tok
	stmt.AssignPos = p.expect(p.tok)
	stmt.Right = []ast.Expr{p.parseExpr()}
	return &stmt
}

// maybeExprStart reports whether tok can start an expression, used to
// disambiguate a bare "return" from "return expr".
func maybeExprStart(tok token.Token) bool {
	switch tok {
	case token.SEMI, token.RBRACE, token.EOF:
		return false
	default:
		return true
	}
}

// syncAfterError advances the token stream to the next safe statement
// boundary after a parse error, so the parser can keep producing BadStmt
// nodes instead of aborting the whole file.
func (p *parser) syncAfterError() token.Pos {
	for p.tok != token.EOF {
		switch p.tok {
		case token.SEMI:
			p.advance()
			return p.pos()
		case token.RBRACE, token.VAR, token.CONST, token.IF, token.WHILE,
			token.FOR, token.FUNC, token.CLASS, token.DO, token.WITH,
			token.IMPORT, token.RETURN, token.BREAK, token.CONTINUE:
			return p.pos()
		}
		p.advance()
	}
	return p.pos()
}
