package parser

import (
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/token"
)

const unaryPriority = 9

// binPriority returns the left/right binding power of a binary operator
// token, or ok=false if tok isn't one.
func binPriority(tok token.Token) (left, right int, ok bool) {
	switch tok {
	case token.OR:
		return 1, 1, true
	case token.AND:
		return 2, 2, true
	case token.LT, token.LE, token.GT, token.GE, token.EQEQ, token.NEQ,
		token.IS, token.IS_A, token.IN, token.NOT_IN:
		return 3, 3, true
	case token.PIPE:
		return 4, 4, true
	case token.CIRCUMFLEX:
		return 5, 5, true
	case token.AMPERSAND:
		return 6, 6, true
	case token.PLUS, token.MINUS:
		return 7, 7, true
	case token.STAR, token.SLASH, token.PERCENT:
		return 8, 8, true
	default:
		return 0, 0, false
	}
}

func (p *parser) parseExpr() ast.Expr { return p.parseSubExpr(0) }

// parseSubExpr implements precedence-climbing binary parsing, per spec.md
// §4.4.
func (p *parser) parseSubExpr(priority int) ast.Expr {
	var left ast.Expr

	switch p.tok {
	case token.NOT, token.MINUS, token.TILDE:
		var u ast.UnaryOpExpr
		u.ExprInfo = ast.NewExprInfo()
		u.ExprInfo.TokenIndex = p.nTok
		u.Type = p.tok
		u.Op = p.expect(p.tok)
		u.Right = p.parseSubExpr(unaryPriority)
		left = &u
	default:
		left = p.parseSuffixedExpr()
	}

	for {
		opTok := p.tok
		notIn := false
		if opTok == token.NOT && p.peek() == token.IN {
			opTok = token.NOT_IN
			notIn = true
		}
		lp, rp, ok := binPriority(opTok)
		if !ok || lp <= priority {
			break
		}

		opPos := p.pos()
		if notIn {
			p.advance() // "not"
			p.advance() // "in"
		} else {
			p.advance()
		}

		right := p.parseSubExpr(rp)
		if opTok == token.IS_A {
			left = &ast.IsAExpr{ExprInfo: ast.NewExprInfo(), Left: left, IsA: opPos, Right: right}
		} else {
			left = &ast.BinOpExpr{ExprInfo: ast.NewExprInfo(), Left: left, Type: opTok, Op: opPos, Right: right}
		}
	}
	return left
}

// parseSuffixedExpr parses a primary expression followed by any chain of
// ".ident", "[index]" or "(args)" suffixes.
func (p *parser) parseSuffixedExpr() ast.Expr {
	e := p.parsePrimaryExpr()
loop:
	for {
		switch p.tok {
		case token.DOT:
			dot := p.expect(token.DOT)
			right := p.parseIdentExpr()
			e = &ast.DotExpr{ExprInfo: ast.NewExprInfo(), Left: e, Dot: dot, Right: right}
		case token.LBRACK:
			lbrack := p.expect(token.LBRACK)
			idx := p.parseExpr()
			rbrack := p.expect(token.RBRACK)
			e = &ast.IndexExpr{ExprInfo: ast.NewExprInfo(), Prefix: e, Lbrack: lbrack, Index: idx, Rbrack: rbrack}
		case token.LPAREN:
			e = p.parseCallExpr(e)
		default:
			break loop
		}
	}
	return e
}

func (p *parser) parsePrimaryExpr() ast.Expr {
	switch p.tok {
	case token.INT, token.FLOAT, token.STRING, token.BYTES, token.NONE, token.MAIN:
		return p.parseLiteralExpr()
	case token.IDENT:
		if p.val.Raw == "vector" && p.peek() == token.LPAREN {
			return p.parseVectorExpr()
		}
		return p.parseIdentExpr()
	case token.LPAREN:
		return p.parseParenExpr()
	case token.LBRACK:
		return p.parseListExpr()
	case token.LBRACE:
		return p.parseSetOrMapExpr()
	case token.FUNC:
		return p.parseFuncExpr()
	case token.NEW:
		return p.parseNewExpr()
	default:
		pos := p.pos()
		p.errorExpected(pos, "expression")
		panic(errPanicMode)
	}
}

func (p *parser) parseLiteralExpr() *ast.LiteralExpr {
	var lit ast.LiteralExpr
	lit.ExprInfo = ast.NewExprInfo()
	lit.ExprInfo.TokenIndex = p.nTok
	lit.Type = p.tok
	lit.Raw = p.val.Raw

	switch p.tok {
	case token.INT:
		lit.Value = p.val.Int
	case token.FLOAT:
		lit.Value = p.val.Float
	case token.STRING, token.BYTES:
		lit.Value = p.val.String
	case token.NONE:
		lit.Value = nil
	case token.MAIN:
		// "main" used as an expression refers to the command-line args
		// entry point; treated as a literal placeholder resolved later.
		lit.Value = "main"
	}
	lit.Start = p.expect(p.tok)
	return &lit
}

func (p *parser) parseIdentExpr() *ast.IdentExpr {
	var id ast.IdentExpr
	id.ExprInfo = ast.NewExprInfo()
	id.ExprInfo.TokenIndex = p.nTok
	id.Lit = p.val.Raw
	id.Start = p.expect(token.IDENT)
	return &id
}

func (p *parser) parseParenExpr() ast.Expr {
	lparen := p.expect(token.LPAREN)
	inner := p.parseExpr()
	rparen := p.expect(token.RPAREN)
	return &ast.ParenExpr{ExprInfo: ast.NewExprInfo(), Lparen: lparen, Expr: inner, Rparen: rparen}
}

func (p *parser) parseListExpr() *ast.ListExpr {
	var list ast.ListExpr
	list.ExprInfo = ast.NewExprInfo()
	list.Lbrack = p.expect(token.LBRACK)
	for !p.at(token.RBRACK, token.EOF) {
		list.Items = append(list.Items, p.parseExpr())
		if p.tok == token.COMMA {
			p.advance()
		} else {
			break
		}
	}
	list.Rbrack = p.expect(token.RBRACK)
	return &list
}

// parseSetOrMapExpr disambiguates "{1, 2, 3}" (set) from "{a: 1, b: 2}"
// (map) and "{}" (empty map, matching the empty-container convention of
// most dynamically-typed languages).
func (p *parser) parseSetOrMapExpr() ast.Expr {
	lbrace := p.expect(token.LBRACE)
	if p.tok == token.RBRACE {
		rbrace := p.expect(token.RBRACE)
		return &ast.MapExpr{ExprInfo: ast.NewExprInfo(), Lbrace: lbrace, Rbrace: rbrace}
	}

	first := p.parseExpr()
	if p.tok == token.COLON {
		colon := p.expect(token.COLON)
		val := p.parseExpr()
		items := []*ast.KeyVal{{Key: first, Colon: colon, Value: val}}
		for p.tok == token.COMMA {
			p.advance()
			if p.tok == token.RBRACE {
				break
			}
			items = append(items, p.parseKeyVal())
		}
		rbrace := p.expect(token.RBRACE)
		return &ast.MapExpr{ExprInfo: ast.NewExprInfo(), Lbrace: lbrace, Items: items, Rbrace: rbrace}
	}

	items := []ast.Expr{first}
	for p.tok == token.COMMA {
		p.advance()
		if p.tok == token.RBRACE {
			break
		}
		items = append(items, p.parseExpr())
	}
	rbrace := p.expect(token.RBRACE)
	return &ast.SetExpr{ExprInfo: ast.NewExprInfo(), Lbrace: lbrace, Items: items, Rbrace: rbrace}
}

func (p *parser) parseKeyVal() *ast.KeyVal {
	key := p.parseExpr()
	colon := p.expect(token.COLON)
	val := p.parseExpr()
	return &ast.KeyVal{Key: key, Colon: colon, Value: val}
}

// parseVectorExpr parses "vector(1, 2, 3)"; dispatched from
// parsePrimaryExpr when the identifier literal is exactly "vector" followed
// immediately by "(", per spec.md's vector constructor expression kind.
func (p *parser) parseVectorExpr() *ast.VectorExpr {
	var vec ast.VectorExpr
	vec.ExprInfo = ast.NewExprInfo()
	vec.Start = p.expect(token.IDENT) // consumes "vector"
	p.expect(token.LPAREN)
	for !p.at(token.RPAREN, token.EOF) {
		vec.Items = append(vec.Items, p.parseExpr())
		if p.tok == token.COMMA {
			p.advance()
		} else {
			break
		}
	}
	vec.End = p.expect(token.RPAREN)
	return &vec
}

func (p *parser) parseNewExpr() *ast.NewExpr {
	var n ast.NewExpr
	n.ExprInfo = ast.NewExprInfo()
	n.New = p.expect(token.NEW)
	callee := p.parseSuffixedExpr()
	if !ast.IsCallExpression(callee) {
		start, _ := callee.Span()
		p.errorExpected(start, "call expression after 'new'")
		n.Call = &ast.CallExpr{ExprInfo: ast.NewExprInfo(), Fn: callee}
		return &n
	}
	n.Call = ast.Unwrap(callee).(*ast.CallExpr)
	return &n
}

func (p *parser) parseCallExpr(fn ast.Expr) *ast.CallExpr {
	var c ast.CallExpr
	c.ExprInfo = ast.NewExprInfo()
	c.Fn = fn
	c.Lparen = p.expect(token.LPAREN)
	for !p.at(token.RPAREN, token.EOF) {
		if p.tok == token.IDENT && p.peek() == token.EQ {
			name := p.parseIdentExpr()
			eqPos := p.expect(token.EQ)
			val := p.parseExpr()
			c.KwArgs = append(c.KwArgs, &ast.KeyVal{Key: name, Colon: eqPos, Value: val})
		} else {
			c.Args = append(c.Args, p.parseExpr())
		}
		if p.tok == token.COMMA {
			p.advance()
		} else {
			break
		}
	}
	c.Rparen = p.expect(token.RPAREN)
	return &c
}

func (p *parser) parseFuncSignature() *ast.FuncSignature {
	var sig ast.FuncSignature
	sig.Lparen = p.expect(token.LPAREN)
	for !p.at(token.RPAREN, token.EOF) {
		if p.tok == token.DOT && p.peek() == token.DOT {
			sig.DotDotDot = p.pos()
			p.advance()
			p.advance()
			p.expect(token.DOT)
			sig.Params = append(sig.Params, &ast.ParamDecl{Name: p.parseIdentExpr()})
			if p.tok == token.COMMA {
				p.advance()
			}
			break
		}

		name := p.parseIdentExpr()
		param := &ast.ParamDecl{Name: name}
		if p.tok == token.EQ {
			p.advance()
			param.Default = p.parseExpr()
		}
		sig.Params = append(sig.Params, param)
		if p.tok == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	sig.Rparen = p.expect(token.RPAREN)
	switch p.tok {
	case token.ASYNC:
		sig.IsCanAsync = true
		p.advance()
	case token.NOASYNC:
		sig.IsNoAsync = true
		p.advance()
	}
	return &sig
}

func (p *parser) parseFuncExpr() *ast.FuncExpr {
	var fn ast.FuncExpr
	fn.ExprInfo = ast.NewExprInfo()
	fn.Fn = p.expect(token.FUNC)
	fn.Sig = p.parseFuncSignature()
	fn.Body = p.parseBlock()
	return &fn
}

func (p *parser) parseExprList() []ast.Expr {
	exprs := []ast.Expr{p.parseExpr()}
	for p.tok == token.COMMA {
		p.advance()
		exprs = append(exprs, p.parseExpr())
	}
	return exprs
}
