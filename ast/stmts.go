package ast

import (
	"fmt"

	"github.com/h64p/horsec/token"
)

// StmtInfo is embedded in every statement node; currently only carries the
// token index, kept symmetric with ExprInfo so lifetime analysis (§4.7)
// can treat declaration statements uniformly with expressions.
type StmtInfo struct {
	TokenIndex int
}

// SetTokenIndex is called by the parser once a statement is fully formed,
// so the local storage allocator (G) can use it as a definition's own
// token index when no use extends further back (spec.md §4.7 step 1).
func (s *StmtInfo) SetTokenIndex(i int) { s.TokenIndex = i }

// GetTokenIndex returns the statement's own token index.
func (s *StmtInfo) GetTokenIndex() int { return s.TokenIndex }

// TokenIndexSetter is implemented by every Stmt via its embedded StmtInfo.
type TokenIndexSetter interface {
	SetTokenIndex(int)
}

// TokenIndexGetter is implemented by every Stmt via its embedded StmtInfo.
type TokenIndexGetter interface {
	GetTokenIndex() int
}

type (
	// AssignStmt represents a var-def (DeclType == token.VAR or
	// token.CONST) or a plain/compound assignment (DeclType == ILLEGAL).
	AssignStmt struct {
		StmtInfo
		DeclType  token.Token // VAR, CONST, or ILLEGAL for a plain assignment
		DeclStart token.Pos
		Left      []Expr // IdentExpr for var-def, else IdentExpr/IndexExpr/DotExpr
		AssignTok token.Token // EQ, or one of PLUS_EQ..PERCENT_EQ
		AssignPos token.Pos
		Right     []Expr

		Storage []StorageRef // parallel to Left, filled by the resolver for var-defs
	}

	// ClassBody is the brace-delimited body of a ClassStmt: a list of
	// field declarations (as var-defs, evaluated in order) and a list of
	// method declarations.
	ClassBody struct {
		Lbrace  token.Pos
		Fields  []*AssignStmt
		Methods []*FuncStmt
		Rbrace  token.Pos // one past the closing '}'
	}

	// ClassStmt represents "class Name [extends Base] { ... }".
	ClassStmt struct {
		StmtInfo
		Class    token.Pos
		Name     *IdentExpr
		Inherits *ClassInherit // nil if no "extends" clause
		Body     *ClassBody

		// IsCanAsync/IsNoAsync record an optional "async"/"noasync" keyword
		// trailing the extends clause (or the class name if there is none),
		// per spec.md §4.8's user_set_canasync contract. At most one is
		// ever true.
		IsCanAsync bool
		IsNoAsync  bool

		ClassInfo any // resolver-owned inheritance/layout info
	}

	// ExprStmt is an expression used as a statement - only valid for
	// (possibly try/must-wrapped) function calls, per spec.md §4.4.
	ExprStmt struct {
		StmtInfo
		Expr Expr
	}

	// ForInStmt represents "for x[, y] in expr { ... }".
	ForInStmt struct {
		StmtInfo
		For   token.Pos
		Left  []*IdentExpr // loop-scoped bindings
		In    token.Pos
		Right Expr
		Body  *Block
	}

	// IfStmt represents an if/elseif/else chain: Else is zero with
	// ElseIf and ElseBlock both nil for a plain if. ElseIf is non-nil for
	// a chained "elseif", ElseBlock is non-nil for a trailing plain
	// "else".
	IfStmt struct {
		StmtInfo
		Start     token.Pos // "if" or "elseif"
		IsElseIf  bool
		Cond      Expr
		Body      *Block
		Else      token.Pos // position of "else"/"elseif", 0 if none
		ElseIf    *IfStmt
		ElseBlock *Block
	}

	// FuncStmt represents a function declaration statement (also used, via
	// Body, for class methods): "func name(params) { ... }".
	FuncStmt struct {
		StmtInfo
		Fn   token.Pos
		Name *IdentExpr
		Sig  *FuncSignature
		Body *Block

		StorageInfo any // *storage.FuncInfo, filled by the local storage allocator (G)
		FuncID      any // ir.FuncID, filled by the resolver (F) for every func/method/nested func-def
	}

	// ImportStmt represents "import a.b.c [from lib]".
	ImportStmt struct {
		StmtInfo
		Import  token.Pos
		Path    []*IdentExpr // dotted path components, a.b.c -> [a, b, c]
		From    token.Pos    // 0 if no "from lib" clause
		Library *IdentExpr   // nil if no "from lib" clause

		ResolvedFileURI string // filled by the project/import resolver (E)
		IsCModule       bool
	}

	// ReturnStmt represents "return [expr]".
	ReturnStmt struct {
		StmtInfo
		Start token.Pos
		Expr  Expr // nil for a bare return
	}

	// BreakContinueStmt represents "break" or "continue".
	BreakContinueStmt struct {
		StmtInfo
		Type  token.Token // BREAK or CONTINUE
		Start token.Pos
	}

	// WithClause is one "expr as name" binding of a with statement.
	WithClause struct {
		Value Expr
		As    token.Pos
		Name  *IdentExpr // nil if no "as" binding

		Storage StorageRef // filled by the local storage allocator (G)
	}

	// WithStmt represents "with expr1 as a, expr2 as b { ... }".
	WithStmt struct {
		StmtInfo
		With    token.Pos
		Clauses []*WithClause
		Body    *Block
	}

	// RescueClause is one "rescue Type[, Type2] [as name] { ... }" of a
	// DoStmt.
	RescueClause struct {
		Rescue token.Pos
		Types  []Expr // class expressions naming the caught error types
		As     token.Pos
		Name   *IdentExpr // nil if no "as" binding
		Body   *Block
	}

	// DoStmt represents "do { ... } [rescue ...]* [finally { ... }]".
	DoStmt struct {
		StmtInfo
		Do      token.Pos
		Body    *Block
		Rescues []*RescueClause
		Finally token.Pos
		FinBody *Block
	}

	// WhileStmt represents "while cond { ... }".
	WhileStmt struct {
		StmtInfo
		While token.Pos
		Cond  Expr
		Body  *Block
	}

	// BadStmt represents a statement that failed to parse.
	BadStmt struct {
		StmtInfo
		Start, End token.Pos
	}
)

func (n *AssignStmt) Format(f fmt.State, verb rune) {
	lbl := "assignment"
	if n.DeclType != token.ILLEGAL {
		lbl = n.DeclType.String() + " declaration"
	} else if n.AssignTok != token.EQ {
		lbl = "augmented assignment " + n.AssignTok.GoString()
	}
	format(f, verb, n, lbl, map[string]int{"left": len(n.Left), "right": len(n.Right)})
}
func (n *AssignStmt) Span() (start, end token.Pos) {
	if n.DeclStart.IsValid() {
		start = n.DeclStart
	} else {
		start, _ = n.Left[0].Span()
	}
	if len(n.Right) > 0 {
		_, end = n.Right[len(n.Right)-1].Span()
	} else {
		_, end = n.Left[len(n.Left)-1].Span()
	}
	return start, end
}
func (n *AssignStmt) Walk(v Visitor) {
	for _, e := range n.Right {
		Walk(v, e)
	}
	for _, e := range n.Left {
		Walk(v, e)
	}
}
func (n *AssignStmt) BlockEnding() bool { return false }

func (n *ClassStmt) Format(f fmt.State, verb rune) {
	var inherits int
	if n.Inherits != nil && n.Inherits.Expr != nil {
		inherits = 1
	}
	format(f, verb, n, "class decl", map[string]int{
		"inherits": inherits, "fields": len(n.Body.Fields), "methods": len(n.Body.Methods),
	})
}
func (n *ClassStmt) Span() (start, end token.Pos) { return n.Class, n.Body.Rbrace }
func (n *ClassStmt) Walk(v Visitor) {
	Walk(v, n.Name)
	if n.Inherits != nil && n.Inherits.Expr != nil {
		Walk(v, n.Inherits.Expr)
	}
	for _, fd := range n.Body.Fields {
		Walk(v, fd)
	}
	for _, m := range n.Body.Methods {
		Walk(v, m)
	}
}
func (n *ClassStmt) BlockEnding() bool { return false }

func (n *ExprStmt) Format(f fmt.State, verb rune) { format(f, verb, n, "expr stmt", nil) }
func (n *ExprStmt) Span() (start, end token.Pos)  { return n.Expr.Span() }
func (n *ExprStmt) Walk(v Visitor)                { Walk(v, n.Expr) }
func (n *ExprStmt) BlockEnding() bool             { return false }

func (n *ForInStmt) Format(f fmt.State, verb rune) {
	format(f, verb, n, "for in", map[string]int{"left": len(n.Left)})
}
func (n *ForInStmt) Span() (start, end token.Pos) { return n.For, n.Body.End }
func (n *ForInStmt) Walk(v Visitor) {
	for _, e := range n.Left {
		Walk(v, e)
	}
	Walk(v, n.Right)
	Walk(v, n.Body)
}
func (n *ForInStmt) BlockEnding() bool { return false }

func (n *IfStmt) Format(f fmt.State, verb rune) {
	lbl := "if"
	if n.IsElseIf {
		lbl = "elseif"
	}
	format(f, verb, n, lbl, nil)
}
func (n *IfStmt) Span() (start, end token.Pos) {
	if n.ElseBlock != nil {
		_, end = n.ElseBlock.Span()
	} else if n.ElseIf != nil {
		_, end = n.ElseIf.Span()
	} else {
		_, end = n.Body.Span()
	}
	return n.Start, end
}
func (n *IfStmt) Walk(v Visitor) {
	Walk(v, n.Cond)
	Walk(v, n.Body)
	if n.ElseIf != nil {
		Walk(v, n.ElseIf)
	}
	if n.ElseBlock != nil {
		Walk(v, n.ElseBlock)
	}
}
func (n *IfStmt) BlockEnding() bool { return false }

func (n *FuncStmt) Format(f fmt.State, verb rune) {
	lbl := "fn decl"
	if n.Sig.DotDotDot.IsValid() {
		lbl += " ..."
	}
	format(f, verb, n, lbl, map[string]int{"params": len(n.Sig.Params)})
}
func (n *FuncStmt) Span() (start, end token.Pos) { return n.Fn, n.Body.End }
func (n *FuncStmt) Walk(v Visitor) {
	Walk(v, n.Name)
	for _, p := range n.Sig.Params {
		Walk(v, p.Name)
		if p.Default != nil {
			Walk(v, p.Default)
		}
	}
	Walk(v, n.Body)
}
func (n *FuncStmt) BlockEnding() bool { return false }

func (n *ImportStmt) Format(f fmt.State, verb rune) {
	format(f, verb, n, "import", map[string]int{"path": len(n.Path)})
}
func (n *ImportStmt) Span() (start, end token.Pos) {
	_, end = n.Path[len(n.Path)-1].Span()
	if n.Library != nil {
		_, end = n.Library.Span()
	}
	return n.Import, end
}
func (n *ImportStmt) Walk(v Visitor) {
	for _, id := range n.Path {
		Walk(v, id)
	}
	if n.Library != nil {
		Walk(v, n.Library)
	}
}
func (n *ImportStmt) BlockEnding() bool { return false }

func (n *ReturnStmt) Format(f fmt.State, verb rune) {
	var has int
	if n.Expr != nil {
		has = 1
	}
	format(f, verb, n, "return", map[string]int{"expr": has})
}
func (n *ReturnStmt) Span() (start, end token.Pos) {
	end = n.Start.Advance(6)
	if n.Expr != nil {
		_, end = n.Expr.Span()
	}
	return n.Start, end
}
func (n *ReturnStmt) Walk(v Visitor) {
	if n.Expr != nil {
		Walk(v, n.Expr)
	}
}
func (n *ReturnStmt) BlockEnding() bool { return true }

func (n *BreakContinueStmt) Format(f fmt.State, verb rune) { format(f, verb, n, n.Type.String(), nil) }
func (n *BreakContinueStmt) Span() (start, end token.Pos) {
	return n.Start, n.Start.Advance(len(n.Type.String()))
}
func (n *BreakContinueStmt) Walk(v Visitor)    {}
func (n *BreakContinueStmt) BlockEnding() bool { return true }

func (n *WithStmt) Format(f fmt.State, verb rune) {
	format(f, verb, n, "with", map[string]int{"clauses": len(n.Clauses)})
}
func (n *WithStmt) Span() (start, end token.Pos) { return n.With, n.Body.End }
func (n *WithStmt) Walk(v Visitor) {
	for _, c := range n.Clauses {
		Walk(v, c.Value)
		if c.Name != nil {
			Walk(v, c.Name)
		}
	}
	Walk(v, n.Body)
}
func (n *WithStmt) BlockEnding() bool { return false }

func (n *DoStmt) Format(f fmt.State, verb rune) {
	format(f, verb, n, "do", map[string]int{"rescues": len(n.Rescues)})
}
func (n *DoStmt) Span() (start, end token.Pos) {
	end = n.Body.End
	if len(n.Rescues) > 0 {
		_, end = n.Rescues[len(n.Rescues)-1].Body.Span()
	}
	if n.FinBody != nil {
		_, end = n.FinBody.Span()
	}
	return n.Do, end
}
func (n *DoStmt) Walk(v Visitor) {
	Walk(v, n.Body)
	for _, r := range n.Rescues {
		for _, t := range r.Types {
			Walk(v, t)
		}
		if r.Name != nil {
			Walk(v, r.Name)
		}
		Walk(v, r.Body)
	}
	if n.FinBody != nil {
		Walk(v, n.FinBody)
	}
}
func (n *DoStmt) BlockEnding() bool { return false }

func (n *WhileStmt) Format(f fmt.State, verb rune) { format(f, verb, n, "while", nil) }
func (n *WhileStmt) Span() (start, end token.Pos)  { return n.While, n.Body.End }
func (n *WhileStmt) Walk(v Visitor) {
	Walk(v, n.Cond)
	Walk(v, n.Body)
}
func (n *WhileStmt) BlockEnding() bool { return false }

func (n *BadStmt) Format(f fmt.State, verb rune) { format(f, verb, n, "!bad stmt!", nil) }
func (n *BadStmt) Span() (start, end token.Pos)  { return n.Start, n.End }
func (n *BadStmt) Walk(v Visitor)                {}
func (n *BadStmt) BlockEnding() bool             { return false }
