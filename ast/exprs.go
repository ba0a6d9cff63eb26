package ast

import (
	"fmt"

	"github.com/h64p/horsec/token"
)

// Unwrap recursively unwraps ParenExpr until it reaches a non-ParenExpr.
func Unwrap(e Expr) Expr {
	if pe, ok := e.(*ParenExpr); ok {
		return Unwrap(pe.Expr)
	}
	return e
}

// IsCallExpression reports whether e (after unwrapping parens) is a
// CallExpr. Used to enforce that "new X(...)" only ever wraps a call, per
// spec.md §4.4.
func IsCallExpression(e Expr) bool {
	_, ok := Unwrap(e).(*CallExpr)
	return ok
}

// IsAssignable returns true if e can be assigned to: an IdentExpr, DotExpr
// or IndexExpr, recursively down their left-hand side.
func IsAssignable(e Expr) bool {
	switch e := e.(type) {
	case *IdentExpr:
		return true
	case *DotExpr:
		return IsAssignable(Unwrap(e.Left))
	case *IndexExpr:
		return IsAssignable(Unwrap(e.Prefix))
	default:
		return false
	}
}

// ExprInfo is embedded in every expression node to carry the resolver's
// storage assignment (§3.5), the codegen-time evaluation temp slot
// (§3.3), and the token index that drives lifetime analysis (§4.7).
type ExprInfo struct {
	TokenIndex int
	Storage    StorageRef
	EvalTemp   int // -1 if not yet assigned
}

// NewExprInfo returns a zero-value ExprInfo with EvalTemp set to the
// "unassigned" sentinel, for use by the parser when constructing nodes.
func NewExprInfo() ExprInfo { return ExprInfo{EvalTemp: -1} }

// KeyVal is a key/value pair, used by map literals and keyword call
// arguments.
type KeyVal struct {
	Key   Expr // nil for a positional arg
	Colon token.Pos
	Value Expr
}

type (
	// LiteralExpr represents a literal: int, float, string, bytes, none,
	// or the main keyword. The token set has no true/false literal.
	LiteralExpr struct {
		ExprInfo
		Type  token.Token
		Start token.Pos
		Raw   string
		Value interface{} // string | int64 | float64 | nil
	}

	// IdentExpr represents an identifier reference.
	IdentExpr struct {
		ExprInfo
		Start           token.Pos
		Lit             string
		ScopeDef        *ScopeDef // filled by the resolver
		ClosureWithSelf bool
	}

	// UnaryOpExpr represents a unary expression, e.g. -x, not x, ~x.
	UnaryOpExpr struct {
		ExprInfo
		Type  token.Token
		Op    token.Pos
		Right Expr
	}

	// BinOpExpr represents a binary expression, e.g. x + y.
	BinOpExpr struct {
		ExprInfo
		Left  Expr
		Type  token.Token
		Op    token.Pos
		Right Expr
	}

	// NewExpr represents "new X(args)"; Call.Fn is the class expression.
	NewExpr struct {
		ExprInfo
		New  token.Pos
		Call *CallExpr
	}

	// IsAExpr represents "x is_a Y".
	IsAExpr struct {
		ExprInfo
		Left  Expr
		IsA   token.Pos
		Right Expr
	}

	// CallExpr represents a function call, e.g. f(a, b, name=c).
	CallExpr struct {
		ExprInfo
		Fn     Expr
		Lparen token.Pos
		Args   []Expr    // positional arguments
		KwArgs []*KeyVal // keyword arguments, Key is *IdentExpr
		Rparen token.Pos
	}

	// ClassInherit names the optional base class expression of a class.
	ClassInherit struct {
		Extends token.Pos
		Expr    Expr // nil if no base class
	}

	// DotExpr represents attribute access, e.g. x.y.
	DotExpr struct {
		ExprInfo
		Left  Expr
		Dot   token.Pos
		Right *IdentExpr
	}

	// IndexExpr represents an index expression, e.g. x[y].
	IndexExpr struct {
		ExprInfo
		Prefix Expr
		Lbrack token.Pos
		Index  Expr
		Rbrack token.Pos
	}

	// ListExpr represents a list literal, e.g. [1, 2, 3].
	ListExpr struct {
		ExprInfo
		Lbrack token.Pos
		Items  []Expr
		Rbrack token.Pos
	}

	// SetExpr represents a set literal, e.g. {1, 2, 3}.
	SetExpr struct {
		ExprInfo
		Lbrace token.Pos
		Items  []Expr
		Rbrace token.Pos
	}

	// MapExpr represents a map literal, e.g. {a: 1, b: 2}.
	MapExpr struct {
		ExprInfo
		Lbrace token.Pos
		Items  []*KeyVal
		Rbrace token.Pos
	}

	// VectorExpr represents a fixed-size vector literal, e.g. vector(1, 2, 3).
	VectorExpr struct {
		ExprInfo
		Start token.Pos
		Items []Expr
		End   token.Pos
	}

	// ParenExpr represents a parenthesized expression.
	ParenExpr struct {
		ExprInfo
		Lparen token.Pos
		Expr   Expr
		Rparen token.Pos
	}

	// FuncSignature is shared by FuncStmt and FuncExpr.
	FuncSignature struct {
		Lparen    token.Pos
		Params    []*ParamDecl
		DotDotDot token.Pos // position of the trailing "..." multi-arg marker, 0 if none
		Rparen    token.Pos

		// IsCanAsync/IsNoAsync record an optional "async"/"noasync" keyword
		// trailing the closing paren, per spec.md §4.8's user_set_canasync
		// contract. At most one of the two is ever true.
		IsCanAsync bool
		IsNoAsync  bool
	}

	// ParamDecl is one function parameter, optionally with a keyword
	// default value.
	ParamDecl struct {
		Name    *IdentExpr
		Default Expr // nil for positional-only params
	}

	// FuncExpr represents an inline (anonymous) function literal.
	FuncExpr struct {
		ExprInfo
		Fn   token.Pos
		Sig  *FuncSignature
		Body *Block

		StorageInfo any // *storage.FuncInfo, set by the local storage allocator (G)
		FuncID      any // ir.FuncID, filled by the resolver (F)
	}

	// BadExpr represents an expression that failed to parse.
	BadExpr struct {
		ExprInfo
		Start, End token.Pos
	}
)

func (n *LiteralExpr) Format(f fmt.State, verb rune) {
	lbl := n.Type.String()
	if n.Value != nil {
		lbl += " " + n.Raw
	}
	format(f, verb, n, lbl, nil)
}
func (n *LiteralExpr) Span() (start, end token.Pos) {
	return n.Start, n.Start.Advance(len(n.Raw))
}
func (n *LiteralExpr) Walk(v Visitor) {}
func (n *LiteralExpr) expr()          {}

func (n *IdentExpr) Format(f fmt.State, verb rune) { format(f, verb, n, n.Lit, nil) }
func (n *IdentExpr) Span() (start, end token.Pos) {
	return n.Start, n.Start.Advance(len(n.Lit))
}
func (n *IdentExpr) Walk(v Visitor) {}
func (n *IdentExpr) expr()          {}

func (n *UnaryOpExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "unary "+n.Type.GoString(), nil)
}
func (n *UnaryOpExpr) Span() (start, end token.Pos) {
	_, end = n.Right.Span()
	return n.Op, end
}
func (n *UnaryOpExpr) Walk(v Visitor) { Walk(v, n.Right) }
func (n *UnaryOpExpr) expr()          {}

func (n *BinOpExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "binary "+n.Type.GoString(), nil)
}
func (n *BinOpExpr) Span() (start, end token.Pos) {
	start, _ = n.Left.Span()
	_, end = n.Right.Span()
	return start, end
}
func (n *BinOpExpr) Walk(v Visitor) {
	Walk(v, n.Left)
	Walk(v, n.Right)
}
func (n *BinOpExpr) expr() {}

func (n *NewExpr) Format(f fmt.State, verb rune) { format(f, verb, n, "new", nil) }
func (n *NewExpr) Span() (start, end token.Pos) {
	_, end = n.Call.Span()
	return n.New, end
}
func (n *NewExpr) Walk(v Visitor) { Walk(v, n.Call) }
func (n *NewExpr) expr()          {}

func (n *IsAExpr) Format(f fmt.State, verb rune) { format(f, verb, n, "is_a", nil) }
func (n *IsAExpr) Span() (start, end token.Pos) {
	start, _ = n.Left.Span()
	_, end = n.Right.Span()
	return start, end
}
func (n *IsAExpr) Walk(v Visitor) {
	Walk(v, n.Left)
	Walk(v, n.Right)
}
func (n *IsAExpr) expr() {}

func (n *CallExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "call", map[string]int{"args": len(n.Args), "kwargs": len(n.KwArgs)})
}
func (n *CallExpr) Span() (start, end token.Pos) {
	start, _ = n.Fn.Span()
	if n.Rparen.IsValid() {
		end = n.Rparen.Advance(1)
	} else if len(n.KwArgs) > 0 {
		_, end = n.KwArgs[len(n.KwArgs)-1].Value.Span()
	} else if len(n.Args) > 0 {
		_, end = n.Args[len(n.Args)-1].Span()
	} else {
		_, end = n.Fn.Span()
	}
	return start, end
}
func (n *CallExpr) Walk(v Visitor) {
	Walk(v, n.Fn)
	for _, e := range n.Args {
		Walk(v, e)
	}
	for _, kv := range n.KwArgs {
		Walk(v, kv.Value)
	}
}
func (n *CallExpr) expr() {}

func (n *DotExpr) Format(f fmt.State, verb rune) { format(f, verb, n, "expr.ident", nil) }
func (n *DotExpr) Span() (start, end token.Pos) {
	start, _ = n.Left.Span()
	_, end = n.Right.Span()
	return start, end
}
func (n *DotExpr) Walk(v Visitor) {
	Walk(v, n.Left)
	Walk(v, n.Right)
}
func (n *DotExpr) expr() {}

func (n *IndexExpr) Format(f fmt.State, verb rune) { format(f, verb, n, "expr[index]", nil) }
func (n *IndexExpr) Span() (start, end token.Pos) {
	start, _ = n.Prefix.Span()
	return start, n.Rbrack.Advance(1)
}
func (n *IndexExpr) Walk(v Visitor) {
	Walk(v, n.Prefix)
	Walk(v, n.Index)
}
func (n *IndexExpr) expr() {}

func (n *ListExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "list", map[string]int{"items": len(n.Items)})
}
func (n *ListExpr) Span() (start, end token.Pos) { return n.Lbrack, n.Rbrack.Advance(1) }
func (n *ListExpr) Walk(v Visitor) {
	for _, e := range n.Items {
		Walk(v, e)
	}
}
func (n *ListExpr) expr() {}

func (n *SetExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "set", map[string]int{"items": len(n.Items)})
}
func (n *SetExpr) Span() (start, end token.Pos) { return n.Lbrace, n.Rbrace.Advance(1) }
func (n *SetExpr) Walk(v Visitor) {
	for _, e := range n.Items {
		Walk(v, e)
	}
}
func (n *SetExpr) expr() {}

func (n *MapExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "map", map[string]int{"keyvals": len(n.Items)})
}
func (n *MapExpr) Span() (start, end token.Pos) { return n.Lbrace, n.Rbrace.Advance(1) }
func (n *MapExpr) Walk(v Visitor) {
	for _, kv := range n.Items {
		Walk(v, kv.Key)
		Walk(v, kv.Value)
	}
}
func (n *MapExpr) expr() {}

func (n *VectorExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "vector", map[string]int{"items": len(n.Items)})
}
func (n *VectorExpr) Span() (start, end token.Pos) { return n.Start, n.End }
func (n *VectorExpr) Walk(v Visitor) {
	for _, e := range n.Items {
		Walk(v, e)
	}
}
func (n *VectorExpr) expr() {}

func (n *ParenExpr) Format(f fmt.State, verb rune) { format(f, verb, n, "(expr)", nil) }
func (n *ParenExpr) Span() (start, end token.Pos)  { return n.Lparen, n.Rparen.Advance(1) }
func (n *ParenExpr) Walk(v Visitor)                { Walk(v, n.Expr) }
func (n *ParenExpr) expr()                         {}

func (n *FuncExpr) Format(f fmt.State, verb rune) {
	lbl := "fn"
	if n.Sig.DotDotDot.IsValid() {
		lbl += " ..."
	}
	format(f, verb, n, lbl, map[string]int{"params": len(n.Sig.Params)})
}
func (n *FuncExpr) Span() (start, end token.Pos) { return n.Fn, n.Body.End }
func (n *FuncExpr) Walk(v Visitor) {
	for _, p := range n.Sig.Params {
		Walk(v, p.Name)
		if p.Default != nil {
			Walk(v, p.Default)
		}
	}
	Walk(v, n.Body)
}
func (n *FuncExpr) expr() {}

func (n *BadExpr) Format(f fmt.State, verb rune) { format(f, verb, n, "!bad expr!", nil) }
func (n *BadExpr) Span() (start, end token.Pos)  { return n.Start, n.End }
func (n *BadExpr) Walk(v Visitor)                {}
func (n *BadExpr) expr()                         {}
