package storage

import (
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/token"
)

// scanCaptures walks body without crossing into any nested function's own
// body (those get scanned independently when function() recurses into
// them), collecting every closure-bound outer-scope variable fr's function
// directly references, plus whether any direct self/base reference here
// crosses a closure boundary into an enclosing method.
func (a *allocator) scanCaptures(fr *frame, body *ast.Block) ([]*ast.ScopeDef, bool) {
	var caps []*ast.ScopeDef
	seen := make(map[*ast.ScopeDef]bool)
	closureWithSelf := false

	var walkExpr func(ast.Expr)
	var walkStmt func(ast.Stmt)

	walkExpr = func(e ast.Expr) {
		switch e := e.(type) {
		case nil:
		case *ast.IdentExpr:
			if (e.Lit == "self" || e.Lit == "base") && e.ClosureWithSelf {
				closureWithSelf = true
			}
			def := e.ScopeDef
			if def != nil && def.ClosureBound && !seen[def] && a.declaredOutside(fr, def) {
				seen[def] = true
				caps = append(caps, def)
			}
		case *ast.UnaryOpExpr:
			walkExpr(e.Right)
		case *ast.BinOpExpr:
			walkExpr(e.Left)
			walkExpr(e.Right)
		case *ast.NewExpr:
			walkExpr(e.Call)
		case *ast.IsAExpr:
			walkExpr(e.Left)
			walkExpr(e.Right)
		case *ast.CallExpr:
			walkExpr(e.Fn)
			for _, arg := range e.Args {
				walkExpr(arg)
			}
			for _, kv := range e.KwArgs {
				walkExpr(kv.Value)
			}
		case *ast.DotExpr:
			walkExpr(e.Left)
		case *ast.IndexExpr:
			walkExpr(e.Prefix)
			walkExpr(e.Index)
		case *ast.ListExpr:
			for _, it := range e.Items {
				walkExpr(it)
			}
		case *ast.SetExpr:
			for _, it := range e.Items {
				walkExpr(it)
			}
		case *ast.MapExpr:
			for _, it := range e.Items {
				walkExpr(it.Key)
				walkExpr(it.Value)
			}
		case *ast.VectorExpr:
			for _, it := range e.Items {
				walkExpr(it)
			}
		case *ast.ParenExpr:
			walkExpr(e.Expr)
		case *ast.FuncExpr:
			// own frame, scanned when function() recurses into it.
		}
	}

	walkStmt = func(s ast.Stmt) {
		switch s := s.(type) {
		case *ast.AssignStmt:
			for _, e := range s.Right {
				walkExpr(e)
			}
			if s.DeclType == token.ILLEGAL {
				for _, e := range s.Left {
					walkExpr(e)
				}
			}
		case *ast.ExprStmt:
			walkExpr(s.Expr)
		case *ast.ForInStmt:
			walkExpr(s.Right)
			for _, st := range s.Body.Stmts {
				walkStmt(st)
			}
		case *ast.IfStmt:
			walkExpr(s.Cond)
			for _, st := range s.Body.Stmts {
				walkStmt(st)
			}
			if s.ElseIf != nil {
				walkStmt(s.ElseIf)
			}
			if s.ElseBlock != nil {
				for _, st := range s.ElseBlock.Stmts {
					walkStmt(st)
				}
			}
		case *ast.FuncStmt:
			// own frame, scanned when function() recurses into it.
		case *ast.ImportStmt:
		case *ast.ReturnStmt:
			if s.Expr != nil {
				walkExpr(s.Expr)
			}
		case *ast.BreakContinueStmt:
		case *ast.WithStmt:
			for _, c := range s.Clauses {
				walkExpr(c.Value)
			}
			for _, st := range s.Body.Stmts {
				walkStmt(st)
			}
		case *ast.DoStmt:
			for _, st := range s.Body.Stmts {
				walkStmt(st)
			}
			for _, rc := range s.Rescues {
				for _, t := range rc.Types {
					walkExpr(t)
				}
				for _, st := range rc.Body.Stmts {
					walkStmt(st)
				}
			}
			if s.FinBody != nil {
				for _, st := range s.FinBody.Stmts {
					walkStmt(st)
				}
			}
		case *ast.WhileStmt:
			walkExpr(s.Cond)
			for _, st := range s.Body.Stmts {
				walkStmt(st)
			}
		case *ast.ClassStmt, *ast.BadStmt:
		}
	}

	for _, st := range body.Stmts {
		walkStmt(st)
	}
	return caps, closureWithSelf
}

// declaredOutside reports whether def was declared in a scope that lies
// outside fr's own function (i.e. fr's function must treat a reference to
// it as closure-bound), per spec.md §4.7.
func (a *allocator) declaredOutside(fr *frame, def *ast.ScopeDef) bool {
	if def.OwnerScope == nil {
		return false
	}
	for s := fr.topScope; s != nil; s = s.Parent {
		if s == def.OwnerScope {
			return false
		}
	}
	return true
}
