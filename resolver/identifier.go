package resolver

import (
	"fmt"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/token"
)

// identifiers is phase 2 (spec.md §4.6): walk ch's statement tree binding
// every identifier reference to the ScopeDef it denotes. ch.Global already
// holds every top-level declaration from phase 1; this pass does not
// re-declare those names, only resolves uses and binds locals nested below
// them.
func (r *Resolver) identifiers(ch *ast.Chunk) {
	r.env = ch.Global
	ch.Block.Scope = ch.Global

	for _, stmt := range ch.Block.Stmts {
		r.topLevelStmt(ch, stmt)
	}
}

// topLevelStmt resolves one top-level statement. Declarations (var/const,
// func, class) were already bound into ch.Global by phase 1, so here we
// only resolve their right-hand sides and nested bodies; every other
// statement kind is module "global-init" code and resolves exactly like a
// statement nested in any other block.
func (r *Resolver) topLevelStmt(ch *ast.Chunk, stmt ast.Stmt) {
	switch stmt := stmt.(type) {
	case *ast.AssignStmt:
		for _, e := range stmt.Right {
			r.expr(e)
		}
		if stmt.DeclType == token.ILLEGAL {
			for _, e := range stmt.Left {
				r.expr(e)
			}
		}

	case *ast.FuncStmt:
		r.function(stmt.Sig, stmt.Body, false, 0)

	case *ast.ClassStmt:
		r.resolveClassBody(stmt)

	case *ast.ImportStmt:
		// nothing further to resolve; ResolvedFileURI was set by project (E).

	default:
		r.stmt(stmt)
	}
}

func (r *Resolver) resolveClassBody(stmt *ast.ClassStmt) {
	cid := r.classID[stmt]

	if stmt.Inherits != nil && stmt.Inherits.Expr != nil {
		r.expr(stmt.Inherits.Expr)
		if base, ok := stmt.Inherits.Expr.(*ast.IdentExpr); ok && base.ExprInfo.Storage.Kind == ast.GlobalClassSlot {
			r.Prog.Class(cid).BaseClass = ir.ClassID(base.ExprInfo.Storage.ID)
		} else {
			r.errorf(stmt.Class, "base class expression does not resolve to a class")
		}
	}

	parent := r.env
	r.push(parent)
	for _, fd := range stmt.Body.Fields {
		for _, e := range fd.Right {
			r.expr(e)
		}
	}
	for _, m := range stmt.Body.Methods {
		r.function(m.Sig, m.Body, true, cid)
	}
	r.pop(parent)
}

// block resolves a nested statement list in its own child scope.
func (r *Resolver) block(b *ast.Block) {
	parent := r.env
	b.Scope = r.push(parent)
	for _, s := range b.Stmts {
		r.stmt(s)
	}
	r.pop(parent)
}

func (r *Resolver) stmt(stmt ast.Stmt) {
	switch stmt := stmt.(type) {
	case *ast.AssignStmt:
		for _, e := range stmt.Right {
			r.expr(e)
		}
		stmt.Storage = make([]ast.StorageRef, len(stmt.Left))
		for i, left := range stmt.Left {
			if stmt.DeclType != token.ILLEGAL {
				ident := left.(*ast.IdentExpr)
				r.bindLocal(ident, stmt)
			} else {
				r.expr(left)
			}
		}

	case *ast.ClassStmt:
		r.bindLocal(stmt.Name, stmt)
		r.errorf(stmt.Class, "nested class declarations are not supported")

	case *ast.ExprStmt:
		r.expr(stmt.Expr)

	case *ast.ForInStmt:
		r.expr(stmt.Right)
		parent := r.env
		stmt.Body.Scope = r.push(parent)
		for _, id := range stmt.Left {
			r.bindLocal(id, stmt)
		}
		for _, s := range stmt.Body.Stmts {
			r.stmt(s)
		}
		r.pop(parent)

	case *ast.IfStmt:
		r.expr(stmt.Cond)
		r.block(stmt.Body)
		if stmt.ElseIf != nil {
			r.stmt(stmt.ElseIf)
		} else if stmt.ElseBlock != nil {
			r.block(stmt.ElseBlock)
		}

	case *ast.FuncStmt:
		r.bindLocal(stmt.Name, stmt)
		fid := r.registerFunc(stmt.Sig, ir.ClassID(ir.NoID), stmt.Fn, stmt.Name.Lit)
		r.funcID[stmt] = fid
		stmt.FuncID = fid
		r.function(stmt.Sig, stmt.Body, false, 0)

	case *ast.ImportStmt:
		// local import inside a nested block; bind like a top-level import.
		if len(stmt.Path) > 0 {
			def := r.env.Declare(stmt.Path[0].Lit, stmt)
			def.Storage = ast.StorageRef{Kind: ast.NoStorage}
		}

	case *ast.ReturnStmt:
		if r.inDeferLikeContext() {
			// Horse64 has no defer blocks; kept for symmetry with the
			// teacher's shape should one ever be added.
		}
		if stmt.Expr != nil {
			r.expr(stmt.Expr)
		}

	case *ast.BreakContinueStmt:
		// no label system in Horse64; break/continue always target the
		// nearest enclosing loop, validated by the parser's block nesting.

	case *ast.WithStmt:
		parent := r.env
		stmt.Body.Scope = r.push(parent)
		for _, c := range stmt.Clauses {
			r.expr(c.Value)
			if c.Name != nil {
				r.bindLocal(c.Name, stmt)
			}
		}
		for _, s := range stmt.Body.Stmts {
			r.stmt(s)
		}
		r.pop(parent)

	case *ast.DoStmt:
		r.block(stmt.Body)
		for _, rc := range stmt.Rescues {
			for _, t := range rc.Types {
				r.expr(t)
			}
			parent := r.env
			rc.Body.Scope = r.push(parent)
			if rc.Name != nil {
				r.bindLocal(rc.Name, stmt)
			}
			for _, s := range rc.Body.Stmts {
				r.stmt(s)
			}
			r.pop(parent)
		}
		if stmt.FinBody != nil {
			r.block(stmt.FinBody)
		}

	case *ast.WhileStmt:
		r.expr(stmt.Cond)
		r.block(stmt.Body)

	case *ast.BadStmt:
		// already reported by the parser

	default:
		panic(fmt.Sprintf("resolver: unexpected stmt %T", stmt))
	}
}

func (r *Resolver) inDeferLikeContext() bool { return false }

func (r *Resolver) expr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.LiteralExpr:
		// nothing to resolve

	case *ast.IdentExpr:
		r.use(e)

	case *ast.UnaryOpExpr:
		r.expr(e.Right)

	case *ast.BinOpExpr:
		r.expr(e.Left)
		r.expr(e.Right)

	case *ast.NewExpr:
		r.expr(e.Call)

	case *ast.IsAExpr:
		r.expr(e.Left)
		r.expr(e.Right)

	case *ast.CallExpr:
		r.expr(e.Fn)
		for _, a := range e.Args {
			r.expr(a)
		}
		for _, kv := range e.KwArgs {
			// Keyword-arg names are interned even on call sites so later
			// bytecode can refer to them by id, per spec.md §4.6 phase 1.
			r.Prog.Attrs.Intern(kv.Key.(*ast.IdentExpr).Lit, true)
			r.expr(kv.Value)
		}

	case *ast.DotExpr:
		r.dotExpr(e)

	case *ast.IndexExpr:
		r.expr(e.Prefix)
		r.expr(e.Index)

	case *ast.ListExpr:
		for _, it := range e.Items {
			r.expr(it)
		}

	case *ast.SetExpr:
		for _, it := range e.Items {
			r.expr(it)
		}

	case *ast.MapExpr:
		for _, it := range e.Items {
			r.expr(it.Key)
			r.expr(it.Value)
		}

	case *ast.VectorExpr:
		for _, it := range e.Items {
			r.expr(it)
		}

	case *ast.ParenExpr:
		r.expr(e.Expr)

	case *ast.FuncExpr:
		fid := r.registerFunc(e.Sig, ir.ClassID(ir.NoID), e.Fn, "")
		r.funcExprID[e] = fid
		e.FuncID = fid
		r.function(e.Sig, e.Body, false, 0)

	case *ast.BadExpr:
		// already reported by the parser

	default:
		panic(fmt.Sprintf("resolver: unexpected expr %T", e))
	}
}
