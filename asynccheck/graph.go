package asynccheck

import (
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/token"
)

// register walks every chunk, recording a graph edge for each identifier
// reference found inside a function body that resolves to a global
// function, global class, or global variable slot. Unlike storage's
// scanCaptures, this walk DOES descend into nested func/func-expr bodies,
// each under its own FuncID, since every nested function needs its own
// call-graph node too.
//
// Global-scope field initializers and top-level "global init" statements
// aren't registered: they run inside the synthesized $$varinit /
// $$globalinit functions, which codegen (I) adds to the Program only after
// this checker has run, so there is no FuncID to attribute their
// identifier references to here (see DESIGN.md).
func register(prog *ir.Program, chunks []*ast.Chunk, bag *diag.Bag) *graph {
	g := &graph{}
	r := &registrar{prog: prog, bag: bag, g: g}
	for _, ch := range chunks {
		for _, stmt := range ch.Block.Stmts {
			switch stmt := stmt.(type) {
			case *ast.FuncStmt:
				r.function(funcIDOf(stmt.FuncID), stmt.Sig, stmt.Body)
			case *ast.ClassStmt:
				for _, m := range stmt.Body.Methods {
					r.function(funcIDOf(m.FuncID), m.Sig, m.Body)
				}
			}
		}
	}
	return g
}

func funcIDOf(v any) ir.FuncID {
	id, _ := v.(ir.FuncID)
	return id
}

type registrar struct {
	prog  *ir.Program
	bag   *diag.Bag
	g     *graph
	stack []ir.FuncID
}

func (r *registrar) current() (ir.FuncID, bool) {
	if len(r.stack) == 0 {
		return 0, false
	}
	return r.stack[len(r.stack)-1], true
}

func (r *registrar) function(fid ir.FuncID, sig *ast.FuncSignature, body *ast.Block) {
	r.stack = append(r.stack, fid)
	for _, p := range sig.Params {
		if p.Default != nil {
			r.expr(p.Default)
		}
	}
	r.block(body)
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *registrar) block(b *ast.Block) {
	for _, s := range b.Stmts {
		r.stmt(s)
	}
}

func (r *registrar) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.AssignStmt:
		for _, e := range s.Right {
			r.expr(e)
		}
		if s.DeclType == token.ILLEGAL {
			for _, e := range s.Left {
				r.expr(e)
			}
		}
	case *ast.ExprStmt:
		r.expr(s.Expr)
	case *ast.ForInStmt:
		r.expr(s.Right)
		r.block(s.Body)
	case *ast.IfStmt:
		r.expr(s.Cond)
		r.block(s.Body)
		if s.ElseIf != nil {
			r.stmt(s.ElseIf)
		} else if s.ElseBlock != nil {
			r.block(s.ElseBlock)
		}
	case *ast.FuncStmt:
		// a nested func-def's own name is a local binding, not a use - only
		// its body gets its own graph node.
		r.function(funcIDOf(s.FuncID), s.Sig, s.Body)
	case *ast.ImportStmt:
	case *ast.ReturnStmt:
		if s.Expr != nil {
			r.expr(s.Expr)
		}
	case *ast.BreakContinueStmt:
	case *ast.WithStmt:
		for _, c := range s.Clauses {
			r.expr(c.Value)
		}
		r.block(s.Body)
	case *ast.DoStmt:
		r.block(s.Body)
		for _, rc := range s.Rescues {
			for _, t := range rc.Types {
				r.expr(t)
			}
			r.block(rc.Body)
		}
		if s.FinBody != nil {
			r.block(s.FinBody)
		}
	case *ast.WhileStmt:
		r.expr(s.Cond)
		r.block(s.Body)
	case *ast.ClassStmt, *ast.BadStmt:
		// nested classes are rejected by the resolver (F).
	}
}

func (r *registrar) expr(e ast.Expr) {
	switch e := e.(type) {
	case nil, *ast.LiteralExpr, *ast.BadExpr:

	case *ast.IdentExpr:
		r.identRef(e)

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
		for _, arg := range e.Args {
			r.expr(arg)
		}
		for _, kv := range e.KwArgs {
			r.expr(kv.Value)
		}
	case *ast.DotExpr:
		r.expr(e.Left)
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
		r.function(funcIDOf(e.FuncID), e.Sig, e.Body)
	}
}

// identRef records the graph edge (or global-variable-access check) for one
// identifier reference, per threadablechecker.c's
// _threadablechecker_register_visitin H64EXPRTYPE_IDENTIFIERREF case.
func (r *registrar) identRef(e *ast.IdentExpr) {
	fid, ok := r.current()
	if !ok {
		return
	}
	line, col := e.Start.LineCol()
	switch e.Storage.Kind {
	case ast.GlobalFuncSlot:
		n := r.g.nodeFor(fid)
		n.calledFuncs = append(n.calledFuncs, calledFunc{
			id: ir.FuncID(e.Storage.ID), line: line, col: col,
		})
	case ast.GlobalClassSlot:
		n := r.g.nodeFor(fid)
		n.calledClasses = append(n.calledClasses, calledClass{
			id: ir.ClassID(e.Storage.ID), line: line, col: col,
		})
	case ast.GlobalVarSlot:
		gv := r.prog.Global(ir.GlobalID(e.Storage.ID))
		simple := gv.IsConst && gv.IsSimpleConst
		fn := r.prog.Func(fid)
		if !simple && fn.UserSetCanAsync {
			r.bag.Add(diag.Error,
				"func marked as \"async\" cannot access global variable "+
					"that isn't a simple constant", "", line, col)
		}
		if !simple {
			fn.Threadable = false
		}
	}
}
