package storage

import (
	"math"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/token"
)

// Allocate assigns local storage for every function, method, and inline
// function-def reachable from chunks. It must run after the scope
// resolver (F) has bound every identifier and marked closure-bound
// definitions, per spec.md §4.7.
func Allocate(chunks []*ast.Chunk) {
	a := &allocator{}
	for _, ch := range chunks {
		a.chunk(ch)
	}
}

type allocator struct {
	stack []*frame
}

type frame struct {
	info      *FuncInfo
	topScope  *ast.Scope
	loopSpans []loopSpan
}

type loopSpan struct{ start, end int }

func (a *allocator) chunk(ch *ast.Chunk) {
	for _, stmt := range ch.Block.Stmts {
		switch stmt := stmt.(type) {
		case *ast.FuncStmt:
			stmt.StorageInfo = a.function(stmt.Sig, stmt.Body, false)
		case *ast.ClassStmt:
			for _, m := range stmt.Body.Methods {
				m.StorageInfo = a.function(m.Sig, m.Body, true)
			}
		}
	}
}

// function computes the storage layout for one function body: parameter
// slots (self, then closure-capture boxes, then positional/keyword
// params, per spec.md §4.7's parameter layout), then walks the body
// assigning slots to every local definition.
func (a *allocator) function(sig *ast.FuncSignature, body *ast.Block, isMethod bool) *FuncInfo {
	fi := &FuncInfo{HasSelf: isMethod, ParamCount: len(sig.Params)}
	fr := &frame{info: fi, topScope: body.Scope}
	a.stack = append(a.stack, fr)

	fi.ClosureBoundVars, fi.ClosureWithSelf = a.scanCaptures(fr, body)

	selfSlots := 0
	if isMethod {
		selfSlots = 1
	}
	closureCount := len(fi.ClosureBoundVars)
	fi.LowestGuaranteedFreeTemp = selfSlots + closureCount + len(sig.Params)

	for i, def := range fi.ClosureBoundVars {
		boxSlot := selfSlots + i
		valueSlot := fi.LowestGuaranteedFreeTemp
		fi.LowestGuaranteedFreeTemp++
		fi.Assignments = append(fi.Assignments, Assignment{
			ValueSlot: valueSlot, ValueBoxSlot: boxSlot,
			Def: def, UseStart: def.FirstUseTokenIndex, UseEnd: def.LastUseTokenIndex,
		})
		def.Storage = ast.StorageRef{Kind: ast.StackSlot, ID: valueSlot}
	}

	for i, p := range sig.Params {
		slot := selfSlots + closureCount + i
		if p.Name.ScopeDef != nil {
			p.Name.ScopeDef.Storage = ast.StorageRef{Kind: ast.StackSlot, ID: slot}
		}
		if p.Default != nil {
			a.expr(fr, p.Default)
		}
	}

	a.block(fr, body)

	a.stack = a.stack[:len(a.stack)-1]
	return fi
}

func (a *allocator) block(fr *frame, b *ast.Block) {
	for _, stmt := range b.Stmts {
		a.stmt(fr, stmt)
	}
}

func (a *allocator) stmt(fr *frame, stmt ast.Stmt) {
	switch stmt := stmt.(type) {
	case *ast.AssignStmt:
		for _, e := range stmt.Right {
			a.expr(fr, e)
		}
		if stmt.DeclType != token.ILLEGAL {
			free := sideEffectFree(stmt.Right)
			for _, left := range stmt.Left {
				ident := left.(*ast.IdentExpr)
				a.assignLocal(fr, ident.ScopeDef, stmt.GetTokenIndex(), free, false)
			}
		} else {
			for _, e := range stmt.Left {
				a.expr(fr, e)
			}
		}

	case *ast.ExprStmt:
		a.expr(fr, stmt.Expr)

	case *ast.ForInStmt:
		a.expr(fr, stmt.Right)
		fr.loopSpans = append(fr.loopSpans, a.loopSpan(stmt))
		for _, id := range stmt.Left {
			// iterator identifiers always allocate; the runtime writes them.
			a.assignLocal(fr, id.ScopeDef, stmt.GetTokenIndex(), false, true)
		}
		a.block(fr, stmt.Body)
		fr.loopSpans = fr.loopSpans[:len(fr.loopSpans)-1]

	case *ast.IfStmt:
		a.expr(fr, stmt.Cond)
		a.block(fr, stmt.Body)
		if stmt.ElseIf != nil {
			a.stmt(fr, stmt.ElseIf)
		} else if stmt.ElseBlock != nil {
			a.block(fr, stmt.ElseBlock)
		}

	case *ast.FuncStmt:
		// a nested func-def's value is always kept around, regardless of
		// whether it's ever referenced afterward.
		a.assignLocal(fr, stmt.Name.ScopeDef, stmt.GetTokenIndex(), false, true)
		stmt.StorageInfo = a.function(stmt.Sig, stmt.Body, false)

	case *ast.ImportStmt:
		// no runtime storage; resolved at the module level.

	case *ast.ReturnStmt:
		if stmt.Expr != nil {
			a.expr(fr, stmt.Expr)
		}

	case *ast.BreakContinueStmt:

	case *ast.WithStmt:
		for _, c := range stmt.Clauses {
			a.expr(fr, c.Value)
			if c.Name != nil {
				a.assignLocal(fr, c.Name.ScopeDef, stmt.GetTokenIndex(), true, true)
				c.Storage = c.Name.ScopeDef.Storage
			}
		}
		a.block(fr, stmt.Body)

	case *ast.DoStmt:
		a.block(fr, stmt.Body)
		for _, rc := range stmt.Rescues {
			for _, t := range rc.Types {
				a.expr(fr, t)
			}
			if rc.Name != nil {
				// unused catch-exception bindings skip allocation entirely.
				a.assignLocal(fr, rc.Name.ScopeDef, stmt.GetTokenIndex(), true, false)
			}
			a.block(fr, rc.Body)
		}
		if stmt.FinBody != nil {
			a.block(fr, stmt.FinBody)
		}

	case *ast.WhileStmt:
		a.expr(fr, stmt.Cond)
		fr.loopSpans = append(fr.loopSpans, a.loopSpan(stmt))
		a.block(fr, stmt.Body)
		fr.loopSpans = fr.loopSpans[:len(fr.loopSpans)-1]

	case *ast.ClassStmt:
		// rejected by the resolver; nothing to allocate.

	case *ast.BadStmt:
	}
}

func (a *allocator) expr(fr *frame, e ast.Expr) {
	switch e := e.(type) {
	case nil, *ast.LiteralExpr, *ast.IdentExpr, *ast.BadExpr:
		// identifiers already carry their storage from declaration time.

	case *ast.UnaryOpExpr:
		a.expr(fr, e.Right)
	case *ast.BinOpExpr:
		a.expr(fr, e.Left)
		a.expr(fr, e.Right)
	case *ast.NewExpr:
		a.expr(fr, e.Call)
	case *ast.IsAExpr:
		a.expr(fr, e.Left)
		a.expr(fr, e.Right)
	case *ast.CallExpr:
		a.expr(fr, e.Fn)
		for _, arg := range e.Args {
			a.expr(fr, arg)
		}
		for _, kv := range e.KwArgs {
			a.expr(fr, kv.Value)
		}
	case *ast.DotExpr:
		a.expr(fr, e.Left)
	case *ast.IndexExpr:
		a.expr(fr, e.Prefix)
		a.expr(fr, e.Index)
	case *ast.ListExpr:
		for _, it := range e.Items {
			a.expr(fr, it)
		}
	case *ast.SetExpr:
		for _, it := range e.Items {
			a.expr(fr, it)
		}
	case *ast.MapExpr:
		for _, it := range e.Items {
			a.expr(fr, it.Key)
			a.expr(fr, it.Value)
		}
	case *ast.VectorExpr:
		for _, it := range e.Items {
			a.expr(fr, it)
		}
	case *ast.ParenExpr:
		a.expr(fr, e.Expr)
	case *ast.FuncExpr:
		e.StorageInfo = a.function(e.Sig, e.Body, false)
	}
}

// assignLocal runs the local slot assignment algorithm (spec.md §4.7,
// steps 1-5) for one definition. sideEffectFree tells whether it can be
// silently dropped when never used; forceAllocate always assigns a slot
// regardless (for-iterators, nested func-defs, with-clause bindings);
// rescue bindings pass false, so an unused one gets no slot.
func (a *allocator) assignLocal(fr *frame, def *ast.ScopeDef, declTok int, sideEffectFree, forceAllocate bool) {
	if def == nil {
		return
	}
	if !forceAllocate && !def.EverUsed && sideEffectFree {
		return
	}

	start, end := def.FirstUseTokenIndex, def.LastUseTokenIndex
	if start < 0 {
		start = declTok
	}
	if end < 0 {
		end = declTok
	}
	if !sideEffectFree && declTok < start {
		start = declTok
	}
	if n := len(fr.loopSpans); n > 0 {
		ls := fr.loopSpans[n-1]
		if ls.start < start {
			start = ls.start
		}
		if ls.end > end {
			end = ls.end
		}
	}

	best := -1
	bestScore := -1
	for i := range fr.info.Assignments {
		cand := &fr.info.Assignments[i]
		var score int
		switch {
		case cand.UseEnd < start:
			score = math.MaxInt - (start - cand.UseEnd)
		case cand.UseStart > end:
			score = math.MaxInt - (cand.UseStart - end)
		default:
			continue // overlapping lifetime, can't reuse
		}
		if best < 0 || score > bestScore ||
			(score == bestScore && cand.ValueSlot < fr.info.Assignments[best].ValueSlot) {
			best = i
			bestScore = score
		}
	}

	var slot int
	if best >= 0 {
		slot = fr.info.Assignments[best].ValueSlot
	} else {
		slot = fr.info.LowestGuaranteedFreeTemp
		fr.info.LowestGuaranteedFreeTemp++
	}

	boxSlot := -1
	if def.ClosureBound {
		boxSlot = fr.info.LowestGuaranteedFreeTemp
		fr.info.LowestGuaranteedFreeTemp++
	}

	fr.info.Assignments = append(fr.info.Assignments, Assignment{
		ValueSlot: slot, ValueBoxSlot: boxSlot, Def: def, UseStart: start, UseEnd: end,
	})
	def.Storage = ast.StorageRef{Kind: ast.StackSlot, ID: slot}
}

// loopSpan computes the token-index range covered by a for/while statement,
// used to widen a local's usage range across the loop's back-edge
// (spec.md §4.7 step 1).
func (a *allocator) loopSpan(stmt ast.Stmt) loopSpan {
	start := 0
	if tg, ok := stmt.(ast.TokenIndexGetter); ok {
		start = tg.GetTokenIndex()
	}
	v := &maxTokVisitor{max: start}
	ast.Walk(v, stmt)
	return loopSpan{start: start, end: v.max}
}

type maxTokVisitor struct{ max int }

func (v *maxTokVisitor) Visit(n ast.Node, dir ast.VisitDirection) ast.Visitor {
	if dir == ast.VisitEnter {
		if s, ok := n.(ast.Stmt); ok {
			if tg, ok2 := s.(ast.TokenIndexGetter); ok2 {
				if ti := tg.GetTokenIndex(); ti > v.max {
					v.max = ti
				}
			}
		}
	}
	return v
}

// sideEffectFree reports whether a var-def's initializer list is absent,
// a bare identifier, or a literal - i.e. droppable if the variable is
// never used (spec.md §4.7 step 1, mirroring nosideeffectsdef).
func sideEffectFree(rhs []ast.Expr) bool {
	if len(rhs) == 0 {
		return true
	}
	if len(rhs) != 1 {
		return false
	}
	switch rhs[0].(type) {
	case *ast.LiteralExpr, *ast.IdentExpr:
		return true
	default:
		return false
	}
}
