package codegen

import (
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/storage"
	"github.com/h64p/horsec/token"
)

// Unit is one function's generated-but-not-yet-linked instruction stream:
// jump fields still carry symbolic ids (jumpRef.ID), not byte offsets. The
// linker (J) turns a []Unit into final Program.Funcs[id].Code.
type Unit struct {
	FuncID ir.FuncID
	Instrs []Instr
}

// Generator carries the shared state every per-function generator needs:
// the program being built (for interning attribute names, registering
// synthesized functions, and resolving class/base-class ids) and the
// diagnostics bag.
type Generator struct {
	Prog *ir.Program
	Bag  *diag.Bag
}

// Generate emits (I) every user-written function across chunks, followed
// by the synthesized $$globalinit and one $$varinit per class that needs
// one, per spec.md §4.9.
func Generate(prog *ir.Program, chunks []*ast.Chunk, bag *diag.Bag) []Unit {
	g := &Generator{Prog: prog, Bag: bag}

	var units []Unit
	for _, u := range collectFuncUnits(chunks) {
		units = append(units, g.genFunc(u))
	}
	units = append(units, g.genGlobalInit(chunks))
	units = append(units, g.genVarInits(chunks)...)
	return units
}

// funcUnit bundles one user-written function/method/func-expr with the
// storage layout the allocator (G) computed for it.
type funcUnit struct {
	FuncID ir.FuncID
	Sig    *ast.FuncSignature
	Body   *ast.Block
	Info   *storage.FuncInfo
}

// collectFuncUnits walks every chunk once, gathering every FuncStmt
// (top-level, nested, or class method) and FuncExpr it finds - the same
// ast.Walk/VisitorFunc traversal storage's own allocator uses to find
// every token a function touches.
func collectFuncUnits(chunks []*ast.Chunk) []funcUnit {
	var units []funcUnit
	var visit ast.VisitorFunc
	visit = func(n ast.Node, dir ast.VisitDirection) ast.Visitor {
		if dir != ast.VisitEnter {
			return nil
		}
		switch n := n.(type) {
		case *ast.FuncStmt:
			units = append(units, funcUnit{
				FuncID: n.FuncID.(ir.FuncID),
				Sig:    n.Sig,
				Body:   n.Body,
				Info:   n.StorageInfo.(*storage.FuncInfo),
			})
		case *ast.FuncExpr:
			units = append(units, funcUnit{
				FuncID: n.FuncID.(ir.FuncID),
				Sig:    n.Sig,
				Body:   n.Body,
				Info:   n.StorageInfo.(*storage.FuncInfo),
			})
		}
		return visit
	}
	for _, ch := range chunks {
		ast.Walk(visit, ch)
	}
	return units
}

// collectClassStmts maps every class's resolved id back to its declaring
// ClassStmt, so genVarInits can read each class's own field initializers.
func collectClassStmts(chunks []*ast.Chunk) map[ir.ClassID]*ast.ClassStmt {
	m := make(map[ir.ClassID]*ast.ClassStmt)
	var visit ast.VisitorFunc
	visit = func(n ast.Node, dir ast.VisitDirection) ast.Visitor {
		if dir != ast.VisitEnter {
			return nil
		}
		if cs, ok := n.(*ast.ClassStmt); ok {
			m[cs.ClassInfo.(ir.ClassID)] = cs
		}
		return visit
	}
	for _, ch := range chunks {
		ast.Walk(visit, ch)
	}
	return m
}

func (g *Generator) genFunc(u funcUnit) Unit {
	fg := newFuncGen(g, u.Info)
	if u.Sig != nil {
		fg.genKwargPrologue(u.Sig)
	}
	fg.block(u.Body)
	fg.finish(g.Prog.Func(u.FuncID))
	return Unit{FuncID: u.FuncID, Instrs: fg.instrs}
}

// genGlobalInit synthesizes $$globalinit: one program-wide function running
// every chunk's top-level statements, in chunk order, skipping the
// declarations themselves (func/class/import statements have no runtime
// effect of their own - their bodies are separately generated functions).
// This resolves spec.md's silence on whether $$globalinit is one function
// or one per chunk: a single accumulating function keeps cross-chunk
// top-level ordering simple and matches how a single MainFuncIndex already
// assumes one whole-project entry point.
func (g *Generator) genGlobalInit(chunks []*ast.Chunk) Unit {
	info := &storage.FuncInfo{}
	fid := g.Prog.AddFunc(ir.Func{Threadable: true})
	g.Prog.GlobalInitFuncIndex = fid
	g.Prog.Debug.RecordFunc("$$globalinit", ir.LineCol{})

	fg := newFuncGen(g, info)
	for _, ch := range chunks {
		for _, s := range ch.Block.Stmts {
			switch s.(type) {
			case *ast.FuncStmt, *ast.ClassStmt, *ast.ImportStmt:
				continue
			}
			mark := fg.mark()
			fg.stmt(s)
			fg.release(mark)
		}
	}
	fg.finish(g.Prog.Func(fid))
	return Unit{FuncID: fid, Instrs: fg.instrs}
}

// genVarInits synthesizes one $$varinit per class with at least one own
// non-nil field initializer, visiting base classes before derived ones so
// a derived $$varinit can call its base's, per spec.md's worked example
// ("B has a synthesized $$varinit that runs A's $$varinit then stores 2
// into y").
func (g *Generator) genVarInits(chunks []*ast.Chunk) []Unit {
	classStmts := collectClassStmts(chunks)
	state := make([]int, len(g.Prog.Classes))
	var units []Unit

	var visit func(cid ir.ClassID)
	visit = func(cid ir.ClassID) {
		if state[cid] != 0 {
			return
		}
		state[cid] = 1
		cl := g.Prog.Class(cid)
		if cl.BaseClass != ir.NoID {
			visit(cl.BaseClass)
		}
		if u, ok := g.genClassVarInit(cid, classStmts[cid]); ok {
			units = append(units, u)
		}
		state[cid] = 2
	}
	for cid := range g.Prog.Classes {
		visit(ir.ClassID(cid))
	}
	return units
}

func (g *Generator) genClassVarInit(cid ir.ClassID, stmt *ast.ClassStmt) (Unit, bool) {
	if stmt == nil {
		return Unit{}, false
	}
	cl := g.Prog.Class(cid)

	// A class's own var-attrs occupy cl.VarAttrs's tail: declareGlobalClass
	// appends them at phase-1 time, and inheritance (§4.6) then prepends the
	// base's (non-overridden) attrs as a prefix in front of them, per §8's
	// "C's varattr list starts with a prefix equal to base.varattrs" - so
	// the class's own fields are always the last ownCount entries.
	ownCount := 0
	for _, fd := range stmt.Body.Fields {
		ownCount += len(fd.Left)
	}
	ownStart := len(cl.VarAttrs) - ownCount
	if ownStart < 0 {
		ownStart = 0
	}
	hasOwnInit := false
	for i := ownStart; i < len(cl.VarAttrs); i++ {
		if cl.VarAttrs[i].InitExpr != nil {
			hasOwnInit = true
			break
		}
	}

	baseHasInit := cl.BaseClass != ir.NoID && g.Prog.Class(cl.BaseClass).HasVarInitFunc
	if !hasOwnInit && !baseHasInit {
		return Unit{}, false
	}

	info := &storage.FuncInfo{HasSelf: true, LowestGuaranteedFreeTemp: 1}
	fid := g.Prog.AddFunc(ir.Func{AssociatedClass: cid, Threadable: true})
	g.Prog.Debug.RecordFunc("$$varinit", ir.LineCol{})
	cl.HasVarInitFunc = true
	cl.VarInitFunc = fid

	fg := newFuncGen(g, info)
	if baseHasInit {
		base := g.Prog.Class(cl.BaseClass)
		mark := fg.mark()
		fn := fg.allocTemp()
		fg.add(Instr{Op: OpGetFunc, To: fn, FuncID: base.VarInitFunc}, stmt.Class)
		fg.emitCallOnSelf(fn, stmt.Class)
		fg.release(mark)
	}

	for i := ownStart; i < len(cl.VarAttrs); i++ {
		init := cl.VarAttrs[i].InitExpr
		if init == nil {
			continue
		}
		mark := fg.mark()
		v := fg.expr(init.(ast.Expr))
		fg.add(Instr{Op: OpSetByAttrIdx, A: 0, VarAttrIdx: i, B: v}, stmt.Class)
		fg.release(mark)
	}

	mark := fg.mark()
	none := fg.allocTemp()
	fg.add(Instr{Op: OpSetConst, To: none, Const: ir.NoneValue}, stmt.Class)
	fg.add(Instr{Op: OpReturnValue, To: none}, stmt.Class)
	fg.release(mark)

	fg.finish(g.Prog.Func(fid))
	return Unit{FuncID: fid, Instrs: fg.instrs}, true
}

// loopCtx is one nested while/for-in loop's break/continue jump ids.
type loopCtx struct {
	breakJump, continueJump int32
}

// funcGen generates one function's straight-line instruction stream. Its
// temp allocator is a bump allocator with mark/release: release(m) frees
// every slot allocated since mark() returned m, which is sound as long as
// every value still needed past that point was already read into some
// slot below m - see mark/release below.
type funcGen struct {
	g    *Generator
	info *storage.FuncInfo

	instrs []Instr

	tempTop  int // next free slot, relative to info.LowestGuaranteedFreeTemp
	tempMax  int // high-water mark of tempTop; not copied to info or the ir.Func
	highSlot int // high-water mark of any slot ever touched, -> InnerStackSize

	loops []loopCtx
}

func newFuncGen(g *Generator, info *storage.FuncInfo) *funcGen {
	return &funcGen{g: g, info: info}
}

// mark/release implement the bump-allocator-with-release-to-mark
// discipline described above.
func (fg *funcGen) mark() int { return fg.tempTop }

func (fg *funcGen) release(mark int) { fg.tempTop = mark }

func (fg *funcGen) allocTemp() int {
	slot := fg.info.LowestGuaranteedFreeTemp + fg.tempTop
	fg.tempTop++
	if fg.tempTop > fg.tempMax {
		fg.tempMax = fg.tempTop
	}
	return slot
}

func (fg *funcGen) touch(slot int) {
	if slot > fg.highSlot {
		fg.highSlot = slot
	}
}

func (fg *funcGen) add(ins Instr, pos token.Pos) {
	ins.Line, ins.Col = pos.LineCol()
	fg.touch(ins.To)
	fg.touch(ins.A)
	fg.touch(ins.B)
	fg.instrs = append(fg.instrs, ins)
}

func (fg *funcGen) newJump() int32 {
	id := fg.info.JumpTargetsUsed
	fg.info.JumpTargetsUsed++
	return id
}

func (fg *funcGen) newFrame() int {
	id := fg.info.DoStmtsUsed
	fg.info.DoStmtsUsed++
	return id
}

func (fg *funcGen) emitJumpTarget(id int32, pos token.Pos) {
	fg.add(Instr{Op: OpJumpTarget, Jump: jid(id)}, pos)
}

// localSlot reports def's stack slot if it was assigned a local one by the
// storage allocator (G). def.Storage is live state mutated in place by
// storage.Allocate; a matching ast.IdentExpr.ExprInfo.Storage copy, by
// contrast, was taken before that allocation ran and must never be read
// for a local - only for the global/import-chain cases where the resolver
// (F) sets it once, before G runs at all.
func (fg *funcGen) localSlot(def *ast.ScopeDef) (int, bool) {
	if def == nil || def.Storage.Kind != ast.StackSlot {
		return 0, false
	}
	return def.Storage.ID, true
}

// finish stamps fn's stack-size fields once every instruction has been
// generated.
func (fg *funcGen) finish(fn *ir.Func) {
	extra := fg.info.LowestGuaranteedFreeTemp
	if fg.highSlot+1 > extra {
		extra = fg.highSlot + 1
	}
	fn.InnerStackSize = extra
	fn.InputStackSize = fg.info.ParamCount + len(fg.info.ClosureBoundVars)
	if fg.info.HasSelf {
		fn.InputStackSize++
	}
}

// block generates every statement of b, releasing that statement's own
// temps at each boundary - spec.md §4.9's "statement boundaries call
// free_1_line_temps" contract, implemented once here instead of in every
// individual statement generator.
func (fg *funcGen) block(b *ast.Block) {
	for _, s := range b.Stmts {
		mark := fg.mark()
		fg.stmt(s)
		fg.release(mark)
	}
}

// ---- expressions ----

func (fg *funcGen) expr(e ast.Expr) int {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return fg.expr(e.Expr)
	case *ast.LiteralExpr:
		return fg.literal(e)
	case *ast.IdentExpr:
		return fg.ident(e)
	case *ast.UnaryOpExpr:
		return fg.unary(e)
	case *ast.BinOpExpr:
		if e.Type == token.AND || e.Type == token.OR {
			return fg.shortCircuit(e)
		}
		return fg.binOp(e)
	case *ast.IsAExpr:
		return fg.isA(e)
	case *ast.NewExpr:
		return fg.newExpr(e)
	case *ast.CallExpr:
		return fg.call(e, false)
	case *ast.DotExpr:
		return fg.dot(e)
	case *ast.IndexExpr:
		return fg.index(e)
	case *ast.ListExpr:
		return fg.listOrSet(e.Items, OpNewList, e.Lbrack)
	case *ast.SetExpr:
		return fg.listOrSet(e.Items, OpNewSet, e.Lbrace)
	case *ast.MapExpr:
		return fg.mapExpr(e)
	case *ast.VectorExpr:
		return fg.vectorExpr(e)
	case *ast.FuncExpr:
		slot := fg.allocTemp()
		fg.add(Instr{Op: OpGetFunc, To: slot, FuncID: e.FuncID.(ir.FuncID)}, e.Fn)
		return slot
	case *ast.BadExpr:
		slot := fg.allocTemp()
		fg.add(Instr{Op: OpSetConst, To: slot, Const: ir.NoneValue}, e.Start)
		return slot
	default:
		slot := fg.allocTemp()
		fg.add(Instr{Op: OpSetConst, To: slot, Const: ir.NoneValue}, 0)
		return slot
	}
}

func (fg *funcGen) literal(e *ast.LiteralExpr) int {
	slot := fg.allocTemp()
	fg.add(Instr{Op: OpSetConst, To: slot, Const: fg.literalValue(e)}, e.Start)
	return slot
}

func (fg *funcGen) literalValue(e *ast.LiteralExpr) ir.ValueContent {
	switch e.Type {
	case token.INT:
		return ir.NewIntValue(e.Value.(int64))
	case token.FLOAT:
		return ir.NewFloatValue(e.Value.(float64))
	case token.STRING:
		return ir.NewStringValue(e.Value.(string))
	case token.BYTES:
		return ir.NewBytesValue([]byte(e.Value.(string)))
	case token.NONE:
		return ir.NoneValue
	case token.MAIN:
		// MAIN encodes the "main()" call-args placeholder; real CLI-argument
		// wiring is out of scope for this front end.
		return ir.NewStringValue("main")
	default:
		return ir.NoneValue
	}
}

// globalRefFromStorage loads whatever a GlobalVarSlot/GlobalFuncSlot/
// GlobalClassSlot StorageRef names into a fresh temp - shared by ident()
// (plain global references) and dot() (import-chain DotExprs, which the
// resolver resolves to the very same storage kinds).
func (fg *funcGen) globalRefFromStorage(st ast.StorageRef, pos token.Pos) int {
	slot := fg.allocTemp()
	switch st.Kind {
	case ast.GlobalVarSlot:
		fg.add(Instr{Op: OpGetGlobal, To: slot, GlobalID: ir.GlobalID(st.ID)}, pos)
	case ast.GlobalFuncSlot:
		fg.add(Instr{Op: OpGetFunc, To: slot, FuncID: ir.FuncID(st.ID)}, pos)
	case ast.GlobalClassSlot:
		fg.add(Instr{Op: OpGetClass, To: slot, ClassID: ir.ClassID(st.ID)}, pos)
	default:
		fg.add(Instr{Op: OpSetConst, To: slot, Const: ir.NoneValue}, pos)
	}
	return slot
}

func (fg *funcGen) ident(e *ast.IdentExpr) int {
	if e.Lit == "self" || e.Lit == "base" {
		return 0
	}
	if slot, ok := fg.localSlot(e.ScopeDef); ok {
		return slot
	}
	return fg.globalRefFromStorage(e.ExprInfo.Storage, e.Start)
}

func (fg *funcGen) unary(e *ast.UnaryOpExpr) int {
	result := fg.allocTemp()
	mark := fg.mark()
	a := fg.expr(e.Right)
	fg.add(Instr{Op: OpUnOp, To: result, OpType: e.Type, A: a}, e.Op)
	fg.release(mark)
	return result
}

func (fg *funcGen) binOp(e *ast.BinOpExpr) int {
	result := fg.allocTemp()
	mark := fg.mark()
	a := fg.expr(e.Left)
	b := fg.expr(e.Right)
	fg.add(Instr{Op: OpBinOp, To: result, OpType: e.Type, A: a, B: b}, e.Op)
	fg.release(mark)
	return result
}

func (fg *funcGen) isA(e *ast.IsAExpr) int {
	result := fg.allocTemp()
	mark := fg.mark()
	a := fg.expr(e.Left)
	b := fg.expr(e.Right)
	fg.add(Instr{Op: OpBinOp, To: result, OpType: token.IS_A, A: a, B: b}, e.IsA)
	fg.release(mark)
	return result
}

// shortCircuit generates "and"/"or", using condjump's fixed polarity
// (jump when falsy) directly instead of negating it: "and" jumps straight
// to the end when the left side is already falsy, "or" jumps to evaluating
// the right side when the left is falsy and otherwise falls through to a
// jump straight to the end.
func (fg *funcGen) shortCircuit(e *ast.BinOpExpr) int {
	result := fg.allocTemp()
	leftMark := fg.mark()
	left := fg.expr(e.Left)
	fg.add(Instr{Op: OpValueCopy, To: result, A: left}, e.Op)
	fg.release(leftMark)

	endJump := fg.newJump()
	if e.Type == token.AND {
		fg.add(Instr{Op: OpCondJump, A: result, Jump: jid(endJump)}, e.Op)
		rightMark := fg.mark()
		right := fg.expr(e.Right)
		fg.add(Instr{Op: OpValueCopy, To: result, A: right}, e.Op)
		fg.release(rightMark)
	} else {
		evalRight := fg.newJump()
		fg.add(Instr{Op: OpCondJump, A: result, Jump: jid(evalRight)}, e.Op)
		fg.add(Instr{Op: OpJump, Jump: jid(endJump)}, e.Op)
		fg.emitJumpTarget(evalRight, e.Op)
		rightMark := fg.mark()
		right := fg.expr(e.Right)
		fg.add(Instr{Op: OpValueCopy, To: result, A: right}, e.Op)
		fg.release(rightMark)
	}
	fg.emitJumpTarget(endJump, e.Op)
	return result
}

// staticClassID reports the resolved ClassID of e if it is a compile-time-
// known class reference (a plain or import-chain identifier bound to
// GlobalClassSlot storage).
func (fg *funcGen) staticClassID(e ast.Expr) (ir.ClassID, bool) {
	var st ast.StorageRef
	switch n := ast.Unwrap(e).(type) {
	case *ast.IdentExpr:
		st = n.ExprInfo.Storage
	case *ast.DotExpr:
		st = n.ExprInfo.Storage
	default:
		return 0, false
	}
	if st.Kind == ast.GlobalClassSlot {
		return ir.ClassID(st.ID), true
	}
	return 0, false
}

func (fg *funcGen) newExpr(e *ast.NewExpr) int {
	result := fg.allocTemp()
	mark := fg.mark()
	if cid, ok := fg.staticClassID(e.Call.Fn); ok {
		fg.add(Instr{Op: OpNewInstance, To: result, ClassID: cid}, e.New)
	} else {
		cls := fg.expr(e.Call.Fn)
		fg.add(Instr{Op: OpNewInstanceByRef, To: result, A: cls}, e.New)
	}
	ctor := fg.allocTemp()
	fg.add(Instr{Op: OpGetConstructor, To: ctor, A: result}, e.New)
	// The constructor call writes back into the same result slot: a
	// none-returning constructor (the common case) must leave the
	// freshly-allocated instance in place rather than overwrite it, which
	// is exactly what callignoreifnone's "ignore a none result" semantics
	// give us here.
	fg.emitCall(result, ctor, e.Call.Args, e.Call.KwArgs, e.New, true)
	fg.release(mark)
	return result
}

func (fg *funcGen) call(e *ast.CallExpr, ignoreIfNone bool) int {
	result := fg.allocTemp()
	mark := fg.mark()
	callee := fg.expr(e.Fn)
	fg.emitCall(result, callee, e.Args, e.KwArgs, e.Lparen, ignoreIfNone)
	fg.release(mark)
	return result
}

// emitCall evaluates args/kwargs and emits the call sequence. target is an
// already-reserved slot to write the return value into, or -1 to allocate
// a fresh one (the ordinary case; newExpr passes its own pre-allocated
// instance slot instead).
func (fg *funcGen) emitCall(target int, callee int, args []ast.Expr, kwargs []*ast.KeyVal, pos token.Pos, ignoreIfNone bool) int {
	if target < 0 {
		target = fg.allocTemp()
	}
	mark := fg.mark()
	top := fg.allocTemp()
	fg.add(Instr{Op: OpCallSetTop, To: top}, pos)

	for _, a := range args {
		v := fg.expr(a)
		slot := fg.allocTemp()
		fg.add(Instr{Op: OpValueCopy, To: slot, A: v}, pos)
	}
	for _, kv := range kwargs {
		nameID, _ := fg.g.Prog.Attrs.Intern(kv.Key.(*ast.IdentExpr).Lit, true)
		nameSlot := fg.allocTemp()
		// There's no dedicated "name constant" ValueKind in spec.md §3.2;
		// a keyword argument's name is passed as an ordinary int constant
		// holding the interned AttrID, a call-site-only convention this
		// generator and its (not yet existing) VM would need to agree on.
		fg.add(Instr{Op: OpSetConst, To: nameSlot, Const: ir.NewIntValue(int64(nameID))}, pos)
		v := fg.expr(kv.Value)
		valSlot := fg.allocTemp()
		fg.add(Instr{Op: OpValueCopy, To: valSlot, A: v}, pos)
	}

	op := OpCall
	if ignoreIfNone {
		op = OpCallIgnoreIfNone
	}
	fg.add(Instr{Op: op, To: target, A: callee, PosArgs: len(args), KwArgs: len(kwargs)}, pos)
	fg.release(mark)
	return target
}

func (fg *funcGen) dot(e *ast.DotExpr) int {
	if e.ExprInfo.Storage.Kind != ast.NoStorage {
		return fg.globalRefFromStorage(e.ExprInfo.Storage, e.Dot)
	}
	result := fg.allocTemp()
	mark := fg.mark()
	obj := fg.expr(e.Left)
	nameID, _ := fg.g.Prog.Attrs.Intern(e.Right.Lit, true)
	fg.add(Instr{Op: OpGetAttrByName, To: result, A: obj, NameID: nameID}, e.Dot)
	fg.release(mark)
	return result
}

func (fg *funcGen) index(e *ast.IndexExpr) int {
	result := fg.allocTemp()
	mark := fg.mark()
	obj := fg.expr(e.Prefix)
	idx := fg.expr(e.Index)
	fg.add(Instr{Op: OpGetByIndexExpr, To: result, A: obj, B: idx}, e.Lbrack)
	fg.release(mark)
	return result
}

func (fg *funcGen) listOrSet(items []ast.Expr, op Opcode, pos token.Pos) int {
	result := fg.allocTemp()
	fg.add(Instr{Op: op, To: result}, pos)
	addID, _ := fg.g.Prog.Attrs.Intern("add", true)
	for _, it := range items {
		mark := fg.mark()
		method := fg.allocTemp()
		fg.add(Instr{Op: OpGetAttrByName, To: method, A: result, NameID: addID}, pos)
		fg.emitCall(-1, method, []ast.Expr{it}, nil, pos, false)
		fg.release(mark)
	}
	return result
}

func (fg *funcGen) mapExpr(e *ast.MapExpr) int {
	result := fg.allocTemp()
	fg.add(Instr{Op: OpNewMap, To: result}, e.Lbrace)
	for _, kv := range e.Items {
		mark := fg.mark()
		k := fg.expr(kv.Key)
		v := fg.expr(kv.Value)
		fg.add(Instr{Op: OpSetByIndexExpr, A: result, B: k, To: v}, e.Lbrace)
		fg.release(mark)
	}
	return result
}

func (fg *funcGen) vectorExpr(e *ast.VectorExpr) int {
	result := fg.allocTemp()
	fg.add(Instr{Op: OpNewVector, To: result}, e.Start)
	mark := fg.mark()
	key := fg.allocTemp()
	for i, it := range e.Items {
		itemMark := fg.mark()
		fg.add(Instr{Op: OpSetConst, To: key, Const: ir.NewIntValue(int64(i))}, e.Start)
		v := fg.expr(it)
		fg.add(Instr{Op: OpSetByIndexExpr, A: result, B: key, To: v}, e.Start)
		fg.release(itemMark)
	}
	fg.release(mark)
	return result
}

// ---- statements ----

func (fg *funcGen) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.AssignStmt:
		fg.assignStmt(s)
	case *ast.ExprStmt:
		mark := fg.mark()
		fg.expr(s.Expr)
		fg.release(mark)
	case *ast.IfStmt:
		fg.ifStmt(s)
	case *ast.WhileStmt:
		fg.whileStmt(s)
	case *ast.ForInStmt:
		fg.forStmt(s)
	case *ast.ReturnStmt:
		fg.returnStmt(s)
	case *ast.BreakContinueStmt:
		fg.breakContinue(s)
	case *ast.DoStmt:
		fg.doStmt(s)
	case *ast.WithStmt:
		fg.withStmt(s)
	case *ast.FuncStmt:
		fg.nestedFuncDef(s)
	case *ast.ClassStmt, *ast.ImportStmt, *ast.BadStmt:
		// nested class/import statements have no runtime effect of their
		// own; their members were already collected as separate units.
	}
}

func (fg *funcGen) nestedFuncDef(s *ast.FuncStmt) {
	if slot, ok := fg.localSlot(s.Name.ScopeDef); ok {
		fg.add(Instr{Op: OpGetFunc, To: slot, FuncID: s.FuncID.(ir.FuncID)}, s.Fn)
	}
}

// exprOrNone evaluates rhs, or emits "none" for a var-def with no
// initializer ("var x").
func (fg *funcGen) exprOrNone(rhs ast.Expr, pos token.Pos) int {
	if rhs != nil {
		return fg.expr(rhs)
	}
	slot := fg.allocTemp()
	fg.add(Instr{Op: OpSetConst, To: slot, Const: ir.NoneValue}, pos)
	return slot
}

func (fg *funcGen) assignStmt(s *ast.AssignStmt) {
	if s.DeclType != token.ILLEGAL {
		for i, left := range s.Left {
			var rhs ast.Expr
			if i < len(s.Right) {
				rhs = s.Right[i]
			}
			mark := fg.mark()
			v := fg.exprOrNone(rhs, s.AssignPos)
			fg.assignToIdent(left.(*ast.IdentExpr), v, token.EQ, s.AssignPos)
			fg.release(mark)
		}
		return
	}
	for i, left := range s.Left {
		var rhs ast.Expr
		if i < len(s.Right) {
			rhs = s.Right[i]
		}
		mark := fg.mark()
		fg.assign(left, rhs, s.AssignTok, s.AssignPos)
		fg.release(mark)
	}
}

func (fg *funcGen) assign(left ast.Expr, rhs ast.Expr, assignTok token.Token, pos token.Pos) {
	switch l := ast.Unwrap(left).(type) {
	case *ast.IdentExpr:
		v := fg.rhsValue(fg.ident(l), rhs, assignTok, pos)
		fg.assignToIdent(l, v, assignTok, pos)
	case *ast.DotExpr:
		fg.assignToDot(l, rhs, assignTok, pos)
	case *ast.IndexExpr:
		fg.assignToIndex(l, rhs, assignTok, pos)
	}
}

// rhsValue evaluates rhs, applying the compound-assignment operator
// against the current value at oldSlot if assignTok isn't a plain "=".
func (fg *funcGen) rhsValue(oldSlot int, rhs ast.Expr, assignTok token.Token, pos token.Pos) int {
	v := fg.expr(rhs)
	if !assignTok.IsAssignOp() {
		return v
	}
	result := fg.allocTemp()
	fg.add(Instr{Op: OpBinOp, To: result, OpType: token.AssignOpToMathOp(assignTok), A: oldSlot, B: v}, pos)
	return result
}

func (fg *funcGen) assignToIdent(l *ast.IdentExpr, v int, assignTok token.Token, pos token.Pos) {
	if slot, ok := fg.localSlot(l.ScopeDef); ok {
		fg.add(Instr{Op: OpValueCopy, To: slot, A: v}, pos)
		return
	}
	st := l.ExprInfo.Storage
	if st.Kind == ast.GlobalVarSlot {
		fg.add(Instr{Op: OpSetGlobal, A: v, GlobalID: ir.GlobalID(st.ID)}, pos)
	}
}

func (fg *funcGen) assignToDot(l *ast.DotExpr, rhs ast.Expr, assignTok token.Token, pos token.Pos) {
	mark := fg.mark()
	obj := fg.expr(l.Left)
	nameID, _ := fg.g.Prog.Attrs.Intern(l.Right.Lit, true)
	var old int
	if assignTok.IsAssignOp() {
		old = fg.allocTemp()
		fg.add(Instr{Op: OpGetAttrByName, To: old, A: obj, NameID: nameID}, pos)
	}
	v := fg.rhsValue(old, rhs, assignTok, pos)
	fg.add(Instr{Op: OpSetByAttrName, A: obj, NameID: nameID, B: v}, pos)
	fg.release(mark)
}

func (fg *funcGen) assignToIndex(l *ast.IndexExpr, rhs ast.Expr, assignTok token.Token, pos token.Pos) {
	mark := fg.mark()
	obj := fg.expr(l.Prefix)
	idx := fg.expr(l.Index)
	var old int
	if assignTok.IsAssignOp() {
		old = fg.allocTemp()
		fg.add(Instr{Op: OpGetByIndexExpr, To: old, A: obj, B: idx}, pos)
	}
	v := fg.rhsValue(old, rhs, assignTok, pos)
	fg.add(Instr{Op: OpSetByIndexExpr, A: obj, B: idx, To: v}, pos)
	fg.release(mark)
}

// ifStmt generates the whole if/elseif/else chain under one shared "end"
// jump id, per spec.md §4.9: each non-final clause gets its own
// next-clause jump id, condjump(cond, next) skips straight to it, and the
// body ends with jump(end) so it doesn't fall into the next clause.
func (fg *funcGen) ifStmt(s *ast.IfStmt) {
	endJump := fg.newJump()
	fg.ifClause(s, endJump)
	fg.emitJumpTarget(endJump, s.Start)
}

func (fg *funcGen) ifClause(s *ast.IfStmt, endJump int32) {
	hasMore := s.ElseIf != nil || s.ElseBlock != nil

	mark := fg.mark()
	cond := fg.expr(s.Cond)
	var nextJump int32
	if hasMore {
		nextJump = fg.newJump()
		fg.add(Instr{Op: OpCondJump, A: cond, Jump: jid(nextJump)}, s.Start)
	} else {
		fg.add(Instr{Op: OpCondJump, A: cond, Jump: jid(endJump)}, s.Start)
	}
	fg.release(mark)

	fg.block(s.Body)
	if hasMore {
		fg.add(Instr{Op: OpJump, Jump: jid(endJump)}, s.Start)
		fg.emitJumpTarget(nextJump, s.Start)
	}

	if s.ElseIf != nil {
		fg.ifClause(s.ElseIf, endJump)
	} else if s.ElseBlock != nil {
		fg.block(s.ElseBlock)
	}
}

func (fg *funcGen) whileStmt(s *ast.WhileStmt) {
	startJump := fg.newJump()
	endJump := fg.newJump()
	fg.loops = append(fg.loops, loopCtx{breakJump: endJump, continueJump: startJump})

	fg.emitJumpTarget(startJump, s.While)
	mark := fg.mark()
	cond := fg.expr(s.Cond)
	fg.add(Instr{Op: OpCondJump, A: cond, Jump: jid(endJump)}, s.While)
	fg.release(mark)
	fg.block(s.Body)
	fg.add(Instr{Op: OpJump, Jump: jid(startJump)}, s.While)
	fg.emitJumpTarget(endJump, s.While)

	fg.loops = fg.loops[:len(fg.loops)-1]
}

func (fg *funcGen) forStmt(s *ast.ForInStmt) {
	mark := fg.mark()
	iter := fg.allocTemp()
	cmark := fg.mark()
	container := fg.expr(s.Right)
	fg.add(Instr{Op: OpNewIterator, To: iter, A: container}, s.For)
	fg.release(cmark)

	startJump := fg.newJump()
	endJump := fg.newJump()
	fg.loops = append(fg.loops, loopCtx{breakJump: endJump, continueJump: startJump})

	fg.emitJumpTarget(startJump, s.For)
	valMark := fg.mark()
	value := fg.allocTemp()
	fg.add(Instr{Op: OpIterate, To: value, A: iter, Jump: jid(endJump)}, s.For)
	fg.bindForTargets(s.Left, value, s.For)
	fg.release(valMark)

	fg.block(s.Body)
	fg.add(Instr{Op: OpJump, Jump: jid(startJump)}, s.For)
	fg.emitJumpTarget(endJump, s.For)

	fg.loops = fg.loops[:len(fg.loops)-1]
	fg.release(mark)
}

// bindForTargets copies the just-iterated value into the loop's binding(s).
// Two bindings are treated as a key/value pair destructured positionally
// out of value - a simplification for map iteration, since this grammar
// has no tuple type of its own to destructure more generally.
func (fg *funcGen) bindForTargets(idents []*ast.IdentExpr, value int, pos token.Pos) {
	if len(idents) == 1 {
		if slot, ok := fg.localSlot(idents[0].ScopeDef); ok {
			fg.add(Instr{Op: OpValueCopy, To: slot, A: value}, pos)
		}
		return
	}
	for i, id := range idents {
		slot, ok := fg.localSlot(id.ScopeDef)
		if !ok {
			continue
		}
		idxMark := fg.mark()
		idxSlot := fg.allocTemp()
		fg.add(Instr{Op: OpSetConst, To: idxSlot, Const: ir.NewIntValue(int64(i))}, pos)
		fg.add(Instr{Op: OpGetByIndexExpr, To: slot, A: value, B: idxSlot}, pos)
		fg.release(idxMark)
	}
}

func (fg *funcGen) returnStmt(s *ast.ReturnStmt) {
	mark := fg.mark()
	slot := fg.exprOrNone(s.Expr, s.Start)
	fg.add(Instr{Op: OpReturnValue, To: slot}, s.Start)
	fg.release(mark)
}

func (fg *funcGen) breakContinue(s *ast.BreakContinueStmt) {
	if len(fg.loops) == 0 {
		return // the resolver already rejects break/continue outside a loop
	}
	top := fg.loops[len(fg.loops)-1]
	id := top.continueJump
	if s.Type == token.BREAK {
		id = top.breakJump
	}
	fg.add(Instr{Op: OpJump, Jump: jid(id)}, s.Start)
}

// genKwargPrologue emits, for each keyword parameter with a default, a
// check-and-fill: condjump skips the default-value code whenever the slot
// doesn't hold the unspecified-kwarg sentinel (i.e. the caller did supply
// a value), per spec.md §4.7's calling convention.
func (fg *funcGen) genKwargPrologue(sig *ast.FuncSignature) {
	for _, p := range sig.Params {
		if p.Default == nil {
			continue
		}
		slot, ok := fg.localSlot(p.Name.ScopeDef)
		if !ok {
			continue
		}
		pos, _ := p.Name.Span()
		mark := fg.mark()
		sentinel := fg.allocTemp()
		fg.add(Instr{Op: OpSetConst, To: sentinel, Const: ir.UnspecifiedKwargValue}, pos)
		isUnspecified := fg.allocTemp()
		fg.add(Instr{Op: OpBinOp, To: isUnspecified, OpType: token.EQEQ, A: slot, B: sentinel}, pos)
		skip := fg.newJump()
		fg.add(Instr{Op: OpCondJump, A: isUnspecified, Jump: jid(skip)}, pos)
		def := fg.expr(p.Default)
		fg.add(Instr{Op: OpValueCopy, To: slot, A: def}, pos)
		fg.emitJumpTarget(skip, pos)
		fg.release(mark)
	}
}

// emitCallOnSelf calls fn (a raw, unbound function reference) passing the
// current frame's self (slot 0) as its sole positional argument - used
// only by a derived class's $$varinit to invoke its base's.
func (fg *funcGen) emitCallOnSelf(fn int, pos token.Pos) {
	mark := fg.mark()
	top := fg.allocTemp()
	fg.add(Instr{Op: OpCallSetTop, To: top}, pos)
	fg.add(Instr{Op: OpValueCopy, To: top, A: 0}, pos)
	ret := fg.allocTemp()
	fg.add(Instr{Op: OpCall, To: ret, A: fn, PosArgs: 1}, pos)
	fg.release(mark)
}

// addCatchType registers one rescue clause's caught type against frameID,
// by known class id when possible and by a runtime-evaluated expression
// otherwise.
func (fg *funcGen) addCatchType(frameID int, t ast.Expr, pos token.Pos) {
	if cid, ok := fg.staticClassID(t); ok {
		fg.add(Instr{Op: OpAddCatchType, FrameID: frameID, ClassID: cid}, pos)
		return
	}
	mark := fg.mark()
	slot := fg.expr(t)
	fg.add(Instr{Op: OpAddCatchTypeByRef, FrameID: frameID, A: slot}, pos)
	fg.release(mark)
}

// doStmt generates do/rescue/finally, per spec.md §4.9: body, jumptofinally,
// rescue target, rescue body (each), finally target, finally body,
// popcatchframe, end. The finally target is always its own label, even with
// no explicit finally block, because popcatchframe lives there - every path
// (normal exit, a matched rescue, falling through unmatched rescues) must
// pop the frame exactly once before reaching the end label.
func (fg *funcGen) doStmt(s *ast.DoStmt) {
	frameID := fg.newFrame()
	endJump := fg.newJump()
	// finallyJump is always its own label, distinct from endJump: the
	// frame must be popped exactly once, at the join point every path
	// (normal exit, each rescue, an unhandled error unwinding) converges
	// on, per spec.md §4.9/§8's "body, jumptofinally, rescue target,
	// rescue body, finally target, finally body, popcatchframe, end".
	finallyJump := fg.newJump()

	// CatchOnFinally is always set: Jump2 (the finally target) is always
	// live, since popcatchframe lives there regardless of whether this
	// do-statement has an explicit finally block.
	mode := byte(CatchOnFinally)
	if len(s.Rescues) > 0 {
		mode |= CatchOnRescue
	}
	rescueJump := fg.newJump()
	errSlot := fg.allocTemp()
	fg.add(Instr{Op: OpPushCatchFrame, FrameID: frameID, CatchMode: mode, To: errSlot, Jump: jid(rescueJump), Jump2: jid(finallyJump)}, s.Do)
	for _, rc := range s.Rescues {
		for _, t := range rc.Types {
			fg.addCatchType(frameID, t, s.Do)
		}
	}

	fg.block(s.Body)
	fg.add(Instr{Op: OpJumpToFinally, FrameID: frameID}, s.Do)

	fg.emitJumpTarget(rescueJump, s.Do)
	for i, rc := range s.Rescues {
		nextRescue := fg.newJump()
		hasMore := i < len(s.Rescues)-1

		// dispatch: each rescue's types were registered against the same
		// frame at push time, so the runtime has already matched errSlot
		// against this clause's types by the time control reaches here in
		// source order; a generator without a VM to consult simply tries
		// each clause's body in turn rather than re-testing a match here.
		if rc.Name != nil {
			if slot, ok := fg.localSlot(rc.Name.ScopeDef); ok {
				fg.add(Instr{Op: OpValueCopy, To: slot, A: errSlot}, rc.Rescue)
			}
		}
		fg.block(rc.Body)
		if hasMore {
			fg.add(Instr{Op: OpJumpToFinally, FrameID: frameID}, rc.Rescue)
			fg.emitJumpTarget(nextRescue, rc.Rescue)
		}
	}

	fg.emitJumpTarget(finallyJump, s.Do)
	if s.FinBody != nil {
		fg.block(s.FinBody)
	}
	fg.add(Instr{Op: OpPopCatchFrame, FrameID: frameID}, s.Do)
	fg.emitJumpTarget(endJump, s.Do)
}

// withStmt generates with/as, per spec.md §4.9: every clause slot starts
// at none, clause values are evaluated and bound in order, the body runs
// under an outer finally-only frame, and at the finally target each bound
// value's close() is invoked if present, innermost-first. Each clause's
// close() call runs inside its own tiny finally-only frame (see
// emitWithClose) so that a close() that throws still lets every later
// clause's close() run, rather than propagating straight out.
//
// The outer frame would normally be registered against the built-in
// Exception class (spec.md: "an outer catch frame (JUMPONFINALLY-only)
// with class Exception"), but this front end registers no built-in
// Exception class anywhere (resolver/inheritance.go only propagates an
// IsError bool by name match, never a concrete ir.Class) - so the frame
// is pushed with no registered catch types at all, the broadest policy
// available and a documented simplification, not a silent omission.
func (fg *funcGen) withStmt(s *ast.WithStmt) {
	slots := make([]int, len(s.Clauses))
	for i, c := range s.Clauses {
		slot, ok := -1, false
		if c.Name != nil {
			slot, ok = fg.localSlot(c.Name.ScopeDef)
		}
		if !ok {
			slot = fg.allocTemp()
		}
		slots[i] = slot
		fg.add(Instr{Op: OpSetConst, To: slots[i], Const: ir.NoneValue}, s.With)
	}

	frameID := fg.newFrame()
	endJump := fg.newJump()
	finallyJump := fg.newJump()
	errSlot := fg.allocTemp()
	fg.add(Instr{Op: OpPushCatchFrame, FrameID: frameID, CatchMode: CatchOnFinally, To: errSlot, Jump2: jid(finallyJump)}, s.With)

	for i, c := range s.Clauses {
		mark := fg.mark()
		v := fg.expr(c.Value)
		fg.add(Instr{Op: OpValueCopy, To: slots[i], A: v}, s.With)
		fg.release(mark)
	}

	fg.block(s.Body)
	fg.add(Instr{Op: OpJumpToFinally, FrameID: frameID}, s.With)

	fg.emitJumpTarget(finallyJump, s.With)
	closeID, _ := fg.g.Prog.Attrs.Intern("close", true)
	fg.emitWithClose(slots, 0, closeID, s.With)
	fg.add(Instr{Op: OpPopCatchFrame, FrameID: frameID}, s.With)
	fg.emitJumpTarget(endJump, s.With)
}

// emitWithClose closes with-clause i, then recurses into i+1. Each clause
// gets its own finally-only catch frame around "close this clause, then
// close the rest": if closing clause i throws, that frame's finally target
// is exactly "close the rest" (the recursive call), so clauses i+1..n still
// run their close() before the throw keeps unwinding past this frame.
func (fg *funcGen) emitWithClose(slots []int, i int, closeID ir.AttrID, pos token.Pos) {
	if i >= len(slots) {
		return
	}

	frameID := fg.newFrame()
	endJump := fg.newJump()
	finallyJump := fg.newJump()
	errSlot := fg.allocTemp()
	fg.add(Instr{Op: OpPushCatchFrame, FrameID: frameID, CatchMode: CatchOnFinally, To: errSlot, Jump2: jid(finallyJump)}, pos)

	skip := fg.newJump()
	fg.add(Instr{Op: OpHasAttrJump, A: slots[i], NameID: closeID, Jump: jid(skip)}, pos)
	mark := fg.mark()
	method := fg.allocTemp()
	fg.add(Instr{Op: OpGetAttrByName, To: method, A: slots[i], NameID: closeID}, pos)
	fg.emitCall(-1, method, nil, nil, pos, false)
	fg.release(mark)
	fg.emitJumpTarget(skip, pos)
	fg.add(Instr{Op: OpJumpToFinally, FrameID: frameID}, pos)

	fg.emitJumpTarget(finallyJump, pos)
	fg.emitWithClose(slots, i+1, closeID, pos)
	fg.add(Instr{Op: OpPopCatchFrame, FrameID: frameID}, pos)
	fg.emitJumpTarget(endJump, pos)
}
