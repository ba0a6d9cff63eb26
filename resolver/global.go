package resolver

import (
	"golang.org/x/exp/slices"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/token"
)

// globalStorage is phase 1 (spec.md §4.6): register every top-level
// declaration of ch with r.Prog and assign its storage. ch.Global is
// created here and becomes the root scope phase 2 resolves identifiers
// against.
func (r *Resolver) globalStorage(ch *ast.Chunk) {
	if ch.Global == nil {
		ch.Global = ast.NewScope(nil)
	}
	fileIdx := r.Prog.Debug.InternFileURI(ch.FileURI)
	mod := r.Prog.Module(ch.LibraryName, ch.ModulePath)

	for _, stmt := range ch.Block.Stmts {
		switch stmt := stmt.(type) {
		case *ast.AssignStmt:
			if stmt.DeclType == token.ILLEGAL {
				continue // plain top-level assignment; resolved as global-init code in phase 2
			}
			r.declareGlobalVars(ch, mod, fileIdx, stmt)

		case *ast.FuncStmt:
			r.declareGlobalFunc(ch, mod, fileIdx, stmt)

		case *ast.ClassStmt:
			r.declareGlobalClass(ch, mod, fileIdx, stmt)

		case *ast.ImportStmt:
			// Declare the import's leading path component as a name in the
			// chunk's global scope, so phase 2 can recognize a reference to
			// it and walk the dotted chain; project.CompileProject (E) is
			// responsible for having already set stmt.ResolvedFileURI.
			if len(stmt.Path) > 0 {
				def := ch.Global.Declare(stmt.Path[0].Lit, stmt)
				def.Storage = ast.StorageRef{Kind: ast.NoStorage}
			}
		}
	}
}

func (r *Resolver) declareGlobalVars(ch *ast.Chunk, mod *ir.ModuleSymbols, fileIdx int, stmt *ast.AssignStmt) {
	stmt.Storage = make([]ast.StorageRef, len(stmt.Left))
	for i, left := range stmt.Left {
		ident, ok := left.(*ast.IdentExpr)
		if !ok {
			continue
		}
		var rhs ast.Expr
		if i < len(stmt.Right) {
			rhs = stmt.Right[i]
		}
		gid := r.Prog.AddGlobal(ir.Global{
			Name:          ident.Lit,
			IsConst:       stmt.DeclType == token.CONST,
			IsSimpleConst: isSimpleConst(rhs),
			FileURIIndex:  fileIdx,
		})
		ref := ast.StorageRef{Kind: ast.GlobalVarSlot, ID: int(gid)}
		def := ch.Global.Declare(ident.Lit, stmt)
		def.Storage = ref
		ident.ExprInfo.Storage = ref
		stmt.Storage[i] = ref
		mod.RegisterGlobal(ident.Lit, gid, fileIdx)
	}
}

// isSimpleConst reports whether rhs is a literal or missing, per spec.md
// §3.1's Global.IsSimpleConst.
func isSimpleConst(rhs ast.Expr) bool {
	if rhs == nil {
		return true
	}
	_, ok := rhs.(*ast.LiteralExpr)
	return ok
}

func (r *Resolver) declareGlobalFunc(ch *ast.Chunk, mod *ir.ModuleSymbols, fileIdx int, stmt *ast.FuncStmt) {
	fid := r.registerFunc(stmt.Sig, ir.ClassID(ir.NoID), stmt.Fn, stmt.Name.Lit)
	r.funcID[stmt] = fid
	stmt.FuncID = fid

	ref := ast.StorageRef{Kind: ast.GlobalFuncSlot, ID: int(fid)}
	def := ch.Global.Declare(stmt.Name.Lit, stmt)
	def.Storage = ref
	stmt.Name.ExprInfo.Storage = ref
	mod.RegisterFunc(stmt.Name.Lit, fid, fileIdx)
}

func (r *Resolver) declareGlobalClass(ch *ast.Chunk, mod *ir.ModuleSymbols, fileIdx int, stmt *ast.ClassStmt) {
	// The class id must exist before its members are processed, so that
	// method registration can find the owning class, per spec.md §4.6.
	cid := r.Prog.AddClass(ir.Class{BaseClass: ir.ClassID(ir.NoID), Threadable: true})
	applyClassAsyncMarkup(r.Prog.Class(cid), stmt)
	stmt.ClassInfo = cid
	r.classID[stmt] = cid
	line, col := stmt.Class.LineCol()
	r.Prog.Debug.RecordClass(stmt.Name.Lit, ir.LineCol{Line: line, Col: col})

	ref := ast.StorageRef{Kind: ast.GlobalClassSlot, ID: int(cid)}
	def := ch.Global.Declare(stmt.Name.Lit, stmt)
	def.Storage = ref
	stmt.Name.ExprInfo.Storage = ref
	mod.RegisterClass(stmt.Name.Lit, cid, fileIdx)

	cl := r.Prog.Class(cid)
	for _, fd := range stmt.Body.Fields {
		for i, left := range fd.Left {
			ident, ok := left.(*ast.IdentExpr)
			if !ok {
				continue
			}
			nameID, _ := r.Prog.Attrs.Intern(ident.Lit, true)
			var initExpr ast.Expr
			if i < len(fd.Right) {
				initExpr = fd.Right[i]
			}
			idx := len(cl.VarAttrs)
			cl.VarAttrs = append(cl.VarAttrs, ir.VarAttr{NameID: nameID, InitExpr: initExpr})
			attrRef := ast.StorageRef{Kind: ast.VarAttrSlot, ID: idx}
			ident.ExprInfo.Storage = attrRef
		}
	}
	for _, m := range stmt.Body.Methods {
		mfid := r.registerFunc(m.Sig, cid, m.Fn, m.Name.Lit)
		r.funcID[m] = mfid
		m.FuncID = mfid

		nameID, _ := r.Prog.Attrs.Intern(m.Name.Lit, true)
		idx := len(cl.FuncAttrs)
		cl.FuncAttrs = append(cl.FuncAttrs, ir.FuncAttr{NameID: nameID, Func: mfid})
		m.Name.ExprInfo.Storage = ast.StorageRef{Kind: ast.VarAttrSlot, ID: ir.MethodOffset + idx}
	}
	cl.AttrHash.Rebuild(cl)
}

// buildKwArgIDs interns the name of every keyword (default-valued)
// parameter and returns their attribute ids sorted ascending, per spec.md
// §3.1's Func.SortedKwNameIDs.
func (r *Resolver) buildKwArgIDs(sig *ast.FuncSignature) []ir.AttrID {
	var ids []ir.AttrID
	for _, p := range sig.Params {
		if p.Default == nil {
			continue
		}
		id, _ := r.Prog.Attrs.Intern(p.Name.Lit, true)
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// registerFunc allocates an ir.Func for one funcdef (top-level, method,
// nested, or inline) and records its debug symbol. Used by phase 1 for
// top-level funcs and methods, and by phase 2 (identifier.go) for nested
// func-defs and inline func-exprs discovered while walking bodies - the
// original compiler's scoperesolver.c registers a bytecode_func_id for
// every funcdef it encounters during its single AST walk, regardless of
// nesting, since a nested function still needs its own callable Func
// entry even though its *name* is bound as an ordinary local value.
func (r *Resolver) registerFunc(sig *ast.FuncSignature, associatedClass ir.ClassID, namePos token.Pos, name string) ir.FuncID {
	kwIDs := r.buildKwArgIDs(sig)
	fid := r.Prog.AddFunc(ir.Func{
		PosArgCount:     countPosParams(sig),
		LastIsMultiArg:  sig.DotDotDot.IsValid(),
		KwArgCount:      len(kwIDs),
		SortedKwNameIDs: kwIDs,
		AssociatedClass: associatedClass,
		Threadable:      true,
	})
	applyAsyncMarkup(r.Prog.Func(fid), sig)
	line, col := namePos.LineCol()
	r.Prog.Debug.RecordFunc(name, ir.LineCol{Line: line, Col: col})
	return fid
}

// applyAsyncMarkup records a function's own "async"/"noasync" markup onto
// its freshly-registered ir.Func, per spec.md §4.8 and scoperesolver.c's
// handling of funcdef.is_canasync/is_noasync: an explicit "async" records
// UserSetCanAsync (so a later demotion by the checker (H) is reported as
// an error instead of a silent downgrade); an explicit "noasync" demotes
// Threadable immediately, with no propagation error possible since nothing
// forced it async.
func applyAsyncMarkup(fn *ir.Func, sig *ast.FuncSignature) {
	if sig.IsCanAsync {
		fn.UserSetCanAsync = true
	} else if sig.IsNoAsync {
		fn.Threadable = false
	}
}

// applyClassAsyncMarkup is applyAsyncMarkup's class-level counterpart.
func applyClassAsyncMarkup(cl *ir.Class, stmt *ast.ClassStmt) {
	if stmt.IsCanAsync {
		cl.UserSetCanAsync = true
	} else if stmt.IsNoAsync {
		cl.Threadable = false
	}
}

func countPosParams(sig *ast.FuncSignature) int {
	n := 0
	for _, p := range sig.Params {
		if p.Default == nil {
			n++
		}
	}
	return n
}
