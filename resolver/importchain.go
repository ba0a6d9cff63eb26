package resolver

import (
	"strings"

	"github.com/h64p/horsec/ast"
)

// maxImportChainLen bounds the dotted "a.b.c...." access chain walked from
// an import-bound identifier, mirroring H64LIMIT_IMPORTCHAINLEN.
const maxImportChainLen = 32

// flattenDotChain walks e's left-recursive spine (((base.x).y).z and so on)
// and returns every DotExpr level innermost-first, plus the expression at
// the bottom of the spine. base is non-nil only when that bottom
// expression is a plain identifier - the only shape an import reference
// can take; any other base (a call result, an index, ...) is always a
// plain runtime attribute chain.
func flattenDotChain(e *ast.DotExpr) (chain []*ast.DotExpr, base *ast.IdentExpr) {
	cur := e
	for {
		chain = append(chain, cur)
		left, ok := cur.Left.(*ast.DotExpr)
		if !ok {
			break
		}
		cur = left
		if len(chain) > maxImportChainLen {
			return chain, nil
		}
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if id, ok := chain[0].Left.(*ast.IdentExpr); ok {
		base = id
	}
	return chain, base
}

// dotExpr resolves one "." access, per spec.md §4.6 phase 2. A plain
// runtime attribute access only resolves its left-hand base, same as any
// other expression; a chain whose root identifier is bound to an import
// statement is instead walked in full so every node along it gets the
// StorageRef of the imported symbol it denotes.
func (r *Resolver) dotExpr(e *ast.DotExpr) {
	chain, base := flattenDotChain(e)
	if base == nil || base.Lit == "self" || base.Lit == "base" {
		r.expr(e.Left)
		return
	}

	_, def, ok := r.env.Resolve(base.Lit)
	if !ok {
		r.expr(e.Left) // reports "undefined" through the normal path
		return
	}
	imp, isImport := def.Decl.(*ast.ImportStmt)
	if !isImport {
		r.expr(e.Left)
		return
	}

	r.resolveImportChain(base, def, imp, chain)
}

// resolveImportChain implements the "identifier resolving to an import
// statement" case of spec.md §4.6 phase 2, a direct port of
// scoperesolver.c's handling of H64EXPRTYPE_IMPORT_STMT declarations: find
// which of def's import declarations (there may be several, for repeated
// "import" aliases under the same leading name) matches the accessed
// dotted path, resolve the one identifier beyond it against either the
// registered C module's symbol tables or the imported chunk's global
// scope, and propagate the resulting StorageRef onto every node in the
// chain.
func (r *Resolver) resolveImportChain(base *ast.IdentExpr, def *ast.ScopeDef, imp *ast.ImportStmt, chain []*ast.DotExpr) {
	candidates := []*ast.ImportStmt{imp}
	for _, extra := range def.Extra {
		if other, ok := extra.(*ast.ImportStmt); ok {
			candidates = append(candidates, other)
		}
	}

	matched, itemLevel := matchImportPath(chain, candidates)
	if matched == nil {
		r.errorf(base.Start, "unknown reference to module path %q, not found among this file's imports",
			fullImportPath(base, chain, maxPathLen(candidates)))
		return
	}
	if itemLevel >= len(chain) {
		r.errorf(base.Start, "unexpected import reference not used as attribute by identifier base, this is invalid")
		return
	}

	item := chain[itemLevel]
	itemName := item.Right.Lit

	ref, ok := r.resolveImportedItem(item, matched, itemName)
	if !ok {
		return
	}

	def.MarkUse(base.ExprInfo.TokenIndex)
	base.ScopeDef = def
	base.ExprInfo.Storage = ref
	for i := 0; i <= itemLevel; i++ {
		chain[i].ExprInfo.Storage = ref
		chain[i].Right.ExprInfo.Storage = ref
	}
}

// resolveImportedItem looks up itemName in matched's target - the
// registered C module's symbol tables, or the imported chunk's global
// scope - and returns the resulting StorageRef.
func (r *Resolver) resolveImportedItem(item *ast.DotExpr, matched *ast.ImportStmt, itemName string) (ast.StorageRef, bool) {
	if matched.IsCModule {
		library := ""
		if matched.Library != nil {
			library = matched.Library.Lit
		}
		mod := r.Prog.Module(library, dottedPath(matched.Path))
		if id, ok := mod.FuncIndex[itemName]; ok {
			return ast.StorageRef{Kind: ast.GlobalFuncSlot, ID: int(id)}, true
		}
		if id, ok := mod.ClassIndex[itemName]; ok {
			return ast.StorageRef{Kind: ast.GlobalClassSlot, ID: int(id)}, true
		}
		if id, ok := mod.GlobalIdx[itemName]; ok {
			return ast.StorageRef{Kind: ast.GlobalVarSlot, ID: int(id)}, true
		}
		r.errorf(item.Dot, "unknown identifier %q not found in module %q", itemName, dottedPath(matched.Path))
		return ast.StorageRef{}, false
	}

	if r.lookupImport == nil {
		r.errorf(item.Dot, "unknown identifier %q not found in module %q", itemName, dottedPath(matched.Path))
		return ast.StorageRef{}, false
	}
	imported := r.lookupImport(matched.ResolvedFileURI)
	if imported == nil {
		r.errorf(item.Dot, "unknown identifier %q not found in module %q", itemName, dottedPath(matched.Path))
		return ast.StorageRef{}, false
	}
	if !imported.GlobalStorageBuilt {
		// Transitively discovered during phase 2, not part of the chunk
		// list ResolveProject's phase-1 loop already ran over: build its
		// global storage on demand, same shape as that loop's single
		// per-chunk step, idempotent via GlobalStorageBuilt.
		r.globalStorage(imported)
		imported.GlobalStorageBuilt = true
	}
	targetDef, ok := imported.Global.Lookup(itemName)
	if !ok {
		r.errorf(item.Dot, "unknown identifier %q not found in module %q", itemName, dottedPath(matched.Path))
		return ast.StorageRef{}, false
	}
	targetDef.MarkUse(item.Right.ExprInfo.TokenIndex)
	return targetDef.Storage, true
}

// matchImportPath finds, among candidates, the import declaration whose
// Path (after its leading component, already matched by base) matches the
// chain's accumulated dotted names, and reports the chain index of the
// resulting "module.item" access (== len(chain) when the chain has no
// trailing item access at all, i.e. the module was referenced standalone).
func matchImportPath(chain []*ast.DotExpr, candidates []*ast.ImportStmt) (*ast.ImportStmt, int) {
	for _, cand := range candidates {
		need := len(cand.Path) - 1 // dot levels beyond base that must match
		if need < 0 || need > len(chain) {
			continue
		}
		matches := true
		for i := 0; i < need; i++ {
			if chain[i].Right.Lit != cand.Path[i+1].Lit {
				matches = false
				break
			}
		}
		if matches {
			return cand, need
		}
	}
	return nil, -1
}

func dottedPath(path []*ast.IdentExpr) string {
	names := make([]string, len(path))
	for i, id := range path {
		names[i] = id.Lit
	}
	return strings.Join(names, ".")
}

func fullImportPath(base *ast.IdentExpr, chain []*ast.DotExpr, n int) string {
	names := []string{base.Lit}
	for i := 0; i < n && i < len(chain); i++ {
		names = append(names, chain[i].Right.Lit)
	}
	return strings.Join(names, ".")
}

func maxPathLen(candidates []*ast.ImportStmt) int {
	m := 0
	for _, c := range candidates {
		if len(c.Path)-1 > m {
			m = len(c.Path) - 1
		}
	}
	return m
}
