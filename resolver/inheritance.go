package resolver

import (
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
)

// exceptionClassName is the built-in class whose presence in a base chain
// marks every class along the chain is_error, per spec.md §4.6.
const exceptionClassName = "Exception"

// propagateInheritance runs after phase 2 (too early between phase 1 and
// phase 2, per spec.md §4.6): for each class with a base class, pull in the
// parent's attributes, detect cycles, and propagate is_error from a chain
// that reaches the built-in Exception class.
func (r *Resolver) propagateInheritance() {
	n := len(r.Prog.Classes)
	state := make([]int, n) // 0 unvisited, 1 in-progress, 2 done
	for cid := 0; cid < n; cid++ {
		r.resolveClassChain(ir.ClassID(cid), state)
	}
}

func (r *Resolver) resolveClassChain(cid ir.ClassID, state []int) {
	if state[cid] == 2 {
		return
	}
	if state[cid] == 1 {
		r.Bag.Add(diag.Error, "cyclic class inheritance", "", 0, 0)
		return
	}
	state[cid] = 1

	cl := r.Prog.Class(cid)
	if int(cid) < len(r.Prog.Debug.ClassNames) && r.Prog.Debug.ClassNames[cid] == exceptionClassName {
		cl.IsError = true
	}
	if cl.BaseClass != ir.ClassID(ir.NoID) {
		base := cl.BaseClass
		r.resolveClassChain(base, state)
		r.inheritFrom(cl, r.Prog.Class(base))
	}

	state[cid] = 2
}

func (r *Resolver) inheritFrom(child, parent *ir.Class) {
	if parent.IsError {
		child.IsError = true
	}

	// child.VarAttrs already holds the class's own fields (declared in
	// phase 1, before this runs); per spec.md §4.6/§8 the base's
	// attributes form a *prefix*, ordered ancestor-most first (parent.
	// VarAttrs already carries its own base's prefix from an earlier
	// resolveClassChain call), so the inherited entries go in front,
	// not appended after.
	declared := make(map[ir.AttrID]bool, len(child.VarAttrs))
	for _, va := range child.VarAttrs {
		declared[va.NameID] = true
	}
	var prefix []ir.VarAttr
	for _, va := range parent.VarAttrs {
		if declared[va.NameID] {
			r.Bag.Add(diag.Error, "cannot override a variable attribute inherited from a base class", "", 0, 0)
			continue
		}
		prefix = append(prefix, va)
	}
	child.VarAttrs = append(prefix, child.VarAttrs...)

	declaredFn := make(map[ir.AttrID]bool, len(child.FuncAttrs))
	for _, fa := range child.FuncAttrs {
		declaredFn[fa.NameID] = true
	}
	for _, fa := range parent.FuncAttrs {
		if declaredFn[fa.NameID] {
			continue // child overrides this method, keep the child's own
		}
		child.FuncAttrs = append(child.FuncAttrs, fa)
	}

	child.AttrHash.Rebuild(child)
}
