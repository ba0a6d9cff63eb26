package asynccheck

import (
	"fmt"

	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
)

// iterateFinalGraph runs the fixed-point loop of spec.md §4.8: each pass
// over every function either leaves it unchanged or strictly demotes a
// function/class from threadable to non-threadable, so the loop is
// guaranteed to terminate. A direct port of
// threadablechecker_IterateFinalGraph.
func iterateFinalGraph(prog *ir.Program, g *graph, bag *diag.Bag) {
	for {
		changed := false
		for i := range prog.Funcs {
			fid := ir.FuncID(i)
			fn := prog.Func(fid)

			if !fn.Threadable {
				demoteOwningClassIfEssential(prog, fid, bag, &changed)
				continue
			}

			if fn.AssociatedClass != ir.ClassID(ir.NoID) {
				cl := prog.Class(fn.AssociatedClass)
				if !cl.Threadable {
					fn.Threadable = false
					changed = true
					if fn.UserSetCanAsync {
						reportFuncErr(bag, prog, fid,
							`func marked as "async" cannot be func attr of class that is not "async"`)
					}
					continue
				}
			}

			if demoteFromCallees(prog, g, fid, fn, bag) {
				changed = true
				continue
			}
			if demoteFromClasses(prog, g, fid, fn, bag) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// demoteOwningClassIfEssential handles the "a non-threadable essential
// override demotes its class" transition.
func demoteOwningClassIfEssential(prog *ir.Program, fid ir.FuncID, bag *diag.Bag, changed *bool) {
	fn := prog.Func(fid)
	if fn.AssociatedClass == ir.ClassID(ir.NoID) {
		return
	}
	if !isEssentialOverride(prog, fid) {
		return
	}
	cl := prog.Class(fn.AssociatedClass)
	if !cl.Threadable {
		return
	}
	cl.Threadable = false
	*changed = true
	if cl.UserSetCanAsync {
		name := ""
		if int(fid) < len(prog.Debug.FuncNames) {
			name = prog.Debug.FuncNames[fid]
		}
		reportFuncErr(bag, prog, fid, fmt.Sprintf(
			`class marked as "async" cannot have %q func attribute that is not "async" itself`, name))
	}
}

func demoteFromCallees(prog *ir.Program, g *graph, fid ir.FuncID, fn *ir.Func, bag *diag.Bag) bool {
	node, ok := g.nodes[fid]
	if !ok {
		return false
	}
	for _, c := range node.calledFuncs {
		if c.id == fid {
			continue
		}
		if !prog.Func(c.id).Threadable {
			fn.Threadable = false
			if fn.UserSetCanAsync {
				bag.Add(diag.Error,
					`func marked as "async" cannot access func that is not "async" itself`,
					"", c.line, c.col)
			}
			return true
		}
	}
	return false
}

func demoteFromClasses(prog *ir.Program, g *graph, fid ir.FuncID, fn *ir.Func, bag *diag.Bag) bool {
	node, ok := g.nodes[fid]
	if !ok {
		return false
	}
	for _, c := range node.calledClasses {
		if !prog.Class(c.id).Threadable {
			fn.Threadable = false
			if fn.UserSetCanAsync {
				bag.Add(diag.Error,
					`func marked as "async" cannot access class that is not "async" itself`,
					"", c.line, c.col)
			}
			return true
		}
	}
	return false
}

func reportFuncErr(bag *diag.Bag, prog *ir.Program, fid ir.FuncID, msg string) {
	line, col := 0, 0
	if int(fid) < len(prog.Debug.FuncPos) {
		pos := prog.Debug.FuncPos[fid]
		line, col = pos.Line, pos.Col
	}
	bag.Add(diag.Error, msg, "", line, col)
}
