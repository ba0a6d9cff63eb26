// Package asynccheck implements the async-propagation checker (H): a
// three-valued ("threadable" yes/no/maybe-demoted-later) fixed-point
// analysis over the call/class graph, demoting a function or class to
// non-threadable whenever anything it depends on is non-threadable, and
// reporting an error whenever a demotion contradicts an explicit "async"
// contract from the source, per spec.md §4.8.
//
// Grounded on _examples/original_source/horse64/compiler/threadablechecker.c:
// Register builds the call/class graph (its register()/
// RegisterASTForCheck), and Check's fixed-point loop is a direct port of
// iterate_final_graph().
package asynccheck

import (
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/ir"
)

// Check runs the full checker over every chunk of a resolved, storage-
// allocated project: it builds the call/referenced-class graph, then
// iterates it to a fixed point, reporting every contract violation into
// bag. Must run after the scope resolver (F); storage allocation (G) does
// not affect its outcome but is expected to have already run per the
// pipeline order in spec.md §3.
func Check(prog *ir.Program, chunks []*ast.Chunk, bag *diag.Bag) {
	g := register(prog, chunks, bag)
	iterateFinalGraph(prog, g, bag)
}

// calledFunc is one call-site edge: the callee and the source position of
// the identifier reference that named it.
type calledFunc struct {
	id        ir.FuncID
	line, col int
}

// calledClass is one class-reference edge, analogous to calledFunc.
type calledClass struct {
	id        ir.ClassID
	line, col int
}

// nodeInfo is the per-function record of everything it (possibly)
// invokes or references, per h64threadablecheck_nodeinfo.
type nodeInfo struct {
	calledFuncs   []calledFunc
	calledClasses []calledClass
}

// graph maps every function that had at least one identifier reference
// registered to its nodeInfo; a function with no edges simply has no
// entry (equivalent to an empty nodeInfo).
type graph struct {
	nodes map[ir.FuncID]*nodeInfo
}

func (g *graph) nodeFor(id ir.FuncID) *nodeInfo {
	if g.nodes == nil {
		g.nodes = make(map[ir.FuncID]*nodeInfo)
	}
	n, ok := g.nodes[id]
	if !ok {
		n = &nodeInfo{}
		g.nodes[id] = n
	}
	return n
}

// essentialOverrides are the operator-overriding method names that force a
// class non-threadable the moment any one of them is, per spec.md §4.8.
var essentialOverrides = map[string]bool{
	"init": true, "on_destroy": true, "to_str": true,
	"to_hash": true, "equals": true,
}

func isEssentialOverride(prog *ir.Program, fid ir.FuncID) bool {
	if int(fid) < 0 || int(fid) >= len(prog.Debug.FuncNames) {
		return false
	}
	return essentialOverrides[prog.Debug.FuncNames[fid]]
}
