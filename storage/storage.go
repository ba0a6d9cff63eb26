// Package storage implements the local storage allocator (G): for each
// function, it assigns stack-slot indices to parameters, closure-bound
// captures, locals, and lays out the groundwork codegen (I) needs for
// compiler temporaries, per spec.md §4.7.
//
// The algorithm is adapted from horse64/compiler/varstorage.c's
// h64funcstorageextrainfo/h64localstorageassign pair: a per-function
// vector of value/box slot assignments built up as the AST is walked,
// reusing a slot once an earlier assignment's usage range has gone out of
// scope instead of growing the stack frame for every definition.
package storage

import "github.com/h64p/horsec/ast"

// Assignment records the stack slot(s) chosen for one local definition:
// a var-def, a for-loop iterator, a rescue-exception binding, or a nested
// function-def used as a value.
type Assignment struct {
	ValueSlot    int
	ValueBoxSlot int // -1 if this definition isn't captured by a closure
	Def          *ast.ScopeDef
	UseStart     int
	UseEnd       int
}

// FuncInfo is the storage layout computed for one function body: a
// funcdef statement, an inline funcdef expression, or a class method.
type FuncInfo struct {
	HasSelf    bool
	ParamCount int

	// ClosureBoundVars are the outer-scope variables this function itself
	// captures, in the order its box parameters occupy slots
	// self_count..self_count+len(ClosureBoundVars)-1.
	ClosureBoundVars []*ast.ScopeDef

	// ClosureWithSelf records that this function's own body (not a nested
	// function's) references self/base of an enclosing method across a
	// closure boundary, i.e. it is an inline function inside a method
	// (spec.md §4.6).
	ClosureWithSelf bool

	LowestGuaranteedFreeTemp int
	Assignments              []Assignment
	MaxExtraStack            int
	JumpTargetsUsed          int32
	DoStmtsUsed              int
}

// slotFor returns the stack slot assigned to def, if any.
func (fi *FuncInfo) slotFor(def *ast.ScopeDef) (int, bool) {
	for i := range fi.Assignments {
		if fi.Assignments[i].Def == def {
			return fi.Assignments[i].ValueSlot, true
		}
	}
	return 0, false
}
