package resolver

import "github.com/h64p/horsec/ast"

// bindLocal declares ident as a new name in the current scope. decl is the
// statement that introduces the binding (var-def, for-iterator, rescue
// binding, with-clause, nested func-def), recorded on the ScopeDef for
// diagnostics. Shadowing an outer scope's name is allowed; redeclaring a
// name already bound in the exact same scope is an error.
func (r *Resolver) bindLocal(ident *ast.IdentExpr, decl ast.Node) {
	if _, ok := r.env.Lookup(ident.Lit); ok {
		r.errorf(ident.Start, "already declared in this block: %s", ident.Lit)
		return
	}
	def := r.env.Declare(ident.Lit, decl)
	ident.ScopeDef = def
}

// use resolves ident to a binding visible from the current scope, bubbling
// up through enclosing blocks and function frames, per spec.md §4.6 phase
// 2. "self" and "base" are handled specially: they are valid only inside a
// class method, and referencing them from a nested inline function marks
// that reference closure_with_self so the outer class context is captured.
func (r *Resolver) use(ident *ast.IdentExpr) {
	if ident.Lit == "self" || ident.Lit == "base" {
		r.useSelfOrBase(ident)
		return
	}

	owner, def, ok := r.env.Resolve(ident.Lit)
	if !ok {
		r.errorf(ident.Start, "undefined: %s", ident.Lit)
		return
	}
	def.MarkUse(ident.ExprInfo.TokenIndex)
	ident.ScopeDef = def
	ident.ExprInfo.Storage = def.Storage

	if def.Storage.Kind == ast.StackSlot || def.Storage.Kind == ast.NoStorage {
		if r.definedOutsideCurrentFunction(owner) {
			def.ClosureBound = true
		}
	}
}

// definedOutsideCurrentFunction reports whether owner (the scope a name was
// found in) lies in an enclosing function's frame rather than the function
// currently being resolved. Since r.methods only tracks class-method
// frames (for self/base), and Horse64 functions always introduce a fresh
// child scope at r.function's push, any scope found by bubbling past that
// push point belongs to an outer function - which this helper approximates
// by checking whether owner is still reachable from r.funcScopes.
func (r *Resolver) definedOutsideCurrentFunction(owner *ast.Scope) bool {
	if len(r.funcScopes) == 0 {
		return false
	}
	top := r.funcScopes[len(r.funcScopes)-1]
	for s := top; s != nil; s = s.Parent {
		if s == owner {
			return false
		}
	}
	return true
}

func (r *Resolver) useSelfOrBase(ident *ast.IdentExpr) {
	if len(r.methods) == 0 {
		r.errorf(ident.Start, "%s used outside a method", ident.Lit)
		return
	}
	innermost := r.methods[len(r.methods)-1]
	if innermost.isMethod {
		return
	}
	for i := len(r.methods) - 2; i >= 0; i-- {
		if r.methods[i].isMethod {
			// Found an enclosing method below one or more inline functions:
			// this reference needs the instance captured across the
			// closure boundary.
			ident.ClosureWithSelf = true
			return
		}
	}
	r.errorf(ident.Start, "%s used outside a method", ident.Lit)
}
