package resolver

import (
	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/ir"
)

// function resolves a func/method/inline-function body: parameters are
// bound in a fresh scope, the body resolves inside it, and (isMethod,
// class) push a funcFrame so nested self/base references can be validated,
// per spec.md §4.6 phase 2 and §4.7's parameter layout.
func (r *Resolver) function(sig *ast.FuncSignature, body *ast.Block, isMethod bool, class ir.ClassID) {
	parent := r.env
	fnScope := r.push(parent)
	r.funcScopes = append(r.funcScopes, fnScope)
	r.methods = append(r.methods, funcFrame{isMethod: isMethod, class: class})

	for _, p := range sig.Params {
		r.bindLocal(p.Name, nil)
		if p.Default != nil {
			r.expr(p.Default)
		}
	}
	body.Scope = fnScope
	for _, s := range body.Stmts {
		r.stmt(s)
	}

	r.methods = r.methods[:len(r.methods)-1]
	r.funcScopes = r.funcScopes[:len(r.funcScopes)-1]
	r.pop(parent)
}
