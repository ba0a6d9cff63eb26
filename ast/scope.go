package ast

import "github.com/h64p/horsec/token"

// ScopeDef is a per-name record in a Scope: one declared name, its
// declaring expression, any additional declarations for the same name
// (e.g. repeated "import" aliases), and usage tracking consumed by the
// local storage allocator (G), per spec.md §3.3.
type ScopeDef struct {
	Name    string
	Decl    Node // *AssignStmt (var-def), *FuncStmt, *ClassStmt, import stmt, or param IdentExpr
	Extra   []Node

	// OwnerScope is the scope this name was declared in, used by the local
	// storage allocator (G) to tell whether a reference from inside some
	// function crosses that function's own boundary (spec.md §4.7).
	OwnerScope *Scope

	EverUsed              bool
	ClosureBound          bool
	ClosureWithSelf       bool
	FirstUseTokenIndex    int
	LastUseTokenIndex     int
	ExpandedToRealUseRange bool

	Storage StorageRef
}

// Scope owns the declarations visible starting at some block, supporting
// query/bubble-up to parent scopes, per spec.md §3.3.
type Scope struct {
	Parent   *Scope
	IsGlobal bool

	// ClassAndFuncNestingLevel counts how many class/func boundaries
	// separate this scope from the global scope; used by the resolver to
	// validate self/base usage.
	ClassAndFuncNestingLevel int

	defs    []*ScopeDef
	byName  map[string]*ScopeDef
}

// NewScope creates a scope, linked to parent (nil for the global scope).
func NewScope(parent *Scope) *Scope {
	s := &Scope{Parent: parent, byName: make(map[string]*ScopeDef)}
	if parent == nil {
		s.IsGlobal = true
	} else {
		s.ClassAndFuncNestingLevel = parent.ClassAndFuncNestingLevel
	}
	return s
}

// Declare registers a new name in this scope, returning the new ScopeDef,
// or the existing one (with decl appended to Extra) if name is already
// declared in this exact scope - e.g. repeated "import" statements for the
// same alias, per spec.md §3.3.
func (s *Scope) Declare(name string, decl Node) *ScopeDef {
	if d, ok := s.byName[name]; ok {
		d.Extra = append(d.Extra, decl)
		return d
	}
	d := &ScopeDef{Name: name, Decl: decl, LastUseTokenIndex: -1, FirstUseTokenIndex: -1, OwnerScope: s}
	s.byName[name] = d
	s.defs = append(s.defs, d)
	return d
}

// Lookup finds name in this scope without bubbling up.
func (s *Scope) Lookup(name string) (*ScopeDef, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Resolve bubbles up from s through parent scopes looking for name,
// returning the defining Scope and ScopeDef, per spec.md §4.6 phase 2.
func (s *Scope) Resolve(name string) (*Scope, *ScopeDef, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if d, ok := cur.byName[name]; ok {
			return cur, d, true
		}
	}
	return nil, nil, false
}

// Defs returns every ScopeDef declared directly in s, in declaration order.
func (s *Scope) Defs() []*ScopeDef { return s.defs }

// MarkUse records a use of def at the given token index, updating its
// first/last use range (spec.md §4.7 step 1).
func (d *ScopeDef) MarkUse(tokenIndex int) {
	d.EverUsed = true
	if d.FirstUseTokenIndex < 0 || tokenIndex < d.FirstUseTokenIndex {
		d.FirstUseTokenIndex = tokenIndex
	}
	if tokenIndex > d.LastUseTokenIndex {
		d.LastUseTokenIndex = tokenIndex
	}
}

// DeclPos reports the declaration's position, for diagnostics.
func (d *ScopeDef) DeclPos() token.Pos {
	if d.Decl == nil {
		return 0
	}
	start, _ := d.Decl.Span()
	return start
}
