package ast

import (
	"fmt"
	"io"
	"strings"
)

// Printer controls debug pretty-printing of AST nodes, e.g. for the
// `horsec parse` subcommand.
type Printer struct {
	// Output is the io.Writer to print to.
	Output io.Writer

	// WithPos, if true, prefixes each node with its "line:col-line:col" span.
	WithPos bool

	// NodeFmt is the format string used to print each node. The verb must
	// be either `s` or `v`; width, `#` and `-` flags are supported (see
	// format in ast.go). Defaults to `%v`.
	NodeFmt string
}

// Print pretty-prints the AST rooted at n as an indented tree.
func (p *Printer) Print(n Node) error {
	pp := &printer{w: p.Output, withPos: p.WithPos, nodeFmt: p.NodeFmt}
	if pp.nodeFmt == "" {
		pp.nodeFmt = "%v"
	}
	Walk(pp, n)
	return pp.err
}

type printer struct {
	w       io.Writer
	withPos bool
	nodeFmt string
	depth   int
	err     error
}

func (p *printer) Visit(n Node, dir VisitDirection) Visitor {
	if dir == VisitExit || p.err != nil {
		p.depth--
		return nil
	}
	p.depth++
	p.printNode(n, p.depth-1)
	return p
}

func (p *printer) printNode(n Node, indent int) {
	if p.err != nil {
		return
	}

	format := "%s"
	args := []interface{}{strings.Repeat(". ", indent)}
	if p.withPos {
		format += "[%d:%d-%d:%d] "
		start, end := n.Span()
		sl, sc := start.LineCol()
		el, ec := end.LineCol()
		args = append(args, sl, sc, el, ec)
	}
	format += p.nodeFmt + "\n"
	args = append(args, n)

	_, p.err = fmt.Fprintf(p.w, format, args...)
}
