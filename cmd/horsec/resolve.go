package main

import (
	"github.com/h64p/horsec/ast"
	"github.com/urfave/cli/v2"
)

// resolveCommand executes the scope resolver (F) across the project rooted
// at the first file argument and pretty-prints every loaded chunk's AST
// with symbol-resolution info attached, mirroring the teacher's `resolve`
// command but running across a whole project's import graph rather than a
// single flat file list.
func resolveCommand(c *cli.Context) error {
	files, err := filesFromContext(c)
	if err != nil {
		return err
	}

	lp, err := loadFiles(c.Context, files, cliWarnFlags(c))
	if err != nil {
		return err
	}
	lp.resolve()

	printer := ast.Printer{Output: c.App.Writer, WithPos: c.Bool("with-pos")}
	for _, ch := range lp.chunks {
		if err := printer.Print(ch); err != nil {
			return err
		}
	}
	return exitWithDiagnostics(c, lp.bag)
}

// compileCommand runs the full pipeline - project loading (E), scope
// resolution (F), local storage allocation (G), async-propagation checking
// (H), bytecode emission (I) and linking (J) - and reports diagnostics.
// Unlike disasmCommand it doesn't print the resulting program; it only
// reports whether compilation succeeded.
func compileCommand(c *cli.Context) error {
	files, err := filesFromContext(c)
	if err != nil {
		return err
	}

	lp, err := compilePipeline(c.Context, files, cliWarnFlags(c))
	if err != nil {
		return err
	}
	return exitWithDiagnostics(c, lp.bag)
}
