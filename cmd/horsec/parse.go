package main

import (
	"os"

	"github.com/h64p/horsec/ast"
	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/parser"
	"github.com/urfave/cli/v2"
)

// parseCommand executes the parser phase (D) over each file argument and
// pretty-prints the resulting AST, mirroring the teacher's `parse` command
// (internal/maincmd/parse.go).
func parseCommand(c *cli.Context) error {
	files, err := filesFromContext(c)
	if err != nil {
		return err
	}

	bag := &diag.Bag{}
	cfg := scannerConfigFromFlags(c, cliWarnFlags(c))
	printer := ast.Printer{Output: c.App.Writer, WithPos: c.Bool("with-pos")}
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		ch := parser.ParseChunk(f, src, cfg, bag)
		if err := printer.Print(ch); err != nil {
			return err
		}
	}
	return exitWithDiagnostics(c, bag)
}
