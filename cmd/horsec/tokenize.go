package main

import (
	"fmt"
	"os"

	"github.com/h64p/horsec/internal/diag"
	"github.com/h64p/horsec/scanner"
	"github.com/h64p/horsec/token"
	"github.com/urfave/cli/v2"
)

// tokenizeCommand executes the scanner phase (C) over each file argument in
// turn and prints the resulting tokens, mirroring the teacher's `tokenize`
// command shape (internal/maincmd/tokenize.go) but against this toolchain's
// single-bag diag model instead of a multi-file FileSet.
func tokenizeCommand(c *cli.Context) error {
	files, err := filesFromContext(c)
	if err != nil {
		return err
	}

	bag := &diag.Bag{}
	cfg := scannerConfigFromFlags(c, cliWarnFlags(c))
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		toks := scanner.ScanAll(f, src, cfg, bag)
		for _, tv := range toks {
			fmt.Fprintf(c.App.Writer, "%s:%d:%d: %s", f, tv.Value.Line, tv.Value.Col, tv.Token)
			if lit := literalOf(tv); lit != "" {
				fmt.Fprintf(c.App.Writer, " %s", lit)
			}
			fmt.Fprintln(c.App.Writer)
		}
	}
	return exitWithDiagnostics(c, bag)
}

// literalOf extracts whatever decoded payload tv.Value carries, for display
// purposes only.
func literalOf(tv scanner.TokenAndValue) string {
	switch tv.Token {
	case token.IDENT, token.STRING:
		return tv.Value.String
	case token.INT:
		return fmt.Sprintf("%d", tv.Value.Int)
	case token.FLOAT:
		return fmt.Sprintf("%g", tv.Value.Float)
	default:
		return ""
	}
}
