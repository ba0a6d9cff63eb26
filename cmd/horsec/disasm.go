package main

import (
	"fmt"

	"github.com/h64p/horsec/codegen"
	"github.com/urfave/cli/v2"
)

// disasmCommand runs the full pipeline through linking (J) and prints the
// resulting program's textual disassembly, mirroring the teacher's `dasm`
// command (internal/maincmd/dasm.go) but driving this toolchain's own
// source-to-bytecode pipeline instead of reading an already-assembled
// program from disk.
func disasmCommand(c *cli.Context) error {
	files, err := filesFromContext(c)
	if err != nil {
		return err
	}

	lp, err := compilePipeline(c.Context, files, cliWarnFlags(c))
	if err != nil {
		return err
	}
	if lp.bag.HasErrors() {
		return exitWithDiagnostics(c, lp.bag)
	}

	fmt.Fprint(c.App.Writer, codegen.Disassemble(lp.prog))
	return exitWithDiagnostics(c, lp.bag)
}
