// Command horsec is the Horse64 compiler toolchain driver: subcommands
// expose the scanner, parser, resolver and (once loaded) local-storage and
// async-propagation stages individually, mirroring the teacher's
// internal/maincmd stage split but through a real multi-command CLI
// (urfave/cli/v2) instead of cmd/nenuphar's single positional-command flag
// struct, per SPEC_FULL.md's Ambient Stack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/h64p/horsec/internal/config"
	"github.com/h64p/horsec/scanner"
	"github.com/urfave/cli/v2"
)

var (
	buildVersion = "dev"
	buildDate    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "horsec",
		Usage:   "compiler and tooling for the Horse64 programming language",
		Version: fmt.Sprintf("%s (%s)", buildVersion, buildDate),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "warn",
				Usage: "enable ('all' or a warning name) or disable ('no-<name>') a compiler warning, repeatable",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "tokenize",
				Usage:     "run the scanner and print the resulting tokens",
				ArgsUsage: "<file>...",
				Action:    tokenizeCommand,
			},
			{
				Name:      "parse",
				Usage:     "run the parser and print the resulting AST",
				ArgsUsage: "<file>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "with-pos", Usage: "include source spans in the printed AST"},
				},
				Action: parseCommand,
			},
			{
				Name:      "resolve",
				Usage:     "run the scope resolver and print the AST with symbol resolution info",
				ArgsUsage: "<file>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "with-pos", Usage: "include source spans in the printed AST"},
				},
				Action: resolveCommand,
			},
			{
				Name:      "compile",
				Usage:     "run every implemented compiler stage and report diagnostics",
				ArgsUsage: "<file>...",
				Action:    compileCommand,
			},
			{
				Name:      "disasm",
				Usage:     "compile and print the resulting program's textual disassembly",
				ArgsUsage: "<file>...",
				Action:    disasmCommand,
			},
			{
				Name:      "watch",
				Usage:     "re-run the compile pipeline whenever a .h64 file under the project changes",
				ArgsUsage: "<file>...",
				Action:    watchCommand,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(app.ErrWriter, err)
		os.Exit(1)
	}
}

// cliWarnFlags turns the repeatable --warn flag's values ("all",
// "<name>", "no-<name>") into the -Wall/-W<name>/-Wno-<name> flag strings
// internal/config.ParseFlags expects, per SPEC_FULL.md §6.3.
func cliWarnFlags(c *cli.Context) []string {
	var rawFlags []string
	for _, v := range c.StringSlice("warn") {
		switch {
		case v == "all":
			rawFlags = append(rawFlags, "-Wall")
		case strings.HasPrefix(v, "no-"):
			rawFlags = append(rawFlags, "-Wno-"+strings.TrimPrefix(v, "no-"))
		default:
			rawFlags = append(rawFlags, "-W"+v)
		}
	}
	return rawFlags
}

// scannerConfigFromFlags resolves a flat list of -Wall/-W<name>/-Wno-<name>
// flags into a scanner.Config, for commands (tokenize/parse) that scan a
// bare file list with no project/manifest involved.
func scannerConfigFromFlags(c *cli.Context, flags []string) scanner.Config {
	w, err := config.ParseFlags(flags)
	if err != nil {
		fmt.Fprintln(c.App.ErrWriter, err)
	}
	return scanner.Config{WarnUnrecognizedEscape: w.UnrecognizedEscapeSeq}
}
