// Package config parses the warning flags and debug toggles of spec.md
// §6.3, layering environment variables (via caarlos0/env, the way the
// teacher's own indirect dependency github.com/mna/mainer does) under
// explicit CLI flags.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v6"
)

// Warnings holds the set of enabled/disabled named warnings, restoring the
// original warningconfig.c module (see SPEC_FULL.md §3).
type Warnings struct {
	ShadowingVardefs          bool `env:"HORSEC_W_SHADOWING_VARDEFS"`
	UnrecognizedEscapeSeq     bool `env:"HORSEC_W_UNRECOGNIZED_ESCAPE"`
}

var knownWarnings = map[string]func(*Warnings, bool){
	"shadowing-vardefs":          func(w *Warnings, v bool) { w.ShadowingVardefs = v },
	"unrecognized-escape-sequences": func(w *Warnings, v bool) { w.UnrecognizedEscapeSeq = v },
}

// ParseFlags parses a slice of -Wall/-W<name>/-Wno-<name> flags (§6.3),
// applied over whatever the environment already set.
func ParseFlags(args []string) (Warnings, error) {
	var w Warnings
	if err := env.Parse(&w); err != nil {
		return w, err
	}
	for _, a := range args {
		switch {
		case a == "-Wall":
			for _, set := range knownWarnings {
				set(&w, true)
			}
		case strings.HasPrefix(a, "-Wno-"):
			name := strings.TrimPrefix(a, "-Wno-")
			set, ok := knownWarnings[name]
			if !ok {
				return w, fmt.Errorf("unknown warning name: %s", name)
			}
			set(&w, false)
		case strings.HasPrefix(a, "-W"):
			name := strings.TrimPrefix(a, "-W")
			set, ok := knownWarnings[name]
			if !ok {
				return w, fmt.Errorf("unknown warning name: %s", name)
			}
			set(&w, true)
		default:
			return w, fmt.Errorf("not a warning flag: %s", a)
		}
	}
	return w, nil
}

// Debug holds the verbose-diagnostics toggles of §6.3.
type Debug struct {
	CompilerStageDebug bool `env:"HORSEC_DEBUG_STAGES"`
	ImportDebug        bool `env:"HORSEC_DEBUG_IMPORTS"`
}

// WatchMode holds the HORSEC_WATCH environment toggle. Nothing in
// cmd/horsec reads it: the supplemented `horsec watch` subcommand (see
// SPEC_FULL.md Domain Stack) runs whenever it is invoked.
type WatchMode struct {
	Enabled bool `env:"HORSEC_WATCH"`
}

func ParseDebug() (Debug, error) {
	var d Debug
	err := env.Parse(&d)
	return d, err
}
