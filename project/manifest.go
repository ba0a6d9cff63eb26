package project

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Manifest is the optional project descriptor read from "horse.toml" at
// the project root: restores the library-name declaration a project needs
// for horse_modules resolution (§4.5 step 2), plus the per-project default
// warning set (§6.3). A manifest is optional; its absence just means
// project-root guessing (§4.5) falls back to directory markers alone.
type Manifest struct {
	Library string `toml:"library"`

	Warnings struct {
		All []string `toml:"enable"`
		Off []string `toml:"disable"`
	} `toml:"warnings"`
}

// LoadManifest reads "horse.toml" directly under root, if present. A
// missing file is not an error: it returns the zero Manifest and ok=false.
func LoadManifest(root string) (Manifest, bool, error) {
	b, err := os.ReadFile(root + "/horse.toml")
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, err
	}
	var m Manifest
	if err := toml.Unmarshal(b, &m); err != nil {
		return Manifest{}, false, err
	}
	return m, true, nil
}
