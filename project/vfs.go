package project

import (
	"os"
	"path/filepath"
	"strings"
)

// VFS is the overlay filesystem of spec.md §6.2: a set of virtual files
// (keyed by a "/"-separated project-relative path, always rooted under
// horse_modules_builtin/) that take precedence over the real filesystem.
// The zero value is an empty overlay backed only by disk.
type VFS struct {
	overlay map[string][]byte
}

// NewVFS returns an empty overlay.
func NewVFS() *VFS {
	return &VFS{overlay: make(map[string][]byte)}
}

// AddBuiltin registers src under horse_modules_builtin/<path> in the
// overlay, so a later lookup for that path returns it without touching
// disk, per §4.5 step 2's "check horse_modules_builtin/... in the overlay
// VFS" rule.
func (v *VFS) AddBuiltin(path string, src []byte) {
	if v.overlay == nil {
		v.overlay = make(map[string][]byte)
	}
	v.overlay[toSlash("horse_modules_builtin/"+path)] = src
}

// Lookup resolves path (project-relative, OS separators allowed) against
// the overlay first, then disk; it reports which path style was used so
// callers can prefer VFS over disk per §4.5.
func (v *VFS) Lookup(baseFolder, path string) (src []byte, resolvedURI string, inVFS bool, ok bool) {
	key := toSlash(path)
	if v.overlay != nil {
		if b, found := v.overlay[key]; found {
			return b, "vfs:" + key, true, true
		}
	}
	abs := filepath.Join(baseFolder, path)
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", false, false
	}
	return b, FileURI(abs), false, true
}

// Exists is Lookup without reading the content, used by the candidate-path
// probes of §4.5 steps 2-3.
func (v *VFS) Exists(baseFolder, path string) (resolvedURI string, inVFS bool, ok bool) {
	key := toSlash(path)
	if v.overlay != nil {
		if _, found := v.overlay[key]; found {
			return "vfs:" + key, true, true
		}
	}
	abs := filepath.Join(baseFolder, path)
	if _, err := os.Stat(abs); err == nil {
		return FileURI(abs), false, true
	}
	return "", false, false
}

func toSlash(p string) string { return filepath.ToSlash(p) }

// FileURI normalizes an absolute OS path into a "file:" URI per §6.2.
// Windows drive-letter paths and POSIX absolute paths are both accepted as
// implicit file: URIs; this produces the canonical form used as a cache
// key and in diagnostics.
func FileURI(absPath string) string {
	p := filepath.ToSlash(absPath)
	if len(p) >= 2 && p[1] == ':' {
		// Windows drive letter, e.g. "C:/foo" -> "file:///C:/foo"
		return "file:///" + p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}
